// Package fiftplayground runs Fift programs in an isolated interpreter with a
// virtual file system.
//
// # Overview
//
// A run feeds source blocks to an interpreter engine. The engine sees files
// only through a resolver with three tiers, consulted in order: files the
// program (or session) wrote, files from host providers, and the embedded
// standard library. Output goes to one buffer that remembers which byte
// ranges were diagnostics.
//
// # Basic Usage
//
//	exec, _ := executor.New(minifift.Factory{})
//
//	// Stateless execution
//	res, _ := exec.Run(ctx, `"hello" type`, true)
//	fmt.Println(res.Stdout)
//
//	// Session with persistent files
//	session := exec.NewSession()
//	session.Run(ctx, `"42" $>B "answer" B>file`, false)
//	session.Run(ctx, `"answer" file>B B>$ type`, false) // 42
//
// # Providers
//
//	// Host directories
//	exec, _ := executor.New(minifift.Factory{},
//	    executor.WithProvider(provider.NewDir([]provider.Mount{{Prefix: "lib", HostPath: "./fift-libs"}})))
//
//	// Files fetched over HTTP from an allow-listed host
//	exec, _ := executor.New(minifift.Factory{},
//	    executor.WithProvider(provider.NewHTTP(provider.HTTPConfig{
//	        BaseURL:      "https://example.com/fift/",
//	        AllowedHosts: []string{"example.com"},
//	    })))
//
// # Engines
//
// [engine/minifift] is a small built-in interpreter. [engine/wasm] runs a
// full interpreter compiled to WebAssembly under wazero.
//
// See the [executor], [vfs], [provider], and [sandbox] packages for detailed
// API documentation.
package fiftplayground
