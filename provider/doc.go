// Package provider implements host-side file providers for the external tier
// of the virtual file system.
//
// A provider answers two questions about a file name: does it exist, and what
// are its bytes. The interpreter never talks to a provider directly; the
// vfs package wraps it so that failures come back as ordinary I/O errors.
//
// # Providers
//
// Directories: read-only mount points via [Dir] and [Mount].
//
//	dir := provider.NewDir(provider.Mount{Prefix: "lib", HostPath: "./fift-libs"})
//
// In-memory: a mutable set of named files via [Map], used for files sent
// alongside a request.
//
//	files := provider.NewMap(map[string][]byte{"main.fif": []byte(`"hi" type`)})
//
// HTTP: files fetched from a base URL on an allow-listed host via [HTTP].
//
//	remote := provider.NewHTTP(provider.HTTPConfig{
//	    BaseURL:      "https://example.com/fift/",
//	    AllowedHosts: []string{"example.com"},
//	})
//
// Several providers can be combined with [Chain]; the first provider that
// reports a file as existing answers for it.
package provider
