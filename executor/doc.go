// Package executor runs Fift source on an interpreter engine and assembles
// the outcome into a [Result].
//
// # Overview
//
// Each run gets a fresh file resolver and output buffer. The resolver answers
// file requests from, in order, files written during the run, external
// providers, and the embedded library. The engine is an [interp.Factory];
// the executor never looks inside it beyond the interp interfaces.
//
// # Basic Usage
//
//	exec, err := executor.New(minifift.Factory{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := exec.Run(ctx, `2 2 + .`, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Stdout) // 4
//
// # Failures
//
// Interpreter failures are part of the Result: Success is false, Stderr
// holds the error text, ErrorPosition points at the failing word and
// Backtrace lists the pending calls, innermost first. Run returns an error
// only when the run could not happen or its output could not be decoded.
//
// # Sessions
//
// A Session keeps files written by one run visible to the next:
//
//	s := exec.NewSession()
//	defer s.Close()
//
//	s.Run(ctx, `"hi" $>B "greeting" B>file`, false)
//	s.Run(ctx, `"greeting" file>B B>$ type`, false) // hi
//
// # Files
//
// External files come from any [vfs.Provider], for example a host directory:
//
//	exec, _ := executor.New(minifift.Factory{},
//	    executor.WithProvider(provider.NewDir([]provider.Mount{{HostPath: "./contracts"}})),
//	)
package executor
