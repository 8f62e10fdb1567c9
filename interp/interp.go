// Package interp defines the boundary between the adapter and an interpreter
// engine. The engine itself (dictionary lookup, stack machine, continuation
// evaluation) lives behind these interfaces.
package interp

import (
	"context"
	"io"
)

// Environment is the capability set an engine uses to reach the outside
// world. All file access goes through it.
type Environment interface {
	// NowMs returns a coarse wall-clock reading in milliseconds.
	NowMs() uint64
	// GetEnv looks up an environment variable.
	GetEnv(name string) (string, bool)

	FileExists(name string) bool
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	ReadFilePart(name string, offset, length uint64) ([]byte, error)
	// Include opens name as a source block.
	Include(name string) (*SourceBlock, error)
}

// Output receives what the engine prints. Write is the primary path;
// WriteDiagnostic is the diagnostic (stderr-like) path.
type Output interface {
	io.Writer
	WriteDiagnostic(s string) (int, error)
}

// Config bounds a single run.
type Config struct {
	// MaxSteps is the maximum number of executed words. Zero means unlimited.
	MaxSteps uint64
	// MaxDepth is the maximum include and call nesting. Zero means unlimited.
	MaxDepth int
}

// Factory constructs engines bound to an environment and an output.
type Factory interface {
	// Name identifies the engine implementation.
	Name() string
	New(env Environment, out Output, cfg Config) (Engine, error)
}

// Engine is one interpreter instance.
type Engine interface {
	// AddSourceBlock queues a block. Blocks run in the order they are added.
	AddSourceBlock(b *SourceBlock)

	// Run executes all queued blocks. On success it returns the raw exit
	// flag reported by the engine; it is true when execution ended normally.
	Run(ctx context.Context) (bool, error)

	// Position reports where the input cursor was when the run stopped.
	Position() (Position, bool)

	// Pending takes the innermost pending continuation left by a failed run,
	// or nil. A second call returns nil.
	Pending() Continuation

	// Dictionary exposes the current word dictionary.
	Dictionary() Dictionary

	// Close releases the engine. The engine must not be used afterwards.
	Close() error
}

// Inheritor is implemented by engines that can start from the dictionary an
// earlier engine of the same factory ended with.
type Inheritor interface {
	Inherit(d Dictionary) error
}

// Continuation is a suspended computation observed after a failure.
type Continuation interface {
	// Dump renders the continuation for display.
	Dump(d Dictionary) string
	// Up returns the parent continuation, or nil at the root.
	Up() Continuation
}

// Dictionary is the engine's word table.
type Dictionary interface {
	Lookup(name string) bool
	Words() []string
}

// Position locates the input cursor. WordStart and WordEnd are byte offsets
// within Line.
type Position struct {
	Offset     int
	BlockName  string
	Line       string
	LineNumber int
	WordStart  int
	WordEnd    int
}
