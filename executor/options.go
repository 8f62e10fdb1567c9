package executor

import (
	"io"
	"log/slog"
	"time"

	"github.com/broxus/fift-playground/library"
	"github.com/broxus/fift-playground/vfs"
)

const (
	DefaultStdlibName = library.Base
	DefaultMaxSteps   = 10_000_000
	DefaultMaxDepth   = 256
)

// Option configures an Executor.
type Option func(*config)

type config struct {
	providers  []vfs.Provider
	extra      []vfs.Tier
	library    *library.Set
	stdlibName string
	maxSteps   uint64
	maxDepth   int
	timeout    time.Duration
	logger     *slog.Logger
	clock      func() time.Time
}

func defaultConfig() config {
	return config{
		library:    library.Default(),
		stdlibName: DefaultStdlibName,
		maxSteps:   DefaultMaxSteps,
		maxDepth:   DefaultMaxDepth,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:      time.Now,
	}
}

// WithProvider adds an external file provider. Providers are consulted after
// the session-local files and before the embedded library, in the order they
// were added.
func WithProvider(p vfs.Provider) Option {
	return func(c *config) {
		c.providers = append(c.providers, p)
	}
}

// WithTier appends a tier after the embedded library.
func WithTier(t vfs.Tier) Option {
	return func(c *config) {
		c.extra = append(c.extra, t)
	}
}

// WithLibrary replaces the embedded library. A nil set disables it.
func WithLibrary(set *library.Set) Option {
	return func(c *config) {
		c.library = set
	}
}

// WithStdlibName sets the file included first when a run asks for the stdlib.
func WithStdlibName(name string) Option {
	return func(c *config) {
		c.stdlibName = name
	}
}

// WithMaxSteps sets the engine step budget. Zero disables the limit.
func WithMaxSteps(n uint64) Option {
	return func(c *config) {
		c.maxSteps = n
	}
}

// WithMaxDepth sets the call and include nesting budget. Zero disables the
// limit.
func WithMaxDepth(n int) Option {
	return func(c *config) {
		c.maxDepth = n
	}
}

// WithTimeout bounds the wall-clock time of each run.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the wall clock seen by interpreted code.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}
