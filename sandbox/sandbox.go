// Package sandbox runs Fift source with one call and no setup, using the
// built-in reference engine.
package sandbox

import (
	"context"
	"time"

	"github.com/broxus/fift-playground/engine/minifift"
	"github.com/broxus/fift-playground/executor"
	"github.com/broxus/fift-playground/provider"
)

type Result struct {
	*executor.Result
	// Error is set when the run could not happen or its output could not
	// be decoded. Interpreter failures are reported in Result instead.
	Error error
}

// Config shapes one run. Zero budget fields take the DefaultConfig values,
// so every run is bounded.
type Config struct {
	WithStdlib bool
	// Files are visible to the program read-only, below the files it
	// writes itself and above the embedded library.
	Files    map[string]string
	MaxSteps uint64
	MaxDepth int
	Timeout  time.Duration
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxSteps == 0 {
		c.MaxSteps = def.MaxSteps
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = def.MaxDepth
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

func DefaultConfig() Config {
	return Config{
		WithStdlib: true,
		MaxSteps:   executor.DefaultMaxSteps,
		MaxDepth:   executor.DefaultMaxDepth,
		Timeout:    30 * time.Second,
	}
}

func Run(source string, cfg Config) Result {
	cfg = cfg.withDefaults()
	opts := []executor.Option{
		executor.WithMaxSteps(cfg.MaxSteps),
		executor.WithMaxDepth(cfg.MaxDepth),
		executor.WithTimeout(cfg.Timeout),
	}
	if len(cfg.Files) > 0 {
		opts = append(opts, executor.WithProvider(provider.NewStringMap(cfg.Files)))
	}

	exec, err := executor.New(minifift.Factory{}, opts...)
	if err != nil {
		return Result{Error: err}
	}

	res, err := exec.Run(context.Background(), source, cfg.WithStdlib)
	return Result{Result: res, Error: err}
}
