package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/broxus/fift-playground/interp"
	"github.com/broxus/fift-playground/output"
	"github.com/broxus/fift-playground/vfs"
)

// StdinBlockName names the block holding the caller's source.
const StdinBlockName = "<stdin>"

// ErrEngineInit is returned when the interpreter engine cannot be constructed.
var ErrEngineInit = errors.New("engine initialization failed")

// Executor runs source text on engines built by a factory. It holds no
// per-run state and is safe for concurrent use.
type Executor struct {
	factory interp.Factory
	cfg     config
	tiers   []vfs.Tier
	log     *slog.Logger
}

// New creates an Executor that builds engines with factory.
func New(factory interp.Factory, opts ...Option) (*Executor, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: no engine factory", ErrEngineInit)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Executor{
		factory: factory,
		cfg:     cfg,
		log:     cfg.logger.With("engine", factory.Name()),
	}

	for _, p := range cfg.providers {
		tier := vfs.NewExternalTier(p)
		tier.OnFailure = func(op, name string, err error) {
			e.log.Warn("file provider failed", "op", op, "name", name, "error", err)
		}
		e.tiers = append(e.tiers, tier)
	}
	if cfg.library != nil {
		e.tiers = append(e.tiers, vfs.NewLibraryTier(cfg.library))
	}
	e.tiers = append(e.tiers, cfg.extra...)

	return e, nil
}

// Run executes source once with a fresh file store. When withStdlib is set
// the stdlib file is run before source.
//
// The returned error is reserved for adapter failures (engine construction,
// a missing stdlib, undecodable output); interpreter failures are reported
// in the Result.
func (e *Executor) Run(ctx context.Context, source string, withStdlib bool) (*Result, error) {
	res, _, err := e.run(ctx, vfs.NewStore(), source, withStdlib, nil)
	return res, err
}

// Words returns the names an engine defines before running anything.
func (e *Executor) Words() ([]string, error) {
	resolver := vfs.NewResolver(vfs.NewStore(), e.tiers, vfs.WithClock(e.cfg.clock))
	engine, err := e.factory.New(resolver, output.NewBuffer(), e.engineConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineInit, err)
	}
	defer engine.Close()
	return engine.Dictionary().Words(), nil
}

func (e *Executor) engineConfig() interp.Config {
	return interp.Config{MaxSteps: e.cfg.maxSteps, MaxDepth: e.cfg.maxDepth}
}

// runState is what a run leaves behind for the next run of a session.
type runState struct {
	dict interp.Dictionary
	// inheritable is set when the engine can start from dict.
	inheritable bool
}

// run executes one block sequence against store. When prev is set and the
// engine supports it, the engine starts from that dictionary.
func (e *Executor) run(ctx context.Context, store *vfs.Store, source string, withStdlib bool, prev interp.Dictionary) (*Result, runState, error) {
	start := time.Now()

	if e.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.timeout)
		defer cancel()
	}

	resolver := vfs.NewResolver(store, e.tiers, vfs.WithClock(e.cfg.clock))
	buf := output.NewBuffer()

	engine, err := e.factory.New(resolver, buf, e.engineConfig())
	if err != nil {
		return nil, runState{}, fmt.Errorf("%w: %w", ErrEngineInit, err)
	}

	inh, inheritable := engine.(interp.Inheritor)
	if prev != nil && inheritable {
		if err := inh.Inherit(prev); err != nil {
			engine.Close()
			return nil, runState{}, fmt.Errorf("%w: %w", ErrEngineInit, err)
		}
	}

	if withStdlib {
		block, err := resolver.Include(e.cfg.stdlibName)
		if err != nil {
			engine.Close()
			return nil, runState{}, fmt.Errorf("load stdlib: %w", err)
		}
		engine.AddSourceBlock(block)
	}
	engine.AddSourceBlock(interp.NewStringBlock(StdinBlockName, source))

	res := &Result{}
	exitFlag, runErr := engine.Run(ctx)
	if runErr == nil {
		code := 0
		if !exitFlag {
			code = 1
		}
		res.Success = true
		res.ExitCode = &code
	} else {
		res.Stderr = runErr.Error()
		if errors.Is(runErr, context.DeadlineExceeded) && e.cfg.timeout > 0 {
			res.Stderr = fmt.Sprintf("timeout after %v", e.cfg.timeout)
		}
		if pos, ok := engine.Position(); ok {
			res.ErrorPosition = newErrorPosition(pos)
		}
		if c := engine.Pending(); c != nil {
			res.Backtrace = slices.Collect(Backtrace(c, engine.Dictionary()))
		}
	}
	state := runState{dict: engine.Dictionary(), inheritable: inheritable}

	if err := engine.Close(); err != nil {
		e.log.Warn("close engine", "error", err)
	}

	text, ranges, err := buf.TakeString()
	if err != nil {
		return nil, runState{}, err
	}
	res.Stdout = text
	res.StderrRanges = ranges
	res.Duration = time.Since(start)

	e.log.Debug("run finished",
		"success", res.Success,
		"stdlib", withStdlib,
		"output_bytes", len(text),
		"duration", res.Duration,
	)
	return res, state, nil
}
