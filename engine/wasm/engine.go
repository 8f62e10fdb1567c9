package wasm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"

	"github.com/broxus/fift-playground/interp"
	"github.com/broxus/fift-playground/output"
)

var (
	ErrEngineClosed = errors.New("wasm: engine closed")
	ErrAlreadyRun   = errors.New("wasm: engine already ran")
)

// Engine runs one guest instance.
type Engine struct {
	module *Module
	state  *guestState
	cfg    interp.Config

	pending interp.Continuation
	ran     bool
	closed  bool
}

func (e *Engine) AddSourceBlock(b *interp.SourceBlock) {
	e.state.addSource(b)
}

// Run instantiates the guest and waits for it to exit. Exit code 0 means a
// normal end; a non-zero exit without a reported error yields a false exit
// flag; a reported error fails the run.
func (e *Engine) Run(ctx context.Context) (bool, error) {
	if e.closed {
		return false, ErrEngineClosed
	}
	if e.ran {
		return false, ErrAlreadyRun
	}
	e.ran = true

	e.module.mu.RLock()
	defer e.module.mu.RUnlock()
	if e.module.closed {
		return false, ErrModuleClosed
	}

	st := e.state
	ctx = context.WithValue(ctx, stateKey{}, st)

	modCfg := wazero.NewModuleConfig().
		WithStdout(st.out).
		WithStderr(output.Diagnostics(st.out)).
		WithArgs(e.args()...).
		WithName("").
		WithSysWalltime()

	mod, err := e.module.runtime.InstantiateModule(ctx, e.module.compiled, modCfg)
	if mod != nil {
		mod.Close(ctx)
	}

	ok, runErr := e.outcome(ctx, err)
	if runErr != nil && len(st.frames) > 0 {
		e.pending = &frameCont{frames: st.frames}
	}
	return ok, runErr
}

func (e *Engine) outcome(ctx context.Context, err error) (bool, error) {
	st := e.state
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	var exitErr *sys.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		if exitErr.ExitCode() != 0 && !st.hasErr {
			return false, nil
		}
	default:
		if !st.hasErr {
			return false, fmt.Errorf("interpreter trapped: %w", err)
		}
	}

	if st.hasErr {
		return false, errors.New(st.errMsg)
	}
	return true, nil
}

func (e *Engine) args() []string {
	return []string{
		"fift",
		"--max-steps", strconv.FormatUint(e.cfg.MaxSteps, 10),
		"--max-depth", strconv.Itoa(e.cfg.MaxDepth),
	}
}

func (e *Engine) Position() (interp.Position, bool) {
	if e.state.position == nil {
		return interp.Position{}, false
	}
	return *e.state.position, true
}

func (e *Engine) Pending() interp.Continuation {
	c := e.pending
	e.pending = nil
	return c
}

// Dictionary lists the words the guest reported.
func (e *Engine) Dictionary() interp.Dictionary {
	return wordSet(e.state.wordList())
}

func (e *Engine) Close() error {
	e.closed = true
	return nil
}

// frameCont walks the frames the guest reported, innermost first.
type frameCont struct {
	frames []string
	i      int
}

func (c *frameCont) Dump(interp.Dictionary) string { return c.frames[c.i] }

func (c *frameCont) Up() interp.Continuation {
	if c.i+1 >= len(c.frames) {
		return nil
	}
	return &frameCont{frames: c.frames, i: c.i + 1}
}

type wordSet []string

func (w wordSet) Lookup(name string) bool { return slices.Contains(w, name) }

func (w wordSet) Words() []string { return append([]string(nil), w...) }

var _ interp.Engine = (*Engine)(nil)
