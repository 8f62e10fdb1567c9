package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/broxus/fift-playground/interp"
)

// fakeFactory builds fakeEngines that run a scripted body instead of
// interpreting anything.
type fakeFactory struct {
	newErr error
	script func(e *fakeEngine) (bool, error)
	last   *fakeEngine
}

func (f *fakeFactory) Name() string { return "fake" }

func (f *fakeFactory) New(env interp.Environment, out interp.Output, cfg interp.Config) (interp.Engine, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	e := &fakeEngine{env: env, out: out, cfg: cfg, script: f.script}
	f.last = e
	return e, nil
}

type fakeEngine struct {
	env    interp.Environment
	out    interp.Output
	cfg    interp.Config
	script func(e *fakeEngine) (bool, error)

	blocks  []*interp.SourceBlock
	pos     *interp.Position
	pending interp.Continuation
	closed  bool
}

func (e *fakeEngine) AddSourceBlock(b *interp.SourceBlock) {
	e.blocks = append(e.blocks, b)
}

func (e *fakeEngine) Run(ctx context.Context) (bool, error) {
	if e.closed {
		return false, errors.New("closed")
	}
	if e.script == nil {
		return true, nil
	}
	return e.script(e)
}

func (e *fakeEngine) Position() (interp.Position, bool) {
	if e.pos == nil {
		return interp.Position{}, false
	}
	return *e.pos, true
}

func (e *fakeEngine) Pending() interp.Continuation {
	c := e.pending
	e.pending = nil
	return c
}

func (e *fakeEngine) Dictionary() interp.Dictionary { return fakeDict{"dup", "drop"} }

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

func (e *fakeEngine) blockNames() []string {
	names := make([]string, len(e.blocks))
	for i, b := range e.blocks {
		names[i] = b.Name()
	}
	return names
}

type fakeDict []string

func (d fakeDict) Lookup(name string) bool {
	for _, w := range d {
		if w == name {
			return true
		}
	}
	return false
}

func (d fakeDict) Words() []string { return d }

// fakeCont is one link of a scripted continuation chain.
type fakeCont struct {
	label string
	up    *fakeCont
	dumps *int
}

func (c *fakeCont) Dump(d interp.Dictionary) string {
	if c.dumps != nil {
		*c.dumps++
	}
	return fmt.Sprintf("%s (%d words)", c.label, len(d.Words()))
}

func (c *fakeCont) Up() interp.Continuation {
	if c.up == nil {
		return nil
	}
	return c.up
}

// chain builds frame0 -> frame1 -> ... -> frame(n-1), innermost first.
func chain(n int, dumps *int) *fakeCont {
	var root *fakeCont
	for i := n - 1; i >= 0; i-- {
		root = &fakeCont{label: fmt.Sprintf("frame%d", i), up: root, dumps: dumps}
	}
	return root
}
