// Package minifift is a small Fift-flavoured stack interpreter. It runs the
// playground without a compiled WebAssembly interpreter and serves as the
// reference engine in tests.
//
// Values are integers (*big.Int), strings, byte strings and blocks. Source is
// read line by line; "//" starts a comment that runs to the end of the line.
//
//	{ dup * } : square
//	7 square .        // prints "49 "
package minifift

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/broxus/fift-playground/interp"
)

var (
	ErrClosed         = errors.New("minifift: engine closed")
	ErrAlreadyRun     = errors.New("minifift: engine already ran")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrUndefinedWord  = errors.New("undefined word")
	ErrStepLimit      = errors.New("step limit exceeded")
	ErrDepthLimit     = errors.New("nesting depth limit exceeded")
	ErrDivByZero      = errors.New("division by zero")
	ErrTypeCheck      = errors.New("type check error")
	ErrAborted        = errors.New("aborted")
)

// maxNesting bounds block nesting when no depth limit is configured, so a
// runaway recursion fails instead of exhausting the goroutine stack.
const maxNesting = 1 << 14

// exitSignal unwinds the interpreter on bye and halt.
type exitSignal struct {
	ok bool
}

func (exitSignal) Error() string { return "exit" }

// Factory builds minifift engines.
type Factory struct{}

func (Factory) Name() string { return "minifift" }

func (Factory) New(env interp.Environment, out interp.Output, cfg interp.Config) (interp.Engine, error) {
	if env == nil || out == nil {
		return nil, errors.New("minifift: environment and output are required")
	}
	return New(env, out, cfg), nil
}

// Engine is a single-use interpreter instance.
type Engine struct {
	env  interp.Environment
	out  interp.Output
	cfg  interp.Config
	dict *Dictionary
	ctx  context.Context

	stack  []any
	queue  []*interp.SourceBlock
	inputs []*source
	frames []*frame
	depth  int
	steps  uint64

	pos     interp.Position
	hasPos  bool
	pending interp.Continuation
	ran     bool
	closed  bool
}

// New returns an engine with the builtin dictionary installed.
func New(env interp.Environment, out interp.Output, cfg interp.Config) *Engine {
	e := &Engine{
		env:  env,
		out:  out,
		cfg:  cfg,
		dict: newDictionary(),
		ctx:  context.Background(),
	}
	installBuiltins(e.dict)
	return e
}

func (e *Engine) AddSourceBlock(b *interp.SourceBlock) {
	e.queue = append(e.queue, b)
}

// Run interprets every queued block in order. It returns the exit flag:
// true on normal end or bye, and n == 0 for "n halt".
func (e *Engine) Run(ctx context.Context) (bool, error) {
	if e.closed {
		return false, ErrClosed
	}
	if e.ran {
		return false, ErrAlreadyRun
	}
	e.ran = true
	e.ctx = ctx

	err := e.interpret()
	var exit exitSignal
	switch {
	case errors.As(err, &exit):
		e.frames = nil
		return exit.ok, nil
	case err != nil:
		if len(e.frames) > 0 {
			e.pending = &cont{frames: e.frames, i: len(e.frames) - 1}
		}
		return false, err
	}
	return true, nil
}

func (e *Engine) Position() (interp.Position, bool) {
	return e.pos, e.hasPos
}

func (e *Engine) Pending() interp.Continuation {
	c := e.pending
	e.pending = nil
	return c
}

func (e *Engine) Dictionary() interp.Dictionary {
	return e.dict
}

// Inherit installs every word of a dictionary left by an earlier minifift
// engine. Definitions are immutable once compiled, so they are shared.
func (e *Engine) Inherit(d interp.Dictionary) error {
	if e.ran {
		return ErrAlreadyRun
	}
	prev, ok := d.(*Dictionary)
	if !ok {
		return fmt.Errorf("minifift: cannot inherit a %T dictionary", d)
	}
	for name, w := range prev.words {
		e.dict.words[name] = w
	}
	return nil
}

// Stack returns a copy of the data stack, bottom first.
func (e *Engine) Stack() []any {
	return append([]any(nil), e.stack...)
}

func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.stack, e.queue, e.inputs, e.frames = nil, nil, nil, nil
	return nil
}

func (e *Engine) interpret() error {
	for {
		tok, ok, err := e.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := e.interpretToken(tok); err != nil {
			return err
		}
	}
}

// next reads a token from the innermost input, starting queued blocks and
// leaving finished includes as needed.
func (e *Engine) next() (token, bool, error) {
	for {
		if len(e.inputs) == 0 {
			if len(e.queue) == 0 {
				return token{}, false, nil
			}
			b := e.queue[0]
			e.queue = e.queue[1:]
			e.inputs = append(e.inputs, newSource(b))
			continue
		}
		src := e.inputs[len(e.inputs)-1]
		tok, ok, err := e.read(src)
		if err != nil || ok {
			return tok, ok, err
		}
		e.inputs = e.inputs[:len(e.inputs)-1]
	}
}

// read takes a token from src and records it as the current position.
func (e *Engine) read(src *source) (token, bool, error) {
	tok, ok, err := src.token()
	if ok || err != nil {
		e.pos, e.hasPos = src.position(tok), true
	}
	return tok, ok, err
}

func (e *Engine) interpretToken(tok token) error {
	if tok.str {
		e.push(tok.text)
		return nil
	}
	switch tok.text {
	case "{":
		b, err := e.compile(e.inputs[len(e.inputs)-1], 1)
		if err != nil {
			return err
		}
		e.push(b)
		return nil
	case "}":
		return fmt.Errorf("unexpected `}`")
	}
	if n, ok := parseNumber(tok.text); ok {
		e.push(n)
		return nil
	}
	w, ok := e.dict.get(tok.text)
	if !ok {
		return fmt.Errorf("%w `%s`", ErrUndefinedWord, tok.text)
	}
	if w.active != nil {
		return w.active(e)
	}
	return e.call(w)
}

// compile reads a block body up to the matching "}". Blocks may span lines
// but not source blocks.
func (e *Engine) compile(src *source, level int) (*Block, error) {
	if err := e.enter(level); err != nil {
		return nil, err
	}
	b := &Block{}
	for {
		tok, ok, err := e.read(src)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New("unterminated block")
		}
		if tok.str {
			b.ops = append(b.ops, op{lit: tok.text})
			continue
		}
		switch tok.text {
		case "{":
			inner, err := e.compile(src, level+1)
			if err != nil {
				return nil, err
			}
			b.ops = append(b.ops, op{lit: inner})
			continue
		case "}":
			return b, nil
		}
		if n, ok := parseNumber(tok.text); ok {
			b.ops = append(b.ops, op{lit: n})
			continue
		}
		w, ok := e.dict.get(tok.text)
		if !ok {
			return nil, fmt.Errorf("%w `%s`", ErrUndefinedWord, tok.text)
		}
		if w.active != nil {
			return nil, fmt.Errorf("`%s` cannot be used inside a block", tok.text)
		}
		b.ops = append(b.ops, op{w: w})
	}
}

// call executes one word and charges one step for it.
func (e *Engine) call(w *word) error {
	if err := e.step(); err != nil {
		return err
	}
	if w.prim != nil {
		return w.prim(e)
	}
	f := &frame{name: w.name, body: w.body}
	e.frames = append(e.frames, f)
	if err := e.exec(w.body, f); err != nil {
		return err
	}
	e.frames = e.frames[:len(e.frames)-1]
	return nil
}

// exec runs b. When f is non-nil it tracks the instruction pointer for
// backtraces.
func (e *Engine) exec(b *Block, f *frame) error {
	if err := e.enter(e.depth + 1); err != nil {
		return err
	}
	e.depth++
	for i, o := range b.ops {
		if f != nil {
			f.ip = i
		}
		if o.w == nil {
			e.push(o.lit)
			continue
		}
		if err := e.call(o.w); err != nil {
			return err
		}
	}
	e.depth--
	return nil
}

func (e *Engine) enter(level int) error {
	limit := e.cfg.MaxDepth
	if limit <= 0 || limit > maxNesting {
		limit = maxNesting
	}
	if level > limit {
		return ErrDepthLimit
	}
	return nil
}

func (e *Engine) step() error {
	e.steps++
	if e.cfg.MaxSteps > 0 && e.steps > e.cfg.MaxSteps {
		return ErrStepLimit
	}
	if e.steps&0x3ff == 0 {
		if err := e.ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// include pushes name as a new input source.
func (e *Engine) include(name string) error {
	limit := e.cfg.MaxDepth
	if limit <= 0 || limit > maxNesting {
		limit = maxNesting
	}
	if len(e.inputs) >= limit {
		return fmt.Errorf("include `%s`: %w", name, ErrDepthLimit)
	}
	b, err := e.env.Include(name)
	if err != nil {
		return err
	}
	e.inputs = append(e.inputs, newSource(b))
	return nil
}

// define implements ":", which binds the block on the stack to the next
// word of input.
func (e *Engine) define() error {
	body, err := e.popBlock()
	if err != nil {
		return err
	}
	src := e.inputs[len(e.inputs)-1]
	tok, ok, err := e.read(src)
	if err != nil {
		return err
	}
	if !ok || tok.str || tok.text == "{" || tok.text == "}" {
		return errors.New("word name expected after `:`")
	}
	e.dict.define(tok.text, body)
	return nil
}

func (e *Engine) print(s string) error {
	_, err := e.out.Write([]byte(s))
	return err
}

func (e *Engine) printBytes(b []byte) error {
	_, err := e.out.Write(b)
	return err
}

func (e *Engine) diagnostic(s string) error {
	_, err := e.out.WriteDiagnostic(s)
	return err
}

func (e *Engine) dumpStack() string {
	var sb strings.Builder
	for _, v := range e.stack {
		sb.WriteString(formatValue(v))
		sb.WriteByte(' ')
	}
	sb.WriteByte('\n')
	return sb.String()
}

// parseNumber accepts decimal literals and 0x/0b prefixed ones, with an
// optional sign.
func parseNumber(s string) (*big.Int, bool) {
	digits := strings.TrimLeft(s, "+-")
	if len(s)-len(digits) > 1 || digits == "" || digits[0] < '0' || digits[0] > '9' {
		return nil, false
	}
	base := 10
	if len(digits) > 2 && digits[0] == '0' && strings.ContainsRune("xXbB", rune(digits[1])) {
		base = 0
	}
	return new(big.Int).SetString(s, base)
}

var (
	_ interp.Factory = Factory{}
	_ interp.Engine  = (*Engine)(nil)
)

var (
	_ interp.Engine    = (*Engine)(nil)
	_ interp.Inheritor = (*Engine)(nil)
)
