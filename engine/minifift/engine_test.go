package minifift

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broxus/fift-playground/interp"
	"github.com/broxus/fift-playground/output"
	"github.com/broxus/fift-playground/vfs"
)

type harness struct {
	engine *Engine
	env    *vfs.Resolver
	out    *output.Buffer
}

func newHarness(cfg interp.Config, files map[string]string) *harness {
	env := vfs.NewResolver(vfs.NewStore(), []vfs.Tier{vfs.NewLibraryTier(nil)})
	for name, content := range files {
		env.Store().Write(name, []byte(content))
	}
	out := output.NewBuffer()
	return &harness{engine: New(env, out, cfg), env: env, out: out}
}

func (h *harness) run(t *testing.T, sources ...string) (bool, error) {
	t.Helper()
	for _, src := range sources {
		h.engine.AddSourceBlock(interp.NewStringBlock("<stdin>", src))
	}
	return h.engine.Run(context.Background())
}

func (h *harness) text(t *testing.T) string {
	t.Helper()
	s, _, err := h.out.TakeString()
	require.NoError(t, err)
	return s
}

func runProgram(t *testing.T, src string) string {
	t.Helper()
	h := newHarness(interp.Config{}, nil)
	ok, err := h.run(t, src)
	require.NoError(t, err)
	assert.True(t, ok)
	return h.text(t)
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"2 2 + .", "4 "},
		{"10 3 - .", "7 "},
		{"6 7 * .", "42 "},
		{"7 2 / . 7 2 mod .", "3 1 "},
		{"-7 2 / . -7 2 mod .", "-4 1 "},
		{"7 -2 / . 7 -2 mod .", "-4 -1 "},
		{"5 negate .", "-5 "},
		{"0x10 0b11 + .", "19 "},
		{"010 .", "10 "},
		{"340282366920938463463374607431768211456 1 - .", "340282366920938463463374607431768211455 "},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, runProgram(t, tt.src))
		})
	}
}

func TestComparisonAndLogic(t *testing.T) {
	assert.Equal(t, "-1 0 -1 -1 0 ", runProgram(t, "1 1 = . 1 2 = . 1 2 < . 2 2 >= . 3 0= ."))
	assert.Equal(t, "4 7 -1 0 ", runProgram(t, "6 5 and . 6 5 or . 0 not . true not ."))
}

func TestStackWords(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 dup . .", "1 1 "},
		{"1 2 drop .", "1 "},
		{"1 2 swap . .", "1 2 "},
		{"1 2 over . . .", "1 2 1 "},
		{"1 2 3 rot . . .", "1 3 2 "},
		{"1 2 nip . depth .", "2 0 "},
		{"1 2 2dup . . . .", "2 1 2 1 "},
		{"1 2 2drop depth .", "0 "},
		{"10 20 30 2 pick .", "10 "},
		{"10 20 30 2 roll . . .", "10 30 20 "},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, runProgram(t, tt.src))
		})
	}
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "abcd42", runProgram(t, `"ab" "cd" $+ type 42 (.) type`))
	assert.Equal(t, "3 ", runProgram(t, `"abc" $len .`))
	assert.Equal(t, "A hi\n", runProgram(t, `65 emit space "hi" $>B B>$ type cr`))
	assert.Equal(t, "2 ", runProgram(t, `"hi" $>B Blen .`))
}

func TestControlFlow(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`1 { "yes" type } if`, "yes"},
		{`0 { "yes" type } if`, ""},
		{`0 { "no" type } ifnot`, "no"},
		{`0 { "yes" } { "no" } cond type`, "no"},
		{`{ "x" type } 3 times`, "xxx"},
		{`0 { 1 + dup 5 = } until .`, "5 "},
		{`{ 2 3 * } exec .`, "6 "},
		{"{ dup * }\n: square\n7 square .", "49 "},
		{"// comment only\n1 . // trailing\n", "1 "},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, runProgram(t, tt.src))
		})
	}
}

func TestWordsBindAtCompileTime(t *testing.T) {
	src := `{ 1 } : one
{ one . } : show
{ 2 } : one
show one .`
	assert.Equal(t, "1 2 ", runProgram(t, src))
}

func TestExitFlag(t *testing.T) {
	tests := []struct {
		src  string
		want bool
		out  string
	}{
		{"1 .", true, "1 "},
		{"1 . bye 2 .", true, "1 "},
		{"0 halt", true, ""},
		{"3 halt", false, ""},
		{"{ 1 halt } : stop 5 . stop 6 .", false, "5 "},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			h := newHarness(interp.Config{}, nil)
			ok, err := h.run(t, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.out, h.text(t))
			assert.Nil(t, h.engine.Pending())
		})
	}
}

func TestUndefinedWordPosition(t *testing.T) {
	h := newHarness(interp.Config{}, nil)
	_, err := h.run(t, "1 2 +\n3 foo 4")
	require.ErrorIs(t, err, ErrUndefinedWord)
	assert.Contains(t, err.Error(), "foo")

	pos, ok := h.engine.Position()
	require.True(t, ok)
	assert.Equal(t, interp.Position{
		Offset:     11,
		BlockName:  "<stdin>",
		Line:       "3 foo 4",
		LineNumber: 2,
		WordStart:  2,
		WordEnd:    5,
	}, pos)
	assert.Nil(t, h.engine.Pending())
}

func TestUndefinedWordInsideBlock(t *testing.T) {
	h := newHarness(interp.Config{}, nil)
	_, err := h.run(t, "{ 1 nope } : broken")
	require.ErrorIs(t, err, ErrUndefinedWord)

	pos, _ := h.engine.Position()
	assert.Equal(t, "nope", pos.Line[pos.WordStart:pos.WordEnd])
	assert.False(t, h.engine.Dictionary().Lookup("broken"))
}

func TestUnterminatedString(t *testing.T) {
	h := newHarness(interp.Config{}, nil)
	_, err := h.run(t, `1 "abc`)
	require.Error(t, err)

	pos, ok := h.engine.Position()
	require.True(t, ok)
	assert.Equal(t, 2, pos.WordStart)
	assert.Equal(t, 6, pos.WordEnd)
}

func TestPendingChain(t *testing.T) {
	src := `{ 1 0 / } : inner
{ inner } : middle
{ 7 middle } : outer
outer`
	h := newHarness(interp.Config{}, nil)
	_, err := h.run(t, src)
	require.ErrorIs(t, err, ErrDivByZero)

	dict := h.engine.Dictionary()
	var dumps []string
	for c := h.engine.Pending(); c != nil; c = c.Up() {
		dumps = append(dumps, c.Dump(dict))
	}
	assert.Equal(t, []string{"inner at /", "middle at inner", "outer at middle"}, dumps)
	assert.Nil(t, h.engine.Pending(), "pending is taken once")
}

func TestPendingChainInsideAnonymousBlock(t *testing.T) {
	src := `{ 1 { "x" abort } if } : check
check`
	h := newHarness(interp.Config{}, nil)
	_, err := h.run(t, src)
	require.ErrorIs(t, err, ErrAborted)
	assert.Contains(t, err.Error(), "x")

	c := h.engine.Pending()
	require.NotNil(t, c)
	assert.Equal(t, "check at if", c.Dump(h.engine.Dictionary()))
	assert.Nil(t, c.Up())
}

func TestStepLimit(t *testing.T) {
	h := newHarness(interp.Config{MaxSteps: 50}, nil)
	_, err := h.run(t, "{ 1 drop } 100 times")
	require.ErrorIs(t, err, ErrStepLimit)
}

func TestDepthLimit(t *testing.T) {
	h := newHarness(interp.Config{MaxDepth: 8}, nil)
	_, err := h.run(t, "{ dup exec } dup exec")
	require.ErrorIs(t, err, ErrDepthLimit)
}

func TestRecursionWithoutLimitFails(t *testing.T) {
	h := newHarness(interp.Config{}, nil)
	_, err := h.run(t, "{ dup exec } dup exec")
	require.ErrorIs(t, err, ErrDepthLimit)
}

func TestIncludeDepthLimit(t *testing.T) {
	h := newHarness(interp.Config{MaxDepth: 4}, map[string]string{
		"loop.fif": `"loop.fif" include`,
	})
	_, err := h.run(t, `"loop.fif" include`)
	require.ErrorIs(t, err, ErrDepthLimit)
}

func TestIncludeWithoutLimitFails(t *testing.T) {
	h := newHarness(interp.Config{}, map[string]string{
		"loop.fif": `"loop.fif" include`,
	})
	_, err := h.run(t, `"loop.fif" include`)
	require.ErrorIs(t, err, ErrDepthLimit)
	assert.LessOrEqual(t, len(h.engine.inputs), maxNesting)
}

func TestInheritDefinitions(t *testing.T) {
	first := newHarness(interp.Config{}, nil)
	_, err := first.run(t, `{ dup * } : sq { 1 } : one`)
	require.NoError(t, err)

	second := newHarness(interp.Config{}, nil)
	require.NoError(t, second.engine.Inherit(first.engine.Dictionary()))
	ok, err := second.run(t, `3 sq . { 2 } : one one .`)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "9 2 ", second.text(t))

	// Redefinitions in the later engine leave the earlier dictionary alone.
	assert.True(t, first.engine.Dictionary().Lookup("one"))
	third := newHarness(interp.Config{}, nil)
	require.NoError(t, third.engine.Inherit(first.engine.Dictionary()))
	_, err = third.run(t, `one .`)
	require.NoError(t, err)
	assert.Equal(t, "1 ", third.text(t))

	require.ErrorIs(t, second.engine.Inherit(first.engine.Dictionary()), ErrAlreadyRun)
}

func TestInheritRejectsForeignDictionary(t *testing.T) {
	h := newHarness(interp.Config{}, nil)
	require.Error(t, h.engine.Inherit(foreignDict{}))
}

type foreignDict struct{}

func (foreignDict) Lookup(string) bool { return false }
func (foreignDict) Words() []string    { return nil }

func TestInclude(t *testing.T) {
	h := newHarness(interp.Config{}, map[string]string{
		"lib.fif": "{ 3 * } : triple\n",
	})
	ok, err := h.run(t, `"lib.fif" include 5 triple .`)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "15 ", h.text(t))
}

func TestIncludeMissingFile(t *testing.T) {
	h := newHarness(interp.Config{}, nil)
	_, err := h.run(t, `"Fift.fi" include`)
	require.ErrorIs(t, err, vfs.ErrNotFound)

	pos, _ := h.engine.Position()
	assert.Equal(t, "include", pos.Line[pos.WordStart:pos.WordEnd])
}

func TestErrorPositionInsideInclude(t *testing.T) {
	h := newHarness(interp.Config{}, map[string]string{
		"bad.fif": "1 2\nboom\n",
	})
	_, err := h.run(t, `"bad.fif" include`)
	require.ErrorIs(t, err, ErrUndefinedWord)

	pos, _ := h.engine.Position()
	assert.Equal(t, "bad.fif", pos.BlockName)
	assert.Equal(t, 2, pos.LineNumber)
}

func TestEmbeddedLibraries(t *testing.T) {
	assert.Equal(t, "6 4 5 3 7 ", runProgram(t, `"Fift.fif" include 5 1+ . 5 1- . -5 abs . 3 7 min . 3 7 max .`))
	assert.Equal(t, "2 1 4 3 ", runProgram(t, `"Stack.fif" include 1 2 3 4 2swap . . . .`))
	assert.Equal(t, "0 ", runProgram(t, `"Stack.fif" include 1 2 3 clear depth .`))
	assert.Equal(t, "\x1b[31m", runProgram(t, `"Color.fif" include ^red`))
}

func TestUnsupportedLibrariesAbort(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Asm.fif", "cell builders"},
		{"TonUtil.fif", "cells and slices"},
		{"Lists.fif", "tuples"},
		{"Lisp.fif", "tuples"},
		{"FiftExt.fif", "active-word"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(interp.Config{}, nil)
			_, err := h.run(t, `"`+tt.name+`" include`)
			require.ErrorIs(t, err, ErrAborted)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFileWords(t *testing.T) {
	src := `"hello" $>B "out.bin" B>file
"out.bin" file-exists? .
"missing" file-exists? .
"out.bin" file>B Blen .
"out.bin" 1 3 filepart>B B>$ type`
	h := newHarness(interp.Config{}, nil)
	ok, err := h.run(t, src)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "-1 0 5 ell", h.text(t))

	data, err := h.env.Store().Read("out.bin")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFilePartOutOfRange(t *testing.T) {
	h := newHarness(interp.Config{}, map[string]string{"f": "abc"})
	_, err := h.run(t, `"f" 3 0 filepart>B`)
	require.ErrorIs(t, err, vfs.ErrOutOfRange)
}

func TestDiagnosticOutput(t *testing.T) {
	h := newHarness(interp.Config{}, nil)
	_, err := h.run(t, `1 2 .s "oops" warn 3 .`)
	require.NoError(t, err)

	text, ranges, err := h.out.TakeString()
	require.NoError(t, err)
	assert.Equal(t, "1 2 \noops3 ", text)
	assert.Equal(t, []output.Range{{Start: 0, End: 5}, {Start: 5, End: 9}}, ranges)
}

func TestEnvironmentWords(t *testing.T) {
	assert.Equal(t, "0 ", runProgram(t, `"HOME" getenv? .`))

	h := newHarness(interp.Config{}, nil)
	_, err := h.run(t, "now 0 > .")
	require.NoError(t, err)
	assert.Equal(t, "-1 ", h.text(t))
}

func TestBlocksRunInOrder(t *testing.T) {
	h := newHarness(interp.Config{}, nil)
	h.engine.AddSourceBlock(interp.NewStringBlock("first", "{ 42 } : answer"))
	h.engine.AddSourceBlock(interp.NewStringBlock("second", "answer ."))
	ok, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42 ", h.text(t))
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		src  string
		want error
	}{
		{"drop", ErrStackUnderflow},
		{"1 0 mod", ErrDivByZero},
		{`"a" 1 +`, ErrTypeCheck},
		{"1 exec", ErrTypeCheck},
		{`"boom" abort`, ErrAborted},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			h := newHarness(interp.Config{}, nil)
			_, err := h.run(t, tt.src)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSyntaxErrors(t *testing.T) {
	for _, src := range []string{"}", "{ 1 2", "{ 1 } :", "{ { } : x }"} {
		t.Run(src, func(t *testing.T) {
			h := newHarness(interp.Config{}, nil)
			_, err := h.run(t, src)
			require.Error(t, err)
		})
	}
}

func TestContextCancel(t *testing.T) {
	h := newHarness(interp.Config{}, nil)
	h.engine.AddSourceBlock(interp.NewStringBlock("<stdin>", "{ 1 drop } 100000 times"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.engine.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunOnceAndClose(t *testing.T) {
	h := newHarness(interp.Config{}, nil)
	_, err := h.run(t, "1")
	require.NoError(t, err)

	_, err = h.engine.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRun)

	require.NoError(t, h.engine.Close())
	require.NoError(t, h.engine.Close())
	_, err = h.engine.Run(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestFactory(t *testing.T) {
	var f Factory
	assert.Equal(t, "minifift", f.Name())

	_, err := f.New(nil, output.NewBuffer(), interp.Config{})
	require.Error(t, err)

	env := vfs.NewResolver(vfs.NewStore(), nil)
	e, err := f.New(env, output.NewBuffer(), interp.Config{})
	require.NoError(t, err)
	assert.True(t, e.Dictionary().Lookup("dup"))
	assert.Contains(t, e.Dictionary().Words(), ":")
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"42", "42", true},
		{"-42", "-42", true},
		{"+7", "7", true},
		{"0x1f", "31", true},
		{"-0b101", "-5", true},
		{"007", "7", true},
		{"1+", "", false},
		{"-", "", false},
		{"--1", "", false},
		{"2dup", "", false},
		{"abc", "", false},
	}

	for _, tt := range tests {
		n, ok := parseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.Equal(t, tt.want, n.String(), tt.in)
		}
	}
}
