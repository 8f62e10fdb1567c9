package minifift

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/broxus/fift-playground/interp"
)

// word is a dictionary entry. Exactly one of prim, body or active is set.
type word struct {
	name string
	prim func(e *Engine) error
	body *Block
	// active words run while reading input instead of being compiled.
	active func(e *Engine) error
}

// op is one compiled instruction: either a call or a literal push.
type op struct {
	w   *word
	lit any
}

func (o op) String() string {
	if o.w != nil {
		return o.w.name
	}
	return formatValue(o.lit)
}

// Block is a compiled sequence of instructions. Words inside a block are
// bound when the block is compiled.
type Block struct {
	ops []op
}

func (b *Block) String() string {
	parts := make([]string, 0, len(b.ops)+2)
	parts = append(parts, "{")
	for _, o := range b.ops {
		parts = append(parts, o.String())
	}
	parts = append(parts, "}")
	return strings.Join(parts, " ")
}

// Dictionary maps word names to definitions.
type Dictionary struct {
	words map[string]*word
}

func newDictionary() *Dictionary {
	return &Dictionary{words: make(map[string]*word)}
}

// Lookup reports whether name is defined.
func (d *Dictionary) Lookup(name string) bool {
	_, ok := d.words[name]
	return ok
}

// Words returns all defined names in lexical order.
func (d *Dictionary) Words() []string {
	names := make([]string, 0, len(d.words))
	for name := range d.words {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dictionary) get(name string) (*word, bool) {
	w, ok := d.words[name]
	return w, ok
}

func (d *Dictionary) define(name string, body *Block) {
	d.words[name] = &word{name: name, body: body}
}

func (d *Dictionary) builtin(name string, fn func(e *Engine) error) {
	d.words[name] = &word{name: name, prim: fn}
}

// nameOf finds the name currently bound to body.
func (d *Dictionary) nameOf(body *Block) (string, bool) {
	for _, name := range d.Words() {
		if d.words[name].body == body {
			return name, true
		}
	}
	return "", false
}

var _ interp.Dictionary = (*Dictionary)(nil)

// frame is an active call of a definition.
type frame struct {
	name string
	body *Block
	ip   int
}

// cont is a view of one frame of a failed run's call stack.
type cont struct {
	frames []*frame
	i      int
}

// Dump renders the frame as "name at word". The name is resolved against d
// when possible so renamed definitions show their current binding.
func (c *cont) Dump(d interp.Dictionary) string {
	f := c.frames[c.i]
	name := f.name
	if dict, ok := d.(*Dictionary); ok {
		if bound, ok := dict.nameOf(f.body); ok {
			name = bound
		}
	}
	if f.ip < len(f.body.ops) {
		return fmt.Sprintf("%s at %s", name, f.body.ops[f.ip])
	}
	return name
}

// Up returns the caller's frame, or nil at the outermost call.
func (c *cont) Up() interp.Continuation {
	if c.i == 0 {
		return nil
	}
	return &cont{frames: c.frames, i: c.i - 1}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case *big.Int:
		return x.String()
	case string:
		return `"` + x + `"`
	case []byte:
		return fmt.Sprintf("B{%X}", x)
	case *Block:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
