package executor

import (
	"iter"

	"github.com/broxus/fift-playground/interp"
)

// Backtrace renders the chain starting at c, innermost first, following Up
// until the root. The walk advances a shared cursor, so the sequence yields
// its frames only once.
func Backtrace(c interp.Continuation, d interp.Dictionary) iter.Seq[string] {
	return func(yield func(string) bool) {
		for c != nil {
			cur := c
			c = cur.Up()
			if !yield(cur.Dump(d)) {
				return
			}
		}
	}
}
