package minifift

import (
	"fmt"
	"math/big"
)

var (
	trueValue  = big.NewInt(-1)
	falseValue = big.NewInt(0)
)

func installBuiltins(d *Dictionary) {
	d.words[":"] = &word{name: ":", active: (*Engine).define}

	// arithmetic
	d.builtin("+", binary(func(a, b *big.Int) (*big.Int, error) { return new(big.Int).Add(a, b), nil }))
	d.builtin("-", binary(func(a, b *big.Int) (*big.Int, error) { return new(big.Int).Sub(a, b), nil }))
	d.builtin("*", binary(func(a, b *big.Int) (*big.Int, error) { return new(big.Int).Mul(a, b), nil }))
	d.builtin("/", binary(func(a, b *big.Int) (*big.Int, error) {
		q, _, err := floorDivMod(a, b)
		return q, err
	}))
	d.builtin("mod", binary(func(a, b *big.Int) (*big.Int, error) {
		_, m, err := floorDivMod(a, b)
		return m, err
	}))
	d.builtin("negate", unary(func(a *big.Int) *big.Int { return new(big.Int).Neg(a) }))

	// comparison
	d.builtin("=", compare(func(c int) bool { return c == 0 }))
	d.builtin("<>", compare(func(c int) bool { return c != 0 }))
	d.builtin("<", compare(func(c int) bool { return c < 0 }))
	d.builtin(">", compare(func(c int) bool { return c > 0 }))
	d.builtin("<=", compare(func(c int) bool { return c <= 0 }))
	d.builtin(">=", compare(func(c int) bool { return c >= 0 }))
	d.builtin("0=", func(e *Engine) error {
		a, err := e.popInt()
		if err != nil {
			return err
		}
		e.pushBool(a.Sign() == 0)
		return nil
	})

	// logic
	d.builtin("and", binary(func(a, b *big.Int) (*big.Int, error) { return new(big.Int).And(a, b), nil }))
	d.builtin("or", binary(func(a, b *big.Int) (*big.Int, error) { return new(big.Int).Or(a, b), nil }))
	d.builtin("not", unary(func(a *big.Int) *big.Int { return new(big.Int).Not(a) }))
	d.builtin("true", func(e *Engine) error { e.pushBool(true); return nil })
	d.builtin("false", func(e *Engine) error { e.pushBool(false); return nil })

	// stack
	d.builtin("dup", func(e *Engine) error {
		v, err := e.peek(0)
		if err != nil {
			return err
		}
		e.push(v)
		return nil
	})
	d.builtin("drop", func(e *Engine) error {
		_, err := e.pop()
		return err
	})
	d.builtin("swap", func(e *Engine) error { return e.roll(1) })
	d.builtin("over", func(e *Engine) error { return e.pick(1) })
	d.builtin("rot", func(e *Engine) error { return e.roll(2) })
	d.builtin("nip", func(e *Engine) error {
		if err := e.roll(1); err != nil {
			return err
		}
		_, err := e.pop()
		return err
	})
	d.builtin("2dup", func(e *Engine) error {
		if err := e.pick(1); err != nil {
			return err
		}
		return e.pick(1)
	})
	d.builtin("2drop", func(e *Engine) error {
		if err := e.need(2); err != nil {
			return err
		}
		e.stack = e.stack[:len(e.stack)-2]
		return nil
	})
	d.builtin("depth", func(e *Engine) error {
		e.push(big.NewInt(int64(len(e.stack))))
		return nil
	})
	d.builtin("pick", func(e *Engine) error {
		n, err := e.popIndex()
		if err != nil {
			return err
		}
		return e.pick(n)
	})
	d.builtin("roll", func(e *Engine) error {
		n, err := e.popIndex()
		if err != nil {
			return err
		}
		return e.roll(n)
	})

	// output
	d.builtin(".", func(e *Engine) error {
		a, err := e.popInt()
		if err != nil {
			return err
		}
		return e.print(a.String() + " ")
	})
	d.builtin("type", func(e *Engine) error {
		v, err := e.pop()
		if err != nil {
			return err
		}
		switch x := v.(type) {
		case string:
			return e.print(x)
		case []byte:
			return e.printBytes(x)
		}
		return typeError("string", v)
	})
	d.builtin("emit", func(e *Engine) error {
		a, err := e.popInt()
		if err != nil {
			return err
		}
		if !a.IsInt64() {
			return fmt.Errorf("%w: character code out of range", ErrTypeCheck)
		}
		return e.print(string(rune(a.Int64())))
	})
	d.builtin("cr", func(e *Engine) error { return e.print("\n") })
	d.builtin("space", func(e *Engine) error { return e.print(" ") })
	d.builtin(".s", func(e *Engine) error { return e.diagnostic(e.dumpStack()) })
	d.builtin("warn", func(e *Engine) error {
		s, err := e.popString()
		if err != nil {
			return err
		}
		return e.diagnostic(s)
	})

	// control
	d.builtin("exec", func(e *Engine) error {
		b, err := e.popBlock()
		if err != nil {
			return err
		}
		return e.exec(b, nil)
	})
	d.builtin("if", conditional(true))
	d.builtin("ifnot", conditional(false))
	d.builtin("cond", func(e *Engine) error {
		otherwise, err := e.popBlock()
		if err != nil {
			return err
		}
		then, err := e.popBlock()
		if err != nil {
			return err
		}
		flag, err := e.popInt()
		if err != nil {
			return err
		}
		if flag.Sign() != 0 {
			return e.exec(then, nil)
		}
		return e.exec(otherwise, nil)
	})
	// Each loop iteration is charged a step so empty bodies stay bounded.
	d.builtin("times", func(e *Engine) error {
		n, err := e.popInt()
		if err != nil {
			return err
		}
		b, err := e.popBlock()
		if err != nil {
			return err
		}
		if !n.IsInt64() {
			return fmt.Errorf("%w: repeat count out of range", ErrTypeCheck)
		}
		for i := int64(0); i < n.Int64(); i++ {
			if err := e.step(); err != nil {
				return err
			}
			if err := e.exec(b, nil); err != nil {
				return err
			}
		}
		return nil
	})
	d.builtin("until", func(e *Engine) error {
		b, err := e.popBlock()
		if err != nil {
			return err
		}
		for {
			if err := e.step(); err != nil {
				return err
			}
			if err := e.exec(b, nil); err != nil {
				return err
			}
			flag, err := e.popInt()
			if err != nil {
				return err
			}
			if flag.Sign() != 0 {
				return nil
			}
		}
	})
	d.builtin("bye", func(e *Engine) error { return exitSignal{ok: true} })
	d.builtin("halt", func(e *Engine) error {
		n, err := e.popInt()
		if err != nil {
			return err
		}
		return exitSignal{ok: n.Sign() == 0}
	})
	d.builtin("abort", func(e *Engine) error {
		msg, err := e.popString()
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrAborted, msg)
	})

	// strings
	d.builtin("$+", func(e *Engine) error {
		b, err := e.popString()
		if err != nil {
			return err
		}
		a, err := e.popString()
		if err != nil {
			return err
		}
		e.push(a + b)
		return nil
	})
	d.builtin("$len", func(e *Engine) error {
		s, err := e.popString()
		if err != nil {
			return err
		}
		e.push(big.NewInt(int64(len(s))))
		return nil
	})
	d.builtin("(.)", func(e *Engine) error {
		a, err := e.popInt()
		if err != nil {
			return err
		}
		e.push(a.String())
		return nil
	})
	d.builtin("$>B", func(e *Engine) error {
		s, err := e.popString()
		if err != nil {
			return err
		}
		e.push([]byte(s))
		return nil
	})
	d.builtin("B>$", func(e *Engine) error {
		b, err := e.popBytes()
		if err != nil {
			return err
		}
		e.push(string(b))
		return nil
	})
	d.builtin("Blen", func(e *Engine) error {
		b, err := e.popBytes()
		if err != nil {
			return err
		}
		e.push(big.NewInt(int64(len(b))))
		return nil
	})

	// files
	d.builtin("include", func(e *Engine) error {
		name, err := e.popString()
		if err != nil {
			return err
		}
		return e.include(name)
	})
	d.builtin("file-exists?", func(e *Engine) error {
		name, err := e.popString()
		if err != nil {
			return err
		}
		e.pushBool(e.env.FileExists(name))
		return nil
	})
	d.builtin("file>B", func(e *Engine) error {
		name, err := e.popString()
		if err != nil {
			return err
		}
		data, err := e.env.ReadFile(name)
		if err != nil {
			return err
		}
		e.push(data)
		return nil
	})
	d.builtin("filepart>B", func(e *Engine) error {
		length, err := e.popUint()
		if err != nil {
			return err
		}
		offset, err := e.popUint()
		if err != nil {
			return err
		}
		name, err := e.popString()
		if err != nil {
			return err
		}
		data, err := e.env.ReadFilePart(name, offset, length)
		if err != nil {
			return err
		}
		e.push(data)
		return nil
	})
	d.builtin("B>file", func(e *Engine) error {
		name, err := e.popString()
		if err != nil {
			return err
		}
		data, err := e.popBytes()
		if err != nil {
			return err
		}
		return e.env.WriteFile(name, data)
	})

	// environment
	d.builtin("now", func(e *Engine) error {
		e.push(new(big.Int).SetUint64(e.env.NowMs() / 1000))
		return nil
	})
	d.builtin("getenv?", func(e *Engine) error {
		name, err := e.popString()
		if err != nil {
			return err
		}
		if v, ok := e.env.GetEnv(name); ok {
			e.push(v)
			e.pushBool(true)
			return nil
		}
		e.pushBool(false)
		return nil
	})
}

func binary(fn func(a, b *big.Int) (*big.Int, error)) func(*Engine) error {
	return func(e *Engine) error {
		b, err := e.popInt()
		if err != nil {
			return err
		}
		a, err := e.popInt()
		if err != nil {
			return err
		}
		r, err := fn(a, b)
		if err != nil {
			return err
		}
		e.push(r)
		return nil
	}
}

func unary(fn func(a *big.Int) *big.Int) func(*Engine) error {
	return func(e *Engine) error {
		a, err := e.popInt()
		if err != nil {
			return err
		}
		e.push(fn(a))
		return nil
	}
}

func compare(fn func(c int) bool) func(*Engine) error {
	return func(e *Engine) error {
		b, err := e.popInt()
		if err != nil {
			return err
		}
		a, err := e.popInt()
		if err != nil {
			return err
		}
		e.pushBool(fn(a.Cmp(b)))
		return nil
	}
}

// conditional implements "flag { ... } if" and its negation.
func conditional(when bool) func(*Engine) error {
	return func(e *Engine) error {
		b, err := e.popBlock()
		if err != nil {
			return err
		}
		flag, err := e.popInt()
		if err != nil {
			return err
		}
		if (flag.Sign() != 0) == when {
			return e.exec(b, nil)
		}
		return nil
	}
}

// floorDivMod divides rounding toward negative infinity, so the remainder
// takes the sign of the divisor.
func floorDivMod(a, b *big.Int) (*big.Int, *big.Int, error) {
	if b.Sign() == 0 {
		return nil, nil, ErrDivByZero
	}
	q, m := new(big.Int).QuoRem(a, b, new(big.Int))
	if m.Sign() != 0 && m.Sign() != b.Sign() {
		q.Sub(q, big.NewInt(1))
		m.Add(m, b)
	}
	return q, m, nil
}
