package minifift

import (
	"fmt"
	"math/big"
)

func (e *Engine) push(v any) {
	e.stack = append(e.stack, v)
}

func (e *Engine) pushBool(b bool) {
	if b {
		e.push(trueValue)
		return
	}
	e.push(falseValue)
}

func (e *Engine) need(n int) error {
	if len(e.stack) < n {
		return ErrStackUnderflow
	}
	return nil
}

func (e *Engine) pop() (any, error) {
	if err := e.need(1); err != nil {
		return nil, err
	}
	v := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return v, nil
}

// peek returns the n-th value from the top without removing it.
func (e *Engine) peek(n int) (any, error) {
	if err := e.need(n + 1); err != nil {
		return nil, err
	}
	return e.stack[len(e.stack)-1-n], nil
}

// pick copies the n-th value from the top onto the top.
func (e *Engine) pick(n int) error {
	v, err := e.peek(n)
	if err != nil {
		return err
	}
	e.push(v)
	return nil
}

// roll moves the n-th value from the top onto the top.
func (e *Engine) roll(n int) error {
	if err := e.need(n + 1); err != nil {
		return err
	}
	i := len(e.stack) - 1 - n
	v := e.stack[i]
	copy(e.stack[i:], e.stack[i+1:])
	e.stack[len(e.stack)-1] = v
	return nil
}

func (e *Engine) popInt() (*big.Int, error) {
	v, err := e.pop()
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, typeError("integer", v)
	}
	return n, nil
}

// popIndex pops a small non-negative integer.
func (e *Engine) popIndex() (int, error) {
	n, err := e.popInt()
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || !n.IsInt64() || n.Int64() > int64(len(e.stack)) {
		return 0, ErrStackUnderflow
	}
	return int(n.Int64()), nil
}

func (e *Engine) popUint() (uint64, error) {
	n, err := e.popInt()
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("%w: expected a non-negative integer", ErrTypeCheck)
	}
	return n.Uint64(), nil
}

func (e *Engine) popString() (string, error) {
	v, err := e.pop()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", typeError("string", v)
	}
	return s, nil
}

func (e *Engine) popBytes() ([]byte, error) {
	v, err := e.pop()
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, typeError("bytes", v)
	}
	return b, nil
}

func (e *Engine) popBlock() (*Block, error) {
	v, err := e.pop()
	if err != nil {
		return nil, err
	}
	b, ok := v.(*Block)
	if !ok {
		return nil, typeError("block", v)
	}
	return b, nil
}

func typeError(want string, got any) error {
	return fmt.Errorf("%w: expected %s, got %s", ErrTypeCheck, want, formatValue(got))
}
