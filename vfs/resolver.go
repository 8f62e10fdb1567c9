// Package vfs implements the virtual file system handed to the interpreter.
//
// A Resolver answers every file request by checking an ordered list of tiers
// and letting the first tier that holds the name answer. The default order is
// session-local writes, then a host-supplied provider, then the embedded
// standard library; contents are never merged across tiers.
package vfs

import (
	"bytes"
	"errors"
	"sort"
	"time"

	"github.com/broxus/fift-playground/interp"
)

// Resolver is the file-access capability set exposed to an engine.
type Resolver struct {
	store *Store
	tiers []Tier
	now   func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock replaces the wall clock used by NowMs.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver builds a Resolver whose first tier is store, followed by tiers
// in the given order. A nil store is replaced by a fresh one.
func NewResolver(store *Store, tiers []Tier, opts ...Option) *Resolver {
	if store == nil {
		store = NewStore()
	}
	r := &Resolver{
		store: store,
		tiers: append([]Tier{store}, tiers...),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the session-local tier.
func (r *Resolver) Store() *Store { return r.store }

// Lookup resolves name and reports which tier answered.
// The returned slice is owned by the tier and must not be modified.
func (r *Resolver) Lookup(name string) ([]byte, TierKind, error) {
	for _, t := range r.tiers {
		if !t.Exists(name) {
			continue
		}
		data, err := t.Read(name)
		if err != nil {
			return nil, t.Kind(), err
		}
		return data, t.Kind(), nil
	}
	return nil, 0, notFound("read", name, r.Names())
}

// Names returns every name known to a tier that can list its contents.
func (r *Resolver) Names() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, t := range r.tiers {
		l, ok := t.(Lister)
		if !ok {
			continue
		}
		for _, n := range l.Names() {
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// NowMs returns the current Unix time in milliseconds at whole-second
// resolution.
func (r *Resolver) NowMs() uint64 {
	return uint64(r.now().Unix()) * 1000
}

// GetEnv never exposes host environment variables.
func (r *Resolver) GetEnv(string) (string, bool) {
	return "", false
}

// FileExists reports whether any tier holds name.
func (r *Resolver) FileExists(name string) bool {
	for _, t := range r.tiers {
		if t.Exists(name) {
			return true
		}
	}
	return false
}

// WriteFile stores data in the session-local tier.
func (r *Resolver) WriteFile(name string, data []byte) error {
	r.store.Write(name, data)
	return nil
}

// ReadFile returns a copy of the full content of name.
func (r *Resolver) ReadFile(name string) ([]byte, error) {
	data, _, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(data), nil
}

// ReadFilePart returns the bytes [offset, offset+length) of name.
//
// A read starting at the end of the content fails even when length is zero.
func (r *Resolver) ReadFilePart(name string, offset, length uint64) ([]byte, error) {
	data, _, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	size := uint64(len(data))
	end := offset + length
	if offset >= size || end > size || end < offset {
		return nil, &FileError{Op: "read part", Name: name, Err: ErrOutOfRange}
	}
	return bytes.Clone(data[offset:end]), nil
}

// Include opens name as a source block holding a snapshot of its content.
func (r *Resolver) Include(name string) (*interp.SourceBlock, error) {
	data, _, err := r.Lookup(name)
	if err != nil {
		var fe *FileError
		if errors.As(err, &fe) {
			fe.Op = "include"
		}
		return nil, err
	}
	return interp.NewSourceBlock(name, data), nil
}

var _ interp.Environment = (*Resolver)(nil)
