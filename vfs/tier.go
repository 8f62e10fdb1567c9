package vfs

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/broxus/fift-playground/library"
)

// TierKind identifies which backing store answered a lookup.
type TierKind int

const (
	// TierLocal holds files written during the session.
	TierLocal TierKind = iota
	// TierExternal is backed by a host-supplied provider.
	TierExternal
	// TierEmbedded is the built-in standard library.
	TierEmbedded
)

func (k TierKind) String() string {
	switch k {
	case TierLocal:
		return "session-local"
	case TierExternal:
		return "external"
	case TierEmbedded:
		return "embedded"
	default:
		return fmt.Sprintf("tier(%d)", int(k))
	}
}

// Tier is one backing store consulted by the Resolver.
type Tier interface {
	Kind() TierKind
	Exists(name string) bool
	// Read returns the full content, or an error wrapping ErrNotFound.
	Read(name string) ([]byte, error)
}

// Lister is implemented by tiers that can enumerate their names.
type Lister interface {
	Names() []string
}

// Provider is the host-supplied file source behind the external tier.
type Provider interface {
	Exists(name string) bool
	Read(name string) ([]byte, error)
}

// ProviderFuncs adapts a pair of functions to Provider.
type ProviderFuncs struct {
	ExistsFunc func(name string) bool
	ReadFunc   func(name string) ([]byte, error)
}

func (p ProviderFuncs) Exists(name string) bool {
	if p.ExistsFunc == nil {
		return false
	}
	return p.ExistsFunc(name)
}

func (p ProviderFuncs) Read(name string) ([]byte, error) {
	if p.ReadFunc == nil {
		return nil, ErrNotFound
	}
	return p.ReadFunc(name)
}

// Store is the session-local tier. Writes always succeed and replace any
// earlier content under the same name.
type Store struct {
	files map[string][]byte
	mu    sync.RWMutex
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{files: make(map[string][]byte)}
}

func (s *Store) Kind() TierKind { return TierLocal }

func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[name]
	return ok
}

func (s *Store) Read(name string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.files[name]
	s.mu.RUnlock()
	if !ok {
		return nil, &FileError{Op: "read", Name: name, Err: ErrNotFound}
	}
	return data, nil
}

// Write stores a copy of data under name.
func (s *Store) Write(name string, data []byte) {
	owned := bytes.Clone(data)
	if owned == nil {
		owned = []byte{}
	}
	s.mu.Lock()
	s.files[name] = owned
	s.mu.Unlock()
}

// Remove deletes name and reports whether it existed.
func (s *Store) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[name]
	delete(s.files, name)
	return ok
}

// Clear deletes every file.
func (s *Store) Clear() {
	s.mu.Lock()
	s.files = make(map[string][]byte)
	s.mu.Unlock()
}

// Names returns the stored names in lexical order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExternalTier wraps a Provider so that its failures, including panics,
// surface as ErrExternalProvider instead of escaping into the engine.
type ExternalTier struct {
	p Provider
	// OnFailure, when set, observes every wrapped provider failure.
	OnFailure func(op, name string, err error)
}

// NewExternalTier returns a tier backed by p.
func NewExternalTier(p Provider) *ExternalTier {
	return &ExternalTier{p: p}
}

func (t *ExternalTier) Kind() TierKind { return TierExternal }

func (t *ExternalTier) Exists(name string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.fail("exists", name, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()
	return t.p.Exists(name)
}

func (t *ExternalTier) Read(name string) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, t.wrap("read", name, fmt.Errorf("panic: %v", r))
		}
	}()
	data, err = t.p.Read(name)
	if err != nil {
		return nil, t.wrap("read", name, err)
	}
	return data, nil
}

// Names forwards to the provider when it can list its files.
func (t *ExternalTier) Names() []string {
	l, ok := t.p.(Lister)
	if !ok {
		return nil
	}
	defer func() { recover() }()
	return l.Names()
}

func (t *ExternalTier) wrap(op, name string, err error) error {
	t.fail(op, name, err)
	return &FileError{Op: op, Name: name, Err: fmt.Errorf("%w: %v", ErrExternalProvider, err)}
}

func (t *ExternalTier) fail(op, name string, err error) {
	if t.OnFailure != nil {
		t.OnFailure(op, name, err)
	}
}

// LibraryTier serves the embedded standard library.
type LibraryTier struct {
	set *library.Set
}

// NewLibraryTier returns a tier backed by set, or by the default library when
// set is nil.
func NewLibraryTier(set *library.Set) *LibraryTier {
	if set == nil {
		set = library.Default()
	}
	return &LibraryTier{set: set}
}

func (t *LibraryTier) Kind() TierKind { return TierEmbedded }

func (t *LibraryTier) Exists(name string) bool { return t.set.Has(name) }

func (t *LibraryTier) Read(name string) ([]byte, error) {
	data, ok := t.set.Lookup(name)
	if !ok {
		return nil, &FileError{Op: "read", Name: name, Err: ErrNotFound}
	}
	return data, nil
}

func (t *LibraryTier) Names() []string { return t.set.Names() }
