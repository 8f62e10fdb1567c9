package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/broxus/fift-playground/interp"
	"github.com/broxus/fift-playground/vfs"
)

var ErrSessionClosed = errors.New("session closed")

// Session runs source repeatedly against one file store, so files written by
// one run are visible to the next. Runs are serialized.
type Session struct {
	exec  *Executor
	store *vfs.Store
	words []string

	// carry keeps the dictionary between runs.
	carry  bool
	dict   interp.Dictionary
	stdlib bool

	mu     sync.Mutex
	closed bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithFiles seeds the session store.
func WithFiles(files map[string][]byte) SessionOption {
	return func(s *Session) {
		for name, data := range files {
			s.store.Write(name, data)
		}
	}
}

// WithDefinitions makes words defined by one run visible to the next. The
// stdlib is loaded once; later runs inherit its words with the rest of the
// dictionary. Engines that cannot inherit a dictionary start fresh each run.
func WithDefinitions() SessionOption {
	return func(s *Session) {
		s.carry = true
	}
}

// NewSession creates a Session backed by a fresh store.
func (e *Executor) NewSession(opts ...SessionOption) *Session {
	s := &Session{exec: e, store: vfs.NewStore()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes source. Interpreter state other than files does not carry
// over between runs unless the session was created WithDefinitions.
func (s *Session) Run(ctx context.Context, source string, withStdlib bool) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	var prev interp.Dictionary
	loadStdlib := withStdlib
	if s.carry && s.dict != nil {
		prev = s.dict
		loadStdlib = withStdlib && !s.stdlib
	}

	res, state, err := s.exec.run(ctx, s.store, source, loadStdlib, prev)
	if err != nil {
		return nil, err
	}
	s.words = state.dict.Words()
	if s.carry && state.inheritable {
		s.dict = state.dict
		s.stdlib = s.stdlib || loadStdlib
	}
	return res, nil
}

// Words returns the dictionary left by the last run.
func (s *Session) Words() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.words...)
}

func (s *Session) WriteFile(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.store.Write(name, data)
	return nil
}

func (s *Session) ReadFile(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.store.Read(name)
}

// Files lists the session-local file names.
func (s *Session) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.store.Names()
}

// Remove deletes a session-local file and reports whether it existed.
func (s *Session) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.store.Remove(name)
}

// Clear deletes all session-local files.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.store.Clear()
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.store.Clear()
	s.words = nil
	s.dict = nil
	return nil
}
