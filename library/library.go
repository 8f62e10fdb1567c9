// Package library holds the standard-library sources baked into the adapter.
//
// The set is immutable: it is built once from the embedded lib/ directory and
// exposes lookups by logical file name. Host code may rely on these names
// being resolvable without an external provider:
//
//	Asm.fif Color.fif Fift.fif FiftExt.fif Lisp.fif Lists.fif Stack.fif TonUtil.fif
//
// Fift.fif, Stack.fif and Color.fif run on the minifift engine. The others
// need cells, tuples or active words and abort with an explanation when
// included; LoadDir replaces the whole set with a real Fift library.
package library

import (
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Base is the name of the runtime library preloaded when stdlib is requested.
const Base = "Fift.fif"

//go:embed lib/*.fif
var libFS embed.FS

// Set is a read-only mapping from logical file name to content.
type Set struct {
	files map[string][]byte
	names []string
}

var (
	defaultSet  *Set
	defaultOnce sync.Once
)

// Default returns the embedded standard library.
func Default() *Set {
	defaultOnce.Do(func() {
		set, err := fromFS(libFS, "lib")
		if err != nil {
			panic("library: " + err.Error())
		}
		defaultSet = set
	})
	return defaultSet
}

// LoadDir builds a Set from the *.fif files in dir, for example a checkout
// of the TON Fift library for the wasm engine.
func LoadDir(dir string) (*Set, error) {
	set, err := fromFS(os.DirFS(dir), ".")
	if err != nil {
		return nil, err
	}
	if len(set.names) == 0 {
		return nil, fmt.Errorf("library: no .fif files in %s", dir)
	}
	return set, nil
}

func fromFS(fsys fs.FS, dir string) (*Set, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	files := make(map[string][]byte)
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".fif" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		files[e.Name()] = data
	}
	return New(files), nil
}

// New builds a Set from the given files. The map is copied.
func New(files map[string][]byte) *Set {
	s := &Set{files: make(map[string][]byte, len(files))}
	for name, data := range files {
		s.files[name] = append([]byte(nil), data...)
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s
}

// Lookup returns the content stored under name. The returned slice must not
// be modified.
func (s *Set) Lookup(name string) ([]byte, bool) {
	data, ok := s.files[name]
	return data, ok
}

// Has reports whether name is part of the set.
func (s *Set) Has(name string) bool {
	_, ok := s.files[name]
	return ok
}

// Names returns the file names in lexical order.
func (s *Set) Names() []string {
	return append([]string(nil), s.names...)
}

// Digest returns the hex blake2b-256 digest of the named file.
func (s *Set) Digest(name string) (string, bool) {
	data, ok := s.files[name]
	if !ok {
		return "", false
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), true
}
