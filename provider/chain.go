package provider

import (
	"errors"
	"sort"

	"github.com/broxus/fift-playground/vfs"
)

// Chain combines providers. The first provider that reports a name as
// existing answers reads for it.
type Chain []vfs.Provider

func (c Chain) Exists(name string) bool {
	for _, p := range c {
		if p.Exists(name) {
			return true
		}
	}
	return false
}

func (c Chain) Read(name string) ([]byte, error) {
	for _, p := range c {
		if p.Exists(name) {
			return p.Read(name)
		}
	}
	return nil, errors.New("file not found: " + name)
}

// Names merges the names of every listable provider.
func (c Chain) Names() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, p := range c {
		l, ok := p.(vfs.Lister)
		if !ok {
			continue
		}
		for _, n := range l.Names() {
			if _, dup := seen[n]; !dup {
				seen[n] = struct{}{}
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}

var (
	_ vfs.Provider = (*Dir)(nil)
	_ vfs.Provider = (*Map)(nil)
	_ vfs.Provider = (*HTTP)(nil)
	_ vfs.Provider = Chain(nil)
)
