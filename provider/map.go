package provider

import (
	"errors"
	"sort"
	"sync"
)

// Map is an in-memory provider. It is safe for concurrent use.
type Map struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewMap returns a Map holding copies of files.
func NewMap(files map[string][]byte) *Map {
	m := &Map{data: make(map[string][]byte, len(files))}
	for name, content := range files {
		m.data[name] = append([]byte(nil), content...)
	}
	return m
}

// NewStringMap is NewMap for text files.
func NewStringMap(files map[string]string) *Map {
	m := &Map{data: make(map[string][]byte, len(files))}
	for name, content := range files {
		m.data[name] = []byte(content)
	}
	return m
}

func (m *Map) Exists(name string) bool {
	m.mu.RLock()
	_, ok := m.data[name]
	m.mu.RUnlock()
	return ok
}

func (m *Map) Read(name string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.data[name]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.New("file not found: " + name)
	}
	return append([]byte(nil), data...), nil
}

// Set stores a copy of content under name.
func (m *Map) Set(name string, content []byte) {
	owned := append([]byte(nil), content...)
	m.mu.Lock()
	m.data[name] = owned
	m.mu.Unlock()
}

// Delete removes name.
func (m *Map) Delete(name string) {
	m.mu.Lock()
	delete(m.data, name)
	m.mu.Unlock()
}

// Names returns the stored names in lexical order.
func (m *Map) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
