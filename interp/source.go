package interp

import (
	"bytes"
	"io"
)

// SourceBlock is a named, readable unit of source text. Its content is copied
// when the block is created, so later writes to the same file name do not
// affect it.
type SourceBlock struct {
	name string
	data []byte
	r    *bytes.Reader
}

// NewSourceBlock snapshots content under name.
func NewSourceBlock(name string, content []byte) *SourceBlock {
	data := append([]byte(nil), content...)
	return &SourceBlock{name: name, data: data, r: bytes.NewReader(data)}
}

// NewStringBlock is a convenience wrapper around NewSourceBlock.
func NewStringBlock(name, content string) *SourceBlock {
	return NewSourceBlock(name, []byte(content))
}

// Name returns the block name.
func (b *SourceBlock) Name() string { return b.name }

// Len returns the total content length in bytes.
func (b *SourceBlock) Len() int { return len(b.data) }

// Remaining returns the number of unread bytes.
func (b *SourceBlock) Remaining() int { return b.r.Len() }

// Bytes returns the full content regardless of the read position.
// The returned slice must not be modified.
func (b *SourceBlock) Bytes() []byte { return b.data }

// Read implements io.Reader.
func (b *SourceBlock) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

var _ io.Reader = (*SourceBlock)(nil)
