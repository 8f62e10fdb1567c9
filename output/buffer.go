// Package output captures what an interpreter writes during one run.
package output

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
)

// ErrInvalidEncoding is returned when captured output is not valid UTF-8.
var ErrInvalidEncoding = errors.New("output is not valid UTF-8")

// Range marks a byte span [Start, End) of the buffer written through the
// diagnostic path.
type Range struct {
	Start int
	End   int
}

// MarshalJSON encodes the range as a two-element array.
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Start, r.End})
}

// UnmarshalJSON decodes a two-element array.
func (r *Range) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}

// MarshalCBOR encodes the range as a two-element array.
func (r Range) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal([2]int{r.Start, r.End})
}

// UnmarshalCBOR decodes a two-element array.
func (r *Range) UnmarshalCBOR(data []byte) error {
	var pair [2]int
	if err := cbor.Unmarshal(data, &pair); err != nil {
		return err
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}

// Buffer is a shared byte accumulator for the primary and diagnostic paths.
// Both paths append to the same bytes so their relative order is kept; the
// diagnostic spans are tracked in a range list.
type Buffer struct {
	buf    []byte
	ranges []Range
	mu     sync.Mutex
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Write appends raw bytes from the primary path.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteDiagnostic appends text from the diagnostic path and records its span.
// Empty writes record nothing.
func (b *Buffer) WriteDiagnostic(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	start := len(b.buf)
	b.buf = append(b.buf, s...)
	b.ranges = append(b.ranges, Range{Start: start, End: len(b.buf)})
	return len(s), nil
}

// Len returns the current number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Ranges returns a copy of the diagnostic range list.
func (b *Buffer) Ranges() []Range {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Range(nil), b.ranges...)
}

// Take drains the buffer, returning its bytes and ranges and leaving it empty.
func (b *Buffer) Take() ([]byte, []Range) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ranges := b.buf, b.ranges
	b.buf, b.ranges = nil, nil
	return data, ranges
}

// TakeString drains the buffer and decodes it as UTF-8 text.
// The buffer is empty afterwards even when decoding fails.
func (b *Buffer) TakeString() (string, []Range, error) {
	data, ranges := b.Take()
	if !utf8.Valid(data) {
		return "", nil, ErrInvalidEncoding
	}
	return string(data), ranges, nil
}

// DiagnosticSink is the diagnostic half of an interpreter output.
type DiagnosticSink interface {
	WriteDiagnostic(s string) (int, error)
}

// Diagnostics adapts the diagnostic path of s to io.Writer.
func Diagnostics(s DiagnosticSink) io.Writer {
	return diagnosticWriter{s: s}
}

type diagnosticWriter struct {
	s DiagnosticSink
}

func (w diagnosticWriter) Write(p []byte) (int, error) {
	return w.s.WriteDiagnostic(string(p))
}

// Split separates interleaved text into its primary and diagnostic parts.
// Ranges outside text are clamped.
func Split(text string, ranges []Range) (primary, diagnostic string) {
	var p, d []byte
	pos := 0
	for _, r := range ranges {
		start, end := clamp(r.Start, len(text)), clamp(r.End, len(text))
		if start < pos || end < start {
			continue
		}
		p = append(p, text[pos:start]...)
		d = append(d, text[start:end]...)
		pos = end
	}
	p = append(p, text[pos:]...)
	return string(p), string(d)
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
