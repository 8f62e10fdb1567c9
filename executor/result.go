package executor

import (
	"time"
	"unicode/utf8"

	"github.com/broxus/fift-playground/interp"
	"github.com/broxus/fift-playground/output"
)

// Result is the outcome of one run.
//
// On success ExitCode is set; on failure Stderr holds the interpreter's error
// text and ErrorPosition and Backtrace are filled when the engine exposes
// them. Stdout always holds the captured output; the spans in StderrRanges
// were written through the diagnostic path.
type Result struct {
	Stdout        string         `json:"stdout"`
	StderrRanges  []output.Range `json:"stderrRanges,omitempty"`
	Success       bool           `json:"success"`
	ExitCode      *int           `json:"exitCode,omitempty"`
	Stderr        string         `json:"stderr,omitempty"`
	ErrorPosition *ErrorPosition `json:"errorPosition,omitempty"`
	Backtrace     []string       `json:"backtrace,omitempty"`

	Duration time.Duration `json:"-" cbor:"-"`
}

// Split separates Stdout into its primary and diagnostic parts.
func (r *Result) Split() (stdout, diagnostic string) {
	return output.Split(r.Stdout, r.StderrRanges)
}

// ErrorPosition locates the failing word. WordStart and WordEnd count
// characters, not bytes, from the start of Line.
type ErrorPosition struct {
	Offset     int    `json:"offset"`
	BlockName  string `json:"blockName"`
	Line       string `json:"line"`
	LineNumber int    `json:"lineNumber"`
	WordStart  int    `json:"wordStart"`
	WordEnd    int    `json:"wordEnd"`
}

func newErrorPosition(p interp.Position) *ErrorPosition {
	return &ErrorPosition{
		Offset:     p.Offset,
		BlockName:  p.BlockName,
		Line:       p.Line,
		LineNumber: p.LineNumber,
		WordStart:  charOffset(p.Line, p.WordStart),
		WordEnd:    charOffset(p.Line, p.WordEnd),
	}
}

// charOffset converts a byte offset within line to a character count.
// Offsets past the end of line are clamped.
func charOffset(line string, byteOffset int) int {
	if byteOffset <= 0 {
		return 0
	}
	if byteOffset > len(line) {
		byteOffset = len(line)
	}
	return utf8.RuneCountInString(line[:byteOffset])
}
