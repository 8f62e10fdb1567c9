package minifift

import (
	"bytes"
	"errors"
	"strings"

	"github.com/broxus/fift-playground/interp"
)

var errUnterminatedString = errors.New("unterminated string literal")

// token is one lexeme of the current line. start and end are byte offsets
// within the line; for string literals they include the quotes.
type token struct {
	text  string
	str   bool
	start int
	end   int
}

// source is a line-oriented cursor over one source block.
type source struct {
	name string
	data []byte

	next      int // offset of the next unread line
	line      string
	lineStart int
	lineNo    int
	col       int
	started   bool
}

func newSource(b *interp.SourceBlock) *source {
	return &source{name: b.Name(), data: b.Bytes()}
}

// advance moves to the next line. It reports false at end of input.
func (s *source) advance() bool {
	if s.next >= len(s.data) {
		return false
	}
	rest := s.data[s.next:]
	end := len(rest)
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		end = i
	}
	s.lineStart = s.next
	s.line = strings.TrimSuffix(string(rest[:end]), "\r")
	s.next += end + 1
	s.lineNo++
	s.col = 0
	s.started = true
	return true
}

// token returns the next lexeme, crossing line boundaries. It reports false
// once the block is exhausted. On a malformed literal the returned token
// still carries its span so the caller can record the position.
func (s *source) token() (token, bool, error) {
	for {
		if s.started {
			line := s.line
			i := s.col
			for i < len(line) && isSpace(line[i]) {
				i++
			}
			if i < len(line) && !strings.HasPrefix(line[i:], "//") {
				start := i
				if line[i] == '"' {
					closing := strings.IndexByte(line[i+1:], '"')
					if closing < 0 {
						s.col = len(line)
						return token{text: line[start:], start: start, end: len(line)}, false, errUnterminatedString
					}
					stop := i + 1 + closing + 1
					s.col = stop
					return token{text: line[i+1 : stop-1], str: true, start: start, end: stop}, true, nil
				}
				for i < len(line) && !isSpace(line[i]) {
					i++
				}
				s.col = i
				return token{text: line[start:i], start: start, end: i}, true, nil
			}
			s.col = len(line)
		}
		if !s.advance() {
			return token{}, false, nil
		}
	}
}

// position describes tok as read from the current line.
func (s *source) position(tok token) interp.Position {
	return interp.Position{
		Offset:     s.lineStart + tok.end,
		BlockName:  s.name,
		Line:       s.line,
		LineNumber: s.lineNo,
		WordStart:  tok.start,
		WordEnd:    tok.end,
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v'
}
