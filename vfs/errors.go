package vfs

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

var (
	// ErrNotFound means no tier holds the requested name.
	ErrNotFound = errors.New("file not found")
	// ErrOutOfRange means a ranged read fell outside the file content.
	ErrOutOfRange = errors.New("offset out of range")
	// ErrExternalProvider wraps any failure raised by the host provider.
	ErrExternalProvider = errors.New("external provider failure")
)

// FileError records a failed file operation.
type FileError struct {
	Op   string
	Name string
	Err  error
	// Suggestion is a close existing name, set for ErrNotFound when one exists.
	Suggestion string
}

func (e *FileError) Error() string {
	switch {
	case errors.Is(e.Err, ErrNotFound) && e.Suggestion != "":
		return fmt.Sprintf("`%s` file not found (did you mean `%s`?)", e.Name, e.Suggestion)
	case errors.Is(e.Err, ErrNotFound):
		return fmt.Sprintf("`%s` file not found", e.Name)
	default:
		return fmt.Sprintf("%s `%s`: %v", e.Op, e.Name, e.Err)
	}
}

func (e *FileError) Unwrap() error { return e.Err }

func notFound(op, name string, candidates []string) error {
	return &FileError{Op: op, Name: name, Err: ErrNotFound, Suggestion: closestName(name, candidates)}
}

// closestName picks the best fuzzy match for name, ignoring exact matches.
func closestName(name string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	ranks := fuzzy.RankFindFold(name, candidates)
	if len(ranks) == 0 {
		ranks = fuzzy.RankFindFold(trimExt(name), candidates)
	}
	sort.Sort(ranks)
	for _, r := range ranks {
		if r.Target != name {
			return r.Target
		}
	}
	return ""
}

func trimExt(name string) string {
	for i := len(name) - 1; i > 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}
