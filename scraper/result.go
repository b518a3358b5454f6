package scraper

import (
	"errors"
	"fmt"
)

// ErrPageCrashed marks a page handle that stopped responding mid-run.
var ErrPageCrashed = errors.New("page crashed")

// ExtractionMiss records a detail field that could not be read.
type ExtractionMiss struct {
	Field  string
	Reason string
}

func (m *ExtractionMiss) Error() string {
	return fmt.Sprintf("%s: %s", m.Field, m.Reason)
}

// Result holds either an extracted value or the miss explaining its absence.
type Result[T any] struct {
	Value T
	Miss  *ExtractionMiss
}

func (r Result[T]) Ok() bool { return r.Miss == nil }

func found[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func missing[T any](field, reason string) Result[T] {
	return Result[T]{Miss: &ExtractionMiss{Field: field, Reason: reason}}
}

// guard runs one extraction, turning a panic into a miss so the remaining
// fields are still attempted.
func guard[T any](field string, fn func() Result[T]) (r Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			r = missing[T](field, fmt.Sprintf("panic: %v", p))
		}
	}()
	return fn()
}
