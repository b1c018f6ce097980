// Package apperr classifies errors crossing subsystem boundaries so the CLI
// and callers can react by kind without parsing messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the coarse classification of a failure.
type Kind int

const (
	// KindUnknown is the zero value; errors without a kind map here.
	KindUnknown Kind = iota
	// KindInvalidInput covers bad hex, out-of-range codepoints, malformed
	// records, and unnormalized points offered where a unit vector is required.
	KindInvalidInput
	// KindMissingResource covers absent UCD files and unseeded atoms.
	KindMissingResource
	// KindConflict covers duplicates rejected under strict dedup.
	KindConflict
	// KindStore covers failures surfaced by the bulk-copy protocol or SQL
	// execution; the raw store message is preserved in the chain.
	KindStore
	// KindCancelled reports cooperative cancellation observed at a checkpoint.
	KindCancelled
	// KindFatal marks a violated internal invariant (NaN through SLERP and
	// the like). Callers should treat it as a bug, not a retryable condition.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindMissingResource:
		return "missing resource"
	case KindConflict:
		return "conflict"
	case KindStore:
		return "store error"
	case KindCancelled:
		return "cancelled"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error carries a kind, a message, and an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind via sentinel errors created with New.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Msg == "" && other.Kind == e.Kind
	}
	return false
}

// New builds an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf walks the chain and returns the first classified kind, or
// KindUnknown when no *Error is present. context.Canceled style causes are
// the caller's concern; only explicit classification counts.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ExitCode maps a kind to a CLI exit status. Success is 0 and is not
// represented here.
func ExitCode(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return 2
	case KindMissingResource:
		return 3
	case KindConflict:
		return 4
	case KindStore:
		return 5
	case KindCancelled:
		return 6
	case KindFatal:
		return 7
	default:
		return 1
	}
}
