// Package apperr defines the failure taxonomy shared by every domain package.
//
// Domain errors report their category by implementing Kinder. Callers at the
// transport boundary use KindOf to pick a status code and retry policy without
// knowing the concrete error types.
package apperr

import (
	"context"

	"github.com/go-faster/errors"
)

// Kind is a closed set of failure categories.
type Kind uint8

const (
	// Internal is any failure that does not report a more specific kind.
	Internal Kind = iota
	// NotFound means an unknown product, user or order. Not retryable.
	NotFound
	// Validation means the request itself is wrong. Not retryable.
	Validation
	// Conflict means a concurrent modification was detected. The caller may
	// retry the whole operation.
	Conflict
	// Unauthorized means missing or invalid identity.
	Unauthorized
	// Transient means a storage or network hiccup. Retry only with an
	// idempotency guard.
	Transient
)

var kindNames = [...]string{
	Internal:     "internal",
	NotFound:     "not_found",
	Validation:   "validation",
	Conflict:     "conflict",
	Unauthorized: "unauthorized",
	Transient:    "transient",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Retryable reports whether an operation failing with k may be retried as is.
func (k Kind) Retryable() bool {
	return k == Conflict || k == Transient
}

// Kinder is implemented by errors that know their category.
type Kinder interface {
	Kind() Kind
}

// KindOf returns the kind of the first error in err's chain that reports one.
// Context deadline errors are Transient.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	return Internal
}

// Error is a sentinel-friendly error carrying a fixed kind.
type Error struct {
	kind Kind
	msg  string
}

// New returns an error of the given kind. Values returned by New are meant
// to be package-level sentinels compared with errors.Is.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind implements Kinder.
func (e *Error) Kind() Kind { return e.kind }

// kindError overrides the kind reported for a wrapped error.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }
func (e *kindError) Kind() Kind    { return e.kind }

// WithKind wraps err so KindOf reports kind. A nil err stays nil.
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// AsTransient marks a storage or network failure as retryable.
func AsTransient(err error) error {
	return WithKind(err, Transient)
}
