// Package platform holds the closed error taxonomy shared by every domain
// and application package in the control plane.
package platform

import (
	"errors"
	"fmt"
)

// Kind is one of the six terminal error categories the core ever returns.
// Nothing is retried inside the core; callers decide retry policy from Kind.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindInvalidInput Kind = "invalid_input"
	KindInternal     Kind = "internal"
)

// Error is the single error type every package in the core returns.
type Error struct {
	Kind     Kind
	Resource string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound, KindConflict:
		return fmt.Sprintf("%s: %s", e.Kind, e.Resource)
	case KindInvalidInput:
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case KindInternal:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, platform.NotFound("tenant")) style checks loosely, or
// more commonly switch on KindOf(err).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// NotFound builds a NotFound error for the named resource.
func NotFound(resource string) *Error { return &Error{Kind: KindNotFound, Resource: resource} }

// Conflict builds a Conflict error for the named resource.
func Conflict(resource string) *Error { return &Error{Kind: KindConflict, Resource: resource} }

// Unauthorized builds an Unauthorized error.
func Unauthorized(reason string) *Error { return &Error{Kind: KindUnauthorized, Reason: reason} }

// Forbidden builds a Forbidden error.
func Forbidden(reason string) *Error { return &Error{Kind: KindForbidden, Reason: reason} }

// InvalidInput builds an InvalidInput error with the given reason.
func InvalidInput(reason string) *Error { return &Error{Kind: KindInvalidInput, Reason: reason} }

// Internal builds an Internal error wrapping the underlying cause.
func Internal(reason string, err error) *Error {
	return &Error{Kind: KindInternal, Reason: reason, Err: err}
}

// KindOf extracts the Kind of err, defaulting to KindInternal when err is not
// one of ours — this is the boundary where an adapter error (e.g. a raw pgx
// error that slipped through) is forced into the taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }
