// Package errors defines the structured error taxonomy shared by every
// layer of convomem. Repositories and engines return *Error values (or wrap
// them via pkg/errors) so the tool registry can translate failures into the
// protocol-level envelope without re-deriving what went wrong.
package errors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind enumerates the exhaustive set of error categories convomem surfaces.
type Kind string

const (
	Validation                 Kind = "Validation"
	NotFound                   Kind = "NotFound"
	Conflict                   Kind = "Conflict"
	StoreUnavailable           Kind = "StoreUnavailable"
	PoolExhausted              Kind = "PoolExhausted"
	PoolShutdown               Kind = "PoolShutdown"
	SchemaTooNew               Kind = "SchemaTooNew"
	ToolNotFound                Kind = "ToolNotFound"
	ToolExecution               Kind = "ToolExecution"
	Cancelled                   Kind = "Cancelled"
	Timeout                     Kind = "Timeout"
	ExternalProviderUnavailable Kind = "ExternalProviderUnavailable"
	Internal                    Kind = "Internal"
)

// FieldDetail names a single offending field in a Validation error.
type FieldDetail struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is the structured error type every layer returns. It carries enough
// context for the tool registry to build the client-visible envelope without
// re-classifying the failure.
type Error struct {
	Kind    Kind          `json:"kind"`
	Message string        `json:"message"`
	Details []FieldDetail `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/As to see through to the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// New builds a bare Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause to a new Error of the given kind, preserving the
// original error's text via github.com/pkg/errors so stack traces are kept
// for Internal-level diagnostics.
func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, cause: pkgerrors.WithMessage(cause, message)}
}

// WithDetails attaches field-level validation details and returns the
// receiver for chaining at the call site.
func (e *Error) WithDetails(details ...FieldDetail) *Error {
	e.Details = append(e.Details, details...)
	return e
}

// Validationf builds a Validation error naming a single offending field.
func Validationf(field, format string, args ...any) *Error {
	reason := fmt.Sprintf(format, args...)
	return New(Validation, reason).WithDetails(FieldDetail{Field: field, Reason: reason})
}

// NotFoundf builds a NotFound error for the given resource/id pair.
func NotFoundf(resource, id string) *Error {
	return New(NotFound, fmt.Sprintf("%s not found: %s", resource, id))
}

// KindOf extracts the Kind from err, defaulting to Internal for errors that
// did not originate from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the error's kind is worth a caller-side retry.
// Nothing in this repository calls it; the provider adapters' withRetry
// retries every error.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ExternalProviderUnavailable, Timeout, PoolExhausted:
		return true
	default:
		return false
	}
}
