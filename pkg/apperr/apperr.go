// Package apperr defines the application error taxonomy shared by the
// handlers, services, and store layers. Every user-visible failure maps
// to exactly one of these sentinel kinds, which the HTTP layer translates
// to a status code and machine-readable error code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindInvalidState    Kind = "invalid_state_transition"
	KindInternal        Kind = "internal_error"
)

// Error carries a kind, a user-safe message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation creates a 400-class error for malformed or missing input.
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// Unauthenticated creates a 401-class error.
func Unauthenticated(message string) *Error {
	return New(KindUnauthenticated, message)
}

// Forbidden creates a 403-class error.
func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, fmt.Sprintf(format, args...))
}

// NotFound creates a 404-class error.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// Conflict creates a 409-class error for uniqueness violations.
func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

// InvalidState creates a 409-class error for disallowed workflow transitions.
func InvalidState(format string, args ...interface{}) *Error {
	return New(KindInvalidState, fmt.Sprintf(format, args...))
}

// Internal wraps an unexpected failure. The message is user-safe; the
// wrapped cause is for logs only and never serialized into responses.
func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// KindOf extracts the kind from an error chain. Unclassified errors
// report KindInternal so unexpected failures never leak details.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf returns the user-safe message from an error chain.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
