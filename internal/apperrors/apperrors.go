// Package apperrors defines the typed error taxonomy shared across the
// ingest, engine, decision, and server layers, and maps each kind to an
// HTTP status code and error code string for the API response envelope.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport-layer mapping and metrics.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindAuth              Kind = "auth"
	KindConflict          Kind = "conflict"
	KindNotFound          Kind = "not_found"
	KindRateLimit         Kind = "rate_limit"
	KindDependency        Kind = "dependency"
	KindInvariantViolation Kind = "invariant_violation"
	KindInternal          Kind = "internal"
)

// Error is the concrete error type carrying a Kind, a client-safe message,
// and an optional wrapped cause kept out of the client response.
type Error struct {
	Kind    Kind
	Code    string // stable machine-readable code, e.g. "invalid_input"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf returns the Kind of err if it is (or wraps) an *Error, and
// KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the status code used on the wire.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindDependency:
		return http.StatusBadGateway
	case KindInvariantViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Constructors. Cause is recorded for logging but never rendered to the
// client — writeError in internal/server strips it from the response body.

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: "invalid_input", Message: fmt.Sprintf(format, args...)}
}

func Auth(format string, args ...any) *Error {
	return &Error{Kind: KindAuth, Code: "unauthorized", Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: "conflict", Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: fmt.Sprintf(format, args...)}
}

func RateLimited(format string, args ...any) *Error {
	return &Error{Kind: KindRateLimit, Code: "rate_limited", Message: fmt.Sprintf(format, args...)}
}

func Dependency(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindDependency, Code: "dependency_failed", Message: fmt.Sprintf(format, args...), Cause: cause}
}

func InvariantViolation(format string, args ...any) *Error {
	return &Error{Kind: KindInvariantViolation, Code: "invariant_violation", Message: fmt.Sprintf(format, args...)}
}

func Internal(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: fmt.Sprintf(format, args...), Cause: cause}
}
