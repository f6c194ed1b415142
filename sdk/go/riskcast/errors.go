// Package riskcast provides a Go client for the RiskCast risk-decision API.
package riskcast

import "fmt"

// Error represents an error response from the RiskCast API: the HTTP status
// code plus the server's error code and message (internal/apperrors'
// {"error":{"code":...,"message":...}} envelope).
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("riskcast: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	e, ok := err.(*Error)
	return ok && e.StatusCode == 404
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	e, ok := err.(*Error)
	return ok && e.StatusCode == 401
}

// IsForbidden returns true if the error is a 403.
func IsForbidden(err error) bool {
	e, ok := err.(*Error)
	return ok && e.StatusCode == 403
}

// IsRateLimited returns true if the error is a 429 — either the ordinary
// rate limiter or the brute-force lockout on /auth/token.
func IsRateLimited(err error) bool {
	e, ok := err.(*Error)
	return ok && e.StatusCode == 429
}

// IsConflict returns true if the error is a 409 — an idempotent-replay
// signal, or an outcome already recorded for a decision_id.
func IsConflict(err error) bool {
	e, ok := err.(*Error)
	return ok && e.StatusCode == 409
}
