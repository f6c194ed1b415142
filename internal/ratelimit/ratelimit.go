// Package ratelimit provides per-key rate limiting with interchangeable
// backends: an in-memory token bucket for single-instance deployments and
// a Redis sliding window for multi-instance deployments.
package ratelimit

import "context"

// Limiter checks whether a request identified by key may proceed.
//
// The teacher repo this was adapted from defines ratelimit.Limiter two
// incompatible ways: a concrete Redis-backed struct in one file, and call
// sites elsewhere that declare variables of type ratelimit.Limiter and
// assign *MemoryLimiter or NoopLimiter to them as if it were an interface.
// No such interface type exists there. riskcast resolves this by making
// Limiter a real interface that every backend satisfies.
type Limiter interface {
	// Allow reports whether the request for key may proceed, consuming one
	// unit of quota if so.
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// NoopLimiter allows every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

func (NoopLimiter) Allow(_ context.Context, _ string) (bool, error) { return true, nil }
func (NoopLimiter) Close() error                                    { return nil }
