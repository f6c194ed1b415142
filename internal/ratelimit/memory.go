package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter implements Limiter using an in-memory token bucket per key,
// via golang.org/x/time/rate. A background goroutine evicts buckets not
// touched recently so memory stays bounded under key churn (new tenants,
// rotated API keys).
type MemoryLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	buckets  map[string]*memoryBucket
	stopOnce sync.Once
	done     chan struct{}
}

type memoryBucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

const staleThreshold = 10 * time.Minute

// NewMemoryLimiter creates a token bucket limiter.
//   - requestsPerSecond: sustained rate per key
//   - burst: maximum burst size (bucket capacity)
func NewMemoryLimiter(requestsPerSecond float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rps:     rate.Limit(requestsPerSecond),
		burst:   burst,
		buckets: make(map[string]*memoryBucket),
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Allow consumes one token from key's bucket. Returns true if a token was
// available (request should proceed), false otherwise (rate limited).
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.buckets[key]
	if !ok {
		b = &memoryBucket{limiter: rate.NewLimiter(m.rps, m.burst)}
		m.buckets[key] = b
	}
	b.lastAccess = now
	return b.limiter.Allow(), nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-staleThreshold)
	for key, b := range m.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
