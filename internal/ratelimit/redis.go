// Redis-backed sliding window rate limiting, for deployments running more
// than one riskcast instance where an in-memory bucket per instance would
// undercount.
//
// Each rate limit uses a Redis sorted set keyed by the caller's key.
// Entries are scored by timestamp. On each Allow call we atomically:
//  1. Remove entries outside the current window
//  2. Count remaining entries
//  3. If under limit, add the new request; otherwise reject
//
// All three steps happen in one Lua script for atomicity.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// slidingWindowScript implements the algorithm described above.
// KEYS[1] = sorted set key
// ARGV[1] = window start (oldest allowed timestamp, microseconds)
// ARGV[2] = now (microseconds)
// ARGV[3] = limit
// ARGV[4] = unique member ID
// ARGV[5] = TTL in seconds for the key (window size + buffer)
//
// Returns {allowed (0 or 1), current_count}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, ttl)
    return {1, count + 1}
else
    redis.call('EXPIRE', key, ttl)
    return {0, count}
end
`)

// RedisLimiter is a sliding-window Limiter shared across instances.
type RedisLimiter struct {
	client     *redis.Client
	logger     zerolog.Logger
	prefix     string
	limit      int
	window     time.Duration
	failClosed bool // deny on Redis errors instead of allowing
	counter    atomic.Uint64
}

// NewRedisLimiter creates a sliding-window Limiter. keyPrefix namespaces
// the Redis keys (e.g. "ingest", "reconcile") so different endpoints don't
// share quota.
func NewRedisLimiter(client *redis.Client, logger zerolog.Logger, keyPrefix string, limit int, window time.Duration, failClosed bool) *RedisLimiter {
	return &RedisLimiter{client: client, logger: logger, prefix: keyPrefix, limit: limit, window: window, failClosed: failClosed}
}

// Allow reports whether key may proceed under the sliding window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	nowMicro := now.UnixMicro()
	windowStart := now.Add(-l.window).UnixMicro()
	ttlSeconds := int(l.window.Seconds()) + 10
	seq := l.counter.Add(1)
	member := fmt.Sprintf("%d:%d", nowMicro, seq)

	redisKey := fmt.Sprintf("riskcast:rl:%s:%s", l.prefix, key)

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{redisKey},
		windowStart, nowMicro, l.limit, member, ttlSeconds,
	).Int64Slice()

	if err != nil {
		if l.failClosed {
			l.logger.Error().Err(err).Str("key", redisKey).Msg("ratelimit: redis error, denying request (fail-closed)")
			return false, nil
		}
		l.logger.Warn().Err(err).Str("key", redisKey).Msg("ratelimit: redis error, allowing request (fail-open)")
		return true, nil
	}

	return res[0] == 1, nil
}

// Close shuts down the Redis client.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
