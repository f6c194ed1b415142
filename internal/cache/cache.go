// Package cache is a thin Redis layer in front of Postgres for two
// read-heavy, latency-sensitive paths: pipeline-health snapshots (C5,
// recomputed from scratch is a handful of aggregate queries) and
// idempotency-key probes on the ingest and outcome-recording endpoints
// (spec.md §4.3, §4.8). Postgres remains the source of truth for both —
// this package only shortens the common case.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache wraps a Redis client with the riskcast key namespace.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
}

func New(client *redis.Client, logger zerolog.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func snapshotKey(tenantID string) string {
	return fmt.Sprintf("riskcast:health:%s", tenantID)
}

func idempotencyKey(endpoint, tenantID, key string) string {
	return fmt.Sprintf("riskcast:idem:%s:%s:%s", endpoint, tenantID, key)
}

// GetSnapshot returns a cached JSON blob for tenantID's last computed
// pipeline-health report, or ("", false) on a miss or Redis error — a
// miss always falls through to recomputing from Postgres, so Redis
// unavailability degrades latency, not correctness.
func (c *Cache) GetSnapshot(ctx context.Context, tenantID string) (string, bool) {
	val, err := c.client.Get(ctx, snapshotKey(tenantID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("cache: snapshot get failed, falling back to recompute")
		}
		return "", false
	}
	return val, true
}

// PutSnapshot caches tenantID's health report JSON for ttl. Failures are
// logged and swallowed: a cache write failure must never fail the
// request that already has its answer.
func (c *Cache) PutSnapshot(ctx context.Context, tenantID, json string, ttl time.Duration) {
	if err := c.client.Set(ctx, snapshotKey(tenantID), json, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("cache: snapshot put failed")
	}
}

// ProbeIdempotency attempts to claim (endpoint, tenantID, key) for ttl. It
// returns (true, nil) the first time a key is seen (the caller should
// proceed, calling ClearIdempotency if its write fails), and
// (false, nil) when the key has already been claimed — the caller should
// fall through to Postgres to find the completed response to replay, or
// return 409 if the claim is still in flight. A Redis error returns
// (true, err): the caller falls through to Postgres as the source of
// truth rather than blocking the request on a down cache.
func (c *Cache) ProbeIdempotency(ctx context.Context, endpoint, tenantID, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, idempotencyKey(endpoint, tenantID, key), "in_progress", ttl).Result()
	if err != nil {
		return true, err
	}
	return ok, nil
}

// ClearIdempotency releases a claimed key, e.g. after a failed write that
// the caller wants retried under the same idempotency key.
func (c *Cache) ClearIdempotency(ctx context.Context, endpoint, tenantID, key string) {
	if err := c.client.Del(ctx, idempotencyKey(endpoint, tenantID, key)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Str("key", key).Msg("cache: idempotency clear failed")
	}
}
