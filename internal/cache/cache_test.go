package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, zerolog.Nop())
}

func TestSnapshot_MissThenHit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, ok := c.GetSnapshot(ctx, "tenant-1")
	assert.False(t, ok)

	c.PutSnapshot(ctx, "tenant-1", `{"status":"healthy"}`, time.Minute)

	val, ok := c.GetSnapshot(ctx, "tenant-1")
	require.True(t, ok)
	assert.Equal(t, `{"status":"healthy"}`, val)
}

func TestProbeIdempotency_FirstClaimSucceedsSecondFails(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	first, err := c.ProbeIdempotency(ctx, "ingest", "tenant-1", "key-abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := c.ProbeIdempotency(ctx, "ingest", "tenant-1", "key-abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestClearIdempotency_AllowsReclaim(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, err := c.ProbeIdempotency(ctx, "outcomes", "tenant-1", "key-xyz", time.Minute)
	require.NoError(t, err)

	c.ClearIdempotency(ctx, "outcomes", "tenant-1", "key-xyz")

	claimed, err := c.ProbeIdempotency(ctx, "outcomes", "tenant-1", "key-xyz", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestProbeIdempotency_DifferentTenantsDontCollide(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	first, err := c.ProbeIdempotency(ctx, "ingest", "tenant-1", "shared-key", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := c.ProbeIdempotency(ctx, "ingest", "tenant-2", "shared-key", time.Minute)
	require.NoError(t, err)
	assert.True(t, second)
}
