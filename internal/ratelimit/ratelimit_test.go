package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, "anything")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	require.NoError(t, l.Close())
}

func TestMemoryLimiter_AllowsWithinBurst(t *testing.T) {
	m := NewMemoryLimiter(1, 3)
	defer m.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "tenant-a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst should be allowed", i)
	}

	ok, err := m.Allow(ctx, "tenant-a")
	require.NoError(t, err)
	assert.False(t, ok, "request exceeding burst should be denied")
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	defer m.Close()
	ctx := context.Background()

	ok, err := m.Allow(ctx, "tenant-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Allow(ctx, "tenant-b")
	require.NoError(t, err)
	assert.True(t, ok, "a different key should have its own bucket")
}

func TestMemoryLimiter_Refills(t *testing.T) {
	m := NewMemoryLimiter(1000, 1) // fast refill for the test
	defer m.Close()
	ctx := context.Background()

	ok, err := m.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	ok, err = m.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "bucket should have refilled by now")
}

func TestBruteForceProtection_IPLockout(t *testing.T) {
	b := NewBruteForceProtection()
	b.ipMax = 3
	b.ipWindow = time.Minute
	b.ipLockout = time.Minute

	for i := 0; i < 3; i++ {
		allowed, _, _ := b.CheckAllowed("1.2.3.4", "")
		assert.True(t, allowed)
		b.RecordFailure("1.2.3.4", "")
	}

	allowed, reason, retryAfter := b.CheckAllowed("1.2.3.4", "")
	assert.False(t, allowed)
	assert.Contains(t, reason, "IP")
	assert.Greater(t, retryAfter, 0)
}

func TestBruteForceProtection_AccountLockoutIsCaseInsensitive(t *testing.T) {
	b := NewBruteForceProtection()
	b.accountMax = 2
	b.accountWindow = time.Minute
	b.accountLockout = time.Minute

	b.RecordFailure("9.9.9.9", "User@Example.com")
	b.RecordFailure("9.9.9.8", "user@example.com")

	allowed, reason, _ := b.CheckAllowed("9.9.9.7", "USER@EXAMPLE.COM")
	assert.False(t, allowed)
	assert.Contains(t, reason, "locked")
}

func TestBruteForceProtection_SuccessClearsHistory(t *testing.T) {
	b := NewBruteForceProtection()
	b.ipMax = 2
	b.RecordFailure("5.5.5.5", "")
	b.RecordSuccess("5.5.5.5", "")

	delay := b.ProgressiveDelay("5.5.5.5")
	assert.Equal(t, time.Duration(0), delay)
}

func TestBruteForceProtection_ProgressiveDelay(t *testing.T) {
	b := NewBruteForceProtection()
	for i := 0; i < 2; i++ {
		b.RecordFailure("6.6.6.6", "")
	}
	assert.Equal(t, time.Duration(0), b.ProgressiveDelay("6.6.6.6"), "fewer than 3 failures: no delay")

	b.RecordFailure("6.6.6.6", "") // 3rd failure
	assert.Equal(t, 1*time.Second, b.ProgressiveDelay("6.6.6.6"))

	b.RecordFailure("6.6.6.6", "") // 4th
	assert.Equal(t, 2*time.Second, b.ProgressiveDelay("6.6.6.6"))

	b.RecordFailure("6.6.6.6", "") // 5th
	assert.Equal(t, 4*time.Second, b.ProgressiveDelay("6.6.6.6"))

	b.RecordFailure("6.6.6.6", "") // 6th
	assert.Equal(t, 8*time.Second, b.ProgressiveDelay("6.6.6.6"))

	b.RecordFailure("6.6.6.6", "") // 7th, should cap at 8s
	assert.Equal(t, 8*time.Second, b.ProgressiveDelay("6.6.6.6"))
}
