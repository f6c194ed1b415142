package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetriable(t *testing.T) {
	assert.True(t, isRetriable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetriable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isRetriable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetriable(errors.New("not a pg error")))
}

func TestWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetriesRetriableErrors(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUpOnNonRetriable(t *testing.T) {
	calls := 0
	sentinel := errors.New("boom")
	err := WithRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 2, time.Millisecond, func(ctx context.Context) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
}
