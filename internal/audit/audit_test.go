package audit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

// fakeStore is an in-memory Store that reproduces the chain-head locking
// semantics of storage.DB.AppendAuditEntry serially (tests in this
// package are single-goroutine, so a mutex is unnecessary).
type fakeStore struct {
	entries  []model.AuditEntry
	lastHash string
	failNext bool
}

func (f *fakeStore) AppendAuditEntry(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error) {
	if f.failNext {
		f.failNext = false
		return model.AuditEntry{}, assertErr
	}
	entry.Seal(f.lastHash)
	f.entries = append(f.entries, entry)
	f.lastHash = entry.EntryHash
	return entry, nil
}

func (f *fakeStore) AuditEntriesPage(ctx context.Context, after time.Time, limit int) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	for _, e := range f.entries {
		if e.Timestamp.After(after) {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) StreamAuditChain(ctx context.Context) ([]model.AuditEntry, error) {
	return append([]model.AuditEntry(nil), f.entries...), nil
}

func (f *fakeStore) LatestAuditEntryByResource(ctx context.Context, tenantID, resource string) (model.AuditEntry, error) {
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].TenantID == tenantID && f.entries[i].Resource == resource {
			return f.entries[i], nil
		}
	}
	return model.AuditEntry{}, storage.ErrNotFound
}

func (f *fakeStore) Notify(ctx context.Context, channel, payload string) error { return nil }

var assertErr = &validationError{"fake store write failure"}

func TestLog_AppendsSequentially(t *testing.T) {
	store := &fakeStore{}
	l := New(store, zerolog.Nop())
	ctx := context.Background()

	l.Log(ctx, Event{TenantID: "acme", Actor: "user-1", Action: "login", Outcome: model.AuditSuccess})
	l.Log(ctx, Event{TenantID: "acme", Actor: "user-1", Action: "view_decision", Outcome: model.AuditSuccess})

	require.Len(t, store.entries, 2)
	assert.Equal(t, "", store.entries[0].PreviousHash)
	assert.Equal(t, store.entries[0].EntryHash, store.entries[1].PreviousHash)
}

func TestLog_WriteFailureDoesNotPanic(t *testing.T) {
	store := &fakeStore{failNext: true}
	l := New(store, zerolog.Nop())
	assert.NotPanics(t, func() {
		l.Log(context.Background(), Event{Action: "ingest", Outcome: model.AuditSuccess})
	})
	assert.Empty(t, store.entries)
}

func TestLog_RejectsSeparatorByte(t *testing.T) {
	store := &fakeStore{}
	l := New(store, zerolog.Nop())
	l.Log(context.Background(), Event{Action: "bad\x00action", Outcome: model.AuditSuccess})
	assert.Empty(t, store.entries)
}

func TestVerifyChain_ValidChain(t *testing.T) {
	store := &fakeStore{}
	l := New(store, zerolog.Nop())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		l.Log(ctx, Event{Action: "ingest", Outcome: model.AuditSuccess})
	}

	result, err := l.VerifyChain(ctx)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 5, result.EntriesChecked)
	assert.Empty(t, result.Breaks)
}

func TestVerifyChain_DetectsTamperedEntry(t *testing.T) {
	store := &fakeStore{}
	l := New(store, zerolog.Nop())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		l.Log(ctx, Event{Action: "ingest", Outcome: model.AuditSuccess})
	}

	store.entries[1].Action = "tampered"

	result, err := l.VerifyChain(ctx)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Breaks)
	assert.Equal(t, store.entries[1].EntryID, result.Breaks[0].EntryID)
}

func TestVerifyChain_CapsBreaksAtTen(t *testing.T) {
	store := &fakeStore{}
	l := New(store, zerolog.Nop())
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		l.Log(ctx, Event{Action: "ingest", Outcome: model.AuditSuccess})
	}
	for i := range store.entries {
		store.entries[i].EntryHash = "corrupted"
	}

	result, err := l.VerifyChain(ctx)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Len(t, result.Breaks, maxBreaksReported)
}
