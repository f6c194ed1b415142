package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcast/core/internal/audit"
	"github.com/riskcast/core/internal/ledger"
	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

type fakeLedgerStore struct {
	entries map[uuid.UUID]*model.LedgerEntry
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{entries: make(map[uuid.UUID]*model.LedgerEntry)}
}

func (f *fakeLedgerStore) RecordLedgerEntry(ctx context.Context, tenantID uuid.UUID, signalID string, payload []byte) (model.LedgerEntry, error) {
	e := model.LedgerEntry{ID: uuid.New(), TenantID: tenantID, SignalID: signalID, Payload: payload, Status: model.LedgerReceived, RecordedAt: time.Now().UTC()}
	f.entries[e.ID] = &e
	return e, nil
}

func (f *fakeLedgerStore) MarkLedgerIngested(ctx context.Context, entryID uuid.UUID, ackID string) error {
	e, ok := f.entries[entryID]
	if !ok {
		return storage.ErrNotFound
	}
	e.Status = model.LedgerIngested
	e.AckID = &ackID
	return nil
}

func (f *fakeLedgerStore) MarkLedgerFailed(ctx context.Context, entryID uuid.UUID, errMsg string) error {
	e, ok := f.entries[entryID]
	if !ok {
		return storage.ErrNotFound
	}
	e.Status = model.LedgerFailed
	e.ErrorMessage = &errMsg
	return nil
}

func (f *fakeLedgerStore) LedgerEntriesSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]model.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeLedgerStore) LedgerSignalIDsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[string]struct{}, error) {
	return nil, nil
}

func (f *fakeLedgerStore) GetLedgerEntryBySignalID(ctx context.Context, tenantID uuid.UUID, signalID string) (model.LedgerEntry, error) {
	for _, e := range f.entries {
		if e.SignalID == signalID {
			return *e, nil
		}
	}
	return model.LedgerEntry{}, storage.ErrNotFound
}

type fakeSignalStore struct {
	bySignalID map[string]model.Signal
}

func newFakeSignalStore() *fakeSignalStore {
	return &fakeSignalStore{bySignalID: make(map[string]model.Signal)}
}

func (f *fakeSignalStore) GetSignalBySignalID(ctx context.Context, tenantID uuid.UUID, signalID string) (model.Signal, error) {
	s, ok := f.bySignalID[signalID]
	if !ok {
		return model.Signal{}, storage.ErrNotFound
	}
	return s, nil
}

func (f *fakeSignalStore) InsertSignal(ctx context.Context, s model.Signal) error {
	if _, exists := f.bySignalID[s.SignalID]; exists {
		return storage.ErrConflict
	}
	f.bySignalID[s.SignalID] = s
	return nil
}

func testEvent(signalID string) model.SignalEvent {
	return model.SignalEvent{
		SchemaVersion: "1",
		SignalID:      signalID,
		Signal: model.SignalPayload{
			SignalID:        signalID,
			Title:           "port delay",
			Category:        "route_disruption",
			Probability:     0.4,
			ConfidenceScore: 0.8,
			GeneratedAt:     time.Now().UTC(),
		},
	}
}

func newTestPipeline() (*Pipeline, *fakeSignalStore) {
	signals := newFakeSignalStore()
	l := ledger.New(newFakeLedgerStore())
	auditLog := audit.New(nopAuditStore{}, zerolog.Nop())
	return New(signals, l, auditLog, nil, zerolog.Nop()), signals
}

type nopAuditStore struct{}

func (nopAuditStore) AppendAuditEntry(ctx context.Context, e model.AuditEntry) (model.AuditEntry, error) {
	return e, nil
}
func (nopAuditStore) AuditEntriesPage(ctx context.Context, after time.Time, limit int) ([]model.AuditEntry, error) {
	return nil, nil
}
func (nopAuditStore) StreamAuditChain(ctx context.Context) ([]model.AuditEntry, error) { return nil, nil }
func (nopAuditStore) LatestAuditEntryByResource(ctx context.Context, tenantID, resource string) (model.AuditEntry, error) {
	return model.AuditEntry{}, storage.ErrNotFound
}
func (nopAuditStore) Notify(ctx context.Context, channel, payload string) error { return nil }

func TestIngest_NewSignal(t *testing.T) {
	p, _ := newTestPipeline()
	ack, status, err := p.Ingest(context.Background(), uuid.New(), testEvent("sig-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusNew, status)
	assert.Contains(t, ack, "riskcast-ack-")
	assert.EqualValues(t, 1, p.Counters.Received.Load())
	assert.EqualValues(t, 1, p.Counters.Ingested.Load())
}

func TestIngest_DuplicateReturnsExistingAck(t *testing.T) {
	p, _ := newTestPipeline()
	tenantID := uuid.New()
	ack1, status1, err := p.Ingest(context.Background(), tenantID, testEvent("sig-dup"))
	require.NoError(t, err)
	assert.Equal(t, StatusNew, status1)

	ack2, status2, err := p.Ingest(context.Background(), tenantID, testEvent("sig-dup"))
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, status2)
	assert.Equal(t, ack1, ack2)
}

func TestIngest_InsertFailureMarksLedgerFailed(t *testing.T) {
	signals := newFakeSignalStore()
	failing := failingSignalStore{fakeSignalStore: signals}
	ledgerStore := newFakeLedgerStore()
	l := ledger.New(ledgerStore)
	auditLog := audit.New(nopAuditStore{}, zerolog.Nop())
	p := New(failing, l, auditLog, nil, zerolog.Nop())

	tenantID := uuid.New()
	_, _, err := p.Ingest(context.Background(), tenantID, testEvent("sig-fail"))
	assert.Error(t, err)
	assert.EqualValues(t, 1, p.Counters.Errors.Load())

	entry, err := ledgerStore.GetLedgerEntryBySignalID(context.Background(), tenantID, "sig-fail")
	require.NoError(t, err)
	assert.Equal(t, model.LedgerFailed, entry.Status)
}

type failingSignalStore struct {
	*fakeSignalStore
}

func (f failingSignalStore) InsertSignal(ctx context.Context, s model.Signal) error {
	return errors.New("primary store unavailable")
}

func TestReplayFromLedger_SkipsLedgerRecord(t *testing.T) {
	p, signals := newTestPipeline()
	event := testEvent("sig-replay")
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	ack, wasNew, err := p.ReplayFromLedger(context.Background(), uuid.New(), "sig-replay", raw)
	require.NoError(t, err)
	assert.True(t, wasNew)
	assert.NotEmpty(t, ack)
	assert.Len(t, signals.bySignalID, 1)
}
