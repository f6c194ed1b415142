package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcast/core/internal/ledger"
	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

type fakeMonitorStore struct {
	timestamps   []time.Time
	lagSamples   []storage.SignalLagSample
	failedLedger int
	primaryIDs   map[string]struct{}
	signals      map[string]model.Signal
	outcomes     map[string]model.OutcomeRecord
}

func newFakeMonitorStore() *fakeMonitorStore {
	return &fakeMonitorStore{
		primaryIDs: make(map[string]struct{}),
		signals:    make(map[string]model.Signal),
		outcomes:   make(map[string]model.OutcomeRecord),
	}
}

func (f *fakeMonitorStore) RecentSignalTimestamps(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]time.Time, error) {
	return f.timestamps, nil
}
func (f *fakeMonitorStore) RecentSignalLagSamples(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]storage.SignalLagSample, error) {
	return f.lagSamples, nil
}
func (f *fakeMonitorStore) CountSignalsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error) {
	n := 0
	for _, ts := range f.timestamps {
		if !ts.Before(since) {
			n++
		}
	}
	return n, nil
}
func (f *fakeMonitorStore) CountFailedLedgerSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error) {
	return f.failedLedger, nil
}
func (f *fakeMonitorStore) SignalIDsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[string]struct{}, error) {
	return f.primaryIDs, nil
}
func (f *fakeMonitorStore) GetSignalBySignalID(ctx context.Context, tenantID uuid.UUID, signalID string) (model.Signal, error) {
	s, ok := f.signals[signalID]
	if !ok {
		return model.Signal{}, storage.ErrNotFound
	}
	return s, nil
}
func (f *fakeMonitorStore) GetOutcomeByDecisionID(ctx context.Context, tenantID, decisionID string) (model.OutcomeRecord, error) {
	o, ok := f.outcomes[decisionID]
	if !ok {
		return model.OutcomeRecord{}, storage.ErrNotFound
	}
	return o, nil
}

type fakeLedgerStore struct {
	entries map[string]model.LedgerEntry
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{entries: make(map[string]model.LedgerEntry)}
}

func (f *fakeLedgerStore) RecordLedgerEntry(ctx context.Context, tenantID uuid.UUID, signalID string, payload []byte) (model.LedgerEntry, error) {
	e := model.LedgerEntry{ID: uuid.New(), TenantID: tenantID, SignalID: signalID, Status: model.LedgerReceived, RecordedAt: time.Now().UTC()}
	f.entries[signalID] = e
	return e, nil
}
func (f *fakeLedgerStore) MarkLedgerIngested(ctx context.Context, entryID uuid.UUID, ackID string) error {
	return nil
}
func (f *fakeLedgerStore) MarkLedgerFailed(ctx context.Context, entryID uuid.UUID, errMsg string) error {
	return nil
}
func (f *fakeLedgerStore) LedgerEntriesSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]model.LedgerEntry, error) {
	var out []model.LedgerEntry
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}
func (f *fakeLedgerStore) LedgerSignalIDsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	for id := range f.entries {
		ids[id] = struct{}{}
	}
	return ids, nil
}
func (f *fakeLedgerStore) GetLedgerEntryBySignalID(ctx context.Context, tenantID uuid.UUID, signalID string) (model.LedgerEntry, error) {
	e, ok := f.entries[signalID]
	if !ok {
		return model.LedgerEntry{}, storage.ErrNotFound
	}
	return e, nil
}

func TestHealth_NoDataWhenEmpty(t *testing.T) {
	store := newFakeMonitorStore()
	l := ledger.New(newFakeLedgerStore())
	m := New(store, l, zerolog.Nop())

	health, err := m.Health(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, model.PipelineNoData, health.Freshness)
	assert.Equal(t, model.HealthCritical, health.Status)
}

func TestHealth_FreshAndHealthy(t *testing.T) {
	store := newFakeMonitorStore()
	now := time.Now().UTC()
	store.timestamps = []time.Time{now.Add(-10 * time.Minute)}
	l := ledger.New(newFakeLedgerStore())
	m := New(store, l, zerolog.Nop())

	health, err := m.Health(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, model.PipelineFresh, health.Freshness)
	assert.Equal(t, model.HealthHealthy, health.Status)
	assert.Empty(t, health.Gaps)
}

func TestHealth_DetectsGaps(t *testing.T) {
	store := newFakeMonitorStore()
	now := time.Now().UTC()
	store.timestamps = []time.Time{
		now.Add(-23 * time.Hour),
		now.Add(-20 * time.Hour), // 3h gap > 120min
		now.Add(-5 * time.Minute),
		now.Add(-4 * time.Minute),
		now.Add(-3 * time.Minute),
		now.Add(-2 * time.Minute),
		now.Add(-1 * time.Minute),
	}
	l := ledger.New(newFakeLedgerStore())
	m := New(store, l, zerolog.Nop())

	health, err := m.Health(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotEmpty(t, health.Gaps)
}

func TestCheckIntegrity_ClassifiesDiscrepancies(t *testing.T) {
	ledgerBacking := newFakeLedgerStore()
	ledgerBacking.entries["sig-missing"] = model.LedgerEntry{SignalID: "sig-missing", Status: model.LedgerReceived, RecordedAt: time.Now().UTC()}
	ledgerBacking.entries["sig-failed"] = model.LedgerEntry{SignalID: "sig-failed", Status: model.LedgerFailed, RecordedAt: time.Now().UTC()}
	ledgerBacking.entries["sig-ok"] = model.LedgerEntry{SignalID: "sig-ok", Status: model.LedgerIngested, RecordedAt: time.Now().UTC()}
	l := ledger.New(ledgerBacking)

	store := newFakeMonitorStore()
	store.primaryIDs["sig-ok"] = struct{}{}
	store.primaryIDs["sig-orphan"] = struct{}{}

	m := New(store, l, zerolog.Nop())
	report, err := m.CheckIntegrity(context.Background(), uuid.New(), 7)
	require.NoError(t, err)

	types := make(map[string]model.DiscrepancyType)
	for _, d := range report.Discrepancies {
		types[d.SignalID] = d.Type
	}
	assert.Equal(t, model.DiscrepancyMissingFromDB, types["sig-missing"])
	assert.Equal(t, model.DiscrepancyOrphanedInDB, types["sig-orphan"])
	assert.Equal(t, model.DiscrepancyIngestFailed, types["sig-failed"])
	assert.Equal(t, 1, report.ConsistentCount, "sig-ok is consistent")
	assert.False(t, report.IsConsistent)
}

func TestTraceSignal_CompleteChain(t *testing.T) {
	ledgerBacking := newFakeLedgerStore()
	ack := "riskcast-ack-aaaaaaaa"
	ledgerBacking.entries["sig-1"] = model.LedgerEntry{SignalID: "sig-1", Status: model.LedgerIngested, AckID: &ack, RecordedAt: time.Now().UTC()}
	l := ledger.New(ledgerBacking)

	store := newFakeMonitorStore()
	store.signals["sig-1"] = model.Signal{SignalID: "sig-1", Category: "route_disruption", Probability: 0.5, Confidence: 0.6, Processed: true, IngestedAt: time.Now().UTC()}

	m := New(store, l, zerolog.Nop())
	trace, err := m.TraceSignal(context.Background(), uuid.New(), "sig-1")
	require.NoError(t, err)
	assert.True(t, trace.Found)
	assert.Len(t, trace.Stages, 2)
}

func TestTraceSignal_MissingFromIngest(t *testing.T) {
	ledgerBacking := newFakeLedgerStore()
	ledgerBacking.entries["sig-2"] = model.LedgerEntry{SignalID: "sig-2", Status: model.LedgerReceived, RecordedAt: time.Now().UTC()}
	l := ledger.New(ledgerBacking)

	store := newFakeMonitorStore()
	m := New(store, l, zerolog.Nop())

	trace, err := m.TraceSignal(context.Background(), uuid.New(), "sig-2")
	require.NoError(t, err)
	assert.False(t, trace.Found)
}

func TestCoverage_FullCoverageNeedsNoReconciliation(t *testing.T) {
	ledgerBacking := newFakeLedgerStore()
	ledgerBacking.entries["sig-1"] = model.LedgerEntry{SignalID: "sig-1"}
	l := ledger.New(ledgerBacking)

	store := newFakeMonitorStore()
	store.primaryIDs["sig-1"] = struct{}{}

	m := New(store, l, zerolog.Nop())
	cov, err := m.Coverage(context.Background(), uuid.New(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cov.IngestCoverage)
	assert.False(t, cov.NeedsReconciliation)
}
