// Package ledger implements the immutable per-signal write-ahead record
// (C2). The ledger write must commit independently of, and before, the
// primary-store insert that follows it — callers obtain a Ledger backed
// directly by the pool rather than a shared transaction, so a commit here
// is final regardless of what the ingest pipeline does next.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/riskcast/core/internal/model"
)

// Store is the persistence dependency the ledger needs.
type Store interface {
	RecordLedgerEntry(ctx context.Context, tenantID uuid.UUID, signalID string, payload []byte) (model.LedgerEntry, error)
	MarkLedgerIngested(ctx context.Context, entryID uuid.UUID, ackID string) error
	MarkLedgerFailed(ctx context.Context, entryID uuid.UUID, errMsg string) error
	LedgerEntriesSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]model.LedgerEntry, error)
	LedgerSignalIDsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[string]struct{}, error)
	GetLedgerEntryBySignalID(ctx context.Context, tenantID uuid.UUID, signalID string) (model.LedgerEntry, error)
}

// Ledger is a thin, typed wrapper over Store — it exists so callers depend
// on a narrow interface named for what C2 does, rather than reaching into
// storage.DB directly.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record writes a new received-status entry. This is the first durable
// write of the ingest pipeline (spec.md §4.3 step 3).
func (l *Ledger) Record(ctx context.Context, tenantID uuid.UUID, signalID string, payload []byte) (model.LedgerEntry, error) {
	return l.store.RecordLedgerEntry(ctx, tenantID, signalID, payload)
}

// MarkIngested transitions entry to ingested with its new ack. Monotonic:
// a failed entry may still be marked ingested (a later reconcile replay
// can succeed), but an ingested entry is never re-marked failed.
func (l *Ledger) MarkIngested(ctx context.Context, entry model.LedgerEntry, ackID string) error {
	return l.store.MarkLedgerIngested(ctx, entry.ID, ackID)
}

// MarkFailed transitions entry to failed, unless it has already reached
// ingested.
func (l *Ledger) MarkFailed(ctx context.Context, entry model.LedgerEntry, errMsg string) error {
	return l.store.MarkLedgerFailed(ctx, entry.ID, errMsg)
}

// EntriesSince returns every ledger entry for tenantID recorded since t.
func (l *Ledger) EntriesSince(ctx context.Context, tenantID uuid.UUID, t time.Time) ([]model.LedgerEntry, error) {
	return l.store.LedgerEntriesSince(ctx, tenantID, t)
}

// SignalIDsSince returns the distinct signal_id set recorded since t, for
// the reconciler's set-diff (spec.md §4.4 step 2).
func (l *Ledger) SignalIDsSince(ctx context.Context, tenantID uuid.UUID, t time.Time) (map[string]struct{}, error) {
	return l.store.LedgerSignalIDsSince(ctx, tenantID, t)
}

// EntryForSignal returns the ledger row for signalID, used by the
// reconciler to recover the verbatim payload for replay.
func (l *Ledger) EntryForSignal(ctx context.Context, tenantID uuid.UUID, signalID string) (model.LedgerEntry, error) {
	return l.store.GetLedgerEntryBySignalID(ctx, tenantID, signalID)
}
