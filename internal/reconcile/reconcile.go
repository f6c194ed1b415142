// Package reconcile implements the reconciler (C4): it diffs the ledger
// against the primary store and replays whatever the primary store is
// missing. At most one run executes per tenant at a time (spec.md §4.4,
// §5).
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/ingest"
	"github.com/riskcast/core/internal/ledger"
	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

// Store is the run-log persistence dependency.
type Store interface {
	BeginReconcileRun(ctx context.Context, tenantID uuid.UUID, sinceDays int) (model.ReconcileRun, error)
	CompleteReconcileRun(ctx context.Context, run model.ReconcileRun) error
	LatestReconcileRun(ctx context.Context, tenantID uuid.UUID, date time.Time) (model.ReconcileRun, error)
	ReconcileRunHistory(ctx context.Context, tenantID uuid.UUID, date time.Time) ([]model.ReconcileRun, error)
	SignalIDsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[string]struct{}, error)
}

// Reconciler is the C4 service.
type Reconciler struct {
	store  Store
	ledger *ledger.Ledger
	ingest *ingest.Pipeline
	logger zerolog.Logger
}

func New(store Store, l *ledger.Ledger, ingestPipeline *ingest.Pipeline, logger zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, ledger: l, ingest: ingestPipeline, logger: logger}
}

// Run executes one reconcile cycle for tenantID over the last sinceDays
// days (spec.md §4.4). sinceDays must be in [1, 90]; callers validate the
// request bound before calling Run.
func (r *Reconciler) Run(ctx context.Context, tenantID uuid.UUID, sinceDays int) (model.ReconcileRun, error) {
	run, err := r.store.BeginReconcileRun(ctx, tenantID, sinceDays)
	if err != nil {
		return model.ReconcileRun{}, err
	}

	since := time.Now().UTC().AddDate(0, 0, -sinceDays)

	ledgerIDs, err := r.ledger.SignalIDsSince(ctx, tenantID, since)
	if err != nil {
		return r.fail(ctx, run, fmt.Errorf("reconcile: read ledger ids: %w", err))
	}
	primaryIDs, err := r.store.SignalIDsSince(ctx, tenantID, since)
	if err != nil {
		return r.fail(ctx, run, fmt.Errorf("reconcile: read primary ids: %w", err))
	}

	run.TotalInLedger = len(ledgerIDs)
	run.TotalInPrimary = len(primaryIDs)

	var missing []string
	for id := range ledgerIDs {
		if _, ok := primaryIDs[id]; !ok {
			missing = append(missing, id)
		}
	}
	run.MissingCount = len(missing)

	for _, signalID := range missing {
		if err := r.replayOne(ctx, tenantID, signalID); err != nil {
			run.FailedCount++
			r.logger.Warn().Err(err).Str("signal_id", signalID).Msg("reconcile: replay failed")
			continue
		}
		run.ReplayedCount++
	}

	switch {
	case run.MissingCount == 0:
		run.Status = model.ReconcileCompleted
	case run.ReplayedCount == run.MissingCount:
		run.Status = model.ReconcileCompleted
	case run.ReplayedCount > 0:
		run.Status = model.ReconcilePartial
	default:
		run.Status = model.ReconcileFailed
	}

	if err := r.store.CompleteReconcileRun(ctx, run); err != nil {
		return model.ReconcileRun{}, fmt.Errorf("reconcile: complete run: %w", err)
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	return run, nil
}

func (r *Reconciler) replayOne(ctx context.Context, tenantID uuid.UUID, signalID string) error {
	entry, err := r.ledger.EntryForSignal(ctx, tenantID, signalID)
	if err != nil {
		return fmt.Errorf("fetch ledger entry: %w", err)
	}
	ackID, _, err := r.ingest.ReplayFromLedger(ctx, tenantID, signalID, entry.Payload)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if merr := r.ledger.MarkIngested(ctx, entry, ackID); merr != nil && !errors.Is(merr, storage.ErrNotFound) {
		return fmt.Errorf("mark ingested after replay: %w", merr)
	}
	return nil
}

func (r *Reconciler) fail(ctx context.Context, run model.ReconcileRun, cause error) (model.ReconcileRun, error) {
	run.Status = model.ReconcileFailed
	if err := r.store.CompleteReconcileRun(ctx, run); err != nil {
		r.logger.Error().Err(err).Msg("reconcile: failed to record run failure")
	}
	return model.ReconcileRun{}, cause
}

// Status reports the last run plus the consistency invariant of spec.md
// §4.4: is_consistent = last_run.status == completed ∧ missing_count == 0.
func (r *Reconciler) Status(ctx context.Context, tenantID uuid.UUID, date time.Time) (model.ReconcileRun, bool, error) {
	run, err := r.store.LatestReconcileRun(ctx, tenantID, date)
	if err != nil {
		return model.ReconcileRun{}, false, err
	}
	return run, run.IsConsistent(), nil
}

// History returns every run for tenantID on date.
func (r *Reconciler) History(ctx context.Context, tenantID uuid.UUID, date time.Time) ([]model.ReconcileRun, error) {
	return r.store.ReconcileRunHistory(ctx, tenantID, date)
}
