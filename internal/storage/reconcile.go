package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/riskcast/core/internal/model"
)

// BeginReconcileRun opens a run-log record with status=running for
// tenantID, enforcing the at-most-one-concurrent-run-per-tenant rule
// (spec.md §4.4 Concurrency) via a conditional insert guarded by a
// partial unique index on (tenant_id) WHERE status = 'running'.
func (db *DB) BeginReconcileRun(ctx context.Context, tenantID uuid.UUID, sinceDays int) (model.ReconcileRun, error) {
	run := model.ReconcileRun{
		ID:        uuid.New(),
		TenantID:  tenantID,
		SinceDays: sinceDays,
		Status:    model.ReconcileRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO reconcile_log (id, tenant_id, since_days, status, started_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		run.ID, run.TenantID, run.SinceDays, run.Status, run.StartedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ReconcileRun{}, ErrReconcileAlreadyRunning
		}
		return model.ReconcileRun{}, fmt.Errorf("storage: begin reconcile run: %w", err)
	}
	return run, nil
}

// CompleteReconcileRun closes a run-log record with its final counters and
// terminal status (completed/partial/failed, per spec.md §4.4 step 5).
func (db *DB) CompleteReconcileRun(ctx context.Context, run model.ReconcileRun) error {
	now := time.Now().UTC()
	tag, err := db.pool.Exec(ctx,
		`UPDATE reconcile_log SET
		        total_in_ledger = $1, total_in_db = $2, missing_count = $3,
		        replayed_count = $4, failed_count = $5, status = $6, completed_at = $7
		 WHERE id = $8`,
		run.TotalInLedger, run.TotalInPrimary, run.MissingCount,
		run.ReplayedCount, run.FailedCount, run.Status, now, run.ID,
	)
	if err != nil {
		return fmt.Errorf("storage: complete reconcile run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestReconcileRun returns the most recently started run for tenantID on
// date (UTC day), for GET /reconcile/status/{date}.
func (db *DB) LatestReconcileRun(ctx context.Context, tenantID uuid.UUID, date time.Time) (model.ReconcileRun, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	run, err := db.scanOneReconcileRun(ctx,
		`SELECT id, tenant_id, since_days, total_in_ledger, total_in_db, missing_count,
		        replayed_count, failed_count, status, started_at, completed_at
		 FROM reconcile_log WHERE tenant_id = $1 AND started_at >= $2 AND started_at < $3
		 ORDER BY started_at DESC LIMIT 1`,
		tenantID, dayStart, dayEnd,
	)
	return run, err
}

// ReconcileRunHistory returns every run for tenantID on date, for
// GET /reconcile/history/{date}.
func (db *DB) ReconcileRunHistory(ctx context.Context, tenantID uuid.UUID, date time.Time) ([]model.ReconcileRun, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	rows, err := db.pool.Query(ctx,
		`SELECT id, tenant_id, since_days, total_in_ledger, total_in_db, missing_count,
		        replayed_count, failed_count, status, started_at, completed_at
		 FROM reconcile_log WHERE tenant_id = $1 AND started_at >= $2 AND started_at < $3
		 ORDER BY started_at DESC`,
		tenantID, dayStart, dayEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: reconcile run history: %w", err)
	}
	defer rows.Close()

	var runs []model.ReconcileRun
	for rows.Next() {
		var r model.ReconcileRun
		if err := rows.Scan(&r.ID, &r.TenantID, &r.SinceDays, &r.TotalInLedger, &r.TotalInPrimary,
			&r.MissingCount, &r.ReplayedCount, &r.FailedCount, &r.Status, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("storage: scan reconcile run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (db *DB) scanOneReconcileRun(ctx context.Context, sql string, args ...any) (model.ReconcileRun, error) {
	var r model.ReconcileRun
	err := db.pool.QueryRow(ctx, sql, args...).Scan(&r.ID, &r.TenantID, &r.SinceDays, &r.TotalInLedger,
		&r.TotalInPrimary, &r.MissingCount, &r.ReplayedCount, &r.FailedCount, &r.Status, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReconcileRun{}, ErrNotFound
		}
		return model.ReconcileRun{}, fmt.Errorf("storage: scan reconcile run: %w", err)
	}
	return r, nil
}
