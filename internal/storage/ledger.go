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

// RecordLedgerEntry writes a new ledger row with status=received. This is
// the first durable write of the ingest pipeline (spec.md §4.2/§4.3 step
// 3) and must commit in its own transaction, independent of the
// primary-store insert that follows — callers pass the pool, not a shared
// tx, so the commit here is final regardless of what happens next.
func (db *DB) RecordLedgerEntry(ctx context.Context, tenantID uuid.UUID, signalID string, payload []byte) (model.LedgerEntry, error) {
	e := model.LedgerEntry{
		ID:         uuid.New(),
		TenantID:   tenantID,
		SignalID:   signalID,
		Payload:    payload,
		Status:     model.LedgerReceived,
		RecordedAt: time.Now().UTC(),
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO signal_ledger (id, tenant_id, signal_id, payload, status, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.TenantID, e.SignalID, e.Payload, e.Status, e.RecordedAt,
	)
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("storage: record ledger entry: %w", err)
	}
	return e, nil
}

// MarkLedgerIngested transitions a ledger entry to status=ingested. This
// transition is monotonic: the WHERE clause leaves a row that is already
// ingested untouched (ErrNotFound), and MarkLedgerFailed's own WHERE clause
// keeps an ingested row from being re-marked failed — no read-modify-write.
func (db *DB) MarkLedgerIngested(ctx context.Context, entryID uuid.UUID, ackID string) error {
	now := time.Now().UTC()
	tag, err := db.pool.Exec(ctx,
		`UPDATE signal_ledger SET status = $1, ack_id = $2, ingested_at = $3
		 WHERE id = $4 AND status != $5`,
		model.LedgerIngested, ackID, now, entryID, model.LedgerIngested,
	)
	if err != nil {
		return fmt.Errorf("storage: mark ledger ingested: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkLedgerFailed transitions a ledger entry to status=failed, unless it
// has already reached status=ingested (the monotonic forward-only rule).
func (db *DB) MarkLedgerFailed(ctx context.Context, entryID uuid.UUID, errMsg string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE signal_ledger SET status = $1, error_message = $2
		 WHERE id = $3 AND status != $4`,
		model.LedgerFailed, errMsg, entryID, model.LedgerIngested,
	)
	if err != nil {
		return fmt.Errorf("storage: mark ledger failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LedgerEntriesSince returns all ledger entries for tenantID recorded at or
// after since, used by the reconciler (C4 step 2) and the integrity
// checker (C6).
func (db *DB) LedgerEntriesSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]model.LedgerEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, tenant_id, signal_id, payload, status, ack_id, error_message, recorded_at, ingested_at
		 FROM signal_ledger WHERE tenant_id = $1 AND recorded_at >= $2
		 ORDER BY recorded_at ASC`,
		tenantID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: ledger entries since: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SignalID, &e.Payload, &e.Status,
			&e.AckID, &e.ErrorMessage, &e.RecordedAt, &e.IngestedAt); err != nil {
			return nil, fmt.Errorf("storage: scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LedgerSignalIDsSince returns the distinct set of signal_ids recorded
// since the given time, for the reconciler's set-diff against the primary
// store (spec.md §4.4 step 2).
func (db *DB) LedgerSignalIDsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[string]struct{}, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT signal_id FROM signal_ledger WHERE tenant_id = $1 AND recorded_at >= $2`,
		tenantID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: ledger signal ids since: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan signal id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// GetLedgerEntryBySignalID fetches the ledger row for a signal_id, used by
// the reconciler to recover the verbatim payload for replay.
func (db *DB) GetLedgerEntryBySignalID(ctx context.Context, tenantID uuid.UUID, signalID string) (model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := db.pool.QueryRow(ctx,
		`SELECT id, tenant_id, signal_id, payload, status, ack_id, error_message, recorded_at, ingested_at
		 FROM signal_ledger WHERE tenant_id = $1 AND signal_id = $2
		 ORDER BY recorded_at DESC LIMIT 1`,
		tenantID, signalID,
	).Scan(&e.ID, &e.TenantID, &e.SignalID, &e.Payload, &e.Status,
		&e.AckID, &e.ErrorMessage, &e.RecordedAt, &e.IngestedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LedgerEntry{}, ErrNotFound
		}
		return model.LedgerEntry{}, fmt.Errorf("storage: get ledger entry by signal id: %w", err)
	}
	return e, nil
}
