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

// GetSignalBySignalID is the idempotency probe of spec.md §4.3 step 2: if a
// signal with this signal_id already exists for the tenant, the caller
// returns its ack_id with duplicate=true rather than inserting again.
func (db *DB) GetSignalBySignalID(ctx context.Context, tenantID uuid.UUID, signalID string) (model.Signal, error) {
	var s model.Signal
	err := db.pool.QueryRow(ctx,
		`SELECT id, tenant_id, signal_id, ack_id, category, title, probability, confidence,
		        raw_payload, active, processed, observed_at, emitted_at, ingested_at
		 FROM ingest_signals WHERE tenant_id = $1 AND signal_id = $2`,
		tenantID, signalID,
	).Scan(&s.ID, &s.TenantID, &s.SignalID, &s.AckID, &s.Category, &s.Title, &s.Probability,
		&s.Confidence, &s.RawPayload, &s.Active, &s.Processed, &s.ObservedAt, &s.EmittedAt, &s.IngestedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Signal{}, ErrNotFound
		}
		return model.Signal{}, fmt.Errorf("storage: get signal by signal_id: %w", err)
	}
	return s, nil
}

// InsertSignal inserts the normalized ingest row under a fresh ack_id
// (spec.md §4.3 step 4). It returns ErrConflict if a concurrent writer won
// the race on signal_id — the caller should treat that as a duplicate and
// look up the winner's ack_id.
func (db *DB) InsertSignal(ctx context.Context, s model.Signal) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.IngestedAt.IsZero() {
		s.IngestedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO ingest_signals (id, tenant_id, signal_id, ack_id, category, title, probability,
		        confidence, raw_payload, active, processed, observed_at, emitted_at, ingested_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		s.ID, s.TenantID, s.SignalID, s.AckID, s.Category, s.Title, s.Probability,
		s.Confidence, s.RawPayload, s.Active, s.Processed, s.ObservedAt, s.EmittedAt, s.IngestedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("storage: insert signal: %w", err)
	}
	return nil
}

// SignalIDsSince returns the distinct set of signal_ids present in the
// primary store since the given time, for the reconciler's set-diff
// (spec.md §4.4 step 3).
func (db *DB) SignalIDsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[string]struct{}, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT signal_id FROM ingest_signals WHERE tenant_id = $1 AND ingested_at >= $2`,
		tenantID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: signal ids since: %w", err)
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

// RecentSignalTimestamps returns ingested_at values for tenantID within the
// window, ascending, used by the pipeline monitor (C5) to compute gaps and
// volume bands without materializing full rows.
func (db *DB) RecentSignalTimestamps(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]time.Time, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT ingested_at FROM ingest_signals WHERE tenant_id = $1 AND ingested_at >= $2 ORDER BY ingested_at ASC`,
		tenantID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: recent signal timestamps: %w", err)
	}
	defer rows.Close()

	var ts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("storage: scan timestamp: %w", err)
		}
		ts = append(ts, t)
	}
	return ts, rows.Err()
}

// SignalLagSample is the subset of a signal row the monitor needs to
// compute ingest lag (ingested_at - emitted_at), without materializing
// the full row including its raw payload.
type SignalLagSample struct {
	IngestedAt time.Time
	EmittedAt  *time.Time
}

// RecentSignalLagSamples returns emitted_at/ingested_at pairs for tenantID
// within the window, for the pipeline monitor's average/max ingest lag
// (spec.md §4.5).
func (db *DB) RecentSignalLagSamples(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]SignalLagSample, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT ingested_at, emitted_at FROM ingest_signals WHERE tenant_id = $1 AND ingested_at >= $2`,
		tenantID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: recent signal lag samples: %w", err)
	}
	defer rows.Close()

	var samples []SignalLagSample
	for rows.Next() {
		var s SignalLagSample
		if err := rows.Scan(&s.IngestedAt, &s.EmittedAt); err != nil {
			return nil, fmt.Errorf("storage: scan lag sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// CountSignalsSince returns the number of primary-store rows ingested at
// or after since, for the monitor's 1h/24h volume counts.
func (db *DB) CountSignalsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM ingest_signals WHERE tenant_id = $1 AND ingested_at >= $2`,
		tenantID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count signals since: %w", err)
	}
	return n, nil
}

// CountFailedLedgerSince returns the number of ledger rows with
// status=failed recorded since the given time, for the monitor's error
// rate.
func (db *DB) CountFailedLedgerSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM signal_ledger WHERE tenant_id = $1 AND status = 'failed' AND recorded_at >= $2`,
		tenantID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count failed ledger since: %w", err)
	}
	return n, nil
}
