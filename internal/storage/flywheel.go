package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// FlywheelPrior is the active Beta(alpha, beta) prior the risk engine
// (C8 Stage D) reads for one (tenant, entity_type) pair.
type FlywheelPrior struct {
	TenantID           string
	EntityType         string
	Alpha              float64
	Beta               float64
	NOutcomes          int
	CalibrationDrift   float64
	NeedsRecalibration bool
	UpdatedAt          time.Time
}

// defaultAlpha and defaultBeta are the engine's prior before any flywheel
// update has run for a (tenant, entity_type) pair (spec.md §4.6 Stage D).
const (
	defaultAlpha = 2.0
	defaultBeta  = 5.0
)

// GetFlywheelPrior returns the active prior for (tenantID, entityType),
// or the engine defaults if no flywheel update has ever run for it.
func (db *DB) GetFlywheelPrior(ctx context.Context, tenantID, entityType string) (FlywheelPrior, error) {
	var p FlywheelPrior
	err := db.pool.QueryRow(ctx,
		`SELECT tenant_id, entity_type, alpha, beta, n_outcomes, calibration_drift, needs_recalibration, updated_at
		 FROM flywheel_priors WHERE tenant_id = $1 AND entity_type = $2`,
		tenantID, entityType,
	).Scan(&p.TenantID, &p.EntityType, &p.Alpha, &p.Beta, &p.NOutcomes, &p.CalibrationDrift, &p.NeedsRecalibration, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FlywheelPrior{
				TenantID:   tenantID,
				EntityType: entityType,
				Alpha:      defaultAlpha,
				Beta:       defaultBeta,
			}, nil
		}
		return FlywheelPrior{}, fmt.Errorf("storage: get flywheel prior: %w", err)
	}
	return p, nil
}

// UpsertFlywheelPrior writes the flywheel's updated prior for a
// (tenant, entity_type) pair (spec.md §4.8 C12).
func (db *DB) UpsertFlywheelPrior(ctx context.Context, p FlywheelPrior) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO flywheel_priors (tenant_id, entity_type, alpha, beta, n_outcomes,
		        calibration_drift, needs_recalibration, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (tenant_id, entity_type) DO UPDATE SET
		        alpha = EXCLUDED.alpha, beta = EXCLUDED.beta, n_outcomes = EXCLUDED.n_outcomes,
		        calibration_drift = EXCLUDED.calibration_drift,
		        needs_recalibration = EXCLUDED.needs_recalibration, updated_at = EXCLUDED.updated_at`,
		p.TenantID, p.EntityType, p.Alpha, p.Beta, p.NOutcomes, p.CalibrationDrift, p.NeedsRecalibration, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert flywheel prior: %w", err)
	}
	return nil
}

// DistinctTenantEntityPairsWithRecentOutcomes returns every (tenant_id,
// entity_type) pair with at least minOutcomes outcomes recorded since the
// given time — the flywheel's per-cycle work list (spec.md §4.8: "For each
// (tenant, entity_type) with ≥ 5 recent outcomes").
func (db *DB) DistinctTenantEntityPairsWithRecentOutcomes(ctx context.Context, since time.Time, minOutcomes int) ([][2]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT tenant_id, entity_type FROM outcomes
		 WHERE recorded_at >= $1
		 GROUP BY tenant_id, entity_type
		 HAVING count(*) >= $2`,
		since, minOutcomes,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: distinct tenant/entity pairs with outcomes: %w", err)
	}
	defer rows.Close()

	var pairs [][2]string
	for rows.Next() {
		var tenantID, entityType string
		if err := rows.Scan(&tenantID, &entityType); err != nil {
			return nil, fmt.Errorf("storage: scan tenant/entity pair: %w", err)
		}
		pairs = append(pairs, [2]string{tenantID, entityType})
	}
	return pairs, rows.Err()
}
