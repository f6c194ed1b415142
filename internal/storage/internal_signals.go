package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/riskcast/core/internal/model"
)

// UpsertInternalSignal writes the normalized, per-entity signal consumed by
// the risk engine (C8). Unique on (tenant, source, signal_type, entity_type,
// entity_id); a repeated upsert for the same key refreshes the score
// instead of creating a second active row.
func (db *DB) UpsertInternalSignal(ctx context.Context, s model.InternalSignal) error {
	evidence, err := json.Marshal(s.Evidence)
	if err != nil {
		return fmt.Errorf("storage: marshal internal signal evidence: %w", err)
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO internal_signals (id, tenant_id, source, signal_type, entity_type, entity_id,
		        confidence, severity_score, evidence, active, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10,$11)
		 ON CONFLICT (tenant_id, source, signal_type, entity_type, entity_id)
		 DO UPDATE SET confidence = EXCLUDED.confidence,
		               severity_score = EXCLUDED.severity_score,
		               evidence = EXCLUDED.evidence,
		               active = EXCLUDED.active,
		               created_at = EXCLUDED.created_at`,
		s.ID, s.TenantID, s.Source, s.SignalType, s.EntityType, s.EntityID,
		s.Confidence, s.SeverityScore, evidence, s.Active, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert internal signal: %w", err)
	}
	return nil
}

// ActiveInternalSignalsForEntity returns every active internal signal for
// one (tenant, entity_type, entity_id), the input set the risk engine's
// seven-stage pipeline (C8) runs over.
func (db *DB) ActiveInternalSignalsForEntity(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) ([]model.InternalSignal, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, tenant_id, source, signal_type, entity_type, entity_id,
		        confidence, severity_score, evidence, active, created_at
		 FROM internal_signals
		 WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 AND active = true`,
		tenantID, entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: active internal signals for entity: %w", err)
	}
	defer rows.Close()
	return scanInternalSignals(rows)
}

// DistinctEntitiesBySeverity returns entity_ids among active internal
// signals at or above minSeverity, ordered by their maximum severity
// descending, limited to limit rows. Used by the decision engine's
// generate_for_company fan-out (spec.md §4.7).
func (db *DB) DistinctEntitiesBySeverity(ctx context.Context, tenantID uuid.UUID, entityType string, minSeverity float64, limit int) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT entity_id FROM internal_signals
		 WHERE tenant_id = $1 AND entity_type = $2 AND active = true
		 GROUP BY entity_id
		 HAVING max(severity_score) >= $3
		 ORDER BY max(severity_score) DESC
		 LIMIT $4`,
		tenantID, entityType, minSeverity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: distinct entities by severity: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AvgActiveSeverityForEntity returns the mean severity_score among active
// internal signals for one entity, used by the decision engine's exposure
// estimate for non-order entity types (spec.md §4.7 step 1). Returns 0 if
// the entity has no active signals.
func (db *DB) AvgActiveSeverityForEntity(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) (float64, error) {
	var avg *float64
	err := db.pool.QueryRow(ctx,
		`SELECT avg(severity_score) FROM internal_signals
		 WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3 AND active = true`,
		tenantID, entityType, entityID,
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("storage: avg active severity for entity: %w", err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type rowsIterator interface {
	Next() bool
	Err() error
	rowScanner
}

func scanInternalSignals(rows rowsIterator) ([]model.InternalSignal, error) {
	var signals []model.InternalSignal
	for rows.Next() {
		var s model.InternalSignal
		var evidence []byte
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Source, &s.SignalType, &s.EntityType, &s.EntityID,
			&s.Confidence, &s.SeverityScore, &evidence, &s.Active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan internal signal: %w", err)
		}
		if len(evidence) > 0 {
			if err := json.Unmarshal(evidence, &s.Evidence); err != nil {
				return nil, fmt.Errorf("storage: unmarshal internal signal evidence: %w", err)
			}
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}
