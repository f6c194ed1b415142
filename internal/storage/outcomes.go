package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/riskcast/core/internal/model"
)

// InsertOutcome writes an immutable outcome row. Uniqueness is one outcome
// per decision_id (spec.md §3); a second POST for the same decision_id
// returns ErrConflict so the handler can surface the 409 the spec requires.
func (db *DB) InsertOutcome(ctx context.Context, o model.OutcomeRecord) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO outcomes (outcome_id, decision_id, tenant_id, entity_type, entity_id,
		        predicted_risk_score, predicted_confidence, predicted_loss_usd, predicted_action,
		        outcome_type, actual_loss_usd, actual_delay_days, action_taken,
		        action_followed_recommendation, risk_materialized, prediction_error, was_accurate,
		        value_generated_usd, recorded_at, recorded_by, notes)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		o.OutcomeID, o.DecisionID, o.TenantID, o.EntityType, o.EntityID,
		o.PredictedRiskScore, o.PredictedConfidence, o.PredictedLossUSD, o.PredictedAction,
		o.OutcomeType, o.ActualLossUSD, o.ActualDelayDays, o.ActionTaken,
		o.ActionFollowedRecommendation, o.RiskMaterialized, o.PredictionError, o.WasAccurate,
		o.ValueGeneratedUSD, o.RecordedAt, o.RecordedBy, o.Notes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("storage: insert outcome: %w", err)
	}
	return nil
}

// GetOutcomeByDecisionID fetches the outcome for decision_id, used both by
// the conflict-check path (to surface the prior outcome in a 409) and by
// the tracer (C7 trace_decision).
func (db *DB) GetOutcomeByDecisionID(ctx context.Context, tenantID, decisionID string) (model.OutcomeRecord, error) {
	o, err := db.scanOneOutcome(ctx,
		`SELECT outcome_id, decision_id, tenant_id, entity_type, entity_id, predicted_risk_score,
		        predicted_confidence, predicted_loss_usd, predicted_action, outcome_type,
		        actual_loss_usd, actual_delay_days, action_taken, action_followed_recommendation,
		        risk_materialized, prediction_error, was_accurate, value_generated_usd,
		        recorded_at, recorded_by, notes
		 FROM outcomes WHERE tenant_id = $1 AND decision_id = $2`,
		tenantID, decisionID,
	)
	return o, err
}

// OutcomesSince returns every outcome for tenantID (optionally filtered by
// entityType) recorded since the given time, the input to the accuracy
// (C11) and ROI reports.
func (db *DB) OutcomesSince(ctx context.Context, tenantID string, entityType string, since time.Time) ([]model.OutcomeRecord, error) {
	var rows pgx.Rows
	var err error
	if entityType == "" {
		rows, err = db.pool.Query(ctx,
			`SELECT outcome_id, decision_id, tenant_id, entity_type, entity_id, predicted_risk_score,
			        predicted_confidence, predicted_loss_usd, predicted_action, outcome_type,
			        actual_loss_usd, actual_delay_days, action_taken, action_followed_recommendation,
			        risk_materialized, prediction_error, was_accurate, value_generated_usd,
			        recorded_at, recorded_by, notes
			 FROM outcomes WHERE tenant_id = $1 AND recorded_at >= $2
			 ORDER BY recorded_at ASC`,
			tenantID, since,
		)
	} else {
		rows, err = db.pool.Query(ctx,
			`SELECT outcome_id, decision_id, tenant_id, entity_type, entity_id, predicted_risk_score,
			        predicted_confidence, predicted_loss_usd, predicted_action, outcome_type,
			        actual_loss_usd, actual_delay_days, action_taken, action_followed_recommendation,
			        risk_materialized, prediction_error, was_accurate, value_generated_usd,
			        recorded_at, recorded_by, notes
			 FROM outcomes WHERE tenant_id = $1 AND entity_type = $2 AND recorded_at >= $3
			 ORDER BY recorded_at ASC`,
			tenantID, entityType, since,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: outcomes since: %w", err)
	}
	defer rows.Close()

	var outcomes []model.OutcomeRecord
	for rows.Next() {
		o, err := scanOutcomeRow(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (db *DB) scanOneOutcome(ctx context.Context, sql string, args ...any) (model.OutcomeRecord, error) {
	row := db.pool.QueryRow(ctx, sql, args...)
	o, err := scanOutcomeRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.OutcomeRecord{}, ErrNotFound
		}
		return model.OutcomeRecord{}, err
	}
	return o, nil
}

func scanOutcomeRow(row rowScanner) (model.OutcomeRecord, error) {
	var o model.OutcomeRecord
	err := row.Scan(&o.OutcomeID, &o.DecisionID, &o.TenantID, &o.EntityType, &o.EntityID,
		&o.PredictedRiskScore, &o.PredictedConfidence, &o.PredictedLossUSD, &o.PredictedAction,
		&o.OutcomeType, &o.ActualLossUSD, &o.ActualDelayDays, &o.ActionTaken,
		&o.ActionFollowedRecommendation, &o.RiskMaterialized, &o.PredictionError, &o.WasAccurate,
		&o.ValueGeneratedUSD, &o.RecordedAt, &o.RecordedBy, &o.Notes)
	if err != nil {
		return model.OutcomeRecord{}, fmt.Errorf("storage: scan outcome: %w", err)
	}
	return o, nil
}
