// Package outcome implements outcome recording (C10) and the accuracy and
// ROI reports computed over recorded outcomes (C11). Every outcome is
// immutable once written: one record per decision_id (spec.md §3, §4.8).
package outcome

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/model"
)

// accuracyThreshold is the prediction-error ceiling below which a
// recorded outcome counts as "accurate" (spec.md §4.8 C10).
const accuracyThreshold = 0.15

// PredictedSnapshot is the subset of a generated Decision that gets frozen
// at outcome-recording time, so accuracy/ROI metrics always compare against
// what was actually predicted rather than a re-derived assessment.
type PredictedSnapshot struct {
	RiskScore  float64
	Confidence float64
	LossUSD    float64
	Action     model.ActionType
}

// Store is the persistence dependency.
type Store interface {
	InsertOutcome(ctx context.Context, o model.OutcomeRecord) error
	GetOutcomeByDecisionID(ctx context.Context, tenantID, decisionID string) (model.OutcomeRecord, error)
	OutcomesSince(ctx context.Context, tenantID, entityType string, since time.Time) ([]model.OutcomeRecord, error)
}

// Recorder is the C10 service.
type Recorder struct {
	store  Store
	logger zerolog.Logger
}

func New(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

func newOutcomeID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "out_" + hex.EncodeToString(b[:])
}

// Record writes an immutable outcome row, deriving risk_materialized,
// prediction_error, was_accurate, and value_generated from the request and
// the decision's frozen prediction (spec.md §4.8 C10). A second call for a
// decision_id that already has an outcome returns storage.ErrConflict
// unchanged, so the caller can surface the 409 the spec requires.
func (r *Recorder) Record(ctx context.Context, tenantID, entityType, entityID string, req model.OutcomeRecordRequest, predicted PredictedSnapshot) (model.OutcomeRecord, error) {
	riskMaterialized := req.OutcomeType.RiskMaterialized()

	predictionError := computePredictionError(predicted.RiskScore, riskMaterialized, predicted.LossUSD, req.ActualLossUSD)
	wasAccurate := predictionError <= accuracyThreshold
	valueGenerated := computeValueGenerated(predicted.LossUSD, req.ActualLossUSD, req.ActionFollowedRecommendation, riskMaterialized)

	o := model.OutcomeRecord{
		OutcomeID:                    newOutcomeID(),
		DecisionID:                   req.DecisionID,
		TenantID:                     tenantID,
		EntityType:                   entityType,
		EntityID:                     entityID,
		PredictedRiskScore:           round2(predicted.RiskScore),
		PredictedConfidence:          round4(predicted.Confidence),
		PredictedLossUSD:             round2(predicted.LossUSD),
		PredictedAction:              predicted.Action,
		OutcomeType:                  req.OutcomeType,
		ActualLossUSD:                round2(req.ActualLossUSD),
		ActualDelayDays:              round2(req.ActualDelayDays),
		ActionTaken:                  req.ActionTaken,
		ActionFollowedRecommendation: req.ActionFollowedRecommendation,
		RiskMaterialized:             riskMaterialized,
		PredictionError:              round4(predictionError),
		WasAccurate:                  wasAccurate,
		ValueGeneratedUSD:            round2(valueGenerated),
		RecordedAt:                   time.Now().UTC(),
		Notes:                        req.Notes,
	}

	if err := r.store.InsertOutcome(ctx, o); err != nil {
		return model.OutcomeRecord{}, err
	}

	r.logger.Info().
		Str("outcome_id", o.OutcomeID).
		Str("decision_id", o.DecisionID).
		Str("outcome_type", string(o.OutcomeType)).
		Bool("risk_materialized", riskMaterialized).
		Float64("prediction_error", o.PredictionError).
		Bool("was_accurate", wasAccurate).
		Msg("outcome: recorded")

	return o, nil
}

// Export returns every outcome recorded for tenantID since the given time
// (optionally filtered by entityType), for the NDJSON export endpoint
// (SPEC_FULL.md §11 "Retention/export jobs").
func (r *Recorder) Export(ctx context.Context, tenantID, entityType string, since time.Time) ([]model.OutcomeRecord, error) {
	return r.store.OutcomesSince(ctx, tenantID, entityType, since)
}

// computePredictionError combines a binary direction error (did the
// predicted score land on the right side of 50?) with a normalized loss
// magnitude error, weighted 60/40 (spec.md §4.8 C10).
func computePredictionError(predictedScore float64, riskMaterialized bool, predictedLoss, actualLoss float64) float64 {
	predictedBinary := 0.0
	if predictedScore >= 50 {
		predictedBinary = 1.0
	}
	actualBinary := 0.0
	if riskMaterialized {
		actualBinary = 1.0
	}
	directionError := math.Abs(predictedBinary - actualBinary)

	maxLoss := math.Max(predictedLoss, math.Max(actualLoss, 1.0))
	magnitudeError := math.Abs(predictedLoss-actualLoss) / maxLoss

	return 0.6*directionError + 0.4*magnitudeError
}

// computeValueGenerated is the signed USD value the decision produced:
// the full predicted loss when the recommended action was followed and
// the risk never materialized; the loss actually avoided when it did;
// the negative of the actual loss when the action was ignored and the
// risk materialized anyway; zero when it was ignored and nothing
// happened (spec.md §4.8 C10).
func computeValueGenerated(predictedLoss, actualLoss float64, actionFollowed, riskMaterialized bool) float64 {
	switch {
	case actionFollowed && riskMaterialized:
		return math.Max(predictedLoss-actualLoss, 0)
	case actionFollowed && !riskMaterialized:
		return predictedLoss
	case !actionFollowed && riskMaterialized:
		return -actualLoss
	default:
		return 0
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
