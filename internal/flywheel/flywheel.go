// Package flywheel implements the learning loop (C12): it recomputes each
// (tenant, entity_type) pair's Bayesian prior from recorded outcomes, so
// the risk engine's Stage D (internal/risk) gets better-calibrated priors
// the more the platform is used (spec.md §4.8 C12).
package flywheel

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

// Tuning constants (spec.md §4.8 C12).
const (
	minOutcomesForLearning = 5
	driftThreshold         = 0.15
	learningRate           = 0.3
	maxPriorShift          = 5.0
	defaultDaysBack        = 90
)

// Store is the persistence dependency.
type Store interface {
	OutcomesSince(ctx context.Context, tenantID, entityType string, since time.Time) ([]model.OutcomeRecord, error)
	UpsertFlywheelPrior(ctx context.Context, p storage.FlywheelPrior) error
	DistinctTenantEntityPairsWithRecentOutcomes(ctx context.Context, since time.Time, minOutcomes int) ([][2]string, error)
}

// Engine is the C12 service.
type Engine struct {
	store  Store
	logger zerolog.Logger
}

func New(store Store, logger zerolog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// UpdatedPrior is the result of one (tenant, entity_type) recalibration
// cycle, carrying both the updated prior and the diagnostics that explain
// it (spec.md §4.8 C12 "learning signal").
type UpdatedPrior struct {
	TenantID           string
	EntityType         string
	NOutcomes          int
	NMaterialized      int
	NNotMaterialized   int
	AvgPredictionError float64
	CalibrationDrift   float64
	PriorAlpha         float64
	PriorBeta          float64
	UpdatedAlpha       float64
	UpdatedBeta        float64
	NeedsRecalibration bool
	ComputedAt         time.Time
}

// ComputeUpdatedPrior recomputes the Bayesian prior for one (tenant,
// entity_type) pair from its last daysBack days of outcomes. Pairs with
// fewer than minOutcomesForLearning outcomes are returned unchanged —
// the flywheel refuses to recalibrate on too little data.
func (e *Engine) ComputeUpdatedPrior(ctx context.Context, tenantID, entityType string, defaultAlpha, defaultBeta float64, daysBack int) (UpdatedPrior, error) {
	if daysBack <= 0 {
		daysBack = defaultDaysBack
	}
	since := time.Now().UTC().AddDate(0, 0, -daysBack)

	outcomes, err := e.store.OutcomesSince(ctx, tenantID, entityType, since)
	if err != nil {
		return UpdatedPrior{}, fmt.Errorf("flywheel: load outcomes: %w", err)
	}

	now := time.Now().UTC()
	nOutcomes := len(outcomes)

	if nOutcomes < minOutcomesForLearning {
		return UpdatedPrior{
			TenantID:     tenantID,
			EntityType:   entityType,
			NOutcomes:    nOutcomes,
			PriorAlpha:   defaultAlpha,
			PriorBeta:    defaultBeta,
			UpdatedAlpha: defaultAlpha,
			UpdatedBeta:  defaultBeta,
			ComputedAt:   now,
		}, nil
	}

	nMaterialized := 0
	var sumPredictionError, sumPredictedRate float64
	for _, o := range outcomes {
		if o.RiskMaterialized {
			nMaterialized++
		}
		sumPredictionError += o.PredictionError
		sumPredictedRate += o.PredictedRiskScore / 100
	}
	nNotMaterialized := nOutcomes - nMaterialized

	observedRate := float64(nMaterialized) / float64(nOutcomes)
	priorRate := defaultAlpha / (defaultAlpha + defaultBeta)

	shift := (observedRate - priorRate) * learningRate * float64(nOutcomes)
	shift = math.Max(-maxPriorShift, math.Min(maxPriorShift, shift))

	updatedAlpha := math.Max(0.5, defaultAlpha+shift)
	updatedBeta := math.Max(0.5, defaultBeta-shift*0.5)

	avgPredictedRate := sumPredictedRate / float64(nOutcomes)
	drift := math.Abs(avgPredictedRate - observedRate)
	avgPredictionError := sumPredictionError / float64(nOutcomes)

	needsRecalibration := drift > driftThreshold

	result := UpdatedPrior{
		TenantID:           tenantID,
		EntityType:         entityType,
		NOutcomes:          nOutcomes,
		NMaterialized:      nMaterialized,
		NNotMaterialized:   nNotMaterialized,
		AvgPredictionError: round4(avgPredictionError),
		CalibrationDrift:   round4(drift),
		PriorAlpha:         defaultAlpha,
		PriorBeta:          defaultBeta,
		UpdatedAlpha:       round4(updatedAlpha),
		UpdatedBeta:        round4(updatedBeta),
		NeedsRecalibration: needsRecalibration,
		ComputedAt:         now,
	}

	e.logger.Info().
		Str("tenant_id", tenantID).
		Str("entity_type", entityType).
		Int("n_outcomes", nOutcomes).
		Float64("observed_rate", round4(observedRate)).
		Float64("prior_rate", round4(priorRate)).
		Float64("drift", result.CalibrationDrift).
		Bool("needs_recalibration", needsRecalibration).
		Msg("flywheel: priors updated")

	return result, nil
}

// RunCycle recomputes and persists priors for every (tenant, entity_type)
// pair that has accumulated at least minOutcomesForLearning outcomes in
// the last daysBack days (spec.md §4.8 C12 "compute_all_priors").
// Per-pair failures are logged and skipped, matching the decision
// engine's fan-out behavior in internal/decision.
func (e *Engine) RunCycle(ctx context.Context, daysBack int) ([]UpdatedPrior, error) {
	if daysBack <= 0 {
		daysBack = defaultDaysBack
	}
	since := time.Now().UTC().AddDate(0, 0, -daysBack)

	pairs, err := e.store.DistinctTenantEntityPairsWithRecentOutcomes(ctx, since, minOutcomesForLearning)
	if err != nil {
		return nil, fmt.Errorf("flywheel: list tenant/entity pairs: %w", err)
	}

	results := make([]UpdatedPrior, 0, len(pairs))
	for _, pair := range pairs {
		tenantID, entityType := pair[0], pair[1]

		updated, err := e.ComputeUpdatedPrior(ctx, tenantID, entityType, defaultAlpha, defaultBeta, daysBack)
		if err != nil {
			e.logger.Error().Err(err).Str("tenant_id", tenantID).Str("entity_type", entityType).Msg("flywheel: recalibration failed")
			continue
		}

		if err := e.store.UpsertFlywheelPrior(ctx, storage.FlywheelPrior{
			TenantID:           tenantID,
			EntityType:         entityType,
			Alpha:              updated.UpdatedAlpha,
			Beta:               updated.UpdatedBeta,
			NOutcomes:          updated.NOutcomes,
			CalibrationDrift:   updated.CalibrationDrift,
			NeedsRecalibration: updated.NeedsRecalibration,
		}); err != nil {
			e.logger.Error().Err(err).Str("tenant_id", tenantID).Str("entity_type", entityType).Msg("flywheel: persist updated prior failed")
			continue
		}

		results = append(results, updated)
	}

	return results, nil
}

// defaultAlpha and defaultBeta mirror the risk engine's Stage D prior
// before any flywheel cycle has run (spec.md §4.6 Stage D); RunCycle uses
// them as the baseline every recalibration shifts away from.
const (
	defaultAlpha = 2.0
	defaultBeta  = 5.0
)

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
