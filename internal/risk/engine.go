// Package risk implements the seven-stage risk engine (C8): temporal
// decay, correlation discount, weighted confidence fusion, a Bayesian
// Beta-Binomial posterior, an ensemble of the two, a per-factor
// decomposition, and an advisory calibration pass. Every stage runs in
// fixed order on a fresh copy of an entity's active internal signals
// (spec.md §4.6).
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

// Store is the persistence surface the engine reads.
type Store interface {
	ActiveInternalSignalsForEntity(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) ([]model.InternalSignal, error)
	GetFlywheelPrior(ctx context.Context, tenantID, entityType string) (storage.FlywheelPrior, error)
	GetTenantByID(ctx context.Context, id uuid.UUID) (model.Tenant, error)
}

// Calibrator post-processes an ensemble probability into a calibrated one
// (Stage G). The engine holds one Calibrator for every tenant; a nil one
// is replaced by the identity calibrator.
type Calibrator interface {
	Calibrate(rawProbability float64) float64
}

// IdentityCalibrator is the default: no calibration has been fitted yet.
type IdentityCalibrator struct{}

func (IdentityCalibrator) Calibrate(p float64) float64 { return p }

// Engine is the C8 service.
type Engine struct {
	store      Store
	calibrator Calibrator
	logger     zerolog.Logger
}

func New(store Store, calibrator Calibrator, logger zerolog.Logger) *Engine {
	if calibrator == nil {
		calibrator = IdentityCalibrator{}
	}
	return &Engine{store: store, calibrator: calibrator, logger: logger}
}

// Assess runs the full seven-stage pipeline for one entity (spec.md §4.6).
// It never errors on empty input — a zero-risk assessment is returned
// instead (the B1 boundary case).
func (e *Engine) Assess(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) (model.Assessment, error) {
	signals, err := e.store.ActiveInternalSignalsForEntity(ctx, tenantID, entityType, entityID)
	if err != nil {
		return model.Assessment{}, fmt.Errorf("risk: load active signals: %w", err)
	}
	if len(signals) == 0 {
		return model.ZeroAssessment(tenantID.String(), entityType, entityID), nil
	}

	prior, err := e.store.GetFlywheelPrior(ctx, tenantID.String(), entityType)
	if err != nil {
		return model.Assessment{}, fmt.Errorf("risk: load flywheel prior: %w", err)
	}

	tenant, err := e.store.GetTenantByID(ctx, tenantID)
	if err != nil {
		return model.Assessment{}, fmt.Errorf("risk: load tenant risk config: %w", err)
	}
	if tenant.RiskConfig.PriorAlpha != nil {
		prior.Alpha = *tenant.RiskConfig.PriorAlpha
	}
	if tenant.RiskConfig.PriorBeta != nil {
		prior.Beta = *tenant.RiskConfig.PriorBeta
	}

	return e.assess(tenantID.String(), entityType, entityID, signals, prior, tenant.RiskConfig.FusionWeights, time.Now().UTC()), nil
}

// assess is the pure core of Assess, separated out so tests can drive it
// with a fixed clock and a hand-built signal set.
func (e *Engine) assess(tenantID, entityType, entityID string, signals []model.InternalSignal, prior storage.FlywheelPrior, weightOverrides map[string]float64, now time.Time) model.Assessment {
	decayed, avgAgeHours, freshness := applyTemporalDecay(signals, now)
	if len(decayed) == 0 {
		a := model.ZeroAssessment(tenantID, entityType, entityID)
		a.DataFreshness = model.FreshnessStale
		a.AlgorithmTrace["expired_signals"] = len(signals)
		return a
	}

	nCorrelatedPairs := applyCorrelationDiscount(decayed)

	weights := mergeTenantWeights(weightOverrides)
	fusion := fuseWithConfidence(decayed, weights)

	bayes := bayesianPosterior(decayed, prior.Alpha, prior.Beta)

	ensemble := ensembleCombine(fusion, bayes)

	factors, primaryDriver := decompose(decayed, weights)
	summary := summaryBand(ensemble.score)

	calibratedProbability := e.calibrator.Calibrate(ensemble.score / 100)

	severity := model.SeverityFromScore(ensemble.score)

	return model.Assessment{
		TenantID:         tenantID,
		EntityType:       entityType,
		EntityID:         entityID,
		RiskScore:        ensemble.score,
		Confidence:       ensemble.confidence,
		CILower:          ensemble.ciLower,
		CIUpper:          ensemble.ciUpper,
		Severity:         severity,
		IsReliable:       bayes.reliable,
		NeedsHumanReview: ensemble.disagreementLabel == "high",
		NSignals:         len(signals),
		NActiveSignals:   len(decayed),
		DataFreshness:    freshness,
		PrimaryDriver:    primaryDriver,
		Factors:          factors,
		Summary:          summary,
		AlgorithmTrace: map[string]any{
			"avg_age_hours":               avgAgeHours,
			"temporal_freshness":          string(freshness),
			"n_correlated_pairs":          nCorrelatedPairs,
			"fusion_score":                fusion.score,
			"fusion_confidence":           fusion.confidence,
			"fusion_ci_lower":             fusion.ciLower,
			"fusion_ci_upper":             fusion.ciUpper,
			"bayesian_probability":        bayes.mean,
			"bayesian_alpha":              bayes.alpha,
			"bayesian_beta":               bayes.beta,
			"ensemble_disagreement":       ensemble.disagreement,
			"ensemble_disagreement_label": ensemble.disagreementLabel,
			"calibrated_probability":      calibratedProbability,
			"n_signals":                   len(signals),
			"n_active_signals":            len(decayed),
		},
		GeneratedAt: now,
	}
}

func summaryBand(ensembleScore float64) string {
	switch {
	case ensembleScore >= 70:
		return "HIGH RISK"
	case ensembleScore >= 40:
		return "MODERATE"
	default:
		return "LOW"
	}
}
