package risk

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

func defaultPrior() storage.FlywheelPrior {
	return storage.FlywheelPrior{Alpha: 2.0, Beta: 5.0}
}

func internalSignal(entityID, signalType string, confidence, severity float64, age time.Duration, now time.Time) model.InternalSignal {
	return model.InternalSignal{
		ID:            uuid.New(),
		EntityType:    model.EntityOrder,
		EntityID:      entityID,
		SignalType:    signalType,
		Confidence:    confidence,
		SeverityScore: severity,
		Active:        true,
		CreatedAt:     now.Add(-age),
	}
}

func newEngine() *Engine {
	return New(nil, nil, zerolog.Nop())
}

func TestAssess_EmptySignalSetIsZeroAssessment(t *testing.T) {
	e := newEngine()
	a := e.assess("tenant-1", model.EntityOrder, "ord-1", nil, defaultPrior(), nil, time.Now().UTC())

	assert.Equal(t, 0.0, a.RiskScore)
	assert.False(t, a.IsReliable)
	assert.Equal(t, model.FreshnessStale, a.DataFreshness)
	assert.Equal(t, "none", a.PrimaryDriver)
}

func TestAssess_SingleFreshHighSeveritySignal(t *testing.T) {
	now := time.Now().UTC()
	signals := []model.InternalSignal{
		internalSignal("ord-1", "payment_risk", 0.9, 85, time.Hour, now),
	}

	e := newEngine()
	a := e.assess("tenant-1", model.EntityOrder, "ord-1", signals, defaultPrior(), nil, now)

	assert.Equal(t, model.FreshnessFresh, a.DataFreshness)
	assert.Equal(t, 1, a.NActiveSignals)
	assert.Greater(t, a.RiskScore, 50.0)
	assert.Equal(t, "Payment Risk", a.PrimaryDriver)
	assert.NotEmpty(t, a.Factors)
}

func TestAssess_ExpiredSignalsExcludedByDecay(t *testing.T) {
	now := time.Now().UTC()
	// weather_alert has a 24h half-life; 30 days old decays well under the
	// 0.01 cutoff and should be dropped entirely.
	signals := []model.InternalSignal{
		internalSignal("ord-1", "weather_alert", 0.7, 60, 30*24*time.Hour, now),
	}

	e := newEngine()
	a := e.assess("tenant-1", model.EntityOrder, "ord-1", signals, defaultPrior(), nil, now)

	assert.Equal(t, 0, a.NActiveSignals)
	assert.Equal(t, model.FreshnessStale, a.DataFreshness)
}

func TestAssess_CorrelatedSignalsDiscountTheWeaker(t *testing.T) {
	now := time.Now().UTC()
	// Both signals belong to the same entity, so Stage B's per-entity
	// Jaccard over {payment_risk, route_disruption} is trivially 1.0 — the
	// pair is correlated and the weaker (lower raw score) side is
	// discounted.
	signals := []model.InternalSignal{
		internalSignal("ord-1", "payment_risk", 0.9, 80, time.Hour, now),
		internalSignal("ord-1", "route_disruption", 0.9, 60, time.Hour, now),
	}

	e := newEngine()
	a := e.assess("tenant-1", model.EntityOrder, "ord-1", signals, defaultPrior(), nil, now)

	var routeFactor model.RiskFactor
	for _, f := range a.Factors {
		if f.FactorName == "route_disruption" {
			routeFactor = f
		}
	}
	assert.Less(t, routeFactor.Score, 60.0)
}

func TestAssess_DistinctEntitiesAreNeverCorrelated(t *testing.T) {
	// Stage B only runs across the signals fed to a single Assess call,
	// which all share one entity_id by construction — applyCorrelationDiscount
	// is exercised directly here with the contrived case of differing
	// entity_ids to confirm it correctly finds no overlap.
	now := time.Now().UTC()
	decayed, _, _ := applyTemporalDecay([]model.InternalSignal{
		internalSignal("ord-1", "payment_risk", 0.9, 80, time.Hour, now),
		internalSignal("ord-2", "route_disruption", 0.9, 60, time.Hour, now),
	}, now)
	applyCorrelationDiscount(decayed)

	for _, s := range decayed {
		if s.signalType == "route_disruption" {
			assert.InDelta(t, 60, s.decayedScore, 1, "no shared entity means no correlation discount")
		}
	}
}

func TestAssess_ManySignalsProduceAReliableBayesianEstimate(t *testing.T) {
	now := time.Now().UTC()
	var signals []model.InternalSignal
	for i := 0; i < 4; i++ {
		signals = append(signals, internalSignal("ord-1", "payment_risk", 0.8, 90, time.Hour, now))
	}
	for i := 0; i < 3; i++ {
		signals = append(signals, internalSignal("ord-1", "market_volatility", 0.6, 10, time.Hour, now))
	}

	e := newEngine()
	a := e.assess("tenant-1", model.EntityOrder, "ord-1", signals, defaultPrior(), nil, now)

	assert.True(t, a.IsReliable, "7 signals plus a Beta(2,5) prior clears the >=5 reliability floor")
	assert.Equal(t, 7, a.NActiveSignals)
}

func TestAssess_AlgorithmTraceCarriesSpecNamedKeys(t *testing.T) {
	// S3: the assessment's algorithm_trace must contain fusion_score,
	// bayesian_probability, ensemble_disagreement, temporal_freshness and
	// n_correlated_pairs (spec.md S3), not the renamed/missing keys this
	// once shipped with.
	now := time.Now().UTC()
	signals := []model.InternalSignal{
		internalSignal("ord-42", "payment_risk", 0.85, 72, 6*time.Hour, now),
		internalSignal("ord-42", "route_disruption", 0.70, 55, 48*time.Hour, now),
		internalSignal("ord-42", "order_risk_composite", 0.60, 48, 120*time.Hour, now),
	}

	e := newEngine()
	a := e.assess("tenant-1", model.EntityOrder, "ord-42", signals, defaultPrior(), nil, now)

	for _, key := range []string{"fusion_score", "bayesian_probability", "ensemble_disagreement", "temporal_freshness", "n_correlated_pairs"} {
		assert.Contains(t, a.AlgorithmTrace, key, "algorithm_trace missing spec-named key %q", key)
	}
	assert.Equal(t, 3, a.NSignals)
	assert.GreaterOrEqual(t, a.RiskScore, 40.0)
	assert.LessOrEqual(t, a.RiskScore, 80.0)
	assert.Equal(t, "Payment Risk", a.PrimaryDriver)
}

func TestEnsembleCombine_WeightsByConfidenceNotJustModel(t *testing.T) {
	// A highly confident fusion score paired with a low-confidence
	// Bayesian estimate should pull the ensemble score toward fusion, not
	// sit at the unweighted midpoint.
	fusion := fusionResult{score: 80, confidence: 0.9}
	bayes := bayesResult{mean: 0.2, ciLower: 0.0, ciUpper: 0.9} // bayesConfidence = 1-0.9 = 0.1

	result := ensembleCombine(fusion, bayes)

	midpoint := (80.0 + 20.0) / 2
	assert.Greater(t, result.score, midpoint, "confidence-weighted ensemble should favor the more confident model")
}

func TestEnsembleCombine_DisagreementIsSampleStdev(t *testing.T) {
	fusion := fusionResult{score: 80, confidence: 0.5}
	bayes := bayesResult{mean: 0.2, ciLower: 0.4, ciUpper: 0.6} // bayesScore = 20, bayesConfidence = 0.5

	result := ensembleCombine(fusion, bayes)

	expected := 60.0 / math.Sqrt2 // |80-20| / sqrt(2)
	assert.InDelta(t, expected, result.disagreement, 0.01)
}

func TestAssess_TenantWeightOverridesShiftPrimaryDriver(t *testing.T) {
	now := time.Now().UTC()
	signals := []model.InternalSignal{
		internalSignal("ord-1", "payment_risk", 0.9, 40, time.Hour, now),
		internalSignal("ord-1", "market_volatility", 0.9, 95, time.Hour, now),
	}
	overrides := map[string]float64{"market_volatility": 0.9, "payment_risk": 0.1}

	e := newEngine()
	a := e.assess("tenant-1", model.EntityOrder, "ord-1", signals, defaultPrior(), overrides, now)

	assert.Equal(t, "Market Volatility", a.PrimaryDriver)
}
