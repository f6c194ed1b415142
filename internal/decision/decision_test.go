package decision

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcast/core/internal/model"
)

type fakeRiskEngine struct {
	assessment model.Assessment
	err        error
	failFor    string
}

func (f fakeRiskEngine) Assess(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) (model.Assessment, error) {
	if f.failFor != "" && entityID == f.failFor {
		return model.Assessment{}, assert.AnError
	}
	return f.assessment, f.err
}

type fakeStore struct {
	avgSeverity float64
	entityIDs   []string
}

func (f fakeStore) AvgActiveSeverityForEntity(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) (float64, error) {
	return f.avgSeverity, nil
}

func (f fakeStore) DistinctEntitiesBySeverity(ctx context.Context, tenantID uuid.UUID, entityType string, minSeverity float64, limit int) ([]string, error) {
	return f.entityIDs, nil
}

func lowRiskAssessment() model.Assessment {
	return model.Assessment{
		TenantID:       "tenant-1",
		EntityType:     model.EntityOrder,
		EntityID:       "ord-1",
		RiskScore:      10,
		Confidence:     0.9,
		Severity:       model.SeverityLow,
		IsReliable:     true,
		NSignals:       3,
		NActiveSignals: 3,
		DataFreshness:  model.FreshnessFresh,
		PrimaryDriver:  "Payment Risk",
		Summary:        "LOW",
		AlgorithmTrace: map[string]any{"ensemble_disagreement": 2.0},
	}
}

func highRiskAssessment() model.Assessment {
	return model.Assessment{
		TenantID:       "tenant-1",
		EntityType:     model.EntityOrder,
		EntityID:       "ord-2",
		RiskScore:      85,
		Confidence:     0.4,
		Severity:       model.SeverityCritical,
		IsReliable:     false,
		NSignals:       2,
		NActiveSignals: 2,
		DataFreshness:  model.FreshnessAging,
		PrimaryDriver:  "Route Disruption",
		Summary:        "HIGH RISK",
		AlgorithmTrace: map[string]any{"ensemble_disagreement": 30.0},
	}
}

func TestGenerate_LowRiskRecommendsMonitorOnly(t *testing.T) {
	exposure := 50_000.0
	e := New(fakeRiskEngine{assessment: lowRiskAssessment()}, fakeStore{}, nil, zerolog.Nop())

	d, err := e.Generate(context.Background(), uuid.New(), model.EntityOrder, "ord-1", &exposure)
	require.NoError(t, err)

	assert.Equal(t, model.ActionMonitor, d.RecommendedAction.Type)
	assert.Equal(t, model.DecisionRecommended, d.Status)
	assert.False(t, d.NeedsHumanReview)
	assert.Empty(t, d.AlternativeActions) // score 10 qualifies for MONITOR only
}

func TestGenerate_HighRiskEscalates(t *testing.T) {
	exposure := 300_000.0
	e := New(fakeRiskEngine{assessment: highRiskAssessment()}, fakeStore{}, nil, zerolog.Nop())

	d, err := e.Generate(context.Background(), uuid.New(), model.EntityOrder, "ord-2", &exposure)
	require.NoError(t, err)

	assert.True(t, d.NeedsHumanReview)
	assert.Equal(t, model.DecisionEscalated, d.Status)
	require.NotNil(t, d.EscalationReason)

	triggeredRules := map[string]bool{}
	for _, r := range d.EscalationRules {
		triggeredRules[r.RuleName] = r.Triggered
	}
	assert.True(t, triggeredRules["high_exposure"])
	assert.True(t, triggeredRules["low_confidence"])
	assert.True(t, triggeredRules["critical_risk_score"])
	assert.True(t, triggeredRules["model_disagreement"])
	assert.True(t, triggeredRules["insufficient_data"])
}

func TestGenerate_ActionSetGrowsWithScore(t *testing.T) {
	a := lowRiskAssessment()
	a.RiskScore = 65
	a.IsReliable = true
	a.Confidence = 0.9
	exposure := 100_000.0
	e := New(fakeRiskEngine{assessment: a}, fakeStore{}, nil, zerolog.Nop())

	d, err := e.Generate(context.Background(), uuid.New(), model.EntityOrder, "ord-3", &exposure)
	require.NoError(t, err)

	types := map[model.ActionType]bool{d.RecommendedAction.Type: true}
	for _, alt := range d.AlternativeActions {
		types[alt.Type] = true
	}
	assert.True(t, types[model.ActionMonitor])
	assert.True(t, types[model.ActionInsure])
	assert.True(t, types[model.ActionReroute])
	assert.True(t, types[model.ActionHedge])
	assert.True(t, types[model.ActionDelay])
	assert.True(t, types[model.ActionSplit])
	assert.False(t, types[model.ActionEscalate]) // score 65 < 70 and reliable
}

func TestGenerate_ExposureEstimatedFromAvgSeverityWhenAbsent(t *testing.T) {
	e := New(fakeRiskEngine{assessment: lowRiskAssessment()}, fakeStore{avgSeverity: 40}, nil, zerolog.Nop())

	d, err := e.Generate(context.Background(), uuid.New(), model.EntityOrder, "ord-1", nil)
	require.NoError(t, err)

	assert.Equal(t, round2(40*1000*0.1), d.InactionCost)
}

func TestGenerateForEntities_SkipsFailuresAndContinues(t *testing.T) {
	store := fakeStore{entityIDs: []string{"ord-1", "ord-bad", "ord-2"}}
	e := New(fakeRiskEngine{assessment: lowRiskAssessment(), failFor: "ord-bad"}, store, nil, zerolog.Nop())

	decisions, err := e.GenerateForEntities(context.Background(), uuid.New(), model.EntityOrder, 30.0, 10)
	require.NoError(t, err)
	assert.Len(t, decisions, 2)
}

func TestCounterfactuals_CascadeOnlyAboveThreshold(t *testing.T) {
	low := generateCounterfactuals(lowRiskAssessment(), 10_000)
	assert.Len(t, low, 3)

	high := generateCounterfactuals(highRiskAssessment(), 10_000)
	assert.Len(t, high, 4)
	assert.Equal(t, "Cascade Failure", high[3].Name)
}
