// Package decision implements the decision engine (C9): it turns a risk
// assessment from C8 into a fully-auditable set of costed actions, a
// tradeoff ranking, escalation rules, and counterfactual scenarios
// (spec.md §4.7).
package decision

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/model"
)

// defaultDeliveryDays is the assumed shipment delivery window used to cost
// REROUTE and DELAY actions when the caller has no better estimate.
const defaultDeliveryDays = 14.0

// RiskEngine is the C8 dependency.
type RiskEngine interface {
	Assess(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) (model.Assessment, error)
}

// Store is the persistence surface the engine reads to estimate exposure
// and to fan out over at-risk entities.
type Store interface {
	AvgActiveSeverityForEntity(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) (float64, error)
	DistinctEntitiesBySeverity(ctx context.Context, tenantID uuid.UUID, entityType string, minSeverity float64, limit int) ([]string, error)
}

// AlertHook fires best-effort whenever a decision is generated. Failures
// are logged and swallowed — the decision is returned to the caller either
// way (spec.md §4.7 step 6).
type AlertHook func(ctx context.Context, tenantID uuid.UUID, d model.Decision) error

// Engine is the C9 service.
type Engine struct {
	risk      RiskEngine
	store     Store
	alertHook AlertHook
	logger    zerolog.Logger
}

func New(risk RiskEngine, store Store, alertHook AlertHook, logger zerolog.Logger) *Engine {
	return &Engine{risk: risk, store: store, alertHook: alertHook, logger: logger}
}

func newDecisionID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "dec_" + hex.EncodeToString(b[:])
}

// Generate runs the full pipeline of spec.md §4.7 for one entity.
// exposureUSD is a pointer so callers can distinguish "estimate it" (nil)
// from an explicit zero.
func (e *Engine) Generate(ctx context.Context, tenantID uuid.UUID, entityType, entityID string, exposureUSD *float64) (model.Decision, error) {
	assessment, err := e.risk.Assess(ctx, tenantID, entityType, entityID)
	if err != nil {
		return model.Decision{}, fmt.Errorf("decision: assess risk: %w", err)
	}

	exposure, err := e.resolveExposure(ctx, tenantID, entityType, entityID, exposureUSD)
	if err != nil {
		return model.Decision{}, fmt.Errorf("decision: estimate exposure: %w", err)
	}

	actions := generateActions(assessment, exposure, defaultDeliveryDays)

	inactionCost := exposure * (assessment.RiskScore / 100)
	tradeoff := analyzeTradeoffs(actions, inactionCost)

	needsEscalation, escRules, escReason := evaluateEscalation(assessment, exposure)

	counterfactuals := generateCounterfactuals(assessment, exposure)

	now := time.Now().UTC()
	recommended, alternatives := splitRecommended(actions, tradeoff.RecommendedAction)

	status := model.DecisionRecommended
	var escalationReason *string
	if needsEscalation {
		status = model.DecisionEscalated
		escalationReason = &escReason
	}

	d := model.Decision{
		DecisionID:         newDecisionID(),
		TenantID:           tenantID.String(),
		EntityType:         entityType,
		EntityID:           entityID,
		Status:             status,
		Severity:           assessment.Severity,
		SituationSummary:   assessment.Summary,
		RiskScore:          assessment.RiskScore,
		Confidence:         assessment.Confidence,
		CILower:            assessment.CILower,
		CIUpper:            assessment.CIUpper,
		RecommendedAction:  recommended,
		AlternativeActions: alternatives,
		Tradeoff:           tradeoff,
		InactionCost:       round2(inactionCost),
		InactionRisk: fmt.Sprintf(
			"If no action is taken, estimated loss is $%.0f with %.0f%% probability.",
			inactionCost, assessment.RiskScore,
		),
		Counterfactuals:  counterfactuals,
		NeedsHumanReview: needsEscalation,
		EscalationRules:  escRules,
		EscalationReason: escalationReason,
		AlgorithmTrace:   assessment.AlgorithmTrace,
		DataSources: []string{
			fmt.Sprintf("signals:%d", assessment.NSignals),
			fmt.Sprintf("active:%d", assessment.NActiveSignals),
			fmt.Sprintf("freshness:%s", assessment.DataFreshness),
		},
		GeneratedAt:   now,
		ValidUntil:    now.Add(model.DecisionValidity),
		NSignalsUsed:  assessment.NSignals,
		IsReliable:    assessment.IsReliable,
		DataFreshness: assessment.DataFreshness,
	}

	e.logger.Info().
		Str("decision_id", d.DecisionID).
		Str("entity", entityType+"/"+entityID).
		Float64("risk_score", assessment.RiskScore).
		Str("recommended", string(d.RecommendedAction.Type)).
		Bool("escalated", needsEscalation).
		Msg("decision: generated")

	if e.alertHook != nil {
		if herr := e.alertHook(ctx, tenantID, d); herr != nil {
			e.logger.Warn().Err(herr).Str("decision_id", d.DecisionID).Msg("decision: alert hook failed")
		}
	}

	return d, nil
}

// GenerateForEntities finds entities with active signals at or above
// minSeverity, ranked by their max severity, and generates up to limit
// decisions. Per-entity failures are logged and skipped rather than
// aborting the whole fan-out (spec.md §4.7 "generate_for_company").
func (e *Engine) GenerateForEntities(ctx context.Context, tenantID uuid.UUID, entityType string, minSeverity float64, limit int) ([]model.Decision, error) {
	entityIDs, err := e.store.DistinctEntitiesBySeverity(ctx, tenantID, entityType, minSeverity, limit)
	if err != nil {
		return nil, fmt.Errorf("decision: list at-risk entities: %w", err)
	}

	decisions := make([]model.Decision, 0, len(entityIDs))
	for _, entityID := range entityIDs {
		d, err := e.Generate(ctx, tenantID, entityType, entityID, nil)
		if err != nil {
			e.logger.Error().Err(err).Str("entity_id", entityID).Msg("decision: generation failed")
			continue
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// resolveExposure estimates financial exposure when the caller hasn't
// supplied one (spec.md §4.7 step 1). This deployment has no separate
// orders table carrying total_value, so every entity type falls back to
// avg(severity_score) * 1000 — see DESIGN.md.
func (e *Engine) resolveExposure(ctx context.Context, tenantID uuid.UUID, entityType, entityID string, exposureUSD *float64) (float64, error) {
	if exposureUSD != nil {
		return *exposureUSD, nil
	}
	avgSeverity, err := e.store.AvgActiveSeverityForEntity(ctx, tenantID, entityType, entityID)
	if err != nil {
		return 0, err
	}
	return avgSeverity * 1000, nil
}

// splitRecommended picks out the action matching the tradeoff's
// recommendation and returns the rest as alternatives.
func splitRecommended(actions []model.Action, recommendedType model.ActionType) (model.Action, []model.Action) {
	var recommended model.Action
	found := false
	alternatives := make([]model.Action, 0, len(actions))
	for _, a := range actions {
		if !found && a.Type == recommendedType {
			recommended = a
			found = true
			continue
		}
		alternatives = append(alternatives, a)
	}
	if !found {
		if len(actions) > 0 {
			return actions[0], actions[1:]
		}
		return model.Action{Type: model.ActionMonitor, Description: "No actions available."}, nil
	}
	return recommended, alternatives
}
