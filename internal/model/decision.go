package model

import "time"

// DecisionStatus is the lifecycle state of a generated Decision.
type DecisionStatus string

const (
	DecisionRecommended DecisionStatus = "RECOMMENDED"
	DecisionEscalated   DecisionStatus = "ESCALATED"
)

// Decision is the value object produced by the decision engine (C9): a
// fully-auditable package of an assessment plus actions, tradeoffs,
// escalation rules, and counterfactuals.
type Decision struct {
	DecisionID         string             `json:"decision_id"`
	TenantID           string             `json:"tenant_id"`
	EntityType         string             `json:"entity_type"`
	EntityID           string             `json:"entity_id"`
	Status             DecisionStatus     `json:"status"`
	Severity           SeverityLabel      `json:"severity"`
	SituationSummary   string             `json:"situation_summary"`
	RiskScore          float64            `json:"risk_score"`
	Confidence         float64            `json:"confidence"`
	CILower            float64            `json:"ci_lower"`
	CIUpper            float64            `json:"ci_upper"`
	RecommendedAction  Action             `json:"recommended_action"`
	AlternativeActions []Action           `json:"alternative_actions"`
	Tradeoff           TradeoffAnalysis   `json:"tradeoff"`
	InactionCost       float64            `json:"inaction_cost"`
	InactionRisk       string             `json:"inaction_risk"`
	Counterfactuals    []Counterfactual   `json:"counterfactuals"`
	NeedsHumanReview   bool               `json:"needs_human_review"`
	EscalationRules    []EscalationRule   `json:"escalation_rules"`
	EscalationReason   *string            `json:"escalation_reason,omitempty"`
	AlgorithmTrace     map[string]any     `json:"algorithm_trace"`
	DataSources        []string           `json:"data_sources"`
	GeneratedAt        time.Time          `json:"generated_at"`
	ValidUntil         time.Time          `json:"valid_until"`
	NSignalsUsed       int                `json:"n_signals_used"`
	IsReliable         bool               `json:"is_reliable"`
	DataFreshness      Freshness          `json:"data_freshness"`
}

// DecisionValidity is how long a generated recommendation stays current
// before the caller should re-request an assessment (spec.md §4.7 step 6).
const DecisionValidity = 24 * time.Hour
