package riskcast

import "time"

// ---------------------------------------------------------------------------
// Signal ingest (POST /signals/ingest)
// ---------------------------------------------------------------------------

// GeographicInfo is the geographic scope of a signal.
type GeographicInfo struct {
	Regions     []string `json:"regions,omitempty"`
	Chokepoints []string `json:"chokepoints,omitempty"`
}

// TemporalInfo is the expected time scope of a signal.
type TemporalInfo struct {
	EventHorizon   *string `json:"event_horizon,omitempty"`
	ResolutionDate *string `json:"resolution_date,omitempty"`
}

// EvidenceItem backs a signal with a named source.
type EvidenceItem struct {
	Source      string  `json:"source"`
	SourceType  string  `json:"source_type"`
	URL         *string `json:"url,omitempty"`
	RawText     *string `json:"raw_text,omitempty"`
	RetrievedAt *string `json:"retrieved_at,omitempty"`
}

// SignalPayload is the inner `signal` object of a SignalEvent.
type SignalPayload struct {
	SignalID        string          `json:"signal_id"`
	SourceEventID   *string         `json:"source_event_id,omitempty"`
	Title           string          `json:"title"`
	Description     *string         `json:"description,omitempty"`
	Probability     float64         `json:"probability"`
	ConfidenceScore float64         `json:"confidence_score"`
	ConfidenceLevel *string         `json:"confidence_level,omitempty"`
	Category        string          `json:"category"`
	Tags            []string        `json:"tags,omitempty"`
	Geographic      *GeographicInfo `json:"geographic,omitempty"`
	Temporal        *TemporalInfo   `json:"temporal,omitempty"`
	Evidence        []EvidenceItem  `json:"evidence,omitempty"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// SignalEvent is the envelope POSTed to /signals/ingest.
type SignalEvent struct {
	SchemaVersion        string        `json:"schema_version"`
	SignalID             string        `json:"signal_id"`
	DeterministicTraceID *string       `json:"deterministic_trace_id,omitempty"`
	InputEventHash       *string       `json:"input_event_hash,omitempty"`
	SourceEventID        *string       `json:"source_event_id,omitempty"`
	RulesetVersion       *string       `json:"ruleset_version,omitempty"`
	ObservedAt           *time.Time    `json:"observed_at,omitempty"`
	EmittedAt            *time.Time    `json:"emitted_at,omitempty"`
	Signal               SignalPayload `json:"signal"`
}

// IngestResult is the response body of a successful ingest.
type IngestResult struct {
	AckID     string `json:"ack_id"`
	Duplicate bool   `json:"duplicate"`
}

// ---------------------------------------------------------------------------
// Risk assessment (GET /v1/assessments/{entity_type}/{entity_id})
// ---------------------------------------------------------------------------

// SeverityLabel classifies a risk_score into a human-facing band.
type SeverityLabel string

const (
	SeverityCritical SeverityLabel = "critical"
	SeverityHigh     SeverityLabel = "high"
	SeverityModerate SeverityLabel = "moderate"
	SeverityLow      SeverityLabel = "low"
)

// Freshness labels the recency of the signal set behind an assessment.
type Freshness string

const (
	FreshnessFresh Freshness = "fresh"
	FreshnessAging Freshness = "aging"
	FreshnessStale Freshness = "stale"
)

// RiskFactor is a single explainable contributor to a composite risk score.
type RiskFactor struct {
	FactorName      string         `json:"factor_name"`
	DisplayName     string         `json:"display_name"`
	Score           float64        `json:"score"`
	Weight          float64        `json:"weight"`
	ContributionPct float64        `json:"contribution_pct"`
	Explanation     string         `json:"explanation"`
	Recommendation  string         `json:"recommendation"`
	Evidence        map[string]any `json:"evidence,omitempty"`
}

// Assessment is the value object returned by the risk engine.
type Assessment struct {
	TenantID         string         `json:"tenant_id"`
	EntityType       string         `json:"entity_type"`
	EntityID         string         `json:"entity_id"`
	RiskScore        float64        `json:"risk_score"`
	Confidence       float64        `json:"confidence"`
	CILower          float64        `json:"ci_lower"`
	CIUpper          float64        `json:"ci_upper"`
	Severity         SeverityLabel  `json:"severity_label"`
	IsReliable       bool           `json:"is_reliable"`
	NeedsHumanReview bool           `json:"needs_human_review"`
	NSignals         int            `json:"n_signals"`
	NActiveSignals   int            `json:"n_active_signals"`
	DataFreshness    Freshness      `json:"data_freshness"`
	PrimaryDriver    string         `json:"primary_driver"`
	Factors          []RiskFactor   `json:"factors"`
	Summary          string         `json:"summary"`
	AlgorithmTrace   map[string]any `json:"algorithm_trace"`
	GeneratedAt      time.Time      `json:"generated_at"`
}

// ---------------------------------------------------------------------------
// Decisions (POST /v1/decisions/{entity_type}/{entity_id})
// ---------------------------------------------------------------------------

// ActionType enumerates the concrete actions the decision engine can
// recommend.
type ActionType string

const (
	ActionMonitor  ActionType = "MONITOR"
	ActionInsure   ActionType = "INSURE"
	ActionReroute  ActionType = "REROUTE"
	ActionDelay    ActionType = "DELAY"
	ActionHedge    ActionType = "HEDGE"
	ActionSplit    ActionType = "SPLIT"
	ActionEscalate ActionType = "ESCALATE"
)

// Action is one candidate response to an assessed risk, fully costed.
type Action struct {
	Type                ActionType `json:"action_type"`
	Description         string     `json:"description"`
	EstimatedCostUSD    float64    `json:"estimated_cost_usd"`
	EstimatedBenefitUSD float64    `json:"estimated_benefit_usd"`
	NetValue            float64    `json:"net_value"`
	SuccessProbability  float64    `json:"success_probability"`
	TimeToExecuteHours  float64    `json:"time_to_execute_hours"`
	Requirements        []string   `json:"requirements,omitempty"`
	Risks               []string   `json:"risks,omitempty"`
}

// EscalationRule reports whether one escalation criterion triggered.
type EscalationRule struct {
	RuleName    string   `json:"rule_name"`
	Triggered   bool     `json:"triggered"`
	Reason      string   `json:"reason"`
	Threshold   *float64 `json:"threshold,omitempty"`
	ActualValue float64  `json:"actual_value"`
}

// Counterfactual is a what-if scenario attached to a decision.
type Counterfactual struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	Impact      float64 `json:"impact"`
	Loss        float64 `json:"loss"`
}

// TradeoffAnalysis is the cost/benefit ranking over a set of Actions.
type TradeoffAnalysis struct {
	RecommendedAction    ActionType `json:"recommended_action"`
	RecommendationReason string     `json:"recommendation_reason"`
	Actions              []Action   `json:"actions"`
	DoNothingCost        float64    `json:"do_nothing_cost"`
	BestNetValue         float64    `json:"best_net_value"`
	Confidence           float64    `json:"confidence"`
}

// DecisionStatus is the lifecycle state of a generated Decision.
type DecisionStatus string

const (
	DecisionRecommended DecisionStatus = "RECOMMENDED"
	DecisionEscalated   DecisionStatus = "ESCALATED"
)

// Decision is the fully-auditable package of an assessment plus actions,
// tradeoffs, escalation rules, and counterfactuals.
type Decision struct {
	DecisionID         string           `json:"decision_id"`
	TenantID           string           `json:"tenant_id"`
	EntityType         string           `json:"entity_type"`
	EntityID           string           `json:"entity_id"`
	Status             DecisionStatus   `json:"status"`
	Severity           SeverityLabel    `json:"severity"`
	SituationSummary   string           `json:"situation_summary"`
	RiskScore          float64          `json:"risk_score"`
	Confidence         float64          `json:"confidence"`
	CILower            float64          `json:"ci_lower"`
	CIUpper            float64          `json:"ci_upper"`
	RecommendedAction  Action           `json:"recommended_action"`
	AlternativeActions []Action         `json:"alternative_actions"`
	Tradeoff           TradeoffAnalysis `json:"tradeoff"`
	InactionCost       float64          `json:"inaction_cost"`
	InactionRisk       string           `json:"inaction_risk"`
	Counterfactuals    []Counterfactual `json:"counterfactuals"`
	NeedsHumanReview   bool             `json:"needs_human_review"`
	EscalationRules    []EscalationRule `json:"escalation_rules"`
	EscalationReason   *string          `json:"escalation_reason,omitempty"`
	AlgorithmTrace     map[string]any   `json:"algorithm_trace"`
	DataSources        []string         `json:"data_sources"`
	GeneratedAt        time.Time        `json:"generated_at"`
	ValidUntil         time.Time        `json:"valid_until"`
	NSignalsUsed       int              `json:"n_signals_used"`
	IsReliable         bool             `json:"is_reliable"`
	DataFreshness      Freshness        `json:"data_freshness"`
}

// ---------------------------------------------------------------------------
// Outcomes (POST /outcomes, GET /outcomes/accuracy, GET /outcomes/roi)
// ---------------------------------------------------------------------------

// OutcomeType is what actually happened in the real world after a decision.
type OutcomeType string

const (
	OutcomeLossOccurred  OutcomeType = "loss_occurred"
	OutcomeLossAvoided   OutcomeType = "loss_avoided"
	OutcomeDelayOccurred OutcomeType = "delay_occurred"
	OutcomeDelayAvoided  OutcomeType = "delay_avoided"
	OutcomeNoImpact      OutcomeType = "no_impact"
	OutcomePartialImpact OutcomeType = "partial_impact"
)

// OutcomeRecordRequest is the request body for POST /outcomes.
type OutcomeRecordRequest struct {
	DecisionID                   string      `json:"decision_id"`
	OutcomeType                  OutcomeType `json:"outcome_type"`
	ActualLossUSD                float64     `json:"actual_loss_usd"`
	ActualDelayDays              float64     `json:"actual_delay_days"`
	ActionTaken                  string      `json:"action_taken"`
	ActionFollowedRecommendation bool        `json:"action_followed_recommendation"`
	Notes                        *string     `json:"notes,omitempty"`
}

// OutcomeRecord is the immutable row recorded after a decision resolves.
type OutcomeRecord struct {
	OutcomeID                    string      `json:"outcome_id"`
	DecisionID                   string      `json:"decision_id"`
	TenantID                     string      `json:"tenant_id"`
	EntityType                   string      `json:"entity_type"`
	EntityID                     string      `json:"entity_id"`
	PredictedRiskScore           float64     `json:"predicted_risk_score"`
	PredictedConfidence          float64     `json:"predicted_confidence"`
	PredictedLossUSD             float64     `json:"predicted_loss_usd"`
	PredictedAction              ActionType  `json:"predicted_action"`
	OutcomeType                  OutcomeType `json:"outcome_type"`
	ActualLossUSD                float64     `json:"actual_loss_usd"`
	ActualDelayDays               float64    `json:"actual_delay_days"`
	ActionTaken                  string      `json:"action_taken"`
	ActionFollowedRecommendation bool        `json:"action_followed_recommendation"`
	RiskMaterialized              bool       `json:"risk_materialized"`
	PredictionError               float64    `json:"prediction_error"`
	WasAccurate                   bool       `json:"was_accurate"`
	ValueGeneratedUSD              float64   `json:"value_generated_usd"`
	RecordedAt                     time.Time `json:"recorded_at"`
	RecordedBy                     *string   `json:"recorded_by,omitempty"`
	Notes                          *string   `json:"notes,omitempty"`
}

// AccuracyReport is the calibration/accuracy summary over a period.
type AccuracyReport struct {
	Period            string    `json:"period"`
	GeneratedAt       time.Time `json:"generated_at"`
	TotalDecisions    int       `json:"total_decisions"`
	TotalOutcomes     int       `json:"total_outcomes"`
	Coverage          float64   `json:"coverage"`
	BrierScore        float64   `json:"brier_score"`
	MeanAbsoluteError float64   `json:"mean_absolute_error"`
	AccuracyRate      float64   `json:"accuracy_rate"`
}

// ROIReport is the value-generated summary over a period.
type ROIReport struct {
	Period                   string    `json:"period"`
	GeneratedAt              time.Time `json:"generated_at"`
	TotalDecisions           int       `json:"total_decisions"`
	DecisionsWithOutcomes    int       `json:"decisions_with_outcomes"`
	TotalPredictedLossUSD    float64   `json:"total_predicted_loss_usd"`
	TotalActualLossUSD       float64   `json:"total_actual_loss_usd"`
	TotalLossAvoidedUSD      float64   `json:"total_loss_avoided_usd"`
	TotalActionCostUSD       float64   `json:"total_action_cost_usd"`
	NetValueGeneratedUSD     float64   `json:"net_value_generated_usd"`
	ROIRatio                 float64   `json:"roi_ratio"`
	RecommendationFollowRate float64   `json:"recommendation_follow_rate"`
	ActionsThatHelped        int       `json:"actions_that_helped"`
	ActionsThatDidntHelp     int       `json:"actions_that_didnt_help"`
	Recommendation           string    `json:"recommendation"`
}

// ---------------------------------------------------------------------------
// Audit trail (GET /audit-trail, GET /audit-trail/integrity)
// ---------------------------------------------------------------------------

// AuditOutcome is the result recorded for an audited action.
type AuditOutcome string

const (
	AuditSuccess AuditOutcome = "success"
	AuditDenied  AuditOutcome = "denied"
)

// AuditEntry is one immutable, hash-chained row of the audit log.
type AuditEntry struct {
	EntryID      string         `json:"entry_id"`
	Timestamp    time.Time      `json:"timestamp"`
	TenantID     string         `json:"tenant_id,omitempty"`
	Actor        string         `json:"actor,omitempty"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource,omitempty"`
	Outcome      AuditOutcome   `json:"outcome"`
	Details      map[string]any `json:"details,omitempty"`
	PreviousHash string         `json:"previous_hash,omitempty"`
	EntryHash    string         `json:"entry_hash"`
}

// ChainBreak describes one place the hash chain failed to verify.
type ChainBreak struct {
	EntryID      string    `json:"entry_id"`
	Timestamp    time.Time `json:"timestamp"`
	ExpectedHash string    `json:"expected"`
	ActualHash   string    `json:"actual"`
}

// VerifyResult is the outcome of walking the whole audit chain.
type VerifyResult struct {
	Valid          bool         `json:"valid"`
	EntriesChecked int          `json:"entries_checked"`
	Breaks         []ChainBreak `json:"breaks,omitempty"`
	VerifiedAt     time.Time    `json:"verified_at"`
}

// ---------------------------------------------------------------------------
// API key administration (admin role only)
// ---------------------------------------------------------------------------

// Role is the authorization level carried by a JWT or API key.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
	RoleIngest   Role = "ingest"
)

// APIKey is a managed, tenant-scoped credential.
type APIKey struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Prefix     string     `json:"prefix"`
	Role       Role       `json:"role"`
	Label      string     `json:"label,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// CreatedAPIKey is the response of CreateAPIKey: it carries the plaintext
// key, which the server returns exactly once.
type CreatedAPIKey struct {
	ID        string    `json:"id"`
	Prefix    string    `json:"prefix"`
	Key       string    `json:"key"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
