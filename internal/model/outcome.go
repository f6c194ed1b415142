package model

import "time"

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

// RiskMaterialized reports whether this outcome type means the predicted
// risk actually happened (spec.md §4.8 C10 derived field).
func (t OutcomeType) RiskMaterialized() bool {
	switch t {
	case OutcomeLossOccurred, OutcomeDelayOccurred, OutcomePartialImpact:
		return true
	default:
		return false
	}
}

// OutcomeRecord is the immutable, write-once row recorded after a decision
// resolves. Uniqueness: one record per DecisionID.
type OutcomeRecord struct {
	OutcomeID                 string      `json:"outcome_id"`
	DecisionID                string      `json:"decision_id"`
	TenantID                  string      `json:"tenant_id"`
	EntityType                string      `json:"entity_type"`
	EntityID                  string      `json:"entity_id"`
	PredictedRiskScore        float64     `json:"predicted_risk_score"`
	PredictedConfidence       float64     `json:"predicted_confidence"`
	PredictedLossUSD          float64     `json:"predicted_loss_usd"`
	PredictedAction           ActionType  `json:"predicted_action"`
	OutcomeType               OutcomeType `json:"outcome_type"`
	ActualLossUSD             float64     `json:"actual_loss_usd"`
	ActualDelayDays           float64     `json:"actual_delay_days"`
	ActionTaken               string      `json:"action_taken"`
	ActionFollowedRecommendation bool     `json:"action_followed_recommendation"`
	RiskMaterialized           bool       `json:"risk_materialized"`
	PredictionError            float64    `json:"prediction_error"`
	WasAccurate                bool       `json:"was_accurate"`
	ValueGeneratedUSD          float64    `json:"value_generated_usd"`
	RecordedAt                 time.Time  `json:"recorded_at"`
	RecordedBy                 *string    `json:"recorded_by,omitempty"`
	Notes                      *string    `json:"notes,omitempty"`
}

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

// AccuracyReport is the calibration/accuracy summary over a period (C11).
type AccuracyReport struct {
	Period            string    `json:"period"`
	GeneratedAt       time.Time `json:"generated_at"`
	TotalDecisions    int       `json:"total_decisions"`
	TotalOutcomes     int       `json:"total_outcomes"`
	Coverage          float64   `json:"coverage"`
	BrierScore        float64   `json:"brier_score"`
	MeanAbsoluteError float64   `json:"mean_absolute_error"`
	AccuracyRate      float64   `json:"accuracy_rate"`
	CalibrationDrift  float64   `json:"calibration_drift"`
	Overconfident     bool      `json:"overconfident"`
	Underconfident    bool      `json:"underconfident"`
	TruePositives     int       `json:"true_positives"`
	TrueNegatives     int       `json:"true_negatives"`
	FalsePositives    int       `json:"false_positives"`
	FalseNegatives    int       `json:"false_negatives"`
	Precision         float64   `json:"precision"`
	Recall            float64   `json:"recall"`
	F1Score           float64   `json:"f1_score"`
	Recommendation    string    `json:"recommendation"`
}

// ROIReport is the financial summary over a period's decisions.
type ROIReport struct {
	Period                  string    `json:"period"`
	GeneratedAt             time.Time `json:"generated_at"`
	TotalDecisions          int       `json:"total_decisions"`
	DecisionsWithOutcomes   int       `json:"decisions_with_outcomes"`
	TotalPredictedLossUSD   float64   `json:"total_predicted_loss_usd"`
	TotalActualLossUSD      float64   `json:"total_actual_loss_usd"`
	TotalLossAvoidedUSD     float64   `json:"total_loss_avoided_usd"`
	TotalActionCostUSD      float64   `json:"total_action_cost_usd"`
	NetValueGeneratedUSD    float64   `json:"net_value_generated_usd"`
	ROIRatio                float64   `json:"roi_ratio"`
	RecommendationFollowRate float64  `json:"recommendation_follow_rate"`
	ActionsThatHelped       int       `json:"actions_that_helped"`
	ActionsThatDidntHelp    int       `json:"actions_that_didnt_help"`
	Recommendation          string    `json:"recommendation"`
}
