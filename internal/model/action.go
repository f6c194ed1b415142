package model

// ActionType enumerates the concrete actions the decision engine (C9) can
// generate for a risk assessment.
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
	EstimatedCostUSD     float64    `json:"estimated_cost_usd"`
	EstimatedBenefitUSD  float64    `json:"estimated_benefit_usd"`
	NetValue             float64    `json:"net_value"`
	SuccessProbability   float64    `json:"success_probability"`
	TimeToExecuteHours   float64    `json:"time_to_execute_hours"`
	Requirements         []string   `json:"requirements,omitempty"`
	Risks                []string   `json:"risks,omitempty"`
}

// EscalationRule reports whether one escalation criterion (spec.md §4.7
// step 4) triggered, with enough context to audit the decision.
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
	RecommendedAction     ActionType `json:"recommended_action"`
	RecommendationReason  string     `json:"recommendation_reason"`
	Actions               []Action   `json:"actions"`
	DoNothingCost         float64    `json:"do_nothing_cost"`
	BestNetValue          float64    `json:"best_net_value"`
	Confidence            float64    `json:"confidence"`
}
