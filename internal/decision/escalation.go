package decision

import (
	"fmt"
	"strings"

	"github.com/riskcast/core/internal/model"
)

// Escalation thresholds (spec.md §4.7 step 4 / §6 "Environment/config").
const (
	escalationExposureThresholdUSD = 200_000.0
	escalationConfidenceFloor      = 0.5
	escalationRiskScoreCeiling     = 80.0
	escalationDisagreementThreshold = 15.0
)

// evaluateEscalation runs all five escalation rules and reports whether any
// triggered. Every rule is returned, triggered or not, for auditability.
func evaluateEscalation(a model.Assessment, exposureUSD float64) (bool, []model.EscalationRule, string) {
	disagreement, _ := a.AlgorithmTrace["ensemble_disagreement"].(float64)

	rules := []model.EscalationRule{
		escalationRule("high_exposure",
			exposureUSD >= escalationExposureThresholdUSD,
			fmt.Sprintf("Exposure $%.0f exceeds threshold $%.0f", exposureUSD, escalationExposureThresholdUSD),
			escalationExposureThresholdUSD, exposureUSD),
		escalationRule("low_confidence",
			a.Confidence < escalationConfidenceFloor,
			fmt.Sprintf("Confidence %.2f is below floor %.2f", a.Confidence, escalationConfidenceFloor),
			escalationConfidenceFloor, a.Confidence),
		escalationRule("critical_risk_score",
			a.RiskScore >= escalationRiskScoreCeiling,
			fmt.Sprintf("Risk score %.0f exceeds ceiling %.0f", a.RiskScore, escalationRiskScoreCeiling),
			escalationRiskScoreCeiling, a.RiskScore),
		escalationRule("model_disagreement",
			disagreement >= escalationDisagreementThreshold,
			fmt.Sprintf("Model disagreement %.1f exceeds threshold %.1f", disagreement, escalationDisagreementThreshold),
			escalationDisagreementThreshold, disagreement),
		{
			RuleName:    "insufficient_data",
			Triggered:   !a.IsReliable,
			Reason:      "Assessment is based on insufficient data",
			ActualValue: float64(a.NSignals),
		},
	}

	var triggeredNames []string
	needsEscalation := false
	for _, r := range rules {
		if r.Triggered {
			needsEscalation = true
			triggeredNames = append(triggeredNames, r.RuleName)
		}
	}

	reasonSummary := "No escalation rules triggered"
	if needsEscalation {
		reasonSummary = "Escalated: " + strings.Join(triggeredNames, "; ")
	}

	return needsEscalation, rules, reasonSummary
}

func escalationRule(name string, triggered bool, reason string, threshold, actual float64) model.EscalationRule {
	t := threshold
	return model.EscalationRule{
		RuleName:    name,
		Triggered:   triggered,
		Reason:      reason,
		Threshold:   &t,
		ActualValue: actual,
	}
}
