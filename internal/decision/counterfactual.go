package decision

import (
	"math"

	"github.com/riskcast/core/internal/model"
)

// cascadeFailureThreshold is the risk score above which a cascade-failure
// scenario is generated in addition to the three always-present ones
// (spec.md §4.7 step 5).
const cascadeFailureThreshold = 60.0

// generateCounterfactuals builds the what-if scenarios attached to a
// decision: three always present, plus a cascade scenario when the risk
// score crosses cascadeFailureThreshold.
func generateCounterfactuals(a model.Assessment, exposureUSD float64) []model.Counterfactual {
	p := a.RiskScore / 100
	severity := a.RiskScore

	scenarios := []model.Counterfactual{
		{
			Name:        "Risk Materializes",
			Probability: p,
			Impact:      math.Min(100, severity*1.2),
			Loss:        round2(exposureUSD * p),
		},
		{
			Name:        "Conditions Improve",
			Probability: round4(math.Max(0.05, 1-p-0.1)),
			Impact:      math.Max(0, severity*0.3),
			Loss:        round2(exposureUSD * math.Max(0.05, 1-p-0.1) * 0.1),
		},
		{
			Name:        "Partial Impact",
			Probability: round4(math.Min(0.5, p*1.5)),
			Impact:      severity * 0.6,
			Loss:        round2(exposureUSD * math.Min(0.5, p*1.5) * 0.3),
		},
	}

	if a.RiskScore >= cascadeFailureThreshold {
		scenarios = append(scenarios, model.Counterfactual{
			Name:        "Cascade Failure",
			Probability: round4(p * 0.3),
			Impact:      math.Min(100, severity*2),
			Loss:        round2(exposureUSD * p * 0.3 * 1.5),
		})
	}

	return scenarios
}
