package decision

import (
	"fmt"
	"math"
	"sort"

	"github.com/riskcast/core/internal/model"
)

// timePenaltyCap bounds how much a slow action's ranking score can be
// docked for time pressure (spec.md §4.7 step 3).
const timePenaltyCap = 20.0

// analyzeTradeoffs ranks actions by net_value * success_probability, minus
// a time-pressure penalty, and recommends the top scorer. A top action with
// non-positive net value and a low inaction cost falls back to MONITOR.
func analyzeTradeoffs(actions []model.Action, inactionCost float64) model.TradeoffAnalysis {
	if len(actions) == 0 {
		return model.TradeoffAnalysis{
			RecommendedAction:    model.ActionMonitor,
			RecommendationReason: "No actions available.",
			DoNothingCost:        round2(inactionCost),
		}
	}

	type scored struct {
		score  float64
		action model.Action
	}
	ranked := make([]scored, len(actions))
	for i, a := range actions {
		riskAdjusted := a.NetValue * a.SuccessProbability
		timePenalty := math.Min(0.1*a.TimeToExecuteHours, timePenaltyCap)
		ranked[i] = scored{score: riskAdjusted - timePenalty, action: a}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	best := ranked[0]

	var recommended model.ActionType
	var reason string
	if best.action.NetValue <= 0 && inactionCost < 1000 {
		recommended = model.ActionMonitor
		reason = fmt.Sprintf(
			"All actions have negative net value. Monitoring is recommended (inaction cost: $%.0f).",
			inactionCost,
		)
	} else {
		recommended = best.action.Type
		reason = fmt.Sprintf(
			"%s is recommended with net value $%.0f (%.0f%% success probability).",
			best.action.Type, best.action.NetValue, best.action.SuccessProbability*100,
		)
	}

	confidence := 0.5
	if len(ranked) > 1 {
		gap := math.Abs(ranked[0].score - ranked[1].score)
		denom := math.Max(math.Abs(ranked[0].score), 1.0)
		confidence = math.Min(1.0, gap/denom)
	}

	return model.TradeoffAnalysis{
		RecommendedAction:    recommended,
		RecommendationReason: reason,
		Actions:              actions,
		DoNothingCost:        round2(inactionCost),
		BestNetValue:         round2(best.action.NetValue),
		Confidence:           round4(confidence),
	}
}
