package decision

import (
	"math"

	"github.com/riskcast/core/internal/model"
)

// Action cost/benefit constants (spec.md §4.7 step 2).
const (
	rerouteBaseCostUSD = 5000.0
	insuranceRate      = 0.02
	hedgeRate          = 0.015
	delayCostPerDayUSD = 500.0
	splitOverheadPct   = 0.15
)

// generateActions builds every action the assessment's score qualifies for,
// always including MONITOR. deliveryDays feeds REROUTE and DELAY's
// time-to-execute and cost estimates.
func generateActions(a model.Assessment, exposureUSD, deliveryDays float64) []model.Action {
	score := a.RiskScore

	actions := []model.Action{monitorAction(score)}

	if score >= 25 {
		actions = append(actions, insureAction(exposureUSD, score))
	}
	if score >= 40 {
		actions = append(actions, rerouteAction(exposureUSD, deliveryDays, score))
		actions = append(actions, hedgeAction(exposureUSD, score))
	}
	if score >= 50 {
		actions = append(actions, delayAction(exposureUSD, deliveryDays, score))
	}
	if score >= 60 {
		actions = append(actions, splitAction(exposureUSD, score))
	}
	if score >= 70 || !a.IsReliable {
		actions = append(actions, escalateAction())
	}

	return actions
}

func monitorAction(score float64) model.Action {
	return model.Action{
		Type:                model.ActionMonitor,
		Description:         "Continue monitoring. No immediate action required.",
		SuccessProbability:  1 - score/100,
		Requirements:        []string{"Active monitoring dashboard"},
		Risks:               []string{"Risk may escalate if unaddressed"},
	}
}

func insureAction(exposure, score float64) model.Action {
	cost := exposure * insuranceRate
	benefit := exposure * (score / 100) * 0.9
	return model.Action{
		Type:                model.ActionInsure,
		Description:         "Purchase cargo insurance to cover potential loss.",
		EstimatedCostUSD:    round2(cost),
		EstimatedBenefitUSD: round2(benefit),
		NetValue:            round2(benefit - cost),
		SuccessProbability:  0.95,
		TimeToExecuteHours:  4.0,
		Requirements:        []string{"Insurance provider available", "Policy terms acceptable"},
		Risks:               []string{"Claim process may be slow", "Coverage may have exclusions"},
	}
}

func rerouteAction(exposure, days, score float64) model.Action {
	cost := rerouteBaseCostUSD + exposure*0.01
	benefit := exposure * (score / 100) * 0.7
	return model.Action{
		Type:                model.ActionReroute,
		Description:         "Reroute shipment via alternative route to avoid disruption.",
		EstimatedCostUSD:    round2(cost),
		EstimatedBenefitUSD: round2(benefit),
		NetValue:            round2(benefit - cost),
		SuccessProbability:  round4(math.Min(0.95, 0.6+score/200)),
		TimeToExecuteHours:  round1(24 + days*0.5),
		Requirements:        []string{"Alternative route available", "Carrier capacity"},
		Risks:               []string{"New route may have its own risks", "Additional transit time"},
	}
}

func hedgeAction(exposure, score float64) model.Action {
	cost := exposure * hedgeRate
	benefit := exposure * (score / 100) * 0.6
	return model.Action{
		Type:                model.ActionHedge,
		Description:         "Hedge financial exposure via forward contracts or options.",
		EstimatedCostUSD:    round2(cost),
		EstimatedBenefitUSD: round2(benefit),
		NetValue:            round2(benefit - cost),
		SuccessProbability:  0.85,
		TimeToExecuteHours:  8.0,
		Requirements:        []string{"Treasury approval", "Hedging instrument available"},
		Risks:               []string{"Basis risk", "Mark-to-market volatility"},
	}
}

func delayAction(exposure, days, score float64) model.Action {
	delayDays := math.Max(1, math.Round(days*0.3))
	cost := delayDays * delayCostPerDayUSD
	benefit := exposure * (score / 100) * 0.5
	return model.Action{
		Type:                model.ActionDelay,
		Description:         "Delay shipment to wait for conditions to improve.",
		EstimatedCostUSD:    round2(cost),
		EstimatedBenefitUSD: round2(benefit),
		NetValue:            round2(benefit - cost),
		SuccessProbability:  round4(0.4 + score/200),
		Requirements:        []string{"Customer agrees to delay", "Storage available"},
		Risks:               []string{"Customer dissatisfaction", "Conditions may not improve"},
	}
}

func splitAction(exposure, score float64) model.Action {
	cost := exposure * splitOverheadPct
	benefit := exposure * (score / 100) * 0.8
	return model.Action{
		Type:                model.ActionSplit,
		Description:         "Split shipment across multiple routes/carriers to diversify risk.",
		EstimatedCostUSD:    round2(cost),
		EstimatedBenefitUSD: round2(benefit),
		NetValue:            round2(benefit - cost),
		SuccessProbability:  0.80,
		TimeToExecuteHours:  48.0,
		Requirements:        []string{"Multiple carriers available", "Goods are splittable"},
		Risks:               []string{"Coordination complexity", "Higher logistics cost"},
	}
}

func escalateAction() model.Action {
	return model.Action{
		Type:                model.ActionEscalate,
		Description:         "Escalate to human decision-maker for manual review.",
		SuccessProbability:  0.90,
		TimeToExecuteHours:  2.0,
		Requirements:        []string{"Available reviewer", "Decision authority"},
		Risks:               []string{"Response time delay"},
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
