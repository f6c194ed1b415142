package outcome

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/riskcast/core/internal/model"
)

// ROIStore is the read dependency for ROI reporting.
type ROIStore interface {
	OutcomesSince(ctx context.Context, tenantID, entityType string, since time.Time) ([]model.OutcomeRecord, error)
}

// ROICalculator is the financial-summary counterpart to AccuracyReporter.
// There is no separate action-cost ledger in this deployment (spec.md §6
// lists none), so action cost is estimated from PredictedAction the same
// way exposure is estimated elsewhere in this system: see DESIGN.md.
type ROICalculator struct {
	store ROIStore
}

func NewROICalculator(store ROIStore) *ROICalculator {
	return &ROICalculator{store: store}
}

// GenerateReport computes total predicted/actual loss, loss avoided, action
// cost, net value generated, ROI ratio, and recommendation-follow rate over
// every outcome recorded for tenantID in the last daysBack days
// (spec.md §4.8 "ROI report").
func (c *ROICalculator) GenerateReport(ctx context.Context, tenantID string, period string, daysBack int) (model.ROIReport, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -daysBack)

	outcomes, err := c.store.OutcomesSince(ctx, tenantID, "", since)
	if err != nil {
		return model.ROIReport{}, fmt.Errorf("outcome: load outcomes for roi report: %w", err)
	}

	// Same total_decisions estimate as the accuracy report: outcomes are the
	// only decision-adjacent data this deployment persists.
	totalDecisions := len(outcomes)

	if len(outcomes) == 0 {
		return model.ROIReport{
			Period:         period,
			GeneratedAt:    now,
			TotalDecisions: totalDecisions,
			Recommendation: "Not enough outcome data to compute an ROI report.",
		}, nil
	}

	var predictedLoss, actualLoss, actionCost, netValue float64
	followed, helped, didntHelp := 0, 0, 0

	for _, o := range outcomes {
		predictedLoss += o.PredictedLossUSD
		actualLoss += o.ActualLossUSD
		actionCost += estimatedActionCostUSD(o.PredictedAction, o.PredictedLossUSD)
		netValue += o.ValueGeneratedUSD

		if o.ActionFollowedRecommendation {
			followed++
			if o.ValueGeneratedUSD > 0 {
				helped++
			} else if o.ValueGeneratedUSD < 0 {
				didntHelp++
			}
		}
	}

	lossAvoided := math.Max(predictedLoss-actualLoss, 0)
	roiRatio := 0.0
	if actionCost > 0 {
		roiRatio = netValue / actionCost
	}
	followRate := float64(followed) / float64(len(outcomes))

	return model.ROIReport{
		Period:                   period,
		GeneratedAt:              now,
		TotalDecisions:           totalDecisions,
		DecisionsWithOutcomes:    len(outcomes),
		TotalPredictedLossUSD:    round2(predictedLoss),
		TotalActualLossUSD:       round2(actualLoss),
		TotalLossAvoidedUSD:      round2(lossAvoided),
		TotalActionCostUSD:       round2(actionCost),
		NetValueGeneratedUSD:     round2(netValue),
		ROIRatio:                 round4(roiRatio),
		RecommendationFollowRate: round4(followRate),
		ActionsThatHelped:        helped,
		ActionsThatDidntHelp:     didntHelp,
		Recommendation:           roiRecommendation(roiRatio, followRate, netValue),
	}, nil
}

// actionCostRate approximates each action type's cost as a fraction of the
// predicted loss it was quoted against. INSURE, REROUTE, HEDGE and SPLIT use
// the exposure rates of internal/decision/actions.go (applied to exposure
// there; to predicted loss here, since this package only retains the
// outcome's frozen prediction, not the original exposure figure), without
// REROUTE's fixed base cost. actions.go prices DELAY per day rather than
// as a rate; here it is approximated at 5%. MONITOR and ESCALATE carry no
// direct cost.
var actionCostRate = map[model.ActionType]float64{
	model.ActionInsure:  0.02,
	model.ActionReroute: 0.01,
	model.ActionHedge:   0.015,
	model.ActionDelay:   0.05,
	model.ActionSplit:   0.15,
}

func estimatedActionCostUSD(action model.ActionType, predictedLossUSD float64) float64 {
	return actionCostRate[action] * predictedLossUSD
}

func roiRecommendation(roiRatio, followRate float64, netValue float64) string {
	switch {
	case netValue <= 0:
		return "Net value generated is non-positive over this period -- review whether recommended actions are being followed and whether cost estimates match reality."
	case roiRatio >= 3:
		return fmt.Sprintf("Strong ROI at %.1fx -- recommended actions are paying for themselves several times over.", roiRatio)
	case roiRatio >= 1:
		return fmt.Sprintf("Positive ROI at %.1fx.", roiRatio)
	default:
		return "Action costs are outweighing measured value -- reassess action cost assumptions or escalation thresholds."
	}
}
