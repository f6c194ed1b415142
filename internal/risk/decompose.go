package risk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/riskcast/core/internal/model"
)

// displayNames gives the known factor types a human-facing label; anything
// else falls back to a title-cased rendering of the raw signal_type.
var displayNames = map[string]string{
	"payment_risk":              "Payment Risk",
	"route_disruption":          "Route Disruption",
	"order_risk_composite":      "Order Risk Composite",
	"customer_creditworthiness": "Customer Creditworthiness",
	"market_volatility":         "Market Volatility",
	"port_closure":              "Port Closure",
	"weather_alert":             "Weather Alert",
}

func displayName(signalType string) string {
	if n, ok := displayNames[signalType]; ok {
		return n
	}
	words := strings.Split(strings.ReplaceAll(signalType, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// decompose runs Stage F: one explainable RiskFactor per signal type
// present in the signal set, ranked by its share of the composite score
// (spec.md §4.6). Unlike Stage C's fusion, the decomposition's
// contribution share ignores confidence entirely — it's
// weight*score / Σ(weight*score) — so a factor's displayed share reflects
// how much it drove the number, not how sure the engine was about it.
func decompose(signals []decayedSignal, weights map[string]float64) ([]model.RiskFactor, string) {
	aggregates := aggregateByType(signals)

	type weighted struct {
		signalType string
		score      float64
		weight     float64
		wscore     float64
	}
	items := make([]weighted, 0, len(aggregates))
	var totalWeighted float64
	for signalType, agg := range aggregates {
		w := weightFor(signalType, weights)
		wscore := agg.avgScore * w
		items = append(items, weighted{signalType: signalType, score: agg.avgScore, weight: w, wscore: wscore})
		totalWeighted += wscore
	}

	factors := make([]model.RiskFactor, 0, len(items))
	for _, it := range items {
		var pct float64
		if totalWeighted > 0 {
			pct = it.wscore / totalWeighted * 100
		}
		name := displayName(it.signalType)
		factors = append(factors, model.RiskFactor{
			FactorName:      it.signalType,
			DisplayName:     name,
			Score:           it.score,
			Weight:          it.weight,
			ContributionPct: pct,
			Explanation:     explanationFor(name, it.score),
			Recommendation:  recommendationFor(name, it.score),
		})
	}

	sort.Slice(factors, func(i, j int) bool {
		return factors[i].ContributionPct > factors[j].ContributionPct
	})

	primaryDriver := "none"
	if len(factors) > 0 {
		primaryDriver = factors[0].DisplayName
	}
	return factors, primaryDriver
}

func explanationFor(displayName string, score float64) string {
	if score >= 50 {
		return fmt.Sprintf("%s is elevated at %.0f/100, indicating a material contribution to overall risk.", displayName, score)
	}
	return fmt.Sprintf("%s is low at %.0f/100 and contributes little to overall risk.", displayName, score)
}

func recommendationFor(displayName string, score float64) string {
	if score >= 50 {
		return fmt.Sprintf("Investigate the drivers behind %s before committing further exposure.", displayName)
	}
	return fmt.Sprintf("No action needed on %s at this time.", displayName)
}
