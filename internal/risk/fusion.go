package risk

import "math"

// fusionUnknownTypeWeight is the weight a signal type outside the fusion
// table gets — present so a port_closure or weather_alert signal still
// moves the fused score a little instead of being silently dropped.
const fusionUnknownTypeWeight = 0.1

// defaultFusionWeights are the base per-signal-type weights for Stage C
// (spec.md §4.6), already normalized to sum to 1.0. A tenant's RiskConfig
// may override a subset of these; callers renormalize after merging.
func defaultFusionWeights() map[string]float64 {
	return map[string]float64{
		"payment_risk":              0.30,
		"route_disruption":          0.25,
		"order_risk_composite":      0.20,
		"customer_creditworthiness": 0.15,
		"market_volatility":         0.10,
	}
}

// mergeTenantWeights overlays tenant-specific overrides onto the defaults
// and renormalizes the result to sum to 1.0.
func mergeTenantWeights(overrides map[string]float64) map[string]float64 {
	weights := defaultFusionWeights()
	for k, v := range overrides {
		weights[k] = v
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum == 0 {
		return weights
	}
	for k, w := range weights {
		weights[k] = w / sum
	}
	return weights
}

func weightFor(signalType string, weights map[string]float64) float64 {
	if w, ok := weights[signalType]; ok {
		return w
	}
	return fusionUnknownTypeWeight
}

// fusionResult is Stage C's output.
type fusionResult struct {
	score       float64
	confidence  float64
	ciLower     float64
	ciUpper     float64
	weightedSum float64 // Σ w_i·c_i·s_i, kept for the algorithm trace
}

// fuseWithConfidence runs Stage C (spec.md §4.6): every signal — not every
// signal type — contributes its own w_i·c_i·s_i term. Types outside the
// fusion weight table fall back to fusionUnknownTypeWeight rather than
// being excluded.
//
//	fused score      = Σ(w_i·c_i·s_i) / Σ(w_i·c_i)
//	fused confidence = Σ(w_i·c_i) / Σ(w_i)
//	uncertainty u_i   = w_i·s_i·(1-c_i); combined = sqrt(Σ u_i²)
//	CI                = fused ± combined, clamped to [0,100]
func fuseWithConfidence(signals []decayedSignal, weights map[string]float64) fusionResult {
	if len(signals) == 0 {
		return fusionResult{}
	}

	var weightedSum, weightConfSum, totalWeight float64
	for _, s := range signals {
		w := weightFor(s.signalType, weights)
		weightedSum += w * s.confidence * s.decayedScore
		weightConfSum += w * s.confidence
		totalWeight += w
	}

	var score, confidence float64
	if weightConfSum > 0 {
		score = weightedSum / weightConfSum
	}
	if totalWeight > 0 {
		confidence = weightConfSum / totalWeight
	}

	var sumU2 float64
	for _, s := range signals {
		w := weightFor(s.signalType, weights)
		u := w * s.decayedScore * (1 - s.confidence)
		sumU2 += u * u
	}
	combined := math.Sqrt(sumU2)

	return fusionResult{
		score:       score,
		confidence:  confidence,
		ciLower:     clamp(score-combined, 0, 100),
		ciUpper:     clamp(score+combined, 0, 100),
		weightedSum: weightedSum,
	}
}

// typeAggregate is the per-signal-type summary Stage F decomposes: after
// Stage B, every signal of a given type already carries the same
// correlation-adjusted score, so this is really a dedup rather than an
// average — but averaging degrades gracefully if that ever changes.
type typeAggregate struct {
	avgScore      float64
	avgConfidence float64
	n             int
}

func aggregateByType(signals []decayedSignal) map[string]typeAggregate {
	sums := make(map[string]typeAggregate)
	for _, s := range signals {
		agg := sums[s.signalType]
		agg.avgScore += s.decayedScore
		agg.avgConfidence += s.confidence
		agg.n++
		sums[s.signalType] = agg
	}
	for t, agg := range sums {
		agg.avgScore /= float64(agg.n)
		agg.avgConfidence /= float64(agg.n)
		sums[t] = agg
	}
	return sums
}
