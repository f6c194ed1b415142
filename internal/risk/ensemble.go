package risk

import "math"

const (
	fusionEnsembleWeight = 0.6
	bayesEnsembleWeight  = 0.4
	disagreementHigh     = 25.0
	disagreementModerate = 15.0
)

type ensembleResult struct {
	score             float64
	confidence        float64
	ciLower           float64
	ciUpper           float64
	disagreement      float64
	disagreementLabel string
}

// ensembleCombine runs Stage E: the fusion score and the Bayesian posterior
// (scaled to 0-100) are combined by confidence-weighted average — each
// model's weight is w_i*c_i, so a model that is more confident pulls the
// ensemble score toward itself (spec.md §4.6; mirrors the original engine's
// EnsembleEngine.aggregate). Their disagreement (the sample stdev of the
// two scores) drives both the needs_human_review flag and the confidence
// interval width. If Stage C's fused confidence is zero (signal types
// without a table weight still count at fusionUnknownTypeWeight), the
// ensemble degrades to the Bayesian estimate alone.
func ensembleCombine(fusion fusionResult, bayes bayesResult) ensembleResult {
	bayesScore := bayes.mean * 100
	bayesConfidence := clamp(1-(bayes.ciUpper-bayes.ciLower), 0, 1)

	if fusion.confidence == 0 {
		score := bayesScore
		confidence := bayesConfidence
		return ensembleResult{
			score:             score,
			confidence:        confidence,
			ciLower:           clamp(score-score*(1-confidence), 0, 100),
			ciUpper:           clamp(score+score*(1-confidence), 0, 100),
			disagreement:      0,
			disagreementLabel: "low",
		}
	}

	fusionWeight := fusionEnsembleWeight * fusion.confidence
	bayesWeight := bayesEnsembleWeight * bayesConfidence
	totalWeight := fusionWeight + bayesWeight

	var score float64
	if totalWeight > 0 {
		score = (fusionWeight*fusion.score + bayesWeight*bayesScore) / totalWeight
	} else {
		score = (fusion.score + bayesScore) / 2
	}
	confidence := fusionEnsembleWeight*fusion.confidence + bayesEnsembleWeight*bayesConfidence

	diff := fusion.score - bayesScore
	disagreement := math.Abs(diff) / math.Sqrt2

	var label string
	switch {
	case disagreement >= disagreementHigh:
		label = "high"
	case disagreement >= disagreementModerate:
		label = "moderate"
	default:
		label = "low"
	}

	return ensembleResult{
		score:             score,
		confidence:        confidence,
		ciLower:           clamp(score-2*disagreement, 0, 100),
		ciUpper:           clamp(score+2*disagreement, 0, 100),
		disagreement:      disagreement,
		disagreementLabel: label,
	}
}
