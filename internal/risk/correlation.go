package risk

const (
	correlationThreshold = 0.5
	correlationDiscount  = 0.5
)

// applyCorrelationDiscount runs Stage B (spec.md §4.6). Signals are first
// reduced to one representative pair of (raw, decayed) scores per signal
// type — "the per-entity reduction" the spec's Stage B text refers to —
// then, for every pair of types whose entity sets are at least
// correlationThreshold similar, the weaker type (lower raw score) has its
// reduced decayed score discounted by (1 - correlationDiscount*corr). The
// discounted value is written back onto every signal sharing that type, so
// two internal signals of the same type always carry the same
// post-correlation score into Stage C.
//
// Assess scores one entity at a time, so every signal here shares the same
// entity_id: the entity set behind any signal type present is just
// {entityID}, and any two distinct types on the entity are therefore
// trivially correlated (corr = 1). That mirrors the original engine's
// intent — stop one entity's overlapping signal types from double-
// counting a single underlying event — rather than a tenant-wide
// co-movement statistic.
//
// It returns the number of type-pairs whose correlation met
// correlationThreshold, reported on the assessment as n_correlated_pairs.
func applyCorrelationDiscount(signals []decayedSignal) int {
	if len(signals) == 0 {
		return 0
	}

	rawByType := make(map[string]float64)
	adjByType := make(map[string]float64)
	entitiesByType := make(map[string]map[string]struct{})
	countByType := make(map[string]int)

	for _, s := range signals {
		rawByType[s.signalType] += s.originalScore
		adjByType[s.signalType] += s.decayedScore
		countByType[s.signalType]++
		if entitiesByType[s.signalType] == nil {
			entitiesByType[s.signalType] = make(map[string]struct{})
		}
		entitiesByType[s.signalType][s.entityID] = struct{}{}
	}
	for t, n := range countByType {
		rawByType[t] /= float64(n)
		adjByType[t] /= float64(n)
	}

	nCorrelatedPairs := 0
	types := distinctSignalTypes(signals)
	for i := 0; i < len(types); i++ {
		for j := i + 1; j < len(types); j++ {
			a, b := types[i], types[j]
			corr := jaccard(entitiesByType[a], entitiesByType[b])
			if corr < correlationThreshold {
				continue
			}
			nCorrelatedPairs++
			discount := 1 - correlationDiscount*corr
			if rawByType[a] <= rawByType[b] {
				adjByType[a] *= discount
			} else {
				adjByType[b] *= discount
			}
		}
	}

	for idx := range signals {
		signals[idx].decayedScore = adjByType[signals[idx].signalType]
	}
	return nCorrelatedPairs
}

func distinctSignalTypes(signals []decayedSignal) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range signals {
		if _, ok := seen[s.signalType]; ok {
			continue
		}
		seen[s.signalType] = struct{}{}
		out = append(out, s.signalType)
	}
	return out
}

// jaccard computes |a ∩ b| / |a ∪ b| over two entity-id sets. Either side
// being empty or absent yields zero correlation.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersect := 0
	for id := range a {
		if _, ok := b[id]; ok {
			intersect++
		}
	}
	union := len(a) + len(b) - intersect
	if union == 0 {
		return 0
	}
	return float64(intersect) / float64(union)
}
