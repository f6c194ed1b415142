package risk

import (
	"math"
	"time"

	"github.com/riskcast/core/internal/model"
)

// halfLifeHours is the signal-type-specific decay table (spec.md §4.6
// Stage A). Types not listed fall back to defaultHalfLifeHours.
var halfLifeHours = map[string]float64{
	"payment_risk":            720,
	"route_disruption":        168,
	"order_risk_composite":    336,
	"market_volatility":       72,
	"port_closure":            48,
	"weather_alert":           24,
}

const (
	defaultHalfLifeHours = 168
	minDecayWeight       = 0.01
)

// decayedSignal is a working copy of an InternalSignal carrying its
// decayed score alongside the original, for stages B-F.
type decayedSignal struct {
	entityID       string
	signalType     string
	confidence     float64
	originalScore  float64
	decayedScore   float64
	ageHours       float64
	weight         float64
}

// applyTemporalDecay runs Stage A: exponential half-life decay per
// signal, dropping anything whose weight falls below minDecayWeight. It
// also returns the average age (hours) of the surviving signals and the
// resulting freshness label.
func applyTemporalDecay(signals []model.InternalSignal, now time.Time) ([]decayedSignal, float64, model.Freshness) {
	out := make([]decayedSignal, 0, len(signals))
	var ageSum float64

	for _, s := range signals {
		ageHours := now.Sub(s.CreatedAt).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		h, ok := halfLifeHours[s.SignalType]
		if !ok {
			h = defaultHalfLifeHours
		}
		w := math.Exp(-math.Ln2 * ageHours / h)
		if w < minDecayWeight {
			continue
		}
		out = append(out, decayedSignal{
			entityID:      s.EntityID,
			signalType:    s.SignalType,
			confidence:    s.Confidence,
			originalScore: s.SeverityScore,
			decayedScore:  s.SeverityScore * w,
			ageHours:      ageHours,
			weight:        w,
		})
		ageSum += ageHours
	}

	if len(out) == 0 {
		return nil, 0, model.FreshnessStale
	}

	avgAge := ageSum / float64(len(out))
	var freshness model.Freshness
	switch {
	case avgAge < 24:
		freshness = model.FreshnessFresh
	case avgAge < 168:
		freshness = model.FreshnessAging
	default:
		freshness = model.FreshnessStale
	}
	return out, avgAge, freshness
}
