package risk

import (
	"math"
	"sync"
)

// plattMinSamples is the minimum number of (predicted, actual) pairs
// required before a fit is attempted — below this the scaler stays
// unfitted and Calibrate is the identity function (spec.md §4.8).
const plattMinSamples = 30

const (
	plattLearningRate = 0.01
	plattIterations   = 100
	plattLogitEpsilon = 1e-7
)

// PlattScaler implements Calibrator via logistic (Platt) scaling:
//
//	calibrated = 1 / (1 + exp(-(a*logit(raw) + b)))
//
// fitted by gradient descent on log-loss over outcome data (spec.md §4.8
// Stage G). It starts as the identity transform (a=1, b=0, unfitted) and
// only changes behavior once Fit has run on enough outcomes. Safe for
// concurrent use: the accuracy reporter fits it when it generates a report,
// while the risk engine calibrates assessments on other request goroutines.
type PlattScaler struct {
	mu     sync.RWMutex
	a      float64
	b      float64
	fitted bool
}

// NewPlattScaler returns an unfitted scaler equivalent to IdentityCalibrator.
func NewPlattScaler() *PlattScaler {
	return &PlattScaler{a: 1.0, b: 0.0}
}

// Calibrate applies the current fit to a raw probability in [0,1]. Before
// the first successful Fit, it returns rawProbability unchanged.
func (p *PlattScaler) Calibrate(rawProbability float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.fitted {
		return rawProbability
	}
	logit := plattLogit(rawProbability)
	z := p.a*logit + p.b
	return 1.0 / (1.0 + math.Exp(-z))
}

// IsFitted reports whether Fit has successfully trained this scaler.
func (p *PlattScaler) IsFitted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fitted
}

// Fit trains a and b by gradient descent over predicted probabilities and
// their binary outcomes (predicted[i] produced actual[i]). Fewer than
// plattMinSamples pairs leaves the scaler unchanged, mirroring the
// original calibration engine's MIN_SAMPLES_FOR_CALIBRATION guard.
func (p *PlattScaler) Fit(predicted []float64, actual []bool) {
	if len(predicted) < plattMinSamples || len(predicted) != len(actual) {
		return
	}

	a, b := 1.0, 0.0
	n := float64(len(predicted))

	for iter := 0; iter < plattIterations; iter++ {
		var gradA, gradB float64
		for i, raw := range predicted {
			logit := plattLogit(raw)
			z := a*logit + b
			sigmoid := 1.0 / (1.0 + math.Exp(-z))

			y := 0.0
			if actual[i] {
				y = 1.0
			}
			errTerm := sigmoid - y
			gradA += errTerm * logit / n
			gradB += errTerm / n
		}
		a -= plattLearningRate * gradA
		b -= plattLearningRate * gradB
	}

	p.mu.Lock()
	p.a, p.b, p.fitted = a, b, true
	p.mu.Unlock()
}

// plattLogit clips raw to avoid log(0)/log(inf) at the probability
// extremes before taking its logit.
func plattLogit(raw float64) float64 {
	clipped := math.Max(plattLogitEpsilon, math.Min(1-plattLogitEpsilon, raw))
	return math.Log(clipped / (1 - clipped))
}
