package outcome

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/riskcast/core/internal/model"
)

// calibrationBins is the number of equal-width probability bins used to
// compute Expected Calibration Error (spec.md §4.8 C11).
const calibrationBins = 10

// minOutcomesForReport is the floor below which the accuracy report's
// recommendation asks for more data instead of interpreting the metrics.
// The metrics themselves are still computed from whatever outcomes exist;
// only a report with no outcomes at all returns zeros.
const minOutcomesForReport = 10

// AccuracyStore is the read dependency for accuracy reporting.
type AccuracyStore interface {
	OutcomesSince(ctx context.Context, tenantID, entityType string, since time.Time) ([]model.OutcomeRecord, error)
}

// Scaler is Stage G's fittable calibrator (internal/risk.PlattScaler). The
// accuracy reporter owns fitting it, mirroring the original calibration
// engine which both assesses calibration and trains its own Platt scaler
// from the same outcome data.
type Scaler interface {
	Fit(predicted []float64, actual []bool)
}

// AccuracyReporter is the C11 accuracy-report service.
type AccuracyReporter struct {
	store  AccuracyStore
	scaler Scaler
}

// NewAccuracyReporter builds a reporter. scaler may be nil, in which case
// reports are still computed but Stage G's calibrator is never fitted.
func NewAccuracyReporter(store AccuracyStore, scaler Scaler) *AccuracyReporter {
	return &AccuracyReporter{store: store, scaler: scaler}
}

// GenerateReport computes Brier score, MAE, accuracy rate, ECE, and a
// confusion matrix over every outcome recorded for tenantID in the last
// daysBack days (spec.md §4.8 C11).
func (a *AccuracyReporter) GenerateReport(ctx context.Context, tenantID string, period string, daysBack int) (model.AccuracyReport, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -daysBack)

	outcomes, err := a.store.OutcomesSince(ctx, tenantID, "", since)
	if err != nil {
		return model.AccuracyReport{}, fmt.Errorf("outcome: load outcomes for accuracy report: %w", err)
	}

	// This deployment has no separate decisions table (spec.md §6
	// "Persisted state layout" lists none) — outcomes are the only source
	// of a decision count, so coverage is always 1.0. See DESIGN.md.
	totalDecisions := len(outcomes)

	if len(outcomes) == 0 {
		return model.AccuracyReport{
			Period:         period,
			GeneratedAt:    now,
			TotalDecisions: totalDecisions,
			Recommendation: "Not enough outcome data to compute accuracy metrics. Record at least 10 outcomes for meaningful results.",
		}, nil
	}

	brier := brierScore(outcomes)
	mae := meanAbsoluteError(outcomes)
	accurate := 0
	var sumPredicted, sumActual float64
	for _, o := range outcomes {
		if o.WasAccurate {
			accurate++
		}
		sumPredicted += o.PredictedRiskScore / 100
		if o.RiskMaterialized {
			sumActual++
		}
	}
	accuracyRate := float64(accurate) / float64(len(outcomes))
	drift := expectedCalibrationError(outcomes)
	avgPredicted := sumPredicted / float64(len(outcomes))
	avgActual := sumActual / float64(len(outcomes))

	tp, tn, fp, fn := confusionMatrix(outcomes)
	precision := float64(tp) / math.Max(float64(tp+fp), 1)
	recall := float64(tp) / math.Max(float64(tp+fn), 1)
	f1 := 2 * precision * recall / math.Max(precision+recall, 1e-9)

	overconfident := drift > 0.15 && avgPredicted > avgActual
	underconfident := drift > 0.15 && avgPredicted < avgActual

	if a.scaler != nil {
		predicted := make([]float64, len(outcomes))
		actual := make([]bool, len(outcomes))
		for i, o := range outcomes {
			predicted[i] = o.PredictedRiskScore / 100
			actual[i] = o.RiskMaterialized
		}
		a.scaler.Fit(predicted, actual)
	}

	return model.AccuracyReport{
		Period:            period,
		GeneratedAt:       now,
		TotalDecisions:    totalDecisions,
		TotalOutcomes:     len(outcomes),
		Coverage:          round4(float64(len(outcomes)) / math.Max(float64(totalDecisions), 1)),
		BrierScore:        round4(brier),
		MeanAbsoluteError: round4(mae),
		AccuracyRate:      round4(accuracyRate),
		CalibrationDrift:  round4(drift),
		Overconfident:     overconfident,
		Underconfident:    underconfident,
		TruePositives:     tp,
		TrueNegatives:     tn,
		FalsePositives:    fp,
		FalseNegatives:    fn,
		Precision:         round4(precision),
		Recall:            round4(recall),
		F1Score:           round4(f1),
		Recommendation:    recommendationFor(brier, accuracyRate, drift, overconfident, underconfident, len(outcomes)),
	}, nil
}

// brierScore is the mean squared error between predicted probability and
// the binary materialization outcome. 0 is perfect; 0.25 is random-guess
// for a balanced binary outcome.
func brierScore(outcomes []model.OutcomeRecord) float64 {
	var total float64
	for _, o := range outcomes {
		predicted := o.PredictedRiskScore / 100
		actual := 0.0
		if o.RiskMaterialized {
			actual = 1.0
		}
		total += (predicted - actual) * (predicted - actual)
	}
	return total / float64(len(outcomes))
}

func meanAbsoluteError(outcomes []model.OutcomeRecord) float64 {
	var total float64
	for _, o := range outcomes {
		total += o.PredictionError
	}
	return total / float64(len(outcomes))
}

// expectedCalibrationError groups outcomes into calibrationBins equal-width
// probability buckets and returns the outcome-count-weighted average gap
// between each bucket's mean predicted probability and its observed
// materialization frequency.
func expectedCalibrationError(outcomes []model.OutcomeRecord) float64 {
	type bin struct {
		sumPredicted float64
		sumActual    float64
		n            int
	}
	bins := make([]bin, calibrationBins)

	for _, o := range outcomes {
		predicted := o.PredictedRiskScore / 100
		idx := int(predicted * calibrationBins)
		if idx >= calibrationBins {
			idx = calibrationBins - 1
		}
		if idx < 0 {
			idx = 0
		}
		actual := 0.0
		if o.RiskMaterialized {
			actual = 1.0
		}
		bins[idx].sumPredicted += predicted
		bins[idx].sumActual += actual
		bins[idx].n++
	}

	var ece float64
	nTotal := float64(len(outcomes))
	for _, b := range bins {
		if b.n == 0 {
			continue
		}
		avgPredicted := b.sumPredicted / float64(b.n)
		avgActual := b.sumActual / float64(b.n)
		ece += (float64(b.n) / nTotal) * math.Abs(avgPredicted-avgActual)
	}
	return ece
}

// confusionMatrix partitions outcomes by predicted_score >= 50 vs whether
// the risk actually materialized.
func confusionMatrix(outcomes []model.OutcomeRecord) (tp, tn, fp, fn int) {
	for _, o := range outcomes {
		predictedHigh := o.PredictedRiskScore >= 50
		switch {
		case predictedHigh && o.RiskMaterialized:
			tp++
		case !predictedHigh && !o.RiskMaterialized:
			tn++
		case predictedHigh && !o.RiskMaterialized:
			fp++
		default:
			fn++
		}
	}
	return
}

func recommendationFor(brier, accuracyRate, drift float64, overconfident, underconfident bool, n int) string {
	if n < minOutcomesForReport {
		return fmt.Sprintf("Only %d outcomes recorded. Need at least %d for reliable metrics. Keep recording outcomes.", n, minOutcomesForReport)
	}

	parts := make([]string, 0, 3)
	switch {
	case brier < 0.1:
		parts = append(parts, "Brier score is excellent (<0.1) -- predictions are well-calibrated.")
	case brier < 0.2:
		parts = append(parts, "Brier score is good (<0.2) -- minor calibration improvements possible.")
	default:
		parts = append(parts, fmt.Sprintf("Brier score is %.3f -- consider recalibrating the model.", brier))
	}

	switch {
	case accuracyRate >= 0.8:
		parts = append(parts, fmt.Sprintf("Accuracy rate is strong at %.0f%%.", accuracyRate*100))
	case accuracyRate >= 0.6:
		parts = append(parts, fmt.Sprintf("Accuracy rate is moderate at %.0f%% -- room for improvement.", accuracyRate*100))
	default:
		parts = append(parts, fmt.Sprintf("Accuracy rate is low at %.0f%% -- model retraining recommended.", accuracyRate*100))
	}

	switch {
	case overconfident:
		parts = append(parts, fmt.Sprintf("System is overconfident (drift=%.3f) -- consider applying Platt scaling to reduce confidence scores.", drift))
	case underconfident:
		parts = append(parts, fmt.Sprintf("System is underconfident (drift=%.3f) -- consider recalibrating upward.", drift))
	case drift > 0.15:
		parts = append(parts, fmt.Sprintf("Calibration drift is %.3f -- flywheel re-calibration recommended.", drift))
	}

	out := parts[0]
	for _, p := range parts[1:] {
		out += " " + p
	}
	return out
}
