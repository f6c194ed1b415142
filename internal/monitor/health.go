package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

const (
	freshnessFreshMax    = 60 * time.Minute
	freshnessStaleMax    = 360 * time.Minute
	gapThreshold         = 120 * time.Minute
	volumeSpikeMultiple  = 3.0
	volumeDroughtFrac    = 0.10
	volumeMinBaseline    = 0.5
	errorRateCritical    = 0.10
	errorRateDegraded    = 0.05
	gapsCriticalDegraded = 2
)

// Health computes the C5 pipeline monitor report for tenantID over the
// trailing 24h (spec.md §4.5).
func (m *Monitor) Health(ctx context.Context, tenantID uuid.UUID) (model.PipelineHealth, error) {
	now := time.Now().UTC()
	since24h := now.Add(-24 * time.Hour)
	since1h := now.Add(-1 * time.Hour)

	report := model.PipelineHealth{
		TenantID:    tenantID.String(),
		GeneratedAt: now,
	}

	timestamps, err := m.store.RecentSignalTimestamps(ctx, tenantID, since24h)
	if err != nil {
		return model.PipelineHealth{}, fmt.Errorf("monitor: recent timestamps: %w", err)
	}

	if len(timestamps) == 0 {
		report.Freshness = model.PipelineNoData
	} else {
		last := timestamps[len(timestamps)-1]
		report.LastSignalAt = &last
		minsSince := now.Sub(last).Minutes()
		report.MinutesSinceLast = &minsSince
		sinceLast := now.Sub(last)
		switch {
		case sinceLast < freshnessFreshMax:
			report.Freshness = model.PipelineFresh
		case sinceLast < freshnessStaleMax:
			report.Freshness = model.PipelineStale
		default:
			report.Freshness = model.PipelineOutdated
		}
	}

	report.Gaps = findGaps(timestamps)

	lagSamples, err := m.store.RecentSignalLagSamples(ctx, tenantID, since24h)
	if err != nil {
		return model.PipelineHealth{}, fmt.Errorf("monitor: lag samples: %w", err)
	}
	report.AvgIngestLagSec, report.MaxIngestLagSec = ingestLag(lagSamples)

	last1h, err := m.store.CountSignalsSince(ctx, tenantID, since1h)
	if err != nil {
		return model.PipelineHealth{}, fmt.Errorf("monitor: count last hour: %w", err)
	}
	last24h, err := m.store.CountSignalsSince(ctx, tenantID, since24h)
	if err != nil {
		return model.PipelineHealth{}, fmt.Errorf("monitor: count last 24h: %w", err)
	}
	report.SignalsLastHour = last1h
	report.SignalsLast24h = last24h
	report.AvgHourlyVolume = float64(last24h) / 24.0
	report.VolumeStatus = volumeStatus(float64(last1h), report.AvgHourlyVolume)

	failed24h, err := m.store.CountFailedLedgerSince(ctx, tenantID, since24h)
	if err != nil {
		return model.PipelineHealth{}, fmt.Errorf("monitor: count failed ledger: %w", err)
	}
	denom := last24h + failed24h
	if denom > 0 {
		report.ErrorRate = float64(failed24h) / float64(denom)
	}

	report.Status, report.Reasons = overallStatus(report)
	return report, nil
}

func findGaps(timestamps []time.Time) []model.IngestGap {
	var gaps []model.IngestGap
	for i := 1; i < len(timestamps); i++ {
		delta := timestamps[i].Sub(timestamps[i-1])
		if delta > gapThreshold {
			gaps = append(gaps, model.IngestGap{
				From:        timestamps[i-1],
				To:          timestamps[i],
				DurationMin: delta.Minutes(),
			})
		}
	}
	return gaps
}

// ingestLag returns the average and max ingest lag in seconds across
// samples where both emitted_at and ingested_at are present and the lag
// is non-negative (spec.md §4.5).
func ingestLag(samples []storage.SignalLagSample) (avg, max float64) {
	var sum float64
	var n int
	for _, s := range samples {
		if s.EmittedAt == nil {
			continue
		}
		lag := s.IngestedAt.Sub(*s.EmittedAt).Seconds()
		if lag < 0 {
			continue
		}
		sum += lag
		if lag > max {
			max = lag
		}
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), max
}

func volumeStatus(lastHour, avgHourly float64) model.VolumeStatus {
	if avgHourly < volumeMinBaseline {
		return model.VolumeNoBaseline
	}
	if lastHour > volumeSpikeMultiple*avgHourly {
		return model.VolumeSpike
	}
	if avgHourly > 1 && lastHour < volumeDroughtFrac*avgHourly {
		return model.VolumeDrought
	}
	return model.VolumeNormal
}

func overallStatus(r model.PipelineHealth) (model.HealthStatus, []string) {
	var reasons []string

	if r.Freshness == model.PipelineOutdated || r.Freshness == model.PipelineNoData {
		reasons = append(reasons, fmt.Sprintf("no fresh signals: freshness=%s", r.Freshness))
	}
	if r.ErrorRate > errorRateCritical {
		reasons = append(reasons, fmt.Sprintf("ledger error rate %.1f%% exceeds critical threshold", r.ErrorRate*100))
	}
	if len(reasons) > 0 {
		return model.HealthCritical, reasons
	}

	if r.Freshness == model.PipelineStale {
		reasons = append(reasons, "signals are arriving but growing stale")
	}
	if r.ErrorRate > errorRateDegraded {
		reasons = append(reasons, fmt.Sprintf("ledger error rate %.1f%% exceeds degraded threshold", r.ErrorRate*100))
	}
	if len(r.Gaps) > gapsCriticalDegraded {
		reasons = append(reasons, fmt.Sprintf("%d ingest gaps over 2h detected", len(r.Gaps)))
	}
	if len(reasons) > 0 {
		return model.HealthDegraded, reasons
	}

	if len(r.Gaps) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d ingest gap(s) over 2h detected", len(r.Gaps)))
	}
	if r.VolumeStatus == model.VolumeSpike {
		reasons = append(reasons, "ingest volume spiked over 3x its 24h average")
	}
	if len(reasons) > 0 {
		return model.HealthWarning, reasons
	}

	return model.HealthHealthy, nil
}
