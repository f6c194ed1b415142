package model

import "time"

// PipelineFreshness buckets how recently a tenant's last signal arrived
// (spec.md §4.5 C5). Distinct from the per-assessment Freshness of C8 —
// this one is a pipeline-health label, not a signal-age label.
type PipelineFreshness string

const (
	PipelineFresh     PipelineFreshness = "fresh"
	PipelineStale     PipelineFreshness = "stale"
	PipelineOutdated  PipelineFreshness = "outdated"
	PipelineNoData    PipelineFreshness = "no_data"
)

// VolumeStatus buckets the last hour's ingest rate against the trailing
// 24h average.
type VolumeStatus string

const (
	VolumeNormal     VolumeStatus = "normal"
	VolumeSpike      VolumeStatus = "spike"
	VolumeDrought    VolumeStatus = "drought"
	VolumeNoBaseline VolumeStatus = "no_baseline"
)

// HealthStatus is the overall traffic-light verdict for a pipeline.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
)

// IngestGap is a silence longer than the gap threshold between two
// consecutive ingested signals.
type IngestGap struct {
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	DurationMin float64  `json:"duration_minutes"`
}

// PipelineHealth is the C5 monitor's report for one tenant over the
// trailing 24h window.
type PipelineHealth struct {
	TenantID          string       `json:"tenant_id"`
	GeneratedAt       time.Time    `json:"generated_at"`
	LastSignalAt      *time.Time   `json:"last_signal_at,omitempty"`
	MinutesSinceLast  *float64     `json:"minutes_since_last,omitempty"`
	Freshness         PipelineFreshness `json:"freshness"`
	AvgIngestLagSec   float64      `json:"avg_ingest_lag_seconds"`
	MaxIngestLagSec   float64      `json:"max_ingest_lag_seconds"`
	SignalsLastHour   int          `json:"signals_last_hour"`
	SignalsLast24h    int          `json:"signals_last_24h"`
	AvgHourlyVolume   float64      `json:"avg_hourly_volume"`
	VolumeStatus      VolumeStatus `json:"volume_status"`
	Gaps              []IngestGap  `json:"gaps"`
	ErrorRate         float64      `json:"error_rate"`
	Status            HealthStatus `json:"status"`
	Reasons           []string     `json:"reasons,omitempty"`
}

// DiscrepancyType classifies a signal_id found inconsistent between the
// ledger and the primary store (spec.md §4.5 C6).
type DiscrepancyType string

const (
	DiscrepancyMissingFromDB      DiscrepancyType = "missing_from_db"
	DiscrepancyOrphanedInDB       DiscrepancyType = "orphaned_in_db"
	DiscrepancyIngestFailed       DiscrepancyType = "ingest_failed"
	DiscrepancyDuplicateInLedger  DiscrepancyType = "duplicate_in_ledger"
)

// Discrepancy is one signal_id whose ledger and primary-store state
// disagree.
type Discrepancy struct {
	SignalID string          `json:"signal_id"`
	Type     DiscrepancyType `json:"type"`
	Detail   string          `json:"detail,omitempty"`
}

// IntegrityReport is the C6 integrity checker's set-diff result over a
// window.
type IntegrityReport struct {
	TenantID        string        `json:"tenant_id"`
	GeneratedAt     time.Time     `json:"generated_at"`
	WindowDays      int           `json:"window_days"`
	TotalInLedger   int           `json:"total_in_ledger"`
	TotalInPrimary  int           `json:"total_in_db"`
	ConsistentCount int           `json:"consistent_count"`
	Discrepancies   []Discrepancy `json:"discrepancies"`
	IsConsistent    bool          `json:"is_consistent"`
}

// TraceStage is one hop of a signal or decision's reconstructed lifecycle.
type TraceStage struct {
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// SignalTrace is the result of reconstructing one signal_id's path through
// ledger → ingest (spec.md §4.5 C7 trace_signal).
type SignalTrace struct {
	SignalID string       `json:"signal_id"`
	Found    bool         `json:"found"`
	Stages   []TraceStage `json:"stages"`
}

// DecisionTrace is the result of looking up one decision_id's recorded
// outcome, if any (spec.md §4.5 C7 trace_decision). It holds a single
// outcome_recorded stage; the signals behind the decision's assessment are
// not traced.
type DecisionTrace struct {
	DecisionID string       `json:"decision_id"`
	Found      bool         `json:"found"`
	Stages     []TraceStage `json:"stages"`
}

// PipelineCoverage is the C7 aggregate over a window (spec.md §4.5
// pipeline_coverage): how much of what the ledger recorded made it into
// the primary store.
type PipelineCoverage struct {
	TenantID            string    `json:"tenant_id"`
	GeneratedAt         time.Time `json:"generated_at"`
	WindowDays          int       `json:"window_days"`
	LedgerCount         int       `json:"ledger_count"`
	PrimaryCount        int       `json:"primary_count"`
	IngestCoverage      float64   `json:"ingest_coverage"`
	NeedsReconciliation bool      `json:"needs_reconciliation"`
}
