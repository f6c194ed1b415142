// Package promexport is the Prometheus text-format counterpart to
// internal/telemetry's OTEL exporters: a process-local registry exposed
// over plain HTTP for operators who scrape rather than push (spec.md §6
// "Metrics").
package promexport

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every riskcast collector, separate from the default
// global registry so tests can assert on a clean set of metrics.
var Registry = prometheus.NewRegistry()

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskcast",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskcast",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests handled, by method/path/status.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "riskcast",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	signalsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskcast",
		Subsystem: "ingest",
		Name:      "signals_total",
		Help:      "Total internal signals ingested, by source and outcome.",
	}, []string{"source", "outcome"})

	reconcileRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskcast",
		Subsystem: "reconcile",
		Name:      "runs_total",
		Help:      "Total reconciler runs, by result status.",
	}, []string{"status"})

	assessmentDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "riskcast",
		Subsystem: "risk",
		Name:      "assessment_duration_seconds",
		Help:      "Duration of a full seven-stage risk assessment.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"entity_type"})

	decisionsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskcast",
		Subsystem: "decision",
		Name:      "generated_total",
		Help:      "Total decisions generated, by status (recommended|escalated).",
	}, []string{"status"})

	outcomesRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskcast",
		Subsystem: "outcome",
		Name:      "recorded_total",
		Help:      "Total outcomes recorded, by whether the prediction was accurate.",
	}, []string{"was_accurate"})

	flywheelDrift = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "riskcast",
		Subsystem: "flywheel",
		Name:      "calibration_drift",
		Help:      "Most recent calibration drift per (tenant, entity_type).",
	}, []string{"tenant_id", "entity_type"})

	auditChainVerified = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "riskcast",
		Subsystem: "audit",
		Name:      "chain_verified",
		Help:      "Whether the audit log hash chain last verified intact (1) or broken (0), per tenant.",
	}, []string{"tenant_id"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		signalsIngested,
		reconcileRuns,
		assessmentDuration,
		decisionsGenerated,
		outcomesRecorded,
		flywheelDrift,
		auditChainVerified,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the riskcast registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Instrument wraps an HTTP handler with request-count/duration/in-flight
// metrics, skipping the metrics endpoint itself to avoid self-counting.
func Instrument(next http.Handler, metricsPath string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == metricsPath {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordSignalIngested increments the ingest counter for one signal.
func RecordSignalIngested(source, outcome string) {
	signalsIngested.WithLabelValues(blankToUnknown(source), blankToUnknown(outcome)).Inc()
}

// RecordReconcileRun increments the reconciler-run counter.
func RecordReconcileRun(status string) {
	reconcileRuns.WithLabelValues(blankToUnknown(status)).Inc()
}

// RecordAssessment observes the duration of one risk assessment.
func RecordAssessment(entityType string, duration time.Duration) {
	assessmentDuration.WithLabelValues(blankToUnknown(entityType)).Observe(duration.Seconds())
}

// RecordDecision increments the decisions-generated counter.
func RecordDecision(status string) {
	decisionsGenerated.WithLabelValues(blankToUnknown(status)).Inc()
}

// RecordOutcome increments the outcomes-recorded counter.
func RecordOutcome(wasAccurate bool) {
	outcomesRecorded.WithLabelValues(strconv.FormatBool(wasAccurate)).Inc()
}

// RecordFlywheelDrift sets the latest calibration drift gauge for a
// (tenant, entity_type) pair.
func RecordFlywheelDrift(tenantID, entityType string, drift float64) {
	flywheelDrift.WithLabelValues(tenantID, entityType).Set(drift)
}

// RecordAuditChainVerified sets whether a tenant's audit hash chain last
// verified intact.
func RecordAuditChainVerified(tenantID string, intact bool) {
	val := 0.0
	if intact {
		val = 1.0
	}
	auditChainVerified.WithLabelValues(tenantID).Set(val)
}

func blankToUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters so /v1/decisions/<id> and
// /v1/decisions/<other-id> share one metrics series instead of one per ID.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) <= 2 {
		return "/" + trimmed
	}
	return "/" + parts[0] + "/" + parts[1] + "/:id"
}
