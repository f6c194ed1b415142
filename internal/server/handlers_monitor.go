package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/riskcast/core/internal/apperrors"
	"github.com/riskcast/core/internal/monitor"
	"github.com/riskcast/core/internal/tenant"
)

// healthSnapshotTTL is how long a computed pipeline-health report is
// cached before the next request recomputes it from Postgres (C5).
const healthSnapshotTTL = 30 * time.Second

// handlePipelineHealth implements GET /v1/monitor/health (spec.md §4.5
// C5). A cache hit in internal/cache shortens the common case; a miss or
// disabled cache always falls through to a fresh computation.
func (h *handlers) handlePipelineHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tenantIDStr, err := tenant.FromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Auth("request has no tenant scope"))
		return
	}

	if h.cache != nil {
		if cached, ok := h.cache.GetSnapshot(r.Context(), tenantIDStr); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(cached))
			return
		}
	}

	tenantID, err := tenantUUID(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}
	report, err := h.monitor.Health(r.Context(), tenantID)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to compute pipeline health"))
		return
	}

	if h.cache != nil {
		if blob, err := json.Marshal(report); err == nil {
			h.cache.PutSnapshot(r.Context(), tenantIDStr, string(blob), healthSnapshotTTL)
		}
	}

	writeJSON(w, http.StatusOK, reqID, report)
}

func windowDaysParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("window_days")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, apperrors.Validation("window_days must be a positive integer")
	}
	return v, nil
}

// handleMonitorIntegrity implements GET /v1/monitor/integrity (spec.md
// §4.5 C6): cross-store discrepancy detection between the ledger and the
// primary signal/outcome tables.
func (h *handlers) handleMonitorIntegrity(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tenantID, err := tenantUUID(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}
	windowDays, err := windowDaysParam(r, 7)
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}

	report, err := h.monitor.CheckIntegrity(r.Context(), tenantID, windowDays)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to check pipeline integrity"))
		return
	}
	writeJSON(w, http.StatusOK, reqID, map[string]any{
		"report":       report,
		"needs_replay": monitor.NeedsReplay(report),
	})
}

// handleTraceSignal implements GET /v1/monitor/trace/signal/{signal_id}
// (spec.md §4.5 C7): the per-stage path of one signal through the ledger
// and ingest stages.
func (h *handlers) handleTraceSignal(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tenantID, err := tenantUUID(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}
	trace, err := h.monitor.TraceSignal(r.Context(), tenantID, chi.URLParam(r, "signal_id"))
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to trace signal"))
		return
	}
	writeJSON(w, http.StatusOK, reqID, trace)
}

// handleTraceDecision implements GET /v1/monitor/trace/decision/{decision_id}.
func (h *handlers) handleTraceDecision(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tenantID, err := tenantUUID(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}
	trace, err := h.monitor.TraceDecision(r.Context(), tenantID, chi.URLParam(r, "decision_id"))
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to trace decision"))
		return
	}
	writeJSON(w, http.StatusOK, reqID, trace)
}

// handleCoverage implements GET /v1/monitor/coverage (spec.md §4.5 C7):
// what fraction of ledger-recorded signals reached the primary store.
func (h *handlers) handleCoverage(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tenantID, err := tenantUUID(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}
	windowDays, err := windowDaysParam(r, 7)
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}

	coverage, err := h.monitor.Coverage(r.Context(), tenantID, windowDays)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to compute pipeline coverage"))
		return
	}
	writeJSON(w, http.StatusOK, reqID, coverage)
}
