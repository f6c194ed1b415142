package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/riskcast/core/internal/apperrors"
)

// handleReconcileRun implements POST /reconcile/run { since_days: 1..90 }
// (spec.md §4.4, §6).
func (h *handlers) handleReconcileRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		SinceDays int `json:"since_days"`
	}
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}
	if req.SinceDays < 1 || req.SinceDays > 90 {
		writeError(w, h.logger, reqID, apperrors.Validation("since_days must be between 1 and 90, got %d", req.SinceDays))
		return
	}

	tenantID, err := tenantUUID(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}

	run, err := h.reconcile.Run(r.Context(), tenantID, req.SinceDays)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "reconcile run failed"))
		return
	}
	writeJSON(w, http.StatusOK, reqID, run)
}

func parseReconcileDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", raw)
}

// handleReconcileStatus implements GET /reconcile/status/{YYYY-MM-DD}.
func (h *handlers) handleReconcileStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	date, err := parseReconcileDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Validation("date must be formatted YYYY-MM-DD"))
		return
	}
	tenantID, err := tenantUUID(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}

	run, found, err := h.reconcile.Status(r.Context(), tenantID, date)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "reconcile status lookup failed"))
		return
	}
	if !found {
		writeError(w, h.logger, reqID, apperrors.NotFound("no reconcile run found for %s", chi.URLParam(r, "date")))
		return
	}
	writeJSON(w, http.StatusOK, reqID, run)
}

// handleReconcileHistory implements GET /reconcile/history/{YYYY-MM-DD}.
func (h *handlers) handleReconcileHistory(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	date, err := parseReconcileDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Validation("date must be formatted YYYY-MM-DD"))
		return
	}
	tenantID, err := tenantUUID(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}

	runs, err := h.reconcile.History(r.Context(), tenantID, date)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "reconcile history lookup failed"))
		return
	}
	writeJSON(w, http.StatusOK, reqID, runs)
}
