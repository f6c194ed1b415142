package server

import (
	"net/http"
	"strconv"

	"github.com/riskcast/core/internal/apperrors"
	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/outcome"
	"github.com/riskcast/core/internal/storage"
	"github.com/riskcast/core/internal/tenant"
)

// predictedSnapshotFromAudit recovers the frozen prediction of a decision
// from its audit entry's Details map (written by logDecisionAudit), since
// decisions have no row of their own to read back (spec.md §6).
func predictedSnapshotFromAudit(details map[string]any) (outcome.PredictedSnapshot, error) {
	riskScore, ok1 := details["risk_score"].(float64)
	confidence, ok2 := details["confidence"].(float64)
	lossUSD, ok3 := details["inaction_cost"].(float64)
	action, ok4 := details["recommended_action"].(string)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return outcome.PredictedSnapshot{}, apperrors.Internal(nil, "decision audit entry is missing expected prediction fields")
	}
	return outcome.PredictedSnapshot{
		RiskScore:  riskScore,
		Confidence: confidence,
		LossUSD:    lossUSD,
		Action:     model.ActionType(action),
	}, nil
}

// handleRecordOutcome implements POST /outcomes (spec.md §4.8 C10, §6).
// Outcomes are write-once: a second POST for the same decision_id returns
// 409 with the prior recorded outcome.
func (h *handlers) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.OutcomeRecordRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}
	if req.DecisionID == "" {
		writeError(w, h.logger, reqID, apperrors.Validation("decision_id is required"))
		return
	}
	if req.OutcomeType == "" {
		writeError(w, h.logger, reqID, apperrors.Validation("outcome_type is required"))
		return
	}

	tenantIDStr, err := tenant.FromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Auth("request has no tenant scope"))
		return
	}

	entry, err := h.audit.LatestByResource(r.Context(), tenantIDStr, decisionAuditResource(req.DecisionID))
	if err != nil {
		if err == storage.ErrNotFound {
			writeError(w, h.logger, reqID, apperrors.NotFound("no decision found with id %q", req.DecisionID))
			return
		}
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to load decision for outcome recording"))
		return
	}
	entityType, _ := entry.Details["entity_type"].(string)
	entityID, _ := entry.Details["entity_id"].(string)

	predicted, err := predictedSnapshotFromAudit(entry.Details)
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}

	recorded, err := h.outcomes.Record(r.Context(), tenantIDStr, entityType, entityID, req, predicted)
	if err != nil {
		if err == storage.ErrConflict {
			existing, lookupErr := h.db.GetOutcomeByDecisionID(r.Context(), tenantIDStr, req.DecisionID)
			if lookupErr == nil {
				writeJSON(w, http.StatusConflict, reqID, existing)
				return
			}
			writeError(w, h.logger, reqID, apperrors.Conflict("outcome already recorded for decision_id %q", req.DecisionID))
			return
		}
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to record outcome"))
		return
	}

	writeJSON(w, http.StatusOK, reqID, recorded)
}

// handleAccuracyReport implements GET /outcomes/accuracy (spec.md §4.8 C11).
func (h *handlers) handleAccuracyReport(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tenantIDStr, err := tenant.FromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Auth("request has no tenant scope"))
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "30d"
	}
	daysBack := 30
	if raw := r.URL.Query().Get("days_back"); raw != "" {
		daysBack, err = strconv.Atoi(raw)
		if err != nil || daysBack <= 0 {
			writeError(w, h.logger, reqID, apperrors.Validation("days_back must be a positive integer"))
			return
		}
	}

	report, err := h.accuracy.GenerateReport(r.Context(), tenantIDStr, period, daysBack)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to generate accuracy report"))
		return
	}
	writeJSON(w, http.StatusOK, reqID, report)
}

// handleROIReport implements GET /outcomes/roi (spec.md §4.8 C11).
func (h *handlers) handleROIReport(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tenantIDStr, err := tenant.FromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Auth("request has no tenant scope"))
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "30d"
	}
	daysBack := 30
	if raw := r.URL.Query().Get("days_back"); raw != "" {
		daysBack, err = strconv.Atoi(raw)
		if err != nil || daysBack <= 0 {
			writeError(w, h.logger, reqID, apperrors.Validation("days_back must be a positive integer"))
			return
		}
	}

	report, err := h.roi.GenerateReport(r.Context(), tenantIDStr, period, daysBack)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to generate roi report"))
		return
	}
	writeJSON(w, http.StatusOK, reqID, report)
}
