package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/riskcast/core/internal/apperrors"
	"github.com/riskcast/core/internal/audit"
	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/tenant"
)

// handleGetAssessment implements the internal assessment endpoint
// (spec.md §4.6, §6: "returns the value objects of §3 as JSON").
func (h *handlers) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	entityType := chi.URLParam(r, "entity_type")
	entityID := chi.URLParam(r, "entity_id")
	tenantID, err := tenantUUID(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}

	assessment, err := h.risk.Assess(r.Context(), tenantID, entityType, entityID)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "risk assessment failed"))
		return
	}
	writeJSON(w, http.StatusOK, reqID, assessment)
}

func parseOptionalFloat(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// decisionAuditResource is the audit-log resource key a decision is
// logged under, used later to recover its frozen prediction when an
// outcome is recorded (spec.md §6 lists no persisted decisions table).
func decisionAuditResource(decisionID string) string {
	return "decision:" + decisionID
}

// handleGenerateDecision implements the internal decision endpoint. The
// generated decision is audit-logged under decisionAuditResource so a
// later POST /outcomes can recover its frozen prediction.
func (h *handlers) handleGenerateDecision(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	entityType := chi.URLParam(r, "entity_type")
	entityID := chi.URLParam(r, "entity_id")
	tenantID, err := tenantUUID(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}

	exposureUSD, err := parseOptionalFloat(r.URL.Query().Get("exposure_usd"))
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Validation("exposure_usd must be a number"))
		return
	}

	dec, err := h.decision.Generate(r.Context(), tenantID, entityType, entityID, exposureUSD)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "decision generation failed"))
		return
	}

	h.logDecisionAudit(r.Context(), dec)
	writeJSON(w, http.StatusOK, reqID, dec)
}

// handleGenerateDecisionsForEntities implements the fan-out decision
// endpoint: every active entity of entityType above minSeverity, up to
// limit (decision.Engine.GenerateForEntities).
func (h *handlers) handleGenerateDecisionsForEntities(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	entityType := chi.URLParam(r, "entity_type")
	tenantID, err := tenantUUID(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}

	minSeverity := 0.0
	if raw := r.URL.Query().Get("min_severity"); raw != "" {
		minSeverity, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, h.logger, reqID, apperrors.Validation("min_severity must be a number"))
			return
		}
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, h.logger, reqID, apperrors.Validation("limit must be a positive integer"))
			return
		}
	}

	decisions, err := h.decision.GenerateForEntities(r.Context(), tenantID, entityType, minSeverity, limit)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "decision generation failed"))
		return
	}
	for _, dec := range decisions {
		h.logDecisionAudit(r.Context(), dec)
	}
	writeJSON(w, http.StatusOK, reqID, decisions)
}

// logDecisionAudit best-effort audit-logs a generated decision, freezing
// the fields POST /outcomes needs to reconstruct an outcome.PredictedSnapshot.
func (h *handlers) logDecisionAudit(ctx context.Context, dec model.Decision) {
	tenantIDStr, _ := tenant.FromContext(ctx)
	h.audit.Log(ctx, audit.Event{
		TenantID: tenantIDStr,
		Action:   "decision.generate",
		Resource: decisionAuditResource(dec.DecisionID),
		Outcome:  model.AuditSuccess,
		Details: map[string]any{
			"entity_type":    dec.EntityType,
			"entity_id":      dec.EntityID,
			"risk_score":     dec.RiskScore,
			"confidence":     dec.Confidence,
			"inaction_cost":  dec.InactionCost,
			"recommended_action": dec.RecommendedAction.Type,
		},
	})
}
