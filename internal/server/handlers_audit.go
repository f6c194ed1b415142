package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/riskcast/core/internal/apperrors"
	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/tenant"
)

// handleAuditTrail implements GET /audit-trail (spec.md §4.1, §6). The
// store returns entries across every tenant (the hash chain is global);
// a non-admin caller is filtered down to its own tenant's rows here.
func (h *handlers) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	after := time.Time{}
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, h.logger, reqID, apperrors.Validation("after must be an RFC3339 timestamp"))
			return
		}
		after = parsed
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, h.logger, reqID, apperrors.Validation("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.audit.Page(r.Context(), after, limit)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to page audit trail"))
		return
	}

	if RoleFromContext(r.Context()) != model.RoleAdmin {
		tenantIDStr, _ := tenant.FromContext(r.Context())
		filtered := entries[:0]
		for _, e := range entries {
			if e.TenantID == tenantIDStr {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	writeJSON(w, http.StatusOK, reqID, entries)
}

// handleAuditIntegrity implements GET /audit-trail/integrity, walking the
// whole hash chain and reporting the first 10 breaks (spec.md §4.1,
// §7 "Integrity-check responses list first 10 breaks ... but no payload
// content"). Admin-only: this exposes cross-tenant chain structure.
func (h *handlers) handleAuditIntegrity(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if RoleFromContext(r.Context()) != model.RoleAdmin {
		writeError(w, h.logger, reqID, apperrors.Auth("audit chain integrity is an admin-only endpoint"))
		return
	}

	result, err := h.audit.VerifyChain(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to verify audit chain"))
		return
	}
	writeJSON(w, http.StatusOK, reqID, result)
}
