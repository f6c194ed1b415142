package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/riskcast/core/internal/apperrors"
	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/tenant"
)

// handleExportAuditTrail implements GET /v1/export/audit-trail
// (SPEC_FULL.md §11 "Retention/export jobs"): streams the tamper-evident
// audit log as NDJSON, one entry per line, so an operator can pull a
// durable off-system copy for compliance retention. Grounded on akashi's
// HandleExportDecisions streaming-with-flush shape, adapted from its
// keyset-cursor pagination to audit.Log.Page's existing after-timestamp
// cursor (entries are naturally ordered and deduplicated by timestamp,
// spec.md §4.1's global hash chain has no per-tenant partition to key on).
func (h *handlers) handleExportAuditTrail(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	after := time.Time{}
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, h.logger, reqID, apperrors.Validation("from must be an RFC3339 timestamp"))
			return
		}
		after = parsed
	}
	var before time.Time
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, h.logger, reqID, apperrors.Validation("to must be an RFC3339 timestamp"))
			return
		}
		before = parsed
	}

	isAdmin := RoleFromContext(r.Context()) == model.RoleAdmin
	callerTenant, err := tenant.FromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Auth("request has no tenant scope"))
		return
	}

	filename := fmt.Sprintf("riskcast-audit-export-%s.ndjson", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)

	const pageSize = 200
	cursor := after
	wrote := false
	for {
		page, err := h.audit.Page(r.Context(), cursor, pageSize)
		if err != nil {
			if !wrote {
				writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to page audit trail for export"))
			}
			return
		}
		if len(page) == 0 {
			return
		}
		for _, entry := range page {
			if !before.IsZero() && entry.Timestamp.After(before) {
				return
			}
			if !isAdmin && entry.TenantID != callerTenant {
				continue
			}
			wrote = true
			if err := encoder.Encode(entry); err != nil {
				return // client disconnected
			}
		}
		if flusher != nil {
			flusher.Flush()
		}
		if len(page) < pageSize {
			return
		}
		cursor = page[len(page)-1].Timestamp
	}
}

// handleExportOutcomes implements GET /v1/export/outcomes (SPEC_FULL.md
// §11), streaming recorded outcomes as NDJSON for the caller's own tenant
// (admins may pass tenant_id to export another tenant's record), grounded
// on the same akashi export-handler shape as handleExportAuditTrail but
// backed by outcome.Recorder's existing since-cursor query rather than a
// keyset cursor, since outcome volume per tenant is bounded by comparison.
func (h *handlers) handleExportOutcomes(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	q := r.URL.Query()

	targetTenant, err := tenant.FromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Auth("request has no tenant scope"))
		return
	}
	if RoleFromContext(r.Context()) == model.RoleAdmin {
		if requested := q.Get("tenant_id"); requested != "" {
			targetTenant = requested
		}
	}

	since := time.Time{}
	if raw := q.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, h.logger, reqID, apperrors.Validation("since must be an RFC3339 timestamp"))
			return
		}
		since = parsed
	}
	entityType := q.Get("entity_type")

	records, err := h.outcomes.Export(r.Context(), targetTenant, entityType, since)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to export outcomes"))
		return
	}

	filename := fmt.Sprintf("riskcast-outcomes-export-%s.ndjson", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	w.Header().Set("Cache-Control", "no-cache")

	encoder := json.NewEncoder(w)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return // client disconnected
		}
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
