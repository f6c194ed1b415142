package server

import (
	"net/http"

	"github.com/riskcast/core/internal/apperrors"
	"github.com/riskcast/core/internal/ingest"
	"github.com/riskcast/core/internal/model"
)

// handleIngest implements POST /signals/ingest (spec.md §4.3, §6).
func (h *handlers) handleIngest(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var event model.SignalEvent
	if err := decodeJSON(w, r, h.maxBody, &event); err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}
	if err := event.Validate(); err != nil {
		writeError(w, h.logger, reqID, apperrors.Validation("%v", err))
		return
	}

	if idemKey := r.Header.Get("X-Idempotency-Key"); idemKey != "" && idemKey != event.SignalID {
		writeError(w, h.logger, reqID, apperrors.Validation("X-Idempotency-Key %q does not match signal_id %q", idemKey, event.SignalID))
		return
	}

	tenantID, err := tenantUUID(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}

	ackID, status, err := h.ingest.Ingest(r.Context(), tenantID, event)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "ingest failed"))
		return
	}

	if status == ingest.StatusDuplicate {
		writeJSON(w, http.StatusConflict, reqID, map[string]any{
			"ack_id":    ackID,
			"duplicate": true,
		})
		return
	}
	writeJSON(w, http.StatusOK, reqID, map[string]any{"ack_id": ackID})
}
