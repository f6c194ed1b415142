package server

import (
	"net/http"

	"github.com/riskcast/core/internal/apperrors"
	"github.com/riskcast/core/internal/tenant"
)

// handleSubscribe implements GET /v1/subscribe (SPEC_FULL.md §11): a live
// SSE feed of this tenant's audit events, including every decision
// generated for it (decisions are audit-logged, never their own table —
// see DESIGN.md). Grounded on akashi's internal/server/broker.go SSE
// handler, narrowed to one event stream per the single audit channel.
func (h *handlers) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if h.broker == nil {
		writeError(w, h.logger, reqID, apperrors.Dependency(nil, "live subscription feed is not configured"))
		return
	}

	tenantID, err := tenant.FromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Auth("request has no tenant scope"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, h.logger, reqID, apperrors.Internal(nil, "streaming unsupported by response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := h.broker.Subscribe(tenantID)
	defer h.broker.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
