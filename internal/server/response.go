package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/apperrors"
	"github.com/riskcast/core/internal/model"
)

// writeJSON writes data as the body of a 2xx APIResponse envelope.
func writeJSON(w http.ResponseWriter, status int, requestID string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Data: data,
		Meta: model.ResponseMeta{RequestID: requestID, Timestamp: time.Now().UTC()},
	})
}

// writeError maps err to an HTTP status via apperrors.KindOf and writes the
// client-safe APIError envelope. The underlying cause is never rendered —
// only logged, and only for the internal kind does the client see nothing
// but an opaque request ID to hand back to support (spec.md §7).
func writeError(w http.ResponseWriter, logger zerolog.Logger, requestID string, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal(err, "unexpected error")
	}

	status := apperrors.HTTPStatus(appErr.Kind)
	logEvent := logger.Warn()
	if status >= 500 {
		logEvent = logger.Error()
	}
	logEvent.Err(appErr.Cause).Str("request_id", requestID).Str("kind", string(appErr.Kind)).Msg(appErr.Message)

	if appErr.Kind == apperrors.KindRateLimit {
		w.Header().Set("Retry-After", "60")
	}

	message := appErr.Message
	if appErr.Kind == apperrors.KindInternal {
		message = "internal error, reference request_id for support"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{Code: appErr.Code, Message: message},
		Meta:  model.ResponseMeta{RequestID: requestID, Timestamp: time.Now().UTC()},
	})
}

// decodeJSON decodes the request body into dst, rejecting unknown fields
// and bodies larger than maxBytes so a malformed client can't exhaust
// memory or silently drop fields it misspelled.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return apperrors.Validation("request body is required")
		}
		return apperrors.Validation("malformed request body: %v", err)
	}
	if dec.More() {
		return apperrors.Validation("request body must contain a single JSON object")
	}
	return nil
}
