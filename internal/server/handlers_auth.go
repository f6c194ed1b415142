package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/riskcast/core/internal/apperrors"
	"github.com/riskcast/core/internal/auth"
	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/tenant"
)

// clientIPFromRequest returns the remote address for brute-force
// tracking, matching rateLimitMiddleware's own fallback-to-RemoteAddr
// convention (SPEC_FULL.md §11's brute-force throttling supplemented
// feature, grounded on the original's riskcast/middleware/brute_force.py).
func clientIPFromRequest(r *http.Request) string {
	return r.RemoteAddr
}

// handleIssueToken exchanges a shared-secret API key for a short-lived
// session bearer token (spec.md §6: ingest/reconcile use the API key
// directly; assessment/decision/outcome/audit/monitor use this token).
func (h *handlers) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	header := r.Header.Get("Authorization")
	rawKey, ok := strings.CutPrefix(header, "ApiKey ")
	if !ok || rawKey == "" {
		writeError(w, h.logger, reqID, apperrors.Auth("missing API key"))
		return
	}

	clientIP := clientIPFromRequest(r)
	prefix := auth.KeyPrefix(rawKey)

	if h.bruteForce != nil {
		if allowed, reason, retryAfter := h.bruteForce.CheckAllowed(clientIP, prefix); !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			writeError(w, h.logger, reqID, apperrors.RateLimited("%s", reason))
			return
		}
	}

	candidates, err := h.db.GetAPIKeysByPrefix(r.Context(), prefix)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Dependency(err, "api key lookup failed"))
		return
	}

	var matched *model.APIKey
	for i := range candidates {
		if !candidates[i].Active() {
			continue
		}
		if ok, err := auth.VerifyAPIKey(rawKey, candidates[i].HashedKey); err == nil && ok {
			matched = &candidates[i]
			break
		}
	}
	if matched == nil {
		auth.DummyVerify()
		if h.bruteForce != nil {
			h.bruteForce.RecordFailure(clientIP, prefix)
		}
		writeError(w, h.logger, reqID, apperrors.Auth("invalid API key"))
		return
	}
	if h.bruteForce != nil {
		h.bruteForce.RecordSuccess(clientIP, prefix)
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(matched.TenantID, matched.Role, &matched.ID)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to issue token"))
		return
	}

	if err := h.db.TouchAPIKeyLastUsed(r.Context(), matched.ID); err != nil {
		h.logger.Warn().Err(err).Str("key_id", matched.ID).Msg("server: failed to touch api key last_used_at")
	}

	writeJSON(w, http.StatusOK, reqID, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt,
	})
}

// handleIssueScopedToken lets an admin impersonate another tenant's view
// for a bounded TTL — support/diagnostics access without sharing that
// tenant's own API key (auth.JWTManager.IssueScopedToken).
func (h *handlers) handleIssueScopedToken(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	var req struct {
		TenantID string     `json:"tenant_id"`
		Role     model.Role `json:"role"`
		TTL      string     `json:"ttl,omitempty"`
	}
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}
	if !model.ValidateRole(req.Role) {
		writeError(w, h.logger, reqID, apperrors.Validation("invalid role %q", req.Role))
		return
	}

	ttl := auth.MaxScopedTokenTTL
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil || parsed <= 0 || parsed > auth.MaxScopedTokenTTL {
			writeError(w, h.logger, reqID, apperrors.Validation("ttl must be a positive duration up to %s", auth.MaxScopedTokenTTL))
			return
		}
		ttl = parsed
	}

	adminTenantID, err := tenant.FromContext(r.Context())
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Auth("request has no tenant scope"))
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueScopedToken(adminTenantID, req.TenantID, req.Role, ttl)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to issue scoped token"))
		return
	}
	writeJSON(w, http.StatusOK, reqID, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt,
	})
}

func newAPIKeySecret() (raw string, err error) {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return "rck_" + hex.EncodeToString(b[:]), nil
}

// handleCreateAPIKey provisions a new tenant-scoped API key, grounded on
// the original's riskcast/auth/api_keys.py issuance flow (SPEC_FULL.md
// §11 supplemented feature). The plaintext key is returned exactly once.
func (h *handlers) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	var req struct {
		TenantID string     `json:"tenant_id"`
		Role     model.Role `json:"role"`
		Label    string     `json:"label,omitempty"`
	}
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, h.logger, reqID, err)
		return
	}
	if !model.ValidateRole(req.Role) {
		writeError(w, h.logger, reqID, apperrors.Validation("invalid role %q", req.Role))
		return
	}

	rawKey, err := newAPIKeySecret()
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to generate api key"))
		return
	}
	hashed, err := auth.HashAPIKey(rawKey)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to hash api key"))
		return
	}

	created, err := h.db.CreateAPIKey(r.Context(), model.APIKey{
		TenantID:  req.TenantID,
		Prefix:    auth.KeyPrefix(rawKey),
		HashedKey: hashed,
		Role:      req.Role,
		Label:     req.Label,
	})
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to store api key"))
		return
	}

	writeJSON(w, http.StatusCreated, reqID, map[string]any{
		"id":      created.ID,
		"prefix":  created.Prefix,
		"key":     rawKey,
		"role":    created.Role,
		"created_at": created.CreatedAt,
	})
}

func (h *handlers) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, h.logger, reqID, apperrors.Validation("tenant_id query parameter is required"))
		return
	}
	keys, err := h.db.ListAPIKeysForTenant(r.Context(), tenantID)
	if err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to list api keys"))
		return
	}
	writeJSON(w, http.StatusOK, reqID, keys)
}

func (h *handlers) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tenantID := r.URL.Query().Get("tenant_id")
	keyID := chi.URLParam(r, "key_id")
	if tenantID == "" || keyID == "" {
		writeError(w, h.logger, reqID, apperrors.Validation("tenant_id query parameter and key_id are required"))
		return
	}
	if err := h.db.RevokeAPIKey(r.Context(), tenantID, keyID); err != nil {
		writeError(w, h.logger, reqID, apperrors.Internal(err, "failed to revoke api key"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
