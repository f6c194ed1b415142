package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/apperrors"
	"github.com/riskcast/core/internal/auth"
	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/ratelimit"
	"github.com/riskcast/core/internal/tenant"
)

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyRole      contextKey = "role"
)

// RoleFromContext extracts the caller's role, set by authBearer or
// authAPIKey. Returns "" if the request reached a handler without going
// through either (a route wired without auth middleware — a bug).
func RoleFromContext(ctx context.Context) model.Role {
	if v, ok := ctx.Value(contextKeyRole).(model.Role); ok {
		return v
	}
	return ""
}

// RequestIDFromContext extracts the request ID set by requestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func newRequestID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func isValidRequestID(id string) bool {
	if len(id) == 0 || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// requestIDMiddleware adopts an incoming X-Request-ID if well-formed,
// otherwise mints one, and always echoes it back on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if !isValidRequestID(reqID) {
			reqID = newRequestID()
		}
		ctx := context.WithValue(r.Context(), contextKeyRequestID, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusWriter captures the status code written so loggingMiddleware can
// record it, while still supporting Flush for streaming responses.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// loggingMiddleware logs one structured line per request.
func loggingMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)

		logger.Info().
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// recoveryMiddleware converts a panic into a 500 instead of crashing the
// process, matching the no-stack-trace-to-client rule in spec.md §7.
func recoveryMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", RequestIDFromContext(r.Context())).
					Msg("panic recovered")
				writeError(w, logger, RequestIDFromContext(r.Context()), apperrors.Internal(nil, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware reflects only configured origins; "*" permits any.
func corsMiddleware(allowedOrigins []string, next http.Handler) http.Handler {
	originSet := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
		originSet[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || originSet[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Idempotency-Key")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware adds standard response hardening headers,
// supplemented from the original Python implementation's
// riskcast/middleware/security_headers.py (SPEC_FULL.md §11).
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware enforces a request budget keyed on the tenant once
// authenticated, falling back to remote address beforehand.
func rateLimitMiddleware(limiter ratelimit.Limiter, logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := tenant.FromContext(r.Context())
		if err != nil || key == "" {
			key = r.RemoteAddr
		}
		allowed, err := limiter.Allow(r.Context(), key)
		if err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("server: rate limiter error, failing open")
		} else if !allowed {
			writeError(w, logger, RequestIDFromContext(r.Context()), apperrors.RateLimited("rate limit exceeded for %s", key))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authBearer validates a `Bearer <jwt>` Authorization header and stores
// the resulting claims (tenant, role) on the request context. Used on the
// assessment/decision/outcome/audit/monitor routes (spec.md §6 "session
// bearer token auth").
func authBearer(jwtMgr *auth.JWTManager, logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, logger, RequestIDFromContext(r.Context()), apperrors.Auth("missing bearer token"))
			return
		}
		claims, err := jwtMgr.ValidateToken(token)
		if err != nil {
			writeError(w, logger, RequestIDFromContext(r.Context()), apperrors.Auth("invalid or expired bearer token"))
			return
		}
		ctx := tenant.WithClaims(r.Context(), claims)
		ctx = context.WithValue(ctx, contextKeyRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// apiKeyLookup is the lookup function authAPIKey needs, satisfied by
// (*storage.DB).GetAPIKeysByPrefix.
type apiKeyLookup func(ctx context.Context, prefix string) ([]model.APIKey, error)

// authAPIKey validates a shared-secret `ApiKey <raw-key>` Authorization
// header directly, without a token exchange — used on the ingest and
// reconcile routes (spec.md §6 "shared-secret API-key header auth"),
// which are producer/scheduler identities rather than interactive
// sessions.
func authAPIKey(lookup apiKeyLookup, logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		rawKey, ok := strings.CutPrefix(header, "ApiKey ")
		if !ok || rawKey == "" {
			writeError(w, logger, RequestIDFromContext(r.Context()), apperrors.Auth("missing API key"))
			return
		}

		prefix := auth.KeyPrefix(rawKey)
		candidates, err := lookup(r.Context(), prefix)
		if err != nil {
			writeError(w, logger, RequestIDFromContext(r.Context()), apperrors.Dependency(err, "api key lookup failed"))
			return
		}

		var matched *model.APIKey
		for i := range candidates {
			if !candidates[i].Active() {
				continue
			}
			ok, err := auth.VerifyAPIKey(rawKey, candidates[i].HashedKey)
			if err == nil && ok {
				matched = &candidates[i]
				break
			}
		}
		if matched == nil {
			auth.DummyVerify() // keep timing consistent with a successful lookup
			writeError(w, logger, RequestIDFromContext(r.Context()), apperrors.Auth("invalid API key"))
			return
		}

		ctx := tenant.With(r.Context(), matched.TenantID)
		ctx = context.WithValue(ctx, contextKeyRole, matched.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole rejects requests whose authenticated role is not in
// allowed. Must run after authBearer or authAPIKey.
func requireRole(logger zerolog.Logger, allowed ...model.Role) func(http.Handler) http.Handler {
	allowedSet := make(map[model.Role]bool, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowedSet[RoleFromContext(r.Context())] {
				writeError(w, logger, RequestIDFromContext(r.Context()), apperrors.Auth("role does not permit this operation"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
