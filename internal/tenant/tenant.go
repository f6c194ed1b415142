// Package tenant provides the context accessors that carry the current
// tenant tag through every request, query, and log line. The auth
// middleware sets the tenant here; handlers read it back and pass it to
// storage and audit calls as an explicit tenant parameter (I1).
package tenant

import (
	"context"
	"fmt"

	"github.com/riskcast/core/internal/auth"
)

type contextKey string

const keyTenantID contextKey = "tenant_id"

// WithClaims returns a new context carrying the tenant ID from claims.
// Call this once, from the auth middleware, immediately after a token or
// API key is validated.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, keyTenantID, claims.TenantID)
}

// With returns a new context explicitly scoped to tenantID. Used by the
// API-key auth middleware, which has a tenant ID but no JWT claims.
func With(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, keyTenantID, tenantID)
}

// FromContext extracts the tenant ID, returning an error if the context
// was never scoped. Storage and audit code should treat a missing tenant
// as a programmer error, not fall back to a default.
func FromContext(ctx context.Context) (string, error) {
	v, ok := ctx.Value(keyTenantID).(string)
	if !ok || v == "" {
		return "", fmt.Errorf("tenant: context has no tenant_id scope")
	}
	return v, nil
}

// MustFromContext panics if the context has no tenant scope. Reserved for
// code paths that are only ever reachable after the auth middleware has
// run — a panic here means a route was wired without that middleware.
func MustFromContext(ctx context.Context) string {
	v, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return v
}
