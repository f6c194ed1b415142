package tenant_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcast/core/internal/auth"
	"github.com/riskcast/core/internal/tenant"
)

func TestFromContext_MissingScope(t *testing.T) {
	_, err := tenant.FromContext(context.Background())
	require.Error(t, err)
}

func TestWithAndFromContext(t *testing.T) {
	ctx := tenant.With(context.Background(), "acme-corp")
	got, err := tenant.FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", got)
}

func TestWithClaims(t *testing.T) {
	claims := &auth.Claims{TenantID: "acme-corp"}
	ctx := tenant.WithClaims(context.Background(), claims)
	got, err := tenant.FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", got)
}

func TestMustFromContext_PanicsWithoutScope(t *testing.T) {
	assert.Panics(t, func() {
		tenant.MustFromContext(context.Background())
	})
}
