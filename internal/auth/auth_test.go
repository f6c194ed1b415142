package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskcast/core/internal/auth"
	"github.com/riskcast/core/internal/model"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := auth.HashAPIKey("test-key-123")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	valid, err := auth.VerifyAPIKey("test-key-123", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyAPIKey("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestKeyPrefix(t *testing.T) {
	assert.Equal(t, "rck_abc", auth.KeyPrefix("abc"))
	assert.Equal(t, "rck_7f3a91", auth.KeyPrefix("7f3a91fedcba9876"))
}

func TestJWTIssueAndValidate(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", 1*time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := mgr.IssueToken("acme-corp", model.RoleOperator, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", claims.TenantID)
	assert.Equal(t, model.RoleOperator, claims.Role)
}

func TestJWTIssueToken_IngestRoleHasNoTenant(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", 1*time.Hour)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken("", model.RoleIngest, nil)
	require.NoError(t, err)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleIngest, claims.Role)
}

// newTestJWTManagerWithKey creates a JWTManager backed by a real Ed25519 key pair
// written to temp PEM files, and returns the raw private key for forging tokens.
func newTestJWTManagerWithKey(t *testing.T) (*auth.JWTManager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	dir := t.TempDir()

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})
	privPath := filepath.Join(dir, "priv.pem")
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	pubPath := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)
	return mgr, priv
}

// forgeToken signs a JWT with the given private key and claims.
func forgeToken(t *testing.T, privKey ed25519.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(privKey)
	require.NoError(t, err)
	return signed
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	mgr, privKey := newTestJWTManagerWithKey(t)

	now := time.Now().UTC()
	token := forgeToken(t, privKey, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acme-corp",
			Issuer:    "not-riskcast",
			Audience:  jwt.ClaimStrings{"riskcast"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
		TenantID: "acme-corp",
		Role:     model.RoleViewer,
	})

	_, err := mgr.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid issuer")
}

func TestValidateToken_UnknownRole(t *testing.T) {
	mgr, privKey := newTestJWTManagerWithKey(t)

	now := time.Now().UTC()
	token := forgeToken(t, privKey, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acme-corp",
			Issuer:    "riskcast",
			Audience:  jwt.ClaimStrings{"riskcast"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
		TenantID: "acme-corp",
		Role:     model.Role("superuser"),
	})

	_, err := mgr.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")
}

func TestValidateToken_MissingTenant(t *testing.T) {
	mgr, privKey := newTestJWTManagerWithKey(t)

	now := time.Now().UTC()
	token := forgeToken(t, privKey, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "",
			Issuer:    "riskcast",
			Audience:  jwt.ClaimStrings{"riskcast"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		},
		TenantID: "",
		Role:     model.RoleViewer,
	})

	_, err := mgr.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id")
}

func TestIssueScopedToken(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", 24*time.Hour)
	require.NoError(t, err)

	const adminTenant = "admin-hq"
	const targetTenant = "acme-corp"

	t.Run("claims carry target identity and scoped_by", func(t *testing.T) {
		token, expiresAt, err := mgr.IssueScopedToken(adminTenant, targetTenant, model.RoleViewer, 5*time.Minute)
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.True(t, expiresAt.After(time.Now()))
		assert.True(t, expiresAt.Before(time.Now().Add(6*time.Minute)))

		claims, err := mgr.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, targetTenant, claims.TenantID)
		assert.Equal(t, model.RoleViewer, claims.Role)
		assert.Equal(t, adminTenant, claims.ScopedBy)
	})

	t.Run("TTL is capped at MaxScopedTokenTTL", func(t *testing.T) {
		token, expiresAt, err := mgr.IssueScopedToken(adminTenant, targetTenant, model.RoleViewer, 48*time.Hour)
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.True(t, expiresAt.Before(time.Now().Add(auth.MaxScopedTokenTTL+time.Minute)),
			"expiry should be capped at MaxScopedTokenTTL")
	})

	t.Run("zero TTL defaults to MaxScopedTokenTTL", func(t *testing.T) {
		token, expiresAt, err := mgr.IssueScopedToken(adminTenant, targetTenant, model.RoleViewer, 0)
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.True(t, expiresAt.After(time.Now()))
	})
}
