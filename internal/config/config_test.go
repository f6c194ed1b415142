package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestLoadFailsOnInvalidPort(t *testing.T) {
	t.Setenv("RISKCAST_PORT", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid RISKCAST_PORT")
	}
	if got := err.Error(); !strings.Contains(got, "RISKCAST_PORT") || !strings.Contains(got, "abc") {
		t.Fatalf("error should mention RISKCAST_PORT and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("RISKCAST_PORT", "abc")
	t.Setenv("RISKCAST_LEDGER_BATCH_SIZE", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !strings.Contains(got, "RISKCAST_PORT") || !strings.Contains(got, "RISKCAST_LEDGER_BATCH_SIZE") {
		t.Fatalf("error should mention both invalid vars, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
}

func TestLoad_JWTKeyPathValidation(t *testing.T) {
	bogusPath := filepath.Join(os.TempDir(), "riskcast-test-nonexistent-key-file.pem")
	t.Setenv("RISKCAST_JWT_PRIVATE_KEY", bogusPath)
	t.Setenv("RISKCAST_JWT_PUBLIC_KEY", bogusPath)

	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when RISKCAST_JWT_PRIVATE_KEY points to a nonexistent file")
	}
	if got := err.Error(); !strings.Contains(got, bogusPath) {
		t.Fatalf("error should mention the path %q, got: %s", bogusPath, got)
	}
}

func TestLoad_JWTKeyBothOrNeither(t *testing.T) {
	t.Run("private only fails", func(t *testing.T) {
		t.Setenv("RISKCAST_JWT_PRIVATE_KEY", "/some/path")
		t.Setenv("RISKCAST_JWT_PUBLIC_KEY", "")

		_, err := Load()
		if err == nil {
			t.Fatal("expected Load() to fail when only private key is set")
		}
		if !strings.Contains(err.Error(), "both be set or both be empty") {
			t.Fatalf("error should mention both-or-neither, got: %s", err.Error())
		}
	})

	t.Run("both empty succeeds (ephemeral)", func(t *testing.T) {
		t.Setenv("RISKCAST_JWT_PRIVATE_KEY", "")
		t.Setenv("RISKCAST_JWT_PUBLIC_KEY", "")

		_, err := Load()
		if err != nil {
			t.Fatalf("expected Load() to succeed with both keys empty (ephemeral mode), got: %v", err)
		}
	})
}

func TestLoad_OTELEndpointParsing(t *testing.T) {
	endpoint := "https://otel.example.com:4317"
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", endpoint)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.OTELEndpoint != endpoint {
		t.Fatalf("expected OTELEndpoint %q, got %q", endpoint, cfg.OTELEndpoint)
	}
}

func TestLoad_CORSOriginsParsing(t *testing.T) {
	t.Setenv("RISKCAST_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %d: %v", len(cfg.CORSAllowedOrigins), cfg.CORSAllowedOrigins)
	}
}
