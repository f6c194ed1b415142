package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tenant is the opaque isolation boundary. Every row with a tenant column,
// every query, and every log entry must carry the same tag (I1).
type Tenant struct {
	ID        uuid.UUID      `json:"id"`
	Slug      string         `json:"slug"`
	Name      string         `json:"name"`
	RiskConfig RiskConfig    `json:"risk_config"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// RiskConfig holds per-tenant overrides for the risk engine's configurable
// parameters (spec.md §6 "Environment/config"). Zero values mean "use the
// engine default" — overrides are sparse, not a full copy of the defaults.
type RiskConfig struct {
	FusionWeights map[string]float64 `json:"fusion_weights,omitempty"`
	PriorAlpha    *float64           `json:"prior_alpha,omitempty"`
	PriorBeta     *float64           `json:"prior_beta,omitempty"`
}

// ValidateTenantSlug checks that a tenant slug conforms to the allowed
// format: lowercase letters, digits, and hyphens, starting with a letter.
func ValidateTenantSlug(slug string) error {
	if len(slug) == 0 {
		return fmt.Errorf("tenant slug must not be empty")
	}
	if len(slug) > 64 {
		return fmt.Errorf("tenant slug must be at most 64 characters")
	}
	for i := 0; i < len(slug); i++ {
		c := slug[i]
		if i == 0 {
			if c < 'a' || c > 'z' {
				return fmt.Errorf("tenant slug must start with a lowercase letter, got %q", c)
			}
			continue
		}
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return fmt.Errorf("tenant slug contains invalid character at position %d: %q", i, c)
		}
	}
	return nil
}
