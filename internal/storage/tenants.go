package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/riskcast/core/internal/model"
)

// CreateTenant inserts a new tenant row.
func (db *DB) CreateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	cfgJSON, err := json.Marshal(t.RiskConfig)
	if err != nil {
		return model.Tenant{}, fmt.Errorf("storage: marshal risk config: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO tenants (id, slug, name, risk_config, created_at, updated_at)
		 VALUES ($1,$2,$3,$4::jsonb,$5,$6)`,
		t.ID, t.Slug, t.Name, cfgJSON, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Tenant{}, ErrConflict
		}
		return model.Tenant{}, fmt.Errorf("storage: create tenant: %w", err)
	}
	return t, nil
}

// GetTenantBySlug looks up a tenant by its slug.
func (db *DB) GetTenantBySlug(ctx context.Context, slug string) (model.Tenant, error) {
	return db.scanOneTenant(ctx,
		`SELECT id, slug, name, risk_config, created_at, updated_at FROM tenants WHERE slug = $1`, slug)
}

// GetTenantByID looks up a tenant by its UUID.
func (db *DB) GetTenantByID(ctx context.Context, id uuid.UUID) (model.Tenant, error) {
	return db.scanOneTenant(ctx,
		`SELECT id, slug, name, risk_config, created_at, updated_at FROM tenants WHERE id = $1`, id)
}

// UpdateTenantRiskConfig persists a tenant's per-tenant risk engine
// overrides (fusion weights, prior alpha/beta — spec.md §6 env/config,
// applied as tenant overrides rather than process-wide env vars).
func (db *DB) UpdateTenantRiskConfig(ctx context.Context, id uuid.UUID, cfg model.RiskConfig) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("storage: marshal risk config: %w", err)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE tenants SET risk_config = $1::jsonb, updated_at = $2 WHERE id = $3`,
		cfgJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("storage: update tenant risk config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTenants returns every tenant, for background jobs (the reconcile
// scheduling loop in cmd/riskcastd) that must fan out over all of them
// rather than operate on one tenant scoped by a request.
func (db *DB) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, slug, name, risk_config, created_at, updated_at FROM tenants ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		var t model.Tenant
		var cfgJSON []byte
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &cfgJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan tenant: %w", err)
		}
		if len(cfgJSON) > 0 {
			if err := json.Unmarshal(cfgJSON, &t.RiskConfig); err != nil {
				return nil, fmt.Errorf("storage: unmarshal risk config: %w", err)
			}
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (db *DB) scanOneTenant(ctx context.Context, sql string, args ...any) (model.Tenant, error) {
	var t model.Tenant
	var cfgJSON []byte
	err := db.pool.QueryRow(ctx, sql, args...).Scan(&t.ID, &t.Slug, &t.Name, &cfgJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Tenant{}, ErrNotFound
		}
		return model.Tenant{}, fmt.Errorf("storage: scan tenant: %w", err)
	}
	if len(cfgJSON) > 0 {
		if err := json.Unmarshal(cfgJSON, &t.RiskConfig); err != nil {
			return model.Tenant{}, fmt.Errorf("storage: unmarshal risk config: %w", err)
		}
	}
	return t, nil
}
