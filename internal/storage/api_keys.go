package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/riskcast/core/internal/model"
)

// CreateAPIKey inserts a new managed API key row. The plaintext key never
// reaches storage — only its Argon2id hash and display prefix.
func (db *DB) CreateAPIKey(ctx context.Context, k model.APIKey) (model.APIKey, error) {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, prefix, key_hash, role, label, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		k.ID, k.TenantID, k.Prefix, k.HashedKey, k.Role, k.Label, k.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.APIKey{}, ErrConflict
		}
		return model.APIKey{}, fmt.Errorf("storage: create api key: %w", err)
	}
	return k, nil
}

// GetAPIKeysByPrefix returns all active keys sharing a display prefix
// (prefixes are not required to be globally unique — only the Argon2id
// hash verification that follows establishes a match). Auth code
// verifies each active candidate's hash and accepts the first match.
func (db *DB) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]model.APIKey, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, tenant_id, prefix, key_hash, role, label, created_at, revoked_at, last_used_at
		 FROM api_keys WHERE prefix = $1 AND revoked_at IS NULL`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get api keys by prefix: %w", err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Prefix, &k.HashedKey, &k.Role, &k.Label,
			&k.CreatedAt, &k.RevokedAt, &k.LastUsedAt); err != nil {
			return nil, fmt.Errorf("storage: scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// GetAPIKeyByID fetches one key scoped to a tenant.
func (db *DB) GetAPIKeyByID(ctx context.Context, tenantID, keyID string) (model.APIKey, error) {
	var k model.APIKey
	err := db.pool.QueryRow(ctx,
		`SELECT id, tenant_id, prefix, key_hash, role, label, created_at, revoked_at, last_used_at
		 FROM api_keys WHERE tenant_id = $1 AND id = $2`,
		tenantID, keyID,
	).Scan(&k.ID, &k.TenantID, &k.Prefix, &k.HashedKey, &k.Role, &k.Label, &k.CreatedAt, &k.RevokedAt, &k.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.APIKey{}, ErrNotFound
		}
		return model.APIKey{}, fmt.Errorf("storage: get api key by id: %w", err)
	}
	return k, nil
}

// ListAPIKeysForTenant returns every key (active and revoked) belonging to
// a tenant, for the key-management admin surface.
func (db *DB) ListAPIKeysForTenant(ctx context.Context, tenantID string) ([]model.APIKey, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, tenant_id, prefix, key_hash, role, label, created_at, revoked_at, last_used_at
		 FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list api keys for tenant: %w", err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Prefix, &k.HashedKey, &k.Role, &k.Label,
			&k.CreatedAt, &k.RevokedAt, &k.LastUsedAt); err != nil {
			return nil, fmt.Errorf("storage: scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey sets revoked_at, permanently disabling the key.
func (db *DB) RevokeAPIKey(ctx context.Context, tenantID, keyID string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = $1 WHERE tenant_id = $2 AND id = $3 AND revoked_at IS NULL`,
		time.Now().UTC(), tenantID, keyID,
	)
	if err != nil {
		return fmt.Errorf("storage: revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchAPIKeyLastUsed updates last_used_at, best-effort bookkeeping for
// audit display — callers should not fail a request if this fails.
func (db *DB) TouchAPIKeyLastUsed(ctx context.Context, keyID string) error {
	_, err := db.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now().UTC(), keyID)
	if err != nil {
		return fmt.Errorf("storage: touch api key last used: %w", err)
	}
	return nil
}
