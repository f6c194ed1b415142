package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/riskcast/core/internal/model"
)

// AppendAuditEntry seals and inserts entry under the global chain-head
// lock. The hash chain spans every tenant (spec.md §3 Audit Entry: "hash
// chain is global across tenants to prevent re-ordering"), so there is
// exactly one head row, not one per tenant — this mirrors the reserve-row
// locking pattern used elsewhere for idempotency, but locks a single
// singleton row instead of inserting a new one.
//
// entry must have EntryID, Timestamp, Action, Outcome and (optionally)
// TenantID/Actor/Resource/Details already set; EntryHash/PreviousHash are
// computed here under the lock.
func (db *DB) AppendAuditEntry(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("storage: begin audit append tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var previousHash string
	err = tx.QueryRow(ctx, `SELECT last_entry_hash FROM audit_chain_head WHERE id = 1 FOR UPDATE`).Scan(&previousHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AuditEntry{}, fmt.Errorf("storage: audit_chain_head row missing — migration not applied")
		}
		return model.AuditEntry{}, fmt.Errorf("storage: lock audit chain head: %w", err)
	}

	entry.Seal(previousHash)

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("storage: marshal audit details: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO audit_log (entry_id, timestamp, tenant_id, actor, action, resource, outcome,
		        details, previous_hash, entry_hash)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9,$10)`,
		entry.EntryID, entry.Timestamp, entry.TenantID, entry.Actor, entry.Action, entry.Resource,
		entry.Outcome, detailsJSON, entry.PreviousHash, entry.EntryHash,
	)
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("storage: insert audit entry: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE audit_chain_head SET last_entry_hash = $1 WHERE id = 1`, entry.EntryHash); err != nil {
		return model.AuditEntry{}, fmt.Errorf("storage: advance audit chain head: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.AuditEntry{}, fmt.Errorf("storage: commit audit append tx: %w", err)
	}
	return entry, nil
}

// AuditEntriesPage returns up to limit audit entries in timestamp order
// with timestamps after afterTimestamp (the zero time for the first page), for the
// paginated GET /audit-trail endpoint. Entries are global, not
// tenant-filtered here — callers scope visibility at the handler layer
// per the caller's role.
func (db *DB) AuditEntriesPage(ctx context.Context, afterTimestamp time.Time, limit int) ([]model.AuditEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT entry_id, timestamp, tenant_id, actor, action, resource, outcome, details,
		        previous_hash, entry_hash
		 FROM audit_log WHERE timestamp > $1 ORDER BY timestamp ASC LIMIT $2`,
		afterTimestamp, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: audit entries page: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// StreamAuditChain returns the full audit log in timestamp order, for
// verify_chain (spec.md §4.1). Production-sized chains should page this;
// the monitor endpoints that call it are advisory, not request-path.
func (db *DB) StreamAuditChain(ctx context.Context) ([]model.AuditEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT entry_id, timestamp, tenant_id, actor, action, resource, outcome, details,
		        previous_hash, entry_hash
		 FROM audit_log ORDER BY timestamp ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: stream audit chain: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// LatestAuditEntryByResource returns the most recent audit entry for
// (tenantID, resource) — used to recover a decision's frozen prediction
// at outcome-recording time, since decisions are audit-logged value
// objects rather than rows in their own table (spec.md §6 persisted-state
// layout lists no decisions table). ErrNotFound if no such entry exists.
func (db *DB) LatestAuditEntryByResource(ctx context.Context, tenantID, resource string) (model.AuditEntry, error) {
	var e model.AuditEntry
	var details []byte
	err := db.pool.QueryRow(ctx,
		`SELECT entry_id, timestamp, tenant_id, actor, action, resource, outcome, details,
		        previous_hash, entry_hash
		 FROM audit_log WHERE tenant_id = $1 AND resource = $2 ORDER BY timestamp DESC LIMIT 1`,
		tenantID, resource,
	).Scan(&e.EntryID, &e.Timestamp, &e.TenantID, &e.Actor, &e.Action, &e.Resource,
		&e.Outcome, &details, &e.PreviousHash, &e.EntryHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AuditEntry{}, ErrNotFound
		}
		return model.AuditEntry{}, fmt.Errorf("storage: latest audit entry by resource: %w", err)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return model.AuditEntry{}, fmt.Errorf("storage: unmarshal audit details: %w", err)
		}
	}
	return e, nil
}

func scanAuditEntries(rows rowsIterator) ([]model.AuditEntry, error) {
	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var details []byte
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.TenantID, &e.Actor, &e.Action, &e.Resource,
			&e.Outcome, &details, &e.PreviousHash, &e.EntryHash); err != nil {
			return nil, fmt.Errorf("storage: scan audit entry: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("storage: unmarshal audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
