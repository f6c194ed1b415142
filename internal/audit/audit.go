// Package audit implements the tamper-evident, hash-chained audit log
// (C1). The chain is global across every tenant: one writer at a time
// advances the chain head, so no two entries can ever claim the same
// previous_hash (spec.md §4.1, §5 "Ordering guarantees").
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/model"
)

// ChannelAuditEvents must match storage.ChannelAuditEvents. Duplicated as
// a literal rather than imported so this package keeps depending only on
// the narrow Store interface below, not on the concrete storage package.
const ChannelAuditEvents = "riskcast_audit_events"

// Store is the persistence dependency audit.Log needs. Implemented by
// *storage.DB.
type Store interface {
	AppendAuditEntry(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error)
	AuditEntriesPage(ctx context.Context, afterTimestamp time.Time, limit int) ([]model.AuditEntry, error)
	StreamAuditChain(ctx context.Context) ([]model.AuditEntry, error)
	LatestAuditEntryByResource(ctx context.Context, tenantID, resource string) (model.AuditEntry, error)
	Notify(ctx context.Context, channel, payload string) error
}

// Log is the audit service. Logging failures never propagate to the
// caller's business flow (spec.md §4.1 "Failure semantics") — a failed
// write is logged out-of-band here and swallowed.
type Log struct {
	store  Store
	logger zerolog.Logger
}

func New(store Store, logger zerolog.Logger) *Log {
	return &Log{store: store, logger: logger}
}

// Event describes one action to record. TenantID and Actor may be empty
// for system-initiated actions (reconcile runs, flywheel cycles).
type Event struct {
	TenantID string
	Actor    string
	Action   string
	Resource string
	Outcome  model.AuditOutcome
	Details  map[string]any
}

// separatorByte (NUL) is rejected at the API boundary per spec.md §4.1
// ("No field may contain the separator") — length-prefixed hashing makes
// this unnecessary for hash-collision purposes, but an action/actor
// containing a NUL byte is still almost certainly a caller bug worth
// rejecting rather than silently hashing. Other control characters are
// accepted.
const separatorByte = '\x00'

// Validate rejects a raw NUL byte in any free-text field, the one
// character that could otherwise corrupt SQL text columns or log output.
func (e Event) Validate() error {
	for _, s := range []string{e.TenantID, e.Actor, e.Action, e.Resource} {
		for i := 0; i < len(s); i++ {
			if s[i] == separatorByte {
				return errFieldContainsSeparator
			}
		}
	}
	return nil
}

var errFieldContainsSeparator = &validationError{"audit: field contains a NUL byte"}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

// Log appends ev to the chain. A write failure is logged and swallowed —
// the caller's flow must never break because the audit log is degraded.
func (l *Log) Log(ctx context.Context, ev Event) {
	if err := ev.Validate(); err != nil {
		l.logger.Error().Err(err).Msg("audit: rejected event at API boundary")
		return
	}
	entry := model.AuditEntry{
		EntryID:   "audit_" + uuid.New().String(),
		Timestamp: time.Now().UTC(),
		TenantID:  ev.TenantID,
		Actor:     ev.Actor,
		Action:    ev.Action,
		Resource:  ev.Resource,
		Outcome:   ev.Outcome,
		Details:   ev.Details,
	}
	stored, err := l.store.AppendAuditEntry(ctx, entry)
	if err != nil {
		l.logger.Error().Err(err).Str("action", ev.Action).Msg("audit: log write failed, proceeding without it")
		return
	}
	l.publish(ctx, stored)
}

// publish notifies live subscribers (internal/server's Broker) of a newly
// appended entry. Best-effort: a dropped NOTIFY never fails the audit
// write itself, since the row is already durable in Postgres.
func (l *Log) publish(ctx context.Context, entry model.AuditEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		l.logger.Warn().Err(err).Msg("audit: failed to marshal entry for notify")
		return
	}
	if err := l.store.Notify(ctx, ChannelAuditEvents, string(payload)); err != nil {
		l.logger.Warn().Err(err).Msg("audit: failed to publish notification")
	}
}

// Page returns up to limit entries after afterTimestamp, for the
// paginated GET /audit-trail endpoint.
func (l *Log) Page(ctx context.Context, afterTimestamp time.Time, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return l.store.AuditEntriesPage(ctx, afterTimestamp, limit)
}

// LatestByResource returns the most recently logged entry for (tenantID,
// resource) — e.g. "decision:<decision_id>" — so a handler can recover a
// decision's frozen prediction before recording its outcome, since
// decisions are never persisted as their own row (spec.md §6).
func (l *Log) LatestByResource(ctx context.Context, tenantID, resource string) (model.AuditEntry, error) {
	return l.store.LatestAuditEntryByResource(ctx, tenantID, resource)
}

// maxBreaksReported caps how many chain breaks verify_chain surfaces, per
// spec.md §4.1 ("First 10 breaks are returned").
const maxBreaksReported = 10

// ChainBreak describes one place the hash chain failed to verify.
type ChainBreak struct {
	EntryID      string    `json:"entry_id"`
	Timestamp    time.Time `json:"timestamp"`
	ExpectedHash string    `json:"expected"`
	ActualHash   string    `json:"actual"`
}

// VerifyResult is the outcome of walking the whole chain.
type VerifyResult struct {
	Valid          bool         `json:"valid"`
	EntriesChecked int          `json:"entries_checked"`
	Breaks         []ChainBreak `json:"breaks,omitempty"`
	VerifiedAt     time.Time    `json:"verified_at"`
}

// VerifyChain streams the chain in timestamp order and checks, for every
// entry, that its stored previous_hash equals the prior entry's
// entry_hash and that its own entry_hash is a correct recomputation
// (spec.md §4.1 verify_chain). This is advisory and read-only — it never
// mutates the log.
func (l *Log) VerifyChain(ctx context.Context) (VerifyResult, error) {
	entries, err := l.store.StreamAuditChain(ctx)
	if err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{Valid: true, VerifiedAt: time.Now().UTC()}
	previousHash := ""
	for _, e := range entries {
		result.EntriesChecked++
		brokenPrev := e.PreviousHash != previousHash
		brokenSelf := !e.VerifyHash(previousHash)
		if brokenPrev || brokenSelf {
			result.Valid = false
			if len(result.Breaks) < maxBreaksReported {
				expected := model.ComputeEntryHash(e.EntryID, e.Timestamp, e.Action, e.TenantID, e.Actor, e.Outcome, previousHash)
				result.Breaks = append(result.Breaks, ChainBreak{
					EntryID:      e.EntryID,
					Timestamp:    e.Timestamp,
					ExpectedHash: expected,
					ActualHash:   e.EntryHash,
				})
			}
		}
		previousHash = e.EntryHash
	}
	return result, nil
}
