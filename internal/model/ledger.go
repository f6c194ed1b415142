package model

import (
	"time"

	"github.com/google/uuid"
)

// LedgerStatus is the append-only forward-only status of a ledger entry.
type LedgerStatus string

const (
	LedgerReceived LedgerStatus = "received"
	LedgerIngested LedgerStatus = "ingested"
	LedgerFailed   LedgerStatus = "failed"
)

// LedgerEntry is the write-ahead record of C2. It is never updated except
// for Status/AckID/IngestedAt (on success) or Status/ErrorMessage (on
// failure); both transitions are monotonic — once Ingested, never Failed.
type LedgerEntry struct {
	ID           uuid.UUID    `json:"id"`
	TenantID     uuid.UUID    `json:"tenant_id"`
	SignalID     string       `json:"signal_id"`
	Payload      []byte       `json:"-"`
	Status       LedgerStatus `json:"status"`
	AckID        *string      `json:"ack_id,omitempty"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	RecordedAt   time.Time    `json:"recorded_at"`
	IngestedAt   *time.Time   `json:"ingested_at,omitempty"`
}

// ReconcileStatus is the terminal status of a C4 reconcile run.
type ReconcileStatus string

const (
	ReconcileRunning   ReconcileStatus = "running"
	ReconcileCompleted ReconcileStatus = "completed"
	ReconcilePartial   ReconcileStatus = "partial"
	ReconcileFailed    ReconcileStatus = "failed"
)

// ReconcileRun is one row of reconcile_log (C4).
type ReconcileRun struct {
	ID             uuid.UUID       `json:"reconcile_id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	SinceDays      int             `json:"since_days"`
	TotalInLedger  int             `json:"total_in_ledger"`
	TotalInPrimary int             `json:"total_in_db"`
	MissingCount   int             `json:"missing_count"`
	ReplayedCount  int             `json:"replayed_count"`
	FailedCount    int             `json:"failed_count"`
	Status         ReconcileStatus `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// IsConsistent reports the invariant in spec.md §4.4:
// last_run.status == completed ∧ last_run.missing_count == 0.
func (r ReconcileRun) IsConsistent() bool {
	return r.Status == ReconcileCompleted && r.MissingCount == 0
}
