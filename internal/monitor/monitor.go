// Package monitor implements the pipeline monitor, integrity checker, and
// tracer (C5/C6/C7). All three are read-only views over data the ingest
// pipeline, ledger, and reconciler already own — this package adds no
// state of its own.
package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/ledger"
	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

// Store is the persistence surface the monitor reads directly (bypassing
// the ledger/ingest service wrappers where it needs primary-store-only
// queries those wrappers don't expose).
type Store interface {
	RecentSignalTimestamps(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]time.Time, error)
	RecentSignalLagSamples(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]storage.SignalLagSample, error)
	CountSignalsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error)
	CountFailedLedgerSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (int, error)
	SignalIDsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[string]struct{}, error)
	GetSignalBySignalID(ctx context.Context, tenantID uuid.UUID, signalID string) (model.Signal, error)
	GetOutcomeByDecisionID(ctx context.Context, tenantID, decisionID string) (model.OutcomeRecord, error)
}

// Monitor is the C5/C6/C7 service.
type Monitor struct {
	store  Store
	ledger *ledger.Ledger
	logger zerolog.Logger
}

func New(store Store, l *ledger.Ledger, logger zerolog.Logger) *Monitor {
	return &Monitor{store: store, ledger: l, logger: logger}
}
