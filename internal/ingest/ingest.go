// Package ingest implements the signal ingest pipeline (C3): validate →
// ledger → dedup → primary-insert → ack, with at-least-once delivery to
// the primary store and exactly-once identity by signal_id (spec.md
// §4.3).
package ingest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/riskcast/core/internal/audit"
	"github.com/riskcast/core/internal/ledger"
	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

// Store is the primary-store dependency the pipeline needs beyond the
// ledger.
type Store interface {
	GetSignalBySignalID(ctx context.Context, tenantID uuid.UUID, signalID string) (model.Signal, error)
	InsertSignal(ctx context.Context, s model.Signal) error
}

// AlertHook fires best-effort on high-severity ingests. Failures are
// logged and swallowed (spec.md §4.3 step 5): the ingest outcome never
// depends on whether an alert was delivered.
type AlertHook func(ctx context.Context, tenantID uuid.UUID, s model.Signal) error

// highSeverityThreshold is the probability above which an ingested signal
// fires the best-effort alert hook.
const highSeverityThreshold = 0.7

// Counters are the process-wide ingest counters spec.md §5 calls out as a
// shared singleton resource.
type Counters struct {
	Received atomic.Int64
	Ingested atomic.Int64
	Errors   atomic.Int64
}

// Pipeline is the C3 service.
type Pipeline struct {
	store     Store
	ledger    *ledger.Ledger
	auditLog  *audit.Log
	alertHook AlertHook
	logger    zerolog.Logger
	Counters  *Counters
}

func New(store Store, l *ledger.Ledger, auditLog *audit.Log, alertHook AlertHook, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		ledger:    l,
		auditLog:  auditLog,
		alertHook: alertHook,
		logger:    logger,
		Counters:  &Counters{},
	}
}

// Status is the outcome of one Ingest call (spec.md §4.3: new (200),
// duplicate (409); all other outcomes are fatal errors to the caller).
type Status int

const (
	StatusNew Status = iota
	StatusDuplicate
)

func newAckID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return "riskcast-ack-" + hex.EncodeToString(b[:])
}

// Ingest runs the full algorithm of spec.md §4.3 steps 1-6.
func (p *Pipeline) Ingest(ctx context.Context, tenantID uuid.UUID, event model.SignalEvent) (ackID string, status Status, err error) {
	p.Counters.Received.Add(1)

	if existing, err := p.store.GetSignalBySignalID(ctx, tenantID, event.SignalID); err == nil {
		return existing.AckID, StatusDuplicate, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", 0, fmt.Errorf("ingest: idempotency probe: %w", err)
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return "", 0, fmt.Errorf("ingest: marshal event for ledger: %w", err)
	}
	entry, err := p.ledger.Record(ctx, tenantID, event.SignalID, raw)
	if err != nil {
		return "", 0, fmt.Errorf("ingest: ledger record: %w", err)
	}

	ack, wasNew, insErr := p.insertAndAck(ctx, tenantID, event, raw)
	if insErr != nil {
		p.Counters.Errors.Add(1)
		if merr := p.ledger.MarkFailed(ctx, entry, insErr.Error()); merr != nil {
			p.logger.Error().Err(merr).Str("signal_id", event.SignalID).Msg("ingest: failed to mark ledger entry failed")
		}
		return "", 0, insErr
	}

	if merr := p.ledger.MarkIngested(ctx, entry, ack); merr != nil {
		p.logger.Error().Err(merr).Str("signal_id", event.SignalID).Msg("ingest: failed to mark ledger entry ingested")
	}
	p.Counters.Ingested.Add(1)

	if !wasNew {
		return ack, StatusDuplicate, nil
	}
	return ack, StatusNew, nil
}

// ReplayFromLedger re-runs the primary-store insert for a signal whose
// ledger entry already exists (spec.md §4.3 "replay_from_ledger", used by
// the reconciler C4). It returns wasNew=false if a concurrent path already
// inserted the row.
func (p *Pipeline) ReplayFromLedger(ctx context.Context, tenantID uuid.UUID, signalID string, payload []byte) (ackID string, wasNew bool, err error) {
	var event model.SignalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", false, fmt.Errorf("ingest: replay: unmarshal ledger payload: %w", err)
	}
	return p.insertAndAck(ctx, tenantID, event, payload)
}

func (p *Pipeline) insertAndAck(ctx context.Context, tenantID uuid.UUID, event model.SignalEvent, raw []byte) (ackID string, wasNew bool, err error) {
	ack := newAckID()
	signal := model.Signal{
		ID:          uuid.New(),
		TenantID:    tenantID,
		SignalID:    event.SignalID,
		AckID:       ack,
		Category:    event.Signal.Category,
		Title:       event.Signal.Title,
		Probability: event.Signal.Probability,
		Confidence:  event.Signal.ConfidenceScore,
		Evidence:    event.Signal.Evidence,
		Geographic:  event.Signal.Geographic,
		Temporal:    event.Signal.Temporal,
		RawPayload:  raw,
		Active:      true,
		ObservedAt:  event.ObservedAt,
		EmittedAt:   event.EmittedAt,
		IngestedAt:  time.Now().UTC(),
	}

	err = p.store.InsertSignal(ctx, signal)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			existing, gerr := p.store.GetSignalBySignalID(ctx, tenantID, event.SignalID)
			if gerr != nil {
				return "", false, fmt.Errorf("ingest: resolve concurrent duplicate: %w", gerr)
			}
			return existing.AckID, false, nil
		}
		return "", false, fmt.Errorf("ingest: insert signal: %w", err)
	}

	if p.alertHook != nil && signal.Probability >= highSeverityThreshold {
		go func() {
			hookCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if herr := p.alertHook(hookCtx, tenantID, signal); herr != nil {
				p.logger.Warn().Err(herr).Str("signal_id", signal.SignalID).Msg("ingest: alert hook failed")
			}
		}()
	}

	return ack, true, nil
}
