package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/riskcast/core/internal/model"
	"github.com/riskcast/core/internal/storage"
)

// TraceSignal reconstructs one signal_id's path through the ledger and
// the primary store (spec.md §4.5 C7 trace_signal).
func (m *Monitor) TraceSignal(ctx context.Context, tenantID uuid.UUID, signalID string) (model.SignalTrace, error) {
	trace := model.SignalTrace{SignalID: signalID}

	entry, err := m.ledger.EntryForSignal(ctx, tenantID, signalID)
	switch {
	case err == nil:
		stage := model.TraceStage{
			Stage:     "ledger_receipt",
			Status:    string(entry.Status),
			Timestamp: &entry.RecordedAt,
		}
		if entry.AckID != nil {
			stage.Detail = fmt.Sprintf("ack=%s", *entry.AckID)
		}
		trace.Stages = append(trace.Stages, stage)
	case errors.Is(err, storage.ErrNotFound):
		trace.Stages = append(trace.Stages, model.TraceStage{
			Stage: "ledger_receipt", Status: "missing",
		})
		return trace, nil
	default:
		return model.SignalTrace{}, fmt.Errorf("monitor: trace signal ledger lookup: %w", err)
	}

	signal, err := m.store.GetSignalBySignalID(ctx, tenantID, signalID)
	switch {
	case err == nil:
		trace.Stages = append(trace.Stages, model.TraceStage{
			Stage:     "ingest",
			Status:    "processed",
			Timestamp: &signal.IngestedAt,
			Detail: fmt.Sprintf("category=%s probability=%.3f confidence=%.3f processed=%t",
				signal.Category, signal.Probability, signal.Confidence, signal.Processed),
		})
	case errors.Is(err, storage.ErrNotFound):
		trace.Stages = append(trace.Stages, model.TraceStage{
			Stage: "ingest", Status: "missing",
		})
	default:
		return model.SignalTrace{}, fmt.Errorf("monitor: trace signal ingest lookup: %w", err)
	}

	trace.Found = isComplete(trace.Stages)
	return trace, nil
}

func isComplete(stages []model.TraceStage) bool {
	for _, s := range stages {
		if s.Status == "missing" {
			return false
		}
	}
	return len(stages) > 0
}

// TraceDecision finds the outcome recorded for decisionID, if any, and
// returns its snapshot as a single trace stage (spec.md §4.5 C7
// trace_decision — the decision object itself is never persisted, so the
// outcome record is the only durable trail).
func (m *Monitor) TraceDecision(ctx context.Context, tenantID uuid.UUID, decisionID string) (model.DecisionTrace, error) {
	trace := model.DecisionTrace{DecisionID: decisionID}

	outcome, err := m.store.GetOutcomeByDecisionID(ctx, tenantID.String(), decisionID)
	switch {
	case err == nil:
		trace.Found = true
		trace.Stages = append(trace.Stages, model.TraceStage{
			Stage:     "outcome_recorded",
			Status:    string(outcome.OutcomeType),
			Timestamp: &outcome.RecordedAt,
			Detail: fmt.Sprintf("predicted_risk_score=%.2f actual_loss_usd=%.2f was_accurate=%t",
				outcome.PredictedRiskScore, outcome.ActualLossUSD, outcome.WasAccurate),
		})
	case errors.Is(err, storage.ErrNotFound):
		trace.Stages = append(trace.Stages, model.TraceStage{
			Stage: "outcome_recorded", Status: "missing",
		})
	default:
		return model.DecisionTrace{}, fmt.Errorf("monitor: trace decision outcome lookup: %w", err)
	}

	return trace, nil
}

// Coverage computes ingest_coverage = primary_count / ledger_count and a
// needs_reconciliation flag over the window (spec.md §4.5 C7
// pipeline_coverage).
func (m *Monitor) Coverage(ctx context.Context, tenantID uuid.UUID, windowDays int) (model.PipelineCoverage, error) {
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	ledgerIDs, err := m.ledger.SignalIDsSince(ctx, tenantID, since)
	if err != nil {
		return model.PipelineCoverage{}, fmt.Errorf("monitor: coverage ledger ids: %w", err)
	}
	primaryIDs, err := m.store.SignalIDsSince(ctx, tenantID, since)
	if err != nil {
		return model.PipelineCoverage{}, fmt.Errorf("monitor: coverage primary ids: %w", err)
	}

	cov := model.PipelineCoverage{
		TenantID:     tenantID.String(),
		GeneratedAt:  time.Now().UTC(),
		WindowDays:   windowDays,
		LedgerCount:  len(ledgerIDs),
		PrimaryCount: len(primaryIDs),
	}

	if cov.LedgerCount > 0 {
		cov.IngestCoverage = float64(cov.PrimaryCount) / float64(cov.LedgerCount)
	} else {
		cov.IngestCoverage = 1.0
	}
	cov.NeedsReconciliation = cov.IngestCoverage < 1.0

	return cov, nil
}
