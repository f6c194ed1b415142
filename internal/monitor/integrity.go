package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/riskcast/core/internal/model"
)

// CheckIntegrity runs the C6 set-diff over the window (spec.md §4.5): it
// classifies every signal_id seen in either the ledger or the primary
// store as consistent or as one of four discrepancy types. A single
// signal_id can surface more than one discrepancy (e.g. both
// ingest_failed and duplicate_in_ledger).
func (m *Monitor) CheckIntegrity(ctx context.Context, tenantID uuid.UUID, windowDays int) (model.IntegrityReport, error) {
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	ledgerEntries, err := m.ledger.EntriesSince(ctx, tenantID, since)
	if err != nil {
		return model.IntegrityReport{}, fmt.Errorf("monitor: ledger entries since: %w", err)
	}
	primaryIDs, err := m.store.SignalIDsSince(ctx, tenantID, since)
	if err != nil {
		return model.IntegrityReport{}, fmt.Errorf("monitor: signal ids since: %w", err)
	}

	type ledgerGroup struct {
		count      int
		anyFailed  bool
		allFailed  bool
	}
	groups := make(map[string]*ledgerGroup)
	for _, e := range ledgerEntries {
		g, ok := groups[e.SignalID]
		if !ok {
			g = &ledgerGroup{allFailed: true}
			groups[e.SignalID] = g
		}
		g.count++
		if e.Status == model.LedgerFailed {
			g.anyFailed = true
		} else {
			g.allFailed = false
		}
	}

	report := model.IntegrityReport{
		TenantID:       tenantID.String(),
		GeneratedAt:    time.Now().UTC(),
		WindowDays:     windowDays,
		TotalInLedger:  len(groups),
		TotalInPrimary: len(primaryIDs),
	}

	seen := make(map[string]struct{}, len(groups)+len(primaryIDs))
	for id := range groups {
		seen[id] = struct{}{}
	}
	for id := range primaryIDs {
		seen[id] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		g, inLedger := groups[id]
		_, inPrimary := primaryIDs[id]

		var found bool
		if inLedger && !inPrimary && !g.anyFailed {
			report.Discrepancies = append(report.Discrepancies, model.Discrepancy{
				SignalID: id, Type: model.DiscrepancyMissingFromDB,
				Detail: "present in ledger, absent from primary store, not flagged as failed",
			})
			found = true
		}
		if !inLedger && inPrimary {
			report.Discrepancies = append(report.Discrepancies, model.Discrepancy{
				SignalID: id, Type: model.DiscrepancyOrphanedInDB,
				Detail: "present in primary store with no corresponding ledger entry",
			})
			found = true
		}
		if inLedger && g.anyFailed {
			report.Discrepancies = append(report.Discrepancies, model.Discrepancy{
				SignalID: id, Type: model.DiscrepancyIngestFailed,
				Detail: "at least one ledger entry for this signal_id is failed",
			})
			found = true
		}
		if inLedger && g.count > 1 {
			report.Discrepancies = append(report.Discrepancies, model.Discrepancy{
				SignalID: id, Type: model.DiscrepancyDuplicateInLedger,
				Detail: fmt.Sprintf("%d ledger rows recorded for this signal_id", g.count),
			})
			found = true
		}
		if !found {
			report.ConsistentCount++
		}
	}

	report.IsConsistent = len(report.Discrepancies) == 0
	return report, nil
}

// NeedsReplay returns the sorted signal_ids classified missing_from_db —
// the reconciler's natural input list.
func NeedsReplay(report model.IntegrityReport) []string {
	var ids []string
	for _, d := range report.Discrepancies {
		if d.Type == model.DiscrepancyMissingFromDB {
			ids = append(ids, d.SignalID)
		}
	}
	sort.Strings(ids)
	return ids
}
