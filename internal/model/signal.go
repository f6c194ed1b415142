package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GeographicInfo is the geographic scope of a signal.
type GeographicInfo struct {
	Regions     []string `json:"regions,omitempty"`
	Chokepoints []string `json:"chokepoints,omitempty"`
}

// TemporalInfo is the expected time scope of a signal.
type TemporalInfo struct {
	EventHorizon   *string `json:"event_horizon,omitempty"`
	ResolutionDate *string `json:"resolution_date,omitempty"`
}

// EvidenceItem backs a signal with a named source.
type EvidenceItem struct {
	Source      string  `json:"source"`
	SourceType  string  `json:"source_type"`
	URL         *string `json:"url,omitempty"`
	RawText     *string `json:"raw_text,omitempty"`
	RetrievedAt *string `json:"retrieved_at,omitempty"`
}

// SignalPayload is the inner `signal` object OMEN produces for every event.
type SignalPayload struct {
	SignalID        string          `json:"signal_id"`
	SourceEventID   *string         `json:"source_event_id,omitempty"`
	Title           string          `json:"title"`
	Description     *string         `json:"description,omitempty"`
	Probability     float64         `json:"probability"`
	ConfidenceScore float64         `json:"confidence_score"`
	ConfidenceLevel *string         `json:"confidence_level,omitempty"`
	Category        string          `json:"category"`
	Tags            []string        `json:"tags,omitempty"`
	Geographic      *GeographicInfo `json:"geographic,omitempty"`
	Temporal        *TemporalInfo   `json:"temporal,omitempty"`
	Evidence        []EvidenceItem  `json:"evidence,omitempty"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// SignalEvent is the top-level envelope POSTed to /signals/ingest.
type SignalEvent struct {
	SchemaVersion        string        `json:"schema_version"`
	SignalID             string        `json:"signal_id"`
	DeterministicTraceID *string       `json:"deterministic_trace_id,omitempty"`
	InputEventHash       *string       `json:"input_event_hash,omitempty"`
	SourceEventID        *string       `json:"source_event_id,omitempty"`
	RulesetVersion       *string       `json:"ruleset_version,omitempty"`
	ObservedAt           *time.Time    `json:"observed_at,omitempty"`
	EmittedAt            *time.Time    `json:"emitted_at,omitempty"`
	Signal               SignalPayload `json:"signal"`
}

// Validate enforces the bounds spec.md §9 requires of the ingest boundary:
// probability/confidence in [0,1], a non-empty signal_id that agrees between
// the envelope and the inner payload, and UTC-normalized timestamps.
func (e *SignalEvent) Validate() error {
	if e.SignalID == "" {
		return fmt.Errorf("signal_id is required")
	}
	if e.Signal.SignalID == "" {
		e.Signal.SignalID = e.SignalID
	} else if e.Signal.SignalID != e.SignalID {
		return fmt.Errorf("envelope signal_id %q does not match signal.signal_id %q", e.SignalID, e.Signal.SignalID)
	}
	if e.Signal.Title == "" {
		return fmt.Errorf("signal.title is required")
	}
	if e.Signal.Category == "" {
		return fmt.Errorf("signal.category is required")
	}
	if e.Signal.Probability < 0 || e.Signal.Probability > 1 {
		return fmt.Errorf("signal.probability must be in [0,1], got %v", e.Signal.Probability)
	}
	if e.Signal.ConfidenceScore < 0 || e.Signal.ConfidenceScore > 1 {
		return fmt.Errorf("signal.confidence_score must be in [0,1], got %v", e.Signal.ConfidenceScore)
	}
	if e.ObservedAt != nil {
		u := e.ObservedAt.UTC()
		e.ObservedAt = &u
	}
	if e.EmittedAt != nil {
		u := e.EmittedAt.UTC()
		e.EmittedAt = &u
	}
	e.Signal.GeneratedAt = e.Signal.GeneratedAt.UTC()
	return nil
}

// Signal is the persisted, never-mutated-after-insert ingest row. Lifecycle
// flags (Active, Processed) are the only fields that change post-insert.
type Signal struct {
	ID          uuid.UUID   `json:"id"`
	TenantID    uuid.UUID   `json:"tenant_id"`
	SignalID    string      `json:"signal_id"`
	AckID       string      `json:"ack_id"`
	Category    string      `json:"category"`
	Title       string      `json:"title"`
	Probability float64     `json:"probability"`
	Confidence  float64     `json:"confidence"`
	Evidence    []EvidenceItem `json:"evidence"`
	Geographic  *GeographicInfo `json:"geographic,omitempty"`
	Temporal    *TemporalInfo   `json:"temporal,omitempty"`
	RawPayload  []byte      `json:"-"`
	Active      bool        `json:"active"`
	Processed   bool        `json:"processed"`
	ObservedAt  *time.Time  `json:"observed_at,omitempty"`
	EmittedAt   *time.Time  `json:"emitted_at,omitempty"`
	IngestedAt  time.Time   `json:"ingested_at"`
}

// InternalSignal is the normalized, per-entity form consumed by the risk
// engine (C8). Unique per (tenant, source, signal_type, entity_type, entity_id).
type InternalSignal struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	Source        string    `json:"source"`
	SignalType    string    `json:"signal_type"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Confidence    float64   `json:"confidence"`
	SeverityScore float64   `json:"severity_score"`
	Evidence      map[string]any `json:"evidence,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// EntityType enumerates the entity kinds the risk engine assesses.
const (
	EntityOrder    = "order"
	EntityCustomer = "customer"
	EntityRoute    = "route"
)

// NewInternalSignal constructs an InternalSignal, enforcing severity ∈
// [0,100] and confidence ∈ [0,1] the way the source's Pydantic models did.
func NewInternalSignal(tenantID uuid.UUID, source, signalType, entityType, entityID string, confidence, severity float64) (InternalSignal, error) {
	if entityType == "" || entityID == "" {
		return InternalSignal{}, fmt.Errorf("entity_type and entity_id are required")
	}
	if confidence < 0 || confidence > 1 {
		return InternalSignal{}, fmt.Errorf("confidence must be in [0,1], got %v", confidence)
	}
	if severity < 0 || severity > 100 {
		return InternalSignal{}, fmt.Errorf("severity_score must be in [0,100], got %v", severity)
	}
	return InternalSignal{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Source:        source,
		SignalType:    signalType,
		EntityType:    entityType,
		EntityID:      entityID,
		Confidence:    confidence,
		SeverityScore: severity,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
