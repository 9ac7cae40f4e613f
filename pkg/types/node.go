package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEvidence indicates that an evidence record is missing one of its
// mandatory provenance fields.
var ErrInvalidEvidence = errors.New("invalid evidence")

// DrugNode represents a drug entity. Canonical identity is derived from the
// normalized name via pkg/identity; the store assigns no additional ID.
type DrugNode struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	DrugClass string    `json:"drug_class,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DiseaseNode represents a disease entity, keyed by canonical identity.
type DiseaseNode struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DiseaseCategory string    `json:"disease_category,omitempty"`
	Source          string    `json:"source,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Evidence is an immutable provenance-carrying record of one observation from
// one source about a drug–disease relationship. Evidence nodes are created
// once and never mutated or deleted; re-ingesting the same raw source creates
// a new record so provenance shows both extraction timestamps.
type Evidence struct {
	ID string `json:"id"` // Store-assigned (format: ev:uuid)

	// Provenance. All four are mandatory at construction.
	AgentName    string     `json:"agent_name"`
	AgentID      SourceType `json:"agent_id"`
	APISource    string     `json:"api_source,omitempty"`
	RawReference string     `json:"raw_reference"` // Source identifier (NCT ID, patent number, PMID, query hash)

	ExtractionTimestamp time.Time  `json:"extraction_timestamp"` // UTC, set at creation, immutable
	SourceType          SourceType `json:"source_type"`

	Quality         Quality `json:"quality"`
	ConfidenceScore float64 `json:"confidence_score"` // Always in [0,1]; clamped at construction
	Summary         string  `json:"summary"`          // Non-empty; callers synthesize a fallback
	FullText        string  `json:"full_text,omitempty"`

	// Metadata carries source-specific extras (phase, status, journal, ...).
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Validity window. ValidityStart defaults to ExtractionTimestamp.
	// A nil ValidityEnd means "still valid".
	ValidityStart time.Time  `json:"validity_start"`
	ValidityEnd   *time.Time `json:"validity_end,omitempty"`
}

// NewEvidence constructs an Evidence record, enforcing the mandatory
// provenance fields and clamping the confidence score into [0,1].
// The extraction timestamp is set to the current UTC time and doubles as the
// default validity start.
func NewEvidence(agentName string, agentID SourceType, rawReference, summary string, quality Quality, confidence float64) (*Evidence, error) {
	if agentName == "" {
		return nil, fmt.Errorf("%w: agent_name is required", ErrInvalidEvidence)
	}
	if rawReference == "" {
		return nil, fmt.Errorf("%w: raw_reference is required", ErrInvalidEvidence)
	}
	if !IsValidSourceType(agentID) {
		return nil, fmt.Errorf("%w: unknown agent_id %q", ErrInvalidEvidence, agentID)
	}
	if summary == "" {
		return nil, fmt.Errorf("%w: summary is required", ErrInvalidEvidence)
	}

	now := time.Now().UTC()
	return &Evidence{
		AgentName:           agentName,
		AgentID:             agentID,
		RawReference:        rawReference,
		ExtractionTimestamp: now,
		SourceType:          agentID,
		Quality:             quality,
		ConfidenceScore:     ClampConfidence(confidence),
		Summary:             summary,
		ValidityStart:       now,
	}, nil
}

// SetValidityWindow sets the validity window, enforcing start <= end.
func (e *Evidence) SetValidityWindow(start time.Time, end *time.Time) error {
	if end != nil && end.Before(start) {
		return fmt.Errorf("%w: validity_end precedes validity_start", ErrInvalidEvidence)
	}
	e.ValidityStart = start
	e.ValidityEnd = end
	return nil
}

// TrialNode is a thin typed intermediate record for clinical ingestion paths.
// The reasoning engines never consume it directly.
type TrialNode struct {
	ID            string    `json:"id"`
	NCTID         string    `json:"nct_id"`
	Phase         string    `json:"phase"`
	Status        string    `json:"status"`
	Interventions []string  `json:"interventions,omitempty"`
	Conditions    []string  `json:"conditions,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PatentNode is a thin typed intermediate record for patent ingestion paths.
type PatentNode struct {
	ID           string    `json:"id"`
	PatentNumber string    `json:"patent_number"`
	Title        string    `json:"title"`
	PatentDate   string    `json:"patent_date,omitempty"`
	Assignees    []string  `json:"assignees,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MarketSignalNode is a thin typed intermediate record for market ingestion.
type MarketSignalNode struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}
