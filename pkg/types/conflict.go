package types

// Conflict is a derived report over a drug–disease pair's evidence set.
// It is computed fresh on every call and never stored; identical graph state
// always yields a byte-identical report.
type Conflict struct {
	DrugID    string `json:"drug_id"`
	DiseaseID string `json:"disease_id"`

	HasConflict bool     `json:"has_conflict"`
	Severity    Severity `json:"severity"`

	// Evidence IDs on each side, sorted for reproducibility.
	SupportingEvidenceIDs    []string `json:"supporting_evidence_ids"`
	ContradictingEvidenceIDs []string `json:"contradicting_evidence_ids"`
	SuggestingEvidenceIDs    []string `json:"suggesting_evidence_ids"`

	// DominantEvidenceID names the single record that wins the quality →
	// confidence → recency total order across both sides. Empty when there
	// is no conflict.
	DominantEvidenceID string `json:"dominant_evidence_id,omitempty"`
	DominanceReason    string `json:"dominance_reason,omitempty"`

	SummaryText         string `json:"summary_text"`
	TemporalExplanation string `json:"temporal_explanation"`
}
