package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRelationship indicates a relationship missing its evidence
// back-reference or endpoints. A relationship without evidence is invalid.
var ErrInvalidRelationship = errors.New("invalid relationship")

// Relationship is a directed drug→disease edge carrying the polarity verdict
// of exactly one evidence record. Confidence is copied from the evidence at
// creation time so the edge stays meaningful even when queried without its
// evidence node.
type Relationship struct {
	ID         string           `json:"id"` // Store-assigned (format: rel:uuid)
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Type       RelationshipType `json:"relationship_type"`
	EvidenceID string           `json:"evidence_id"`
	Confidence float64          `json:"confidence"`
	CreatedAt  time.Time        `json:"created_at"`
}

// NewRelationship constructs a Relationship, enforcing the mandatory evidence
// back-reference and endpoint IDs.
func NewRelationship(sourceID, targetID string, relType RelationshipType, evidenceID string, confidence float64) (*Relationship, error) {
	if sourceID == "" || targetID == "" {
		return nil, fmt.Errorf("%w: source and target IDs are required", ErrInvalidRelationship)
	}
	if evidenceID == "" {
		return nil, fmt.Errorf("%w: evidence_id is required", ErrInvalidRelationship)
	}
	if !IsValidRelationshipType(relType) {
		return nil, fmt.Errorf("%w: unknown relationship type %q", ErrInvalidRelationship, relType)
	}

	return &Relationship{
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       relType,
		EvidenceID: evidenceID,
		Confidence: ClampConfidence(confidence),
		CreatedAt:  time.Now().UTC(),
	}, nil
}
