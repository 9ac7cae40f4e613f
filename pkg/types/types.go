// Package types defines the core data structures for the evigraph evidence
// system: graph nodes, evidence records, relationships, and conflict reports.
// All enums are typed string constants with validation helpers so that values
// arriving from agent payloads can be checked at the normalization boundary.
package types

// NodeType identifies the kind of a graph node.
type NodeType string

const (
	NodeTypeDrug         NodeType = "DRUG"
	NodeTypeDisease      NodeType = "DISEASE"
	NodeTypeEvidence     NodeType = "EVIDENCE"
	NodeTypeTrial        NodeType = "TRIAL"
	NodeTypePatent       NodeType = "PATENT"
	NodeTypeMarketSignal NodeType = "MARKET_SIGNAL"
)

// SourceType identifies which class of research agent produced a piece of
// evidence. It mirrors the agent_id values accepted by the normalizer.
type SourceType string

const (
	SourceClinical   SourceType = "clinical"
	SourcePatent     SourceType = "patent"
	SourceMarket     SourceType = "market"
	SourceLiterature SourceType = "literature"
)

// ValidSourceTypes lists all accepted source types for validation.
var ValidSourceTypes = []SourceType{
	SourceClinical,
	SourcePatent,
	SourceMarket,
	SourceLiterature,
}

// IsValidSourceType checks whether the given source type is one of the four
// supported agent classes.
func IsValidSourceType(st SourceType) bool {
	for _, valid := range ValidSourceTypes {
		if st == valid {
			return true
		}
	}
	return false
}

// Quality grades how strong a piece of evidence is considered, derived
// deterministically from source-specific signals (trial phase, publication
// type, patent grant date).
type Quality string

const (
	QualityLow    Quality = "LOW"
	QualityMedium Quality = "MEDIUM"
	QualityHigh   Quality = "HIGH"
)

// qualityRank orders qualities for dominance comparisons: HIGH > MEDIUM > LOW.
var qualityRank = map[Quality]int{
	QualityLow:    0,
	QualityMedium: 1,
	QualityHigh:   2,
}

// Rank returns the ordinal rank of the quality (LOW=0, MEDIUM=1, HIGH=2).
// Unknown values rank below LOW.
func (q Quality) Rank() int {
	if r, ok := qualityRank[q]; ok {
		return r
	}
	return -1
}

// RelationshipType is the polarity of a drug→disease edge. TREATS is the
// strong supporting verdict reserved for completed late-phase clinical
// evidence; SUPPORTS/SUGGESTS/CONTRADICTS carry the evidence polarity.
type RelationshipType string

const (
	RelTreats      RelationshipType = "TREATS"
	RelSuggests    RelationshipType = "SUGGESTS"
	RelSupports    RelationshipType = "SUPPORTS"
	RelContradicts RelationshipType = "CONTRADICTS"
)

// ValidRelationshipTypes lists all accepted relationship types.
var ValidRelationshipTypes = []RelationshipType{
	RelTreats,
	RelSuggests,
	RelSupports,
	RelContradicts,
}

// IsValidRelationshipType checks whether the given relationship type is known.
func IsValidRelationshipType(rt RelationshipType) bool {
	for _, valid := range ValidRelationshipTypes {
		if rt == valid {
			return true
		}
	}
	return false
}

// Polarity classifies what a piece of evidence says about a treats-claim.
// It is a strict subset of RelationshipType: TREATS edges are derived from
// SUPPORTS-polarity clinical evidence at ingestion time.
type Polarity = RelationshipType

// Supporting reports whether the polarity counts toward the supporting side
// of a conflict. TREATS edges are supporting by construction.
func Supporting(p Polarity) bool {
	return p == RelSupports || p == RelTreats
}

// Severity classifies how strongly opposing evidence disagrees.
type Severity string

const (
	SeverityNone   Severity = "NONE"
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ClampConfidence forces a confidence score into [0.0, 1.0]. Out-of-range
// inputs are clamped, never rejected.
func ClampConfidence(c float64) float64 {
	if c < 0.0 {
		return 0.0
	}
	if c > 1.0 {
		return 1.0
	}
	return c
}
