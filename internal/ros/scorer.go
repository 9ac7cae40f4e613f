// Package ros scores the research opportunity of a drug-disease pair. The
// score is a pure function of committed graph state plus the conflict report;
// it never reads raw agent output.
package ros

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pharmasignal/evigraph/internal/conflict"
	"github.com/pharmasignal/evigraph/internal/graph"
	"github.com/pharmasignal/evigraph/internal/temporal"
	"github.com/pharmasignal/evigraph/pkg/types"
)

const (
	// recencyWindowDays bounds the "recent evidence" fraction.
	recencyWindowDays = 365.0

	// diversityDenominator is the number of distinct agent classes.
	diversityDenominator = 4.0

	minScore = 0.0
	maxScore = 10.0
)

// FeatureBreakdown carries the five independently bounded score components.
// Their sum, clamped to [0,10], is the final score.
type FeatureBreakdown struct {
	EvidenceStrength  float64 `json:"evidence_strength"`   // 0 to 3.5
	EvidenceDiversity float64 `json:"evidence_diversity"`  // 0 to 2.0
	RecencyBoost      float64 `json:"recency_boost"`       // 0 to 2.0
	ConflictPenalty   float64 `json:"conflict_penalty"`    // -1.0 to 0
	PatentRiskPenalty float64 `json:"patent_risk_penalty"` // -1.5 to 0
}

// Result is the full scoring output for a pair.
type Result struct {
	DrugID    string `json:"drug_id"`
	DiseaseID string `json:"disease_id"`

	Score       float64          `json:"score"`
	Breakdown   FeatureBreakdown `json:"feature_breakdown"`
	Explanation string           `json:"explanation"`

	Metadata Metadata `json:"metadata"`
}

// Metadata records the counts behind the breakdown for audit consumers.
type Metadata struct {
	EvidenceCount      int      `json:"evidence_count"`
	SupportingCount    int      `json:"supporting_count"`
	ContradictingCount int      `json:"contradicting_count"`
	SuggestingCount    int      `json:"suggesting_count"`
	PatentCount        int      `json:"patent_count"`
	RecentCount        int      `json:"recent_count"`
	DistinctAgents     []string `json:"distinct_agents"`
	DistinctTypes      []string `json:"distinct_types"`
	HasConflict        bool     `json:"has_conflict"`
	ComputedAt         string   `json:"computed_at"`
}

// Scorer computes research opportunity scores over the graph.
type Scorer struct {
	store    graph.Store
	temporal *temporal.Reasoner
	conflict *conflict.Detector

	now func() time.Time
}

// NewScorer creates a scorer over the given store and reasoners.
func NewScorer(store graph.Store, reasoner *temporal.Reasoner, detector *conflict.Detector) *Scorer {
	return &Scorer{
		store:    store,
		temporal: reasoner,
		conflict: detector,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the reference clock. Intended for tests.
func (s *Scorer) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Compute scores the pair. An unknown pair yields a zero-evidence result,
// not an error. Identical graph state always yields byte-identical output.
func (s *Scorer) Compute(ctx context.Context, drugID, diseaseID string) (*Result, error) {
	pairs, err := s.store.Query(ctx, graph.QueryOptions{DrugID: drugID, DiseaseID: diseaseID})
	if err != nil {
		return nil, fmt.Errorf("ros: query pair evidence: %w", err)
	}
	report, err := s.conflict.Explain(ctx, drugID, diseaseID)
	if err != nil {
		return nil, fmt.Errorf("ros: explain conflict: %w", err)
	}

	now := s.now()
	breakdown := FeatureBreakdown{
		EvidenceStrength:  evidenceStrength(pairs),
		EvidenceDiversity: evidenceDiversity(pairs),
		RecencyBoost:      s.recencyBoost(pairs, now),
		ConflictPenalty:   conflictPenalty(pairs),
		PatentRiskPenalty: patentRiskPenalty(pairs),
	}

	score := breakdown.EvidenceStrength + breakdown.EvidenceDiversity + breakdown.RecencyBoost +
		breakdown.ConflictPenalty + breakdown.PatentRiskPenalty
	score = clampScore(score)

	meta := s.metadata(pairs, report, now)
	return &Result{
		DrugID:      drugID,
		DiseaseID:   diseaseID,
		Score:       score,
		Breakdown:   breakdown,
		Explanation: explanation(score, breakdown, meta),
		Metadata:    meta,
	}, nil
}

// evidenceStrength is min(count/10, 1.5) + avgRelevance*2.0, bounded 0 to 3.5.
// Relevance is the stored confidence score of each record.
func evidenceStrength(pairs []graph.PairEvidence) float64 {
	if len(pairs) == 0 {
		return 0
	}
	volume := math.Min(float64(len(pairs))/10.0, 1.5)

	var total float64
	for _, pe := range pairs {
		total += pe.Evidence.ConfidenceScore
	}
	avgRelevance := total / float64(len(pairs))
	return volume + avgRelevance*2.0
}

// evidenceDiversity is distinct-agent fraction plus distinct-source-type
// fraction, each capped at 1.0 over a denominator of 4, bounded 0 to 2.0.
func evidenceDiversity(pairs []graph.PairEvidence) float64 {
	if len(pairs) == 0 {
		return 0
	}
	agents := make(map[string]struct{})
	sourceTypes := make(map[types.SourceType]struct{})
	for _, pe := range pairs {
		agents[pe.Evidence.AgentName] = struct{}{}
		sourceTypes[pe.Evidence.SourceType] = struct{}{}
	}
	agentFraction := math.Min(float64(len(agents))/diversityDenominator, 1.0)
	typeFraction := math.Min(float64(len(sourceTypes))/diversityDenominator, 1.0)
	return agentFraction + typeFraction
}

// recencyBoost is the fraction of evidence newer than 365 days, times 2.
func (s *Scorer) recencyBoost(pairs []graph.PairEvidence, now time.Time) float64 {
	if len(pairs) == 0 {
		return 0
	}
	recent := 0
	for _, pe := range pairs {
		if s.temporal.AgeDays(pe.Evidence, now) < recencyWindowDays {
			recent++
		}
	}
	return float64(recent) / float64(len(pairs)) * 2.0
}

// conflictPenalty is 0 when no opposing polarity exists, otherwise minus the
// contradicting fraction capped at 1.0.
func conflictPenalty(pairs []graph.PairEvidence) float64 {
	if len(pairs) == 0 {
		return 0
	}
	supporting, contradicting := 0, 0
	for _, pe := range pairs {
		switch {
		case types.Supporting(pe.Relationship.Type):
			supporting++
		case pe.Relationship.Type == types.RelContradicts:
			contradicting++
		}
	}
	if supporting == 0 || contradicting == 0 {
		return 0
	}
	negativeFraction := float64(contradicting) / float64(len(pairs))
	return -math.Min(negativeFraction, 1.0)
}

// patentRiskPenalty is a step function of the patent-evidence fraction.
func patentRiskPenalty(pairs []graph.PairEvidence) float64 {
	if len(pairs) == 0 {
		return 0
	}
	patents := 0
	for _, pe := range pairs {
		if pe.Evidence.SourceType == types.SourcePatent {
			patents++
		}
	}
	fraction := float64(patents) / float64(len(pairs))
	switch {
	case fraction > 0.5:
		return -1.5
	case fraction > 0.3:
		return -1.0
	case fraction > 0.1:
		return -0.5
	default:
		return 0
	}
}

func clampScore(score float64) float64 {
	if score < minScore {
		return minScore
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

func (s *Scorer) metadata(pairs []graph.PairEvidence, report *types.Conflict, now time.Time) Metadata {
	meta := Metadata{
		EvidenceCount: len(pairs),
		HasConflict:   report.HasConflict,
		ComputedAt:    now.Format(time.RFC3339),
	}
	agents := make(map[string]struct{})
	sourceTypes := make(map[string]struct{})
	for _, pe := range pairs {
		agents[pe.Evidence.AgentName] = struct{}{}
		sourceTypes[string(pe.Evidence.SourceType)] = struct{}{}
		if pe.Evidence.SourceType == types.SourcePatent {
			meta.PatentCount++
		}
		if s.temporal.AgeDays(pe.Evidence, now) < recencyWindowDays {
			meta.RecentCount++
		}
		switch {
		case types.Supporting(pe.Relationship.Type):
			meta.SupportingCount++
		case pe.Relationship.Type == types.RelContradicts:
			meta.ContradictingCount++
		default:
			meta.SuggestingCount++
		}
	}
	meta.DistinctAgents = sortedKeys(agents)
	meta.DistinctTypes = sortedKeys(sourceTypes)
	return meta
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// explanation renders the score-bracket template with the conflict and
// source-count facts appended. Every number repeats the breakdown exactly.
func explanation(score float64, b FeatureBreakdown, meta Metadata) string {
	var bracket string
	switch {
	case score >= 7:
		bracket = "strong"
	case score >= 5:
		bracket = "moderate"
	case score >= 3:
		bracket = "weak"
	default:
		bracket = "poor"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Research opportunity is %s (score %.2f/10).", bracket, score)
	fmt.Fprintf(&sb, " Evidence strength %.2f, diversity %.2f, recency boost %.2f, conflict penalty %.2f, patent risk penalty %.2f.",
		b.EvidenceStrength, b.EvidenceDiversity, b.RecencyBoost, b.ConflictPenalty, b.PatentRiskPenalty)
	fmt.Fprintf(&sb, " Based on %d evidence record(s) from %d agent(s) across %d source type(s); %d recent, %d patent.",
		meta.EvidenceCount, len(meta.DistinctAgents), len(meta.DistinctTypes), meta.RecentCount, meta.PatentCount)
	if meta.HasConflict {
		fmt.Fprintf(&sb, " Conflicting evidence present: %d supporting vs %d contradicting.",
			meta.SupportingCount, meta.ContradictingCount)
	} else {
		sb.WriteString(" No conflicting evidence.")
	}
	return sb.String()
}
