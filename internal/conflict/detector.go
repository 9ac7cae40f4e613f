// Package conflict detects and explains conflicting evidence for a
// drug-disease pair. Conflict state is derived, never stored: every call
// recomputes from the current graph so there is no cache to invalidate.
package conflict

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pharmasignal/evigraph/internal/graph"
	"github.com/pharmasignal/evigraph/internal/temporal"
	"github.com/pharmasignal/evigraph/pkg/types"
)

// Detector partitions a pair's evidence by polarity, ranks it, and produces
// a deterministic conflict report.
type Detector struct {
	store    graph.Store
	temporal *temporal.Reasoner

	// now is injectable for reproducible recency comparisons in tests.
	now func() time.Time
}

// NewDetector creates a conflict detector over the given store.
func NewDetector(store graph.Store, reasoner *temporal.Reasoner) *Detector {
	return &Detector{
		store:    store,
		temporal: reasoner,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the reference clock. Intended for tests.
func (d *Detector) SetNowFunc(now func() time.Time) {
	d.now = now
}

// Explain computes the conflict report for a drug-disease pair. An unknown
// pair yields an empty no-conflict report, not an error. Identical graph
// state always yields a byte-identical report.
func (d *Detector) Explain(ctx context.Context, drugID, diseaseID string) (*types.Conflict, error) {
	pairs, err := d.store.Query(ctx, graph.QueryOptions{DrugID: drugID, DiseaseID: diseaseID})
	if err != nil {
		return nil, fmt.Errorf("conflict: query pair evidence: %w", err)
	}

	var supporting, suggesting, contradicting []*graph.PairEvidence
	for i := range pairs {
		pe := &pairs[i]
		switch {
		case types.Supporting(pe.Relationship.Type):
			supporting = append(supporting, pe)
		case pe.Relationship.Type == types.RelContradicts:
			contradicting = append(contradicting, pe)
		default:
			suggesting = append(suggesting, pe)
		}
	}

	report := &types.Conflict{
		DrugID:                   drugID,
		DiseaseID:                diseaseID,
		SupportingEvidenceIDs:    evidenceIDs(supporting),
		SuggestingEvidenceIDs:    evidenceIDs(suggesting),
		ContradictingEvidenceIDs: evidenceIDs(contradicting),
	}

	// Suggests-only evidence never triggers a conflict by itself.
	report.HasConflict = len(supporting) > 0 && len(contradicting) > 0
	if !report.HasConflict {
		report.Severity = types.SeverityNone
		report.SummaryText = d.noConflictSummary(drugID, diseaseID, supporting, suggesting, contradicting)
		report.TemporalExplanation = d.temporalExplanation(append(append(append([]*graph.PairEvidence{}, supporting...), suggesting...), contradicting...))
		return report, nil
	}

	supWinner := d.rank(supporting)[0]
	conWinner := d.rank(contradicting)[0]
	dominant, reason := d.compare(supWinner, conWinner)
	report.DominantEvidenceID = dominant.Evidence.ID
	report.DominanceReason = reason
	report.Severity = severity(supporting, contradicting)
	report.SummaryText = d.conflictSummary(drugID, diseaseID, supporting, contradicting, dominant, reason)
	report.TemporalExplanation = d.temporalExplanation(append(append([]*graph.PairEvidence{}, supporting...), contradicting...))
	return report, nil
}

// rank sorts one polarity side by the dominance total order: quality first,
// then confidence, then recency, with evidence ID as the final tiebreak so
// the order is total and reproducible. Returns a new slice.
func (d *Detector) rank(side []*graph.PairEvidence) []*graph.PairEvidence {
	ranked := make([]*graph.PairEvidence, len(side))
	copy(ranked, side)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Evidence, ranked[j].Evidence
		if ra, rb := a.Quality.Rank(), b.Quality.Rank(); ra != rb {
			return ra > rb
		}
		if a.ConfidenceScore != b.ConfidenceScore {
			return a.ConfidenceScore > b.ConfidenceScore
		}
		if !a.ExtractionTimestamp.Equal(b.ExtractionTimestamp) {
			return a.ExtractionTimestamp.After(b.ExtractionTimestamp)
		}
		return a.ID < b.ID
	})
	return ranked
}

// compare applies the same total order across the two per-side winners and
// names the criterion that decided it.
func (d *Detector) compare(a, b *graph.PairEvidence) (*graph.PairEvidence, string) {
	ea, eb := a.Evidence, b.Evidence

	if ea.Quality.Rank() != eb.Quality.Rank() {
		winner, loser := a, b
		if eb.Quality.Rank() > ea.Quality.Rank() {
			winner, loser = b, a
		}
		return winner, fmt.Sprintf("quality: %s beats %s", winner.Evidence.Quality, loser.Evidence.Quality)
	}

	if ea.ConfidenceScore != eb.ConfidenceScore {
		winner, loser := a, b
		if eb.ConfidenceScore > ea.ConfidenceScore {
			winner, loser = b, a
		}
		return winner, fmt.Sprintf("confidence: %.2f vs %.2f", winner.Evidence.ConfidenceScore, loser.Evidence.ConfidenceScore)
	}

	winner, loser := a, b
	if eb.ExtractionTimestamp.After(ea.ExtractionTimestamp) ||
		(eb.ExtractionTimestamp.Equal(ea.ExtractionTimestamp) && eb.ID < ea.ID) {
		winner, loser = b, a
	}
	return winner, fmt.Sprintf("recency: %d evidence supersedes %d evidence",
		winner.Evidence.ExtractionTimestamp.Year(), loser.Evidence.ExtractionTimestamp.Year())
}

// severity applies the fixed rule table over quality presence per side.
func severity(supporting, contradicting []*graph.PairEvidence) types.Severity {
	supHigh := hasQuality(supporting, types.QualityHigh)
	conHigh := hasQuality(contradicting, types.QualityHigh)
	switch {
	case supHigh && conHigh:
		return types.SeverityHigh
	case supHigh || conHigh:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

func hasQuality(side []*graph.PairEvidence, q types.Quality) bool {
	for _, pe := range side {
		if pe.Evidence.Quality == q {
			return true
		}
	}
	return false
}

func evidenceIDs(side []*graph.PairEvidence) []string {
	ids := make([]string, 0, len(side))
	for _, pe := range side {
		ids = append(ids, pe.Evidence.ID)
	}
	sort.Strings(ids)
	return ids
}

func (d *Detector) noConflictSummary(drugID, diseaseID string, supporting, suggesting, contradicting []*graph.PairEvidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "No conflict for %s / %s: %d supporting, %d suggesting, %d contradicting evidence record(s).",
		drugID, diseaseID, len(supporting), len(suggesting), len(contradicting))
	all := append(append(append([]*graph.PairEvidence{}, supporting...), suggesting...), contradicting...)
	if len(all) == 0 {
		b.WriteString(" No evidence recorded for this pair.")
		return b.String()
	}
	b.WriteString(" Provenance:")
	for _, line := range provenanceLines(all) {
		b.WriteString("\n  - ")
		b.WriteString(line)
	}
	return b.String()
}

func (d *Detector) conflictSummary(drugID, diseaseID string, supporting, contradicting []*graph.PairEvidence, dominant *graph.PairEvidence, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conflict detected for %s / %s: %d supporting vs %d contradicting evidence record(s).",
		drugID, diseaseID, len(supporting), len(contradicting))
	fmt.Fprintf(&b, " Dominant evidence is %s (%s, %s quality, confidence %.2f); decided by %s.",
		dominant.Evidence.ID, dominant.Evidence.RawReference, dominant.Evidence.Quality, dominant.Evidence.ConfidenceScore, reason)
	b.WriteString(" Provenance:")
	all := append(append([]*graph.PairEvidence{}, supporting...), contradicting...)
	for _, line := range provenanceLines(all) {
		b.WriteString("\n  - ")
		b.WriteString(line)
	}
	return b.String()
}

// provenanceLines renders one line per evidence record, sorted by evidence ID
// so the listing is reproducible regardless of partition order.
func provenanceLines(all []*graph.PairEvidence) []string {
	sorted := make([]*graph.PairEvidence, len(all))
	copy(sorted, all)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Evidence.ID < sorted[j].Evidence.ID })

	lines := make([]string, 0, len(sorted))
	for _, pe := range sorted {
		lines = append(lines, fmt.Sprintf("%s [%s] %s from %s (%s quality, confidence %.2f)",
			pe.Evidence.ID, pe.Relationship.Type, pe.Evidence.RawReference, pe.Evidence.AgentName,
			pe.Evidence.Quality, pe.Evidence.ConfidenceScore))
	}
	return lines
}

// temporalExplanation describes the age spread of the evidence set at the
// reference time, oldest to newest.
func (d *Detector) temporalExplanation(all []*graph.PairEvidence) string {
	if len(all) == 0 {
		return "No evidence to weight."
	}

	sorted := make([]*graph.PairEvidence, len(all))
	copy(sorted, all)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Evidence, sorted[j].Evidence
		if !a.ExtractionTimestamp.Equal(b.ExtractionTimestamp) {
			return a.ExtractionTimestamp.Before(b.ExtractionTimestamp)
		}
		return a.ID < b.ID
	})

	now := d.now()
	oldest := sorted[0].Evidence
	newest := sorted[len(sorted)-1].Evidence
	return fmt.Sprintf("Evidence spans %s to %s; newest record %s carries recency weight %.2f, oldest record %s carries %.2f.",
		oldest.ExtractionTimestamp.Format("2006-01-02"), newest.ExtractionTimestamp.Format("2006-01-02"),
		newest.ID, d.temporal.RecencyWeight(newest, now),
		oldest.ID, d.temporal.RecencyWeight(oldest, now))
}
