package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmasignal/evigraph/internal/graph"
	"github.com/pharmasignal/evigraph/internal/temporal"
	"github.com/pharmasignal/evigraph/pkg/types"
)

const (
	testDrugID    = "drug_0123456789abcdef"
	testDiseaseID = "disease_fedcba9876543210"
)

type fixture struct {
	store    *graph.MemStore
	detector *Detector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := graph.NewMemStore()
	ctx := context.Background()
	_, err := store.GetOrCreateDrug(ctx, testDrugID, "glp-1", "test")
	require.NoError(t, err)
	_, err = store.GetOrCreateDisease(ctx, testDiseaseID, "type 2 diabetes", "test")
	require.NoError(t, err)

	detector := NewDetector(store, temporal.NewReasoner())
	detector.SetNowFunc(func() time.Time {
		return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	})
	return &fixture{store: store, detector: detector}
}

func (f *fixture) addEvidence(t *testing.T, polarity types.RelationshipType, quality types.Quality, confidence float64, extracted time.Time) string {
	t.Helper()
	ctx := context.Background()
	ev, err := types.NewEvidence("clinical-agent", types.SourceClinical, "ref-"+extracted.Format("20060102150405.000000000"), "summary", quality, confidence)
	require.NoError(t, err)
	ev.ExtractionTimestamp = extracted
	ev.ValidityStart = extracted
	require.NoError(t, f.store.CreateEvidence(ctx, ev))

	rel, err := types.NewRelationship(testDrugID, testDiseaseID, polarity, ev.ID, confidence)
	require.NoError(t, err)
	require.NoError(t, f.store.CreateRelationship(ctx, rel))
	return ev.ID
}

func TestExplain_UnknownPairIsEmptyNoConflict(t *testing.T) {
	f := newFixture(t)

	report, err := f.detector.Explain(context.Background(), "drug_missing", "disease_missing")
	require.NoError(t, err)

	assert.False(t, report.HasConflict)
	assert.Equal(t, types.SeverityNone, report.Severity)
	assert.Contains(t, report.SummaryText, "No conflict")
	assert.Contains(t, report.SummaryText, "No evidence recorded")
}

func TestExplain_SuggestsOnlyNeverConflicts(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.addEvidence(t, types.RelSuggests, types.QualityLow, 0.4, base)
	f.addEvidence(t, types.RelSuggests, types.QualityMedium, 0.5, base.AddDate(0, 1, 0))

	report, err := f.detector.Explain(context.Background(), testDrugID, testDiseaseID)
	require.NoError(t, err)

	assert.False(t, report.HasConflict)
	assert.Equal(t, types.SeverityNone, report.Severity)
	assert.Len(t, report.SuggestingEvidenceIDs, 2)
	assert.Contains(t, report.SummaryText, "No conflict")
	assert.Contains(t, report.SummaryText, "Provenance:")
}

func TestExplain_SupportingOnlyNoConflict(t *testing.T) {
	f := newFixture(t)
	f.addEvidence(t, types.RelSupports, types.QualityHigh, 0.9, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	report, err := f.detector.Explain(context.Background(), testDrugID, testDiseaseID)
	require.NoError(t, err)

	assert.False(t, report.HasConflict)
	assert.Equal(t, types.SeverityNone, report.Severity)
	assert.Empty(t, report.DominantEvidenceID)
}

func TestExplain_TreatsCountsAsSupporting(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.addEvidence(t, types.RelTreats, types.QualityHigh, 0.9, base)
	f.addEvidence(t, types.RelContradicts, types.QualityLow, 0.3, base.AddDate(0, 2, 0))

	report, err := f.detector.Explain(context.Background(), testDrugID, testDiseaseID)
	require.NoError(t, err)

	assert.True(t, report.HasConflict)
	assert.Len(t, report.SupportingEvidenceIDs, 1)
	assert.Len(t, report.ContradictingEvidenceIDs, 1)
}

func TestExplain_SeverityRuleTable(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name       string
		supQuality types.Quality
		conQuality types.Quality
		want       types.Severity
	}{
		{"both sides HIGH", types.QualityHigh, types.QualityHigh, types.SeverityHigh},
		{"only supporting HIGH", types.QualityHigh, types.QualityLow, types.SeverityMedium},
		{"only contradicting HIGH", types.QualityLow, types.QualityHigh, types.SeverityMedium},
		{"MEDIUM vs LOW", types.QualityMedium, types.QualityLow, types.SeverityLow},
		{"LOW vs LOW", types.QualityLow, types.QualityLow, types.SeverityLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.addEvidence(t, types.RelSupports, tc.supQuality, 0.5, base)
			f.addEvidence(t, types.RelContradicts, tc.conQuality, 0.5, base.AddDate(0, 0, 1))

			report, err := f.detector.Explain(context.Background(), testDrugID, testDiseaseID)
			require.NoError(t, err)
			assert.True(t, report.HasConflict)
			assert.Equal(t, tc.want, report.Severity)
		})
	}
}

func TestExplain_QualityBeatsConfidenceAndRecency(t *testing.T) {
	f := newFixture(t)
	// A: HIGH quality, lower confidence, older. B: LOW quality, higher
	// confidence, newer. A must dominate and the reason must name quality.
	idA := f.addEvidence(t, types.RelSupports, types.QualityHigh, 0.70, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	f.addEvidence(t, types.RelContradicts, types.QualityLow, 0.95, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	report, err := f.detector.Explain(context.Background(), testDrugID, testDiseaseID)
	require.NoError(t, err)

	assert.Equal(t, idA, report.DominantEvidenceID)
	assert.Equal(t, "quality: HIGH beats LOW", report.DominanceReason)
}

func TestExplain_ConfidenceBreaksQualityTie(t *testing.T) {
	f := newFixture(t)
	f.addEvidence(t, types.RelSupports, types.QualityHigh, 0.70, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	idB := f.addEvidence(t, types.RelContradicts, types.QualityHigh, 0.95, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	report, err := f.detector.Explain(context.Background(), testDrugID, testDiseaseID)
	require.NoError(t, err)

	assert.Equal(t, idB, report.DominantEvidenceID)
	assert.Equal(t, "confidence: 0.95 vs 0.70", report.DominanceReason)
}

func TestExplain_RecencyBreaksRemainingTie(t *testing.T) {
	f := newFixture(t)
	f.addEvidence(t, types.RelSupports, types.QualityHigh, 0.9, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	idNewer := f.addEvidence(t, types.RelContradicts, types.QualityHigh, 0.9, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	report, err := f.detector.Explain(context.Background(), testDrugID, testDiseaseID)
	require.NoError(t, err)

	assert.Equal(t, idNewer, report.DominantEvidenceID)
	assert.Equal(t, "recency: 2024 evidence supersedes 2020 evidence", report.DominanceReason)
}

func TestExplain_PerSideRankingPicksSideWinnersFirst(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	// Supporting side has a weak record plus a strong one; the strong one
	// must represent the side in the cross comparison.
	f.addEvidence(t, types.RelSupports, types.QualityLow, 0.4, base)
	idStrong := f.addEvidence(t, types.RelSupports, types.QualityHigh, 0.9, base.AddDate(0, 1, 0))
	f.addEvidence(t, types.RelContradicts, types.QualityMedium, 0.6, base.AddDate(0, 2, 0))

	report, err := f.detector.Explain(context.Background(), testDrugID, testDiseaseID)
	require.NoError(t, err)

	assert.Equal(t, idStrong, report.DominantEvidenceID)
	assert.Equal(t, "quality: HIGH beats MEDIUM", report.DominanceReason)
	assert.Equal(t, types.SeverityMedium, report.Severity)
}

func TestExplain_IsByteDeterministic(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		f.addEvidence(t, types.RelSupports, types.QualityMedium, 0.6, base.AddDate(0, i, 0))
		f.addEvidence(t, types.RelContradicts, types.QualityLow, 0.4, base.AddDate(0, i, 15))
	}

	first, err := f.detector.Explain(context.Background(), testDrugID, testDiseaseID)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := f.detector.Explain(context.Background(), testDrugID, testDiseaseID)
		require.NoError(t, err)
		assert.Equal(t, first, again, "identical graph state must yield identical reports (run %d)", i)
	}
}

func TestExplain_TemporalExplanationNamesSpanAndWeights(t *testing.T) {
	f := newFixture(t)
	f.addEvidence(t, types.RelSupports, types.QualityHigh, 0.9, time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC))
	f.addEvidence(t, types.RelContradicts, types.QualityHigh, 0.8, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))

	report, err := f.detector.Explain(context.Background(), testDrugID, testDiseaseID)
	require.NoError(t, err)

	assert.Contains(t, report.TemporalExplanation, "2020-01-15")
	assert.Contains(t, report.TemporalExplanation, "2024-06-15")
	assert.Contains(t, report.TemporalExplanation, "recency weight")
}
