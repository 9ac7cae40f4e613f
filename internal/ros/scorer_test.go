package ros

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmasignal/evigraph/internal/conflict"
	"github.com/pharmasignal/evigraph/internal/graph"
	"github.com/pharmasignal/evigraph/internal/temporal"
	"github.com/pharmasignal/evigraph/pkg/types"
)

const (
	testDrugID    = "drug_0123456789abcdef"
	testDiseaseID = "disease_fedcba9876543210"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store  *graph.MemStore
	scorer *Scorer
	seq    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := graph.NewMemStore()
	ctx := context.Background()
	_, err := store.GetOrCreateDrug(ctx, testDrugID, "glp-1", "test")
	require.NoError(t, err)
	_, err = store.GetOrCreateDisease(ctx, testDiseaseID, "type 2 diabetes", "test")
	require.NoError(t, err)

	reasoner := temporal.NewReasoner()
	detector := conflict.NewDetector(store, reasoner)
	detector.SetNowFunc(func() time.Time { return testNow })
	scorer := NewScorer(store, reasoner, detector)
	scorer.SetNowFunc(func() time.Time { return testNow })
	return &fixture{store: store, scorer: scorer}
}

func (f *fixture) add(t *testing.T, agentName string, sourceType types.SourceType, polarity types.RelationshipType, quality types.Quality, confidence float64, extracted time.Time) {
	t.Helper()
	f.seq++
	ctx := context.Background()
	ev, err := types.NewEvidence(agentName, sourceType, fmt.Sprintf("ref-%03d", f.seq), "summary", quality, confidence)
	require.NoError(t, err)
	ev.ExtractionTimestamp = extracted
	ev.ValidityStart = extracted
	require.NoError(t, f.store.CreateEvidence(ctx, ev))

	rel, err := types.NewRelationship(testDrugID, testDiseaseID, polarity, ev.ID, confidence)
	require.NoError(t, err)
	require.NoError(t, f.store.CreateRelationship(ctx, rel))
}

func (f *fixture) compute(t *testing.T) *Result {
	t.Helper()
	result, err := f.scorer.Compute(context.Background(), testDrugID, testDiseaseID)
	require.NoError(t, err)
	return result
}

func TestCompute_EmptyPairScoresZero(t *testing.T) {
	f := newFixture(t)

	result := f.compute(t)
	assert.Equal(t, 0.0, result.Score)
	assert.Equal(t, FeatureBreakdown{}, result.Breakdown)
	assert.Equal(t, 0, result.Metadata.EvidenceCount)
	assert.Contains(t, result.Explanation, "poor")
}

func TestCompute_UnknownPairIsNotAnError(t *testing.T) {
	f := newFixture(t)
	result, err := f.scorer.Compute(context.Background(), "drug_missing", "disease_missing")
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Score)
}

func TestEvidenceStrength_Bounds(t *testing.T) {
	f := newFixture(t)
	recent := testNow.AddDate(0, -1, 0)
	for i := 0; i < 20; i++ {
		f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 1.0, recent)
	}

	result := f.compute(t)
	// Volume term saturates at 1.5, relevance term at 2.0.
	assert.InDelta(t, 3.5, result.Breakdown.EvidenceStrength, 0.0001)
}

func TestEvidenceDiversity_AllFourAgents(t *testing.T) {
	f := newFixture(t)
	recent := testNow.AddDate(0, -1, 0)
	f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, recent)
	f.add(t, "patent-agent", types.SourcePatent, types.RelSuggests, types.QualityMedium, 0.5, recent)
	f.add(t, "market-agent", types.SourceMarket, types.RelSuggests, types.QualityLow, 0.4, recent)
	f.add(t, "literature-agent", types.SourceLiterature, types.RelSupports, types.QualityHigh, 0.9, recent)

	result := f.compute(t)
	assert.InDelta(t, 2.0, result.Breakdown.EvidenceDiversity, 0.0001)
}

func TestEvidenceDiversity_SingleAgent(t *testing.T) {
	f := newFixture(t)
	recent := testNow.AddDate(0, -1, 0)
	f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, recent)
	f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, recent)

	result := f.compute(t)
	assert.InDelta(t, 0.5, result.Breakdown.EvidenceDiversity, 0.0001)
}

func TestRecencyBoost_Fraction(t *testing.T) {
	f := newFixture(t)
	f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, testNow.AddDate(0, -1, 0))
	f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, testNow.AddDate(-3, 0, 0))

	result := f.compute(t)
	assert.InDelta(t, 1.0, result.Breakdown.RecencyBoost, 0.0001, "half the evidence is recent")
	assert.Equal(t, 1, result.Metadata.RecentCount)
}

func TestConflictPenalty_RequiresOpposingPolarity(t *testing.T) {
	f := newFixture(t)
	recent := testNow.AddDate(0, -1, 0)
	f.add(t, "clinical-agent", types.SourceClinical, types.RelContradicts, types.QualityLow, 0.3, recent)
	f.add(t, "clinical-agent", types.SourceClinical, types.RelContradicts, types.QualityLow, 0.3, recent)

	result := f.compute(t)
	assert.Equal(t, 0.0, result.Breakdown.ConflictPenalty, "contradicting-only evidence has no opposing polarity")

	f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, recent)
	result = f.compute(t)
	assert.InDelta(t, -2.0/3.0, result.Breakdown.ConflictPenalty, 0.0001)
}

func TestPatentRiskPenalty_StepFunction(t *testing.T) {
	recent := testNow.AddDate(0, -1, 0)
	cases := []struct {
		name    string
		patents int
		others  int
		want    float64
	}{
		{"no patents", 0, 5, 0},
		{"low fraction", 1, 9, 0},      // 0.1, not > 0.1
		{"over a tenth", 1, 4, -0.5},   // 0.2
		{"over a third", 2, 3, -1.0},   // 0.4
		{"patent dominated", 3, 2, -1.5}, // 0.6
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			for i := 0; i < tc.patents; i++ {
				f.add(t, "patent-agent", types.SourcePatent, types.RelSuggests, types.QualityMedium, 0.5, recent)
			}
			for i := 0; i < tc.others; i++ {
				f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, recent)
			}
			result := f.compute(t)
			assert.InDelta(t, tc.want, result.Breakdown.PatentRiskPenalty, 0.0001)
		})
	}
}

func TestCompute_ScoreIsClamped(t *testing.T) {
	f := newFixture(t)
	recent := testNow.AddDate(0, -1, 0)
	for i := 0; i < 20; i++ {
		f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 1.0, recent)
	}

	result := f.compute(t)
	assert.LessOrEqual(t, result.Score, 10.0)
	assert.GreaterOrEqual(t, result.Score, 0.0)
}

func TestCompute_MonotonicOnSupport(t *testing.T) {
	f := newFixture(t)
	recent := testNow.AddDate(0, -1, 0)
	f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, recent)
	f.add(t, "clinical-agent", types.SourceClinical, types.RelContradicts, types.QualityLow, 0.3, recent)

	before := f.compute(t).Score
	f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, recent)
	after := f.compute(t).Score

	assert.GreaterOrEqual(t, after, before, "adding supporting HIGH evidence must not decrease the score")
}

func TestCompute_MonotonicOnContradiction(t *testing.T) {
	f := newFixture(t)
	recent := testNow.AddDate(0, -1, 0)
	for i := 0; i < 3; i++ {
		f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, recent)
	}

	before := f.compute(t).Score
	f.add(t, "clinical-agent", types.SourceClinical, types.RelContradicts, types.QualityLow, 0.3, recent)
	after := f.compute(t).Score

	assert.LessOrEqual(t, after, before, "adding contradicting evidence must not increase the score")
}

func TestCompute_MonotonicOnPatents(t *testing.T) {
	f := newFixture(t)
	recent := testNow.AddDate(0, -1, 0)
	for i := 0; i < 4; i++ {
		f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, recent)
	}

	before := f.compute(t).Score
	f.add(t, "patent-agent", types.SourcePatent, types.RelSuggests, types.QualityMedium, 0.5, recent)
	after := f.compute(t).Score

	assert.LessOrEqual(t, after, before, "adding a patent must not increase the score")
}

func TestCompute_ExplanationMatchesBreakdown(t *testing.T) {
	f := newFixture(t)
	recent := testNow.AddDate(0, -1, 0)
	f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, recent)
	f.add(t, "literature-agent", types.SourceLiterature, types.RelContradicts, types.QualityMedium, 0.7, recent)

	result := f.compute(t)

	assert.Contains(t, result.Explanation, fmt.Sprintf("score %.2f/10", result.Score))
	assert.Contains(t, result.Explanation, fmt.Sprintf("Evidence strength %.2f", result.Breakdown.EvidenceStrength))
	assert.Contains(t, result.Explanation, fmt.Sprintf("conflict penalty %.2f", result.Breakdown.ConflictPenalty))
	assert.Contains(t, result.Explanation, fmt.Sprintf("%d supporting vs %d contradicting", result.Metadata.SupportingCount, result.Metadata.ContradictingCount))
}

func TestCompute_ExplanationBrackets(t *testing.T) {
	// Drive score into each bracket by varying volume and confidence.
	recent := testNow.AddDate(0, -1, 0)

	strong := newFixture(t)
	for i := 0; i < 20; i++ {
		strong.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.95, recent)
	}
	strong.add(t, "literature-agent", types.SourceLiterature, types.RelSupports, types.QualityHigh, 0.95, recent)
	strong.add(t, "market-agent", types.SourceMarket, types.RelSuggests, types.QualityLow, 0.9, recent)
	strong.add(t, "patent-agent", types.SourcePatent, types.RelSuggests, types.QualityMedium, 0.5, recent)
	assert.Contains(t, strong.compute(t).Explanation, "strong")

	poor := newFixture(t)
	poor.add(t, "market-agent", types.SourceMarket, types.RelSuggests, types.QualityLow, 0.2, testNow.AddDate(-4, 0, 0))
	assert.Contains(t, poor.compute(t).Explanation, "poor")
}

func TestCompute_IsByteDeterministic(t *testing.T) {
	f := newFixture(t)
	recent := testNow.AddDate(0, -1, 0)
	f.add(t, "clinical-agent", types.SourceClinical, types.RelSupports, types.QualityHigh, 0.9, recent)
	f.add(t, "patent-agent", types.SourcePatent, types.RelSuggests, types.QualityMedium, 0.5, recent)
	f.add(t, "literature-agent", types.SourceLiterature, types.RelContradicts, types.QualityMedium, 0.7, recent)

	first := f.compute(t)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, f.compute(t), "identical graph state must yield identical results (run %d)", i)
	}
}
