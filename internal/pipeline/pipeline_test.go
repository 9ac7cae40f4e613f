package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmasignal/evigraph/internal/graph"
	"github.com/pharmasignal/evigraph/internal/normalize"
	"github.com/pharmasignal/evigraph/pkg/identity"
	"github.com/pharmasignal/evigraph/pkg/types"
)

func newService() *Service {
	return NewService(graph.NewMemStore())
}

func clinicalEnvelope(trials ...map[string]interface{}) map[string]interface{} {
	converted := make([]interface{}, len(trials))
	for i, trial := range trials {
		converted[i] = trial
	}
	return map[string]interface{}{
		"agent_name": "clinical-agent",
		"trials":     converted,
	}
}

func glpTrial() map[string]interface{} {
	return map[string]interface{}{
		"nct_id":        "NCT12345678",
		"interventions": []interface{}{"GLP-1"},
		"conditions":    []interface{}{"Type 2 Diabetes"},
		"phase":         "PHASE3",
		"status":        "COMPLETED",
		"summary":       "Completed phase 3 trial of GLP-1 in type 2 diabetes.",
	}
}

func TestIngestBatch_EndToEndClinicalScenario(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	results, err := svc.IngestBatch(ctx, types.SourceClinical, clinicalEnvelope(glpTrial()))
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	assert.Equal(t, types.RelTreats, result.RelationshipType, "supporting clinical evidence yields a TREATS edge")

	wantDrug, err := identity.GenerateID("GLP-1", identity.EntityDrug)
	require.NoError(t, err)
	wantDisease, err := identity.GenerateID("Type 2 Diabetes", identity.EntityDisease)
	require.NoError(t, err)
	assert.Equal(t, wantDrug, result.DrugID)
	assert.Equal(t, wantDisease, result.DiseaseID)

	ev, err := svc.Store().GetEvidence(ctx, result.EvidenceID)
	require.NoError(t, err)
	assert.Equal(t, types.QualityHigh, ev.Quality)
	assert.Equal(t, 0.9, ev.ConfidenceScore)
	assert.Equal(t, "NCT12345678", ev.RawReference)
}

func TestIngestBatch_RejectionDoesNotCreateNodes(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.IngestBatch(ctx, types.SourceClinical, map[string]interface{}{"agent_name": "clinical-agent"})
	var rejection *normalize.ParsingRejection
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "trials", rejection.Field)

	log, err := svc.Store().MutationLog(ctx)
	require.NoError(t, err)
	assert.Empty(t, log, "a rejected envelope must not touch the graph")
}

func TestIngestBatch_UnextractableRecordsYieldEmptyNotError(t *testing.T) {
	svc := newService()

	trial := map[string]interface{}{
		"nct_id":        "NCT00000002",
		"interventions": []interface{}{},
		"conditions":    []interface{}{},
		"phase":         "PHASE2",
		"status":        "RECRUITING",
	}
	results, err := svc.IngestBatch(context.Background(), types.SourceClinical, clinicalEnvelope(trial))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIngest_CrossAgentEntityResolution(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	clinical, err := svc.IngestBatch(ctx, types.SourceClinical, clinicalEnvelope(glpTrial()))
	require.NoError(t, err)
	require.Len(t, clinical, 1)

	market, err := svc.IngestBatch(ctx, types.SourceMarket, map[string]interface{}{
		"agent_name": "market-agent",
		"query":      "glp-1 for type 2 diabetes market outlook",
		"sections": map[string]interface{}{
			"summary": "Strong forecast for glp-1 in type 2 diabetes.",
		},
		"confidence_score": 0.65,
	})
	require.NoError(t, err)
	require.Len(t, market, 1)

	assert.Equal(t, clinical[0].DrugID, market[0].DrugID, "different casing must resolve to the same drug node")
	assert.Equal(t, clinical[0].DiseaseID, market[0].DiseaseID)

	pairs, err := svc.QueryGraph(ctx, clinical[0].DrugID, clinical[0].DiseaseID)
	require.NoError(t, err)
	assert.Len(t, pairs, 2)
}

func TestIngest_ReingestCreatesNewEvidence(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	first, err := svc.IngestBatch(ctx, types.SourceClinical, clinicalEnvelope(glpTrial()))
	require.NoError(t, err)
	second, err := svc.IngestBatch(ctx, types.SourceClinical, clinicalEnvelope(glpTrial()))
	require.NoError(t, err)

	assert.NotEqual(t, first[0].EvidenceID, second[0].EvidenceID, "re-ingest layers a new record over the old one")
	assert.Equal(t, first[0].DrugID, second[0].DrugID, "endpoint creation stays idempotent")
}

func TestIngest_RequiresEndpointIDs(t *testing.T) {
	svc := newService()
	ev, err := types.NewEvidence("clinical-agent", types.SourceClinical, "NCT1", "summary", types.QualityLow, 0.4)
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), normalize.NormalizedEvidence{Evidence: ev})
	assert.ErrorIs(t, err, graph.ErrInvalidInput)

	_, err = svc.Ingest(context.Background(), normalize.NormalizedEvidence{DrugID: "drug_a", DiseaseID: "disease_b"})
	assert.ErrorIs(t, err, graph.ErrInvalidInput)
}

func TestIngest_NonClinicalSupportStaysSupports(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	results, err := svc.IngestBatch(ctx, types.SourceLiterature, map[string]interface{}{
		"agent_name": "literature-agent",
		"articles": []interface{}{
			map[string]interface{}{
				"pmid":     "34567890",
				"title":    "Meta-analysis of metformin in type 2 diabetes",
				"abstract": "Pooled analysis shows benefit of metformin in type 2 diabetes.",
				"journal":  "Diabetes Care",
				"year":     float64(2024),
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.RelSupports, results[0].RelationshipType)
}

func TestExplainConflictAndROS_EndToEnd(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	supported, err := svc.IngestBatch(ctx, types.SourceClinical, clinicalEnvelope(glpTrial()))
	require.NoError(t, err)

	terminated := glpTrial()
	terminated["nct_id"] = "NCT99999999"
	terminated["status"] = "TERMINATED"
	_, err = svc.IngestBatch(ctx, types.SourceClinical, clinicalEnvelope(terminated))
	require.NoError(t, err)

	report, err := svc.ExplainConflict(ctx, supported[0].DrugID, supported[0].DiseaseID)
	require.NoError(t, err)
	assert.True(t, report.HasConflict)
	assert.Equal(t, types.SeverityMedium, report.Severity, "HIGH supporting vs LOW contradicting")
	assert.Contains(t, report.DominanceReason, "quality")

	result, err := svc.ComputeROS(ctx, supported[0].DrugID, supported[0].DiseaseID)
	require.NoError(t, err)
	assert.Greater(t, result.Score, 0.0)
	assert.Negative(t, result.Breakdown.ConflictPenalty)
}

func TestExplainConflict_UnknownPair(t *testing.T) {
	svc := newService()
	report, err := svc.ExplainConflict(context.Background(), "drug_none", "disease_none")
	require.NoError(t, err)
	assert.False(t, report.HasConflict)
	assert.Equal(t, types.SeverityNone, report.Severity)
}

func TestIngest_ConcurrentSamePairSerializes(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IngestBatch(ctx, types.SourceClinical, clinicalEnvelope(glpTrial()))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	drugID, err := identity.GenerateID("GLP-1", identity.EntityDrug)
	require.NoError(t, err)
	diseaseID, err := identity.GenerateID("Type 2 Diabetes", identity.EntityDisease)
	require.NoError(t, err)

	pairs, err := svc.QueryGraph(ctx, drugID, diseaseID)
	require.NoError(t, err)
	assert.Len(t, pairs, 20)

	log, err := svc.Store().MutationLog(ctx)
	require.NoError(t, err)
	drugCreates := 0
	for _, m := range log {
		if m.Op == graph.OpCreateDrug {
			drugCreates++
		}
	}
	assert.Equal(t, 1, drugCreates, "concurrent ingest must not duplicate endpoint nodes")
}

func TestNormalize_UnknownAgent(t *testing.T) {
	svc := newService()
	_, err := svc.Normalize(types.SourceType("genomic"), map[string]interface{}{})
	assert.True(t, errors.Is(err, normalize.ErrUnknownAgent))
}
