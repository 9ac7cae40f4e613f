package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmasignal/evigraph/internal/graph"
	"github.com/pharmasignal/evigraph/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "evigraph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestEvidence(t *testing.T) *types.Evidence {
	t.Helper()
	ev, err := types.NewEvidence("clinical-agent", types.SourceClinical, "NCT12345678", "trial summary", types.QualityHigh, 0.9)
	require.NoError(t, err)
	ev.Metadata = map[string]interface{}{"phase": "PHASE3"}
	return ev
}

func TestStore_GetOrCreateDrugIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreateDrug(ctx, "drug_abc", "glp-1", "clinical-agent")
	require.NoError(t, err)
	second, err := store.GetOrCreateDrug(ctx, "drug_abc", "renamed", "market-agent")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "glp-1", second.Name, "first writer wins")

	log, err := store.MutationLog(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, graph.OpCreateDrug, log[0].Op)
}

func TestStore_EvidenceRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := newTestEvidence(t)
	require.NoError(t, store.CreateEvidence(ctx, ev))
	require.NotEmpty(t, ev.ID)

	got, err := store.GetEvidence(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "NCT12345678", got.RawReference)
	assert.Equal(t, types.QualityHigh, got.Quality)
	assert.Equal(t, 0.9, got.ConfidenceScore)
	assert.Equal(t, "PHASE3", got.Metadata["phase"])
	assert.Nil(t, got.ValidityEnd)

	_, err = store.GetEvidence(ctx, "ev:missing")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestStore_RelationshipRequiresExistingRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := newTestEvidence(t)
	require.NoError(t, store.CreateEvidence(ctx, ev))

	rel, err := types.NewRelationship("drug_abc", "disease_def", types.RelTreats, ev.ID, 0.9)
	require.NoError(t, err)
	assert.ErrorIs(t, store.CreateRelationship(ctx, rel), graph.ErrNotFound)

	_, err = store.GetOrCreateDrug(ctx, "drug_abc", "glp-1", "")
	require.NoError(t, err)
	_, err = store.GetOrCreateDisease(ctx, "disease_def", "type 2 diabetes", "")
	require.NoError(t, err)
	require.NoError(t, store.CreateRelationship(ctx, rel))
}

func TestStore_QueryPreservesCreationOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreateDrug(ctx, "drug_a", "glp-1", "")
	require.NoError(t, err)
	_, err = store.GetOrCreateDisease(ctx, "disease_x", "type 2 diabetes", "")
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 5; i++ {
		ev := newTestEvidence(t)
		require.NoError(t, store.CreateEvidence(ctx, ev))
		rel, err := types.NewRelationship("drug_a", "disease_x", types.RelSupports, ev.ID, 0.8)
		require.NoError(t, err)
		require.NoError(t, store.CreateRelationship(ctx, rel))
		ids = append(ids, ev.ID)
	}

	out, err := store.Query(ctx, graph.QueryOptions{DrugID: "drug_a", DiseaseID: "disease_x"})
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, pe := range out {
		assert.Equal(t, ids[i], pe.Evidence.ID)
	}

	empty, err := store.Query(ctx, graph.QueryOptions{DrugID: "drug_missing"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_StateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evigraph.db")
	ctx := context.Background()

	store, err := NewStore(path)
	require.NoError(t, err)
	_, err = store.GetOrCreateDrug(ctx, "drug_abc", "glp-1", "")
	require.NoError(t, err)
	ev := newTestEvidence(t)
	require.NoError(t, store.CreateEvidence(ctx, ev))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	exists, err := reopened.DrugExists(ctx, "drug_abc")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := reopened.GetEvidence(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.RawReference, got.RawReference)
}
