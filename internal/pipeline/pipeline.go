// Package pipeline wires normalization, the graph store, and the reasoning
// engines behind the transport-independent operations the orchestration layer
// calls: normalize, ingest, explain_conflict, compute_ros, query_graph.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/pharmasignal/evigraph/internal/conflict"
	"github.com/pharmasignal/evigraph/internal/graph"
	"github.com/pharmasignal/evigraph/internal/normalize"
	"github.com/pharmasignal/evigraph/internal/ros"
	"github.com/pharmasignal/evigraph/internal/temporal"
	"github.com/pharmasignal/evigraph/pkg/types"
)

// IngestResult reports what one normalized record became in the graph.
type IngestResult struct {
	EvidenceID       string                 `json:"evidence_id"`
	DrugID           string                 `json:"drug_id"`
	DiseaseID        string                 `json:"disease_id"`
	RelationshipType types.RelationshipType `json:"relationship_type"`
}

// Service is the core pipeline. Reads are pure functions of committed state
// and run concurrently; writes touching the same drug-disease pair are
// serialized by a per-pair lock so append-only ordering holds.
type Service struct {
	store    graph.Store
	temporal *temporal.Reasoner
	conflict *conflict.Detector
	scorer   *ros.Scorer

	pairLocks sync.Map // pair key -> *sync.Mutex
}

// NewService creates a pipeline over the given store.
func NewService(store graph.Store) *Service {
	reasoner := temporal.NewReasoner()
	detector := conflict.NewDetector(store, reasoner)
	return &Service{
		store:    store,
		temporal: reasoner,
		conflict: detector,
		scorer:   ros.NewScorer(store, reasoner, detector),
	}
}

// Store exposes the underlying graph store for audit consumers.
func (s *Service) Store() graph.Store { return s.store }

// Normalize parses one agent's raw output into normalized evidence.
// A *normalize.ParsingRejection means this agent's output is unusable this
// round; other agents' outputs for the same query are unaffected.
func (s *Service) Normalize(agentID types.SourceType, raw map[string]interface{}) ([]normalize.NormalizedEvidence, error) {
	return normalize.Normalize(agentID, raw)
}

func (s *Service) lockPair(drugID, diseaseID string) *sync.Mutex {
	key := drugID + "|" + diseaseID
	mu, _ := s.pairLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Ingest commits one normalized record: get-or-create both endpoint nodes
// (idempotent), create the evidence node (always new), and create the
// relationship edge. Supporting clinical evidence produces a TREATS edge;
// all other polarities map through unchanged.
func (s *Service) Ingest(ctx context.Context, ne normalize.NormalizedEvidence) (*IngestResult, error) {
	if ne.Evidence == nil {
		return nil, fmt.Errorf("%w: evidence is nil", graph.ErrInvalidInput)
	}
	if ne.DrugID == "" || ne.DiseaseID == "" {
		return nil, fmt.Errorf("%w: drug and disease IDs are required", graph.ErrInvalidInput)
	}

	mu := s.lockPair(ne.DrugID, ne.DiseaseID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.store.GetOrCreateDrug(ctx, ne.DrugID, ne.DrugName, ne.Evidence.AgentName); err != nil {
		return nil, fmt.Errorf("pipeline: create drug node: %w", err)
	}
	if _, err := s.store.GetOrCreateDisease(ctx, ne.DiseaseID, ne.DiseaseName, ne.Evidence.AgentName); err != nil {
		return nil, fmt.Errorf("pipeline: create disease node: %w", err)
	}
	if err := s.store.CreateEvidence(ctx, ne.Evidence); err != nil {
		return nil, fmt.Errorf("pipeline: create evidence node: %w", err)
	}

	relType := relationshipType(ne)
	rel, err := types.NewRelationship(ne.DrugID, ne.DiseaseID, relType, ne.Evidence.ID, ne.Evidence.ConfidenceScore)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build relationship: %w", err)
	}
	if err := s.store.CreateRelationship(ctx, rel); err != nil {
		return nil, fmt.Errorf("pipeline: create relationship: %w", err)
	}

	return &IngestResult{
		EvidenceID:       ne.Evidence.ID,
		DrugID:           ne.DrugID,
		DiseaseID:        ne.DiseaseID,
		RelationshipType: relType,
	}, nil
}

// relationshipType maps evidence polarity to the edge type. TREATS is
// reserved for supporting clinical evidence, the strongest verdict the
// normalizer produces.
func relationshipType(ne normalize.NormalizedEvidence) types.RelationshipType {
	if ne.Polarity == types.RelSupports && ne.Evidence.SourceType == types.SourceClinical {
		return types.RelTreats
	}
	return ne.Polarity
}

// IngestBatch normalizes and ingests one agent's raw output in a single
// call. Per-record skips inside the parser have already happened; every
// normalized record here either commits or fails the batch.
func (s *Service) IngestBatch(ctx context.Context, agentID types.SourceType, raw map[string]interface{}) ([]IngestResult, error) {
	normalized, err := s.Normalize(agentID, raw)
	if err != nil {
		return nil, err
	}

	results := make([]IngestResult, 0, len(normalized))
	for _, ne := range normalized {
		result, err := s.Ingest(ctx, ne)
		if err != nil {
			return results, fmt.Errorf("pipeline: ingest %s: %w", ne.Evidence.RawReference, err)
		}
		results = append(results, *result)
	}
	return results, nil
}

// ExplainConflict computes the conflict report for a pair.
func (s *Service) ExplainConflict(ctx context.Context, drugID, diseaseID string) (*types.Conflict, error) {
	return s.conflict.Explain(ctx, drugID, diseaseID)
}

// ComputeROS scores the research opportunity of a pair.
func (s *Service) ComputeROS(ctx context.Context, drugID, diseaseID string) (*ros.Result, error) {
	return s.scorer.Compute(ctx, drugID, diseaseID)
}

// QueryGraph returns relationship+evidence pairs for visualization and audit
// consumers. Both filters are optional.
func (s *Service) QueryGraph(ctx context.Context, drugID, diseaseID string) ([]graph.PairEvidence, error) {
	return s.store.Query(ctx, graph.QueryOptions{DrugID: drugID, DiseaseID: diseaseID})
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}
