package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pharmasignal/evigraph/pkg/types"
)

// MemStore is the in-process reference implementation of Store. It holds an
// arena of immutable evidence records plus index maps from pair keys to
// relationship order, and satisfies every invariant with zero external
// dependencies.
type MemStore struct {
	mu sync.RWMutex

	drugs    map[string]*types.DrugNode
	diseases map[string]*types.DiseaseNode
	evidence map[string]*types.Evidence

	// relationships in creation order; pairIndex maps "drugID|diseaseID" to
	// indices into relationships.
	relationships []*types.Relationship
	pairIndex     map[string][]int

	log []Mutation
	seq int64
}

// NewMemStore creates an empty in-memory graph store.
func NewMemStore() *MemStore {
	return &MemStore{
		drugs:     make(map[string]*types.DrugNode),
		diseases:  make(map[string]*types.DiseaseNode),
		evidence:  make(map[string]*types.Evidence),
		pairIndex: make(map[string][]int),
	}
}

func pairKey(drugID, diseaseID string) string {
	return drugID + "|" + diseaseID
}

func (s *MemStore) appendLog(op, nodeID, detail string) {
	s.seq++
	s.log = append(s.log, Mutation{
		Seq:       s.seq,
		Op:        op,
		NodeID:    nodeID,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

// GetOrCreateDrug implements Store.
func (s *MemStore) GetOrCreateDrug(ctx context.Context, id, name, source string) (*types.DrugNode, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: drug ID is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.drugs[id]; ok {
		return existing, nil
	}

	node := &types.DrugNode{
		ID:        id,
		Name:      name,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	s.drugs[id] = node
	s.appendLog(OpCreateDrug, id, name)
	return node, nil
}

// GetOrCreateDisease implements Store.
func (s *MemStore) GetOrCreateDisease(ctx context.Context, id, name, source string) (*types.DiseaseNode, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: disease ID is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.diseases[id]; ok {
		return existing, nil
	}

	node := &types.DiseaseNode{
		ID:        id,
		Name:      name,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	s.diseases[id] = node
	s.appendLog(OpCreateDisease, id, name)
	return node, nil
}

// CreateEvidence implements Store. Assigns the node's ID in place.
func (s *MemStore) CreateEvidence(ctx context.Context, ev *types.Evidence) error {
	if ev == nil {
		return fmt.Errorf("%w: evidence is nil", ErrInvalidInput)
	}
	if ev.AgentName == "" || ev.RawReference == "" || ev.AgentID == "" || ev.SourceType == "" {
		return fmt.Errorf("%w: evidence provenance fields are required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev.ID = "ev:" + uuid.NewString()
	// Store a copy so later caller mutations cannot reach the arena.
	stored := *ev
	s.evidence[ev.ID] = &stored
	s.appendLog(OpCreateEvidence, ev.ID, string(ev.SourceType)+":"+ev.RawReference)
	return nil
}

// CreateRelationship implements Store. Assigns the edge's ID in place.
func (s *MemStore) CreateRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil {
		return fmt.Errorf("%w: relationship is nil", ErrInvalidInput)
	}
	if rel.EvidenceID == "" {
		return fmt.Errorf("%w: relationship requires an evidence_id", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.evidence[rel.EvidenceID]; !ok {
		return fmt.Errorf("%w: evidence %s", ErrNotFound, rel.EvidenceID)
	}
	if _, ok := s.drugs[rel.SourceID]; !ok {
		return fmt.Errorf("%w: drug %s", ErrNotFound, rel.SourceID)
	}
	if _, ok := s.diseases[rel.TargetID]; !ok {
		return fmt.Errorf("%w: disease %s", ErrNotFound, rel.TargetID)
	}

	rel.ID = "rel:" + uuid.NewString()
	stored := *rel
	s.relationships = append(s.relationships, &stored)
	key := pairKey(rel.SourceID, rel.TargetID)
	s.pairIndex[key] = append(s.pairIndex[key], len(s.relationships)-1)
	s.appendLog(OpCreateRelationship, rel.ID, string(rel.Type)+":"+rel.EvidenceID)
	return nil
}

// GetEvidence implements Store.
func (s *MemStore) GetEvidence(ctx context.Context, id string) (*types.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.evidence[id]
	if !ok {
		return nil, fmt.Errorf("%w: evidence %s", ErrNotFound, id)
	}
	copied := *ev
	return &copied, nil
}

// DrugExists implements Store.
func (s *MemStore) DrugExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.drugs[id]
	return ok, nil
}

// DiseaseExists implements Store.
func (s *MemStore) DiseaseExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.diseases[id]
	return ok, nil
}

// Query implements Store. Results come back in relationship creation order,
// never map iteration order, so repeated calls are byte-identical.
func (s *MemStore) Query(ctx context.Context, opts QueryOptions) ([]PairEvidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []int
	switch {
	case opts.DrugID != "" && opts.DiseaseID != "":
		candidates = s.pairIndex[pairKey(opts.DrugID, opts.DiseaseID)]
	default:
		for i, rel := range s.relationships {
			if opts.DrugID != "" && rel.SourceID != opts.DrugID {
				continue
			}
			if opts.DiseaseID != "" && rel.TargetID != opts.DiseaseID {
				continue
			}
			candidates = append(candidates, i)
		}
	}

	results := make([]PairEvidence, 0, len(candidates))
	for _, idx := range candidates {
		rel := s.relationships[idx]
		ev, ok := s.evidence[rel.EvidenceID]
		if !ok {
			// Relationships are only created against existing evidence.
			return nil, fmt.Errorf("%w: evidence %s referenced by %s", ErrNotFound, rel.EvidenceID, rel.ID)
		}
		relCopy := *rel
		evCopy := *ev
		results = append(results, PairEvidence{Relationship: &relCopy, Evidence: &evCopy})
	}
	return results, nil
}

// MutationLog implements Store.
func (s *MemStore) MutationLog(ctx context.Context) ([]Mutation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Mutation, len(s.log))
	copy(out, s.log)
	return out, nil
}

// Close implements Store. No resources to release for the in-memory store.
func (s *MemStore) Close() error {
	return nil
}
