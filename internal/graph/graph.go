// Package graph provides the append-only knowledge graph store for evidence
// about drug–disease pairs.
//
// The store never mutates or deletes provenance: Drug/Disease nodes are
// created lazily and never removed, Evidence nodes are immutable after
// creation, and every mutation is recorded in a log detailed enough to
// reconstruct the graph's history. The in-memory implementation in this
// package is the reference; the sqlite and postgres subpackages are optional
// durable backends behind the same interface.
package graph

import (
	"context"
	"errors"
	"time"

	"github.com/pharmasignal/evigraph/pkg/types"
)

var (
	// ErrNotFound indicates that the requested node was not found.
	ErrNotFound = errors.New("node not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Store is the storage contract for the evidence graph. All mutations are
// append-only; implementations must serialize writes.
type Store interface {
	// GetOrCreateDrug returns the drug node with the given canonical ID,
	// creating it on first reference. Idempotent: calling twice with the same
	// ID returns the same node and never creates a duplicate.
	GetOrCreateDrug(ctx context.Context, id, name, source string) (*types.DrugNode, error)

	// GetOrCreateDisease is the disease counterpart of GetOrCreateDrug.
	GetOrCreateDisease(ctx context.Context, id, name, source string) (*types.DiseaseNode, error)

	// CreateEvidence stores a new immutable evidence node and assigns its ID.
	// Always creates a new node: re-ingesting the same raw source yields a
	// second record with its own extraction timestamp.
	CreateEvidence(ctx context.Context, ev *types.Evidence) error

	// CreateRelationship stores a drug→disease edge. The referenced evidence
	// node and both endpoints must already exist.
	CreateRelationship(ctx context.Context, rel *types.Relationship) error

	// GetEvidence retrieves an evidence node by ID.
	GetEvidence(ctx context.Context, id string) (*types.Evidence, error)

	// DrugExists and DiseaseExists are point existence checks.
	DrugExists(ctx context.Context, id string) (bool, error)
	DiseaseExists(ctx context.Context, id string) (bool, error)

	// Query returns relationship+evidence pairs filtered by the options.
	// An unknown drug or disease ID yields an empty result, not an error.
	// Results are sorted by relationship creation order (oldest first) so
	// output is reproducible.
	Query(ctx context.Context, opts QueryOptions) ([]PairEvidence, error)

	// MutationLog returns the append-only mutation history in order.
	MutationLog(ctx context.Context) ([]Mutation, error)

	// Close releases any resources held by the store.
	Close() error
}

// QueryOptions filters graph queries. Zero values mean "no filter".
type QueryOptions struct {
	DrugID    string
	DiseaseID string
}

// PairEvidence joins a relationship edge with the evidence node backing it.
type PairEvidence struct {
	Relationship *types.Relationship `json:"relationship"`
	Evidence     *types.Evidence     `json:"evidence"`
}

// Mutation is one entry in the append-only mutation log.
type Mutation struct {
	Seq       int64     `json:"seq"`
	Op        string    `json:"op"` // create_drug, create_disease, create_evidence, create_relationship
	NodeID    string    `json:"node_id"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Mutation op constants.
const (
	OpCreateDrug         = "create_drug"
	OpCreateDisease      = "create_disease"
	OpCreateEvidence     = "create_evidence"
	OpCreateRelationship = "create_relationship"
)
