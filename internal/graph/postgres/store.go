// Package postgres provides a server-backed durable backend for the evidence
// graph using lib/pq. Like the sqlite backend it is an optional deployment
// choice behind the same append-only interface.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pharmasignal/evigraph/internal/graph"
	"github.com/pharmasignal/evigraph/pkg/types"
)

// Schema creates the append-only graph tables.
const Schema = `
CREATE TABLE IF NOT EXISTS drugs (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	drug_class TEXT,
	source     TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS diseases (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	disease_category TEXT,
	source           TEXT,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS evidence (
	id                   TEXT PRIMARY KEY,
	agent_name           TEXT NOT NULL,
	agent_id             TEXT NOT NULL,
	api_source           TEXT,
	raw_reference        TEXT NOT NULL,
	extraction_timestamp TIMESTAMPTZ NOT NULL,
	source_type          TEXT NOT NULL,
	quality              TEXT NOT NULL,
	confidence_score     DOUBLE PRECISION NOT NULL,
	summary              TEXT NOT NULL,
	full_text            TEXT,
	metadata             JSONB,
	validity_start       TIMESTAMPTZ NOT NULL,
	validity_end         TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS relationships (
	ord               BIGSERIAL,
	id                TEXT PRIMARY KEY,
	source_id         TEXT NOT NULL REFERENCES drugs(id),
	target_id         TEXT NOT NULL REFERENCES diseases(id),
	relationship_type TEXT NOT NULL,
	evidence_id       TEXT NOT NULL REFERENCES evidence(id),
	confidence        DOUBLE PRECISION NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relationships_pair ON relationships(source_id, target_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);

CREATE TABLE IF NOT EXISTS mutation_log (
	seq       BIGSERIAL PRIMARY KEY,
	op        TEXT NOT NULL,
	node_id   TEXT NOT NULL,
	detail    TEXT,
	timestamp TIMESTAMPTZ NOT NULL
);
`

// Store implements graph.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore connects to the database at connString and creates the schema.
func NewStore(connString string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) logMutation(ctx context.Context, tx *sql.Tx, op, nodeID, detail string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO mutation_log (op, node_id, detail, timestamp) VALUES ($1, $2, $3, $4)`,
		op, nodeID, detail, time.Now().UTC())
	return err
}

// GetOrCreateDrug implements graph.Store. The insert uses ON CONFLICT DO
// NOTHING so concurrent first references of the same canonical ID cannot
// create duplicates.
func (s *Store) GetOrCreateDrug(ctx context.Context, id, name, source string) (*types.DrugNode, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: drug ID is required", graph.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	node := &types.DrugNode{ID: id}
	err = tx.QueryRowContext(ctx,
		`SELECT name, COALESCE(drug_class,''), COALESCE(source,''), created_at FROM drugs WHERE id = $1`, id).
		Scan(&node.Name, &node.DrugClass, &node.Source, &node.CreatedAt)
	if err == nil {
		return node, tx.Commit()
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("postgres: query drug: %w", err)
	}

	node.Name = name
	node.Source = source
	node.CreatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO drugs (id, name, source, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`,
		node.ID, node.Name, node.Source, node.CreatedAt); err != nil {
		return nil, fmt.Errorf("postgres: insert drug: %w", err)
	}
	if err := s.logMutation(ctx, tx, graph.OpCreateDrug, id, name); err != nil {
		return nil, fmt.Errorf("postgres: log mutation: %w", err)
	}
	return node, tx.Commit()
}

// GetOrCreateDisease implements graph.Store.
func (s *Store) GetOrCreateDisease(ctx context.Context, id, name, source string) (*types.DiseaseNode, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: disease ID is required", graph.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	node := &types.DiseaseNode{ID: id}
	err = tx.QueryRowContext(ctx,
		`SELECT name, COALESCE(disease_category,''), COALESCE(source,''), created_at FROM diseases WHERE id = $1`, id).
		Scan(&node.Name, &node.DiseaseCategory, &node.Source, &node.CreatedAt)
	if err == nil {
		return node, tx.Commit()
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("postgres: query disease: %w", err)
	}

	node.Name = name
	node.Source = source
	node.CreatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO diseases (id, name, source, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`,
		node.ID, node.Name, node.Source, node.CreatedAt); err != nil {
		return nil, fmt.Errorf("postgres: insert disease: %w", err)
	}
	if err := s.logMutation(ctx, tx, graph.OpCreateDisease, id, name); err != nil {
		return nil, fmt.Errorf("postgres: log mutation: %w", err)
	}
	return node, tx.Commit()
}

// CreateEvidence implements graph.Store.
func (s *Store) CreateEvidence(ctx context.Context, ev *types.Evidence) error {
	if ev == nil {
		return fmt.Errorf("%w: evidence is nil", graph.ErrInvalidInput)
	}
	if ev.AgentName == "" || ev.RawReference == "" || ev.AgentID == "" || ev.SourceType == "" {
		return fmt.Errorf("%w: evidence provenance fields are required", graph.ErrInvalidInput)
	}

	var metadataJSON []byte
	if ev.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("postgres: marshal metadata: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	ev.ID = "ev:" + uuid.NewString()
	var validityEnd interface{}
	if ev.ValidityEnd != nil {
		validityEnd = *ev.ValidityEnd
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO evidence (
			id, agent_name, agent_id, api_source, raw_reference,
			extraction_timestamp, source_type, quality, confidence_score,
			summary, full_text, metadata, validity_start, validity_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		ev.ID, ev.AgentName, string(ev.AgentID), ev.APISource, ev.RawReference,
		ev.ExtractionTimestamp, string(ev.SourceType), string(ev.Quality), ev.ConfidenceScore,
		ev.Summary, ev.FullText, nullableJSON(metadataJSON), ev.ValidityStart, validityEnd); err != nil {
		return fmt.Errorf("postgres: insert evidence: %w", err)
	}
	if err := s.logMutation(ctx, tx, graph.OpCreateEvidence, ev.ID, string(ev.SourceType)+":"+ev.RawReference); err != nil {
		return fmt.Errorf("postgres: log mutation: %w", err)
	}
	return tx.Commit()
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// CreateRelationship implements graph.Store.
func (s *Store) CreateRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil {
		return fmt.Errorf("%w: relationship is nil", graph.ErrInvalidInput)
	}
	if rel.EvidenceID == "" {
		return fmt.Errorf("%w: relationship requires an evidence_id", graph.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	for _, check := range []struct {
		table, id string
	}{
		{"evidence", rel.EvidenceID},
		{"drugs", rel.SourceID},
		{"diseases", rel.TargetID},
	} {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM "+check.table+" WHERE id = $1", check.id).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s %s", graph.ErrNotFound, check.table, check.id)
		}
		if err != nil {
			return fmt.Errorf("postgres: existence check: %w", err)
		}
	}

	rel.ID = "rel:" + uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO relationships (id, source_id, target_id, relationship_type, evidence_id, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rel.ID, rel.SourceID, rel.TargetID, string(rel.Type), rel.EvidenceID, rel.Confidence, rel.CreatedAt); err != nil {
		return fmt.Errorf("postgres: insert relationship: %w", err)
	}
	if err := s.logMutation(ctx, tx, graph.OpCreateRelationship, rel.ID, string(rel.Type)+":"+rel.EvidenceID); err != nil {
		return fmt.Errorf("postgres: log mutation: %w", err)
	}
	return tx.Commit()
}

// GetEvidence implements graph.Store.
func (s *Store) GetEvidence(ctx context.Context, id string) (*types.Evidence, error) {
	ev := &types.Evidence{}
	var agentID, sourceType, quality string
	var metadataJSON sql.NullString
	var validityEnd sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_name, agent_id, COALESCE(api_source,''), raw_reference,
		       extraction_timestamp, source_type, quality, confidence_score,
		       summary, COALESCE(full_text,''), metadata, validity_start, validity_end
		FROM evidence WHERE id = $1`, id).Scan(
		&ev.ID, &ev.AgentName, &agentID, &ev.APISource, &ev.RawReference,
		&ev.ExtractionTimestamp, &sourceType, &quality, &ev.ConfidenceScore,
		&ev.Summary, &ev.FullText, &metadataJSON, &ev.ValidityStart, &validityEnd)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: evidence %s", graph.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: query evidence: %w", err)
	}

	ev.AgentID = types.SourceType(agentID)
	ev.SourceType = types.SourceType(sourceType)
	ev.Quality = types.Quality(quality)
	if validityEnd.Valid {
		t := validityEnd.Time
		ev.ValidityEnd = &t
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal metadata: %w", err)
		}
	}
	return ev, nil
}

// DrugExists implements graph.Store.
func (s *Store) DrugExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, "drugs", id)
}

// DiseaseExists implements graph.Store.
func (s *Store) DiseaseExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, "diseases", id)
}

func (s *Store) exists(ctx context.Context, table, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = $1", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres: existence check: %w", err)
	}
	return true, nil
}

// Query implements graph.Store. Rows are ordered by the relationships ord
// sequence, i.e. creation order.
func (s *Store) Query(ctx context.Context, opts graph.QueryOptions) ([]graph.PairEvidence, error) {
	query := `
		SELECT r.id, r.source_id, r.target_id, r.relationship_type, r.evidence_id, r.confidence, r.created_at,
		       e.id, e.agent_name, e.agent_id, COALESCE(e.api_source,''), e.raw_reference,
		       e.extraction_timestamp, e.source_type, e.quality, e.confidence_score,
		       e.summary, COALESCE(e.full_text,''), e.metadata, e.validity_start, e.validity_end
		FROM relationships r
		JOIN evidence e ON e.id = r.evidence_id`
	var args []interface{}
	var where []string
	if opts.DrugID != "" {
		args = append(args, opts.DrugID)
		where = append(where, fmt.Sprintf("r.source_id = $%d", len(args)))
	}
	if opts.DiseaseID != "" {
		args = append(args, opts.DiseaseID)
		where = append(where, fmt.Sprintf("r.target_id = $%d", len(args)))
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY r.ord ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query graph: %w", err)
	}
	defer rows.Close()

	results := make([]graph.PairEvidence, 0)
	for rows.Next() {
		rel := &types.Relationship{}
		ev := &types.Evidence{}
		var relType, agentID, sourceType, quality string
		var metadataJSON sql.NullString
		var validityEnd sql.NullTime

		if err := rows.Scan(
			&rel.ID, &rel.SourceID, &rel.TargetID, &relType, &rel.EvidenceID, &rel.Confidence, &rel.CreatedAt,
			&ev.ID, &ev.AgentName, &agentID, &ev.APISource, &ev.RawReference,
			&ev.ExtractionTimestamp, &sourceType, &quality, &ev.ConfidenceScore,
			&ev.Summary, &ev.FullText, &metadataJSON, &ev.ValidityStart, &validityEnd); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}

		rel.Type = types.RelationshipType(relType)
		ev.AgentID = types.SourceType(agentID)
		ev.SourceType = types.SourceType(sourceType)
		ev.Quality = types.Quality(quality)
		if validityEnd.Valid {
			t := validityEnd.Time
			ev.ValidityEnd = &t
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal metadata: %w", err)
			}
		}

		results = append(results, graph.PairEvidence{Relationship: rel, Evidence: ev})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate rows: %w", err)
	}
	return results, nil
}

// MutationLog implements graph.Store.
func (s *Store) MutationLog(ctx context.Context) ([]graph.Mutation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, op, node_id, COALESCE(detail,''), timestamp FROM mutation_log ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query mutation log: %w", err)
	}
	defer rows.Close()

	var log []graph.Mutation
	for rows.Next() {
		var m graph.Mutation
		if err := rows.Scan(&m.Seq, &m.Op, &m.NodeID, &m.Detail, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan mutation: %w", err)
		}
		log = append(log, m)
	}
	return log, rows.Err()
}

// Close implements graph.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
