// Package sqlite provides an embedded durable backend for the evidence graph
// using modernc.org/sqlite. It is an optional deployment choice; the
// in-memory store satisfies every correctness invariant on its own.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/pharmasignal/evigraph/internal/graph"
	"github.com/pharmasignal/evigraph/pkg/types"
)

// Store implements graph.Store backed by an embedded SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dsn, enables WAL mode, and
// creates the schema. SQLite supports a single concurrent writer, so writes
// are serialized through one open connection; WAL lets readers proceed
// without blocking the writer.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Schema creates the append-only graph tables. There are deliberately no
// UPDATE or DELETE statements anywhere in this package; the relationships
// table relies on SQLite's implicit rowid for creation order.
const Schema = `
CREATE TABLE IF NOT EXISTS drugs (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	drug_class TEXT,
	source     TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS diseases (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	disease_category TEXT,
	source           TEXT,
	created_at       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS evidence (
	id                   TEXT PRIMARY KEY,
	agent_name           TEXT NOT NULL,
	agent_id             TEXT NOT NULL,
	api_source           TEXT,
	raw_reference        TEXT NOT NULL,
	extraction_timestamp TIMESTAMP NOT NULL,
	source_type          TEXT NOT NULL,
	quality              TEXT NOT NULL,
	confidence_score     REAL NOT NULL,
	summary              TEXT NOT NULL,
	full_text            TEXT,
	metadata             TEXT,
	validity_start       TIMESTAMP NOT NULL,
	validity_end         TIMESTAMP
);

CREATE TABLE IF NOT EXISTS relationships (
	id                TEXT PRIMARY KEY,
	source_id         TEXT NOT NULL REFERENCES drugs(id),
	target_id         TEXT NOT NULL REFERENCES diseases(id),
	relationship_type TEXT NOT NULL,
	evidence_id       TEXT NOT NULL REFERENCES evidence(id),
	confidence        REAL NOT NULL,
	created_at        TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relationships_pair ON relationships(source_id, target_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);

CREATE TABLE IF NOT EXISTS mutation_log (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	op        TEXT NOT NULL,
	node_id   TEXT NOT NULL,
	detail    TEXT,
	timestamp TIMESTAMP NOT NULL
);
`

func (s *Store) logMutation(ctx context.Context, tx *sql.Tx, op, nodeID, detail string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO mutation_log (op, node_id, detail, timestamp) VALUES (?, ?, ?, ?)`,
		op, nodeID, detail, time.Now().UTC())
	return err
}

// GetOrCreateDrug implements graph.Store.
func (s *Store) GetOrCreateDrug(ctx context.Context, id, name, source string) (*types.DrugNode, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: drug ID is required", graph.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	node := &types.DrugNode{ID: id}
	err = tx.QueryRowContext(ctx,
		`SELECT name, COALESCE(drug_class,''), COALESCE(source,''), created_at FROM drugs WHERE id = ?`, id).
		Scan(&node.Name, &node.DrugClass, &node.Source, &node.CreatedAt)
	if err == nil {
		return node, tx.Commit()
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: query drug: %w", err)
	}

	node.Name = name
	node.Source = source
	node.CreatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO drugs (id, name, source, created_at) VALUES (?, ?, ?, ?)`,
		node.ID, node.Name, node.Source, node.CreatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: insert drug: %w", err)
	}
	if err := s.logMutation(ctx, tx, graph.OpCreateDrug, id, name); err != nil {
		return nil, fmt.Errorf("sqlite: log mutation: %w", err)
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
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	node := &types.DiseaseNode{ID: id}
	err = tx.QueryRowContext(ctx,
		`SELECT name, COALESCE(disease_category,''), COALESCE(source,''), created_at FROM diseases WHERE id = ?`, id).
		Scan(&node.Name, &node.DiseaseCategory, &node.Source, &node.CreatedAt)
	if err == nil {
		return node, tx.Commit()
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: query disease: %w", err)
	}

	node.Name = name
	node.Source = source
	node.CreatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO diseases (id, name, source, created_at) VALUES (?, ?, ?, ?)`,
		node.ID, node.Name, node.Source, node.CreatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: insert disease: %w", err)
	}
	if err := s.logMutation(ctx, tx, graph.OpCreateDisease, id, name); err != nil {
		return nil, fmt.Errorf("sqlite: log mutation: %w", err)
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
			return fmt.Errorf("sqlite: marshal metadata: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AgentName, string(ev.AgentID), ev.APISource, ev.RawReference,
		ev.ExtractionTimestamp, string(ev.SourceType), string(ev.Quality), ev.ConfidenceScore,
		ev.Summary, ev.FullText, string(metadataJSON), ev.ValidityStart, validityEnd); err != nil {
		return fmt.Errorf("sqlite: insert evidence: %w", err)
	}
	if err := s.logMutation(ctx, tx, graph.OpCreateEvidence, ev.ID, string(ev.SourceType)+":"+ev.RawReference); err != nil {
		return fmt.Errorf("sqlite: log mutation: %w", err)
	}
	return tx.Commit()
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
		return fmt.Errorf("sqlite: begin: %w", err)
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
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM "+check.table+" WHERE id = ?", check.id).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s %s", graph.ErrNotFound, check.table, check.id)
		}
		if err != nil {
			return fmt.Errorf("sqlite: existence check: %w", err)
		}
	}

	rel.ID = "rel:" + uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO relationships (id, source_id, target_id, relationship_type, evidence_id, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rel.ID, rel.SourceID, rel.TargetID, string(rel.Type), rel.EvidenceID, rel.Confidence, rel.CreatedAt); err != nil {
		return fmt.Errorf("sqlite: insert relationship: %w", err)
	}
	if err := s.logMutation(ctx, tx, graph.OpCreateRelationship, rel.ID, string(rel.Type)+":"+rel.EvidenceID); err != nil {
		return fmt.Errorf("sqlite: log mutation: %w", err)
	}
	return tx.Commit()
}

// GetEvidence implements graph.Store.
func (s *Store) GetEvidence(ctx context.Context, id string) (*types.Evidence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_name, agent_id, COALESCE(api_source,''), raw_reference,
		       extraction_timestamp, source_type, quality, confidence_score,
		       summary, COALESCE(full_text,''), COALESCE(metadata,''), validity_start, validity_end
		FROM evidence WHERE id = ?`, id)

	ev, err := scanEvidence(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: evidence %s", graph.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: query evidence: %w", err)
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
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: existence check: %w", err)
	}
	return true, nil
}

// Query implements graph.Store. Rows come back ordered by rowid, i.e.
// relationship creation order.
func (s *Store) Query(ctx context.Context, opts graph.QueryOptions) ([]graph.PairEvidence, error) {
	query := `
		SELECT r.id, r.source_id, r.target_id, r.relationship_type, r.evidence_id, r.confidence, r.created_at,
		       e.id, e.agent_name, e.agent_id, COALESCE(e.api_source,''), e.raw_reference,
		       e.extraction_timestamp, e.source_type, e.quality, e.confidence_score,
		       e.summary, COALESCE(e.full_text,''), COALESCE(e.metadata,''), e.validity_start, e.validity_end
		FROM relationships r
		JOIN evidence e ON e.id = r.evidence_id
		WHERE 1=1`
	args := []interface{}{}
	if opts.DrugID != "" {
		query += " AND r.source_id = ?"
		args = append(args, opts.DrugID)
	}
	if opts.DiseaseID != "" {
		query += " AND r.target_id = ?"
		args = append(args, opts.DiseaseID)
	}
	query += " ORDER BY r.rowid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query graph: %w", err)
	}
	defer rows.Close()

	results := make([]graph.PairEvidence, 0)
	for rows.Next() {
		rel := &types.Relationship{}
		ev := &types.Evidence{}
		var relType, agentID, sourceType, quality, metadataJSON string
		var validityEnd sql.NullTime

		if err := rows.Scan(
			&rel.ID, &rel.SourceID, &rel.TargetID, &relType, &rel.EvidenceID, &rel.Confidence, &rel.CreatedAt,
			&ev.ID, &ev.AgentName, &agentID, &ev.APISource, &ev.RawReference,
			&ev.ExtractionTimestamp, &sourceType, &quality, &ev.ConfidenceScore,
			&ev.Summary, &ev.FullText, &metadataJSON, &ev.ValidityStart, &validityEnd); err != nil {
			return nil, fmt.Errorf("sqlite: scan row: %w", err)
		}

		rel.Type = types.RelationshipType(relType)
		ev.AgentID = types.SourceType(agentID)
		ev.SourceType = types.SourceType(sourceType)
		ev.Quality = types.Quality(quality)
		if validityEnd.Valid {
			t := validityEnd.Time
			ev.ValidityEnd = &t
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal metadata: %w", err)
			}
		}

		results = append(results, graph.PairEvidence{Relationship: rel, Evidence: ev})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate rows: %w", err)
	}
	return results, nil
}

// MutationLog implements graph.Store.
func (s *Store) MutationLog(ctx context.Context) ([]graph.Mutation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, op, node_id, COALESCE(detail,''), timestamp FROM mutation_log ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query mutation log: %w", err)
	}
	defer rows.Close()

	var log []graph.Mutation
	for rows.Next() {
		var m graph.Mutation
		if err := rows.Scan(&m.Seq, &m.Op, &m.NodeID, &m.Detail, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scan mutation: %w", err)
		}
		log = append(log, m)
	}
	return log, rows.Err()
}

// Close implements graph.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanEvidence reads a single evidence row from a QueryRow result.
func scanEvidence(row *sql.Row) (*types.Evidence, error) {
	ev := &types.Evidence{}
	var agentID, sourceType, quality, metadataJSON string
	var validityEnd sql.NullTime

	err := row.Scan(
		&ev.ID, &ev.AgentName, &agentID, &ev.APISource, &ev.RawReference,
		&ev.ExtractionTimestamp, &sourceType, &quality, &ev.ConfidenceScore,
		&ev.Summary, &ev.FullText, &metadataJSON, &ev.ValidityStart, &validityEnd)
	if err != nil {
		return nil, err
	}

	ev.AgentID = types.SourceType(agentID)
	ev.SourceType = types.SourceType(sourceType)
	ev.Quality = types.Quality(quality)
	if validityEnd.Valid {
		t := validityEnd.Time
		ev.ValidityEnd = &t
	}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &ev.Metadata); err != nil {
			return nil, err
		}
	}
	return ev, nil
}
