// Package normalize turns raw, agent-produced research findings into
// NormalizedEvidence records with canonical drug/disease identities, a
// polarity verdict, and full provenance.
//
// One parser exists per agent class (clinical, patent, market, literature).
// Parsers validate the agent output envelope hard (ParsingRejection) but are
// tolerant per record: a record whose drug or disease cannot be extracted is
// skipped, not fatal, so a batch of 100 trials with 3 unparsable ones yields
// 97 evidence records.
package normalize

import (
	"errors"
	"fmt"
	"log"

	"github.com/pharmasignal/evigraph/pkg/identity"
	"github.com/pharmasignal/evigraph/pkg/types"
)

// ParsingRejection reports that an agent's output cannot be used at all this
// round: a required top-level field is missing, nil, or empty. It signals
// malformed input, not transient failure, and is not retryable.
type ParsingRejection struct {
	AgentID types.SourceType
	Field   string
	Reason  string
}

func (e *ParsingRejection) Error() string {
	return fmt.Sprintf("parsing rejected for agent %q: field %q %s", e.AgentID, e.Field, e.Reason)
}

// ErrUnknownAgent indicates an agent_id with no registered parser.
var ErrUnknownAgent = errors.New("unknown agent id")

// NormalizedEvidence is the unit handed to graph ingestion: one evidence
// record plus the canonical identities and polarity it asserts.
type NormalizedEvidence struct {
	Evidence *types.Evidence

	DrugID      string
	DrugName    string
	DiseaseID   string
	DiseaseName string

	Polarity types.Polarity
}

// Parser converts one agent's raw output object into normalized evidence.
type Parser interface {
	// AgentID reports which agent class this parser accepts.
	AgentID() types.SourceType

	// Parse validates the envelope and extracts evidence records.
	// Returns *ParsingRejection when the envelope itself is unusable.
	Parse(raw map[string]interface{}) ([]NormalizedEvidence, error)
}

// ForAgent returns the parser for the given agent class.
func ForAgent(agentID types.SourceType) (Parser, error) {
	switch agentID {
	case types.SourceClinical:
		return &ClinicalParser{}, nil
	case types.SourcePatent:
		return &PatentParser{}, nil
	case types.SourceMarket:
		return &MarketParser{}, nil
	case types.SourceLiterature:
		return &LiteratureParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, agentID)
	}
}

// Normalize dispatches raw agent output to the matching parser.
func Normalize(agentID types.SourceType, raw map[string]interface{}) ([]NormalizedEvidence, error) {
	parser, err := ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	return parser.Parse(raw)
}

// requireKeys enforces the envelope contract: every listed key must be
// present, non-nil, and (for strings) non-empty.
func requireKeys(agentID types.SourceType, raw map[string]interface{}, keys ...string) error {
	if raw == nil {
		return &ParsingRejection{AgentID: agentID, Field: "(root)", Reason: "is nil"}
	}
	for _, key := range keys {
		val, ok := raw[key]
		if !ok {
			return &ParsingRejection{AgentID: agentID, Field: key, Reason: "is missing"}
		}
		if val == nil {
			return &ParsingRejection{AgentID: agentID, Field: key, Reason: "is null"}
		}
		if s, isStr := val.(string); isStr && s == "" {
			return &ParsingRejection{AgentID: agentID, Field: key, Reason: "is empty"}
		}
	}
	return nil
}

// resolvePair derives canonical IDs for an extracted drug/disease mention.
// Returns false when either identity cannot be generated; the caller skips
// the record.
func resolvePair(drugName, diseaseName string) (drugID, diseaseID string, ok bool) {
	drugID, err := identity.GenerateID(drugName, identity.EntityDrug)
	if err != nil {
		return "", "", false
	}
	diseaseID, err = identity.GenerateID(diseaseName, identity.EntityDisease)
	if err != nil {
		return "", "", false
	}
	return drugID, diseaseID, true
}

// skipRecord logs a per-record skip at debug detail. Skips are expected and
// frequent, not errors.
func skipRecord(agentID types.SourceType, ref, reason string) {
	log.Printf("normalize: skipping %s record %q: %s", agentID, ref, reason)
}

// Duck-typed accessors for the untyped agent output maps.

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getFloat(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func getStringSlice(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		if typed, ok := m[key].([]string); ok {
			return typed
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func getMapSlice(m map[string]interface{}, key string) []map[string]interface{} {
	raw, ok := m[key].([]interface{})
	if !ok {
		if typed, ok := m[key].([]map[string]interface{}); ok {
			return typed
		}
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if mm, ok := item.(map[string]interface{}); ok {
			out = append(out, mm)
		}
	}
	return out
}

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}
