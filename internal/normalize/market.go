package normalize

import (
	"fmt"

	"github.com/pharmasignal/evigraph/pkg/identity"
	"github.com/pharmasignal/evigraph/pkg/types"
)

// MarketParser normalizes market research output. Forecasts are not clinical
// evidence: every query collapses to exactly one aggregate LOW-quality
// SUGGESTS record whose confidence is the agent's own self-reported score.
//
// When a query spans multiple drug–disease pairs, only the first extracted
// pair is retained. Multi-entity queries are knowingly under-represented.
type MarketParser struct{}

// AgentID implements Parser.
func (p *MarketParser) AgentID() types.SourceType { return types.SourceMarket }

// Parse expects an envelope of shape
// {"query": ..., "sections": {"summary": ...}, "confidence_score": ...}.
func (p *MarketParser) Parse(raw map[string]interface{}) ([]NormalizedEvidence, error) {
	if err := requireKeys(p.AgentID(), raw, "query", "sections", "confidence_score"); err != nil {
		return nil, err
	}

	agentName := getString(raw, "agent_name")
	if agentName == "" {
		agentName = "market-agent"
	}

	query := getString(raw, "query")
	sections := getMap(raw, "sections")
	sectionSummary := getString(sections, "summary")

	// Entities come from the query first, falling back to the summary text.
	drugName, ok := ExtractDrug(query)
	if !ok {
		drugName, ok = ExtractDrug(sectionSummary)
	}
	if !ok {
		skipRecord(p.AgentID(), query, "no extractable drug in query or summary")
		return []NormalizedEvidence{}, nil
	}
	diseaseName, ok := ExtractDisease(query)
	if !ok {
		diseaseName, ok = ExtractDisease(sectionSummary)
	}
	if !ok {
		skipRecord(p.AgentID(), query, "no extractable disease in query or summary")
		return []NormalizedEvidence{}, nil
	}
	drugID, diseaseID, ok := resolvePair(drugName, diseaseName)
	if !ok {
		skipRecord(p.AgentID(), query, "canonical identity generation failed")
		return []NormalizedEvidence{}, nil
	}

	confidence, _ := getFloat(raw, "confidence_score")

	summary := sectionSummary
	if summary == "" {
		summary = fmt.Sprintf("Market research on %s for %s (query: %s)", drugName, diseaseName, query)
	}

	// raw_reference must be unique per query within the agent; the normalized
	// query string is the stable key.
	rawRef := "market-query:" + identity.Normalize(query)

	ev, err := types.NewEvidence(agentName, types.SourceMarket, rawRef, summary, types.QualityLow, confidence)
	if err != nil {
		skipRecord(p.AgentID(), query, err.Error())
		return []NormalizedEvidence{}, nil
	}
	ev.APISource = "web-research"
	ev.Metadata = map[string]interface{}{
		"query":    query,
		"sections": sectionKeys(sections),
	}

	return []NormalizedEvidence{{
		Evidence:    ev,
		DrugID:      drugID,
		DrugName:    drugName,
		DiseaseID:   diseaseID,
		DiseaseName: diseaseName,
		Polarity:    types.RelSuggests,
	}}, nil
}

// sectionKeys returns the section names in sorted order so metadata is
// reproducible regardless of map iteration.
func sectionKeys(sections map[string]interface{}) []string {
	keys := make([]string, 0, len(sections))
	for k := range sections {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}
