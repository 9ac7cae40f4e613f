package normalize

import (
	"fmt"

	"github.com/pharmasignal/evigraph/pkg/types"
)

// PatentParser normalizes patent search output. Patents are never treated as
// proof of efficacy: polarity is always SUGGESTS.
//
// Quality uses the presence of a grant/patent date as a proxy for granted vs
// pending status. This is a known approximation (a filing date also
// satisfies it), preserved deliberately rather than attempting to infer real
// legal status.
type PatentParser struct{}

// AgentID implements Parser.
func (p *PatentParser) AgentID() types.SourceType { return types.SourcePatent }

// Parse expects an envelope of shape {"patents": [...]} where each patent
// carries patent_number, patent_title, patent_abstract, optional patent_date,
// and assignees.
func (p *PatentParser) Parse(raw map[string]interface{}) ([]NormalizedEvidence, error) {
	if err := requireKeys(p.AgentID(), raw, "patents"); err != nil {
		return nil, err
	}

	agentName := getString(raw, "agent_name")
	if agentName == "" {
		agentName = "patent-agent"
	}

	patents := getMapSlice(raw, "patents")
	results := make([]NormalizedEvidence, 0, len(patents))

	for _, patent := range patents {
		number := getString(patent, "patent_number")
		if number == "" {
			skipRecord(p.AgentID(), "(no patent_number)", "missing patent_number")
			continue
		}

		title := getString(patent, "patent_title")
		abstract := getString(patent, "patent_abstract")
		text := title + " " + abstract

		drugName, ok := ExtractDrug(text)
		if !ok {
			skipRecord(p.AgentID(), number, "no extractable drug in title/abstract")
			continue
		}
		diseaseName, ok := ExtractDisease(text)
		if !ok {
			skipRecord(p.AgentID(), number, "no extractable disease in title/abstract")
			continue
		}
		drugID, diseaseID, ok := resolvePair(drugName, diseaseName)
		if !ok {
			skipRecord(p.AgentID(), number, "canonical identity generation failed")
			continue
		}

		patentDate := getString(patent, "patent_date")
		quality := types.QualityLow
		confidence := 0.3
		if patentDate != "" {
			quality = types.QualityMedium
			confidence = 0.5
		}

		summary := title
		if summary == "" {
			summary = fmt.Sprintf("Patent %s covering %s for %s", number, drugName, diseaseName)
		}

		ev, err := types.NewEvidence(agentName, types.SourcePatent, number, summary, quality, confidence)
		if err != nil {
			skipRecord(p.AgentID(), number, err.Error())
			continue
		}
		ev.APISource = "patentsview.org"
		ev.FullText = abstract
		ev.Metadata = map[string]interface{}{
			"patent_date": patentDate,
			"assignees":   getStringSlice(patent, "assignees"),
		}

		results = append(results, NormalizedEvidence{
			Evidence:    ev,
			DrugID:      drugID,
			DrugName:    drugName,
			DiseaseID:   diseaseID,
			DiseaseName: diseaseName,
			Polarity:    types.RelSuggests,
		})
	}

	return results, nil
}
