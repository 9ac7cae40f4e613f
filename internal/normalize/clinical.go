package normalize

import (
	"fmt"
	"strings"

	"github.com/pharmasignal/evigraph/pkg/types"
)

// ClinicalParser normalizes clinical trial registry output. Phase and status
// drive polarity, quality, and confidence through fixed tables so identical
// registry snapshots always normalize identically.
type ClinicalParser struct{}

// AgentID implements Parser.
func (p *ClinicalParser) AgentID() types.SourceType { return types.SourceClinical }

// negativeStatuses are trial statuses treated as contradicting evidence.
var negativeStatuses = map[string]bool{
	"TERMINATED": true,
	"WITHDRAWN":  true,
	"SUSPENDED":  true,
}

// Parse expects an envelope of shape {"trials": [...]} where each trial
// carries nct_id, interventions, conditions, phase, status, and summary.
func (p *ClinicalParser) Parse(raw map[string]interface{}) ([]NormalizedEvidence, error) {
	if err := requireKeys(p.AgentID(), raw, "trials"); err != nil {
		return nil, err
	}

	agentName := getString(raw, "agent_name")
	if agentName == "" {
		agentName = "clinical-agent"
	}

	trials := getMapSlice(raw, "trials")
	results := make([]NormalizedEvidence, 0, len(trials))

	for _, trial := range trials {
		nctID := getString(trial, "nct_id")
		if nctID == "" {
			skipRecord(p.AgentID(), "(no nct_id)", "missing nct_id")
			continue
		}

		drugName, ok := extractDrugFromList(getStringSlice(trial, "interventions"))
		if !ok {
			skipRecord(p.AgentID(), nctID, "no extractable drug in interventions")
			continue
		}
		diseaseName, ok := extractDiseaseFromList(getStringSlice(trial, "conditions"))
		if !ok {
			skipRecord(p.AgentID(), nctID, "no extractable disease in conditions")
			continue
		}
		drugID, diseaseID, ok := resolvePair(drugName, diseaseName)
		if !ok {
			skipRecord(p.AgentID(), nctID, "canonical identity generation failed")
			continue
		}

		phase := normalizePhase(getString(trial, "phase"))
		status := strings.ToUpper(strings.TrimSpace(getString(trial, "status")))

		polarity := clinicalPolarity(phase, status)
		quality := clinicalQuality(phase)
		confidence := clinicalConfidence(phase, status)

		summary := getString(trial, "summary")
		if summary == "" {
			summary = fmt.Sprintf("Clinical trial %s (phase %s, %s) studying %s for %s",
				nctID, phaseLabel(phase), statusLabel(status), drugName, diseaseName)
		}

		ev, err := types.NewEvidence(agentName, types.SourceClinical, nctID, summary, quality, confidence)
		if err != nil {
			skipRecord(p.AgentID(), nctID, err.Error())
			continue
		}
		ev.APISource = "clinicaltrials.gov"
		ev.Metadata = map[string]interface{}{
			"phase":  getString(trial, "phase"),
			"status": getString(trial, "status"),
		}

		results = append(results, NormalizedEvidence{
			Evidence:    ev,
			DrugID:      drugID,
			DrugName:    drugName,
			DiseaseID:   diseaseID,
			DiseaseName: diseaseName,
			Polarity:    polarity,
		})
	}

	return results, nil
}

// normalizePhase collapses the registry's phase spellings ("PHASE3",
// "Phase 3", "PHASE_3", "3") to a numeric phase. Unknown spellings map to 0.
func normalizePhase(phase string) int {
	cleaned := strings.ToUpper(strings.TrimSpace(phase))
	cleaned = strings.NewReplacer("PHASE", "", "_", "", " ", "").Replace(cleaned)
	switch cleaned {
	case "1", "I":
		return 1
	case "2", "II":
		return 2
	case "3", "III":
		return 3
	case "4", "IV":
		return 4
	default:
		return 0
	}
}

func phaseLabel(phase int) string {
	if phase == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d", phase)
}

func statusLabel(status string) string {
	if status == "" {
		return "unknown status"
	}
	return strings.ToLower(status)
}

// clinicalPolarity: terminated/withdrawn/suspended trials contradict; a
// completed late-phase trial supports; everything else merely suggests.
func clinicalPolarity(phase int, status string) types.Polarity {
	if negativeStatuses[status] {
		return types.RelContradicts
	}
	if status == "COMPLETED" && phase >= 3 {
		return types.RelSupports
	}
	return types.RelSuggests
}

// clinicalQuality: phase 3/4 → HIGH, phase 2 → MEDIUM, phase 1 or unknown → LOW.
func clinicalQuality(phase int) types.Quality {
	switch {
	case phase >= 3:
		return types.QualityHigh
	case phase == 2:
		return types.QualityMedium
	default:
		return types.QualityLow
	}
}

// clinicalConfidence is a fixed lookup keyed by (phase, status), ranging from
// 0.3 for terminated trials to 0.9 for completed phase 3/4 trials.
func clinicalConfidence(phase int, status string) float64 {
	if negativeStatuses[status] {
		return 0.3
	}
	if status == "COMPLETED" {
		switch {
		case phase >= 3:
			return 0.9
		case phase == 2:
			return 0.7
		default:
			return 0.5
		}
	}
	switch {
	case phase >= 3:
		return 0.6
	case phase == 2:
		return 0.5
	default:
		return 0.4
	}
}
