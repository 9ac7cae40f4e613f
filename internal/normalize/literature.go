package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pharmasignal/evigraph/pkg/types"
)

// LiteratureParser normalizes publication search output. A keyword scan over
// title+abstract infers the publication type, which drives quality and a
// fixed confidence table; negative-outcome language overrides polarity to
// CONTRADICTS regardless of type.
type LiteratureParser struct{}

// AgentID implements Parser.
func (p *LiteratureParser) AgentID() types.SourceType { return types.SourceLiterature }

// Publication types in inference priority order: the first matching keyword
// set wins, so a "systematic review and meta-analysis" classifies as
// meta-analysis.
const (
	pubMetaAnalysis     = "meta-analysis"
	pubSystematicReview = "systematic-review"
	pubRCT              = "rct"
	pubClinicalTrial    = "clinical-trial"
	pubCaseStudy        = "case-study"
	pubReview           = "review"
	pubOther            = "other"
)

var pubTypePatterns = []struct {
	pubType  string
	keywords []string
}{
	{pubMetaAnalysis, []string{"meta-analysis", "meta analysis", "pooled analysis"}},
	{pubSystematicReview, []string{"systematic review"}},
	{pubRCT, []string{"randomized controlled", "randomised controlled", "double-blind", "placebo-controlled"}},
	{pubClinicalTrial, []string{"clinical trial", "phase 1", "phase 2", "phase 3", "phase 4"}},
	{pubCaseStudy, []string{"case study", "case report", "case series"}},
	{pubReview, []string{"review"}},
}

// pubTypeConfidence is the fixed confidence table, ranging 0.9 down to 0.5.
var pubTypeConfidence = map[string]float64{
	pubMetaAnalysis:     0.9,
	pubSystematicReview: 0.85,
	pubRCT:              0.8,
	pubClinicalTrial:    0.7,
	pubCaseStudy:        0.6,
	pubReview:           0.55,
	pubOther:            0.5,
}

// negativeOutcomePhrases flip polarity to CONTRADICTS when present.
var negativeOutcomePhrases = []string{
	"failed",
	"failure",
	"ineffective",
	"no significant",
	"not significant",
	"did not improve",
	"did not reduce",
	"lack of efficacy",
	"no benefit",
	"worsened",
	"discontinued due to",
}

// Parse expects an envelope of shape {"articles": [...]} where each article
// carries pmid, title, abstract, authors, journal, and year.
func (p *LiteratureParser) Parse(raw map[string]interface{}) ([]NormalizedEvidence, error) {
	if err := requireKeys(p.AgentID(), raw, "articles"); err != nil {
		return nil, err
	}

	agentName := getString(raw, "agent_name")
	if agentName == "" {
		agentName = "literature-agent"
	}

	articles := getMapSlice(raw, "articles")
	results := make([]NormalizedEvidence, 0, len(articles))

	for _, article := range articles {
		pmid := getString(article, "pmid")
		if pmid == "" {
			skipRecord(p.AgentID(), "(no pmid)", "missing pmid")
			continue
		}

		title := getString(article, "title")
		abstract := getString(article, "abstract")
		text := strings.ToLower(title + " " + abstract)

		drugName, ok := ExtractDrug(text)
		if !ok {
			skipRecord(p.AgentID(), pmid, "no extractable drug in title/abstract")
			continue
		}
		diseaseName, ok := ExtractDisease(text)
		if !ok {
			skipRecord(p.AgentID(), pmid, "no extractable disease in title/abstract")
			continue
		}
		drugID, diseaseID, ok := resolvePair(drugName, diseaseName)
		if !ok {
			skipRecord(p.AgentID(), pmid, "canonical identity generation failed")
			continue
		}

		pubType := inferPublicationType(text)
		quality := literatureQuality(pubType)
		confidence := pubTypeConfidence[pubType]

		polarity := types.Polarity(types.RelSupports)
		if pubType == pubCaseStudy || pubType == pubReview || pubType == pubOther {
			polarity = types.RelSuggests
		}
		if hasNegativeOutcome(text) {
			polarity = types.RelContradicts
		}

		summary := title
		if summary == "" {
			summary = fmt.Sprintf("Publication %s on %s for %s", pmid, drugName, diseaseName)
		}

		ev, err := types.NewEvidence(agentName, types.SourceLiterature, pmid, summary, quality, confidence)
		if err != nil {
			skipRecord(p.AgentID(), pmid, err.Error())
			continue
		}
		ev.APISource = "pubmed"
		ev.FullText = abstract
		ev.Metadata = map[string]interface{}{
			"publication_type": pubType,
			"journal":          getString(article, "journal"),
			"year":             article["year"],
			"authors":          getStringSlice(article, "authors"),
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

// inferPublicationType scans title+abstract for type keywords in fixed
// priority order.
func inferPublicationType(text string) string {
	for _, pattern := range pubTypePatterns {
		for _, kw := range pattern.keywords {
			if strings.Contains(text, kw) {
				return pattern.pubType
			}
		}
	}
	return pubOther
}

// literatureQuality: meta-analysis/systematic-review → HIGH,
// RCT/clinical-trial → MEDIUM, everything else → LOW.
func literatureQuality(pubType string) types.Quality {
	switch pubType {
	case pubMetaAnalysis, pubSystematicReview:
		return types.QualityHigh
	case pubRCT, pubClinicalTrial:
		return types.QualityMedium
	default:
		return types.QualityLow
	}
}

// hasNegativeOutcome reports whether the text carries negative-outcome
// language.
func hasNegativeOutcome(text string) bool {
	for _, phrase := range negativeOutcomePhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// sortStrings sorts in place; small helper shared with the market parser.
func sortStrings(s []string) {
	sort.Strings(s)
}
