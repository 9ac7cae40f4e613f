package normalize

import (
	"strings"

	"github.com/pharmasignal/evigraph/pkg/identity"
)

// Entity extraction is intentionally simple pattern matching over fixed
// tables, not NLP, so that identical inputs always extract identically.
// Tables are slices, not maps, to keep scan order fixed.

// drugSuffixes are INN-style stem patterns that mark a token as a drug name.
var drugSuffixes = []string{
	"-mab",      // monoclonal antibodies
	"-tide",     // peptides (semaglutide, liraglutide)
	"-nib",      // kinase inhibitors
	"-ciclib",   // CDK inhibitors
	"-gliptin",  // DPP-4 inhibitors
	"-gliflozin", // SGLT2 inhibitors
	"-sartan",   // angiotensin receptor blockers
	"-pril",     // ACE inhibitors
	"-statin",   // HMG-CoA reductase inhibitors
	"-prazole",  // proton pump inhibitors
	"-oxetine",  // SSRIs/SNRIs
	"-cillin",   // penicillins
	"-mycin",    // macrolides/aminoglycosides
	"-vir",      // antivirals
	"-parib",    // PARP inhibitors
	"-lisib",    // PI3K inhibitors
}

// knownDrugs is a curated list of names without a recognizable suffix.
var knownDrugs = []string{
	"glp-1",
	"metformin",
	"insulin",
	"aspirin",
	"ibuprofen",
	"acetaminophen",
	"paracetamol",
	"warfarin",
	"heparin",
	"prednisone",
	"dexamethasone",
	"methotrexate",
	"hydroxychloroquine",
	"levodopa",
	"donepezil",
	"memantine",
	"naloxone",
	"ketamine",
	"lithium",
	"tirzepatide",
	"orlistat",
}

// diseaseKeywords map normalized text fragments to the canonical disease
// mention returned by ExtractDisease. Longer, more specific fragments come
// first so "type 2 diabetes" wins over "diabetes".
var diseaseKeywords = []struct {
	fragment string
	name     string
}{
	{"type 2 diabetes", "type 2 diabetes"},
	{"type 1 diabetes", "type 1 diabetes"},
	{"diabetes mellitus", "diabetes mellitus"},
	{"diabetic nephropathy", "diabetic nephropathy"},
	{"non-small cell lung cancer", "non-small cell lung cancer"},
	{"breast cancer", "breast cancer"},
	{"pancreatic cancer", "pancreatic cancer"},
	{"colorectal cancer", "colorectal cancer"},
	{"prostate cancer", "prostate cancer"},
	{"alzheimers disease", "alzheimers disease"},
	{"alzheimer", "alzheimers disease"},
	{"parkinsons disease", "parkinsons disease"},
	{"parkinson", "parkinsons disease"},
	{"multiple sclerosis", "multiple sclerosis"},
	{"rheumatoid arthritis", "rheumatoid arthritis"},
	{"heart failure", "heart failure"},
	{"atrial fibrillation", "atrial fibrillation"},
	{"hypertension", "hypertension"},
	{"obesity", "obesity"},
	{"asthma", "asthma"},
	{"copd", "copd"},
	{"depression", "depression"},
	{"schizophrenia", "schizophrenia"},
	{"epilepsy", "epilepsy"},
	{"osteoporosis", "osteoporosis"},
	{"psoriasis", "psoriasis"},
	{"melanoma", "melanoma"},
	{"leukemia", "leukemia"},
	{"lymphoma", "lymphoma"},
	{"diabetes", "diabetes"},
	{"cancer", "cancer"},
}

// ExtractDrug finds the first drug mention in free text, scanning the curated
// list first and then suffix patterns, both in fixed order. Returns the
// normalized mention.
func ExtractDrug(text string) (string, bool) {
	normalized := identity.Normalize(text)
	if normalized == "" {
		return "", false
	}

	for _, name := range knownDrugs {
		if containsWord(normalized, name) {
			return name, true
		}
	}

	for _, token := range strings.Fields(normalized) {
		for _, suffix := range drugSuffixes {
			stem := strings.TrimPrefix(suffix, "-")
			if len(token) > len(stem) && strings.HasSuffix(token, stem) {
				return token, true
			}
		}
	}

	return "", false
}

// ExtractDisease finds the first disease mention in free text by fixed-order
// keyword scan. Returns the canonical mention for the matched keyword.
func ExtractDisease(text string) (string, bool) {
	normalized := identity.Normalize(text)
	if normalized == "" {
		return "", false
	}

	for _, kw := range diseaseKeywords {
		if strings.Contains(normalized, kw.fragment) {
			return kw.name, true
		}
	}

	return "", false
}

// extractDrugFromList returns the first list entry containing an extractable
// drug mention.
func extractDrugFromList(entries []string) (string, bool) {
	for _, entry := range entries {
		if drug, ok := ExtractDrug(entry); ok {
			return drug, true
		}
	}
	return "", false
}

// extractDiseaseFromList returns the first list entry containing an
// extractable disease mention.
func extractDiseaseFromList(entries []string) (string, bool) {
	for _, entry := range entries {
		if disease, ok := ExtractDisease(entry); ok {
			return disease, true
		}
	}
	return "", false
}

// containsWord reports whether normalized text contains name as a whole
// word-bounded substring.
func containsWord(text, name string) bool {
	idx := strings.Index(text, name)
	for idx >= 0 {
		beforeOK := idx == 0 || text[idx-1] == ' '
		end := idx + len(name)
		afterOK := end == len(text) || text[end] == ' '
		if beforeOK && afterOK {
			return true
		}
		next := strings.Index(text[idx+1:], name)
		if next < 0 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}
