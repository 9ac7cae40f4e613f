package normalize

import "testing"

func TestExtractDrug_CuratedList(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"GLP-1 receptor agonist study", "glp-1"},
		{"  Metformin 500mg  ", "metformin"},
		{"Insulin glargine arm", "insulin"},
	}
	for _, tc := range cases {
		got, ok := ExtractDrug(tc.in)
		if !ok || got != tc.want {
			t.Errorf("ExtractDrug(%q) = %q,%v; want %q", tc.in, got, ok, tc.want)
		}
	}
}

func TestExtractDrug_SuffixPatterns(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Pembrolizumab in melanoma", "pembrolizumab"},
		{"Semaglutide weekly dosing", "semaglutide"},
		{"Imatinib resistance", "imatinib"},
		{"Atorvastatin 40mg", "atorvastatin"},
	}
	for _, tc := range cases {
		got, ok := ExtractDrug(tc.in)
		if !ok || got != tc.want {
			t.Errorf("ExtractDrug(%q) = %q,%v; want %q", tc.in, got, ok, tc.want)
		}
	}
}

func TestExtractDrug_NoMatch(t *testing.T) {
	for _, in := range []string{"", "placebo", "standard of care", "dietary counseling"} {
		if got, ok := ExtractDrug(in); ok {
			t.Errorf("ExtractDrug(%q) unexpectedly matched %q", in, got)
		}
	}
}

func TestExtractDisease_SpecificBeatsGeneric(t *testing.T) {
	got, ok := ExtractDisease("Patients with Type 2 Diabetes")
	if !ok || got != "type 2 diabetes" {
		t.Fatalf("got %q,%v", got, ok)
	}
	// Generic fallback still matches.
	got, ok = ExtractDisease("advanced diabetes management")
	if !ok || got != "diabetes" {
		t.Fatalf("got %q,%v", got, ok)
	}
}

func TestExtractDisease_CanonicalSpelling(t *testing.T) {
	// "Alzheimer's" normalizes to the canonical mention.
	got, ok := ExtractDisease("early Alzheimer's disease")
	if !ok || got != "alzheimers disease" {
		t.Fatalf("got %q,%v", got, ok)
	}
}

func TestExtractDisease_NoMatch(t *testing.T) {
	if got, ok := ExtractDisease("healthy volunteers"); ok {
		t.Errorf("unexpectedly matched %q", got)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	text := "semaglutide and metformin in type 2 diabetes and obesity"
	first, _ := ExtractDrug(text)
	for i := 0; i < 50; i++ {
		got, _ := ExtractDrug(text)
		if got != first {
			t.Fatalf("extraction order not deterministic: %q vs %q", got, first)
		}
	}
}
