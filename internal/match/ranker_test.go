package match

import (
	"testing"

	"specforge/pkg/domain"
)

func entry(id, code, analysis, component string) domain.CatalogueEntry {
	e := domain.CatalogueEntry{
		TestCode:      code,
		AnalysisName:  analysis,
		ComponentName: component,
		ResultType:    domain.ResultNumeric,
	}
	e.ID = id
	return e
}

type mapOverrides map[string]string

func (m mapOverrides) FindManualOverride(name string) (domain.ManualOverride, bool) {
	id, ok := m[name]
	if !ok {
		return domain.ManualOverride{}, false
	}
	return domain.ManualOverride{ExtractedName: name, CatalogueID: id}, true
}

func testCatalogue() []domain.CatalogueEntry {
	return []domain.CatalogueEntry{
		entry("cat-1", "APP01", "Appearance", "Description"),
		entry("cat-2", "PH01", "pH", "Value"),
		entry("cat-3", "TAMC", "Total Aerobic Microbial Count", "Count"),
		entry("cat-4", "CALB", "C. albicans", "Count"),
	}
}

func TestRankExactMatch(t *testing.T) {
	r := NewRanker(DefaultConfig())
	got := r.Rank("Appearance Description", testCatalogue(), NoOverrides)
	if len(got) == 0 {
		t.Fatalf("expected candidates")
	}
	top := got[0]
	if top.Entry.ID != "cat-1" || top.Score != 1.0 || top.Reason.Kind != domain.ReasonExactMatch {
		t.Fatalf("unexpected top candidate %+v", top)
	}
}

func TestRankExactTestCode(t *testing.T) {
	r := NewRanker(DefaultConfig())
	got := r.Rank("TAMC", testCatalogue(), NoOverrides)
	if len(got) == 0 || got[0].Entry.ID != "cat-3" || got[0].Score != 1.0 {
		t.Fatalf("expected test-code exact match, got %+v", got)
	}
}

func TestRankFuzzyTypo(t *testing.T) {
	r := NewRanker(DefaultConfig())
	got := r.Rank("Apearance Descrption", testCatalogue(), NoOverrides)
	if len(got) == 0 {
		t.Fatalf("expected fuzzy candidates")
	}
	top := got[0]
	if top.Entry.ID != "cat-1" {
		t.Fatalf("expected cat-1 on top, got %+v", top)
	}
	if top.Reason.Kind != domain.ReasonFuzzy {
		t.Fatalf("expected fuzzy reason, got %+v", top.Reason)
	}
	if top.Score <= DefaultFuzzyFloor || top.Score >= 1.0 {
		t.Fatalf("fuzzy score out of band: %v", top.Score)
	}
	if top.Reason.Percent <= 40 || top.Reason.Percent >= 100 {
		t.Fatalf("fuzzy percent out of band: %d", top.Reason.Percent)
	}
}

func TestRankFuzzyCanClearAutoAcceptThreshold(t *testing.T) {
	r := NewRanker(DefaultConfig())
	got := r.Rank("Apearance Descrption", testCatalogue(), NoOverrides)
	if len(got) == 0 || got[0].Entry.ID != "cat-1" {
		t.Fatalf("expected cat-1 on top, got %+v", got)
	}
	// Two edits over 21 normalized characters: 19/21 is just above 0.9.
	if got[0].Score < DefaultAutoAcceptThreshold {
		t.Fatalf("expected score %v to clear %v", got[0].Score, DefaultAutoAcceptThreshold)
	}
	if !r.Confident(got) {
		t.Fatalf("expected fuzzy candidate to resolve without review: %+v", got[0])
	}
}

func TestRankSubstring(t *testing.T) {
	r := NewRanker(DefaultConfig())
	got := r.Rank("Appearance", testCatalogue(), NoOverrides)
	if len(got) == 0 {
		t.Fatalf("expected candidates")
	}
	if got[0].Entry.ID != "cat-1" || got[0].Score != 0.8 || got[0].Reason.Kind != domain.ReasonSubstringMatch {
		t.Fatalf("expected substring match for cat-1, got %+v", got[0])
	}
}

func TestRankOverrideShortCircuits(t *testing.T) {
	r := NewRanker(DefaultConfig())
	overrides := mapOverrides{"Total Plate Count": "cat-3"}
	got := r.Rank("Total Plate Count", testCatalogue(), overrides)
	if len(got) != 1 {
		t.Fatalf("override must yield exactly one candidate, got %d", len(got))
	}
	if got[0].Entry.ID != "cat-3" || got[0].Score != 1.0 || got[0].Reason.Kind != domain.ReasonManualOverride {
		t.Fatalf("unexpected override candidate %+v", got[0])
	}
}

func TestRankOverrideIsCaseSensitive(t *testing.T) {
	r := NewRanker(DefaultConfig())
	overrides := mapOverrides{"ph": "cat-3"}
	got := r.Rank("pH", testCatalogue(), overrides)
	if len(got) == 0 {
		t.Fatalf("expected scored candidates")
	}
	// "pH" does not hit the "ph" override key; normal scoring finds cat-2.
	if got[0].Reason.Kind == domain.ReasonManualOverride {
		t.Fatalf("override applied across case variants: %+v", got[0])
	}
	if got[0].Entry.ID != "cat-2" {
		t.Fatalf("expected cat-2 on top, got %+v", got[0])
	}
}

func TestRankDanglingOverrideIgnored(t *testing.T) {
	r := NewRanker(DefaultConfig())
	overrides := mapOverrides{"Appearance Description": "gone"}
	got := r.Rank("Appearance Description", testCatalogue(), overrides)
	if len(got) == 0 {
		t.Fatalf("expected fallback scoring")
	}
	if got[0].Reason.Kind != domain.ReasonExactMatch || got[0].Entry.ID != "cat-1" {
		t.Fatalf("expected exact fallback, got %+v", got[0])
	}
}

func TestRankCapsAndSorts(t *testing.T) {
	catalogue := []domain.CatalogueEntry{
		entry("a", "", "Assay", "Result"),
		entry("b", "", "Assay", "Residue"),
		entry("c", "", "Assay", "Recovery"),
		entry("d", "", "Assay", "Reserve"),
		entry("e", "", "Assay", "Result"),
	}
	r := NewRanker(DefaultConfig())
	got := r.Rank("Assay Result", catalogue, NoOverrides)
	if len(got) != DefaultMaxCandidates {
		t.Fatalf("expected %d candidates, got %d", DefaultMaxCandidates, len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("candidates not sorted descending: %+v", got)
		}
	}
	// Two exact matches tie at 1.0; catalogue order decides.
	if got[0].Entry.ID != "a" || got[1].Entry.ID != "e" {
		t.Fatalf("tie order not stable: %s, %s", got[0].Entry.ID, got[1].Entry.ID)
	}
}

func TestRankEmptyInputs(t *testing.T) {
	r := NewRanker(DefaultConfig())
	if got := r.Rank("pH", nil, NoOverrides); len(got) != 0 {
		t.Fatalf("empty catalogue must yield no candidates, got %+v", got)
	}
	if got := r.Rank("   ", testCatalogue(), NoOverrides); len(got) != 0 {
		t.Fatalf("blank query must yield no candidates, got %+v", got)
	}
	if got := r.Rank("", testCatalogue(), NoOverrides); len(got) != 0 {
		t.Fatalf("empty query must yield no candidates, got %+v", got)
	}
}

func TestRankScoresAboveFloor(t *testing.T) {
	r := NewRanker(DefaultConfig())
	got := r.Rank("Apearance Descrption", testCatalogue(), NoOverrides)
	for _, c := range got {
		if c.Score <= DefaultFuzzyFloor && c.Reason.Kind == domain.ReasonFuzzy {
			t.Fatalf("fuzzy candidate at or below floor: %+v", c)
		}
		if c.Score < 0 || c.Score > 1 {
			t.Fatalf("score outside [0,1]: %+v", c)
		}
	}
}

func TestConfident(t *testing.T) {
	r := NewRanker(DefaultConfig())
	if r.Confident(nil) {
		t.Fatalf("no candidates must not be confident")
	}
	low := []domain.MatchCandidate{{Score: 0.8, Reason: domain.MatchReason{Kind: domain.ReasonSubstringMatch}}}
	if r.Confident(low) {
		t.Fatalf("0.8 substring must not be confident at default threshold")
	}
	high := []domain.MatchCandidate{{Score: 0.95, Reason: domain.MatchReason{Kind: domain.ReasonFuzzy, Percent: 95}}}
	if !r.Confident(high) {
		t.Fatalf("0.95 must be confident")
	}
	manual := []domain.MatchCandidate{{Score: 1.0, Reason: domain.MatchReason{Kind: domain.ReasonManualOverride}}}
	if !r.Confident(manual) {
		t.Fatalf("manual override must be confident")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SPECFORGE_MATCH_AUTO_ACCEPT", "0.85")
	t.Setenv("SPECFORGE_MATCH_FUZZY_FLOOR", "0.5")
	t.Setenv("SPECFORGE_MATCH_MAX_CANDIDATES", "5")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.AutoAcceptThreshold != 0.85 || cfg.FuzzyFloor != 0.5 || cfg.MaxCandidates != 5 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("SPECFORGE_MATCH_AUTO_ACCEPT", "not-a-number")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected parse error")
	}
}
