package resolve

import (
	"testing"

	"specforge/pkg/domain"
)

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

func sampleEntry() domain.CatalogueEntry {
	e := domain.CatalogueEntry{
		TestCode:      "PH01",
		AnalysisName:  "pH",
		ComponentName: "Value",
		Units:         "pH units",
		Category:      "Chemical",
		ResultType:    domain.ResultNumeric,
		DefaultGrade:  "USP",
		SpecRule:      "",
	}
	e.ID = "cat-ph"
	return e
}

func TestBuildResolved(t *testing.T) {
	extracted := domain.ExtractedTest{
		Name: "pH (25C)",
		Min:  f64(4.5),
		Max:  f64(7),
		Unit: str("pH"),
	}
	row := BuildResolved(extracted, sampleEntry(), 30)

	if row.ID == "" {
		t.Fatalf("row must get an id")
	}
	if row.Order != 30 {
		t.Fatalf("order = %d, want 30", row.Order)
	}
	if row.CatalogueID == nil || *row.CatalogueID != "cat-ph" {
		t.Fatalf("catalogue id not carried: %+v", row.CatalogueID)
	}
	if row.IsUnresolved {
		t.Fatalf("resolved row flagged unresolved")
	}
	if row.Analysis != "pH" || row.Component != "Value" || row.TestCode != "PH01" {
		t.Fatalf("identity fields wrong: %+v", row)
	}
	if row.Description != "pH" {
		t.Fatalf("description defaults to analysis name, got %q", row.Description)
	}
	if row.Rule != DefaultSpecRule {
		t.Fatalf("empty spec rule must default to %q, got %q", DefaultSpecRule, row.Rule)
	}
	if row.Min != "4.5" || row.Max != "7" {
		t.Fatalf("bounds not stringified verbatim: min=%q max=%q", row.Min, row.Max)
	}
	if row.Units != "pH" {
		t.Fatalf("extracted unit must win, got %q", row.Units)
	}
	if row.Grade != "USP" || row.Category != "Chemical" {
		t.Fatalf("catalogue defaults not carried: %+v", row)
	}
	if row.OriginalExtractedName != "pH (25C)" {
		t.Fatalf("original name lost: %q", row.OriginalExtractedName)
	}
	if row.OverrideMin != "" || row.OverrideMax != "" || row.OverrideText != "" || row.LitRef != "" {
		t.Fatalf("override fields must start empty: %+v", row)
	}
}

func TestBuildResolvedUnitFallback(t *testing.T) {
	extracted := domain.ExtractedTest{Name: "pH"}
	row := BuildResolved(extracted, sampleEntry(), 10)
	if row.Units != "pH units" {
		t.Fatalf("missing extracted unit must fall back to catalogue units, got %q", row.Units)
	}
	if row.Min != "" || row.Max != "" || row.TextSpec != "" {
		t.Fatalf("absent values must stay empty strings: %+v", row)
	}
}

func TestBuildResolvedKeepsExplicitRule(t *testing.T) {
	entry := sampleEntry()
	entry.SpecRule = "RANGE"
	row := BuildResolved(domain.ExtractedTest{Name: "pH"}, entry, 10)
	if row.Rule != "RANGE" {
		t.Fatalf("explicit rule overridden: %q", row.Rule)
	}
}

func TestBuildUnresolved(t *testing.T) {
	extracted := domain.ExtractedTest{
		Name: "Mystery Assay",
		Text: str("clear liquid"),
		Min:  f64(0.5),
		Unit: str("%"),
	}
	row := BuildUnresolved(extracted, 20)

	if row.CatalogueID != nil {
		t.Fatalf("unresolved row must have no catalogue id")
	}
	if !row.IsUnresolved {
		t.Fatalf("unresolved flag not set")
	}
	if row.Analysis != UnresolvedAnalysis || row.TestCode != UnresolvedTestCode {
		t.Fatalf("sentinel fields wrong: analysis=%q code=%q", row.Analysis, row.TestCode)
	}
	if row.Component != "Mystery Assay" || row.Description != "Mystery Assay" {
		t.Fatalf("raw name must fill component and description: %+v", row)
	}
	if row.ResultType != domain.ResultNumeric {
		t.Fatalf("unresolved rows assume numeric, got %q", row.ResultType)
	}
	if row.Min != "0.5" || row.Max != "" || row.TextSpec != "clear liquid" || row.Units != "%" {
		t.Fatalf("extracted values not carried verbatim: %+v", row)
	}
	if row.Rule != "" || row.Category != "" || row.Grade != "" {
		t.Fatalf("catalogue-derived fields must stay empty: %+v", row)
	}
}

func TestNumString(t *testing.T) {
	cases := []struct {
		in   *float64
		want string
	}{
		{nil, ""},
		{f64(0), "0"},
		{f64(100), "100"},
		{f64(0.05), "0.05"},
		{f64(4.5), "4.5"},
	}
	for _, tc := range cases {
		if got := numString(tc.in); got != tc.want {
			t.Fatalf("numString(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
