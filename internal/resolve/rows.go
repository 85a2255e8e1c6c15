// Package resolve drives the operator workflow that turns extracted tests
// into ordered product specification rows.
package resolve

import (
	"strconv"

	"github.com/google/uuid"

	"specforge/pkg/domain"
)

// Sentinel values marking rows that still need a catalogue identity.
const (
	UnresolvedAnalysis = "UNRESOLVED"
	UnresolvedTestCode = "???"
)

// DefaultSpecRule applies when a catalogue entry carries no rule of its own.
const DefaultSpecRule = "MIN_MAX"

// Row order starts at OrderStart and advances by OrderStep so operators can
// insert rows between neighbours later.
const (
	OrderStart = 10
	OrderStep  = 10
)

// BuildResolved assembles a specification row from a catalogue entry and the
// extracted values. Identity fields come from the catalogue, measured values
// from the extraction; units prefer the extracted unit over the catalogue
// default.
func BuildResolved(extracted domain.ExtractedTest, entry domain.CatalogueEntry, order int) domain.SpecificationRow {
	catalogueID := entry.ID
	return domain.SpecificationRow{
		ID:                    uuid.NewString(),
		Order:                 order,
		CatalogueID:           &catalogueID,
		Analysis:              entry.AnalysisName,
		Component:             entry.ComponentName,
		TestCode:              entry.TestCode,
		Description:           entry.AnalysisName,
		ResultType:            entry.ResultType,
		Rule:                  ruleOrDefault(entry.SpecRule),
		Min:                   numString(extracted.Min),
		Max:                   numString(extracted.Max),
		TextSpec:              strOrEmpty(extracted.Text),
		Units:                 firstNonEmpty(strOrEmpty(extracted.Unit), entry.Units),
		Category:              entry.Category,
		Grade:                 entry.DefaultGrade,
		IsUnresolved:          false,
		OriginalExtractedName: extracted.Name,
	}
}

// BuildUnresolved assembles the placeholder row for a test with no catalogue
// identity yet. Extracted values are carried verbatim so nothing is lost if
// the operator suspends resolution.
func BuildUnresolved(extracted domain.ExtractedTest, order int) domain.SpecificationRow {
	return domain.SpecificationRow{
		ID:                    uuid.NewString(),
		Order:                 order,
		CatalogueID:           nil,
		Analysis:              UnresolvedAnalysis,
		Component:             extracted.Name,
		TestCode:              UnresolvedTestCode,
		Description:           extracted.Name,
		ResultType:            domain.ResultNumeric,
		Min:                   numString(extracted.Min),
		Max:                   numString(extracted.Max),
		TextSpec:              strOrEmpty(extracted.Text),
		Units:                 strOrEmpty(extracted.Unit),
		IsUnresolved:          true,
		OriginalExtractedName: extracted.Name,
	}
}

func ruleOrDefault(rule string) string {
	if rule == "" {
		return DefaultSpecRule
	}
	return rule
}

func numString(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func strOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
