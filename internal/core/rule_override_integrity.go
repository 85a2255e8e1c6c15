package core

import (
	"context"
	"fmt"

	"specforge/pkg/domain"
)

// OverrideIntegrityRule warns when a manual override points at a catalogue
// entry that no longer exists. Dangling overrides are skipped at rank time,
// so this stays advisory rather than blocking catalogue maintenance.
func OverrideIntegrityRule() domain.Rule {
	return overrideIntegrityRule{}
}

type overrideIntegrityRule struct{}

func (overrideIntegrityRule) Name() string { return "override_integrity" }

func (overrideIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, ov := range view.ListManualOverrides() {
		if _, ok := view.FindCatalogueEntry(ov.CatalogueID); !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "override_integrity",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("override %q references missing catalogue entry %s", ov.ExtractedName, ov.CatalogueID),
				Entity:   domain.EntityManualOverride,
				EntityID: ov.ID,
			})
		}
	}
	return res, nil
}
