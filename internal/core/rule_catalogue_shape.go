package core

import (
	"context"
	"fmt"

	"specforge/pkg/domain"
)

// CatalogueShapeRule validates catalogue entry fields on write: the result
// type must be numeric or text and decimal places cannot be negative.
func CatalogueShapeRule() domain.Rule {
	return catalogueShapeRule{}
}

type catalogueShapeRule struct{}

func (catalogueShapeRule) Name() string { return "catalogue_shape" }

func (catalogueShapeRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityCatalogueEntry || change.After == nil {
			continue
		}
		entry, ok := change.After.(domain.CatalogueEntry)
		if !ok {
			continue
		}
		if entry.ResultType != domain.ResultNumeric && entry.ResultType != domain.ResultText {
			res.Violations = append(res.Violations, catalogueViolation(entry.ID,
				fmt.Sprintf("catalogue entry %s has invalid result type %q", entry.ID, entry.ResultType)))
		}
		if entry.DecimalPlaces < 0 {
			res.Violations = append(res.Violations, catalogueViolation(entry.ID,
				fmt.Sprintf("catalogue entry %s has negative decimal places %d", entry.ID, entry.DecimalPlaces)))
		}
	}
	return res, nil
}

func catalogueViolation(entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "catalogue_shape",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityCatalogueEntry,
		EntityID: entityID,
	}
}
