package core

import (
	"context"
	"fmt"

	"specforge/pkg/domain"
)

// SpecRowConsistencyRule enforces the row invariant on saved products: a row
// is unresolved exactly when it carries no catalogue reference, and resolved
// rows must point at an existing catalogue entry.
func SpecRowConsistencyRule() domain.Rule {
	return specRowConsistencyRule{}
}

type specRowConsistencyRule struct{}

func (specRowConsistencyRule) Name() string { return "spec_row_consistency" }

func (specRowConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityProduct || change.After == nil {
			continue
		}
		product, ok := change.After.(domain.Product)
		if !ok {
			continue
		}
		for _, row := range product.Specs {
			hasRef := row.CatalogueID != nil && *row.CatalogueID != ""
			if row.IsUnresolved && hasRef {
				res.Violations = append(res.Violations, specRowViolation(product.ID,
					fmt.Sprintf("product %s row %s is marked unresolved but references catalogue entry %s", product.ID, row.ID, *row.CatalogueID)))
				continue
			}
			if !row.IsUnresolved && !hasRef {
				res.Violations = append(res.Violations, specRowViolation(product.ID,
					fmt.Sprintf("product %s row %s is resolved without a catalogue reference", product.ID, row.ID)))
				continue
			}
			if hasRef {
				if _, found := view.FindCatalogueEntry(*row.CatalogueID); !found {
					res.Violations = append(res.Violations, specRowViolation(product.ID,
						fmt.Sprintf("product %s row %s references missing catalogue entry %s", product.ID, row.ID, *row.CatalogueID)))
				}
			}
		}
	}
	return res, nil
}

func specRowViolation(productID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "spec_row_consistency",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityProduct,
		EntityID: productID,
	}
}
