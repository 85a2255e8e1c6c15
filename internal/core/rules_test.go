package core

import (
	"context"
	"testing"

	"specforge/pkg/domain"
)

type stubView struct {
	entries   []CatalogueEntry
	overrides []ManualOverride
}

func (v stubView) ListCatalogueEntries() []CatalogueEntry { return v.entries }
func (v stubView) ListManualOverrides() []ManualOverride  { return v.overrides }
func (v stubView) ListProducts() []Product                { return nil }

func (v stubView) FindCatalogueEntry(id string) (CatalogueEntry, bool) {
	for _, e := range v.entries {
		if e.ID == id {
			return e, true
		}
	}
	return CatalogueEntry{}, false
}

func (v stubView) FindManualOverride(name string) (ManualOverride, bool) {
	for _, ov := range v.overrides {
		if ov.ExtractedName == name {
			return ov, true
		}
	}
	return ManualOverride{}, false
}

func (v stubView) FindProduct(string) (Product, bool) { return Product{}, false }

func TestSpecRowConsistencyRule(t *testing.T) {
	view := stubView{entries: []CatalogueEntry{{Base: Base{ID: "cat-1"}}}}
	ref := "cat-1"
	missing := "cat-404"

	product := Product{Base: Base{ID: "prod-1"}, Specs: []SpecificationRow{
		{ID: "ok", CatalogueID: &ref},
		{ID: "unresolved-with-ref", CatalogueID: &ref, IsUnresolved: true},
		{ID: "resolved-without-ref"},
		{ID: "missing-ref", CatalogueID: &missing},
	}}
	res, err := SpecRowConsistencyRule().Evaluate(context.Background(), view, []Change{
		{Entity: EntityProduct, Action: ActionCreate, After: product},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Violations) != 3 {
		t.Fatalf("violations = %+v", res.Violations)
	}
	if !res.HasBlocking() {
		t.Fatal("expected blocking violations")
	}
}

func TestOverrideIntegrityRuleWarnsOnDanglingReference(t *testing.T) {
	view := stubView{
		entries: []CatalogueEntry{{Base: Base{ID: "cat-1"}}},
		overrides: []ManualOverride{
			{Base: Base{ID: "ov-1"}, ExtractedName: "pH", CatalogueID: "cat-1"},
			{Base: Base{ID: "ov-2"}, ExtractedName: "Ash", CatalogueID: "cat-404"},
		},
	}
	res, err := OverrideIntegrityRule().Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != SeverityWarn {
		t.Fatalf("violations = %+v", res.Violations)
	}
	if res.HasBlocking() {
		t.Fatal("dangling override must not block")
	}
}

func TestCatalogueShapeRule(t *testing.T) {
	res, err := CatalogueShapeRule().Evaluate(context.Background(), stubView{}, []Change{
		{Entity: EntityCatalogueEntry, Action: ActionCreate, After: CatalogueEntry{Base: Base{ID: "a"}, ResultType: "BOGUS"}},
		{Entity: EntityCatalogueEntry, Action: ActionCreate, After: CatalogueEntry{Base: Base{ID: "b"}, ResultType: ResultNumeric, DecimalPlaces: -1}},
		{Entity: EntityCatalogueEntry, Action: ActionCreate, After: CatalogueEntry{Base: Base{ID: "c"}, ResultType: ResultText}},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("violations = %+v", res.Violations)
	}
}

func TestDefaultRulesEngineRegistersPolicySet(t *testing.T) {
	engine := NewDefaultRulesEngine()
	res, err := engine.Evaluate(context.Background(), stubView{overrides: []ManualOverride{
		{Base: Base{ID: "ov-1"}, ExtractedName: "Ash", CatalogueID: "cat-404"},
	}}, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("violations = %+v", res.Violations)
	}
}

var _ domain.RuleView = stubView{}
