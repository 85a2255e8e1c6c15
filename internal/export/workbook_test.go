package export

import (
	"testing"

	"specforge/pkg/domain"
)

func TestBuildWorkbookSheets(t *testing.T) {
	catID := "cat-1"
	product := domain.Product{
		Base: domain.Base{ID: "prod-1"},
		Name: "Widget Cleaner",
		Code: "WID-100",
		Specs: []domain.SpecificationRow{
			{
				ID: "row-2", Order: 20, CatalogueID: &catID,
				Analysis: "pH", Component: "Value", TestCode: "PH01",
				Rule: "MIN_MAX", Units: "pH units", Min: "4.5", Max: "5.5",
			},
			{
				ID: "row-1", Order: 10, CatalogueID: &catID,
				Analysis: "Appearance", Component: "Description", TestCode: "APP01",
				Rule: "TEXT", TextSpec: "Clear liquid", OverrideText: "Clear colorless liquid",
				Grade: "STABILITY",
			},
			{
				ID: "row-3", Order: 30, Analysis: "UNRESOLVED", TestCode: "???", IsUnresolved: true,
			},
		},
	}

	wb := BuildWorkbook(product)
	if wb.ProductCode != "WID-100" || len(wb.Sheets) != 4 {
		t.Fatalf("workbook = %+v", wb)
	}

	names := []string{SheetProduct, SheetGrade, SheetGradeStage, SheetSpec}
	for i, want := range names {
		if wb.Sheets[i].Name != want {
			t.Fatalf("sheet %d = %s, want %s", i, wb.Sheets[i].Name, want)
		}
	}

	productSheet := wb.Sheets[0]
	if len(productSheet.Rows) != 1 {
		t.Fatalf("product rows = %+v", productSheet.Rows)
	}
	row := productSheet.Rows[0]
	if row[0] != "Widget Cleaner" || row[2] != "WID-100" || row[3] != "PHARMA" || row[4] != "T" || row[5] != "F" {
		t.Fatalf("product row = %v", row)
	}

	specSheet := wb.Sheets[3]
	if len(specSheet.Columns) != 12 {
		t.Fatalf("spec columns = %v", specSheet.Columns)
	}
	// unresolved row excluded, remaining rows sorted by display order
	if len(specSheet.Rows) != 2 {
		t.Fatalf("spec rows = %+v", specSheet.Rows)
	}
	first := specSheet.Rows[0]
	if first[3] != "Appearance" || first[6] != "10" {
		t.Fatalf("first spec row = %v", first)
	}
	// override text wins and explicit grade is kept
	if first[10] != "Clear colorless liquid" || first[1] != "STABILITY" {
		t.Fatalf("override handling = %v", first)
	}
	second := specSheet.Rows[1]
	if second[3] != "pH" || second[8] != "4.5" || second[9] != "5.5" || second[1] != "RELEASE" {
		t.Fatalf("second spec row = %v", second)
	}
}

func TestBuildWorkbookEmptySpecs(t *testing.T) {
	wb := BuildWorkbook(domain.Product{Name: "Empty", Code: "E-1"})
	if len(wb.Sheets) != 4 {
		t.Fatalf("sheets = %d", len(wb.Sheets))
	}
	if len(wb.Sheets[3].Rows) != 0 {
		t.Fatalf("expected empty spec sheet, got %+v", wb.Sheets[3].Rows)
	}
}
