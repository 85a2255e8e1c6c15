// Package export materializes saved product specifications into LabWare
// loader workbooks and stores them as blob artifacts asynchronously.
package export

import (
	"sort"
	"strconv"

	"specforge/pkg/domain"
)

// Sheet names in the LabWare spec load workbook.
const (
	SheetProduct    = "PRODUCT"
	SheetGrade      = "PRODUCT_GRADE"
	SheetGradeStage = "PRODUCT_GRADE_STAGE"
	SheetSpec       = "PRODUCT_SPEC"
)

const (
	defaultGrade = "RELEASE"
	defaultStage = "RELEASE"
)

// Sheet is one tab of the loader workbook with ordered columns and rows.
type Sheet struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Workbook is a full spec load: four sheets keyed off one product.
type Workbook struct {
	ProductCode string  `json:"product_code"`
	Sheets      []Sheet `json:"sheets"`
}

// BuildWorkbook assembles the loader sheets for a saved product. Spec rows
// are emitted in display order; unresolved rows are excluded and operator
// override values win over extracted values.
func BuildWorkbook(product domain.Product) Workbook {
	sheets := []Sheet{
		{
			Name:    SheetProduct,
			Columns: []string{"NAME", "DESCRIPTION", "PRODUCT_CODE", "GROUP_NAME", "ACTIVE_FL", "LOCKED_FL"},
			Rows: [][]string{
				{product.Name, product.Name, product.Code, "PHARMA", "T", "F"},
			},
		},
		{
			Name:    SheetGrade,
			Columns: []string{"PRODUCT_CODE", "GRADE", "DESCRIPTION", "SAMPLING_PLAN"},
			Rows: [][]string{
				{product.Code, defaultGrade, "Release Grade", "STD"},
			},
		},
		{
			Name:    SheetGradeStage,
			Columns: []string{"PRODUCT_CODE", "GRADE", "STAGE", "DESCRIPTION"},
			Rows: [][]string{
				{product.Code, defaultGrade, defaultStage, "Finished Product Release"},
			},
		},
	}

	specs := make([]domain.SpecificationRow, 0, len(product.Specs))
	for _, row := range product.Specs {
		if row.IsUnresolved {
			continue
		}
		specs = append(specs, row)
	}
	sort.SliceStable(specs, func(i, j int) bool { return specs[i].Order < specs[j].Order })

	specSheet := Sheet{
		Name: SheetSpec,
		Columns: []string{
			"PRODUCT_CODE", "GRADE", "STAGE", "ANALYSIS", "COMPONENT", "TEST_CODE",
			"DISPLAY_ORDER", "UNITS", "MIN_LIMIT", "MAX_LIMIT", "TEXT_SPEC", "RULE_NAME",
		},
	}
	for _, row := range specs {
		grade := row.Grade
		if grade == "" {
			grade = defaultGrade
		}
		specSheet.Rows = append(specSheet.Rows, []string{
			product.Code,
			grade,
			defaultStage,
			row.Analysis,
			row.Component,
			row.TestCode,
			strconv.Itoa(row.Order),
			row.Units,
			firstNonEmpty(row.OverrideMin, row.Min),
			firstNonEmpty(row.OverrideMax, row.Max),
			firstNonEmpty(row.OverrideText, row.TextSpec),
			row.Rule,
		})
	}
	sheets = append(sheets, specSheet)

	return Workbook{ProductCode: product.Code, Sheets: sheets}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
