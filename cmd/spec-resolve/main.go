// Command spec-resolve runs the catalogue matching pipeline from the shell:
// it loads a catalogue CSV and an extraction JSON, resolves the extracted
// tests against the catalogue, and writes the assembled specification rows.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"specforge/internal/blob"
	"specforge/internal/core"
	"specforge/internal/export"
	"specforge/internal/match"
	"specforge/pkg/domain"
)

var exitFunc = os.Exit

// catalogueColumns is the column order written by the catalogue export and
// accepted when a CSV arrives without a header row.
var catalogueColumns = []string{
	"testCode", "analysisName", "componentName", "units", "category",
	"resultType", "defaultGrade", "places", "specRule",
}

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("spec-resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cataloguePath  = fs.String("catalogue", "", "path to catalogue csv")
		extractionPath = fs.String("extraction", "", "path to extraction json")
		overridesPath  = fs.String("overrides", "", "optional json object of extracted name to catalogue id")
		outPath        = fs.String("out", "-", "output path for the assembled product json, - for stdout")
		autoAccept     = fs.Bool("auto-accept", false, "confirm the top candidate for every ambiguous test")
		strict         = fs.Bool("strict", false, "exit nonzero when unresolved rows remain")
		exportDir      = fs.String("export-dir", "", "when set, write LabWare workbook artifacts under this directory")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *cataloguePath == "" || *extractionPath == "" {
		fmt.Fprintln(stderr, "spec-resolve: -catalogue and -extraction are required")
		fs.Usage()
		return 2
	}

	matchCfg, err := match.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "spec-resolve: %v\n", err)
		return 2
	}

	entries, err := loadCatalogue(*cataloguePath)
	if err != nil {
		fmt.Fprintf(stderr, "spec-resolve: load catalogue: %v\n", err)
		return 1
	}
	data, err := loadExtraction(*extractionPath)
	if err != nil {
		fmt.Fprintf(stderr, "spec-resolve: load extraction: %v\n", err)
		return 1
	}

	ctx := context.Background()
	service := core.NewInMemoryService(nil, core.WithMatchConfig(matchCfg))
	if _, _, err := service.ImportCatalogue(ctx, entries); err != nil {
		fmt.Fprintf(stderr, "spec-resolve: import catalogue: %v\n", err)
		return 1
	}
	if *overridesPath != "" {
		if err := loadOverrides(ctx, service, *overridesPath); err != nil {
			fmt.Fprintf(stderr, "spec-resolve: load overrides: %v\n", err)
			return 1
		}
	}

	session, err := service.BeginResolution(ctx, data)
	if err != nil {
		fmt.Fprintf(stderr, "spec-resolve: %v\n", err)
		return 1
	}

	if *autoAccept {
		for {
			test, candidates, ok := session.Current()
			if !ok {
				break
			}
			if len(candidates) == 0 {
				session.Skip()
				break
			}
			if err := session.Confirm(ctx, candidates[0].Entry.ID); err != nil {
				fmt.Fprintf(stderr, "spec-resolve: confirm %q: %v\n", test.Name, err)
				return 1
			}
		}
	}

	product := session.Product()
	reportUnresolved(stderr, service, matchCfg, product.Specs)
	unresolved := 0
	for _, row := range product.Specs {
		if row.IsUnresolved {
			unresolved++
		}
	}
	fmt.Fprintf(stderr, "resolved %d of %d rows\n", len(product.Specs)-unresolved, len(product.Specs))

	if err := writeProduct(*outPath, stdout, product); err != nil {
		fmt.Fprintf(stderr, "spec-resolve: write output: %v\n", err)
		return 1
	}
	if *exportDir != "" {
		if err := exportProduct(ctx, service, product, *exportDir, stderr); err != nil {
			fmt.Fprintf(stderr, "spec-resolve: export: %v\n", err)
			return 1
		}
	}
	if *strict && unresolved > 0 {
		return 1
	}
	return 0
}

// exportProduct saves the assembled product and runs one workbook export
// against a filesystem blob store rooted at dir.
func exportProduct(ctx context.Context, service *core.Service, product domain.Product, dir string, stderr io.Writer) error {
	saved, _, err := service.SaveProduct(ctx, product)
	if err != nil {
		return err
	}
	store, err := blob.NewFilesystem(dir)
	if err != nil {
		return err
	}
	worker := export.NewWorker(service, store, service)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	record, err := worker.Enqueue(ctx, export.Input{ProductID: saved.ID})
	if err != nil {
		return err
	}
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		current, ok := worker.Get(record.ID)
		if !ok {
			return fmt.Errorf("export %s vanished", record.ID)
		}
		if current.Status == export.StatusFailed {
			return fmt.Errorf("export failed: %s", current.Error)
		}
		if current.Status == export.StatusSucceeded {
			for _, artifact := range current.Artifacts {
				fmt.Fprintf(stderr, "wrote %s\n", artifact.Key)
			}
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("export %s timed out", record.ID)
}

// reportUnresolved lists every unresolved row together with its ranked
// candidates so an operator can build an overrides file for the next run.
func reportUnresolved(stderr io.Writer, service *core.Service, cfg match.Config, rows []domain.SpecificationRow) {
	ranker := match.NewRanker(cfg)
	entries := service.ListCatalogue()
	for _, row := range rows {
		if !row.IsUnresolved {
			continue
		}
		name := row.OriginalExtractedName
		if name == "" {
			name = row.Analysis
		}
		fmt.Fprintf(stderr, "unresolved: %q\n", name)
		for _, candidate := range ranker.Rank(name, entries, match.NoOverrides) {
			fmt.Fprintf(stderr, "  %-12s %s / %s (%s)\n",
				candidate.Entry.TestCode, candidate.Entry.AnalysisName,
				candidate.Entry.ComponentName, candidate.Reason)
		}
	}
}

func loadCatalogue(path string) ([]domain.CatalogueEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("catalogue csv %s is empty", path)
	}

	columns := catalogueColumns
	start := 0
	if isHeaderRow(records[0]) {
		columns = records[0]
		start = 1
	}
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	entries := make([]domain.CatalogueEntry, 0, len(records)-start)
	for lineNo, record := range records[start:] {
		field := func(name string) string {
			i, ok := index[strings.ToLower(name)]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		places := 0
		if raw := field("places"); raw != "" {
			places, err = strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: parse places: %w", start+lineNo+1, err)
			}
		}
		entries = append(entries, domain.CatalogueEntry{
			TestCode:      field("testCode"),
			AnalysisName:  field("analysisName"),
			ComponentName: field("componentName"),
			Units:         field("units"),
			Category:      field("category"),
			ResultType:    domain.ResultType(field("resultType")),
			DefaultGrade:  field("defaultGrade"),
			DecimalPlaces: places,
			SpecRule:      field("specRule"),
		})
	}
	return entries, nil
}

// isHeaderRow reports whether the first CSV record names columns instead of
// carrying data. The exported header always begins with testCode.
func isHeaderRow(record []string) bool {
	if len(record) == 0 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(record[0]), "testcode")
}

func loadExtraction(path string) (domain.ExtractedData, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return domain.ExtractedData{}, err
	}
	var data domain.ExtractedData
	if err := json.Unmarshal(payload, &data); err != nil {
		return domain.ExtractedData{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return data, nil
}

func loadOverrides(ctx context.Context, service *core.Service, path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var overrides map[string]string
	if err := json.Unmarshal(payload, &overrides); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for name, catalogueID := range overrides {
		if _, _, err := service.PutManualOverride(ctx, name, catalogueID); err != nil {
			return fmt.Errorf("override %q: %w", name, err)
		}
	}
	return nil
}

func writeProduct(path string, stdout io.Writer, product domain.Product) error {
	payload, err := json.MarshalIndent(product, "", "  ")
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	if path == "-" {
		_, err = stdout.Write(payload)
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}
