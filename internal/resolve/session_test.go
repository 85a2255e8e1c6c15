package resolve

import (
	"context"
	"testing"

	"specforge/internal/match"
	"specforge/pkg/domain"
)

type sliceCatalogue []domain.CatalogueEntry

func (c sliceCatalogue) ListCatalogueEntries() []domain.CatalogueEntry { return c }

type mapOverrides map[string]string

func (m mapOverrides) FindManualOverride(name string) (domain.ManualOverride, bool) {
	id, ok := m[name]
	if !ok {
		return domain.ManualOverride{}, false
	}
	return domain.ManualOverride{ExtractedName: name, CatalogueID: id}, true
}

type recordingWriter struct {
	names []string
	ids   []string
	err   error
}

func (w *recordingWriter) SaveManualOverride(_ context.Context, name, id string) error {
	if w.err != nil {
		return w.err
	}
	w.names = append(w.names, name)
	w.ids = append(w.ids, id)
	return nil
}

func catalogueFixture() sliceCatalogue {
	mk := func(id, code, analysis, component, units string) domain.CatalogueEntry {
		e := domain.CatalogueEntry{
			TestCode:      code,
			AnalysisName:  analysis,
			ComponentName: component,
			Units:         units,
			ResultType:    domain.ResultNumeric,
		}
		e.ID = id
		return e
	}
	return sliceCatalogue{
		mk("cat-app", "APP01", "Appearance", "Description", ""),
		mk("cat-ph", "PH01", "pH", "Value", "pH units"),
		mk("cat-tamc", "TAMC", "Total Aerobic Microbial Count", "Count", "cfu/g"),
	}
}

func batch(names ...string) domain.ExtractedData {
	tests := make([]domain.ExtractedTest, 0, len(names))
	for _, n := range names {
		tests = append(tests, domain.ExtractedTest{Name: n})
	}
	code := "PRD-1"
	return domain.ExtractedData{ProductCode: &code, ExtractedTests: tests}
}

func newTestSession(overrides match.OverrideSource, writer OverrideWriter) *Session {
	return NewSession(match.NewRanker(match.DefaultConfig()), catalogueFixture(), overrides, writer)
}

func TestBeginScoresWholeBatch(t *testing.T) {
	s := newTestSession(nil, nil)
	data := batch("Appearance Description", "Weird Unknown Thing", "TAMC")
	if err := s.Begin(context.Background(), data); err != nil {
		t.Fatalf("begin: %v", err)
	}

	rows := s.Rows()
	if len(rows) != 3 {
		t.Fatalf("every extracted test must yield one row, got %d", len(rows))
	}
	for i, row := range rows {
		if want := OrderStart + i*OrderStep; row.Order != want {
			t.Fatalf("row %d order = %d, want %d", i, row.Order, want)
		}
		if row.IsUnresolved != (row.CatalogueID == nil) {
			t.Fatalf("unresolved flag out of sync with catalogue id: %+v", row)
		}
	}
	if rows[0].IsUnresolved || rows[2].IsUnresolved {
		t.Fatalf("exact matches must auto-resolve: %+v", rows)
	}
	if !rows[1].IsUnresolved {
		t.Fatalf("unmatched test must stay unresolved: %+v", rows[1])
	}
	if s.Phase() != PhaseAwaitingChoice || s.Pending() != 1 {
		t.Fatalf("phase=%s pending=%d", s.Phase(), s.Pending())
	}
}

func TestBeginAllConfidentFinishes(t *testing.T) {
	s := newTestSession(nil, nil)
	if err := s.Begin(context.Background(), batch("Appearance Description", "PH01")); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if s.Phase() != PhaseDone || s.Pending() != 0 {
		t.Fatalf("confident batch must finish, phase=%s pending=%d", s.Phase(), s.Pending())
	}
}

func TestBeginTwiceFails(t *testing.T) {
	s := newTestSession(nil, nil)
	if err := s.Begin(context.Background(), batch("pH")); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Begin(context.Background(), batch("pH")); err == nil {
		t.Fatalf("second begin must fail")
	}
}

func TestBeginEmptyCatalogue(t *testing.T) {
	s := NewSession(match.NewRanker(match.DefaultConfig()), sliceCatalogue{}, nil, nil)
	if err := s.Begin(context.Background(), batch("pH", "Appearance")); err != nil {
		t.Fatalf("begin: %v", err)
	}
	rows := s.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, row := range rows {
		if !row.IsUnresolved {
			t.Fatalf("empty catalogue must leave every row unresolved: %+v", row)
		}
	}
	if s.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", s.Pending())
	}
}

func TestOverrideAutoResolves(t *testing.T) {
	overrides := mapOverrides{"TPC": "cat-tamc"}
	s := newTestSession(overrides, nil)
	if err := s.Begin(context.Background(), batch("TPC")); err != nil {
		t.Fatalf("begin: %v", err)
	}
	rows := s.Rows()
	if rows[0].IsUnresolved || *rows[0].CatalogueID != "cat-tamc" {
		t.Fatalf("override must auto-resolve: %+v", rows[0])
	}
	if s.Phase() != PhaseDone {
		t.Fatalf("phase = %s, want done", s.Phase())
	}
}

func TestConfirmReplacesRowAndAdvances(t *testing.T) {
	writer := &recordingWriter{}
	s := newTestSession(nil, writer)
	data := batch("Totl Aerobic Count???", "Another Mystery")
	if err := s.Begin(context.Background(), data); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if s.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", s.Pending())
	}

	head, candidates, ok := s.Current()
	if !ok || head.Name != "Totl Aerobic Count???" {
		t.Fatalf("queue head wrong: %+v ok=%v", head, ok)
	}
	if len(candidates) == 0 {
		t.Fatalf("expected ranked candidates for head")
	}

	if err := s.Confirm(context.Background(), "cat-tamc"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(writer.names) != 1 || writer.names[0] != "Totl Aerobic Count???" || writer.ids[0] != "cat-tamc" {
		t.Fatalf("override not saved with raw name: %+v %+v", writer.names, writer.ids)
	}

	rows := s.Rows()
	if rows[0].IsUnresolved {
		t.Fatalf("confirmed row still unresolved: %+v", rows[0])
	}
	if rows[0].Order != OrderStart {
		t.Fatalf("confirm must preserve order, got %d", rows[0].Order)
	}
	if *rows[0].CatalogueID != "cat-tamc" {
		t.Fatalf("confirmed row wrong entry: %+v", rows[0])
	}
	if !rows[1].IsUnresolved {
		t.Fatalf("second row must stay queued: %+v", rows[1])
	}
	if s.Pending() != 1 || s.Phase() != PhaseAwaitingChoice {
		t.Fatalf("queue must advance FIFO, pending=%d phase=%s", s.Pending(), s.Phase())
	}

	if err := s.Confirm(context.Background(), "cat-app"); err != nil {
		t.Fatalf("confirm second: %v", err)
	}
	if s.Phase() != PhaseDone || s.Pending() != 0 {
		t.Fatalf("drained queue must finish, phase=%s pending=%d", s.Phase(), s.Pending())
	}
}

func TestConfirmUnknownEntry(t *testing.T) {
	s := newTestSession(nil, nil)
	if err := s.Begin(context.Background(), batch("Mystery")); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Confirm(context.Background(), "nope"); err == nil {
		t.Fatalf("confirming a missing entry must fail")
	}
	if s.Pending() != 1 {
		t.Fatalf("failed confirm must not advance the queue")
	}
}

func TestConfirmWithoutPending(t *testing.T) {
	s := newTestSession(nil, nil)
	if err := s.Begin(context.Background(), batch("PH01")); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Confirm(context.Background(), "cat-ph"); err == nil {
		t.Fatalf("confirm with empty queue must fail")
	}
}

func TestSuspendAndResumeKeepQueue(t *testing.T) {
	s := newTestSession(nil, nil)
	if err := s.Begin(context.Background(), batch("Mystery One", "Mystery Two")); err != nil {
		t.Fatalf("begin: %v", err)
	}
	s.Suspend()
	if s.Phase() != PhaseSuspended {
		t.Fatalf("phase = %s, want suspended", s.Phase())
	}
	if _, _, ok := s.Current(); ok {
		t.Fatalf("suspended session must not present a current test")
	}
	if s.Pending() != 2 {
		t.Fatalf("suspend lost pending work: %d", s.Pending())
	}

	rows := s.Rows()
	for _, row := range rows {
		if !row.IsUnresolved {
			t.Fatalf("suspended rows keep their sentinel values: %+v", row)
		}
	}

	s.Resume()
	if s.Phase() != PhaseAwaitingChoice {
		t.Fatalf("resume must re-present the queue, phase=%s", s.Phase())
	}
	head, _, ok := s.Current()
	if !ok || head.Name != "Mystery One" {
		t.Fatalf("resume must keep FIFO order, head=%+v ok=%v", head, ok)
	}
}

func TestProductDraftCarriesHeaderAndRows(t *testing.T) {
	s := newTestSession(nil, nil)
	if err := s.Begin(context.Background(), batch("pH")); err != nil {
		t.Fatalf("begin: %v", err)
	}
	p := s.Product()
	if p.Code != "PRD-1" {
		t.Fatalf("product code lost: %+v", p)
	}
	if len(p.Specs) != 1 {
		t.Fatalf("draft rows missing: %+v", p.Specs)
	}
}
