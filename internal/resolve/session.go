package resolve

import (
	"context"
	"fmt"
	"sync"

	"specforge/internal/match"
	"specforge/pkg/domain"
)

// Phase is the workflow state of a resolution session.
type Phase string

// Session phases. Scoring is transient within Begin; a session observed from
// outside is idle, waiting on the operator, suspended, or done.
const (
	PhaseIdle           Phase = "idle"
	PhaseScoring        Phase = "scoring"
	PhaseAwaitingChoice Phase = "awaiting_choice"
	PhaseSuspended      Phase = "suspended"
	PhaseDone           Phase = "done"
)

// CatalogueSource supplies the live catalogue snapshot for scoring.
type CatalogueSource interface {
	ListCatalogueEntries() []domain.CatalogueEntry
}

// OverrideWriter persists a confirmed mapping. Implementations upsert the
// override (last write wins) and record the audit event.
type OverrideWriter interface {
	SaveManualOverride(ctx context.Context, extractedName, catalogueID string) error
}

// Session resolves one extracted batch into specification rows. Confident
// matches auto-resolve during Begin; the rest queue FIFO for the operator.
// Exactly one row exists per extracted test at every point in the workflow.
type Session struct {
	mu        sync.Mutex
	ranker    *match.Ranker
	catalogue CatalogueSource
	overrides match.OverrideSource
	writer    OverrideWriter

	phase         Phase
	name          string
	code          string
	effectiveDate string
	rows          []domain.SpecificationRow
	queue         []domain.ExtractedTest
}

// NewSession wires a session against its collaborators. overrides may be
// match.NoOverrides and writer may be nil for read-only scoring runs.
func NewSession(ranker *match.Ranker, catalogue CatalogueSource, overrides match.OverrideSource, writer OverrideWriter) *Session {
	if overrides == nil {
		overrides = match.NoOverrides
	}
	return &Session{
		ranker:    ranker,
		catalogue: catalogue,
		overrides: overrides,
		writer:    writer,
		phase:     PhaseIdle,
	}
}

// Begin scores the whole batch. Rows are assembled in extraction order with
// order numbers from OrderStart stepping by OrderStep; unresolved tests queue
// in the same order. The session lands in PhaseAwaitingChoice when anything
// needs the operator, otherwise PhaseDone.
func (s *Session) Begin(ctx context.Context, data domain.ExtractedData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseIdle {
		return fmt.Errorf("resolution already started (phase %s)", s.phase)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.phase = PhaseScoring
	s.name = valueOr(data.ProductName, "")
	s.code = valueOr(data.ProductCode, "")
	s.effectiveDate = valueOr(data.EffectiveDate, "")

	catalogue := s.catalogue.ListCatalogueEntries()
	order := OrderStart
	for _, test := range data.ExtractedTests {
		candidates := s.ranker.Rank(test.Name, catalogue, s.overrides)
		if s.ranker.Confident(candidates) {
			s.rows = append(s.rows, BuildResolved(test, candidates[0].Entry, order))
		} else {
			s.rows = append(s.rows, BuildUnresolved(test, order))
			s.queue = append(s.queue, test)
		}
		order += OrderStep
	}

	if len(s.queue) > 0 {
		s.phase = PhaseAwaitingChoice
	} else {
		s.phase = PhaseDone
	}
	return nil
}

// Phase returns the current workflow phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Pending returns the number of tests still awaiting an operator decision.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Current returns the head of the pending queue together with candidates
// ranked against the live catalogue. ok is false when nothing is pending or
// the session is suspended.
func (s *Session) Current() (domain.ExtractedTest, []domain.MatchCandidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseAwaitingChoice || len(s.queue) == 0 {
		return domain.ExtractedTest{}, nil, false
	}
	head := s.queue[0]
	return head, s.ranker.Rank(head.Name, s.catalogue.ListCatalogueEntries(), s.overrides), true
}

// Confirm maps the pending test to the given catalogue entry: the override is
// persisted, every unresolved row for that raw name becomes a resolved row
// keeping its order, and the queue advances.
func (s *Session) Confirm(ctx context.Context, catalogueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseAwaitingChoice || len(s.queue) == 0 {
		return fmt.Errorf("no pending test to confirm (phase %s)", s.phase)
	}
	head := s.queue[0]
	entry, ok := s.findEntry(catalogueID)
	if !ok {
		return fmt.Errorf("catalogue entry %s not found", catalogueID)
	}
	if s.writer != nil {
		if err := s.writer.SaveManualOverride(ctx, head.Name, entry.ID); err != nil {
			return fmt.Errorf("save override: %w", err)
		}
	}
	for i, row := range s.rows {
		if row.IsUnresolved && row.OriginalExtractedName == head.Name {
			s.rows[i] = BuildResolved(head, entry, row.Order)
		}
	}
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.phase = PhaseDone
	}
	return nil
}

// Suspend parks the workflow without losing pending work. Unresolved rows
// keep their sentinel values and the queue survives for Resume.
func (s *Session) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseAwaitingChoice {
		s.phase = PhaseSuspended
	}
}

// Skip is the operator's "deal with it later": identical to Suspend.
func (s *Session) Skip() { s.Suspend() }

// Resume re-presents the pending queue head after a Suspend.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseSuspended {
		return
	}
	if len(s.queue) > 0 {
		s.phase = PhaseAwaitingChoice
	} else {
		s.phase = PhaseDone
	}
}

// Rows returns a copy of the assembled rows in extraction order.
func (s *Session) Rows() []domain.SpecificationRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SpecificationRow, len(s.rows))
	copy(out, s.rows)
	return out
}

// Product assembles the draft product from the session header and rows.
func (s *Session) Product() domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]domain.SpecificationRow, len(s.rows))
	copy(rows, s.rows)
	return domain.Product{
		Name:          s.name,
		Code:          s.code,
		EffectiveDate: s.effectiveDate,
		Specs:         rows,
	}
}

func (s *Session) findEntry(id string) (domain.CatalogueEntry, bool) {
	for _, entry := range s.catalogue.ListCatalogueEntries() {
		if entry.ID == id {
			return entry, true
		}
	}
	return domain.CatalogueEntry{}, false
}

func valueOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
