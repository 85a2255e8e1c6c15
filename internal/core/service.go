package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"specforge/internal/match"
	"specforge/internal/resolve"
	"specforge/pkg/domain"
)

// Audit actions emitted by service operations.
const (
	AuditActionManualMatch     = "MANUAL_MATCH"
	AuditActionSaveProduct     = "SAVE_PRODUCT"
	AuditActionImportCatalogue = "IMPORT_CATALOGUE"
)

// Service exposes higher-level transactional operations for the catalogue,
// manual overrides, products and the audit trail, and wires resolution
// sessions against the active store.
type Service struct {
	store    PersistentStore
	matchCfg match.Config
	logger   Logger
	clock    Clock
	metrics  MetricsRecorder
	tracer   Tracer
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithLogger overrides the no-op default logger.
func WithLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the wall clock, mainly for tests.
func WithClock(c Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetricsRecorder attaches a metrics sink for operation outcomes.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer attaches a tracer for operation spans.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithMatchConfig overrides the ranking thresholds used by resolution sessions.
func WithMatchConfig(cfg match.Config) ServiceOption {
	return func(s *Service) { s.matchCfg = cfg }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		matchCfg: match.DefaultConfig(),
		logger:   noopLogger{},
		clock:    ClockFunc(time.Now),
		metrics:  noopMetricsRecorder{},
		tracer:   noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine gets the default policy set.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(newMemoryStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// MatchConfig returns the active ranking thresholds.
func (s *Service) MatchConfig() match.Config { return s.matchCfg }

// instrument wraps an operation with tracing, timing and outcome metrics.
func (s *Service) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	started := s.clock.Now()
	err := fn(ctx)
	s.metrics.Observe(ctx, operation, err == nil, s.clock.Now().Sub(started))
	span.End(err)
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", operation)
	}
	return err
}

// CreateCatalogueEntry persists a new catalogue entry.
func (s *Service) CreateCatalogueEntry(ctx context.Context, entry CatalogueEntry) (CatalogueEntry, Result, error) {
	var created CatalogueEntry
	var res Result
	err := s.instrument(ctx, "create_catalogue_entry", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateCatalogueEntry(entry)
			return err
		})
		return err
	})
	return created, res, err
}

// UpdateCatalogueEntry mutates a catalogue entry using the provided mutator.
func (s *Service) UpdateCatalogueEntry(ctx context.Context, id string, mutator func(*CatalogueEntry) error) (CatalogueEntry, Result, error) {
	var updated CatalogueEntry
	var res Result
	err := s.instrument(ctx, "update_catalogue_entry", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateCatalogueEntry(id, mutator)
			return err
		})
		return err
	})
	return updated, res, err
}

// DeleteCatalogueEntry removes a catalogue entry.
func (s *Service) DeleteCatalogueEntry(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "delete_catalogue_entry", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteCatalogueEntry(id)
		})
		return err
	})
	return res, err
}

// ImportCatalogue replaces the whole catalogue with the supplied entries in
// record order, applying defaults for blank fields. Returns the number of
// entries imported.
func (s *Service) ImportCatalogue(ctx context.Context, entries []CatalogueEntry) (int, Result, error) {
	var res Result
	count := 0
	err := s.instrument(ctx, "import_catalogue", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			for _, existing := range tx.Snapshot().ListCatalogueEntries() {
				if err := tx.DeleteCatalogueEntry(existing.ID); err != nil {
					return err
				}
			}
			for _, entry := range entries {
				if _, err := tx.CreateCatalogueEntry(catalogueImportDefaults(entry)); err != nil {
					return err
				}
				count++
			}
			_, err := tx.AppendAuditEvent(AuditEvent{
				Action: AuditActionImportCatalogue,
				Detail: fmt.Sprintf("Imported %d catalogue entries", len(entries)),
			})
			return err
		})
		return err
	})
	if err != nil {
		count = 0
	}
	return count, res, err
}

// catalogueImportDefaults fills blank import fields the way legacy catalogue
// loads did: unknown codes stay orderable and result types collapse to N/T.
func catalogueImportDefaults(entry CatalogueEntry) CatalogueEntry {
	if strings.TrimSpace(entry.TestCode) == "" {
		entry.TestCode = "UNKNOWN"
	}
	if strings.TrimSpace(entry.AnalysisName) == "" {
		entry.AnalysisName = "Unknown Analysis"
	}
	if entry.ResultType != ResultText {
		entry.ResultType = ResultNumeric
	}
	if entry.DecimalPlaces < 0 {
		entry.DecimalPlaces = 0
	}
	return entry
}

// ListCatalogue returns the catalogue in import order.
func (s *Service) ListCatalogue() []CatalogueEntry { return s.store.ListCatalogueEntries() }

// catalogueExportHeader is the column order catalogue CSV round-trips use.
var catalogueExportHeader = []string{
	"testCode", "analysisName", "componentName", "units", "category",
	"resultType", "defaultGrade", "places", "specRule",
}

// ExportCatalogue writes the catalogue as CSV in import order. The header
// row uses the same column names ImportCatalogue consumers expect, so an
// export feeds back in unchanged.
func (s *Service) ExportCatalogue(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(catalogueExportHeader); err != nil {
		return err
	}
	for _, entry := range s.store.ListCatalogueEntries() {
		record := []string{
			entry.TestCode, entry.AnalysisName, entry.ComponentName,
			entry.Units, entry.Category, string(entry.ResultType),
			entry.DefaultGrade, strconv.Itoa(entry.DecimalPlaces), entry.SpecRule,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// GetCatalogueEntry fetches one entry by ID.
func (s *Service) GetCatalogueEntry(id string) (CatalogueEntry, bool) {
	return s.store.GetCatalogueEntry(id)
}

// PutManualOverride upserts the mapping for an exact raw name and records a
// MANUAL_MATCH audit event. The raw name is matched case and whitespace
// sensitively at rank time.
func (s *Service) PutManualOverride(ctx context.Context, extractedName, catalogueID string) (ManualOverride, Result, error) {
	var saved ManualOverride
	var res Result
	err := s.instrument(ctx, "put_manual_override", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			saved, err = tx.PutManualOverride(ManualOverride{ExtractedName: extractedName, CatalogueID: catalogueID})
			if err != nil {
				return err
			}
			_, err = tx.AppendAuditEvent(AuditEvent{
				Action: AuditActionManualMatch,
				Detail: fmt.Sprintf("Mapped %q to %s", extractedName, catalogueID),
			})
			return err
		})
		return err
	})
	return saved, res, err
}

// SaveManualOverride satisfies resolve.OverrideWriter so confirmed choices
// persist through the same audited path as direct override edits.
func (s *Service) SaveManualOverride(ctx context.Context, extractedName, catalogueID string) error {
	_, _, err := s.PutManualOverride(ctx, extractedName, catalogueID)
	return err
}

// DeleteManualOverride removes the mapping for a raw name.
func (s *Service) DeleteManualOverride(ctx context.Context, extractedName string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "delete_manual_override", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteManualOverride(extractedName)
		})
		return err
	})
	return res, err
}

// ListManualOverrides returns all overrides sorted by raw name.
func (s *Service) ListManualOverrides() []ManualOverride { return s.store.ListManualOverrides() }

// SaveProduct creates or updates a product specification and records a
// SAVE_PRODUCT audit event.
func (s *Service) SaveProduct(ctx context.Context, product Product) (Product, Result, error) {
	var saved Product
	var res Result
	err := s.instrument(ctx, "save_product", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			if product.ID != "" {
				if _, exists := tx.Snapshot().FindProduct(product.ID); exists {
					saved, err = tx.UpdateProduct(product.ID, func(p *Product) error {
						p.Name = product.Name
						p.Code = product.Code
						p.EffectiveDate = product.EffectiveDate
						p.Specs = product.Specs
						return nil
					})
				} else {
					saved, err = tx.CreateProduct(product)
				}
			} else {
				saved, err = tx.CreateProduct(product)
			}
			if err != nil {
				return err
			}
			_, err = tx.AppendAuditEvent(AuditEvent{
				Action: AuditActionSaveProduct,
				Detail: fmt.Sprintf("Saved product %s (%s) with %d rows", saved.Name, saved.Code, len(saved.Specs)),
			})
			return err
		})
		return err
	})
	return saved, res, err
}

// GetProduct fetches one product by ID.
func (s *Service) GetProduct(id string) (Product, bool) { return s.store.GetProduct(id) }

// ListProducts returns saved products in creation order.
func (s *Service) ListProducts() []Product { return s.store.ListProducts() }

// DeleteProduct removes a saved product.
func (s *Service) DeleteProduct(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.instrument(ctx, "delete_product", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteProduct(id)
		})
		return err
	})
	return res, err
}

// AppendAudit records a free-form audit event.
func (s *Service) AppendAudit(ctx context.Context, action, detail string) error {
	return s.instrument(ctx, "append_audit", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.AppendAuditEvent(AuditEvent{Action: action, Detail: detail})
			return err
		})
		return err
	})
}

// AuditTrail returns the audit trail, newest first.
func (s *Service) AuditTrail() []AuditEvent { return s.store.ListAuditEvents() }

// NewResolutionSession builds a resolution session over the current catalogue
// and override set. Confirmed choices persist through the service.
func (s *Service) NewResolutionSession() *resolve.Session {
	ranker := match.NewRanker(s.matchCfg)
	return resolve.NewSession(ranker, s.store, storeOverrides{s.store}, s)
}

// BeginResolution scores a whole extracted batch and returns the session in
// its post-scoring phase.
func (s *Service) BeginResolution(ctx context.Context, data ExtractedData) (*resolve.Session, error) {
	session := s.NewResolutionSession()
	var err error
	ierr := s.instrument(ctx, "begin_resolution", func(ctx context.Context) error {
		err = session.Begin(ctx, data)
		return err
	})
	if ierr != nil {
		return nil, ierr
	}
	return session, nil
}

// storeOverrides adapts the persistent store to the ranker's override lookup.
type storeOverrides struct {
	store PersistentStore
}

func (o storeOverrides) FindManualOverride(extractedName string) (domain.ManualOverride, bool) {
	return o.store.GetManualOverride(extractedName)
}
