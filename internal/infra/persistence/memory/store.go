// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"specforge/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// CatalogueEntry aliases domain.CatalogueEntry for in-memory persistence operations.
	CatalogueEntry = domain.CatalogueEntry
	// ManualOverride aliases domain.ManualOverride.
	ManualOverride = domain.ManualOverride
	// Product aliases domain.Product.
	Product = domain.Product
	// AuditEvent aliases domain.AuditEvent.
	AuditEvent = domain.AuditEvent
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

// AuditTrailCap bounds the retained audit trail. Appending beyond the cap
// drops the oldest events.
const AuditTrailCap = 1000

type memoryState struct {
	entries   map[string]CatalogueEntry
	overrides map[string]ManualOverride // keyed by exact ExtractedName
	products  map[string]Product
	audit     []AuditEvent // newest first
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Entries   map[string]CatalogueEntry `json:"entries"`
	Overrides map[string]ManualOverride `json:"overrides"`
	Products  map[string]Product        `json:"products"`
	Audit     []AuditEvent              `json:"audit"`
}

func newMemoryState() memoryState {
	return memoryState{
		entries:   make(map[string]CatalogueEntry),
		overrides: make(map[string]ManualOverride),
		products:  make(map[string]Product),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Entries:   make(map[string]CatalogueEntry, len(state.entries)),
		Overrides: make(map[string]ManualOverride, len(state.overrides)),
		Products:  make(map[string]Product, len(state.products)),
		Audit:     make([]AuditEvent, len(state.audit)),
	}
	for k, v := range state.entries {
		s.Entries[k] = v
	}
	for k, v := range state.overrides {
		s.Overrides[k] = v
	}
	for k, v := range state.products {
		s.Products[k] = cloneProduct(v)
	}
	copy(s.Audit, state.audit)
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Entries {
		state.entries[k] = v
	}
	for k, v := range s.Overrides {
		state.overrides[k] = v
	}
	for k, v := range s.Products {
		state.products[k] = cloneProduct(v)
	}
	state.audit = append(state.audit, s.Audit...)
	return state
}

// migrateSnapshot repairs snapshots written by older builds: nil buckets
// become empty, overrides are re-keyed on their raw name, and the audit
// trail is clamped to its cap.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Entries == nil {
		snapshot.Entries = map[string]CatalogueEntry{}
	}
	if snapshot.Overrides == nil {
		snapshot.Overrides = map[string]ManualOverride{}
	}
	if snapshot.Products == nil {
		snapshot.Products = map[string]Product{}
	}

	for key, ov := range snapshot.Overrides {
		if ov.ExtractedName == "" {
			delete(snapshot.Overrides, key)
			continue
		}
		if key != ov.ExtractedName {
			delete(snapshot.Overrides, key)
			snapshot.Overrides[ov.ExtractedName] = ov
		}
	}

	maxPos := 0
	for _, entry := range snapshot.Entries {
		if entry.Position > maxPos {
			maxPos = entry.Position
		}
	}
	var unpositioned []string
	for id, entry := range snapshot.Entries {
		if entry.Position == 0 {
			unpositioned = append(unpositioned, id)
		}
	}
	sort.Strings(unpositioned)
	for _, id := range unpositioned {
		entry := snapshot.Entries[id]
		maxPos++
		entry.Position = maxPos
		snapshot.Entries[id] = entry
	}

	if len(snapshot.Audit) > AuditTrailCap {
		snapshot.Audit = snapshot.Audit[:AuditTrailCap]
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.entries {
		cloned.entries[k] = v
	}
	for k, v := range s.overrides {
		cloned.overrides[k] = v
	}
	for k, v := range s.products {
		cloned.products[k] = cloneProduct(v)
	}
	cloned.audit = append([]AuditEvent(nil), s.audit...)
	return cloned
}

func cloneProduct(p Product) Product {
	cp := p
	cp.Specs = make([]domain.SpecificationRow, len(p.Specs))
	for i, row := range p.Specs {
		cp.Specs[i] = cloneRow(row)
	}
	return cp
}

func cloneRow(row domain.SpecificationRow) domain.SpecificationRow {
	cp := row
	if row.CatalogueID != nil {
		id := *row.CatalogueID
		cp.CatalogueID = &id
	}
	return cp
}

func (s memoryState) nextPosition() int {
	maxPos := 0
	for _, entry := range s.entries {
		if entry.Position > maxPos {
			maxPos = entry.Position
		}
	}
	return maxPos + 1
}

func sortedEntries(entries map[string]CatalogueEntry) []CatalogueEntry {
	out := make([]CatalogueEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedOverrides(overrides map[string]ManualOverride) []ManualOverride {
	out := make([]ManualOverride, 0, len(overrides))
	for _, ov := range overrides {
		out = append(out, ov)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExtractedName < out[j].ExtractedName })
	return out
}

func sortedProducts(products map[string]Product) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider, used by tests for stable stamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListCatalogueEntries returns catalogue entries in import order.
func (v transactionView) ListCatalogueEntries() []CatalogueEntry {
	return sortedEntries(v.state.entries)
}

// ListManualOverrides returns overrides sorted by raw name.
func (v transactionView) ListManualOverrides() []ManualOverride {
	return sortedOverrides(v.state.overrides)
}

// ListProducts returns products in creation order.
func (v transactionView) ListProducts() []Product {
	return sortedProducts(v.state.products)
}

// ListAuditEvents returns the audit trail, newest first.
func (v transactionView) ListAuditEvents() []AuditEvent {
	return append([]AuditEvent(nil), v.state.audit...)
}

// FindCatalogueEntry retrieves an entry by ID from the snapshot.
func (v transactionView) FindCatalogueEntry(id string) (CatalogueEntry, bool) {
	e, ok := v.state.entries[id]
	return e, ok
}

// FindManualOverride retrieves an override by its exact raw name.
func (v transactionView) FindManualOverride(extractedName string) (ManualOverride, bool) {
	ov, ok := v.state.overrides[extractedName]
	return ov, ok
}

// FindProduct retrieves a product by ID from the snapshot.
func (v transactionView) FindProduct(id string) (Product, bool) {
	p, ok := v.state.products[id]
	if !ok {
		return Product{}, false
	}
	return cloneProduct(p), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindCatalogueEntry exposes entry lookup within the transaction scope.
func (tx *transaction) FindCatalogueEntry(id string) (CatalogueEntry, bool) {
	e, ok := tx.state.entries[id]
	return e, ok
}

// FindManualOverride exposes override lookup within the transaction scope.
func (tx *transaction) FindManualOverride(extractedName string) (ManualOverride, bool) {
	ov, ok := tx.state.overrides[extractedName]
	return ov, ok
}

// CreateCatalogueEntry stores a new catalogue entry within the transaction.
func (tx *transaction) CreateCatalogueEntry(e CatalogueEntry) (CatalogueEntry, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.entries[e.ID]; exists {
		return CatalogueEntry{}, fmt.Errorf("catalogue entry %q already exists", e.ID)
	}
	if e.TestCode == "" && e.AnalysisName == "" {
		return CatalogueEntry{}, errors.New("catalogue entry requires a test code or analysis name")
	}
	if e.Position == 0 {
		e.Position = tx.state.nextPosition()
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.entries[e.ID] = e
	tx.recordChange(Change{Entity: domain.EntityCatalogueEntry, Action: domain.ActionCreate, After: e})
	return e, nil
}

// UpdateCatalogueEntry mutates an entry using the provided mutator function.
func (tx *transaction) UpdateCatalogueEntry(id string, mutator func(*CatalogueEntry) error) (CatalogueEntry, error) {
	current, ok := tx.state.entries[id]
	if !ok {
		return CatalogueEntry{}, fmt.Errorf("catalogue entry %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return CatalogueEntry{}, err
	}
	current.ID = id
	current.Position = before.Position
	current.UpdatedAt = tx.now
	tx.state.entries[id] = current
	tx.recordChange(Change{Entity: domain.EntityCatalogueEntry, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteCatalogueEntry removes an entry from the transaction state.
func (tx *transaction) DeleteCatalogueEntry(id string) error {
	current, ok := tx.state.entries[id]
	if !ok {
		return fmt.Errorf("catalogue entry %q not found", id)
	}
	delete(tx.state.entries, id)
	tx.recordChange(Change{Entity: domain.EntityCatalogueEntry, Action: domain.ActionDelete, Before: current})
	return nil
}

// PutManualOverride upserts the override for its raw name, last write wins.
func (tx *transaction) PutManualOverride(ov ManualOverride) (ManualOverride, error) {
	if ov.ExtractedName == "" {
		return ManualOverride{}, errors.New("manual override requires an extracted name")
	}
	if ov.CatalogueID == "" {
		return ManualOverride{}, errors.New("manual override requires a catalogue id")
	}
	if existing, ok := tx.state.overrides[ov.ExtractedName]; ok {
		before := existing
		existing.CatalogueID = ov.CatalogueID
		existing.UpdatedAt = tx.now
		tx.state.overrides[ov.ExtractedName] = existing
		tx.recordChange(Change{Entity: domain.EntityManualOverride, Action: domain.ActionUpdate, Before: before, After: existing})
		return existing, nil
	}
	if ov.ID == "" {
		ov.ID = tx.store.newID()
	}
	ov.CreatedAt = tx.now
	ov.UpdatedAt = tx.now
	tx.state.overrides[ov.ExtractedName] = ov
	tx.recordChange(Change{Entity: domain.EntityManualOverride, Action: domain.ActionCreate, After: ov})
	return ov, nil
}

// DeleteManualOverride removes the override for the given raw name.
func (tx *transaction) DeleteManualOverride(extractedName string) error {
	current, ok := tx.state.overrides[extractedName]
	if !ok {
		return fmt.Errorf("manual override %q not found", extractedName)
	}
	delete(tx.state.overrides, extractedName)
	tx.recordChange(Change{Entity: domain.EntityManualOverride, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateProduct stores a new product within the transaction.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.products[p.ID]; exists {
		return Product{}, fmt.Errorf("product %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.products[p.ID] = cloneProduct(p)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: cloneProduct(p)})
	return cloneProduct(p), nil
}

// UpdateProduct mutates a product using the provided mutator function.
func (tx *transaction) UpdateProduct(id string, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %q not found", id)
	}
	before := cloneProduct(current)
	working := cloneProduct(current)
	if err := mutator(&working); err != nil {
		return Product{}, err
	}
	working.ID = id
	working.UpdatedAt = tx.now
	tx.state.products[id] = cloneProduct(working)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: cloneProduct(working)})
	return cloneProduct(working), nil
}

// DeleteProduct removes a product from the transaction state.
func (tx *transaction) DeleteProduct(id string) error {
	current, ok := tx.state.products[id]
	if !ok {
		return fmt.Errorf("product %q not found", id)
	}
	delete(tx.state.products, id)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionDelete, Before: cloneProduct(current)})
	return nil
}

// AppendAuditEvent prepends the event and trims the trail to AuditTrailCap.
func (tx *transaction) AppendAuditEvent(ev AuditEvent) (AuditEvent, error) {
	if ev.Action == "" {
		return AuditEvent{}, errors.New("audit event requires an action")
	}
	if ev.ID == "" {
		ev.ID = tx.store.newID()
	}
	if ev.Occurred.IsZero() {
		ev.Occurred = tx.now
	}
	ev.CreatedAt = tx.now
	ev.UpdatedAt = tx.now
	tx.state.audit = append([]AuditEvent{ev}, tx.state.audit...)
	if len(tx.state.audit) > AuditTrailCap {
		tx.state.audit = tx.state.audit[:AuditTrailCap]
	}
	tx.recordChange(Change{Entity: domain.EntityAuditEvent, Action: domain.ActionCreate, After: ev})
	return ev, nil
}

// Read helpers ---------------------------------------------------------------

// GetCatalogueEntry retrieves an entry by ID from committed state.
func (s *Store) GetCatalogueEntry(id string) (CatalogueEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.entries[id]
	return e, ok
}

// ListCatalogueEntries returns committed entries in import order.
func (s *Store) ListCatalogueEntries() []CatalogueEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedEntries(s.state.entries)
}

// GetManualOverride retrieves an override by its exact raw name.
func (s *Store) GetManualOverride(extractedName string) (ManualOverride, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ov, ok := s.state.overrides[extractedName]
	return ov, ok
}

// FindManualOverride aliases GetManualOverride so the store can feed the
// ranker's override lookup directly.
func (s *Store) FindManualOverride(extractedName string) (ManualOverride, bool) {
	return s.GetManualOverride(extractedName)
}

// ListManualOverrides returns all overrides sorted by raw name.
func (s *Store) ListManualOverrides() []ManualOverride {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedOverrides(s.state.overrides)
}

// GetProduct retrieves a product by ID from committed state.
func (s *Store) GetProduct(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[id]
	if !ok {
		return Product{}, false
	}
	return cloneProduct(p), true
}

// ListProducts returns all products in creation order.
func (s *Store) ListProducts() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedProducts(s.state.products)
}

// ListAuditEvents returns the committed audit trail, newest first.
func (s *Store) ListAuditEvents() []AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AuditEvent(nil), s.state.audit...)
}
