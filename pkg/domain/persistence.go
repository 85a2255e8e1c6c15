package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateCatalogueEntry(CatalogueEntry) (CatalogueEntry, error)
	UpdateCatalogueEntry(id string, mutator func(*CatalogueEntry) error) (CatalogueEntry, error)
	DeleteCatalogueEntry(id string) error
	// PutManualOverride upserts by ExtractedName: a second write for the
	// same raw name replaces the first.
	PutManualOverride(ManualOverride) (ManualOverride, error)
	DeleteManualOverride(extractedName string) error
	CreateProduct(Product) (Product, error)
	UpdateProduct(id string, mutator func(*Product) error) (Product, error)
	DeleteProduct(id string) error
	// AppendAuditEvent prepends the event and trims the trail to its cap.
	AppendAuditEvent(AuditEvent) (AuditEvent, error)
	FindCatalogueEntry(id string) (CatalogueEntry, bool)
	FindManualOverride(extractedName string) (ManualOverride, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListCatalogueEntries() []CatalogueEntry
	ListManualOverrides() []ManualOverride
	ListProducts() []Product
	ListAuditEvents() []AuditEvent
	FindCatalogueEntry(id string) (CatalogueEntry, bool)
	FindManualOverride(extractedName string) (ManualOverride, bool)
	FindProduct(id string) (Product, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetCatalogueEntry(id string) (CatalogueEntry, bool)
	ListCatalogueEntries() []CatalogueEntry
	GetManualOverride(extractedName string) (ManualOverride, bool)
	ListManualOverrides() []ManualOverride
	GetProduct(id string) (Product, bool)
	ListProducts() []Product
	ListAuditEvents() []AuditEvent
}
