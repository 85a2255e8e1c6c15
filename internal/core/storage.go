package core

import (
	"fmt"
	"os"

	"specforge/internal/infra/persistence/memory"
	"specforge/internal/infra/persistence/postgres"
	"specforge/internal/infra/persistence/sqlite"
	"specforge/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// newMemoryStore builds the ephemeral backend used by NewInMemoryService.
func newMemoryStore(engine *RulesEngine) PersistentStore {
	return memory.NewStore(engine)
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	SPECFORGE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	SPECFORGE_SQLITE_PATH: path to sqlite file (default ./specforge.db)
//	SPECFORGE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("SPECFORGE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("SPECFORGE_SQLITE_PATH"), engine)
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("SPECFORGE_POSTGRES_DSN"), engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
