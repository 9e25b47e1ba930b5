package core

import (
	"fmt"

	"kittycore/internal/infra/persistence/badger"
	"kittycore/internal/infra/persistence/memory"
	"kittycore/internal/infra/persistence/postgres"
	"kittycore/internal/infra/persistence/sqlite"
	"kittycore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageBadger   StorageDriver = "badger"   // embedded badger directory
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// StorageConfig selects and configures the registry backend.
type StorageConfig struct {
	Driver      StorageDriver `env:"DRIVER" envDefault:"sqlite"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"kittycore.db"`
	PostgresDSN string        `env:"POSTGRES_DSN"`
	BadgerPath  string        `env:"BADGER_PATH" envDefault:"kittycore-badger"`
}

// OpenPersistentStore opens the backend described by cfg. An empty driver
// selects sqlite.
func OpenPersistentStore(cfg StorageConfig, engine *RulesEngine) (PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine)
	case StorageBadger:
		return badger.NewStore(badger.Config{Path: cfg.BadgerPath, SyncWrites: true}, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
