package core

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v2"

	"spherecore/internal/infra/persistence/memory"
	"spherecore/internal/materials"
	"spherecore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// Environment variables read by OpenPersistentStore and OptionsFromEnv.
const (
	EnvStorageDriver = "SPHERECORE_STORAGE_DRIVER"
	EnvSQLitePath    = "SPHERECORE_SQLITE_PATH"
	EnvPostgresDSN   = "SPHERECORE_POSTGRES_DSN"
	EnvMaterialsFile = "SPHERECORE_MATERIALS_FILE"
	EnvPhysicsFile   = "SPHERECORE_PHYSICS_FILE"
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// StorageConfig selects and parameterizes a persistent store.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// StorageConfigFromEnv reads the storage environment variables. The driver
// defaults to sqlite.
//
//	SPHERECORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	SPHERECORE_SQLITE_PATH: path to sqlite file (default ./spherecore.db)
//	SPHERECORE_POSTGRES_DSN: postgres DSN when driver=postgres
func StorageConfigFromEnv() StorageConfig {
	cfg := StorageConfig{
		Driver:      StorageDriver(os.Getenv(EnvStorageDriver)),
		SQLitePath:  os.Getenv(EnvSQLitePath),
		PostgresDSN: os.Getenv(EnvPostgresDSN),
	}
	if cfg.Driver == "" {
		cfg.Driver = StorageSQLite
	}
	return cfg
}

// OpenPersistentStore selects a backend using environment variables.
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	return OpenStorage(context.Background(), StorageConfigFromEnv(), engine)
}

// OpenStorage opens the backend named by cfg. Stores holding external
// resources implement io.Closer.
func OpenStorage(ctx context.Context, cfg StorageConfig, engine *RulesEngine) (PersistentStore, error) {
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case "", StorageSQLite:
		return NewSQLiteStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// CloseStore closes store when it holds external resources.
func CloseStore(store PersistentStore) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// LoadPhysicsFile reads physical constant overrides from a YAML file. Fields
// left out keep their defaults.
func LoadPhysicsFile(path string) (Physics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Physics{}, err
	}
	p := domain.DefaultPhysics()
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return Physics{}, fmt.Errorf("decode physics %s: %w", path, err)
	}
	return p, nil
}

// OptionsFromEnv builds service options from SPHERECORE_MATERIALS_FILE and
// SPHERECORE_PHYSICS_FILE. Unset variables contribute nothing.
func OptionsFromEnv() ([]Option, error) {
	var opts []Option
	if path := os.Getenv(EnvMaterialsFile); path != "" {
		cat, err := materials.NewEmbedded(materials.DefaultMemoSize)
		if err != nil {
			return nil, err
		}
		if _, err := cat.LoadFile(path); err != nil {
			return nil, err
		}
		opts = append(opts, WithMaterialLookup(cat))
	}
	if path := os.Getenv(EnvPhysicsFile); path != "" {
		p, err := LoadPhysicsFile(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithPhysics(p))
	}
	return opts, nil
}
