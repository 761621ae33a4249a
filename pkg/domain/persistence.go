package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateBody(CelestialBody) (CelestialBody, error)
	UpdateBody(id string, mutator func(*CelestialBody) error) (CelestialBody, error)
	// UpdateBodies hands every listed body to the mutator at once so that
	// cross-body operations commit or fail together.
	UpdateBodies(ids []string, mutator func([]*CelestialBody) error) ([]CelestialBody, error)
	DeleteBody(id string) error
	FindBody(id string) (CelestialBody, bool)
	CreateBiome(Biome) (Biome, error)
	UpdateBiome(id string, mutator func(*Biome) error) (Biome, error)
	DeleteBiome(id string) error
	FindBiome(id string) (Biome, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListBodies() []CelestialBody
	ListBiomes() []Biome
	FindBody(id string) (CelestialBody, bool)
	FindBiome(id string) (Biome, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetBody(id string) (CelestialBody, bool)
	ListBodies() []CelestialBody
	GetBiome(id string) (Biome, bool)
	ListBiomes() []Biome
}
