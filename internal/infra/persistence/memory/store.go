// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spherecore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// CelestialBody aliases domain.CelestialBody for in-memory persistence operations.
	CelestialBody = domain.CelestialBody
	// Biome aliases domain.Biome.
	Biome = domain.Biome
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

type memoryState struct {
	bodies map[string]CelestialBody
	biomes map[string]Biome
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Bodies map[string]CelestialBody `json:"bodies"`
	Biomes map[string]Biome         `json:"biomes"`
}

func newMemoryState() memoryState {
	return memoryState{
		bodies: make(map[string]CelestialBody),
		biomes: make(map[string]Biome),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Bodies: make(map[string]CelestialBody, len(state.bodies)),
		Biomes: make(map[string]Biome, len(state.biomes)),
	}
	for k, v := range state.bodies {
		s.Bodies[k] = cloneBody(v)
	}
	for k, v := range state.biomes {
		s.Biomes[k] = domain.CloneBiome(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Bodies {
		state.bodies[k] = cloneBody(v)
	}
	for k, v := range s.Biomes {
		state.biomes[k] = domain.CloneBiome(v)
	}
	return state
}

// migrateSnapshot normalizes snapshots written by older releases or by hand:
// map keys win over embedded ids, missing spheres are created, and unnamed
// biomes are dropped.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Bodies == nil {
		snapshot.Bodies = map[string]CelestialBody{}
	}
	if snapshot.Biomes == nil {
		snapshot.Biomes = map[string]Biome{}
	}
	for id, biome := range snapshot.Biomes {
		if strings.TrimSpace(biome.Name) == "" {
			delete(snapshot.Biomes, id)
			continue
		}
		biome.ID = id
		snapshot.Biomes[id] = biome
	}
	for id, body := range snapshot.Bodies {
		body.ID = id
		if strings.TrimSpace(body.Name) == "" {
			body.Name = id
		}
		body.EnsureSpheres()
		snapshot.Bodies[id] = body
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.bodies {
		cloned.bodies[k] = cloneBody(v)
	}
	for k, v := range s.biomes {
		cloned.biomes[k] = domain.CloneBiome(v)
	}
	return cloned
}

// cloneBody deep-copies a body. The copy's spheres refer to an internal
// pointer; callers that mutate the value must Rebind it first.
func cloneBody(b CelestialBody) CelestialBody {
	return *b.Clone()
}

func sortedBodies(in map[string]CelestialBody) []CelestialBody {
	out := make([]CelestialBody, 0, len(in))
	for _, b := range in {
		out = append(out, cloneBody(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedBiomes(in map[string]Biome) []Biome {
	out := make([]Biome, 0, len(in))
	for _, b := range in {
		out = append(out, domain.CloneBiome(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
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
	return uuid.NewString()
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

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

// Transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// TransactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListBodies() []CelestialBody { return sortedBodies(v.state.bodies) }

func (v transactionView) ListBiomes() []Biome { return sortedBiomes(v.state.biomes) }

func (v transactionView) FindBody(id string) (CelestialBody, bool) {
	b, ok := v.state.bodies[id]
	if !ok {
		return CelestialBody{}, false
	}
	return cloneBody(b), true
}

func (v transactionView) FindBiome(id string) (Biome, bool) {
	b, ok := v.state.biomes[id]
	if !ok {
		return Biome{}, false
	}
	return domain.CloneBiome(b), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy is committed only when fn succeeds and no blocking rule fires.
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

// FindBody exposes body lookup within the transaction scope.
func (tx *transaction) FindBody(id string) (CelestialBody, bool) {
	return transactionView{state: &tx.state}.FindBody(id)
}

// FindBiome exposes biome lookup within the transaction scope.
func (tx *transaction) FindBiome(id string) (Biome, bool) {
	return transactionView{state: &tx.state}.FindBiome(id)
}

// CreateBody stores a new celestial body, creating any missing spheres.
func (tx *transaction) CreateBody(b CelestialBody) (CelestialBody, error) {
	if strings.TrimSpace(b.Name) == "" {
		return CelestialBody{}, fmt.Errorf("celestial body name required")
	}
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.bodies[b.ID]; exists {
		return CelestialBody{}, fmt.Errorf("celestial body %q already exists", b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	b.EnsureSpheres()
	tx.state.bodies[b.ID] = cloneBody(b)
	tx.recordChange(Change{Entity: domain.EntityCelestialBody, Action: domain.ActionCreate, After: cloneBody(b)})
	return cloneBody(b), nil
}

// UpdateBody mutates a body using the provided mutator function. The mutator
// receives a rebound working copy; the stored value changes only on success.
func (tx *transaction) UpdateBody(id string, mutator func(*CelestialBody) error) (CelestialBody, error) {
	updated, err := tx.UpdateBodies([]string{id}, func(bodies []*CelestialBody) error {
		return mutator(bodies[0])
	})
	if err != nil {
		return CelestialBody{}, err
	}
	return updated[0], nil
}

// UpdateBodies hands working copies of every listed body to the mutator at
// once and stores them together.
func (tx *transaction) UpdateBodies(ids []string, mutator func([]*CelestialBody) error) ([]CelestialBody, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no celestial bodies requested")
	}
	seen := make(map[string]struct{}, len(ids))
	before := make([]CelestialBody, len(ids))
	working := make([]*CelestialBody, len(ids))
	for i, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("celestial body %q requested twice", id)
		}
		seen[id] = struct{}{}
		current, ok := tx.state.bodies[id]
		if !ok {
			return nil, domain.NotFoundError{Entity: domain.EntityCelestialBody, ID: id}
		}
		before[i] = cloneBody(current)
		working[i] = current.Clone()
	}
	if err := mutator(working); err != nil {
		return nil, err
	}
	out := make([]CelestialBody, len(ids))
	for i, id := range ids {
		b := working[i]
		b.ID = id
		b.CreatedAt = before[i].CreatedAt
		b.UpdatedAt = tx.now
		b.EnsureSpheres()
		tx.state.bodies[id] = cloneBody(*b)
		out[i] = cloneBody(*b)
		tx.recordChange(Change{Entity: domain.EntityCelestialBody, Action: domain.ActionUpdate, Before: before[i], After: cloneBody(*b)})
	}
	return out, nil
}

// DeleteBody removes a body from the transaction state.
func (tx *transaction) DeleteBody(id string) error {
	current, ok := tx.state.bodies[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityCelestialBody, ID: id}
	}
	delete(tx.state.bodies, id)
	tx.recordChange(Change{Entity: domain.EntityCelestialBody, Action: domain.ActionDelete, Before: cloneBody(current)})
	return nil
}

// CreateBiome stores a new biome definition.
func (tx *transaction) CreateBiome(b Biome) (Biome, error) {
	if strings.TrimSpace(b.Name) == "" {
		return Biome{}, fmt.Errorf("biome name required")
	}
	if b.TemperatureRange[0] > b.TemperatureRange[1] || b.HumidityRange[0] > b.HumidityRange[1] {
		return Biome{}, fmt.Errorf("biome %q has an inverted range", b.Name)
	}
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.biomes[b.ID]; exists {
		return Biome{}, fmt.Errorf("biome %q already exists", b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.biomes[b.ID] = domain.CloneBiome(b)
	tx.recordChange(Change{Entity: domain.EntityBiome, Action: domain.ActionCreate, After: domain.CloneBiome(b)})
	return domain.CloneBiome(b), nil
}

// UpdateBiome mutates a biome definition.
func (tx *transaction) UpdateBiome(id string, mutator func(*Biome) error) (Biome, error) {
	current, ok := tx.state.biomes[id]
	if !ok {
		return Biome{}, domain.NotFoundError{Entity: domain.EntityBiome, ID: id}
	}
	before := domain.CloneBiome(current)
	if err := mutator(&current); err != nil {
		return Biome{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.biomes[id] = domain.CloneBiome(current)
	tx.recordChange(Change{Entity: domain.EntityBiome, Action: domain.ActionUpdate, Before: before, After: domain.CloneBiome(current)})
	return domain.CloneBiome(current), nil
}

// DeleteBiome removes a biome definition that no biosphere links.
func (tx *transaction) DeleteBiome(id string) error {
	current, ok := tx.state.biomes[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityBiome, ID: id}
	}
	for _, body := range tx.state.bodies {
		if body.Biosphere == nil {
			continue
		}
		if _, linked := body.Biosphere.Biomes[id]; linked {
			return fmt.Errorf("biome %q still linked by celestial body %q", id, body.ID)
		}
	}
	delete(tx.state.biomes, id)
	tx.recordChange(Change{Entity: domain.EntityBiome, Action: domain.ActionDelete, Before: domain.CloneBiome(current)})
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetBody retrieves a celestial body by ID from committed state.
func (s *Store) GetBody(id string) (CelestialBody, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.bodies[id]
	if !ok {
		return CelestialBody{}, false
	}
	return cloneBody(b), true
}

// ListBodies returns all celestial bodies from committed state ordered by ID.
func (s *Store) ListBodies() []CelestialBody {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedBodies(s.state.bodies)
}

// GetBiome retrieves a biome definition by ID.
func (s *Store) GetBiome(id string) (Biome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.biomes[id]
	if !ok {
		return Biome{}, false
	}
	return domain.CloneBiome(b), true
}

// ListBiomes returns all biome definitions ordered by ID.
func (s *Store) ListBiomes() []Biome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedBiomes(s.state.biomes)
}
