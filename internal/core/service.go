package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"spherecore/internal/infra/persistence/memory"
	"spherecore/internal/materials"
	"spherecore/pkg/domain"
)

var (
	// ErrNoAtmosphere is returned by gas operations on airless bodies.
	ErrNoAtmosphere = errors.New("celestial body has no atmosphere")
	// ErrTransferFailed is returned when a material transfer is refused and rolled back.
	ErrTransferFailed = errors.New("material transfer failed")
	// ErrUnknownSphere is returned for a sphere kind the body does not own.
	ErrUnknownSphere = errors.New("unknown sphere")
)

// Service exposes transactional operations over the celestial bodies and
// biomes held by a PersistentStore.
type Service struct {
	store   PersistentStore
	engine  *RulesEngine
	now     func() time.Time
	logger  Logger
	clock   Clock
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	lookup  MaterialLookup
	physics Physics

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger used for operations and bound spheres.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for audit timestamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAuditRecorder installs an audit trail sink.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithMetricsRecorder installs a metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithMaterialLookup replaces the embedded material catalog.
func WithMaterialLookup(lookup MaterialLookup) Option {
	return func(s *Service) {
		if lookup != nil {
			s.lookup = lookup
		}
	}
}

// WithPhysics overrides the physical constants bound to every body.
func WithPhysics(p Physics) Option {
	return func(s *Service) {
		s.physics = p.WithDefaults()
	}
}

// WithRandomSource sets the random source used for life discovery.
func WithRandomSource(rng *rand.Rand) Option {
	return func(s *Service) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		engine:  extractRulesEngine(store),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		physics: domain.DefaultPhysics(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.lookup == nil {
		cat, err := materials.Default()
		if err != nil {
			svc.logger.Error("load embedded material catalog", "error", err)
		} else {
			svc.lookup = cat
		}
	}
	if svc.rng == nil {
		seed := uint64(time.Now().UnixNano())
		svc.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	svc.now = selectNowFunc(store, svc.clock)
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// RulesEngine returns the engine evaluated by the store, if it exposes one.
func (s *Service) RulesEngine() *RulesEngine {
	return s.engine
}

// Environment returns the lookup, physics, and logger bound to every body the
// service hands out or mutates.
func (s *Service) Environment() domain.Environment {
	return domain.Environment{Lookup: s.lookup, Physics: s.physics, Logger: s.logger}
}

func extractRulesEngine(store PersistentStore) *RulesEngine {
	if provider, ok := store.(interface{ RulesEngine() *RulesEngine }); ok {
		return provider.RulesEngine()
	}
	return nil
}

func selectNowFunc(store PersistentStore, clock Clock) func() time.Time {
	if clock != nil {
		return func() time.Time { return clock.Now() }
	}
	if provider, ok := store.(interface{ NowFunc() func() time.Time }); ok {
		if fn := provider.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	return func() time.Time { return time.Now().UTC() }
}

type operationMeta struct {
	entity EntityType
	action Action
}

var auditedOperations = map[string]operationMeta{
	"create_body":         {EntityCelestialBody, ActionCreate},
	"delete_body":         {EntityCelestialBody, ActionDelete},
	"add_material":        {EntityCelestialBody, ActionUpdate},
	"remove_material":     {EntityCelestialBody, ActionUpdate},
	"add_gas":             {EntityCelestialBody, ActionUpdate},
	"remove_gas":          {EntityCelestialBody, ActionUpdate},
	"transfer_material":   {EntityCelestialBody, ActionUpdate},
	"introduce_biome":     {EntityCelestialBody, ActionUpdate},
	"remove_biome":        {EntityCelestialBody, ActionUpdate},
	"capture_base_values": {EntityCelestialBody, ActionUpdate},
	"reset_body":          {EntityCelestialBody, ActionUpdate},
	"tick_body":           {EntityCelestialBody, ActionUpdate},
	"tick_all":            {EntityCelestialBody, ActionUpdate},
	"discover_life":       {EntityCelestialBody, ActionUpdate},
	"extract_volatiles":   {EntityCelestialBody, ActionUpdate},
	"import_checkpoint":   {EntityCelestialBody, ActionCreate},
	"create_biome":        {EntityBiome, ActionCreate},
	"update_biome":        {EntityBiome, ActionUpdate},
	"delete_biome":        {EntityBiome, ActionDelete},
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, duration, nil)
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// run executes fn in a store transaction with tracing, metrics, audit, and
// logging around it. fn reports the id of the entity it touched.
func (s *Service) run(ctx context.Context, op, entityID string, fn func(tx Transaction) (string, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		id, err := fn(tx)
		if id != "" {
			entityID = id
		}
		return err
	})
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", v.Severity, "entity_id", v.EntityID, "message", v.Message)
	}
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
		s.recordAudit(ctx, op, entityID, duration, err)
		return res, err
	}
	s.logger.Debug("operation completed", "operation", op, "entity_id", entityID, "duration", duration)
	s.recordAuditSuccess(ctx, op, entityID, duration)
	return res, nil
}

func (s *Service) bind(b *CelestialBody) *CelestialBody {
	b.Bind(s.Environment())
	return b
}

func (s *Service) updateBody(tx Transaction, id string, mutator func(*CelestialBody) error) (CelestialBody, error) {
	updated, err := tx.UpdateBody(id, func(b *CelestialBody) error {
		return mutator(s.bind(b))
	})
	if err != nil {
		return CelestialBody{}, err
	}
	return *s.bind(&updated), nil
}

// GetBody returns a committed body bound to the service environment. Copies
// of the returned value must be rebound before their spheres are mutated.
func (s *Service) GetBody(id string) (CelestialBody, bool) {
	b, ok := s.store.GetBody(id)
	if !ok {
		return CelestialBody{}, false
	}
	return *s.bind(&b), true
}

// ListBodies returns every committed body ordered by id.
func (s *Service) ListBodies() []CelestialBody {
	bodies := s.store.ListBodies()
	for i := range bodies {
		s.bind(&bodies[i])
	}
	return bodies
}

// ListBiomes returns every biome definition ordered by id.
func (s *Service) ListBiomes() []Biome {
	return s.store.ListBiomes()
}

// CreateBody persists a new celestial body. Missing spheres are created with defaults.
func (s *Service) CreateBody(ctx context.Context, body CelestialBody) (CelestialBody, Result, error) {
	var created CelestialBody
	res, err := s.run(ctx, "create_body", body.ID, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateBody(body)
		return created.ID, err
	})
	if err == nil {
		s.bind(&created)
	}
	return created, res, err
}

// DeleteBody removes a celestial body.
func (s *Service) DeleteBody(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_body", id, func(tx Transaction) (string, error) {
		return id, tx.DeleteBody(id)
	})
}

func sphereOf(b *CelestialBody, kind SphereKind) (domain.Sphere, error) {
	sphere, ok := b.Sphere(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownSphere, kind, b.ID)
	}
	return sphere, nil
}

// AddMaterial adds amount kg of a material to one sphere of a body. layer
// selects the geosphere layer and must be empty for other spheres.
func (s *Service) AddMaterial(ctx context.Context, bodyID string, kind SphereKind, name string, amount float64, layer Layer) (CelestialBody, Result, error) {
	var updated CelestialBody
	res, err := s.run(ctx, "add_material", bodyID, func(tx Transaction) (string, error) {
		var err error
		updated, err = s.updateBody(tx, bodyID, func(b *CelestialBody) error {
			sphere, err := sphereOf(b, kind)
			if err != nil {
				return err
			}
			return sphere.AddMaterial(name, amount, layer)
		})
		return bodyID, err
	})
	return updated, res, err
}

// RemoveMaterial withdraws up to amount kg of a material and returns the
// mass actually removed.
func (s *Service) RemoveMaterial(ctx context.Context, bodyID string, kind SphereKind, name string, amount float64, layer Layer) (float64, Result, error) {
	var removed float64
	res, err := s.run(ctx, "remove_material", bodyID, func(tx Transaction) (string, error) {
		_, err := s.updateBody(tx, bodyID, func(b *CelestialBody) error {
			sphere, err := sphereOf(b, kind)
			if err != nil {
				return err
			}
			removed, err = sphere.RemoveMaterial(name, amount, layer)
			return err
		})
		return bodyID, err
	})
	if err != nil {
		removed = 0
	}
	return removed, res, err
}

// AddGas adds mass kg of a gas to a body's atmosphere.
func (s *Service) AddGas(ctx context.Context, bodyID, formulaOrID string, mass float64) (domain.Gas, Result, error) {
	var gas domain.Gas
	res, err := s.run(ctx, "add_gas", bodyID, func(tx Transaction) (string, error) {
		_, err := s.updateBody(tx, bodyID, func(b *CelestialBody) error {
			if b.Atmosphere == nil {
				return fmt.Errorf("%w: %s", ErrNoAtmosphere, bodyID)
			}
			var err error
			gas, err = b.Atmosphere.AddGas(formulaOrID, mass)
			return err
		})
		return bodyID, err
	})
	return gas, res, err
}

// RemoveGas withdraws up to mass kg of a gas and returns the mass removed.
func (s *Service) RemoveGas(ctx context.Context, bodyID, formulaOrID string, mass float64) (float64, Result, error) {
	var removed float64
	res, err := s.run(ctx, "remove_gas", bodyID, func(tx Transaction) (string, error) {
		_, err := s.updateBody(tx, bodyID, func(b *CelestialBody) error {
			if b.Atmosphere == nil {
				return fmt.Errorf("%w: %s", ErrNoAtmosphere, bodyID)
			}
			var err error
			removed, err = b.Atmosphere.RemoveGas(formulaOrID, mass)
			return err
		})
		return bodyID, err
	})
	if err != nil {
		removed = 0
	}
	return removed, res, err
}

// TransferRequest names the source and target spheres of a transfer. The
// bodies may be the same or different.
type TransferRequest struct {
	SourceBody   string
	SourceSphere SphereKind
	TargetBody   string
	TargetSphere SphereKind
	Material     string
	Amount       float64
}

// TransferMaterial moves material between two spheres atomically. A refused
// transfer returns ErrTransferFailed and commits nothing.
func (s *Service) TransferMaterial(ctx context.Context, req TransferRequest) (Result, error) {
	return s.run(ctx, "transfer_material", req.SourceBody, func(tx Transaction) (string, error) {
		move := func(source, target *CelestialBody) error {
			from, err := sphereOf(source, req.SourceSphere)
			if err != nil {
				return err
			}
			to, err := sphereOf(target, req.TargetSphere)
			if err != nil {
				return err
			}
			if !domain.Transfer(from, to, req.Material, req.Amount) {
				return fmt.Errorf("%w: %g kg %s from %s/%s to %s/%s", ErrTransferFailed,
					req.Amount, req.Material, req.SourceBody, req.SourceSphere, req.TargetBody, req.TargetSphere)
			}
			return nil
		}
		if req.TargetBody == "" || req.TargetBody == req.SourceBody {
			_, err := s.updateBody(tx, req.SourceBody, func(b *CelestialBody) error {
				return move(b, b)
			})
			return req.SourceBody, err
		}
		_, err := tx.UpdateBodies([]string{req.SourceBody, req.TargetBody}, func(bodies []*CelestialBody) error {
			return move(s.bind(bodies[0]), s.bind(bodies[1]))
		})
		return req.SourceBody, err
	})
}

// CreateBiome persists a standalone biome definition.
func (s *Service) CreateBiome(ctx context.Context, biome Biome) (Biome, Result, error) {
	var created Biome
	res, err := s.run(ctx, "create_biome", biome.ID, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateBiome(biome)
		return created.ID, err
	})
	return created, res, err
}

// UpdateBiome mutates a biome definition. Bodies that already link the biome
// keep the copy they linked.
func (s *Service) UpdateBiome(ctx context.Context, id string, mutator func(*Biome) error) (Biome, Result, error) {
	var updated Biome
	res, err := s.run(ctx, "update_biome", id, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateBiome(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteBiome removes a biome definition that no body links.
func (s *Service) DeleteBiome(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_biome", id, func(tx Transaction) (string, error) {
		return id, tx.DeleteBiome(id)
	})
}

// IntroduceBiome links a stored biome into a body's biosphere. Linking an
// already linked biome is a no-op.
func (s *Service) IntroduceBiome(ctx context.Context, bodyID, biomeID string) (CelestialBody, Result, error) {
	return s.linkBiome(ctx, "introduce_biome", bodyID, biomeID, func(bio *domain.Biosphere, biome Biome) {
		bio.IntroduceBiome(biome)
	})
}

// RemoveBiome unlinks a biome from a body's biosphere.
func (s *Service) RemoveBiome(ctx context.Context, bodyID, biomeID string) (CelestialBody, Result, error) {
	return s.linkBiome(ctx, "remove_biome", bodyID, biomeID, func(bio *domain.Biosphere, biome Biome) {
		bio.RemoveBiome(biome)
	})
}

func (s *Service) linkBiome(ctx context.Context, op, bodyID, biomeID string, apply func(*domain.Biosphere, Biome)) (CelestialBody, Result, error) {
	var updated CelestialBody
	res, err := s.run(ctx, op, bodyID, func(tx Transaction) (string, error) {
		biome, ok := tx.FindBiome(biomeID)
		if !ok {
			return bodyID, ErrNotFound{Entity: EntityBiome, ID: biomeID}
		}
		var err error
		updated, err = s.updateBody(tx, bodyID, func(b *CelestialBody) error {
			apply(b.Biosphere, biome)
			return nil
		})
		return bodyID, err
	})
	return updated, res, err
}

// CaptureBaseValues records every sphere's current state as the body's reset point.
func (s *Service) CaptureBaseValues(ctx context.Context, bodyID string) (Result, error) {
	return s.run(ctx, "capture_base_values", bodyID, func(tx Transaction) (string, error) {
		_, err := s.updateBody(tx, bodyID, func(b *CelestialBody) error {
			b.CaptureBaseValues()
			return nil
		})
		return bodyID, err
	})
}

// ResetBody restores a body from its captured base values. It reports whether
// any sphere had base values to restore.
func (s *Service) ResetBody(ctx context.Context, bodyID string) (bool, Result, error) {
	var restored bool
	res, err := s.run(ctx, "reset_body", bodyID, func(tx Transaction) (string, error) {
		_, err := s.updateBody(tx, bodyID, func(b *CelestialBody) error {
			var err error
			restored, err = b.Reset()
			return err
		})
		return bodyID, err
	})
	return restored, res, err
}

// TickReport summarizes one simulation step of a body.
type TickReport struct {
	BodyID             string                  `json:"body_id"`
	WaterCycle         domain.WaterCycleResult `json:"water_cycle"`
	GeologicalActivity float64                 `json:"geological_activity"`
	Habitability       float64                 `json:"habitability"`
	BiodiversityIndex  float64                 `json:"biodiversity_index"`
}

func tickBody(b *CelestialBody) (TickReport, error) {
	report := TickReport{BodyID: b.ID}
	cycle, err := b.Hydrosphere.WaterCycleTick()
	if err != nil {
		return report, fmt.Errorf("water cycle on %s: %w", b.ID, err)
	}
	report.WaterCycle = cycle
	report.GeologicalActivity = b.Geosphere.UpdateGeologicalActivity()
	b.Biosphere.UpdateScores()
	report.Habitability = b.Biosphere.HabitableRatio
	report.BiodiversityIndex = b.Biosphere.BiodiversityIndex
	return report, nil
}

// Tick advances one body by a single simulation step: the water cycle runs,
// geological activity is recomputed, and biosphere scores are refreshed.
func (s *Service) Tick(ctx context.Context, bodyID string) (TickReport, Result, error) {
	var report TickReport
	res, err := s.run(ctx, "tick_body", bodyID, func(tx Transaction) (string, error) {
		_, err := s.updateBody(tx, bodyID, func(b *CelestialBody) error {
			var err error
			report, err = tickBody(b)
			return err
		})
		return bodyID, err
	})
	return report, res, err
}

// TickAll advances every body by one step in a single transaction.
func (s *Service) TickAll(ctx context.Context) ([]TickReport, Result, error) {
	var reports []TickReport
	res, err := s.run(ctx, "tick_all", "", func(tx Transaction) (string, error) {
		bodies := tx.Snapshot().ListBodies()
		if len(bodies) == 0 {
			return "", nil
		}
		ids := make([]string, len(bodies))
		for i, b := range bodies {
			ids[i] = b.ID
		}
		reports = make([]TickReport, 0, len(ids))
		_, err := tx.UpdateBodies(ids, func(working []*CelestialBody) error {
			for _, b := range working {
				report, err := tickBody(s.bind(b))
				if err != nil {
					return err
				}
				reports = append(reports, report)
			}
			return nil
		})
		return "", err
	})
	if err != nil {
		return nil, res, err
	}
	return reports, res, nil
}

// DiscoverLife rolls for new life on a body using the service random source.
func (s *Service) DiscoverLife(ctx context.Context, bodyID string) ([]domain.LifeForm, Result, error) {
	var found []domain.LifeForm
	res, err := s.run(ctx, "discover_life", bodyID, func(tx Transaction) (string, error) {
		_, err := s.updateBody(tx, bodyID, func(b *CelestialBody) error {
			s.rngMu.Lock()
			found = b.Biosphere.DiscoverLife(s.rng)
			s.rngMu.Unlock()
			return nil
		})
		return bodyID, err
	})
	if err != nil {
		return nil, res, err
	}
	return found, res, nil
}

// ExtractVolatiles warms a body's crust by temperatureIncrease K and releases
// trapped volatiles into its atmosphere.
func (s *Service) ExtractVolatiles(ctx context.Context, bodyID string, temperatureIncrease float64) (map[string]float64, Result, error) {
	var released map[string]float64
	res, err := s.run(ctx, "extract_volatiles", bodyID, func(tx Transaction) (string, error) {
		_, err := s.updateBody(tx, bodyID, func(b *CelestialBody) error {
			var err error
			released, err = b.Geosphere.ExtractVolatiles(temperatureIncrease)
			return err
		})
		return bodyID, err
	})
	if err != nil {
		return nil, res, err
	}
	return released, res, nil
}
