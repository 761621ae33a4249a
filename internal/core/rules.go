package core

import (
	"math"

	"spherecore/pkg/domain"
)

// NewRulesEngine constructs an engine instance with no rules registered.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewCompositionBalanceRule())
	engine.Register(NewNonNegativeMassRule())
	engine.Register(NewMassLedgerRule())
	engine.Register(NewHabitabilityBoundsRule())
	return engine
}

const (
	// compositionTolerance is the allowed deviation, in percentage points, of a
	// composition sum from 100.
	compositionTolerance = 0.01
	// ledgerTolerance is the relative deviation allowed between a pool's row
	// sum and its declared total mass.
	ledgerTolerance = 1e-9
)

// changedBodies returns the post-change state of every created or updated body.
func changedBodies(changes []Change) []CelestialBody {
	var out []CelestialBody
	for _, c := range changes {
		if c.Entity != EntityCelestialBody || c.Action == ActionDelete {
			continue
		}
		if b, ok := c.After.(CelestialBody); ok {
			out = append(out, b)
		}
	}
	return out
}

// pool is a named material pool inspected by the bookkeeping rules.
type pool struct {
	name string
	domain.Pool
}

func bodyPools(b CelestialBody) []pool {
	var out []pool
	if b.Geosphere != nil {
		for _, layer := range domain.GeosphereLayers {
			if l, ok := b.Geosphere.Layers[layer]; ok && l != nil {
				out = append(out, pool{name: "geosphere." + string(layer), Pool: l.Pool})
			}
		}
	}
	if b.Hydrosphere != nil {
		out = append(out, pool{name: "hydrosphere", Pool: b.Hydrosphere.Pool})
	}
	if b.Biosphere != nil {
		out = append(out, pool{name: "biosphere", Pool: b.Biosphere.Pool})
	}
	return out
}

func sumValues(m map[string]float64) float64 {
	var total float64
	for _, v := range m {
		total += v
	}
	return total
}

func withinRelative(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
