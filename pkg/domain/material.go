package domain

import (
	"fmt"
	"math"
	"strings"
)

// State is the natural phase of a material.
type State string

// Supported material phases.
const (
	StateSolid  State = "solid"
	StateLiquid State = "liquid"
	StateGas    State = "gas"
)

// Layer scopes a material row within a sphere. Only the geosphere defines
// named layers; every other sphere accepts LayerDefault alone.
type Layer string

// Geosphere layers.
const (
	LayerDefault Layer = ""
	LayerCrust   Layer = "crust"
	LayerMantle  Layer = "mantle"
	LayerCore    Layer = "core"
)

// GeosphereLayers lists the geosphere layers from the surface inwards.
var GeosphereLayers = []Layer{LayerCrust, LayerMantle, LayerCore}

// zeroEpsilon is the mass (kg) at or below which a row is considered depleted.
const zeroEpsilon = 1e-9

// MaterialProperties holds the physical properties of a catalog entry.
type MaterialProperties struct {
	// MolarMass is expressed in g/mol.
	MolarMass       float64 `json:"molar_mass" yaml:"molar_mass"`
	MeltingPoint    float64 `json:"melting_point" yaml:"melting_point"`
	BoilingPoint    float64 `json:"boiling_point" yaml:"boiling_point"`
	StateAtRoomTemp State   `json:"state_at_room_temp" yaml:"state_at_room_temp"`
	Density         float64 `json:"density,omitempty" yaml:"density,omitempty"`
	IsVolatile      bool    `json:"is_volatile,omitempty" yaml:"is_volatile,omitempty"`
}

// MaterialRecord is the canonical description of a material.
type MaterialRecord struct {
	ID              string             `json:"id" yaml:"id"`
	Name            string             `json:"name" yaml:"name"`
	ChemicalFormula string             `json:"chemical_formula" yaml:"chemical_formula"`
	Category        string             `json:"category,omitempty" yaml:"category,omitempty"`
	Properties      MaterialProperties `json:"properties" yaml:"properties"`
}

// DisplayName returns the record name, falling back to the canonical id.
func (r MaterialRecord) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// MaterialLookup resolves a material name, chemical formula, or canonical id
// to its catalog record. A miss reports false and is never synthesized.
type MaterialLookup interface {
	FindMaterial(identifier string) (MaterialRecord, bool)
}

// Material is a row in a sphere's material pool.
type Material struct {
	Name            string     `json:"name"`
	Amount          float64    `json:"amount"`
	State           State      `json:"state"`
	Layer           Layer      `json:"layer,omitempty"`
	CelestialBodyID string     `json:"celestial_body_id"`
	Sphere          SphereKind `json:"location"`
}

// Pool is a keyed material pool with a derived composition map.
type Pool struct {
	Materials map[string]Material `json:"materials"`
	// Composition maps material name to percent of TotalMass and is always
	// recomputed from Materials.
	Composition map[string]float64 `json:"composition"`
	TotalMass   float64            `json:"total_mass"`
}

// Amount returns the stored mass of the named row.
func (p Pool) Amount(name string) float64 {
	return p.Materials[name].Amount
}

// Sum returns the sum of row masses.
func (p Pool) Sum() float64 {
	var total float64
	for _, m := range p.Materials {
		total += m.Amount
	}
	return total
}

func (p *Pool) deposit(rec MaterialRecord, amount float64, owner string, kind SphereKind, layer Layer) {
	if p.Materials == nil {
		p.Materials = make(map[string]Material)
	}
	key := rec.DisplayName()
	row, ok := p.Materials[key]
	if !ok {
		row = Material{Name: key, State: rec.Properties.StateAtRoomTemp, Layer: layer, CelestialBodyID: owner, Sphere: kind}
	}
	row.Amount += amount
	p.Materials[key] = row
	p.recompute()
}

func (p *Pool) withdraw(key string, amount float64) (float64, error) {
	row, ok := p.Materials[key]
	if !ok || row.Amount <= zeroEpsilon {
		return 0, fmt.Errorf("%w: %s", ErrInsufficientQuantity, key)
	}
	removed := math.Min(amount, row.Amount)
	row.Amount -= removed
	if row.Amount <= zeroEpsilon {
		delete(p.Materials, key)
	} else {
		p.Materials[key] = row
	}
	p.recompute()
	return removed, nil
}

func (p *Pool) recompute() {
	p.TotalMass = p.Sum()
	p.Composition = make(map[string]float64, len(p.Materials))
	if p.TotalMass <= 0 {
		return
	}
	for name, m := range p.Materials {
		p.Composition[name] = m.Amount / p.TotalMass * 100
	}
}

func (p *Pool) rebind(owner string) {
	for k, m := range p.Materials {
		m.CelestialBodyID = owner
		p.Materials[k] = m
	}
}

func (p Pool) clone() Pool {
	return Pool{
		Materials:   cloneMaterials(p.Materials),
		Composition: cloneFloatMap(p.Composition),
		TotalMass:   p.TotalMass,
	}
}

func cloneMaterials(in map[string]Material) map[string]Material {
	if in == nil {
		return nil
	}
	out := make(map[string]Material, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneFloatMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func validAmount(amount float64) error {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}

func resolveMaterial(lookup MaterialLookup, identifier string) (MaterialRecord, error) {
	if lookup == nil {
		return MaterialRecord{}, fmt.Errorf("%w: %s (no lookup bound)", ErrUnknownMaterial, identifier)
	}
	rec, ok := lookup.FindMaterial(strings.TrimSpace(identifier))
	if !ok {
		return MaterialRecord{}, fmt.Errorf("%w: %s", ErrUnknownMaterial, identifier)
	}
	return rec, nil
}
