package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// GeoLayer is one geosphere layer. Volatiles is used by the crust only and maps
// a gas id to its trapped share, in percent of the layer mass; trapped volatiles
// are tracked outside the material pool.
type GeoLayer struct {
	Pool
	Volatiles map[string]float64 `json:"volatiles,omitempty"`
}

func (l *GeoLayer) clone() *GeoLayer {
	if l == nil {
		return nil
	}
	return &GeoLayer{Pool: l.Pool.clone(), Volatiles: cloneFloatMap(l.Volatiles)}
}

// GeoLayerValues is the reset checkpoint of a layer. Material rows are not
// part of it; RebuildMaterials re-derives them.
type GeoLayerValues struct {
	Composition map[string]float64 `json:"composition"`
	TotalMass   float64            `json:"total_mass"`
	Volatiles   map[string]float64 `json:"volatiles,omitempty"`
}

// Plate is a tectonic plate position tracker.
type Plate struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GeosphereBaseValues is the reset checkpoint of a geosphere.
type GeosphereBaseValues struct {
	Layers             map[Layer]GeoLayerValues `json:"layers"`
	Temperature        float64                  `json:"temperature"`
	Pressure           float64                  `json:"pressure"`
	GeologicalActivity float64                  `json:"geological_activity"`
	TectonicActivity   bool                     `json:"tectonic_activity"`
	RegolithDepth      float64                  `json:"regolith_depth"`
	WeatheringRate     float64                  `json:"weathering_rate"`
	Plates             []Plate                  `json:"plates,omitempty"`
}

func (v GeosphereBaseValues) clone() GeosphereBaseValues {
	cp := v
	cp.Layers = make(map[Layer]GeoLayerValues, len(v.Layers))
	for k, l := range v.Layers {
		cp.Layers[k] = GeoLayerValues{
			Composition: cloneFloatMap(l.Composition),
			TotalMass:   l.TotalMass,
			Volatiles:   cloneFloatMap(l.Volatiles),
		}
	}
	cp.Plates = append([]Plate(nil), v.Plates...)
	return cp
}

// Geosphere is the three-layer solid body. Gas-state materials are rejected.
type Geosphere struct {
	Layers      map[Layer]*GeoLayer `json:"layers"`
	Temperature float64             `json:"temperature"`
	Pressure    float64             `json:"pressure"`
	// GeologicalActivity is a 0-100 index.
	GeologicalActivity float64 `json:"geological_activity"`
	TectonicActivity   bool    `json:"tectonic_activity"`
	// RegolithDepth is in m, WeatheringRate in m per year.
	RegolithDepth  float64              `json:"regolith_depth"`
	WeatheringRate float64              `json:"weathering_rate"`
	Plates         []Plate              `json:"plates,omitempty"`
	BaseValues     *GeosphereBaseValues `json:"base_values,omitempty"`

	body *CelestialBody
}

// NewGeosphere returns a geosphere with three empty layers.
func NewGeosphere(temperature float64) *Geosphere {
	g := &Geosphere{Temperature: temperature, Layers: make(map[Layer]*GeoLayer, 3)}
	for _, l := range GeosphereLayers {
		g.Layers[l] = &GeoLayer{Pool: Pool{Materials: map[string]Material{}, Composition: map[string]float64{}}}
	}
	return g
}

// Kind implements Sphere.
func (g *Geosphere) Kind() SphereKind { return SphereGeosphere }

// Body implements Sphere.
func (g *Geosphere) Body() *CelestialBody {
	if g == nil {
		return nil
	}
	return g.body
}

func (g *Geosphere) lookup() MaterialLookup {
	if g.body == nil {
		return nil
	}
	return g.body.lookup()
}

func (g *Geosphere) owner() string {
	if g.body == nil {
		return ""
	}
	return g.body.ID
}

// Layer returns the named layer; LayerDefault selects the crust.
func (g *Geosphere) Layer(layer Layer) (*GeoLayer, error) {
	if layer == LayerDefault {
		layer = LayerCrust
	}
	switch layer {
	case LayerCrust, LayerMantle, LayerCore:
	default:
		return nil, fmt.Errorf("%w: geosphere has no layer %q", ErrInvalidLayer, layer)
	}
	if g.Layers == nil {
		g.Layers = make(map[Layer]*GeoLayer, 3)
	}
	l, ok := g.Layers[layer]
	if !ok || l == nil {
		l = &GeoLayer{}
		g.Layers[layer] = l
	}
	return l, nil
}

// AddMaterial implements Sphere. Gas-state materials are rejected with ErrForbiddenState.
func (g *Geosphere) AddMaterial(name string, amount float64, layer Layer) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	l, err := g.Layer(layer)
	if err != nil {
		return err
	}
	rec, err := resolveMaterial(g.lookup(), name)
	if err != nil {
		return err
	}
	if rec.Properties.StateAtRoomTemp == StateGas {
		return fmt.Errorf("%w: %s is a gas", ErrForbiddenState, rec.DisplayName())
	}
	if layer == LayerDefault {
		layer = LayerCrust
	}
	l.deposit(rec, amount, g.owner(), SphereGeosphere, layer)
	return nil
}

// RemoveMaterial implements Sphere.
func (g *Geosphere) RemoveMaterial(name string, amount float64, layer Layer) (float64, error) {
	if err := validAmount(amount); err != nil {
		return 0, err
	}
	l, err := g.Layer(layer)
	if err != nil {
		return 0, err
	}
	return l.withdraw(poolKey(g.lookup(), name), amount)
}

// TransferMaterial implements Sphere. Transfers draw from and deposit into the crust.
func (g *Geosphere) TransferMaterial(name string, amount float64, target Sphere) bool {
	return Transfer(g, target, name, amount)
}

func (g *Geosphere) available(name string) (float64, error) {
	if g == nil {
		return 0, ErrInsufficientQuantity
	}
	l, err := g.Layer(LayerCrust)
	if err != nil {
		return 0, err
	}
	return l.Amount(poolKey(g.lookup(), name)), nil
}

// ExtractMaterial removes up to amount of a crust material and returns what was taken.
func (g *Geosphere) ExtractMaterial(name string, amount float64) (float64, error) {
	return g.RemoveMaterial(name, amount, LayerCrust)
}

// TotalMass returns the mass of all three layers.
func (g *Geosphere) TotalMass() float64 {
	var total float64
	for _, l := range g.Layers {
		if l != nil {
			total += l.TotalMass
		}
	}
	return total
}

// VolatileReleaseFraction returns the share of trapped volatiles released by a
// temperature increase: min(ΔT/scale, cap), zero for ΔT ≤ 0.
func VolatileReleaseFraction(p Physics, temperatureIncrease float64) float64 {
	if temperatureIncrease <= 0 || math.IsNaN(temperatureIncrease) {
		return 0
	}
	p = p.WithDefaults()
	return math.Min(temperatureIncrease/p.VolatileReleaseScale, p.VolatileReleaseCap)
}

// ExtractVolatiles releases trapped crust volatiles into the owning body's
// atmosphere and returns the released mass per gas id. The geosphere and the
// atmosphere are restored if any gas cannot be added.
func (g *Geosphere) ExtractVolatiles(temperatureIncrease float64) (map[string]float64, error) {
	released := map[string]float64{}
	if g.body == nil || g.body.Atmosphere == nil {
		return released, nil
	}
	fraction := VolatileReleaseFraction(g.body.physics(), temperatureIncrease)
	if fraction == 0 {
		return released, nil
	}
	crust, err := g.Layer(LayerCrust)
	if err != nil {
		return nil, err
	}
	atm := g.body.Atmosphere
	restoreGeo := g.checkpoint()
	restoreAtm := atm.checkpoint()
	for _, id := range sortedKeys(crust.Volatiles) {
		pct := crust.Volatiles[id]
		mass := crust.TotalMass * pct / 100 * fraction
		if mass <= 0 {
			continue
		}
		gas, err := atm.AddGas(id, mass)
		if err != nil {
			restoreGeo()
			restoreAtm()
			return nil, fmt.Errorf("release %s: %w", id, err)
		}
		crust.Volatiles[id] = pct * (1 - fraction)
		released[gas.ID] += mass
	}
	return released, nil
}

// RebuildMaterials re-derives every layer's material rows from its composition
// and total mass.
func (g *Geosphere) RebuildMaterials() error {
	lookup := g.lookup()
	for _, layer := range GeosphereLayers {
		l, err := g.Layer(layer)
		if err != nil {
			return err
		}
		rows := make(map[string]Material, len(l.Composition))
		for _, name := range sortedKeys(l.Composition) {
			pct := l.Composition[name]
			amount := pct / 100 * l.TotalMass
			if amount <= zeroEpsilon {
				continue
			}
			rec, err := resolveMaterial(lookup, name)
			if err != nil {
				return fmt.Errorf("rebuild %s: %w", layer, err)
			}
			rows[rec.DisplayName()] = Material{
				Name:            rec.DisplayName(),
				Amount:          amount,
				State:           rec.Properties.StateAtRoomTemp,
				Layer:           layer,
				CelestialBodyID: g.owner(),
				Sphere:          SphereGeosphere,
			}
		}
		l.Materials = rows
		l.recompute()
	}
	return nil
}

// UpdateGeologicalActivity recomputes the activity index from interior heat,
// core mass share, and core iron content, and flags tectonic activity above 50.
func (g *Geosphere) UpdateGeologicalActivity() float64 {
	heat := math.Min(math.Max(g.Temperature-200, 0)/20, 40)
	var coreShare, iron float64
	if total := g.TotalMass(); total > 0 {
		if core, err := g.Layer(LayerCore); err == nil {
			coreShare = core.TotalMass / total
			iron = core.Composition["Iron"] / 100
		}
	}
	activity := heat + coreShare*40 + iron*20
	g.GeologicalActivity = math.Min(math.Max(activity, 0), 100)
	g.TectonicActivity = g.GeologicalActivity > 50
	return g.GeologicalActivity
}

// Weather deepens the regolith by WeatheringRate over the given years.
func (g *Geosphere) Weather(years float64) float64 {
	if years > 0 && g.WeatheringRate > 0 {
		g.RegolithDepth += g.WeatheringRate * years
	}
	return g.RegolithDepth
}

// PhysicalState classifies a material at the given temperature using its
// catalog melting and boiling points.
func (g *Geosphere) PhysicalState(name string, temperature float64) (State, error) {
	rec, err := resolveMaterial(g.lookup(), name)
	if err != nil {
		return "", err
	}
	switch {
	case temperature < rec.Properties.MeltingPoint:
		return StateSolid, nil
	case temperature < rec.Properties.BoilingPoint:
		return StateLiquid, nil
	default:
		return StateGas, nil
	}
}

// LayerSummary renders a human readable description of a layer.
func (g *Geosphere) LayerSummary(layer Layer) (string, error) {
	l, err := g.Layer(layer)
	if err != nil {
		return "", err
	}
	if layer == LayerDefault {
		layer = LayerCrust
	}
	parts := make([]string, 0, len(l.Composition))
	for _, name := range sortedKeys(l.Composition) {
		parts = append(parts, fmt.Sprintf("%s %s%%", name, humanize.FtoaWithDigits(l.Composition[name], 2)))
	}
	return fmt.Sprintf("%s: %s kg across %d materials (%s)",
		layer, humanize.CommafWithDigits(l.TotalMass, 2), len(l.Materials), strings.Join(parts, ", ")), nil
}

func (g *Geosphere) state() GeosphereBaseValues {
	v := GeosphereBaseValues{
		Layers:             make(map[Layer]GeoLayerValues, len(g.Layers)),
		Temperature:        g.Temperature,
		Pressure:           g.Pressure,
		GeologicalActivity: g.GeologicalActivity,
		TectonicActivity:   g.TectonicActivity,
		RegolithDepth:      g.RegolithDepth,
		WeatheringRate:     g.WeatheringRate,
		Plates:             g.Plates,
	}
	for k, l := range g.Layers {
		if l == nil {
			continue
		}
		v.Layers[k] = GeoLayerValues{Composition: l.Composition, TotalMass: l.TotalMass, Volatiles: l.Volatiles}
	}
	return v.clone()
}

func (g *Geosphere) checkpoint() func() {
	layers := make(map[Layer]*GeoLayer, len(g.Layers))
	for k, l := range g.Layers {
		layers[k] = l.clone()
	}
	snap := g.state()
	return func() {
		g.applyScalars(snap)
		restored := make(map[Layer]*GeoLayer, len(layers))
		for k, l := range layers {
			restored[k] = l.clone()
		}
		g.Layers = restored
	}
}

func (g *Geosphere) applyScalars(v GeosphereBaseValues) {
	g.Temperature = v.Temperature
	g.Pressure = v.Pressure
	g.GeologicalActivity = v.GeologicalActivity
	g.TectonicActivity = v.TectonicActivity
	g.RegolithDepth = v.RegolithDepth
	g.WeatheringRate = v.WeatheringRate
	g.Plates = append([]Plate(nil), v.Plates...)
}

// CaptureBaseValues records the current tunable state as the reset point.
func (g *Geosphere) CaptureBaseValues() {
	v := g.state()
	g.BaseValues = &v
}

// Reset restores every layer's composition and mass plus the scalar trackers.
// Material rows are left untouched; call RebuildMaterials to re-derive them.
func (g *Geosphere) Reset() bool {
	if g.BaseValues == nil {
		return false
	}
	v := g.BaseValues.clone()
	g.applyScalars(v)
	for _, layer := range GeosphereLayers {
		l, _ := g.Layer(layer)
		lv := v.Layers[layer]
		l.Composition = lv.Composition
		if l.Composition == nil {
			l.Composition = map[string]float64{}
		}
		l.TotalMass = lv.TotalMass
		l.Volatiles = lv.Volatiles
	}
	return true
}

func (g *Geosphere) clone() *Geosphere {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Layers = make(map[Layer]*GeoLayer, len(g.Layers))
	for k, l := range g.Layers {
		cp.Layers[k] = l.clone()
	}
	cp.Plates = append([]Plate(nil), g.Plates...)
	if g.BaseValues != nil {
		bv := g.BaseValues.clone()
		cp.BaseValues = &bv
	}
	cp.body = nil
	return &cp
}

// poolKey maps an identifier to the display-name key used by material pools.
func poolKey(lookup MaterialLookup, name string) string {
	if lookup != nil {
		if rec, ok := lookup.FindMaterial(strings.TrimSpace(name)); ok {
			return rec.DisplayName()
		}
	}
	return name
}
