package domain

import (
	"fmt"
	"math"
)

const (
	waterID = "water"
	// referenceOceanDepth is the mean depth (m) at which a water layer is
	// considered to cover a surface completely.
	referenceOceanDepth = 3700.0
	waterDensity        = 1000.0
)

// LiquidBodies tracks how the hydrosphere's water mass (kg) is distributed.
type LiquidBodies struct {
	Oceans      float64 `json:"oceans"`
	Lakes       float64 `json:"lakes"`
	Rivers      float64 `json:"rivers"`
	IceCaps     float64 `json:"ice_caps"`
	Groundwater float64 `json:"groundwater"`
}

// Total returns the summed mass of all bodies.
func (l LiquidBodies) Total() float64 {
	return l.Oceans + l.Lakes + l.Rivers + l.IceCaps + l.Groundwater
}

func (l LiquidBodies) scale(f float64) LiquidBodies {
	return LiquidBodies{
		Oceans:      l.Oceans * f,
		Lakes:       l.Lakes * f,
		Rivers:      l.Rivers * f,
		IceCaps:     l.IceCaps * f,
		Groundwater: l.Groundwater * f,
	}
}

// StateDistribution is the solid/liquid/vapor split of water in percent.
type StateDistribution struct {
	Solid  float64 `json:"solid"`
	Liquid float64 `json:"liquid"`
	Vapor  float64 `json:"vapor"`
}

// HydrosphereBaseValues is the reset checkpoint of a hydrosphere.
type HydrosphereBaseValues struct {
	Pool              Pool              `json:"pool"`
	LiquidBodies      LiquidBodies      `json:"liquid_bodies"`
	StateDistribution StateDistribution `json:"state_distribution"`
	Temperature       float64           `json:"temperature"`
	Pressure          float64           `json:"pressure"`
}

func (v HydrosphereBaseValues) clone() HydrosphereBaseValues {
	cp := v
	cp.Pool = v.Pool.clone()
	return cp
}

// WaterCycleResult reports the masses moved by one water cycle tick.
type WaterCycleResult struct {
	Evaporated   float64           `json:"evaporated"`
	Precipitated float64           `json:"precipitated"`
	Saturation   float64           `json:"saturation"`
	Distribution StateDistribution `json:"distribution"`
}

// Hydrosphere holds a body's liquids. Pressure is in bar and always set.
type Hydrosphere struct {
	Pool
	LiquidBodies      LiquidBodies           `json:"liquid_bodies"`
	StateDistribution StateDistribution      `json:"state_distribution"`
	Temperature       float64                `json:"temperature"`
	Pressure          float64                `json:"pressure"`
	BaseValues        *HydrosphereBaseValues `json:"base_values,omitempty"`

	body *CelestialBody
}

// NewHydrosphere returns an empty hydrosphere at one bar.
func NewHydrosphere(temperature float64) *Hydrosphere {
	h := &Hydrosphere{
		Pool:        Pool{Materials: map[string]Material{}, Composition: map[string]float64{}},
		Temperature: temperature,
		Pressure:    1.0,
	}
	h.StateDistribution = h.CalculateStateDistributions(temperature)
	return h
}

// Kind implements Sphere.
func (h *Hydrosphere) Kind() SphereKind { return SphereHydrosphere }

// Body implements Sphere.
func (h *Hydrosphere) Body() *CelestialBody {
	if h == nil {
		return nil
	}
	return h.body
}

func (h *Hydrosphere) lookup() MaterialLookup {
	if h.body == nil {
		return nil
	}
	return h.body.lookup()
}

func (h *Hydrosphere) physics() Physics {
	if h.body == nil {
		return DefaultPhysics()
	}
	return h.body.physics()
}

// TotalLiquidMass returns the pool's declared total mass.
func (h *Hydrosphere) TotalLiquidMass() float64 { return h.TotalMass }

// AddMaterial implements Sphere. Water is spread 70/20/10 over oceans, lakes,
// and rivers.
func (h *Hydrosphere) AddMaterial(name string, amount float64, layer Layer) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := requireDefaultLayer(SphereHydrosphere, layer); err != nil {
		return err
	}
	rec, err := resolveMaterial(h.lookup(), name)
	if err != nil {
		return err
	}
	owner := ""
	if h.body != nil {
		owner = h.body.ID
	}
	h.deposit(rec, amount, owner, SphereHydrosphere, LayerDefault)
	if rec.ID == waterID {
		h.LiquidBodies.Oceans += amount * 0.7
		h.LiquidBodies.Lakes += amount * 0.2
		h.LiquidBodies.Rivers += amount * 0.1
	}
	return nil
}

// RemoveMaterial implements Sphere. Water removal shrinks every liquid body
// proportionally.
func (h *Hydrosphere) RemoveMaterial(name string, amount float64, layer Layer) (float64, error) {
	if err := validAmount(amount); err != nil {
		return 0, err
	}
	if err := requireDefaultLayer(SphereHydrosphere, layer); err != nil {
		return 0, err
	}
	key := poolKey(h.lookup(), name)
	before := h.Amount(key)
	removed, err := h.withdraw(key, amount)
	if err != nil {
		return 0, err
	}
	if h.isWater(key) && before > 0 {
		h.LiquidBodies = h.LiquidBodies.scale(1 - removed/before)
	}
	return removed, nil
}

func (h *Hydrosphere) isWater(key string) bool {
	return key == poolKey(h.lookup(), waterID)
}

// TransferMaterial implements Sphere.
func (h *Hydrosphere) TransferMaterial(name string, amount float64, target Sphere) bool {
	return Transfer(h, target, name, amount)
}

func (h *Hydrosphere) available(name string) (float64, error) {
	if h == nil {
		return 0, ErrInsufficientQuantity
	}
	return h.Amount(poolKey(h.lookup(), name)), nil
}

// AddLiquid adds water.
func (h *Hydrosphere) AddLiquid(amount float64) error {
	return h.AddMaterial(waterID, amount, LayerDefault)
}

// RemoveLiquid removes up to amount of water.
func (h *Hydrosphere) RemoveLiquid(amount float64) (float64, error) {
	return h.RemoveMaterial(waterID, amount, LayerDefault)
}

// WaterMass returns the stored water mass.
func (h *Hydrosphere) WaterMass() float64 {
	return h.Amount(poolKey(h.lookup(), waterID))
}

// InOcean returns the water mass held in oceans.
func (h *Hydrosphere) InOcean() float64 { return h.LiquidBodies.Oceans }

// Ice returns the water mass held in ice caps.
func (h *Hydrosphere) Ice() float64 { return h.LiquidBodies.IceCaps }

// SetIce moves water between oceans and ice caps so that ice caps hold mass.
// The move is capped by the ocean mass available.
func (h *Hydrosphere) SetIce(mass float64) float64 {
	if mass < 0 {
		mass = 0
	}
	delta := mass - h.LiquidBodies.IceCaps
	if delta > h.LiquidBodies.Oceans {
		delta = h.LiquidBodies.Oceans
	}
	h.LiquidBodies.IceCaps += delta
	h.LiquidBodies.Oceans -= delta
	return h.LiquidBodies.IceCaps
}

// WaterCoverage returns the percent of surfaceArea (m²) covered by oceans and lakes.
func (h *Hydrosphere) WaterCoverage(surfaceArea float64) float64 {
	if surfaceArea <= 0 {
		return 0
	}
	volume := (h.LiquidBodies.Oceans + h.LiquidBodies.Lakes) / waterDensity
	return math.Min(volume/(surfaceArea*referenceOceanDepth), 1) * 100
}

// CalculateStateDistributions returns the solid/liquid/vapor split at the given
// temperature. The frozen share never increases and the vapor share never
// decreases with temperature; the three always sum to 100.
func (h *Hydrosphere) CalculateStateDistributions(temperature float64) StateDistribution {
	p := h.physics()
	var frozen, vapor float64
	if temperature < p.FreezingPoint {
		frozen = 90*math.Min((p.FreezingPoint-temperature)/50, 1) + 10
	} else {
		frozen = math.Max(p.FreezingPoint+10-temperature, 0)
	}
	if temperature > p.BoilingPoint {
		vapor = 95
	} else {
		vapor = math.Max((temperature-p.FreezingPoint)/100, 0) * 70
	}
	liquid := math.Max(100-frozen-vapor, 0)
	return StateDistribution{Solid: frozen, Liquid: liquid, Vapor: vapor}
}

// RecalculateStateDistribution refreshes StateDistribution from Temperature.
func (h *Hydrosphere) RecalculateStateDistribution() StateDistribution {
	h.StateDistribution = h.CalculateStateDistributions(h.Temperature)
	return h.StateDistribution
}

// Saturation returns the ratio of the atmosphere's water vapor share to the
// saturation share at the atmosphere temperature (Magnus formula).
func (h *Hydrosphere) Saturation() float64 {
	if h.body == nil || h.body.Atmosphere == nil {
		return 0
	}
	atm := h.body.Atmosphere
	if atm.Pressure <= 0 || atm.Temperature <= 0 {
		return 0
	}
	tc := atm.Temperature - h.physics().FreezingPoint
	saturationPressure := 0.0061094 * math.Exp(17.625*tc/(tc+243.04))
	saturationShare := math.Min(saturationPressure/atm.Pressure, 1)
	if saturationShare <= 0 {
		return 0
	}
	return atm.GasPercentage(waterID) / 100 / saturationShare
}

// WaterCycleTick evaporates liquid water into the atmosphere and precipitates
// vapor back, each as an atomic transfer. Without an atmosphere it only
// refreshes the state distribution.
func (h *Hydrosphere) WaterCycleTick() (WaterCycleResult, error) {
	res := WaterCycleResult{Distribution: h.RecalculateStateDistribution()}
	if h.body == nil || h.body.Atmosphere == nil {
		return res, nil
	}
	atm := h.body.Atmosphere
	p := h.physics()

	liquid := h.WaterMass() * res.Distribution.Liquid / 100
	rate := math.Max((h.Temperature-p.FreezingPoint)/100, 0) * 0.01
	evaporation := math.Min(liquid*rate, liquid*0.10)
	if evaporation > zeroEpsilon {
		if !Transfer(h, atm, waterID, evaporation) {
			return res, fmt.Errorf("evaporation of %g kg failed", evaporation)
		}
		res.Evaporated = evaporation
	}

	res.Saturation = h.Saturation()
	precipitation := atm.GasMass(waterID) * math.Min(0.05*res.Saturation, 0.25)
	if precipitation > zeroEpsilon {
		if !Transfer(atm, h, waterID, precipitation) {
			return res, fmt.Errorf("precipitation of %g kg failed", precipitation)
		}
		res.Precipitated = precipitation
	}
	return res, nil
}

func (h *Hydrosphere) state() HydrosphereBaseValues {
	return HydrosphereBaseValues{
		Pool:              h.Pool,
		LiquidBodies:      h.LiquidBodies,
		StateDistribution: h.StateDistribution,
		Temperature:       h.Temperature,
		Pressure:          h.Pressure,
	}.clone()
}

func (h *Hydrosphere) apply(v HydrosphereBaseValues) {
	v = v.clone()
	h.Pool = v.Pool
	h.LiquidBodies = v.LiquidBodies
	h.StateDistribution = v.StateDistribution
	h.Temperature = v.Temperature
	h.Pressure = v.Pressure
}

func (h *Hydrosphere) checkpoint() func() {
	snap := h.state()
	return func() { h.apply(snap) }
}

// CaptureBaseValues records the current tunable state as the reset point.
func (h *Hydrosphere) CaptureBaseValues() {
	v := h.state()
	h.BaseValues = &v
}

// Reset implements Sphere.
func (h *Hydrosphere) Reset() bool {
	if h.BaseValues == nil {
		return false
	}
	h.apply(*h.BaseValues)
	return true
}

func (h *Hydrosphere) clone() *Hydrosphere {
	if h == nil {
		return nil
	}
	cp := *h
	cp.Pool = h.Pool.clone()
	if h.BaseValues != nil {
		bv := h.BaseValues.clone()
		cp.BaseValues = &bv
	}
	cp.body = nil
	return &cp
}
