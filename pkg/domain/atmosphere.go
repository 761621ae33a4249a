package domain

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Gas is an atmosphere constituent keyed by its canonical material id.
type Gas struct {
	ID         string  `json:"id"`
	Formula    string  `json:"formula,omitempty"`
	Mass       float64 `json:"mass"`
	Percentage float64 `json:"percentage"`
	// MolarMass is in g/mol.
	MolarMass float64 `json:"molar_mass"`
}

// TemperatureData holds optional per-zone temperatures in K. Unset zones are
// derived from the atmosphere temperature.
type TemperatureData struct {
	Effective  *float64 `json:"effective,omitempty"`
	Greenhouse *float64 `json:"greenhouse,omitempty"`
	Polar      *float64 `json:"polar,omitempty"`
	Tropical   *float64 `json:"tropical,omitempty"`
}

func (t TemperatureData) clone() TemperatureData {
	cp := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		x := *v
		return &x
	}
	return TemperatureData{
		Effective:  cp(t.Effective),
		Greenhouse: cp(t.Greenhouse),
		Polar:      cp(t.Polar),
		Tropical:   cp(t.Tropical),
	}
}

// AtmosphereBaseValues is the reset checkpoint of an atmosphere.
type AtmosphereBaseValues struct {
	Temperature          float64            `json:"temperature"`
	Pressure             float64            `json:"pressure"`
	Composition          map[string]float64 `json:"composition"`
	Gases                map[string]Gas     `json:"gases"`
	TotalAtmosphericMass float64            `json:"total_atmospheric_mass"`
	TemperatureData      TemperatureData    `json:"temperature_data"`
	Pollution            float64            `json:"pollution"`
	Dust                 float64            `json:"dust"`
}

func (v AtmosphereBaseValues) clone() AtmosphereBaseValues {
	cp := v
	cp.Composition = cloneFloatMap(v.Composition)
	cp.Gases = cloneGases(v.Gases)
	cp.TemperatureData = v.TemperatureData.clone()
	return cp
}

// Atmosphere is the gas sphere of a celestial body. Pressure is stored in bar,
// temperature in K, masses in kg.
type Atmosphere struct {
	Temperature float64 `json:"temperature"`
	Pressure    float64 `json:"pressure"`
	// Composition maps chemical formula to percent. It may hold provisional
	// values before gas records exist and mirrors them afterwards.
	Composition          map[string]float64    `json:"composition"`
	Gases                map[string]Gas        `json:"gases"`
	TotalAtmosphericMass float64               `json:"total_atmospheric_mass"`
	TemperatureData      TemperatureData       `json:"temperature_data"`
	Pollution            float64               `json:"pollution"`
	Dust                 float64               `json:"dust"`
	BaseValues           *AtmosphereBaseValues `json:"base_values,omitempty"`

	body *CelestialBody
}

// NewAtmosphere returns an empty atmosphere.
func NewAtmosphere(temperature, pressure float64) *Atmosphere {
	return &Atmosphere{
		Temperature: temperature,
		Pressure:    pressure,
		Composition: map[string]float64{},
		Gases:       map[string]Gas{},
	}
}

// Kind implements Sphere.
func (a *Atmosphere) Kind() SphereKind { return SphereAtmosphere }

// Body implements Sphere.
func (a *Atmosphere) Body() *CelestialBody {
	if a == nil {
		return nil
	}
	return a.body
}

func (a *Atmosphere) lookup() MaterialLookup {
	if a.body == nil {
		return nil
	}
	return a.body.lookup()
}

func (a *Atmosphere) physics() Physics {
	if a.body == nil {
		return DefaultPhysics()
	}
	return a.body.physics()
}

// AddGas resolves formulaOrID to its canonical id and accumulates mass under
// that id. The total atmospheric mass and every percentage are recomputed.
func (a *Atmosphere) AddGas(formulaOrID string, mass float64) (Gas, error) {
	if err := validAmount(mass); err != nil {
		return Gas{}, err
	}
	rec, err := resolveMaterial(a.lookup(), formulaOrID)
	if err != nil {
		return Gas{}, err
	}
	if a.Gases == nil {
		a.Gases = make(map[string]Gas)
	}
	g, ok := a.Gases[rec.ID]
	if !ok {
		g = Gas{ID: rec.ID, Formula: rec.ChemicalFormula, MolarMass: rec.Properties.MolarMass}
	}
	g.Mass += mass
	a.Gases[rec.ID] = g
	a.recalculate()
	return a.Gases[rec.ID], nil
}

// RemoveGas decrements the resolved gas by at most its stored mass and returns
// the amount actually removed. Depleted gases are deleted.
func (a *Atmosphere) RemoveGas(formulaOrID string, mass float64) (float64, error) {
	if err := validAmount(mass); err != nil {
		return 0, err
	}
	rec, err := resolveMaterial(a.lookup(), formulaOrID)
	if err != nil {
		return 0, err
	}
	g, ok := a.Gases[rec.ID]
	if !ok || g.Mass <= zeroEpsilon {
		return 0, fmt.Errorf("%w: %s", ErrInsufficientQuantity, rec.ID)
	}
	removed := math.Min(mass, g.Mass)
	g.Mass = math.Max(g.Mass-removed, 0)
	if g.Mass <= zeroEpsilon {
		delete(a.Gases, rec.ID)
		a.recalculate(rec.ID, g.Formula)
		return removed, nil
	}
	a.Gases[rec.ID] = g
	a.recalculate()
	return removed, nil
}

// recalculate rebuilds totals and percentages from the gas records.
// Composition entries that no gas record covers are provisional and carried
// over unchanged; dropped names the keys of gases that were just depleted.
func (a *Atmosphere) recalculate(dropped ...string) {
	var total float64
	for _, g := range a.Gases {
		total += g.Mass
	}
	a.TotalAtmosphericMass = total
	previous := a.Composition
	a.Composition = make(map[string]float64, len(a.Gases)+len(previous))
	for id, g := range a.Gases {
		if total > 0 {
			g.Percentage = g.Mass / total * 100
		} else {
			g.Percentage = 0
		}
		a.Gases[id] = g
		key := g.Formula
		if key == "" {
			key = id
		}
		a.Composition[key] = g.Percentage
	}
	for key, pct := range previous {
		if _, ok := a.Composition[key]; ok || slices.Contains(dropped, key) {
			continue
		}
		if _, ok := a.Gases[key]; ok {
			continue
		}
		if rec, ok := a.findRecord(key); ok {
			if _, ok := a.Gases[rec.ID]; ok || slices.Contains(dropped, rec.ID) {
				continue
			}
		}
		a.Composition[key] = pct
	}
}

// AddMaterial implements Sphere by adding the material as a gas.
func (a *Atmosphere) AddMaterial(name string, amount float64, layer Layer) error {
	if err := requireDefaultLayer(SphereAtmosphere, layer); err != nil {
		return err
	}
	_, err := a.AddGas(name, amount)
	return err
}

// RemoveMaterial implements Sphere.
func (a *Atmosphere) RemoveMaterial(name string, amount float64, layer Layer) (float64, error) {
	if err := requireDefaultLayer(SphereAtmosphere, layer); err != nil {
		return 0, err
	}
	return a.RemoveGas(name, amount)
}

// TransferMaterial implements Sphere.
func (a *Atmosphere) TransferMaterial(name string, amount float64, target Sphere) bool {
	return Transfer(a, target, name, amount)
}

func (a *Atmosphere) available(name string) (float64, error) {
	if a == nil {
		return 0, ErrInsufficientQuantity
	}
	rec, err := resolveMaterial(a.lookup(), name)
	if err != nil {
		return 0, err
	}
	return a.Gases[rec.ID].Mass, nil
}

// GasMass returns the stored mass of the resolved gas.
func (a *Atmosphere) GasMass(formulaOrID string) float64 {
	m, _ := a.available(formulaOrID)
	return m
}

func (a *Atmosphere) state() AtmosphereBaseValues {
	return AtmosphereBaseValues{
		Temperature:          a.Temperature,
		Pressure:             a.Pressure,
		Composition:          a.Composition,
		Gases:                a.Gases,
		TotalAtmosphericMass: a.TotalAtmosphericMass,
		TemperatureData:      a.TemperatureData,
		Pollution:            a.Pollution,
		Dust:                 a.Dust,
	}.clone()
}

func (a *Atmosphere) apply(v AtmosphereBaseValues) {
	v = v.clone()
	a.Temperature = v.Temperature
	a.Pressure = v.Pressure
	a.Composition = v.Composition
	a.Gases = v.Gases
	a.TotalAtmosphericMass = v.TotalAtmosphericMass
	a.TemperatureData = v.TemperatureData
	a.Pollution = v.Pollution
	a.Dust = v.Dust
}

func (a *Atmosphere) checkpoint() func() {
	snap := a.state()
	return func() { a.apply(snap) }
}

// CaptureBaseValues records the current tunable state as the reset point.
func (a *Atmosphere) CaptureBaseValues() {
	v := a.state()
	a.BaseValues = &v
}

// Reset implements Sphere.
func (a *Atmosphere) Reset() bool {
	if a.BaseValues == nil {
		return false
	}
	a.apply(*a.BaseValues)
	return true
}

// GasPercentage returns the gas record's percentage, falling back to the
// composition map and then to zero.
func (a *Atmosphere) GasPercentage(name string) float64 {
	if rec, ok := a.findRecord(name); ok {
		if g, ok := a.Gases[rec.ID]; ok {
			return g.Percentage
		}
		if pct, ok := a.Composition[rec.ChemicalFormula]; ok {
			return pct
		}
	}
	if pct, ok := a.Composition[name]; ok {
		return pct
	}
	return 0
}

func (a *Atmosphere) findRecord(name string) (MaterialRecord, bool) {
	l := a.lookup()
	if l == nil {
		return MaterialRecord{}, false
	}
	return l.FindMaterial(name)
}

// O2Percentage returns the oxygen share.
func (a *Atmosphere) O2Percentage() float64 { return a.GasPercentage("O2") }

// CO2Percentage returns the carbon dioxide share.
func (a *Atmosphere) CO2Percentage() float64 { return a.GasPercentage("CO2") }

// CH4Percentage returns the methane share.
func (a *Atmosphere) CH4Percentage() float64 { return a.GasPercentage("CH4") }

// SetEffectiveTemp stores the effective temperature.
func (a *Atmosphere) SetEffectiveTemp(k float64) { a.TemperatureData.Effective = &k }

// SetGreenhouseTemp stores the greenhouse temperature and makes it the
// authoritative atmosphere temperature.
func (a *Atmosphere) SetGreenhouseTemp(k float64) {
	a.TemperatureData.Greenhouse = &k
	a.Temperature = k
}

// SetPolarTemp stores the polar temperature.
func (a *Atmosphere) SetPolarTemp(k float64) { a.TemperatureData.Polar = &k }

// SetTropicTemp stores the tropical temperature.
func (a *Atmosphere) SetTropicTemp(k float64) { a.TemperatureData.Tropical = &k }

// EffectiveTemp returns the stored effective temperature or the atmosphere temperature.
func (a *Atmosphere) EffectiveTemp() float64 {
	if a.TemperatureData.Effective != nil {
		return *a.TemperatureData.Effective
	}
	return a.Temperature
}

// GreenhouseTemp returns the stored greenhouse temperature or the atmosphere temperature.
func (a *Atmosphere) GreenhouseTemp() float64 {
	if a.TemperatureData.Greenhouse != nil {
		return *a.TemperatureData.Greenhouse
	}
	return a.Temperature
}

// PolarTemp returns the stored polar temperature or temperature - 40 K.
func (a *Atmosphere) PolarTemp() float64 {
	if a.TemperatureData.Polar != nil {
		return *a.TemperatureData.Polar
	}
	return a.Temperature + a.physics().PolarOffset
}

// TropicalTemp returns the stored tropical temperature or temperature + 10 K.
func (a *Atmosphere) TropicalTemp() float64 {
	if a.TemperatureData.Tropical != nil {
		return *a.TemperatureData.Tropical
	}
	return a.Temperature + a.physics().TropicalOffset
}

// Density returns the ideal-gas density in kg/m³.
func (a *Atmosphere) Density() float64 {
	if a.Pressure == 0 || a.Temperature == 0 {
		return 0
	}
	p := a.physics()
	return a.Pressure * p.BarToPascal * a.CalculateAverageMolarMass() / (p.GasConstant * a.Temperature)
}

// CalculateAverageMolarMass returns the mean molar mass in kg/mol: mass
// weighted over gas records, else percent weighted over the composition map,
// else the Earth reference.
func (a *Atmosphere) CalculateAverageMolarMass() float64 {
	p := a.physics()
	var mass, weighted float64
	for _, g := range a.Gases {
		if g.MolarMass <= 0 {
			continue
		}
		mass += g.Mass
		weighted += g.Mass * g.MolarMass
	}
	if mass > 0 {
		return weighted / mass / 1000
	}
	var share float64
	weighted = 0
	for _, formula := range sortedKeys(a.Composition) {
		pct := a.Composition[formula]
		rec, ok := a.findRecord(formula)
		if !ok || rec.Properties.MolarMass <= 0 || pct <= 0 {
			continue
		}
		share += pct
		weighted += pct * rec.Properties.MolarMass
	}
	if share > 0 {
		return weighted / share / 1000
	}
	return p.EarthMolarMass
}

// CalculateGasConstant returns the percentage-weighted specific gas constant
// in J/(kg·K), or the Earth reference when no gases exist.
func (a *Atmosphere) CalculateGasConstant() float64 {
	p := a.physics()
	var r, share float64
	for _, g := range a.Gases {
		if g.MolarMass <= 0 {
			continue
		}
		share += g.Percentage
		r += g.Percentage / 100 * p.GasConstant / (g.MolarMass / 1000)
	}
	if share <= 0 {
		return p.EarthGasConstant
	}
	return r * 100 / share
}

// ScaleHeight returns R·T/(M·g) in km, or 0 when the owning body has no gravity.
func (a *Atmosphere) ScaleHeight() float64 {
	if a.body == nil || a.body.Gravity <= 0 || a.Temperature <= 0 {
		return 0
	}
	p := a.physics()
	return p.GasConstant * a.Temperature / (a.CalculateAverageMolarMass() * a.body.Gravity) / 1000
}

// InitializeGases rebuilds gas records from composition × total mass. Unknown
// formulas are skipped and reported.
func (a *Atmosphere) InitializeGases() ([]string, error) {
	if a.TotalAtmosphericMass <= 0 || len(a.Composition) == 0 {
		return nil, nil
	}
	l := a.lookup()
	if l == nil {
		return nil, fmt.Errorf("%w: no lookup bound", ErrUnknownMaterial)
	}
	total := a.TotalAtmosphericMass
	gases := make(map[string]Gas, len(a.Composition))
	var skipped []string
	for _, formula := range sortedKeys(a.Composition) {
		pct := a.Composition[formula]
		rec, ok := l.FindMaterial(formula)
		if !ok {
			skipped = append(skipped, formula)
			continue
		}
		if pct <= 0 {
			continue
		}
		g := gases[rec.ID]
		g.ID = rec.ID
		g.Formula = rec.ChemicalFormula
		g.MolarMass = rec.Properties.MolarMass
		g.Mass += pct / 100 * total
		gases[rec.ID] = g
	}
	a.Gases = gases
	a.recalculate()
	if len(skipped) > 0 && a.body != nil {
		a.body.logger().Warn("skipped unknown atmosphere constituents", "formulas", skipped)
	}
	return skipped, nil
}

// CalculatePressure derives surface pressure in bar from the atmosphere mass
// and the owning body's gravity and radius.
func (a *Atmosphere) CalculatePressure() float64 {
	if a.body == nil || a.body.Radius <= 0 {
		return 0
	}
	area := 4 * math.Pi * a.body.Radius * a.body.Radius
	return a.TotalAtmosphericMass * a.body.Gravity / area / a.physics().BarToPascal
}

// UpdatePressureFromMass sets Pressure from CalculatePressure.
func (a *Atmosphere) UpdatePressureFromMass() float64 {
	a.Pressure = a.CalculatePressure()
	return a.Pressure
}

// Habitable reports whether pressure, oxygen share, and temperature all fall
// within human-tolerable bands.
func (a *Atmosphere) Habitable() bool {
	o2 := a.O2Percentage()
	return a.Pressure >= 0.5 && a.Pressure <= 2.0 &&
		o2 >= 15 && o2 <= 25 &&
		a.Temperature >= 273.15 && a.Temperature <= 313.15
}

// HabitabilityLabel renders Habitable as a label.
func (a *Atmosphere) HabitabilityLabel() string {
	if a.Habitable() {
		return "Habitable"
	}
	return "Non-Habitable"
}

func (a *Atmosphere) clone() *Atmosphere {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Composition = cloneFloatMap(a.Composition)
	cp.Gases = cloneGases(a.Gases)
	cp.TemperatureData = a.TemperatureData.clone()
	if a.BaseValues != nil {
		bv := a.BaseValues.clone()
		cp.BaseValues = &bv
	}
	cp.body = nil
	return &cp
}

func cloneGases(in map[string]Gas) map[string]Gas {
	if in == nil {
		return nil
	}
	out := make(map[string]Gas, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
