package domain

import (
	"math"
	"strings"
	"testing"
)

type fakeLookup map[string]MaterialRecord

func (f fakeLookup) FindMaterial(identifier string) (MaterialRecord, bool) {
	needle := strings.ToLower(strings.TrimSpace(identifier))
	for _, rec := range f {
		if strings.ToLower(rec.ID) == needle || strings.ToLower(rec.ChemicalFormula) == needle || strings.ToLower(rec.Name) == needle {
			return rec, true
		}
	}
	return MaterialRecord{}, false
}

func testLookup() fakeLookup {
	rec := func(id, name, formula string, molar, melt, boil float64, state State) MaterialRecord {
		return MaterialRecord{ID: id, Name: name, ChemicalFormula: formula, Properties: MaterialProperties{
			MolarMass: molar, MeltingPoint: melt, BoilingPoint: boil, StateAtRoomTemp: state,
		}}
	}
	return fakeLookup{
		"oxygen":         rec("oxygen", "Oxygen", "O2", 31.9988, 54.36, 90.19, StateGas),
		"nitrogen":       rec("nitrogen", "Nitrogen", "N2", 28.0134, 63.15, 77.36, StateGas),
		"argon":          rec("argon", "Argon", "Ar", 39.948, 83.8, 87.3, StateGas),
		"carbon_dioxide": rec("carbon_dioxide", "Carbon Dioxide", "CO2", 44.0095, 216.58, 194.65, StateGas),
		"methane":        rec("methane", "Methane", "CH4", 16.04, 90.7, 111.65, StateGas),
		"water":          rec("water", "Water", "H2O", 18.015, 273.15, 373.15, StateLiquid),
		"iron":           rec("iron", "Iron", "Fe", 55.845, 1811, 3134, StateSolid),
		"silicon":        rec("silicon", "Silicon", "Si", 28.0855, 1687, 3538, StateSolid),
		"organic_matter": rec("organic_matter", "Organic Matter", "CH2O", 30.026, 400, 600, StateSolid),
	}
}

func testEnv() Environment {
	return Environment{Lookup: testLookup(), Physics: DefaultPhysics()}
}

// newEarth returns a bound Earth-like body with an atmosphere.
func newEarth(t *testing.T) *CelestialBody {
	t.Helper()
	b := NewCelestialBody("Earth", 9.807, 288, 6.371e6, 5.972e24, true)
	b.ID = "earth"
	b.Atmosphere.Pressure = 1.01325
	b.Bind(testEnv())
	return b
}

func newBody(t *testing.T, id string, withAtmosphere bool) *CelestialBody {
	t.Helper()
	b := NewCelestialBody(id, 3.71, 210, 3.3895e6, 6.39e23, withAtmosphere)
	b.ID = id
	b.Bind(testEnv())
	return b
}

func seedEarthAir(t *testing.T, a *Atmosphere) {
	t.Helper()
	for formula, pct := range map[string]float64{"N2": 78.08, "O2": 20.95, "Ar": 0.93, "CO2": 0.04} {
		if _, err := a.AddGas(formula, pct*1e16); err != nil {
			t.Fatalf("add %s: %v", formula, err)
		}
	}
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func sumPercentages(m map[string]float64) float64 {
	var total float64
	for _, v := range m {
		total += v
	}
	return total
}
