package domain

// Physics centralizes physical constants and Earth-reference defaults used by
// sphere computations. A zero Physics is replaced by DefaultPhysics when bound.
type Physics struct {
	// GasConstant is the universal gas constant in J/(mol·K).
	GasConstant float64 `json:"gas_constant" yaml:"gas_constant"`
	// EarthMolarMass is the fallback average molar mass in kg/mol.
	EarthMolarMass float64 `json:"earth_molar_mass" yaml:"earth_molar_mass"`
	// EarthGasConstant is the fallback specific gas constant in J/(kg·K).
	EarthGasConstant float64 `json:"earth_gas_constant" yaml:"earth_gas_constant"`
	// BarToPascal converts stored pressures (bar) to Pa.
	BarToPascal float64 `json:"bar_to_pascal" yaml:"bar_to_pascal"`
	// EarthPressure is one standard atmosphere in bar.
	EarthPressure float64 `json:"earth_pressure" yaml:"earth_pressure"`

	FreezingPoint float64 `json:"freezing_point" yaml:"freezing_point"`
	BoilingPoint  float64 `json:"boiling_point" yaml:"boiling_point"`

	// PolarOffset and TropicalOffset derive unset temperature zones from the
	// authoritative atmosphere temperature.
	PolarOffset    float64 `json:"polar_offset" yaml:"polar_offset"`
	TropicalOffset float64 `json:"tropical_offset" yaml:"tropical_offset"`
	// DefaultTropical and DefaultPolar apply to bodies without an atmosphere.
	DefaultTropical float64 `json:"default_tropical" yaml:"default_tropical"`
	DefaultPolar    float64 `json:"default_polar" yaml:"default_polar"`

	// VolatileReleaseScale is the temperature increase (K) releasing the full
	// VolatileReleaseCap fraction of trapped volatiles.
	VolatileReleaseScale float64 `json:"volatile_release_scale" yaml:"volatile_release_scale"`
	VolatileReleaseCap   float64 `json:"volatile_release_cap" yaml:"volatile_release_cap"`

	MaxBiomeVariety   float64 `json:"max_biome_variety" yaml:"max_biome_variety"`
	LifeThreshold     float64 `json:"life_threshold" yaml:"life_threshold"`
	DefaultBiomeShare float64 `json:"default_biome_share" yaml:"default_biome_share"`
}

// DefaultPhysics returns the Earth-calibrated constant set.
func DefaultPhysics() Physics {
	return Physics{
		GasConstant:          8.31446,
		EarthMolarMass:       0.029,
		EarthGasConstant:     287.05,
		BarToPascal:          100000,
		EarthPressure:        1.01325,
		FreezingPoint:        273.15,
		BoilingPoint:         373.15,
		PolarOffset:          -40,
		TropicalOffset:       10,
		DefaultTropical:      300,
		DefaultPolar:         250,
		VolatileReleaseScale: 200,
		VolatileReleaseCap:   0.5,
		MaxBiomeVariety:      10,
		LifeThreshold:        0.1,
		DefaultBiomeShare:    10,
	}
}

// WithDefaults returns DefaultPhysics for a zero Physics and p otherwise, so
// an explicit zero in a populated constant set is kept.
func (p Physics) WithDefaults() Physics {
	if p == (Physics{}) {
		return DefaultPhysics()
	}
	return p
}
