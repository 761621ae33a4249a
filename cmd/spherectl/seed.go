package main

import (
	"context"
	"fmt"

	"spherecore/internal/core"
	"spherecore/pkg/domain"
)

type layerSeed struct {
	layer     domain.Layer
	materials map[string]float64
}

type bodySeed struct {
	id, name                           string
	gravity, temperature, radius, mass float64
	gases                              map[string]float64
	greenhouse                         float64
	water, ice                         float64
	layers                             []layerSeed
	crustVolatiles                     map[string]float64
	biomes                             []core.Biome
}

// referenceSystem is the inner solar system at roughly present-day values.
// Masses are in kg.
var referenceSystem = []bodySeed{
	{
		id: "earth", name: "Earth",
		gravity: 9.807, temperature: 288, radius: 6.371e6, mass: 5.972e24,
		gases: map[string]float64{
			"N2": 3.87e18, "O2": 1.19e18, "Ar": 6.6e16, "CO2": 3.2e15,
		},
		greenhouse: 33,
		water:      1.386e21,
		ice:        2.6e19,
		layers: []layerSeed{
			{domain.LayerCrust, map[string]float64{"silicon_dioxide": 1.2e22, "aluminum_oxide": 3.5e21, "basalt": 8e21, "calcium_carbonate": 4e20}},
			{domain.LayerMantle, map[string]float64{"magnesium_oxide": 1.6e24, "silicon_dioxide": 1.8e24, "iron_oxide": 3.2e23}},
			{domain.LayerCore, map[string]float64{"iron": 1.7e24, "nickel": 1e23, "sulfur": 4e22}},
		},
		crustVolatiles: map[string]float64{"carbon_dioxide": 0.2, "water": 0.1},
		biomes: []core.Biome{
			{Name: "Temperate Forest", TemperatureRange: [2]float64{268, 303}, HumidityRange: [2]float64{40, 90}, Tags: []string{"forest"}},
			{Name: "Tropical Rainforest", TemperatureRange: [2]float64{293, 308}, HumidityRange: [2]float64{75, 100}, Tags: []string{"forest", "tropical"}},
			{Name: "Desert", TemperatureRange: [2]float64{263, 323}, HumidityRange: [2]float64{0, 25}, Tags: []string{"arid"}},
			{Name: "Tundra", TemperatureRange: [2]float64{233, 285}, HumidityRange: [2]float64{30, 70}, Tags: []string{"polar"}},
			{Name: "Grassland", TemperatureRange: [2]float64{263, 303}, HumidityRange: [2]float64{25, 60}},
			{Name: "Coral Reef", TemperatureRange: [2]float64{296, 302}, HumidityRange: [2]float64{100, 100}, Tags: []string{"marine"}},
		},
	},
	{
		id: "mars", name: "Mars",
		gravity: 3.721, temperature: 210, radius: 3.3895e6, mass: 6.417e23,
		gases: map[string]float64{
			"CO2": 2.33e16, "N2": 6.6e14, "Ar": 4.7e14, "O2": 3.5e13,
		},
		greenhouse: 5,
		water:      1.6e16,
		ice:        1.6e16,
		layers: []layerSeed{
			{domain.LayerCrust, map[string]float64{"basalt": 2.5e22, "iron_oxide": 4e21, "regolith": 1e21}},
			{domain.LayerMantle, map[string]float64{"magnesium_oxide": 1.6e23, "silicon_dioxide": 2.1e23}},
			{domain.LayerCore, map[string]float64{"iron": 1.2e23, "sulfur": 2e22}},
		},
		crustVolatiles: map[string]float64{"carbon_dioxide": 0.5, "water": 0.3},
	},
	{
		id: "venus", name: "Venus",
		gravity: 8.87, temperature: 737, radius: 6.0518e6, mass: 4.867e24,
		gases: map[string]float64{
			"CO2": 4.6e20, "N2": 1.6e19, "SO2": 7e16,
		},
		greenhouse: 500,
		layers: []layerSeed{
			{domain.LayerCrust, map[string]float64{"basalt": 1.8e22, "silicon_dioxide": 6e21}},
			{domain.LayerMantle, map[string]float64{"magnesium_oxide": 1.3e24, "silicon_dioxide": 1.5e24}},
			{domain.LayerCore, map[string]float64{"iron": 1.3e24, "nickel": 8e22}},
		},
		crustVolatiles: map[string]float64{"carbon_dioxide": 1, "sulfur_dioxide": 0.2},
	},
	{
		id: "luna", name: "Luna",
		gravity: 1.62, temperature: 250, radius: 1.7374e6, mass: 7.342e22,
		layers: []layerSeed{
			{domain.LayerCrust, map[string]float64{"regolith": 2e20, "aluminum_oxide": 7e20, "silicon_dioxide": 1.3e21}},
			{domain.LayerMantle, map[string]float64{"magnesium_oxide": 2.5e22, "silicon_dioxide": 3e22}},
			{domain.LayerCore, map[string]float64{"iron": 1.5e21}},
		},
	},
}

// build assembles the seed into a body bound to env.
func (s bodySeed) build(env domain.Environment) (*core.CelestialBody, error) {
	body := domain.NewCelestialBody(s.name, s.gravity, s.temperature, s.radius, s.mass, len(s.gases) > 0)
	body.ID = s.id
	body.Bind(env)
	for _, formula := range sortedKeys(s.gases) {
		if _, err := body.Atmosphere.AddGas(formula, s.gases[formula]); err != nil {
			return nil, fmt.Errorf("%s atmosphere: %w", s.name, err)
		}
	}
	if body.Atmosphere != nil {
		body.Atmosphere.UpdatePressureFromMass()
		body.Atmosphere.SetGreenhouseTemp(s.temperature)
		body.Atmosphere.SetEffectiveTemp(s.temperature - s.greenhouse)
	}
	for _, ls := range s.layers {
		for _, name := range sortedKeys(ls.materials) {
			if err := body.Geosphere.AddMaterial(name, ls.materials[name], ls.layer); err != nil {
				return nil, fmt.Errorf("%s %s: %w", s.name, ls.layer, err)
			}
		}
	}
	if len(s.crustVolatiles) > 0 {
		crust, err := body.Geosphere.Layer(domain.LayerCrust)
		if err != nil {
			return nil, err
		}
		crust.Volatiles = make(map[string]float64, len(s.crustVolatiles))
		for id, pct := range s.crustVolatiles {
			crust.Volatiles[id] = pct
		}
	}
	if s.water > 0 {
		if err := body.Hydrosphere.AddLiquid(s.water); err != nil {
			return nil, fmt.Errorf("%s hydrosphere: %w", s.name, err)
		}
		body.Hydrosphere.SetIce(s.ice)
	}
	return body, nil
}

// seedReferenceSystem creates every reference body that is not stored yet,
// captures its base values, and links its biomes. It returns the ids created.
func seedReferenceSystem(ctx context.Context, svc *core.Service) ([]string, error) {
	var created []string
	for _, seed := range referenceSystem {
		if _, ok := svc.GetBody(seed.id); ok {
			continue
		}
		body, err := seed.build(svc.Environment())
		if err != nil {
			return created, err
		}
		if _, _, err := svc.CreateBody(ctx, *body); err != nil {
			return created, fmt.Errorf("create %s: %w", seed.name, err)
		}
		for _, biome := range seed.biomes {
			stored, _, err := svc.CreateBiome(ctx, biome)
			if err != nil {
				return created, fmt.Errorf("create biome %s: %w", biome.Name, err)
			}
			if _, _, err := svc.IntroduceBiome(ctx, seed.id, stored.ID); err != nil {
				return created, err
			}
		}
		if _, err := svc.CaptureBaseValues(ctx, seed.id); err != nil {
			return created, err
		}
		created = append(created, seed.id)
	}
	return created, nil
}
