package domain

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
)

func testBiome(i int) Biome {
	return Biome{
		Base:             Base{ID: fmt.Sprintf("biome-%02d", i)},
		Name:             fmt.Sprintf("Biome %02d", i),
		TemperatureRange: [2]float64{250, 300},
		HumidityRange:    [2]float64{20, 80},
	}
}

func TestBiosphereBiodiversityIsMonotonic(t *testing.T) {
	body := newEarth(t)
	bio := body.Biosphere
	if bio.CalculateBiodiversityIndex() != 0 {
		t.Fatalf("empty biosphere must have zero biodiversity")
	}
	prev := 0.0
	for i := 1; i <= 12; i++ {
		if !bio.IntroduceBiome(testBiome(i)) {
			t.Fatalf("biome %d rejected", i)
		}
		if bio.BiodiversityIndex < prev {
			t.Fatalf("biodiversity decreased after adding biome %d", i)
		}
		if bio.BiodiversityIndex > 1 {
			t.Fatalf("biodiversity exceeds 1: %v", bio.BiodiversityIndex)
		}
		prev = bio.BiodiversityIndex
	}
	if prev != 1 {
		t.Fatalf("expected saturation at 1, got %v", prev)
	}
	if bio.IntroduceBiome(testBiome(3)) {
		t.Fatalf("duplicate biome accepted")
	}
	if bio.BiomeDistribution["Biome 03"].AreaPercentage != 10 {
		t.Fatalf("expected default area share of 10%%")
	}
	if !bio.RemoveBiome(testBiome(3)) || bio.RemoveBiome(testBiome(3)) {
		t.Fatalf("remove biome should succeed exactly once")
	}
	if _, ok := bio.BiomeDistribution["Biome 03"]; ok {
		t.Fatalf("distribution entry not removed")
	}
}

func TestBiosphereSameNamedBiomesShareCoverage(t *testing.T) {
	bio := newEarth(t).Biosphere
	a := Biome{Base: Base{ID: "a"}, Name: "Forest"}
	b := Biome{Base: Base{ID: "b"}, Name: "Forest"}
	if !bio.IntroduceBiome(a) || !bio.IntroduceBiome(b) {
		t.Fatalf("distinct ids must both link")
	}
	bio.BiomeDistribution["Forest"] = BiomeCoverage{AreaPercentage: 35}
	if !bio.IntroduceBiome(testBiome(1)) || bio.BiomeDistribution["Forest"].AreaPercentage != 35 {
		t.Fatalf("linking another biome reset forest coverage: %+v", bio.BiomeDistribution)
	}

	if !bio.RemoveBiome(a) {
		t.Fatalf("remove a failed")
	}
	if len(bio.Biomes) != 2 {
		t.Fatalf("expected b and biome 01 linked, got %d", len(bio.Biomes))
	}
	if cov, ok := bio.BiomeDistribution["Forest"]; !ok || cov.AreaPercentage != 35 {
		t.Fatalf("coverage dropped while b is still linked: %+v", bio.BiomeDistribution)
	}
	if !bio.RemoveBiome(b) {
		t.Fatalf("remove b failed")
	}
	if _, ok := bio.BiomeDistribution["Forest"]; ok {
		t.Fatalf("coverage kept after the last forest was removed")
	}
}

func TestBiosphereHabitability(t *testing.T) {
	earth := newEarth(t)
	seedEarthAir(t, earth.Atmosphere)
	if got := earth.Biosphere.CalculateHabitability(); !approx(got, 1, 1e-9) {
		t.Fatalf("expected Earth habitability 1, got %v", got)
	}
	earth.SurfaceTemperature = 245
	if got := earth.Biosphere.CalculateHabitability(); !approx(got, 0.68, 1e-9) {
		t.Fatalf("expected 0.68 at 245 K, got %v", got)
	}

	airless := newBody(t, "luna", false)
	if got := airless.Biosphere.CalculateHabitability(); got != 0 {
		t.Fatalf("airless body must score 0, got %v", got)
	}
	empty := newEarth(t)
	if got := empty.Biosphere.CalculateHabitability(); got != 0 {
		t.Fatalf("gasless atmosphere must score 0, got %v", got)
	}
}

func TestBiosphereTemperatureDelegation(t *testing.T) {
	earth := newEarth(t)
	bio := earth.Biosphere
	if !bio.SetPolarTemperature(220) || !bio.SetTropicalTemperature(305) {
		t.Fatalf("setters should write through to the atmosphere")
	}
	if earth.Atmosphere.PolarTemp() != 220 || earth.Atmosphere.TropicalTemp() != 305 {
		t.Fatalf("atmosphere did not receive temperatures")
	}
	if bio.PolarTemperature() != 220 || bio.TropicalTemperature() != 305 {
		t.Fatalf("getters do not read the atmosphere")
	}

	luna := newBody(t, "luna", false)
	if luna.Biosphere.SetPolarTemperature(100) {
		t.Fatalf("setter must report false without an atmosphere")
	}
	if luna.Biosphere.PolarTemperature() != 250 || luna.Biosphere.TropicalTemperature() != 300 {
		t.Fatalf("expected static defaults without an atmosphere")
	}
}

func TestBiosphereDiscoverLife(t *testing.T) {
	earth := newEarth(t)
	bio := earth.Biosphere
	if got := bio.DiscoverLife(rand.New(rand.NewPCG(1, 2))); got != nil {
		t.Fatalf("no life below the threshold, got %v", got)
	}
	for i := 1; i <= 10; i++ {
		bio.IntroduceBiome(testBiome(i))
	}
	rng := rand.New(rand.NewPCG(7, 11))
	var found []LifeForm
	for i := 0; i < 100 && len(found) == 0; i++ {
		found = bio.DiscoverLife(rng)
	}
	if len(found) != 1 {
		t.Fatalf("expected a discovery within 100 rolls")
	}
	lf := found[0]
	if lf.Population < 1000 || lf.Population > 1000000 {
		t.Fatalf("population out of range: %d", lf.Population)
	}
	if !slices.Contains(lifeDomains, lf.Domain) || lf.Properties["habitat"] == "" {
		t.Fatalf("unexpected life form %+v", lf)
	}
	if len(bio.LifeForms) != 1 {
		t.Fatalf("life form not recorded")
	}

	again := newEarth(t)
	for i := 1; i <= 10; i++ {
		again.Biosphere.IntroduceBiome(testBiome(i))
	}
	replay := rand.New(rand.NewPCG(7, 11))
	var second []LifeForm
	for i := 0; i < 100 && len(second) == 0; i++ {
		second = again.Biosphere.DiscoverLife(replay)
	}
	if len(second) != 1 || second[0].Population != lf.Population || second[0].Domain != lf.Domain {
		t.Fatalf("same seed produced different outcome: %+v vs %+v", second, lf)
	}
}

func TestBiosphereResetScope(t *testing.T) {
	earth := newEarth(t)
	bio := earth.Biosphere
	bio.IntroduceBiome(testBiome(1))
	bio.CaptureBaseValues()

	bio.IntroduceBiome(testBiome(2))
	if err := bio.AddMaterial("organic matter", 50, LayerDefault); err != nil {
		t.Fatalf("add: %v", err)
	}
	bio.SoilHealth = 42
	if !bio.Reset() {
		t.Fatalf("expected reset")
	}
	if len(bio.Biomes) != 1 || !approx(bio.BiodiversityIndex, 0.1, 1e-12) {
		t.Fatalf("biome links not restored: %v", bio.BiomeNames())
	}
	if bio.Amount("Organic Matter") != 50 || bio.SoilHealth != 42 {
		t.Fatalf("reset must leave pool and soil health untouched")
	}
}

func TestMaterialNullAmountDecodesToZero(t *testing.T) {
	var m Material
	if err := json.Unmarshal([]byte(`{"name":"Water","amount":null,"state":"liquid","location":"hydrosphere"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Amount != 0 || m.Sphere != SphereHydrosphere {
		t.Fatalf("unexpected material %+v", m)
	}
}
