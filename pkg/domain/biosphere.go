package domain

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Biome is a standalone biome definition linked into biospheres by id.
type Biome struct {
	Base
	Name string `json:"name"`
	// TemperatureRange is [min, max] in K.
	TemperatureRange [2]float64 `json:"temperature_range"`
	// HumidityRange is [min, max] in percent.
	HumidityRange [2]float64 `json:"humidity_range"`
	Tags          []string   `json:"tags,omitempty"`
}

func (b Biome) key() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// CloneBiome returns a deep copy of b.
func CloneBiome(b Biome) Biome {
	cp := b
	cp.Tags = append([]string(nil), b.Tags...)
	return cp
}

// BiomeCoverage is a biome's share of the biosphere surface.
type BiomeCoverage struct {
	AreaPercentage float64 `json:"area_percentage"`
}

// LifeForm is an organism population discovered on a body.
type LifeForm struct {
	Name       string            `json:"name"`
	Complexity string            `json:"complexity"`
	Domain     string            `json:"domain"`
	Population int64             `json:"population"`
	Properties map[string]string `json:"properties,omitempty"`
}

// BiosphereBaseValues is the reset checkpoint of a biosphere. Temperatures are
// owned by the atmosphere and are not part of it.
type BiosphereBaseValues struct {
	BiodiversityIndex float64                  `json:"biodiversity_index"`
	HabitableRatio    float64                  `json:"habitable_ratio"`
	BiomeDistribution map[string]BiomeCoverage `json:"biome_distribution"`
	Biomes            map[string]Biome         `json:"biomes"`
}

func (v BiosphereBaseValues) clone() BiosphereBaseValues {
	cp := v
	cp.BiomeDistribution = cloneCoverage(v.BiomeDistribution)
	cp.Biomes = cloneBiomes(v.Biomes)
	return cp
}

// Biosphere holds biome links, ecological scores, and an organic material pool.
type Biosphere struct {
	Pool
	Biomes            map[string]Biome         `json:"biomes"`
	BiomeDistribution map[string]BiomeCoverage `json:"biome_distribution"`
	BiodiversityIndex float64                  `json:"biodiversity_index"`
	HabitableRatio    float64                  `json:"habitable_ratio"`
	// SoilHealth and VegetationCover are 0-100 trackers.
	SoilHealth      float64              `json:"soil_health"`
	VegetationCover float64              `json:"vegetation_cover"`
	LifeForms       []LifeForm           `json:"life_forms,omitempty"`
	BaseValues      *BiosphereBaseValues `json:"base_values,omitempty"`

	body *CelestialBody
}

// NewBiosphere returns an empty biosphere.
func NewBiosphere() *Biosphere {
	return &Biosphere{
		Pool:              Pool{Materials: map[string]Material{}, Composition: map[string]float64{}},
		Biomes:            map[string]Biome{},
		BiomeDistribution: map[string]BiomeCoverage{},
	}
}

// Kind implements Sphere.
func (b *Biosphere) Kind() SphereKind { return SphereBiosphere }

// Body implements Sphere.
func (b *Biosphere) Body() *CelestialBody {
	if b == nil {
		return nil
	}
	return b.body
}

func (b *Biosphere) lookup() MaterialLookup {
	if b.body == nil {
		return nil
	}
	return b.body.lookup()
}

func (b *Biosphere) physics() Physics {
	if b.body == nil {
		return DefaultPhysics()
	}
	return b.body.physics()
}

// AddMaterial implements Sphere.
func (b *Biosphere) AddMaterial(name string, amount float64, layer Layer) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := requireDefaultLayer(SphereBiosphere, layer); err != nil {
		return err
	}
	rec, err := resolveMaterial(b.lookup(), name)
	if err != nil {
		return err
	}
	owner := ""
	if b.body != nil {
		owner = b.body.ID
	}
	b.deposit(rec, amount, owner, SphereBiosphere, LayerDefault)
	return nil
}

// RemoveMaterial implements Sphere.
func (b *Biosphere) RemoveMaterial(name string, amount float64, layer Layer) (float64, error) {
	if err := validAmount(amount); err != nil {
		return 0, err
	}
	if err := requireDefaultLayer(SphereBiosphere, layer); err != nil {
		return 0, err
	}
	return b.withdraw(poolKey(b.lookup(), name), amount)
}

// TransferMaterial implements Sphere.
func (b *Biosphere) TransferMaterial(name string, amount float64, target Sphere) bool {
	return Transfer(b, target, name, amount)
}

func (b *Biosphere) available(name string) (float64, error) {
	if b == nil {
		return 0, ErrInsufficientQuantity
	}
	return b.Amount(poolKey(b.lookup(), name)), nil
}

// TropicalTemperature reads the atmosphere's tropical temperature, or the
// static default without an atmosphere.
func (b *Biosphere) TropicalTemperature() float64 {
	if b.body == nil || b.body.Atmosphere == nil {
		return b.physics().DefaultTropical
	}
	return b.body.Atmosphere.TropicalTemp()
}

// PolarTemperature reads the atmosphere's polar temperature, or the static
// default without an atmosphere.
func (b *Biosphere) PolarTemperature() float64 {
	if b.body == nil || b.body.Atmosphere == nil {
		return b.physics().DefaultPolar
	}
	return b.body.Atmosphere.PolarTemp()
}

// SetTropicalTemperature writes through to the atmosphere. It reports false
// when the body has no atmosphere.
func (b *Biosphere) SetTropicalTemperature(k float64) bool {
	if b.body == nil || b.body.Atmosphere == nil {
		return false
	}
	b.body.Atmosphere.SetTropicTemp(k)
	return true
}

// SetPolarTemperature writes through to the atmosphere. It reports false when
// the body has no atmosphere.
func (b *Biosphere) SetPolarTemperature(k float64) bool {
	if b.body == nil || b.body.Atmosphere == nil {
		return false
	}
	b.body.Atmosphere.SetPolarTemp(k)
	return true
}

// IntroduceBiome links a biome with the default area share. It reports false
// if the biome was already linked.
func (b *Biosphere) IntroduceBiome(biome Biome) bool {
	if b.Biomes == nil {
		b.Biomes = make(map[string]Biome)
	}
	if b.BiomeDistribution == nil {
		b.BiomeDistribution = make(map[string]BiomeCoverage)
	}
	key := biome.key()
	if _, ok := b.Biomes[key]; ok {
		return false
	}
	b.Biomes[key] = CloneBiome(biome)
	if _, covered := b.BiomeDistribution[biome.Name]; !covered {
		b.BiomeDistribution[biome.Name] = BiomeCoverage{AreaPercentage: b.physics().DefaultBiomeShare}
	}
	b.BiodiversityIndex = b.CalculateBiodiversityIndex()
	return true
}

// RemoveBiome unlinks a biome. It reports false if the biome was not linked.
func (b *Biosphere) RemoveBiome(biome Biome) bool {
	key := biome.key()
	existing, ok := b.Biomes[key]
	if !ok {
		return false
	}
	delete(b.Biomes, key)
	if !b.linksName(existing.Name) {
		delete(b.BiomeDistribution, existing.Name)
	}
	b.BiodiversityIndex = b.CalculateBiodiversityIndex()
	return true
}

// linksName reports whether any linked biome carries name. Coverage rows are
// keyed by name and shared by same-named biomes.
func (b *Biosphere) linksName(name string) bool {
	for _, linked := range b.Biomes {
		if linked.Name == name {
			return true
		}
	}
	return false
}

// BiomeNames returns the linked biome names sorted.
func (b *Biosphere) BiomeNames() []string {
	names := make([]string, 0, len(b.Biomes))
	for _, biome := range b.Biomes {
		names = append(names, biome.Name)
	}
	sort.Strings(names)
	return names
}

// CalculateBiodiversityIndex returns min(distinct biomes / variety cap, 1).
func (b *Biosphere) CalculateBiodiversityIndex() float64 {
	distinct := make(map[string]struct{}, len(b.Biomes))
	for _, biome := range b.Biomes {
		distinct[biome.Name] = struct{}{}
	}
	if len(distinct) == 0 {
		return 0
	}
	return math.Min(float64(len(distinct))/b.physics().MaxBiomeVariety, 1)
}

// ExpandedBiodiversityIndex blends biome variety with discovered life forms.
func (b *Biosphere) ExpandedBiodiversityIndex() float64 {
	life := math.Min(float64(len(b.LifeForms))/20, 1)
	return math.Min(b.CalculateBiodiversityIndex()*0.7+life*0.3, 1)
}

// CalculateHabitability scores temperature, pressure, and oxygen on [0,1]
// with weights 0.4, 0.3, and 0.3. It is 0 without an atmosphere or gases.
func (b *Biosphere) CalculateHabitability() float64 {
	if b.body == nil || b.body.Atmosphere == nil {
		return 0
	}
	atm := b.body.Atmosphere
	if len(atm.Gases) == 0 && len(atm.Composition) == 0 {
		return 0
	}
	temperature := b.body.SurfaceTemperature
	if temperature == 0 {
		temperature = atm.Temperature
	}
	pressure := atm.Pressure / b.physics().EarthPressure
	score := 0.4*temperatureFactor(temperature) + 0.3*pressureFactor(pressure) + 0.3*oxygenFactor(atm.O2Percentage())
	return math.Min(math.Max(score, 0), 1)
}

func temperatureFactor(k float64) float64 {
	switch {
	case k < 240 || k > 320:
		return 0
	case k >= 288 && k <= 295:
		return 1
	case k >= 270 && k <= 310:
		return 0.8
	case k >= 250:
		return 0.4
	default:
		return 0.2
	}
}

func pressureFactor(atm float64) float64 {
	switch {
	case atm < 0.3 || atm > 3:
		return 0
	case atm >= 0.7 && atm <= 1.3:
		return 1
	case atm >= 0.5 && atm <= 2.0:
		return 0.7
	default:
		return 0.3
	}
}

func oxygenFactor(pct float64) float64 {
	switch {
	case pct < 5 || pct > 35:
		return 0
	case pct >= 15 && pct <= 25:
		return 1
	case pct >= 10 && pct <= 30:
		return 0.7
	default:
		return 0.3
	}
}

// UpdateScores refreshes the biodiversity index, habitable ratio, soil
// health, and vegetation cover.
func (b *Biosphere) UpdateScores() {
	b.BiodiversityIndex = b.CalculateBiodiversityIndex()
	b.HabitableRatio = b.CalculateHabitability()
	b.UpdateSoilHealth()
	b.UpdateVegetationCover()
}

// UpdateSoilHealth derives soil health from habitability and biodiversity.
func (b *Biosphere) UpdateSoilHealth() float64 {
	b.SoilHealth = math.Min(math.Max(b.HabitableRatio*70+b.BiodiversityIndex*30, 0), 100)
	return b.SoilHealth
}

// UpdateVegetationCover derives vegetation cover from biome area and habitability.
func (b *Biosphere) UpdateVegetationCover() float64 {
	var area float64
	for _, c := range b.BiomeDistribution {
		area += c.AreaPercentage
	}
	b.VegetationCover = math.Min(math.Max(area*b.HabitableRatio, 0), 100)
	return b.VegetationCover
}

var lifeDomains = []string{"archaea", "bacteria", "eukaryota"}

// DiscoverLife rolls for a new life form. Nothing is found below the
// biodiversity threshold; above it the chance is biodiversity × 0.5. The
// random source is injected so callers can make outcomes deterministic.
func (b *Biosphere) DiscoverLife(rng *rand.Rand) []LifeForm {
	if b.BiodiversityIndex < b.physics().LifeThreshold {
		return nil
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if rng.Float64() >= b.BiodiversityIndex*0.5 {
		return nil
	}
	complexity := "microbial"
	if b.HabitableRatio >= 0.5 {
		complexity = "multicellular"
	}
	bodyName := "unknown"
	if b.body != nil && b.body.Name != "" {
		bodyName = b.body.Name
	}
	lf := LifeForm{
		Name:       fmt.Sprintf("%s organism %d", bodyName, len(b.LifeForms)+1),
		Complexity: complexity,
		Domain:     lifeDomains[rng.IntN(len(lifeDomains))],
		Population: 1000 + rng.Int64N(999001),
	}
	if names := b.BiomeNames(); len(names) > 0 {
		lf.Properties = map[string]string{"habitat": names[rng.IntN(len(names))]}
	}
	b.LifeForms = append(b.LifeForms, lf)
	return []LifeForm{lf}
}

func (b *Biosphere) state() BiosphereBaseValues {
	return BiosphereBaseValues{
		BiodiversityIndex: b.BiodiversityIndex,
		HabitableRatio:    b.HabitableRatio,
		BiomeDistribution: b.BiomeDistribution,
		Biomes:            b.Biomes,
	}.clone()
}

func (b *Biosphere) checkpoint() func() {
	snap := b.state()
	pool := b.Pool.clone()
	soil, vegetation := b.SoilHealth, b.VegetationCover
	lifeForms := cloneLifeForms(b.LifeForms)
	return func() {
		b.applyBase(snap)
		b.Pool = pool.clone()
		b.SoilHealth, b.VegetationCover = soil, vegetation
		b.LifeForms = cloneLifeForms(lifeForms)
	}
}

func (b *Biosphere) applyBase(v BiosphereBaseValues) {
	v = v.clone()
	b.BiodiversityIndex = v.BiodiversityIndex
	b.HabitableRatio = v.HabitableRatio
	b.BiomeDistribution = v.BiomeDistribution
	b.Biomes = v.Biomes
}

// CaptureBaseValues records the current scores and biome links as the reset point.
func (b *Biosphere) CaptureBaseValues() {
	v := b.state()
	b.BaseValues = &v
}

// Reset restores the biodiversity index, habitable ratio, biome distribution,
// and biome links only.
func (b *Biosphere) Reset() bool {
	if b.BaseValues == nil {
		return false
	}
	b.applyBase(*b.BaseValues)
	return true
}

func (b *Biosphere) clone() *Biosphere {
	if b == nil {
		return nil
	}
	cp := *b
	cp.Pool = b.Pool.clone()
	cp.Biomes = cloneBiomes(b.Biomes)
	cp.BiomeDistribution = cloneCoverage(b.BiomeDistribution)
	cp.LifeForms = cloneLifeForms(b.LifeForms)
	if b.BaseValues != nil {
		bv := b.BaseValues.clone()
		cp.BaseValues = &bv
	}
	cp.body = nil
	return &cp
}

func cloneBiomes(in map[string]Biome) map[string]Biome {
	if in == nil {
		return nil
	}
	out := make(map[string]Biome, len(in))
	for k, v := range in {
		out[k] = CloneBiome(v)
	}
	return out
}

func cloneCoverage(in map[string]BiomeCoverage) map[string]BiomeCoverage {
	if in == nil {
		return nil
	}
	out := make(map[string]BiomeCoverage, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneLifeForms(in []LifeForm) []LifeForm {
	if in == nil {
		return nil
	}
	out := make([]LifeForm, len(in))
	for i, lf := range in {
		out[i] = lf
		if lf.Properties != nil {
			props := make(map[string]string, len(lf.Properties))
			for k, v := range lf.Properties {
				props[k] = v
			}
			out[i].Properties = props
		}
	}
	return out
}
