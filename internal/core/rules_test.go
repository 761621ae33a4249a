package core

import (
	"context"
	"testing"

	"spherecore/pkg/domain"
)

func healthyBody() CelestialBody {
	b := domain.NewCelestialBody("Test", 9.8, 288, 6e6, 6e24, true)
	b.ID = "test"
	b.Hydrosphere.Materials["Water"] = domain.Material{Name: "Water", Amount: 100, State: domain.StateLiquid}
	b.Hydrosphere.Composition = map[string]float64{"Water": 100}
	b.Hydrosphere.TotalMass = 100
	b.Atmosphere.Gases = map[string]domain.Gas{
		"nitrogen": {ID: "nitrogen", Mass: 75, Percentage: 75},
		"oxygen":   {ID: "oxygen", Mass: 25, Percentage: 25},
	}
	b.Atmosphere.TotalAtmosphericMass = 100
	b.Biosphere.BiodiversityIndex = 0.4
	b.Biosphere.HabitableRatio = 0.9
	return *b
}

func TestDefaultRulesEngine(t *testing.T) {
	engine := NewDefaultRulesEngine()
	names := map[string]bool{}
	for _, r := range engine.Rules() {
		names[r.Name()] = true
	}
	for _, want := range []string{"composition_balance", "non_negative_mass", "mass_ledger", "habitability_bounds"} {
		if !names[want] {
			t.Fatalf("missing rule %s", want)
		}
	}
}

func TestInvariantRules(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*CelestialBody)
		rule     string
		severity Severity
	}{
		{name: "healthy", mutate: func(*CelestialBody) {}},
		{
			name: "composition drift",
			mutate: func(b *CelestialBody) {
				b.Hydrosphere.Composition["Water"] = 90
			},
			rule: "composition_balance", severity: SeverityBlock,
		},
		{
			name: "atmosphere percentages drift",
			mutate: func(b *CelestialBody) {
				g := b.Atmosphere.Gases["oxygen"]
				g.Percentage = 30
				b.Atmosphere.Gases["oxygen"] = g
			},
			rule: "composition_balance", severity: SeverityBlock,
		},
		{
			name: "negative row",
			mutate: func(b *CelestialBody) {
				b.Biosphere.Materials["Biomass"] = domain.Material{Name: "Biomass", Amount: -1}
			},
			rule: "non_negative_mass", severity: SeverityBlock,
		},
		{
			name: "ledger mismatch",
			mutate: func(b *CelestialBody) {
				b.Hydrosphere.TotalMass = 120
			},
			rule: "mass_ledger", severity: SeverityBlock,
		},
		{
			name: "atmosphere ledger mismatch",
			mutate: func(b *CelestialBody) {
				b.Atmosphere.TotalAtmosphericMass = 90
			},
			rule: "mass_ledger", severity: SeverityBlock,
		},
		{
			name: "index out of bounds",
			mutate: func(b *CelestialBody) {
				b.Biosphere.HabitableRatio = 1.5
			},
			rule: "habitability_bounds", severity: SeverityWarn,
		},
	}
	engine := NewDefaultRulesEngine()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := healthyBody()
			tc.mutate(&body)
			res, err := engine.Evaluate(context.Background(), nil, []Change{{Entity: EntityCelestialBody, Action: ActionUpdate, After: body}})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if tc.rule == "" {
				if len(res.Violations) != 0 {
					t.Fatalf("expected no violations, got %+v", res.Violations)
				}
				return
			}
			var hit bool
			for _, v := range res.Violations {
				if v.Rule == tc.rule && v.Severity == tc.severity && v.EntityID == "test" {
					hit = true
				}
			}
			if !hit {
				t.Fatalf("expected %s violation, got %+v", tc.rule, res.Violations)
			}
			if tc.severity == SeverityWarn && res.HasBlocking() {
				t.Fatalf("warning rule must not block")
			}
		})
	}
}

func TestRulesIgnoreDeletesAndBiomes(t *testing.T) {
	body := healthyBody()
	body.Hydrosphere.TotalMass = -5
	changes := []Change{
		{Entity: EntityCelestialBody, Action: ActionDelete, Before: body},
		{Entity: EntityBiome, Action: ActionCreate, After: Biome{Name: "Tundra"}},
	}
	res, err := NewDefaultRulesEngine().Evaluate(context.Background(), nil, changes)
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("expected deletes and biomes to be ignored, got %+v %v", res.Violations, err)
	}
}
