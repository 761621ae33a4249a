package core

import (
	"context"
	"math"
	"testing"

	"spherecore/pkg/domain"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return NewInMemoryService(NewDefaultRulesEngine(), opts...)
}

// createEarth stores an Earth-like body with nitrogen/oxygen air and water.
func createEarth(t *testing.T, svc *Service) CelestialBody {
	t.Helper()
	ctx := context.Background()
	earth, _, err := svc.CreateBody(ctx, *domain.NewCelestialBody("Earth", 9.807, 288, 6.371e6, 5.972e24, true))
	if err != nil {
		t.Fatalf("create earth: %v", err)
	}
	for formula, mass := range map[string]float64{"N2": 780, "O2": 210} {
		if _, _, err := svc.AddGas(ctx, earth.ID, formula, mass); err != nil {
			t.Fatalf("add %s: %v", formula, err)
		}
	}
	if _, _, err := svc.AddMaterial(ctx, earth.ID, domain.SphereHydrosphere, "water", 1e6, domain.LayerDefault); err != nil {
		t.Fatalf("add water: %v", err)
	}
	got, _ := svc.GetBody(earth.ID)
	return got
}

func createAirless(t *testing.T, svc *Service, name string) CelestialBody {
	t.Helper()
	body, _, err := svc.CreateBody(context.Background(), *domain.NewCelestialBody(name, 1.62, 250, 1.737e6, 7.35e22, false))
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return body
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
