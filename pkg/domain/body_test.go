package domain

import (
	"encoding/json"
	"testing"
)

func TestCelestialBodyCloneIsDeep(t *testing.T) {
	earth := newEarth(t)
	seedEarthAir(t, earth.Atmosphere)
	if err := earth.Geosphere.AddMaterial("Iron", 10, LayerCore); err != nil {
		t.Fatalf("add: %v", err)
	}
	cp := earth.Clone()
	if cp.Atmosphere.Body() != cp || cp.Geosphere.Body() != cp || cp.Biosphere.Body() != cp {
		t.Fatalf("clone spheres must point at the clone")
	}
	if _, err := cp.Atmosphere.AddGas("CH4", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := cp.Geosphere.AddMaterial("Iron", 5, LayerCore); err != nil {
		t.Fatalf("add: %v", err)
	}
	if earth.Atmosphere.GasMass("CH4") != 0 {
		t.Fatalf("clone shares gases with original")
	}
	core, _ := earth.Geosphere.Layer(LayerCore)
	if core.TotalMass != 10 {
		t.Fatalf("clone shares layers with original")
	}

	value := *cp
	value.Rebind()
	if value.Hydrosphere.Body() != &value {
		t.Fatalf("rebind must point spheres at the copy")
	}
}

func TestCelestialBodyJSONRebinds(t *testing.T) {
	earth := newEarth(t)
	seedEarthAir(t, earth.Atmosphere)
	if err := earth.Hydrosphere.AddLiquid(500); err != nil {
		t.Fatalf("add: %v", err)
	}
	raw, err := json.Marshal(earth)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded CelestialBody
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Atmosphere.Body() != &decoded || decoded.Hydrosphere.Body() != &decoded {
		t.Fatalf("decoded spheres not bound to the body")
	}
	decoded.Bind(testEnv())
	if decoded.Hydrosphere.WaterMass() != 500 || !approx(decoded.Atmosphere.GasPercentage("O2"), 20.95, 1e-6) {
		t.Fatalf("decoded state differs")
	}
	if !decoded.Hydrosphere.TransferMaterial("water", 100, decoded.Biosphere) {
		t.Fatalf("decoded body cannot transfer")
	}
}

func TestCelestialBodyAirless(t *testing.T) {
	luna := newBody(t, "luna", false)
	if _, ok := luna.Sphere(SphereAtmosphere); ok {
		t.Fatalf("airless body reports an atmosphere")
	}
	if len(luna.Spheres()) != 3 {
		t.Fatalf("expected three spheres, got %d", len(luna.Spheres()))
	}
	raw, err := json.Marshal(luna)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := fields["atmosphere"]; ok {
		t.Fatalf("airless body serialized an atmosphere")
	}
	if restored, err := luna.Reset(); err != nil || restored {
		t.Fatalf("reset without base values: %v %v", restored, err)
	}
}
