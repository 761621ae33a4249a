package domain

import "testing"

func TestTransferAcrossBodies(t *testing.T) {
	earth := newEarth(t)
	mars := newBody(t, "mars", true)
	if err := earth.Hydrosphere.AddLiquid(1000); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !earth.Hydrosphere.TransferMaterial("water", 400, mars.Geosphere) {
		t.Fatalf("transfer failed")
	}
	if earth.Hydrosphere.WaterMass() != 600 {
		t.Fatalf("expected 600 kg left on Earth, got %v", earth.Hydrosphere.WaterMass())
	}
	crust, _ := mars.Geosphere.Layer(LayerCrust)
	row, ok := crust.Materials["Water"]
	if !ok || row.Amount != 400 {
		t.Fatalf("expected 400 kg water in Mars crust, got %+v", crust.Materials)
	}
	if row.CelestialBodyID != "mars" || row.Sphere != SphereGeosphere || row.Layer != LayerCrust {
		t.Fatalf("row not attributed to target: %+v", row)
	}
	if total := earth.Hydrosphere.WaterMass() + crust.Amount("Water"); total != 1000 {
		t.Fatalf("mass not conserved: %v", total)
	}
}

func TestTransferRejectsWithoutMutation(t *testing.T) {
	earth := newEarth(t)
	seedEarthAir(t, earth.Atmosphere)
	if err := earth.Hydrosphere.AddLiquid(100); err != nil {
		t.Fatalf("add: %v", err)
	}
	o2 := earth.Atmosphere.GasMass("O2")

	cases := []struct {
		name   string
		source Sphere
		target Sphere
		mat    string
		amount float64
	}{
		{name: "insufficient", source: earth.Hydrosphere, target: earth.Biosphere, mat: "water", amount: 1000},
		{name: "zero", source: earth.Hydrosphere, target: earth.Biosphere, mat: "water", amount: 0},
		{name: "same sphere", source: earth.Hydrosphere, target: earth.Hydrosphere, mat: "water", amount: 1},
		{name: "target rejects gas", source: earth.Atmosphere, target: earth.Geosphere, mat: "O2", amount: 10},
		{name: "unknown", source: earth.Atmosphere, target: earth.Biosphere, mat: "ether", amount: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if Transfer(tc.source, tc.target, tc.mat, tc.amount) {
				t.Fatalf("transfer should fail")
			}
		})
	}
	if earth.Hydrosphere.WaterMass() != 100 || earth.Biosphere.TotalMass != 0 {
		t.Fatalf("failed transfers mutated pools")
	}
	if earth.Atmosphere.GasMass("O2") != o2 || earth.Geosphere.TotalMass() != 0 {
		t.Fatalf("rolled back transfer left residue")
	}
	if !approx(sumPercentages(earth.Atmosphere.Composition), 100, 1e-9) {
		t.Fatalf("atmosphere composition corrupted by rollback")
	}
}

func TestTransferRequiresBoundSpheres(t *testing.T) {
	loose := NewHydrosphere(288)
	earth := newEarth(t)
	if Transfer(loose, earth.Geosphere, "water", 1) || Transfer(earth.Hydrosphere, nil, "water", 1) {
		t.Fatalf("transfer between unbound spheres must fail")
	}
}

func TestTransferIntoAtmosphereAndBack(t *testing.T) {
	earth := newEarth(t)
	mars := newBody(t, "mars", true)
	seedEarthAir(t, earth.Atmosphere)
	if !earth.Atmosphere.TransferMaterial("N2", 1e15, mars.Atmosphere) {
		t.Fatalf("atmosphere transfer failed")
	}
	if mars.Atmosphere.GasMass("nitrogen") != 1e15 || mars.Atmosphere.GasPercentage("N2") != 100 {
		t.Fatalf("mars atmosphere not updated: %+v", mars.Atmosphere.Gases)
	}
	if !mars.Atmosphere.TransferMaterial("N2", 1e15, earth.Atmosphere) {
		t.Fatalf("return transfer failed")
	}
	if len(mars.Atmosphere.Gases) != 0 || mars.Atmosphere.TotalAtmosphericMass != 0 {
		t.Fatalf("depleted gas not deleted")
	}
}

func TestTransferThroughBiosphere(t *testing.T) {
	cases := []struct {
		name       string
		sourceBody string
		targetBody string
		fromBio    bool
	}{
		{name: "biosphere to geosphere same body", sourceBody: "earth", targetBody: "earth", fromBio: true},
		{name: "biosphere to geosphere across bodies", sourceBody: "earth", targetBody: "mars", fromBio: true},
		{name: "geosphere to biosphere", sourceBody: "mars", targetBody: "earth", fromBio: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := newBody(t, tc.sourceBody, true)
			dst := src
			if tc.targetBody != tc.sourceBody {
				dst = newBody(t, tc.targetBody, true)
			}
			var source, target Sphere = src.Biosphere, dst.Geosphere
			if !tc.fromBio {
				source, target = src.Geosphere, dst.Biosphere
			}
			if err := source.AddMaterial("Water", 100, LayerDefault); err != nil {
				t.Fatalf("seed: %v", err)
			}
			if !source.TransferMaterial("Water", 50, target) {
				t.Fatalf("transfer failed")
			}

			bioRow, bioOwner := src.Biosphere.Materials["Water"], tc.sourceBody
			crust, _ := dst.Geosphere.Layer(LayerCrust)
			geoRow, geoOwner := crust.Materials["Water"], tc.targetBody
			if !tc.fromBio {
				bioRow, bioOwner = dst.Biosphere.Materials["Water"], tc.targetBody
				crust, _ = src.Geosphere.Layer(LayerCrust)
				geoRow, geoOwner = crust.Materials["Water"], tc.sourceBody
			}
			if bioRow.Amount != 50 || geoRow.Amount != 50 {
				t.Fatalf("expected 50/50 split, got biosphere=%v geosphere=%v", bioRow.Amount, geoRow.Amount)
			}
			if bioRow.Sphere != SphereBiosphere || bioRow.CelestialBodyID != bioOwner {
				t.Fatalf("biosphere row misattributed: %+v", bioRow)
			}
			if geoRow.Sphere != SphereGeosphere || geoRow.Layer != LayerCrust || geoRow.CelestialBodyID != geoOwner {
				t.Fatalf("geosphere row misattributed: %+v", geoRow)
			}
		})
	}
}
