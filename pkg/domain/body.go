package domain

import "encoding/json"

// CelestialBody owns one sphere of each kind and lends its environment to them.
// The atmosphere is optional; airless bodies leave it nil.
type CelestialBody struct {
	Base
	Name string `json:"name"`
	// Gravity is surface gravity in m/s².
	Gravity float64 `json:"gravity"`
	// SurfaceTemperature is in K.
	SurfaceTemperature float64 `json:"surface_temperature"`
	// Radius is in m.
	Radius float64 `json:"radius"`
	// Mass is in kg.
	Mass float64 `json:"mass"`

	Atmosphere  *Atmosphere  `json:"atmosphere,omitempty"`
	Geosphere   *Geosphere   `json:"geosphere"`
	Hydrosphere *Hydrosphere `json:"hydrosphere"`
	Biosphere   *Biosphere   `json:"biosphere"`

	env Environment
}

// NewCelestialBody constructs a body with default spheres. withAtmosphere
// controls whether an (empty) atmosphere is created.
func NewCelestialBody(name string, gravity, surfaceTemperature, radius, mass float64, withAtmosphere bool) *CelestialBody {
	b := &CelestialBody{
		Name:               name,
		Gravity:            gravity,
		SurfaceTemperature: surfaceTemperature,
		Radius:             radius,
		Mass:               mass,
	}
	if withAtmosphere {
		b.Atmosphere = NewAtmosphere(surfaceTemperature, 0)
	}
	b.EnsureSpheres()
	return b
}

// EnsureSpheres creates any missing geosphere, hydrosphere, or biosphere with
// default values and binds every sphere to the body.
func (b *CelestialBody) EnsureSpheres() {
	if b.Geosphere == nil {
		b.Geosphere = NewGeosphere(b.SurfaceTemperature)
	}
	if b.Hydrosphere == nil {
		b.Hydrosphere = NewHydrosphere(b.SurfaceTemperature)
	}
	if b.Biosphere == nil {
		b.Biosphere = NewBiosphere()
	}
	b.bindSpheres()
}

// Bind attaches the environment and rebinds every sphere to the body.
func (b *CelestialBody) Bind(env Environment) {
	env.Physics = env.Physics.WithDefaults()
	if env.Logger == nil {
		env.Logger = noopLogger{}
	}
	b.env = env
	b.bindSpheres()
}

// Environment returns the bound environment.
func (b *CelestialBody) Environment() Environment { return b.env }

func (b *CelestialBody) bindSpheres() {
	if b.Atmosphere != nil {
		b.Atmosphere.body = b
	}
	if b.Geosphere != nil {
		b.Geosphere.body = b
		for _, l := range b.Geosphere.Layers {
			l.Pool.rebind(b.ID)
		}
	}
	if b.Hydrosphere != nil {
		b.Hydrosphere.body = b
		b.Hydrosphere.Pool.rebind(b.ID)
	}
	if b.Biosphere != nil {
		b.Biosphere.body = b
		b.Biosphere.Pool.rebind(b.ID)
	}
}

func (b *CelestialBody) lookup() MaterialLookup { return b.env.Lookup }

func (b *CelestialBody) physics() Physics {
	if b.env.Physics.GasConstant == 0 {
		return DefaultPhysics()
	}
	return b.env.Physics
}

func (b *CelestialBody) logger() Logger {
	if b.env.Logger == nil {
		return noopLogger{}
	}
	return b.env.Logger
}

// Spheres returns the body's present spheres in a stable order.
func (b *CelestialBody) Spheres() []Sphere {
	out := make([]Sphere, 0, 4)
	if b.Atmosphere != nil {
		out = append(out, b.Atmosphere)
	}
	if b.Geosphere != nil {
		out = append(out, b.Geosphere)
	}
	if b.Hydrosphere != nil {
		out = append(out, b.Hydrosphere)
	}
	if b.Biosphere != nil {
		out = append(out, b.Biosphere)
	}
	return out
}

// Sphere returns the sphere of the given kind, if present.
func (b *CelestialBody) Sphere(kind SphereKind) (Sphere, bool) {
	switch kind {
	case SphereAtmosphere:
		if b.Atmosphere != nil {
			return b.Atmosphere, true
		}
	case SphereGeosphere:
		if b.Geosphere != nil {
			return b.Geosphere, true
		}
	case SphereHydrosphere:
		if b.Hydrosphere != nil {
			return b.Hydrosphere, true
		}
	case SphereBiosphere:
		if b.Biosphere != nil {
			return b.Biosphere, true
		}
	}
	return nil, false
}

// CaptureBaseValues snapshots every sphere's tunable state for Reset.
func (b *CelestialBody) CaptureBaseValues() {
	if b.Atmosphere != nil {
		b.Atmosphere.CaptureBaseValues()
	}
	if b.Geosphere != nil {
		b.Geosphere.CaptureBaseValues()
	}
	if b.Hydrosphere != nil {
		b.Hydrosphere.CaptureBaseValues()
	}
	if b.Biosphere != nil {
		b.Biosphere.CaptureBaseValues()
	}
}

// Reset restores every sphere from its base values and re-derives the
// geosphere's material rows. It reports whether any sphere was restored.
func (b *CelestialBody) Reset() (bool, error) {
	restored := false
	for _, s := range b.Spheres() {
		if s.Reset() {
			restored = true
		}
	}
	if b.Geosphere != nil && b.Geosphere.BaseValues != nil {
		if err := b.Geosphere.RebuildMaterials(); err != nil {
			return restored, err
		}
	}
	return restored, nil
}

// Clone returns a deep copy sharing the bound environment. The copy's spheres
// refer back to the returned pointer; callers that copy the value must Rebind.
func (b *CelestialBody) Clone() *CelestialBody {
	cp := *b
	cp.Atmosphere = b.Atmosphere.clone()
	cp.Geosphere = b.Geosphere.clone()
	cp.Hydrosphere = b.Hydrosphere.clone()
	cp.Biosphere = b.Biosphere.clone()
	cp.bindSpheres()
	return &cp
}

// Rebind points every sphere back at b. Values copied out of a store must be
// rebound before sphere operations that consult the owning body.
func (b *CelestialBody) Rebind() { b.bindSpheres() }

// UnmarshalJSON decodes the body and restores sphere back-references.
func (b *CelestialBody) UnmarshalJSON(data []byte) error {
	type bodyAlias CelestialBody
	var aux bodyAlias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	env := b.env
	*b = CelestialBody(aux)
	b.env = env
	b.bindSpheres()
	return nil
}
