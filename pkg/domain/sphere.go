package domain

import (
	"fmt"
	"math"
)

// SphereKind enumerates the closed set of sphere variants.
type SphereKind string

// Sphere kinds.
const (
	SphereAtmosphere  SphereKind = "atmosphere"
	SphereGeosphere   SphereKind = "geosphere"
	SphereHydrosphere SphereKind = "hydrosphere"
	SphereBiosphere   SphereKind = "biosphere"
)

// Logger is the structured logging surface used by spheres and services.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Environment carries the collaborators a celestial body lends to its spheres.
type Environment struct {
	Lookup  MaterialLookup
	Physics Physics
	Logger  Logger
}

// Sphere is the capability shared by the four sphere kinds. The unexported
// methods keep the set closed to this package.
type Sphere interface {
	Kind() SphereKind
	Body() *CelestialBody
	AddMaterial(name string, amount float64, layer Layer) error
	// RemoveMaterial returns the mass actually removed, capped at availability.
	RemoveMaterial(name string, amount float64, layer Layer) (float64, error)
	// TransferMaterial moves amount of name into target, all or nothing.
	TransferMaterial(name string, amount float64, target Sphere) bool
	// Reset restores the last captured base values; false when none exist.
	Reset() bool

	available(name string) (float64, error)
	checkpoint() func()
}

var (
	_ Sphere = (*Atmosphere)(nil)
	_ Sphere = (*Geosphere)(nil)
	_ Sphere = (*Hydrosphere)(nil)
	_ Sphere = (*Biosphere)(nil)
)

// Transfer atomically moves amount of the named material from source to
// target. Both spheres are checkpointed before mutation; any failure on either
// side, including a panic, restores both and reports false.
func Transfer(source, target Sphere, name string, amount float64) (ok bool) {
	if source == nil || target == nil || source.Body() == nil || target.Body() == nil {
		return false
	}
	logger := source.Body().logger()
	if err := validAmount(amount); err != nil {
		logger.Warn("transfer rejected", "material", name, "error", err)
		return false
	}
	if source == target {
		logger.Warn("transfer rejected", "material", name, "error", "source and target are the same sphere")
		return false
	}
	have, err := source.available(name)
	if err != nil {
		logger.Warn("transfer rejected", "material", name, "source", source.Kind(), "error", err)
		return false
	}
	if have+zeroEpsilon < amount {
		logger.Warn("transfer rejected", "material", name, "source", source.Kind(),
			"error", fmt.Errorf("%w: have %g, need %g", ErrInsufficientQuantity, have, amount))
		return false
	}

	restoreSource := source.checkpoint()
	restoreTarget := target.checkpoint()
	rollback := func(cause any) {
		restoreSource()
		restoreTarget()
		logger.Error("transfer rolled back", "material", name, "amount", amount,
			"source", source.Kind(), "source_body", source.Body().ID,
			"target", target.Kind(), "target_body", target.Body().ID, "error", cause)
		ok = false
	}
	defer func() {
		if r := recover(); r != nil {
			rollback(r)
		}
	}()

	removed, err := source.RemoveMaterial(name, amount, LayerDefault)
	if err != nil {
		rollback(err)
		return false
	}
	if math.Abs(removed-amount) > zeroEpsilon {
		rollback(fmt.Errorf("%w: removed %g of %g", ErrInsufficientQuantity, removed, amount))
		return false
	}
	if err := target.AddMaterial(name, removed, LayerDefault); err != nil {
		rollback(err)
		return false
	}
	logger.Debug("material transferred", "material", name, "amount", removed,
		"source", source.Kind(), "target", target.Kind())
	return true
}

func requireDefaultLayer(kind SphereKind, layer Layer) error {
	if layer != LayerDefault {
		return fmt.Errorf("%w: %s has no layer %q", ErrInvalidLayer, kind, layer)
	}
	return nil
}
