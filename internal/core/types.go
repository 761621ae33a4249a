package core

import "spherecore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	CelestialBody      = domain.CelestialBody
	Biome              = domain.Biome
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	Layer              = domain.Layer
	SphereKind         = domain.SphereKind
	Physics            = domain.Physics
	MaterialLookup     = domain.MaterialLookup
)

const (
	EntityCelestialBody = domain.EntityCelestialBody
	EntityBiome         = domain.EntityBiome
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// ErrNotFound is returned when an operation references a missing body or biome.
type ErrNotFound = domain.NotFoundError
