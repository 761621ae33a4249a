package core

import (
	"context"
	"fmt"

	"spherecore/pkg/domain"
)

// NewHabitabilityBoundsRule returns a warning rule flagging biosphere and
// geosphere indices outside their documented ranges.
func NewHabitabilityBoundsRule() domain.Rule {
	return habitabilityBoundsRule{}
}

type habitabilityBoundsRule struct{}

func (habitabilityBoundsRule) Name() string { return "habitability_bounds" }

func (r habitabilityBoundsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	check := func(body CelestialBody, field string, v, lo, hi float64) {
		if v >= lo && v <= hi {
			return
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("%s (%s) %s %g outside [%g, %g]", body.Name, body.ID, field, v, lo, hi),
			Entity:   domain.EntityCelestialBody,
			EntityID: body.ID,
		})
	}
	for _, body := range changedBodies(changes) {
		if bio := body.Biosphere; bio != nil {
			check(body, "biodiversity_index", bio.BiodiversityIndex, 0, 1)
			check(body, "habitable_ratio", bio.HabitableRatio, 0, 1)
			check(body, "soil_health", bio.SoilHealth, 0, 100)
			check(body, "vegetation_cover", bio.VegetationCover, 0, 100)
		}
		if geo := body.Geosphere; geo != nil {
			check(body, "geological_activity", geo.GeologicalActivity, 0, 100)
		}
	}
	return res, nil
}
