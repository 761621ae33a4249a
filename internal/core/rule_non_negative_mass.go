package core

import (
	"context"
	"fmt"

	"spherecore/pkg/domain"
)

// NewNonNegativeMassRule returns the rule rejecting negative material or gas amounts.
func NewNonNegativeMassRule() domain.Rule {
	return nonNegativeMassRule{}
}

type nonNegativeMassRule struct{}

func (nonNegativeMassRule) Name() string { return "non_negative_mass" }

func (r nonNegativeMassRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	add := func(body CelestialBody, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s (%s): %s", body.Name, body.ID, msg),
			Entity:   domain.EntityCelestialBody,
			EntityID: body.ID,
		})
	}
	for _, body := range changedBodies(changes) {
		for _, p := range bodyPools(body) {
			for _, name := range sortedNames(p.Materials) {
				if amount := p.Materials[name].Amount; amount < 0 {
					add(body, fmt.Sprintf("%s row %s has negative amount %g kg", p.name, name, amount))
				}
			}
			if p.TotalMass < 0 {
				add(body, fmt.Sprintf("%s total mass is negative", p.name))
			}
		}
		if atm := body.Atmosphere; atm != nil {
			for _, id := range sortedNames(atm.Gases) {
				if mass := atm.Gases[id].Mass; mass < 0 {
					add(body, fmt.Sprintf("gas %s has negative mass %g kg", id, mass))
				}
			}
		}
	}
	return res, nil
}
