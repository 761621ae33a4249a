package core

import (
	"context"
	"fmt"
	"math"

	"spherecore/pkg/domain"
)

// NewCompositionBalanceRule returns the rule blocking commits that leave a
// non-empty pool or atmosphere whose percentages do not sum to 100.
func NewCompositionBalanceRule() domain.Rule {
	return compositionBalanceRule{}
}

type compositionBalanceRule struct{}

func (compositionBalanceRule) Name() string { return "composition_balance" }

func (r compositionBalanceRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, body := range changedBodies(changes) {
		for _, p := range bodyPools(body) {
			if p.TotalMass <= 0 {
				continue
			}
			if sum := sumValues(p.Composition); math.Abs(sum-100) > compositionTolerance {
				res.Violations = append(res.Violations, r.violation(body, p.name, sum))
			}
		}
		if atm := body.Atmosphere; atm != nil && len(atm.Gases) > 0 && atm.TotalAtmosphericMass > 0 {
			var sum float64
			for _, g := range atm.Gases {
				sum += g.Percentage
			}
			if math.Abs(sum-100) > compositionTolerance {
				res.Violations = append(res.Violations, r.violation(body, "atmosphere", sum))
			}
		}
	}
	return res, nil
}

func (r compositionBalanceRule) violation(body CelestialBody, where string, sum float64) domain.Violation {
	return domain.Violation{
		Rule:     r.Name(),
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("%s (%s) %s composition sums to %.4f%%", body.Name, body.ID, where, sum),
		Entity:   domain.EntityCelestialBody,
		EntityID: body.ID,
	}
}
