package core

import (
	"context"
	"fmt"
	"sort"

	"spherecore/pkg/domain"
)

// NewMassLedgerRule returns the rule requiring every pool's declared total to
// equal the sum of its rows.
func NewMassLedgerRule() domain.Rule {
	return massLedgerRule{}
}

type massLedgerRule struct{}

func (massLedgerRule) Name() string { return "mass_ledger" }

func (r massLedgerRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	add := func(body CelestialBody, where string, declared, sum float64) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s (%s) %s declares %g kg but rows hold %g kg", body.Name, body.ID, where, declared, sum),
			Entity:   domain.EntityCelestialBody,
			EntityID: body.ID,
		})
	}
	for _, body := range changedBodies(changes) {
		for _, p := range bodyPools(body) {
			if sum := p.Sum(); !withinRelative(sum, p.TotalMass, ledgerTolerance) {
				add(body, p.name, p.TotalMass, sum)
			}
		}
		if atm := body.Atmosphere; atm != nil && len(atm.Gases) > 0 {
			var sum float64
			for _, g := range atm.Gases {
				sum += g.Mass
			}
			if !withinRelative(sum, atm.TotalAtmosphericMass, ledgerTolerance) {
				add(body, "atmosphere", atm.TotalAtmosphericMass, sum)
			}
		}
	}
	return res, nil
}

func sortedNames[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
