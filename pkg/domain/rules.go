package domain

import (
	"context"
	"fmt"
)

// RuleView provides read-only access to the committed world for rule evaluation.
type RuleView interface {
	ListBodies() []CelestialBody
	ListBiomes() []Biome
	FindBody(id string) (CelestialBody, bool)
	FindBiome(id string) (Biome, bool)
}

// Rule inspects the changes of one transaction before it commits.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine runs registered rules in registration order. It is not safe
// for concurrent Register calls; stores serialize Evaluate behind their
// transaction lock.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine returns an engine with no rules.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends rules to the engine. Nil rules are ignored.
func (e *RulesEngine) Register(rules ...Rule) {
	for _, r := range rules {
		if r != nil {
			e.rules = append(e.rules, r)
		}
	}
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule {
	if e == nil {
		return nil
	}
	return append([]Rule(nil), e.rules...)
}

// Evaluate runs every rule against changes and merges their violations. A
// nil engine or an empty change set yields an empty result. Evaluation stops
// at the first rule error or when ctx is done.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	if e == nil || len(changes) == 0 {
		return combined, nil
	}
	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		combined.Merge(res)
	}
	return combined, nil
}
