package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{})
	result.Merge(Result{Violations: []Violation{{Rule: "habitability_bounds", Severity: SeverityWarn, Entity: EntityCelestialBody, EntityID: "mars"}}})
	if result.HasBlocking() {
		t.Fatalf("warnings must not block")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "mass_ledger", Severity: SeverityBlock, Entity: EntityCelestialBody, EntityID: "earth", Message: "hydrosphere drift"}}})
	if !result.HasBlocking() || len(result.Blocking()) != 1 || len(result.Violations) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	msg := RuleViolationError{Result: result}.Error()
	if !strings.Contains(msg, "mass_ledger [block] on celestial_body earth: hydrosphere drift") || strings.Contains(msg, "habitability_bounds") {
		t.Fatalf("unexpected error text %q", msg)
	}
	if got := (RuleViolationError{}).Error(); got != "transaction blocked by rules" {
		t.Fatalf("unexpected empty error text %q", got)
	}
}

type staticRule struct {
	name string
	sev  Severity
	err  error
}

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	if r.err != nil {
		return Result{}, r.err
	}
	return Result{Violations: []Violation{{Rule: r.name, Severity: r.sev}}}, nil
}

type emptyView struct{}

func (emptyView) ListBodies() []CelestialBody           { return nil }
func (emptyView) ListBiomes() []Biome                   { return nil }
func (emptyView) FindBody(string) (CelestialBody, bool) { return CelestialBody{}, false }
func (emptyView) FindBiome(string) (Biome, bool)        { return Biome{}, false }

func TestRulesEngineEvaluate(t *testing.T) {
	boom := errors.New("boom")
	changes := []Change{{Entity: EntityCelestialBody, Action: ActionUpdate}}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name    string
		rules   []Rule
		ctx     context.Context
		changes []Change
		want    int
		wantErr error
	}{
		{name: "merges in order", rules: []Rule{staticRule{name: "a", sev: SeverityWarn}, nil, staticRule{name: "b", sev: SeverityBlock}}, ctx: context.Background(), changes: changes, want: 2},
		{name: "no changes", rules: []Rule{staticRule{name: "a", sev: SeverityBlock}}, ctx: context.Background(), want: 0},
		{name: "rule error", rules: []Rule{staticRule{name: "a", err: boom}}, ctx: context.Background(), changes: changes, wantErr: boom},
		{name: "cancelled", rules: []Rule{staticRule{name: "a", sev: SeverityWarn}}, ctx: cancelled, changes: changes, wantErr: context.Canceled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := NewRulesEngine()
			engine.Register(tc.rules...)
			res, err := engine.Evaluate(tc.ctx, emptyView{}, tc.changes)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil || len(res.Violations) != tc.want {
				t.Fatalf("expected %d violations, got %+v err=%v", tc.want, res, err)
			}
		})
	}

	engine := NewRulesEngine()
	engine.Register(staticRule{name: "a"}, staticRule{name: "b"})
	if rules := engine.Rules(); len(rules) != 2 || rules[1].Name() != "b" {
		t.Fatalf("unexpected rule order %v", rules)
	}
	var nilEngine *RulesEngine
	if res, err := nilEngine.Evaluate(context.Background(), emptyView{}, changes); err != nil || len(res.Violations) != 0 || nilEngine.Rules() != nil {
		t.Fatalf("nil engine must evaluate to nothing")
	}
	if _, err := engine.Evaluate(context.Background(), emptyView{}, changes); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	failing := NewRulesEngine()
	failing.Register(staticRule{name: "ledger", err: boom})
	_, err := failing.Evaluate(context.Background(), emptyView{}, changes)
	if err == nil || !strings.HasPrefix(err.Error(), "rule ledger: ") || errors.Unwrap(err) != boom {
		t.Fatalf("rule errors must carry the rule name, got %v", err)
	}
}
