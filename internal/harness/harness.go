// Package harness provides a conformance testing framework for the
// integration gate.
//
// Scenarios are YAML files describing an arrival order of ops, a rule
// set, a number of gate runs, and assertions over the resulting trace
// and store state. Every scenario executes against a fresh in-memory
// database with deterministic sequence numbers, pass tokens, and
// integration timestamps, so the same scenario always produces a
// byte-identical trace - the basis for golden file comparison.
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/sluicedb/sluice/internal/gate"
	"github.com/sluicedb/sluice/internal/op"
	"github.com/sluicedb/sluice/internal/store"
	"github.com/sluicedb/sluice/internal/testutil"
)

// scenarioTime is the fixed integration timestamp for every scenario
// run. Watermarks must be deterministic for final_state assertions.
var scenarioTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Build the rule set (scenario rules or built-in defaults)
//  3. Write arrivals with clock-assigned sequence numbers
//  4. Execute the requested number of gate runs
//  5. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	rules, err := buildRules(scenario.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to build rules: %w", err)
	}

	clock := testutil.NewArrivalClock()
	passGen := testutil.NewRepeatingPassGenerator(scenario.PassToken)

	g := gate.New(st, rules,
		gate.WithTokenGenerator(passGen),
		gate.WithNow(func() time.Time { return scenarioTime }),
	)

	ctx := context.Background()
	result := NewResult()

	if err := executeArrivals(ctx, st, clock, scenario.Arrivals, result); err != nil {
		return nil, fmt.Errorf("failed to execute arrivals: %w", err)
	}

	if err := executeRuns(ctx, st, g, scenario.Runs, result); err != nil {
		return nil, fmt.Errorf("failed to execute gate runs: %w", err)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// buildRules converts scenario rule steps into a validated rule set.
// An empty list selects the built-in defaults.
func buildRules(steps []RuleStep) (*gate.RuleSet, error) {
	if len(steps) == 0 {
		return gate.DefaultRules(), nil
	}

	rules := make([]gate.Rule, len(steps))
	for i, step := range steps {
		rules[i] = gate.Rule{
			Type:      op.Type(step.Type),
			DependsOn: op.Type(step.DependsOn),
		}
	}
	return gate.NewRuleSet(rules)
}

// executeArrivals writes each arrival in order, assigning sequence
// numbers from the clock and advancing ops carrying a status to
// awaiting integration.
func executeArrivals(ctx context.Context, st *store.Store, clock *testutil.ArrivalClock, arrivals []ArrivalStep, result *Result) error {
	for i, arrival := range arrivals {
		seq := clock.Next()

		o, err := op.New(op.Type(arrival.Type), arrival.Action, arrival.Dependency, arrival.Origin, seq)
		if err != nil {
			return fmt.Errorf("arrival %d: %w", i, err)
		}

		if err := st.WriteOp(ctx, o); err != nil {
			return fmt.Errorf("arrival %d: failed to write op: %w", i, err)
		}

		if arrival.Status != "" {
			status := op.ValidationStatus(arrival.Status)
			if err := st.SetValidation(ctx, o.Hash, status, op.StageAwaitingIntegration); err != nil {
				return fmt.Errorf("arrival %d: failed to set validation: %w", i, err)
			}
		}

		result.AddArrivalTrace(arrival.Type, arrival.Action, seq, arrival.Status)
	}
	return nil
}

// executeRuns runs the gate the requested number of times, tracing
// each run and its promotions. Promotions are traced in rule scan
// order so the trace is deterministic.
func executeRuns(ctx context.Context, st *store.Store, g *gate.Gate, runs int, result *Result) error {
	if runs == 0 {
		runs = 1
	}

	for r := 0; r < runs; r++ {
		report, err := g.IntegrateAll(ctx)
		if err != nil {
			return fmt.Errorf("run %d: %w", r, err)
		}

		result.AddRunTrace(report.PassToken, report.Passes, report.Total())

		for _, rule := range g.Rules().Rules() {
			for _, hash := range report.Promoted[rule.Type] {
				promoted, err := st.ReadOp(ctx, hash)
				if err != nil {
					return fmt.Errorf("run %d: failed to read promoted op %s: %w", r, hash, err)
				}
				result.AddPromotedTrace(string(rule.Type), promoted.Action, hash)
			}
		}
	}
	return nil
}
