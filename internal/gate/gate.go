package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sluicedb/sluice/internal/op"
	"github.com/sluicedb/sluice/internal/store"
)

// DefaultMaxPasses bounds the fixed-point iteration. Every productive
// pass strictly shrinks the eligible set, so the bound only trips on a
// store mutated pathologically while the gate runs.
const DefaultMaxPasses = 1000

// Gate promotes eligible operations to integrated.
//
// Thread-safety model:
//   - TryIntegrate / IntegrateAll: safe from any goroutine; the store's
//     single-writer connection serializes overlapping promotions and
//     each promotion is one transaction.
//   - Rules are copied at construction and never mutated.
type Gate struct {
	store  *store.Store
	rules  *RuleSet
	tokens PassTokenGenerator
	now    func() time.Time

	maxPasses int
}

// Option configures a Gate.
type Option func(*Gate)

// WithNow overrides the integration timestamp source. Used by tests to
// pin when_integrated watermarks.
func WithNow(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithTokenGenerator overrides the pass token source.
func WithTokenGenerator(gen PassTokenGenerator) Option {
	return func(g *Gate) {
		g.tokens = gen
	}
}

// WithMaxPasses overrides the fixed-point iteration bound.
func WithMaxPasses(n int) Option {
	return func(g *Gate) {
		g.maxPasses = n
	}
}

// New creates a Gate over the given store and rule set.
func New(s *store.Store, rules *RuleSet, opts ...Option) *Gate {
	g := &Gate{
		store:     s,
		rules:     rules,
		tokens:    UUIDv7Generator{},
		now:       time.Now,
		maxPasses: DefaultMaxPasses,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Rules returns the gate's rule set.
func (g *Gate) Rules() *RuleSet {
	return g.rules
}

// TryIntegrate promotes every eligible op of the given type.
//
// Eligibility composes (a) the validation outcome - stage must be
// AWAITING_INTEGRATION with an accepted status - and (b) the type's
// dependency predicate, vacuous for types without a counterpart.
//
// Returns the promoted hashes. An empty result means no eligible rows
// existed - a no-op, not an error. Safe to call with high frequency,
// concurrently across types, and repeatedly for the same type.
func (g *Gate) TryIntegrate(ctx context.Context, typ op.Type) ([]string, error) {
	rule, ok := g.rules.Rule(typ)
	if !ok {
		return nil, fmt.Errorf("try integrate: no rule for op type %q", typ)
	}

	hashes, err := g.store.PromoteEligible(ctx, rule.Type, rule.DependsOn, g.now())
	if err != nil {
		return nil, fmt.Errorf("try integrate %s: %w", typ, err)
	}

	if len(hashes) > 0 {
		slog.Info("ops integrated",
			"type", typ,
			"count", len(hashes),
		)
		for _, hash := range hashes {
			slog.Debug("op integrated", "type", typ, "hash", hash)
		}
	}

	return hashes, nil
}

// Report describes one IntegrateAll run.
type Report struct {
	PassToken string               // correlation token for this run
	Passes    int                  // full passes executed, including the final empty one
	Promoted  map[op.Type][]string // hashes promoted per type, cumulative over passes
}

// Total returns the number of ops promoted in the run.
func (r Report) Total() int {
	total := 0
	for _, hashes := range r.Promoted {
		total += len(hashes)
	}
	return total
}

// Changed reports whether the run promoted anything.
func (r Report) Changed() bool {
	return r.Total() > 0
}

// IntegrateAll runs the gate to a fixed point: full passes over the
// rule set in declaration order until a pass promotes nothing.
//
// When IntegrateAll returns with a final empty pass there exists no
// eligible-but-unpromoted op given the current store contents -
// integrating A inside a pass is observed by B's predicate in the same
// or the following pass, so chains converge in one invocation.
func (g *Gate) IntegrateAll(ctx context.Context) (Report, error) {
	report := Report{
		PassToken: g.tokens.Generate(),
		Promoted:  make(map[op.Type][]string),
	}

	slog.Debug("gate run starting", "pass_token", report.PassToken)

	for {
		if report.Passes >= g.maxPasses {
			return report, fmt.Errorf("integrate all: no fixed point after %d passes", report.Passes)
		}
		report.Passes++

		changed := 0
		for _, rule := range g.rules.Rules() {
			hashes, err := g.TryIntegrate(ctx, rule.Type)
			if err != nil {
				return report, fmt.Errorf("integrate all: pass %d: %w", report.Passes, err)
			}
			if len(hashes) > 0 {
				report.Promoted[rule.Type] = append(report.Promoted[rule.Type], hashes...)
				changed += len(hashes)
			}
		}

		if changed == 0 {
			break
		}

		slog.Debug("gate pass promoted ops, running another pass",
			"pass_token", report.PassToken,
			"pass", report.Passes,
			"promoted", changed,
		)
	}

	if report.Changed() {
		slog.Info("gate run reached fixed point",
			"pass_token", report.PassToken,
			"passes", report.Passes,
			"promoted", report.Total(),
		)
	}

	return report, nil
}
