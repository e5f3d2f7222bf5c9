package gate

import (
	"fmt"

	"github.com/sluicedb/sluice/internal/op"
)

// Rule declares the dependency predicate for one op type.
//
// An empty DependsOn means the predicate is vacuously true: the op
// integrates as soon as validation accepts it. A non-empty DependsOn
// names the counterpart type whose integrated action must match the
// op's dependency reference.
type Rule struct {
	Type      op.Type `json:"type"`
	DependsOn op.Type `json:"depends_on,omitempty"`
}

// RuleSet is an ordered list of rules. Order is declaration order and
// determines the pass order inside IntegrateAll; it NEVER changes after
// construction.
type RuleSet struct {
	rules  []Rule
	byType map[op.Type]Rule
}

// NewRuleSet validates and builds a rule set.
//
// Validation:
//   - at least one rule
//   - op types are unique
//   - every DependsOn names a type that has its own rule
//   - no rule depends on itself
//   - no dependency cycles between rules
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("rule set is empty")
	}

	byType := make(map[op.Type]Rule, len(rules))
	for _, r := range rules {
		if r.Type == "" {
			return nil, fmt.Errorf("rule with empty op type")
		}
		if _, ok := byType[r.Type]; ok {
			return nil, fmt.Errorf("duplicate rule for op type %q", r.Type)
		}
		if r.DependsOn == r.Type {
			return nil, fmt.Errorf("op type %q depends on itself", r.Type)
		}
		byType[r.Type] = r
	}

	for _, r := range rules {
		if r.DependsOn == "" {
			continue
		}
		if _, ok := byType[r.DependsOn]; !ok {
			return nil, fmt.Errorf("op type %q depends on unknown type %q", r.Type, r.DependsOn)
		}
	}

	if cycle := detectCycle(rules); cycle != nil {
		return nil, fmt.Errorf("dependency cycle between op types: %s", cyclePathString(cycle))
	}

	// Copy to prevent external mutation of the declaration order
	copied := make([]Rule, len(rules))
	copy(copied, rules)

	return &RuleSet{rules: copied, byType: byType}, nil
}

// MustRuleSet is like NewRuleSet but panics on error.
// Use only in tests or with rule literals known to be valid.
func MustRuleSet(rules []Rule) *RuleSet {
	rs, err := NewRuleSet(rules)
	if err != nil {
		panic(err)
	}
	return rs
}

// DefaultRules returns the built-in op type pairings.
//
// The exact enumeration of op types and their dependency pairings is
// deployment configuration (see the CLI's CUE loader); this default
// covers the built-in types.
func DefaultRules() *RuleSet {
	return MustRuleSet([]Rule{
		{Type: op.TypeStoreEntry},
		{Type: op.TypeStoreRecord},
		{Type: op.TypeCreateLink},
		{Type: op.TypeUpdateEntry, DependsOn: op.TypeStoreEntry},
		{Type: op.TypeDeleteEntry, DependsOn: op.TypeStoreEntry},
		{Type: op.TypeUpdateRecord, DependsOn: op.TypeStoreRecord},
		{Type: op.TypeDeleteRecord, DependsOn: op.TypeStoreRecord},
		{Type: op.TypeDeleteLink, DependsOn: op.TypeCreateLink},
	})
}

// Rule returns the rule for an op type.
func (rs *RuleSet) Rule(typ op.Type) (Rule, bool) {
	r, ok := rs.byType[typ]
	return r, ok
}

// Rules returns the rules in declaration order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}
