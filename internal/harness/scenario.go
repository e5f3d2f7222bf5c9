package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sluicedb/sluice/internal/op"
)

// Scenario defines a conformance test scenario.
// Scenarios feed a fixed arrival order of ops into a fresh store, run
// the gate, and assert on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules declares the dependency rules in scan order.
	// If empty, the built-in rule set is used.
	Rules []RuleStep `yaml:"rules,omitempty"`

	// Arrivals contains the ops in arrival order. Sequence numbers are
	// assigned from a deterministic clock, so the same scenario always
	// produces the same hashes and the same trace.
	Arrivals []ArrivalStep `yaml:"arrivals"`

	// Runs is the number of gate runs to execute. Defaults to 1.
	Runs int `yaml:"runs,omitempty"`

	// Assertions validate the final trace and state.
	// Supported types: op_integrated, op_awaiting, promotion_order,
	// stage_counts, final_state.
	Assertions []Assertion `yaml:"assertions"`

	// PassToken is an optional fixed pass token for deterministic tests.
	// If empty, defaults to "test-pass-default" for golden comparison.
	PassToken string `yaml:"pass_token,omitempty"`
}

// RuleStep declares one dependency rule.
type RuleStep struct {
	// Type is the op type this rule covers.
	Type string `yaml:"type"`

	// DependsOn is the counterpart type whose integration gates this
	// type. Empty means no dependency.
	DependsOn string `yaml:"depends_on,omitempty"`
}

// ArrivalStep represents a single op arriving at the store.
type ArrivalStep struct {
	// Type is the op type (e.g., "create-link").
	Type string `yaml:"type"`

	// Action is the op's own logical action reference.
	Action string `yaml:"action"`

	// Dependency is the prerequisite action reference, if any.
	Dependency string `yaml:"dependency,omitempty"`

	// Origin is the network origin the op arrived from.
	Origin string `yaml:"origin"`

	// Status, when set, marks the op validated with this outcome and
	// advances it to awaiting integration. Empty leaves the op pending.
	Status string `yaml:"status,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "op_integrated": the op with this type+action is integrated
	// - "op_awaiting": the op with this type+action still awaits integration
	// - "promotion_order": actions were promoted in this order
	// - "stage_counts": lifecycle counts match exactly
	// - "final_state": query a table and verify expected values
	Type string `yaml:"type"`

	// OpType is the op type (used by op_integrated, op_awaiting).
	OpType string `yaml:"op_type,omitempty"`

	// Action is the op's action reference (used by op_integrated, op_awaiting).
	Action string `yaml:"action,omitempty"`

	// Actions is the expected promotion order (used by promotion_order).
	Actions []string `yaml:"actions,omitempty"`

	// Counts are the expected lifecycle totals (used by stage_counts).
	// Omitted stages are expected to be zero.
	Counts map[string]int64 `yaml:"counts,omitempty"`

	// Table is the state table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertOpIntegrated   = "op_integrated"
	AssertOpAwaiting     = "op_awaiting"
	AssertPromotionOrder = "promotion_order"
	AssertStageCounts    = "stage_counts"
	AssertFinalState     = "final_state"
)

// stageNames are the keys accepted in a stage_counts assertion.
var stageNames = map[string]bool{
	"pending":    true,
	"awaiting":   true,
	"integrated": true,
	"rejected":   true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Arrivals) == 0 {
		return fmt.Errorf("arrivals list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Runs < 0 {
		return fmt.Errorf("runs must be non-negative")
	}

	for i, rule := range s.Rules {
		if rule.Type == "" {
			return fmt.Errorf("rules[%d]: type is required", i)
		}
	}

	for i, arrival := range s.Arrivals {
		if arrival.Type == "" {
			return fmt.Errorf("arrivals[%d]: type is required", i)
		}
		if arrival.Action == "" {
			return fmt.Errorf("arrivals[%d]: action is required", i)
		}
		if arrival.Origin == "" {
			return fmt.Errorf("arrivals[%d]: origin is required", i)
		}
		if arrival.Status != "" && !op.ValidStatuses[op.ValidationStatus(arrival.Status)] {
			return fmt.Errorf("arrivals[%d]: unknown status %q", i, arrival.Status)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOpIntegrated, AssertOpAwaiting:
		if a.OpType == "" {
			return fmt.Errorf("assertions[%d]: op_type is required for %s", index, a.Type)
		}
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for %s", index, a.Type)
		}
	case AssertPromotionOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for promotion_order", index)
		}
	case AssertStageCounts:
		if len(a.Counts) == 0 {
			return fmt.Errorf("assertions[%d]: counts is required for stage_counts", index)
		}
		for name := range a.Counts {
			if !stageNames[name] {
				return fmt.Errorf("assertions[%d]: unknown stage %q in counts", index, name)
			}
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
