// Package harness provides conformance testing for the integration gate.
//
// The harness loads scenarios, executes them against a fresh in-memory
// store, and validates gate behavior as executable contract tests.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	pass_token: test-pass-1
//	rules:
//	  - type: create-link
//	  - type: delete-link
//	    depends_on: create-link
//	arrivals:
//	  - type: create-link
//	    action: action-add
//	    origin: node-1
//	    status: valid
//	runs: 1
//	assertions:
//	  - type: op_integrated
//	    op_type: create-link
//	    action: action-add
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - op_integrated: the op with this type and action is integrated
//   - op_awaiting: the op with this type and action still awaits integration
//   - promotion_order: actions were promoted in the given order
//   - stage_counts: lifecycle counts (pending/awaiting/integrated/rejected) match exactly
//   - final_state: queries a table and verifies expected values
//
// # Deterministic Testing
//
// All scenarios execute with deterministic sequence numbers, pass
// tokens, and integration timestamps, so the same scenario produces a
// byte-identical trace for golden snapshot comparison.
//
// The harness uses:
//   - Fixed pass tokens (from scenario.pass_token or "test-pass-default")
//   - Deterministic arrival clock (testutil.ArrivalClock)
//   - A fixed integration timestamp
//   - In-memory SQLite database (isolated per scenario)
package harness
