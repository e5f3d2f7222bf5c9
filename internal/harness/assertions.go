package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/sluicedb/sluice/internal/op"
	"github.com/sluicedb/sluice/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case "arrival":
				fmt.Fprintf(&buf, "  [%d] arrival %s %s (seq %d, status %q)\n", i+1, event.OpType, event.Action, event.Seq, event.Status)
			case "gate_run":
				fmt.Fprintf(&buf, "  [%d] gate run %s: %d pass(es), %d promoted\n", i+1, event.PassToken, event.Passes, event.Promoted)
			case "promoted":
				fmt.Fprintf(&buf, "  [%d] promoted %s %s\n", i+1, event.OpType, event.Action)
			}
		}
	}

	return buf.String()
}

// assertOpIntegrated checks that an op with the given type and action
// has been integrated.
func assertOpIntegrated(ctx context.Context, st *store.Store, assertion Assertion, trace []TraceEvent) error {
	integrated, err := st.HasIntegratedCounterpart(ctx, op.Type(assertion.OpType), assertion.Action)
	if err != nil {
		return fmt.Errorf("op_integrated: query failed: %w", err)
	}
	if !integrated {
		return &AssertionError{
			Type:     AssertOpIntegrated,
			Expected: fmt.Sprintf("op %s %s integrated", assertion.OpType, assertion.Action),
			Actual:   "not integrated",
			Trace:    trace,
		}
	}
	return nil
}

// assertOpAwaiting checks that an op with the given type and action is
// still awaiting integration (validated, not yet promoted).
func assertOpAwaiting(ctx context.Context, st *store.Store, assertion Assertion, trace []TraceEvent) error {
	awaiting, err := st.ReadAwaiting(ctx, op.Type(assertion.OpType))
	if err != nil {
		return fmt.Errorf("op_awaiting: query failed: %w", err)
	}
	for _, o := range awaiting {
		if o.Action == assertion.Action {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertOpAwaiting,
		Expected: fmt.Sprintf("op %s %s awaiting integration", assertion.OpType, assertion.Action),
		Actual:   fmt.Sprintf("not found among %d awaiting op(s)", len(awaiting)),
		Trace:    trace,
	}
}

// assertPromotionOrder checks that actions were promoted in the
// specified order. Actions don't need to be consecutive (intervening
// promotions are allowed).
func assertPromotionOrder(trace []TraceEvent, assertion Assertion) error {
	// Find first position of each expected action among promotions
	positions := make(map[string]int)
	pos := 0
	for _, event := range trace {
		if event.Type != "promoted" {
			continue
		}
		pos++
		for _, expected := range assertion.Actions {
			if event.Action == expected && positions[expected] == 0 {
				positions[expected] = pos
			}
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertPromotionOrder,
				Expected: fmt.Sprintf("all actions promoted: %v", assertion.Actions),
				Actual:   fmt.Sprintf("action never promoted: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertPromotionOrder,
				Expected: fmt.Sprintf("actions promoted in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertStageCounts checks the lifecycle counts match exactly.
// Stages omitted from the assertion are expected to be zero.
func assertStageCounts(ctx context.Context, st *store.Store, assertion Assertion, trace []TraceEvent) error {
	counts, err := st.CountStages(ctx)
	if err != nil {
		return fmt.Errorf("stage_counts: query failed: %w", err)
	}

	actual := map[string]int64{
		"pending":    counts.Pending,
		"awaiting":   counts.Awaiting,
		"integrated": counts.Integrated,
		"rejected":   counts.Rejected,
	}

	for _, stage := range []string{"pending", "awaiting", "integrated", "rejected"} {
		expected := assertion.Counts[stage]
		if actual[stage] != expected {
			return &AssertionError{
				Type:     AssertStageCounts,
				Expected: fmt.Sprintf("%s = %d", stage, expected),
				Actual:   fmt.Sprintf("%s = %d", stage, actual[stage]),
				Trace:    trace,
			}
		}
	}

	return nil
}

// assertFinalState checks if the final state table contains expected values.
// Queries the state table with parameterized SQL and validates expected
// values using subset semantics.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}

	// Identifiers can't be parameterized, so validate them instead
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		whereDesc := formatWhereClause(assertion.Where)
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Multiple matches would make the assertion ambiguous
	if rows.Next() {
		whereDesc := formatWhereClause(assertion.Where)
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]interface{})
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	// Subset semantics - only check fields named in Expect
	for key, expectedValue := range assertion.Expect {
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// buildWhereClause constructs a parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
//
// Security: Column names are validated against a whitelist pattern to prevent
// SQL injection via identifier interpolation.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, where[key])
	}

	return strings.Join(clauses, " AND "), args, nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from state tables.
// Handles type coercion for SQLite values which may be returned as different types.
func stateValuesEqual(expected, actual interface{}) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	switch exp := expected.(type) {
	case string:
		if actualStr, ok := actual.(string); ok {
			return exp == actualStr
		}
		// SQLite TEXT may scan as []byte
		if actualBytes, ok := actual.([]byte); ok {
			return exp == string(actualBytes)
		}
		return false
	case int:
		if actualInt, ok := actual.(int64); ok {
			return int64(exp) == actualInt
		}
		if actualInt, ok := actual.(int); ok {
			return exp == actualInt
		}
		return false
	case int64:
		if actualInt, ok := actual.(int64); ok {
			return exp == actualInt
		}
		return false
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		// SQLite stores booleans as integers
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOpIntegrated:
			err = assertOpIntegrated(actx.Ctx, actx.Store, assertion, result.Trace)
		case AssertOpAwaiting:
			err = assertOpAwaiting(actx.Ctx, actx.Store, assertion, result.Trace)
		case AssertPromotionOrder:
			err = assertPromotionOrder(result.Trace, assertion)
		case AssertStageCounts:
			err = assertStageCounts(actx.Ctx, actx.Store, assertion, result.Trace)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
