package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/sluicedb/sluice/internal/op"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	PassToken    string       `json:"pass_token,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for
// canonical JSON serialization. Zero-valued fields are omitted so
// each event carries only the fields meaningful for its type.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"type": event.Type,
		}
		if event.OpType != "" {
			eventMap["op_type"] = event.OpType
		}
		if event.Action != "" {
			eventMap["action"] = event.Action
		}
		if event.Seq != 0 {
			eventMap["seq"] = event.Seq
		}
		if event.Status != "" {
			eventMap["status"] = event.Status
		}
		if event.PassToken != "" {
			eventMap["pass_token"] = event.PassToken
		}
		if event.Passes != 0 {
			eventMap["passes"] = event.Passes
		}
		if event.Promoted != 0 {
			eventMap["promoted"] = event.Promoted
		}
		if event.Hash != "" {
			eventMap["hash"] = event.Hash
		}
		traceList[i] = eventMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.PassToken != "" {
		result["pass_token"] = s.PassToken
	}
	return result
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files serve as the source of truth for expected trace behavior.
// Returns an error if scenario execution fails; a trace mismatch fails
// the test via goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		PassToken:    scenario.PassToken,
		Trace:        result.Trace,
	}

	traceJSON, err := op.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return nil
}

// AssertGolden compares the given result's trace against a golden file.
// Useful when a scenario has already run and the result should be
// compared without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}

	traceJSON, err := op.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
