package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/playledger/internal/record"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// MarshalSnapshot serializes a scenario's trace as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	return record.MarshalCanonical(TraceSnapshot{ScenarioName: name, Trace: result.Trace})
}

// AssertGolden compares the result's trace against
// testdata/golden/{name}.golden.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalSnapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)
	return nil
}

// RunWithGolden executes a scenario and compares its trace against the
// golden file named after the scenario.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}
