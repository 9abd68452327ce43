package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// StateSnapshot is the golden-file view of a scenario run: the steps as
// executed and the final cached state of both stores.
type StateSnapshot struct {
	Scenario string       `json:"scenario"`
	Pass     bool         `json:"pass"`
	Steps    []StepRecord `json:"steps"`
	State    FinalState   `json:"state"`
}

// NewStateSnapshot builds the snapshot for a finished run.
func NewStateSnapshot(name string, result *Result) StateSnapshot {
	return StateSnapshot{
		Scenario: name,
		Pass:     result.Pass,
		Steps:    result.Steps,
		State:    result.State,
	}
}

// MarshalSnapshot renders a snapshot as indented JSON with a trailing newline.
// Ids and timestamps come from the harness's deterministic generators, so the
// output is stable across runs.
func MarshalSnapshot(s StateSnapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its state snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. A snapshot mismatch fails t
// through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the golden file named
// after scenarioName, without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(NewStateSnapshot(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
