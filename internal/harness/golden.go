package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/dmpsync/internal/model"
)

// Snapshot is the deterministic summary of a scenario run: each step's
// outcome and the final row count of every entity table. Ids, timestamps
// and minted DOIs are left out.
type Snapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Steps        []StepResult   `json:"steps"`
	Counts       map[string]int `json:"counts"`
}

// NewSnapshot summarizes result.
func NewSnapshot(name string, result *Result) Snapshot {
	return Snapshot{ScenarioName: name, Steps: result.Steps, Counts: result.Counts}
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization, which only handles decoded JSON trees.
func (s *Snapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, step := range s.Steps {
		m := map[string]any{
			"index":      step.Index,
			"provenance": step.Provenance,
			"outcome":    step.Outcome,
			"minted":     step.Minted,
		}
		if step.Code != "" {
			m["code"] = step.Code
		}
		steps[i] = m
	}

	counts := make(map[string]any, len(s.Counts))
	for table, n := range s.Counts {
		counts[table] = n
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
		"counts":        counts,
	}
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *Snapshot) MarshalCanonical() ([]byte, error) {
	return model.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := NewSnapshot(scenarioName, result)
	data, err := snapshot.MarshalCanonical()
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
