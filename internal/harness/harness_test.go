package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const brainStudy = `{"title": "Brain Study", "dmp_id": {"type": "doi", "identifier": "10.1/abc"}, "contact": {"name": "A", "mbox": "a@x.org"}}`

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		Steps:       []Step{{Document: brainStudy}},
		Assertions: []Assertion{
			{Type: AssertRowCount, Table: "plans", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, OutcomeAccepted, result.Steps[0].Outcome)
	assert.Equal(t, "dmptool", result.Steps[0].Provenance)
	assert.NotEmpty(t, result.Steps[0].PlanID)
	assert.Equal(t, "10.1/abc", result.Steps[0].DOI)
	assert.Equal(t, 1, result.Counts["contributors"])
}

func TestRun_ExpectationMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "A valid document expected to be rejected",
		Steps: []Step{{
			Document: brainStudy,
			Expect:   &ExpectClause{Outcome: OutcomeRejected, Code: "INVALID_GRAPH"},
		}},
		Assertions: []Assertion{{Type: AssertRowCount, Table: "plans", Count: 1}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"steps[0]: expected outcome rejected, got accepted",
		`steps[0]: expected code INVALID_GRAPH, got ""`,
	}, result.Errors)
}

func TestRun_UnexpectedRejection(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "A step without expect must be accepted",
		Steps:       []Step{{Document: `{"title": 5}`}},
		Assertions:  []Assertion{{Type: AssertRowCount, Table: "plans", Count: 0}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "steps[0]: expected outcome accepted, got rejected")
	assert.Contains(t, result.Errors[1], "steps[0]: unexpected error INVALID_PAYLOAD")
	assert.Equal(t, "INVALID_PAYLOAD", result.Steps[0].Code)
}

func TestRun_ScenarioProvenance(t *testing.T) {
	scenario := &Scenario{
		Name:        "provenance",
		Description: "Scenario-level provenance applies to unnamed steps; the last writer tags the plan",
		Provenance:  "DMPHub",
		Steps: []Step{
			{Document: brainStudy},
			{Document: `{"title": 5}`, Expect: &ExpectClause{Outcome: OutcomeRejected}},
			{Document: brainStudy, Provenance: "Other"},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Table: "plans", Where: map[string]interface{}{"title": "Brain Study"}, Expect: map[string]interface{}{"provenance": "other"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "dmphub", result.Steps[0].Provenance)
	assert.Equal(t, "dmphub", result.Steps[1].Provenance)
	assert.Equal(t, "other", result.Steps[2].Provenance)
}

func TestRun_MissingOrganizations(t *testing.T) {
	scenario := &Scenario{
		Name:          "orgs",
		Description:   "Unreadable organizations file",
		Organizations: filepath.Join(t.TempDir(), "missing.yaml"),
		Steps:         []Step{{Document: brainStudy}},
		Assertions:    []Assertion{{Type: AssertReplayStable}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load organizations")
}

func TestRun_WithOrganizations(t *testing.T) {
	scenario := &Scenario{
		Name:          "orgs",
		Description:   "Name search is configured from a directory file",
		Organizations: filepath.Join("testdata", "organizations.yaml"),
		Steps:         []Step{{Document: brainStudy}},
		Assertions:    []Assertion{{Type: AssertRowCount, Table: "plans", Count: 1}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_ScenarioFiles(t *testing.T) {
	for _, name := range []string{"resubmission.yaml", "minting.yaml"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name))
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestRun_MintedDOI(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "minting.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Steps, 3)
	assert.Regexp(t, `^10\.80030/D1[0-9A-F]{10}$`, result.Steps[0].DOI)
	assert.Equal(t, result.Steps[0].DOI, result.Steps[1].DOI)
	assert.Equal(t, result.Steps[0].PlanID, result.Steps[1].PlanID)
}

func TestResult_Outcomes(t *testing.T) {
	r := NewResult()
	r.AddStep(StepResult{Outcome: OutcomeAccepted})
	r.AddStep(StepResult{Outcome: OutcomeRejected})
	r.AddStep(StepResult{Outcome: OutcomeAccepted})

	assert.Equal(t, map[string]int{OutcomeAccepted: 2, OutcomeRejected: 1}, r.Outcomes())
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
}
