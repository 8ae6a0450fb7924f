package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Scenario defines a sequence of submissions and the state they must leave
// behind.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Provenance is used by steps that name none. Defaults to "dmptool".
	Provenance string `yaml:"provenance,omitempty"`

	// Language is the default plan language.
	Language string `yaml:"language,omitempty"`

	// Mint enables DOI minting for plans saved without one.
	Mint *MintSettings `yaml:"mint,omitempty"`

	// Organizations is a directory file used for affiliation name search.
	Organizations string `yaml:"organizations,omitempty"`

	// Steps are submitted in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	// Supported types: row_count, final_state, identifier_count,
	// outcome_count, replay_stable
	Assertions []Assertion `yaml:"assertions"`
}

// MintSettings configures the local DOI minter.
type MintSettings struct {
	Prefix   string `yaml:"prefix"`
	Shoulder string `yaml:"shoulder,omitempty"`
}

// Step submits one document. Exactly one of Submit and Document is set.
type Step struct {
	// Submit is the path of a JSON document.
	Submit string `yaml:"submit,omitempty"`

	// Document is an inline JSON document.
	Document string `yaml:"document,omitempty"`

	// Provenance tags the submission.
	Provenance string `yaml:"provenance,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step must be accepted without errors.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// payload returns the document bytes of the step.
func (s Step) payload() ([]byte, error) {
	if s.Submit == "" {
		return []byte(s.Document), nil
	}
	data, err := os.ReadFile(s.Submit)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}

// ExpectClause specifies the expected result of a step.
type ExpectClause struct {
	// Outcome is "accepted" or "rejected".
	Outcome string `yaml:"outcome"`

	// Code is the expected error code (e.g. "INVALID_GRAPH", "MINT").
	// Empty means no error for accepted steps and any code for rejected ones.
	Code string `yaml:"code,omitempty"`

	// Minted, when set, checks whether the step minted a DOI.
	Minted *bool `yaml:"minted,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row_count": Check table has exactly Count rows
	// - "final_state": Query table and verify expected values
	// - "identifier_count": Check Count identifiers have Category and Value
	// - "outcome_count": Check Count steps ended with Outcome
	// - "replay_stable": Replay the audit log and check row counts
	Type string `yaml:"type"`

	// Table is the table name (used by row_count and final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected number of rows, identifiers or steps.
	Count int `yaml:"count,omitempty"`

	// Category and Value select identifiers (used by identifier_count).
	Category string `yaml:"category,omitempty"`
	Value    string `yaml:"value,omitempty"`

	// Outcome is the step outcome to count (used by outcome_count).
	Outcome string `yaml:"outcome,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount        = "row_count"
	AssertFinalState      = "final_state"
	AssertIdentifierCount = "identifier_count"
	AssertOutcomeCount    = "outcome_count"
	AssertReplayStable    = "replay_stable"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadScenario reads and parses a scenario YAML file. Relative paths in the
// scenario are resolved against the directory of the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving relative paths against
// baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve paths BEFORE validation so existence checks see the real file
	scenario.Organizations = resolve(baseDir, scenario.Organizations)
	for i := range scenario.Steps {
		scenario.Steps[i].Submit = resolve(baseDir, scenario.Steps[i].Submit)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}

	if s.Mint != nil && s.Mint.Prefix == "" {
		return errors.New("mint: prefix is required")
	}
	if s.Organizations != "" {
		if _, err := os.Stat(s.Organizations); os.IsNotExist(err) {
			return fmt.Errorf("organizations file not found: %s", s.Organizations)
		}
	}

	for i, step := range s.Steps {
		switch {
		case step.Submit == "" && step.Document == "":
			return fmt.Errorf("steps[%d]: submit or document is required", i)
		case step.Submit != "" && step.Document != "":
			return fmt.Errorf("steps[%d]: submit and document are mutually exclusive", i)
		case step.Submit != "":
			if _, err := os.Stat(step.Submit); os.IsNotExist(err) {
				return fmt.Errorf("steps[%d]: document not found: %s", i, step.Submit)
			}
		case !json.Valid([]byte(step.Document)) && (step.Expect == nil || step.Expect.Outcome != OutcomeRejected):
			// Malformed inline documents are only useful as rejection tests.
			return fmt.Errorf("steps[%d]: document is not valid JSON", i)
		}
		if step.Expect != nil {
			if !validOutcome(step.Expect.Outcome) {
				return fmt.Errorf("steps[%d].expect: outcome must be %q or %q", i, OutcomeAccepted, OutcomeRejected)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validOutcome(o string) bool {
	return o == OutcomeAccepted || o == OutcomeRejected
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRowCount:
		if !validIdentifier.MatchString(a.Table) {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertIdentifierCount:
		if a.Category == "" || a.Value == "" {
			return fmt.Errorf("assertions[%d]: category and value are required for identifier_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for identifier_count", index)
		}
	case AssertOutcomeCount:
		if !validOutcome(a.Outcome) {
			return fmt.Errorf("assertions[%d]: outcome must be %q or %q for outcome_count", index, OutcomeAccepted, OutcomeRejected)
		}
	case AssertReplayStable:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
