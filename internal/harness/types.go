package harness

// Step outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// StepResult records what one submission did.
type StepResult struct {
	Index      int    `json:"index"`
	Provenance string `json:"provenance"`
	Outcome    string `json:"outcome"`
	Code       string `json:"code,omitempty"`
	PlanID     string `json:"plan_id,omitempty"`
	DOI        string `json:"doi,omitempty"`
	Minted     bool   `json:"minted"`
	Error      string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion holds.
	Pass bool `json:"pass"`

	// Steps contains one entry per submitted document, in order.
	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Counts holds the entity table row counts after the last step.
	Counts map[string]int `json:"counts,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
		Counts: make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step result.
func (r *Result) AddStep(s StepResult) {
	r.Steps = append(r.Steps, s)
}

// Outcomes counts steps per outcome.
func (r *Result) Outcomes() map[string]int {
	out := make(map[string]int)
	for _, s := range r.Steps {
		out[s.Outcome]++
	}
	return out
}
