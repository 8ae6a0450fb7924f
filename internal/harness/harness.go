package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/dmpsync/internal/external"
	"github.com/roach88/dmpsync/internal/ingest"
	"github.com/roach88/dmpsync/internal/store"
	"github.com/roach88/dmpsync/internal/testutil"
)

// Harness executes scenario steps against one store.
type Harness struct {
	store      *store.Store
	ingester   *ingest.Ingester
	logger     *slog.Logger
	provenance string
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Build an ingester with a deterministic clock and ids
// 3. Submit every step and check its expect clause
// 4. Record final row counts and evaluate assertions
//
// Errors are returned only when the scenario cannot be executed at all;
// failed expectations are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	if result.Counts, err = st.CountRows(ctx); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	actx := &AssertionContext{
		Store:    st,
		Ingester: h.ingester,
		Ctx:      ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) (*Harness, error) {
	// Suppress logs in tests
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := []ingest.Option{
		ingest.WithClock(testutil.NewDeterministicClock(time.Time{}, time.Second).Now),
		ingest.WithIDGenerator(testutil.NewSequenceGenerator("id")),
		ingest.WithLogger(logger),
		ingest.WithDefaultProvenance(scenario.Provenance),
	}
	if scenario.Language != "" {
		opts = append(opts, ingest.WithLanguage(scenario.Language))
	}
	if scenario.Mint != nil {
		opts = append(opts, ingest.WithMinter(external.LocalMinter{
			Prefix:   scenario.Mint.Prefix,
			Shoulder: scenario.Mint.Shoulder,
		}))
	}
	if scenario.Organizations != "" {
		dir, err := external.LoadDirectory(scenario.Organizations)
		if err != nil {
			return nil, fmt.Errorf("failed to load organizations: %w", err)
		}
		opts = append(opts, ingest.WithNameSearch(dir))
	}

	return &Harness{
		store:      st,
		ingester:   ingest.New(st, opts...),
		logger:     logger,
		provenance: ingest.NormalizeProvenance(scenario.Provenance, ingest.DefaultProvenance),
	}, nil
}

// executeSteps submits every step in order and validates expect clauses.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		payload, err := step.payload()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		res, err := h.ingester.Submit(ctx, step.Provenance, payload)
		sr := StepResult{
			Index:      i,
			Provenance: ingest.NormalizeProvenance(step.Provenance, h.provenance),
			Code:       string(ingest.CodeOf(err)),
		}
		switch {
		case res != nil:
			sr.Outcome = OutcomeAccepted
			sr.PlanID = res.PlanID
			sr.DOI = res.DOI
			sr.Minted = res.Minted
		case ingest.IsInvalidPayload(err), ingest.IsInvalidDocument(err), ingest.IsInvalidGraph(err):
			sr.Outcome = OutcomeRejected
		default:
			sr.Outcome = OutcomeFailed
		}
		if err != nil {
			sr.Error = err.Error()
		}
		result.AddStep(sr)

		for _, msg := range checkExpect(i, step.Expect, sr) {
			result.AddError(msg)
		}

		h.logger.Info("step completed",
			"step", i,
			"outcome", sr.Outcome,
			"code", sr.Code,
			"plan", sr.PlanID,
		)
	}
	return nil
}

// checkExpect compares a step result with its expect clause. A step without
// one must be accepted cleanly.
func checkExpect(index int, expect *ExpectClause, sr StepResult) []string {
	if expect == nil {
		expect = &ExpectClause{Outcome: OutcomeAccepted}
	}

	var errs []string
	if sr.Outcome != expect.Outcome {
		msg := fmt.Sprintf("steps[%d]: expected outcome %s, got %s", index, expect.Outcome, sr.Outcome)
		if sr.Error != "" {
			msg += " (" + sr.Error + ")"
		}
		errs = append(errs, msg)
	}
	switch {
	case expect.Code != "" && sr.Code != expect.Code:
		errs = append(errs, fmt.Sprintf("steps[%d]: expected code %s, got %q", index, expect.Code, sr.Code))
	case expect.Code == "" && expect.Outcome == OutcomeAccepted && sr.Code != "":
		errs = append(errs, fmt.Sprintf("steps[%d]: unexpected error %s", index, sr.Error))
	}
	if expect.Minted != nil && *expect.Minted != sr.Minted {
		errs = append(errs, fmt.Sprintf("steps[%d]: expected minted=%t, got %t", index, *expect.Minted, sr.Minted))
	}
	return errs
}
