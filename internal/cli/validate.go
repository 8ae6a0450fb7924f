package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dmpsync/internal/guard"
	"github.com/roach88/dmpsync/internal/ingest"
	"github.com/roach88/dmpsync/internal/reconcile"
	"github.com/roach88/dmpsync/internal/store"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Database   string
	Provenance string
}

// ValidateResult describes a dry run.
type ValidateResult struct {
	Valid      bool              `json:"valid"`
	Title      string            `json:"title,omitempty"`
	PlanID     string            `json:"plan_id,omitempty"`
	Existing   bool              `json:"existing"`
	Entities   map[string]int    `json:"entities,omitempty"`
	Violations []guard.Violation `json:"violations,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a DMP document without saving it",
		Long: `Parse and reconcile a maDMP document and validate the resulting graph.
Nothing is written.

Without --db the document is reconciled against an empty in-memory store.
With --db it is matched against stored plans, which shows whether it would
update an existing plan.

Exit codes:
  0 - Document is valid
  1 - Document was rejected
  2 - Command error (file not found, etc.)

Examples:
  dmpsync validate plan.json
  dmpsync validate plan.json --db ./dmpsync.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "match against this database (default: empty in-memory store)")
	cmd.Flags().StringVar(&opts.Provenance, "provenance", "", "source system the document comes from")

	return cmd
}

func runValidate(opts *ValidateOptions, file string, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	payload, err := readInput(file, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", file), err)
	}

	var st *store.Store
	if opts.Database != "" {
		if st, err = opts.openStore(opts.Database); err != nil {
			return err
		}
	} else if st, err = store.Open(":memory:"); err != nil {
		return WrapExitError(ExitCommandError, "failed to open in-memory database", err)
	}
	defer st.Close()

	ing, err := opts.newIngester(ctx, cmd, st, ingesterOptions{provenance: opts.Provenance})
	if err != nil {
		return err
	}

	g, err := ing.Check(ctx, opts.Provenance, payload)
	result := ValidateResult{Valid: err == nil}
	if g != nil {
		result.Title = g.Plan.Title
		result.PlanID = g.Plan.ID
		result.Existing = g.Plan.Persisted
		result.Entities = graphCounts(g)
	}
	var v guard.Violations
	if errors.As(err, &v) {
		result.Violations = v
	}

	if err != nil && !ingest.IsInvalidPayload(err) && !ingest.IsInvalidDocument(err) && !ingest.IsInvalidGraph(err) {
		return WrapExitError(exitCodeFor(err), "validation failed", err)
	}

	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if err != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: errorCode(err), Message: err.Error()}
		}
		if encErr := f.Encode(resp); encErr != nil {
			return encErr
		}
	} else {
		outputValidateText(f, file, result, err)
	}

	if err != nil {
		return WrapExitError(ExitFailure, "document rejected", err)
	}
	return nil
}

func outputValidateText(f *OutputFormatter, file string, result ValidateResult, err error) {
	w := f.Writer
	if err == nil {
		fmt.Fprintf(w, "✓ %s is valid\n", file)
		if result.Existing {
			fmt.Fprintf(w, "  updates plan %s\n", result.PlanID)
		} else {
			fmt.Fprintln(w, "  creates a new plan")
		}
		return
	}

	fmt.Fprintf(w, "✗ %s was rejected\n", file)
	if len(result.Violations) == 0 {
		fmt.Fprintf(w, "  %s: %v\n", errorCode(err), err)
		return
	}
	for _, v := range result.Violations {
		fmt.Fprintf(w, "  [%s] %s\n", v.Code, v.String())
	}
}

// graphCounts counts the entities of a reconciled graph by kind.
func graphCounts(g *reconcile.Graph) map[string]int {
	p := g.Plan
	counts := map[string]int{
		"projects":     len(p.Projects),
		"datasets":     len(p.Datasets),
		"costs":        len(p.Costs),
		"contributors": len(g.Contributors()),
		"affiliations": len(g.Affiliations()),
		"hosts":        len(g.Hosts()),
		"identifiers":  len(g.Identifiers()),
	}
	for _, proj := range p.Projects {
		counts["fundings"] += len(proj.Fundings)
	}
	return counts
}
