package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dmpsync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	PlanID   string
	Payload  bool
}

// TraceEntry is one accepted submission of a plan.
type TraceEntry struct {
	SubmissionID string    `json:"submission_id"`
	Provenance   string    `json:"provenance"`
	PayloadHash  string    `json:"payload_hash"`
	CreatedAt    time.Time `json:"created_at"`
	Payload      string    `json:"payload,omitempty"`
}

// TraceResult holds the submission history of a plan.
type TraceResult struct {
	PlanID      string       `json:"plan_id"`
	Submissions []TraceEntry `json:"submissions"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the submission history of a plan",
		Long: `Show every accepted submission of a plan in acceptance order: which
system sent it, when, and the hash of the payload.

Examples:
  dmpsync trace --db ./dmpsync.db --id 0190c5a4-...
  dmpsync trace --db ./dmpsync.db --id 0190c5a4-... --payload --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN (defaults to the configured one)")
	cmd.Flags().StringVar(&opts.PlanID, "id", "", "plan id (required)")
	_ = cmd.MarkFlagRequired("id")
	cmd.Flags().BoolVar(&opts.Payload, "payload", false, "include the submitted payloads")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	st, err := opts.openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	subs, err := st.Submissions(context.Background(), opts.PlanID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read submissions", err)
	}

	result := TraceResult{PlanID: opts.PlanID, Submissions: buildTrace(subs, opts.Payload)}
	if f.JSON() {
		return f.Success(result)
	}

	w := f.Writer
	if len(result.Submissions) == 0 {
		fmt.Fprintf(w, "No submissions found for plan: %s\n", opts.PlanID)
		return nil
	}
	fmt.Fprintf(w, "Plan: %s\n", opts.PlanID)
	fmt.Fprintf(w, "Submissions: %d\n", len(result.Submissions))
	fmt.Fprintln(w)
	for i, e := range result.Submissions {
		fmt.Fprintf(w, "[%d] %s %s\n", i+1, e.CreatedAt.Format(time.RFC3339), e.Provenance)
		fmt.Fprintf(w, "    submission: %s\n", e.SubmissionID)
		fmt.Fprintf(w, "    payload: %s\n", e.PayloadHash)
		if e.Payload != "" {
			fmt.Fprintf(w, "    %s\n", e.Payload)
		}
	}
	return nil
}

func buildTrace(subs []store.Submission, withPayload bool) []TraceEntry {
	out := make([]TraceEntry, 0, len(subs))
	for _, s := range subs {
		e := TraceEntry{
			SubmissionID: s.ID,
			Provenance:   s.Provenance,
			PayloadHash:  s.PayloadHash,
			CreatedAt:    s.CreatedAt,
		}
		if withPayload {
			e.Payload = string(s.Payload)
		}
		out = append(out, e)
	}
	return out
}
