package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/dmpsync/internal/ingest"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the submission log and verify idempotence",
		Long: `Re-submit every stored submission in acceptance order and compare the
row count of every entity table before and after.

Replay writes no audit rows, mints nothing and archives nothing. A stable
replay leaves every count unchanged.

Exit codes:
  0 - Replay is stable
  1 - Row counts changed or a submission no longer reconciles
  2 - Command error (database not found, etc.)

Examples:
  dmpsync replay --db ./dmpsync.db
  dmpsync replay --db ./dmpsync.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN (defaults to the configured one)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	st, err := opts.openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ing, err := opts.newIngester(ctx, cmd, st, ingesterOptions{})
	if err != nil {
		return err
	}

	report, err := ing.Replay(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: report}
		if !report.Stable() {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeUnstable, Message: "replay changed the store"}
		}
		if err := f.Encode(resp); err != nil {
			return err
		}
	} else {
		outputReplayText(f, report)
	}

	if !report.Stable() {
		return NewExitError(ExitFailure, "replay changed the store")
	}
	return nil
}

func outputReplayText(f *OutputFormatter, report *ingest.ReplayReport) {
	w := f.Writer
	if report.Submissions == 0 {
		fmt.Fprintln(w, "No submissions found in database.")
		return
	}

	fmt.Fprintf(w, "Replay Summary: %d submission(s)\n", report.Submissions)
	fmt.Fprintln(w)

	tables := make([]string, 0, len(report.After))
	for t := range report.After {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		before, after := report.Before[t], report.After[t]
		if before != after {
			fmt.Fprintf(w, "✗ %s: %d -> %d\n", t, before, after)
		} else if f.Verbose {
			fmt.Fprintf(w, "  %s: %d\n", t, after)
		}
	}
	for _, e := range report.Failed {
		fmt.Fprintf(w, "✗ submission %s: %s\n", e.SubmissionID, e.Error)
	}

	if report.Stable() {
		fmt.Fprintln(w, "✓ Replay is stable")
		return
	}
	fmt.Fprintln(w, "✗ Replay changed the store")
}
