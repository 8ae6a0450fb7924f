package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dmpsync/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Database string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored plans",
		Long: `List every stored plan ordered by title.

Examples:
  dmpsync list --db ./dmpsync.db
  dmpsync list --db ./dmpsync.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN (defaults to the configured one)")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	st, err := opts.openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	plans, err := st.ListPlans(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list plans", err)
	}
	if plans == nil {
		plans = []store.PlanSummary{}
	}

	if f.JSON() {
		return f.Success(plans)
	}
	if len(plans) == 0 {
		fmt.Fprintln(f.Writer, "No plans found.")
		return nil
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPROVENANCE\tUPDATED")
	for _, p := range plans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Title, p.Provenance, p.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
