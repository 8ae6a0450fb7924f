package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dmpsync/internal/store"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	Database string
	PlanID   string
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a stored plan",
		Long: `Delete a plan with everything it owns: projects, fundings, costs,
datasets, role links, submissions and their identifiers.

Shared entities (contributors, affiliations, hosts, metadata standards)
are kept.

Examples:
  dmpsync delete --db ./dmpsync.db --id 0190c5a4-...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN (defaults to the configured one)")
	cmd.Flags().StringVar(&opts.PlanID, "id", "", "plan id (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runDelete(opts *DeleteOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	st, err := opts.openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var deleted bool
	err = st.InTx(ctx, func(tx *store.Tx) error {
		var err error
		deleted, err = tx.DeletePlan(ctx, opts.PlanID)
		return err
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to delete plan", err)
	}
	if !deleted {
		return NewExitError(ExitCommandError, fmt.Sprintf("plan not found: %s", opts.PlanID))
	}

	opts.Logger(cmd).Info("plan deleted", "plan", opts.PlanID)
	if f.JSON() {
		return f.Success(map[string]string{"plan_id": opts.PlanID})
	}
	fmt.Fprintf(f.Writer, "✓ Deleted plan %s\n", opts.PlanID)
	return nil
}
