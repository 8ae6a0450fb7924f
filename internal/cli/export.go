package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dmpsync/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	PlanID   string
	Out      string
}

// ExportResult describes a written data package.
type ExportResult struct {
	PlanID  string   `json:"plan_id"`
	Path    string   `json:"path,omitempty"`
	Skipped []string `json:"skipped,omitempty"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a plan as a Frictionless data package",
		Long: `Export a stored plan as a Frictionless Data Package descriptor.

Every distribution with a download or access URL becomes a resource.
Distributions without a URL are skipped and reported.

Without --out the descriptor is printed to stdout.

Examples:
  dmpsync export --db ./dmpsync.db --id 0190c5a4-...
  dmpsync export --db ./dmpsync.db --id 0190c5a4-... --out datapackage.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN (defaults to the configured one)")
	cmd.Flags().StringVar(&opts.PlanID, "id", "", "plan id (required)")
	_ = cmd.MarkFlagRequired("id")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the descriptor to this file")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	st, err := opts.openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	plan, err := st.LoadPlan(context.Background(), opts.PlanID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load plan", err)
	}
	if plan == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("plan not found: %s", opts.PlanID))
	}

	pkg, report, err := export.Package(plan, time.Now())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to export plan", err)
	}
	for _, s := range report.Skipped {
		f.Warn("skipped distribution without URL: %s", s)
	}

	if opts.Out == "" {
		data, err := export.JSON(pkg)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode data package", err)
		}
		fmt.Fprintln(f.Writer, string(data))
		return nil
	}

	if err := export.Save(pkg, opts.Out); err != nil {
		return WrapExitError(ExitCommandError, "failed to write data package", err)
	}
	result := ExportResult{PlanID: plan.ID, Path: opts.Out, Skipped: report.Skipped}
	if f.JSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ Exported plan %s to %s\n", plan.ID, opts.Out)
	return nil
}
