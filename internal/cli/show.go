package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dmpsync/internal/model"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	PlanID   string
	Cite     bool
}

// ShowResult wraps a loaded plan with its optional citations.
type ShowResult struct {
	Plan      *model.Plan       `json:"plan"`
	Citations map[string]string `json:"citations,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a stored plan",
		Long: `Print a stored plan with its projects, contributors, datasets and
identifiers.

With --cite every DOI related to the plan is resolved to a formatted
citation. Lookup failures are reported as warnings.

Exit codes:
  0 - Plan printed
  2 - Command error (plan not found, database not found, etc.)

Examples:
  dmpsync show --db ./dmpsync.db --id 0190c5a4-...
  dmpsync show --db ./dmpsync.db --id 0190c5a4-... --cite --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN (defaults to the configured one)")
	cmd.Flags().StringVar(&opts.PlanID, "id", "", "plan id (required)")
	_ = cmd.MarkFlagRequired("id")
	cmd.Flags().BoolVar(&opts.Cite, "cite", false, "fetch citations for DOI identifiers")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	st, err := opts.openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	plan, err := st.LoadPlan(ctx, opts.PlanID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load plan", err)
	}
	if plan == nil {
		if f.JSON() {
			if err := f.Error(ErrCodeNotFound, fmt.Sprintf("plan not found: %s", opts.PlanID), nil); err != nil {
				return err
			}
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("plan not found: %s", opts.PlanID))
	}

	result := ShowResult{Plan: plan}
	if opts.Cite {
		result.Citations = fetchCitations(ctx, opts, f, plan)
	}

	if f.JSON() {
		return f.Success(result)
	}
	writePlanText(f.Writer, result)
	return nil
}

// fetchCitations resolves the plan DOI and every related DOI.
func fetchCitations(ctx context.Context, opts *ShowOptions, f *OutputFormatter, plan *model.Plan) map[string]string {
	lookup, err := opts.citationLookup()
	if err != nil {
		f.Warn("citations disabled: %v", err)
		return nil
	}
	out := make(map[string]string)
	for _, id := range plan.Identifiers {
		if id.Category != model.CategoryDOI {
			continue
		}
		f.VerboseLog("fetching citation for %s", id.Value)
		citation, err := lookup.Fetch(ctx, id.Value)
		if err != nil {
			f.Warn("no citation for %s: %v", id.Value, err)
			continue
		}
		out[id.Value] = citation
	}
	return out
}

// writePlanText renders a plan as an indented tree.
func writePlanText(w io.Writer, result ShowResult) {
	p := result.Plan
	fmt.Fprintf(w, "Plan: %s\n", p.Title)
	fmt.Fprintf(w, "  id: %s\n", p.ID)
	fmt.Fprintf(w, "  language: %s\n", p.Language)
	fmt.Fprintf(w, "  provenance: %s\n", p.Provenance)
	if p.Description != "" {
		fmt.Fprintf(w, "  description: %s\n", p.Description)
	}
	writeIdentifiers(w, "  ", p.Identifiers, result.Citations)

	if len(p.Roles) > 0 {
		fmt.Fprintln(w, "  Contributors:")
		for _, r := range p.Roles {
			if r.Contributor == nil {
				continue
			}
			line := fmt.Sprintf("    - %s [%s]", r.Contributor.Label(), r.Role)
			if a := r.Contributor.Affiliation; a != nil {
				line += " (" + a.Name + ")"
			}
			fmt.Fprintln(w, line)
		}
	}

	for _, proj := range p.Projects {
		fmt.Fprintf(w, "  Project: %s\n", proj.Title)
		for _, fund := range proj.Fundings {
			name := fund.Name
			if name == "" && fund.Affiliation != nil {
				name = fund.Affiliation.Name
			}
			fmt.Fprintf(w, "    Funding: %s [%s]\n", name, fund.Status)
			writeIdentifiers(w, "      ", fund.Identifiers, nil)
		}
	}

	for _, c := range p.Costs {
		value := "-"
		if c.Value != nil {
			value = fmt.Sprintf("%.2f %s", *c.Value, c.CurrencyCode)
		}
		fmt.Fprintf(w, "  Cost: %s %s\n", c.Title, strings.TrimSpace(value))
	}

	for _, d := range p.Datasets {
		fmt.Fprintf(w, "  Dataset: %s [%s]\n", d.Title, d.Type)
		if len(d.Keywords) > 0 {
			fmt.Fprintf(w, "    keywords: %s\n", strings.Join(d.Keywords, ", "))
		}
		writeIdentifiers(w, "    ", d.Identifiers, nil)
		for _, dist := range d.Distributions {
			fmt.Fprintf(w, "    Distribution: %s\n", dist.Title)
			if dist.DownloadURL != "" {
				fmt.Fprintf(w, "      download: %s\n", dist.DownloadURL)
			} else if dist.AccessURL != "" {
				fmt.Fprintf(w, "      access: %s\n", dist.AccessURL)
			}
			if dist.Host != nil {
				fmt.Fprintf(w, "      host: %s\n", dist.Host.Title)
			}
		}
	}
}

func writeIdentifiers(w io.Writer, indent string, ids []*model.Identifier, citations map[string]string) {
	for _, id := range ids {
		fmt.Fprintf(w, "%s%s %s: %s\n", indent, id.Descriptor, id.Category, id.Value)
		if c, ok := citations[id.Value]; ok {
			fmt.Fprintf(w, "%s  citation: %s\n", indent, c)
		}
	}
}
