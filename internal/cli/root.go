package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/dmpsync/internal/archive"
	"github.com/roach88/dmpsync/internal/config"
	"github.com/roach88/dmpsync/internal/external"
	"github.com/roach88/dmpsync/internal/ingest"
	"github.com/roach88/dmpsync/internal/metrics"
	"github.com/roach88/dmpsync/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	cfg    *config.Config
	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the dmpsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dmpsync",
		Short: "dmpsync - DMP reconciliation engine",
		Long: `Reconcile maDMP (RDA DMP Common Standard) documents into a relational store.

Each submitted document is matched against stored plans, contributors,
organizations and identifiers, validated as a whole graph, and saved in a
single transaction together with an audit record of the submission.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			_, err := opts.Config()
			return err
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a yaml config file")

	// Add subcommands
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Config loads the configuration once. Commands built outside the root
// command (as in tests) load it on first use.
func (o *RootOptions) Config() (config.Config, error) {
	if o.cfg != nil {
		return *o.cfg, nil
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	o.cfg = &cfg
	return cfg, nil
}

// Logger returns the logger described by the logging config, writing to
// the command's stderr.
func (o *RootOptions) Logger(cmd *cobra.Command) *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	cfg, err := o.Config()
	if err != nil {
		cfg = config.Default()
	}
	o.logger = cfg.Logging.NewLogger(cmd.ErrOrStderr(), o.Verbose)
	return o.logger
}

// openStore opens the database named by the --db flag, or the configured
// one when the flag is empty.
func (o *RootOptions) openStore(dbFlag string) (*store.Store, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	dsn := cfg.Database.DSN
	if dbFlag != "" {
		dsn = dbFlag
	}
	st, err := store.OpenDriver(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// ingesterOptions collects the settings shared by commands that run the
// submission pipeline.
type ingesterOptions struct {
	provenance string
	recorder   *metrics.Recorder
	// full enables post-commit steps: minting and archiving.
	full bool
}

// newIngester builds an ingester from the config.
func (o *RootOptions) newIngester(ctx context.Context, cmd *cobra.Command, st *store.Store, iopts ingesterOptions) (*ingest.Ingester, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	logger := o.Logger(cmd)

	provenance := cfg.Ingest.Provenance
	if iopts.provenance != "" {
		provenance = iopts.provenance
	}
	opts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithDefaultProvenance(provenance),
		ingest.WithLanguage(cfg.Ingest.Language),
	}
	if iopts.recorder != nil {
		opts = append(opts, ingest.WithMetrics(iopts.recorder))
	}
	if cfg.Organizations.Directory != "" {
		dir, err := external.LoadDirectory(cfg.Organizations.Directory)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load organization directory", err)
		}
		logger.Debug("loaded organization directory", "path", cfg.Organizations.Directory, "entries", dir.Len())
		opts = append(opts, ingest.WithNameSearch(dir))
	}

	if iopts.full {
		if cfg.Minting.Enabled {
			opts = append(opts, ingest.WithMinter(external.LocalMinter{
				Prefix:   cfg.Minting.Prefix,
				Shoulder: cfg.Minting.Shoulder,
			}))
		}
		arch, err := archive.Open(ctx, cfg.ArchiveConfig())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open archive", err)
		}
		if arch != nil {
			logger.Debug("archiving payloads", "driver", arch.Driver())
			opts = append(opts, ingest.WithArchive(arch))
		}
	}
	return ingest.New(st, opts...), nil
}

// citationLookup builds the DOI citation client from the config.
func (o *RootOptions) citationLookup() (external.CitationLookup, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	return external.NewDOICitations(cfg.Citations.BaseURL, cfg.Citations.Timeout), nil
}
