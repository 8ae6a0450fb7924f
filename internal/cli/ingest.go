package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dmpsync/internal/ingest"
	"github.com/roach88/dmpsync/internal/metrics"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Database    string
	Provenance  string
	MetricsFile string
}

// IngestFileResult is the outcome of one submitted file.
type IngestFileResult struct {
	File         string   `json:"file"`
	Accepted     bool     `json:"accepted"`
	PlanID       string   `json:"plan_id,omitempty"`
	SubmissionID string   `json:"submission_id,omitempty"`
	DOI          string   `json:"doi,omitempty"`
	Minted       bool     `json:"minted,omitempty"`
	ArchiveKey   string   `json:"archive_key,omitempty"`
	Code         string   `json:"code,omitempty"`
	Codes        []string `json:"codes,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// IngestResult holds the overall ingest result.
type IngestResult struct {
	Files    []IngestFileResult `json:"files"`
	Accepted int                `json:"accepted"`
	Rejected int                `json:"rejected"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Submit DMP documents",
		Long: `Submit one or more maDMP JSON documents. A file named "-" is read from stdin.

Every file is reconciled against the store and saved in its own
transaction. A rejected file does not stop the remaining ones.

Exit codes:
  0 - Every file was accepted
  1 - One or more files were rejected, or minting or archiving failed
  2 - Command error (unreadable file, database not found, etc.)

Examples:
  dmpsync ingest plan.json --db ./dmpsync.db
  dmpsync ingest a.json b.json --provenance dmphub
  cat plan.json | dmpsync ingest - --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database DSN (defaults to the configured one)")
	cmd.Flags().StringVar(&opts.Provenance, "provenance", "", "source system the documents come from")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")

	return cmd
}

func runIngest(opts *IngestOptions, files []string, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	// Read every file first so a typo fails before anything is written
	payloads := make([][]byte, len(files))
	for i, file := range files {
		data, err := readInput(file, cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", file), err)
		}
		payloads[i] = data
	}

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	metricsFile := cfg.Metrics.File
	if opts.MetricsFile != "" {
		metricsFile = opts.MetricsFile
	}
	var recorder *metrics.Recorder
	if metricsFile != "" {
		recorder = metrics.NewRecorder()
	}

	st, err := opts.openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ing, err := opts.newIngester(ctx, cmd, st, ingesterOptions{
		provenance: opts.Provenance,
		recorder:   recorder,
		full:       true,
	})
	if err != nil {
		return err
	}

	result := IngestResult{Files: make([]IngestFileResult, 0, len(files))}
	var storageErr error
	for i, file := range files {
		f.VerboseLog("submitting %s (%d bytes)", file, len(payloads[i]))
		fr := submitFile(ctx, ing, opts.Provenance, file, payloads[i])
		if fr.Accepted {
			result.Accepted++
		} else {
			result.Rejected++
		}
		if fr.Code == string(ingest.ErrCodeStorage) && storageErr == nil {
			storageErr = fmt.Errorf("%s: %s", file, fr.Error)
		}
		result.Files = append(result.Files, fr)
	}

	if recorder != nil {
		if err := recorder.WriteToTextfile(metricsFile); err != nil {
			f.Warn("failed to write metrics: %v", err)
		} else {
			f.VerboseLog("metrics written to %s", metricsFile)
		}
	}

	if err := outputIngest(f, result); err != nil {
		return err
	}

	switch {
	case storageErr != nil:
		return WrapExitError(ExitCommandError, "storage failure", storageErr)
	case result.Rejected > 0 || hasPostCommitErrors(result):
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d file(s) rejected", result.Rejected, len(files)))
	}
	return nil
}

// submitFile runs one payload through the ingester.
func submitFile(ctx context.Context, ing *ingest.Ingester, provenance, file string, payload []byte) IngestFileResult {
	res, err := ing.Submit(ctx, provenance, payload)
	fr := IngestFileResult{File: file, Accepted: res != nil}
	if res != nil {
		fr.PlanID = res.PlanID
		fr.SubmissionID = res.SubmissionID
		fr.DOI = res.DOI
		fr.Minted = res.Minted
		if res.Archive != nil {
			fr.ArchiveKey = res.Archive.Key
		}
	}
	if err != nil {
		fr.Code = errorCode(err)
		for _, c := range ingest.Codes(err) {
			fr.Codes = append(fr.Codes, string(c))
		}
		fr.Error = err.Error()
	}
	return fr
}

// hasPostCommitErrors reports whether an accepted file failed to mint or
// archive.
func hasPostCommitErrors(result IngestResult) bool {
	for _, fr := range result.Files {
		if fr.Accepted && fr.Code != "" {
			return true
		}
	}
	return false
}

func outputIngest(f *OutputFormatter, result IngestResult) error {
	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if result.Rejected > 0 || hasPostCommitErrors(result) {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    firstCode(result),
				Message: fmt.Sprintf("%d file(s) rejected", result.Rejected),
			}
		}
		return f.Encode(resp)
	}

	w := f.Writer
	for _, fr := range result.Files {
		if !fr.Accepted {
			fmt.Fprintf(w, "✗ %s\n", fr.File)
			fmt.Fprintf(w, "  %s: %s\n", fr.Code, fr.Error)
			continue
		}
		fmt.Fprintf(w, "✓ %s\n", fr.File)
		fmt.Fprintf(w, "  plan: %s\n", fr.PlanID)
		if fr.DOI != "" {
			suffix := ""
			if fr.Minted {
				suffix = " (minted)"
			}
			fmt.Fprintf(w, "  doi: %s%s\n", fr.DOI, suffix)
		}
		if fr.ArchiveKey != "" {
			fmt.Fprintf(w, "  archived: %s\n", fr.ArchiveKey)
		}
		if fr.Code != "" {
			codes := fr.Code
			if len(fr.Codes) > 1 {
				codes = strings.Join(fr.Codes, ", ")
			}
			fmt.Fprintf(w, "  warning: %s: %s\n", codes, fr.Error)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Ingest Summary: %d accepted, %d rejected\n", result.Accepted, result.Rejected)
	return nil
}

func firstCode(result IngestResult) string {
	for _, fr := range result.Files {
		if fr.Code != "" {
			return fr.Code
		}
	}
	return ErrCodeGeneric
}

// readInput reads a file, or stdin for "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
