// Package cli: batch.go implements the "oscar-runner batch" command.
//
// The batch command runs every parameter file matching a glob pattern.
// Runs are independent: each has its own work directories and output
// files, and the forcing files are read once and shared read-only. At most
// --jobs runs execute at the same time.
//
// By default the first failure cancels the remaining runs. With
// --keep-going every run is attempted and the failures are reported
// together at the end.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/oscar-runner/internal/model"
	"github.com/mmr-tortoise/oscar-runner/internal/oscar"
	"github.com/mmr-tortoise/oscar-runner/internal/pipeline"
)

// batchFlags holds the flag values for the batch command.
type batchFlags struct {
	paths     pathFlags
	glob      string
	jobs      int
	keepGoing bool
}

// NewBatchCommand creates the "batch" cobra command.
func NewBatchCommand() *cobra.Command {
	flags := &batchFlags{}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run every parameter file matching a pattern",
		Long: `Run the exceedance experiment for many parameter files.

Examples:
  oscar-runner batch --glob 'input_data/parameters/Pars_*_500_*.nc'
  oscar-runner batch --glob 'params/Pars_JSBACH_500_*.nc' --jobs 4
  oscar-runner batch --glob 'params/*.nc' --keep-going --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, flags)
		},
	}

	addPathFlags(cmd, &flags.paths)
	cmd.Flags().StringVar(&flags.glob, "glob", "", "Parameter file pattern, e.g. 'params/Pars_*_500_*.nc' (required)")
	cmd.Flags().IntVar(&flags.jobs, "jobs", runtime.NumCPU(), "Maximum number of concurrent runs")
	cmd.Flags().BoolVar(&flags.keepGoing, "keep-going", false, "Attempt every run even after a failure")
	_ = cmd.MarkFlagRequired("glob")

	return cmd
}

// batchEntry is the outcome of one run in a batch.
type batchEntry struct {
	ParameterFile string           `json:"parameterFile"`
	Status        string           `json:"status"`
	Result        *model.RunResult `json:"result,omitempty"`
	Error         string           `json:"error,omitempty"`
}

const (
	batchStatusOK      = "ok"
	batchStatusFailed  = "failed"
	batchStatusSkipped = "skipped"
)

// runBatch is the main logic function for the batch command.
func runBatch(cmd *cobra.Command, flags *batchFlags) error {
	ctx := cmd.Context()

	// Step 1: Validate flags and expand the pattern.
	if flags.jobs < 1 {
		return model.NewCLIError(model.ExitConfigError, "--jobs must be at least 1")
	}
	files, err := filepath.Glob(flags.glob)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, fmt.Sprintf("invalid pattern %q", flags.glob), err)
	}
	if len(files) == 0 {
		return model.NewCLIError(model.ExitInputError, fmt.Sprintf("no parameter file matches %q", flags.glob))
	}
	sort.Strings(files)
	VerboseLog("Matched %d parameter files", len(files))

	// Step 2: Resolve the configuration and build the shared backend.
	cfg, err := loadConfig(flags.paths)
	if err != nil {
		return err
	}
	m, release, err := newModel(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	// Step 3: Run.
	runner := pipeline.NewRunner(cfg, m, logger)
	entries, runErr := executeBatch(ctx, runner, files, flags.jobs, flags.keepGoing, logger)

	printBatchResult(cmd.OutOrStdout(), entries)
	return runErr
}

// executeBatch runs files with at most jobs runs in flight. The returned
// entries are in the order of files.
func executeBatch(ctx context.Context, runner *pipeline.Runner, files []string, jobs int, keepGoing bool, log *zap.Logger) ([]batchEntry, error) {
	entries := make([]batchEntry, len(files))
	for i, f := range files {
		entries[i] = batchEntry{ParameterFile: f, Status: batchStatusSkipped}
	}

	var (
		g    *errgroup.Group
		gctx = ctx
	)
	if keepGoing {
		g = &errgroup.Group{}
	} else {
		g, gctx = errgroup.WithContext(ctx)
	}
	g.SetLimit(jobs)

	errs := make([]error, len(files))
	for i, f := range files {
		i, f := i, f
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := runner.Run(gctx, f)
			if err != nil {
				// Runs interrupted by another run's failure stay "skipped".
				if gctx.Err() != nil && ctx.Err() == nil && oscar.IsCanceled(err) {
					return nil
				}
				log.Error("run failed", zap.String("parameter_file", f), zap.Error(err))
				entries[i].Status = batchStatusFailed
				entries[i].Error = err.Error()
				errs[i] = err
				if keepGoing {
					return nil
				}
				return err
			}
			entries[i].Status = batchStatusOK
			entries[i].Result = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return entries, err
	}
	if err := ctx.Err(); err != nil {
		return entries, model.WrapCLIError(model.ExitGeneralError, "batch interrupted", err)
	}

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	switch len(failed) {
	case 0:
		return entries, nil
	case 1:
		return entries, failed[0]
	default:
		return entries, model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("%d of %d runs failed", len(failed), len(files)), errors.Join(failed...))
	}
}

// printBatchResult outputs the batch outcome in text or JSON format.
func printBatchResult(w io.Writer, entries []batchEntry) {
	if IsJSONOutput() {
		_ = printJSON(w, struct {
			Runs []batchEntry `json:"runs"`
		}{Runs: entries})
		return
	}

	fmt.Fprintf(w, "%-8s %-20s %s\n", "STATUS", "LABEL", "PARAMETER FILE")
	for _, e := range entries {
		label := "-"
		if e.Result != nil {
			label = e.Result.Label.String()
		} else if l, err := model.ParseParameterFileName(e.ParameterFile); err == nil {
			label = l.String()
		}
		fmt.Fprintf(w, "%-8s %-20s %s\n", e.Status, label, e.ParameterFile)
		if e.Error != "" {
			fmt.Fprintf(w, "         %s\n", e.Error)
		}
	}
}
