package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nnpdf/pinefarm/internal/results"
	"github.com/nnpdf/pinefarm/internal/runner"
	"github.com/nnpdf/pinefarm/internal/store"
	"github.com/nnpdf/pinefarm/internal/theory"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	PDF string
	Dry bool

	// IDs and Clock override the ledger ID generator and the wall clock
	// (for testing).
	IDs   store.IDGenerator
	Clock func() time.Time
}

// RunSummary is the JSON payload of a finished run.
type RunSummary struct {
	RunID    string               `json:"run_id,omitempty"`
	Dataset  string               `json:"dataset"`
	Provider string               `json:"provider"`
	Color    string               `json:"color"`
	Dest     string               `json:"dest"`
	Grid     string               `json:"grid,omitempty"`
	Prepared bool                 `json:"prepared"`
	Reused   bool                 `json:"reused"`
	Results  []results.Comparison `json:"results,omitempty"`
	Versions map[string]string    `json:"versions,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <dataset> <theory-card>",
		Short: "Compute the grid of a dataset",
		Long: `Compute the interpolation grid of a dataset for one theory.

The provider is chosen from the runcard folder of the dataset. Append
-<timestamp> to the dataset name to reuse the output folder of an earlier
run: execution is skipped and the stored grid is processed again.

Example:
  pinefarm run ATLAS_TTB_8TEV_LJ theory_400.yaml
  pinefarm run POS_G theory_400.yaml --pdf NNPDF40_nnlo_as_01180
  pinefarm run NNLOJET_CMS_Z0_13TEV theory_400.yaml --dry`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDataset(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PDF, "pdf", "", "PDF set used to compare results (default from config)")
	cmd.Flags().BoolVar(&opts.Dry, "dry", false, "stop after preparing the run")

	return cmd
}

func runDataset(opts *RunOptions, dataset, theoryPath string, cmd *cobra.Command) error {
	if err := opts.init(); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)
	log := opts.logger()

	th, err := theory.Load(opts.Schema, theoryPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load theory card", err)
	}

	ledger, err := store.Open(opts.Config.Paths.Ledger)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open ledger", err)
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			log.Error("error closing ledger", zap.Error(closeErr))
		}
	}()

	ropts := []runner.Option{runner.WithLogger(log), runner.WithVersion(Version)}
	if opts.IDs != nil {
		ropts = append(ropts, runner.WithIDs(opts.IDs))
	}
	if opts.Clock != nil {
		ropts = append(ropts, runner.WithClock(opts.Clock))
	}
	r := runner.New(opts.Config, opts.Schema, ledger, ropts...)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := r.Run(ctx, runner.Request{
		Dataset: dataset,
		Theory:  th,
		PDF:     opts.PDF,
		Dry:     opts.Dry,
	})
	if err != nil {
		return formatter.Fail(ExitFailure, "run "+dataset+" failed", err)
	}

	summary := RunSummary{
		RunID:    res.RunID,
		Dataset:  dataset,
		Provider: string(res.Kind),
		Color:    res.Kind.Color(),
		Dest:     res.Dest,
		Grid:     res.Grid,
		Prepared: res.Prepared,
		Reused:   res.Reused,
		Results:  res.Comparison,
		Versions: res.Versions,
	}
	if opts.Format == "json" {
		return formatter.Success(summary)
	}
	return writeRunSummary(formatter.Writer, summary)
}

func writeRunSummary(w io.Writer, s RunSummary) error {
	fmt.Fprintf(w, "[%s] %s -> %s\n", s.Provider, s.Dataset, s.Dest)
	if s.Prepared {
		fmt.Fprintln(w, "prepared, not executed")
		return nil
	}
	if len(s.Results) > 0 {
		if err := results.Render(w, s.Results); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "grid: %s\n", s.Grid)
	return nil
}
