package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nnpdf/pinefarm/internal/check"
	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/lhapdf"
	"github.com/nnpdf/pinefarm/internal/transform"
)

// MirrorOptions holds flags for the mirror command.
type MirrorOptions struct {
	*RootOptions
	Grid      string
	Output    string
	Rescale   float64
	InProcess bool
	Check     bool
	PDF       string
}

// MirrorSummary is the JSON payload of the mirror command.
type MirrorSummary struct {
	Output string        `json:"output"`
	Bins   int           `json:"bins"`
	Check  *check.Report `json:"check,omitempty"`
}

// NewMirrorCommand creates the mirror command.
func NewMirrorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MirrorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Mirror a rapidity-symmetric grid onto negative rapidities",
		Long: `Split a grid binned in |y| into negative and positive rapidity halves,
each normalized by 2, reverse the negative half and merge the two.

With --rescale the merged grid is first written to <output>_tmp.pineappl.lz4
and rescaled by the grid command line tool (or in process with
--in-process); the intermediate file is removed once the final grid exists.

Example:
  pinefarm mirror -g ATLAS_Z_Y.pineappl.lz4 -o ATLAS_Z_Y_FULL
  pinefarm mirror -g LHCB_Z.pineappl.lz4 -o LHCB_Z_FULL --rescale 0.001 --check`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Grid, "grid", "g", "", "source grid (required)")
	_ = cmd.MarkFlagRequired("grid")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output name without extension (required)")
	_ = cmd.MarkFlagRequired("output")
	cmd.Flags().Float64Var(&opts.Rescale, "rescale", 0, "rescale the merged grid by this factor")
	cmd.Flags().BoolVar(&opts.InProcess, "in-process", false, "rescale without the grid command line tool")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "verify the merged predictions against the source grid")
	cmd.Flags().StringVar(&opts.PDF, "pdf", "", "PDF set used by --check (default: unit densities)")

	return cmd
}

func runMirror(opts *MirrorOptions, cmd *cobra.Command) error {
	if err := opts.init(); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	mopts := transform.MirrorOptions{
		GridPath:   opts.Grid,
		OutputStem: opts.Output,
		Logger:     opts.logger(),
	}
	scale := 1.0
	if opts.Rescale != 0 {
		scale = opts.Rescale
		if opts.InProcess {
			mopts.Rescaler = transform.ScaleRescaler{Factor: scale}
		} else {
			mopts.Rescaler = transform.CommandRescaler{Command: opts.Config.Commands.GridCLI, Factor: scale}
		}
	}

	res, err := transform.MirrorRapidity(cmd.Context(), mopts)
	if err != nil {
		return formatter.Fail(exitCodeFor(err), "mirror failed", err)
	}
	summary := MirrorSummary{Output: res.Output, Bins: res.Bins}

	if opts.Check {
		report, err := mirrorCheck(opts, res.Output, scale)
		if err != nil {
			return formatter.Fail(ExitFailure, "check failed", err)
		}
		summary.Check = report
		if err := report.Err(); err != nil {
			if opts.Format != "json" {
				_ = report.Render(formatter.Writer)
			}
			return formatter.Fail(ExitFailure, "check failed", err)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(summary)
	}
	fmt.Fprintf(formatter.Writer, "wrote %s (%d bins)\n", summary.Output, summary.Bins)
	if summary.Check != nil {
		if err := summary.Check.Render(formatter.Writer); err != nil {
			return err
		}
	}
	return nil
}

func mirrorCheck(opts *MirrorOptions, output string, scale float64) (*check.Report, error) {
	src, err := grid.ReadFile(opts.Grid)
	if err != nil {
		return nil, err
	}
	merged, err := grid.ReadFile(output)
	if err != nil {
		return nil, err
	}
	lumi := check.UnitLuminosity
	if opts.PDF != "" {
		pdf, err := lhapdf.Load(opts.Config.Paths.LHAPDFData, opts.PDF, 0)
		if err != nil {
			return nil, err
		}
		lumi = grid.LuminosityFromPDF(pdf)
	}
	return check.Mirror(src, merged, lumi, scale, check.DefaultTolerance)
}

// exitCodeFor treats validation failures of the input as command errors.
func exitCodeFor(err error) int {
	switch {
	case grid.IsDimensionalityError(err), grid.IsVersionMismatch(err):
		return ExitCommandError
	default:
		return ExitFailure
	}
}
