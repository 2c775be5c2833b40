package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/lhapdf"
	"github.com/nnpdf/pinefarm/internal/provenance"
)

// ConvolveOptions holds flags for the convolve command.
type ConvolveOptions struct {
	*RootOptions
	PDF    string
	Member int
	XiR    float64
	XiF    float64
}

// BinPrediction is one bin of the convolve output.
type BinPrediction struct {
	Bin        int     `json:"bin"`
	Left       float64 `json:"left"`
	Right      float64 `json:"right"`
	Prediction float64 `json:"prediction"`
}

// ConvolveResult is the JSON payload of the convolve command.
type ConvolveResult struct {
	Grid           string          `json:"grid"`
	PDF            string          `json:"pdf"`
	LHAPDFID       int             `json:"lhapdf_id"`
	MetadataDigest string          `json:"metadata_digest"`
	Bins           []BinPrediction `json:"bins"`
}

// NewConvolveCommand creates the convolve command.
func NewConvolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convolve <grid>",
		Short: "Print the predictions of a grid",
		Long: `Convolve a grid with a PDF member and print one prediction per bin,
together with a digest of the grid metadata.

Example:
  pinefarm convolve ATLAS_Z_Y.pineappl.lz4 --pdf NNPDF40_nnlo_as_01180
  pinefarm convolve ATLAS_Z_Y.pineappl.lz4 --xir 2 --xif 0.5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PDF, "pdf", "", "PDF set (default from config)")
	cmd.Flags().IntVar(&opts.Member, "member", 0, "PDF member")
	cmd.Flags().Float64Var(&opts.XiR, "xir", 1, "renormalization scale factor")
	cmd.Flags().Float64Var(&opts.XiF, "xif", 1, "factorization scale factor")

	return cmd
}

func runConvolve(opts *ConvolveOptions, path string, cmd *cobra.Command) error {
	if err := opts.init(); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	g, err := grid.ReadFile(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to read grid", err)
	}
	name := opts.PDF
	if name == "" {
		name = opts.Config.PDF
	}
	pdf, err := lhapdf.Load(opts.Config.Paths.LHAPDFData, name, opts.Member)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load PDF", err)
	}

	preds, err := g.Convolve(grid.LuminosityFromPDF(pdf), grid.ConvolveOptions{XiR: opts.XiR, XiF: opts.XiF})
	if err != nil {
		return formatter.Fail(ExitFailure, "convolution failed", err)
	}
	digest, err := provenance.MetadataDigest(g.Metadata())
	if err != nil {
		return formatter.Fail(ExitFailure, "metadata digest failed", err)
	}

	res := ConvolveResult{
		Grid:           path,
		PDF:            name,
		LHAPDFID:       pdf.LHAPDFID(),
		MetadataDigest: digest,
		Bins:           make([]BinPrediction, len(preds)),
	}
	var left, right []float64
	if g.BinDimensions() > 0 {
		left, right = g.BinLeft(0), g.BinRight(0)
	}
	for i, p := range preds {
		res.Bins[i] = BinPrediction{Bin: i, Prediction: p}
		if i < len(left) {
			res.Bins[i].Left, res.Bins[i].Right = left[i], right[i]
		}
	}

	if opts.Format == "json" {
		return formatter.Success(res)
	}
	fmt.Fprintf(formatter.Writer, "%s with %s (LHAPDF ID %d)\n", res.Grid, res.PDF, res.LHAPDFID)
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "bin\tleft\tright\tprediction\t")
	for _, b := range res.Bins {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", b.Bin,
			strconv.FormatFloat(b.Left, 'g', 6, 64),
			strconv.FormatFloat(b.Right, 'g', 6, 64),
			strconv.FormatFloat(b.Prediction, 'e', 7, 64))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(formatter.Writer, "metadata digest: %s\n", res.MetadataDigest)
	return nil
}
