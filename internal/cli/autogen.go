package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nnpdf/pinefarm/internal/nnlojet"
	"github.com/nnpdf/pinefarm/internal/provider"
)

// AutogenOptions holds flags for the autogen command.
type AutogenOptions struct {
	*RootOptions
	Target string
	Scale  string
}

// NewAutogenCommand creates the autogen command.
func NewAutogenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AutogenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "autogen <descriptor>",
		Short: "Generate runcards from a dataset descriptor",
		Long: `Generate NNLOJET pinecards from the kinematics of a dataset descriptor.

The pinecards and a metadata.txt are written to
<runcards>/NNLOJET_<dataset>; processes such as WPWM are split into one
folder per charge.

Example:
  pinefarm autogen CMS_Z0_13TEV_PT.yaml
  pinefarm autogen ATLAS_WPWM_7TEV.yaml --scale mw`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutogen(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "nnlojet", "generator to write runcards for")
	cmd.Flags().StringVar(&opts.Scale, "scale", "mz", "theory parameter used for mur and muf")

	return cmd
}

func runAutogen(opts *AutogenOptions, descriptor string, cmd *cobra.Command) error {
	if err := opts.init(); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	if !strings.EqualFold(opts.Target, string(provider.NNLOJET)) {
		return formatter.Fail(ExitCommandError, "autogen failed",
			fmt.Errorf("target %q: %w", opts.Target, provider.ErrUnsupported))
	}

	d, err := nnlojet.LoadDescriptor(opts.Schema, descriptor)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load descriptor", err)
	}
	out := filepath.Join(opts.Config.Paths.Runcards, provider.NNLOJETPrefix+d.Dataset)
	formatter.VerboseLog("writing runcards below %s", out)

	paths, err := nnlojet.Autogen(d, nnlojet.AutogenOptions{
		Output: out,
		Scale:  opts.Scale,
		Logger: opts.logger(),
	})
	if err != nil {
		return formatter.Fail(ExitFailure, "autogen failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"dataset": d.Dataset, "pinecards": paths})
	}
	for _, p := range paths {
		fmt.Fprintln(formatter.Writer, p)
	}
	return nil
}
