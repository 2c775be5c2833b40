package transform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nnpdf/pinefarm/internal/grid"
)

// Rescaler rewrites the grid file at in to out with every weight scaled.
type Rescaler interface {
	Rescale(ctx context.Context, in, out string) error
}

// CommandRescaler runs an external grid tool as
// `<Command> write --scale=<Factor> <in> <out>`.
type CommandRescaler struct {
	Command string
	Factor  float64
}

// Rescale implements Rescaler.
func (r CommandRescaler) Rescale(ctx context.Context, in, out string) error {
	scale := "--scale=" + strconv.FormatFloat(r.Factor, 'g', -1, 64)
	cmd := exec.CommandContext(ctx, r.Command, "write", scale, in, out)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s write %s: %w: %s", r.Command, scale, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ScaleRescaler rescales in-process with grid.Scale.
type ScaleRescaler struct {
	Factor float64
}

// Rescale implements Rescaler.
func (r ScaleRescaler) Rescale(ctx context.Context, in, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g, err := grid.ReadFile(in)
	if err != nil {
		return err
	}
	g.Scale(r.Factor)
	return g.WriteFile(out)
}

// MirrorOptions configures MirrorRapidity.
type MirrorOptions struct {
	// GridPath is the rapidity-symmetric source grid.
	GridPath string

	// OutputStem is the output path without the grid extension.
	OutputStem string

	// Rescaler, when set, is applied to an intermediate file before the
	// final grid is written. The intermediate is removed only on success.
	Rescaler Rescaler

	Logger *zap.Logger
}

// MirrorResult describes a completed mirror run.
type MirrorResult struct {
	Output string
	Bins   int
	Merged *grid.Grid
}

// OutputPath returns the final grid path for an output stem.
func OutputPath(stem string) string {
	return trimGridExtension(stem) + grid.CompressedExtension
}

// IntermediatePath returns the path of the unscaled grid written before a
// rescale step.
func IntermediatePath(stem string) string {
	return trimGridExtension(stem) + "_tmp" + grid.CompressedExtension
}

func trimGridExtension(stem string) string {
	stem = strings.TrimSuffix(stem, grid.CompressedExtension)
	return strings.TrimSuffix(stem, grid.Extension)
}

// MirrorRapidity splits the grid at opts.GridPath into negative and positive
// rapidity halves, reverses the negative half and writes the merged grid to
// OutputPath(opts.OutputStem).
//
// Nothing is written to the output path unless every step succeeds.
func MirrorRapidity(ctx context.Context, opts MirrorOptions) (*MirrorResult, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	pos, err := grid.ReadFile(opts.GridPath)
	if err != nil {
		return nil, err
	}
	neg, err := grid.ReadFile(opts.GridPath)
	if err != nil {
		return nil, err
	}
	if err := CheckDimensions(pos); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.GridPath, err)
	}
	log.Debug("loaded grid", zap.String("path", opts.GridPath), zap.Int("bins", pos.Bins()))

	if err := Modify(pos, true, MergeFactor); err != nil {
		return nil, err
	}
	if err := Modify(neg, false, MergeFactor); err != nil {
		return nil, err
	}
	rev, err := ReverseBins(neg)
	if err != nil {
		return nil, err
	}
	merged, err := MergeBins(rev, pos)
	if err != nil {
		return nil, err
	}
	log.Debug("merged halves", zap.Int("bins", merged.Bins()))

	final := OutputPath(opts.OutputStem)
	if opts.Rescaler == nil {
		if err := merged.WriteFile(final); err != nil {
			return nil, err
		}
	} else if err := rescaleInto(ctx, merged, opts, final, log); err != nil {
		return nil, err
	}

	log.Info("wrote mirrored grid", zap.String("output", final), zap.Int("bins", merged.Bins()))
	return &MirrorResult{Output: final, Bins: merged.Bins(), Merged: merged}, nil
}

func rescaleInto(ctx context.Context, merged *grid.Grid, opts MirrorOptions, final string, log *zap.Logger) error {
	intermediate := IntermediatePath(opts.OutputStem)
	if err := merged.WriteFile(intermediate); err != nil {
		return err
	}

	staging := filepath.Join(filepath.Dir(final), ".rescale-"+filepath.Base(final))
	if err := opts.Rescaler.Rescale(ctx, intermediate, staging); err != nil {
		os.Remove(staging)
		return fmt.Errorf("rescale %s: %w", intermediate, err)
	}
	if err := os.Rename(staging, final); err != nil {
		os.Remove(staging)
		return fmt.Errorf("rescale %s: %w", intermediate, err)
	}
	if err := os.Remove(intermediate); err != nil {
		log.Warn("could not remove intermediate grid", zap.String("path", intermediate), zap.Error(err))
	}
	log.Debug("rescaled grid", zap.String("intermediate", intermediate), zap.String("output", final))
	return nil
}
