// Package check verifies transformed grids numerically by convolving them
// and comparing against the predictions of their source.
package check

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"text/tabwriter"

	"gonum.org/v1/gonum/floats"

	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/transform"
)

// DefaultTolerance is the relative tolerance of every comparison.
const DefaultTolerance = 1e-12

// ErrMismatch is returned when at least one bin is outside tolerance.
var ErrMismatch = errors.New("predictions differ")

// UnitLuminosity sets every parton density to one and αs to one.
var UnitLuminosity = grid.Luminosity{
	XFX1:   func(_ int, x, _ float64) float64 { return x },
	AlphaS: func(float64) float64 { return 1 },
}

// Bin is the comparison of one bin.
type Bin struct {
	Index  int     `json:"bin"`
	Want   float64 `json:"want"`
	Got    float64 `json:"got"`
	RelErr float64 `json:"rel_err"`
	OK     bool    `json:"ok"`
}

// Report lists every bin of a comparison.
type Report struct {
	Tolerance float64 `json:"tolerance"`
	Bins      []Bin   `json:"bins"`
}

// OK reports whether every bin is within tolerance.
func (r *Report) OK() bool {
	for _, b := range r.Bins {
		if !b.OK {
			return false
		}
	}
	return true
}

// Err returns ErrMismatch with the failing bins, or nil.
func (r *Report) Err() error {
	var bad []int
	for _, b := range r.Bins {
		if !b.OK {
			bad = append(bad, b.Index)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return fmt.Errorf("%w in bins %v (tolerance %g)", ErrMismatch, bad, r.Tolerance)
}

// Render writes the report as an aligned table.
func (r *Report) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "bin\twant\tgot\trel. error\tok\t")
	for _, b := range r.Bins {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t\n", b.Index,
			strconv.FormatFloat(b.Want, 'e', 7, 64),
			strconv.FormatFloat(b.Got, 'e', 7, 64),
			strconv.FormatFloat(b.RelErr, 'e', 2, 64),
			b.OK)
	}
	return tw.Flush()
}

// Compare lines up two prediction vectors.
func Compare(want, got []float64, tol float64) (*Report, error) {
	if len(want) != len(got) {
		return nil, fmt.Errorf("%w: %d bins expected, %d found", ErrMismatch, len(want), len(got))
	}
	if tol <= 0 {
		tol = DefaultTolerance
	}
	r := &Report{Tolerance: tol, Bins: make([]Bin, len(want))}
	for i := range want {
		r.Bins[i] = Bin{
			Index:  i,
			Want:   want[i],
			Got:    got[i],
			RelErr: relErr(want[i], got[i]),
			OK:     floats.EqualWithinAbsOrRel(want[i], got[i], tol, tol),
		}
	}
	return r, nil
}

func relErr(want, got float64) float64 {
	if want == 0 {
		return math.Abs(got)
	}
	return math.Abs(got/want - 1)
}

// MirrorExpectation returns the predictions a mirrored grid must have:
// the halved source predictions in reverse order followed by the halved
// source predictions, all multiplied by scale.
func MirrorExpectation(source []float64, scale float64) []float64 {
	half := slices.Clone(source)
	floats.Scale(scale/transform.MergeFactor, half)
	rev := slices.Clone(half)
	slices.Reverse(rev)
	return append(rev, half...)
}

// Mirror convolves source and mirrored with lumi and checks that mirrored
// is the rapidity mirror of source rescaled by scale.
func Mirror(source, mirrored *grid.Grid, lumi grid.Luminosity, scale, tol float64) (*Report, error) {
	src, err := source.Convolve(lumi, grid.ConvolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("convolve source: %w", err)
	}
	got, err := mirrored.Convolve(lumi, grid.ConvolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("convolve mirrored grid: %w", err)
	}
	return Compare(MirrorExpectation(src, scale), got, tol)
}

// Halving checks that reversing the sign-flipped, doubly normalized copy of
// g halves every prediction. g is not modified.
func Halving(g *grid.Grid, lumi grid.Luminosity, tol float64) (*Report, error) {
	want, err := g.Convolve(lumi, grid.ConvolveOptions{})
	if err != nil {
		return nil, err
	}
	floats.Scale(1/transform.MergeFactor, want)

	neg := g.Clone()
	if err := transform.Modify(neg, false, transform.MergeFactor); err != nil {
		return nil, err
	}
	rev, err := transform.ReverseBins(neg)
	if err != nil {
		return nil, err
	}
	got, err := rev.Convolve(lumi, grid.ConvolveOptions{})
	if err != nil {
		return nil, err
	}
	slices.Reverse(got)
	return Compare(want, got, tol)
}
