package transform

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/nnpdf/pinefarm/internal/grid"
)

// MergeFactor is the normalization applied to each half of a mirrored grid.
const MergeFactor = 2.0

// CheckDimensions fails with a dimensionality error unless g is binned in
// exactly one observable dimension.
func CheckDimensions(g *grid.Grid) error {
	if dims := g.BinDimensions(); dims != 1 {
		return grid.NewDimensionalityError(dims, 1)
	}
	return nil
}

// Modify multiplies every bin edge by the sign and every normalization by
// norm, in place. An edge equal to zero stays +0 whatever the sign.
//
// Applying Modify twice is not guarded against.
func Modify(g *grid.Grid, positiveSign bool, norm float64) error {
	if err := CheckDimensions(g); err != nil {
		return err
	}
	sign := 1.0
	if !positiveSign {
		sign = -1.0
	}

	left, right := g.BinLeft(0), g.BinRight(0)
	floats.Scale(sign, left)
	floats.Scale(sign, right)

	limits := make([]grid.Limit, len(left))
	for i := range limits {
		limits[i] = grid.Limit{Left: unsignedZero(left[i]), Right: unsignedZero(right[i])}
	}

	norms := g.BinNormalizations()
	floats.Scale(norm, norms)

	if err := g.Remap(norms, limits); err != nil {
		return fmt.Errorf("modify bins: %w", err)
	}
	return nil
}

// unsignedZero maps -0 to +0 and returns every other value unchanged.
func unsignedZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}

// ReverseBins returns a new grid whose bin b holds the subgrids of bin
// n-1-b of g, with edges [R[n-1], L[n-1], ..., L[0]].
//
// The reversed grid takes its normalizations from the new bin widths and is
// then modified with a positive sign and MergeFactor. Metadata is copied.
func ReverseBins(g *grid.Grid) (*grid.Grid, error) {
	if err := CheckDimensions(g); err != nil {
		return nil, err
	}
	left, right := g.BinLeft(0), g.BinRight(0)
	n := len(left)

	edges := make([]float64, 0, n+1)
	edges = append(edges, right[n-1])
	for i := n - 1; i >= 0; i-- {
		edges = append(edges, left[i])
	}

	out, err := grid.New(g.Channels(), g.Orders(), edges, g.Params())
	if err != nil {
		return nil, fmt.Errorf("reverse bins: %w", err)
	}

	nOrders, nChannels := len(g.Orders()), len(g.Channels())
	for b := 0; b < n; b++ {
		for o := 0; o < nOrders; o++ {
			for c := 0; c < nChannels; c++ {
				sg, err := g.Subgrid(o, n-1-b, c)
				if err != nil {
					return nil, fmt.Errorf("reverse bins: %w", err)
				}
				if q, _, _ := sg.Shape(); q == 0 {
					continue
				}
				if err := out.SetSubgrid(o, b, c, sg.Clone()); err != nil {
					return nil, fmt.Errorf("reverse bins: %w", err)
				}
			}
		}
	}

	for k, v := range g.Metadata() {
		out.SetKeyValue(k, v)
	}

	if err := Modify(out, true, MergeFactor); err != nil {
		return nil, err
	}
	return out, nil
}

// MergeBins returns a new grid holding the bins of a followed by the bins of
// b. Neither input is modified. Overlapping or non-contiguous ranges are not
// detected.
func MergeBins(a, b *grid.Grid) (*grid.Grid, error) {
	out := a.Clone()
	if err := out.Merge(b); err != nil {
		return nil, fmt.Errorf("merge bins: %w", err)
	}
	return out, nil
}
