package transform

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/testutil"
)

func predictions(t *testing.T, g *grid.Grid) []float64 {
	t.Helper()
	p, err := g.Convolve(testutil.UnitLuminosity, grid.ConvolveOptions{})
	require.NoError(t, err)
	return p
}

func assertRelEqual(t *testing.T, want, got []float64, tol float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, floats.EqualWithinRel(want[i], got[i], tol),
			"bin %d: want %v got %v", i, want[i], got[i])
	}
}

func reversed(v []float64) []float64 {
	out := slices.Clone(v)
	slices.Reverse(out)
	return out
}

func halved(v []float64) []float64 {
	out := slices.Clone(v)
	floats.Scale(0.5, out)
	return out
}

func TestReverseBins_HalvesPredictions(t *testing.T) {
	ref := testutil.RandomGrid(t, testutil.GridSpec{Seed: 1})
	rev, err := ReverseBins(ref)
	require.NoError(t, err)

	assertRelEqual(t, halved(predictions(t, ref)), reversed(predictions(t, rev)), 1e-12)
}

func TestReverseBins_AfterNegativeModify(t *testing.T) {
	ref := testutil.RandomGrid(t, testutil.GridSpec{Seed: 2})
	want := halved(predictions(t, ref))

	neg := ref.Clone()
	require.NoError(t, Modify(neg, false, MergeFactor))
	rev, err := ReverseBins(neg)
	require.NoError(t, err)

	assertRelEqual(t, want, reversed(predictions(t, rev)), 1e-12)
	assert.Equal(t, []float64{2 * 0.5, 2 * 0.5, 2 * 0.5}, rev.BinNormalizations(),
		"normalizations are twice the reversed widths, not four times")
}

func TestReverseBins_Edges(t *testing.T) {
	g := testutil.RandomGrid(t, testutil.GridSpec{Edges: []float64{-3, -1, 0.5, 4}})
	left, right := g.BinLeft(0), g.BinRight(0)

	rev, err := ReverseBins(g)
	require.NoError(t, err)

	edges, err := rev.Edges()
	require.NoError(t, err)
	assert.Equal(t, []float64{right[2], left[2], left[1], left[0]}, edges)
	assert.Equal(t, g.Bins(), rev.Bins())
}

func TestReverseBins_CopiesSubgridsVerbatim(t *testing.T) {
	g := testutil.RandomGrid(t, testutil.GridSpec{Seed: 3})
	g.SetKeyValue("runcard", "ttbar")
	n := g.Bins()

	rev, err := ReverseBins(g)
	require.NoError(t, err)

	for o := range g.Orders() {
		for b := 0; b < n; b++ {
			for c := range g.Channels() {
				want, err := g.Subgrid(o, n-1-b, c)
				require.NoError(t, err)
				got, err := rev.Subgrid(o, b, c)
				require.NoError(t, err)

				assert.Equal(t, want.Mu2Grid(), got.Mu2Grid())
				assert.Equal(t, want.X1Grid(), got.X1Grid())
				assert.Equal(t, want.X2Grid(), got.X2Grid())
				assert.Equal(t, want.Array(), got.Array())
			}
		}
	}

	v, ok := rev.KeyValue("runcard")
	assert.True(t, ok)
	assert.Equal(t, "ttbar", v)
}

func TestModify(t *testing.T) {
	g := testutil.RandomGrid(t, testutil.GridSpec{Edges: []float64{0, 0.5, 1.5}})

	require.NoError(t, Modify(g, false, 3))
	assert.Equal(t, []float64{0, -0.5}, g.BinLeft(0))
	assert.Equal(t, []float64{-0.5, -1.5}, g.BinRight(0))
	assert.Equal(t, []float64{1.5, 3}, g.BinNormalizations())

	t.Run("positive sign keeps edges", func(t *testing.T) {
		g := testutil.RandomGrid(t, testutil.GridSpec{Edges: []float64{-1, 0, 1}})
		require.NoError(t, Modify(g, true, 1))
		edges, err := g.Edges()
		require.NoError(t, err)
		assert.Equal(t, []float64{-1, 0, 1}, edges)
	})
}

func TestModify_ZeroEdgeStaysPositive(t *testing.T) {
	g := testutil.RandomGrid(t, testutil.GridSpec{Edges: []float64{-1, 0, 1}})

	require.NoError(t, Modify(g, false, MergeFactor))
	for _, v := range append(g.BinLeft(0), g.BinRight(0)...) {
		if v == 0 {
			assert.False(t, math.Signbit(v), "zero edge must not become -0")
		}
	}
	assert.Equal(t, []float64{1, 0}, g.BinLeft(0))
}

func TestMergeBins(t *testing.T) {
	a := testutil.RandomGrid(t, testutil.GridSpec{Edges: []float64{0, 1, 2}, Seed: 4})
	b := testutil.RandomGrid(t, testutil.GridSpec{Edges: []float64{2, 3, 4, 5}, Seed: 5})

	merged, err := MergeBins(a, b)
	require.NoError(t, err)
	assert.Equal(t, a.Bins()+b.Bins(), merged.Bins())
	assert.Equal(t, 2, a.Bins(), "inputs are not modified")

	want := append(predictions(t, a), predictions(t, b)...)
	assertRelEqual(t, want, predictions(t, merged), 1e-14)
}

func TestMergeBins_Incompatible(t *testing.T) {
	a := testutil.RandomGrid(t, testutil.GridSpec{})
	b := testutil.RandomGrid(t, testutil.GridSpec{
		Channels: []grid.Channel{{{PID1: 21, PID2: 21, Factor: 1}}},
	})

	_, err := MergeBins(a, b)
	require.Error(t, err)
	assert.True(t, grid.IsIncompatibleGrid(err))

	c := testutil.RandomGrid(t, testutil.GridSpec{Orders: []grid.Order{{Alphas: 1}}})
	_, err = MergeBins(a, c)
	assert.True(t, grid.IsIncompatibleGrid(err))
}

func TestDimensionalityGuard(t *testing.T) {
	g := testutil.RandomGrid(t, testutil.GridSpec{Edges: []float64{0, 1}})
	require.NoError(t, g.Remap([]float64{1}, []grid.Limit{{Left: 0, Right: 1}, {Left: 10, Right: 20}}))

	assert.True(t, grid.IsDimensionalityError(CheckDimensions(g)))

	before := g.BinLimits()
	err := Modify(g, false, 2)
	assert.True(t, grid.IsDimensionalityError(err))
	assert.Equal(t, before, g.BinLimits(), "no mutation before the guard")

	_, err = ReverseBins(g)
	assert.True(t, grid.IsDimensionalityError(err))
}
