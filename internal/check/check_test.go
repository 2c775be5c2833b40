package check

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/testutil"
	"github.com/nnpdf/pinefarm/internal/transform"
)

func TestHalving(t *testing.T) {
	g := testutil.RandomGrid(t, testutil.GridSpec{Edges: []float64{0.5, 1.0, 1.5, 2.0}, Seed: 7})
	before := g.BinLimits()

	r, err := Halving(g, UnitLuminosity, 0)
	require.NoError(t, err)
	assert.True(t, r.OK())
	assert.NoError(t, r.Err())
	assert.Len(t, r.Bins, 3)
	assert.Equal(t, before, g.BinLimits(), "source grid is untouched")
}

func TestHalving_TwoDimensional(t *testing.T) {
	g := testutil.RandomGrid(t, testutil.GridSpec{Edges: []float64{0, 1}})
	require.NoError(t, g.Remap([]float64{1}, []grid.Limit{{Left: 0, Right: 1}, {Left: 2, Right: 3}}))

	_, err := Halving(g, UnitLuminosity, 0)
	assert.True(t, grid.IsDimensionalityError(err))
}

func TestMirror(t *testing.T) {
	src := testutil.RandomGrid(t, testutil.GridSpec{Edges: []float64{0, 0.8, 1.6, 2.4}, Seed: 9})
	path := filepath.Join(t.TempDir(), "src.pineappl")
	testutil.WriteGrid(t, src, path)

	res, err := transform.MirrorRapidity(context.Background(), transform.MirrorOptions{
		GridPath:   path,
		OutputStem: filepath.Join(t.TempDir(), "out"),
		Rescaler:   transform.ScaleRescaler{Factor: 0.5},
	})
	require.NoError(t, err)
	out, err := grid.ReadFile(res.Output)
	require.NoError(t, err)

	r, err := Mirror(src, out, UnitLuminosity, 0.5, 0)
	require.NoError(t, err)
	assert.True(t, r.OK())
	assert.Len(t, r.Bins, 6)

	t.Run("wrong scale is reported", func(t *testing.T) {
		r, err := Mirror(src, out, UnitLuminosity, 1, 0)
		require.NoError(t, err)
		assert.False(t, r.OK())
		assert.True(t, errors.Is(r.Err(), ErrMismatch))
	})
}

func TestMirrorExpectation(t *testing.T) {
	assert.Equal(t, []float64{3, 2, 1, 1, 2, 3}, MirrorExpectation([]float64{2, 4, 6}, 1))
	assert.Equal(t, []float64{12, 4, 4, 12}, MirrorExpectation([]float64{4, 12}, 2))
}

func TestCompare(t *testing.T) {
	r, err := Compare([]float64{1, 0, 2}, []float64{1, 0, 2.5}, 1e-9)
	require.NoError(t, err)
	assert.True(t, r.Bins[0].OK)
	assert.True(t, r.Bins[1].OK)
	assert.False(t, r.Bins[2].OK)
	assert.InDelta(t, 0.25, r.Bins[2].RelErr, 1e-15)
	assert.ErrorContains(t, r.Err(), "bins [2]")

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	assert.Contains(t, buf.String(), "rel. error")
	assert.Contains(t, buf.String(), "false")

	_, err = Compare([]float64{1}, []float64{1, 2}, 0)
	assert.ErrorIs(t, err, ErrMismatch)
}
