package testutil

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nnpdf/pinefarm/internal/grid"
)

// GridSpec describes a synthetic grid. Zero fields take the defaults of
// RandomGrid.
type GridSpec struct {
	Edges    []float64
	Orders   []grid.Order
	Channels []grid.Channel
	Nodes    int
	Seed     uint64
}

// UnitLuminosity folds every subgrid with densities equal to one and a
// coupling equal to one, so a prediction is the weight sum over the bin
// normalization.
var UnitLuminosity = grid.Luminosity{
	XFX1:   func(_ int, x, _ float64) float64 { return x },
	AlphaS: func(float64) float64 { return 1 },
}

// RandomGrid builds a grid whose every (order, bin, channel) subgrid holds
// uniform weights in [2, 6) over log-spaced nodes.
//
// The defaults are three bins at [0.5, 1, 1.5, 2], orders alphas^0..2 and
// six channels (1, i, 1) for i in -3..2.
func RandomGrid(t testing.TB, spec GridSpec) *grid.Grid {
	t.Helper()
	if spec.Edges == nil {
		spec.Edges = []float64{0.5, 1.0, 1.5, 2.0}
	}
	if spec.Orders == nil {
		for i := uint32(0); i < 3; i++ {
			spec.Orders = append(spec.Orders, grid.Order{Alphas: i})
		}
	}
	if spec.Channels == nil {
		for i := -3; i < 3; i++ {
			spec.Channels = append(spec.Channels, grid.Channel{{PID1: 1, PID2: i, Factor: 1}})
		}
	}
	if spec.Nodes == 0 {
		spec.Nodes = 4
	}

	g, err := grid.New(spec.Channels, spec.Orders, spec.Edges, grid.DefaultParams())
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(spec.Seed, spec.Seed^0x9e3779b97f4a7c15))
	x1 := logspace(-3, -0.1, spec.Nodes)
	x2 := logspace(-2.5, -0.1, spec.Nodes)
	q2 := logspace(1, 4, spec.Nodes)
	mu2 := make([]grid.Mu2, len(q2))
	for i, q := range q2 {
		mu2[i] = grid.Mu2{Ren: q, Fac: q}
	}

	values := make([]float64, len(mu2)*len(x1)*len(x2))
	for b := 0; b < g.Bins(); b++ {
		for o := range spec.Orders {
			for c := range spec.Channels {
				for i := range values {
					values[i] = 2 + 4*rng.Float64()
				}
				sg, err := grid.NewSubgridFromArray(mu2, x1, x2, values)
				require.NoError(t, err)
				require.NoError(t, g.SetSubgrid(o, b, c, sg))
			}
		}
	}
	return g
}

// WriteGrid writes g to path, failing the test on error.
func WriteGrid(t testing.TB, g *grid.Grid, path string) {
	t.Helper()
	require.NoError(t, g.WriteFile(path))
}

func logspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		e := lo
		if n > 1 {
			e = lo + (hi-lo)*float64(i)/float64(n-1)
		}
		out[i] = math.Pow(10, e)
	}
	return out
}
