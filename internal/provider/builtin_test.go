package provider

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/lhapdf"
	"github.com/nnpdf/pinefarm/internal/testutil"
)

const positivityCard21 = `xgrid: [0.001, 0.01, 0.1]
lepton_pid: 11
pid: 21
q2: 5.0
hadron_pid: 2212
`

func flatPredictions(t *testing.T, path, dataDir string) []float64 {
	t.Helper()
	g, err := grid.ReadFile(path)
	require.NoError(t, err)
	pdf, err := lhapdf.Load(dataDir, testutil.FlatPDF, 0)
	require.NoError(t, err)
	preds, err := g.Convolve(grid.LuminosityFromPDF(pdf), grid.ConvolveOptions{})
	require.NoError(t, err)
	return preds
}

func TestPositivity(t *testing.T) {
	cfg := testutil.NewWorkspace(t)
	testutil.WriteRuncard(t, cfg, "POS_G", map[string]string{PositivityFile: positivityCard21})
	ctx := context.Background()

	p, err := New(Positivity, testEnv(t, cfg, "POS_G"))
	require.NoError(t, err)

	stop, err := p.Prepare(ctx)
	require.NoError(t, err)
	assert.False(t, stop)
	require.NoError(t, p.Execute(ctx))
	require.NoError(t, p.ExtractGrid(ctx))

	g, err := grid.ReadFile(p.GridPath())
	require.NoError(t, err)
	assert.Equal(t, 3, g.Bins())
	assert.Equal(t, 2, g.BinDimensions())
	assert.Equal(t, []float64{5, 5, 5}, g.BinLeft(0))
	assert.Equal(t, []float64{0.001, 0.01, 0.1}, g.BinLeft(1))
	assert.Equal(t, []float64{1, 1, 1}, g.BinNormalizations())
	assert.Equal(t, []grid.Channel{{{PID1: 21, PID2: 11, Factor: 1}}}, g.Channels())

	md := g.Metadata()
	assert.Equal(t, "2212", md["convolution_particle_1"])
	assert.Equal(t, "11", md["convolution_particle_2"])
	assert.Equal(t, "UnpolPDF", md["convolution_type_1"])
	assert.Equal(t, "None", md["convolution_type_2"])
	assert.Equal(t, "pdg_mc_ids", md["lumi_id_types"])
	var runcard map[string]any
	require.NoError(t, json.Unmarshal([]byte(md["runcard"]), &runcard))
	assert.EqualValues(t, 21, runcard["pid"])

	// Each bin picks the gluon at its own x.
	assert.InDeltaSlice(t, []float64{5, 5, 5}, flatPredictions(t, p.GridPath(), cfg.Paths.LHAPDFData), 1e-12)

	table, err := p.CollectResults(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())
	for _, row := range table.Rows {
		assert.InDelta(t, 5.0, row.Result, 1e-12)
		assert.Equal(t, 1e-15, row.Error)
		assert.InDelta(t, 5.0, row.SVMin, 1e-12)
		assert.InDelta(t, 5.0, row.SVMax, 1e-12)
	}

	versions, err := p.CollectVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestPositivity_InvalidRuncard(t *testing.T) {
	cfg := testutil.NewWorkspace(t)
	testutil.WriteRuncard(t, cfg, "POS_BAD", map[string]string{
		PositivityFile: "xgrid: [2.0]\nlepton_pid: 11\npid: 21\nq2: 5.0\nhadron_pid: 2212\n",
	})
	_, err := New(Positivity, testEnv(t, cfg, "POS_BAD"))
	assert.Error(t, err)
}

func TestEvolutionToFlavour(t *testing.T) {
	got, err := EvolutionToFlavour(21)
	require.NoError(t, err)
	assert.Equal(t, []WeightedFlavour{{PID: 21, Weight: 1}}, got)

	got, err = EvolutionToFlavour(103)
	require.NoError(t, err)
	assert.Equal(t, []WeightedFlavour{
		{PID: -2, Weight: 1}, {PID: -1, Weight: -1}, {PID: 1, Weight: -1}, {PID: 2, Weight: 1},
	}, got)

	got, err = EvolutionToFlavour(200)
	require.NoError(t, err)
	assert.Len(t, got, 12)

	_, err = EvolutionToFlavour(999)
	assert.Error(t, err)
}

func TestIntegrability(t *testing.T) {
	cfg := testutil.NewWorkspace(t)
	testutil.WriteRuncard(t, cfg, "INTEG_S", map[string]string{
		IntegrabilityFile: "hadron_pid: 2212\nflavour: 100\nxgrid: [1.0e-5, 1.0e-4, 1.0e-3]\n",
	})
	ctx := context.Background()

	p, err := New(Integrability, testEnv(t, cfg, "INTEG_S"))
	require.NoError(t, err)
	require.NoError(t, p.ExtractGrid(ctx))

	g, err := grid.ReadFile(p.GridPath())
	require.NoError(t, err)
	assert.Equal(t, 1, g.Bins())
	assert.Equal(t, []grid.Limit{{Left: 4, Right: 4}, {Left: 1e-5, Right: 1e-3}}, g.BinLimits())
	assert.Equal(t, "0", g.Metadata()["convolution_particle_2"])
	assert.Len(t, g.Channels()[0], 12)

	// The singlet sums the four flavours of the flat set at three x points.
	want := 3 * (1.0 + 2 + 3 + 4)
	assert.InDeltaSlice(t, []float64{want}, flatPredictions(t, p.GridPath(), cfg.Paths.LHAPDFData), 1e-9)

	table, err := p.CollectResults(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.InDelta(t, want, table.Rows[0].Result, 1e-9)
	assert.Zero(t, table.Rows[0].SVMax)

	versions, err := p.CollectVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"integrability_version": "1.0"}, versions)
}

func TestIntegrability_NeedsQ0(t *testing.T) {
	cfg := testutil.NewWorkspace(t)
	testutil.WriteRuncard(t, cfg, "INTEG_G", map[string]string{
		IntegrabilityFile: "hadron_pid: 2212\nflavour: 21\nxgrid: [0.1]\n",
	})
	env := testEnv(t, cfg, "INTEG_G")
	delete(env.Theory, "Q0")
	_, err := New(Integrability, env)
	assert.ErrorContains(t, err, "Q0")
}
