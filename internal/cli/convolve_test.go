package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/provenance"
	"github.com/nnpdf/pinefarm/internal/testutil"
)

// gluonGrid has one node at x1 = 0.5, x2 = 0.25 with weight 1 in every bin.
func gluonGrid(t *testing.T) (string, *grid.Grid) {
	t.Helper()
	g, err := grid.New([]grid.Channel{{{PID1: 21, PID2: 21, Factor: 1}}}, []grid.Order{{}},
		[]float64{0, 1, 3}, grid.DefaultParams())
	require.NoError(t, err)
	for b := 0; b < g.Bins(); b++ {
		sg, err := grid.NewSubgridFromArray([]grid.Mu2{{Ren: 100, Fac: 100}}, []float64{0.5}, []float64{0.25}, []float64{1})
		require.NoError(t, err)
		require.NoError(t, g.SetSubgrid(0, b, 0, sg))
	}
	g.SetKeyValue("x1_label", "yZ")
	path := filepath.Join(t.TempDir(), "gg.pineappl.lz4")
	testutil.WriteGrid(t, g, path)
	return path, g
}

func TestConvolve_JSON(t *testing.T) {
	root := newTestRoot(t, "json")
	path, g := gluonGrid(t)

	out, err := execute(t, NewConvolveCommand(root), path)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   ConvolveResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	res := resp.Data
	assert.Equal(t, testutil.FlatPDF, res.PDF)
	assert.Equal(t, testutil.FlatPDFIndex, res.LHAPDFID)

	written, err := grid.ReadFile(path)
	require.NoError(t, err)
	digest, err := provenance.MetadataDigest(written.Metadata())
	require.NoError(t, err)
	assert.Equal(t, digest, res.MetadataDigest)
	assert.Equal(t, g.Metadata()["x1_label"], written.Metadata()["x1_label"])

	// x f = 5 for the gluon, so each bin holds 5/0.5 * 5/0.25 over its width.
	require.Len(t, res.Bins, 2)
	assert.InDelta(t, 200.0, res.Bins[0].Prediction, 1e-9)
	assert.InDelta(t, 100.0, res.Bins[1].Prediction, 1e-9)
	assert.Equal(t, 1.0, res.Bins[1].Left)
	assert.Equal(t, 3.0, res.Bins[1].Right)
}

func TestConvolve_Text(t *testing.T) {
	root := newTestRoot(t, "text")
	path, _ := gluonGrid(t)

	out, err := execute(t, NewConvolveCommand(root), path, "--member", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "(LHAPDF ID 31000)")
	assert.Contains(t, out, "prediction")
	assert.Contains(t, out, "metadata digest: ")
}

func TestConvolve_Errors(t *testing.T) {
	root := newTestRoot(t, "text")
	path, _ := gluonGrid(t)

	_, err := execute(t, NewConvolveCommand(root), filepath.Join(t.TempDir(), "missing.pineappl.lz4"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, NewConvolveCommand(root), path, "--pdf", "NNPDF40_nnlo_as_01180")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
