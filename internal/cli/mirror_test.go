package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/testutil"
	"github.com/nnpdf/pinefarm/internal/transform"
)

func writeSourceGrid(t *testing.T) string {
	t.Helper()
	g := testutil.RandomGrid(t, testutil.GridSpec{Edges: []float64{0, 0.5, 1.0, 2.0}, Seed: 7})
	path := filepath.Join(t.TempDir(), "ATLAS_Z_Y.pineappl.lz4")
	testutil.WriteGrid(t, g, path)
	return path
}

func TestMirror_Text(t *testing.T) {
	root := newTestRoot(t, "text")
	src := writeSourceGrid(t)
	stem := filepath.Join(t.TempDir(), "ATLAS_Z_Y_FULL")

	out, err := execute(t, NewMirrorCommand(root), "-g", src, "-o", stem)
	require.NoError(t, err)
	assert.Equal(t, "wrote "+stem+".pineappl.lz4 (6 bins)\n", out)

	g, err := grid.ReadFile(transform.OutputPath(stem))
	require.NoError(t, err)
	edges, err := g.Edges()
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, -1, -0.5, 0, 0.5, 1, 2}, edges)
}

func TestMirror_RescaleInProcessWithCheck(t *testing.T) {
	root := newTestRoot(t, "json")
	src := writeSourceGrid(t)
	stem := filepath.Join(t.TempDir(), "ATLAS_Z_Y_FULL")

	out, err := execute(t, NewMirrorCommand(root),
		"-g", src, "-o", stem, "--rescale", "0.001", "--in-process", "--check")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   MirrorSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 6, resp.Data.Bins)
	require.NotNil(t, resp.Data.Check)
	assert.True(t, resp.Data.Check.OK())
	assert.Len(t, resp.Data.Check.Bins, 6)
	assert.NoFileExists(t, transform.IntermediatePath(stem))
}

func TestMirror_CheckWithPDF(t *testing.T) {
	root := newTestRoot(t, "text")
	src := writeSourceGrid(t)
	stem := filepath.Join(t.TempDir(), "out")

	out, err := execute(t, NewMirrorCommand(root), "-g", src, "-o", stem, "--check", "--pdf", testutil.FlatPDF)
	require.NoError(t, err)
	assert.Contains(t, out, "rel. error")
}

func TestMirror_TwoDimensionalGrid(t *testing.T) {
	root := newTestRoot(t, "json")
	g := testutil.RandomGrid(t, testutil.GridSpec{Edges: []float64{0, 1}})
	require.NoError(t, g.Remap([]float64{1}, []grid.Limit{{Left: 0, Right: 1}, {Left: 5, Right: 6}}))
	src := filepath.Join(t.TempDir(), "two.pineappl.lz4")
	testutil.WriteGrid(t, g, src)
	stem := filepath.Join(t.TempDir(), "out")

	out, err := execute(t, NewMirrorCommand(root), "-g", src, "-o", stem)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeDimensionality, resp.Error.Code)
	assert.NoFileExists(t, transform.OutputPath(stem))
}

func TestMirror_RequiredFlags(t *testing.T) {
	root := newTestRoot(t, "text")
	_, err := execute(t, NewMirrorCommand(root), "-g", "in.pineappl.lz4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output")
}
