package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zRapidityDescriptor = `dataset: CMS_Z0_13TEV_Y
process: Z0
process_type: DY_Z_Y
cm_energy: 13000
experiment: CMS
hepdata: 10.17182/hepdata.1
arxiv: https://arxiv.org/abs/1234.5678
tables: [5]
kinematics:
  y:
    - {min: 0.0, mid: 0.25, max: 0.5}
    - {min: 0.5, mid: 0.75, max: 1.0}
  M2:
    - {min: 8315.3, mid: 8315.3, max: 8315.3}
    - {min: 8315.3, mid: 8315.3, max: 8315.3}
`

func TestAutogen(t *testing.T) {
	root := newTestRoot(t, "text")
	desc := writeFile(t, "CMS_Z0_13TEV_Y.yaml", zRapidityDescriptor)

	out, err := execute(t, NewAutogenCommand(root), desc)
	require.NoError(t, err)

	want := filepath.Join(root.Config.Paths.Runcards, "NNLOJET_CMS_Z0_13TEV_Y", "CMS_Z0_13TEV_Y.yaml")
	assert.Equal(t, want+"\n", out)
	assert.FileExists(t, filepath.Join(filepath.Dir(want), "metadata.txt"))

	t.Run("pinecard validates", func(t *testing.T) {
		out, err := execute(t, NewValidateCommand(root), "--kind", "pinecard", strings.TrimSpace(out))
		require.NoError(t, err)
		assert.Contains(t, out, "(pinecard)")
	})
}

func TestAutogen_JSON(t *testing.T) {
	root := newTestRoot(t, "json")
	desc := writeFile(t, "CMS_Z0_13TEV_Y.yaml", zRapidityDescriptor)

	out, err := execute(t, NewAutogenCommand(root), desc, "--scale", "mw")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Dataset   string   `json:"dataset"`
			Pinecards []string `json:"pinecards"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "CMS_Z0_13TEV_Y", resp.Data.Dataset)
	assert.Len(t, resp.Data.Pinecards, 1)
}

func TestAutogen_UnsupportedTarget(t *testing.T) {
	root := newTestRoot(t, "json")
	desc := writeFile(t, "CMS_Z0_13TEV_Y.yaml", zRapidityDescriptor)

	out, err := execute(t, NewAutogenCommand(root), desc, "--target", "mg5")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnsupported, resp.Error.Code)
}

func TestAutogen_InvalidDescriptor(t *testing.T) {
	root := newTestRoot(t, "text")
	desc := writeFile(t, "bad.yaml", "dataset: X\nprocess: Z0\nprocess_type: DY_Z_Y\ncm_energy: 13000\nexperiment: D0\nkinematics: {}\n")

	_, err := execute(t, NewAutogenCommand(root), desc)
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidRuncard, ErrorCode(err))
}
