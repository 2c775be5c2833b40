package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnpdf/pinefarm/internal/provider"
	"github.com/nnpdf/pinefarm/internal/testutil"
)

const theoryCard = "ID: 400\nPTO: 0\nQ0: 2.0\n"

type runResponse struct {
	Status string     `json:"status"`
	Data   RunSummary `json:"data"`
	Error  *CLIError  `json:"error"`
}

func TestRun_PositivityText(t *testing.T) {
	root := newTestRoot(t, "text")
	testutil.WriteRuncard(t, root.Config, "POS_G", map[string]string{provider.PositivityFile: positivityCard})
	th := writeFile(t, "400.yaml", theoryCard)

	out, err := execute(t, NewRunCommand(root), "POS_G", th)
	require.NoError(t, err)

	assert.Contains(t, out, "[positivity] POS_G -> ")
	assert.Contains(t, out, "per mille")
	assert.Contains(t, out, "grid: ")
	assert.Contains(t, out, "POS_G.pineappl.lz4")
}

func TestRun_FixedClockAndIDs(t *testing.T) {
	root := newTestRoot(t, "json")
	testutil.WriteRuncard(t, root.Config, "POS_G", map[string]string{provider.PositivityFile: positivityCard})
	th := writeFile(t, "400.yaml", theoryCard)

	opts := &RunOptions{
		RootOptions: root,
		IDs:         testutil.NewSequentialIDs("run"),
		Clock:       testutil.NewFixedClock(time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)).Now,
	}
	cmd := NewRunCommand(root)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	require.NoError(t, runDataset(opts, "POS_G", th, cmd))

	var resp runResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	s := resp.Data
	assert.Equal(t, "run-0001", s.RunID)
	assert.Equal(t, "positivity", s.Provider)
	assert.Equal(t, provider.Positivity.Color(), s.Color)
	assert.Equal(t, filepath.Join(root.Config.Paths.Results, "400-POS_G-20240517093000"), s.Dest)
	assert.Equal(t, filepath.Join(s.Dest, "POS_G.pineappl.lz4"), s.Grid)
	assert.False(t, s.Prepared)
	assert.Len(t, s.Results, 3)
	assert.Contains(t, s.Versions, "pinefarm")
}

func TestRun_Dry(t *testing.T) {
	root := newTestRoot(t, "text")
	testutil.WriteRuncard(t, root.Config, "POS_G", map[string]string{provider.PositivityFile: positivityCard})
	th := writeFile(t, "400.yaml", theoryCard)

	out, err := execute(t, NewRunCommand(root), "POS_G", th, "--dry")
	require.NoError(t, err)
	assert.Contains(t, out, "prepared, not executed")
	assert.NotContains(t, out, "grid: ")
}

func TestRun_UnknownDataset(t *testing.T) {
	root := newTestRoot(t, "json")
	th := writeFile(t, "400.yaml", theoryCard)

	out, err := execute(t, NewRunCommand(root), "NOPE", th)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestRun_InvalidTheoryCard(t *testing.T) {
	root := newTestRoot(t, "text")
	th := writeFile(t, "400.yaml", "PTO: 7\n")

	_, err := execute(t, NewRunCommand(root), "POS_G", th)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeInvalidRuncard, ErrorCode(err))
}

func TestRun_RequiresTwoArgs(t *testing.T) {
	root := newTestRoot(t, "text")
	_, err := execute(t, NewRunCommand(root), "POS_G")
	assert.Error(t, err)
}
