package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nnpdf/pinefarm/internal/schema"
	"github.com/nnpdf/pinefarm/internal/testutil"
)

const positivityCard = `xgrid: [0.001, 0.01, 0.1]
lepton_pid: 11
pid: 21
q2: 5.0
hadron_pid: 2212
`

// newTestRoot returns root options over a fresh workspace.
func newTestRoot(t *testing.T, format string) *RootOptions {
	t.Helper()
	return &RootOptions{
		Format: format,
		Config: testutil.NewWorkspace(t),
		Schema: schema.MustNew(),
		Logger: zaptest.NewLogger(t),
	}
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pinefarm", cmd.Use)
	assert.Contains(t, cmd.Long, "ledger")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "mirror", "autogen", "convolve", "validate", "configs", "runs"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestMirrorCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	mirrorCmd, _, err := cmd.Find([]string{"mirror"})
	require.NoError(t, err)

	gridFlag := mirrorCmd.Flags().Lookup("grid")
	require.NotNil(t, gridFlag)
	assert.Equal(t, "g", gridFlag.Shorthand)

	outputFlag := mirrorCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	rescaleFlag := mirrorCmd.Flags().Lookup("rescale")
	require.NotNil(t, rescaleFlag)
	assert.Equal(t, "0", rescaleFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	assert.NotNil(t, runCmd.Flags().Lookup("pdf"))
	dryFlag := runCmd.Flags().Lookup("dry")
	require.NotNil(t, dryFlag)
	assert.Equal(t, "false", dryFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	_, err := execute(t, cmd, "--format", "xml", "configs")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootOptionsInit_VersionMismatch(t *testing.T) {
	opts := newTestRoot(t, "text")
	opts.Config.GridVersion = "v0.8.0"

	err := opts.init()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeVersion, ErrorCode(err))
}
