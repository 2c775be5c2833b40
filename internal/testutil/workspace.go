package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nnpdf/pinefarm/internal/config"
)

// NewWorkspace returns a default configuration rooted in a temporary
// directory, with empty runcard and results folders and the flat PDF set
// installed.
func NewWorkspace(t testing.TB) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Root = root
	cfg.Paths.Runcards = filepath.Join(root, "runcards")
	cfg.Paths.Results = filepath.Join(root, "results")
	cfg.Paths.LHAPDFData = filepath.Join(root, "lhapdf")
	cfg.Paths.MG5AMC = filepath.Join(root, "mg5amc")
	cfg.Paths.Ledger = filepath.Join(root, "results", "ledger.db")
	cfg.PDF = FlatPDF
	for _, dir := range []string{cfg.Paths.Runcards, cfg.Paths.Results, cfg.Paths.LHAPDFData} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	WriteFlatPDF(t, cfg.Paths.LHAPDFData)
	return cfg
}

// WriteRuncard writes files into the runcard folder of dataset.
func WriteRuncard(t testing.TB, cfg *config.Config, dataset string, files map[string]string) string {
	t.Helper()
	dir := cfg.RuncardDir(dataset)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}
