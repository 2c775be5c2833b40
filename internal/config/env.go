package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables overriding config file entries.
const (
	EnvRoot        = "PINEFARM_ROOT"
	EnvRuncards    = "PINEFARM_RUNCARDS"
	EnvResults     = "PINEFARM_RESULTS"
	EnvLHAPDFData  = "PINEFARM_LHAPDF_DATA"
	EnvMG5AMC      = "PINEFARM_MG5AMC"
	EnvLedger      = "PINEFARM_LEDGER"
	EnvMG5         = "PINEFARM_MG5"
	EnvGridCLI     = "PINEFARM_GRID_CLI"
	EnvYadism      = "PINEFARM_YADISM"
	EnvPDF         = "PINEFARM_PDF"
	EnvGridVersion = "PINEFARM_GRID_VERSION"
	EnvWorkers     = "PINEFARM_WORKERS"
)

// readDotEnv parses a .env file without touching the process environment.
// A missing file yields an empty map.
func readDotEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return env, nil
}

// chainLookup prefers the process environment over .env entries.
func chainLookup(primary func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	strs := map[string]*string{
		EnvRoot:        &cfg.Paths.Root,
		EnvRuncards:    &cfg.Paths.Runcards,
		EnvResults:     &cfg.Paths.Results,
		EnvLHAPDFData:  &cfg.Paths.LHAPDFData,
		EnvMG5AMC:      &cfg.Paths.MG5AMC,
		EnvLedger:      &cfg.Paths.Ledger,
		EnvMG5:         &cfg.Commands.MG5,
		EnvGridCLI:     &cfg.Commands.GridCLI,
		EnvYadism:      &cfg.Commands.Yadism,
		EnvPDF:         &cfg.PDF,
		EnvGridVersion: &cfg.GridVersion,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup(EnvWorkers); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
}
