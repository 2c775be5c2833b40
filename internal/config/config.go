// Package config loads the pinefarm configuration.
//
// A Config is built once at process start from, in increasing priority:
// built-in defaults, the YAML config file, a .env file next to it, and
// PINEFARM_* environment variables. Relative paths are resolved against the
// root directory. The result is validated and then passed explicitly to
// every component; there is no package-level state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/nnpdf/pinefarm/internal/grid"
)

// DefaultFile is the config file looked up in the working directory when no
// path is given.
const DefaultFile = "pinefarm.yaml"

// Config is the complete runtime configuration.
type Config struct {
	Paths    Paths    `yaml:"paths"`
	Commands Commands `yaml:"commands"`

	// PDF is the default set used to compare results with the grid.
	PDF string `yaml:"pdf" validate:"required"`

	// GridVersion pins the grid library version; a mismatch is fatal.
	GridVersion string `yaml:"grid_version" validate:"required,semverv"`

	// Workers bounds the number of concurrent runcard writers.
	Workers int `yaml:"workers" validate:"gte=1,lte=64"`
}

// Paths holds every filesystem location used by pinefarm.
type Paths struct {
	Root       string `yaml:"root" validate:"required"`
	Runcards   string `yaml:"runcards" validate:"required"`
	Results    string `yaml:"results" validate:"required"`
	LHAPDFData string `yaml:"lhapdf_data" validate:"required"`
	MG5AMC     string `yaml:"mg5amc"`
	Ledger     string `yaml:"ledger" validate:"required"`
}

// Commands names the external programs pinefarm shells out to.
type Commands struct {
	MG5          string `yaml:"mg5" validate:"required"`
	GridCLI      string `yaml:"grid_cli" validate:"required"`
	Yadism       string `yaml:"yadism" validate:"required"`
	YadismExport string `yaml:"yadism_export" validate:"required"`
	Patch        string `yaml:"patch" validate:"required"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Paths: Paths{
			Root:       ".",
			Runcards:   "runcards",
			Results:    "results",
			LHAPDFData: "lhapdf",
			MG5AMC:     "mg5amc",
			Ledger:     "results/ledger.db",
		},
		Commands: Commands{
			MG5:          "mg5_aMC",
			GridCLI:      "pineappl",
			Yadism:       "yadism",
			YadismExport: "yadism_export",
			Patch:        "patch",
		},
		PDF:         "NNPDF31_nlo_as_0118_luxqed",
		GridVersion: grid.LibraryVersion,
		Workers:     4,
	}
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("semverv", func(fl validator.FieldLevel) bool {
		return semver.IsValid(fl.Field().String())
	})
}

// Load builds the configuration from the file at path. An empty path means
// DefaultFile in the working directory, which may be absent.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if cfg.Paths.Root == "" || cfg.Paths.Root == "." {
			cfg.Paths.Root = filepath.Dir(path)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults only
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	env, err := readDotEnv(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil {
		return nil, err
	}
	applyEnv(cfg, chainLookup(lookup, env))

	cfg.resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// resolve makes every relative path absolute with respect to Paths.Root.
func (c *Config) resolve() {
	root, err := filepath.Abs(c.Paths.Root)
	if err == nil {
		c.Paths.Root = root
	}
	for _, p := range []*string{
		&c.Paths.Runcards, &c.Paths.Results, &c.Paths.LHAPDFData,
		&c.Paths.MG5AMC, &c.Paths.Ledger,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Paths.Root, *p)
		}
	}
}

// RuncardDir returns the runcard folder of a dataset.
func (c *Config) RuncardDir(dataset string) string {
	return filepath.Join(c.Paths.Runcards, dataset)
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
