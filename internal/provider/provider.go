package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nnpdf/pinefarm/internal/config"
	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/results"
	"github.com/nnpdf/pinefarm/internal/schema"
	"github.com/nnpdf/pinefarm/internal/theory"
)

// Kind names a provider variant.
type Kind string

const (
	MG5           Kind = "mg5"
	Yadism        Kind = "yadism"
	Positivity    Kind = "positivity"
	Integrability Kind = "integrability"
	NNLOJET       Kind = "nnlojet"
)

// Color is the terminal color used when announcing the provider.
func (k Kind) Color() string {
	switch k {
	case Yadism:
		return "red"
	case Positivity:
		return "yellow"
	case Integrability:
		return "brown"
	case NNLOJET:
		return "magenta"
	default:
		return "blue"
	}
}

// Runcard file names that select a provider.
const (
	ObservableFile    = "observable.yaml"
	PositivityFile    = "positivity.yaml"
	IntegrabilityFile = "integrability.yaml"

	// NNLOJETPrefix marks datasets computed with NNLOJET.
	NNLOJETPrefix = "NNLOJET_"
)

// ErrRuncardNotFound is returned when a dataset has no runcard folder.
var ErrRuncardNotFound = errors.New("runcard not found")

// Decide picks the provider for dataset by inspecting its runcard folder.
func Decide(cfg *config.Config, dataset string) (Kind, error) {
	dir := cfg.RuncardDir(dataset)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrRuncardNotFound, dir)
	}
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}
	switch {
	case exists(ObservableFile):
		return Yadism, nil
	case exists(PositivityFile):
		return Positivity, nil
	case exists(IntegrabilityFile):
		return Integrability, nil
	case strings.HasPrefix(dataset, NNLOJETPrefix):
		return NNLOJET, nil
	default:
		return MG5, nil
	}
}

// ParseDataset splits a dataset argument into the dataset name and, when the
// argument names an existing output folder "<name>-<timestamp>", its
// timestamp. Leading directories are dropped.
func ParseDataset(arg string) (name, timestamp string) {
	name = filepath.Base(filepath.Clean(arg))
	i := strings.LastIndex(name, "-")
	if i < 0 {
		return name, ""
	}
	if _, err := strconv.Atoi(name[i+1:]); err != nil {
		return name, ""
	}
	return name[:i], name[i+1:]
}

// TimestampLayout formats the timestamp part of output folder names.
const TimestampLayout = "20060102150405"

// Env is everything a provider needs to run one dataset.
type Env struct {
	Config  *config.Config
	Schema  *schema.Registry
	Dataset string
	Theory  theory.Card
	PDF     string

	// Timestamp selects an existing output folder to reuse. Empty means a
	// new folder named after Now.
	Timestamp string
	Now       func() time.Time

	// Version is the pinefarm version recorded in every grid.
	Version string
	Logger  *zap.Logger
}

// Provider is the capability set shared by every variant.
type Provider interface {
	Kind() Kind
	Dest() string
	GridPath() string
	Timestamp() string
	Reused() bool

	// Prepare writes the inputs of the external program. A true result asks
	// the caller to stop after preparation.
	Prepare(ctx context.Context) (bool, error)
	Execute(ctx context.Context) error
	ExtractGrid(ctx context.Context) error
	CollectResults(ctx context.Context) (*results.Table, error)
	CollectVersions(ctx context.Context) (map[string]string, error)

	Annotate(ctx context.Context, versions map[string]string) error
	Postprocess(ctx context.Context) error
}

// Integrated is implemented by providers whose results are integrated over
// each bin rather than differential.
type Integrated interface {
	Integrated() bool
}

// New builds the provider of the given kind. The output folder is created,
// or, when env.Timestamp is set, resolved and its compressed grid unpacked.
func New(kind Kind, env Env) (Provider, error) {
	b, err := newBase(kind, env)
	if err != nil {
		return nil, err
	}
	switch kind {
	case MG5:
		return &mg5{base: b}, nil
	case Yadism:
		return newYadism(b)
	case Positivity:
		return newPositivity(b)
	case Integrability:
		return newIntegrability(b)
	case NNLOJET:
		return &nnlojetProvider{base: b}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", kind)
	}
}

// OutputFolder returns <results>/<theoryID>-<dataset>-<timestamp>.
func OutputFolder(cfg *config.Config, theoryID int, dataset, timestamp string) string {
	return filepath.Join(cfg.Paths.Results, fmt.Sprintf("%d-%s-%s", theoryID, dataset, timestamp))
}

// base holds the state and behaviour common to all providers.
type base struct {
	kind      Kind
	env       Env
	dest      string
	timestamp string
	reused    bool
	log       *zap.Logger
}

func newBase(kind Kind, env Env) (*base, error) {
	if env.Now == nil {
		env.Now = time.Now
	}
	log := env.Logger
	if log == nil {
		log = zap.NewNop()
	}
	b := &base{kind: kind, env: env, log: log.With(zap.String("provider", string(kind)))}

	if env.Timestamp == "" {
		b.timestamp = env.Now().Format(TimestampLayout)
		b.dest = OutputFolder(env.Config, env.Theory.ID(), env.Dataset, b.timestamp)
		if err := os.MkdirAll(b.dest, 0o755); err != nil {
			return nil, fmt.Errorf("create output folder: %w", err)
		}
		return b, nil
	}

	b.timestamp = env.Timestamp
	b.reused = true
	b.dest = OutputFolder(env.Config, env.Theory.ID(), env.Dataset, b.timestamp)
	if _, err := os.Stat(b.dest); err != nil {
		return nil, fmt.Errorf("reuse output folder: %w", err)
	}
	if _, err := os.Stat(b.GridPath()); errors.Is(err, os.ErrNotExist) {
		compressed := b.GridPath() + ".lz4"
		if _, err := os.Stat(compressed); err == nil {
			if _, err := grid.Decompress(compressed); err != nil {
				return nil, fmt.Errorf("reuse output folder: %w", err)
			}
		}
	}
	return b, nil
}

func (b *base) Kind() Kind   { return b.kind }
func (b *base) Dest() string { return b.dest }
func (b *base) Reused() bool { return b.reused }

// Timestamp is the suffix of the output folder name.
func (b *base) Timestamp() string { return b.timestamp }

// GridPath is the uncompressed grid in the output folder.
func (b *base) GridPath() string {
	return filepath.Join(b.dest, b.env.Dataset+grid.Extension)
}

// source is the runcard folder of the dataset.
func (b *base) source() string {
	return b.env.Config.RuncardDir(b.env.Dataset)
}

// Prepare is a no-op for providers without a separate preparation step.
func (b *base) Prepare(context.Context) (bool, error) { return false, nil }

// Execute is a no-op for providers that build their grid directly.
func (b *base) Execute(context.Context) error { return nil }

// CollectVersions reports no extra programs.
func (b *base) CollectVersions(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}
