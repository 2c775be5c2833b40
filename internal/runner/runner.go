package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/floats"

	"github.com/nnpdf/pinefarm/internal/config"
	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/lhapdf"
	"github.com/nnpdf/pinefarm/internal/provider"
	"github.com/nnpdf/pinefarm/internal/results"
	"github.com/nnpdf/pinefarm/internal/schema"
	"github.com/nnpdf/pinefarm/internal/store"
	"github.com/nnpdf/pinefarm/internal/theory"
)

// ErrorsLog collects the warnings and errors of a run in its output folder.
const ErrorsLog = "errors.log"

// Request names the dataset to run and the theory to run it with.
type Request struct {
	// Dataset is the runcard name, optionally followed by -<timestamp> to
	// reuse the output folder of an earlier run.
	Dataset string
	Theory  theory.Card

	// PDF is the set used to compare results; empty means the configured one.
	PDF string

	// Dry stops after preparation.
	Dry bool
}

// Result describes a finished run.
type Result struct {
	RunID string
	Kind  provider.Kind
	Dest  string

	// Grid is the compressed grid; empty when the run stopped early.
	Grid       string
	Prepared   bool
	Reused     bool
	Comparison []results.Comparison
	Versions   map[string]string
}

// Runner runs datasets against one configuration.
type Runner struct {
	cfg     *config.Config
	schema  *schema.Registry
	ledger  *store.Store
	ids     store.IDGenerator
	now     func() time.Time
	version string
	log     *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces time.Now for folder names and ledger times.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithIDs sets the generator of ledger run IDs.
func WithIDs(ids store.IDGenerator) Option {
	return func(r *Runner) { r.ids = ids }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithVersion sets the pinefarm version recorded in grids and the ledger.
func WithVersion(v string) Option {
	return func(r *Runner) { r.version = v }
}

// New creates a Runner. ledger may be nil, in which case nothing is
// recorded.
func New(cfg *config.Config, reg *schema.Registry, ledger *store.Store, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		schema:  reg,
		ledger:  ledger,
		ids:     store.UUIDGenerator{},
		now:     time.Now,
		version: "devel",
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the whole lifecycle for req.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	name, timestamp := provider.ParseDataset(req.Dataset)
	kind, err := provider.Decide(r.cfg, name)
	if err != nil {
		return nil, err
	}
	pdf := req.PDF
	if pdf == "" {
		pdf = r.cfg.PDF
	}
	log := r.log.With(zap.String("dataset", name), zap.String("provider", string(kind)))

	p, err := provider.New(kind, provider.Env{
		Config:    r.cfg,
		Schema:    r.schema,
		Dataset:   name,
		Theory:    req.Theory,
		PDF:       pdf,
		Timestamp: timestamp,
		Now:       r.now,
		Version:   r.version,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	log.Info("computing", zap.Int("theory", req.Theory.ID()), zap.String("dest", p.Dest()))

	run := &store.Run{
		Dataset:   name,
		TheoryID:  req.Theory.ID(),
		Provider:  string(kind),
		PDF:       pdf,
		Dest:      p.Dest(),
		Timestamp: p.Timestamp(),
	}
	if r.ledger != nil {
		if err := r.ledger.CreateRun(ctx, r.ids, run, r.now()); err != nil {
			return nil, err
		}
	}

	res := &Result{RunID: run.ID, Kind: kind, Dest: p.Dest(), Reused: p.Reused()}
	runErr := r.lifecycle(ctx, p, pdf, req.Dry, res, log)
	if err := r.record(ctx, run.ID, res, runErr); err != nil {
		log.Error("could not update the ledger", zap.String("run", run.ID), zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return res, runErr
	}
	return res, nil
}

func (r *Runner) lifecycle(ctx context.Context, p provider.Provider, pdf string, dry bool, res *Result, log *zap.Logger) error {
	stop, err := p.Prepare(ctx)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	if stop || dry {
		log.Info("stopping after preparation", zap.String("dest", p.Dest()))
		res.Prepared = true
		return nil
	}

	log, closeLog, err := teeErrors(p.Dest(), log)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := r.steps(ctx, p, pdf, res, log); err != nil {
		log.Error("run failed", zap.Error(err))
		return err
	}
	return nil
}

func (r *Runner) steps(ctx context.Context, p provider.Provider, pdf string, res *Result, log *zap.Logger) error {
	if p.Reused() {
		log.Info("reusing output folder, skipping execution")
	} else if err := p.Execute(ctx); err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	if err := p.ExtractGrid(ctx); err != nil {
		return fmt.Errorf("extract grid: %w", err)
	}

	table, err := p.CollectResults(ctx)
	if err != nil {
		return fmt.Errorf("collect results: %w", err)
	}
	cmp, err := r.compare(p, pdf, table)
	if err != nil {
		return fmt.Errorf("compare results: %w", err)
	}
	if err := results.WriteLog(filepath.Join(p.Dest(), results.LogFile), cmp); err != nil {
		return err
	}
	res.Comparison = cmp
	if ce := log.Check(zap.DebugLevel, "results"); ce != nil {
		var b strings.Builder
		if err := results.Render(&b, cmp); err == nil {
			ce.Write(zap.String("table", b.String()))
		}
	}

	versions, err := p.CollectVersions(ctx)
	if err != nil {
		return fmt.Errorf("collect versions: %w", err)
	}
	versions["pinefarm"] = r.version
	if err := p.Annotate(ctx, versions); err != nil {
		return fmt.Errorf("annotate: %w", err)
	}
	if err := p.Postprocess(ctx); err != nil {
		return fmt.Errorf("postprocess: %w", err)
	}

	res.Versions = versions
	res.Grid = p.GridPath() + ".lz4"
	log.Info("grid ready", zap.String("grid", res.Grid))
	return nil
}

// compare convolves the extracted grid with member 0 of pdf and lines the
// predictions up with the provider's results. Integrated providers are
// compared against predictions multiplied back by the bin normalizations.
func (r *Runner) compare(p provider.Provider, pdf string, table *results.Table) ([]results.Comparison, error) {
	g, err := grid.ReadFile(p.GridPath())
	if err != nil {
		return nil, err
	}
	set, err := lhapdf.Load(r.cfg.Paths.LHAPDFData, pdf, 0)
	if err != nil {
		return nil, err
	}
	preds, err := g.Convolve(grid.LuminosityFromPDF(set), grid.ConvolveOptions{})
	if err != nil {
		return nil, err
	}
	if ip, ok := p.(provider.Integrated); ok && ip.Integrated() {
		floats.Mul(preds, g.BinNormalizations())
	}
	var left, right []float64
	if g.BinDimensions() > 0 {
		left, right = g.BinLeft(0), g.BinRight(0)
	}
	return results.Compare(preds, table, left, right)
}

// record stores the outcome in the ledger. It runs even when ctx was
// cancelled so interrupted runs end up marked as failed.
func (r *Runner) record(ctx context.Context, id string, res *Result, runErr error) error {
	if r.ledger == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	status, message := store.StatusDone, ""
	switch {
	case runErr != nil:
		status, message = store.StatusFailed, runErr.Error()
	case res.Prepared:
		status = store.StatusPrepared
	}
	if err := r.ledger.UpdateStatus(ctx, id, status, res.Grid, message, r.now()); err != nil {
		return err
	}
	if len(res.Versions) == 0 {
		return nil
	}
	return r.ledger.SetVersions(ctx, id, res.Versions)
}

// teeErrors returns log extended with a core writing warnings and errors to
// dest/errors.log, and a function closing that file.
func teeErrors(dest string, log *zap.Logger) (*zap.Logger, func(), error) {
	f, err := os.OpenFile(filepath.Join(dest, ErrorsLog), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", ErrorsLog, err)
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(f), zapcore.WarnLevel)
	teed := log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, core)
	}))
	return teed, func() {
		_ = teed.Sync()
		_ = f.Close()
	}, nil
}
