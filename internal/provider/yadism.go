package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/lhapdf"
	"github.com/nnpdf/pinefarm/internal/results"
	"github.com/nnpdf/pinefarm/internal/schema"
	"github.com/nnpdf/pinefarm/internal/theory"
)

// NinePoints are the (xiR, xiF) scale variations used for DIS results.
var NinePoints = [][2]float64{
	{0.5, 0.5}, {1, 0.5}, {2, 0.5},
	{0.5, 1}, {1, 1}, {2, 1},
	{0.5, 2}, {1, 2}, {2, 2},
}

// yadism runs the DIS coefficient function program and exports its output
// to a grid.
type yadism struct {
	*base
	theory     theory.Card
	observable []byte
	firstObs   string
}

func newYadism(b *base) (*yadism, error) {
	path := filepath.Join(b.source(), ObservableFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var obs struct {
		NCPositivityCharge any `json:"NCPositivityCharge"`
	}
	if err := b.env.Schema.Decode(schema.Observable, path, data, &obs); err != nil {
		return nil, err
	}
	first, err := firstObservable(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	th := b.env.Theory.Clone()
	for _, key := range []string{"FactScaleVar", "RenScaleVar"} {
		if !th.Has(key) {
			th[key] = true
		}
	}
	// Target mass corrections are off for positivity observables.
	if obs.NCPositivityCharge != nil {
		th["TMC"] = 0
	}
	return &yadism{base: b, theory: th, observable: data, firstObs: first}, nil
}

// firstObservable returns the first key of the observables mapping in
// document order.
func firstObservable(data []byte) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return "", errors.New("observable card is not a mapping")
	}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "observables" {
			continue
		}
		obs := root.Content[i+1]
		if obs.Kind != yaml.MappingNode || len(obs.Content) == 0 {
			break
		}
		return obs.Content[0].Value, nil
	}
	return "", errors.New("no observables")
}

func (y *yadism) outputTar() string {
	return filepath.Join(y.dest, y.env.Dataset+".tar")
}

// Prepare writes the effective theory and observable cards to the output
// folder.
func (y *yadism) Prepare(context.Context) (bool, error) {
	th, err := yaml.Marshal(map[string]any(y.theory))
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(filepath.Join(y.dest, "theory.yaml"), th, 0o644); err != nil {
		return false, err
	}
	return false, os.WriteFile(filepath.Join(y.dest, ObservableFile), y.observable, 0o644)
}

func (y *yadism) Execute(ctx context.Context) error {
	y.log.Info("running yadism", zap.String("dest", y.dest))
	cmd := exec.CommandContext(ctx, y.env.Config.Commands.Yadism, "theory.yaml", ObservableFile, filepath.Base(y.outputTar()))
	cmd.Dir = y.dest
	return runLogged(cmd, filepath.Join(y.dest, "run.log"), y.log)
}

func (y *yadism) ExtractGrid(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, y.env.Config.Commands.YadismExport, y.outputTar(), y.GridPath(), y.firstObs)
	cmd.Dir = y.dest
	return runLogged(cmd, filepath.Join(y.dest, "export.log"), y.log)
}

// CollectResults convolves the exported grid with the PDF at central scales
// and takes the nine-point envelope as scale variation.
func (y *yadism) CollectResults(context.Context) (*results.Table, error) {
	g, err := grid.ReadFile(y.GridPath())
	if err != nil {
		return nil, err
	}
	pdf, err := lhapdf.Load(y.env.Config.Paths.LHAPDFData, y.env.PDF, 0)
	if err != nil {
		return nil, err
	}
	lumi := grid.LuminosityFromPDF(pdf)
	central, err := g.Convolve(lumi, grid.ConvolveOptions{})
	if err != nil {
		return nil, err
	}
	variations := make([][]float64, 0, len(NinePoints))
	for _, xi := range NinePoints {
		v, err := g.Convolve(lumi, grid.ConvolveOptions{XiR: xi[0], XiF: xi[1]})
		if err != nil {
			return nil, err
		}
		variations = append(variations, v)
	}
	return results.FromPredictions(central, variations...)
}
