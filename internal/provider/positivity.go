package provider

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/lhapdf"
	"github.com/nnpdf/pinefarm/internal/results"
	"github.com/nnpdf/pinefarm/internal/schema"
)

// DefaultConvolutionType is used when a runcard names none.
const DefaultConvolutionType = "UnpolPDF"

type positivityCard struct {
	XGrid           []float64 `json:"xgrid" yaml:"xgrid"`
	LeptonPID       int       `json:"lepton_pid" yaml:"lepton_pid"`
	PID             int       `json:"pid" yaml:"pid"`
	Q2              float64   `json:"q2" yaml:"q2"`
	HadronPID       int       `json:"hadron_pid" yaml:"hadron_pid"`
	ConvolutionType string    `json:"convolution_type,omitempty" yaml:"convolution_type"`
}

// positivity builds a grid of delta functions, one bin per x point, so the
// convolution returns x f(x, Q²) of a single flavour.
type positivity struct {
	*base
	card positivityCard
	raw  map[string]any
}

func newPositivity(b *base) (*positivity, error) {
	path := filepath.Join(b.source(), PositivityFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := &positivity{base: b}
	if err := b.env.Schema.Decode(schema.Positivity, path, data, &p.card); err != nil {
		return nil, err
	}
	if err := b.env.Schema.Decode(schema.Positivity, path, data, &p.raw); err != nil {
		return nil, err
	}
	if p.card.ConvolutionType == "" {
		p.card.ConvolutionType = DefaultConvolutionType
	}
	return p, nil
}

func (p *positivity) ExtractGrid(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := p.card
	n := len(c.XGrid)
	edges := make([]float64, n+1)
	for i := range edges {
		edges[i] = float64(i)
	}
	channels := []grid.Channel{{{PID1: c.PID, PID2: c.LeptonPID, Factor: 1}}}
	g, err := grid.New(channels, []grid.Order{{}}, edges, grid.DefaultParams())
	if err != nil {
		return err
	}

	limits := make([]grid.Limit, 0, 2*n)
	mu2 := []grid.Mu2{{Ren: c.Q2, Fac: c.Q2}}
	for bin, x := range c.XGrid {
		limits = append(limits, grid.Limit{Left: c.Q2, Right: c.Q2}, grid.Limit{Left: x, Right: x})
		values := make([]float64, n)
		values[bin] = x
		sg, err := grid.NewSubgridFromArray(mu2, c.XGrid, []float64{1}, values)
		if err != nil {
			return err
		}
		if err := g.SetSubgrid(0, bin, 0, sg); err != nil {
			return err
		}
	}
	norms := make([]float64, n)
	for i := range norms {
		norms[i] = 1
	}
	if err := g.Remap(norms, limits); err != nil {
		return err
	}

	runcard, err := json.Marshal(p.raw)
	if err != nil {
		return err
	}
	g.SetKeyValue("convolution_particle_1", strconv.Itoa(c.HadronPID))
	g.SetKeyValue("convolution_particle_2", strconv.Itoa(c.LeptonPID))
	g.SetKeyValue("runcard", string(runcard))
	g.SetKeyValue("lumi_id_types", "pdg_mc_ids")
	g.SetKeyValue("convolution_type_1", c.ConvolutionType)
	g.SetKeyValue("convolution_type_2", "None")
	g.Optimize()
	return g.WriteFile(p.GridPath())
}

// CollectResults evaluates the PDF at every x point, with the envelope of
// Q² scaled by 1/4 and 4 as scale variation.
func (p *positivity) CollectResults(context.Context) (*results.Table, error) {
	pdf, err := lhapdf.Load(p.env.Config.Paths.LHAPDFData, p.env.PDF, 0)
	if err != nil {
		return nil, err
	}
	c := p.card
	t := &results.Table{Rows: make([]results.Row, len(c.XGrid))}
	for i, x := range c.XGrid {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, f := range []float64{0.25, 1, 4} {
			v := pdf.XFXQ2(c.PID, x, f*c.Q2)
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		t.Rows[i] = results.Row{
			Result: pdf.XFXQ2(c.PID, x, c.Q2),
			Error:  1e-15,
			SVMin:  lo,
			SVMax:  hi,
		}
	}
	return t, nil
}
