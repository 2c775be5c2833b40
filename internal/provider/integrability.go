package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/lhapdf"
	"github.com/nnpdf/pinefarm/internal/results"
	"github.com/nnpdf/pinefarm/internal/schema"
)

// IntegrabilityVersion is recorded in the metadata of integrability grids.
const IntegrabilityVersion = "1.0"

var flavourBasisPIDs = []int{22, -6, -5, -4, -3, -2, -1, 21, 1, 2, 3, 4, 5, 6}

// evolutionRows expresses each evolution basis element in the flavour basis,
// in the column order of flavourBasisPIDs.
var evolutionRows = map[int][]float64{
	22:  {1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	100: {0, 1, 1, 1, 1, 1, 1, 0, 1, 1, 1, 1, 1, 1},
	21:  {0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0},
	200: {0, -1, -1, -1, -1, -1, -1, 0, 1, 1, 1, 1, 1, 1},
	203: {0, 0, 0, 0, 0, -1, 1, 0, -1, 1, 0, 0, 0, 0},
	208: {0, 0, 0, 0, 2, -1, -1, 0, 1, 1, -2, 0, 0, 0},
	215: {0, 0, 0, 3, -1, -1, -1, 0, 1, 1, 1, -3, 0, 0},
	224: {0, 0, 4, -1, -1, -1, -1, 0, 1, 1, 1, 1, -4, 0},
	235: {0, 5, -1, -1, -1, -1, -1, 0, 1, 1, 1, 1, 1, -5},
	103: {0, 0, 0, 0, 0, 1, -1, 0, -1, 1, 0, 0, 0, 0},
	108: {0, 0, 0, 0, -2, 1, 1, 0, 1, 1, -2, 0, 0, 0},
	115: {0, 0, 0, -3, 1, 1, 1, 0, 1, 1, 1, -3, 0, 0},
	124: {0, 0, -4, 1, 1, 1, 1, 0, 1, 1, 1, 1, -4, 0},
	135: {0, -5, 1, 1, 1, 1, 1, 0, 1, 1, 1, 1, 1, -5},
}

// WeightedFlavour is one flavour basis component of an evolution basis id.
type WeightedFlavour struct {
	PID    int
	Weight float64
}

// EvolutionToFlavour rotates an evolution basis id into flavour basis
// components. Ids below 100 are already flavours.
func EvolutionToFlavour(pid int) ([]WeightedFlavour, error) {
	if pid < 100 {
		return []WeightedFlavour{{PID: pid, Weight: 1}}, nil
	}
	row, ok := evolutionRows[pid]
	if !ok {
		return nil, fmt.Errorf("unknown evolution basis id %d", pid)
	}
	var out []WeightedFlavour
	for i, w := range row {
		if w != 0 {
			out = append(out, WeightedFlavour{PID: flavourBasisPIDs[i], Weight: w})
		}
	}
	return out, nil
}

type integrabilityCard struct {
	HadronPID       int       `json:"hadron_pid" yaml:"hadron_pid"`
	Flavour         int       `json:"flavour" yaml:"flavour"`
	XGrid           []float64 `json:"xgrid" yaml:"xgrid"`
	ConvolutionType string    `json:"convolution_type" yaml:"convolution_type"`
}

// integrability builds a single bin grid integrating one flavour
// combination over an x grid at the initial scale.
type integrability struct {
	*base
	card    integrabilityCard
	q2      float64
	flavour []WeightedFlavour
}

func newIntegrability(b *base) (*integrability, error) {
	path := filepath.Join(b.source(), IntegrabilityFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := &integrability{base: b}
	if err := b.env.Schema.Decode(schema.Integrability, path, data, &p.card); err != nil {
		return nil, err
	}
	if p.card.ConvolutionType == "" {
		p.card.ConvolutionType = DefaultConvolutionType
	}
	q0, ok := b.env.Theory.Float("Q0")
	if !ok {
		return nil, fmt.Errorf("integrability: theory %d has no Q0", b.env.Theory.ID())
	}
	p.q2 = q0 * q0
	if p.flavour, err = EvolutionToFlavour(p.card.Flavour); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *integrability) ExtractGrid(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var channel grid.Channel
	for _, f := range p.flavour {
		channel = append(channel, grid.Entry{PID1: f.PID, PID2: 0, Factor: f.Weight})
	}
	g, err := grid.New([]grid.Channel{channel}, []grid.Order{{}}, []float64{0, 1}, grid.DefaultParams())
	if err != nil {
		return err
	}

	xs := p.card.XGrid
	sg, err := grid.NewSubgridFromArray([]grid.Mu2{{Ren: p.q2, Fac: p.q2}}, xs, []float64{1}, slices.Clone(xs))
	if err != nil {
		return err
	}
	if err := g.SetSubgrid(0, 0, 0, sg); err != nil {
		return err
	}
	limits := []grid.Limit{
		{Left: p.q2, Right: p.q2},
		{Left: slices.Min(xs), Right: slices.Max(xs)},
	}
	if err := g.Remap([]float64{1}, limits); err != nil {
		return err
	}

	runcard, err := json.Marshal(p.card)
	if err != nil {
		return err
	}
	g.SetKeyValue("runcard", string(runcard))
	g.SetKeyValue("convolution_particle_1", strconv.Itoa(p.card.HadronPID))
	g.SetKeyValue("convolution_particle_2", "0")
	g.SetKeyValue("convolution_type_1", p.card.ConvolutionType)
	g.Optimize()
	return g.WriteFile(p.GridPath())
}

// CollectResults sums the weighted densities over the x grid. There is no
// error or scale variation.
func (p *integrability) CollectResults(context.Context) (*results.Table, error) {
	pdf, err := lhapdf.Load(p.env.Config.Paths.LHAPDFData, p.env.PDF, 0)
	if err != nil {
		return nil, err
	}
	var sum float64
	for _, f := range p.flavour {
		for _, x := range p.card.XGrid {
			sum += f.Weight * pdf.XFXQ2(f.PID, x, p.q2)
		}
	}
	if math.IsNaN(sum) {
		return nil, fmt.Errorf("integrability: PDF %s is not defined on the x grid", p.env.PDF)
	}
	return &results.Table{Rows: []results.Row{{Result: sum}}}, nil
}

func (p *integrability) CollectVersions(context.Context) (map[string]string, error) {
	return map[string]string{"integrability_version": IntegrabilityVersion}, nil
}
