package grid

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
)

// Entry is one initial-state parton combination of a channel.
type Entry struct {
	PID1   int
	PID2   int
	Factor float64
}

// Channel is a weighted combination of initial-state partons.
type Channel []Entry

// Order holds the coupling powers of one perturbative contribution.
type Order struct {
	Alphas uint32
	Alpha  uint32
	LogXIR uint32
	LogXIF uint32
}

// Limit is the interval covered by a bin in one observable dimension.
type Limit struct {
	Left  float64
	Right float64
}

// Params holds the default interpolation parameters recorded with a grid.
type Params struct {
	Q2Bins  int
	Q2Min   float64
	Q2Max   float64
	Q2Order int
	XBins   int
	XMin    float64
	XMax    float64
	XOrder  int
}

// DefaultParams returns the interpolation defaults used when a grid is
// created without explicit parameters.
func DefaultParams() Params {
	return Params{
		Q2Bins:  40,
		Q2Min:   1e2,
		Q2Max:   1e8,
		Q2Order: 3,
		XBins:   50,
		XMin:    2e-7,
		XMax:    1.0,
		XOrder:  3,
	}
}

// Grid is a binned interpolation grid.
//
// Subgrids are stored flat, indexed by (order*bins + bin)*channels + channel.
// A nil subgrid is empty.
type Grid struct {
	channels []Channel
	orders   []Order
	dims     int
	limits   []Limit // bin-major, dims entries per bin
	norms    []float64
	params   Params
	subgrids []*Subgrid
	metadata map[string]string
}

// New creates an empty one-dimensional grid over the given bin edges.
// Edges must be strictly monotonic (increasing or decreasing) and contain at
// least two values. Normalizations default to the absolute bin widths.
func New(channels []Channel, orders []Order, edges []float64, params Params) (*Grid, error) {
	if len(edges) < 2 {
		return nil, newError(ErrCodeShapeMismatch, "need at least 2 bin edges, got %d", len(edges))
	}
	if !strictlyMonotonic(edges) {
		return nil, newError(ErrCodeShapeMismatch, "bin edges are not strictly monotonic: %v", edges)
	}

	nbins := len(edges) - 1
	limits := make([]Limit, nbins)
	norms := make([]float64, nbins)
	for i := 0; i < nbins; i++ {
		limits[i] = Limit{Left: edges[i], Right: edges[i+1]}
		norms[i] = math.Abs(edges[i+1] - edges[i])
	}

	g := &Grid{
		channels: cloneChannels(channels),
		orders:   slices.Clone(orders),
		dims:     1,
		limits:   limits,
		norms:    norms,
		params:   params,
		metadata: make(map[string]string),
	}
	g.subgrids = make([]*Subgrid, len(g.orders)*nbins*len(g.channels))
	return g, nil
}

func strictlyMonotonic(edges []float64) bool {
	increasing := edges[1] > edges[0]
	for i := 1; i < len(edges); i++ {
		if increasing && !(edges[i] > edges[i-1]) {
			return false
		}
		if !increasing && !(edges[i] < edges[i-1]) {
			return false
		}
	}
	return true
}

func cloneChannels(channels []Channel) []Channel {
	out := make([]Channel, len(channels))
	for i, c := range channels {
		out[i] = slices.Clone(c)
	}
	return out
}

// Channels returns a copy of the channel list.
func (g *Grid) Channels() []Channel { return cloneChannels(g.channels) }

// Orders returns a copy of the order list.
func (g *Grid) Orders() []Order { return slices.Clone(g.orders) }

// Params returns the interpolation parameters.
func (g *Grid) Params() Params { return g.params }

// Bins returns the number of bins.
func (g *Grid) Bins() int { return len(g.norms) }

// BinDimensions returns the number of observable dimensions of the binning.
func (g *Grid) BinDimensions() int { return g.dims }

// BinLimits returns a copy of the limits of every bin, dims entries per bin.
func (g *Grid) BinLimits() []Limit { return slices.Clone(g.limits) }

// BinLeft returns the left limit of every bin in dimension dim.
func (g *Grid) BinLeft(dim int) []float64 {
	out := make([]float64, g.Bins())
	for b := range out {
		out[b] = g.limits[b*g.dims+dim].Left
	}
	return out
}

// BinRight returns the right limit of every bin in dimension dim.
func (g *Grid) BinRight(dim int) []float64 {
	out := make([]float64, g.Bins())
	for b := range out {
		out[b] = g.limits[b*g.dims+dim].Right
	}
	return out
}

// BinNormalizations returns a copy of the per-bin normalizations.
func (g *Grid) BinNormalizations() []float64 { return slices.Clone(g.norms) }

// Edges returns the n_bins+1 edges of a contiguous one-dimensional grid.
func (g *Grid) Edges() ([]float64, error) {
	if g.dims != 1 {
		return nil, NewDimensionalityError(g.dims, 1)
	}
	edges := make([]float64, 0, g.Bins()+1)
	for b, l := range g.limits {
		if b > 0 && g.limits[b-1].Right != l.Left {
			return nil, newError(ErrCodeShapeMismatch,
				"bins %d and %d are not contiguous (%g != %g)", b-1, b, g.limits[b-1].Right, l.Left)
		}
		edges = append(edges, l.Left)
	}
	return append(edges, g.limits[len(g.limits)-1].Right), nil
}

// Remap replaces the bin limits and normalizations in place.
// limits holds one entry per bin and dimension, bin-major; the number of
// dimensions is inferred from len(limits)/len(normalizations).
func (g *Grid) Remap(normalizations []float64, limits []Limit) error {
	if len(normalizations) != g.Bins() {
		return newError(ErrCodeShapeMismatch,
			"remapper has %d normalizations for %d bins", len(normalizations), g.Bins())
	}
	if len(limits) == 0 || len(limits)%len(normalizations) != 0 {
		return newError(ErrCodeShapeMismatch,
			"remapper has %d limits for %d bins", len(limits), len(normalizations))
	}
	g.dims = len(limits) / len(normalizations)
	g.limits = slices.Clone(limits)
	g.norms = slices.Clone(normalizations)
	return nil
}

func (g *Grid) index(order, bin, channel int) (int, error) {
	if order < 0 || order >= len(g.orders) ||
		bin < 0 || bin >= g.Bins() ||
		channel < 0 || channel >= len(g.channels) {
		return 0, &Error{
			Code: ErrCodeIndexOutOfRange,
			Message: "subgrid index (order, bin, channel) outside grid of " +
				shapeString(len(g.orders), g.Bins(), len(g.channels)),
			Details: map[string]string{
				"order":   itoa(order),
				"bin":     itoa(bin),
				"channel": itoa(channel),
			},
		}
	}
	return (order*g.Bins()+bin)*len(g.channels) + channel, nil
}

// Subgrid returns the subgrid at (order, bin, channel).
// An empty subgrid is returned as a non-nil zero-node Subgrid.
func (g *Grid) Subgrid(order, bin, channel int) (*Subgrid, error) {
	idx, err := g.index(order, bin, channel)
	if err != nil {
		return nil, err
	}
	if g.subgrids[idx] == nil {
		return &Subgrid{}, nil
	}
	return g.subgrids[idx], nil
}

// SetSubgrid stores sg at (order, bin, channel). A nil sg clears the slot.
func (g *Grid) SetSubgrid(order, bin, channel int, sg *Subgrid) error {
	idx, err := g.index(order, bin, channel)
	if err != nil {
		return err
	}
	g.subgrids[idx] = sg
	return nil
}

// Merge appends the bins of other to g in place.
// Both grids must have identical channels, orders and bin dimensions.
// The metadata of g is kept; other's metadata is ignored.
func (g *Grid) Merge(other *Grid) error {
	if !channelsEqual(g.channels, other.channels) {
		return newError(ErrCodeIncompatibleGrid, "channel lists differ (%d vs %d channels)",
			len(g.channels), len(other.channels))
	}
	if !slices.Equal(g.orders, other.orders) {
		return newError(ErrCodeIncompatibleGrid, "order lists differ (%d vs %d orders)",
			len(g.orders), len(other.orders))
	}
	if g.dims != other.dims {
		return newError(ErrCodeIncompatibleGrid, "bin dimensions differ (%d vs %d)", g.dims, other.dims)
	}

	nA, nB, nc := g.Bins(), other.Bins(), len(g.channels)
	merged := make([]*Subgrid, len(g.orders)*(nA+nB)*nc)
	for o := range g.orders {
		for b := 0; b < nA; b++ {
			for c := 0; c < nc; c++ {
				merged[(o*(nA+nB)+b)*nc+c] = g.subgrids[(o*nA+b)*nc+c]
			}
		}
		for b := 0; b < nB; b++ {
			for c := 0; c < nc; c++ {
				merged[(o*(nA+nB)+nA+b)*nc+c] = other.subgrids[(o*nB+b)*nc+c].Clone()
			}
		}
	}

	g.subgrids = merged
	g.limits = append(g.limits, other.limits...)
	g.norms = append(g.norms, other.norms...)
	return nil
}

func channelsEqual(a, b []Channel) bool {
	return slices.EqualFunc(a, b, func(x, y Channel) bool { return slices.Equal(x, y) })
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := &Grid{
		channels: cloneChannels(g.channels),
		orders:   slices.Clone(g.orders),
		dims:     g.dims,
		limits:   slices.Clone(g.limits),
		norms:    slices.Clone(g.norms),
		params:   g.params,
		subgrids: make([]*Subgrid, len(g.subgrids)),
		metadata: make(map[string]string, len(g.metadata)),
	}
	for i, sg := range g.subgrids {
		out.subgrids[i] = sg.Clone()
	}
	for k, v := range g.metadata {
		out.metadata[k] = v
	}
	return out
}

// Optimize releases the storage of all-zero subgrids.
func (g *Grid) Optimize() {
	for i, sg := range g.subgrids {
		if sg.IsEmpty() {
			g.subgrids[i] = nil
		}
	}
}

// Scale multiplies every subgrid weight by factor.
func (g *Grid) Scale(factor float64) {
	for _, sg := range g.subgrids {
		if sg != nil {
			sg.scale(factor)
		}
	}
}

// SetKeyValue stores a metadata entry.
func (g *Grid) SetKeyValue(key, value string) {
	g.metadata[key] = value
}

// KeyValue returns a metadata entry and whether it exists.
func (g *Grid) KeyValue(key string) (string, bool) {
	v, ok := g.metadata[key]
	return v, ok
}

// Metadata returns a copy of the metadata map.
func (g *Grid) Metadata() map[string]string {
	out := make(map[string]string, len(g.metadata))
	for k, v := range g.metadata {
		out[k] = v
	}
	return out
}

// MetadataKeys returns the metadata keys in sorted order.
func (g *Grid) MetadataKeys() []string {
	keys := make([]string, 0, len(g.metadata))
	for k := range g.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shapeString(orders, bins, channels int) string {
	return fmt.Sprintf("(%d, %d, %d)", orders, bins, channels)
}

func itoa(i int) string { return strconv.Itoa(i) }
