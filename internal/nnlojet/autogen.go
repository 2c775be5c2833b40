package nnlojet

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nnpdf/pinefarm/internal/schema"
)

// KinBin is one data point of a kinematic variable.
type KinBin struct {
	Min float64 `json:"min" yaml:"min"`
	Mid float64 `json:"mid" yaml:"mid"`
	Max float64 `json:"max" yaml:"max"`
}

// Descriptor describes an experimental dataset. Kinematics holds one column
// per variable, all of the same length.
type Descriptor struct {
	Dataset     string              `json:"dataset"`
	Process     string              `json:"process"`
	ProcessType string              `json:"process_type"`
	CMEnergy    float64             `json:"cm_energy"`
	Experiment  string              `json:"experiment"`
	Operation   string              `json:"operation,omitempty"`
	HepData     string              `json:"hepdata,omitempty"`
	Arxiv       string              `json:"arxiv,omitempty"`
	Tables      []int               `json:"tables,omitempty"`
	Kinematics  map[string][]KinBin `json:"kinematics"`
}

// LoadDescriptor reads and validates a dataset descriptor.
func LoadDescriptor(reg *schema.Registry, path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Descriptor
	if err := reg.Decode(schema.Descriptor, path, data, &d); err != nil {
		return nil, err
	}
	if err := d.check(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &d, nil
}

func (d *Descriptor) check() error {
	n := -1
	for _, name := range slices.Sorted(maps.Keys(d.Kinematics)) {
		col := d.Kinematics[name]
		if n >= 0 && len(col) != n {
			return fmt.Errorf("kinematics %s has %d points, want %d", name, len(col), n)
		}
		n = len(col)
	}
	return nil
}

// histogramVariables are the kinematic variables that can be binned.
var histogramVariables = []string{"M2", "eta", "etay", "pT", "pT2", "y"}

// ErrUnsupportedLayout is returned for kinematics autogen cannot bin.
var ErrUnsupportedLayout = errors.New("unsupported kinematics")

// AutogenOptions configures Autogen.
type AutogenOptions struct {
	// Output is the runcard folder of the dataset, for example
	// runcards/NNLOJET_CMS_Z0_13TEV. Split processes get sibling folders.
	Output string
	// Scale names the theory parameter used for mur and muf; "mz" if empty.
	Scale  string
	Logger *zap.Logger
}

// Autogen writes one pinecard and one metadata.txt per process of the
// dataset and returns the pinecard paths.
func Autogen(d *Descriptor, opts AutogenOptions) ([]string, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	scale := opts.Scale
	if scale == "" {
		scale = "mz"
	}

	histograms, err := d.histograms()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Dataset, err)
	}
	if strings.EqualFold(d.Operation, "ratio") {
		log.Warn("dataset is probably normalized, the fiducial cross section runcard may be missing",
			zap.String("dataset", d.Dataset))
	}

	hepdata := d.HepData
	if !strings.HasPrefix(hepdata, "https:") {
		hepdata = "https://doi.org/" + hepdata
	}
	arxiv := d.Arxiv
	if i := strings.LastIndex(arxiv, "/"); i >= 0 {
		arxiv = arxiv[i+1:]
	}
	comment := fmt.Sprintf("# arXiv number: %s, hepdata entry: %s (tables: %s)", arxiv, hepdata, formatInts(d.Tables))

	parent, base := filepath.Dir(opts.Output), filepath.Base(opts.Output)
	var written []string
	for _, proc := range splitProcess(d.Process) {
		runname := strings.ReplaceAll(d.Dataset, d.Process, proc)
		card, err := autogenPinecard(runname, proc, d.CMEnergy, d.Experiment, histograms)
		if err != nil {
			return nil, err
		}
		card.Scales = OrderedMap{{Key: "mur", Value: scale}, {Key: "muf", Value: scale}}

		data, err := card.Marshal(comment)
		if err != nil {
			return nil, err
		}
		dir := filepath.Join(parent, strings.ReplaceAll(base, d.Process, proc))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, strings.ToUpper(runname)+".yaml")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, err
		}
		if err := writeMetadata(filepath.Join(dir, "metadata.txt"), arxiv, hepdata, d.Dataset); err != nil {
			return nil, err
		}
		log.Info("wrote pinecard", zap.String("path", path))
		written = append(written, path)
	}
	return written, nil
}

// splitProcess lists the processes generated for a dataset process.
func splitProcess(process string) []string {
	switch {
	case strings.HasPrefix(process, "WPWM"):
		return []string{strings.Replace(process, "WP", "", 1), strings.Replace(process, "WM", "", 1)}
	case process == "DY":
		return []string{"Z0", "WP", "WM"}
	}
	return []string{process}
}

func formatInts(v []int) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.Itoa(x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

var metadataFields = []string{
	"description",
	"x1_label", "x1_label_tex",
	"x2_label", "x2_label_tex", "x2_unit",
	"y_label", "y_label_tex", "y_unit",
}

// writeMetadata writes a metadata.txt with the known references and empty
// labels left for the user to fill in.
func writeMetadata(path, arxiv, hepdata, dataset string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "arxiv=%s\nhepdata=%s\nnnpdf_id=%s\n", arxiv, hepdata, dataset)
	b.WriteString(strings.Join(metadataFields, "=\n") + "=")
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// histograms derives the histograms from the kinematics: one for a single
// variable, one per invariant mass slice for two variables, and a single
// wide rapidity bin for inclusive cross sections.
func (d *Descriptor) histograms() ([]Histogram, error) {
	var vars []string
	for _, v := range histogramVariables {
		if _, ok := d.Kinematics[v]; ok {
			vars = append(vars, v)
		}
	}

	switch d.Process {
	case "WPWM", "Z0", "DY":
		if slices.Contains(vars, "M2") && len(uniqueMids(d.Kinematics["M2"])) == 1 {
			vars = slices.DeleteFunc(vars, func(v string) bool { return v == "M2" })
		}
	}

	switch {
	case len(vars) == 1:
		h, err := histogram1D(d.Kinematics[vars[0]], vars[0])
		if err != nil {
			return nil, err
		}
		return []Histogram{h}, nil

	case len(vars) == 2:
		if !slices.Contains(vars, "M2") {
			return nil, fmt.Errorf("%w: two dimensional %v without M2", ErrUnsupportedLayout, vars)
		}
		other := vars[0]
		if other == "M2" {
			other = vars[1]
		}
		return d.massSlices(other)

	case len(vars) == 0 && d.ProcessType == "INC":
		return []Histogram{{Name: "tot", Observable: "y", Bins: []float64{-10, 10}}}, nil
	}
	return nil, fmt.Errorf("%w: variables %v for process type %s", ErrUnsupportedLayout, vars, d.ProcessType)
}

func (d *Descriptor) massSlices(other string) ([]Histogram, error) {
	m2 := d.Kinematics["M2"]
	massName, err := observableName("M", d.Process)
	if err != nil {
		return nil, err
	}
	all, err := histogram1D(m2, "M2")
	if err != nil {
		return nil, err
	}
	bounds := slices.Compact(slices.Sorted(slices.Values(all.Bins)))

	var out []Histogram
	for i, mid := range uniqueMids(m2) {
		if i+1 >= len(bounds) {
			return nil, fmt.Errorf("%w: more mass slices than mass bounds", ErrUnsupportedLayout)
		}
		var rows []KinBin
		for j, b := range m2 {
			if b.Mid == mid {
				rows = append(rows, d.Kinematics[other][j])
			}
		}
		h, err := histogram1D(rows, other)
		if err != nil {
			return nil, err
		}
		h.Name = fmt.Sprintf("%s_bin_%d", other, i)
		lo, hi := bounds[i], bounds[i+1]
		h.ExtraSelectors = []ExtraSelector{{Selector: &Selector{Observable: massName, Min: &lo, Max: &hi}}}
		out = append(out, h)
	}
	return out, nil
}

func uniqueMids(col []KinBin) []float64 {
	var out []float64
	for _, b := range col {
		if !slices.Contains(out, b.Mid) {
			out = append(out, b.Mid)
		}
	}
	return out
}

// histogram1D bins one variable. Squared variables are binned in their
// square root and renamed.
func histogram1D(col []KinBin, variable string) (Histogram, error) {
	bins, err := edges(col)
	if err != nil {
		return Histogram{}, fmt.Errorf("%s: %w", variable, err)
	}
	switch variable {
	case "pT2":
		sqrtAll(bins)
		variable = "pT"
	case "M2":
		sqrtAll(bins)
		variable = "M"
	}
	for i, b := range bins {
		bins[i] = math.Round(b*1000) / 1000
	}
	return Histogram{Name: variable, Observable: variable, Bins: bins}, nil
}

func sqrtAll(v []float64) {
	for i := range v {
		v[i] = math.Sqrt(v[i])
	}
}

// edges turns data points into bin edges. Points carrying only a central
// value get edges halfway between neighbouring mids, with the outer edges
// mirrored from the nearest inner shift.
func edges(col []KinBin) ([]float64, error) {
	if len(col) == 0 {
		return nil, errors.New("no data points")
	}
	onlyMid := true
	for _, b := range col {
		if !closeTo(b.Min, b.Max) {
			onlyMid = false
			break
		}
	}

	if !onlyMid {
		out := make([]float64, 0, len(col)+1)
		for _, b := range col {
			out = append(out, b.Min)
		}
		return append(out, col[len(col)-1].Max), nil
	}

	if len(col) < 2 {
		return nil, errors.New("cannot derive edges from a single central value")
	}
	n := len(col)
	shifts := make([]float64, n-1)
	for i := range shifts {
		shifts[i] = (col[i+1].Mid - col[i].Mid) / 2
	}
	out := make([]float64, 0, n+1)
	out = append(out, col[0].Mid-shifts[0])
	for i := 0; i < n-1; i++ {
		out = append(out, col[i].Mid+shifts[i])
	}
	return append(out, col[n-1].Mid+shifts[n-2]), nil
}

// closeTo mirrors numpy.allclose with its default tolerances.
func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-8+1e-5*math.Abs(b)
}

// observableName maps a kinematic variable onto the NNLOJET observable
// for the process.
func observableName(variable, process string) (string, error) {
	p := strings.ToUpper(process)
	switch {
	case variable == "eta" || variable == "y" || variable == "etay":
		switch {
		case strings.HasPrefix(p, "Z"):
			return "yz", nil
		case strings.HasPrefix(p, "WP") && !strings.HasSuffix(p, "J"):
			return "ylp", nil
		case strings.HasPrefix(p, "WM") && !strings.HasSuffix(p, "J"):
			return "ylm", nil
		}
	case strings.EqualFold(variable, "pt"):
		switch {
		case strings.HasPrefix(p, "Z"):
			return "ptz", nil
		case strings.HasPrefix(p, "W"):
			return "ptw", nil
		}
	case variable == "M" && strings.HasPrefix(p, "Z"):
		return "mll", nil
	}
	return "", fmt.Errorf("observable %s not recognized for process %s", variable, process)
}

type cut struct {
	kind     string
	min, max *float64
}

func ptr(v float64) *float64 { return &v }

// DefaultSelectors returns the fiducial cuts of an experiment applied to
// the NNLOJET variables of the process.
func DefaultSelectors(experiment, process string) ([]Selector, error) {
	cuts := []cut{
		{kind: "rapidity"},
		{kind: "pt", min: ptr(20)},
		{kind: "inv_mass"},
		{kind: "mt"},
	}
	switch experiment {
	case "LHCB":
		cuts[0].min, cuts[0].max = ptr(2.0), ptr(4.5)
		cuts[2].min, cuts[2].max = ptr(60), ptr(120)
	case "ATLAS":
		cuts[0].min, cuts[0].max = ptr(0), ptr(2.5)
		cuts[2].min, cuts[2].max = ptr(66), ptr(116)
		cuts[1].min = ptr(25)
		cuts[3].min = ptr(50)
	case "CMS":
		cuts[0].min, cuts[0].max = ptr(0), ptr(2.4)
		cuts[2].min, cuts[2].max = ptr(60), ptr(120)
		cuts[1].min = ptr(35)
	default:
		return nil, fmt.Errorf("selectors for experiment %q not implemented", experiment)
	}

	variables := map[string][]string{}
	switch {
	case strings.HasPrefix(process, "Z"):
		variables["rapidity"] = []string{"yz", "abs_ylp", "abs_ylm"}
		variables["inv_mass"] = []string{"mll"}
		variables["pt"] = []string{"ptl2"}
	case strings.HasPrefix(process, "W") && len(process) > 1:
		sign := strings.ToLower(process[1:2])
		variables["rapidity"] = []string{"abs_yl" + sign}
		variables["pt"] = []string{"ptl" + sign}
		variables["mt"] = []string{"mt"}
	}

	var out []Selector
	for _, c := range cuts {
		if c.min == nil && c.max == nil {
			continue
		}
		for _, v := range variables[c.kind] {
			out = append(out, Selector{Observable: v, Min: c.min, Max: c.max})
		}
	}
	return out, nil
}

// autogenParameters are written into every autogenerated pinecard.
func autogenParameters() OrderedMap {
	return OrderedMap{
		{Key: "MASS[Z]", Value: "91.1876"},
		{Key: "MASS[W]", Value: "80.379"},
		{Key: "WIDTH[Z]", Value: "2.4952"},
		{Key: "WIDTH[W]", Value: "2.085"},
		{Key: "SCHEME[alpha]", Value: "Gmu"},
		{Key: "GF", Value: "1.1663787d-5"},
	}
}

func autogenPinecard(runname, process string, energy float64, experiment string, histograms []Histogram) (*Pinecard, error) {
	selectors, err := DefaultSelectors(experiment, process)
	if err != nil {
		return nil, err
	}
	process = strings.ReplaceAll(process, "Z0", "Z")

	hists := make([]Histogram, len(histograms))
	for i, h := range histograms {
		h.Bins = slices.Clone(h.Bins)
		h.ExtraSelectors = slices.Clone(h.ExtraSelectors)
		obs, err := observableName(h.Observable, process)
		if err != nil {
			return nil, err
		}
		h.Observable = obs
		hists[i] = h
	}

	channels := make(OrderedMap, 0, len(AllLevels))
	for _, l := range AllLevels {
		channels = append(channels, Entry{Key: l, Value: l})
	}
	return &Pinecard{
		Runname:      runname,
		Process:      Process{Proc: process, Sqrts: energy},
		PDF:          DefaultPDF,
		Techcut:      DefaultTechcut,
		Histograms:   hists,
		MultiChannel: 0,
		Channels:     channels,
		Parameters:   autogenParameters(),
		Selectors:    selectors,
	}, nil
}
