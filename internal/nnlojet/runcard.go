package nnlojet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mode is the NNLOJET integration phase.
type Mode string

const (
	Warmup     Mode = "warmup"
	Production Mode = "production"
)

// RuncardName is the stem of every generated runcard.
const RuncardName = "runcard"

// ErrProductionIterations is returned when a production runcard asks for
// more than one iteration.
var ErrProductionIterations = errors.New("only 1 iteration allowed in production")

// RunOptions sets the statistics of a runcard.
type RunOptions struct {
	Mode       Mode
	Events     int
	Iterations int
}

// DefaultRunOptions are reasonable statistics for Drell-Yan runs.
func DefaultRunOptions(mode Mode) RunOptions {
	if mode == Warmup {
		return RunOptions{Mode: Warmup, Events: 5_000_000, Iterations: 10}
	}
	return RunOptions{Mode: Production, Events: 1_000_000, Iterations: 1}
}

const header = `
!###############################################!
!##                                           ##!
!##     _  ___  ____   ____     ____________  ##!
!##    / |/ / |/ / /  / __ \__ / / __/_  __/  ##!
!##   /    /    / /__/ /_/ / // / _/  / /     ##!
!##  /_/|_/_/|_/____/\____/\___/___/ /_/      ##!
!##                                           ##!
!##  Runcard for NNPDF datasets               ##!
!###############################################!
`

const indent = "  "

// defaultParameters are overridden by the pinecard parameters.
func defaultParameters() OrderedMap {
	return OrderedMap{
		{Key: "MASS[Z]", Value: "91.1876"},
		{Key: "WIDTH[Z]", Value: "2.4952"},
		{Key: "MASS[W]", Value: "80.379"},
		{Key: "WIDTH[W]", Value: "2.085"},
		{Key: "SCHEME[alpha]", Value: "Gmu"},
		{Key: "GF", Value: "1.1663787e-05"},
	}
}

const defaultScale = "91.2"

// RuncardPath is <dest>/<channel>/runcard_<mode>.run.
func RuncardPath(dest, channel string, mode Mode) string {
	return filepath.Join(dest, channel, fmt.Sprintf("%s_%s.run", RuncardName, mode))
}

// Runcard renders the runcard of one channel. Warmup runcards carry no
// histograms.
func (p *Pinecard) Runcard(channel string, opts RunOptions) (string, error) {
	spec, ok := p.Channels.Get(channel)
	if !ok {
		return "", fmt.Errorf("channel %q not in pinecard %s", channel, p.Runname)
	}
	switch opts.Mode {
	case Warmup:
	case Production:
		if opts.Iterations > 1 {
			return "", ErrProductionIterations
		}
	default:
		return "", fmt.Errorf("unknown mode %q", opts.Mode)
	}

	var b strings.Builder
	b.WriteString(header)

	fmt.Fprintf(&b, "\nPROCESS  %s\n", p.Process.Proc)
	fmt.Fprintf(&b, "  collider = pp  sqrts = %s\n", formatFloat(p.Process.Sqrts))
	b.WriteString("  jet = none[0]\n  decay_type = 1\nEND_PROCESS\n")

	multi := fmt.Sprint(p.MultiChannel)
	if p.MultiChannel == 0 {
		multi = ".false."
	}
	fmt.Fprintf(&b, "\nRUN  %s\n", strings.ToUpper(p.Runname))
	fmt.Fprintf(&b, "  PDF = %s[0]\n", p.PDF)
	fmt.Fprintf(&b, "  tcut = %s\n", formatFloat(p.Techcut))
	b.WriteString("  scale_coefficients = .true.\n")
	fmt.Fprintf(&b, "  multi_channel = %s\n", multi)
	b.WriteString("  iseed = 1\n  phase_space = qT\n")
	fmt.Fprintf(&b, "  %s = %d[%d]\n", opts.Mode, opts.Events, opts.Iterations)
	b.WriteString("END_RUN\n")

	params := defaultParameters()
	for _, e := range p.Parameters {
		params.Set(e.Key, e.Value)
	}
	b.WriteString("\nPARAMETERS\n")
	for _, e := range params {
		fmt.Fprintf(&b, "%s = %s\n", e.Key, e.Value)
	}
	b.WriteString("END_PARAMETERS\n")

	selectors := make([]string, len(p.Selectors))
	for i, s := range p.Selectors {
		selectors[i] = indent + s.String()
	}
	fmt.Fprintf(&b, "\nSELECTORS\n%s\nEND_SELECTORS\n", strings.Join(selectors, "\n"))

	histograms := ""
	if opts.Mode == Production {
		defs := make([]string, len(p.Histograms))
		for i, h := range p.Histograms {
			defs[i] = h.definition()
		}
		histograms = strings.Join(defs, "\n")
	}
	fmt.Fprintf(&b, "\nHISTOGRAMS\n%s\nEND_HISTOGRAMS\n", histograms)

	mur, ok := p.Scales.Get("mur")
	if !ok {
		mur = defaultScale
	}
	muf, ok := p.Scales.Get("muf")
	if !ok {
		muf = defaultScale
	}
	fmt.Fprintf(&b, "\nSCALES\n%smur = %s  muf = %s\nEND_SCALES\n", indent, mur, muf)

	fmt.Fprintf(&b, "\nCHANNELS %s\n%s%s\nEND_CHANNELS\n", region(channel), indent, spec)
	return b.String(), nil
}

// WriteRuncard renders the runcard of channel into RuncardPath.
func (p *Pinecard) WriteRuncard(dest, channel string, opts RunOptions) (string, error) {
	text, err := p.Runcard(channel, opts)
	if err != nil {
		return "", err
	}
	path := RuncardPath(dest, channel, opts.Mode)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
