package nnlojet

import (
	"os"
	"path/filepath"
	"strings"
)

// CombineFile is the configuration read by nnlojet-combine.
const CombineFile = "combine.ini"

// CombineIni renders the combination config: every histogram is an
// observable, every channel a part, and each level merges its channels.
// When several levels are present the NLO and NNLO sums are added.
func (p *Pinecard) CombineIni(levels []Level) string {
	var b strings.Builder
	b.WriteString("[Paths]\nraw_dir = .\nout_dir = combined\n")

	b.WriteString("\n[Observables]\n")
	for _, h := range p.Histograms {
		if h.Grid() {
			b.WriteString(h.Name + "\n")
		}
	}

	b.WriteString("\n[Parts]\n")
	for _, l := range levels {
		for _, ch := range l.Channels {
			b.WriteString(ch + "\n")
		}
	}

	b.WriteString("\n[Merge]\n")
	present := map[string]bool{}
	for _, l := range levels {
		present[l.Name] = true
		b.WriteString(l.Name + " = " + strings.Join(l.Channels, " + ") + "\n")
	}
	sum := func(name string, parts ...string) {
		var have []string
		for _, part := range parts {
			if present[part] {
				have = append(have, part)
			}
		}
		if len(have) == len(parts) {
			b.WriteString(name + " = " + strings.Join(have, " + ") + "\n")
		}
	}
	sum("NLO", "LO", "R", "V")
	sum("NNLO", "LO", "R", "V", "RR", "RV", "VV")

	b.WriteString("\n[Options]\noutput_weights = True\n")
	return b.String()
}

// WriteCombineIni writes CombineIni to <dest>/combine.ini.
func (p *Pinecard) WriteCombineIni(dest string, levels []Level) (string, error) {
	path := filepath.Join(dest, CombineFile)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(p.CombineIni(levels)), 0o644)
}
