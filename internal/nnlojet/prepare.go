package nnlojet

import (
	"strings"

	"github.com/nnpdf/pinefarm/internal/theory"
)

// theoryParameters maps theory card keys onto NNLOJET parameters.
var theoryParameters = []struct{ theory, param string }{
	{"MZ", "MASS[Z]"},
	{"MW", "MASS[W]"},
}

// ApplyTheory updates the pinecard with the theory card and returns the
// channels to run at the theory's perturbative order.
//
// A CKM matrix whose first entry differs from one switches on the full CKM
// treatment. Scales given as names are replaced by the theory value stored
// under the upper-cased name, when there is one.
func (p *Pinecard) ApplyTheory(th theory.Card) ([]Level, error) {
	if ckm := th.CKM(); len(ckm) > 0 && ckm[0] != 1 {
		p.Parameters.Set("CKM", "FULL")
	}
	for _, m := range theoryParameters {
		if v, ok := th[m.theory]; ok {
			p.Parameters.Set(m.param, formatValue(v))
		}
	}
	for i, e := range p.Scales {
		if v, ok := th[strings.ToUpper(e.Value)]; ok {
			p.Scales[i].Value = formatValue(v)
		}
	}

	levels, err := LevelsForPTO(th.PTO())
	if err != nil {
		return nil, err
	}
	return p.ActiveChannels(levels), nil
}
