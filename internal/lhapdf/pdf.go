package lhapdf

import (
	"math"
	"sort"
)

// PDF is one loaded member. It implements grid.PDF.
type PDF struct {
	set    *Set
	member int
	blocks []*block
}

// Set returns the set the member belongs to.
func (p *PDF) Set() *Set { return p.set }

// Member returns the member number.
func (p *PDF) Member() int { return p.member }

// LHAPDFID is the global LHAPDF id of this member.
func (p *PDF) LHAPDFID() int { return p.set.Info.SetIndex + p.member }

func logOf(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return math.Log(v)
}

// XFXQ2 returns x*f(x, Q²) for pid. The gluon may be requested as 0 or 21;
// flavours absent from the set evaluate to zero.
func (p *PDF) XFXQ2(pid int, x, q2 float64) float64 {
	if pid == 0 {
		pid = 21
	}
	lq := logOf(q2)
	b := p.blockFor(lq)
	ip := b.pidIndex(pid)
	if ip < 0 {
		return 0
	}

	ix, tx := bracket(b.logX, logOf(x))
	iq, tq := bracket(b.logQ2, lq)
	nq, np := len(b.logQ2), len(b.pids)
	at := func(i, j int) float64 { return b.values[(i*nq+j)*np+ip] }

	lo := (1-tq)*at(ix, iq) + tq*at(ix, iq+1)
	hi := (1-tq)*at(ix+1, iq) + tq*at(ix+1, iq+1)
	return (1-tx)*lo + tx*hi
}

// blockFor picks the Q subgrid containing lq, clamping to the first or last.
func (p *PDF) blockFor(lq float64) *block {
	for _, b := range p.blocks {
		if lq <= b.logQ2[len(b.logQ2)-1] {
			return b
		}
	}
	return p.blocks[len(p.blocks)-1]
}

// bracket returns the lower knot index i and the fraction t of v between
// knots i and i+1. Values outside the knots are clamped.
func bracket(knots []float64, v float64) (int, float64) {
	n := len(knots)
	if v <= knots[0] {
		return 0, 0
	}
	if v >= knots[n-1] {
		return n - 2, 1
	}
	i := sort.SearchFloat64s(knots, v)
	if knots[i] == v {
		if i == n-1 {
			return n - 2, 1
		}
		return i, 0
	}
	i--
	return i, (v - knots[i]) / (knots[i+1] - knots[i])
}

// AlphaSQ2 interpolates the coupling table of the set in log Q².
// It returns zero when the set carries no table.
func (p *PDF) AlphaSQ2(q2 float64) float64 {
	info := p.set.Info
	if len(info.AlphaSQs) < 2 {
		return 0
	}
	knots := make([]float64, len(info.AlphaSQs))
	for i, q := range info.AlphaSQs {
		knots[i] = logOf(q * q)
	}
	// Flavour thresholds repeat a Q value; take the upper branch.
	i, t := bracket(knots, logOf(q2))
	for i+1 < len(knots)-1 && knots[i] == knots[i+1] {
		i++
	}
	return (1-t)*info.AlphaSVals[i] + t*info.AlphaSVals[i+1]
}
