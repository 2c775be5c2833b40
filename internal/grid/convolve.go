package grid

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// DefaultAlpha is the fine-structure constant used when ConvolveOptions.Alpha is zero.
const DefaultAlpha = 1.0 / 137.035999084

// DefaultParticle is the PDG id assumed for a convolution whose particle is not
// recorded in the metadata.
const DefaultParticle = 2212

// XFXFunc returns x*f(x, q2) for the parton pid.
type XFXFunc func(pid int, x, q2 float64) float64

// AlphaSFunc returns the strong coupling at scale q2.
type AlphaSFunc func(q2 float64) float64

// PDF is a parton distribution set with its coupling.
type PDF interface {
	XFXQ2(pid int, x, q2 float64) float64
	AlphaSQ2(q2 float64) float64
}

// Luminosity supplies the parton densities and the coupling used by Convolve.
// XFX2 may be nil, in which case XFX1 is used for both convolutions.
type Luminosity struct {
	XFX1   XFXFunc
	XFX2   XFXFunc
	AlphaS AlphaSFunc
}

// LuminosityFromPDF uses one PDF set for both convolutions.
func LuminosityFromPDF(pdf PDF) Luminosity {
	return Luminosity{XFX1: pdf.XFXQ2, AlphaS: pdf.AlphaSQ2}
}

// ConvolveOptions selects scale factors and the subset of orders to convolve.
type ConvolveOptions struct {
	// XiR and XiF scale the renormalization and factorization scales.
	// Zero means 1.
	XiR float64
	XiF float64

	// Alpha is the electroweak coupling; zero means DefaultAlpha.
	Alpha float64

	// OrderMask, when non-nil, must have one entry per order; orders set to
	// false are skipped.
	OrderMask []bool
}

func (o ConvolveOptions) withDefaults() ConvolveOptions {
	if o.XiR == 0 {
		o.XiR = 1
	}
	if o.XiF == 0 {
		o.XiF = 1
	}
	if o.Alpha == 0 {
		o.Alpha = DefaultAlpha
	}
	return o
}

// convolution describes how one side of a subgrid is folded with a density.
type convolution struct {
	hadronic  bool
	conjugate bool
	xfx       XFXFunc
}

func (c convolution) f(pid int, x, q2 float64) float64 {
	if !c.hadronic {
		return 1
	}
	if c.conjugate {
		pid = conjugatePID(pid)
	}
	return c.xfx(pid, x, q2) / x
}

func conjugatePID(pid int) int {
	switch pid {
	case 21, 22:
		return pid
	default:
		return -pid
	}
}

// ConvolutionParticle returns the PDG id of the particle folded with side
// (1 or 2) of every subgrid. Zero means no convolution.
func (g *Grid) ConvolutionParticle(side int) int {
	for _, key := range []string{"convolution_particle_", "initial_state_"} {
		if v, ok := g.metadata[key+strconv.Itoa(side)]; ok {
			if pid, err := strconv.Atoi(v); err == nil {
				return pid
			}
		}
	}
	return DefaultParticle
}

func (g *Grid) convolution(side int, xfx XFXFunc) convolution {
	pid := g.ConvolutionParticle(side)
	if pid == 0 || abs(pid) < 100 {
		return convolution{}
	}
	return convolution{
		hadronic:  true,
		conjugate: pid == -DefaultParticle,
		xfx:       xfx,
	}
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// Convolve returns one prediction per bin: the sum over orders, channels and
// interpolation nodes of weight times luminosity times couplings, divided by
// the bin normalization.
func (g *Grid) Convolve(lumi Luminosity, opts ConvolveOptions) ([]float64, error) {
	opts = opts.withDefaults()
	if opts.OrderMask != nil && len(opts.OrderMask) != len(g.orders) {
		return nil, newError(ErrCodeShapeMismatch,
			"order mask has %d entries for %d orders", len(opts.OrderMask), len(g.orders))
	}
	xfx2 := lumi.XFX2
	if xfx2 == nil {
		xfx2 = lumi.XFX1
	}
	conv1 := g.convolution(1, lumi.XFX1)
	conv2 := g.convolution(2, xfx2)

	nbins, nch := g.Bins(), len(g.channels)
	preds := make([]float64, nbins)
	for o, ord := range g.orders {
		if opts.OrderMask != nil && !opts.OrderMask[o] {
			continue
		}
		logs := math.Pow(math.Log(opts.XiR*opts.XiR), float64(ord.LogXIR)) *
			math.Pow(math.Log(opts.XiF*opts.XiF), float64(ord.LogXIF))
		if logs == 0 {
			continue
		}
		ew := math.Pow(opts.Alpha, float64(ord.Alpha))
		for b := 0; b < nbins; b++ {
			for c := 0; c < nch; c++ {
				sg := g.subgrids[(o*nbins+b)*nch+c]
				if sg.IsEmpty() {
					continue
				}
				preds[b] += logs * ew * convolveSubgrid(sg, g.channels[c], ord.Alphas, conv1, conv2, lumi.AlphaS, opts)
			}
		}
	}
	floats.Div(preds, g.norms)
	return preds, nil
}

func convolveSubgrid(sg *Subgrid, ch Channel, alphas uint32, conv1, conv2 convolution, alphaS AlphaSFunc, opts ConvolveOptions) float64 {
	var sum float64
	for q, mu2 := range sg.mu2 {
		q2ren := opts.XiR * opts.XiR * mu2.Ren
		q2fac := opts.XiF * opts.XiF * mu2.Fac
		as := 1.0
		if alphas > 0 {
			as = math.Pow(alphaS(q2ren), float64(alphas))
		}
		for i, x1 := range sg.x1 {
			for j, x2 := range sg.x2 {
				w := sg.values[(q*len(sg.x1)+i)*len(sg.x2)+j]
				if w == 0 {
					continue
				}
				var l float64
				for _, e := range ch {
					l += e.Factor * conv1.f(e.PID1, x1, q2fac) * conv2.f(e.PID2, x2, q2fac)
				}
				sum += w * l * as
			}
		}
	}
	return sum
}
