package nnlojet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nnpdf/pinefarm/internal/schema"
	"github.com/nnpdf/pinefarm/internal/theory"
)

const samplePinecard = `runname: ZJ_test
process:
  proc: Z
  sqrts: 13000
channels:
  LO: LO
  R: R
  V: V
  RRa_1: RRa_1
  RRb_1: RRb_1
  RV: RV
parameters:
  GF: 1.1663787d-5
selectors:
  - observable: yz
    min: 0
    max: 2.4
  - observable: mll
    min: 66
    max: 116
histograms:
  - name: yz
    observable: yz
    bins: [0, 0.5, 1.0]
  - name: ptz
    observable: ptz
    bins: [0, 10]
    pineappl: false
    extra_selectors:
      - observable: mll
        min: 60
        max: 120
      - "reject abs_ylp min = 1.37 max = 1.52"
scales:
  mur: 91.2
  muf: mz
multi_channel: 0
`

func sampleTheory() theory.Card {
	return theory.Card{
		"ID":  208,
		"PTO": 2,
		"MZ":  91.1876,
		"CKM": []float64{0.97428, 0.22530, 0.003470},
	}
}

func loadSample(t *testing.T) *Pinecard {
	t.Helper()
	p, err := ParsePinecard(schema.MustNew(), "ZJ_test.yaml", []byte(samplePinecard))
	require.NoError(t, err)
	return p
}

func TestParsePinecard_Defaults(t *testing.T) {
	p := loadSample(t)
	assert.Equal(t, DefaultPDF, p.PDF)
	assert.Equal(t, DefaultTechcut, p.Techcut)
	assert.Equal(t, 0, p.MultiChannel)
	assert.Equal(t, []string{"LO", "R", "V", "RRa_1", "RRb_1", "RV"}, p.Channels.Keys())
	assert.False(t, p.Histograms[1].Grid())
	assert.Equal(t, "reject abs_ylp min = 1.37 max = 1.52", p.Histograms[1].ExtraSelectors[1].String())
}

func TestParsePinecard_Invalid(t *testing.T) {
	_, err := ParsePinecard(schema.MustNew(), "bad.yaml", []byte("runname: x\nchannels: {}\n"))
	assert.Error(t, err)
}

func TestRuncard_Golden(t *testing.T) {
	p := loadSample(t)
	_, err := p.ApplyTheory(sampleTheory())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	warmup, err := p.Runcard("LO", DefaultRunOptions(Warmup))
	require.NoError(t, err)
	g.Assert(t, "LO_warmup", []byte(warmup))

	production, err := p.Runcard("RRa_1", DefaultRunOptions(Production))
	require.NoError(t, err)
	g.Assert(t, "RRa_1_production", []byte(production))
}

func TestRuncard_Errors(t *testing.T) {
	p := loadSample(t)

	_, err := p.Runcard("NNLO_x", DefaultRunOptions(Warmup))
	assert.ErrorContains(t, err, "not in pinecard")

	_, err = p.Runcard("LO", RunOptions{Mode: Production, Events: 10, Iterations: 2})
	assert.ErrorIs(t, err, ErrProductionIterations)

	_, err = p.Runcard("LO", RunOptions{Mode: "test"})
	assert.ErrorContains(t, err, "unknown mode")
}

func TestApplyTheory(t *testing.T) {
	p := loadSample(t)
	levels, err := p.ApplyTheory(sampleTheory())
	require.NoError(t, err)

	ckm, _ := p.Parameters.Get("CKM")
	assert.Equal(t, "FULL", ckm)
	mz, _ := p.Parameters.Get("MASS[Z]")
	assert.Equal(t, "91.1876", mz)
	_, ok := p.Parameters.Get("MASS[W]")
	assert.False(t, ok)
	muf, _ := p.Scales.Get("muf")
	assert.Equal(t, "91.1876", muf)

	want := []Level{
		{Name: "LO", Channels: []string{"LO"}},
		{Name: "R", Channels: []string{"R"}},
		{Name: "V", Channels: []string{"V"}},
		{Name: "RR", Channels: []string{"RRa_1", "RRb_1"}},
		{Name: "RV", Channels: []string{"RV"}},
	}
	assert.Equal(t, want, levels)

	t.Run("unit CKM keeps the diagonal treatment", func(t *testing.T) {
		p := loadSample(t)
		th := sampleTheory()
		th["CKM"] = []float64{1, 0, 0}
		th["PTO"] = 0
		levels, err := p.ApplyTheory(th)
		require.NoError(t, err)
		_, ok := p.Parameters.Get("CKM")
		assert.False(t, ok)
		assert.Equal(t, []Level{{Name: "LO", Channels: []string{"LO"}}}, levels)
	})

	t.Run("N3LO", func(t *testing.T) {
		th := sampleTheory()
		th["PTO"] = 3
		_, err := loadSample(t).ApplyTheory(th)
		assert.ErrorIs(t, err, ErrUnsupportedOrder)
	})
}

func TestWriteRunset(t *testing.T) {
	p := loadSample(t)
	levels, err := p.ApplyTheory(sampleTheory())
	require.NoError(t, err)

	dest := t.TempDir()
	paths, err := p.WriteRunset(context.Background(), dest, levels, RunsetOptions{
		Workers: 3,
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	require.Len(t, paths, 12)

	assert.Equal(t, RuncardPath(dest, "LO", Warmup), paths[0])
	assert.Equal(t, RuncardPath(dest, "LO", Production), paths[1])
	assert.Equal(t, RuncardPath(dest, "RRa_1", Warmup), paths[6])
	assert.Equal(t, RuncardPath(dest, "RRb_1", Production), paths[9])
	for _, path := range paths {
		assert.FileExists(t, path)
	}

	combine, err := os.ReadFile(filepath.Join(dest, CombineFile))
	require.NoError(t, err)
	assert.Equal(t, `[Paths]
raw_dir = .
out_dir = combined

[Observables]
yz

[Parts]
LO
R
V
RRa_1
RRb_1
RV

[Merge]
LO = LO
R = R
V = V
RR = RRa_1 + RRb_1
RV = RV
NLO = LO + R + V

[Options]
output_weights = True
`, string(combine))
}

func TestWriteRunset_Cancelled(t *testing.T) {
	p := loadSample(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.WriteRunset(ctx, t.TempDir(), p.ActiveChannels(nil), RunsetOptions{Workers: 2})
	assert.ErrorIs(t, err, context.Canceled)
}
