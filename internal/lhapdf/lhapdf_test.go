package lhapdf

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnpdf/pinefarm/internal/grid"
)

const testInfo = `SetDesc: "toy set"
SetIndex: 90000
NumMembers: 1
Flavors: [-1, 1, 21]
OrderQCD: 1
XMin: 1.0e-4
XMax: 1.0
QMin: 1.0
QMax: 100.0
MZ: 91.1876
AlphaS_MZ: 0.118
AlphaS_Qs: [1.0, 10.0, 10.0, 100.0]
AlphaS_Vals: [0.4, 0.2, 0.21, 0.1]
`

// Two blocks: Q in [1, 10] and [10, 100]. Values are x-major, one row per
// (x, Q) pair with columns -1, 1, 21.
const testMember = `PdfType: central
Format: lhagrid1
---
1.0e-4 1.0e-2 1.0
1.0 10.0
-1 1 21
1 2 3
2 4 6
3 6 9
4 8 12
5 10 15
6 12 18
---
1.0e-4 1.0e-2 1.0
10.0 100.0
-1 1 21
2 4 6
7 14 21
4 8 12
9 18 27
6 12 18
11 22 33
---
`

func writeSet(t *testing.T, member string) string {
	t.Helper()
	data := t.TempDir()
	dir := filepath.Join(data, "toy")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "toy.info"), []byte(testInfo), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "toy_0000.dat"), []byte(member), 0o644))
	return data
}

func TestOpen_ReadsInfo(t *testing.T) {
	s, err := Open(writeSet(t, testMember), "toy")
	require.NoError(t, err)
	assert.Equal(t, 90000, s.Info.SetIndex)
	assert.Equal(t, []int{-1, 1, 21}, s.Info.Flavors)
	assert.Equal(t, "toy_0000.dat", filepath.Base(s.MemberPath(0)))
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(t.TempDir(), "nope")
	assert.ErrorIs(t, err, ErrSetNotFound)
}

func TestXFXQ2_OnKnots(t *testing.T) {
	pdf, err := Load(writeSet(t, testMember), "toy", 0)
	require.NoError(t, err)
	assert.Equal(t, 90000, pdf.LHAPDFID())

	assert.InDelta(t, 1.0, pdf.XFXQ2(-1, 1e-4, 1), 1e-12)
	assert.InDelta(t, 6.0, pdf.XFXQ2(21, 1e-4, 100), 1e-12)
	assert.InDelta(t, 10.0, pdf.XFXQ2(1, 1.0, 1), 1e-12)
	assert.InDelta(t, 6.0, pdf.XFXQ2(1, 1e-2, 1), 1e-12)
	assert.InDelta(t, 33.0, pdf.XFXQ2(21, 1.0, 1e4), 1e-12)
}

func TestXFXQ2_LogBilinear(t *testing.T) {
	pdf, err := Load(writeSet(t, testMember), "toy", 0)
	require.NoError(t, err)

	// Halfway in log x between 1e-4 and 1e-2 at Q=1: (1+3)/2.
	assert.InDelta(t, 2.0, pdf.XFXQ2(-1, 1e-3, 1), 1e-12)
	// Halfway in log Q² between Q=1 and Q=10 at x=1e-4: (1+2)/2.
	assert.InDelta(t, 1.5, pdf.XFXQ2(-1, 1e-4, 10), 1e-12)
	// Both: mean of 1, 2, 3, 4.
	assert.InDelta(t, 2.5, pdf.XFXQ2(-1, 1e-3, 10), 1e-12)
	// Second block, halfway in log Q² between Q=10 and 100 at x=1e-2.
	assert.InDelta(t, (4.0+9.0)/2, pdf.XFXQ2(-1, 1e-2, math.Sqrt(10*10*100*100)), 1e-12)
}

func TestXFXQ2_ClampsAndFlavours(t *testing.T) {
	pdf, err := Load(writeSet(t, testMember), "toy", 0)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, pdf.XFXQ2(-1, 1e-9, 0.01), 1e-12)
	assert.InDelta(t, pdf.XFXQ2(21, 0.5, 4), pdf.XFXQ2(0, 0.5, 4), 0)
	assert.Equal(t, 0.0, pdf.XFXQ2(5, 0.5, 4))
}

func TestAlphaSQ2(t *testing.T) {
	pdf, err := Load(writeSet(t, testMember), "toy", 0)
	require.NoError(t, err)

	assert.InDelta(t, 0.4, pdf.AlphaSQ2(1), 1e-12)
	assert.InDelta(t, 0.3, pdf.AlphaSQ2(10), 1e-12)
	assert.InDelta(t, 0.21, pdf.AlphaSQ2(100), 1e-12, "threshold takes the upper branch")
	assert.InDelta(t, 0.155, pdf.AlphaSQ2(1000), 1e-12)
	assert.InDelta(t, 0.1, pdf.AlphaSQ2(1e6), 1e-12)
}

func TestPDF_SatisfiesGridPDF(t *testing.T) {
	pdf, err := Load(writeSet(t, testMember), "toy", 0)
	require.NoError(t, err)

	var _ grid.PDF = pdf
	lumi := grid.LuminosityFromPDF(pdf)
	assert.InDelta(t, pdf.XFXQ2(1, 0.1, 50), lumi.XFX1(1, 0.1, 50), 0)
}

func TestMember_Malformed(t *testing.T) {
	cases := map[string]string{
		"no header separator": "Format: lhagrid1\n",
		"short block":         "Format: lhagrid1\n---\n0.1 1.0\n1.0 10.0\n21\n1\n2\n---\n",
		"wrong column count":  "Format: lhagrid1\n---\n0.1 1.0\n1.0 10.0\n21\n1 2\n1\n1\n1\n---\n",
		"unsupported format":  "Format: lhagrid2\n---\n",
		"no blocks":           "Format: lhagrid1\n---\n",
	}
	for name, member := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeSet(t, member), "toy", 0)
			assert.Error(t, err)
		})
	}
}

func TestMember_OutOfRange(t *testing.T) {
	s, err := Open(writeSet(t, testMember), "toy")
	require.NoError(t, err)
	_, err = s.Member(3)
	assert.ErrorContains(t, err, "out of range")
}
