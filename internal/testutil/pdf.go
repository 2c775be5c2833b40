package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// FlatPDF is the name of the set written by WriteFlatPDF.
const FlatPDF = "flat"

// FlatPDFIndex is the LHAPDF SetIndex of the flat set.
const FlatPDFIndex = 31000

// FlatAlphaS is the constant strong coupling of the flat set.
const FlatAlphaS = 0.118

// FlatPDFValues are the constant x f(x, Q²) of every flavour of the flat
// set. Flavours not listed evaluate to zero.
var FlatPDFValues = map[int]float64{-2: 1, -1: 2, 1: 3, 2: 4, 21: 5}

var flatPIDs = []int{-2, -1, 1, 2, 21}

// WriteFlatPDF writes a single-member LHAPDF set below dataDir whose
// densities and coupling do not depend on x or Q².
func WriteFlatPDF(t testing.TB, dataDir string) {
	t.Helper()
	dir := filepath.Join(dataDir, FlatPDF)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	info := fmt.Sprintf(`SetDesc: "flat test set"
SetIndex: %d
NumMembers: 1
Flavors: [-2, -1, 1, 2, 21]
OrderQCD: 0
XMin: 1.0e-5
XMax: 1.0
QMin: 1.0
QMax: 1000.0
AlphaS_Qs: [1.0, 1000.0]
AlphaS_Vals: [%g, %g]
`, FlatPDFIndex, FlatAlphaS, FlatAlphaS)

	var row []string
	for _, pid := range flatPIDs {
		row = append(row, fmt.Sprint(FlatPDFValues[pid]))
	}
	var b strings.Builder
	b.WriteString("PdfType: central\nFormat: lhagrid1\n---\n")
	b.WriteString("1.0e-5 0.1 1.0\n1.0 1000.0\n-2 -1 1 2 21\n")
	for i := 0; i < 3*2; i++ {
		b.WriteString(strings.Join(row, " ") + "\n")
	}
	b.WriteString("---\n")

	require.NoError(t, os.WriteFile(filepath.Join(dir, FlatPDF+".info"), []byte(info), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FlatPDF+"_0000.dat"), []byte(b.String()), 0o644))
}
