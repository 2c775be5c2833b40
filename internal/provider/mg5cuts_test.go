package provider

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeCuts = `      logical function passcuts_leptons(p)
      implicit none
d2
d3
d4
d5
d6
d7
c apply the charged lepton cuts
      passcuts_leptons = .true.
      end
      logical function passcuts_jets(p)
      implicit none
e2
e3
e4
e5
e6
e7
e8
e9
c Apply the jet cuts
      passcuts_jets = .true.
      end
`

func embedded(t *testing.T, name string) string {
	t.Helper()
	data, err := mg5Data.ReadFile("mg5data/" + name)
	require.NoError(t, err)
	return string(data)
}

func TestApplyUserCuts_Lepton(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuts.f")
	require.NoError(t, os.WriteFile(path, []byte(fakeCuts), 0o644))

	cuts := []UserCut{{Name: "mmllmax", Value: "116"}, {Name: "ptl1min", Value: "25.5"}}
	require.NoError(t, ApplyUserCuts(path, LeptonCut, cuts))

	got, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.SplitAfter(fakeCuts, "\n")
	var want strings.Builder
	for _, l := range lines[:7] {
		want.WriteString(l)
	}
	want.WriteString(embedded(t, "cuts/variables/lepton/ptl.f"))
	want.WriteString(embedded(t, "cuts/variables/lepton/mmll.f"))
	want.WriteString(lines[7])
	want.WriteString("\n")
	want.WriteString(strings.ReplaceAll(embedded(t, "cuts/code/lepton/mmllmax.f"), "{}", "116d0"))
	want.WriteString(strings.ReplaceAll(embedded(t, "cuts/code/lepton/ptl1min.f"), "{}", "25.5d0"))
	for _, l := range lines[8:] {
		want.WriteString(l)
	}
	assert.Equal(t, want.String(), string(got))
}

func TestApplyUserCuts_Jet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuts.f")
	require.NoError(t, os.WriteFile(path, []byte(fakeCuts), 0o644))

	require.NoError(t, ApplyUserCuts(path, JetCut, []UserCut{{Name: "ptj1min", Value: "30"}}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(got)
	decl := strings.Index(s, embedded(t, "cuts/variables/jet/ptj.f"))
	code := strings.Index(s, "ptj1 .lt. 30d0")
	marker := strings.Index(s, "c Apply the jet cuts")
	header := strings.Index(s, "logical function passcuts_jets")
	require.Positive(t, decl)
	assert.Less(t, header, decl)
	assert.Less(t, decl, code)
	assert.Less(t, code, marker)
	assert.NotContains(t, s, "yj1", "only matching declarations are inserted")
}

func TestApplyUserCuts_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuts.f")
	require.NoError(t, os.WriteFile(path, []byte("      end\n"), 0o644))

	assert.NoError(t, ApplyUserCuts(path, LeptonCut, nil), "no cuts leaves the file alone")
	assert.ErrorContains(t, ApplyUserCuts(path, LeptonCut, []UserCut{{Name: "ptl1min", Value: "1"}}), "passcuts_leptons")

	require.NoError(t, os.WriteFile(path, []byte(fakeCuts), 0o644))
	assert.Error(t, ApplyUserCuts(path, LeptonCut, []UserCut{{Name: "ptl1min", Value: "abc"}}))
	assert.Error(t, ApplyUserCuts(path, CutKind("photon"), []UserCut{{Name: "x", Value: "1"}}))
}

func TestParseLaunch(t *testing.T) {
	types, err := loadCutTypes()
	require.NoError(t, err)

	launch := strings.Join([]string{
		"launch ATLAS_TTB",
		"set lpp1 1",
		"#user_defined_cut set mmllmax = 116.0",
		"#user_defined_cut set ptj1min  =  -30",
		"#user_defined_cut set atlasiso = True",
		"#user_defined_cut set ptl1min = abc",
		"#user_defined_tau_min 0.001",
		"#enable_patch fix_z_width",
		"done",
	}, "\n")
	d, err := parseLaunch(launch, types)
	require.NoError(t, err)
	assert.Equal(t, []UserCut{{Name: "mmllmax", Value: "116.0"}}, d.cuts[LeptonCut])
	assert.Equal(t, []UserCut{{Name: "ptj1min", Value: "-30"}}, d.cuts[JetCut])
	assert.Equal(t, []string{"atlasiso"}, d.unknown)
	require.NotNil(t, d.tauMin)
	assert.Equal(t, 0.001, *d.tauMin)
	assert.Equal(t, []string{"fix_z_width"}, d.patches)

	_, err = parseLaunch("#user_defined_tau_min small", types)
	assert.ErrorContains(t, err, "tau_min")
}

func TestFortranValues(t *testing.T) {
	for in, want := range map[string]string{"True": ".true.", "False": ".false.", "25": "25d0", "-2.5": "-2.5d0"} {
		got, err := fortranValue(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := fortranValue("x")
	assert.Error(t, err)

	assert.Equal(t, "0.001d0", fortranFloat(0.001))
	assert.Equal(t, "100.0d0", fortranFloat(100))
	assert.Equal(t, "1d-05", fortranFloat(1e-5))
}

func TestPatchText(t *testing.T) {
	text, err := patchText("set_tau_min")
	require.NoError(t, err)
	assert.Contains(t, text, "@TAU_MIN@")

	_, err = patchText("missing")
	assert.ErrorContains(t, err, "does not exist")
}
