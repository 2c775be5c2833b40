package provider

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

//go:embed mg5data
var mg5Data embed.FS

// CutKind says which cuts.f routine a user cut belongs to.
type CutKind string

const (
	LeptonCut CutKind = "lepton"
	JetCut    CutKind = "jet"
)

// UserCut is a `#user_defined_cut set NAME = VALUE` directive.
type UserCut struct {
	Name  string
	Value string
}

func (c UserCut) String() string { return c.Name + "=" + c.Value }

var (
	userCutPattern = regexp.MustCompile(`^#user_defined_cut set (\w+)\s+=\s+([+-]?\d+(?:\.\d+)?|True|False)$`)
	tauMinPattern  = regexp.MustCompile(`^#user_defined_tau_min (.*)$`)
	patchPattern   = regexp.MustCompile(`^#enable_patch (.*)$`)
)

// cutSite locates where declarations and code of one cut kind go in cuts.f.
type cutSite struct {
	function   string
	declOffset int
	codeMarker string
}

var cutSites = map[CutKind]cutSite{
	LeptonCut: {function: "logical function passcuts_leptons", declOffset: 7, codeMarker: "c apply the charged lepton cuts"},
	JetCut:    {function: "logical function passcuts_jets", declOffset: 9, codeMarker: "c Apply the jet cuts"},
}

func loadCutTypes() (map[string]CutKind, error) {
	data, err := mg5Data.ReadFile("mg5data/cut_type.json")
	if err != nil {
		return nil, err
	}
	var types map[string]CutKind
	if err := json.Unmarshal(data, &types); err != nil {
		return nil, fmt.Errorf("cut_type.json: %w", err)
	}
	return types, nil
}

// launchDirectives are the pinefarm directives found in a launch card.
type launchDirectives struct {
	cuts    map[CutKind][]UserCut
	unknown []string
	tauMin  *float64
	patches []string
}

func parseLaunch(launch string, types map[string]CutKind) (*launchDirectives, error) {
	d := &launchDirectives{cuts: make(map[CutKind][]UserCut)}
	for _, line := range strings.Split(launch, "\n") {
		if m := userCutPattern.FindStringSubmatch(line); m != nil {
			kind, ok := types[m[1]]
			if !ok {
				d.unknown = append(d.unknown, m[1])
				continue
			}
			d.cuts[kind] = append(d.cuts[kind], UserCut{Name: m[1], Value: m[2]})
			continue
		}
		if m := tauMinPattern.FindStringSubmatch(line); m != nil {
			v, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64)
			if err != nil {
				return nil, fmt.Errorf("user defined tau_min %q is not a number", m[1])
			}
			d.tauMin = &v
			continue
		}
		if m := patchPattern.FindStringSubmatch(line); m != nil {
			d.patches = append(d.patches, m[1])
		}
	}
	return d, nil
}

// fortranValue maps a cut value to Fortran syntax.
func fortranValue(v string) (string, error) {
	switch v {
	case "True":
		return ".true.", nil
	case "False":
		return ".false.", nil
	}
	if _, err := strconv.ParseFloat(v, 64); err != nil {
		return "", fmt.Errorf("cut value %q not understood", v)
	}
	return v + "d0", nil
}

// fortranFloat renders v as a double precision literal.
func fortranFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if strings.Contains(s, "e") {
		return strings.Replace(s, "e", "d", 1)
	}
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s + "d0"
}

func findMarker(lines []string, marker string) (int, error) {
	for i, l := range lines {
		if strings.Contains(l, marker) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("insertion marker %q not found in cuts file", marker)
}

// ApplyUserCuts inserts the declarations and the code of cuts into the
// MG5 cuts file at path.
//
// Declarations of every variable file whose name prefixes a cut go a fixed
// number of lines below the function header. The cut code goes above the
// kind's comment marker, preceded by an empty line, in directive order.
func ApplyUserCuts(cutsFile string, kind CutKind, cuts []UserCut) error {
	if len(cuts) == 0 {
		return nil
	}
	site, ok := cutSites[kind]
	if !ok {
		return fmt.Errorf("unknown cut kind %q", kind)
	}
	data, err := os.ReadFile(cutsFile)
	if err != nil {
		return err
	}
	lines := strings.SplitAfter(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	pos, err := findMarker(lines, site.function)
	if err != nil {
		return err
	}
	pos += site.declOffset
	varDir := path.Join("mg5data/cuts/variables", string(kind))
	entries, err := fs.ReadDir(mg5Data, varDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		stem := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		if !slices.ContainsFunc(cuts, func(c UserCut) bool { return strings.HasPrefix(c.Name, stem) }) {
			continue
		}
		decl, err := mg5Data.ReadFile(path.Join(varDir, e.Name()))
		if err != nil {
			return err
		}
		lines = slices.Insert(lines, pos, string(decl))
	}

	pos, err = findMarker(lines, site.codeMarker)
	if err != nil {
		return err
	}
	pos++
	lines = slices.Insert(lines, pos-1, "\n")

	codeDir := path.Join("mg5data/cuts/code", string(kind))
	for i := len(cuts) - 1; i >= 0; i-- {
		value, err := fortranValue(cuts[i].Value)
		if err != nil {
			return err
		}
		tmpl, err := mg5Data.ReadFile(path.Join(codeDir, cuts[i].Name+".f"))
		if err != nil {
			return fmt.Errorf("no code for cut %s: %w", cuts[i].Name, err)
		}
		lines = slices.Insert(lines, pos, strings.ReplaceAll(string(tmpl), "{}", value))
	}

	return os.WriteFile(cutsFile, []byte(strings.Join(lines, "")), 0o644)
}

// patchText returns the embedded patch name.
func patchText(name string) (string, error) {
	data, err := mg5Data.ReadFile(path.Join("mg5data/patches", name+".patch"))
	if err != nil {
		return "", fmt.Errorf("patch %q requested, but does not exist", name)
	}
	return string(data), nil
}
