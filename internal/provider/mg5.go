package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nnpdf/pinefarm/internal/grid"
	"github.com/nnpdf/pinefarm/internal/lhapdf"
	"github.com/nnpdf/pinefarm/internal/results"
)

// Files of an MG5 runcard folder.
const (
	OutputCard    = "output.txt"
	LaunchCard    = "launch.txt"
	AnalysisFile  = "analysis.f"
	VariablesFile = "variables.json"
)

// mg5 drives MG5_aMC@NLO: output, patches, analysis, cuts and launch.
type mg5 struct {
	*base
	cuts    map[CutKind][]UserCut
	patches []string
	tauMin  *float64
}

// Integrated reports that MG5 histograms are bin integrated.
func (m *mg5) Integrated() bool { return true }

// mg5Dir is the process folder MG5 creates in the output folder.
func (m *mg5) mg5Dir() string { return filepath.Join(m.dest, m.env.Dataset) }

func (m *mg5) runMG5(ctx context.Context, card, logName string) error {
	cmd := exec.CommandContext(ctx, m.env.Config.Commands.MG5, card)
	cmd.Dir = m.dest
	return runLogged(cmd, filepath.Join(m.dest, logName), m.log)
}

func (m *mg5) patch(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, m.env.Config.Commands.Patch, "-p1")
	cmd.Dir = m.mg5Dir()
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("patch: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// readTemplate reads a runcard file and replaces @OUTPUT@ with the dataset.
func (m *mg5) readTemplate(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(m.source(), name))
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(data), "@OUTPUT@", m.env.Dataset), nil
}

func (m *mg5) Execute(ctx context.Context) error {
	output, err := m.readTemplate(OutputCard)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(m.dest, OutputCard), []byte(output), 0o644); err != nil {
		return err
	}
	m.log.Info("creating process folder", zap.String("dest", m.dest))
	if err := m.runMG5(ctx, OutputCard, "output.log"); err != nil {
		return err
	}

	if err := m.applyRuncardPatches(ctx); err != nil {
		return err
	}
	if err := m.installAnalysis(); err != nil {
		return err
	}

	launch, err := m.launchCard()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(m.dest, LaunchCard), []byte(launch), 0o644); err != nil {
		return err
	}

	if err := m.applyDirectives(ctx, launch); err != nil {
		return err
	}

	m.log.Info("launching", zap.String("dest", m.dest))
	return m.runMG5(ctx, LaunchCard, "launch.log")
}

func (m *mg5) applyRuncardPatches(ctx context.Context) error {
	patches, err := filepath.Glob(filepath.Join(m.source(), "*.patch"))
	if err != nil {
		return err
	}
	slices.Sort(patches)
	for _, p := range patches {
		text, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if err := m.patch(ctx, string(text)); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// installAnalysis copies analysis.f into the process folder and points the
// analysis card at it.
func (m *mg5) installAnalysis() error {
	analysis, err := os.ReadFile(filepath.Join(m.source(), AnalysisFile))
	if err != nil {
		return err
	}
	dst := filepath.Join(m.mg5Dir(), "FixedOrderAnalysis", m.env.Dataset+".f")
	if err := os.WriteFile(dst, analysis, 0o644); err != nil {
		return err
	}
	cardPath := filepath.Join(m.mg5Dir(), "Cards", "FO_analyse_card.dat")
	card, err := os.ReadFile(cardPath)
	if err != nil {
		return err
	}
	updated := strings.ReplaceAll(string(card), "analysis_HwU_template", m.env.Dataset)
	return os.WriteFile(cardPath, []byte(updated), 0o644)
}

// launchCard fills the launch template. Variables are the scalar theory
// parameters, overridden by the runcard's variables.json, and LHAPDF_ID.
func (m *mg5) launchCard() (string, error) {
	launch, err := m.readTemplate(LaunchCard)
	if err != nil {
		return "", err
	}
	vars, err := m.variables()
	if err != nil {
		return "", err
	}
	for name, value := range vars {
		launch = strings.ReplaceAll(launch, "@"+name+"@", value)
	}
	return launch, nil
}

func (m *mg5) variables() (map[string]string, error) {
	vars := make(map[string]string)
	for k, v := range m.env.Theory {
		if s, ok := scalarString(v); ok {
			vars[k] = s
		}
	}

	data, err := os.ReadFile(filepath.Join(m.source(), VariablesFile))
	switch {
	case err == nil:
		var overlay map[string]any
		if err := json.Unmarshal(data, &overlay); err != nil {
			return nil, fmt.Errorf("%s: %w", VariablesFile, err)
		}
		for k, v := range overlay {
			s, ok := scalarString(v)
			if !ok {
				return nil, fmt.Errorf("%s: %s is not a scalar", VariablesFile, k)
			}
			vars[k] = s
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	set, err := lhapdf.Open(m.env.Config.Paths.LHAPDFData, m.env.PDF)
	if err != nil {
		return nil, err
	}
	vars["LHAPDF_ID"] = strconv.Itoa(set.Info.SetIndex)
	return vars, nil
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case bool:
		if x {
			return "True", true
		}
		return "False", true
	default:
		return "", false
	}
}

// applyDirectives handles the user cut, tau_min and patch directives of the
// launch card.
func (m *mg5) applyDirectives(ctx context.Context, launch string) error {
	types, err := loadCutTypes()
	if err != nil {
		return err
	}
	d, err := parseLaunch(launch, types)
	if err != nil {
		return err
	}
	for _, name := range d.unknown {
		m.log.Warn("unknown cut type, ignoring", zap.String("cut", name))
	}

	m.cuts = d.cuts
	cutsFile := filepath.Join(m.mg5Dir(), "SubProcesses", "cuts.f")
	for _, kind := range []CutKind{LeptonCut, JetCut} {
		if err := ApplyUserCuts(cutsFile, kind, d.cuts[kind]); err != nil {
			return err
		}
	}

	if d.tauMin != nil {
		text, err := patchText("set_tau_min")
		if err != nil {
			return err
		}
		text = strings.ReplaceAll(text, "@TAU_MIN@", fortranFloat(*d.tauMin))
		if err := os.WriteFile(filepath.Join(m.dest, "set_tau_min.patch"), []byte(text), 0o644); err != nil {
			return err
		}
		if err := m.patch(ctx, text); err != nil {
			return fmt.Errorf("set_tau_min: %w", err)
		}
		m.tauMin = d.tauMin
	}

	for _, name := range d.patches {
		text, err := patchText(name)
		if err != nil {
			return err
		}
		if err := m.patch(ctx, text); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		m.patches = append(m.patches, name)
	}
	return nil
}

func (m *mg5) globOne(pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(m.mg5Dir(), pattern))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no %s in %s", pattern, m.mg5Dir())
	}
	slices.Sort(matches)
	return matches[0], nil
}

// ExtractGrid merges the per-observable grids of the first run and stores
// the cards, patches and cuts that produced them.
func (m *mg5) ExtractGrid(ctx context.Context) error {
	if m.reused {
		if err := os.Remove(m.GridPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	paths, err := filepath.Glob(filepath.Join(m.mg5Dir(), "Events", "run_01*", "amcblast_obs_*.pineappl"))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no grids produced in %s", m.mg5Dir())
	}
	slices.Sort(paths)

	g, err := grid.ReadFile(paths[0])
	if err != nil {
		return err
	}
	for _, p := range paths[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := grid.ReadFile(p)
		if err != nil {
			return err
		}
		if err := g.Merge(next); err != nil {
			return fmt.Errorf("merge %s: %w", filepath.Base(p), err)
		}
	}
	g.Optimize()
	m.log.Debug("merged grids", zap.Int("files", len(paths)), zap.Int("bins", g.Bins()))

	banner, err := m.globOne(filepath.Join("Events", "run_01*", "run_01*_tag_1_banner.txt"))
	if err != nil {
		return err
	}
	entries := map[string]string{"runcard": banner}
	for _, card := range []string{OutputCard, LaunchCard} {
		entries[card] = filepath.Join(m.dest, card)
	}
	for key, path := range entries {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		g.SetKeyValue(key, string(data))
	}

	g.SetKeyValue("patches", strings.Join(m.patches, "\n"))
	tau := ""
	if m.tauMin != nil {
		tau = strconv.FormatFloat(*m.tauMin, 'g', -1, 64)
	}
	g.SetKeyValue("tau_min", tau)
	g.SetKeyValue("user_lepton_cuts", joinCuts(m.cuts[LeptonCut]))
	g.SetKeyValue("user_jet_cuts", joinCuts(m.cuts[JetCut]))
	return g.WriteFile(m.GridPath())
}

func joinCuts(cuts []UserCut) string {
	s := make([]string, len(cuts))
	for i, c := range cuts {
		s[i] = c.String()
	}
	return strings.Join(s, "\n")
}

func (m *mg5) CollectResults(context.Context) (*results.Table, error) {
	path, err := m.globOne(filepath.Join("Events", "run_01*", "MADatNLO.HwU"))
	if err != nil {
		return nil, err
	}
	return results.ParseHwUFile(path)
}

// CollectVersions reads the MG5_aMC VERSION file. A missing file is
// reported with an empty version.
func (m *mg5) CollectVersions(context.Context) (map[string]string, error) {
	path := filepath.Join(m.env.Config.Paths.MG5AMC, "VERSION")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		m.log.Warn("VERSION file not found", zap.String("path", path))
		return map[string]string{"mg5amc_version": ""}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]string{"mg5amc_version": strings.TrimSpace(string(data))}, nil
}
