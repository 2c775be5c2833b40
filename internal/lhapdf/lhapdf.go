// Package lhapdf reads LHAPDF6 parton distribution sets in the lhagrid1
// format and evaluates them.
//
// A set lives in <data>/<name>/ with a <name>.info YAML file and one
// <name>_NNNN.dat file per member. Densities are interpolated bilinearly in
// (log x, log Q²) and clamped to the grid edges; the strong coupling is
// interpolated linearly in log Q² from the AlphaS_Qs/AlphaS_Vals table.
package lhapdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrSetNotFound is returned when a set directory has no info file.
var ErrSetNotFound = errors.New("pdf set not found")

// Info is the subset of a set's .info file pinefarm uses.
type Info struct {
	SetDesc    string    `yaml:"SetDesc"`
	SetIndex   int       `yaml:"SetIndex"`
	NumMembers int       `yaml:"NumMembers"`
	Flavors    []int     `yaml:"Flavors"`
	OrderQCD   int       `yaml:"OrderQCD"`
	XMin       float64   `yaml:"XMin"`
	XMax       float64   `yaml:"XMax"`
	QMin       float64   `yaml:"QMin"`
	QMax       float64   `yaml:"QMax"`
	MZ         float64   `yaml:"MZ"`
	AlphaSMZ   float64   `yaml:"AlphaS_MZ"`
	AlphaSQs   []float64 `yaml:"AlphaS_Qs"`
	AlphaSVals []float64 `yaml:"AlphaS_Vals"`
}

// Set is an opened PDF set.
type Set struct {
	Name string
	Dir  string
	Info Info
}

// Open reads the info file of set name below the LHAPDF data directory.
func Open(dataDir, name string) (*Set, error) {
	dir := filepath.Join(dataDir, name)
	path := filepath.Join(dir, name+".info")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s in %s", ErrSetNotFound, name, dataDir)
	}
	if err != nil {
		return nil, err
	}

	var info Info
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(info.AlphaSQs) != len(info.AlphaSVals) {
		return nil, fmt.Errorf("parse %s: %d AlphaS_Qs but %d AlphaS_Vals", path, len(info.AlphaSQs), len(info.AlphaSVals))
	}
	return &Set{Name: name, Dir: dir, Info: info}, nil
}

// MemberPath returns the data file of member n.
func (s *Set) MemberPath(n int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_%04d.dat", s.Name, n))
}

// Member loads member n.
func (s *Set) Member(n int) (*PDF, error) {
	if s.Info.NumMembers > 0 && (n < 0 || n >= s.Info.NumMembers) {
		return nil, fmt.Errorf("member %d out of range for %s with %d members", n, s.Name, s.Info.NumMembers)
	}
	f, err := os.Open(s.MemberPath(n))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	blocks, err := parseMember(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.MemberPath(n), err)
	}
	return &PDF{set: s, member: n, blocks: blocks}, nil
}

// Load opens set name and loads one member.
func Load(dataDir, name string, member int) (*PDF, error) {
	s, err := Open(dataDir, name)
	if err != nil {
		return nil, err
	}
	return s.Member(member)
}
