package nnlojet

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nnpdf/pinefarm/internal/schema"
)

// Pinecard defaults applied to keys a card leaves out.
const (
	DefaultPDF          = "NNPDF40_nnlo_as_01180"
	DefaultTechcut      = 1e-7
	DefaultMultiChannel = 3
)

// Entry is one key of an OrderedMap.
type Entry struct {
	Key   string
	Value string
}

// OrderedMap is a YAML mapping of scalars that keeps its document order.
// Values are the scalar text as written.
type OrderedMap []Entry

// Get returns the value of key.
func (m OrderedMap) Get(key string) (string, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Set replaces the value of key in place, or appends it.
func (m *OrderedMap) Set(key, value string) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, Entry{Key: key, Value: value})
}

// Keys returns the keys in order.
func (m OrderedMap) Keys() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Key
	}
	return keys
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *OrderedMap) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	out := make(OrderedMap, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: %s must be a scalar", v.Line, k.Value)
		}
		out = append(out, Entry{Key: k.Value, Value: v.Value})
	}
	*m = out
	return nil
}

// MarshalYAML implements yaml.Marshaler. Values are written plain.
func (m OrderedMap) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range m {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Value})
	}
	return n, nil
}

// Process is the PROCESS block.
type Process struct {
	Proc  string  `yaml:"proc"`
	Sqrts float64 `yaml:"sqrts"`
}

// Selector is a cut on one observable.
type Selector struct {
	Observable string   `yaml:"observable"`
	Min        *float64 `yaml:"min,omitempty"`
	Max        *float64 `yaml:"max,omitempty"`
}

// String renders the selector as a runcard line without indentation.
func (s Selector) String() string {
	var b strings.Builder
	b.WriteString("select ")
	b.WriteString(s.Observable)
	b.WriteString(" ")
	if s.Min != nil {
		b.WriteString(" min = " + formatFloat(*s.Min))
	}
	if s.Max != nil {
		b.WriteString(" max = " + formatFloat(*s.Max))
	}
	return b.String()
}

// ExtraSelector is a histogram selector, either structured or a raw
// runcard line such as "reject abs_ylp min = 1.37 max = 1.52".
type ExtraSelector struct {
	Selector *Selector
	Raw      string
}

func (e ExtraSelector) String() string {
	if e.Selector != nil {
		return e.Selector.String()
	}
	return e.Raw
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *ExtraSelector) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		e.Raw = n.Value
		return nil
	}
	var s Selector
	if err := n.Decode(&s); err != nil {
		return err
	}
	e.Selector = &s
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (e ExtraSelector) MarshalYAML() (any, error) {
	if e.Selector != nil {
		return e.Selector, nil
	}
	return e.Raw, nil
}

// Histogram is one observable histogram.
type Histogram struct {
	Name           string          `yaml:"name"`
	Observable     string          `yaml:"observable"`
	Bins           []float64       `yaml:"bins"`
	ExtraSelectors []ExtraSelector `yaml:"extra_selectors,omitempty"`
	Pineappl       *bool           `yaml:"pineappl,omitempty"`
}

// Grid reports whether the histogram is filled into an interpolation grid.
func (h Histogram) Grid() bool {
	return h.Pineappl == nil || *h.Pineappl
}

func (h Histogram) definition() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s > %s %s", indent, h.Observable, h.Name, formatBins(h.Bins))
	if h.Grid() {
		b.WriteString(" grid=pine")
	}
	if len(h.ExtraSelectors) > 0 {
		lines := make([]string, len(h.ExtraSelectors))
		for i, s := range h.ExtraSelectors {
			lines[i] = s.String()
		}
		fmt.Fprintf(&b, "\n%sHISTOGRAM_SELECTORS\n%s%s", indent, indent+indent,
			strings.Join(lines, "\n"+indent+indent))
		fmt.Fprintf(&b, "\n%sEND_HISTOGRAM_SELECTORS\n", indent)
	}
	return b.String()
}

// Pinecard describes one NNLOJET run. Field order is the order in which
// autogenerated cards are written.
type Pinecard struct {
	Runname      string      `yaml:"runname"`
	Process      Process     `yaml:"process"`
	PDF          string      `yaml:"pdf"`
	Techcut      float64     `yaml:"techcut"`
	Histograms   []Histogram `yaml:"histograms"`
	MultiChannel int         `yaml:"multi_channel"`
	Channels     OrderedMap  `yaml:"channels"`
	Parameters   OrderedMap  `yaml:"parameters,omitempty"`
	Selectors    []Selector  `yaml:"selectors,omitempty"`
	Scales       OrderedMap  `yaml:"scales,omitempty"`
}

func newPinecard() *Pinecard {
	return &Pinecard{
		PDF:          DefaultPDF,
		Techcut:      DefaultTechcut,
		MultiChannel: DefaultMultiChannel,
	}
}

// ParsePinecard validates and decodes a pinecard.
func ParsePinecard(reg *schema.Registry, filename string, data []byte) (*Pinecard, error) {
	if err := reg.Validate(schema.Pinecard, filename, data); err != nil {
		return nil, err
	}
	p := newPinecard()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return p, nil
}

// LoadPinecard reads the pinecard at path.
func LoadPinecard(reg *schema.Registry, path string) (*Pinecard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePinecard(reg, path, data)
}

// Marshal writes the pinecard as YAML preceded by an optional comment.
func (p *Pinecard) Marshal(comment string) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(p); err != nil {
		return nil, err
	}
	doc.HeadComment = comment
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(4)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
