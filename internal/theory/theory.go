// Package theory loads theory cards.
package theory

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nnpdf/pinefarm/internal/schema"
)

// Card is a theory card. Keys are kept as written; values are the decoded
// YAML scalars, except CKM which is always a []float64 when present.
type Card map[string]any

// Load reads and validates the theory card at path.
func Load(reg *schema.Registry, path string) (Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(reg, path, data)
}

// Parse validates and decodes a theory card.
func Parse(reg *schema.Registry, filename string, data []byte) (Card, error) {
	if err := reg.Validate(schema.Theory, filename, data); err != nil {
		return nil, err
	}
	var c Card
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	if err := c.normalizeCKM(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return c, nil
}

// normalizeCKM turns a whitespace separated CKM string into numbers.
func (c Card) normalizeCKM() error {
	raw, ok := c["CKM"]
	if !ok {
		return nil
	}
	var out []float64
	switch v := raw.(type) {
	case string:
		for _, f := range strings.Fields(v) {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return fmt.Errorf("CKM: %w", err)
			}
			out = append(out, x)
		}
	case []any:
		for _, e := range v {
			x, ok := toFloat(e)
			if !ok {
				return fmt.Errorf("CKM: %v is not a number", e)
			}
			out = append(out, x)
		}
	case []float64:
		out = v
	default:
		return fmt.Errorf("CKM: unexpected %T", raw)
	}
	c["CKM"] = out
	return nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// ID is the theory id.
func (c Card) ID() int {
	id, _ := c.Float("ID")
	return int(id)
}

// PTO is the perturbative order, zero when absent.
func (c Card) PTO() int {
	pto, _ := c.Float("PTO")
	return int(pto)
}

// Float returns a numeric entry.
func (c Card) Float(key string) (float64, bool) {
	return toFloat(c[key])
}

// Has reports whether key is present.
func (c Card) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// CKM returns the CKM entries, or nil.
func (c Card) CKM() []float64 {
	v, _ := c["CKM"].([]float64)
	return v
}

// Clone returns a shallow copy safe to modify at the top level.
func (c Card) Clone() Card {
	out := make(Card, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
