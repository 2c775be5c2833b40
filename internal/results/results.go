// Package results holds the standardized results of a generator run and
// compares them with the predictions of the interpolation grid.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/floats"
)

// LogFile is the name of the comparison log written next to a grid.
const LogFile = "results.log"

// Row is the generator result for one bin. SVMin and SVMax are the scale
// variation envelope.
type Row struct {
	Result float64 `json:"result"`
	Error  float64 `json:"error"`
	SVMin  float64 `json:"sv_min"`
	SVMax  float64 `json:"sv_max"`
}

// Table is one Row per bin.
type Table struct {
	Rows []Row `json:"rows"`
}

// Len returns the number of bins.
func (t *Table) Len() int { return len(t.Rows) }

// Results returns the central values.
func (t *Table) Results() []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Result
	}
	return out
}

// FromPredictions builds a table from a central prediction and its scale
// variations. Errors are zero; the envelope spans every variation, central
// value included.
func FromPredictions(central []float64, variations ...[]float64) (*Table, error) {
	t := &Table{Rows: make([]Row, len(central))}
	for i, c := range central {
		t.Rows[i] = Row{Result: c, SVMin: c, SVMax: c}
	}
	for j, v := range variations {
		if len(v) != len(central) {
			return nil, fmt.Errorf("variation %d has %d bins, want %d", j, len(v), len(central))
		}
		for i, p := range v {
			t.Rows[i].SVMin = math.Min(t.Rows[i].SVMin, p)
			t.Rows[i].SVMax = math.Max(t.Rows[i].SVMax, p)
		}
	}
	return t, nil
}

// Comparison is the grid prediction next to the generator result for one bin.
type Comparison struct {
	Bin    int
	Left   float64
	Right  float64
	Grid   float64
	Row    Row
	Sigmas float64 // |grid-result| / error, NaN without error
	PerMil float64 // (grid/result - 1) * 1000
}

// MarshalJSON writes NaN ratios as null.
func (c Comparison) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Bin    int      `json:"bin"`
		Left   float64  `json:"left"`
		Right  float64  `json:"right"`
		Grid   float64  `json:"grid"`
		Row    Row      `json:"result"`
		Sigmas *float64 `json:"sigmas"`
		PerMil *float64 `json:"per_mille"`
	}{c.Bin, c.Left, c.Right, c.Grid, c.Row, finite(c.Sigmas), finite(c.PerMil)})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ErrLength is returned when grid and table disagree on the bin count.
var ErrLength = errors.New("bin count mismatch")

// Compare lines up grid predictions with a results table. left and right are
// the bin limits of the first dimension; either may be nil.
func Compare(predictions []float64, t *Table, left, right []float64) ([]Comparison, error) {
	if len(predictions) != t.Len() {
		return nil, fmt.Errorf("%w: grid has %d bins, results have %d", ErrLength, len(predictions), t.Len())
	}

	diff := make([]float64, len(predictions))
	floats.SubTo(diff, predictions, t.Results())

	out := make([]Comparison, len(predictions))
	for i, p := range predictions {
		row := t.Rows[i]
		c := Comparison{Bin: i, Grid: p, Row: row, Sigmas: math.NaN(), PerMil: math.NaN()}
		if i < len(left) {
			c.Left = left[i]
		}
		if i < len(right) {
			c.Right = right[i]
		}
		if row.Error != 0 {
			c.Sigmas = math.Abs(diff[i]) / row.Error
		}
		if row.Result != 0 {
			c.PerMil = (p/row.Result - 1) * 1000
		}
		out[i] = c
	}
	return out, nil
}

// Render writes the comparison as an aligned text table.
func Render(w io.Writer, cmp []Comparison) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "bin\tleft\tright\tgrid\tresult\terror\tsigma\tper mille\tsv_min\tsv_max\t")
	for _, c := range cmp {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			c.Bin, num(c.Left), num(c.Right), num(c.Grid),
			num(c.Row.Result), num(c.Row.Error),
			fixed(c.Sigmas), fixed(c.PerMil),
			num(c.Row.SVMin), num(c.Row.SVMax))
	}
	return tw.Flush()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'e', 7, 64)
}

func fixed(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// WriteLog renders the comparison into path.
func WriteLog(path string, cmp []Comparison) error {
	var b strings.Builder
	if err := Render(&b, cmp); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
