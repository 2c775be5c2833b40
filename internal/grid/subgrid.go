package grid

import "fmt"

// Mu2 is one scale node: renormalization and factorization scale squared.
type Mu2 struct {
	Ren float64
	Fac float64
}

// Subgrid is a dense (mu2, x1, x2) table of interpolation weights.
// Values are stored row-major in a flat slice of length len(mu2)*len(x1)*len(x2).
//
// The zero value is an empty subgrid.
type Subgrid struct {
	mu2    []Mu2
	x1     []float64
	x2     []float64
	values []float64
}

// NewSubgrid creates a zero-filled subgrid over the given nodes.
// The node slices are copied.
func NewSubgrid(mu2 []Mu2, x1, x2 []float64) *Subgrid {
	return &Subgrid{
		mu2:    append([]Mu2(nil), mu2...),
		x1:     append([]float64(nil), x1...),
		x2:     append([]float64(nil), x2...),
		values: make([]float64, len(mu2)*len(x1)*len(x2)),
	}
}

// NewSubgridFromArray creates a subgrid from a flat row-major array.
// Returns a shape mismatch error if len(values) != len(mu2)*len(x1)*len(x2).
func NewSubgridFromArray(mu2 []Mu2, x1, x2, values []float64) (*Subgrid, error) {
	want := len(mu2) * len(x1) * len(x2)
	if len(values) != want {
		return nil, newError(ErrCodeShapeMismatch,
			"subgrid array has %d values, nodes require %d (%dx%dx%d)",
			len(values), want, len(mu2), len(x1), len(x2))
	}
	sg := NewSubgrid(mu2, x1, x2)
	copy(sg.values, values)
	return sg, nil
}

// Shape returns the number of (mu2, x1, x2) nodes.
func (s *Subgrid) Shape() (int, int, int) {
	return len(s.mu2), len(s.x1), len(s.x2)
}

func (s *Subgrid) offset(q, i, j int) (int, error) {
	if q < 0 || q >= len(s.mu2) || i < 0 || i >= len(s.x1) || j < 0 || j >= len(s.x2) {
		return 0, newError(ErrCodeIndexOutOfRange,
			"subgrid node (%d,%d,%d) outside shape (%d,%d,%d)",
			q, i, j, len(s.mu2), len(s.x1), len(s.x2))
	}
	return (q*len(s.x1)+i)*len(s.x2) + j, nil
}

// At returns the weight at node (q, i, j).
func (s *Subgrid) At(q, i, j int) (float64, error) {
	idx, err := s.offset(q, i, j)
	if err != nil {
		return 0, err
	}
	return s.values[idx], nil
}

// Set stores the weight at node (q, i, j).
func (s *Subgrid) Set(q, i, j int, v float64) error {
	idx, err := s.offset(q, i, j)
	if err != nil {
		return err
	}
	s.values[idx] = v
	return nil
}

// Mu2Grid returns a copy of the scale nodes.
func (s *Subgrid) Mu2Grid() []Mu2 { return append([]Mu2(nil), s.mu2...) }

// X1Grid returns a copy of the x1 nodes.
func (s *Subgrid) X1Grid() []float64 { return append([]float64(nil), s.x1...) }

// X2Grid returns a copy of the x2 nodes.
func (s *Subgrid) X2Grid() []float64 { return append([]float64(nil), s.x2...) }

// Array returns a copy of the flat row-major weight array.
func (s *Subgrid) Array() []float64 { return append([]float64(nil), s.values...) }

// IsEmpty reports whether the subgrid has no nodes or only zero weights.
func (s *Subgrid) IsEmpty() bool {
	if s == nil {
		return true
	}
	for _, v := range s.values {
		if v != 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, node coordinates included.
func (s *Subgrid) Clone() *Subgrid {
	if s == nil {
		return nil
	}
	return &Subgrid{
		mu2:    s.Mu2Grid(),
		x1:     s.X1Grid(),
		x2:     s.X2Grid(),
		values: s.Array(),
	}
}

func (s *Subgrid) scale(factor float64) {
	for i := range s.values {
		s.values[i] *= factor
	}
}

func (s *Subgrid) String() string {
	q, i, j := s.Shape()
	return fmt.Sprintf("Subgrid(%dx%dx%d)", q, i, j)
}
