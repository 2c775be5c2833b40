package testutil

import "fmt"

// SequentialIDs generates run identifiers "run-0001", "run-0002", ...
//
// Used in place of random UUIDs so ledger contents can be compared against
// golden files.
//
// Not safe for concurrent use.
type SequentialIDs struct {
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix means "run".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next identifier.
func (g *SequentialIDs) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
