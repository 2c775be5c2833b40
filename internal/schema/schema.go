// Package schema validates YAML runcards against embedded CUE definitions.
//
// Every card pinefarm reads (theory cards, provider runcards, NNLOJET
// pinecards and autogen descriptors) is unified with its definition and
// must be concrete and closed before it is decoded into Go values. Failures
// carry the file position of the offending YAML node.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"cuelang.org/go/encoding/yaml"
)

//go:embed cue/runcards.cue
var runcardsCUE []byte

// Kind names a card definition.
type Kind string

const (
	Theory        Kind = "#Theory"
	Positivity    Kind = "#Positivity"
	Integrability Kind = "#Integrability"
	Observable    Kind = "#Observable"
	Pinecard      Kind = "#Pinecard"
	Descriptor    Kind = "#Descriptor"
)

// Registry holds the compiled definitions.
//
// A cue.Context is not safe for concurrent use, so every method serializes
// on an internal mutex.
type Registry struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs cue.Value
}

// New compiles the embedded definitions.
func New() (*Registry, error) {
	ctx := cuecontext.New()
	defs := ctx.CompileBytes(runcardsCUE, cue.Filename("runcards.cue"))
	if err := defs.Err(); err != nil {
		return nil, fmt.Errorf("compile runcard schemas: %w", formatCUEError(err))
	}
	return &Registry{ctx: ctx, defs: defs}, nil
}

// MustNew is like New but panics on error.
// The definitions are embedded, so an error is a build defect.
func MustNew() *Registry {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks the YAML document data against kind. filename is only
// used in error positions.
func (r *Registry) Validate(kind Kind, filename string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.unify(kind, filename, data)
	return err
}

// Decode validates data against kind and decodes the unified value, defaults
// included, into out. out follows encoding/json conventions.
func (r *Registry) Decode(kind Kind, filename string, data []byte, out any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, err := r.unify(kind, filename, data)
	if err != nil {
		return err
	}
	if err := v.Decode(out); err != nil {
		return formatCUEError(err)
	}
	return nil
}

func (r *Registry) unify(kind Kind, filename string, data []byte) (cue.Value, error) {
	def := r.defs.LookupPath(cue.ParsePath(string(kind)))
	if !def.Exists() {
		return cue.Value{}, fmt.Errorf("unknown runcard kind %s", kind)
	}

	file, err := yaml.Extract(filename, data)
	if err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	doc := r.ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}

	v := def.Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// SchemaError is a runcard validation failure.
type SchemaError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first CUE error and the position that points
// into the YAML document, if any.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	field := strings.Join(first.Path(), ".")
	if field == "" {
		field = "runcard"
	}
	format, args := first.Msg()
	se := &SchemaError{Field: field, Message: fmt.Sprintf(format, args...)}

	positions := errors.Positions(first)
	for _, p := range positions {
		if p.Filename() != "runcards.cue" {
			se.Pos = p
			return se
		}
	}
	if len(positions) > 0 {
		se.Pos = positions[0]
	}
	return se
}
