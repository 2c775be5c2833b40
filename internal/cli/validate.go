package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nnpdf/pinefarm/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Kind string
}

// FileResult is the validation outcome of one card.
type FileResult struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Valid bool   `json:"valid"`
	Field string `json:"field,omitempty"`
	Line  int    `json:"line,omitempty"`
	Error string `json:"error,omitempty"`
}

// ValidationResult represents the result of validation.
type ValidationResult struct {
	Valid bool         `json:"valid"`
	Files []FileResult `json:"files"`
}

var kindNames = map[string]schema.Kind{
	"theory":        schema.Theory,
	"positivity":    schema.Positivity,
	"integrability": schema.Integrability,
	"observable":    schema.Observable,
	"pinecard":      schema.Pinecard,
	"descriptor":    schema.Descriptor,
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <card>...",
		Short: "Validate runcards and theory cards",
		Long: `Check YAML cards against the built-in schemas.

Without --kind the kind is inferred from the file name: positivity.yaml,
integrability.yaml and observable.yaml are provider runcards and a numeric
name such as 400.yaml is a theory card.

Example:
  pinefarm validate runcards/POS_G/positivity.yaml
  pinefarm validate --kind pinecard runcards/NNLOJET_ZJ/*.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "card kind (theory|positivity|integrability|observable|pinecard|descriptor)")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	if err := opts.init(); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	if opts.Kind != "" {
		if _, ok := kindNames[opts.Kind]; !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown kind %q", opts.Kind))
		}
	}

	result := ValidationResult{Valid: true, Files: make([]FileResult, 0, len(paths))}
	for _, path := range paths {
		name := opts.Kind
		if name == "" {
			inferred, ok := inferKind(path)
			if !ok {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("cannot infer the kind of %s, pass --kind", path))
			}
			name = inferred
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return formatter.Fail(ExitCommandError, "failed to read card", err)
		}

		fr := FileResult{Path: path, Kind: name, Valid: true}
		if err := opts.Schema.Validate(kindNames[name], path, data); err != nil {
			fr.Valid = false
			fr.Error = err.Error()
			var se *schema.SchemaError
			if errors.As(err, &se) {
				fr.Field = se.Field
				if se.Pos.IsValid() {
					fr.Line = se.Pos.Line()
				}
			}
			result.Valid = false
		}
		result.Files = append(result.Files, fr)
	}

	if opts.Format == "json" {
		return outputValidationJSON(formatter, result)
	}

	for _, fr := range result.Files {
		if fr.Valid {
			fmt.Fprintf(formatter.Writer, "✓ %s (%s)\n", fr.Path, fr.Kind)
			continue
		}
		fmt.Fprintf(formatter.Writer, "✗ %s (%s)\n  %s\n", fr.Path, fr.Kind, fr.Error)
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d card(s)", result.failed()))
	}
	return nil
}

func (r ValidationResult) failed() int {
	n := 0
	for _, f := range r.Files {
		if !f.Valid {
			n++
		}
	}
	return n
}

// inferKind guesses the card kind from its file name.
func inferKind(path string) (string, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch stem {
	case "positivity", "integrability", "observable":
		return stem, true
	}
	if _, err := strconv.Atoi(stem); err == nil {
		return "theory", true
	}
	return "", false
}

func outputValidationJSON(formatter *OutputFormatter, result ValidationResult) error {
	if result.Valid {
		return formatter.Success(result)
	}

	first := result.Files[0]
	for _, f := range result.Files {
		if !f.Valid {
			first = f
			break
		}
	}
	response := CLIResponse{
		Status: "error",
		Data:   result,
		Error: &CLIError{
			Code:    ErrCodeInvalidRuncard,
			Message: first.Error,
		},
	}

	encoder := json.NewEncoder(formatter.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d card(s)", result.failed()))
}
