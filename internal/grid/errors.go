package grid

import (
	"errors"
	"fmt"
)

// Error represents a grid model failure.
//
// All grid failures are fatal for the calling workflow:
//   - Shape mismatch: array lengths disagree during construction or remapping
//   - Index out of range: subgrid lookup outside (order, bin, channel) bounds
//   - Incompatible grid: channel/order/dimension mismatch during merge
//   - Dimensionality: observable binned in the wrong number of dimensions
//   - Version mismatch: library or file version does not match the pinned one
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes grid errors.
type ErrorCode string

const (
	// ErrCodeShapeMismatch indicates mismatched array lengths.
	ErrCodeShapeMismatch ErrorCode = "SHAPE_MISMATCH"

	// ErrCodeIndexOutOfRange indicates an invalid (order, bin, channel) index.
	ErrCodeIndexOutOfRange ErrorCode = "INDEX_OUT_OF_RANGE"

	// ErrCodeIncompatibleGrid indicates grids that cannot be merged.
	ErrCodeIncompatibleGrid ErrorCode = "INCOMPATIBLE_GRID"

	// ErrCodeDimensionality indicates a grid binned in an unsupported number of dimensions.
	ErrCodeDimensionality ErrorCode = "DIMENSIONALITY"

	// ErrCodeVersionMismatch indicates an incompatible grid library or file version.
	ErrCodeVersionMismatch ErrorCode = "VERSION_MISMATCH"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewDimensionalityError creates an Error for a grid binned in dims dimensions
// where want were expected.
func NewDimensionalityError(dims, want int) *Error {
	return &Error{
		Code:    ErrCodeDimensionality,
		Message: fmt.Sprintf("observable is binned in %d dimension(s), expected %d", dims, want),
		Details: map[string]string{
			"dimensions": fmt.Sprintf("%d", dims),
			"expected":   fmt.Sprintf("%d", want),
		},
	}
}

// NewVersionMismatch creates an Error for a version that differs from the pinned one.
func NewVersionMismatch(got, pinned string) *Error {
	return &Error{
		Code:    ErrCodeVersionMismatch,
		Message: fmt.Sprintf("grid library version %s is not compatible with pinned version %s", got, pinned),
		Details: map[string]string{
			"version": got,
			"pinned":  pinned,
		},
	}
}

func hasCode(err error, code ErrorCode) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}

// IsShapeMismatch returns true if err is a shape mismatch error.
// Uses errors.As to handle wrapped errors.
func IsShapeMismatch(err error) bool { return hasCode(err, ErrCodeShapeMismatch) }

// IsIndexOutOfRange returns true if err is an index out of range error.
func IsIndexOutOfRange(err error) bool { return hasCode(err, ErrCodeIndexOutOfRange) }

// IsIncompatibleGrid returns true if err is an incompatible grid error.
func IsIncompatibleGrid(err error) bool { return hasCode(err, ErrCodeIncompatibleGrid) }

// IsDimensionalityError returns true if err is a dimensionality error.
func IsDimensionalityError(err error) bool { return hasCode(err, ErrCodeDimensionality) }

// IsVersionMismatch returns true if err is a version mismatch error.
func IsVersionMismatch(err error) bool { return hasCode(err, ErrCodeVersionMismatch) }
