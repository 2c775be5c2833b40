package nnlojet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// formatFloat renders v the way NNLOJET runcards are conventionally
// written: plain decimals with at least one fractional digit, and
// exponent notation for very small or very large magnitudes.
func formatFloat(v float64) string {
	abs := math.Abs(v)
	if v == 0 {
		return "0.0"
	}
	if abs >= 1e-4 && abs < 1e16 {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.ContainsRune(s, '.') {
			s += ".0"
		}
		return s
	}
	return strconv.FormatFloat(v, 'e', -1, 64)
}

// formatValue renders a decoded YAML scalar.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return formatFloat(x)
	case int:
		return strconv.Itoa(x)
	case bool:
		if x {
			return ".true."
		}
		return ".false."
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// formatBins renders a bin list as "[a, b, c]".
func formatBins(bins []float64) string {
	parts := make([]string, len(bins))
	for i, b := range bins {
		parts[i] = formatFloat(b)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
