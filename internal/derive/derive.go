// Package derive computes the reconciliation fields that cross-check the
// financial totals reported by the commerce platform.
//
// Calculators only add keys to a record; they never remove or rewrite mapped
// values. Missing or unparseable operands count as zero.
package derive

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Epsilon is the absolute tolerance of the money consistency checks.
const Epsilon = 0.01

// TaxSlots is the number of per-order tax line slots.
const TaxSlots = 5

// Float converts v to float64, treating nil and anything unparseable as 0.
func Float(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	return 0
}

// Round rounds x half away from zero to the given number of decimals.
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

// Close reports whether a and b differ by less than Epsilon.
func Close(a, b float64) bool { return math.Abs(a-b) < Epsilon }
