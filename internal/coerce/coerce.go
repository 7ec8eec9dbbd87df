// Package coerce converts loosely typed source scalars into the declared type
// of a destination column.
//
// Coercion never fails. A value that cannot be represented in its column's
// kind degrades to nil and the Result says so; callers log it and move on.
// The accepted input types are those produced by the document layer and by
// the derived field calculator: nil, string, bool, json.Number, the Go
// integer and float types, and time.Time.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"shopetl/internal/schema"
)

// Truthy is the set of strings (compared case-insensitively) accepted as true
// for boolean columns. Every other string is false.
var Truthy = []string{"true", "t", "yes", "y", "1"}

// Result is the outcome of coercing one value.
type Result struct {
	Value any

	// Degraded is set when a non-empty input could not be represented and was
	// replaced with nil.
	Degraded bool

	// Truncated is set when a text value was cut to the column's MaxLength.
	Truncated bool

	// Note describes a degradation or truncation for logs.
	Note string
}

// Value coerces v into col's kind.
func Value(v any, col schema.Column) Result {
	if v == nil {
		return Result{}
	}
	switch col.Kind {
	case schema.KindInteger:
		return toInteger(v, col)
	case schema.KindDecimal:
		return toDecimal(v, col)
	case schema.KindBoolean:
		return toBoolean(v)
	case schema.KindTimestamp, schema.KindDate:
		return toTemporal(v)
	default:
		return toText(v, col)
	}
}

// maxExactFloat is the largest magnitude below which every integer has an
// exact float64 representation.
const maxExactFloat = 1 << 53

// Identity coerces an identity value. Unlike Value it never rounds: integral
// literals become int64, other decimal literals keep their text, and text
// longer than the column allows is refused rather than truncated. Anything
// that cannot be kept exact degrades to nil, which leaves the key incomplete.
func Identity(v any, col schema.Column) Result {
	if v == nil {
		return Result{}
	}
	switch col.Kind {
	case schema.KindInteger, schema.KindDecimal:
		return exactNumber(v, col)
	case schema.KindBoolean, schema.KindTimestamp, schema.KindDate:
		return Value(v, col)
	}
	res := toText(v, col)
	if res.Truncated {
		return degraded(v, col)
	}
	return res
}

func exactNumber(v any, col schema.Column) Result {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case int:
		return Result{Value: int64(t)}
	case int32:
		return Result{Value: int64(t)}
	case int64:
		return Result{Value: t}
	case float64:
		if i, ok := integral(t); ok && math.Abs(t) <= maxExactFloat {
			return Result{Value: i}
		}
		if col.Kind == schema.KindDecimal && !math.IsNaN(t) && !math.IsInf(t, 0) {
			return Result{Value: t}
		}
		return degraded(v, col)
	default:
		return degraded(v, col)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Result{}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Result{Value: i}
	}
	if col.Kind == schema.KindDecimal && decimalLiteral(s) {
		return Result{Value: s}
	}
	return degraded(v, col)
}

// decimalLiteral reports whether s is a plain base-10 number such as "-12.50"
// or "123456789012345678901234".
func decimalLiteral(s string) bool {
	if s != "" && (s[0] == '-' || s[0] == '+') {
		s = s[1:]
	}
	digits, dot := 0, false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}

func degraded(v any, col schema.Column) Result {
	return Result{
		Degraded: true,
		Note:     fmt.Sprintf("column %s: cannot coerce %T %q to %s", col.Name, v, fmt.Sprint(v), col.Kind),
	}
}

func toInteger(v any, col schema.Column) Result {
	switch t := v.(type) {
	case string:
		return parseInteger(t, v, col)
	case json.Number:
		return parseInteger(t.String(), v, col)
	case int:
		return Result{Value: int64(t)}
	case int32:
		return Result{Value: int64(t)}
	case int64:
		return Result{Value: t}
	case float64:
		if i, ok := integral(t); ok {
			return Result{Value: i}
		}
	case float32:
		if i, ok := integral(float64(t)); ok {
			return Result{Value: i}
		}
	}
	return degraded(v, col)
}

func parseInteger(s string, orig any, col schema.Column) Result {
	s = strings.TrimSpace(s)
	if s == "" {
		return Result{}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Result{Value: i}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if i, ok := integral(f); ok {
			return Result{Value: i}
		}
	}
	return degraded(orig, col)
}

// integral converts f to int64 when it has no fractional part and fits.
func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toDecimal(v any, col schema.Column) Result {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		return finite(t, v, col)
	case float32:
		return finite(float64(t), v, col)
	case int:
		return Result{Value: float64(t)}
	case int64:
		return Result{Value: float64(t)}
	case int32:
		return Result{Value: float64(t)}
	default:
		return degraded(v, col)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Result{}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return degraded(v, col)
	}
	return finite(f, v, col)
}

func finite(f float64, orig any, col schema.Column) Result {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return degraded(orig, col)
	}
	return Result{Value: f}
}

func toBoolean(v any) Result {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return Result{}
		}
		return Result{Value: IsTruthy(s)}
	case bool:
		return Result{Value: t}
	case json.Number:
		f, err := t.Float64()
		return Result{Value: err == nil && f != 0}
	case int:
		return Result{Value: t != 0}
	case int64:
		return Result{Value: t != 0}
	case float64:
		return Result{Value: t != 0}
	}
	return Result{Value: v}
}

// IsTruthy reports whether s is one of the accepted truthy spellings.
func IsTruthy(s string) bool {
	s = strings.TrimSpace(s)
	for _, t := range Truthy {
		if strings.EqualFold(s, t) {
			return true
		}
	}
	return false
}

func toTemporal(v any) Result {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return Result{}
		}
		return Result{Value: NormalizeTimestamp(t)}
	case time.Time:
		return Result{Value: t}
	}
	return Result{Value: v}
}

// NormalizeTimestamp rewrites an ISO-8601 "YYYY-MM-DDThh:mm..." string into
// the "YYYY-MM-DD hh:mm..." form. Anything that does not look like a date
// followed by a literal T is returned unchanged.
func NormalizeTimestamp(s string) string {
	if len(s) < 11 || s[10] != 'T' || !looksLikeDate(s[:10]) {
		return s
	}
	return s[:10] + " " + s[11:]
}

func looksLikeDate(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if i == 4 || i == 7 {
			continue
		}
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func toText(v any, col schema.Column) Result {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		s = strconv.FormatInt(t, 10)
	case int:
		s = strconv.Itoa(t)
	case time.Time:
		s = t.Format(time.RFC3339)
	default:
		s = fmt.Sprint(t)
	}
	return truncate(s, col)
}

// truncate cuts s to col.MaxLength characters. Text is put into NFC first so
// that decomposed accents do not count twice against the limit.
func truncate(s string, col schema.Column) Result {
	if col.MaxLength <= 0 || utf8.RuneCountInString(s) <= col.MaxLength {
		return Result{Value: s}
	}
	s = norm.NFC.String(s)
	n := utf8.RuneCountInString(s)
	if n <= col.MaxLength {
		return Result{Value: s}
	}
	r := []rune(s)
	return Result{
		Value:     string(r[:col.MaxLength]),
		Truncated: true,
		Note:      fmt.Sprintf("column %s: truncated from %d to %d characters", col.Name, n, col.MaxLength),
	}
}
