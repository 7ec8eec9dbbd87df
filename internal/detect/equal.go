package detect

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"shopetl/internal/coerce"
	"shopetl/internal/schema"
)

// NumericEpsilon is the absolute tolerance for numeric columns.
const NumericEpsilon = 1e-6

// Equal reports whether candidate and stored hold the same value for a column
// of kind k.
//
//   - nil and "" are interchangeable for every kind.
//   - Numeric kinds compare within NumericEpsilon.
//   - Temporal kinds compare at minute granularity, ignoring the separator,
//     fractional seconds and zone offset; when either side is a bare date
//     they compare by day. A stored time.Time (timestamptz) is compared as an
//     instant against a candidate that carries a zone.
//   - Booleans compare by truthiness, so a stored 1 equals true.
//   - Everything else compares exactly. Values of different Go types compare
//     by their text form, since drivers may hand back a string for a column
//     that was written as a number.
func Equal(k schema.Kind, candidate, stored any) bool {
	a, b := plain(candidate), plain(stored)

	ba, bb := blank(a), blank(b)
	if ba || bb {
		return ba && bb
	}

	switch {
	case k.Numeric():
		x, okx := number(a)
		y, oky := number(b)
		if okx && oky {
			return math.Abs(x-y) < NumericEpsilon
		}
	case k.Temporal():
		if x, y, ok := instants(a, b); ok {
			return x.Truncate(time.Minute).Equal(y.Truncate(time.Minute))
		}
		x, okx := moment(a)
		y, oky := moment(b)
		if okx && oky {
			return sameMoment(x, y)
		}
	case k == schema.KindBoolean:
		x, okx := truth(a)
		y, oky := truth(b)
		if okx && oky {
			return x == y
		}
	}
	return exact(a, b)
}

// plain unwraps driver values and byte slices.
func plain(v any) any {
	if dv, ok := v.(driver.Valuer); ok {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		x, err := dv.Value()
		if err != nil {
			return v
		}
		v = x
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func truth(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		return coerce.IsTruthy(t), true
	}
	if f, ok := number(v); ok {
		return f != 0, true
	}
	return false, false
}

// instants resolves both sides to absolute times when the store returned a
// time.Time and the other side is a time.Time or a string with an explicit
// zone. Zoneless strings keep the wall-clock comparison of moment.
func instants(a, b any) (time.Time, time.Time, bool) {
	ta, oka := a.(time.Time)
	tb, okb := b.(time.Time)
	switch {
	case oka && okb:
		return ta, tb, true
	case okb:
		ta, oka = zoned(a)
	case oka:
		tb, okb = zoned(b)
	}
	return ta, tb, oka && okb
}

// zoned parses v as a timestamp carrying "Z" or a numeric offset.
func zoned(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02 15:04:05Z07:00", coerce.NormalizeTimestamp(strings.TrimSpace(s)))
	return t, err == nil
}

// moment renders v as "YYYY-MM-DD hh:mm:ss" without fraction or offset, or
// "YYYY-MM-DD" for bare dates.
func moment(v any) (string, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02 15:04:05"), true
	case string:
		s := coerce.NormalizeTimestamp(strings.TrimSpace(t))
		if len(s) <= 10 {
			return s, true
		}
		head, tail := s[:10], s[10:]
		if i := strings.IndexAny(tail, ".+-Z"); i >= 0 {
			tail = tail[:i]
		}
		return head + strings.TrimRight(tail, " "), true
	}
	return "", false
}

func sameMoment(x, y string) bool {
	n := 16
	if len(x) == 10 || len(y) == 10 {
		n = 10
	}
	return prefix(x, n) == prefix(y, n)
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func exact(a, b any) bool {
	if reflect.TypeOf(a) == reflect.TypeOf(b) {
		if reflect.TypeOf(a).Comparable() {
			return a == b
		}
		return reflect.DeepEqual(a, b)
	}
	return text(a) == text(b)
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
