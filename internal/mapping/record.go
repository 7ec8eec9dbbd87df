package mapping

import (
	"fmt"
	"sort"
	"strings"

	"shopetl/internal/schema"
)

// Record is one flat destination row: column name to coerced value (or nil).
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Columns returns r's column names in sorted order.
func (r Record) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Project returns a copy of r holding only columns declared in s, together
// with the sorted names of the dropped columns.
func (r Record) Project(s schema.ColumnSchema) (Record, []string) {
	out := make(Record, len(r))
	var dropped []string
	for k, v := range r {
		if s.Has(k) {
			out[k] = v
			continue
		}
		dropped = append(dropped, k)
	}
	sort.Strings(dropped)
	return out, dropped
}

// Key is the identity of one destination row.
type Key struct {
	Columns []string
	Values  []any
}

// Complete reports whether every identity column has a non-nil value.
func (k Key) Complete() bool {
	if len(k.Columns) == 0 || len(k.Values) != len(k.Columns) {
		return false
	}
	for _, v := range k.Values {
		if v == nil {
			return false
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

// String renders the key as "col=value" pairs for diagnostics.
func (k Key) String() string {
	parts := make([]string, len(k.Columns))
	for i, c := range k.Columns {
		var v any
		if i < len(k.Values) {
			v = k.Values[i]
		}
		if v == nil {
			parts[i] = c + "=<nil>"
			continue
		}
		parts[i] = fmt.Sprintf("%s=%v", c, v)
	}
	return strings.Join(parts, ",")
}

// Has reports whether column is part of the key.
func (k Key) Has(column string) bool {
	for _, c := range k.Columns {
		if c == column {
			return true
		}
	}
	return false
}
