// Package schema describes destination tables as the engine sees them: a
// column name mapped to a coarse data kind and an optional character limit.
//
// A ColumnSchema is fetched once per batch from the store's metadata and is
// read-only afterwards.
package schema

import (
	"sort"
	"strings"
)

// Kind is the coarse data kind of a destination column.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindDecimal
	KindBoolean
	KindTimestamp
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	default:
		return "text"
	}
}

// Numeric reports whether values of this kind compare with an epsilon.
func (k Kind) Numeric() bool { return k == KindInteger || k == KindDecimal }

// Temporal reports whether values of this kind are timestamps or dates.
func (k Kind) Temporal() bool { return k == KindTimestamp || k == KindDate }

// Column is the declared type of one destination column.
type Column struct {
	Name string
	Kind Kind
	// MaxLength is the declared character limit; 0 means unbounded.
	MaxLength int
}

// ColumnSchema maps destination column name to its declared type.
type ColumnSchema map[string]Column

// Has reports whether the table declares column name.
func (s ColumnSchema) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Lookup returns the column for name. Unknown columns are reported as
// unbounded text so callers can still coerce conservatively.
func (s ColumnSchema) Lookup(name string) (Column, bool) {
	c, ok := s[name]
	if !ok {
		return Column{Name: name, Kind: KindText}, false
	}
	return c, true
}

// Names returns the column names in sorted order.
func (s ColumnSchema) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of s.
func (s ColumnSchema) Clone() ColumnSchema {
	out := make(ColumnSchema, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// KindOf normalizes a declared SQL type name into a Kind. It understands the
// spellings reported by Postgres, MySQL, SQL Server and SQLite metadata.
// Anything unrecognized (json, uuid, blobs) is treated as text.
//
//	int, integer, bigint, smallint, serial ...       -> integer
//	numeric, decimal, real, double, float, money ... -> decimal
//	bool, boolean, bit                               -> boolean
//	timestamp, timestamptz, datetime, datetime2 ...  -> timestamp
//	date                                             -> date
func KindOf(declared string) Kind {
	t := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimSuffix(t, " unsigned")

	switch t {
	case "int", "integer", "bigint", "smallint", "mediumint", "tinyint",
		"int2", "int4", "int8", "serial", "bigserial", "smallserial":
		return KindInteger
	case "numeric", "decimal", "real", "double", "double precision", "float",
		"float4", "float8", "money", "smallmoney":
		return KindDecimal
	case "bool", "boolean", "bit":
		return KindBoolean
	case "date":
		return KindDate
	}
	if strings.HasPrefix(t, "timestamp") || strings.HasPrefix(t, "datetime") ||
		strings.HasPrefix(t, "smalldatetime") {
		return KindTimestamp
	}
	return KindText
}

// LengthOf extracts a character limit from a declared type such as
// "VARCHAR(255)" or "character varying(64)". It returns 0 when no limit is
// declared or the type is not character-like.
func LengthOf(declared string) int {
	t := strings.ToLower(strings.TrimSpace(declared))
	if KindOf(t) != KindText {
		return 0
	}
	open := strings.IndexByte(t, '(')
	end := strings.IndexByte(t, ')')
	if open < 0 || end <= open+1 {
		return 0
	}
	n := 0
	for _, r := range t[open+1 : end] {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
