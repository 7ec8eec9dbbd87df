// Package mapping projects nested source documents into flat destination
// records using static field tables.
//
// Every resolved value passes through the coercion layer with the column's
// declared type before it lands in the record. Identity columns are resolved
// through an ordered alias list so that documents from different API shapes
// ("id", "Id", "legacyResourceId") still find their key.
package mapping

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"shopetl/internal/coerce"
	"shopetl/internal/document"
	"shopetl/internal/schema"
)

// Transform rewrites a resolved value before coercion.
type Transform func(document.Value) document.Value

// LegacyID turns a GraphQL global id such as "gid://shopify/Order/123" into
// its trailing numeric segment "123". Other values pass through.
func LegacyID(v document.Value) document.Value {
	s, ok := v.Str()
	if !ok || !strings.HasPrefix(s, "gid://") {
		return v
	}
	s = s[strings.LastIndexByte(s, '/')+1:]
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return document.StringValue(s)
}

// Field maps one destination column from an extraction path.
type Field struct {
	Column    string
	Path      string
	Transform Transform
}

// Repeat maps a bounded array of substructures (tax lines, discount codes)
// onto numbered column slots: Prefix_1_Column ... Prefix_N_Column. Slots past
// the number of available elements are set to nil explicitly so an update
// clears stale values.
type Repeat struct {
	Prefix string
	Path   string
	Slots  int
	Fields []Field
}

// SlotColumn returns the column name of field in slot i (1-based).
func (r Repeat) SlotColumn(i int, field string) string {
	return fmt.Sprintf("%s_%d_%s", r.Prefix, i, field)
}

// KeyColumn is one column of an identity key. Aliases are extraction paths
// tried in priority order; the first non-null match wins.
type KeyColumn struct {
	Column    string
	Aliases   []string
	Transform Transform
}

// Table is the static mapping for one entity kind.
type Table struct {
	Key     []KeyColumn
	Fields  []Field
	Repeats []Repeat
}

// KeyColumns returns the identity column names in order.
func (t Table) KeyColumns() []string {
	cols := make([]string, len(t.Key))
	for i, k := range t.Key {
		cols[i] = k.Column
	}
	return cols
}

// Mapped is the result of mapping one document.
type Mapped struct {
	Record Record
	Key    Key

	// Degraded counts values that could not be coerced and became nil.
	Degraded int

	// Notes holds coercion diagnostics (degradations, truncations).
	Notes []string

	// Degradations holds the notes of the degraded values only.
	Degradations []string
}

// Map projects doc through t, coercing every value with s.
func Map(doc document.Value, t Table, s schema.ColumnSchema) Mapped {
	m := Mapped{
		Record: make(Record, len(t.Fields)+len(t.Key)),
		Key:    Key{Columns: t.KeyColumns(), Values: make([]any, len(t.Key))},
	}

	for i, kc := range t.Key {
		v := resolveAlias(doc, kc.Aliases)
		if kc.Transform != nil {
			v = kc.Transform(v)
		}
		m.Key.Values[i] = m.putKey(kc.Column, v.Scalar(), s)
	}

	for _, f := range t.Fields {
		if m.Key.Has(f.Column) {
			continue
		}
		m.put(f.Column, resolve(doc, f), s)
	}

	for _, r := range t.Repeats {
		elems := doc.Get(r.Path).Elements()
		for i := 1; i <= r.Slots; i++ {
			for _, f := range r.Fields {
				col := r.SlotColumn(i, f.Column)
				if i > len(elems) {
					m.Record[col] = nil
					continue
				}
				m.put(col, resolve(elems[i-1], f), s)
			}
		}
	}
	return m
}

func resolve(doc document.Value, f Field) any {
	v := doc.Resolve(document.ParsePath(f.Path), document.NullValue)
	if f.Transform != nil {
		v = f.Transform(v)
	}
	return v.Scalar()
}

// put coerces v for column and stores it.
func (m *Mapped) put(column string, v any, s schema.ColumnSchema) {
	c, _ := s.Lookup(column)
	c.Name = column
	m.store(column, coerce.Value(v, c))
}

// putKey is put for identity columns, which are never rounded or truncated.
func (m *Mapped) putKey(column string, v any, s schema.ColumnSchema) any {
	c, _ := s.Lookup(column)
	c.Name = column
	res := coerce.Identity(v, c)
	m.store(column, res)
	return res.Value
}

func (m *Mapped) store(column string, res coerce.Result) {
	if res.Degraded {
		m.Degraded++
		m.Degradations = append(m.Degradations, res.Note)
	}
	if res.Note != "" {
		m.Notes = append(m.Notes, res.Note)
	}
	m.Record[column] = res.Value
}

// resolveAlias returns the first non-null value among aliases, trying exact
// paths first and then a case-folded match of top-level keys, both in alias
// priority order.
func resolveAlias(doc document.Value, aliases []string) document.Value {
	for _, a := range aliases {
		if v := doc.Get(a); present(v) {
			return v
		}
	}
	fold := cases.Fold()
	keys := doc.Keys()
	for _, a := range aliases {
		if strings.Contains(a, document.PathDelimiter) {
			continue
		}
		want := fold.String(a)
		for _, k := range keys {
			if fold.String(k) != want {
				continue
			}
			if v, _ := doc.Field(k); present(v) {
				return v
			}
		}
	}
	return document.NullValue
}

func present(v document.Value) bool {
	if s, ok := v.Str(); ok {
		return strings.TrimSpace(s) != ""
	}
	return !v.IsNull()
}
