// Package entity holds the fixed catalogue of entity kinds the reconciler
// knows how to persist: one field table, identity definition and optional
// expansion/derivation hook per kind.
package entity

import (
	"fmt"
	"sort"
	"strings"

	"shopetl/internal/document"
	"shopetl/internal/mapping"
)

// Entity describes how documents of one kind become destination rows.
type Entity struct {
	// Kind is the catalogue name ("orders", "order_lines", ...).
	Kind string

	// Table is the default destination table.
	Table string

	Mapping mapping.Table

	// Required lists columns that are always written on insert, even when
	// their value is nil, because the destination declares them NOT NULL
	// or a foreign key depends on them.
	Required []string

	// Expand turns one inbound document into the documents that map to
	// rows (an order into its line items). Nil means the document maps
	// as-is.
	Expand func(document.Value) []document.Value

	// Derive adds computed columns after mapping. Nil means none.
	Derive func(mapping.Record) mapping.Record
}

// Documents returns the row documents carried by doc.
func (e Entity) Documents(doc document.Value) []document.Value {
	if e.Expand == nil {
		return []document.Value{doc}
	}
	return e.Expand(doc)
}

// Columns returns every destination column the entity may write, sorted.
func (e Entity) Columns() []string {
	seen := map[string]bool{}
	for _, k := range e.Mapping.Key {
		seen[k.Column] = true
	}
	for _, f := range e.Mapping.Fields {
		seen[f.Column] = true
	}
	for _, r := range e.Mapping.Repeats {
		for i := 1; i <= r.Slots; i++ {
			for _, f := range r.Fields {
				seen[r.SlotColumn(i, f.Column)] = true
			}
		}
	}
	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

var registry = map[string]Entity{}

func register(e Entity) {
	if _, dup := registry[e.Kind]; dup {
		panic("entity: duplicate kind " + e.Kind)
	}
	registry[e.Kind] = e
}

// Lookup returns the entity registered under kind. Matching ignores case and
// surrounding space.
func Lookup(kind string) (Entity, error) {
	e, ok := registry[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return Entity{}, fmt.Errorf("entity: unknown kind %q (known: %s)", kind, strings.Join(Kinds(), ", "))
	}
	return e, nil
}

// Kinds returns the registered kinds, sorted.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// idAliases are the identity spellings seen across REST and GraphQL payloads.
var idAliases = []string{"id", "legacyResourceId", "Id", "ID"}

func idKey(column string) mapping.KeyColumn {
	return mapping.KeyColumn{Column: column, Aliases: idAliases, Transform: mapping.LegacyID}
}

// fields builds a field list where each column is read from the key of the
// same name.
func fields(columns ...string) []mapping.Field {
	out := make([]mapping.Field, len(columns))
	for i, c := range columns {
		out[i] = mapping.Field{Column: c, Path: c}
	}
	return out
}

// children returns the elements of doc[path], each extended with the parent
// values named in inherit (child key -> parent path). Values already present
// on a child are kept.
func children(doc document.Value, path string, inherit map[string]string) []document.Value {
	elems := doc.Get(path).Elements()
	out := make([]document.Value, 0, len(elems))
	for _, el := range elems {
		if el.Kind() != document.Object {
			continue
		}
		for key, from := range inherit {
			if cur, ok := el.Field(key); ok && !cur.IsNull() {
				continue
			}
			el = el.With(key, doc.Get(from))
		}
		out = append(out, el)
	}
	return out
}
