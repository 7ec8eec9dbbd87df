package storage

import (
	"fmt"
	"sort"
	"strings"
)

// Dialect renders the statements shared by every SQL backend.
type Dialect interface {
	// Quote quotes a single identifier segment.
	Quote(ident string) string

	// Placeholder returns the n-th (1-based) bind parameter marker.
	Placeholder(n int) string

	// Upsert renders an insert-or-update of columns keyed on key, binding
	// columns in order. returning reports whether the statement yields the
	// key columns as a result row.
	Upsert(table string, key, columns []string) (query string, returning bool)
}

// QuoteTable quotes a possibly schema-qualified name such as "public.orders".
func QuoteTable(d Dialect, name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.Quote(p)
	}
	return strings.Join(parts, ".")
}

// QuoteAll quotes each column name.
func QuoteAll(d Dialect, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Quote(c)
	}
	return out
}

// Placeholders returns n markers starting at from.
func Placeholders(d Dialect, from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.Placeholder(from + i)
	}
	return out
}

// SelectSQL renders SELECT columns FROM table WHERE key = ..., binding the key
// values in key order.
func SelectSQL(d Dialect, table string, key, columns []string) string {
	if len(columns) == 0 {
		columns = key
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(QuoteAll(d, columns), ", "),
		QuoteTable(d, table),
		where(d, key, 1),
	)
}

// UpdateSQL renders UPDATE table SET columns WHERE key, binding the columns
// first and the key values after them.
func UpdateSQL(d Dialect, table string, key, columns []string) string {
	set := make([]string, len(columns))
	for i, c := range columns {
		set[i] = d.Quote(c) + " = " + d.Placeholder(i+1)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		QuoteTable(d, table),
		strings.Join(set, ", "),
		where(d, key, len(columns)+1),
	)
}

// InsertSQL renders a plain INSERT of columns.
func InsertSQL(d Dialect, table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteTable(d, table),
		strings.Join(QuoteAll(d, columns), ", "),
		strings.Join(Placeholders(d, 1, len(columns)), ", "),
	)
}

func where(d Dialect, key []string, from int) string {
	parts := make([]string, len(key))
	for i, k := range key {
		parts[i] = d.Quote(k) + " = " + d.Placeholder(from+i)
	}
	return strings.Join(parts, " AND ")
}

// NonKey returns the columns that are not part of key, preserving order.
func NonKey(columns, key []string) []string {
	isKey := make(map[string]bool, len(key))
	for _, k := range key {
		isKey[k] = true
	}
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	return out
}

// SortedColumns returns the keys of row in sorted order so statements and
// their arguments line up deterministically.
func SortedColumns(row map[string]any) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Args returns row values in columns order.
func Args(row map[string]any, columns []string) []any {
	args := make([]any, len(columns))
	for i, c := range columns {
		args[i] = row[c]
	}
	return args
}

// ConflictUpsert renders the INSERT .. ON CONFLICT .. DO UPDATE .. RETURNING
// form shared by Postgres and SQLite. With no non-key columns the key is
// assigned to itself so RETURNING still yields the existing row.
func ConflictUpsert(d Dialect, table string, key, columns []string) string {
	set := NonKey(columns, key)
	if len(set) == 0 {
		set = key
	}
	assign := make([]string, len(set))
	for i, c := range set {
		assign[i] = d.Quote(c) + " = EXCLUDED." + d.Quote(c)
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
		InsertSQL(d, table, columns),
		strings.Join(QuoteAll(d, key), ", "),
		strings.Join(assign, ", "),
		strings.Join(QuoteAll(d, key), ", "),
	)
}
