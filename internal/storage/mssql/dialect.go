package mssql

import (
	"errors"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"shopetl/internal/schema"
	"shopetl/internal/storage"
	"shopetl/internal/storage/sqlstore"
)

// Dialect renders SQL Server statements.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string                { return "mssql" }
func (Dialect) Placeholder(n int) string    { return fmt.Sprintf("@p%d", n) }
func (Dialect) KindOf(t string) schema.Kind { return schema.KindOf(t) }

// Quote brackets an identifier, escaping "]".
func (Dialect) Quote(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// ColumnsQuery reads INFORMATION_SCHEMA.COLUMNS; unqualified tables resolve
// against the session's default schema. CHARACTER_MAXIMUM_LENGTH is -1 for
// (max) types, which reads as unbounded.
func (Dialect) ColumnsQuery(table string) (string, []any) {
	schemaName, name := sqlstore.SplitTable(table)
	var s any
	if schemaName != "" {
		s = schemaName
	}
	return "SELECT COLUMN_NAME, DATA_TYPE, CHARACTER_MAXIMUM_LENGTH FROM INFORMATION_SCHEMA.COLUMNS " +
		"WHERE TABLE_SCHEMA = COALESCE(@p1, SCHEMA_NAME()) AND TABLE_NAME = @p2 ORDER BY ORDINAL_POSITION", []any{s, name}
}

// Upsert renders a MERGE keyed on key. HOLDLOCK keeps concurrent merges of the
// same key from both taking the insert branch. The OUTPUT clause reports the
// key of the inserted or updated row.
func (d Dialect) Upsert(table string, key, columns []string) (string, bool) {
	src := make([]string, len(columns))
	vals := make([]string, len(columns))
	for i, c := range columns {
		src[i] = d.Placeholder(i+1) + " AS " + d.Quote(c)
		vals[i] = "source." + d.Quote(c)
	}
	on := make([]string, len(key))
	out := make([]string, len(key))
	for i, k := range key {
		on[i] = "target." + d.Quote(k) + " = source." + d.Quote(k)
		out[i] = "inserted." + d.Quote(k)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s WITH (HOLDLOCK) AS target USING (SELECT %s) AS source ON %s",
		storage.QuoteTable(d, table), strings.Join(src, ", "), strings.Join(on, " AND "))
	// A key-only row still needs a matched branch, or OUTPUT reports nothing
	// for an existing row.
	set := storage.NonKey(columns, key)
	if len(set) == 0 {
		set = key
	}
	assign := make([]string, len(set))
	for i, c := range set {
		assign[i] = "target." + d.Quote(c) + " = source." + d.Quote(c)
	}
	fmt.Fprintf(&b, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(assign, ", "))
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s) OUTPUT %s;",
		strings.Join(storage.QuoteAll(d, columns), ", "), strings.Join(vals, ", "), strings.Join(out, ", "))
	return b.String(), true
}

// constraintErrors are SQL Server error numbers raised by table constraints:
// duplicate key (2627, 2601), NULL into NOT NULL (515), foreign key and check
// conflicts (547).
var constraintErrors = map[int32]bool{2627: true, 2601: true, 515: true, 547: true}

// Classify wraps constraint errors with storage.ErrConstraint and adds the
// server error number to the message.
func (Dialect) Classify(err error) error {
	var me mssql.Error
	if !errors.As(err, &me) {
		return err
	}
	if constraintErrors[me.Number] {
		return fmt.Errorf("%w (error %d): %w", storage.ErrConstraint, me.Number, err)
	}
	return fmt.Errorf("error %d: %w", me.Number, err)
}
