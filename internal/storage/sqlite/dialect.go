package sqlite

import (
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"shopetl/internal/schema"
	"shopetl/internal/storage"
	"shopetl/internal/storage/sqlstore"
)

// Dialect renders SQLite statements. Upserts need SQLite 3.35+ for RETURNING
// and a unique index on the key columns.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string                { return "sqlite" }
func (Dialect) Quote(id string) string      { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
func (Dialect) Placeholder(int) string      { return "?" }
func (Dialect) KindOf(t string) schema.Kind { return schema.KindOf(t) }

func (d Dialect) Upsert(table string, key, columns []string) (string, bool) {
	return storage.ConflictUpsert(d, table, key, columns), true
}

// ColumnsQuery reads the table_info pragma. SQLite has no separate length
// column; lengths come from the declared type ("VARCHAR(64)").
func (Dialect) ColumnsQuery(table string) (string, []any) {
	schemaName, name := sqlstore.SplitTable(table)
	if schemaName == "" {
		return "SELECT name, type, NULL FROM pragma_table_info(?)", []any{name}
	}
	return "SELECT name, type, NULL FROM pragma_table_info(?, ?)", []any{name, schemaName}
}

// Classify wraps SQLITE_CONSTRAINT family errors with storage.ErrConstraint.
func (Dialect) Classify(err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %w", storage.ErrConstraint, err)
	}
	return err
}
