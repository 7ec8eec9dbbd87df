package mysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"shopetl/internal/schema"
	"shopetl/internal/storage"
	"shopetl/internal/storage/sqlstore"
)

// Dialect renders MySQL statements.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string           { return "mysql" }
func (Dialect) Placeholder(int) string { return "?" }
func (Dialect) Quote(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// KindOf reads COLUMN_TYPE, where tinyint(1) is MySQL's boolean.
func (Dialect) KindOf(t string) schema.Kind {
	if strings.EqualFold(strings.TrimSpace(t), "tinyint(1)") {
		return schema.KindBoolean
	}
	return schema.KindOf(t)
}

// ColumnsQuery reads information_schema; unqualified tables resolve against
// the connection's current database.
func (Dialect) ColumnsQuery(table string) (string, []any) {
	schemaName, name := sqlstore.SplitTable(table)
	var s any
	if schemaName != "" {
		s = schemaName
	}
	return "SELECT COLUMN_NAME, COLUMN_TYPE, CHARACTER_MAXIMUM_LENGTH FROM information_schema.COLUMNS " +
		"WHERE TABLE_SCHEMA = COALESCE(?, DATABASE()) AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION", []any{s, name}
}

// Upsert renders INSERT .. ON DUPLICATE KEY UPDATE. MySQL has no RETURNING, so
// the candidate key stands in for the written identity.
func (d Dialect) Upsert(table string, key, columns []string) (string, bool) {
	set := storage.NonKey(columns, key)
	if len(set) == 0 {
		set = key[:1]
	}
	assign := make([]string, len(set))
	for i, c := range set {
		assign[i] = d.Quote(c) + " = VALUES(" + d.Quote(c) + ")"
	}
	return storage.InsertSQL(d, table, columns) + " ON DUPLICATE KEY UPDATE " + strings.Join(assign, ", "), false
}

// constraintErrors are server error numbers raised by table constraints:
// duplicate entry, NULL into NOT NULL, missing default, foreign keys, check.
var constraintErrors = map[uint16]bool{1062: true, 1048: true, 1364: true, 1451: true, 1452: true, 3819: true}

// Classify wraps constraint errors with storage.ErrConstraint.
func (Dialect) Classify(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	if constraintErrors[me.Number] {
		return fmt.Errorf("%w (error %d): %w", storage.ErrConstraint, me.Number, err)
	}
	return fmt.Errorf("error %d: %w", me.Number, err)
}
