// Package sqlstore implements storage.Store over database/sql for the
// backends whose drivers plug into it (SQLite, MySQL, SQL Server).
//
// The store pins one *sql.Conn from the pool for its whole life, so every
// statement of a batch runs on the same session.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shopetl/internal/mapping"
	"shopetl/internal/schema"
	"shopetl/internal/storage"
)

// Dialect extends storage.Dialect with what database/sql backends need for
// metadata and error reporting.
type Dialect interface {
	storage.Dialect

	// Name is used as the error prefix ("sqlite", "mysql", ...).
	Name() string

	// ColumnsQuery returns a query yielding (name, declared type, max length)
	// rows for table. Max length may be NULL.
	ColumnsQuery(table string) (string, []any)

	// KindOf maps a declared type to a schema kind.
	KindOf(declared string) schema.Kind

	// Classify annotates driver errors, wrapping constraint violations with
	// storage.ErrConstraint. Other errors are returned unchanged.
	Classify(err error) error
}

// Store is a storage.Store on a dedicated connection.
type Store struct {
	conn    *sql.Conn
	d       Dialect
	closeFn func() error
}

var _ storage.Store = (*Store)(nil)

// Open pins a connection from db. closeFn, when not nil, runs after the
// connection is released (typically db.Close for a pool opened per batch).
func Open(ctx context.Context, db *sql.DB, d Dialect, closeFn func() error) (*Store, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: conn: %w", d.Name(), err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Name(), err)
	}
	return &Store{conn: conn, d: d, closeFn: closeFn}, nil
}

// Describe implements storage.Store.
func (s *Store) Describe(ctx context.Context, table string) (schema.ColumnSchema, error) {
	q, args := s.d.ColumnsQuery(table)
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: describe %s: %w", s.d.Name(), table, err)
	}
	defer rows.Close()

	cs := schema.ColumnSchema{}
	for rows.Next() {
		var (
			name, declared string
			maxLen         sql.NullInt64
		)
		if err := rows.Scan(&name, &declared, &maxLen); err != nil {
			return nil, fmt.Errorf("%s: describe %s: scan: %w", s.d.Name(), table, err)
		}
		c := schema.Column{Name: name, Kind: s.d.KindOf(declared)}
		if c.Kind == schema.KindText {
			if maxLen.Valid && maxLen.Int64 > 0 {
				c.MaxLength = int(maxLen.Int64)
			} else {
				c.MaxLength = schema.LengthOf(declared)
			}
		}
		cs[name] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: describe %s: %w", s.d.Name(), table, err)
	}
	if len(cs) == 0 {
		return nil, fmt.Errorf("%s: table %s not found", s.d.Name(), table)
	}
	return cs, nil
}

// Fetch implements storage.Store.
func (s *Store) Fetch(ctx context.Context, table string, key mapping.Key, columns []string) (map[string]any, bool, error) {
	if len(columns) == 0 {
		columns = key.Columns
	}
	q := storage.SelectSQL(s.d, table, key.Columns, columns)
	rows, err := s.conn.QueryContext(ctx, q, key.Values...)
	if err != nil {
		return nil, false, fmt.Errorf("%s: fetch %s: %w", s.d.Name(), key, s.d.Classify(err))
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, fmt.Errorf("%s: fetch %s: %w", s.d.Name(), key, err)
		}
		return nil, false, nil
	}
	vals := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, false, fmt.Errorf("%s: fetch %s: scan: %w", s.d.Name(), key, err)
	}
	out := make(map[string]any, len(columns))
	for i, c := range columns {
		out[c] = Normalize(vals[i])
	}
	return out, true, nil
}

// Begin implements storage.Store.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", s.d.Name(), err)
	}
	return &Tx{tx: tx, d: s.d}, nil
}

// Close releases the connection and then runs the close hook.
func (s *Store) Close() error {
	err := s.conn.Close()
	if s.closeFn != nil {
		err = errors.Join(err, s.closeFn())
	}
	return err
}

// Tx is a storage.Tx over *sql.Tx.
type Tx struct {
	tx *sql.Tx
	d  Dialect
}

// Upsert implements storage.Tx.
func (t *Tx) Upsert(ctx context.Context, table string, keyColumns []string, row map[string]any) ([]any, error) {
	cols := storage.SortedColumns(row)
	q, returning := t.d.Upsert(table, keyColumns, cols)
	args := storage.Args(row, cols)

	if !returning {
		if _, err := t.tx.ExecContext(ctx, q, args...); err != nil {
			return nil, fmt.Errorf("%s: upsert %s: %w", t.d.Name(), table, t.d.Classify(err))
		}
		return storage.Args(row, keyColumns), nil
	}

	ids := make([]any, len(keyColumns))
	ptrs := make([]any, len(keyColumns))
	for i := range ids {
		ptrs[i] = &ids[i]
	}
	if err := t.tx.QueryRowContext(ctx, q, args...).Scan(ptrs...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: upsert %s: %w", t.d.Name(), table, storage.ErrNoIdentity)
		}
		return nil, fmt.Errorf("%s: upsert %s: %w", t.d.Name(), table, t.d.Classify(err))
	}
	for i := range ids {
		ids[i] = Normalize(ids[i])
	}
	return ids, nil
}

// Update implements storage.Tx.
func (t *Tx) Update(ctx context.Context, table string, key mapping.Key, set map[string]any) (int64, error) {
	cols := storage.SortedColumns(set)
	q := storage.UpdateSQL(t.d, table, key.Columns, cols)
	args := append(storage.Args(set, cols), key.Values...)
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: update %s %s: %w", t.d.Name(), table, key, t.d.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: update %s %s: rows affected: %w", t.d.Name(), table, key, err)
	}
	return n, nil
}

// Commit implements storage.Tx.
func (t *Tx) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", t.d.Name(), t.d.Classify(err))
	}
	return nil
}

// Rollback implements storage.Tx. Rolling back a finished transaction is not
// an error.
func (t *Tx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: rollback: %w", t.d.Name(), err)
	}
	return nil
}

// Normalize converts driver values into the plain forms the change detector
// compares: []byte becomes string, everything else is returned unchanged.
func Normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// SplitTable splits "schema.table" into its parts. The schema is empty when
// the name is unqualified.
func SplitTable(name string) (schemaName, table string) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
