// Package postgres implements storage.Store on a single pgx connection. The
// batch owns the connection; each record runs in its own pgx.Tx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"shopetl/internal/mapping"
	"shopetl/internal/schema"
	"shopetl/internal/storage"
)

// Dialect renders Postgres statements.
type Dialect struct{}

// Quote safely quotes a single identifier segment.
func (Dialect) Quote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (d Dialect) Upsert(table string, key, columns []string) (string, bool) {
	return storage.ConflictUpsert(d, table, key, columns), true
}

const columnsSQL = `SELECT column_name::text, data_type::text, character_maximum_length::int
FROM information_schema.columns
WHERE table_schema = COALESCE($1::text, current_schema()) AND table_name = $2
ORDER BY ordinal_position`

// connect is a test hook that points to pgx.ConnectConfig by default.
var connect = pgx.ConnectConfig

// Store is a storage.Store over *pgx.Conn.
type Store struct {
	conn *pgx.Conn
	d    Dialect
}

var _ storage.Store = (*Store)(nil)

// Open connects to dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Store{conn: conn}, nil
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Describe implements storage.Store. Unqualified names resolve against the
// session's current_schema().
func (s *Store) Describe(ctx context.Context, table string) (schema.ColumnSchema, error) {
	var schemaName any
	name := table
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		schemaName, name = table[:i], table[i+1:]
	}
	rows, err := s.conn.Query(ctx, columnsSQL, schemaName, name)
	if err != nil {
		return nil, fmt.Errorf("postgres: describe %s: %w", table, err)
	}
	defer rows.Close()

	cs := schema.ColumnSchema{}
	for rows.Next() {
		var (
			col, declared string
			maxLen        pgtype.Int4
		)
		if err := rows.Scan(&col, &declared, &maxLen); err != nil {
			return nil, fmt.Errorf("postgres: describe %s: scan: %w", table, err)
		}
		c := schema.Column{Name: col, Kind: schema.KindOf(declared)}
		if c.Kind == schema.KindText && maxLen.Valid {
			c.MaxLength = int(maxLen.Int32)
		}
		cs[col] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: describe %s: %w", table, err)
	}
	if len(cs) == 0 {
		return nil, fmt.Errorf("postgres: table %s not found", table)
	}
	return cs, nil
}

// Fetch implements storage.Store.
func (s *Store) Fetch(ctx context.Context, table string, key mapping.Key, columns []string) (map[string]any, bool, error) {
	if len(columns) == 0 {
		columns = key.Columns
	}
	rows, err := s.conn.Query(ctx, storage.SelectSQL(s.d, table, key.Columns, columns), key.Values...)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: fetch %s: %w", key, classify(err))
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, fmt.Errorf("postgres: fetch %s: %w", key, classify(err))
		}
		return nil, false, nil
	}
	vals, err := rows.Values()
	if err != nil {
		return nil, false, fmt.Errorf("postgres: fetch %s: values: %w", key, err)
	}
	out := make(map[string]any, len(columns))
	for i, c := range columns {
		out[c] = normalize(vals[i])
	}
	return out, true, nil
}

// Begin implements storage.Store.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &Tx{tx: tx, d: s.d}, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	ctx := context.Background()
	return s.conn.Close(ctx)
}

// Tx is a storage.Tx over pgx.Tx.
type Tx struct {
	tx pgx.Tx
	d  Dialect
}

// Upsert implements storage.Tx using INSERT .. ON CONFLICT .. RETURNING.
func (t *Tx) Upsert(ctx context.Context, table string, keyColumns []string, row map[string]any) ([]any, error) {
	cols := storage.SortedColumns(row)
	q, _ := t.d.Upsert(table, keyColumns, cols)

	ids := make([]any, len(keyColumns))
	ptrs := make([]any, len(keyColumns))
	for i := range ids {
		ptrs[i] = &ids[i]
	}
	if err := t.tx.QueryRow(ctx, q, storage.Args(row, cols)...).Scan(ptrs...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: upsert %s: %w", table, storage.ErrNoIdentity)
		}
		return nil, fmt.Errorf("postgres: upsert %s: %w", table, classify(err))
	}
	for i := range ids {
		ids[i] = normalize(ids[i])
	}
	return ids, nil
}

// Update implements storage.Tx.
func (t *Tx) Update(ctx context.Context, table string, key mapping.Key, set map[string]any) (int64, error) {
	cols := storage.SortedColumns(set)
	args := append(storage.Args(set, cols), key.Values...)
	tag, err := t.tx.Exec(ctx, storage.UpdateSQL(t.d, table, key.Columns, cols), args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: update %s %s: %w", table, key, classify(err))
	}
	return tag.RowsAffected(), nil
}

// Commit implements storage.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", classify(err))
	}
	return nil
}

// Rollback implements storage.Tx. Rolling back a closed transaction is not an
// error.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

// classify wraps integrity constraint violations (SQLSTATE class 23) with
// storage.ErrConstraint.
func classify(err error) error {
	var pe *pgconn.PgError
	if errors.As(err, &pe) && strings.HasPrefix(pe.Code, "23") {
		return fmt.Errorf("%w (sqlstate %s): %w", storage.ErrConstraint, pe.Code, err)
	}
	return err
}

// normalize converts pgx decoded values into the plain forms the change
// detector compares. Numerics become float64; NaN and infinities stay
// pgtype.Numeric.
func normalize(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return t
		}
		return f.Float64
	case []byte:
		return string(t)
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", t[0:4], t[4:6], t[6:8], t[8:10], t[10:16])
	}
	return v
}
