package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"shopetl/internal/mapping"
	"shopetl/internal/schema"
	"shopetl/internal/storage"
	"shopetl/internal/storage/sqlstore"
)

/*
Package-level test helpers (TB-aware)
*/

// memDSN names a shared-cache in-memory database unique to the test so a
// side connection can inspect what the store wrote.
func memDSN(tb testing.TB) string {
	n := strings.NewReplacer("/", "_", " ", "_", ":", "_").Replace(tb.Name())
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", n)
}

func newSide(tb testing.TB, dsn string, ddl ...string) *sql.DB {
	tb.Helper()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		tb.Fatalf("open %s: %v", dsn, err)
	}
	tb.Cleanup(func() { _ = db.Close() })
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			tb.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return db
}

func newStore(tb testing.TB, dsn string) *sqlstore.Store {
	tb.Helper()
	st, err := Open(context.Background(), dsn)
	if err != nil {
		tb.Fatalf("Open: %v", err)
	}
	tb.Cleanup(func() { _ = st.Close() })
	return st
}

const ordersDDL = `CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	name VARCHAR(8) NOT NULL,
	total NUMERIC,
	paid BOOLEAN,
	created_at DATETIME,
	note TEXT
)`

const levelsDDL = `CREATE TABLE levels (
	item INTEGER NOT NULL,
	loc INTEGER NOT NULL,
	available INTEGER,
	PRIMARY KEY (item, loc)
)`

/*
Unit tests
*/

func TestDescribe(t *testing.T) {
	t.Parallel()

	dsn := memDSN(t)
	newSide(t, dsn, ordersDDL)
	st := newStore(t, dsn)

	cs, err := st.Describe(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	want := schema.ColumnSchema{
		"id":         {Name: "id", Kind: schema.KindInteger},
		"name":       {Name: "name", Kind: schema.KindText, MaxLength: 8},
		"total":      {Name: "total", Kind: schema.KindDecimal},
		"paid":       {Name: "paid", Kind: schema.KindBoolean},
		"created_at": {Name: "created_at", Kind: schema.KindTimestamp},
		"note":       {Name: "note", Kind: schema.KindText},
	}
	if !reflect.DeepEqual(cs, want) {
		t.Fatalf("Describe = %#v\nwant %#v", cs, want)
	}

	if _, err := st.Describe(context.Background(), "missing"); err == nil {
		t.Fatalf("Describe(missing) succeeded, want error")
	}
}

func TestUpsertFetchUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := memDSN(t)
	newSide(t, dsn, ordersDDL)
	st := newStore(t, dsn)

	key := mapping.Key{Columns: []string{"id"}, Values: []any{int64(42)}}
	if _, found, err := st.Fetch(ctx, "orders", key, []string{"name"}); err != nil || found {
		t.Fatalf("Fetch before insert = found %v, err %v", found, err)
	}

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ids, err := tx.Upsert(ctx, "orders", []string{"id"}, map[string]any{"id": int64(42), "name": "#42", "total": 19.99})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !reflect.DeepEqual(ids, []any{int64(42)}) {
		t.Fatalf("Upsert ids = %#v, want [42]", ids)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	row, found, err := st.Fetch(ctx, "orders", key, []string{"name", "total", "note"})
	if err != nil || !found {
		t.Fatalf("Fetch = found %v, err %v", found, err)
	}
	if row["name"] != "#42" || row["total"] != 19.99 || row["note"] != nil {
		t.Fatalf("Fetch row = %#v", row)
	}

	tx, _ = st.Begin(ctx)
	n, err := tx.Update(ctx, "orders", key, map[string]any{"note": "hello"})
	if err != nil || n != 1 {
		t.Fatalf("Update = %d, %v", n, err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	row, _, _ = st.Fetch(ctx, "orders", key, []string{"note"})
	if row["note"] != "hello" {
		t.Fatalf("note = %#v, want hello", row["note"])
	}

	// A second upsert of the same key overwrites rather than duplicates.
	tx, _ = st.Begin(ctx)
	if _, err := tx.Upsert(ctx, "orders", []string{"id"}, map[string]any{"id": int64(42), "name": "#42b"}); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	_ = tx.Commit(ctx)
	row, _, _ = st.Fetch(ctx, "orders", key, []string{"name", "note"})
	if row["name"] != "#42b" || row["note"] != "hello" {
		t.Fatalf("after second upsert row = %#v", row)
	}
}

func TestUpsert_CompositeKeyOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := memDSN(t)
	newSide(t, dsn, levelsDDL)
	st := newStore(t, dsn)

	for i := 0; i < 2; i++ {
		tx, _ := st.Begin(ctx)
		ids, err := tx.Upsert(ctx, "levels", []string{"item", "loc"}, map[string]any{"item": int64(1), "loc": int64(2)})
		if err != nil {
			t.Fatalf("Upsert #%d: %v", i, err)
		}
		if !reflect.DeepEqual(ids, []any{int64(1), int64(2)}) {
			t.Fatalf("Upsert #%d ids = %#v", i, ids)
		}
		_ = tx.Commit(ctx)
	}
}

func TestUpsert_ConstraintRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := memDSN(t)
	side := newSide(t, dsn, ordersDDL)
	st := newStore(t, dsn)

	tx, _ := st.Begin(ctx)
	_, err := tx.Upsert(ctx, "orders", []string{"id"}, map[string]any{"id": int64(1), "name": nil})
	if !errors.Is(err, storage.ErrConstraint) {
		t.Fatalf("Upsert(name=nil) err = %v, want ErrConstraint", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("second Rollback: %v", err)
	}

	var n int
	if err := side.QueryRow("SELECT COUNT(*) FROM orders").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("rows after rollback = %d, want 0", n)
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatalf("Open(empty) succeeded, want error")
	}
}

func TestRegistered(t *testing.T) {
	t.Parallel()

	dsn := memDSN(t)
	newSide(t, dsn, ordersDDL)
	st, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer st.Close()
	if _, err := st.Describe(context.Background(), "orders"); err != nil {
		t.Fatalf("Describe via factory: %v", err)
	}
}

func TestDialect(t *testing.T) {
	t.Parallel()

	q, args := Dialect{}.ColumnsQuery("aux.orders")
	if q != "SELECT name, type, NULL FROM pragma_table_info(?, ?)" || !reflect.DeepEqual(args, []any{"orders", "aux"}) {
		t.Fatalf("ColumnsQuery = %q %v", q, args)
	}
	if err := (Dialect{}).Classify(errors.New("x")); errors.Is(err, storage.ErrConstraint) {
		t.Fatalf("plain error classified as constraint")
	}
}
