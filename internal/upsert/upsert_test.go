package upsert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"shopetl/internal/detect"
	"shopetl/internal/mapping"
	"shopetl/internal/storage"
	"shopetl/internal/storage/sqlite"
	"shopetl/internal/storage/sqlstore"
)

const ordersDDL = `CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	price NUMERIC,
	note TEXT
)`

func openStore(t *testing.T) (*sqlstore.Store, *sql.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	side, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open side: %v", err)
	}
	t.Cleanup(func() { _ = side.Close() })
	if _, err := side.Exec(ordersDDL); err != nil {
		t.Fatalf("create: %v", err)
	}
	st, err := sqlite.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, side
}

func cand(rec mapping.Record) detect.Candidate {
	return detect.Candidate{
		Table:  "orders",
		Key:    mapping.Key{Columns: []string{"id"}, Values: []any{rec["id"]}},
		Record: rec,
	}
}

// countingBeginner fails the test if a transaction is ever opened.
type countingBeginner struct{ begun int }

func (c *countingBeginner) Begin(ctx context.Context) (storage.Tx, error) {
	c.begun++
	return nil, errors.New("unexpected Begin")
}

func TestExecute_SkipsWithoutTouchingStore(t *testing.T) {
	t.Parallel()

	b := &countingBeginner{}
	e := New(b, nil, nil)
	ctx := context.Background()

	missing := e.Execute(ctx, detect.Decision{Action: detect.Insert}, cand(mapping.Record{"id": nil, "name": "x"}))
	if missing.Kind != Skipped || missing.Message != ReasonMissingIdentity {
		t.Fatalf("missing identity = %+v", missing)
	}
	blank := e.Execute(ctx, detect.Decision{Action: detect.Insert}, cand(mapping.Record{"id": "  ", "name": "x"}))
	if blank.Kind != Skipped || blank.Message != ReasonMissingIdentity {
		t.Fatalf("blank identity = %+v", blank)
	}
	noop := e.Execute(ctx, detect.Decision{Action: detect.NoOp}, cand(mapping.Record{"id": int64(1)}))
	if noop.Kind != Skipped || noop.Message != ReasonNoChanges {
		t.Fatalf("noop = %+v", noop)
	}
	if b.begun != 0 {
		t.Fatalf("Begin called %d times, want 0", b.begun)
	}
}

func TestExecute_InsertThenUpdate(t *testing.T) {
	t.Parallel()

	st, side := openStore(t)
	e := New(st, nil, nil)
	ctx := context.Background()

	rec := mapping.Record{"id": int64(42), "name": "#42", "price": 19.99, "note": nil}
	res := e.Execute(ctx, detect.Decision{Action: detect.Insert}, cand(rec))
	if res.Kind != Inserted {
		t.Fatalf("insert = %+v", res)
	}
	if !reflect.DeepEqual(res.Identity, []any{int64(42)}) {
		t.Fatalf("identity = %#v", res.Identity)
	}

	rec = mapping.Record{"id": int64(42), "name": "#42", "price": 21.5, "note": "gift"}
	res = e.Execute(ctx, detect.Decision{Action: detect.Update, Columns: []string{"note", "price"}}, cand(rec))
	if res.Kind != Updated {
		t.Fatalf("update = %+v", res)
	}

	var (
		price float64
		note  string
	)
	if err := side.QueryRow("SELECT price, note FROM orders WHERE id = 42").Scan(&price, &note); err != nil {
		t.Fatalf("select: %v", err)
	}
	if price != 21.5 || note != "gift" {
		t.Fatalf("row = %v, %q", price, note)
	}
}

func TestExecute_UpdateOfVanishedRowErrors(t *testing.T) {
	t.Parallel()

	st, _ := openStore(t)
	e := New(st, nil, nil)
	res := e.Execute(context.Background(), detect.Decision{Action: detect.Update, Columns: []string{"note"}},
		cand(mapping.Record{"id": int64(9), "note": "x"}))
	if res.Kind != Errored || !errors.Is(res.Err, ErrStatement) {
		t.Fatalf("update missing row = %+v", res)
	}
}

func TestExecute_ConstraintViolationRollsBack(t *testing.T) {
	t.Parallel()

	st, side := openStore(t)
	// name is NOT NULL; listing it as required forces the NULL into the insert.
	e := New(st, []string{"name"}, nil)

	res := e.Execute(context.Background(), detect.Decision{Action: detect.Insert}, cand(mapping.Record{"id": int64(3), "name": nil, "price": 1.0}))
	if res.Kind != Errored {
		t.Fatalf("Kind = %v, want errored", res.Kind)
	}
	if !errors.Is(res.Err, ErrStatement) || !errors.Is(res.Err, storage.ErrConstraint) {
		t.Fatalf("Err = %v, want ErrStatement wrapping ErrConstraint", res.Err)
	}
	if !strings.Contains(res.Message, "id=3") {
		t.Fatalf("Message %q does not name the key", res.Message)
	}

	var n int
	if err := side.QueryRow("SELECT COUNT(*) FROM orders").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("rows = %d, want 0", n)
	}

	// The store is still usable for the next record.
	ok := e.Execute(context.Background(), detect.Decision{Action: detect.Insert}, cand(mapping.Record{"id": int64(4), "name": "#4"}))
	if ok.Kind != Inserted {
		t.Fatalf("next insert = %+v", ok)
	}
}

func TestInsertRow_OmitsNilsKeepsKeyAndRequired(t *testing.T) {
	t.Parallel()

	e := New(nil, []string{"order_id"}, nil)
	row := e.insertRow(cand(mapping.Record{"id": int64(1), "name": "x", "note": nil, "order_id": nil}))
	want := map[string]any{"id": int64(1), "name": "x", "order_id": nil}
	if !reflect.DeepEqual(row, want) {
		t.Fatalf("insertRow = %#v, want %#v", row, want)
	}
}
