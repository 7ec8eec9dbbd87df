package storage

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// dollar is a Postgres-shaped dialect used to check the shared builders.
type dollar struct{}

func (dollar) Quote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
func (dollar) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (d dollar) Upsert(table string, key, columns []string) (string, bool) {
	return ConflictUpsert(d, table, key, columns), true
}

func TestSelectSQL(t *testing.T) {
	t.Parallel()

	got := SelectSQL(dollar{}, "public.orders", []string{"id"}, []string{"name", "total"})
	want := `SELECT "name", "total" FROM "public"."orders" WHERE "id" = $1`
	if got != want {
		t.Fatalf("SelectSQL = %q, want %q", got, want)
	}

	got = SelectSQL(dollar{}, "levels", []string{"item", "loc"}, nil)
	want = `SELECT "item", "loc" FROM "levels" WHERE "item" = $1 AND "loc" = $2`
	if got != want {
		t.Fatalf("SelectSQL(no columns) = %q, want %q", got, want)
	}
}

func TestUpdateSQL_BindsKeyAfterColumns(t *testing.T) {
	t.Parallel()

	got := UpdateSQL(dollar{}, "levels", []string{"item", "loc"}, []string{"available"})
	want := `UPDATE "levels" SET "available" = $1 WHERE "item" = $2 AND "loc" = $3`
	if got != want {
		t.Fatalf("UpdateSQL = %q, want %q", got, want)
	}
}

func TestConflictUpsert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     []string
		columns []string
		want    string
	}{
		{
			name:    "non-key columns updated",
			key:     []string{"id"},
			columns: []string{"id", "name", "price"},
			want: `INSERT INTO "t" ("id", "name", "price") VALUES ($1, $2, $3) ` +
				`ON CONFLICT ("id") DO UPDATE SET "name" = EXCLUDED."name", "price" = EXCLUDED."price" RETURNING "id"`,
		},
		{
			name:    "key only assigns key",
			key:     []string{"a", "b"},
			columns: []string{"a", "b"},
			want: `INSERT INTO "t" ("a", "b") VALUES ($1, $2) ` +
				`ON CONFLICT ("a", "b") DO UPDATE SET "a" = EXCLUDED."a", "b" = EXCLUDED."b" RETURNING "a", "b"`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ConflictUpsert(dollar{}, "t", tt.key, tt.columns); got != tt.want {
				t.Fatalf("ConflictUpsert =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestSortedColumnsAndArgs(t *testing.T) {
	t.Parallel()

	row := map[string]any{"b": 2, "a": 1, "c": nil}
	cols := SortedColumns(row)
	if !reflect.DeepEqual(cols, []string{"a", "b", "c"}) {
		t.Fatalf("SortedColumns = %v", cols)
	}
	if got := Args(row, cols); !reflect.DeepEqual(got, []any{1, 2, nil}) {
		t.Fatalf("Args = %v", got)
	}
	if got := NonKey(cols, []string{"b"}); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("NonKey = %v", got)
	}
}

func TestQuoteTable_EscapesQuotes(t *testing.T) {
	t.Parallel()

	if got, want := QuoteTable(dollar{}, `s.we"ird`), `"s"."we""ird"`; got != want {
		t.Fatalf("QuoteTable = %q, want %q", got, want)
	}
}
