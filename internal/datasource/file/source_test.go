package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shopetl/internal/config"
	"shopetl/internal/datasource"
	"shopetl/internal/document"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func ids(t *testing.T, docs []document.Value) string {
	t.Helper()
	out := make([]string, len(docs))
	for i, d := range docs {
		v := d.Get("id")
		if lit, ok := v.Literal(); ok {
			out[i] = lit
			continue
		}
		s, _ := v.Str()
		out[i] = s
	}
	return strings.Join(out, ",")
}

func TestLocalOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "data.json", `{"id": 1}`)

	rc, err := NewLocal(p).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(got) != `{"id": 1}` {
		t.Fatalf("content = %q", got)
	}

	_, err = NewLocal(filepath.Join(dir, "missing.json")).Open(context.Background())
	if !errors.Is(err, os.ErrNotExist) || !strings.Contains(err.Error(), "open ") {
		t.Fatalf("missing file err = %v, want wrapped os.ErrNotExist", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocal(p).Open(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled ctx err = %v, want context.Canceled", err)
	}
}

func TestDecode_Shapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		envelope string
		want     string
		wantErr  bool
	}{
		{"array", `[{"id": 1}, {"id": 2}, 3]`, "", "1,2", false},
		{"single object", `{"id": 9, "line_items": [{"id": 1}]}`, "", "9", false},
		{"ndjson", "{\"id\": 1}\n{\"id\": 2}\n", "", "1,2", false},
		{"auto envelope", `{"orders": [{"id": 5}, {"id": 6}]}`, "", "5,6", false},
		{"named envelope", `{"orders": [{"id": 5}], "next_page": "abc"}`, "orders", "5", false},
		{"id-only object is a document", `{"id": [{"id": 1}]}`, "", "", false},
		{"scalar stream", `"hello"`, "", "", true},
		{"broken", `{"id": `, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			docs, err := Decode(strings.NewReader(tt.in), Options{Envelope: tt.envelope})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tt.name == "id-only object is a document" {
				if len(docs) != 1 {
					t.Fatalf("docs = %d, want 1", len(docs))
				}
				return
			}
			if got := ids(t, docs); got != tt.want {
				t.Fatalf("ids = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFresh(t *testing.T) {
	t.Parallel()

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		doc  string
		want bool
	}{
		{`{"updated_at": "2024-03-02T08:00:00-05:00"}`, true},
		{`{"updated_at": "2024-02-28T23:59:59Z"}`, false},
		{`{"updated_at": "2024-03-01"}`, true},
		{`{"updated_at": "2024-02-29 10:00:00"}`, false},
		{`{"updated_at": "soon"}`, true},
		{`{}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			t.Parallel()
			d, err := document.Parse([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := Fresh(d, Options{UpdatedSince: since}); got != tt.want {
				t.Fatalf("Fresh(%s) = %v, want %v", tt.doc, got, tt.want)
			}
		})
	}

	d, _ := document.Parse([]byte(`{"updated_at": "2000-01-01"}`))
	if !Fresh(d, Options{}) {
		t.Fatalf("zero cursor must keep every document")
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", `[{"id": 1, "updatedAt": "2024-01-01"}, {"id": 2, "updatedAt": "2024-05-01"}]`)
	b := writeFile(t, dir, "b.ndjson", "{\"id\": 3, \"updatedAt\": \"2024-06-01\"}\n")

	opt := FromConfigOptions(config.Options{"updated_field": "updatedAt"}, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	docs, st, err := Load(context.Background(), []datasource.Source{NewLocal(a), NewLocal(b)}, opt)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := ids(t, docs); got != "2,3" {
		t.Fatalf("ids = %q, want 2,3", got)
	}
	if st.Files != 2 || st.Documents != 2 || st.Filtered != 1 {
		t.Fatalf("stats = %+v", st)
	}

	bad := writeFile(t, dir, "bad.json", `{"id": `)
	if _, _, err := Load(context.Background(), []datasource.Source{NewLocal(bad)}, Options{}); err == nil || !strings.Contains(err.Error(), "bad.json") {
		t.Fatalf("Load(bad) err = %v, want one naming the file", err)
	}
}

func TestReadList(t *testing.T) {
	t.Parallel()

	p := writeFile(t, t.TempDir(), "list.txt", "\n# comment\nlater/*.json\n   # indented\n a.json \n")
	got, err := ReadList(p)
	if err != nil {
		t.Fatalf("ReadList: %v", err)
	}
	if strings.Join(got, "|") != "later/*.json|a.json" {
		t.Fatalf("ReadList = %q", got)
	}
	if _, err := ReadList(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatalf("ReadList(missing) error = nil")
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "inbox/orders-2.json", `[]`)
	writeFile(t, dir, "inbox/orders-1.json", `[]`)
	writeFile(t, dir, "inbox/extra/late.json", `[]`)
	if err := os.MkdirAll(filepath.Join(dir, "inbox", "orders-dir.json"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := writeFile(t, dir, "inbox/manifest.txt", "# today\nextra/*.json\norders-1.json\n")

	srcs, err := Resolve([]string{
		filepath.Join(dir, "inbox", "orders-*.json"),
		ManifestPrefix + manifest,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var names []string
	for _, s := range srcs {
		rel, _ := filepath.Rel(dir, s.Name())
		names = append(names, filepath.ToSlash(rel))
	}
	want := "inbox/orders-1.json,inbox/orders-2.json,inbox/extra/late.json"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("Resolve = %q, want %q", got, want)
	}

	if _, err := Resolve([]string{"[bad"}); err == nil {
		t.Fatalf("Resolve(bad glob) error = nil")
	}
	if _, err := Resolve([]string{ManifestPrefix + filepath.Join(dir, "missing.txt")}); err == nil {
		t.Fatalf("Resolve(missing manifest) error = nil")
	}
}
