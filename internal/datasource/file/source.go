// Package file reads batches of source documents from local files.
//
// A file may hold a JSON array of documents, a single document, an envelope
// object wrapping the array ({"orders": [...]}), or newline-delimited
// documents. Documents can be filtered by an "updated since" cursor.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"shopetl/internal/coerce"
	"shopetl/internal/config"
	"shopetl/internal/datasource"
	"shopetl/internal/document"
)

// Local is a filesystem data source that opens one file from the local disk.
type Local struct{ path string }

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Name returns the file path.
func (l *Local) Name() string { return l.path }

// Open opens the file for reading. A context that is already done is
// reported without touching the filesystem. Filesystem errors keep their
// cause for errors.Is (e.g. os.ErrNotExist).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}

// DefaultUpdatedField is compared with the cursor unless configured.
const DefaultUpdatedField = "updated_at"

// Options controls decoding and filtering.
type Options struct {
	// Envelope is the key of the document array inside an envelope object.
	// Empty means auto-detect: an object with a single array-of-objects
	// field and no "id" is treated as an envelope.
	Envelope string

	// UpdatedField is the document path holding its last-modified time.
	UpdatedField string

	// UpdatedSince drops documents updated strictly before it. Zero keeps
	// everything. Documents without a parseable timestamp are kept.
	UpdatedSince time.Time
}

// FromConfigOptions builds Options from an entity's option bag.
func FromConfigOptions(o config.Options, since time.Time) Options {
	return Options{
		Envelope:     o.String("envelope", ""),
		UpdatedField: o.String("updated_field", DefaultUpdatedField),
		UpdatedSince: since,
	}
}

// Stats describes one Load.
type Stats struct {
	Files     int
	Documents int
	Filtered  int
}

// Load reads every source in order and returns the documents they hold.
func Load(ctx context.Context, srcs []datasource.Source, opt Options) ([]document.Value, Stats, error) {
	var (
		out []document.Value
		st  Stats
	)
	for _, src := range srcs {
		docs, err := read(ctx, src, opt)
		if err != nil {
			return nil, st, err
		}
		st.Files++
		for _, d := range docs {
			if !Fresh(d, opt) {
				st.Filtered++
				continue
			}
			out = append(out, d)
		}
	}
	st.Documents = len(out)
	return out, st, nil
}

func read(ctx context.Context, src datasource.Source, opt Options) ([]document.Value, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	defer rc.Close()
	docs, err := Decode(rc, opt)
	if err != nil {
		return nil, fmt.Errorf("file: %s: %w", src.Name(), err)
	}
	return docs, nil
}

// Decode reads all documents from r.
func Decode(r io.Reader, opt Options) ([]document.Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	values, err := document.ParseAll(data)
	if err != nil {
		return nil, err
	}

	var out []document.Value
	for i, v := range values {
		switch v.Kind() {
		case document.Array:
			out = appendObjects(out, v)
		case document.Object:
			if arr, ok := envelope(v, opt.Envelope); ok {
				out = appendObjects(out, arr)
				continue
			}
			out = append(out, v)
		default:
			return nil, fmt.Errorf("value %d: want object or array, got %s", i+1, v.Kind())
		}
	}
	return out, nil
}

func appendObjects(out []document.Value, arr document.Value) []document.Value {
	for _, e := range arr.Elements() {
		if e.Kind() == document.Object {
			out = append(out, e)
		}
	}
	return out
}

// envelope returns the wrapped document array of v, if v is an envelope.
func envelope(v document.Value, key string) (document.Value, bool) {
	if key != "" {
		arr, ok := v.Field(key)
		return arr, ok && arr.Kind() == document.Array
	}
	keys := v.Keys()
	if len(keys) != 1 || strings.EqualFold(keys[0], "id") {
		return document.NullValue, false
	}
	arr, _ := v.Field(keys[0])
	if arr.Kind() != document.Array || arr.Len() == 0 {
		return document.NullValue, false
	}
	for _, e := range arr.Elements() {
		if e.Kind() != document.Object {
			return document.NullValue, false
		}
	}
	return arr, true
}

// Fresh reports whether d passes the UpdatedSince cursor.
func Fresh(d document.Value, opt Options) bool {
	if opt.UpdatedSince.IsZero() {
		return true
	}
	field := opt.UpdatedField
	if field == "" {
		field = DefaultUpdatedField
	}
	s, ok := d.Get(field).Str()
	if !ok {
		return true
	}
	t, ok := parseTime(s)
	if !ok {
		return true
	}
	return !t.Before(opt.UpdatedSince)
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	n := coerce.NormalizeTimestamp(s)
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if len(n) >= len(layout) {
			if t, err := time.Parse(layout, n[:len(layout)]); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
