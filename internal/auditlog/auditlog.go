// Package auditlog records skipped and errored reconciliation outcomes to a
// CSV file so operators can follow up without re-running a batch.
package auditlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"shopetl/internal/reconcile"
)

// Header is the first row of every audit file.
var Header = []string{"run_id", "entity", "key", "outcome", "stage", "message", "doc_hash"}

// Sink appends outcomes to one CSV file. It is safe for concurrent use by
// batches of different entities.
type Sink struct {
	mu      sync.Mutex
	f       *os.File
	w       *csv.Writer
	reasons map[string]int
}

// Open creates path (and its parent directories) or appends to it. The
// header is written only to an empty file.
func Open(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("auditlog: create dir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("auditlog: stat %s: %w", path, err)
	}
	s := &Sink{f: f, w: csv.NewWriter(f), reasons: make(map[string]int)}
	if fi.Size() == 0 {
		if err := s.w.Write(Header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("auditlog: write header: %w", err)
		}
	}
	return s, nil
}

// Write appends one outcome row.
func (s *Sink) Write(runID uuid.UUID, entity string, o reconcile.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reasons[o.Kind.String()+": "+reason(o)]++
	return s.w.Write([]string{
		runID.String(),
		entity,
		o.Key.String(),
		o.Kind.String(),
		o.Stage.String(),
		o.Message,
		o.Fingerprint,
	})
}

// Counts returns how many rows were written per "outcome: reason".
func (s *Sink) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.reasons))
	for k, v := range s.reasons {
		out[k] = v
	}
	return out
}

// Flush writes buffered rows to the file.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the file.
func (s *Sink) Close() error {
	ferr := s.Flush()
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("auditlog: close: %w", err)
	}
	return ferr
}

// reason collapses error text to its leading sentinel so counts group by
// cause rather than by record.
func reason(o reconcile.Outcome) string {
	if o.Kind != reconcile.Errored {
		return o.Message
	}
	for _, target := range []error{reconcile.ErrConstraint, reconcile.ErrStoreStatement} {
		if errors.Is(o.Err, target) {
			return target.Error()
		}
	}
	return o.Message
}
