// Package detect decides whether a mapped record needs to be written: insert
// when no row carries its identity, update only the columns whose stored
// value differs, or nothing at all.
package detect

import (
	"context"
	"errors"
	"fmt"

	"shopetl/internal/mapping"
	"shopetl/internal/schema"
	"shopetl/internal/storage"
)

// ErrComparison marks a lookup or comparison that failed. The decision that
// accompanies it is always Insert.
var ErrComparison = errors.New("comparison failed")

// Action is what the executor should do with a candidate.
type Action int

const (
	Insert Action = iota
	Update
	NoOp
)

func (a Action) String() string {
	switch a {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case NoOp:
		return "noop"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Decision is the outcome of NeedsWrite. Columns lists the differing columns
// of an Update, sorted.
type Decision struct {
	Action  Action
	Columns []string
}

// Candidate is a mapped, derived record bound for table.
type Candidate struct {
	Table  string
	Key    mapping.Key
	Record mapping.Record
}

// Fetcher loads stored rows by identity. storage.Store satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, table string, key mapping.Key, columns []string) (map[string]any, bool, error)
}

// NeedsWrite compares c against the stored row with the same identity.
//
// The returned Decision is always usable. A non-nil error wraps
// ErrComparison and means the lookup failed and Insert was chosen so the
// record is not lost; callers log it and carry on.
func NeedsWrite(ctx context.Context, c Candidate, s schema.ColumnSchema, f Fetcher) (Decision, error) {
	cols := storage.NonKey(storage.SortedColumns(c.Record), c.Key.Columns)

	stored, found, err := f.Fetch(ctx, c.Table, c.Key, cols)
	if err != nil {
		return Decision{Action: Insert}, fmt.Errorf("%w: lookup %s: %w", ErrComparison, c.Key, err)
	}
	if !found {
		return Decision{Action: Insert}, nil
	}

	var diff []string
	for _, col := range cols {
		sv, ok := stored[col]
		if !ok {
			diff = append(diff, col)
			continue
		}
		k, _ := s.Lookup(col)
		if !Equal(k.Kind, c.Record[col], sv) {
			diff = append(diff, col)
		}
	}
	if len(diff) == 0 {
		return Decision{Action: NoOp}, nil
	}
	return Decision{Action: Update, Columns: diff}, nil
}
