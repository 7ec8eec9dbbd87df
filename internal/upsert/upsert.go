// Package upsert writes one decided record to the store inside its own
// transaction and reports what happened.
package upsert

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shopetl/internal/detect"
	"shopetl/internal/mapping"
	"shopetl/internal/storage"
)

// ErrStatement marks a failed INSERT, UPDATE or commit. The record's work
// was rolled back.
var ErrStatement = errors.New("store statement failed")

// Kind is the terminal state of one record.
type Kind int

const (
	Inserted Kind = iota
	Updated
	Skipped
	Errored
)

func (k Kind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Skip reasons. Both are Skipped outcomes; the text tells them apart.
const (
	ReasonMissingIdentity = "missing identity"
	ReasonNoChanges       = "no changes detected"
)

// Result is the outcome of Execute.
type Result struct {
	Kind Kind

	// Message is the skip reason or the error text.
	Message string

	// Err is set for Errored results and wraps ErrStatement.
	Err error

	// Identity holds the key values the store reported for a write.
	Identity []any
}

// Beginner opens per-record transactions. storage.Store satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (storage.Tx, error)
}

// Executor applies decisions to one store.
type Executor struct {
	store    Beginner
	required []string
	log      *zap.SugaredLogger
}

// New returns an Executor writing through store. required names columns that
// are always part of an insert, even when nil.
func New(store Beginner, required []string, log *zap.SugaredLogger) *Executor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Executor{store: store, required: required, log: log}
}

// Execute carries out d for c. It never panics on store failures; they come
// back as Errored results.
func (e *Executor) Execute(ctx context.Context, d detect.Decision, c detect.Candidate) Result {
	if !c.Key.Complete() {
		return Result{Kind: Skipped, Message: ReasonMissingIdentity}
	}
	switch d.Action {
	case detect.NoOp:
		return Result{Kind: Skipped, Message: ReasonNoChanges}
	case detect.Update:
		if len(d.Columns) == 0 {
			return Result{Kind: Skipped, Message: ReasonNoChanges}
		}
		return e.inTx(ctx, c, func(tx storage.Tx) (Result, error) {
			set := make(map[string]any, len(d.Columns))
			for _, col := range d.Columns {
				set[col] = c.Record[col]
			}
			n, err := tx.Update(ctx, c.Table, c.Key, set)
			if err != nil {
				return Result{}, err
			}
			if n == 0 {
				return Result{}, fmt.Errorf("update %s: no row matched", c.Key)
			}
			return Result{Kind: Updated, Identity: c.Key.Values}, nil
		})
	default:
		return e.inTx(ctx, c, func(tx storage.Tx) (Result, error) {
			ids, err := tx.Upsert(ctx, c.Table, c.Key.Columns, e.insertRow(c))
			if err != nil {
				return Result{}, err
			}
			if len(ids) != len(c.Key.Columns) {
				return Result{}, storage.ErrNoIdentity
			}
			for _, id := range ids {
				if id == nil {
					return Result{}, storage.ErrNoIdentity
				}
			}
			return Result{Kind: Inserted, Identity: ids}, nil
		})
	}
}

// insertRow returns the non-nil columns of c plus the key and the required
// columns.
func (e *Executor) insertRow(c detect.Candidate) map[string]any {
	row := make(map[string]any, len(c.Record))
	for col, v := range c.Record {
		if v != nil {
			row[col] = v
		}
	}
	for i, col := range c.Key.Columns {
		row[col] = c.Key.Values[i]
	}
	for _, col := range e.required {
		if _, ok := row[col]; !ok {
			row[col] = c.Record[col]
		}
	}
	return row
}

// inTx runs fn in a fresh transaction, committing on success and rolling
// back on failure. Rollback ignores cancellation of ctx so the transaction
// is always closed.
func (e *Executor) inTx(ctx context.Context, c detect.Candidate, fn func(storage.Tx) (Result, error)) Result {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return failed(c.Key, err)
	}
	res, err := fn(tx)
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			e.log.Warnw("upsert: rollback failed", "table", c.Table, "key", c.Key.String(), "err", rbErr)
		}
		return failed(c.Key, err)
	}
	return res
}

func failed(key mapping.Key, err error) Result {
	err = fmt.Errorf("%w: %s: %w", ErrStatement, key, err)
	return Result{Kind: Errored, Message: err.Error(), Err: err}
}
