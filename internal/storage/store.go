// Package storage defines the destination-store seam used by the reconciler
// and the factory that resolves a configured backend kind to a Store.
//
// A Store is one exclusive connection held for the duration of a batch. Each
// record's writes happen inside their own Tx so a failing statement rolls back
// that record only.
package storage

import (
	"context"
	"errors"
	"time"

	"shopetl/internal/mapping"
	"shopetl/internal/schema"
)

// ErrConstraint marks a statement rejected by a table constraint (unique,
// not null, foreign key, check). Backends wrap driver errors with it.
var ErrConstraint = errors.New("constraint violation")

// ErrNoIdentity is returned by Tx.Upsert when the statement did not report
// the identity of the written row.
var ErrNoIdentity = errors.New("upsert returned no identity")

// Config selects and parameterizes a backend.
type Config struct {
	Kind string
	DSN  string

	// ConnectTimeout bounds opening the connection and the initial ping.
	// Zero means no bound beyond the caller's context.
	ConnectTimeout time.Duration
}

// Store is a connection to the destination held by one batch.
type Store interface {
	// Describe returns the column metadata of table. A table that does not
	// exist yields an error.
	Describe(ctx context.Context, table string) (schema.ColumnSchema, error)

	// Fetch loads columns of the row identified by key. The bool is false
	// when no such row exists.
	Fetch(ctx context.Context, table string, key mapping.Key, columns []string) (map[string]any, bool, error)

	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is one record's commit boundary.
type Tx interface {
	// Upsert inserts row or, when keyColumns conflict with an existing row,
	// overwrites its non-key columns. It returns the identity values the
	// store reports for the written row, in keyColumns order.
	Upsert(ctx context.Context, table string, keyColumns []string, row map[string]any) ([]any, error)

	// Update sets the given columns on the row identified by key and
	// returns the number of rows affected.
	Update(ctx context.Context, table string, key mapping.Key, set map[string]any) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
