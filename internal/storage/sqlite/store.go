// Package sqlite wires the SQLite backend into the storage factory. The
// driver is modernc.org/sqlite (pure Go, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"shopetl/internal/storage"
	"shopetl/internal/storage/sqlstore"
)

// openDB is a test hook that points to sql.Open by default.
var openDB = func(dsn string) (*sql.DB, error) { return sql.Open("sqlite", dsn) }

// Open opens dsn and pins a connection for one batch. DSN is passed to the
// driver unchanged, for example:
//
//	"file:shop.db?_pragma=busy_timeout(5000)"
//	"file:batch?mode=memory&cache=shared"
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := openDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	st, err := sqlstore.Open(ctx, db, Dialect{}, db.Close)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		return Open(ctx, cfg.DSN)
	})
}
