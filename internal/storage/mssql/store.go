// Package mssql wires SQL Server into the storage factory using
// github.com/microsoft/go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/microsoft/go-mssqldb/msdsn"

	"shopetl/internal/storage"
	"shopetl/internal/storage/sqlstore"
)

// openDB is a test hook that points to sql.Open by default.
var openDB = func(dsn string) (*sql.DB, error) { return sql.Open("sqlserver", dsn) }

// Open validates dsn, opens a pool and pins one connection for a batch.
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := openDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	st, err := sqlstore.Open(ctx, db, Dialect{}, db.Close)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		return Open(ctx, cfg.DSN)
	})
}
