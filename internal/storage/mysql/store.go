// Package mysql wires MySQL into the storage factory using
// github.com/go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"shopetl/internal/storage"
	"shopetl/internal/storage/sqlstore"
)

// Open parses dsn, opens a pool through the driver's connector and pins one
// connection for a batch. Affected-row counts report matched rows so an
// update that rewrites identical values still counts as found.
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	cfg.ClientFoundRows = true
	conn, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(conn)
	st, err := sqlstore.Open(ctx, db, Dialect{}, db.Close)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		return Open(ctx, cfg.DSN)
	})
}
