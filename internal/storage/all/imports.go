// Package all wires every built-in storage backend into the storage factory.
//
// Importing it for side effects makes these kinds available to storage.New:
//
//   - "postgres" (pgx)
//   - "mysql"    (go-sql-driver/mysql)
//   - "mssql"    (go-mssqldb)
//   - "sqlite"   (modernc.org/sqlite)
//
// A binary that needs only a subset can import the backend packages it wants
// instead.
package all

import (
	_ "shopetl/internal/storage/mssql"
	_ "shopetl/internal/storage/mysql"
	_ "shopetl/internal/storage/postgres"
	_ "shopetl/internal/storage/sqlite"
)
