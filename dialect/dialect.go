// Package dialect defines the thin database abstraction the runtime
// packages share. The loader and handlers only ever see the
// ExecQuerier subset, so a pinned connection or a transaction can
// stand in for the pool.
//
// Only PostgreSQL is supported.
package dialect

import (
	"context"
	"database/sql"
)

// Postgres is the single supported dialect name, as registered with
// database/sql (the pgx stdlib adapter registers "pgx").
const Postgres = "postgres"

// ExecQuerier wraps the standard Exec and Query methods. *sql.DB,
// *sql.Tx and *sql.Conn all satisfy it.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Driver is the database handle injected into generated servers.
type Driver interface {
	ExecQuerier
	// Tx starts a transaction.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying pool.
	Close() error
}

// Tx is a transaction view of a Driver.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}
