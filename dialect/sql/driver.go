// Package sql implements dialect.Driver on database/sql for
// PostgreSQL, plus the session-variable plumbing the onRequest hook
// uses and map-based row scanning for the table-agnostic runtime.
package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/fabrica/dialect"
)

// validIdentifierRe validates session variable names (alphanumeric,
// underscores, dots for namespaced GUCs like app.user_id).
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// escapeStringValue doubles single quotes so a session variable value
// is safe inside a SET statement literal.
func escapeStringValue(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", "''")
}

// Driver wraps an *sql.DB as a dialect.Driver.
type Driver struct {
	Conn
}

// Open opens a PostgreSQL pool with the named database/sql driver
// ("pgx" or "postgres") and wraps it.
func Open(driverName, dsn string) (*Driver, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	return OpenDB(db), nil
}

// OpenDB wraps an existing pool.
func OpenDB(db *sql.DB) *Driver {
	return &Driver{Conn{db}}
}

// DB returns the underlying pool.
func (d *Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Tx starts and returns a transaction.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{Conn: Conn{tx}, tx: tx}, nil
}

// Close closes the underlying pool.
func (d *Driver) Close() error { return d.DB().Close() }

// Tx implements dialect.Tx.
type Tx struct {
	Conn
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback rolls the transaction back.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// ctxVarsKey is the key used for attaching and reading session
// variables from the context.
type ctxVarsKey struct{}

type sessionVars struct {
	vars []struct{ k, v string }
}

// WithVar returns a context that carries a session variable to set
// before every statement issued through a Conn. The onRequest hook
// uses this to scope per-request settings (e.g. app.user_id) to the
// connection the handler runs on.
func WithVar(ctx context.Context, name, value string) context.Context {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	sv.vars = append(sv.vars, struct{ k, v string }{k: name, v: value})
	return context.WithValue(ctx, ctxVarsKey{}, sv)
}

// WithIntVar calls WithVar with the decimal representation of value.
func WithIntVar(ctx context.Context, name string, value int) context.Context {
	return WithVar(ctx, name, strconv.Itoa(value))
}

// VarFromContext returns the session variable value from the context.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	for _, s := range sv.vars {
		if s.k == name {
			return s.v, true
		}
	}
	return "", false
}

// Conn implements dialect.ExecQuerier over any ExecQuerier and applies
// context session variables around each statement.
type Conn struct {
	dialect.ExecQuerier
}

// ExecContext runs a statement, applying session variables first.
func (c Conn) ExecContext(ctx context.Context, query string, args ...any) (res sql.Result, rerr error) {
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: exec: set session vars: %w", err)
	}
	if cf != nil {
		defer func() { rerr = errors.Join(rerr, cf()) }()
	}
	res, err = ex.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// QueryContext runs a query, applying session variables first.
// Variables need a stable session to be visible to the query, so a
// pool-backed Conn rejects the combination; the runtime pins a
// *sql.Conn per request (see httpapi) and queries through that.
func (c Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars); len(sv.vars) > 0 {
		if _, pool := c.ExecQuerier.(*sql.DB); pool {
			return nil, errors.New("dialect/sql: session variables require a pinned connection or transaction for queries")
		}
		if _, _, err := c.maySetVars(ctx); err != nil {
			return nil, fmt.Errorf("dialect/sql: query: set session vars: %w", err)
		}
	}
	return c.ExecQuerier.QueryContext(ctx, query, args...)
}

// maySetVars sets the context's session variables and returns the
// ExecQuerier to run the statement on. When the receiver wraps a pool,
// a single connection is pinned so SET and the statement share a
// session; the returned closer resets the variables and releases it.
func (c Conn) maySetVars(ctx context.Context) (dialect.ExecQuerier, func() error, error) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	if len(sv.vars) == 0 {
		return c.ExecQuerier, nil, nil
	}
	var (
		ex    dialect.ExecQuerier
		cf    func() error
		reset []string
		seen  = make(map[string]struct{}, len(sv.vars))
	)
	switch e := c.ExecQuerier.(type) {
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, cf = conn, conn.Close
	default:
		// Transactions and pinned connections already have a stable
		// session.
		ex = c.ExecQuerier
	}
	for _, s := range sv.vars {
		if !isValidIdentifier(s.k) {
			if cf != nil {
				_ = cf()
			}
			return nil, nil, fmt.Errorf("invalid session variable name: %q", s.k)
		}
		if _, ok := seen[s.k]; !ok {
			reset = append(reset, "RESET "+s.k)
			seen[s.k] = struct{}{}
		}
		if _, err := ex.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", s.k, escapeStringValue(s.v))); err != nil {
			if cf != nil {
				err = errors.Join(err, cf())
			}
			return nil, nil, err
		}
	}
	// Reset before returning the connection to the pool, on a fresh
	// context so cleanup survives request cancellation.
	if cls := cf; cf != nil && len(reset) > 0 {
		cf = func() error {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, q := range reset {
				if _, err := ex.ExecContext(cleanupCtx, q); err != nil {
					return errors.Join(err, cls())
				}
			}
			return cls()
		}
	}
	return ex, cf, nil
}

var _ dialect.Driver = (*Driver)(nil)
var _ dialect.Tx = (*Tx)(nil)
