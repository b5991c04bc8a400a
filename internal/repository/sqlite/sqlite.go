// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database. It lives inside the Go binary and stores
// everything in a single file, so there is no database server to run. Use
// ":memory:" for tests.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation of
// the SQLite C code.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB   is a connection pool (NOT a single connection!)
//   - sql.Tx   is a transaction pinned to one connection
//   - sql.Row  is a single result row
//   - sql.Rows is an iterator over many rows (must be closed!)
//
// Every query in this package goes through the querier interface, which both
// *sql.DB and *sql.Tx satisfy. That is what lets WithinTx hand the exact same
// repository methods a transaction instead of the pool.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/taskmanager/internal/repository"
)

// compile-time check that *DB implements the full store contract
var _ repository.Store = (*DB)(nil)

// MIGRATIONS:
// The SQL files under migrations/ are compiled into the binary with go:embed
// and applied by goose on startup. goose records what already ran in its
// goose_db_version table, so restarting the server is a no-op.
//
//go:embed migrations/*.sql
var migrations embed.FS

// querier is the subset of database/sql used by the repository methods.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a sql.DB connection pool and provides repository methods.
//
// q is the handle queries actually run on: the pool normally, or a *sql.Tx
// for the copy of DB that WithinTx passes to its callback.
type DB struct {
	conn *sql.DB
	q    querier
	inTx bool
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/taskmanager.db" → file-based database (persistent)
//   - ":memory:"            → in-memory database (tests)
//
// IN-MEMORY DATABASES AND THE POOL:
// Every new connection to ":memory:" gets its OWN empty database. The pool is
// therefore pinned to a single connection so migrations and queries all see
// the same tables.
func New(dbPath string) (*DB, error) {
	inMemory := dbPath == ":memory:"

	dsn := dbPath
	if !inMemory {
		// Pragmas in the DSN apply to every pooled connection, not just the
		// first one. busy_timeout makes concurrent writers wait instead of
		// failing with SQLITE_BUSY.
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath)
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if inMemory {
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
		}
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn, q: conn}

	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.conn, "migrations"); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// WithinTx runs fn inside a single transaction.
//
// COMMIT / ROLLBACK RULES:
//   - fn returns nil   → commit
//   - fn returns error → rollback, the error is returned unchanged
//   - fn panics        → rollback, then the panic continues
//
// A call made on a DB that is already inside a transaction just reuses it,
// so services can compose transactional helpers freely.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) (err error) {
	if db.inTx {
		return fn(ctx, db)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("sqlite: committing transaction: %w", cerr)
		}
	}()

	return fn(ctx, &DB{conn: db.conn, q: tx, inTx: true})
}

// now returns the timestamp the store writes for created_at/updated_at.
//
// UTC with the monotonic reading stripped: the driver stores time.Time as
// text, and a fixed zone keeps lexical ORDER BY equal to chronological order.
func now() time.Time {
	return time.Now().UTC().Round(0)
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	// Without extended result codes only the primary code is reported.
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
