// Package sqlexec implements the SQL executor of spec.md §4.3: a variadic
// sequence of statements run sequentially on one connection acquired from a
// pgxpool inside a single transaction, committed at the end. The connection
// is not opened fresh per call: the pool may hand back a connection an
// earlier call used, and it keeps idle connections open between calls.
// Grounded on the teacher's pgxpool wrapper
// (internal/database/postgres/pool.go) but deliberately narrower: this
// executor has no health-check loop or long-lived metrics (see SPEC_FULL.md
// §3, dropped-dep ledger).
package sqlexec

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Error carries the index of the statement that failed (spec.md §4.3).
type Error struct {
	StatementIndex int
	Statement      string
	Err            error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sql statement %d failed: %v", e.StatementIndex, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Executor runs statement sequences against a pgx connection pool.
type Executor struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// Exec acquires one connection from the pool, opens a transaction, runs every statement in
// order, and commits. The caller is responsible for running this off the
// HTTP scheduler goroutine (spec.md §5 "await-able" contract) — Exec itself
// performs no goroutine management, matching the single-responsibility shape
// of the teacher's pool methods.
func (e *Executor) Exec(ctx context.Context, statements ...string) error {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("sqlexec: acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("sqlexec: begin transaction: %w", err)
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return &Error{StatementIndex: i, Statement: stmt, Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("sqlexec: commit: %w", err)
	}
	return nil
}

// CreateDatabaseAndSeed builds the exact statement sequence spec.md §4.8
// uses for /create-database.
func CreateDatabaseAndSeed(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE `%s`", db),
		"USE benchmark",
		fmt.Sprintf("CALL generate_table_data('%s', 'bench_tbl', 10, 100000, 1000, 1)", db),
	}
}

// DropDatabase builds the statement used by drop-database (spec.md §4.11,
// §7): a no-op per spec.md §9 if the named database never existed.
func DropDatabase(db string) []string {
	return []string{fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", db)}
}

// ProbeDatabase builds the statement run before starting a load generator
// (spec.md §4.8 /run-loadgen step a): fails fast if the database is gone.
func ProbeDatabase(db string) []string {
	return []string{fmt.Sprintf("USE `%s`", db)}
}
