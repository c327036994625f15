// Package tx carries a SQL transaction through context so that a service
// can commit writes spanning several stores atomically.
package tx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, t *sql.Tx) context.Context {
	if t == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, t)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	t, ok := ctx.Value(txKey).(*sql.Tx)
	return t, ok
}

// DB is the query surface shared by *sql.DB and *sql.Tx.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor returns the context transaction when one is open, else the pool.
// Stores route every statement through this so they join an enclosing
// transaction transparently.
func Executor(ctx context.Context, db *sql.DB) DB {
	if t, ok := From(ctx); ok {
		return t
	}
	return db
}

// Runner provides the transactional boundary for multi-store mutations.
// Implementations may wrap a database transaction or, in-memory, a coarse
// lock.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type sqlRunner struct {
	db *sql.DB
}

// NewSQL returns a Runner that opens one database transaction per call and
// commits it only when fn succeeds. A call made inside an open transaction
// joins it instead of nesting.
func NewSQL(db *sql.DB) Runner {
	return &sqlRunner{db: db}
}

func (r *sqlRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	t, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = t.Rollback()
	}()
	if err := fn(WithTx(ctx, t)); err != nil {
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type memoryRunner struct {
	mu sync.Mutex
}

// NewMemory returns a Runner for in-memory stores: one process-wide lock
// serializes every boundary, so no other writer can interleave inside fn.
// Memory stores have no rollback, so callers must order writes so that any
// failure leaves nothing half-applied (externally faultable writes first).
// Not reentrant.
func NewMemory() Runner {
	return &memoryRunner{}
}

func (r *memoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
