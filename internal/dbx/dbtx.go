// Package dbx provides tiny DB abstractions shared by repositories:
// a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx,
// a helper to run functions inside a transaction, and the Transactor
// abstraction used by services that need a unit of work.
package dbx

import (
	"context"
	"database/sql"
	"sync"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE refresh_tokens SET revoked = true WHERE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
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
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// Transactor runs fn as one unit of work. Conn returns the handle to use
// outside of a transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
	Conn() DBTX
}

// SQLTransactor is a Transactor over a *sql.DB.
type SQLTransactor struct {
	db   *sql.DB
	opts *sql.TxOptions
}

func NewSQLTransactor(db *sql.DB, opts *sql.TxOptions) *SQLTransactor {
	return &SQLTransactor{db: db, opts: opts}
}

func (t *SQLTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return WithTx(ctx, t.db, t.opts, fn)
}

func (t *SQLTransactor) Conn() DBTX {
	return t.db
}

// LocalTransactor serializes units of work in-process. It backs the
// in-memory repositories, which ignore the DBTX handle (always nil).
// There is no rollback: callers must do their checks before mutating.
type LocalTransactor struct {
	mu sync.Mutex
}

func NewLocalTransactor() *LocalTransactor {
	return &LocalTransactor{}
}

func (t *LocalTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx, nil)
}

func (t *LocalTransactor) Conn() DBTX {
	return nil
}
