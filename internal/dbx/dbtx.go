// Package dbx lets the local cache run its statements against either a plain
// connection or a transaction through one interface, plus a helper that wraps
// a function in a transaction.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the statement surface the cache needs. Both *sql.DB and *sql.Tx
// satisfy it; row iteration is deliberately absent because the cache only
// does single-row lookups and upserts.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
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
