package database

import (
	"context"
	"database/sql"
)

// TxRunner runs a function inside a database transaction, committing
// on nil return and rolling back otherwise.  Services depend on this
// interface rather than on *sql.DB directly so unit tests can supply a
// pass-through runner with fake repositories.
type TxRunner interface {
	RunTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// SQLTxRunner is the production TxRunner backed by a *sql.DB.
type SQLTxRunner struct {
	DB *sql.DB
}

// RunTx begins a transaction, invokes fn, and commits when fn returns
// nil.  Any error from fn, or from the commit itself, rolls the
// transaction back and is returned to the caller untouched so sentinel
// errors survive for errors.Is checks.
func (r SQLTxRunner) RunTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
