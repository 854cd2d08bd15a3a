package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txContextKey struct{}

// Tx is one database transaction. Commit and Rollback are safe to call after the
// transaction has already finished, so callers can always defer Rollback.
type Tx interface {
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	done   bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{Tx: tx, logger: logger}
}

// GetTx joins the open transaction on ctx, if any, so nested repository calls share one
// commit. Otherwise it begins a new one and stores it on the returned context.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if open, ok := ctx.Value(txContextKey{}).(Tx); ok && open.IsOpen() {
		return ctx, open, nil
	}

	sqlxTx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("failed to begin transaction")
		return ctx, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := NewTx(sqlxTx, logger)
	return context.WithValue(ctx, txContextKey{}, tx), tx, nil
}

func (t *Transaction) IsOpen() bool {
	return !t.done
}

func (t *Transaction) Rollback(ctx context.Context) error {
	return t.finish(ctx, "rollback", t.Tx.Rollback)
}

func (t *Transaction) Commit(ctx context.Context) error {
	return t.finish(ctx, "commit", t.Tx.Commit)
}

func (t *Transaction) finish(ctx context.Context, op string, fn func() error) error {
	if t.done {
		return nil
	}
	if err := fn(); err != nil {
		t.logger.WithContext(ctx).WithError(err).WithField("op", op).Error("failed to finish transaction")
		return fmt.Errorf("failed to %s transaction: %w", op, err)
	}
	t.done = true
	return nil
}
