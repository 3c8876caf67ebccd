package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uxtrace/uxtrace/config"
	"github.com/uxtrace/uxtrace/repositories"
	"go.uber.org/zap"
)

// txContextKey carries the active transaction through the context, so a
// repository method runs against the transaction when one is open and
// against the pool otherwise.
type txContextKey struct{}

// TransactionManager opens transactions with options matched to the
// active driver and hands them to repositories via the context.
type TransactionManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager creates a transaction manager bound to db.
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{db: db, logger: logger}
}

// txOptions picks transaction options for the active driver. A batch
// append reads the session row and writes it back in the same
// transaction, so Postgres runs read committed with conflict handling
// in the statements themselves. SQLite serializes writers on its
// single connection and needs no options.
func (tm *TransactionManager) txOptions() *sql.TxOptions {
	if tm.db.Driver() == config.DriverPostgres {
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return nil
}

// Begin opens a transaction. Most callers want InTransaction instead;
// Begin exists for the few paths that manage commit timing themselves.
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := tm.db.BeginTx(ctx, tm.txOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: sqlTx, ctx: ctx}, nil
}

// InTransaction runs fn inside one transaction and commits when it
// returns nil. Any error from fn rolls everything back and is returned
// unchanged, so domain errors survive the trip. The context passed to
// fn carries the transaction; repositories resolve it via GetExecutor.
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(context.WithValue(ctx, txContextKey{}, tx), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("rollback failed",
				zap.Error(rbErr),
				zap.NamedError("original_error", err),
			)
		}
		return err
	}

	return tx.Commit()
}

// Transaction wraps one open sql.Tx together with the context it was
// started from.
type Transaction struct {
	tx  *sql.Tx
	ctx context.Context
}

func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back an already finished
// transaction is not an error; the deferred-rollback pattern relies on
// that.
func (t *Transaction) Rollback() error {
	err := t.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return fmt.Errorf("failed to rollback transaction: %w", err)
}

func (t *Transaction) Context() context.Context {
	return t.ctx
}

// GetTransactionFromContext returns the transaction carried by ctx, if
// InTransaction put one there.
func GetTransactionFromContext(ctx context.Context) (repositories.Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(repositories.Transaction)
	return tx, ok
}

// Executor is the query surface shared by *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor resolves the executor for ctx: the open transaction when
// one is present, the connection pool otherwise.
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := GetTransactionFromContext(ctx); ok {
		if own, ok := tx.(*Transaction); ok {
			return own.tx
		}
	}
	return db.DB
}
