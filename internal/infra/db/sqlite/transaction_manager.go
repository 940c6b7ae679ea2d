package sqlite

import (
	"context"
	"database/sql"

	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager implements repository.TransactionManager over database/sql.
// The tx handle is passed to the callback as a *sql.Tx.
type TxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

type executor interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getExecutor(db *sql.DB, tx repository.Tx) (executor, error) {
	switch v := tx.(type) {
	case *sql.Tx:
		return v, nil
	case *sql.DB:
		return v, nil
	case nil:
		if db != nil {
			return db, nil
		}
		return nil, domain.ErrInvalidArgument
	default:
		return nil, domain.ErrInvalidExecContext
	}
}
