package repository

import "context"

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a database transaction and hands the
// driver-specific handle to repositories through tx.
//
// Repositories MUST accept a nil tx (non-transactional path).
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
