package runtime

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Querier is implemented by both the pooled DB and a transaction, so
// repositories can run unchanged inside or outside a transaction.
type Querier interface {
	// Exec executes a statement and returns the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow executes a query that returns at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CommitNotifier is implemented by queriers that defer side effects until
// the surrounding transaction commits.
type CommitNotifier interface {
	OnCommit(fn func())
}

var _ Querier = (*DB)(nil)
