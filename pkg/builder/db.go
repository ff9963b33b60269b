package builder

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"go.uber.org/zap"
)

// DB wraps runtime.DB and coordinates transactions.
type DB struct {
	db       *runtime.DB
	logger   *zap.Logger
	defaults TxOptions
}

// DBOption configures a DB.
type DBOption func(*DB)

// WithTxDefaults sets the options used for zero fields of TxOptions.
func WithTxDefaults(opts TxOptions) DBOption {
	return func(d *DB) { d.defaults = opts.withDefaults(DefaultTxOptions()) }
}

// WithLogger sets the logger for transaction events.
func WithLogger(logger *zap.Logger) DBOption {
	return func(d *DB) { d.logger = logger }
}

// New creates a new DB from a runtime DB.
func New(db *runtime.DB, opts ...DBOption) *DB {
	d := &DB{
		db:       db,
		logger:   zap.NewNop(),
		defaults: DefaultTxOptions(),
	}
	if db != nil {
		d.logger = db.Logger()
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Runtime returns the underlying runtime.DB.
func (d *DB) Runtime() *runtime.DB {
	return d.db
}

// Exec executes a statement outside a transaction.
func (d *DB) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return d.db.Exec(ctx, sql, args...)
}

// Query executes a query outside a transaction.
func (d *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return d.db.Query(ctx, sql, args...)
}

// QueryRow executes a single-row query outside a transaction.
func (d *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return d.db.QueryRow(ctx, sql, args...)
}

var _ runtime.Querier = (*DB)(nil)
