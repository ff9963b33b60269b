package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"go.uber.org/zap"
)

// Isolation levels accepted by TxOptions.
const (
	ReadUncommitted = pgx.ReadUncommitted
	ReadCommitted   = pgx.ReadCommitted
	RepeatableRead  = pgx.RepeatableRead
	Serializable    = pgx.Serializable
)

// TxOptions configures a transaction. Zero fields take the DB defaults.
type TxOptions struct {
	// Isolation is the isolation level; empty uses the server default.
	Isolation pgx.TxIsoLevel
	ReadOnly  bool
	// MaxWait bounds acquiring a connection and starting the transaction.
	MaxWait time.Duration
	// Timeout bounds the transaction from BEGIN to COMMIT.
	Timeout time.Duration
	// MaxRetries retries the whole transaction on serialization failures
	// and deadlocks. Negative disables retries.
	MaxRetries int
}

// DefaultTxOptions returns the default transaction options.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		MaxWait: 2 * time.Second,
		Timeout: 5 * time.Second,
	}
}

func (o TxOptions) withDefaults(d TxOptions) TxOptions {
	if o.Isolation == "" {
		o.Isolation = d.Isolation
	}
	if o.MaxWait <= 0 {
		o.MaxWait = d.MaxWait
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = d.MaxRetries
	}
	return o
}

// ParseIsolation parses names such as "serializable" or "read_committed".
func ParseIsolation(name string) (pgx.TxIsoLevel, error) {
	normalized := strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(name)))
	if normalized == "" {
		return "", nil
	}
	for _, level := range []pgx.TxIsoLevel{ReadUncommitted, ReadCommitted, RepeatableRead, Serializable} {
		if strings.ToLower(string(level)) == normalized {
			return level, nil
		}
	}
	return "", fmt.Errorf("unknown isolation level %q", name)
}

// TxFunc is one operation of a transaction.
type TxFunc func(tx *Tx) error

// Tx wraps a pgx transaction. It implements runtime.Querier, so
// repositories bound with WithQuerier run inside it.
type Tx struct {
	tx     pgx.Tx
	ctx    context.Context
	cancel context.CancelFunc
	// parent is the caller's context, used for rollback after a timeout.
	parent  context.Context
	timeout time.Duration
	logger  *zap.Logger
	state   *txState
	depth   int
	hooks   []func()
}

type txState struct {
	mu         sync.Mutex
	savepoints int
	closed     bool
}

// Begin starts a transaction. The transaction is bound to opts.Timeout
// from this point until Commit or Rollback.
func (d *DB) Begin(ctx context.Context, opts TxOptions) (*Tx, error) {
	if d.db == nil {
		return nil, runtime.ErrNoConnection
	}
	opts = opts.withDefaults(d.defaults)

	txOptions := pgx.TxOptions{IsoLevel: opts.Isolation}
	if opts.ReadOnly {
		txOptions.AccessMode = pgx.ReadOnly
	}

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, opts.MaxWait)
	tx, err := d.db.BeginTx(acquireCtx, txOptions)
	timedOut := errors.Is(acquireCtx.Err(), context.DeadlineExceeded)
	cancelAcquire()
	if err != nil {
		if timedOut && ctx.Err() == nil {
			return nil, &runtime.TransactionTimeoutError{Phase: runtime.PhaseAcquire, Limit: opts.MaxWait, Err: err}
		}
		return nil, fmt.Errorf("failed to begin transaction: %w", runtime.Classify(err))
	}

	execCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	return &Tx{
		tx:      tx,
		ctx:     execCtx,
		cancel:  cancel,
		parent:  ctx,
		timeout: opts.Timeout,
		logger:  d.logger,
		state:   &txState{},
	}, nil
}

// Transaction runs fn in a transaction. It commits when fn returns nil and
// rolls back otherwise. Serialization failures and deadlocks are retried
// up to opts.MaxRetries times.
func (d *DB) Transaction(ctx context.Context, opts TxOptions, fn TxFunc) error {
	opts = opts.withDefaults(d.defaults)
	if opts.MaxRetries <= 0 {
		return d.runTransaction(ctx, opts, fn)
	}

	return retry.Do(
		func() error { return d.runTransaction(ctx, opts, fn) },
		retry.Context(ctx),
		retry.Attempts(uint(opts.MaxRetries)+1),
		retry.Delay(20*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(runtime.IsRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Warn("retrying transaction", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

// Batch runs ops in order in a single transaction.
func (d *DB) Batch(ctx context.Context, opts TxOptions, ops ...TxFunc) error {
	return d.Transaction(ctx, opts, func(tx *Tx) error {
		for i, op := range ops {
			if err := op(tx); err != nil {
				return fmt.Errorf("batch operation %d: %w", i, err)
			}
		}
		return nil
	})
}

func (d *DB) runTransaction(ctx context.Context, opts TxOptions, fn TxFunc) (err error) {
	tx, err := d.Begin(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		d.logger.Debug("transaction rolled back", zap.Error(err))
		return tx.timeoutError(err)
	}

	return tx.Commit()
}

// Context returns the transaction's execution context.
func (t *Tx) Context() context.Context {
	return t.ctx
}

// Commit commits the transaction and runs the OnCommit hooks.
func (t *Tx) Commit() error {
	if t.depth > 0 {
		return fmt.Errorf("cannot commit a nested transaction")
	}
	if !t.close() {
		return runtime.ErrTransactionClosed
	}
	defer t.cancel()

	if err := t.tx.Commit(t.ctx); err != nil {
		return t.timeoutError(fmt.Errorf("failed to commit transaction: %w", runtime.Classify(err)))
	}

	for _, hook := range t.hooks {
		hook()
	}
	return nil
}

// Rollback rolls back the transaction. It is safe to call after Commit.
func (t *Tx) Rollback() error {
	if t.depth > 0 {
		return fmt.Errorf("cannot roll back a nested transaction")
	}
	if !t.close() {
		return nil
	}
	defer t.cancel()

	// The execution context may have expired; roll back regardless.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.parent), t.timeout)
	defer cancel()
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// close marks the transaction finished and reports whether it was open.
func (t *Tx) close() bool {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	if t.state.closed {
		return false
	}
	t.state.closed = true
	return true
}

func (t *Tx) isClosed() bool {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	return t.state.closed
}

// timeoutError reports err as a TransactionTimeoutError when the
// transaction ran past its timeout.
func (t *Tx) timeoutError(err error) error {
	if err == nil || errors.Is(err, runtime.ErrTransactionTimeout) {
		return err
	}
	if errors.Is(t.ctx.Err(), context.DeadlineExceeded) && t.parent.Err() == nil {
		return &runtime.TransactionTimeoutError{Phase: runtime.PhaseExecute, Limit: t.timeout, Err: err}
	}
	return err
}

// OnCommit registers fn to run after the outermost transaction commits.
// Hooks of a nested transaction that rolls back are discarded.
func (t *Tx) OnCommit(fn func()) {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	t.hooks = append(t.hooks, fn)
}

// Transaction runs fn in a nested transaction backed by a savepoint. An
// error from fn rolls back to the savepoint and is returned; the outer
// transaction stays usable.
func (t *Tx) Transaction(ctx context.Context, fn TxFunc) error {
	if t.isClosed() {
		return runtime.ErrTransactionClosed
	}

	t.state.mu.Lock()
	t.state.savepoints++
	name := fmt.Sprintf("sp_%d", t.state.savepoints)
	t.state.mu.Unlock()

	if err := t.Savepoint(ctx, name); err != nil {
		return err
	}

	nested := &Tx{
		tx:      t.tx,
		ctx:     t.ctx,
		cancel:  t.cancel,
		parent:  t.parent,
		timeout: t.timeout,
		logger:  t.logger,
		state:   t.state,
		depth:   t.depth + 1,
	}
	if err := fn(nested); err != nil {
		if rbErr := t.RollbackToSavepoint(ctx, name); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := t.ReleaseSavepoint(ctx, name); err != nil {
		return err
	}

	t.state.mu.Lock()
	t.hooks = append(t.hooks, nested.hooks...)
	t.state.mu.Unlock()
	return nil
}

// Savepoint creates a savepoint within the transaction.
func (t *Tx) Savepoint(ctx context.Context, name string) error {
	if _, err := t.Exec(ctx, fmt.Sprintf("SAVEPOINT %s", name)); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}
	return nil
}

// RollbackToSavepoint rolls back to a savepoint.
func (t *Tx) RollbackToSavepoint(ctx context.Context, name string) error {
	if _, err := t.Exec(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", name)); err != nil {
		return fmt.Errorf("failed to rollback to savepoint %s: %w", name, err)
	}
	return nil
}

// ReleaseSavepoint releases a savepoint.
func (t *Tx) ReleaseSavepoint(ctx context.Context, name string) error {
	if _, err := t.Exec(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", name)); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

// bind derives a context for one statement that is also cancelled when the
// transaction's execution context ends.
func (t *Tx) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	bound, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(t.ctx, cancel)
	return bound, func() {
		stop()
		cancel()
	}
}

// Exec executes a statement in the transaction.
func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	if t.isClosed() {
		return 0, runtime.ErrTransactionClosed
	}
	ctx, cancel := t.bind(ctx)
	defer cancel()

	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, runtime.Classify(&runtime.QueryError{Query: sql, Err: err})
	}
	return tag.RowsAffected(), nil
}

// Query executes a query in the transaction.
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if t.isClosed() {
		return nil, runtime.ErrTransactionClosed
	}
	ctx, cancel := t.bind(ctx)

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		cancel()
		return nil, runtime.Classify(&runtime.QueryError{Query: sql, Err: err})
	}
	return &boundRows{Rows: rows, cancel: cancel}, nil
}

// QueryRow executes a single-row query in the transaction.
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if t.isClosed() {
		return errRow{err: runtime.ErrTransactionClosed}
	}
	ctx, cancel := t.bind(ctx)
	return &boundRow{row: t.tx.QueryRow(ctx, sql, args...), cancel: cancel}
}

// boundRows releases the statement context when closed.
type boundRows struct {
	pgx.Rows
	cancel context.CancelFunc
}

func (r *boundRows) Next() bool {
	if r.Rows.Next() {
		return true
	}
	r.cancel()
	return false
}

func (r *boundRows) Close() {
	r.Rows.Close()
	r.cancel()
}

type boundRow struct {
	row    pgx.Row
	cancel context.CancelFunc
}

func (r *boundRow) Scan(dest ...any) error {
	defer r.cancel()
	return r.row.Scan(dest...)
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}

var (
	_ runtime.Querier        = (*Tx)(nil)
	_ runtime.CommitNotifier = (*Tx)(nil)
)
