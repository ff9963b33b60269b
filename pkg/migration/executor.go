package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"go.uber.org/zap"
)

// DefaultLockID is the advisory lock key used when none is configured.
const DefaultLockID int64 = 7_263_452_901

// conn is the subset of pgxpool.Pool and pgxpool.Conn the executor needs.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Executor executes and tracks database migrations.
type Executor struct {
	pool   *pgxpool.Pool
	lockID int64
	logger *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLockID sets a custom advisory lock ID.
func WithLockID(lockID int64) Option {
	return func(e *Executor) {
		if lockID != 0 {
			e.lockID = lockID
		}
	}
}

// WithLogger sets the logger that receives one entry per executed migration.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates a new migration executor.
func NewExecutor(pool *pgxpool.Pool, opts ...Option) *Executor {
	e := &Executor{
		pool:   pool,
		lockID: DefaultLockID,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

const createTrackingTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(14) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		applied_at TIMESTAMPTZ,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_schema_migrations_status
	ON schema_migrations(status);
`

// Initialize creates the schema_migrations table if it doesn't exist.
func (e *Executor) Initialize(ctx context.Context) error {
	if _, err := e.pool.Exec(ctx, createTrackingTable); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// withLock runs fn on one pooled connection while it holds the advisory
// lock. Session-level advisory locks belong to a connection, so the lock and
// every statement of fn share it.
func (e *Executor) withLock(ctx context.Context, fn func(c conn) error) (err error) {
	c, err := e.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer c.Release()

	if _, err := c.Exec(ctx, "SELECT pg_advisory_lock($1)", e.lockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, uerr := c.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", e.lockID); uerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release migration lock: %w", uerr))
		}
	}()

	return fn(c)
}

// Records returns every row of the tracking table ordered by version.
func (e *Executor) Records(ctx context.Context) ([]MigrationRecord, error) {
	return records(ctx, e.pool, false)
}

// Applied returns the migrations recorded as applied, ordered by version.
func (e *Executor) Applied(ctx context.Context) ([]MigrationRecord, error) {
	return records(ctx, e.pool, true)
}

func records(ctx context.Context, c conn, appliedOnly bool) ([]MigrationRecord, error) {
	query := "SELECT version, name, status, applied_at, error FROM schema_migrations"
	if appliedOnly {
		query += " WHERE status = 'applied'"
	}
	query += " ORDER BY version ASC"

	rows, err := c.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var result []MigrationRecord
	for rows.Next() {
		var record MigrationRecord
		if err := rows.Scan(&record.Version, &record.Name, &record.Status, &record.AppliedAt, &record.Error); err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		result = append(result, record)
	}

	return result, rows.Err()
}

func isApplied(ctx context.Context, c conn, version string) (bool, error) {
	var count int
	err := c.QueryRow(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = $1 AND status = 'applied'",
		version,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}
	return count > 0, nil
}

// Apply executes a single migration's up SQL under the migration lock.
func (e *Executor) Apply(ctx context.Context, mig Migration) error {
	return e.withLock(ctx, func(c conn) error {
		return e.apply(ctx, c, mig)
	})
}

// Up applies pending migrations in version order. steps limits how many are
// applied; zero or less applies all of them. It returns the migrations that
// were applied before any failure.
func (e *Executor) Up(ctx context.Context, migrations []Migration, steps int) ([]Migration, error) {
	var done []Migration
	err := e.withLock(ctx, func(c conn) error {
		applied, err := records(ctx, c, true)
		if err != nil {
			return err
		}

		pending := Pending(migrations, applied)
		if steps > 0 && steps < len(pending) {
			pending = pending[:steps]
		}

		for _, mig := range pending {
			if err := e.apply(ctx, c, mig); err != nil {
				return err
			}
			done = append(done, mig)
		}
		return nil
	})
	return done, err
}

func (e *Executor) apply(ctx context.Context, c conn, mig Migration) error {
	applied, err := isApplied(ctx, c, mig.Version)
	if err != nil {
		return err
	}
	if applied {
		return &runtime.MigrationError{Version: mig.Version, Message: "already applied", Err: runtime.ErrMigrationState}
	}

	start := time.Now()
	err = runInTx(ctx, c, mig.Version, mig.UpSQL, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO schema_migrations (version, name, status, applied_at, error)
			VALUES ($1, $2, 'applied', NOW(), NULL)
			ON CONFLICT (version) DO UPDATE
			SET name = EXCLUDED.name, status = 'applied', applied_at = NOW(), error = NULL`,
			mig.Version, mig.Name,
		)
		return err
	})
	if err != nil {
		e.logger.Error("migration failed",
			zap.String("version", mig.Version),
			zap.String("name", mig.Name),
			zap.Error(err),
		)
		if rerr := recordFailure(ctx, c, mig, err); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}

	e.logger.Info("migration applied",
		zap.String("version", mig.Version),
		zap.String("name", mig.Name),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// recordFailure stores the failure outside the rolled back migration
// transaction.
func recordFailure(ctx context.Context, c conn, mig Migration, cause error) error {
	_, err := c.Exec(context.WithoutCancel(ctx), `
		INSERT INTO schema_migrations (version, name, status, error)
		VALUES ($1, $2, 'failed', $3)
		ON CONFLICT (version) DO UPDATE
		SET name = EXCLUDED.name, status = 'failed', applied_at = NULL, error = EXCLUDED.error`,
		mig.Version, mig.Name, cause.Error(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration failure: %w", err)
	}
	return nil
}

// runInTx executes the statements of script and then track inside one
// transaction. Any error rolls the whole migration back.
func runInTx(ctx context.Context, c conn, version, script string, track func(pgx.Tx) error) error {
	tx, err := c.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	for i, stmt := range splitSQL(script) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return &runtime.MigrationError{
				Version: version,
				Message: fmt.Sprintf("statement %d failed", i+1),
				Err:     runtime.Classify(err),
			}
		}
	}

	if err := track(tx); err != nil {
		return fmt.Errorf("failed to update migration status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// Rollback executes a single migration's down SQL under the migration lock.
func (e *Executor) Rollback(ctx context.Context, mig Migration) error {
	return e.withLock(ctx, func(c conn) error {
		return e.rollback(ctx, c, mig)
	})
}

// Down rolls back the last steps applied migrations, newest first. steps of
// zero or less rolls back one migration.
func (e *Executor) Down(ctx context.Context, migrations []Migration, steps int) ([]Migration, error) {
	if steps <= 0 {
		steps = 1
	}

	var done []Migration
	err := e.withLock(ctx, func(c conn) error {
		applied, err := records(ctx, c, true)
		if err != nil {
			return err
		}

		plan, err := rollbackPlan(migrations, applied, func(i int) bool { return i >= len(applied)-steps })
		if err != nil {
			return err
		}

		for _, mig := range plan {
			if err := e.rollback(ctx, c, mig); err != nil {
				return err
			}
			done = append(done, mig)
		}
		return nil
	})
	return done, err
}

// RollbackTo rolls back every applied migration newer than target.
func (e *Executor) RollbackTo(ctx context.Context, target string, migrations []Migration) ([]Migration, error) {
	var done []Migration
	err := e.withLock(ctx, func(c conn) error {
		applied, err := records(ctx, c, true)
		if err != nil {
			return err
		}

		plan, err := rollbackPlan(migrations, applied, func(i int) bool { return applied[i].Version > target })
		if err != nil {
			return err
		}

		for _, mig := range plan {
			if err := e.rollback(ctx, c, mig); err != nil {
				return err
			}
			done = append(done, mig)
		}
		return nil
	})
	return done, err
}

// rollbackPlan returns the migrations of the selected applied records,
// newest first.
func rollbackPlan(migrations []Migration, applied []MigrationRecord, selected func(i int) bool) ([]Migration, error) {
	byVersion := make(map[string]Migration, len(migrations))
	for _, mig := range migrations {
		byVersion[mig.Version] = mig
	}

	var plan []Migration
	for i := len(applied) - 1; i >= 0; i-- {
		if !selected(i) {
			continue
		}
		mig, ok := byVersion[applied[i].Version]
		if !ok {
			return nil, &runtime.MigrationError{Version: applied[i].Version, Message: "migration file not found", Err: runtime.ErrMigrationState}
		}
		plan = append(plan, mig)
	}
	return plan, nil
}

func (e *Executor) rollback(ctx context.Context, c conn, mig Migration) error {
	applied, err := isApplied(ctx, c, mig.Version)
	if err != nil {
		return err
	}
	if !applied {
		return &runtime.MigrationError{Version: mig.Version, Message: "not applied", Err: runtime.ErrMigrationState}
	}
	if mig.DownSQL == "" {
		return &runtime.MigrationError{Version: mig.Version, Message: "no down migration", Err: runtime.ErrMigrationState}
	}

	start := time.Now()
	err = runInTx(ctx, c, mig.Version, mig.DownSQL, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", mig.Version)
		return err
	})
	if err != nil {
		e.logger.Error("rollback failed", zap.String("version", mig.Version), zap.Error(err))
		return err
	}

	e.logger.Info("migration rolled back",
		zap.String("version", mig.Version),
		zap.String("name", mig.Name),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Status returns one record per known migration, pending when the tracking
// table has no row for it.
func (e *Executor) Status(ctx context.Context, migrations []Migration) ([]MigrationRecord, error) {
	tracked, err := e.Records(ctx)
	if err != nil {
		return nil, err
	}
	return mergeStatus(migrations, tracked), nil
}

func mergeStatus(migrations []Migration, tracked []MigrationRecord) []MigrationRecord {
	byVersion := make(map[string]MigrationRecord, len(tracked))
	for _, record := range tracked {
		byVersion[record.Version] = record
	}

	result := make([]MigrationRecord, 0, len(migrations))
	for _, mig := range migrations {
		if record, ok := byVersion[mig.Version]; ok {
			result = append(result, record)
			continue
		}
		result = append(result, MigrationRecord{
			Version: mig.Version,
			Name:    mig.Name,
			Status:  StatusPending,
		})
	}
	return result
}

// Validate checks that all migrations in the database have corresponding files.
func (e *Executor) Validate(ctx context.Context, migrations []Migration) error {
	tracked, err := e.Records(ctx)
	if err != nil {
		return err
	}
	return missingFiles(migrations, tracked)
}

func missingFiles(migrations []Migration, tracked []MigrationRecord) error {
	known := make(map[string]bool, len(migrations))
	for _, mig := range migrations {
		known[mig.Version] = true
	}

	var missing []string
	for _, record := range tracked {
		if !known[record.Version] {
			missing = append(missing, record.Version)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing migration files: %v", runtime.ErrMigrationState, missing)
	}
	return nil
}
