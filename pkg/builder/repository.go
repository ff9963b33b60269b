package builder

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/marshallshelly/blogstore/pkg/registry"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/marshallshelly/blogstore/pkg/schema"
)

// Repository provides typed CRUD and query operations for the table mapped
// by T. A Repository is immutable and safe for concurrent use; WithQuerier
// rebinds it to a transaction.
type Repository[T any] struct {
	q          runtime.Querier
	table      *schema.TableMetadata
	registry   *registry.Registry
	validate   *validator.Validate
	afterWrite []func()
}

// Option configures a Repository.
type Option func(*repositoryConfig)

type repositoryConfig struct {
	registry   *registry.Registry
	validate   *validator.Validate
	afterWrite []func()
}

// WithRegistry resolves metadata through r instead of the default registry.
func WithRegistry(r *registry.Registry) Option {
	return func(c *repositoryConfig) { c.registry = r }
}

// WithValidator replaces the validator used for `validate` tags. Nil
// disables tag validation.
func WithValidator(v *validator.Validate) Option {
	return func(c *repositoryConfig) { c.validate = v }
}

// WithAfterWrite registers fn to run after every successful write. Inside a
// transaction fn runs once the transaction commits.
func WithAfterWrite(fn func()) Option {
	return func(c *repositoryConfig) { c.afterWrite = append(c.afterWrite, fn) }
}

// NewRepository creates a Repository for T bound to q.
func NewRepository[T any](q runtime.Querier, opts ...Option) (*Repository[T], error) {
	cfg := &repositoryConfig{
		registry: registry.Default(),
		validate: defaultValidate,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var model T
	table, err := cfg.registry.GetOrRegister(model)
	if err != nil {
		return nil, err
	}

	return &Repository[T]{
		q:          q,
		table:      table,
		registry:   cfg.registry,
		validate:   cfg.validate,
		afterWrite: cfg.afterWrite,
	}, nil
}

// WithQuerier returns a copy of the repository bound to q, typically a *Tx.
func (r *Repository[T]) WithQuerier(q runtime.Querier) *Repository[T] {
	clone := *r
	clone.q = q
	return &clone
}

// Querier returns the querier the repository runs on.
func (r *Repository[T]) Querier() runtime.Querier {
	return r.q
}

// Table returns the table metadata for T.
func (r *Repository[T]) Table() *schema.TableMetadata {
	return r.table
}

func (r *Repository[T]) compiler() *compiler {
	return &compiler{resolve: r.registry.Resolve}
}

func (r *Repository[T]) elemType() reflect.Type {
	return r.table.GoType
}

// wrote runs the after-write hooks, deferring them to commit inside a
// transaction.
func (r *Repository[T]) wrote() {
	if len(r.afterWrite) == 0 {
		return
	}
	notifier, ok := r.q.(runtime.CommitNotifier)
	for _, fn := range r.afterWrite {
		if ok {
			notifier.OnCommit(fn)
		} else {
			fn()
		}
	}
}

// query runs sql and scans every row into []T.
func (r *Repository[T]) query(ctx context.Context, sql string, args []any) ([]T, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	results, err := collectRows(rows, r.table, r.elemType())
	if err != nil {
		return nil, err
	}
	return results.Interface().([]T), nil
}

// queryOne runs sql and returns the first row, or nil.
func (r *Repository[T]) queryOne(ctx context.Context, sql string, args []any) (*T, error) {
	results, err := r.query(ctx, sql, args)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return &results[0], nil
}

// checkUniqueKey verifies key names exactly one declared unique key with
// every column set.
func (r *Repository[T]) checkUniqueKey(key UniqueKey, field string) (*schema.UniqueKeyMetadata, error) {
	if len(key) == 0 {
		return nil, runtime.Invalid(field, "a unique key is required; expected one of %s", r.table.DescribeUniqueKeys())
	}
	cols := key.columns()
	unique := r.table.FindUniqueKey(cols)
	if unique == nil {
		return nil, runtime.Invalid(field, "(%s) is not a unique key of %s; expected one of %s",
			strings.Join(cols, ", "), r.table.Name, r.table.DescribeUniqueKeys())
	}
	for _, col := range cols {
		if isNil(key[col]) {
			return nil, runtime.Invalid(col, "unique key value must not be nil")
		}
	}
	return unique, nil
}

// keyConditions turns a unique key into equality conditions.
func keyConditions(key UniqueKey) []Condition {
	cols := key.columns()
	conds := make([]Condition, len(cols))
	for i, col := range cols {
		conds[i] = Eq(col, key[col])
	}
	return conds
}

func (r *Repository[T]) notFound(key UniqueKey) error {
	return &runtime.NotFoundError{Table: r.table.Name, Key: key}
}

// primaryKeyList renders the primary key for row-value comparisons.
func (r *Repository[T]) primaryKeyList() string {
	pk := r.table.PrimaryKeyColumns()
	if len(pk) == 1 {
		return pk[0]
	}
	return "(" + strings.Join(pk, ", ") + ")"
}

// limitedWhere renders the WHERE clause for updateMany/deleteMany, picking
// at most limit rows in primary key order.
func (r *Repository[T]) limitedWhere(c *compiler, where []Condition, limit int) (string, error) {
	if limit < 0 {
		return "", runtime.Invalid("limit", "must not be negative")
	}

	filter, err := c.where(tableScope(r.table), where)
	if err != nil {
		return "", err
	}
	if limit == 0 {
		if filter == "" {
			return "", nil
		}
		return " WHERE " + filter, nil
	}

	pk := strings.Join(r.table.PrimaryKeyColumns(), ", ")
	inner := fmt.Sprintf("SELECT %s FROM %s", pk, r.table.Name)
	if filter != "" {
		inner += " WHERE " + filter
	}
	inner += fmt.Sprintf(" ORDER BY %s LIMIT %d", pk, limit)
	return fmt.Sprintf(" WHERE %s IN (%s)", r.primaryKeyList(), inner), nil
}
