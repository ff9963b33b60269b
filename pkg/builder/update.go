package builder

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/marshallshelly/blogstore/pkg/runtime"
)

// Set maps column names to new values for Update, UpdateMany and Upsert.
// Values may be plain values, nil or Null() for NULL, or the arithmetic
// operations Increment, Decrement, Multiply and Divide.
type Set map[string]any

// Arithmetic updates a numeric column relative to its current value.
type Arithmetic struct {
	Op    string
	Value any
}

// Increment adds n to a numeric column.
func Increment(n any) Arithmetic { return Arithmetic{Op: "+", Value: n} }

// Decrement subtracts n from a numeric column.
func Decrement(n any) Arithmetic { return Arithmetic{Op: "-", Value: n} }

// Multiply multiplies a numeric column by n.
func Multiply(n any) Arithmetic { return Arithmetic{Op: "*", Value: n} }

// Divide divides a numeric column by n.
func Divide(n any) Arithmetic { return Arithmetic{Op: "/", Value: n} }

type nullValue struct{}

// Null sets a nullable column to NULL.
func Null() any { return nullValue{} }

// Update applies data to the row with the given unique key and returns the
// updated row. It returns a *runtime.NotFoundError when no row matches.
// Columns tagged updatedAt are set to NOW().
func (r *Repository[T]) Update(ctx context.Context, key UniqueKey, data Set) (*T, error) {
	if _, err := r.checkUniqueKey(key, "where"); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return r.FindUniqueOrError(ctx, key)
	}

	c := r.compiler()
	sets, err := r.compileSet(c, data, "")
	if err != nil {
		return nil, err
	}
	where, err := c.where(tableScope(r.table), keyConditions(key))
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *", r.table.Name, strings.Join(sets, ", "), where)
	updated, err := r.queryOne(ctx, sql, c.args)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", r.table.Name, err)
	}
	if updated == nil {
		return nil, r.notFound(key)
	}
	r.wrote()
	return updated, nil
}

// UpdateMany applies data to the rows matching args.Where and returns the
// number of updated rows. With a Limit, only the first Limit rows in
// primary key order are updated.
func (r *Repository[T]) UpdateMany(ctx context.Context, args UpdateManyArgs) (int64, error) {
	c := r.compiler()
	where, err := r.limitedWhere(c, args.Where, args.Limit)
	if err != nil {
		return 0, err
	}
	if len(args.Data) == 0 {
		return 0, nil
	}

	sets, err := r.compileSet(c, args.Data, "")
	if err != nil {
		return 0, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s%s", r.table.Name, strings.Join(sets, ", "), where)
	n, err := r.q.Exec(ctx, sql, c.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", r.table.Name, err)
	}
	if n > 0 {
		r.wrote()
	}
	return n, nil
}

// compileSet renders SET assignments in column order followed by the
// updatedAt columns. qualifier prefixes column reads, as ON CONFLICT
// needs the target table name to disambiguate.
func (r *Repository[T]) compileSet(c *compiler, data Set, qualifier string) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var sets []string
	for _, name := range slices.Sorted(maps.Keys(data)) {
		col := r.table.Column(name)
		if col == nil {
			return nil, runtime.Invalid(name, "unknown column on %s", r.table.Name)
		}

		read := name
		if qualifier != "" {
			read = qualifier + "." + name
		}

		switch v := data[name].(type) {
		case Arithmetic:
			if !col.IsNumeric() {
				return nil, runtime.Invalid(name, "arithmetic update requires a numeric column")
			}
			if !slices.Contains([]string{"+", "-", "*", "/"}, v.Op) || isNil(v.Value) {
				return nil, runtime.Invalid(name, "invalid arithmetic update")
			}
			sets = append(sets, fmt.Sprintf("%s = %s %s %s", name, read, v.Op, c.bind(v.Value)))
		case nullValue:
			if !col.Nullable {
				return nil, runtime.Invalid(name, "column is not nullable")
			}
			sets = append(sets, name+" = NULL")
		default:
			if isNil(v) {
				if !col.Nullable {
					return nil, runtime.Invalid(name, "column is not nullable")
				}
				sets = append(sets, name+" = NULL")
				continue
			}
			if err := validateValue(r.validate, col, fieldTag(r.table, col), v); err != nil {
				return nil, err
			}
			sets = append(sets, fmt.Sprintf("%s = %s", name, c.bind(v)))
		}
	}

	for _, col := range r.table.Columns {
		if col.AutoUpdate {
			if _, ok := data[col.Name]; !ok {
				sets = append(sets, col.Name+" = NOW()")
			}
		}
	}
	return sets, nil
}
