package builder

import (
	"context"
	"fmt"
)

// Delete removes the row with the given unique key and returns it. It
// returns a *runtime.NotFoundError when no row matches. Dependent rows
// follow the foreign keys' ON DELETE rules.
func (r *Repository[T]) Delete(ctx context.Context, key UniqueKey) (*T, error) {
	if _, err := r.checkUniqueKey(key, "where"); err != nil {
		return nil, err
	}

	c := r.compiler()
	where, err := c.where(tableScope(r.table), keyConditions(key))
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING *", r.table.Name, where)
	deleted, err := r.queryOne(ctx, sql, c.args)
	if err != nil {
		return nil, fmt.Errorf("failed to delete %s: %w", r.table.Name, err)
	}
	if deleted == nil {
		return nil, r.notFound(key)
	}
	r.wrote()
	return deleted, nil
}

// DeleteMany removes the rows matching args.Where and returns the number of
// deleted rows. With a Limit, only the first Limit rows in primary key
// order are deleted.
func (r *Repository[T]) DeleteMany(ctx context.Context, args DeleteManyArgs) (int64, error) {
	c := r.compiler()
	where, err := r.limitedWhere(c, args.Where, args.Limit)
	if err != nil {
		return 0, err
	}

	sql := "DELETE FROM " + r.table.Name + where
	n, err := r.q.Exec(ctx, sql, c.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", r.table.Name, err)
	}
	if n > 0 {
		r.wrote()
	}
	return n, nil
}
