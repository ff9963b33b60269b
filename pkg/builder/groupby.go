package builder

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/marshallshelly/blogstore/pkg/schema"
)

// GroupBy groups the rows matching args.Where by args.By and returns one
// GroupRow per group with the requested aggregates.
//
// Having and OrderBy may only reference By columns or aggregates such as
// "_count._all" or "_avg.view_count"; Take and Skip require OrderBy. Groups
// are ordered by OrderBy followed by the By columns.
func (r *Repository[T]) GroupBy(ctx context.Context, args GroupByArgs) ([]GroupRow, error) {
	c := r.compiler()
	sql, specs, err := r.buildGroupBy(c, args)
	if err != nil {
		return nil, err
	}

	rows, err := r.q.Query(ctx, sql, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group %s: %w", r.table.Name, err)
	}
	defer rows.Close()

	var groups []GroupRow
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read group: %w", err)
		}

		group := GroupRow{Keys: make(map[string]any, len(args.By)), AggregateResult: newAggregateResult()}
		for i, col := range args.By {
			group.Keys[col] = values[i]
		}
		for i, spec := range specs {
			group.assign(spec, values[len(args.By)+i])
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to group %s: %w", r.table.Name, runtime.Classify(err))
	}
	return groups, nil
}

func (r *Repository[T]) buildGroupBy(c *compiler, args GroupByArgs) (string, []aggregateSpec, error) {
	if len(args.By) == 0 {
		return "", nil, runtime.Invalid("by", "at least one column is required")
	}
	for _, col := range args.By {
		if !r.table.HasColumn(col) {
			return "", nil, runtime.Invalid(col, "unknown group column on %s", r.table.Name)
		}
	}
	if (args.Take != nil || args.Skip != nil) && len(args.OrderBy) == 0 {
		return "", nil, runtime.Invalid("orderBy", "take and skip require orderBy")
	}
	if args.Take != nil && *args.Take < 0 {
		return "", nil, runtime.Invalid("take", "must not be negative")
	}
	if args.Skip != nil && *args.Skip < 0 {
		return "", nil, runtime.Invalid("skip", "must not be negative")
	}

	specs, err := aggregateSpecs(r.table, args.Count, args.Avg, args.Sum, args.Min, args.Max)
	if err != nil {
		return "", nil, err
	}

	groupScope := &scope{table: r.table, alias: r.table.Name, columns: r.groupColumns(args.By)}

	where, err := c.where(tableScope(r.table), args.Where)
	if err != nil {
		return "", nil, err
	}
	having, err := c.where(groupScope, args.Having)
	if err != nil {
		return "", nil, err
	}

	var order []string
	seen := make(map[string]bool)
	for _, o := range args.OrderBy {
		expr, _, err := groupScope.resolve(o.Column)
		if err != nil {
			return "", nil, runtime.Invalid(o.Column, "orderBy must reference a by column or an aggregate")
		}
		normalized, err := normalizeOrder(o)
		if err != nil {
			return "", nil, err
		}
		entry := expr + " " + string(normalized.Direction)
		if normalized.Nulls != NullsDefault {
			entry += " " + string(normalized.Nulls)
		}
		order = append(order, entry)
		seen[o.Column] = true
	}
	for _, col := range args.By {
		if !seen[col] {
			order = append(order, col+" ASC")
		}
	}

	selects := slices.Clone(args.By)
	for _, spec := range specs {
		selects = append(selects, spec.expr(r.table))
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selects, ", "), r.table.Name)
	if where != "" {
		sql += " WHERE " + where
	}
	sql += " GROUP BY " + strings.Join(args.By, ", ")
	if having != "" {
		sql += " HAVING " + having
	}
	sql += " ORDER BY " + strings.Join(order, ", ")
	if args.Take != nil {
		sql += fmt.Sprintf(" LIMIT %d", *args.Take)
	}
	if args.Skip != nil && *args.Skip > 0 {
		sql += fmt.Sprintf(" OFFSET %d", *args.Skip)
	}
	return sql, specs, nil
}

// groupColumns resolves Having and OrderBy references: By columns map to
// themselves and aggregate references to their expressions. Any other
// column is rejected.
func (r *Repository[T]) groupColumns(by []string) resolver {
	return func(name string) (string, *schema.ColumnMetadata, error) {
		if slices.Contains(by, name) {
			return name, r.table.Column(name), nil
		}

		kind, column, ok := strings.Cut(name, ".")
		if !ok || !slices.Contains([]string{aggCount, aggAvg, aggSum, aggMin, aggMax}, kind) {
			if r.table.HasColumn(name) {
				return "", nil, runtime.Invalid(name, "having may only reference by columns or aggregates")
			}
			return "", nil, runtime.Invalid(name, "unknown column on %s", r.table.Name)
		}

		spec := aggregateSpec{kind: kind, column: column}
		col, err := spec.check(r.table)
		if err != nil {
			return "", nil, err
		}
		return spec.expr(r.table), col, nil
	}
}
