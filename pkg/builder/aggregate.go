package builder

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/marshallshelly/blogstore/pkg/schema"
)

// Aggregate kinds, also used as prefixes of aggregate references in
// GroupBy Having and OrderBy ("_sum.view_count").
const (
	aggCount = "_count"
	aggAvg   = "_avg"
	aggSum   = "_sum"
	aggMin   = "_min"
	aggMax   = "_max"
)

// countAll is the Count column name for COUNT(*).
const countAll = "_all"

type aggregateSpec struct {
	kind   string
	column string
}

// aggregateSpecs validates requested aggregates.
func aggregateSpecs(table *schema.TableMetadata, count, avg, sum, minCols, maxCols []string) ([]aggregateSpec, error) {
	var specs []aggregateSpec
	add := func(kind string, columns []string) error {
		for _, col := range columns {
			spec := aggregateSpec{kind: kind, column: col}
			if _, err := spec.check(table); err != nil {
				return err
			}
			specs = append(specs, spec)
		}
		return nil
	}

	for _, group := range []struct {
		kind    string
		columns []string
	}{
		{aggCount, count}, {aggAvg, avg}, {aggSum, sum}, {aggMin, minCols}, {aggMax, maxCols},
	} {
		if err := add(group.kind, group.columns); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

// check validates the aggregate against the table and returns the column
// metadata describing its result.
func (a aggregateSpec) check(table *schema.TableMetadata) (*schema.ColumnMetadata, error) {
	ref := a.kind + "." + a.column
	if a.kind == aggCount && a.column == countAll {
		return &schema.ColumnMetadata{Name: ref, GoType: reflect.TypeFor[int64]()}, nil
	}

	col := table.Column(a.column)
	if col == nil {
		return nil, runtime.Invalid(ref, "unknown column on %s", table.Name)
	}

	switch a.kind {
	case aggCount:
		return &schema.ColumnMetadata{Name: ref, GoType: reflect.TypeFor[int64]()}, nil
	case aggAvg:
		if !col.IsNumeric() {
			return nil, runtime.Invalid(ref, "avg requires a numeric column")
		}
		return &schema.ColumnMetadata{Name: ref, GoType: reflect.TypeFor[*float64](), Nullable: true}, nil
	case aggSum:
		if !col.IsNumeric() {
			return nil, runtime.Invalid(ref, "sum requires a numeric column")
		}
		fallthrough
	case aggMin, aggMax:
		result := *col
		result.Name = ref
		result.Nullable = true
		return &result, nil
	}
	return nil, runtime.Invalid(ref, "unknown aggregate %s", a.kind)
}

// expr renders the aggregate. Sums are cast so integer sums decode as
// int64 and float sums as float64.
func (a aggregateSpec) expr(table *schema.TableMetadata) string {
	switch a.kind {
	case aggCount:
		if a.column == countAll {
			return "COUNT(*)"
		}
		return "COUNT(" + a.column + ")"
	case aggAvg:
		return "AVG(" + a.column + ")::float8"
	case aggSum:
		if table.Column(a.column).IsInteger() {
			return "SUM(" + a.column + ")::bigint"
		}
		return "SUM(" + a.column + ")::float8"
	case aggMin:
		return "MIN(" + a.column + ")"
	default:
		return "MAX(" + a.column + ")"
	}
}

func newAggregateResult() AggregateResult {
	return AggregateResult{
		Count: make(map[string]int64),
		Avg:   make(map[string]*float64),
		Sum:   make(map[string]any),
		Min:   make(map[string]any),
		Max:   make(map[string]any),
	}
}

// assign stores a scanned aggregate value.
func (res *AggregateResult) assign(spec aggregateSpec, value any) {
	switch spec.kind {
	case aggCount:
		n, _ := value.(int64)
		res.Count[spec.column] = n
	case aggAvg:
		if f, ok := value.(float64); ok {
			res.Avg[spec.column] = &f
		} else {
			res.Avg[spec.column] = nil
		}
	case aggSum:
		res.Sum[spec.column] = value
	case aggMin:
		res.Min[spec.column] = value
	case aggMax:
		res.Max[spec.column] = value
	}
}

// Count returns the number of rows matching args.
func (r *Repository[T]) Count(ctx context.Context, args CountArgs) (int64, error) {
	c := r.compiler()

	var sql string
	if args.Cursor != nil || args.Take != nil || args.Skip != nil || len(args.Distinct) > 0 {
		find, err := buildFind(c, &findQuery{
			table: r.table,
			args: &FindManyArgs{
				Where: args.Where, OrderBy: args.OrderBy, Cursor: args.Cursor,
				Take: args.Take, Skip: args.Skip, Distinct: args.Distinct,
			},
			projection: r.table.PrimaryKeyColumns(),
		})
		if err != nil {
			return 0, err
		}
		sql = fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS %s", find, r.table.Name)
	} else {
		where, err := c.where(tableScope(r.table), args.Where)
		if err != nil {
			return 0, err
		}
		sql = "SELECT COUNT(*) FROM " + r.table.Name
		if where != "" {
			sql += " WHERE " + where
		}
	}

	var n int64
	if err := r.q.QueryRow(ctx, sql, c.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.table.Name, runtime.Classify(err))
	}
	return n, nil
}

// Aggregate computes count, avg, sum, min and max over the rows matching
// args. OrderBy, Cursor, Take and Skip select the window aggregated over.
func (r *Repository[T]) Aggregate(ctx context.Context, args AggregateArgs) (*AggregateResult, error) {
	specs, err := aggregateSpecs(r.table, args.Count, args.Avg, args.Sum, args.Min, args.Max)
	if err != nil {
		return nil, err
	}
	result := newAggregateResult()
	if len(specs) == 0 {
		return &result, nil
	}

	c := r.compiler()
	exprs := make([]string, len(specs))
	for i, spec := range specs {
		exprs[i] = spec.expr(r.table)
	}

	var from string
	if args.Cursor != nil || args.Take != nil || args.Skip != nil || len(args.OrderBy) > 0 {
		find, err := buildFind(c, &findQuery{
			table: r.table,
			args: &FindManyArgs{
				Where: args.Where, OrderBy: args.OrderBy, Cursor: args.Cursor,
				Take: args.Take, Skip: args.Skip,
			},
		})
		if err != nil {
			return nil, err
		}
		from = fmt.Sprintf("(%s) AS %s", find, r.table.Name)
	} else {
		where, err := c.where(tableScope(r.table), args.Where)
		if err != nil {
			return nil, err
		}
		from = r.table.Name
		if where != "" {
			from += " WHERE " + where
		}
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), from)
	rows, err := r.q.Query(ctx, sql, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", r.table.Name, err)
	}
	defer rows.Close()

	if rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read aggregates: %w", err)
		}
		for i, spec := range specs {
			result.assign(spec, values[i])
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", r.table.Name, runtime.Classify(err))
	}
	return &result, nil
}
