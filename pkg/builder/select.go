package builder

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/marshallshelly/blogstore/pkg/schema"
)

// FindUnique returns the row with the given unique key, or nil when no row
// matches.
func (r *Repository[T]) FindUnique(ctx context.Context, key UniqueKey, opts ...FindOption) (*T, error) {
	if _, err := r.checkUniqueKey(key, "where"); err != nil {
		return nil, err
	}

	args := FindManyArgs{}
	for _, opt := range opts {
		opt(&args)
	}
	args.Where = keyConditions(key)
	args.Take = Ptr(1)

	results, err := r.FindMany(ctx, args)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return &results[0], nil
}

// FindUniqueOrError is like FindUnique but returns a *runtime.NotFoundError
// when no row matches.
func (r *Repository[T]) FindUniqueOrError(ctx context.Context, key UniqueKey, opts ...FindOption) (*T, error) {
	result, err := r.FindUnique(ctx, key, opts...)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, r.notFound(key)
	}
	return result, nil
}

// FindFirst returns the first row matching args, or nil.
func (r *Repository[T]) FindFirst(ctx context.Context, args FindManyArgs) (*T, error) {
	if args.Take == nil {
		args.Take = Ptr(1)
	} else if *args.Take > 0 {
		args.Take = Ptr(1)
	} else if *args.Take < 0 {
		args.Take = Ptr(-1)
	}

	results, err := r.FindMany(ctx, args)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return &results[0], nil
}

// FindFirstOrError is like FindFirst but returns a *runtime.NotFoundError
// when no row matches.
func (r *Repository[T]) FindFirstOrError(ctx context.Context, args FindManyArgs) (*T, error) {
	result, err := r.FindFirst(ctx, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &runtime.NotFoundError{Table: r.table.Name}
	}
	return result, nil
}

// FindMany returns the rows matching args and loads requested relations.
func (r *Repository[T]) FindMany(ctx context.Context, args FindManyArgs) ([]T, error) {
	if err := checkIncludeDepth(args.Include); err != nil {
		return nil, err
	}

	c := r.compiler()
	sql, err := buildFind(c, &findQuery{table: r.table, args: &args})
	if err != nil {
		return nil, err
	}

	results, err := r.query(ctx, sql, c.args)
	if err != nil {
		return nil, err
	}

	if len(args.Include) > 0 && len(results) > 0 {
		if err := r.LoadRelations(ctx, results, args.Include...); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// findQuery is a planned SELECT over one table.
type findQuery struct {
	table *schema.TableMetadata
	args  *FindManyArgs
	// filter is ANDed with args.Where.
	filter []Condition
	// partition pages per value of these columns instead of globally.
	partition []string
	// projection overrides the selected column list.
	projection []string
}

// buildFind renders a findMany query. Ordering always ends with the
// primary key so pages are deterministic.
func buildFind(c *compiler, q *findQuery) (string, error) {
	args := q.args
	table := q.table

	projection := q.projection
	if projection == nil {
		var err error
		projection, err = project(table, args, nil)
		if err != nil {
			return "", err
		}
	}

	order, err := orderClause(table, args.OrderBy)
	if err != nil {
		return "", err
	}

	skip := 0
	if args.Skip != nil {
		if *args.Skip < 0 {
			return "", runtime.Invalid("skip", "must not be negative")
		}
		skip = *args.Skip
	}
	backwards := args.Take != nil && *args.Take < 0

	for _, col := range args.Distinct {
		if !table.HasColumn(col) {
			return "", runtime.Invalid(col, "unknown distinct column on %s", table.Name)
		}
	}
	if len(args.Distinct) > 0 && len(q.partition) > 0 {
		return "", runtime.Invalid("distinct", "distinct is not supported on included relations")
	}

	s := tableScope(table)
	where, err := c.where(s, append(slices.Clone(q.filter), args.Where...))
	if err != nil {
		return "", err
	}

	// Rows are paged in scan order; a backwards page scans in reverse.
	scan := order
	if backwards {
		scan = reverseOrder(order)
	}

	var cursor string
	if args.Cursor != nil {
		cursor, err = cursorCondition(c, table, args.Cursor, scan)
		if err != nil {
			return "", err
		}
	}

	cols := strings.Join(projection, ", ")

	// Window over distinct columns or per-parent partitions.
	window := args.Distinct
	if len(q.partition) > 0 {
		window = q.partition
	}
	if len(window) > 0 {
		filters := joinAnd(where, cursor)
		inner := fmt.Sprintf("SELECT *, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS %s FROM %s",
			strings.Join(window, ", "), renderOrder(scan), rowNumberColumn, table.Name)
		if filters != "" {
			inner += " WHERE " + filters
		}

		if len(args.Distinct) > 0 {
			// Distinct rows are paged like a plain table.
			distinct := fmt.Sprintf("SELECT * FROM (%s) AS %s WHERE %s = 1", inner, table.Name, rowNumberColumn)
			return pageQuery(distinct, table.Name, cols, "", order, scan, args.Take, skip, backwards), nil
		}

		var outer []string
		if skip > 0 {
			outer = append(outer, fmt.Sprintf("%s > %d", rowNumberColumn, skip))
		}
		if args.Take != nil {
			outer = append(outer, fmt.Sprintf("%s <= %d", rowNumberColumn, skip+abs(*args.Take)))
		}

		sql := fmt.Sprintf("SELECT %s FROM (%s) AS %s", cols, inner, table.Name)
		if len(outer) > 0 {
			sql += " WHERE " + strings.Join(outer, " AND ")
		}
		return sql + " ORDER BY " + renderOrder(order), nil
	}

	return pageQuery("", table.Name, cols, joinAnd(where, cursor), order, scan, args.Take, skip, backwards), nil
}

// pageQuery applies ordering, LIMIT and OFFSET to a table or a derived
// source. Backwards pages are selected in scan order and re-sorted.
func pageQuery(source, name, cols, filter string, order, scan []OrderBy, take *int, skip int, backwards bool) string {
	from := name
	if source != "" {
		from = "(" + source + ") AS " + name
	}

	sql := "SELECT "
	if backwards {
		sql += "*"
	} else {
		sql += cols
	}
	sql += " FROM " + from
	if filter != "" {
		sql += " WHERE " + filter
	}
	sql += " ORDER BY " + renderOrder(scan)
	if take != nil {
		sql += fmt.Sprintf(" LIMIT %d", abs(*take))
	}
	if skip > 0 {
		sql += fmt.Sprintf(" OFFSET %d", skip)
	}

	if backwards {
		return fmt.Sprintf("SELECT %s FROM (%s) AS %s ORDER BY %s", cols, sql, name, renderOrder(order))
	}
	return sql
}

// project resolves Select/Omit into a column list and checks that columns
// needed by includes stay selected. required lists extra columns the
// caller matches on.
func project(table *schema.TableMetadata, args *FindManyArgs, required []string) ([]string, error) {
	if len(args.Select) > 0 && len(args.Omit) > 0 {
		return nil, runtime.Invalid("select", "select and omit cannot be used together")
	}
	if len(args.Select) > 0 && len(args.Include) > 0 {
		return nil, runtime.Invalid("select", "select and include cannot be used together")
	}

	for _, col := range append(slices.Clone(args.Select), args.Omit...) {
		if !table.HasColumn(col) {
			return nil, runtime.Invalid(col, "unknown column on %s", table.Name)
		}
	}

	for _, inc := range args.Include {
		rel := table.GetRelationship(inc.Relation)
		if rel == nil {
			return nil, runtime.Invalid(inc.Relation, "unknown relation on %s", table.Name)
		}
		required = append(required, rel.LocalKey())
	}

	var cols []string
	switch {
	case len(args.Select) > 0:
		for _, col := range table.ColumnNames() {
			if slices.Contains(args.Select, col) || slices.Contains(required, col) {
				cols = append(cols, col)
			}
		}
	default:
		for _, col := range table.ColumnNames() {
			if !slices.Contains(args.Omit, col) {
				cols = append(cols, col)
				continue
			}
			if slices.Contains(required, col) {
				return nil, runtime.Invalid(col, "column is needed to load relations and cannot be omitted")
			}
		}
	}

	if len(cols) == 0 {
		return nil, runtime.Invalid("omit", "at least one column must be selected")
	}
	return cols, nil
}

// orderClause validates ordering and appends the primary key as tiebreak.
func orderClause(table *schema.TableMetadata, orderBy []OrderBy) ([]OrderBy, error) {
	order := make([]OrderBy, 0, len(orderBy)+1)
	for _, o := range orderBy {
		if !table.HasColumn(o.Column) {
			return nil, runtime.Invalid(o.Column, "unknown order column on %s", table.Name)
		}
		normalized, err := normalizeOrder(o)
		if err != nil {
			return nil, err
		}
		order = append(order, normalized)
	}
	for _, col := range table.PrimaryKeyColumns() {
		if !slices.ContainsFunc(order, func(o OrderBy) bool { return o.Column == col }) {
			order = append(order, Asc(col))
		}
	}
	return order, nil
}

func normalizeOrder(o OrderBy) (OrderBy, error) {
	switch OrderDirection(strings.ToUpper(string(o.Direction))) {
	case "", Ascending:
		o.Direction = Ascending
	case Descending:
		o.Direction = Descending
	default:
		return o, runtime.Invalid(o.Column, "invalid order direction %q", o.Direction)
	}
	switch o.Nulls {
	case NullsDefault, NullsFirst, NullsLast:
	default:
		return o, runtime.Invalid(o.Column, "invalid nulls position %q", o.Nulls)
	}
	return o, nil
}

func reverseOrder(order []OrderBy) []OrderBy {
	reversed := make([]OrderBy, len(order))
	for i, o := range order {
		if o.Direction == Descending {
			o.Direction = Ascending
		} else {
			o.Direction = Descending
		}
		switch o.Nulls {
		case NullsFirst:
			o.Nulls = NullsLast
		case NullsLast:
			o.Nulls = NullsFirst
		}
		reversed[i] = o
	}
	return reversed
}

func renderOrder(order []OrderBy) string {
	parts := make([]string, len(order))
	for i, o := range order {
		parts[i] = o.Column + " " + string(o.Direction)
		if o.Nulls != NullsDefault {
			parts[i] += " " + string(o.Nulls)
		}
	}
	return strings.Join(parts, ", ")
}

// cursorCondition selects rows at or after the cursor row in scan order.
// Each order column is compared with the cursor row's value read by a
// scalar subquery:
//
//	(a > ca) OR (a = ca AND b > cb) OR ... OR (a = ca AND ... AND z >= cz)
//
// Nullable columns get extra branches so NULLs page in the position
// ORDER BY gives them.
func cursorCondition(c *compiler, table *schema.TableMetadata, cursor UniqueKey, scan []OrderBy) (string, error) {
	cols := cursor.columns()
	if table.FindUniqueKey(cols) == nil {
		return "", runtime.Invalid("cursor", "(%s) is not a unique key of %s; expected one of %s",
			strings.Join(cols, ", "), table.Name, table.DescribeUniqueKeys())
	}

	keyParts := make([]string, len(cols))
	for i, col := range cols {
		if isNil(cursor[col]) {
			return "", runtime.Invalid(col, "cursor value must not be nil")
		}
		keyParts[i] = col + " = " + c.bind(cursor[col])
	}
	key := strings.Join(keyParts, " AND ")

	value := func(col string) string {
		return fmt.Sprintf("(SELECT %s FROM %s WHERE %s)", col, table.Name, key)
	}

	terms := make([]string, len(scan))
	for i, o := range scan {
		parts := make([]string, 0, i+1)
		for _, prev := range scan[:i] {
			parts = append(parts, fmt.Sprintf("%s IS NOT DISTINCT FROM %s", prev.Column, value(prev.Column)))
		}

		parts = append(parts, afterCursor(table.Column(o.Column), o, value(o.Column), i == len(scan)-1))
		terms[i] = "(" + strings.Join(parts, " AND ") + ")"
	}

	if len(terms) == 1 {
		return terms[0], nil
	}
	return "(" + strings.Join(terms, " OR ") + ")", nil
}

// afterCursor compares one order column with the cursor value v. A
// comparison against NULL is never true, so for nullable columns the rows
// that sort after the cursor because of NULL placement are added explicitly.
func afterCursor(col *schema.ColumnMetadata, o OrderBy, v string, inclusive bool) string {
	op := ">"
	if o.Direction == Descending {
		op = "<"
	}
	if col == nil || !col.Nullable {
		if inclusive {
			op += "="
		}
		return fmt.Sprintf("%s %s %s", o.Column, op, v)
	}

	branches := []string{fmt.Sprintf("%s %s %s", o.Column, op, v)}
	if nullsFirst(o) {
		branches = append(branches, fmt.Sprintf("(%s IS NULL AND %s IS NOT NULL)", v, o.Column))
	} else {
		branches = append(branches, fmt.Sprintf("(%s IS NOT NULL AND %s IS NULL)", v, o.Column))
	}
	if inclusive {
		branches = append(branches, fmt.Sprintf("%s IS NOT DISTINCT FROM %s", o.Column, v))
	}
	return "(" + strings.Join(branches, " OR ") + ")"
}

// nullsFirst reports where PostgreSQL puts NULLs for o: first for DESC and
// last for ASC unless NULLS FIRST/LAST says otherwise.
func nullsFirst(o OrderBy) bool {
	switch o.Nulls {
	case NullsFirst:
		return true
	case NullsLast:
		return false
	}
	return o.Direction == Descending
}

func joinAnd(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " AND ")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
