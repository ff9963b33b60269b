// Package builder provides typed repositories over PostgreSQL tables
// described by `po` struct tags.
package builder

import (
	"maps"
	"slices"
)

// UniqueKey identifies a single row by the columns of one declared unique
// key (the primary key or a single/compound unique constraint).
type UniqueKey map[string]any

// columns returns the key columns in a stable order.
func (k UniqueKey) columns() []string {
	return slices.Sorted(maps.Keys(k))
}

// OrderBy represents an ORDER BY entry.
type OrderBy struct {
	Column    string
	Direction OrderDirection
	Nulls     NullsPosition
}

// Asc orders by column ascending.
func Asc(column string) OrderBy {
	return OrderBy{Column: column, Direction: Ascending}
}

// Desc orders by column descending.
func Desc(column string) OrderBy {
	return OrderBy{Column: column, Direction: Descending}
}

// OrderDirection represents the sort direction.
type OrderDirection string

const (
	// Ascending represents ascending order.
	Ascending OrderDirection = "ASC"
	// Descending represents descending order.
	Descending OrderDirection = "DESC"
)

// NullsPosition represents NULL positioning in ORDER BY.
type NullsPosition string

const (
	// NullsDefault uses database default NULL positioning.
	NullsDefault NullsPosition = ""
	// NullsFirst positions NULL values first.
	NullsFirst NullsPosition = "NULLS FIRST"
	// NullsLast positions NULL values last.
	NullsLast NullsPosition = "NULLS LAST"
)

// FindManyArgs describes a findMany request.
type FindManyArgs struct {
	Where   []Condition
	OrderBy []OrderBy
	// Cursor starts the page at the row with this unique key (inclusive).
	Cursor UniqueKey
	// Take limits the number of rows. A negative Take pages backwards
	// from the cursor while keeping the requested order in the result.
	Take *int
	Skip *int
	// Distinct keeps the first row for each combination of these columns.
	Distinct []string
	// Select restricts the loaded columns. It cannot be combined with
	// Omit or Include.
	Select []string
	// Omit excludes columns from the result.
	Omit    []string
	Include []Include
}

// FindOption adjusts a unique lookup.
type FindOption func(*FindManyArgs)

// Selecting restricts a lookup to the given columns.
func Selecting(columns ...string) FindOption {
	return func(args *FindManyArgs) { args.Select = append(args.Select, columns...) }
}

// Omitting excludes columns from a lookup.
func Omitting(columns ...string) FindOption {
	return func(args *FindManyArgs) { args.Omit = append(args.Omit, columns...) }
}

// Including loads relations with a lookup.
func Including(includes ...Include) FindOption {
	return func(args *FindManyArgs) { args.Include = append(args.Include, includes...) }
}

// Include requests a relation to be loaded with its owners.
type Include struct {
	// Relation is the Go field name of the relation, e.g. "Author".
	Relation string
	// Args filter, order and page a to-many relation per owner. To-one
	// relations accept only Select, Omit and Include.
	Args *FindManyArgs
	// Include nests relations of the loaded rows.
	Include []Include
}

// With is shorthand for an Include without arguments.
func With(relation string, nested ...Include) Include {
	return Include{Relation: relation, Include: nested}
}

// CountArgs describes a count request.
type CountArgs struct {
	Where    []Condition
	OrderBy  []OrderBy
	Cursor   UniqueKey
	Take     *int
	Skip     *int
	Distinct []string
}

// CreateManyOptions controls CreateMany.
type CreateManyOptions struct {
	// SkipDuplicates ignores rows that violate a unique constraint.
	SkipDuplicates bool
}

// UpdateManyArgs describes an updateMany request.
type UpdateManyArgs struct {
	Where []Condition
	Data  Set
	// Limit bounds the number of updated rows. Rows are picked in primary
	// key order. Zero means no limit.
	Limit int
}

// DeleteManyArgs describes a deleteMany request.
type DeleteManyArgs struct {
	Where []Condition
	// Limit bounds the number of deleted rows, picked in primary key order.
	Limit int
}

// AggregateArgs describes an aggregate request. Count accepts "_all".
type AggregateArgs struct {
	Where   []Condition
	OrderBy []OrderBy
	Cursor  UniqueKey
	Take    *int
	Skip    *int

	Count []string
	Avg   []string
	Sum   []string
	Min   []string
	Max   []string
}

// AggregateResult holds aggregate values keyed by column ("_all" for COUNT(*)).
type AggregateResult struct {
	Count map[string]int64
	Avg   map[string]*float64
	Sum   map[string]any
	Min   map[string]any
	Max   map[string]any
}

// GroupByArgs describes a groupBy request. Having and OrderBy may refer to
// By columns or to aggregates written as "_count._all", "_sum.view_count", ...
type GroupByArgs struct {
	By      []string
	Where   []Condition
	Having  []Condition
	OrderBy []OrderBy
	Take    *int
	Skip    *int

	Count []string
	Avg   []string
	Sum   []string
	Min   []string
	Max   []string
}

// GroupRow is one group returned by GroupBy.
type GroupRow struct {
	Keys map[string]any
	AggregateResult
}

// Ptr returns a pointer to v, for Take and Skip.
func Ptr[V any](v V) *V {
	return &v
}

// MaxIncludeDepth bounds nested relation loading.
const MaxIncludeDepth = 8

// rowNumberColumn is the window column used by distinct and per-parent paging.
const rowNumberColumn = "blogstore_rn"

// maxParams is the PostgreSQL bind parameter limit per statement.
const maxParams = 65535
