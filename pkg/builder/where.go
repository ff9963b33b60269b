package builder

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/marshallshelly/blogstore/pkg/schema"
)

// Condition is a node of a filter tree: a column comparison, a boolean
// combination of conditions, or a filter on a relation.
type Condition struct {
	Column   string
	Operator Operator
	Value    any
	Mode     QueryMode
	// Group holds the operands of And, Or, Not and relation filters.
	Group []Condition
	// Relation is the relation field name for relation filters.
	Relation string
}

// Operator represents a comparison, combinator or relation operator.
type Operator string

const (
	// OpEqual represents the = operator.
	OpEqual Operator = "="
	// OpNotEqual represents the <> operator.
	OpNotEqual Operator = "<>"
	// OpGreaterThan represents the > operator.
	OpGreaterThan Operator = ">"
	// OpGreaterThanOrEqual represents the >= operator.
	OpGreaterThanOrEqual Operator = ">="
	// OpLessThan represents the < operator.
	OpLessThan Operator = "<"
	// OpLessThanOrEqual represents the <= operator.
	OpLessThanOrEqual Operator = "<="
	// OpIn represents the IN operator.
	OpIn Operator = "IN"
	// OpNotIn represents the NOT IN operator.
	OpNotIn Operator = "NOT IN"
	// OpContains matches a substring.
	OpContains Operator = "CONTAINS"
	// OpStartsWith matches a prefix.
	OpStartsWith Operator = "STARTS WITH"
	// OpEndsWith matches a suffix.
	OpEndsWith Operator = "ENDS WITH"
	// OpIsNull represents the IS NULL operator.
	OpIsNull Operator = "IS NULL"
	// OpIsNotNull represents the IS NOT NULL operator.
	OpIsNotNull Operator = "IS NOT NULL"
	// OpBetween represents the BETWEEN operator.
	OpBetween Operator = "BETWEEN"
	// OpAny matches any element of a typed slice (= ANY($n)).
	OpAny Operator = "= ANY"

	// OpAnd requires every operand to match.
	OpAnd Operator = "AND"
	// OpOr requires one operand to match.
	OpOr Operator = "OR"
	// OpNot requires the conjunction of its operands not to match.
	OpNot Operator = "NOT"

	// OpSome matches when at least one related row matches.
	OpSome Operator = "SOME"
	// OpNone matches when no related row matches.
	OpNone Operator = "NONE"
	// OpEvery matches when every related row matches.
	OpEvery Operator = "EVERY"
	// OpIs matches when the related row exists and matches.
	OpIs Operator = "IS"
	// OpIsNot matches when no matching related row exists.
	OpIsNot Operator = "IS NOT"
)

// QueryMode selects case sensitivity for string comparisons.
type QueryMode string

const (
	// ModeDefault compares strings as stored.
	ModeDefault QueryMode = ""
	// ModeInsensitive compares strings ignoring case.
	ModeInsensitive QueryMode = "insensitive"
)

// Insensitive returns a copy of the condition that ignores case.
func (c Condition) Insensitive() Condition {
	c.Mode = ModeInsensitive
	return c
}

// Eq creates an equality condition. A nil value tests for NULL.
func Eq(column string, value any) Condition {
	if isNil(value) {
		return IsNull(column)
	}
	return Condition{Column: column, Operator: OpEqual, Value: value}
}

// NotEq creates a not-equal condition. A nil value tests for NOT NULL.
func NotEq(column string, value any) Condition {
	if isNil(value) {
		return IsNotNull(column)
	}
	return Condition{Column: column, Operator: OpNotEqual, Value: value}
}

// Gt creates a greater-than condition.
func Gt(column string, value any) Condition {
	return Condition{Column: column, Operator: OpGreaterThan, Value: value}
}

// Gte creates a greater-than-or-equal condition.
func Gte(column string, value any) Condition {
	return Condition{Column: column, Operator: OpGreaterThanOrEqual, Value: value}
}

// Lt creates a less-than condition.
func Lt(column string, value any) Condition {
	return Condition{Column: column, Operator: OpLessThan, Value: value}
}

// Lte creates a less-than-or-equal condition.
func Lte(column string, value any) Condition {
	return Condition{Column: column, Operator: OpLessThanOrEqual, Value: value}
}

// In creates an IN condition. An empty list matches nothing.
func In[V any](column string, values ...V) Condition {
	return Condition{Column: column, Operator: OpIn, Value: toAnySlice(values)}
}

// NotIn creates a NOT IN condition. An empty list matches everything.
func NotIn[V any](column string, values ...V) Condition {
	return Condition{Column: column, Operator: OpNotIn, Value: toAnySlice(values)}
}

// Contains matches string columns containing substr.
func Contains(column, substr string) Condition {
	return Condition{Column: column, Operator: OpContains, Value: substr}
}

// StartsWith matches string columns beginning with prefix.
func StartsWith(column, prefix string) Condition {
	return Condition{Column: column, Operator: OpStartsWith, Value: prefix}
}

// EndsWith matches string columns ending with suffix.
func EndsWith(column, suffix string) Condition {
	return Condition{Column: column, Operator: OpEndsWith, Value: suffix}
}

// IsNull creates an IS NULL condition on a nullable column.
func IsNull(column string) Condition {
	return Condition{Column: column, Operator: OpIsNull}
}

// IsNotNull creates an IS NOT NULL condition on a nullable column.
func IsNotNull(column string) Condition {
	return Condition{Column: column, Operator: OpIsNotNull}
}

// Between creates a BETWEEN condition.
func Between(column string, low, high any) Condition {
	return Condition{Column: column, Operator: OpBetween, Value: []any{low, high}}
}

// AnyOf matches column against the elements of a typed slice in a single
// array parameter.
func AnyOf(column string, values any) Condition {
	return Condition{Column: column, Operator: OpAny, Value: values}
}

// And matches when every condition matches. An empty And matches everything.
func And(conditions ...Condition) Condition {
	return Condition{Operator: OpAnd, Group: conditions}
}

// Or matches when at least one condition matches. An empty Or matches nothing.
func Or(conditions ...Condition) Condition {
	return Condition{Operator: OpOr, Group: conditions}
}

// Not negates the conjunction of conditions. An empty Not matches everything.
func Not(conditions ...Condition) Condition {
	return Condition{Operator: OpNot, Group: conditions}
}

// Some matches rows with at least one related row (to-many) matching conditions.
func Some(relation string, conditions ...Condition) Condition {
	return Condition{Operator: OpSome, Relation: relation, Group: conditions}
}

// None matches rows without any related row (to-many) matching conditions.
func None(relation string, conditions ...Condition) Condition {
	return Condition{Operator: OpNone, Relation: relation, Group: conditions}
}

// Every matches rows whose related rows (to-many) all match conditions.
// Rows without related rows match.
func Every(relation string, conditions ...Condition) Condition {
	return Condition{Operator: OpEvery, Relation: relation, Group: conditions}
}

// Is matches rows whose related row (to-one) exists and matches conditions.
func Is(relation string, conditions ...Condition) Condition {
	return Condition{Operator: OpIs, Relation: relation, Group: conditions}
}

// IsNot matches rows whose related row (to-one) is absent or does not match.
func IsNot(relation string, conditions ...Condition) Condition {
	return Condition{Operator: OpIsNot, Relation: relation, Group: conditions}
}

// resolver maps a column reference to an SQL expression and the column
// metadata used for type checks.
type resolver func(name string) (string, *schema.ColumnMetadata, error)

// scope is the table a condition is evaluated against.
type scope struct {
	table *schema.TableMetadata
	// alias is the name correlated subqueries use to reach this table.
	alias string
	// qualify prefixes own columns with alias.
	qualify bool
	// columns overrides plain column lookup (used for HAVING).
	columns resolver
}

func tableScope(table *schema.TableMetadata) *scope {
	return &scope{table: table, alias: table.Name}
}

func (s *scope) resolve(name string) (string, *schema.ColumnMetadata, error) {
	if s.columns != nil {
		return s.columns(name)
	}
	col := s.table.Column(name)
	if col == nil {
		return "", nil, runtime.Invalid(name, "unknown column on %s", s.table.Name)
	}
	if s.qualify {
		return s.alias + "." + name, col, nil
	}
	return name, col, nil
}

// compiler accumulates bind parameters while rendering conditions.
type compiler struct {
	args    []any
	aliases int
	resolve func(source *schema.TableMetadata, rel *schema.RelationshipMetadata) (*schema.TableMetadata, error)
}

// bind adds a parameter and returns its placeholder.
func (c *compiler) bind(value any) string {
	c.args = append(c.args, value)
	return "$" + strconv.Itoa(len(c.args))
}

// where renders conditions joined by AND. It returns "" for no conditions.
func (c *compiler) where(s *scope, conditions []Condition) (string, error) {
	if len(conditions) == 0 {
		return "", nil
	}
	if len(conditions) == 1 {
		return c.build(s, conditions[0])
	}
	return c.build(s, And(conditions...))
}

func (c *compiler) build(s *scope, cond Condition) (string, error) {
	switch cond.Operator {
	case OpAnd, OpOr:
		return c.buildGroup(s, cond)
	case OpNot:
		if len(cond.Group) == 0 {
			return "TRUE", nil
		}
		inner, err := c.build(s, And(cond.Group...))
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case OpSome, OpNone, OpEvery, OpIs, OpIsNot:
		return c.buildRelation(s, cond)
	default:
		return c.buildField(s, cond)
	}
}

func (c *compiler) buildGroup(s *scope, cond Condition) (string, error) {
	if len(cond.Group) == 0 {
		if cond.Operator == OpAnd {
			return "TRUE", nil
		}
		return "FALSE", nil
	}

	parts := make([]string, 0, len(cond.Group))
	for _, child := range cond.Group {
		sql, err := c.build(s, child)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " "+string(cond.Operator)+" ") + ")", nil
}

func (c *compiler) buildField(s *scope, cond Condition) (string, error) {
	ref, col, err := s.resolve(cond.Column)
	if err != nil {
		return "", err
	}

	insensitive := cond.Mode == ModeInsensitive
	if insensitive && !col.IsString() {
		return "", runtime.Invalid(cond.Column, "insensitive mode requires a string column")
	}

	switch cond.Operator {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		if isNil(cond.Value) {
			return "", runtime.Invalid(cond.Column, "%s requires a value; use IsNull for NULL tests", cond.Operator)
		}
		if insensitive {
			return fmt.Sprintf("LOWER(%s) %s LOWER(%s)", ref, cond.Operator, c.bind(cond.Value)), nil
		}
		return fmt.Sprintf("%s %s %s", ref, cond.Operator, c.bind(cond.Value)), nil

	case OpIn, OpNotIn:
		values, ok := cond.Value.([]any)
		if !ok {
			return "", runtime.Invalid(cond.Column, "%s requires a list of values", cond.Operator)
		}
		if len(values) == 0 {
			if cond.Operator == OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = c.bind(v)
			if insensitive {
				placeholders[i] = "LOWER(" + placeholders[i] + ")"
			}
		}
		if insensitive {
			ref = "LOWER(" + ref + ")"
		}
		return fmt.Sprintf("%s %s (%s)", ref, cond.Operator, strings.Join(placeholders, ", ")), nil

	case OpContains, OpStartsWith, OpEndsWith:
		if !col.IsString() {
			return "", runtime.Invalid(cond.Column, "%s requires a string column", strings.ToLower(string(cond.Operator)))
		}
		text, ok := cond.Value.(string)
		if !ok {
			return "", runtime.Invalid(cond.Column, "%s requires a string value", strings.ToLower(string(cond.Operator)))
		}
		pattern := escapeLike(text)
		switch cond.Operator {
		case OpContains:
			pattern = "%" + pattern + "%"
		case OpStartsWith:
			pattern = pattern + "%"
		case OpEndsWith:
			pattern = "%" + pattern
		}
		op := "LIKE"
		if insensitive {
			op = "ILIKE"
		}
		return fmt.Sprintf("%s %s %s", ref, op, c.bind(pattern)), nil

	case OpIsNull, OpIsNotNull:
		if !col.Nullable {
			return "", runtime.Invalid(cond.Column, "column is not nullable")
		}
		return ref + " " + string(cond.Operator), nil

	case OpBetween:
		bounds, ok := cond.Value.([]any)
		if !ok || len(bounds) != 2 || isNil(bounds[0]) || isNil(bounds[1]) {
			return "", runtime.Invalid(cond.Column, "between requires a low and a high value")
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", ref, c.bind(bounds[0]), c.bind(bounds[1])), nil

	case OpAny:
		if isNil(cond.Value) || reflect.TypeOf(cond.Value).Kind() != reflect.Slice {
			return "", runtime.Invalid(cond.Column, "any requires a slice")
		}
		return fmt.Sprintf("%s = ANY(%s)", ref, c.bind(cond.Value)), nil

	default:
		return "", runtime.Invalid(cond.Column, "unknown operator %q", cond.Operator)
	}
}

func (c *compiler) buildRelation(s *scope, cond Condition) (string, error) {
	if s.columns != nil {
		return "", runtime.Invalid(cond.Relation, "relation filters are not allowed here")
	}

	rel := s.table.GetRelationship(cond.Relation)
	if rel == nil {
		return "", runtime.Invalid(cond.Relation, "unknown relation on %s", s.table.Name)
	}

	toMany := cond.Operator == OpSome || cond.Operator == OpNone || cond.Operator == OpEvery
	if toMany && rel.Type != schema.HasMany {
		return "", runtime.Invalid(cond.Relation, "%s requires a to-many relation", strings.ToLower(string(cond.Operator)))
	}
	if !toMany && rel.Type != schema.BelongsTo {
		return "", runtime.Invalid(cond.Relation, "%s requires a to-one relation", strings.ToLower(string(cond.Operator)))
	}

	target, err := c.resolve(s.table, rel)
	if err != nil {
		return "", err
	}

	c.aliases++
	inner := &scope{table: target, alias: "r" + strconv.Itoa(c.aliases), qualify: true}
	join := fmt.Sprintf("%s.%s = %s.%s", inner.alias, rel.RemoteKey(), s.alias, rel.LocalKey())

	filter, err := c.where(inner, cond.Group)
	if err != nil {
		return "", err
	}

	predicate := join
	if filter != "" {
		if cond.Operator == OpEvery {
			predicate += " AND (" + filter + ") IS NOT TRUE"
		} else {
			predicate += " AND " + filter
		}
	}

	exists := fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s)", target.Name, inner.alias, predicate)
	switch cond.Operator {
	case OpSome, OpIs:
		return exists, nil
	case OpEvery:
		if filter == "" {
			return "TRUE", nil
		}
		return "NOT " + exists, nil
	default:
		return "NOT " + exists, nil
	}
}

// escapeLike escapes LIKE wildcards using the default backslash escape.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func toAnySlice[V any](values []V) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}
