package builder

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/marshallshelly/blogstore/pkg/schema"
)

// Create inserts value and returns the stored row.
func (r *Repository[T]) Create(ctx context.Context, value T) (*T, error) {
	model := reflect.ValueOf(&value).Elem()
	if err := validateModel(r.validate, r.table, model); err != nil {
		return nil, err
	}

	sql, args, err := r.insertSQL([]reflect.Value{model}, "")
	if err != nil {
		return nil, err
	}

	created, err := r.queryOne(ctx, sql+" RETURNING *", args)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", r.table.Name, err)
	}
	r.wrote()
	return created, nil
}

// CreateMany inserts values and returns the number of inserted rows. With
// SkipDuplicates, rows violating a unique constraint are skipped. Large
// batches are split to stay under the bind parameter limit; run inside a
// transaction to make the whole batch atomic.
func (r *Repository[T]) CreateMany(ctx context.Context, values []T, opts CreateManyOptions) (int64, error) {
	var total int64
	err := r.createMany(values, opts, func(sql string, args []any) error {
		n, err := r.q.Exec(ctx, sql, args...)
		total += n
		return err
	})
	if err != nil {
		return total, fmt.Errorf("failed to create %s: %w", r.table.Name, err)
	}
	if total > 0 {
		r.wrote()
	}
	return total, nil
}

// CreateManyAndReturn is like CreateMany but returns the inserted rows.
func (r *Repository[T]) CreateManyAndReturn(ctx context.Context, values []T, opts CreateManyOptions) ([]T, error) {
	var created []T
	err := r.createMany(values, opts, func(sql string, args []any) error {
		rows, err := r.query(ctx, sql+" RETURNING *", args)
		created = append(created, rows...)
		return err
	})
	if err != nil {
		return created, fmt.Errorf("failed to create %s: %w", r.table.Name, err)
	}
	if len(created) > 0 {
		r.wrote()
	}
	return created, nil
}

func (r *Repository[T]) createMany(values []T, opts CreateManyOptions, run func(sql string, args []any) error) error {
	if len(values) == 0 {
		return nil
	}

	models := make([]reflect.Value, len(values))
	for i := range values {
		models[i] = reflect.ValueOf(&values[i]).Elem()
		if err := validateModel(r.validate, r.table, models[i]); err != nil {
			return err
		}
	}

	conflict := ""
	if opts.SkipDuplicates {
		conflict = " ON CONFLICT DO NOTHING"
	}

	perRow := len(r.table.Columns)
	chunk := max(maxParams/max(perRow, 1), 1)
	for start := 0; start < len(models); start += chunk {
		end := min(start+chunk, len(models))
		sql, args, err := r.insertSQL(models[start:end], conflict)
		if err != nil {
			return err
		}
		if err := run(sql, args); err != nil {
			return err
		}
	}
	return nil
}

// insertSQL renders a multi-row INSERT. Columns a row leaves to the
// database are written as DEFAULT.
func (r *Repository[T]) insertSQL(models []reflect.Value, suffix string) (string, []any, error) {
	rows := make([]map[string]any, len(models))
	used := make(map[string]bool)
	for i, model := range models {
		cols, vals, err := structToValues(model, r.table)
		if err != nil {
			return "", nil, err
		}
		rows[i] = make(map[string]any, len(cols))
		for j, col := range cols {
			rows[i][col] = vals[j]
			used[col] = true
		}
	}

	var columns []string
	for _, col := range r.table.ColumnNames() {
		if used[col] {
			columns = append(columns, col)
		}
	}

	if len(columns) == 0 {
		if len(models) != 1 {
			return "", nil, runtime.Invalid("data", "every row of %s uses only defaults; insert them one at a time", r.table.Name)
		}
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES%s", r.table.Name, suffix), nil, nil
	}

	c := &compiler{}
	tuples := make([]string, len(rows))
	for i, row := range rows {
		slots := make([]string, len(columns))
		for j, col := range columns {
			if v, ok := row[col]; ok {
				slots[j] = c.bind(v)
			} else {
				slots[j] = "DEFAULT"
			}
		}
		tuples[i] = "(" + strings.Join(slots, ", ") + ")"
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s%s",
		r.table.Name, strings.Join(columns, ", "), strings.Join(tuples, ", "), suffix)
	return sql, c.args, nil
}

// Upsert updates the row with the given unique key, or inserts create when
// it does not exist, in a single statement. Key columns left zero in create
// are taken from key; conflicting values are rejected.
func (r *Repository[T]) Upsert(ctx context.Context, key UniqueKey, create T, update Set) (*T, error) {
	unique, err := r.checkUniqueKey(key, "where")
	if err != nil {
		return nil, err
	}

	model := reflect.ValueOf(&create).Elem()
	for _, col := range unique.Columns {
		if err := assignKey(model, r.table.Column(col), key[col]); err != nil {
			return nil, err
		}
	}
	if err := validateModel(r.validate, r.table, model); err != nil {
		return nil, err
	}

	sql, args, err := r.insertSQL([]reflect.Value{model}, "")
	if err != nil {
		return nil, err
	}

	c := &compiler{args: args}
	sets, err := r.compileSet(c, update, r.table.Name)
	if err != nil {
		return nil, err
	}
	if len(update) == 0 {
		// Touch the key so RETURNING yields the existing row.
		first := unique.Columns[0]
		sets = []string{fmt.Sprintf("%s = %s.%s", first, r.table.Name, first)}
	}

	sql += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s RETURNING *",
		strings.Join(unique.Columns, ", "), strings.Join(sets, ", "))

	row, err := r.queryOne(ctx, sql, c.args)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert %s: %w", r.table.Name, err)
	}
	r.wrote()
	return row, nil
}

// assignKey sets a zero key field from the key value, or checks that a set
// field agrees with it.
func assignKey(model reflect.Value, col *schema.ColumnMetadata, value any) error {
	field := model.FieldByIndex(col.FieldIndex)
	target := field.Type()
	if target.Kind() == reflect.Pointer {
		target = target.Elem()
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if !v.IsValid() || !v.Type().ConvertibleTo(target) || (target.Kind() == reflect.String) != (v.Kind() == reflect.String) {
		if !v.IsValid() {
			return runtime.Invalid(col.Name, "key value must not be nil")
		}
		return runtime.Invalid(col.Name, "key value of type %s does not fit %s", v.Type(), target)
	}
	v = v.Convert(target)

	if field.IsZero() {
		if field.Kind() == reflect.Pointer {
			ptr := reflect.New(target)
			ptr.Elem().Set(v)
			field.Set(ptr)
		} else {
			field.Set(v)
		}
		return nil
	}

	current := field
	if current.Kind() == reflect.Pointer {
		current = current.Elem()
	}
	if current.Interface() != v.Interface() {
		return runtime.Invalid(col.Name, "create data %v does not match key value %v", current.Interface(), v.Interface())
	}
	return nil
}
