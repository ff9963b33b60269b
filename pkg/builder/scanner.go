package builder

import (
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/marshallshelly/blogstore/pkg/schema"
)

// scanIntoStruct scans the current row into dest, an addressable struct.
// Result columns that do not map to a field are discarded.
func scanIntoStruct(rows pgx.Rows, dest reflect.Value, table *schema.TableMetadata) error {
	if dest.Kind() != reflect.Struct || !dest.CanAddr() {
		return fmt.Errorf("dest must be an addressable struct, got %s", dest.Kind())
	}

	fieldDescriptions := rows.FieldDescriptions()
	scanTargets := make([]any, len(fieldDescriptions))

	var dummy any
	for i, fd := range fieldDescriptions {
		col := table.Column(fd.Name)
		if col == nil {
			scanTargets[i] = &dummy
			continue
		}
		scanTargets[i] = dest.FieldByIndex(col.FieldIndex).Addr().Interface()
	}

	if err := rows.Scan(scanTargets...); err != nil {
		return fmt.Errorf("failed to scan row: %w", err)
	}
	return nil
}

// collectRows scans every row into a new slice of elemType and closes rows.
func collectRows(rows pgx.Rows, table *schema.TableMetadata, elemType reflect.Type) (reflect.Value, error) {
	defer rows.Close()

	results := reflect.MakeSlice(reflect.SliceOf(elemType), 0, 0)
	for rows.Next() {
		results = reflect.Append(results, reflect.Zero(elemType))
		if err := scanIntoStruct(rows, results.Index(results.Len()-1), table); err != nil {
			return reflect.Value{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return reflect.Value{}, runtime.Classify(err)
	}
	return results, nil
}

// structToValues converts a struct to column names and values for INSERT.
// It omits a zero auto-increment primary key and zero fields that have a
// database default, so the database fills them in.
func structToValues(model reflect.Value, table *schema.TableMetadata) ([]string, []any, error) {
	for model.Kind() == reflect.Pointer {
		if model.IsNil() {
			return nil, nil, fmt.Errorf("model must not be nil")
		}
		model = model.Elem()
	}
	if model.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("model must be a struct")
	}

	var columns []string
	var values []any

	for _, col := range table.Columns {
		field := model.FieldByIndex(col.FieldIndex)

		if col.AutoIncrement && field.IsZero() {
			continue
		}
		if col.Default != nil && field.IsZero() {
			continue
		}

		columns = append(columns, col.Name)
		values = append(values, field.Interface())
	}

	return columns, values, nil
}

// fieldValue returns the value of a column field, dereferencing pointers.
// ok is false for nil pointers.
func fieldValue(item reflect.Value, col *schema.ColumnMetadata) (any, bool) {
	field := item.FieldByIndex(col.FieldIndex)
	for field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return nil, false
		}
		field = field.Elem()
	}
	return field.Interface(), true
}

// normalizeKey maps integer values of any width to int64 so keys read from
// different struct fields compare equal.
func normalizeKey(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	}
	return v
}
