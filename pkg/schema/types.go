package schema

import (
	"reflect"
	"time"
)

var kindTypes = map[reflect.Kind]string{
	reflect.Bool:    "boolean",
	reflect.Int16:   "smallint",
	reflect.Int32:   "integer",
	reflect.Int:     "integer",
	reflect.Int64:   "bigint",
	reflect.Float32: "real",
	reflect.Float64: "double precision",
	reflect.String:  "text",
}

// inferSQLType returns the column type for a field whose tag names none.
// Pointers map to their element type; an empty result means the tag must
// spell the type out.
func inferSQLType(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == reflect.TypeFor[time.Time]():
		return "timestamptz"
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return "bytea"
	case t.Kind() == reflect.Slice:
		if elem := inferSQLType(t.Elem()); elem != "" {
			return elem + "[]"
		}
		return ""
	}
	return kindTypes[t.Kind()]
}

// nilable reports whether a field of type t can carry SQL NULL.
func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map:
		return true
	}
	return false
}
