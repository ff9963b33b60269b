package builder

import "github.com/marshallshelly/blogstore/pkg/registry"

// Col returns the column name mapped to a Go field of T, so filters can be
// written against struct fields:
//
//	builder.Eq(builder.Col[blog.Content]("ViewCount"), 0)
//
// It panics when T is not a mapped model or has no such field.
func Col[T any](goFieldName string) string {
	var zero T
	table, err := registry.GetOrRegister(zero)
	if err != nil {
		panic(err)
	}
	for _, col := range table.Columns {
		if col.GoField == goFieldName {
			return col.Name
		}
	}
	panic("builder: " + table.Name + " has no field " + goFieldName)
}
