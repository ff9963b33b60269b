// Package schema extracts table metadata from `po` struct tags.
package schema

import (
	"reflect"
	"slices"
	"strings"
)

// TableMetadata describes a table mapped from a Go struct.
type TableMetadata struct {
	Name          string
	GoType        reflect.Type
	Columns       []ColumnMetadata
	PrimaryKey    *PrimaryKeyMetadata
	UniqueKeys    []UniqueKeyMetadata
	ForeignKeys   []ForeignKeyMetadata
	Relationships []RelationshipMetadata
}

// ColumnMetadata describes one mapped struct field.
type ColumnMetadata struct {
	Name          string
	GoField       string
	FieldIndex    []int
	GoType        reflect.Type
	SQLType       string
	Nullable      bool
	Default       *string
	Unique        bool
	AutoIncrement bool
	// AutoUpdate columns are set to NOW() on every update.
	AutoUpdate bool
	Position   int
}

// PrimaryKeyMetadata describes the primary key.
type PrimaryKeyMetadata struct {
	Name    string
	Columns []string
}

// UniqueKeyMetadata describes a single or compound unique key.
type UniqueKeyMetadata struct {
	Name    string
	Columns []string
}

// ForeignKeyMetadata describes a foreign key constraint.
type ForeignKeyMetadata struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          ReferenceAction
	OnUpdate          ReferenceAction
}

// ReferenceAction is the ON DELETE / ON UPDATE behavior of a foreign key.
type ReferenceAction string

const (
	// NoAction rejects the change at the end of the statement.
	NoAction ReferenceAction = "NO ACTION"
	// Restrict rejects the change immediately.
	Restrict ReferenceAction = "RESTRICT"
	// Cascade propagates the change to referencing rows.
	Cascade ReferenceAction = "CASCADE"
	// SetNull sets referencing columns to NULL.
	SetNull ReferenceAction = "SET NULL"
	// SetDefault sets referencing columns to their default.
	SetDefault ReferenceAction = "SET DEFAULT"
)

// Column returns the column with the given name, or nil.
func (t *TableMetadata) Column(name string) *ColumnMetadata {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// HasColumn reports whether the table maps a column with the given name.
func (t *TableMetadata) HasColumn(name string) bool {
	return t.Column(name) != nil
}

// ColumnNames returns column names in declaration order.
func (t *TableMetadata) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// PrimaryKeyColumns returns the primary key columns.
func (t *TableMetadata) PrimaryKeyColumns() []string {
	if t.PrimaryKey == nil {
		return nil
	}
	return t.PrimaryKey.Columns
}

// IsPrimaryKey reports whether column is part of the primary key.
func (t *TableMetadata) IsPrimaryKey(column string) bool {
	return slices.Contains(t.PrimaryKeyColumns(), column)
}

// AllUniqueKeys returns the primary key followed by every declared unique key.
func (t *TableMetadata) AllUniqueKeys() []UniqueKeyMetadata {
	keys := make([]UniqueKeyMetadata, 0, len(t.UniqueKeys)+1)
	if t.PrimaryKey != nil {
		keys = append(keys, UniqueKeyMetadata{Name: t.PrimaryKey.Name, Columns: t.PrimaryKey.Columns})
	}
	return append(keys, t.UniqueKeys...)
}

// FindUniqueKey returns the unique key made of exactly the given columns,
// in any order, or nil.
func (t *TableMetadata) FindUniqueKey(columns []string) *UniqueKeyMetadata {
	for _, key := range t.AllUniqueKeys() {
		if sameColumns(key.Columns, columns) {
			return &key
		}
	}
	return nil
}

// DescribeUniqueKeys renders the unique keys for error messages, e.g. "(id) | (email)".
func (t *TableMetadata) DescribeUniqueKeys() string {
	keys := t.AllUniqueKeys()
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = "(" + strings.Join(key.Columns, ", ") + ")"
	}
	return strings.Join(parts, " | ")
}

// IsString reports whether the column holds text.
func (c *ColumnMetadata) IsString() bool {
	return baseKind(c.GoType) == reflect.String
}

// IsNumeric reports whether the column holds a number.
func (c *ColumnMetadata) IsNumeric() bool {
	return c.IsInteger() || c.IsFloat()
}

// IsInteger reports whether the column holds an integer.
func (c *ColumnMetadata) IsInteger() bool {
	switch baseKind(c.GoType) {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// IsFloat reports whether the column holds a floating point number.
func (c *ColumnMetadata) IsFloat() bool {
	k := baseKind(c.GoType)
	return k == reflect.Float32 || k == reflect.Float64
}

func baseKind(t reflect.Type) reflect.Kind {
	if t == nil {
		return reflect.Invalid
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind()
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, col := range a {
		if !slices.Contains(b, col) {
			return false
		}
	}
	return true
}
