package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// StructTagKey is the struct tag read by the parser.
const StructTagKey = "po"

// TableNamer is implemented by models that choose their own table name.
type TableNamer interface {
	TableName() string
}

// Parser turns tagged model structs into TableMetadata and memoizes the
// result per type.
type Parser struct {
	mu     sync.Mutex
	tables map[reflect.Type]*TableMetadata
}

// NewParser returns an empty Parser.
func NewParser() *Parser {
	return &Parser{tables: make(map[reflect.Type]*TableMetadata)}
}

var tableAliases sync.Map // struct name -> table name

// RegisterTableName maps a struct name to a table name for models that do
// not implement TableNamer.
func RegisterTableName(structName, tableName string) {
	tableAliases.Store(structName, tableName)
}

// TableNameOf resolves the table of a model type: its TableName method
// first, then RegisterTableName, then the snake_cased struct name.
func TableNameOf(modelType reflect.Type) string {
	modelType = indirect(modelType)

	if namer, ok := reflect.New(modelType).Interface().(TableNamer); ok {
		if name := namer.TableName(); name != "" {
			return name
		}
	}
	if name, ok := tableAliases.Load(modelType.Name()); ok {
		return name.(string)
	}
	return toSnakeCase(modelType.Name())
}

// Parse returns the metadata of a model struct (or pointer to one).
func (p *Parser) Parse(modelType reflect.Type) (*TableMetadata, error) {
	modelType = indirect(modelType)
	if modelType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct, got %s", modelType.Kind())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if table, ok := p.tables[modelType]; ok {
		return table, nil
	}

	table, err := p.build(modelType)
	if err != nil {
		return nil, err
	}
	p.tables[modelType] = table
	return table, nil
}

func (p *Parser) build(modelType reflect.Type) (*TableMetadata, error) {
	table := &TableMetadata{
		Name:        TableNameOf(modelType),
		GoType:      modelType,
		Columns:     make([]ColumnMetadata, 0, modelType.NumField()),
		ForeignKeys: []ForeignKeyMetadata{},
	}
	groups := newUniqueGroups()

	for _, field := range reflect.VisibleFields(modelType) {
		if !field.IsExported() || len(field.Index) > 1 {
			continue
		}
		raw := field.Tag.Get(StructTagKey)
		if raw == "" || raw == "-" {
			continue
		}

		spec, err := parseTag(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}

		if spec.isRelation() {
			rel, err := p.parseRelationship(field, spec, table)
			if err != nil {
				return nil, fmt.Errorf("relation %s: %w", field.Name, err)
			}
			table.Relationships = append(table.Relationships, *rel)
			continue
		}

		col := newColumn(field, spec, len(table.Columns))

		if spec.has("primaryKey") {
			if table.PrimaryKey == nil {
				table.PrimaryKey = &PrimaryKeyMetadata{Name: table.Name + "_pkey"}
			}
			table.PrimaryKey.Columns = append(table.PrimaryKey.Columns, col.Name)
		}

		// unique marks a single-column key; unique(name) joins every field
		// naming the same group into one compound key.
		if spec.has("unique") {
			if group := spec.get("unique"); group != "" {
				groups.add(group, col.Name)
			} else {
				col.Unique = true
				table.UniqueKeys = append(table.UniqueKeys, UniqueKeyMetadata{
					Name:    table.Name + "_" + col.Name + "_key",
					Columns: []string{col.Name},
				})
			}
		}

		if ref := spec.get("fk"); ref != "" {
			fk, err := newForeignKey(table.Name, col.Name, ref, spec)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field.Name, err)
			}
			table.ForeignKeys = append(table.ForeignKeys, *fk)
		}

		table.Columns = append(table.Columns, col)
	}

	table.UniqueKeys = append(table.UniqueKeys, groups.keys(table.Name)...)

	if table.PrimaryKey == nil {
		return nil, fmt.Errorf("model %s has no primary key", modelType.Name())
	}
	return table, nil
}

func newColumn(field reflect.StructField, spec *tagSpec, position int) ColumnMetadata {
	col := ColumnMetadata{
		Name:          spec.column,
		GoField:       field.Name,
		FieldIndex:    field.Index,
		GoType:        field.Type,
		Position:      position,
		SQLType:       spec.sqlType(),
		AutoIncrement: spec.has("serial") || spec.has("bigserial") || spec.has("autoIncrement"),
		AutoUpdate:    spec.has("updatedAt"),
	}
	if col.SQLType == "" {
		col.SQLType = inferSQLType(field.Type)
	}

	declaredNotNull := spec.has("notNull") || spec.has("primaryKey")
	col.Nullable = nilable(field.Type) || !declaredNotNull

	if def, ok := spec.opts["default"]; ok && def != "" {
		col.Default = &def
	}
	return col
}

// newForeignKey accepts "table.column" or "table(column)".
func newForeignKey(tableName, columnName, ref string, spec *tagSpec) (*ForeignKeyMetadata, error) {
	refTable, refColumn, ok := strings.Cut(ref, ".")
	if !ok {
		if open := strings.IndexByte(ref, '('); open > 0 && strings.HasSuffix(ref, ")") {
			refTable, refColumn = ref[:open], ref[open+1:len(ref)-1]
		}
	}
	if refTable == "" || refColumn == "" {
		return nil, fmt.Errorf("reference %q must be table.column", ref)
	}

	return &ForeignKeyMetadata{
		Name:              tableName + "_" + columnName + "_fkey",
		Columns:           []string{columnName},
		ReferencedTable:   refTable,
		ReferencedColumns: []string{refColumn},
		OnDelete:          referenceAction(spec.get("onDelete")),
		OnUpdate:          referenceAction(spec.get("onUpdate")),
	}, nil
}

func referenceAction(action string) ReferenceAction {
	normalized := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(action)), " ", "")
	switch normalized {
	case "CASCADE":
		return Cascade
	case "RESTRICT":
		return Restrict
	case "SETNULL":
		return SetNull
	case "SETDEFAULT":
		return SetDefault
	}
	return NoAction
}

// uniqueGroups collects compound unique keys in first-seen order.
type uniqueGroups struct {
	order   []string
	columns map[string][]string
}

func newUniqueGroups() *uniqueGroups {
	return &uniqueGroups{columns: make(map[string][]string)}
}

func (g *uniqueGroups) add(group, column string) {
	if _, seen := g.columns[group]; !seen {
		g.order = append(g.order, group)
	}
	g.columns[group] = append(g.columns[group], column)
}

func (g *uniqueGroups) keys(tableName string) []UniqueKeyMetadata {
	keys := make([]UniqueKeyMetadata, 0, len(g.order))
	for _, group := range g.order {
		cols := g.columns[group]
		keys = append(keys, UniqueKeyMetadata{
			Name:    tableName + "_" + strings.Join(cols, "_") + "_key",
			Columns: cols,
		})
	}
	return keys
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
