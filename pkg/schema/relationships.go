package schema

import (
	"fmt"
	"reflect"
)

// RelationType is the kind of a declared relation.
type RelationType string

const (
	// BelongsTo: the foreign key lives on the source table (content.author_id -> users.id).
	BelongsTo RelationType = "belongsTo"
	// HasMany: the foreign key lives on the target table (comments.content_id -> contents.id).
	HasMany RelationType = "hasMany"
)

// RelationshipMetadata describes a relation field.
type RelationshipMetadata struct {
	Type        RelationType
	SourceTable string
	SourceField string
	TargetType  reflect.Type
	TargetTable string
	// ForeignKey is the referencing column: on the source for BelongsTo,
	// on the target for HasMany.
	ForeignKey string
	// References is the referenced column: on the target for BelongsTo,
	// on the source for HasMany.
	References string
}

// parseRelationship parses a relationship from a struct field.
// Format: `po:"-,belongsTo,foreignKey(author_id),references(id)"`
func (p *Parser) parseRelationship(field reflect.StructField, spec *tagSpec, sourceTable *TableMetadata) (*RelationshipMetadata, error) {
	rel := &RelationshipMetadata{
		SourceTable: sourceTable.Name,
		SourceField: field.Name,
		ForeignKey:  spec.get("foreignKey"),
		References:  spec.get("references"),
	}

	fieldType := field.Type
	switch {
	case spec.has(string(BelongsTo)):
		rel.Type = BelongsTo
		if fieldType.Kind() != reflect.Pointer {
			return nil, fmt.Errorf("belongsTo field must be a pointer, got %s", fieldType)
		}
		fieldType = fieldType.Elem()
	case spec.has(string(HasMany)):
		rel.Type = HasMany
		if fieldType.Kind() != reflect.Slice {
			return nil, fmt.Errorf("hasMany field must be a slice, got %s", fieldType)
		}
		fieldType = fieldType.Elem()
	}

	for fieldType.Kind() == reflect.Pointer {
		fieldType = fieldType.Elem()
	}
	if fieldType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("relation target must be a struct, got %s", fieldType)
	}

	rel.TargetType = fieldType
	rel.TargetTable = TableNameOf(fieldType)

	if rel.ForeignKey == "" {
		switch rel.Type {
		case BelongsTo:
			rel.ForeignKey = toSnakeCase(field.Name) + "_id"
		case HasMany:
			rel.ForeignKey = toSnakeCase(sourceTable.GoType.Name()) + "_id"
		}
	}
	if rel.References == "" {
		rel.References = "id"
	}

	// Join columns are checked by Validate once both tables are parsed.
	return rel, nil
}

// GetRelationship returns a relationship by source field name.
func (t *TableMetadata) GetRelationship(fieldName string) *RelationshipMetadata {
	for i := range t.Relationships {
		if t.Relationships[i].SourceField == fieldName {
			return &t.Relationships[i]
		}
	}
	return nil
}

// HasRelationships checks if the table has any relationships.
func (t *TableMetadata) HasRelationships() bool {
	return len(t.Relationships) > 0
}

// LocalKey returns the source column a relation joins on.
func (r *RelationshipMetadata) LocalKey() string {
	if r.Type == BelongsTo {
		return r.ForeignKey
	}
	return r.References
}

// RemoteKey returns the target column a relation joins on.
func (r *RelationshipMetadata) RemoteKey() string {
	if r.Type == BelongsTo {
		return r.References
	}
	return r.ForeignKey
}

// Validate checks that the relation's join columns exist on both tables.
func (r *RelationshipMetadata) Validate(source, target *TableMetadata) error {
	if !source.HasColumn(r.LocalKey()) {
		return fmt.Errorf("relation %s.%s: column %s not found on %s", source.Name, r.SourceField, r.LocalKey(), source.Name)
	}
	if !target.HasColumn(r.RemoteKey()) {
		return fmt.Errorf("relation %s.%s: column %s not found on %s", source.Name, r.SourceField, r.RemoteKey(), target.Name)
	}
	return nil
}
