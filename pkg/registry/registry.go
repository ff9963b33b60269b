// Package registry maps model types to parsed table metadata and keeps the
// table namespace free of collisions.
package registry

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/marshallshelly/blogstore/pkg/schema"
)

// Registry is safe for concurrent use. Models are parsed once, on first
// registration.
type Registry struct {
	parser *schema.Parser

	mu     sync.RWMutex
	byType map[reflect.Type]*schema.TableMetadata
	byName map[string]*schema.TableMetadata
}

// NewRegistry returns an empty registry with its own parser.
func NewRegistry() *Registry {
	return &Registry{
		parser: schema.NewParser(),
		byType: make(map[reflect.Type]*schema.TableMetadata),
		byName: make(map[string]*schema.TableMetadata),
	}
}

func structType(model reflect.Type) (reflect.Type, error) {
	if model == nil {
		return nil, errors.New("model must be a struct, got nil")
	}
	for model.Kind() == reflect.Pointer {
		model = model.Elem()
	}
	if model.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct, got %s", model.Kind())
	}
	return model, nil
}

// Register parses model and records it. Registering the same type twice is
// a no-op; mapping a second type onto a taken table name is an error.
func (r *Registry) Register(model any) error {
	_, err := r.GetOrRegister(model)
	return err
}

// GetOrRegister returns the metadata of model, registering it if needed.
func (r *Registry) GetOrRegister(model any) (*schema.TableMetadata, error) {
	return r.ensure(reflect.TypeOf(model))
}

func (r *Registry) ensure(model reflect.Type) (*schema.TableMetadata, error) {
	t, err := structType(model)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	table, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return table, nil
	}

	table, err = r.parser.Parse(t)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", t.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, taken := r.byName[table.Name]; taken && prev.GoType != t {
		return nil, fmt.Errorf("table %s is already mapped by %s", table.Name, prev.GoType)
	}
	r.byType[t] = table
	r.byName[table.Name] = table
	return table, nil
}

// Get returns the metadata of a registered type.
func (r *Registry) Get(model reflect.Type) (*schema.TableMetadata, error) {
	t, err := structType(model)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if table, ok := r.byType[t]; ok {
		return table, nil
	}
	return nil, fmt.Errorf("model type %s not registered", t.Name())
}

// GetByName returns the metadata of a registered table.
func (r *Registry) GetByName(tableName string) (*schema.TableMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if table, ok := r.byName[tableName]; ok {
		return table, nil
	}
	return nil, fmt.Errorf("table %s not registered", tableName)
}

// Resolve returns the target table of a relation, registering it on first
// use, and checks that the join columns exist on both sides.
func (r *Registry) Resolve(source *schema.TableMetadata, rel *schema.RelationshipMetadata) (*schema.TableMetadata, error) {
	target, err := r.ensure(rel.TargetType)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve relation %s.%s: %w", source.Name, rel.SourceField, err)
	}
	if err := rel.Validate(source, target); err != nil {
		return nil, err
	}
	return target, nil
}

// Reference is a foreign key pointing at a table.
type Reference struct {
	Table      string
	ForeignKey schema.ForeignKeyMetadata
}

// Referencing lists the registered foreign keys that point at tableName,
// sorted by referencing table then key name.
func (r *Registry) Referencing(tableName string) []Reference {
	var refs []Reference
	for _, table := range r.All() {
		for _, fk := range table.ForeignKeys {
			if fk.ReferencedTable == tableName {
				refs = append(refs, Reference{Table: table.Name, ForeignKey: fk})
			}
		}
	}
	slices.SortStableFunc(refs, func(a, b Reference) int {
		return cmp.Or(cmp.Compare(a.Table, b.Table), cmp.Compare(a.ForeignKey.Name, b.ForeignKey.Name))
	})
	return refs
}

// All returns every registered table sorted by name.
func (r *Registry) All() []*schema.TableMetadata {
	r.mu.RLock()
	tables := make([]*schema.TableMetadata, 0, len(r.byName))
	for _, table := range r.byName {
		tables = append(tables, table)
	}
	r.mu.RUnlock()

	slices.SortFunc(tables, func(a, b *schema.TableMetadata) int { return cmp.Compare(a.Name, b.Name) })
	return tables
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// GetOrRegister resolves model through the process-wide registry.
func GetOrRegister(model any) (*schema.TableMetadata, error) {
	return defaultRegistry.GetOrRegister(model)
}
