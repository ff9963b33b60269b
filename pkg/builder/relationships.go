package builder

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/marshallshelly/blogstore/pkg/schema"
)

// LoadRelations loads the requested relations into items in place, one
// query per relation and nesting level.
func (r *Repository[T]) LoadRelations(ctx context.Context, items []T, includes ...Include) error {
	if err := checkIncludeDepth(includes); err != nil {
		return err
	}
	if len(items) == 0 || len(includes) == 0 {
		return nil
	}
	return r.loadInto(ctx, r.table, reflect.ValueOf(items), includes, 1)
}

// Load loads the requested relations into a single item.
func (r *Repository[T]) Load(ctx context.Context, item *T, includes ...Include) error {
	if item == nil {
		return nil
	}
	items := []T{*item}
	if err := r.LoadRelations(ctx, items, includes...); err != nil {
		return err
	}
	*item = items[0]
	return nil
}

// loadInto loads includes for items, a slice of table rows.
func (r *Repository[T]) loadInto(ctx context.Context, table *schema.TableMetadata, items reflect.Value, includes []Include, depth int) error {
	if depth > MaxIncludeDepth {
		return runtime.Invalid("include", "relations nest deeper than %d levels", MaxIncludeDepth)
	}

	for _, inc := range includes {
		rel := table.GetRelationship(inc.Relation)
		if rel == nil {
			return runtime.Invalid(inc.Relation, "unknown relation on %s", table.Name)
		}

		target, err := r.registry.Resolve(table, rel)
		if err != nil {
			return err
		}

		args := FindManyArgs{}
		if inc.Args != nil {
			args = *inc.Args
		}
		args.Include = append(append([]Include(nil), inc.Include...), args.Include...)

		switch rel.Type {
		case schema.BelongsTo:
			err = r.loadBelongsTo(ctx, table, target, rel, items, args, depth)
		case schema.HasMany:
			err = r.loadHasMany(ctx, table, target, rel, items, args, depth)
		default:
			err = fmt.Errorf("unsupported relationship type: %s", rel.Type)
		}
		if err != nil {
			return fmt.Errorf("failed to load relationship %s: %w", inc.Relation, err)
		}
	}
	return nil
}

// loadBelongsTo loads to-one relations with one `= ANY($1)` query.
// Example: contents.author_id -> users.id
func (r *Repository[T]) loadBelongsTo(ctx context.Context, source, target *schema.TableMetadata, rel *schema.RelationshipMetadata, items reflect.Value, args FindManyArgs, depth int) error {
	if len(args.Where) > 0 || len(args.OrderBy) > 0 || args.Cursor != nil || args.Take != nil || args.Skip != nil || len(args.Distinct) > 0 {
		return runtime.Invalid(rel.SourceField, "to-one relations accept only select, omit and include")
	}

	keys, owners := collectKeys(items, source.Column(rel.LocalKey()))
	if keys.Len() == 0 {
		return nil
	}

	remote := rel.RemoteKey()
	projection, err := project(target, &args, []string{remote})
	if err != nil {
		return err
	}

	c := &compiler{resolve: r.registry.Resolve}
	sql, err := buildFind(c, &findQuery{
		table:      target,
		args:       &FindManyArgs{},
		filter:     []Condition{AnyOf(remote, keys.Interface())},
		projection: projection,
	})
	if err != nil {
		return err
	}

	related, err := r.fetch(ctx, c, sql, target, args.Include, depth)
	if err != nil {
		return err
	}

	remoteCol := target.Column(remote)
	for i := 0; i < related.Len(); i++ {
		row := related.Index(i)
		key, ok := fieldValue(row, remoteCol)
		if !ok {
			continue
		}
		for _, idx := range owners[normalizeKey(key)] {
			field := items.Index(idx).FieldByName(rel.SourceField)
			field.Set(row.Addr())
		}
	}
	return nil
}

// loadHasMany loads to-many relations with one query. Args apply per owner:
// ordering, cursor, take and skip are evaluated within each owner's rows.
// Example: contents.id <- comments.content_id
func (r *Repository[T]) loadHasMany(ctx context.Context, source, target *schema.TableMetadata, rel *schema.RelationshipMetadata, items reflect.Value, args FindManyArgs, depth int) error {
	keys, owners := collectKeys(items, source.Column(rel.LocalKey()))

	// Owners always get a non-nil collection.
	for i := 0; i < items.Len(); i++ {
		field := items.Index(i).FieldByName(rel.SourceField)
		field.Set(reflect.MakeSlice(field.Type(), 0, 0))
	}
	if keys.Len() == 0 {
		return nil
	}

	remote := rel.RemoteKey()
	projection, err := project(target, &args, []string{remote})
	if err != nil {
		return err
	}

	q := &findQuery{
		table:      target,
		args:       &args,
		filter:     []Condition{AnyOf(remote, keys.Interface())},
		projection: projection,
	}
	if args.Take != nil || args.Skip != nil || args.Cursor != nil {
		q.partition = []string{remote}
	}

	c := &compiler{resolve: r.registry.Resolve}
	sql, err := buildFind(c, q)
	if err != nil {
		return err
	}

	related, err := r.fetch(ctx, c, sql, target, args.Include, depth)
	if err != nil {
		return err
	}

	remoteCol := target.Column(remote)
	for i := 0; i < related.Len(); i++ {
		row := related.Index(i)
		key, ok := fieldValue(row, remoteCol)
		if !ok {
			continue
		}
		for _, idx := range owners[normalizeKey(key)] {
			field := items.Index(idx).FieldByName(rel.SourceField)
			elem := row
			if field.Type().Elem().Kind() == reflect.Pointer {
				elem = row.Addr()
			}
			field.Set(reflect.Append(field, elem))
		}
	}
	return nil
}

// fetch runs a relation query and loads nested includes on the result.
func (r *Repository[T]) fetch(ctx context.Context, c *compiler, sql string, target *schema.TableMetadata, nested []Include, depth int) (reflect.Value, error) {
	rows, err := r.q.Query(ctx, sql, c.args...)
	if err != nil {
		return reflect.Value{}, err
	}
	related, err := collectRows(rows, target, target.GoType)
	if err != nil {
		return reflect.Value{}, err
	}
	if len(nested) > 0 && related.Len() > 0 {
		if err := r.loadInto(ctx, target, related, nested, depth+1); err != nil {
			return reflect.Value{}, err
		}
	}
	return related, nil
}

// checkIncludeDepth rejects include trees nested deeper than MaxIncludeDepth.
func checkIncludeDepth(includes []Include) error {
	if includeDepth(includes) > MaxIncludeDepth {
		return runtime.Invalid("include", "relations nest deeper than %d levels", MaxIncludeDepth)
	}
	return nil
}

func includeDepth(includes []Include) int {
	depth := 0
	for _, inc := range includes {
		nested := inc.Include
		if inc.Args != nil {
			nested = append(slices.Clone(nested), inc.Args.Include...)
		}
		depth = max(depth, 1+includeDepth(nested))
	}
	return depth
}

// collectKeys gathers the distinct non-nil values of col across items as a
// typed slice, and maps each key to the indexes of the items holding it.
func collectKeys(items reflect.Value, col *schema.ColumnMetadata) (reflect.Value, map[any][]int) {
	elemType := col.GoType
	for elemType.Kind() == reflect.Pointer {
		elemType = elemType.Elem()
	}

	keys := reflect.MakeSlice(reflect.SliceOf(elemType), 0, items.Len())
	owners := make(map[any][]int)
	for i := 0; i < items.Len(); i++ {
		value, ok := fieldValue(items.Index(i), col)
		if !ok {
			continue
		}
		norm := normalizeKey(value)
		if _, exists := owners[norm]; !exists {
			keys = reflect.Append(keys, reflect.ValueOf(value))
		}
		owners[norm] = append(owners[norm], i)
	}
	return keys, owners
}
