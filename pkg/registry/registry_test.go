package registry

import (
	"reflect"
	"sync"
	"testing"

	"github.com/marshallshelly/blogstore/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Author struct {
	ID    int     `po:"id,primaryKey,serial"`
	Email string  `po:"email,varchar(255),notNull,unique"`
	Posts []Post  `po:"-,hasMany,foreignKey(author_id),references(id)"`
	Notes []Reply `po:"-,hasMany,foreignKey(missing_id),references(id)"`
}

func (Author) TableName() string { return "authors" }

type Post struct {
	ID       int     `po:"id,primaryKey,serial"`
	AuthorID int     `po:"author_id,integer,notNull,fk(authors.id),onDelete(restrict)"`
	Author   *Author `po:"-,belongsTo,foreignKey(author_id),references(id)"`
}

func (Post) TableName() string { return "posts" }

type Reply struct {
	ID       int  `po:"id,primaryKey,serial"`
	PostID   int  `po:"post_id,integer,notNull,fk(posts.id),onDelete(cascade)"`
	AuthorID int  `po:"author_id,integer,notNull,fk(authors.id),onDelete(cascade)"`
	ParentID *int `po:"parent_id,integer,fk(replies.id),onDelete(cascade)"`
}

func (Reply) TableName() string { return "replies" }

type Impostor struct {
	ID int `po:"id,primaryKey"`
}

func (Impostor) TableName() string { return "posts" }

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	t.Run("register new model", func(t *testing.T) {
		require.NoError(t, registry.Register(Author{}))
		_, err := registry.Get(reflect.TypeOf(Author{}))
		assert.NoError(t, err)
		_, err = registry.GetByName("authors")
		assert.NoError(t, err)
	})

	t.Run("register duplicate and pointer model", func(t *testing.T) {
		require.NoError(t, registry.Register(Author{}))
		require.NoError(t, registry.Register(&Author{}))
		assert.Len(t, registry.All(), 1)
	})

	t.Run("register invalid type", func(t *testing.T) {
		assert.Error(t, registry.Register("not a struct"))
		assert.Error(t, registry.Register(nil))
	})

	t.Run("table name collision", func(t *testing.T) {
		require.NoError(t, registry.Register(Post{}))
		assert.Error(t, registry.Register(Impostor{}))
	})
}

func TestRegistry_Get(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(Post{}))

	table, err := registry.Get(reflect.TypeOf(&Post{}))
	require.NoError(t, err)
	assert.Equal(t, "posts", table.Name)

	byName, err := registry.GetByName("posts")
	require.NoError(t, err)
	assert.Same(t, table, byName)

	_, err = registry.Get(reflect.TypeOf(Reply{}))
	assert.Error(t, err)

	_, err = registry.GetByName("replies")
	assert.Error(t, err)
}

func TestRegistry_GetOrRegister(t *testing.T) {
	registry := NewRegistry()

	first, err := registry.GetOrRegister(Reply{})
	require.NoError(t, err)
	second, err := registry.GetOrRegister(&Reply{})
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry()

	authors, err := registry.GetOrRegister(Author{})
	require.NoError(t, err)

	posts, err := registry.Resolve(authors, authors.GetRelationship("Posts"))
	require.NoError(t, err)
	assert.Equal(t, "posts", posts.Name)
	_, err = registry.GetByName("posts")
	assert.NoError(t, err, "targets are registered on first use")

	back, err := registry.Resolve(posts, posts.GetRelationship("Author"))
	require.NoError(t, err)
	assert.Same(t, authors, back)

	_, err = registry.Resolve(authors, authors.GetRelationship("Notes"))
	assert.Error(t, err, "join column missing on target")
}

func TestRegistry_Referencing(t *testing.T) {
	registry := NewRegistry()
	for _, model := range []any{Author{}, Post{}, Reply{}} {
		require.NoError(t, registry.Register(model))
	}

	refs := registry.Referencing("authors")
	require.Len(t, refs, 2)
	assert.Equal(t, "posts", refs[0].Table)
	assert.Equal(t, schema.Restrict, refs[0].ForeignKey.OnDelete)
	assert.Equal(t, "replies", refs[1].Table)
	assert.Equal(t, schema.Cascade, refs[1].ForeignKey.OnDelete)

	self := registry.Referencing("replies")
	require.Len(t, self, 1)
	assert.Equal(t, []string{"parent_id"}, self[0].ForeignKey.Columns)

	assert.Empty(t, registry.Referencing("nothing"))
}

func TestRegistry_All(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(Reply{}))
	require.NoError(t, registry.Register(Author{}))

	tables := registry.All()
	require.Len(t, tables, 2)
	assert.Equal(t, "authors", tables[0].Name)
	assert.Equal(t, "replies", tables[1].Name)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.GetOrRegister(Post{})
			assert.NoError(t, err)
			_ = registry.All()
		}()
	}
	wg.Wait()

	assert.Len(t, registry.All(), 1)
}

func TestDefault(t *testing.T) {
	table, err := GetOrRegister(&Post{})
	require.NoError(t, err)
	_, err = Default().Get(reflect.TypeOf(Post{}))
	assert.NoError(t, err)
	assert.Same(t, table, Default().All()[0])
}
