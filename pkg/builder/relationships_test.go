package builder

import (
	"context"
	"testing"

	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRelations_BelongsTo(t *testing.T) {
	ctx := context.Background()

	t.Run("one batch query for distinct keys", func(t *testing.T) {
		q := &recorder{}
		repo := newRepo[Post](t, q)

		posts := []Post{{ID: 1, WriterID: 7}, {ID: 2, WriterID: 7}, {ID: 3, WriterID: 8}}
		require.NoError(t, repo.LoadRelations(ctx, posts, With("Writer")))

		require.Len(t, q.calls, 1)
		assert.Equal(t, "SELECT id, email, name, bio FROM writers WHERE id = ANY($1) ORDER BY id ASC", q.calls[0].sql)
		assert.Equal(t, []any{[]int{7, 8}}, q.calls[0].args)
	})

	t.Run("nil foreign keys are skipped", func(t *testing.T) {
		q := &recorder{}
		repo := newRepo[Note](t, q)

		notes := []Note{{ID: 1, PostID: 1}}
		require.NoError(t, repo.LoadRelations(ctx, notes, With("Parent")))
		assert.Empty(t, q.calls)
		assert.Nil(t, notes[0].Parent)
	})

	t.Run("projection keeps the join key", func(t *testing.T) {
		q := &recorder{}
		repo := newRepo[Post](t, q)

		posts := []Post{{ID: 1, WriterID: 7}}
		require.NoError(t, repo.LoadRelations(ctx, posts, Include{Relation: "Writer", Args: &FindManyArgs{Select: []string{"name"}}}))
		assert.Equal(t, "SELECT id, name FROM writers WHERE id = ANY($1) ORDER BY id ASC", q.last(t).sql)
	})

	t.Run("paging arguments are rejected", func(t *testing.T) {
		q := &recorder{}
		repo := newRepo[Post](t, q)

		posts := []Post{{ID: 1, WriterID: 7}}
		err := repo.LoadRelations(ctx, posts, Include{Relation: "Writer", Args: &FindManyArgs{Take: Ptr(1)}})
		assert.ErrorIs(t, err, runtime.ErrValidation)
		assert.Empty(t, q.calls)
	})
}

func TestLoadRelations_HasMany(t *testing.T) {
	ctx := context.Background()

	t.Run("owners get empty collections", func(t *testing.T) {
		q := &recorder{}
		repo := newRepo[Post](t, q)

		posts := []Post{{ID: 1}, {ID: 2}}
		require.NoError(t, repo.LoadRelations(ctx, posts, With("Notes")))

		assert.Equal(t, "SELECT id, post_id, parent_id, body, approved FROM notes WHERE post_id = ANY($1) ORDER BY id ASC", q.last(t).sql)
		for _, post := range posts {
			assert.NotNil(t, post.Notes)
			assert.Empty(t, post.Notes)
		}
	})

	t.Run("take applies per owner", func(t *testing.T) {
		q := &recorder{}
		repo := newRepo[Post](t, q)

		posts := []Post{{ID: 1}, {ID: 2}}
		err := repo.LoadRelations(ctx, posts, Include{
			Relation: "Notes",
			Args: &FindManyArgs{
				Where:   []Condition{Eq("approved", true)},
				OrderBy: []OrderBy{Desc("id")},
				Take:    Ptr(3),
				Skip:    Ptr(1),
			},
		})
		require.NoError(t, err)

		got := q.last(t)
		assert.Equal(t, "SELECT id, post_id, parent_id, body, approved FROM "+
			"(SELECT *, ROW_NUMBER() OVER (PARTITION BY post_id ORDER BY id DESC) AS blogstore_rn FROM notes "+
			"WHERE (post_id = ANY($1) AND approved = $2)) AS notes "+
			"WHERE blogstore_rn > 1 AND blogstore_rn <= 4 ORDER BY id DESC", got.sql)
		assert.Equal(t, []any{[]int{1, 2}, true}, got.args)
	})

	t.Run("distinct is rejected", func(t *testing.T) {
		repo := newRepo[Post](t, &recorder{})

		err := repo.LoadRelations(ctx, []Post{{ID: 1}}, Include{
			Relation: "Notes",
			Args:     &FindManyArgs{Distinct: []string{"body"}, Take: Ptr(1)},
		})
		assert.ErrorIs(t, err, runtime.ErrValidation)
	})

	t.Run("unknown relation", func(t *testing.T) {
		repo := newRepo[Post](t, &recorder{})

		err := repo.LoadRelations(ctx, []Post{{ID: 1}}, With("Missing"))
		var verr *runtime.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Missing", verr.Field)
	})
}

func TestLoad(t *testing.T) {
	q := &recorder{}
	repo := newRepo[Post](t, q)

	post := &Post{ID: 4}
	require.NoError(t, repo.Load(context.Background(), post, With("Labels")))
	assert.NotNil(t, post.Labels)
	assert.Equal(t, "SELECT post_id, label FROM post_labels WHERE post_id = ANY($1) ORDER BY post_id ASC, label ASC", q.last(t).sql)
}

func TestIncludeDepth(t *testing.T) {
	nested := func(levels int) []Include {
		inc := With("Replies")
		for i := 1; i < levels; i++ {
			inc = With("Replies", inc)
		}
		return []Include{inc}
	}

	assert.Equal(t, 0, includeDepth(nil))
	assert.Equal(t, 3, includeDepth(nested(3)))
	assert.Equal(t, 2, includeDepth([]Include{{Relation: "Replies", Args: &FindManyArgs{Include: []Include{With("Post")}}}}))

	assert.NoError(t, checkIncludeDepth(nested(MaxIncludeDepth)))
	assert.ErrorIs(t, checkIncludeDepth(nested(MaxIncludeDepth+1)), runtime.ErrValidation)
}
