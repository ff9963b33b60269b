package blog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/marshallshelly/blogstore/pkg/builder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// racingQuerier runs onQuery while a read is in flight and returns no rows.
type racingQuerier struct {
	execQuerier
	onQuery func()
}

func (q *racingQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	q.onQuery()
	return noRows{}, nil
}

type noRows struct{}

func (noRows) Close()                                       {}
func (noRows) Err() error                                   { return nil }
func (noRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (noRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (noRows) Next() bool                                   { return false }
func (noRows) Scan(...any) error                            { return pgx.ErrNoRows }
func (noRows) Values() ([]any, error)                       { return nil, nil }
func (noRows) RawValues() [][]byte                          { return nil }
func (noRows) Conn() *pgx.Conn                              { return nil }

func TestCategoryCache_StaleGeneration(t *testing.T) {
	cache := newCategoryCache(time.Minute)

	gen := cache.generation()
	cache.invalidate()

	assert.False(t, cache.setVisible(gen, []BlogCategory{{ID: 1, Slug: "stale"}}))
	_, ok := cache.visible()
	assert.False(t, ok)

	assert.True(t, cache.setVisible(cache.generation(), []BlogCategory{{ID: 2, Slug: "fresh"}}))
	got, ok := cache.visible()
	require.True(t, ok)
	assert.Equal(t, "fresh", got[0].Slug)
}

func TestCategoryCache_DeepCopy(t *testing.T) {
	cache := newCategoryCache(time.Minute)

	in := []BlogCategory{{ID: 1, Description: builder.Ptr("about go"), IsVisible: builder.Ptr(true)}}
	require.True(t, cache.setVisible(cache.generation(), in))

	*in[0].Description = "changed by caller"
	*in[0].IsVisible = false

	out, ok := cache.visible()
	require.True(t, ok)
	assert.Equal(t, "about go", *out[0].Description)
	assert.True(t, *out[0].IsVisible)

	*out[0].Description = "changed by reader"
	*out[0].IsVisible = false

	again, ok := cache.visible()
	require.True(t, ok)
	assert.Equal(t, "about go", *again[0].Description)
	assert.True(t, *again[0].IsVisible)
}

func TestCategories_ListVisibleInvalidatedMidRead(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	q := &racingQuerier{onQuery: c.cache.invalidate}
	categories := &Categories{Repository: c.Categories.WithQuerier(q), client: c}

	got, err := categories.ListVisible(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, ok := c.cache.visible()
	assert.False(t, ok, "a list read before an invalidation must not be cached")
}

func TestCategoryCache_ConcurrentInvalidate(t *testing.T) {
	cache := newCategoryCache(time.Minute)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 100 {
				cache.setVisible(cache.generation(), []BlogCategory{{ID: 1}})
				cache.visible()
			}
		})
	}
	wg.Go(func() {
		for range 100 {
			cache.invalidate()
		}
	})
	wg.Wait()

	gen := cache.generation()
	cache.invalidate()
	cache.setVisible(gen, []BlogCategory{{ID: 1}})
	_, ok := cache.visible()
	assert.False(t, ok)
}
