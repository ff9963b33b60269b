package builder

import (
	"context"
	"testing"

	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		args     CountArgs
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "all rows",
			wantSQL: "SELECT COUNT(*) FROM posts",
		},
		{
			name:     "filtered",
			args:     CountArgs{Where: []Condition{Gt("views", 10)}},
			wantSQL:  "SELECT COUNT(*) FROM posts WHERE views > $1",
			wantArgs: []any{10},
		},
		{
			name:     "paged window",
			args:     CountArgs{Where: []Condition{Gt("views", 10)}, Take: Ptr(5)},
			wantSQL:  "SELECT COUNT(*) FROM (SELECT id FROM posts WHERE views > $1 ORDER BY id ASC LIMIT 5) AS posts",
			wantArgs: []any{10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &recorder{count: 42}
			repo := newRepo[Post](t, q)

			n, err := repo.Count(ctx, tt.args)
			require.NoError(t, err)
			assert.Equal(t, int64(42), n)

			got := q.last(t)
			assert.Equal(t, tt.wantSQL, got.sql)
			assert.Equal(t, tt.wantArgs, got.args)
		})
	}
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()

	t.Run("every aggregate kind", func(t *testing.T) {
		q := &recorder{}
		repo := newRepo[Post](t, q)

		result, err := repo.Aggregate(ctx, AggregateArgs{
			Where: []Condition{Eq("writer_id", 1)},
			Count: []string{"_all"},
			Avg:   []string{"views"},
			Sum:   []string{"views", "rating"},
			Min:   []string{"title"},
			Max:   []string{"published_at"},
		})
		require.NoError(t, err)
		require.NotNil(t, result)

		got := q.last(t)
		assert.Equal(t, "SELECT COUNT(*), AVG(views)::float8, SUM(views)::bigint, SUM(rating)::float8, MIN(title), MAX(published_at) FROM posts WHERE writer_id = $1", got.sql)
		assert.Equal(t, []any{1}, got.args)
	})

	t.Run("window", func(t *testing.T) {
		q := &recorder{}
		repo := newRepo[Post](t, q)

		_, err := repo.Aggregate(ctx, AggregateArgs{
			OrderBy: []OrderBy{Desc("views")},
			Take:    Ptr(10),
			Avg:     []string{"rating"},
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT AVG(rating)::float8 FROM (SELECT "+postColumns+" FROM posts ORDER BY views DESC, id ASC LIMIT 10) AS posts", q.last(t).sql)
	})

	t.Run("nothing requested", func(t *testing.T) {
		q := &recorder{}
		repo := newRepo[Post](t, q)

		result, err := repo.Aggregate(ctx, AggregateArgs{})
		require.NoError(t, err)
		assert.Empty(t, result.Count)
		assert.Empty(t, q.calls)
	})

	invalid := []struct {
		name      string
		args      AggregateArgs
		wantField string
	}{
		{"avg of a string column", AggregateArgs{Avg: []string{"title"}}, "_avg.title"},
		{"sum of a timestamp", AggregateArgs{Sum: []string{"published_at"}}, "_sum.published_at"},
		{"unknown column", AggregateArgs{Max: []string{"missing"}}, "_max.missing"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			q := &recorder{}
			repo := newRepo[Post](t, q)

			_, err := repo.Aggregate(ctx, tt.args)
			var verr *runtime.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Empty(t, q.calls)
		})
	}
}

func TestAggregateResult_Assign(t *testing.T) {
	result := newAggregateResult()
	result.assign(aggregateSpec{kind: aggCount, column: countAll}, int64(3))
	result.assign(aggregateSpec{kind: aggAvg, column: "views"}, 2.5)
	result.assign(aggregateSpec{kind: aggAvg, column: "rating"}, nil)
	result.assign(aggregateSpec{kind: aggSum, column: "views"}, int64(7))

	assert.Equal(t, int64(3), result.Count["_all"])
	require.NotNil(t, result.Avg["views"])
	assert.InDelta(t, 2.5, *result.Avg["views"], 0.0001)
	assert.Nil(t, result.Avg["rating"])
	assert.Equal(t, int64(7), result.Sum["views"])
}

func TestGroupBy(t *testing.T) {
	ctx := context.Background()

	t.Run("having and ordering by aggregates", func(t *testing.T) {
		q := &recorder{}
		repo := newRepo[Post](t, q)

		groups, err := repo.GroupBy(ctx, GroupByArgs{
			By:      []string{"writer_id"},
			Where:   []Condition{IsNotNull("published_at")},
			Having:  []Condition{Gt("_count._all", 2)},
			OrderBy: []OrderBy{Desc("_sum.views")},
			Take:    Ptr(5),
			Count:   []string{"_all"},
			Sum:     []string{"views"},
		})
		require.NoError(t, err)
		assert.Empty(t, groups)

		got := q.last(t)
		assert.Equal(t, "SELECT writer_id, COUNT(*), SUM(views)::bigint FROM posts WHERE published_at IS NOT NULL "+
			"GROUP BY writer_id HAVING COUNT(*) > $1 ORDER BY SUM(views)::bigint DESC, writer_id ASC LIMIT 5", got.sql)
		assert.Equal(t, []any{2}, got.args)
	})

	t.Run("having on a by column", func(t *testing.T) {
		q := &recorder{}
		repo := newRepo[Post](t, q)

		_, err := repo.GroupBy(ctx, GroupByArgs{
			By:     []string{"writer_id", "title"},
			Having: []Condition{In("writer_id", 1, 2)},
			Count:  []string{"id"},
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT writer_id, title, COUNT(id) FROM posts GROUP BY writer_id, title HAVING writer_id IN ($1, $2) "+
			"ORDER BY writer_id ASC, title ASC", q.last(t).sql)
	})

	invalid := []struct {
		name      string
		args      GroupByArgs
		wantField string
	}{
		{"no by columns", GroupByArgs{}, "by"},
		{"unknown by column", GroupByArgs{By: []string{"missing"}}, "missing"},
		{"having on a column outside by", GroupByArgs{By: []string{"writer_id"}, Having: []Condition{Gt("views", 1)}}, "views"},
		{"order by a column outside by", GroupByArgs{By: []string{"writer_id"}, OrderBy: []OrderBy{Asc("title")}}, "title"},
		{"take without order", GroupByArgs{By: []string{"writer_id"}, Take: Ptr(1)}, "orderBy"},
		{"negative skip", GroupByArgs{By: []string{"writer_id"}, OrderBy: []OrderBy{Asc("writer_id")}, Skip: Ptr(-1)}, "skip"},
		{"relation filter in having", GroupByArgs{By: []string{"writer_id"}, Having: []Condition{Some("Notes")}}, "Notes"},
		{"avg of a string in having", GroupByArgs{By: []string{"writer_id"}, Having: []Condition{Gt("_avg.title", 1)}}, "_avg.title"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			q := &recorder{}
			repo := newRepo[Post](t, q)

			_, err := repo.GroupBy(ctx, tt.args)
			var verr *runtime.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Empty(t, q.calls)
		})
	}
}
