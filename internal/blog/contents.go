package blog

import (
	"context"
	"time"

	"github.com/marshallshelly/blogstore/pkg/builder"
	"github.com/marshallshelly/blogstore/pkg/runtime"
)

// Contents is the repository of Content rows.
type Contents struct {
	*builder.Repository[Content]
	client *Client
}

func newContents(c *Client, db *builder.DB, opts []builder.Option) (*Contents, error) {
	repo, err := builder.NewRepository[Content](db, opts...)
	if err != nil {
		return nil, err
	}
	return &Contents{Repository: repo, client: c}, nil
}

// FindBySlug returns the content with the given slug, or nil.
func (c *Contents) FindBySlug(ctx context.Context, slug string, opts ...builder.FindOption) (*Content, error) {
	return c.FindUnique(ctx, builder.UniqueKey{"slug": slug}, opts...)
}

// Publish marks a content as published. The first publication stamps
// published_at; republishing keeps the original date.
func (c *Contents) Publish(ctx context.Context, id int) (*Content, error) {
	var published *Content
	err := c.client.atomic(ctx, func(tx *Client) error {
		content, err := tx.Contents.FindUniqueOrError(ctx, builder.UniqueKey{"id": id})
		if err != nil {
			return err
		}

		data := builder.Set{"status": StatusPublished}
		if content.PublishedAt == nil {
			data["published_at"] = time.Now().UTC()
		}
		published, err = tx.Contents.Update(ctx, builder.UniqueKey{"id": id}, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return published, nil
}

// Unpublish moves a content back to draft and clears published_at.
func (c *Contents) Unpublish(ctx context.Context, id int) (*Content, error) {
	return c.Update(ctx, builder.UniqueKey{"id": id}, builder.Set{
		"status":       StatusDraft,
		"published_at": builder.Null(),
	})
}

// IncrementViews adds one to the view counter.
func (c *Contents) IncrementViews(ctx context.Context, id int) (*Content, error) {
	return c.Update(ctx, builder.UniqueKey{"id": id}, builder.Set{"view_count": builder.Increment(1)})
}

const recountSQL = `UPDATE contents SET
	like_count = (SELECT COUNT(*) FROM likes WHERE likes.content_id = contents.id),
	comment_count = (SELECT COUNT(*) FROM comments WHERE comments.content_id = contents.id AND comments.is_approved)`

// Recount recomputes like_count and comment_count of the given contents
// from their rows. It returns the number of contents updated.
func (c *Contents) Recount(ctx context.Context, ids ...int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return c.recount(ctx, recountSQL+" WHERE contents.id = ANY($1)", ids)
}

// RecountAll recomputes the counters of every content.
func (c *Contents) RecountAll(ctx context.Context) (int64, error) {
	return c.recount(ctx, recountSQL)
}

func (c *Contents) recount(ctx context.Context, sql string, args ...any) (int64, error) {
	n, err := c.Querier().Exec(ctx, sql, args...)
	if err != nil {
		return 0, &runtime.QueryError{Query: sql, Err: runtime.Classify(err)}
	}
	return n, nil
}

// PageArgs pages a listing by id cursor.
type PageArgs struct {
	// Take is the page size; zero means DefaultPageSize.
	Take int
	// After is the id of the last row of the previous page; zero starts at
	// the beginning.
	After int
	// CategoryID restricts the listing to one category when non-zero.
	CategoryID int
	Include    []builder.Include
}

// DefaultPageSize is used when PageArgs.Take is zero.
const DefaultPageSize = 20

// ListPublished returns published contents, newest publication first.
// Published rows without a publication date come last.
func (c *Contents) ListPublished(ctx context.Context, page PageArgs) ([]Content, error) {
	take := page.Take
	if take == 0 {
		take = DefaultPageSize
	}
	if take < 0 {
		return nil, runtime.Invalid("take", "must be positive")
	}

	args := builder.FindManyArgs{
		Where:   []builder.Condition{builder.Eq("status", StatusPublished)},
		OrderBy: []builder.OrderBy{
			{Column: "published_at", Direction: builder.Descending, Nulls: builder.NullsLast},
			builder.Desc("id"),
		},
		Take:    builder.Ptr(take),
		Include: page.Include,
	}
	if page.CategoryID != 0 {
		args.Where = append(args.Where, builder.Eq("category_id", page.CategoryID))
	}
	if page.After != 0 {
		args.Cursor = builder.UniqueKey{"id": page.After}
		args.Skip = builder.Ptr(1)
	}

	return c.FindMany(ctx, args)
}
