package blog

import (
	"context"

	"github.com/marshallshelly/blogstore/pkg/builder"
	"github.com/marshallshelly/blogstore/pkg/runtime"
)

// Comments is the repository of Comment rows.
type Comments struct {
	*builder.Repository[Comment]
	client *Client
}

func newComments(c *Client, db *builder.DB, opts []builder.Option) (*Comments, error) {
	repo, err := builder.NewRepository[Comment](db, opts...)
	if err != nil {
		return nil, err
	}
	return &Comments{Repository: repo, client: c}, nil
}

// Add creates a comment. A reply must belong to the same content as its
// parent. Approved comments count towards the content's comment_count.
func (c *Comments) Add(ctx context.Context, comment Comment) (*Comment, error) {
	var created *Comment
	err := c.client.atomic(ctx, func(tx *Client) error {
		var err error
		created, err = tx.Comments.Create(ctx, comment)
		if err != nil {
			return err
		}

		if created.IsApproved {
			return tx.Contents.bumpComments(ctx, created.ContentID, 1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Create inserts a comment after checking that a reply's parent exists on
// the same content.
func (c *Comments) Create(ctx context.Context, comment Comment) (*Comment, error) {
	if err := c.checkParent(ctx, comment); err != nil {
		return nil, err
	}
	return c.Repository.Create(ctx, comment)
}

// Update updates one comment. A comment cannot move to another parent or
// content once created.
func (c *Comments) Update(ctx context.Context, key builder.UniqueKey, data builder.Set) (*Comment, error) {
	if err := frozenCommentColumns(data); err != nil {
		return nil, err
	}
	return c.Repository.Update(ctx, key, data)
}

// UpdateMany updates matching comments with the same restriction as Update.
func (c *Comments) UpdateMany(ctx context.Context, args builder.UpdateManyArgs) (int64, error) {
	if err := frozenCommentColumns(args.Data); err != nil {
		return 0, err
	}
	return c.Repository.UpdateMany(ctx, args)
}

// Upsert checks create like Create and update like Update.
func (c *Comments) Upsert(ctx context.Context, key builder.UniqueKey, create Comment, update builder.Set) (*Comment, error) {
	if err := frozenCommentColumns(update); err != nil {
		return nil, err
	}
	if err := c.checkParent(ctx, create); err != nil {
		return nil, err
	}
	return c.Repository.Upsert(ctx, key, create, update)
}

func (c *Comments) checkParent(ctx context.Context, comment Comment) error {
	if comment.ParentID == nil {
		return nil
	}
	parent, err := c.FindUnique(ctx, builder.UniqueKey{"id": *comment.ParentID})
	if err != nil {
		return err
	}
	if parent == nil {
		return runtime.Invalid("parent_id", "parent comment %d does not exist", *comment.ParentID)
	}
	if parent.ContentID != comment.ContentID {
		return runtime.Invalid("parent_id", "parent comment %d belongs to another content", parent.ID)
	}
	return nil
}

// frozenCommentColumns rejects writes to the columns that place a comment
// in a thread.
func frozenCommentColumns(data builder.Set) error {
	for _, column := range []string{"parent_id", "content_id"} {
		if _, ok := data[column]; ok {
			return runtime.Invalid(column, "cannot be changed after the comment is created")
		}
	}
	return nil
}

// Approve marks a comment approved. Approving twice is a no-op.
func (c *Comments) Approve(ctx context.Context, id int) (*Comment, error) {
	var approved *Comment
	err := c.client.atomic(ctx, func(tx *Client) error {
		comment, err := tx.Comments.FindUniqueOrError(ctx, builder.UniqueKey{"id": id})
		if err != nil {
			return err
		}
		if comment.IsApproved {
			approved = comment
			return nil
		}

		approved, err = tx.Comments.Update(ctx, builder.UniqueKey{"id": id}, builder.Set{"is_approved": true})
		if err != nil {
			return err
		}
		return tx.Contents.bumpComments(ctx, approved.ContentID, 1)
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// Remove deletes a comment with all of its replies and recounts the
// content's comment_count.
func (c *Comments) Remove(ctx context.Context, id int) (*Comment, error) {
	var removed *Comment
	err := c.client.atomic(ctx, func(tx *Client) error {
		var err error
		removed, err = tx.Comments.Delete(ctx, builder.UniqueKey{"id": id})
		if err != nil {
			return err
		}
		_, err = tx.Contents.Recount(ctx, removed.ContentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Replies returns the direct replies of a comment, oldest first.
func (c *Comments) Replies(ctx context.Context, id int, include ...builder.Include) ([]Comment, error) {
	return c.FindMany(ctx, builder.FindManyArgs{
		Where:   []builder.Condition{builder.Eq("parent_id", id)},
		OrderBy: []builder.OrderBy{builder.Asc("created_at")},
		Include: include,
	})
}

// Thread returns the top-level comments of a content with depth levels of
// replies loaded beneath them.
func (c *Comments) Thread(ctx context.Context, contentID, depth int) ([]Comment, error) {
	if depth < 0 {
		return nil, runtime.Invalid("depth", "must not be negative")
	}
	if depth > builder.MaxIncludeDepth {
		return nil, runtime.Invalid("depth", "must be at most %d", builder.MaxIncludeDepth)
	}

	return c.FindMany(ctx, builder.FindManyArgs{
		Where: []builder.Condition{
			builder.Eq("content_id", contentID),
			builder.IsNull("parent_id"),
		},
		OrderBy: []builder.OrderBy{builder.Asc("created_at")},
		Include: replyLevels(depth),
	})
}

// replyLevels nests depth Replies includes, each ordered by creation time.
func replyLevels(depth int) []builder.Include {
	var levels []builder.Include
	for range depth {
		levels = []builder.Include{{
			Relation: "Replies",
			Args:     &builder.FindManyArgs{OrderBy: []builder.OrderBy{builder.Asc("created_at")}},
			Include:  levels,
		}}
	}
	return levels
}

// bumpComments adjusts the cached comment counter.
func (c *Contents) bumpComments(ctx context.Context, contentID, delta int) error {
	return c.bump(ctx, contentID, "comment_count", delta)
}

// bumpLikes adjusts the cached like counter.
func (c *Contents) bumpLikes(ctx context.Context, contentID, delta int) error {
	return c.bump(ctx, contentID, "like_count", delta)
}

func (c *Contents) bump(ctx context.Context, contentID int, column string, delta int) error {
	op := builder.Increment(delta)
	if delta < 0 {
		op = builder.Decrement(-delta)
	}
	_, err := c.UpdateMany(ctx, builder.UpdateManyArgs{
		Where: []builder.Condition{builder.Eq("id", contentID)},
		Data:  builder.Set{column: op},
	})
	return err
}
