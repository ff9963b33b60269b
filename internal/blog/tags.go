package blog

import (
	"context"

	"github.com/marshallshelly/blogstore/pkg/builder"
)

// Tags is the repository of Tag rows.
type Tags struct {
	*builder.Repository[Tag]
	client *Client
}

func newTags(c *Client, db *builder.DB, opts []builder.Option) (*Tags, error) {
	repo, err := builder.NewRepository[Tag](db, opts...)
	if err != nil {
		return nil, err
	}
	return &Tags{Repository: repo, client: c}, nil
}

// FindBySlug returns the tag with the given slug, or nil.
func (t *Tags) FindBySlug(ctx context.Context, slug string) (*Tag, error) {
	return t.FindUnique(ctx, builder.UniqueKey{"slug": slug})
}

// FindByName returns the tag with the given name, or nil.
func (t *Tags) FindByName(ctx context.Context, name string) (*Tag, error) {
	return t.FindUnique(ctx, builder.UniqueKey{"name": name})
}

// ContentTags is the repository of ContentTag join rows.
type ContentTags struct {
	*builder.Repository[ContentTag]
	client *Client
}

func newContentTags(c *Client, db *builder.DB, opts []builder.Option) (*ContentTags, error) {
	repo, err := builder.NewRepository[ContentTag](db, opts...)
	if err != nil {
		return nil, err
	}
	return &ContentTags{Repository: repo, client: c}, nil
}

// Attach links tags to a content. Links that already exist are skipped; the
// result counts the new ones.
func (ct *ContentTags) Attach(ctx context.Context, contentID int, tagIDs ...int) (int64, error) {
	if len(tagIDs) == 0 {
		return 0, nil
	}
	rows := make([]ContentTag, len(tagIDs))
	for i, tagID := range tagIDs {
		rows[i] = ContentTag{ContentID: contentID, TagID: tagID}
	}
	return ct.CreateMany(ctx, rows, builder.CreateManyOptions{SkipDuplicates: true})
}

// Detach removes links between a content and tags.
func (ct *ContentTags) Detach(ctx context.Context, contentID int, tagIDs ...int) (int64, error) {
	if len(tagIDs) == 0 {
		return 0, nil
	}
	return ct.DeleteMany(ctx, builder.DeleteManyArgs{
		Where: []builder.Condition{
			builder.Eq("content_id", contentID),
			builder.In("tag_id", tagIDs...),
		},
	})
}

// TagsFor returns the tags of a content ordered by name.
func (ct *ContentTags) TagsFor(ctx context.Context, contentID int) ([]Tag, error) {
	return ct.client.Tags.FindMany(ctx, builder.FindManyArgs{
		Where:   []builder.Condition{builder.Some("Contents", builder.Eq("content_id", contentID))},
		OrderBy: []builder.OrderBy{builder.Asc("name")},
	})
}
