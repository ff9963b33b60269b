package blog

import (
	"context"

	"github.com/marshallshelly/blogstore/pkg/builder"
)

// Categories is the repository of BlogCategory rows.
type Categories struct {
	*builder.Repository[BlogCategory]
	client *Client
}

func newCategories(c *Client, db *builder.DB, opts []builder.Option) (*Categories, error) {
	repo, err := builder.NewRepository[BlogCategory](db, opts...)
	if err != nil {
		return nil, err
	}
	return &Categories{Repository: repo, client: c}, nil
}

// FindBySlug returns the category with the given slug, or nil.
func (c *Categories) FindBySlug(ctx context.Context, slug string, opts ...builder.FindOption) (*BlogCategory, error) {
	return c.FindUnique(ctx, builder.UniqueKey{"slug": slug}, opts...)
}

// ListVisible returns the visible categories ordered by sort order and name.
// Outside a transaction the list is served from a cache that every
// category write invalidates.
func (c *Categories) ListVisible(ctx context.Context) ([]BlogCategory, error) {
	cached := !c.client.InTransaction()
	var gen uint64
	if cached {
		if categories, ok := c.client.cache.visible(); ok {
			return categories, nil
		}
		gen = c.client.cache.generation()
	}

	categories, err := c.FindMany(ctx, builder.FindManyArgs{
		Where:   []builder.Condition{builder.Eq("is_visible", true)},
		OrderBy: []builder.OrderBy{builder.Asc("sort_order"), builder.Asc("name")},
	})
	if err != nil {
		return nil, err
	}

	if cached {
		c.client.cache.setVisible(gen, categories)
	}
	return categories, nil
}
