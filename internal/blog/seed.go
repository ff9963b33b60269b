package blog

import (
	"context"
	"fmt"

	"github.com/marshallshelly/blogstore/pkg/builder"
)

// SeedResult reports what Seed wrote.
type SeedResult struct {
	Users      int `json:"users"`
	Categories int `json:"categories"`
	Tags       int `json:"tags"`
	Contents   int `json:"contents"`
	Comments   int `json:"comments"`
	Likes      int `json:"likes"`
}

var seedUsers = []User{
	{Email: "ada@example.com", Username: "ada", PhoneNumber: "+44 20 7946 0001"},
	{Email: "grace@example.com", Username: "grace", PhoneNumber: "+1 202 555 0102"},
	{Email: "linus@example.com", Username: "linus", PhoneNumber: "+358 9 555 0103"},
}

var seedCategories = []BlogCategory{
	{Slug: "engineering", Name: "Engineering", SortOrder: 1},
	{Slug: "databases", Name: "Databases", SortOrder: 2},
	{Slug: "drafts", Name: "Drafts", SortOrder: 99, IsVisible: builder.Ptr(false)},
}

var seedTags = []Tag{
	{Name: "Go", Slug: "go"},
	{Name: "PostgreSQL", Slug: "postgresql"},
	{Name: "Testing", Slug: "testing"},
}

type seedContent struct {
	content  Content
	author   int
	category int
	tags     []int
	publish  bool
}

var seedContents = []seedContent{
	{
		content: Content{Slug: "hello-blogstore", Title: "Hello, blogstore", ContentBody: "A typed repository layer over pgx."},
		tags:    []int{0, 1},
		publish: true,
	},
	{
		content:  Content{Slug: "cursor-pagination", Title: "Cursor pagination", ContentBody: "Paging by unique keys instead of offsets."},
		author:   1,
		category: 1,
		tags:     []int{1},
		publish:  true,
	},
	{
		content:  Content{Slug: "table-driven-tests", Title: "Table-driven tests", ContentBody: "Work in progress."},
		author:   2,
		category: 2,
		tags:     []int{0, 2},
	},
}

// Seed writes a small demo data set in one transaction. Rows are upserted
// by their unique keys so seeding twice leaves one copy of everything.
func Seed(ctx context.Context, c *Client) (*SeedResult, error) {
	result := &SeedResult{}
	err := c.Transaction(ctx, builder.TxOptions{}, func(tx *Client) error {
		users := make([]*User, len(seedUsers))
		for i, u := range seedUsers {
			user, err := tx.Users.Upsert(ctx, builder.UniqueKey{"email": u.Email}, u, builder.Set{"username": u.Username})
			if err != nil {
				return fmt.Errorf("failed to seed user %s: %w", u.Email, err)
			}
			users[i] = user
		}
		result.Users = len(users)

		categories := make([]*BlogCategory, len(seedCategories))
		for i, cat := range seedCategories {
			category, err := tx.Categories.Upsert(ctx, builder.UniqueKey{"slug": cat.Slug}, cat, builder.Set{"name": cat.Name})
			if err != nil {
				return fmt.Errorf("failed to seed category %s: %w", cat.Slug, err)
			}
			categories[i] = category
		}
		result.Categories = len(categories)

		tags := make([]*Tag, len(seedTags))
		for i, t := range seedTags {
			tag, err := tx.Tags.Upsert(ctx, builder.UniqueKey{"slug": t.Slug}, t, builder.Set{"name": t.Name})
			if err != nil {
				return fmt.Errorf("failed to seed tag %s: %w", t.Slug, err)
			}
			tags[i] = tag
		}
		result.Tags = len(tags)

		for _, sc := range seedContents {
			content := sc.content
			content.AuthorID = users[sc.author].ID
			content.CategoryID = categories[sc.category].ID

			created, err := tx.Contents.Upsert(ctx, builder.UniqueKey{"slug": content.Slug}, content, builder.Set{"title": content.Title})
			if err != nil {
				return fmt.Errorf("failed to seed content %s: %w", content.Slug, err)
			}
			result.Contents++

			tagIDs := make([]int, len(sc.tags))
			for i, idx := range sc.tags {
				tagIDs[i] = tags[idx].ID
			}
			if _, err := tx.ContentTags.Attach(ctx, created.ID, tagIDs...); err != nil {
				return err
			}

			if !sc.publish {
				continue
			}
			if _, err := tx.Contents.Publish(ctx, created.ID); err != nil {
				return err
			}

			added, err := tx.seedInteractions(ctx, created.ID, users)
			if err != nil {
				return err
			}
			result.Comments += added.Comments
			result.Likes += added.Likes
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// seedInteractions adds a comment thread and likes to a content that has
// none yet.
func (c *Client) seedInteractions(ctx context.Context, contentID int, users []*User) (*SeedResult, error) {
	added := &SeedResult{}

	existing, err := c.Comments.Count(ctx, builder.CountArgs{Where: []builder.Condition{builder.Eq("content_id", contentID)}})
	if err != nil {
		return nil, err
	}
	if existing == 0 {
		root, err := c.Comments.Add(ctx, Comment{ContentID: contentID, UserID: users[1].ID, Body: "Great post!", IsApproved: true})
		if err != nil {
			return nil, err
		}
		if _, err := c.Comments.Add(ctx, Comment{ContentID: contentID, UserID: users[0].ID, ParentID: &root.ID, Body: "Thanks!", IsApproved: true}); err != nil {
			return nil, err
		}
		if _, err := c.Comments.Add(ctx, Comment{ContentID: contentID, UserID: users[2].ID, Body: "Pending review"}); err != nil {
			return nil, err
		}
		added.Comments = 3
	}

	for _, user := range users {
		liked, err := c.Likes.HasLiked(ctx, contentID, user.ID)
		if err != nil {
			return nil, err
		}
		if liked {
			continue
		}
		if _, err := c.Likes.Like(ctx, contentID, user.ID); err != nil {
			return nil, err
		}
		added.Likes++
	}

	return added, nil
}
