package blog

import (
	"context"
	"fmt"

	"github.com/marshallshelly/blogstore/pkg/builder"
)

// Stats summarizes the blog.
type Stats struct {
	Users      int64                   `json:"users"`
	Categories int64                   `json:"categories"`
	Contents   int64                   `json:"contents"`
	Tags       int64                   `json:"tags"`
	Comments   int64                   `json:"comments"`
	Likes      int64                   `json:"likes"`
	ByStatus   map[ContentStatus]int64 `json:"byStatus"`
	TotalViews int64                   `json:"totalViews"`
	TopAuthors []AuthorStats           `json:"topAuthors"`
}

// AuthorStats aggregates the contents of one author.
type AuthorStats struct {
	AuthorID int   `json:"authorId"`
	Contents int64 `json:"contents"`
	Views    int64 `json:"views"`
}

// Stats counts every table, groups contents by status and ranks the
// authors with the most contents.
func (c *Client) Stats(ctx context.Context, topAuthors int) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[ContentStatus]int64, len(ContentStatuses))}

	counts := []struct {
		dst   *int64
		count func(context.Context, builder.CountArgs) (int64, error)
	}{
		{&stats.Users, c.Users.Count},
		{&stats.Categories, c.Categories.Count},
		{&stats.Contents, c.Contents.Count},
		{&stats.Tags, c.Tags.Count},
		{&stats.Comments, c.Comments.Count},
		{&stats.Likes, c.Likes.Count},
	}
	for _, entry := range counts {
		n, err := entry.count(ctx, builder.CountArgs{})
		if err != nil {
			return nil, err
		}
		*entry.dst = n
	}

	for _, status := range ContentStatuses {
		stats.ByStatus[status] = 0
	}
	groups, err := c.Contents.GroupBy(ctx, builder.GroupByArgs{
		By:    []string{"status"},
		Count: []string{"_all"},
	})
	if err != nil {
		return nil, err
	}
	for _, group := range groups {
		status, err := ParseContentStatus(fmt.Sprint(group.Keys["status"]))
		if err != nil {
			return nil, err
		}
		stats.ByStatus[status] = group.Count["_all"]
	}

	views, err := c.Contents.Aggregate(ctx, builder.AggregateArgs{Sum: []string{"view_count"}})
	if err != nil {
		return nil, err
	}
	stats.TotalViews = asInt64(views.Sum["view_count"])

	if topAuthors > 0 {
		authors, err := c.Contents.GroupBy(ctx, builder.GroupByArgs{
			By:      []string{"author_id"},
			Count:   []string{"_all"},
			Sum:     []string{"view_count"},
			OrderBy: []builder.OrderBy{builder.Desc("_count._all"), builder.Desc("_sum.view_count")},
			Take:    builder.Ptr(topAuthors),
		})
		if err != nil {
			return nil, err
		}
		for _, group := range authors {
			stats.TopAuthors = append(stats.TopAuthors, AuthorStats{
				AuthorID: int(asInt64(group.Keys["author_id"])),
				Contents: group.Count["_all"],
				Views:    asInt64(group.Sum["view_count"]),
			})
		}
	}

	return stats, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}
