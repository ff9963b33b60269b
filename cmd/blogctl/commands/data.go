package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/marshallshelly/blogstore/cmd/blogctl/output"
	"github.com/marshallshelly/blogstore/internal/blog"
	"github.com/marshallshelly/blogstore/pkg/builder"
	"github.com/spf13/cobra"
)

var (
	topAuthors   int
	pageSize     int
	pageAfter    int
	pageCategory string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo users, categories, tags and contents",
	Long: `Load a small demo data set in one transaction. Rows are upserted by
their unique keys, so running seed twice does not duplicate anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context())
	},
}

var recountCmd = &cobra.Command{
	Use:   "recount",
	Short: "Recompute like and comment counters",
	Long: `Recompute like_count and comment_count of every content from the likes
and approved comments that reference it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecount(cmd.Context())
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the blog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd.Context())
	},
}

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Inspect contents",
}

var contentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List published contents, newest first",
	Long: `List published contents, newest publication first.

Examples:
  blogctl content list --take 10
  blogctl content list --after 42         # Next page after content 42
  blogctl content list --category go`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runContentList(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(seedCmd, recountCmd, statsCmd, contentCmd)
	contentCmd.AddCommand(contentListCmd)

	statsCmd.Flags().IntVar(&topAuthors, "top", 5, "Number of top authors to show")

	contentListCmd.Flags().IntVar(&pageSize, "take", blog.DefaultPageSize, "Page size")
	contentListCmd.Flags().IntVar(&pageAfter, "after", 0, "Id of the last content of the previous page")
	contentListCmd.Flags().StringVar(&pageCategory, "category", "", "Category slug to filter by")
}

func runSeed(ctx context.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := blog.Seed(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to seed: %w", err)
	}

	if jsonOutput {
		return output.JSON(result)
	}
	output.Success("Seeded %d users, %d categories, %d tags and %d contents",
		result.Users, result.Categories, result.Tags, result.Contents)
	output.Muted("Added %d comments and %d likes", result.Comments, result.Likes)
	return nil
}

func runRecount(ctx context.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.client.Contents.RecountAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to recount: %w", err)
	}

	if jsonOutput {
		return output.JSON(map[string]int64{"contents": n})
	}
	output.Success("Recounted %d content(s)", n)
	return nil
}

func runStats(ctx context.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.client.Stats(ctx, topAuthors)
	if err != nil {
		return fmt.Errorf("failed to collect stats: %w", err)
	}

	if jsonOutput {
		return output.JSON(stats)
	}
	return printStats(stats)
}

func printStats(stats *blog.Stats) error {
	output.Section("Totals")
	totals := [][]string{
		{"users", itoa64(stats.Users)},
		{"categories", itoa64(stats.Categories)},
		{"contents", itoa64(stats.Contents)},
		{"tags", itoa64(stats.Tags)},
		{"comments", itoa64(stats.Comments)},
		{"likes", itoa64(stats.Likes)},
		{"views", itoa64(stats.TotalViews)},
	}
	if err := output.Table([]string{"TABLE", "ROWS"}, totals); err != nil {
		return err
	}

	output.Section("Contents by status")
	statuses := make([]string, 0, len(stats.ByStatus))
	for status := range stats.ByStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	byStatus := make([][]string, len(statuses))
	for i, status := range statuses {
		byStatus[i] = []string{status, itoa64(stats.ByStatus[blog.ContentStatus(status)])}
	}
	if err := output.Table([]string{"STATUS", "CONTENTS"}, byStatus); err != nil {
		return err
	}

	if len(stats.TopAuthors) == 0 {
		return nil
	}
	output.Section("Top authors")
	authors := make([][]string, len(stats.TopAuthors))
	for i, a := range stats.TopAuthors {
		authors[i] = []string{strconv.Itoa(a.AuthorID), itoa64(a.Contents), itoa64(a.Views)}
	}
	return output.Table([]string{"AUTHOR", "CONTENTS", "VIEWS"}, authors)
}

func runContentList(ctx context.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	page := blog.PageArgs{
		Take:    pageSize,
		After:   pageAfter,
		Include: []builder.Include{builder.With("Author"), builder.With("Category")},
	}
	if pageCategory != "" {
		category, err := s.client.Categories.FindBySlug(ctx, pageCategory, builder.Selecting("id"))
		if err != nil {
			return err
		}
		if category == nil {
			return fmt.Errorf("category %q not found", pageCategory)
		}
		page.CategoryID = category.ID
	}

	contents, err := s.client.Contents.ListPublished(ctx, page)
	if err != nil {
		return fmt.Errorf("failed to list contents: %w", err)
	}

	if jsonOutput {
		return output.JSON(contents)
	}
	if len(contents) == 0 {
		output.Info("No published contents")
		return nil
	}

	rows := make([][]string, len(contents))
	for i, c := range contents {
		rows[i] = contentRow(c)
	}
	if err := output.Table([]string{"ID", "SLUG", "TITLE", "AUTHOR", "CATEGORY", "PUBLISHED", "LIKES", "COMMENTS"}, rows); err != nil {
		return err
	}
	if len(contents) == page.Take {
		output.Muted("Next page: --after %d", contents[len(contents)-1].ID)
	}
	return nil
}

func contentRow(c blog.Content) []string {
	author, category, published := "-", "-", "-"
	if c.Author != nil {
		author = c.Author.Username
	}
	if c.Category != nil {
		category = c.Category.Slug
	}
	if c.PublishedAt != nil {
		published = c.PublishedAt.Format("2006-01-02")
	}
	return []string{
		strconv.Itoa(c.ID),
		c.Slug,
		c.Title,
		author,
		category,
		published,
		strconv.Itoa(c.LikeCount),
		strconv.Itoa(c.CommentCount),
	}
}

func itoa64(n int64) string { return strconv.FormatInt(n, 10) }
