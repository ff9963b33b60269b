package blog

import (
	"context"
	"fmt"
	"time"

	"github.com/marshallshelly/blogstore/pkg/builder"
	"github.com/marshallshelly/blogstore/pkg/registry"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"go.uber.org/zap"
)

// Models lists every entity of the blog schema.
func Models() []any {
	return []any{User{}, BlogCategory{}, Content{}, Tag{}, ContentTag{}, Comment{}, Like{}}
}

// Client bundles the typed repositories of the blog schema. A Client
// returned by NewClient runs on the connection pool; the Client passed to a
// Transaction callback runs every repository on that transaction.
type Client struct {
	db       *builder.DB
	tx       *builder.Tx
	registry *registry.Registry
	cache    *categoryCache
	logger   *zap.Logger

	Users       *Users
	Categories  *Categories
	Contents    *Contents
	Tags        *Tags
	ContentTags *ContentTags
	Comments    *Comments
	Likes       *Likes
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	cacheTTL time.Duration
	logger   *zap.Logger
}

// WithCategoryCacheTTL sets how long the visible category list is cached.
func WithCategoryCacheTTL(ttl time.Duration) ClientOption {
	return func(c *clientConfig) { c.cacheTTL = ttl }
}

// WithClientLogger sets the logger used by domain operations.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient registers the blog models and creates repositories bound to db.
func NewClient(db *builder.DB, opts ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		cacheTTL: DefaultCategoryCacheTTL,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	reg := registry.NewRegistry()
	for _, model := range Models() {
		if err := reg.Register(model); err != nil {
			return nil, fmt.Errorf("failed to register %T: %w", model, err)
		}
	}

	c := &Client{
		db:       db,
		registry: reg,
		cache:    newCategoryCache(cfg.cacheTTL),
		logger:   cfg.logger,
	}

	repoOpts := []builder.Option{builder.WithRegistry(reg)}
	var err error
	if c.Users, err = newUsers(c, db, repoOpts); err != nil {
		return nil, err
	}
	if c.Categories, err = newCategories(c, db, append(repoOpts, builder.WithAfterWrite(c.cache.invalidate))); err != nil {
		return nil, err
	}
	if c.Contents, err = newContents(c, db, repoOpts); err != nil {
		return nil, err
	}
	if c.Tags, err = newTags(c, db, repoOpts); err != nil {
		return nil, err
	}
	if c.ContentTags, err = newContentTags(c, db, repoOpts); err != nil {
		return nil, err
	}
	if c.Comments, err = newComments(c, db, repoOpts); err != nil {
		return nil, err
	}
	if c.Likes, err = newLikes(c, db, repoOpts); err != nil {
		return nil, err
	}

	return c, nil
}

// Registry returns the metadata registry holding the blog models.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// InTransaction reports whether the client runs on a transaction.
func (c *Client) InTransaction() bool {
	return c.tx != nil
}

// querier returns the transaction when bound to one, else the pool.
func (c *Client) querier() runtime.Querier {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

// bind returns a copy of the client with every repository running on tx.
func (c *Client) bind(tx *builder.Tx) *Client {
	clone := &Client{
		db:       c.db,
		tx:       tx,
		registry: c.registry,
		cache:    c.cache,
		logger:   c.logger,
	}
	clone.Users = &Users{Repository: c.Users.WithQuerier(tx), client: clone}
	clone.Categories = &Categories{Repository: c.Categories.WithQuerier(tx), client: clone}
	clone.Contents = &Contents{Repository: c.Contents.WithQuerier(tx), client: clone}
	clone.Tags = &Tags{Repository: c.Tags.WithQuerier(tx), client: clone}
	clone.ContentTags = &ContentTags{Repository: c.ContentTags.WithQuerier(tx), client: clone}
	clone.Comments = &Comments{Repository: c.Comments.WithQuerier(tx), client: clone}
	clone.Likes = &Likes{Repository: c.Likes.WithQuerier(tx), client: clone}
	return clone
}

// Transaction runs fn with a client bound to a new transaction. Inside a
// transaction it opens a savepoint instead, so an error undoes only the
// work of fn. opts are ignored for savepoints.
func (c *Client) Transaction(ctx context.Context, opts builder.TxOptions, fn func(*Client) error) error {
	if c.tx != nil {
		return c.tx.Transaction(ctx, func(tx *builder.Tx) error {
			return fn(c.bind(tx))
		})
	}
	if c.db == nil {
		return runtime.ErrNoConnection
	}
	return c.db.Transaction(ctx, opts, func(tx *builder.Tx) error {
		return fn(c.bind(tx))
	})
}

// Batch runs ops in order inside one transaction. The first error rolls
// back every operation.
func (c *Client) Batch(ctx context.Context, opts builder.TxOptions, ops ...func(*Client) error) error {
	return c.Transaction(ctx, opts, func(tx *Client) error {
		for i, op := range ops {
			if err := op(tx); err != nil {
				return fmt.Errorf("batch operation %d: %w", i, err)
			}
		}
		return nil
	})
}

// atomic runs a multi-statement domain operation as one unit.
func (c *Client) atomic(ctx context.Context, fn func(*Client) error) error {
	return c.Transaction(ctx, builder.TxOptions{}, fn)
}
