package blog

import (
	"sync"
	"time"

	"github.com/marshallshelly/blogstore/pkg/builder"
	"github.com/patrickmn/go-cache"
)

// DefaultCategoryCacheTTL is how long the visible category list is kept.
const DefaultCategoryCacheTTL = 5 * time.Minute

const visibleCategoriesKey = "categories:visible"

// categoryCache holds the visible category list between writes.
// Every invalidation starts a new generation; a list read under an older
// generation is never stored.
type categoryCache struct {
	c *cache.Cache

	mu  sync.Mutex
	gen uint64
}

func newCategoryCache(ttl time.Duration) *categoryCache {
	return &categoryCache{c: cache.New(ttl, 2*ttl)}
}

func (c *categoryCache) visible() ([]BlogCategory, bool) {
	v, ok := c.c.Get(visibleCategoriesKey)
	if !ok {
		return nil, false
	}
	return cloneCategories(v.([]BlogCategory)), true
}

// generation returns the token a reader passes back to setVisible.
func (c *categoryCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// setVisible stores categories unless the cache was invalidated since gen
// was taken. It reports whether the list was stored.
func (c *categoryCache) setVisible(gen uint64, categories []BlogCategory) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.c.Set(visibleCategoriesKey, cloneCategories(categories), cache.DefaultExpiration)
	return true
}

func (c *categoryCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.c.Delete(visibleCategoriesKey)
}

func cloneCategories(categories []BlogCategory) []BlogCategory {
	if categories == nil {
		return nil
	}
	out := make([]BlogCategory, len(categories))
	for i, category := range categories {
		if category.Description != nil {
			category.Description = builder.Ptr(*category.Description)
		}
		if category.IsVisible != nil {
			category.IsVisible = builder.Ptr(*category.IsVisible)
		}
		out[i] = category
	}
	return out
}
