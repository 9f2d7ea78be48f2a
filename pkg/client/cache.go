package client

import (
	"context"
	"sync"

	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/log"
	"golang.org/x/sync/singleflight"
)

// Loader fetches the full item set, typically Client.Data.
type Loader func(ctx context.Context) ([]core.Item, error)

// ItemCache memoizes the item set for in-process filtering. Concurrent first
// callers share one load. A failed load is not memoized: every waiter gets an
// empty set and the error, and the next call tries again.
type ItemCache struct {
	load   Loader
	group  singleflight.Group
	logger *log.Logger

	mu     sync.Mutex
	items  []core.Item
	loaded bool
	// gen is bumped by Reset; a load started under an older generation
	// is handed to its waiters but never memoized.
	gen uint64
}

func NewItemCache(load Loader) *ItemCache {
	return &ItemCache{load: load, logger: log.ForService("cache")}
}

// GetOrLoad returns the cached items, loading them on first use. The load
// itself is not bound to ctx, so a caller giving up early does not fail the
// other waiters.
func (c *ItemCache) GetOrLoad(ctx context.Context) ([]core.Item, error) {
	c.mu.Lock()
	if c.loaded {
		items := c.items
		c.mu.Unlock()
		return items, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan("items", func() (interface{}, error) {
		c.mu.Lock()
		gen := c.gen
		c.mu.Unlock()

		items, err := c.load(context.WithoutCancel(ctx))

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			if gen == c.gen {
				c.items, c.loaded = nil, false
			}
			return nil, err
		}
		if items == nil {
			items = []core.Item{}
		}
		if gen != c.gen {
			c.logger.Debugf("Discarding %d items loaded before a reset", len(items))
			return items, nil
		}
		c.items, c.loaded = items, true
		c.logger.Debugf("Cached %d items", len(items))
		return items, nil
	})

	select {
	case <-ctx.Done():
		return []core.Item{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.logger.Warnf("Loading items failed: %v", res.Err)
			return []core.Item{}, res.Err
		}
		return res.Val.([]core.Item), nil
	}
}

// Reset drops the cached set; the next GetOrLoad fetches again, even when a
// load started before the reset is still running.
func (c *ItemCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items, c.loaded = nil, false
	c.gen++
	c.group.Forget("items")
}

// Search filters the cached items by substring.
func (c *ItemCache) Search(ctx context.Context, query string) ([]core.Result, error) {
	items, err := c.GetOrLoad(ctx)
	if err != nil {
		return []core.Result{}, err
	}
	matched := core.FilterItems(items, query)
	results := make([]core.Result, len(matched))
	for i, item := range matched {
		results[i] = item.Result()
	}
	return results, nil
}
