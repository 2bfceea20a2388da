// Package registry caches publisher lookups in front of the store, per
// spec.md §4.7, as a bounded LRU plus singleflight that also caches
// negative lookups so a storm of unknown-publisher names can't repeatedly
// hit the store.
package registry

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"oracleflow/internal/domain"
)

// Store is the narrow capability this cache needs from internal/store.
type Store interface {
	GetPublisher(ctx context.Context, name string) (*domain.Publisher, error)
}

const negativeTTL = 10 * time.Second

type entry struct {
	pub       *domain.Publisher
	fetchedAt time.Time
	negative  bool
}

// Cache is a read-through cache of publisher records.
type Cache struct {
	store Store
	ttl   time.Duration
	lru   *lru.Cache[string, entry]
	group singleflight.Group
}

// New builds a Cache with the given store and bounded capacity. ttl governs
// how long a positive lookup is trusted before being refreshed.
func New(store Store, capacity int, ttl time.Duration) (*Cache, error) {
	c, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("registry: new lru: %w", err)
	}
	return &Cache{store: store, ttl: ttl, lru: c}, nil
}

// Lookup resolves a publisher by name, coalescing concurrent misses for the
// same name into a single store call.
func (c *Cache) Lookup(ctx context.Context, name string) (*domain.Publisher, error) {
	if e, ok := c.lru.Get(name); ok && !c.expired(e) {
		if e.negative {
			return nil, nil
		}
		return e.pub, nil
	}

	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		if e, ok := c.lru.Get(name); ok && !c.expired(e) {
			if e.negative {
				return nil, nil
			}
			return e.pub, nil
		}
		pub, err := c.store.GetPublisher(ctx, name)
		if err != nil {
			return nil, err
		}
		if pub == nil {
			c.lru.Add(name, entry{fetchedAt: time.Now(), negative: true})
			return nil, nil
		}
		c.lru.Add(name, entry{pub: pub, fetchedAt: time.Now()})
		return pub, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*domain.Publisher), nil
}

// Invalidate forces the next Lookup for name to bypass the cache.
func (c *Cache) Invalidate(name string) {
	c.lru.Remove(name)
}

func (c *Cache) expired(e entry) bool {
	ttl := c.ttl
	if e.negative {
		ttl = negativeTTL
	}
	return time.Since(e.fetchedAt) > ttl
}
