// Package optioncache fronts option-price lookups with Redis: a thin
// struct over *redis.Client, JSON-encoded values, key namespacing by
// lookup shape, TTL on write.
package optioncache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"oracleflow/internal/domain"
)

// Backing is the store fallback on a cache miss.
type Backing interface {
	GetOptionPriceAtBlock(ctx context.Context, network domain.Network, block int64, instrument string) (*domain.OptionPrice, error)
}

// Cache is a read-through Redis cache of option prices.
type Cache struct {
	client  *redis.Client
	backing Backing
	ttl     time.Duration
}

// New connects to redisURL and wraps backing as the miss path.
func New(ctx context.Context, redisURL string, backing Backing, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("optioncache: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("optioncache: connect: %w", err)
	}

	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: client, backing: backing, ttl: ttl}, nil
}

func key(network domain.Network, block int64, instrument string) string {
	return fmt.Sprintf("option:%s:%d:%s", network, block, instrument)
}

// GetOptionPriceAtBlock returns the cached price, falling through to the
// backing store and populating the cache on miss.
func (c *Cache) GetOptionPriceAtBlock(ctx context.Context, network domain.Network, block int64, instrument string) (*domain.OptionPrice, error) {
	k := key(network, block, instrument)

	data, err := c.client.Get(ctx, k).Result()
	if err == nil {
		var p domain.OptionPrice
		if jsonErr := json.Unmarshal([]byte(data), &p); jsonErr == nil {
			return &p, nil
		}
	} else if err != redis.Nil {
		return nil, fmt.Errorf("optioncache: get: %w", err)
	}

	price, err := c.backing.GetOptionPriceAtBlock(ctx, network, block, instrument)
	if err != nil || price == nil {
		return price, err
	}

	if encoded, err := json.Marshal(price); err == nil {
		ttl := c.ttl
		if block == domain.PendingBlock {
			ttl = 10 * time.Second
		}
		c.client.Set(ctx, k, encoded, ttl)
	}
	return price, nil
}

// Invalidate drops a cached price, used when a pending block's data is
// superseded by a confirmed one.
func (c *Cache) Invalidate(ctx context.Context, network domain.Network, block int64, instrument string) {
	c.client.Del(ctx, key(network, block, instrument))
}

// Close closes the underlying Redis connection.
func (c *Cache) Close() error { return c.client.Close() }
