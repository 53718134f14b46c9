package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NameCache stores company display names by canonical ticker.
type NameCache interface {
	// Get returns the cached name and whether it was present.
	Get(ctx context.Context, ticker string) (string, bool, error)
	Set(ctx context.Context, ticker, name string) error
}

// MemoryNameCache keeps names for the lifetime of the process. It has no
// eviction; the set of tickers a guild looks up is small.
type MemoryNameCache struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewMemoryNameCache() *MemoryNameCache {
	return &MemoryNameCache{names: make(map[string]string)}
}

func (c *MemoryNameCache) Get(_ context.Context, ticker string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[ticker]
	return name, ok, nil
}

func (c *MemoryNameCache) Set(_ context.Context, ticker, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[ticker] = name
	return nil
}

// Len returns the number of cached names.
func (c *MemoryNameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

// RedisNameCache shares names across instances through Redis. A zero TTL
// stores keys without expiry.
type RedisNameCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisNameCache(rdb *redis.Client, ttl time.Duration) *RedisNameCache {
	return &RedisNameCache{rdb: rdb, ttl: ttl}
}

func (c *RedisNameCache) Get(ctx context.Context, ticker string) (string, bool, error) {
	name, err := c.rdb.Get(ctx, nameKey(ticker)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", ticker, err)
	}
	return name, true, nil
}

func (c *RedisNameCache) Set(ctx context.Context, ticker, name string) error {
	if err := c.rdb.Set(ctx, nameKey(ticker), name, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", ticker, err)
	}
	return nil
}

func nameKey(ticker string) string { return fmt.Sprintf("company:name:%s", ticker) }
