package masterdata

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "masterdata:exists"

// Cache remembers positive existence answers in Redis.
// Negative answers always go to the store so newly created records are seen immediately.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Wrap decorates next with the cache. A nil cache returns next unchanged.
func (c *Cache) Wrap(next Checker) Checker {
	if c == nil || c.client == nil {
		return next
	}
	return &cachedChecker{next: next, cache: c}
}

// Invalidate drops a remembered answer, used when reference data is removed.
func (c *Cache) Invalidate(ctx context.Context, kind Kind, key ...string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(kind, key)).Err()
}

type cachedChecker struct {
	next  Checker
	cache *Cache
}

func (c *cachedChecker) Exists(ctx context.Context, kind Kind, key ...string) (bool, error) {
	if _, err := lookup(kind, key); err != nil {
		return false, err
	}
	k := cacheKey(kind, key)
	n, err := c.cache.client.Exists(ctx, k).Result()
	switch {
	case err != nil:
		c.cache.logger.Warn("masterdata cache read", slog.String("key", k), slog.Any("error", err))
	case n > 0:
		return true, nil
	}
	found, err := c.next.Exists(ctx, kind, key...)
	if err != nil || !found {
		return found, err
	}
	if err := c.cache.client.Set(ctx, k, "1", c.cache.ttl).Err(); err != nil {
		c.cache.logger.Warn("masterdata cache write", slog.String("key", k), slog.Any("error", err))
	}
	return true, nil
}

func cacheKey(kind Kind, key []string) string {
	return cacheKeyPrefix + ":" + string(kind) + ":" + strings.Join(key, "|")
}
