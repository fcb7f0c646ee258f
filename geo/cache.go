package geo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 24 * time.Hour

// CachedLocator wraps a Locator with a shared Redis cache. Only concrete
// locations are cached; Unknown passes through so a transient upstream
// failure is retried on the next lookup. Cache failures degrade to the
// underlying locator.
type CachedLocator struct {
	next   Locator
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewCachedLocator decorates next with a Redis cache using the given
// key prefix. A non-positive ttl defaults to 24h.
func NewCachedLocator(next Locator, redisClient redis.UniversalClient, prefix string, ttl time.Duration) *CachedLocator {
	if prefix == "" {
		prefix = "ak"
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedLocator{next: next, redis: redisClient, prefix: prefix, ttl: ttl}
}

func (c *CachedLocator) key(ip string) string {
	return c.prefix + ":geo:" + ip
}

// Lookup consults the cache before the underlying locator.
func (c *CachedLocator) Lookup(ctx context.Context, ip string) Location {
	if ip == "" {
		return Unknown
	}

	// A cache miss, an unreachable cache, and a corrupt entry all fall
	// through to the underlying locator.
	if data, err := c.redis.Get(ctx, c.key(ip)).Bytes(); err == nil {
		var loc Location
		if json.Unmarshal(data, &loc) == nil && !loc.IsUnknown() {
			return loc
		}
	}

	loc := c.next.Lookup(ctx, ip)
	if loc.IsUnknown() {
		return Unknown
	}

	if data, err := json.Marshal(loc); err == nil {
		_ = c.redis.Set(ctx, c.key(ip), data, c.ttl).Err()
	}
	return loc
}
