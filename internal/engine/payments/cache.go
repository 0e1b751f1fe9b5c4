package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LinkCache remembers the token issued for an (organization, plan) pair so
// repeated clicks skip the database lookup. Entries are hints: callers must
// still confirm a pending order exists for the token.
type LinkCache interface {
	Get(ctx context.Context, orgID, planID string) (string, bool)
	Set(ctx context.Context, orgID, planID, token string)
	Delete(ctx context.Context, orgID, planID string)
}

func linkKey(orgID, planID string) string {
	return orgID + ":" + planID
}

type cachedLink struct {
	token    string
	cachedAt time.Time
}

type MemoryLinkCache struct {
	store sync.Map // map[org:plan]*cachedLink
	ttl   time.Duration
}

func NewMemoryLinkCache(ttl time.Duration) *MemoryLinkCache {
	return &MemoryLinkCache{ttl: ttl}
}

func (c *MemoryLinkCache) Get(_ context.Context, orgID, planID string) (string, bool) {
	key := linkKey(orgID, planID)
	val, ok := c.store.Load(key)
	if !ok {
		return "", false
	}

	link := val.(*cachedLink)
	if c.ttl > 0 && time.Since(link.cachedAt) > c.ttl {
		c.store.Delete(key)
		return "", false
	}
	return link.token, true
}

func (c *MemoryLinkCache) Set(_ context.Context, orgID, planID, token string) {
	c.store.Store(linkKey(orgID, planID), &cachedLink{token: token, cachedAt: time.Now()})
}

func (c *MemoryLinkCache) Delete(_ context.Context, orgID, planID string) {
	c.store.Delete(linkKey(orgID, planID))
}

// RedisLinkCache shares issued links across server instances. Redis errors
// degrade to cache misses.
type RedisLinkCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisLinkCache(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisLinkCache {
	return &RedisLinkCache{client: client, keyPrefix: keyPrefix + "paylink:", ttl: ttl}
}

func (c *RedisLinkCache) Get(ctx context.Context, orgID, planID string) (string, bool) {
	token, err := c.client.Get(ctx, c.keyPrefix+linkKey(orgID, planID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logCacheError(err, "get")
		}
		return "", false
	}
	return token, true
}

func (c *RedisLinkCache) Set(ctx context.Context, orgID, planID, token string) {
	if err := c.client.Set(ctx, c.keyPrefix+linkKey(orgID, planID), token, c.ttl).Err(); err != nil {
		logCacheError(err, "set")
	}
}

func (c *RedisLinkCache) Delete(ctx context.Context, orgID, planID string) {
	if err := c.client.Del(ctx, c.keyPrefix+linkKey(orgID, planID)).Err(); err != nil {
		logCacheError(err, "delete")
	}
}
