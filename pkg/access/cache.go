package access

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const cacheKeyPrefix = "constel:perm:v1"

// ResolutionCache is an optional Redis-backed cache of resolved permission
// sets. Entries are TTL-bounded and invalidated by the consistency engine
// and by profile/group writes, so resolution stays a function of current
// state; all operations are best-effort and a cache failure never fails a
// resolution.
type ResolutionCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewResolutionCache wraps an existing Redis client. A non-positive ttl
// falls back to five minutes.
func NewResolutionCache(client *redis.Client, ttl time.Duration) *ResolutionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResolutionCache{redis: client, ttl: ttl}
}

// Get returns the cached set for (user, module, project) if present.
func (c *ResolutionCache) Get(ctx context.Context, userID string, module Module, projectID string) (PermissionSet, bool) {
	data, err := c.redis.Get(ctx, cacheKey(userID, module, projectID)).Result()
	if err != nil {
		return nil, false
	}

	var perms []PermissionID
	if err := json.Unmarshal([]byte(data), &perms); err != nil {
		return nil, false
	}
	return NewPermissionSet(perms...), true
}

// Set stores the resolved set and records the key on the user's index so
// Invalidate can find it later.
func (c *ResolutionCache) Set(ctx context.Context, userID string, module Module, projectID string, set PermissionSet) {
	data, err := json.Marshal(set.Values())
	if err != nil {
		return
	}

	key := cacheKey(userID, module, projectID)
	c.redis.Set(ctx, key, data, c.ttl)

	idx := indexKey(userID)
	c.redis.SAdd(ctx, idx, key)
	c.redis.Expire(ctx, idx, c.ttl)
}

// Invalidate drops every cached resolution for the user.
func (c *ResolutionCache) Invalidate(ctx context.Context, userID string) {
	idx := indexKey(userID)
	keys, err := c.redis.SMembers(ctx, idx).Result()
	if err != nil {
		return
	}
	if len(keys) > 0 {
		c.redis.Del(ctx, keys...)
	}
	c.redis.Del(ctx, idx)
}

// InvalidateProject drops the cached project-scoped resolution only.
func (c *ResolutionCache) InvalidateProject(ctx context.Context, userID, projectID string) {
	key := cacheKey(userID, ModuleConstellation, projectID)
	c.redis.Del(ctx, key)
	c.redis.SRem(ctx, indexKey(userID), key)
}

// Flush drops every cached resolution. Profile and group writes use it: a
// shared definition change can affect any user's resolved set, and there
// is no reverse index from profiles to users.
func (c *ResolutionCache) Flush(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, cacheKeyPrefix+":*", 256).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			c.redis.Del(ctx, keys...)
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

func cacheKey(userID string, module Module, projectID string) string {
	if projectID == "" {
		projectID = "-"
	}
	return fmt.Sprintf("%s:%s:%s:%s", cacheKeyPrefix, userID, module, projectID)
}

func indexKey(userID string) string {
	return fmt.Sprintf("%s:idx:%s", cacheKeyPrefix, userID)
}
