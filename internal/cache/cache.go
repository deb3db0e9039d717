// Package cache holds short-lived, Redis-backed lookups shared by every API
// instance. Nothing here is kept in process memory.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// kv is the slice of the go-redis API the role cache needs; *redis.Client
// satisfies it.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RoleCache struct {
	rdb    kv
	ttl    time.Duration
	prefix string
}

func NewRoleCache(rdb kv, ttl time.Duration) *RoleCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &RoleCache{
		rdb:    rdb,
		ttl:    ttl,
		prefix: "labshare:role:",
	}
}

func (c *RoleCache) key(userID int64) string {
	return c.prefix + strconv.FormatInt(userID, 10)
}

// Get reports a miss on any Redis failure; the caller falls through to the
// database.
func (c *RoleCache) Get(ctx context.Context, userID int64) (string, bool) {
	val, err := c.rdb.Get(ctx, c.key(userID)).Result()
	if err != nil {
		return "", false
	}
	return val, val != ""
}

func (c *RoleCache) Set(ctx context.Context, userID int64, role string) error {
	return c.rdb.Set(ctx, c.key(userID), role, c.ttl).Err()
}

func (c *RoleCache) Delete(ctx context.Context, userID int64) error {
	err := c.rdb.Del(ctx, c.key(userID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
