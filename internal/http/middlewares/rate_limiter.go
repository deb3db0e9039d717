package middlewares

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// CounterStore counts hits per key in a fixed window. It returns the count
// after this hit and when the window ends.
type CounterStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}

type RateLimiter struct {
	store  CounterStore
	window time.Duration
	limit  int64
}

func NewRateLimiter(store CounterStore, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:  store,
		limit:  int64(limit),
		window: window,
	}
}

// RateLimiterMiddleware enforces the limit for a derived key. A store error
// lets the request through.
func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			key = clientIP(c)
		}

		count, windowEnd, err := rl.store.Hit(c.Request.Context(), "ratelimit:"+c.FullPath()+":"+key, rl.window)
		if err != nil {
			c.Next()
			return
		}

		if count > rl.limit {
			retryAfter := int(time.Until(windowEnd).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			abort(c, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again shortly.", nil)
			return
		}

		c.Next()
	}
}

// MemoryStore is the single-instance fallback when Redis is not configured.
type MemoryStore struct {
	mu        sync.Mutex
	clients   map[string]*clientBucket
	now       func() time.Time
	nextSweep time.Time
}

type clientBucket struct {
	count     int64
	windowEnd time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clients: make(map[string]*clientBucket), now: time.Now}
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Expired buckets are dropped at most once per window.
	if now.After(s.nextSweep) {
		for k, b := range s.clients {
			if now.After(b.windowEnd) {
				delete(s.clients, k)
			}
		}
		s.nextSweep = now.Add(window)
	}

	b, ok := s.clients[key]
	if !ok || now.After(b.windowEnd) {
		b = &clientBucket{windowEnd: now.Add(window)}
		s.clients[key] = b
	}
	b.count++
	return b.count, b.windowEnd, nil
}

// RedisStore shares counters across API instances.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), time.Now().Add(remaining), nil
}

// KeyByIP is for unauthenticated endpoints.
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)
	if err == nil && host != "" {
		return host
	}

	return ip
}
