package membership

import (
	"context"
	"log/slog"

	"github.com/geocoder89/labshare/internal/cache"
)

type roleSource interface {
	RoleOf(ctx context.Context, userID int64) (string, error)
}

// CachedResolver puts a Redis role cache in front of RoleOf. Only the
// authorization gate uses it; refresh and login always read the database.
type CachedResolver struct {
	next  roleSource
	cache *cache.RoleCache
	log   *slog.Logger
}

func NewCachedResolver(next roleSource, c *cache.RoleCache, log *slog.Logger) *CachedResolver {
	if log == nil {
		log = slog.Default()
	}
	return &CachedResolver{next: next, cache: c, log: log}
}

func (r *CachedResolver) RoleOf(ctx context.Context, userID int64) (string, error) {
	if r.cache == nil {
		return r.next.RoleOf(ctx, userID)
	}

	if role, ok := r.cache.Get(ctx, userID); ok {
		return role, nil
	}

	role, err := r.next.RoleOf(ctx, userID)
	if err != nil {
		return "", err
	}

	if err := r.cache.Set(ctx, userID, role); err != nil {
		r.log.Warn("role cache set failed", "user_id", userID, "err", err)
	}
	return role, nil
}

// Forget evicts a cached role. Failures are logged; the entry still expires
// on its TTL.
func (r *CachedResolver) Forget(ctx context.Context, userID int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, userID); err != nil {
		r.log.Warn("role cache delete failed", "user_id", userID, "err", err)
	}
}
