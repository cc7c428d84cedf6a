package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"chatmakere/internal/models"
)

// UserLoader is the source of truth behind the cache.
type UserLoader interface {
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
}

// ProfileCache reads profiles cache-aside. With a nil client it reads the
// loader directly. Concurrent misses for one user share a single load.
type ProfileCache struct {
	rdb   *redis.Client
	users UserLoader
	ttl   time.Duration
	loads singleflight.Group
}

func NewProfileCache(rdb *redis.Client, users UserLoader, ttl time.Duration) *ProfileCache {
	return &ProfileCache{rdb: rdb, users: users, ttl: ttl}
}

func ProfileKey(userID uuid.UUID) string {
	return "user:profile:" + userID.String()
}

// GetProfile returns the cached profile or loads and caches it. Redis
// failures degrade to a direct load.
func (c *ProfileCache) GetProfile(ctx context.Context, userID uuid.UUID) (models.User, error) {
	key := ProfileKey(userID)
	if c.rdb != nil {
		user, hit, err := getJSON[models.User](ctx, c.rdb, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("profile cache read failed")
		} else if hit {
			return user, nil
		}
	}

	// The load is shared with other callers, so it outlives this caller's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	val, err, _ := c.loads.Do(key, func() (any, error) {
		user, err := c.users.GetUser(loadCtx, userID)
		if err != nil {
			return models.User{}, err
		}
		if c.rdb != nil {
			if err := setJSON(loadCtx, c.rdb, key, user, c.ttl); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("profile cache write failed")
			}
		}
		return user, nil
	})
	if err != nil {
		return models.User{}, err
	}
	return val.(models.User), nil
}

// Invalidate drops the cached profile of userID.
func (c *ProfileCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, ProfileKey(userID)).Err()
}
