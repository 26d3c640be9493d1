package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/launchkit/identity/internal/constants"
	"github.com/launchkit/identity/internal/dto"
	ctxutil "github.com/launchkit/identity/pkg/context"
	"github.com/launchkit/identity/pkg/logger"
	"github.com/launchkit/identity/pkg/redis"
)

// ProfileCache is a cache-aside layer over the user profile lookups
// backing GET /api/auth/me. A nil *ProfileCache (or one built over a nil
// redis client) is disabled and every method no-ops. Cache failures never
// fail the request; the database remains the source of truth.
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProfileCache(client *redis.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *ProfileCache) key(userID uuid.UUID) string {
	return constants.CacheKeyProfile + userID.String()
}

func (c *ProfileCache) Get(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, bool) {
	if c == nil || !c.client.Enabled() {
		return nil, false
	}

	ctx = ctxutil.WithOperation(ctx, "service", "ProfileCacheGet")

	var profile dto.UserResponse
	hit, err := c.client.GetJSON(ctx, c.key(userID), &profile)
	if err != nil {
		logger.WarnWithContext(ctx, "Profile cache read failed").
			String("user_id", userID.String()).
			Err(err).
			Log()
		return nil, false
	}
	if !hit {
		return nil, false
	}

	logger.DebugWithContext(ctx, "Profile cache hit").
		String("user_id", userID.String()).
		Log()

	return &profile, true
}

func (c *ProfileCache) Set(ctx context.Context, userID uuid.UUID, profile *dto.UserResponse) {
	if c == nil || !c.client.Enabled() {
		return
	}

	ctx = ctxutil.WithOperation(ctx, "service", "ProfileCacheSet")

	if err := c.client.SetJSON(ctx, c.key(userID), profile, c.ttl); err != nil {
		logger.WarnWithContext(ctx, "Profile cache write failed").
			String("user_id", userID.String()).
			Err(err).
			Log()
	}
}

func (c *ProfileCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if c == nil || !c.client.Enabled() {
		return
	}

	ctx = ctxutil.WithOperation(ctx, "service", "ProfileCacheInvalidate")

	if err := c.client.Delete(ctx, c.key(userID)); err != nil {
		logger.WarnWithContext(ctx, "Profile cache invalidation failed").
			String("user_id", userID.String()).
			Err(err).
			Log()
	}
}
