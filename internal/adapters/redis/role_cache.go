package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
	"github.com/joblink/joblink-web/internal/ports"
	"github.com/redis/go-redis/v9"
)

// noRole is cached for users without an assignment so repeated misses skip the backing store.
const noRole = "-"

var _ ports.RoleStore = (*RoleCache)(nil)

// RoleCacheOptions configure a RoleCache.
type RoleCacheOptions struct {
	Prefix string        // default "joblink:auth:"
	TTL    time.Duration // default 5m
	Logger *slog.Logger
}

// RoleCache is a read-through Redis cache in front of another RoleStore.
// Redis failures fall through to the backing store.
type RoleCache struct {
	client redis.UniversalClient
	next   ports.RoleStore
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRoleCache wraps next with a Redis cache.
func NewRoleCache(client redis.UniversalClient, next ports.RoleStore, opts RoleCacheOptions) *RoleCache {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleCache{
		client: client,
		next:   next,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With("component", "redis_role_cache"),
	}
}

func (c *RoleCache) key(userID string) string { return c.prefix + "role:" + userID }

// LookupRole reads through the cache to the backing store, caching misses as well as roles for the TTL.
func (c *RoleCache) LookupRole(ctx context.Context, userID string) (domainauth.Role, error) {
	cached, err := c.client.Get(ctx, c.key(userID)).Result()
	switch {
	case err == nil:
		if cached == noRole {
			return "", ports.ErrRoleNotFound
		}
		return domainauth.Role(cached), nil
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "role cache read failed", "user_id", userID, "error", err)
	}

	role, err := c.next.LookupRole(ctx, userID)
	value := string(role)
	switch {
	case errors.Is(err, ports.ErrRoleNotFound):
		value = noRole
	case err != nil:
		return "", err
	}

	if serr := c.client.Set(ctx, c.key(userID), value, c.ttl).Err(); serr != nil {
		c.logger.WarnContext(ctx, "role cache write failed", "user_id", userID, "error", serr)
	}
	if value == noRole {
		return "", ports.ErrRoleNotFound
	}
	return role, nil
}

// Invalidate drops the cached role for userID.
func (c *RoleCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate role %s: %w", userID, err)
	}
	return nil
}
