package units

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheAllow    = "1"
	cacheDisallow = "0"
	cacheMissing  = "-"
)

// CachedCatalog fronts a Catalog with Redis and collapses concurrent misses.
type CachedCatalog struct {
	next   Catalog
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedCatalog wraps next with a Redis cache.
func NewCachedCatalog(next Catalog, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCatalog{next: next, client: client, ttl: ttl, logger: logger}
}

// AllowsDecimal implements Catalog.
func (c *CachedCatalog) AllowsDecimal(ctx context.Context, tenantID int64, unitCode string) (bool, error) {
	key := cacheKey(tenantID, unitCode)
	if c.client != nil {
		cached, err := c.client.Get(ctx, key).Result()
		switch {
		case err == nil:
			return decode(cached)
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("unit cache read", slog.String("key", key), slog.Any("error", err))
		}
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		allow, err := c.next.AllowsDecimal(ctx, tenantID, unitCode)
		value := cacheDisallow
		switch {
		case errors.Is(err, ErrUnitNotFound):
			value = cacheMissing
		case err != nil:
			return "", err
		case allow:
			value = cacheAllow
		}
		if c.client != nil {
			if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
				c.logger.Warn("unit cache write", slog.String("key", key), slog.Any("error", err))
			}
		}
		return value, nil
	})
	if err != nil {
		return false, err
	}
	return decode(v.(string))
}

// Invalidate drops the cached policy for a unit.
func (c *CachedCatalog) Invalidate(ctx context.Context, tenantID int64, unitCode string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(tenantID, unitCode)).Err()
}

func decode(value string) (bool, error) {
	switch value {
	case cacheAllow:
		return true, nil
	case cacheMissing:
		return false, ErrUnitNotFound
	default:
		return false, nil
	}
}

func cacheKey(tenantID int64, unitCode string) string {
	return fmt.Sprintf("units:%d:%s:decimal", tenantID, unitCode)
}
