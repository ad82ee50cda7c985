package store

import (
	"context"
	"encoding/json"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Cache is a byte cache with expiry
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Lookups is the part of Backend used to resolve booking references
type Lookups interface {
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	GetProduct(ctx context.Context, id string) (*models.ProductRecord, error)
}

// CachedLookups resolves users and products through a read-through cache.
// A nil cache disables caching.
type CachedLookups struct {
	backend Lookups
	cache   Cache
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCachedLookups creates a read-through lookup cache
func NewCachedLookups(backend Lookups, cache Cache, ttl time.Duration) *CachedLookups {
	return &CachedLookups{
		backend: backend,
		cache:   cache,
		ttl:     ttl,
		logger:  util.GetLogger(),
	}
}

func userKey(id string) string    { return "user-info:" + id }
func productKey(id string) string { return "products:" + id }

// GetUser resolves a user profile
func (c *CachedLookups) GetUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if c.fromCache(ctx, userKey(userID), &profile) {
		util.LookupCacheHitsTotal.WithLabelValues("user").Inc()
		return &profile, nil
	}

	p, err := c.backend.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.toCache(ctx, userKey(userID), p)
	return p, nil
}

// GetProduct resolves a catalog entry
func (c *CachedLookups) GetProduct(ctx context.Context, productID string) (*models.ProductRecord, error) {
	var product models.ProductRecord
	if c.fromCache(ctx, productKey(productID), &product) {
		util.LookupCacheHitsTotal.WithLabelValues("product").Inc()
		return &product, nil
	}

	p, err := c.backend.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	c.toCache(ctx, productKey(productID), p)
	return p, nil
}

// InvalidateUser drops a cached profile
func (c *CachedLookups) InvalidateUser(ctx context.Context, userID string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, userKey(userID))
}

func (c *CachedLookups) fromCache(ctx context.Context, key string, dst interface{}) bool {
	if c.cache == nil {
		return false
	}
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Cache read failed, falling back to store",
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CachedLookups) toCache(ctx context.Context, key string, v interface{}) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}
