package rbac

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fieldsafe/fieldsafe/pkg/observability"
	"github.com/fieldsafe/fieldsafe/pkg/storage"
)

// DefaultCacheSize bounds the permission cache when no size is configured.
const DefaultCacheSize = 1024

// Checker resolves a user's effective permission set: the fixed role set
// merged with any per-user overrides. Merged sets are cached in an LRU
// keyed by user ID; mutations to users or overrides must call Invalidate.
type Checker struct {
	store   storage.UserStore
	cache   *lru.Cache[int64, PermissionSet]
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewChecker creates a permission checker. cacheSize <= 0 selects
// DefaultCacheSize; metrics may be nil.
func NewChecker(store storage.UserStore, cacheSize int, logger *observability.Logger, metrics *observability.Metrics) (*Checker, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[int64, PermissionSet](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create permission cache: %w", err)
	}
	return &Checker{store: store, cache: cache, logger: logger, metrics: metrics}, nil
}

// PermissionsFor returns the effective permission set for the user. The
// role comes from the caller's principal so a cache miss costs one
// override query, not a user load.
func (c *Checker) PermissionsFor(ctx context.Context, userID int64, role Role) (PermissionSet, error) {
	if set, ok := c.cache.Get(userID); ok {
		if c.metrics != nil {
			c.metrics.CacheHitsTotal.WithLabelValues("permissions").Inc()
		}
		return set, nil
	}
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues("permissions").Inc()
	}

	set := RolePermissions(role)
	overrides, err := c.store.ListPermissionOverrides(ctx, userID)
	if err != nil {
		return PermissionSet{}, fmt.Errorf("failed to load permission overrides: %w", err)
	}
	for _, o := range overrides {
		cap, err := ParseCapability(o.Capability)
		if err != nil {
			c.logger.WithField("user_id", userID).
				WithField("capability", o.Capability).
				Warn("ignoring override for unknown capability")
			continue
		}
		set = set.With(cap, o.Allowed)
	}

	c.cache.Add(userID, set)
	return set, nil
}

// Invalidate drops the cached set for one user. Call after changing the
// user's role or overrides.
func (c *Checker) Invalidate(userID int64) {
	c.cache.Remove(userID)
}

// InvalidateAll drops every cached set.
func (c *Checker) InvalidateAll() {
	c.cache.Purge()
}
