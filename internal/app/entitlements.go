package app

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"surgicalprep-study/internal/domain"
)

// DefaultSnapshotTTL is how long a fetched entitlement snapshot is trusted
// before a gating decision forces a refetch.
const DefaultSnapshotTTL = 5 * time.Minute

// EntitlementCache holds the last-fetched entitlement snapshot and plan
// catalog. Entries are replaced wholesale on a successful fetch, never
// merged field by field. A failed fetch keeps the previous value: a stale
// snapshot is strictly better than none for the fail-open gate.
type EntitlementCache struct {
	source EntitlementSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu            sync.RWMutex
	status        *domain.EntitlementSnapshot
	statusFetched time.Time
	statusErr     string
	plans         []domain.PlanInfo
	plansFetched  time.Time
}

func NewEntitlementCache(source EntitlementSource, ttl time.Duration) *EntitlementCache {
	return NewEntitlementCacheWithClock(source, ttl, time.Now)
}

// NewEntitlementCacheWithClock allows deterministic freshness in tests.
func NewEntitlementCacheWithClock(source EntitlementSource, ttl time.Duration, now func() time.Time) *EntitlementCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &EntitlementCache{source: source, ttl: ttl, clock: now}
}

// Status returns the current snapshot, fetching when the cache is stale or
// force is set. Concurrent callers share one in-flight fetch. On fetch
// failure the stale snapshot (possibly nil) is returned alongside the error.
func (c *EntitlementCache) Status(ctx context.Context, force bool) (*domain.EntitlementSnapshot, error) {
	if !force {
		c.mu.RLock()
		if c.status != nil && c.clock().Sub(c.statusFetched) < c.ttl {
			snap := c.status
			c.mu.RUnlock()
			return snap, nil
		}
		c.mu.RUnlock()
	}

	result, err, _ := c.sf.Do("status", func() (interface{}, error) {
		// Re-check freshness in case another caller just filled the cache.
		if !force {
			c.mu.RLock()
			if c.status != nil && c.clock().Sub(c.statusFetched) < c.ttl {
				snap := c.status
				c.mu.RUnlock()
				return snap, nil
			}
			c.mu.RUnlock()
		}

		snap, err := c.source.SubscriptionStatus(ctx)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.statusErr = err.Error()
			return c.status, err
		}
		c.status = &snap
		c.statusFetched = c.clock()
		c.statusErr = ""
		return c.status, nil
	})
	if result == nil {
		return nil, err
	}
	return result.(*domain.EntitlementSnapshot), err
}

// Snapshot returns whatever is cached without touching the network.
func (c *EntitlementCache) Snapshot() *domain.EntitlementSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Invalidate marks the status entry stale so the next gating decision
// refetches. Called after every completed session, since a finished quiz
// consumes one unit of the daily quota.
func (c *EntitlementCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusFetched = time.Time{}
}

// LastError reports the most recent fetch failure, empty when the last
// fetch succeeded.
func (c *EntitlementCache) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusErr
}

// Plans returns the plan catalog on the same TTL/single-flight discipline.
func (c *EntitlementCache) Plans(ctx context.Context) ([]domain.PlanInfo, error) {
	c.mu.RLock()
	if c.plans != nil && c.clock().Sub(c.plansFetched) < c.ttl {
		plans := c.plans
		c.mu.RUnlock()
		return plans, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("plans", func() (interface{}, error) {
		c.mu.RLock()
		if c.plans != nil && c.clock().Sub(c.plansFetched) < c.ttl {
			plans := c.plans
			c.mu.RUnlock()
			return plans, nil
		}
		c.mu.RUnlock()

		plans, err := c.source.AvailablePlans(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.plans = plans
		c.plansFetched = c.clock()
		c.mu.Unlock()
		return plans, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.PlanInfo), nil
}
