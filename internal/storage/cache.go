// cache.go - In-memory cache for reference data

package storage

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL applies when no TTL is configured.
const DefaultCacheTTL = 5 * time.Minute

// JobNameCache holds the active job names for a TTL. Eligible POs are never
// cached because every match changes them.
type JobNameCache struct {
	mu       sync.RWMutex
	jobs     []string
	loadedAt time.Time
	loaded   bool
	ttl      time.Duration

	now func() time.Time
}

// NewJobNameCache returns an empty cache. ttl <= 0 uses DefaultCacheTTL.
func NewJobNameCache(ttl time.Duration) *JobNameCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &JobNameCache{ttl: ttl, now: time.Now}
}

func (c *JobNameCache) fresh() bool {
	return c.loaded && c.now().Sub(c.loadedAt) < c.ttl
}

// GetOrLoad returns cached names or calls load when expired.
func (c *JobNameCache) GetOrLoad(ctx context.Context, load func(context.Context) ([]string, error)) ([]string, error) {
	c.mu.RLock()
	if c.fresh() {
		jobs := c.jobs
		c.mu.RUnlock()
		return jobs, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.fresh() {
		return c.jobs, nil
	}

	jobs, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.jobs = jobs
	c.loadedAt = c.now()
	c.loaded = true
	return jobs, nil
}

// Invalidate drops the cached names.
func (c *JobNameCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = nil
	c.loaded = false
}
