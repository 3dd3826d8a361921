// Package cache provides a bounded, TTL-based in-process key/value store
// with hit/miss statistics. Eviction under size pressure removes the
// oldest-inserted surviving key (insertion order, not access order), and
// only when a new key would exceed capacity; updating an existing key
// keeps its insertion slot. Expired entries are deleted lazily on Get
// (counting a miss) and swept by a background janitor.
package cache

import (
	"context"
	"sync"
	"time"

	"uplift/internal/logging"
)

// Config controls capacity, default lifetime, and sweep cadence.
type Config struct {
	MaxSize         int
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns the defaults used when sections are omitted from
// the application config.
func DefaultConfig() Config {
	return Config{
		MaxSize:         500,
		DefaultTTL:      time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits    int64
	Misses  int64
	Size    int
	HitRate float64
}

type cacheEntry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string // insertion order, oldest first
	hits       int64
	misses     int64
	maxSize    int
	defaultTTL time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New builds a cache and starts the janitor when CleanupInterval > 0.
// Call Close to stop the janitor.
func New(cfg Config) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	c := &Cache{
		entries:    make(map[string]*cacheEntry),
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go c.janitor(cfg.CleanupInterval)
	} else {
		close(c.doneCh)
	}
	return c
}

// Get returns the live value for key. An expired entry is deleted and
// counted as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.removeLocked(key)
		c.misses++
		logging.CacheDebug("lazy-expired key %q", key)
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key. A ttl <= 0 uses the default TTL. When a new
// key would exceed capacity, the oldest-inserted surviving key is evicted
// first; overwriting an existing key never evicts.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.createdAt = now
		e.expiresAt = now.Add(ttl)
		return
	}

	if len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.removeLocked(oldest)
		logging.CacheDebug("evicted oldest key %q for %q", oldest, key)
	}

	c.entries[key] = &cacheEntry{value: value, createdAt: now, expiresAt: now.Add(ttl)}
	c.order = append(c.order, key)
}

// Has reports whether key holds a live value. It does not touch stats.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && !time.Now().After(e.expiresAt)
}

// Delete removes key; reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	c.removeLocked(key)
	return true
}

// Clear removes all entries. Stats are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
}

// GetOrSet returns the cached value for key, or invokes factory, stores
// the result, and returns it. Factory errors are not cached.
func (c *Cache) GetOrSet(key string, factory func() (any, error), ttl time.Duration) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := factory()
	if err != nil {
		return nil, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Wrap returns a memoized version of fn keyed by keyFn. Only successful
// calls are cached.
func (c *Cache) Wrap(fn func(context.Context, any) (any, error), keyFn func(any) string, ttl time.Duration) func(context.Context, any) (any, error) {
	return func(ctx context.Context, input any) (any, error) {
		key := keyFn(input)
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn(ctx, input)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	}
}

// GetStats returns a snapshot of hit/miss counters and current size.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Close stops the janitor. Safe to call more than once.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

// removeLocked deletes key from the entry map and its insertion slot.
// Callers hold c.mu.
func (c *Cache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// janitor sweeps expired entries on a fixed interval.
func (c *Cache) janitor(interval time.Duration) {
	defer close(c.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes every expired entry.
func (c *Cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			c.removeLocked(key)
			removed++
		}
	}
	if removed > 0 {
		logging.CacheDebug("sweep removed %d expired entries", removed)
	}
}
