package data

import (
	"strings"
	"sync"
	"time"

	"github.com/anthropics/trello-discord-bridge/internal/biz/repo"
)

// healthCheckKey lives in its own namespace so the self-test can never
// collide with real entries
const healthCheckKey = "health:selftest"

// CacheConfig holds the cache tunables
type CacheConfig struct {
	// MappingTTL applies to channel/default entries (minutes scale)
	MappingTTL time.Duration
	// ValidationTTL applies to board/list existence entries (hour scale;
	// board existence changes far less often than channel routing)
	ValidationTTL time.Duration
	// MaxEntries caps the key count; at capacity entries may be evicted
	// without notice
	MaxEntries int
	// SweepInterval is how often expired entries are swept
	SweepInterval time.Duration
}

// DefaultCacheConfig returns the default cache tunables
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MappingTTL:    5 * time.Minute,
		ValidationTTL: 1 * time.Hour,
		MaxEntries:    10000,
		SweepInterval: 1 * time.Minute,
	}
}

type cacheEntry struct {
	value     any
	setAt     time.Time
	expiresAt time.Time
}

// memoryCache implements the TTL config cache. Entries are projections
// of store rows, never canonical state.
type memoryCache struct {
	cfg CacheConfig

	mu      sync.RWMutex
	entries map[string]cacheEntry
	hits    int64
	misses  int64
	sets    int64
	deletes int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMemoryCache creates a new in-memory TTL cache and starts its sweeper
func NewMemoryCache(cfg CacheConfig) repo.ConfigCache {
	if cfg.MappingTTL <= 0 {
		cfg.MappingTTL = DefaultCacheConfig().MappingTTL
	}
	if cfg.ValidationTTL <= 0 {
		cfg.ValidationTTL = DefaultCacheConfig().ValidationTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultCacheConfig().SweepInterval
	}

	c := &memoryCache{
		cfg:     cfg,
		entries: make(map[string]cacheEntry),
		stopCh:  make(chan struct{}),
	}

	c.wg.Add(1)
	go c.sweepLoop()

	return c
}

// Get returns the value for key; expired entries count as misses
func (c *memoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	c.hits++
	return e.value, true
}

// Set stores value under key; ttl <= 0 picks the namespace default:
// the hour-scale validation TTL for board/list keys, the mapping TTL
// for everything else
func (c *memoryCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		if repo.IsValidationKey(key) {
			ttl = c.cfg.ValidationTTL
		} else {
			ttl = c.cfg.MappingTTL
		}
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cfg.MaxEntries {
		c.evictLocked(now)
	}

	c.entries[key] = cacheEntry{value: value, setAt: now, expiresAt: now.Add(ttl)}
	c.sets++
}

// Delete removes one entry
func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.deletes++
	}
}

// InvalidateGuild removes all and only the entries namespaced to guildID:
// every channel:{guild}:* entry plus the default:{guild} entry
func (c *memoryCache) InvalidateGuild(guildID string) int {
	prefix := repo.GuildKeyPrefix(guildID)
	defaultKey := repo.DefaultKey(guildID)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if key == defaultKey || strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	c.deletes += int64(removed)
	return removed
}

// HealthCheck performs a set/get/delete round trip on the reserved key
func (c *memoryCache) HealthCheck() repo.CacheHealth {
	probe := time.Now().UnixNano()
	c.Set(healthCheckKey, probe, time.Minute)
	got, ok := c.Get(healthCheckKey)
	c.Delete(healthCheckKey)

	healthy := ok && got == probe

	c.mu.RLock()
	stats := repo.CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Sets:    c.sets,
		Deletes: c.deletes,
		Entries: len(c.entries),
	}
	c.mu.RUnlock()

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	return repo.CacheHealth{Healthy: healthy, Stats: stats}
}

// Close stops the background sweeper
func (c *memoryCache) Close() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *memoryCache) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.SweepInterval)
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

func (c *memoryCache) sweep() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// evictLocked makes room for one new entry: expired entries first, then
// the oldest-set entry. Callers must hold the write lock.
func (c *memoryCache) evictLocked(now time.Time) {
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.cfg.MaxEntries {
		return
	}

	var oldestKey string
	var oldestAt time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.setAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.setAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
