package accessctl

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

// ============================================================================
// DECISION CACHE
// ============================================================================

const (
	// DefaultCacheTTL bounds how long a memoized decision may be served.
	DefaultCacheTTL = 60 * time.Second
	// DefaultSweepInterval is how often expired entries are reclaimed. The
	// sweep only frees memory; correctness comes from the read-time check.
	DefaultSweepInterval = 60 * time.Second
	// DefaultAuditQueueSize bounds the async audit channel.
	DefaultAuditQueueSize = 1024
)

// decisionKey identifies one memoized decision.
type decisionKey struct {
	UserID     string
	Resource   string
	Action     string
	ResourceID string
}

// String renders the canonical "{user}-{resource}-{action}-{resourceId}" form
// used by backends that need a flat key.
func (k decisionKey) String() string {
	return k.UserID + "-" + k.Resource + "-" + k.Action + "-" + k.ResourceID
}

type decisionCacheEntry struct {
	decision  *AccessDecision
	expiresAt time.Time
}

// decisionCache is the pluggable memoization backend. Implementations must be
// safe for concurrent use.
type decisionCache interface {
	Get(key decisionKey) (*AccessDecision, bool)
	Set(key decisionKey, dec *AccessDecision)
	Clear()
	Len() int
	Close()
}

// mapDecisionCache is the default backend: a mutex-guarded map with a
// background sweep.
type mapDecisionCache struct {
	mu      sync.RWMutex
	entries map[decisionKey]*decisionCacheEntry
	ttl     time.Duration
	stopCh  chan struct{}
}

func newMapDecisionCache(ttl, sweepInterval time.Duration) *mapDecisionCache {
	c := &mapDecisionCache{
		entries: make(map[decisionKey]*decisionCacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweepWorker(sweepInterval)
	}
	return c
}

func (c *mapDecisionCache) sweepWorker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *mapDecisionCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

func (c *mapDecisionCache) Get(key decisionKey) (*AccessDecision, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	// expiry is re-checked on every read; the sweep may lag
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.decision, true
}

func (c *mapDecisionCache) Set(key decisionKey, dec *AccessDecision) {
	dup := *dec
	entry := &decisionCacheEntry{decision: &dup, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

func (c *mapDecisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		delete(c.entries, k)
	}
}

func (c *mapDecisionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *mapDecisionCache) Close() {
	select {
	case <-c.stopCh:
		return
	default:
		close(c.stopCh)
	}
}

// RistrettoConfig sizes the optional ristretto cache backend. Zero fields
// take defaults.
type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

// ristrettoDecisionCache trades exact Len accounting for admission-policy
// scalability. TTL semantics match the map backend, including the read-time
// expiry check.
type ristrettoDecisionCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
	size  atomic.Int64 // approximate; admission rejects and evictions are not tracked
}

func newRistrettoDecisionCache(cfg RistrettoConfig, ttl time.Duration) (*ristrettoDecisionCache, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 100_000
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 10_000
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &ristrettoDecisionCache{cache: cache, ttl: ttl}, nil
}

func (c *ristrettoDecisionCache) Get(key decisionKey) (*AccessDecision, bool) {
	v, ok := c.cache.Get(key.String())
	if !ok {
		return nil, false
	}
	entry, ok := v.(*decisionCacheEntry)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.cache.Del(key.String())
		return nil, false
	}
	return entry.decision, true
}

func (c *ristrettoDecisionCache) Set(key decisionKey, dec *AccessDecision) {
	dup := *dec
	entry := &decisionCacheEntry{decision: &dup, expiresAt: time.Now().Add(c.ttl)}
	if c.cache.SetWithTTL(key.String(), entry, 1, c.ttl) {
		c.size.Add(1)
	}
}

func (c *ristrettoDecisionCache) Clear() {
	c.cache.Clear()
	c.size.Store(0)
}

func (c *ristrettoDecisionCache) Len() int {
	return int(c.size.Load())
}

func (c *ristrettoDecisionCache) Close() {
	c.cache.Close()
}
