// Package cache provides the TTL read cache in front of the sync read path.
// It is an optimization layer only: every read must stay correct with the
// cache disabled entirely.
package cache

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// Per-operation TTLs. Fast-moving data (tickers, wallet balances) expires
// quickly; paginated history reads live longer because mutations invalidate
// their scope explicitly.
const (
	TTLShort = 60 * time.Second
	TTLRead  = 300 * time.Second
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache mutex-guarded TTL store
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	stopCh  chan struct{}
	once    sync.Once
}

// New creates a cache and starts its expiry sweeper
func New() *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		stopCh:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Key builds a deterministic cache key scoped to (owner, exchange, op).
// The scope prefix stays readable so invalidation can match on it; the
// remaining read parameters collapse into a hash.
func Key(owner, exchange, op string, params ...interface{}) string {
	h := fnv.New64a()
	for _, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			fmt.Fprintf(h, "%v", p)
			continue
		}
		h.Write(b)
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s:%s:%s:%016x", owner, exchange, op, h.Sum64())
}

// ScopePrefix returns the invalidation prefix for an owner+exchange pair
func ScopePrefix(owner, exchange string) string {
	return owner + ":" + exchange + ":"
}

// Get returns a live entry, or false when absent or expired
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores a value with the given TTL
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// InvalidateScope drops every entry under an owner+exchange scope.
// Must run synchronously before a mutation reports success.
func (c *Cache) InvalidateScope(owner, exchange string) {
	prefix := ScopePrefix(owner, exchange)
	c.mu.Lock()
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Flush drops all entries
func (c *Cache) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Close stops the expiry sweeper
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stopCh) })
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
