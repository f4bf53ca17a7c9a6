// ABOUTME: TTL-bounded seen-cache for dropping duplicate inbound events
// ABOUTME: Used by the dispatcher to make client retries idempotent

package dedupe

import (
	"sync"
	"time"
)

// Cache remembers recently seen keys for a TTL. It is size-capped:
// when full, expired entries are pruned first and the oldest survivor
// is evicted if pruning freed nothing.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New builds a cache holding at most maxSize keys for ttl each.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Cache{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen reports whether key was marked within the TTL. It never mutates
// the cache, so a rejected event can be retried under the same key.
func (c *Cache) Seen(key string) bool {
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.seen[key]
	return ok && c.now().Sub(at) < c.ttl
}

// Mark records key as observed, starting its TTL. Re-marking refreshes
// the TTL. Empty keys are ignored.
func (c *Cache) Mark(key string) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, ok := c.seen[key]; !ok && len(c.seen) >= c.maxSize {
		c.prune(now)
	}
	c.seen[key] = now
}

// prune drops expired entries; if none were expired it evicts the
// oldest entry to make room. Called with mu held.
func (c *Cache) prune(now time.Time) {
	var (
		oldestKey string
		oldestAt  time.Time
		dropped   bool
	)
	for k, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, k)
			dropped = true
			continue
		}
		if oldestKey == "" || at.Before(oldestAt) {
			oldestKey, oldestAt = k, at
		}
	}
	if !dropped && oldestKey != "" {
		delete(c.seen, oldestKey)
	}
}

// Len reports the current number of tracked keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
