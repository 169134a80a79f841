// Package cache holds the short-TTL, per-key store of last-known-good upstream
// payloads. Entries are replaced wholesale; freshness is decided by the caller's
// clock against a single TTL.
package cache

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// DefaultTTL keeps the dashboard near real time while collapsing request bursts.
const DefaultTTL = time.Second

// Entry is one cached upstream payload.
type Entry struct {
	Key       string
	Payload   json.RawMessage
	Timestamp time.Time
}

// Cache is a process-wide key → entry map shared by all requests.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
}

// New creates an empty cache. A non-positive ttl falls back to DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
	}
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the entry for key regardless of age.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Put replaces the entry for key. Empty payloads are ignored.
func (c *Cache) Put(key string, payload json.RawMessage, ts time.Time) {
	if len(payload) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Key: key, Payload: payload, Timestamp: ts}
}

// IsFresh reports whether now - entry.Timestamp < TTL.
func (c *Cache) IsFresh(e Entry, now time.Time) bool {
	if len(e.Payload) == 0 || e.Timestamp.IsZero() {
		return false
	}
	return now.Sub(e.Timestamp) < c.ttl
}

// GetFresh returns the entry only when it is still fresh at now.
func (c *Cache) GetFresh(key string, now time.Time) (Entry, bool) {
	e, ok := c.Get(key)
	if !ok || !c.IsFresh(e, now) {
		return Entry{}, false
	}
	return e, true
}

// Keys returns the cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}
