// Package cache is the in-process, time-bounded result cache that sits in
// front of the provider.
package cache

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// DefaultTTL is how long a resolved status stays fresh.
const DefaultTTL = 6 * time.Hour

// Key builds the cache key for an address. Addresses are trimmed, have
// inner whitespace collapsed and are case folded. A non-empty principal
// namespaces the key so that tenants never observe each other's entries.
func Key(principal, address string) string {
	addr := cases.Fold().String(strings.Join(strings.Fields(address), " "))
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return addr
	}
	return principal + "\x00" + addr
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTL is a mutex-guarded map whose entries expire a fixed duration after
// they were stored. Nothing sweeps the map: an expired entry is a miss and
// is dropped when that lookup finds it.
type TTL[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry[V]

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a cache. A non-positive ttl uses DefaultTTL.
func New[V any](ttl time.Duration) *TTL[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTL[V]{
		ttl:     ttl,
		entries: make(map[string]entry[V]),
		nowFunc: time.Now,
	}
}

// Get returns the value stored under key if it is younger than the TTL.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.nowFunc().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, replacing any previous entry.
func (c *TTL[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, storedAt: c.nowFunc()}
}

// Len returns the number of stored entries, fresh or not.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
