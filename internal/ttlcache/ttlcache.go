// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ttlcache provides a small generic key/value cache with per-entry
// expiry. It backs the classifier result cache and the scene-similarity
// cache. Entries are immutable once stored; re-storing a key replaces the
// entry wholesale. There is no size bound beyond TTL expiry — callers are
// expected to keep key cardinality low (normalized query text).
package ttlcache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	createdAt time.Time
	ttl       time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return now.After(e.createdAt.Add(e.ttl))
}

// Cache is a mutex-guarded map with per-entry TTL. Expired entries are
// treated as absent on read and deleted lazily; Sweep removes them eagerly.
// The read-check-delete sequence runs under a single critical section so
// concurrent readers never observe a torn expiry check.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]

	// now is swappable for tests so TTL behavior can be verified without sleeping.
	now func() time.Time
}

// New creates an empty cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]entry[V]),
		now:     time.Now,
	}
}

// SetClock replaces the cache's time source. Test use only; not safe to call
// concurrently with cache operations.
func (c *Cache[K, V]) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the live value for key. Expired entries are deleted on read
// and reported as absent.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL, replacing any prior entry.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		createdAt: c.now(),
		ttl:       ttl,
	}
}

// CreatedAt reports when the live entry for key was stored. It returns the
// zero time when the key is absent or expired.
func (c *Cache[K, V]) CreatedAt(key K) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		return time.Time{}, false
	}
	return e.createdAt, true
}

// Clear removes all entries.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]entry[V])
}

// Sweep eagerly removes expired entries and returns how many were removed.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including any not yet swept
// expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
