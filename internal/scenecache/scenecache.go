// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scenecache reuses recent expensive scene-dependent query results.
// The key buckets a continuous sensor reading into fixed-width bins so
// nearby readings land on the same entry; validity is decided at lookup
// time with a hard ceiling, and a stricter ceiling when no reading is
// available to confirm the scene has not changed.
package scenecache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultBucketWidth bins readings into 20-unit windows.
	DefaultBucketWidth = 20.0
	// DefaultHardTTL is the validity ceiling when the stored and current
	// readings share a bucket.
	DefaultHardTTL = 30 * time.Second
	// DefaultNoReadingTTL applies when no current reading exists to confirm
	// scene similarity.
	DefaultNoReadingTTL = 5 * time.Second

	unknownBucket = "unknown"
)

// Options configures a Cache. Zero values fall back to the defaults above.
type Options struct {
	BucketWidth  float64
	HardTTL      time.Duration
	NoReadingTTL time.Duration
}

type entry struct {
	value     string
	costSaved float64
	createdAt time.Time
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Entries   int     `json:"entries"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	CostSaved float64 `json:"cost_saved_usd"`
}

// Cache is a scene-similarity cache. Safe for concurrent use.
type Cache struct {
	mu           sync.Mutex
	entries      map[string]entry
	bucketWidth  float64
	hardTTL      time.Duration
	noReadingTTL time.Duration
	hits         uint64
	misses       uint64
	costSaved    float64
	now          func() time.Time
}

// New builds a Cache from opts.
func New(opts Options) *Cache {
	if opts.BucketWidth <= 0 {
		opts.BucketWidth = DefaultBucketWidth
	}
	if opts.HardTTL <= 0 {
		opts.HardTTL = DefaultHardTTL
	}
	if opts.NoReadingTTL <= 0 {
		opts.NoReadingTTL = DefaultNoReadingTTL
	}
	return &Cache{
		entries:      make(map[string]entry),
		bucketWidth:  opts.BucketWidth,
		hardTTL:      opts.HardTTL,
		noReadingTTL: opts.NoReadingTTL,
		now:          time.Now,
	}
}

// Lookup returns the stored value for (sourceID, query, reading) when the
// scene is still considered the same. A nil reading applies the stricter
// no-reading ceiling.
func (c *Cache) Lookup(sourceID, query string, reading *float64) (string, bool) {
	key := c.key(sourceID, query, reading)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return "", false
	}

	elapsed := c.now().Sub(e.createdAt)
	if elapsed > c.hardTTL || (reading == nil && elapsed > c.noReadingTTL) {
		delete(c.entries, key)
		c.misses++
		return "", false
	}

	c.hits++
	c.costSaved += e.costSaved
	log.WithFields(log.Fields{
		"source":  sourceID,
		"elapsed": elapsed.Round(time.Millisecond),
	}).Debug("Scene cache hit, reusing prior answer")
	return e.value, true
}

// Store records value for (sourceID, query, reading). costSaved is the
// estimated USD avoided each time this entry is reused.
func (c *Cache) Store(sourceID, query string, reading *float64, value string, costSaved float64) {
	key := c.key(sourceID, query, reading)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, costSaved: costSaved, createdAt: c.now()}
}

// Sweep removes entries past the hard ceiling and returns the count removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.createdAt) > c.hardTTL {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear drops every entry. Hit and cost counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		CostSaved: c.costSaved,
	}
}

// SetClock replaces the time source. Tests only.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// key hashes sourceID, the normalized query, and the reading's bucket into
// a stable identifier. Readings in the same fixed-width bin collide.
func (c *Cache) key(sourceID, query string, reading *float64) string {
	bucket := unknownBucket
	if reading != nil {
		bucket = fmt.Sprintf("%g", math.Floor(*reading/c.bucketWidth)*c.bucketWidth)
	}
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(sourceID + "|" + normalized + "|" + bucket))
	return hex.EncodeToString(sum[:])
}
