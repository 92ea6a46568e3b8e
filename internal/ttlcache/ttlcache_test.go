// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ttlcache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestGetMissingKey(t *testing.T) {
	c := New[string, int]()
	if _, ok := c.Get("absent"); ok {
		t.Fatal("expected miss for absent key")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c := New[string, string]()
	c.Set("k", "v", time.Minute)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if got != "v" {
		t.Fatalf("got %q, want %q", got, "v")
	}
}

func TestExpiredEntryIsAbsentWithoutSweep(t *testing.T) {
	clock := newFakeClock()
	c := New[string, int]()
	c.SetClock(clock.Now)

	c.Set("k", 1, time.Second)
	clock.Advance(2 * time.Second)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry should be treated as absent")
	}
	// Lazy deletion happened on read.
	if c.Len() != 0 {
		t.Fatalf("expected lazy delete on read, len=%d", c.Len())
	}
}

func TestEntryLiveAtExactTTLBoundary(t *testing.T) {
	clock := newFakeClock()
	c := New[string, int]()
	c.SetClock(clock.Now)

	c.Set("k", 1, 10*time.Second)
	clock.Advance(10 * time.Second)

	// now == created_at + ttl is still visible per the cache contract.
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should still be visible at now == created_at + ttl")
	}
}

func TestOverwriteReplacesEntryWholesale(t *testing.T) {
	clock := newFakeClock()
	c := New[string, int]()
	c.SetClock(clock.Now)

	c.Set("k", 1, time.Second)
	clock.Advance(900 * time.Millisecond)
	c.Set("k", 2, time.Second)
	clock.Advance(900 * time.Millisecond)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("re-stored entry should have a fresh TTL")
	}
	if got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	c := New[string, int]()
	c.SetClock(clock.Now)

	c.Set("old", 1, time.Second)
	c.Set("older", 2, time.Second)
	c.Set("fresh", 3, time.Hour)
	clock.Advance(5 * time.Second)

	if removed := c.Sweep(); removed != 2 {
		t.Fatalf("swept %d entries, want 2", removed)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Fatal("unexpired entry removed by sweep")
	}
}

func TestClear(t *testing.T) {
	c := New[string, int]()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("len=%d after clear", c.Len())
	}
}

func TestCreatedAt(t *testing.T) {
	clock := newFakeClock()
	c := New[string, int]()
	c.SetClock(clock.Now)

	start := clock.Now()
	c.Set("k", 1, time.Minute)

	created, ok := c.CreatedAt("k")
	if !ok || !created.Equal(start) {
		t.Fatalf("CreatedAt = %v, %v; want %v, true", created, ok, start)
	}

	clock.Advance(2 * time.Minute)
	if _, ok := c.CreatedAt("k"); ok {
		t.Fatal("CreatedAt should report expired entries as absent")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[string, int]()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(key, n, time.Minute)
				c.Get(key)
				if j%50 == 0 {
					c.Sweep()
				}
			}
		}(i)
	}
	wg.Wait()
}
