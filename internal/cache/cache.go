// Package cache is a time-bounded in-memory store for tool outputs and
// upstream API responses. Expired entries behave exactly like misses: a read
// past expiry removes the entry, and a periodic sweep reclaims the rest.
package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EntryType tags what kind of payload an entry holds.
type EntryType string

const (
	TypeToolResult  EntryType = "tool_result"
	TypeAPIResponse EntryType = "api_response"
)

type entry struct {
	payload   any
	entryType EntryType
	createdAt time.Time
	expiresAt time.Time
}

// Metrics receives cache hit/miss/eviction counts. Implemented by
// monitor.Metrics; nil-safe via the noop default.
type Metrics interface {
	CacheHit()
	CacheMiss()
	CacheEviction(n int)
}

type noopMetrics struct{}

func (noopMetrics) CacheHit()           {}
func (noopMetrics) CacheMiss()          {}
func (noopMetrics) CacheEviction(int)   {}

// Cache is a TTL key/value store safe for concurrent use. Writes to the same
// key replace the entry (last-writer-wins).
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	metrics Metrics

	sweepEvery time.Duration
	done       chan struct{}
	wg         sync.WaitGroup
}

// New creates a cache sweeping on the given interval once Start is called.
func New(sweepEvery time.Duration, metrics Metrics) *Cache {
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Cache{
		entries:    make(map[string]entry),
		metrics:    metrics,
		sweepEvery: sweepEvery,
		done:       make(chan struct{}),
	}
}

// Set stores a payload under key with the given TTL, replacing any prior entry.
func (c *Cache) Set(key string, payload any, ttl time.Duration, typ EntryType) {
	now := time.Now()
	c.mu.Lock()
	c.entries[key] = entry{
		payload:   payload,
		entryType: typ,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	c.mu.Unlock()
}

// Get returns the payload for key if present and unexpired. A read of an
// expired entry removes it and reports a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.metrics.CacheMiss()
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.metrics.CacheMiss()
		return nil, false
	}
	c.metrics.CacheHit()
	return e.payload, true
}

// Has reports whether key holds an unexpired entry, without counting a hit.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return false
	}
	return true
}

// Delete removes key unconditionally.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Start launches the background sweep loop.
func (c *Cache) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

// Stop terminates the sweep loop. Safe to call once.
func (c *Cache) Stop() {
	close(c.done)
	c.wg.Wait()
}

// Sweep removes all expired entries and returns how many were purged.
func (c *Cache) Sweep() int {
	now := time.Now()

	c.mu.Lock()
	var purged int
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			purged++
		}
	}
	c.mu.Unlock()

	if purged > 0 {
		c.metrics.CacheEviction(purged)
		log.Debug().Int("purged", purged).Msg("cache sweep completed")
	}
	return purged
}
