// Package cache implements the bounded in-memory content store keyed by
// content fingerprint.
package cache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lumira/research-crawler/internal/telemetry"
)

// Entry is one cached normalized text blob.
type Entry struct {
	Fingerprint string
	Text        string
	SizeBytes   int64
	LastAccess  time.Time

	// seq disambiguates entries touched within the same clock tick so
	// eviction order is total.
	seq uint64
}

// Config bounds the cache.
type Config struct {
	// EntryCap is the hard cap on entry count, applied before the byte
	// budget check.
	EntryCap int
	// MemoryLimitBytes is the aggregate size budget for cached text.
	MemoryLimitBytes int64
}

// Cache is a least-recently-accessed bounded store with single-flight
// computation: concurrent GetOrCompute calls for one fingerprint share a
// single invocation of the compute function.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	total   int64
	nextSeq uint64
	cfg     Config

	group singleflight.Group
}

// New creates a Cache.
func New(cfg Config) (*Cache, error) {
	if cfg.EntryCap < 1 {
		return nil, fmt.Errorf("cache entry cap must be >= 1, got %d", cfg.EntryCap)
	}
	if cfg.MemoryLimitBytes <= 0 {
		return nil, fmt.Errorf("cache memory limit must be > 0, got %d", cfg.MemoryLimitBytes)
	}
	return &Cache{
		entries: make(map[string]*Entry),
		cfg:     cfg,
	}, nil
}

// GetOrCompute returns the cached text for fingerprint, refreshing its
// recency. On a miss it invokes compute exactly once per fingerprint even
// under concurrent callers, stores the result, and returns it.
func (c *Cache) GetOrCompute(fingerprint string, compute func() (string, error)) (string, error) {
	if text, ok := c.lookup(fingerprint); ok {
		telemetry.ObserveCacheEvent("hit")
		return text, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (any, error) {
		// A concurrent flight may have stored the entry between the fast
		// path and acquiring the flight.
		if text, ok := c.lookup(fingerprint); ok {
			return text, nil
		}
		text, err := compute()
		if err != nil {
			return "", err
		}
		c.store(fingerprint, text)
		telemetry.ObserveCacheEvent("miss")
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("compute %s: %w", fingerprint, err)
	}
	return v.(string), nil
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Contains reports whether fingerprint is cached, without refreshing it.
func (c *Cache) Contains(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[fingerprint]
	return ok
}

// SizeBytes reports the aggregate size of cached text.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *Cache) lookup(fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fingerprint]
	if !ok {
		return "", false
	}
	c.touchLocked(e)
	return e.Text, true
}

func (c *Cache) store(fingerprint, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[fingerprint]; ok {
		c.touchLocked(e)
		return
	}

	e := &Entry{
		Fingerprint: fingerprint,
		Text:        text,
		SizeBytes:   int64(len(text)),
		LastAccess:  time.Now(),
		seq:         c.nextSeq,
	}
	c.nextSeq++
	c.entries[fingerprint] = e
	c.total += e.SizeBytes
	c.evictLocked()
}

func (c *Cache) touchLocked(e *Entry) {
	e.LastAccess = time.Now()
	e.seq = c.nextSeq
	c.nextSeq++
}

// evictLocked removes entries in ascending last-access order until both the
// entry cap and the byte budget are satisfied.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.cfg.EntryCap || c.total > c.cfg.MemoryLimitBytes {
		var oldest *Entry
		for _, e := range c.entries {
			if oldest == nil || e.seq < oldest.seq {
				oldest = e
			}
		}
		if oldest == nil {
			return
		}
		delete(c.entries, oldest.Fingerprint)
		c.total -= oldest.SizeBytes
		telemetry.ObserveCacheEvent("eviction")
	}
}
