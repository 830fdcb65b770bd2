package rag

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tenderwise/tenderflow/internal/models"
)

// Cache holds recently retrieved contexts per query. Entries expire
// lazily after the TTL and the cache is bounded: inserting beyond
// capacity evicts the oldest entry other than the one just inserted.
// A TTL of zero or less disables the cache.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*cacheEntry
	now        func() time.Time
}

type cacheEntry struct {
	contexts []models.Context
	storedAt time.Time
}

// NewCache creates a cache with the given TTL and capacity. A maxEntries
// of zero or less disables the size bound.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
		now:        time.Now,
	}
}

// CacheKey builds the canonical cache key for a query. The question is
// trimmed and lowercased; URI and file id lists are order-insensitive.
func CacheKey(tenderID, question string, pageSize int, sourceURIs, fileIDs []string) string {
	uris := append([]string(nil), sourceURIs...)
	sort.Strings(uris)
	ids := append([]string(nil), fileIDs...)
	sort.Strings(ids)

	return fmt.Sprintf("%s|%s|%d|%s|%s",
		tenderID,
		strings.ToLower(strings.TrimSpace(question)),
		pageSize,
		strings.Join(uris, ","),
		strings.Join(ids, ","))
}

// Get returns the cached contexts, if present and fresh. Callers must
// treat the returned slice as read-only.
func (c *Cache) Get(key string) ([]models.Context, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.contexts, true
}

// Put stores retrieved contexts, evicting the oldest other entry when
// over capacity. Empty retrievals are not stored so a transient miss
// does not stick for the full TTL.
func (c *Cache) Put(key string, contexts []models.Context) {
	if c.ttl <= 0 || len(contexts) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry{contexts: contexts, storedAt: c.now()}

	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return
	}

	oldestKey := ""
	var oldestAt time.Time
	for k, entry := range c.entries {
		if k == key {
			continue
		}
		if oldestKey == "" || entry.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = entry.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Len returns the number of cached entries, including any that have
// expired but not yet been evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
