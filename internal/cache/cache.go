// Package cache implements the Instrumented Module Cache spec.md §4.3
// describes: keyed by absolute file path plus a content hash, so editing
// a file under test during a long-running watch session re-instruments
// it instead of serving stale tracker-call offsets. Mirrors
// internal/coverage/store.go's on-disk Path()/Exists()/Delete() shape,
// but in-memory only, since re-parsing a cold source file is cheap
// enough that persisting instrumented output across process restarts
// isn't worth the staleness risk.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/cybertec-postgresql/covlua/internal/lexer"
	"github.com/cybertec-postgresql/covlua/internal/sourcemap"
	"github.com/cybertec-postgresql/covlua/internal/transform"
)

// Entry is one cached instrumentation result.
type Entry struct {
	Hash      string
	Source    string
	Sourcemap *sourcemap.Sourcemap
	Functions []transform.FunctionInfo
	ExecLines map[int]bool
	Comments  []lexer.Comment
}

// Cache maps a file path to its most recently instrumented Entry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
	hits    int
	misses  int
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Hash returns the content hash used as an Entry's staleness key.
func Hash(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached Entry for path if present and its hash matches
// src's current content, counting the lookup as a hit or a miss.
func (c *Cache) Get(path string, src []byte) (Entry, bool) {
	h := Hash(src)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok || e.Hash != h {
		c.misses++
		return Entry{}, false
	}
	c.hits++
	return e, true
}

// GetByPath returns the Entry cached for path without checking it
// against a content hash, used by the controller's line classification
// once a file is already known to be registered and only its path, not
// its current source bytes, is at hand. A lookup through GetByPath is
// not counted as a hit or a miss.
func (c *Cache) GetByPath(path string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	return e, ok
}

// Put stores (or replaces) the Entry cached for path.
func (c *Cache) Put(path string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = e
}

// Remove evicts any cached Entry for path.
func (c *Cache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Reset clears the cache and its hit/miss counters.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
	c.hits, c.misses = 0, 0
}

// Stats is a point-in-time snapshot of the cache's hit/miss counters.
type Stats struct {
	Hits, Misses int
	Size         int
}

// Stats returns the cache's current hit/miss counters and entry count.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
}
