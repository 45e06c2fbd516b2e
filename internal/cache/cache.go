// Package cache implements the bounded word-posting LRU cache (spec §4.5):
// a fixed-capacity (500) read accelerator over barrel fetches, snapshotted
// to disk every 50 updates. Grounded on
// _examples/original_source/engine/search_engine.py's word_cache
// (OrderedDict) + save_word_cache/_load_word_cache.
package cache

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/screenager/bsearch/internal/doc"
	"github.com/screenager/bsearch/internal/wire"
)

// DefaultCapacity is the spec-mandated cache size.
const DefaultCapacity = 500

// DefaultAutoSaveInterval is the number of updates between durable
// snapshots.
const DefaultAutoSaveInterval = 50

type entry struct {
	word     string
	postings []doc.Hitlist
}

// Cache is a thread-safe, fixed-capacity LRU over word -> posting list. It
// is a read accelerator only: it is never authoritative and is always
// rebuildable from the barrel store.
type Cache struct {
	mu            sync.Mutex
	capacity      int
	ll            *list.List
	items         map[string]*list.Element
	updatesSince  int
	autoSaveEvery int
	snapshotPath  string
}

// New builds an empty cache with the given capacity and snapshot cadence.
func New(capacity, autoSaveEvery int, snapshotPath string) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if autoSaveEvery <= 0 {
		autoSaveEvery = DefaultAutoSaveInterval
	}
	return &Cache{
		capacity:      capacity,
		ll:            list.New(),
		items:         make(map[string]*list.Element),
		autoSaveEvery: autoSaveEvery,
		snapshotPath:  snapshotPath,
	}
}

// Load reads a previously persisted snapshot (if present) into a fresh
// cache. A missing file is not an error — the cache simply starts empty.
func Load(capacity, autoSaveEvery int, snapshotPath string) (*Cache, error) {
	c := New(capacity, autoSaveEvery, snapshotPath)
	raw, err := os.ReadFile(snapshotPath)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache snapshot %s: %w", snapshotPath, err)
	}
	snapshot, err := wire.DecodeCacheSnapshot(raw)
	if err != nil {
		return nil, fmt.Errorf("decode cache snapshot %s: %w", snapshotPath, err)
	}
	for word, postings := range snapshot {
		c.insertMRU(word, postings)
	}
	return c, nil
}

// Get returns the cached posting list for word and whether it was present,
// moving it to the MRU end on a hit. Overlay hitlists are never part of the
// cached value — callers union them in separately (spec §4.5).
func (c *Cache) Get(word string) ([]doc.Hitlist, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[word]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).postings, true
}

// Put inserts or replaces word's cached posting list at the MRU end,
// evicting the LRU entry if over capacity, and returns whether a durable
// snapshot should now be taken (the update counter reached the interval).
func (c *Cache) Put(word string, postings []doc.Hitlist) (shouldSnapshot bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.insertMRU(word, postings)
	c.updatesSince++
	if c.updatesSince >= c.autoSaveEvery {
		c.updatesSince = 0
		return true
	}
	return false
}

// insertMRU must be called with mu held.
func (c *Cache) insertMRU(word string, postings []doc.Hitlist) {
	if el, ok := c.items[word]; ok {
		el.Value.(*entry).postings = postings
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&entry{word: word, postings: postings})
	c.items[word] = el
	if c.ll.Len() > c.capacity {
		c.evictLRU()
	}
}

func (c *Cache) evictLRU() {
	oldest := c.ll.Back()
	if oldest == nil {
		return
	}
	c.ll.Remove(oldest)
	delete(c.items, oldest.Value.(*entry).word)
}

// Snapshot serializes the entire cache to a single blob file via an atomic
// rename. A failure here is a CacheIOError per spec §7: log and continue,
// the cache remains valid in memory.
func (c *Cache) Snapshot() error {
	c.mu.Lock()
	snapshot := make(map[string][]doc.Hitlist, len(c.items))
	for word, el := range c.items {
		snapshot[word] = el.Value.(*entry).postings
	}
	c.mu.Unlock()

	blob, err := wire.EncodeCacheSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("encode cache snapshot: %w", err)
	}
	return atomicWrite(c.snapshotPath, blob)
}

// Len reports the number of cached words.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func atomicWrite(path string, b []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-cache-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	return os.Rename(tmpPath, path)
}
