package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryCache is an LRU cache bounded by the total size of its values.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[string]*list.Element
	lru      *list.List // front is most recently used
	stats    Stats
	now      func() time.Time
}

type memoryEntry struct {
	key     string
	value   []byte
	created time.Time
	access  time.Time
	hits    int64
}

// NewMemoryCache creates a memory cache holding at most capacity bytes.
func NewMemoryCache(capacity int64) *MemoryCache {
	return &MemoryCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		stats:    Stats{Capacity: capacity},
		now:      time.Now,
	}
}

// Get returns the value for key and marks it recently used.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.lru.MoveToFront(elem)
	e := elem.Value.(*memoryEntry)
	e.hits++
	e.access = c.now()

	c.stats.Hits++
	c.stats.LastAccess = e.access
	return e.value, true
}

// Put stores value under key, evicting least recently used entries as
// needed.
func (c *MemoryCache) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := int64(len(value))
	if n > c.capacity {
		return ErrItemTooLarge
	}

	now := c.now()
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*memoryEntry)
		c.size += n - int64(len(e.value))
		e.value = value
		e.created = now
		c.lru.MoveToFront(elem)
	} else {
		c.items[key] = c.lru.PushFront(&memoryEntry{key: key, value: value, created: now, access: now})
		c.size += n
	}

	for c.size > c.capacity && c.lru.Len() > 1 {
		c.evict(c.lru.Back())
	}
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
	return nil
}

// Clear removes every entry.
func (c *MemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.size = 0
	return nil
}

// Contains reports whether key is present without touching its recency.
func (c *MemoryCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[key]
	return ok
}

// Size returns the stored bytes.
func (c *MemoryCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns the counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = c.size
	s.ItemCount = int64(len(c.items))
	s.computeHitRate()
	return s
}

// Entries lists the entries from least to most recently used.
func (c *MemoryCache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, len(c.items))
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		e := elem.Value.(*memoryEntry)
		size := int64(len(e.value))
		out = append(out, Entry{
			Key:        e.key,
			Size:       size,
			StoredSize: size,
			Created:    e.created,
			LastAccess: e.access,
			Hits:       e.hits,
			Level:      LevelMemory,
		})
	}
	return out
}

// Resize changes the capacity and evicts down to it.
func (c *MemoryCache) Resize(capacity int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capacity = capacity
	c.stats.Capacity = capacity
	for c.size > c.capacity && c.lru.Len() > 0 {
		c.evict(c.lru.Back())
	}
}

// Prune removes entries written before maxAge ago and returns how many
// were removed.
func (c *MemoryCache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-maxAge)
	pruned := 0
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*memoryEntry).created.Before(cutoff) {
			c.remove(elem)
			pruned++
		}
		elem = prev
	}
	return pruned
}

func (c *MemoryCache) evict(elem *list.Element) {
	c.remove(elem)
	c.stats.Evictions++
	c.stats.LastEvict = c.now()
}

func (c *MemoryCache) remove(elem *list.Element) {
	e := c.lru.Remove(elem).(*memoryEntry)
	delete(c.items, e.key)
	c.size -= int64(len(e.value))
}
