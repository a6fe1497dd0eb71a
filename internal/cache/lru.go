package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache bounds entries by count and age. Every entry belongs to a group
// (the ledger groups month results by user) so a whole group can be
// dropped without scanning unrelated entries.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	entries map[Key]*list.Element
	groups  map[string]map[Key]struct{}
	recency *list.List // front is most recently used

	stats Stats
}

type entry[T any] struct {
	key     Key
	value   T
	expires time.Time
}

// NewLRUCache returns an empty cache holding at most maxSize entries for ttl each.
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Key]*list.Element),
		groups:  make(map[string]map[Key]struct{}),
		recency: list.New(),
	}
}

// SetClock replaces the time source; used by tests.
func (c *LRUCache[T]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the live value for k. Expired entries are dropped on read.
func (c *LRUCache[T]) Get(k Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	el, ok := c.entries[k]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	e := el.Value.(*entry[T])
	if c.now().After(e.expires) {
		c.unlink(el)
		c.stats.Misses++
		return zero, false
	}
	c.recency.MoveToFront(el)
	c.stats.Hits++
	return e.value, true
}

// Set stores v under k, evicting the least recently used entry when full.
func (c *LRUCache[T]) Set(k Key, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: k, value: v, expires: c.now().Add(c.ttl)}
	if el, ok := c.entries[k]; ok {
		el.Value = e
		c.recency.MoveToFront(el)
		return
	}

	c.entries[k] = c.recency.PushFront(e)
	members := c.groups[k.Group]
	if members == nil {
		members = make(map[Key]struct{})
		c.groups[k.Group] = members
	}
	members[k] = struct{}{}

	for c.recency.Len() > c.maxSize {
		c.unlink(c.recency.Back())
		c.stats.Evictions++
	}
}

func (c *LRUCache[T]) Delete(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[k]; ok {
		c.unlink(el)
	}
}

// DeleteGroup drops every entry of group and returns how many there were.
func (c *LRUCache[T]) DeleteGroup(group string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	members := c.groups[group]
	n := len(members)
	for k := range members {
		c.unlink(c.entries[k])
	}
	return n
}

// unlink removes el from every index. Callers hold c.mu.
func (c *LRUCache[T]) unlink(el *list.Element) {
	e := el.Value.(*entry[T])
	delete(c.entries, e.key)
	if members := c.groups[e.key.Group]; members != nil {
		delete(members, e.key)
		if len(members) == 0 {
			delete(c.groups, e.key.Group)
		}
	}
	c.recency.Remove(el)
}

// CleanExpired drops expired entries and returns the count.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.recency.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry[T]).expires) {
			c.unlink(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the counters with the current size.
func (c *LRUCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats
	st.Size = len(c.entries)
	return st
}

var _ Cache[int] = (*LRUCache[int])(nil)
