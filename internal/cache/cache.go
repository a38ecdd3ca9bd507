/*
 * MIT License
 *
 * Copyright (c) 2026 the beprox authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package cache implements a size-bounded, LRU-ordered associative store
// with item locking and background expiry. Items are kept in a per-key
// list that Get, GetMatch and RemoveMatch walk newest first; Put replaces
// whatever item is already stored under its key, so through this API a
// key holds at most one item at a time.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultExpiryInterval is how often the background timer sweeps the LRU
// list for expired items when the cache is non-empty.
const DefaultExpiryInterval = 60 * time.Second

// Class supplies the per-value behavior the cache itself has no way to
// know: how to tear a value down once evicted or unlocked past removal,
// and whether a value already stored is still acceptable to hand back.
type Class[V any] interface {
	Destroy(value V)
	Validate(value V) bool
}

type entry[K comparable, V any] struct {
	key          K
	value        V
	size         int64
	expires      time.Time
	lastAccessed time.Time
	lockCount    int
	removed      bool

	keyElem *list.Element
	lruElem *list.Element
}

// Handle identifies a single stored item across Get/GetMatch/Put and the
// Lock/Unlock pair. It is opaque to callers outside this package.
type Handle[K comparable, V any] struct {
	e *entry[K, V]
}

// Cache is a size-bounded, LRU-ordered store of (key, item) pairs.
type Cache[K comparable, V any] struct {
	mu sync.Mutex

	class   Class[V]
	maxSize int64
	curSize int64

	items map[K]*list.List // *entry[K,V] per key, newest at Front
	lru   *list.List        // *entry[K,V], most-recently-used at Front

	expiryInterval time.Duration
	timer          *time.Timer
	timerRunning   bool

	now func() time.Time
}

// New returns an empty cache bounded at maxSize bytes (or whatever unit
// the caller's size values are denominated in), evicting via class on
// overflow and expiry.
func New[K comparable, V any](class Class[V], maxSize int64) *Cache[K, V] {
	return &Cache[K, V]{
		class:          class,
		maxSize:        maxSize,
		items:          make(map[K]*list.List),
		lru:            list.New(),
		expiryInterval: DefaultExpiryInterval,
		now:            time.Now,
	}
}

// Put stores value under key, evicting from the LRU tail until the
// budget is satisfied. If value alone exceeds maxSize, it is destroyed
// immediately and never stored. A zero ttl means the item never expires
// on its own (it is still subject to LRU eviction).
func (c *Cache[K, V]) Put(key K, value V, size int64, ttl time.Duration) *Handle[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if size > c.maxSize {
		c.class.Destroy(value)
		return nil
	}

	e := &entry[K, V]{key: key, value: value, size: size, lastAccessed: c.now()}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	// removing the last item under key deletes its list from c.items, so
	// look the list up again afterwards
	if old, ok := c.items[key]; ok && old.Front() != nil {
		c.removeEntry(old.Front().Value.(*entry[K, V]))
	}
	l, ok := c.items[key]
	if !ok {
		l = list.New()
		c.items[key] = l
	}

	e.keyElem = l.PushFront(e)
	e.lruElem = c.lru.PushFront(e)
	c.curSize += size

	c.evictOverflow()
	c.armTimer()

	return &Handle[K, V]{e: e}
}

// Get returns the newest item stored under key.
func (c *Cache[K, V]) Get(key K) (V, *Handle[K, V], bool) {
	return c.GetMatch(key, func(V) bool { return true })
}

// GetMatch walks items under key, newest first, returning the first one
// pred accepts. Expired or no-longer-valid items are removed as they are
// encountered, regardless of whether pred would have matched them.
func (c *Cache[K, V]) GetMatch(key K, pred func(V) bool) (V, *Handle[K, V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	l, ok := c.items[key]
	if !ok {
		return zero, nil, false
	}

	for elem := l.Front(); elem != nil; {
		e := elem.Value.(*entry[K, V])
		next := elem.Next()

		if c.expired(e) || !c.class.Validate(e.value) {
			c.removeEntry(e)
			elem = next
			continue
		}
		if pred(e.value) {
			e.lastAccessed = c.now()
			c.lru.MoveToFront(e.lruElem)
			return e.value, &Handle[K, V]{e: e}, true
		}
		elem = next
	}
	return zero, nil, false
}

// Remove removes the newest item under key. Returns the number removed
// (0 or 1).
func (c *Cache[K, V]) Remove(key K) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.items[key]
	if !ok || l.Len() == 0 {
		return 0
	}
	c.removeEntry(l.Front().Value.(*entry[K, V]))
	return 1
}

// RemoveMatch removes every item under key accepted by pred. Returns the
// number removed.
func (c *Cache[K, V]) RemoveMatch(key K, pred func(V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.items[key]
	if !ok {
		return 0
	}

	n := 0
	for elem := l.Front(); elem != nil; {
		e := elem.Value.(*entry[K, V])
		next := elem.Next()
		if pred(e.value) {
			c.removeEntry(e)
			n++
		}
		elem = next
	}
	return n
}

// RemoveAllMatch removes every item in the cache, of any key, accepted
// by pred. Returns the number removed.
func (c *Cache[K, V]) RemoveAllMatch(pred func(V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for elem := c.lru.Front(); elem != nil; {
		e := elem.Value.(*entry[K, V])
		next := elem.Next()
		if pred(e.value) {
			c.removeEntry(e)
			n++
		}
		elem = next
	}
	return n
}

// Lock increments h's lock count, deferring destruction of its value
// past removal until a matching number of Unlock calls.
func (c *Cache[K, V]) Lock(h *Handle[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h.e.lockCount++
}

// Unlock decrements h's lock count. If the item has already been
// removed from the cache and the count reaches zero, its value is
// destroyed now.
func (c *Cache[K, V]) Unlock(h *Handle[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h.e.lockCount--
	if h.e.lockCount <= 0 && h.e.removed {
		c.class.Destroy(h.e.value)
	}
}

// Flush removes every item, respecting locks exactly as Remove does.
func (c *Cache[K, V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.lru.Front(); elem != nil; {
		e := elem.Value.(*entry[K, V])
		next := elem.Next()
		c.removeEntry(e)
		elem = next
	}
}

// Len returns the number of items currently stored.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Size returns the current total size of stored items.
func (c *Cache[K, V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curSize
}

// Close stops the background expiry timer. It does not flush the cache.
func (c *Cache[K, V]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timerRunning = false
	}
	return nil
}

// removeEntry unlinks e from both the per-key list and the LRU list and
// destroys its value, unless it is still locked — in which case
// destruction is deferred to the Unlock call that brings the count to
// zero. Callers must hold c.mu.
func (c *Cache[K, V]) removeEntry(e *entry[K, V]) {
	if e.removed {
		return
	}
	e.removed = true

	if e.keyElem != nil {
		if l := c.items[e.key]; l != nil {
			l.Remove(e.keyElem)
			if l.Len() == 0 {
				delete(c.items, e.key)
			}
		}
		e.keyElem = nil
	}
	if e.lruElem != nil {
		c.lru.Remove(e.lruElem)
		e.lruElem = nil
	}
	c.curSize -= e.size

	if e.lockCount <= 0 {
		c.class.Destroy(e.value)
	}
}

// evictOverflow drops items from the LRU tail until curSize fits within
// maxSize. Callers must hold c.mu.
func (c *Cache[K, V]) evictOverflow() {
	for c.curSize > c.maxSize {
		tail := c.lru.Back()
		if tail == nil {
			break
		}
		c.removeEntry(tail.Value.(*entry[K, V]))
	}
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return !e.expires.IsZero() && !e.expires.After(c.now())
}

// armTimer starts the background sweep if the cache is non-empty and no
// sweep is already scheduled. Callers must hold c.mu.
func (c *Cache[K, V]) armTimer() {
	if c.timerRunning || c.curSize == 0 {
		return
	}
	c.timerRunning = true
	c.timer = time.AfterFunc(c.expiryInterval, c.sweep)
}

// sweep evicts expired items, then re-arms itself if the cache is still
// non-empty — this is what makes the timer "disabled when empty": once
// the last item is gone, sweep simply does not reschedule itself, and
// the next Put re-arms it.
func (c *Cache[K, V]) sweep() {
	c.mu.Lock()
	c.timerRunning = false

	for elem := c.lru.Front(); elem != nil; {
		e := elem.Value.(*entry[K, V])
		next := elem.Next()
		if c.expired(e) {
			c.removeEntry(e)
		}
		elem = next
	}

	c.armTimer()
	c.mu.Unlock()
}
