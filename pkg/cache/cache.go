package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is an LRU cache with per-entry expiry, safe for concurrent use.
type Cache[V any] struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // MRU at front
	maxItems int        // 0 = unlimited
	ttl      time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type entry[V any] struct {
	key string
	val V
	exp time.Time // zero = no expiry
}

// New creates a cache holding at most maxItems entries for ttl each. A
// non-positive ttl disables expiry. When janitorEvery is positive a
// background sweep removes expired entries until Close is called.
func New[V any](maxItems int, ttl, janitorEvery time.Duration) *Cache[V] {
	if maxItems < 0 {
		maxItems = 0
	}
	c := &Cache[V]{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		maxItems: maxItems,
		ttl:      ttl,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if janitorEvery > 0 {
		go c.janitor(janitorEvery)
	}
	return c
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.expired(e) {
		c.removeElement(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.val, true
}

// Set stores val under key, evicting the least recently used entry when full.
func (c *Cache[V]) Set(key string, val V) {
	if c == nil {
		return
	}
	var exp time.Time
	if c.ttl > 0 {
		exp = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.val, e.exp = val, exp
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&entry[V]{key: key, val: val, exp: exp})
	for c.maxItems > 0 && c.order.Len() > c.maxItems {
		c.removeElement(c.order.Back())
	}
}

func (c *Cache[V]) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close stops the janitor. The cache stays usable.
func (c *Cache[V]) Close() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.sweep()
		}
	}
}

func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*entry[V])) {
			c.removeElement(el)
		}
		el = prev
	}
}

// expired and removeElement expect c.mu to be held.
func (c *Cache[V]) expired(e *entry[V]) bool {
	return !e.exp.IsZero() && c.now().After(e.exp)
}

func (c *Cache[V]) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}
