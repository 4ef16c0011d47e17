package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/sheria-ai/sheria/internal/model"
)

type memoryEntry struct {
	key       string
	result    model.QueryResult
	expiresAt time.Time
}

// MemoryCache is an in-process LRU cache with per-entry TTL and a background
// janitor that sweeps expired entries. It is the default backend when no
// Redis URL is configured.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front is most recently used
	maxEntries int
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryCache builds a bounded cache holding at most maxEntries results.
// The janitor sweeps at the given interval; zero disables it.
func NewMemoryCache(maxEntries int, janitorInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if janitorInterval > 0 {
		go c.janitor(janitorInterval)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (model.QueryResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return model.QueryResult{}, false, nil
	}
	ent := el.Value.(*memoryEntry)
	if c.now().After(ent.expiresAt) {
		c.removeLocked(el)
		return model.QueryResult{}, false, nil
	}
	c.order.MoveToFront(el)
	return ent.result, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, res model.QueryResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*memoryEntry)
		ent.result = res
		ent.expiresAt = c.now().Add(ttl)
		c.order.MoveToFront(el)
		return nil
	}

	el := c.order.PushFront(&memoryEntry{key: key, result: res, expiresAt: c.now().Add(ttl)})
	c.entries[key] = el

	for c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		c.removeLocked(c.order.Back())
	}
	return nil
}

func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// Len reports the current entry count, expired entries included until the
// janitor or a Get sweeps them.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *MemoryCache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	ent := el.Value.(*memoryEntry)
	delete(c.entries, ent.key)
	c.order.Remove(el)
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*memoryEntry).expiresAt) {
			c.removeLocked(el)
		}
		el = prev
	}
}
