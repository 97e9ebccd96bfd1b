package translateplugin

import (
	"container/list"
	"sync"
)

// resultCache is a small LRU of recent translations keyed by
// "target\x00text".
type resultCache struct {
	mu    sync.Mutex
	max   int
	order *list.List
	items map[string]*list.Element
}

type cacheEntry struct {
	key string
	val string
}

func newResultCache(max int) *resultCache {
	if max <= 0 {
		max = defaultCacheSize
	}
	return &resultCache{
		max:   max,
		order: list.New(),
		items: map[string]*list.Element{},
	}
}

func cacheKey(targetCode, text string) string {
	return targetCode + "\x00" + text
}

func (c *resultCache) Get(targetCode, text string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[cacheKey(targetCode, text)]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).val, true
}

func (c *resultCache) Put(targetCode, text, translated string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(targetCode, text)
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).val = translated
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, val: translated})
	c.items[key] = el
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}
