package client

import (
	"container/list"
	"strings"
	"sync"

	"pawtalk/pkg/search"
)

// CacheKey identifies one search result page. Query is normalized so
// trivially different spellings of the same query share an entry.
type CacheKey struct {
	Query          string
	ConversationID string
	Page           int
	Limit          int
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

type cacheEntry struct {
	key CacheKey
	val search.Response
}

// SearchCache is a fixed-capacity LRU over search result pages. Entries
// for a conversation are invalidated wholesale when any of its messages
// change, so a stale page is never served after a mutation.
type SearchCache struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List
	items map[CacheKey]*list.Element
}

// NewSearchCache creates a cache holding up to capacity pages.
func NewSearchCache(capacity int) *SearchCache {
	if capacity <= 0 {
		capacity = 128
	}
	return &SearchCache{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[CacheKey]*list.Element),
	}
}

// Get returns the cached page for the key, marking it recently used.
func (c *SearchCache) Get(key CacheKey) (search.Response, bool) {
	key.Query = normalizeQuery(key.Query)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return search.Response{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).val, true
}

// Set stores a page, evicting the least recently used entry when full.
func (c *SearchCache) Set(key CacheKey, val search.Response) {
	key.Query = normalizeQuery(key.Query)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).val = val
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: key, val: val})
	c.items[key] = el
	if c.ll.Len() > c.cap {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// InvalidateConversation drops every cached page scoped to the
// conversation, plus unscoped pages since those may include it.
func (c *SearchCache) InvalidateConversation(convID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var next *list.Element
	for el := c.ll.Front(); el != nil; el = next {
		next = el.Next()
		e := el.Value.(*cacheEntry)
		if e.key.ConversationID == convID || e.key.ConversationID == "" {
			c.ll.Remove(el)
			delete(c.items, e.key)
		}
	}
}

// Len returns the number of cached pages.
func (c *SearchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
