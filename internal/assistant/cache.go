package assistant

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

const (
	DefaultCacheEntries = 256
	DefaultCacheTTL     = time.Hour
)

// Cached remembers replies of another assistant, so asking the same
// question about the same article again is answered locally.
type Cached struct {
	next  Assistant
	cache *replyCache
	ttl   time.Duration
	now   func() time.Time
}

func NewCached(next Assistant, maxEntries int, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: newReplyCache(maxEntries),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *Cached) Reply(ctx context.Context, req Request) (string, error) {
	key := replyCacheKey(req)
	now := c.now()

	if reply, ok := c.cache.get(key, now); ok {
		return reply, nil
	}

	reply, err := c.next.Reply(ctx, req)
	if err != nil {
		return "", err
	}

	c.cache.set(key, reply, now.Add(c.ttl), now)

	return reply, nil
}

func replyCacheKey(req Request) string {
	message := strings.ToLower(strings.Join(strings.Fields(req.Message), " "))
	if message == "" {
		return ""
	}

	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(req.ArticleContext)))
	h.Write([]byte{0})
	h.Write([]byte(message))

	return hex.EncodeToString(h.Sum(nil))
}

type replyCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
}

type replyCacheEntry struct {
	key       string
	reply     string
	expiresAt time.Time
}

// newReplyCache returns nil when maxEntries is not positive. A nil cache
// stores nothing.
func newReplyCache(maxEntries int) *replyCache {
	if maxEntries <= 0 {
		return nil
	}

	return &replyCache{
		entries:    make(map[string]*list.Element, maxEntries),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

func (c *replyCache) get(key string, now time.Time) (string, bool) {
	if c == nil || key == "" {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return "", false
	}

	entry := elem.Value.(*replyCacheEntry)
	if now.After(entry.expiresAt) {
		c.removeElement(elem)
		return "", false
	}

	c.order.MoveToFront(elem)

	return entry.reply, true
}

func (c *replyCache) set(key, reply string, expiresAt, now time.Time) {
	if c == nil || key == "" || reply == "" || !expiresAt.After(now) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*replyCacheEntry)
		entry.reply = reply
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	c.entries[key] = c.order.PushFront(&replyCacheEntry{
		key:       key,
		reply:     reply,
		expiresAt: expiresAt,
	})

	c.evictExpiredLocked(now)

	for len(c.entries) > c.maxEntries {
		c.removeElement(c.order.Back())
	}
}

func (c *replyCache) evictExpiredLocked(now time.Time) {
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*replyCacheEntry).expiresAt) {
			c.removeElement(elem)
		}
		elem = prev
	}
}

func (c *replyCache) removeElement(elem *list.Element) {
	delete(c.entries, elem.Value.(*replyCacheEntry).key)
	c.order.Remove(elem)
}
