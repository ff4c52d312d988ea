// Package cache keeps recently viewed conversations' message histories in
// memory so switching back to a conversation does not refetch it.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/hrygo/divinesense-console/client/model"
)

// HistoryCache is an LRU cache of message lists keyed by conversation id,
// with TTL expiry.
type HistoryCache struct {
	capacity   int
	defaultTTL time.Duration
	mu         sync.Mutex

	entries map[string]*historyEntry
	order   *list.List // most recently used at the front
}

type historyEntry struct {
	conversationID string
	messages       []model.Message
	expiresAt      time.Time
	element        *list.Element
}

// NewHistoryCache creates a history cache. Non-positive arguments pick
// conservative defaults.
func NewHistoryCache(capacity int, defaultTTL time.Duration) *HistoryCache {
	if capacity <= 0 {
		capacity = 32
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &HistoryCache{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		entries:    make(map[string]*historyEntry),
		order:      list.New(),
	}
}

// Get returns the cached history for a conversation, if fresh.
func (c *HistoryCache) Get(conversationID string) ([]model.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[conversationID]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.removeEntry(e)
		return nil, false
	}

	c.order.MoveToFront(e.element)
	out := make([]model.Message, len(e.messages))
	copy(out, e.messages)
	return out, true
}

// Put stores a conversation's history, evicting the least recently used
// entry when at capacity.
func (c *HistoryCache) Put(conversationID string, messages []model.Message) {
	stored := make([]model.Message, len(messages))
	copy(stored, messages)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[conversationID]; ok {
		e.messages = stored
		e.expiresAt = time.Now().Add(c.defaultTTL)
		c.order.MoveToFront(e.element)
		return
	}

	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeEntry(oldest.Value.(*historyEntry))
	}

	e := &historyEntry{
		conversationID: conversationID,
		messages:       stored,
		expiresAt:      time.Now().Add(c.defaultTTL),
	}
	e.element = c.order.PushFront(e)
	c.entries[conversationID] = e
}

// Invalidate drops a conversation's cached history.
func (c *HistoryCache) Invalidate(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[conversationID]; ok {
		c.removeEntry(e)
	}
}

// Len returns the number of cached conversations.
func (c *HistoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *HistoryCache) removeEntry(e *historyEntry) {
	c.order.Remove(e.element)
	delete(c.entries, e.conversationID)
}
