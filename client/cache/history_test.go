package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense-console/client/model"
)

func history(ids ...string) []model.Message {
	msgs := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, model.Message{ID: id, Type: model.MessageTypeAI, Content: id})
	}
	return msgs
}

func TestHistoryCache_PutGet(t *testing.T) {
	c := NewHistoryCache(4, time.Minute)

	c.Put("c1", history("m1", "m2"))

	got, ok := c.Get("c1")
	require.True(t, ok)
	assert.Len(t, got, 2)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestHistoryCache_CopiesDefendAgainstMutation(t *testing.T) {
	c := NewHistoryCache(4, time.Minute)
	source := history("m1")
	c.Put("c1", source)
	source[0].Content = "mutated after put"

	got, ok := c.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "m1", got[0].Content)

	got[0].Content = "mutated after get"
	again, _ := c.Get("c1")
	assert.Equal(t, "m1", again[0].Content)
}

func TestHistoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewHistoryCache(2, time.Minute)
	c.Put("c1", history("a"))
	c.Put("c2", history("b"))

	// Touch c1 so c2 becomes the eviction candidate.
	_, ok := c.Get("c1")
	require.True(t, ok)

	c.Put("c3", history("c"))

	_, ok = c.Get("c2")
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = c.Get("c1")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestHistoryCache_TTLExpiry(t *testing.T) {
	c := NewHistoryCache(4, 10*time.Millisecond)
	c.Put("c1", history("a"))

	_, ok := c.Get("c1")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = c.Get("c1")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry removed on read")
}

func TestHistoryCache_Invalidate(t *testing.T) {
	c := NewHistoryCache(4, time.Minute)
	c.Put("c1", history("a"))

	c.Invalidate("c1")
	c.Invalidate("never-existed")

	_, ok := c.Get("c1")
	assert.False(t, ok)
}

func TestHistoryCache_PutReplacesExisting(t *testing.T) {
	c := NewHistoryCache(4, time.Minute)
	c.Put("c1", history("old"))
	c.Put("c1", history("new", "newer"))

	got, ok := c.Get("c1")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, 1, c.Len())
}

func TestHistoryCache_DefaultsOnBadArguments(t *testing.T) {
	c := NewHistoryCache(0, 0)
	for i := 0; i < 40; i++ {
		c.Put(fmt.Sprintf("c%d", i), history("m"))
	}
	assert.Equal(t, 32, c.Len())
}
