package state

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense-console/client/grouping"
	"github.com/hrygo/divinesense-console/client/model"
)

func fixedReference() ReferenceFunc {
	return func() grouping.Reference {
		return grouping.NewReference(testNow, time.UTC)
	}
}

func TestConversationStore_DispatchAndFind(t *testing.T) {
	store := NewConversationStore(fixedReference(), nil)

	store.Dispatch(ConversationAdded{Conversation: testConv("a", false, testNow)})
	store.Dispatch(ConversationAdded{Conversation: testConv("b", true, testNow.Add(-time.Hour))})

	found, ok := store.Find("b")
	require.True(t, ok)
	assert.True(t, found.Pinned)

	_, ok = store.Find("ghost")
	assert.False(t, ok)

	assert.Len(t, store.Flat(), 2)
	assert.Equal(t, grouping.PinnedKey, store.Buckets()[0].Key)
}

func TestConversationStore_ConcurrentDispatch(t *testing.T) {
	store := NewConversationStore(fixedReference(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("c-%d", i)
			store.Dispatch(ConversationAdded{Conversation: testConv(id, false, testNow)})
			store.Find(id)
			store.Buckets()
		}()
	}
	wg.Wait()

	assert.Len(t, store.Flat(), 20)
}

func TestMessageStore_SnapshotIsolation(t *testing.T) {
	store := NewMessageStore(nil)
	store.Dispatch(MessageAdded{Message: testMsg("m1", model.MessageTypeHuman, "hi")})

	snapshot := store.Messages()
	store.Dispatch(MessageAdded{Message: testMsg("m2", model.MessageTypeAI, "hello")})

	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, store.Len())
	assert.True(t, store.Has("m2"))
	assert.False(t, store.Has("m3"))
}
