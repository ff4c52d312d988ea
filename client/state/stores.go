package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/divinesense-console/client/grouping"
	"github.com/hrygo/divinesense-console/client/model"
)

// ReferenceFunc supplies the grouping reference for a reduction. Taking it
// per dispatch keeps bucket classification correct across midnight.
type ReferenceFunc func() grouping.Reference

// NowReference returns a ReferenceFunc evaluating time.Now in loc.
func NowReference(loc *time.Location) ReferenceFunc {
	return func() grouping.Reference {
		return grouping.NewReference(time.Now(), loc)
	}
}

// ConversationStore holds the grouped conversation list behind a mutex.
// All mutation goes through Dispatch; reads return snapshots.
type ConversationStore struct {
	mu      sync.RWMutex
	buckets []*grouping.Bucket

	reference ReferenceFunc
	logger    *slog.Logger
}

// NewConversationStore creates an empty conversation store.
func NewConversationStore(reference ReferenceFunc, logger *slog.Logger) *ConversationStore {
	if logger == nil {
		logger = slog.Default()
	}
	if reference == nil {
		reference = NowReference(nil)
	}
	return &ConversationStore{reference: reference, logger: logger}
}

// Dispatch applies an action through the reducer.
func (s *ConversationStore) Dispatch(action ConversationAction) {
	ref := s.reference()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = ReduceConversations(s.buckets, action, ref, s.logger)
}

// Buckets returns the current ordered bucket list. The returned slice is a
// copy; the buckets themselves are never mutated after a reduction, so
// holding on to them is safe.
func (s *ConversationStore) Buckets() []*grouping.Bucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*grouping.Bucket, len(s.buckets))
	copy(out, s.buckets)
	return out
}

// Flat returns every conversation across buckets in display order.
func (s *ConversationStore) Flat() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FlattenConversations(s.buckets)
}

// Find locates a conversation by id across all buckets.
func (s *ConversationStore) Find(id string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, bucket := range s.buckets {
		if at := indexOfConversation(bucket.Conversations, id); at >= 0 {
			return bucket.Conversations[at], true
		}
	}
	return model.Conversation{}, false
}

// MessageStore holds the active conversation's message list behind a mutex.
type MessageStore struct {
	mu       sync.RWMutex
	messages []model.Message
	logger   *slog.Logger
}

// NewMessageStore creates an empty message store.
func NewMessageStore(logger *slog.Logger) *MessageStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageStore{logger: logger}
}

// Dispatch applies an action through the reducer.
func (s *MessageStore) Dispatch(action MessageAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = ReduceMessages(s.messages, action, s.logger)
}

// Messages returns a snapshot of the current message list.
func (s *MessageStore) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Has reports whether a message with the given id is tracked.
func (s *MessageStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastIndexByID(s.messages, id) >= 0
}

// Len returns the number of tracked messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
