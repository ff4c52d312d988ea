// Package state holds the client's two independent collections, the grouped
// conversation list and the active conversation's message list, as pure
// reducers wrapped in mutex-guarded stores.
//
// Reducers never fail: actions targeting missing ids and unrecognized action
// values are logged and leave the state unchanged, since an error mid-stream
// must never take down the view.
package state

import (
	"log/slog"
	"sort"
	"time"

	"github.com/hrygo/divinesense-console/client/grouping"
	"github.com/hrygo/divinesense-console/client/model"
)

// ConversationAction is the closed set of conversation list actions.
// One struct per action; the reducer matches exhaustively and keeps a
// defensive default branch for forward compatibility only.
type ConversationAction interface {
	isConversationAction()
}

// ConversationAdded inserts a conversation into its bucket, creating the
// bucket when absent.
type ConversationAdded struct {
	Conversation model.Conversation
}

// ConversationDeleted removes a conversation by id; its bucket is dropped
// the moment it becomes empty.
type ConversationDeleted struct {
	ID string
}

// ConversationRenamed replaces the title only, preserving position
// (a rename does not affect the sort key).
type ConversationRenamed struct {
	ID    string
	Title string
}

// ConversationReordered updates the pinned flag and last-message time of a
// conversation and regroups the whole collection; this is the only action
// that may move a conversation between buckets.
type ConversationReordered struct {
	ID            string
	Pinned        bool
	LastMessageAt time.Time
}

// ConversationsReplaced discards current state in favor of a freshly
// grouped flat list. Used on initial load.
type ConversationsReplaced struct {
	Conversations []model.Conversation
}

// ConversationsMerged folds an additional page of conversations into the
// current buckets without discarding already-fetched pages.
type ConversationsMerged struct {
	Conversations []model.Conversation
}

func (ConversationAdded) isConversationAction() {}
func (ConversationDeleted) isConversationAction() {}
func (ConversationRenamed) isConversationAction() {}
func (ConversationReordered) isConversationAction() {}
func (ConversationsReplaced) isConversationAction() {}
func (ConversationsMerged) isConversationAction() {}

// ReduceConversations applies an action to the grouped conversation list and
// returns the next state. The input buckets are never mutated.
func ReduceConversations(buckets []*grouping.Bucket, action ConversationAction, ref grouping.Reference, logger *slog.Logger) []*grouping.Bucket {
	if logger == nil {
		logger = slog.Default()
	}

	switch a := action.(type) {
	case ConversationAdded:
		return reduceConversationAdded(buckets, a.Conversation, ref)
	case ConversationDeleted:
		return reduceConversationDeleted(buckets, a.ID, logger)
	case ConversationRenamed:
		return reduceConversationRenamed(buckets, a.ID, a.Title, logger)
	case ConversationReordered:
		return reduceConversationReordered(buckets, a, ref, logger)
	case ConversationsReplaced:
		return grouping.Flatten(grouping.Group(a.Conversations, ref))
	case ConversationsMerged:
		return reduceConversationsMerged(buckets, a.Conversations, ref)
	default:
		logger.Error("Unknown conversation action", "action", action)
		return buckets
	}
}

func reduceConversationAdded(buckets []*grouping.Bucket, conv model.Conversation, ref grouping.Reference) []*grouping.Bucket {
	key, sortValue := grouping.Classify(conv, ref)

	next := make([]*grouping.Bucket, len(buckets))
	copy(next, buckets)

	for i, bucket := range next {
		if bucket.Key != key {
			continue
		}
		convs := make([]model.Conversation, 0, len(bucket.Conversations)+1)
		convs = append(convs, bucket.Conversations...)
		convs = append(convs, conv)
		grouping.SortConversations(convs)
		next[i] = &grouping.Bucket{Key: bucket.Key, SortValue: bucket.SortValue, Conversations: convs}
		return next
	}

	created := &grouping.Bucket{
		Key:           key,
		SortValue:     sortValue,
		Conversations: []model.Conversation{conv},
	}
	at := sort.Search(len(next), func(i int) bool {
		return next[i].SortValue < sortValue
	})
	next = append(next, nil)
	copy(next[at+1:], next[at:])
	next[at] = created
	return next
}

func reduceConversationDeleted(buckets []*grouping.Bucket, id string, logger *slog.Logger) []*grouping.Bucket {
	for i, bucket := range buckets {
		at := indexOfConversation(bucket.Conversations, id)
		if at < 0 {
			continue
		}

		next := make([]*grouping.Bucket, 0, len(buckets))
		next = append(next, buckets[:i]...)
		if len(bucket.Conversations) > 1 {
			convs := make([]model.Conversation, 0, len(bucket.Conversations)-1)
			convs = append(convs, bucket.Conversations[:at]...)
			convs = append(convs, bucket.Conversations[at+1:]...)
			next = append(next, &grouping.Bucket{Key: bucket.Key, SortValue: bucket.SortValue, Conversations: convs})
		}
		next = append(next, buckets[i+1:]...)
		return next
	}

	logger.Warn("Conversation to delete not found", "conversation_id", id)
	return buckets
}

func reduceConversationRenamed(buckets []*grouping.Bucket, id, title string, logger *slog.Logger) []*grouping.Bucket {
	for i, bucket := range buckets {
		at := indexOfConversation(bucket.Conversations, id)
		if at < 0 {
			continue
		}

		convs := make([]model.Conversation, len(bucket.Conversations))
		copy(convs, bucket.Conversations)
		convs[at].Title = title

		next := make([]*grouping.Bucket, len(buckets))
		copy(next, buckets)
		next[i] = &grouping.Bucket{Key: bucket.Key, SortValue: bucket.SortValue, Conversations: convs}
		return next
	}

	logger.Warn("Conversation to rename not found", "conversation_id", id)
	return buckets
}

func reduceConversationReordered(buckets []*grouping.Bucket, a ConversationReordered, ref grouping.Reference, logger *slog.Logger) []*grouping.Bucket {
	flat := FlattenConversations(buckets)
	found := false
	for i := range flat {
		if flat[i].ID == a.ID {
			flat[i].Pinned = a.Pinned
			flat[i].LastMessageAt = a.LastMessageAt
			found = true
			break
		}
	}
	if !found {
		logger.Warn("Conversation to reorder not found", "conversation_id", a.ID)
		return buckets
	}
	return grouping.Flatten(grouping.Group(flat, ref))
}

// reduceConversationsMerged unions an incoming grouped structure into the
// current one, walking both bucket lists by descending sort value in
// lockstep. On a key match the conversations are unioned by id with the
// incoming version winning; one-sided buckets pass through unchanged.
func reduceConversationsMerged(buckets []*grouping.Bucket, incoming []model.Conversation, ref grouping.Reference) []*grouping.Bucket {
	other := grouping.Flatten(grouping.Group(incoming, ref))

	next := make([]*grouping.Bucket, 0, len(buckets)+len(other))
	i, j := 0, 0
	for i < len(buckets) && j < len(other) {
		cur, inc := buckets[i], other[j]
		switch {
		case cur.Key == inc.Key:
			next = append(next, unionBuckets(cur, inc))
			i++
			j++
		case cur.SortValue >= inc.SortValue:
			next = append(next, cur)
			i++
		default:
			next = append(next, inc)
			j++
		}
	}
	next = append(next, buckets[i:]...)
	next = append(next, other[j:]...)
	return next
}

func unionBuckets(cur, inc *grouping.Bucket) *grouping.Bucket {
	convs := make([]model.Conversation, 0, len(cur.Conversations)+len(inc.Conversations))
	replaced := make(map[string]int, len(cur.Conversations))
	for _, conv := range cur.Conversations {
		replaced[conv.ID] = len(convs)
		convs = append(convs, conv)
	}
	for _, conv := range inc.Conversations {
		if at, ok := replaced[conv.ID]; ok {
			convs[at] = conv
			continue
		}
		convs = append(convs, conv)
	}
	grouping.SortConversations(convs)
	return &grouping.Bucket{Key: cur.Key, SortValue: cur.SortValue, Conversations: convs}
}

// FlattenConversations collects every conversation across buckets into a
// fresh flat slice, preserving bucket order.
func FlattenConversations(buckets []*grouping.Bucket) []model.Conversation {
	total := 0
	for _, bucket := range buckets {
		total += len(bucket.Conversations)
	}
	flat := make([]model.Conversation, 0, total)
	for _, bucket := range buckets {
		flat = append(flat, bucket.Conversations...)
	}
	return flat
}

func indexOfConversation(convs []model.Conversation, id string) int {
	for i := range convs {
		if convs[i].ID == id {
			return i
		}
	}
	return -1
}
