package state

import (
	"log/slog"

	"github.com/hrygo/divinesense-console/client/merge"
	"github.com/hrygo/divinesense-console/client/model"
)

// MessageAction is the closed set of message list actions.
type MessageAction interface {
	isMessageAction()
}

// MessageAdded appends a message. A message with an already-present id is a
// no-op, which makes duplicate delivery and retried sends harmless.
type MessageAdded struct {
	Message model.Message
}

// MessageAppended merges a streaming fragment into the message with the same
// id. A fragment for an untracked id is dropped: the conversation may have
// been switched away and the chunk must not resurrect a stale message.
type MessageAppended struct {
	Message model.Message
}

// MessageUpdated overwrites the set fields of an existing message
// (e.g. feedback). Fields are replaced wholesale, not deep merged.
type MessageUpdated struct {
	Message model.Message
}

// MessagesReplaced swaps the whole list, used on conversation switch.
type MessagesReplaced struct {
	Messages []model.Message
}

func (MessageAdded) isMessageAction() {}
func (MessageAppended) isMessageAction() {}
func (MessageUpdated) isMessageAction() {}
func (MessagesReplaced) isMessageAction() {}

// ReduceMessages applies an action to the active conversation's message list
// and returns the next state. The input slice is never mutated; no-op actions
// return it unchanged.
func ReduceMessages(messages []model.Message, action MessageAction, logger *slog.Logger) []model.Message {
	if logger == nil {
		logger = slog.Default()
	}

	switch a := action.(type) {
	case MessageAdded:
		if lastIndexByID(messages, a.Message.ID) >= 0 {
			return messages
		}
		next := make([]model.Message, 0, len(messages)+1)
		next = append(next, messages...)
		next = append(next, a.Message)
		return next

	case MessageAppended:
		at := lastIndexByID(messages, a.Message.ID)
		if at < 0 {
			logger.Warn("Dropping chunk for untracked message", "message_id", a.Message.ID)
			return messages
		}
		next := make([]model.Message, len(messages))
		copy(next, messages)
		next[at] = appendChunk(next[at], a.Message)
		return next

	case MessageUpdated:
		at := lastIndexByID(messages, a.Message.ID)
		if at < 0 {
			logger.Warn("Message to update not found", "message_id", a.Message.ID)
			return messages
		}
		next := make([]model.Message, len(messages))
		copy(next, messages)
		next[at] = overwriteFields(next[at], a.Message)
		return next

	case MessagesReplaced:
		next := make([]model.Message, len(a.Messages))
		copy(next, a.Messages)
		return next

	default:
		logger.Error("Unknown message action", "action", action)
		return messages
	}
}

// lastIndexByID searches from the tail: the actively streaming message is
// kept last, so merges hit on the first comparison in the common case.
func lastIndexByID(messages []model.Message, id string) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].ID == id {
			return i
		}
	}
	return -1
}

func appendChunk(existing, chunk model.Message) model.Message {
	existing.Content = merge.MergeContent(existing.Content, chunk.Content)
	if chunk.AdditionalKwargs != nil {
		existing.AdditionalKwargs = merge.DeepMerge(existing.AdditionalKwargs, chunk.AdditionalKwargs)
	}
	return existing
}

// overwriteFields shallow-merges the set fields of incoming onto existing.
// Zero values mean "not provided" and leave the existing field alone.
func overwriteFields(existing, incoming model.Message) model.Message {
	if incoming.Type != "" {
		existing.Type = incoming.Type
	}
	if incoming.Content != nil {
		existing.Content = incoming.Content
	}
	if incoming.AdditionalKwargs != nil {
		existing.AdditionalKwargs = incoming.AdditionalKwargs
	}
	if incoming.Feedback != model.FeedbackUnset {
		existing.Feedback = incoming.Feedback
	}
	if !incoming.SentAt.IsZero() {
		existing.SentAt = incoming.SentAt
	}
	if incoming.Attachments != nil {
		existing.Attachments = incoming.Attachments
	}
	if incoming.ConversationID != "" {
		existing.ConversationID = incoming.ConversationID
	}
	return existing
}
