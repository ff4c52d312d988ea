// Package session orchestrates the REST client, the stream transport and
// the two state stores across one client session: initial hydration,
// pagination, conversation switching and user-initiated mutations.
//
// Mutation policy is confirm-then-apply: rename, pin and delete hit the
// backend first and touch local state only on success, so local state never
// silently diverges from the server. Sending a message is the one optimistic
// exception; a duplicate delivery after a retried send is absorbed by the
// message store's idempotent add.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/hrygo/divinesense-console/client/api"
	"github.com/hrygo/divinesense-console/client/cache"
	"github.com/hrygo/divinesense-console/client/dispatch"
	"github.com/hrygo/divinesense-console/client/model"
	"github.com/hrygo/divinesense-console/client/state"
	"github.com/hrygo/divinesense-console/store"
)

// Backend is the REST surface the syncer needs; satisfied by *api.Client.
type Backend interface {
	ListConversations(ctx context.Context, pageToken string, pageSize int) (*api.ConversationPage, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	CreateConversation(ctx context.Context, title string) (*model.Conversation, error)
	UpdateConversation(ctx context.Context, id string, update api.ConversationUpdate) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	SubmitFeedback(ctx context.Context, messageID string, feedback model.Feedback) error
}

// Sender is the outbound stream surface; satisfied by *transport.Supervisor.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// Session ties the collaborators together. All methods are safe for
// concurrent use.
type Session struct {
	backend       Backend
	sender        Sender
	conversations *state.ConversationStore
	messages      *state.MessageStore
	coordinator   *dispatch.Coordinator
	local         *store.Store // may be nil (cache disabled)
	history       *cache.HistoryCache
	logger        *slog.Logger

	pageSize  int
	fetches   singleflight.Group
	pageToken pageCursor
}

// NewSession wires a session. local may be nil to disable the startup cache.
func NewSession(
	backend Backend,
	sender Sender,
	conversations *state.ConversationStore,
	messages *state.MessageStore,
	coordinator *dispatch.Coordinator,
	local *store.Store,
	pageSize int,
	logger *slog.Logger,
) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Session{
		backend:       backend,
		sender:        sender,
		conversations: conversations,
		messages:      messages,
		coordinator:   coordinator,
		local:         local,
		history:       cache.NewHistoryCache(32, 5*time.Minute),
		logger:        logger,
		pageSize:      pageSize,
	}
}

// Initialize hydrates the conversation list: local cache first for an
// instant render, then the first network page as the authoritative replace.
// When the network is down the cached list stays up and the error is
// returned for the notifier.
func (s *Session) Initialize(ctx context.Context) error {
	if s.local != nil {
		cached, err := s.local.ListConversations(ctx)
		if err != nil {
			s.logger.Warn("Cannot hydrate from local cache", "error", err)
		} else if len(cached) > 0 {
			s.conversations.Dispatch(state.ConversationsReplaced{Conversations: cached})
		}
	}

	page, err := s.backend.ListConversations(ctx, "", s.pageSize)
	if err != nil {
		return errors.Wrap(err, "initial conversation fetch")
	}

	s.conversations.Dispatch(state.ConversationsReplaced{Conversations: page.Conversations})
	s.pageToken.set(page.NextPageToken)
	s.persistSummaries(ctx)
	return nil
}

// LoadMore fetches the next conversation page and merges it into the
// grouped list without discarding already-fetched pages. Returns false when
// the listing is exhausted.
func (s *Session) LoadMore(ctx context.Context) (bool, error) {
	token, ok := s.pageToken.get()
	if !ok {
		return false, nil
	}

	page, err := s.backend.ListConversations(ctx, token, s.pageSize)
	if err != nil {
		return true, errors.Wrap(err, "fetch conversation page")
	}

	s.conversations.Dispatch(state.ConversationsMerged{Conversations: page.Conversations})
	s.pageToken.set(page.NextPageToken)
	s.persistSummaries(ctx)
	return page.NextPageToken != "", nil
}

// SwitchConversation makes a conversation active: its history is fetched
// (or served from the in-memory cache), the message store is replaced
// wholesale, and the coordinator is rescoped so late chunks for the previous
// conversation are dropped.
//
// The fetch completes before the replace and before the rescope, which is
// the ordering the stream merge rules rely on.
func (s *Session) SwitchConversation(ctx context.Context, conversationID string) error {
	history, ok := s.history.Get(conversationID)
	if !ok {
		fetched, err, _ := s.fetches.Do(conversationID, func() (any, error) {
			return s.backend.ListMessages(ctx, conversationID)
		})
		if err != nil {
			return errors.Wrapf(err, "fetch history for conversation %s", conversationID)
		}
		history = fetched.([]model.Message)
		s.history.Put(conversationID, history)
	}

	s.coordinator.SetActiveConversation(conversationID)
	s.messages.Dispatch(state.MessagesReplaced{Messages: history})
	return nil
}

// Send delivers a user message over the stream, tracking it optimistically.
// The returned message carries the locally assigned id the server will echo.
func (s *Session) Send(ctx context.Context, text string) (model.Message, error) {
	conversationID := s.coordinator.ActiveConversation()
	msg := model.Message{
		ID:             shortuuid.New(),
		ConversationID: conversationID,
		Type:           model.MessageTypeHuman,
		Content:        text,
		SentAt:         time.Now(),
	}

	s.messages.Dispatch(state.MessageAdded{Message: msg})
	if conversationID != "" {
		if conv, ok := s.conversations.Find(conversationID); ok {
			s.conversations.Dispatch(state.ConversationReordered{
				ID:            conversationID,
				Pinned:        conv.Pinned,
				LastMessageAt: msg.SentAt,
			})
		}
	}

	payload, err := json.Marshal(map[string]any{
		"type":    string(msg.Type),
		"id":      msg.ID,
		"content": text,
		"additional_kwargs": map[string]any{
			"conversation_id": conversationID,
		},
		"sent_at": msg.SentAt.Format(time.RFC3339),
	})
	if err != nil {
		return msg, errors.Wrap(err, "encode outbound message")
	}

	if err := s.sender.Send(ctx, payload); err != nil {
		return msg, errors.Wrap(err, "deliver message")
	}
	return msg, nil
}

// CreateConversation creates a conversation server-side, applies it locally
// and makes it active with an empty history.
func (s *Session) CreateConversation(ctx context.Context, title string) (model.Conversation, error) {
	conv, err := s.backend.CreateConversation(ctx, title)
	if err != nil {
		return model.Conversation{}, errors.Wrap(err, "create conversation")
	}

	s.conversations.Dispatch(state.ConversationAdded{Conversation: *conv})
	s.coordinator.SetActiveConversation(conv.ID)
	s.messages.Dispatch(state.MessagesReplaced{Messages: nil})
	s.persistSummaries(ctx)
	return *conv, nil
}

// Rename renames a conversation, confirm-then-apply.
func (s *Session) Rename(ctx context.Context, conversationID, title string) error {
	if _, err := s.backend.UpdateConversation(ctx, conversationID, api.ConversationUpdate{Title: &title}); err != nil {
		return errors.Wrapf(err, "rename conversation %s", conversationID)
	}
	s.conversations.Dispatch(state.ConversationRenamed{ID: conversationID, Title: title})
	s.persistSummaries(ctx)
	return nil
}

// SetPinned pins or unpins a conversation, confirm-then-apply. The grouping
// change (into or out of the pinned bucket) happens via the reorder action.
func (s *Session) SetPinned(ctx context.Context, conversationID string, pinned bool) error {
	conv, ok := s.conversations.Find(conversationID)
	if !ok {
		return errors.Errorf("unknown conversation %s", conversationID)
	}

	if _, err := s.backend.UpdateConversation(ctx, conversationID, api.ConversationUpdate{Pinned: &pinned}); err != nil {
		return errors.Wrapf(err, "pin conversation %s", conversationID)
	}

	s.conversations.Dispatch(state.ConversationReordered{
		ID:            conversationID,
		Pinned:        pinned,
		LastMessageAt: conv.LastMessageAt,
	})
	s.persistSummaries(ctx)
	return nil
}

// Delete deletes a conversation, confirm-then-apply. If it was active, the
// message store is emptied and the coordinator descoped.
func (s *Session) Delete(ctx context.Context, conversationID string) error {
	if err := s.backend.DeleteConversation(ctx, conversationID); err != nil {
		return errors.Wrapf(err, "delete conversation %s", conversationID)
	}

	s.conversations.Dispatch(state.ConversationDeleted{ID: conversationID})
	s.history.Invalidate(conversationID)
	if s.coordinator.ActiveConversation() == conversationID {
		s.coordinator.SetActiveConversation("")
		s.messages.Dispatch(state.MessagesReplaced{Messages: nil})
	}

	if s.local != nil {
		if err := s.local.DeleteConversation(ctx, conversationID); err != nil {
			s.logger.Warn("Cannot drop conversation from local cache",
				"conversation_id", conversationID,
				"error", err,
			)
		}
	}
	return nil
}

// SetFeedback records feedback on a message, confirm-then-apply.
func (s *Session) SetFeedback(ctx context.Context, messageID string, feedback model.Feedback) error {
	if err := s.backend.SubmitFeedback(ctx, messageID, feedback); err != nil {
		return errors.Wrapf(err, "submit feedback for message %s", messageID)
	}
	s.messages.Dispatch(state.MessageUpdated{Message: model.Message{ID: messageID, Feedback: feedback}})
	return nil
}

// persistSummaries mirrors the current flat conversation list into the local
// cache, best-effort.
func (s *Session) persistSummaries(ctx context.Context) {
	if s.local == nil {
		return
	}
	if err := s.local.UpsertConversations(ctx, s.conversations.Flat()); err != nil {
		s.logger.Warn("Cannot persist conversation summaries", "error", err)
	}
}
