// Package dispatch routes inbound transport payloads to the conversation and
// message stores. It is the single registration point for the transport's
// receive callback.
//
// The coordinator is resilient per payload: a malformed or unroutable event
// is logged and dropped, and processing of subsequent events continues.
package dispatch

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/divinesense-console/client/model"
	"github.com/hrygo/divinesense-console/client/state"
)

// infoTypeTitleGenerated is the nested payload type on info envelopes
// announcing a server-generated conversation title.
const infoTypeTitleGenerated = "title-generated"

// Notifier surfaces transport/server errors to the user outside the stores.
type Notifier interface {
	Notify(severity, message string)
}

// envelope is the discriminated-union wire shape of a stream event.
type envelope struct {
	Type             string         `json:"type"`
	ID               string         `json:"id"`
	Content          any            `json:"content"`
	AdditionalKwargs map[string]any `json:"additional_kwargs,omitempty"`
	SentAt           string         `json:"sent_at,omitempty"`
}

// Coordinator fans inbound stream events out to the two stores.
type Coordinator struct {
	conversations *state.ConversationStore
	messages      *state.MessageStore
	notifier      Notifier
	logger        *slog.Logger

	mu       sync.RWMutex
	activeID string
}

// NewCoordinator wires a coordinator to its stores. notifier may be nil, in
// which case error events are only logged.
func NewCoordinator(conversations *state.ConversationStore, messages *state.MessageStore, notifier Notifier, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		conversations: conversations,
		messages:      messages,
		notifier:      notifier,
		logger:        logger,
	}
}

// SetActiveConversation records which conversation the message store
// currently tracks. Message events scoped to another conversation are
// dropped, so chunks arriving after a switch cannot pollute the new list.
func (c *Coordinator) SetActiveConversation(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeID = id
}

// ActiveConversation returns the currently tracked conversation id.
func (c *Coordinator) ActiveConversation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeID
}

// HandlePayload parses one inbound payload and routes it. Safe to hand to
// the transport as its receive handler.
func (c *Coordinator) HandlePayload(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.logger.Warn("Dropping malformed stream payload", "error", err)
		return
	}

	switch model.MessageType(env.Type) {
	case model.MessageTypeHuman, model.MessageTypeAI:
		c.handleMessage(env, false)
	case model.MessageTypeAIChunk:
		c.handleMessage(env, true)
	case model.MessageTypeInfo:
		c.handleInfo(env)
	case model.MessageTypeError:
		c.handleError(env)
	default:
		c.logger.Warn("Ignoring unknown stream event type", "type", env.Type)
	}
}

// handleMessage upserts complete messages and merges chunks. The first chunk
// of an assistant reply creates the message; later chunks merge into it.
func (c *Coordinator) handleMessage(env envelope, chunk bool) {
	if env.ID == "" {
		c.logger.Warn("Dropping message event without id", "type", env.Type)
		return
	}
	if !c.belongsToActive(env) {
		c.logger.Debug("Dropping message event for inactive conversation",
			"message_id", env.ID,
			"type", env.Type,
		)
		return
	}

	msg := messageFromEnvelope(env)
	switch {
	case !c.messages.Has(env.ID):
		c.messages.Dispatch(state.MessageAdded{Message: msg})
	case chunk:
		c.messages.Dispatch(state.MessageAppended{Message: msg})
	default:
		c.messages.Dispatch(state.MessageUpdated{Message: msg})
	}
}

// handleInfo currently understands title-generated payloads; anything else
// is logged and ignored.
func (c *Coordinator) handleInfo(env envelope) {
	infoType, _ := env.AdditionalKwargs["type"].(string)
	if infoType != infoTypeTitleGenerated {
		c.logger.Debug("Ignoring info event", "info_type", infoType)
		return
	}

	conversationID, _ := env.AdditionalKwargs["conversation_id"].(string)
	title, _ := env.AdditionalKwargs["title"].(string)
	if conversationID == "" || title == "" {
		c.logger.Warn("Dropping title-generated event with missing fields",
			"conversation_id", conversationID,
		)
		return
	}

	conv, ok := c.conversations.Find(conversationID)
	if !ok {
		c.logger.Warn("Title generated for unknown conversation", "conversation_id", conversationID)
		return
	}

	c.conversations.Dispatch(state.ConversationRenamed{ID: conversationID, Title: title})
	c.conversations.Dispatch(state.ConversationReordered{
		ID:            conversationID,
		Pinned:        conv.Pinned,
		LastMessageAt: eventTime(env),
	})
}

func (c *Coordinator) handleError(env envelope) {
	text, _ := env.Content.(string)
	if text == "" {
		text = "the server reported an error"
	}
	c.logger.Error("Stream error event", "message_id", env.ID, "detail", text)
	if c.notifier != nil {
		c.notifier.Notify("error", text)
	}
}

// belongsToActive checks the optional conversation scope on a message event.
// Events without a scope are assumed to target the active conversation.
// Scoped events are dropped when no conversation is active, so late chunks
// cannot land in a store that was just cleared.
func (c *Coordinator) belongsToActive(env envelope) bool {
	scope, _ := env.AdditionalKwargs["conversation_id"].(string)
	if scope == "" {
		return true
	}
	return c.ActiveConversation() == scope
}

func messageFromEnvelope(env envelope) model.Message {
	msg := model.Message{
		ID:               env.ID,
		Type:             model.MessageType(env.Type),
		Content:          env.Content,
		AdditionalKwargs: env.AdditionalKwargs,
		SentAt:           eventTime(env),
	}
	if scope, _ := env.AdditionalKwargs["conversation_id"].(string); scope != "" {
		msg.ConversationID = scope
	}
	return msg
}

// eventTime parses the envelope timestamp, falling back to now.
func eventTime(env envelope) time.Time {
	if env.SentAt == "" {
		return time.Now()
	}
	t, err := time.Parse(time.RFC3339, env.SentAt)
	if err != nil {
		return time.Now()
	}
	return t
}
