// Package model defines the conversation and message shapes exchanged with
// the DivineSense backend and held in the client-side stores.
package model

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// MessageType discriminates the inbound message envelope.
type MessageType string

const (
	// MessageTypeHuman is a complete user-authored message.
	MessageTypeHuman MessageType = "human"
	// MessageTypeAI is a complete assistant message.
	MessageTypeAI MessageType = "ai"
	// MessageTypeAIChunk is an incremental fragment of a streaming assistant reply.
	MessageTypeAIChunk MessageType = "AIMessageChunk"
	// MessageTypeInfo carries informational side-channel payloads (e.g. title generation).
	MessageTypeInfo MessageType = "info"
	// MessageTypeError carries a transport/server error to surface to the user.
	MessageTypeError MessageType = "error"
)

// Feedback is the user's rating on an assistant message.
type Feedback string

const (
	FeedbackUnset    Feedback = ""
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

// Attachment references a file attached to a message.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Mime string `json:"mime,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Message is a single entry in the active conversation's message list.
//
// Content is either a plain string or a []any of structured content blocks
// (each block a map[string]any, optionally carrying an integer "index" used
// for positional merging of streamed fragments). The loose typing mirrors
// the wire format, where content arrives as a JSON string-or-array union.
type Message struct {
	ID               string         `json:"id"`
	ConversationID   string         `json:"conversation_id,omitempty"`
	Type             MessageType    `json:"type"`
	Content          any            `json:"content"`
	AdditionalKwargs map[string]any `json:"additional_kwargs,omitempty"`
	Feedback         Feedback       `json:"feedback,omitempty"`
	SentAt           time.Time      `json:"sent_at,omitempty"`
	Attachments      []Attachment   `json:"attachments,omitempty"`
}

// ContentText flattens the message content into displayable text.
// Block lists are joined from their "text" fields; non-text blocks are skipped.
func (m *Message) ContentText() string {
	switch c := m.Content.(type) {
	case string:
		return c
	case []any:
		out := ""
		for _, item := range c {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := block["text"].(string); ok {
				out += text
			}
		}
		return out
	default:
		return ""
	}
}

// Conversation is a summary entry in the conversation list. Message bodies
// are never carried here; they live in the message store for the active
// conversation only.
type Conversation struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Pinned        bool      `json:"pinned"`
	Owner         string    `json:"owner,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// conversationJSON is the wire shape; timestamps may arrive as ISO-8601
// strings or epoch numbers depending on the endpoint.
type conversationJSON struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Pinned        bool            `json:"pinned"`
	Owner         string          `json:"owner,omitempty"`
	CreatedAt     json.RawMessage `json:"created_at"`
	LastMessageAt json.RawMessage `json:"last_message_at"`
}

// UnmarshalJSON accepts both string and numeric timestamp encodings.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	var raw conversationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.Title = raw.Title
	c.Pinned = raw.Pinned
	c.Owner = raw.Owner

	var err error
	if c.CreatedAt, err = parseTimestamp(raw.CreatedAt); err != nil {
		return errors.Wrap(err, "parse created_at")
	}
	if c.LastMessageAt, err = parseTimestamp(raw.LastMessageAt); err != nil {
		return errors.Wrap(err, "parse last_message_at")
	}
	return nil
}

// parseTimestamp decodes an ISO-8601 string or an epoch number
// (seconds, or milliseconds when the magnitude is clearly too large
// for seconds). A missing/null value decodes to the zero time.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
		}
		return t, nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, errors.Errorf("invalid timestamp %s", string(raw))
	}
	const millisThreshold = 1e12
	if n >= millisThreshold {
		return time.UnixMilli(int64(n)), nil
	}
	return time.Unix(int64(n), 0), nil
}
