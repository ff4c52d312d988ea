// Package api is the REST client for conversation CRUD against the backend.
// It covers the endpoints the stream does not: list/detail fetches, renames,
// pins, deletes and feedback. Transport-level failures are returned as
// errors for the caller's notifier; nothing here touches reducer state.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/hrygo/divinesense-console/client/model"
)

// Client talks to the backend's v1 REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for baseURL. token may be empty for
// unauthenticated development servers.
func NewClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ConversationPage is one page of the cursor-paginated conversation list.
type ConversationPage struct {
	Conversations []model.Conversation `json:"conversations"`
	NextPageToken string               `json:"next_page_token,omitempty"`
}

// ListConversations fetches one page of conversation summaries. An empty
// pageToken fetches the first page; an empty NextPageToken in the result
// means the listing is exhausted.
func (c *Client) ListConversations(ctx context.Context, pageToken string, pageSize int) (*ConversationPage, error) {
	query := url.Values{}
	if pageToken != "" {
		query.Set("page_token", pageToken)
	}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}

	var page ConversationPage
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations", query, nil, &page); err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	return &page, nil
}

type messagesResponse struct {
	Messages []model.Message `json:"messages"`
}

// ListMessages fetches the full message history of a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var resp messagesResponse
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "list messages for conversation %s", conversationID)
	}
	return resp.Messages, nil
}

// CreateConversation creates a conversation and returns the server's copy.
func (c *Client) CreateConversation(ctx context.Context, title string) (*model.Conversation, error) {
	body := map[string]any{"title": title}
	var conv model.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations", nil, body, &conv); err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	return &conv, nil
}

// ConversationUpdate carries the mutable conversation fields; nil means
// leave unchanged.
type ConversationUpdate struct {
	Title  *string `json:"title,omitempty"`
	Pinned *bool   `json:"pinned,omitempty"`
}

// UpdateConversation patches a conversation and returns the server's copy.
func (c *Client) UpdateConversation(ctx context.Context, id string, update ConversationUpdate) (*model.Conversation, error) {
	var conv model.Conversation
	path := "/api/v1/conversations/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, nil, update, &conv); err != nil {
		return nil, errors.Wrapf(err, "update conversation %s", id)
	}
	return &conv, nil
}

// DeleteConversation deletes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	path := "/api/v1/conversations/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return errors.Wrapf(err, "delete conversation %s", id)
	}
	return nil
}

// SubmitFeedback records the user's rating on a message.
func (c *Client) SubmitFeedback(ctx context.Context, messageID string, feedback model.Feedback) error {
	body := map[string]any{"feedback": feedback}
	path := "/api/v1/messages/" + url.PathEscape(messageID) + "/feedback"
	if err := c.do(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return errors.Wrapf(err, "submit feedback for message %s", messageID)
	}
	return nil
}

// TokenExpiresWithin reports whether the bearer token expires inside d.
// The claim is read without signature verification; only the server can
// verify, this is an early warning so the user can re-authenticate before
// requests start failing. Tokens without an exp claim report false.
func (c *Client) TokenExpiresWithin(d time.Duration) bool {
	if c.token == "" {
		return false
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(c.token, claims); err != nil {
		c.logger.Debug("Cannot inspect bearer token", "error", err)
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < d
}

// do performs one request/response round trip. A non-2xx status is returned
// as an error carrying the status code and a snippet of the body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// StatusError is a non-2xx REST response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}
