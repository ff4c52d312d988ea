// Package store persists conversation summaries locally so the list renders
// instantly on startup, before the network round trip completes. The server
// remains the source of truth; this is a cache, not a sync target.
package store

import (
	"context"

	"github.com/hrygo/divinesense-console/client/model"
)

// Driver is the storage backend interface.
type Driver interface {
	UpsertConversations(ctx context.Context, convs []model.Conversation) error
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	Close() error
}

// Store provides access to the local cache.
type Store struct {
	driver Driver
}

// New creates a new instance of Store.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

func (s *Store) UpsertConversations(ctx context.Context, convs []model.Conversation) error {
	return s.driver.UpsertConversations(ctx, convs)
}

func (s *Store) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	return s.driver.ListConversations(ctx)
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	return s.driver.DeleteConversation(ctx, id)
}

func (s *Store) Close() error {
	return s.driver.Close()
}
