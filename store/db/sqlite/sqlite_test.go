package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense-console/client/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func cachedConv(id string, pinned bool, lastMessageAt time.Time) model.Conversation {
	return model.Conversation{
		ID:            id,
		Title:         "title-" + id,
		Pinned:        pinned,
		Owner:         "user-1",
		CreatedAt:     lastMessageAt.Add(-time.Hour),
		LastMessageAt: lastMessageAt,
	}
}

func TestUpsertAndListConversations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, time.March, 13, 12, 0, 0, 0, time.UTC)

	convs := []model.Conversation{
		cachedConv("c1", false, base),
		cachedConv("c2", true, base.Add(-48*time.Hour)),
		cachedConv("c3", false, base.Add(-time.Hour)),
	}
	require.NoError(t, db.UpsertConversations(ctx, convs))

	got, err := db.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Pinned first, then most recent.
	assert.Equal(t, "c2", got[0].ID)
	assert.Equal(t, "c1", got[1].ID)
	assert.Equal(t, "c3", got[2].ID)

	assert.Equal(t, "title-c1", got[1].Title)
	assert.Equal(t, "user-1", got[1].Owner)
	assert.True(t, got[1].LastMessageAt.Equal(base))
}

func TestUpsertConversations_UpdatesExistingRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, time.March, 13, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.UpsertConversations(ctx, []model.Conversation{cachedConv("c1", false, base)}))

	updated := cachedConv("c1", true, base.Add(time.Hour))
	updated.Title = "renamed"
	require.NoError(t, db.UpsertConversations(ctx, []model.Conversation{updated}))

	got, err := db.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "renamed", got[0].Title)
	assert.True(t, got[0].Pinned)
}

func TestUpsertConversations_EmptyInputIsNoop(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.UpsertConversations(context.Background(), nil))

	got, err := db.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteConversation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, time.March, 13, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.UpsertConversations(ctx, []model.Conversation{
		cachedConv("c1", false, base),
		cachedConv("c2", false, base),
	}))

	require.NoError(t, db.DeleteConversation(ctx, "c1"))
	require.NoError(t, db.DeleteConversation(ctx, "never-existed"))

	got, err := db.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].ID)
}

func TestNewDB_ReopenKeepsData(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()
	base := time.Date(2024, time.March, 13, 12, 0, 0, 0, time.UTC)

	db, err := NewDB(dsn)
	require.NoError(t, err)
	require.NoError(t, db.UpsertConversations(ctx, []model.Conversation{cachedConv("c1", false, base)}))
	require.NoError(t, db.Close())

	reopened, err := NewDB(dsn)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
}
