package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/ChatCall/internal/domain"
)

func newTestStore(t *testing.T) *MessageStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	require.NoError(t, AutoMigrate(db))
	return NewMessageStore(db)
}

func msg(id string, from, to domain.UserID, at time.Time) *domain.Message {
	return &domain.Message{
		ID:          id,
		SenderID:    from,
		ReceiverID:  to,
		Text:        "msg " + id,
		ContentType: domain.ContentText,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func TestConversationReturnsBothDirectionsOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateMessage(ctx, msg("01", "alice", "bob", base)))
	require.NoError(t, s.CreateMessage(ctx, msg("02", "bob", "alice", base.Add(time.Second))))
	require.NoError(t, s.CreateMessage(ctx, msg("03", "alice", "carol", base.Add(2*time.Second))))
	require.NoError(t, s.CreateMessage(ctx, msg("04", "alice", "bob", base.Add(3*time.Second))))

	got, err := s.Conversation(ctx, "bob", "alice", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "01", got[0].ID)
	assert.Equal(t, "02", got[1].ID)
	assert.Equal(t, "04", got[2].ID)
	assert.Equal(t, domain.UserID("bob"), got[1].SenderID)
}

func TestConversationLimitKeepsLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"01", "02", "03"} {
		require.NoError(t, s.CreateMessage(ctx, msg(id, "alice", "bob", base.Add(time.Duration(i)*time.Second))))
	}

	got, err := s.Conversation(ctx, "alice", "bob", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "02", got[0].ID)
	assert.Equal(t, "03", got[1].ID)
}

func TestCreateMessageDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.CreateMessage(ctx, msg("01", "alice", "bob", now)))
	assert.Error(t, s.CreateMessage(ctx, msg("01", "alice", "bob", now)))
}

func TestConversationWithoutSchema(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "bare.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	_, err = NewMessageStore(db).Conversation(context.Background(), "a", "b", 10)
	assert.Error(t, err)
}
