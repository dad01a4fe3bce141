// ABOUTME: Tests for the in-memory MockStore
// ABOUTME: Verifies interface compliance and parity with SQLiteStore semantics

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store interface compliance
var _ Store = (*MockStore)(nil)
var _ Store = (*SQLiteStore)(nil)

func TestMockStore_FindOrCreateUserByPhone(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	first, err := m.FindOrCreateUserByPhone(ctx, "+15551234567", "SMS user")
	require.NoError(t, err)

	second, err := m.FindOrCreateUserByPhone(ctx, "+15551234567", "SMS user")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestMockStore_SetProcessedOnce(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.SaveMessage(ctx, &Message{
		ID: "m1", ConversationID: "c1", SenderID: "u1", Raw: "raw", CreatedAt: time.Now(),
	}))

	require.NoError(t, m.SetProcessed(ctx, "m1", "summary", []string{"u1"}))
	assert.ErrorIs(t, m.SetProcessed(ctx, "m1", "again", nil), ErrAlreadyProcessed)
	assert.ErrorIs(t, m.SetProcessed(ctx, "missing", "x", nil), ErrNotFound)
}

func TestMockStore_LastNotificationTime(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	last, err := m.LastNotificationTime(ctx, "u1", NotificationChannelSMS)
	require.NoError(t, err)
	assert.Nil(t, last)

	sentAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, m.AppendNotificationLog(ctx, &NotificationLogEntry{
		ID: "n1", UserID: "u1", Channel: NotificationChannelSMS, SentAt: sentAt, Preview: "hi",
	}))

	last, err = m.LastNotificationTime(ctx, "u1", NotificationChannelSMS)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(sentAt))
}

func TestMockStore_GetConversationMessagesLimit(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, m.SaveMessage(ctx, &Message{
			ID:             "m" + string(rune('1'+i)),
			ConversationID: "c1",
			SenderID:       "u1",
			Raw:            "msg",
			CreatedAt:      time.Now().Add(time.Duration(i) * time.Minute),
		}))
	}

	messages, err := m.GetConversationMessages(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m3", messages[0].ID)
	assert.Equal(t, "m4", messages[1].ID)
}

func TestMockStore_MessagesSortedByCreatedAt(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	// Insert out of chronological order; reads must sort like SQLiteStore
	base := time.Now().Add(-time.Hour)
	for _, offset := range []time.Duration{3, 1, 4, 0, 2} {
		require.NoError(t, m.SaveMessage(ctx, &Message{
			ID:             "m" + string(rune('0'+offset)),
			ConversationID: "c1",
			SenderID:       "u1",
			Raw:            "msg",
			CreatedAt:      base.Add(offset * time.Minute),
		}))
	}

	messages, err := m.GetConversationMessages(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, messages, 5)
	for i, msg := range messages {
		assert.Equal(t, "m"+string(rune('0'+i)), msg.ID)
	}
}

func TestMockStore_SaveMessageStampsZeroCreatedAt(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.SaveMessage(ctx, &Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Raw: "hi"}))

	got, err := m.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMockStore_FindConversationForUserMostRecentActivity(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	older := &Conversation{ID: "c-old", Mode: ModeDirect, CreatedAt: base}
	newer := &Conversation{ID: "c-new", Mode: ModeDirect, CreatedAt: base.Add(time.Minute)}
	require.NoError(t, m.CreateConversation(ctx, older))
	require.NoError(t, m.CreateConversation(ctx, newer))
	require.NoError(t, m.AddParticipant(ctx, "c-old", "u1"))
	require.NoError(t, m.AddParticipant(ctx, "c-new", "u1"))

	// A late-timestamped message makes the older conversation the active one,
	// regardless of insertion order in the store
	require.NoError(t, m.SaveMessage(ctx, &Message{
		ID: "m1", ConversationID: "c-old", SenderID: "u1", Raw: "hi",
		CreatedAt: base.Add(30 * time.Minute),
	}))

	conv, err := m.FindConversationForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "c-old", conv.ID)
}
