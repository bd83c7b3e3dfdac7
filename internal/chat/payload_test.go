package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yusrasengun4/chat-app/internal/storage"
)

func TestPayloadFromMessage(t *testing.T) {
	receiver := int64(2)
	created := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

	m := &storage.Message{
		ID:         42,
		Sender:     1,
		SenderName: "alice",
		Receiver:   &receiver,
		Content:    "hello",
		Kind:       storage.KindPrivate,
		CreatedAt:  created,
	}

	p := PayloadFromMessage(m, true)
	require.Equal(t, int64(42), p.ID)
	require.Equal(t, "alice", p.Sender)
	require.Equal(t, int64(1), p.SenderID)
	require.Equal(t, "private", p.Type)
	require.Equal(t, int64(2), p.TargetID)
	require.Zero(t, p.GroupID)
	require.Equal(t, "2025-03-14T15:09:26Z", p.Timestamp)
	require.True(t, p.IsOwn)

	// message and content always carry the same text
	require.Equal(t, "hello", p.Message)
	require.Equal(t, p.Message, p.Content)
}

func TestPayloadWireKeys(t *testing.T) {
	group := int64(10)
	m := &storage.Message{
		ID:         7,
		Sender:     1,
		SenderName: "alice",
		Group:      &group,
		Content:    "team update",
		Kind:       storage.KindGroup,
		CreatedAt:  time.Now(),
	}

	raw, err := json.Marshal(PayloadFromMessage(m, false))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	for _, key := range []string{"id", "sender", "senderId", "message", "content", "type", "groupId", "timestamp"} {
		require.Contains(t, decoded, key)
	}
	// zero-valued optional keys are omitted
	require.NotContains(t, decoded, "targetId")
	require.NotContains(t, decoded, "isOwn")
}

func TestContentHash(t *testing.T) {
	require.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		ContentHash("hello"))
	require.NotEqual(t, ContentHash("hello"), ContentHash("hello "))
}
