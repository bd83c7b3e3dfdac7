package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yusrasengun4/chat-app/internal/chat"
)

// authedRequest builds a POST request carrying an authenticated identity,
// skipping the cookie round-trip requireSession normally performs.
func authedRequest(t *testing.T, target string, body io.Reader) *http.Request {
	t.Helper()

	req, err := http.NewRequest("POST", target, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	ctx := context.WithValue(req.Context(), identityKey{}, identity{
		userID:   1,
		username: "alice",
	})
	return req.WithContext(ctx)
}

func TestWsCommandText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hi", wsCommand{Content: "hi"}.text())
	require.Equal(t, "hi", wsCommand{Message: "hi"}.text())
	// content wins when clients send both keys
	require.Equal(t, "new", wsCommand{Content: "new", Message: "old"}.text())
	require.Equal(t, "", wsCommand{}.text())
}

func TestSendErrorText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Message content is empty", sendErrorText(chat.ErrEmptyContent))
	require.Equal(t, "You are not a member of this group", sendErrorText(chat.ErrNotAMember))
	require.Equal(t, "Recipient does not exist", sendErrorText(chat.ErrUnknownRecipient))
	require.Equal(t, "Bad target reference", sendErrorText(chat.ErrBadTarget))
	require.Equal(t, "Send failed", sendErrorText(io.EOF))
}

func TestClientPushAfterClose(t *testing.T) {
	t.Parallel()

	c := &client{
		send:   make(chan []byte, 1),
		closed: make(chan struct{}),
	}
	c.close()

	err := c.Push(chat.Payload{Content: "late"})
	require.Equal(t, errConnClosed, err)
}

func TestClientPushBufferFull(t *testing.T) {
	t.Parallel()

	c := &client{
		send:   make(chan []byte, 1),
		closed: make(chan struct{}),
	}

	require.NoError(t, c.Push(chat.Payload{Content: "first"}))
	require.Equal(t, errSendBufferFull, c.Push(chat.Payload{Content: "second"}))
}

func TestClientPushQueues(t *testing.T) {
	t.Parallel()

	c := &client{
		send:   make(chan []byte, 4),
		closed: make(chan struct{}),
	}

	require.NoError(t, c.Push(chat.Payload{ID: 7, Content: "hello"}))

	raw := <-c.send
	require.True(t, bytes.Contains(raw, []byte(`"id":7`)))
	require.True(t, bytes.Contains(raw, []byte(`"content":"hello"`)))
	require.True(t, bytes.Contains(raw, []byte(`"message":"hello"`)))
}
