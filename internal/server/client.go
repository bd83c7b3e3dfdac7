package server

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yusrasengun4/chat-app/internal/chat"
	"github.com/yusrasengun4/chat-app/internal/storage"
)

var (
	writeWait      = 10 * time.Second
	maxMessageSize = int64(4096)
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// wsCommand is one inbound frame from a client. Content and Message are
// both accepted for the text body; clients differ on which key they send.
type wsCommand struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Message   string `json:"message"`
	GroupID   int64  `json:"group_id"`
	TargetID  int64  `json:"target_id"`
	MessageID int64  `json:"message_id"`
}

func (c wsCommand) text() string {
	if c.Content != "" {
		return c.Content
	}
	return c.Message
}

// client is one live websocket connection bound to an authenticated
// user. It implements chat.Connection: the core pushes payloads into
// the buffered send channel and the write pump flushes them to the peer.
type client struct {
	logger   *zap.SugaredLogger
	userID   int64
	username string

	conn *websocket.Conn
	send chan []byte

	closed    chan struct{}
	closeOnce sync.Once

	router   *chat.Router
	presence *chat.PresenceRegistry
	rooms    *chat.RoomRegistry
	store    *storage.Store

	// rooms this connection joined; touched only by the read pump
	joined map[int64]struct{}
}

func (c *client) UserID() int64    { return c.userID }
func (c *client) Username() string { return c.username }

// Push queues a payload for delivery. It never blocks: a closed
// connection or a full buffer yields an error, which the core treats as
// "this target is not live".
func (c *client) Push(p chat.Payload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.enqueue(raw)
}

func (c *client) enqueue(raw []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.send <- raw:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		return errSendBufferFull
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// status sends an out-of-band status/error frame to this client only.
func (c *client) status(kind, message string) {
	raw, err := json.Marshal(map[string]string{"type": kind, "content": message})
	if err != nil {
		return
	}
	_ = c.enqueue(raw)
}

// readPump consumes inbound frames until the connection dies, then
// performs the disconnect obligations: leave every joined room, remove
// the presence entry (only if still ours) and flip the directory flag.
func (c *client) readPump() {
	defer func() {
		for groupID := range c.joined {
			c.rooms.Leave(groupID, c)
		}
		if c.presence.MarkOffline(c) {
			if err := c.store.SetUserOnline(context.Background(), c.userID, false); err != nil {
				c.logger.Errorf("marking user %d offline: %v", c.userID, err)
			}
		}
		c.close()
		c.conn.Close()
		c.logger.Infof("user %s (id: %d) disconnected", c.username, c.userID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debugf("read from user %d: %v", c.userID, err)
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.status("error", "Malformed frame")
			continue
		}

		c.handle(cmd)
	}
}

// handle executes one inbound command. Router calls are synchronous on
// purpose: one frame is fully persisted and dispatched before the next
// is read, which gives this sender its ordering guarantee.
func (c *client) handle(cmd wsCommand) {
	ctx := context.Background()

	switch cmd.Type {
	case "broadcast":
		if _, err := c.router.Send(ctx, chat.NewBroadcastIntent(c.userID, c.username, cmd.text())); err != nil {
			c.status("error", sendErrorText(err))
		}

	case "group":
		if _, err := c.router.Send(ctx, chat.NewGroupIntent(c.userID, c.username, cmd.GroupID, cmd.text())); err != nil {
			c.status("error", sendErrorText(err))
		}

	case "private":
		if _, err := c.router.Send(ctx, chat.NewPrivateIntent(c.userID, c.username, cmd.TargetID, cmd.text())); err != nil {
			c.status("error", sendErrorText(err))
		}

	case "join_room":
		if err := c.rooms.Join(ctx, cmd.GroupID, c); err != nil {
			c.status("error", sendErrorText(err))
			return
		}
		c.joined[cmd.GroupID] = struct{}{}
		c.status("status", "Joined room "+strconv.FormatInt(cmd.GroupID, 10))

	case "leave_room":
		c.rooms.Leave(cmd.GroupID, c)
		delete(c.joined, cmd.GroupID)

	case "mark_read":
		if err := c.router.MarkRead(ctx, cmd.MessageID); err != nil {
			c.logger.Errorf("marking message %d read: %v", cmd.MessageID, err)
		}

	case "mark_delivered":
		if err := c.router.MarkDelivered(ctx, cmd.MessageID); err != nil {
			c.logger.Errorf("marking message %d delivered: %v", cmd.MessageID, err)
		}

	default:
		c.status("error", "Unknown command type")
	}
}

func sendErrorText(err error) string {
	switch {
	case errors.Is(err, chat.ErrEmptyContent):
		return "Message content is empty"
	case errors.Is(err, chat.ErrNotAMember):
		return "You are not a member of this group"
	case errors.Is(err, chat.ErrUnknownRecipient):
		return "Recipient does not exist"
	case errors.Is(err, chat.ErrBadTarget):
		return "Bad target reference"
	default:
		return "Send failed"
	}
}

// writePump flushes queued payloads to the peer and keeps the
// connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.logger.Debugf("write to user %d: %v", c.userID, err)
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
