// Package chat is the message routing and delivery core: it decides,
// for each outgoing message, who receives it live right now and who
// receives it later, while the presence and room state changes
// underneath it.
package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/yusrasengun4/chat-app/internal/storage"
)

// Connection is one live channel to an authenticated user. The
// transport layer owns its lifecycle; the core only pushes payloads
// through it. Push must be safe for concurrent use and must return an
// error instead of blocking once the connection is gone.
type Connection interface {
	UserID() int64
	Username() string
	Push(p Payload) error
}

// Payload is the wire shape delivered to clients over any transport.
// Message and Content always carry identical values: older clients read
// "message", newer ones read "content".
type Payload struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	SenderID  int64  `json:"senderId"`
	Message   string `json:"message"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	GroupID   int64  `json:"groupId,omitempty"`
	TargetID  int64  `json:"targetId,omitempty"`
	Timestamp string `json:"timestamp"`
	IsOwn     bool   `json:"isOwn,omitempty"`
}

// PayloadFromMessage renders a persisted message as its wire payload.
func PayloadFromMessage(m *storage.Message, own bool) Payload {
	p := Payload{
		ID:        m.ID,
		Sender:    m.SenderName,
		SenderID:  m.Sender,
		Message:   m.Content,
		Content:   m.Content,
		Type:      string(m.Kind),
		Timestamp: m.CreatedAt.Format(time.RFC3339),
		IsOwn:     own,
	}
	if m.Group != nil {
		p.GroupID = *m.Group
	}
	if m.Receiver != nil {
		p.TargetID = *m.Receiver
	}
	return p
}

// Intent is a validated-at-construction send request. The three
// constructors are the only way to build one, so a group intent can
// never carry a receiver id and vice versa.
type Intent struct {
	senderID   int64
	senderName string
	kind       storage.Kind
	content    string
	groupID    int64
	receiverID int64
}

// NewBroadcastIntent builds a send request addressed to every
// currently-present user.
func NewBroadcastIntent(senderID int64, senderName, content string) Intent {
	return Intent{
		senderID:   senderID,
		senderName: senderName,
		kind:       storage.KindBroadcast,
		content:    content,
	}
}

// NewGroupIntent builds a send request addressed to the live
// subscribers of a group room.
func NewGroupIntent(senderID int64, senderName string, groupID int64, content string) Intent {
	return Intent{
		senderID:   senderID,
		senderName: senderName,
		kind:       storage.KindGroup,
		content:    content,
		groupID:    groupID,
	}
}

// NewPrivateIntent builds a one-to-one send request.
func NewPrivateIntent(senderID int64, senderName string, receiverID int64, content string) Intent {
	return Intent{
		senderID:   senderID,
		senderName: senderName,
		kind:       storage.KindPrivate,
		content:    content,
		receiverID: receiverID,
	}
}

// ContentHash returns the SHA-256 hex digest of the message content,
// recorded alongside every message for integrity and dedup auditing.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
