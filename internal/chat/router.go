package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yusrasengun4/chat-app/internal/storage"
)

// MessageStore is the durable message log the router appends to and the
// offline agent drains from. *storage.Store satisfies it.
type MessageStore interface {
	CreateMessage(ctx context.Context, m *storage.Message) (int64, error)
	MarkMessageDelivered(ctx context.Context, id int64) error
	MarkMessageRead(ctx context.Context, id int64) error
	SetMessageOffline(ctx context.Context, id int64, offline bool) error
	OfflineMessages(ctx context.Context, user int64) ([]storage.Message, error)
}

// UserDirectory resolves user identities. The router only reads it.
type UserDirectory interface {
	UserByID(ctx context.Context, id int64) (*storage.User, error)
}

// GroupAuthorizer answers durable-membership checks.
type GroupAuthorizer interface {
	IsMember(ctx context.Context, user, group int64) (bool, error)
}

// Router validates a send intent, persists the message, resolves the
// recipient set against the live registries and dispatches pushes.
//
// Persistence always completes before any push is attempted, so a crash
// after Send returns can lose at most a live notification, never the
// message. Send is synchronous; the per-connection read loop being the
// only caller for a given sender yields per-sender ordering.
type Router struct {
	logger     *zap.SugaredLogger
	store      MessageStore
	directory  UserDirectory
	authorizer GroupAuthorizer
	presence   *PresenceRegistry
	rooms      *RoomRegistry
}

func NewRouter(logger *zap.SugaredLogger, store MessageStore, directory UserDirectory,
	authorizer GroupAuthorizer, presence *PresenceRegistry, rooms *RoomRegistry) *Router {
	return &Router{
		logger:     logger,
		store:      store,
		directory:  directory,
		authorizer: authorizer,
		presence:   presence,
		rooms:      rooms,
	}
}

// Send processes one send intent and returns the persisted message id.
// Validation and authorization failures happen before any side effect;
// a failed push after persistence is never surfaced as a send failure.
func (r *Router) Send(ctx context.Context, intent Intent) (int64, error) {
	content := strings.TrimSpace(intent.content)
	if content == "" {
		return 0, ErrEmptyContent
	}
	if !intent.kind.Valid() {
		return 0, ErrUnknownKind
	}

	m := &storage.Message{
		Sender:      intent.senderID,
		SenderName:  intent.senderName,
		Content:     content,
		ContentHash: ContentHash(content),
		Kind:        intent.kind,
		Status:      storage.StatusSent,
		CreatedAt:   time.Now(),
	}

	switch intent.kind {
	case storage.KindBroadcast:
		if intent.groupID != 0 || intent.receiverID != 0 {
			return 0, ErrBadTarget
		}

	case storage.KindGroup:
		if intent.groupID < 1 {
			return 0, ErrBadTarget
		}
		ok, err := r.authorizer.IsMember(ctx, intent.senderID, intent.groupID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrNotAMember
		}
		group := intent.groupID
		m.Group = &group

	case storage.KindPrivate:
		if intent.receiverID < 1 {
			return 0, ErrBadTarget
		}
		if _, err := r.directory.UserByID(ctx, intent.receiverID); err != nil {
			if errors.Is(err, storage.ErrUserNotExist) {
				return 0, ErrUnknownRecipient
			}
			return 0, err
		}
		receiver := intent.receiverID
		m.Receiver = &receiver
	}

	id, err := r.store.CreateMessage(ctx, m)
	if err != nil {
		return 0, err
	}
	m.ID = id

	r.dispatch(ctx, m)

	return id, nil
}

// dispatch fans the persisted message out to the recipient set of its
// kind. Push failures are best-effort losses for broadcast and group;
// for private they convert into the offline-pending state.
func (r *Router) dispatch(ctx context.Context, m *storage.Message) {
	switch m.Kind {
	case storage.KindBroadcast:
		// Presence snapshot at dispatch time: users connecting later
		// neither receive the push nor get queued; history is
		// retrievable on demand.
		for _, conn := range r.presence.Snapshot() {
			p := PayloadFromMessage(m, conn.UserID() == m.Sender)
			if err := conn.Push(p); err != nil {
				r.logger.Debugf("broadcast push to user %d skipped: %v", conn.UserID(), err)
			}
		}

	case storage.KindGroup:
		// Only live subscribers of the room receive the push. Members
		// not subscribed fetch history on demand; group messages never
		// enter the offline queue.
		for _, conn := range r.rooms.Subscribers(*m.Group) {
			p := PayloadFromMessage(m, conn.UserID() == m.Sender)
			if err := conn.Push(p); err != nil {
				r.logger.Debugf("group push to user %d skipped: %v", conn.UserID(), err)
			}
		}

	case storage.KindPrivate:
		// An offline receiver means zero live pushes, the sender echo
		// included; the message surfaces through the drain instead.
		conn, ok := r.presence.Lookup(*m.Receiver)
		if !ok {
			r.flagOffline(ctx, m.ID)
			return
		}

		if sender, ok := r.presence.Lookup(m.Sender); ok {
			if err := sender.Push(PayloadFromMessage(m, true)); err != nil {
				r.logger.Debugf("sender echo to user %d skipped: %v", m.Sender, err)
			}
		}

		// The receiver may have dropped between the lookup above and
		// this write; treat that exactly like "receiver was offline".
		if err := conn.Push(PayloadFromMessage(m, false)); err != nil {
			r.logger.Debugf("private push to user %d failed, queueing offline: %v", *m.Receiver, err)
			r.flagOffline(ctx, m.ID)
		}
	}
}

func (r *Router) flagOffline(ctx context.Context, id int64) {
	if err := r.store.SetMessageOffline(ctx, id, true); err != nil {
		r.logger.Errorf("flagging message %d offline-pending: %v", id, err)
	}
}

// MarkRead records the explicit user action of reading a message.
// Valid from sent or delivered; already-read messages are untouched.
func (r *Router) MarkRead(ctx context.Context, messageID int64) error {
	return r.store.MarkMessageRead(ctx, messageID)
}

// MarkDelivered records a client delivery acknowledgement for a
// live-pushed message.
func (r *Router) MarkDelivered(ctx context.Context, messageID int64) error {
	return r.store.MarkMessageDelivered(ctx, messageID)
}
