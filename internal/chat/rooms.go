package chat

import (
	"context"
	"sync"
)

// RoomRegistry maps a group id to the set of connections currently
// subscribed to that group's live room. Live subscription is distinct
// from durable membership: an authorized member may not be subscribed,
// and sends are authorized against durable membership regardless.
type RoomRegistry struct {
	mu         sync.RWMutex
	authorizer GroupAuthorizer
	rooms      map[int64]map[Connection]struct{}
}

func NewRoomRegistry(authorizer GroupAuthorizer) *RoomRegistry {
	return &RoomRegistry{
		authorizer: authorizer,
		rooms:      make(map[int64]map[Connection]struct{}),
	}
}

// Join subscribes conn to the group's room after checking durable
// membership. A non-member fails with ErrNotAMember and nothing is
// registered. The membership check runs outside the registry lock.
func (r *RoomRegistry) Join(ctx context.Context, groupID int64, conn Connection) error {
	ok, err := r.authorizer.IsMember(ctx, conn.UserID(), groupID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAMember
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[groupID]
	if !ok {
		room = make(map[Connection]struct{})
		r.rooms[groupID] = room
	}
	room[conn] = struct{}{}

	return nil
}

// Leave unsubscribes conn from the group's room. Leaving a room not
// joined is a no-op, not an error.
func (r *RoomRegistry) Leave(groupID int64, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[groupID]
	if !ok {
		return
	}

	delete(room, conn)
	if len(room) == 0 {
		delete(r.rooms, groupID)
	}
}

// Subscribers returns the connections subscribed to the group's room at
// call time.
func (r *RoomRegistry) Subscribers(groupID int64) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[groupID]
	conns := make([]Connection, 0, len(room))
	for conn := range room {
		conns = append(conns, conn)
	}
	return conns
}
