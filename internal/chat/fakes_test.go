package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/yusrasengun4/chat-app/internal/storage"
)

// fakeStore is an in-memory MessageStore recording every call.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]*storage.Message

	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[int64]*storage.Message)}
}

func (s *fakeStore) CreateMessage(_ context.Context, m *storage.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return 0, s.createErr
	}

	s.nextID++
	stored := *m
	stored.ID = s.nextID
	s.messages[stored.ID] = &stored
	return stored.ID, nil
}

func (s *fakeStore) MarkMessageDelivered(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return storage.ErrMessageNotExist
	}
	if m.Status == storage.StatusSent {
		m.Status = storage.StatusDelivered
		m.Offline = false
	}
	return nil
}

func (s *fakeStore) MarkMessageRead(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return storage.ErrMessageNotExist
	}
	if m.Status == storage.StatusSent || m.Status == storage.StatusDelivered {
		m.Status = storage.StatusRead
		m.Offline = false
	}
	return nil
}

func (s *fakeStore) SetMessageOffline(_ context.Context, id int64, offline bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return storage.ErrMessageNotExist
	}
	m.Offline = offline
	return nil
}

func (s *fakeStore) OfflineMessages(_ context.Context, user int64) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.Message
	for id := int64(1); id <= s.nextID; id++ {
		m, ok := s.messages[id]
		if ok && m.Offline && m.Receiver != nil && *m.Receiver == user {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *fakeStore) message(id int64) *storage.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil
	}
	copied := *m
	return &copied
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// fakeDirectory knows a fixed set of user ids.
type fakeDirectory struct {
	users map[int64]string
}

func (d *fakeDirectory) UserByID(_ context.Context, id int64) (*storage.User, error) {
	name, ok := d.users[id]
	if !ok {
		return nil, storage.ErrUserNotExist
	}
	return &storage.User{ID: id, Username: name}, nil
}

// fakeAuthorizer answers membership from a fixed map.
type fakeAuthorizer struct {
	members map[int64][]int64
}

func (a *fakeAuthorizer) IsMember(_ context.Context, user, group int64) (bool, error) {
	for _, id := range a.members[group] {
		if id == user {
			return true, nil
		}
	}
	return false, nil
}

// fakeConn collects pushed payloads; failing makes every Push error.
type fakeConn struct {
	mu       sync.Mutex
	userID   int64
	username string
	failing  bool
	pushed   []Payload
}

func (c *fakeConn) UserID() int64    { return c.userID }
func (c *fakeConn) Username() string { return c.username }

func (c *fakeConn) Push(p Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failing {
		return errors.New("connection gone")
	}
	c.pushed = append(c.pushed, p)
	return nil
}

func (c *fakeConn) payloads() []Payload {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Payload, len(c.pushed))
	copy(out, c.pushed)
	return out
}
