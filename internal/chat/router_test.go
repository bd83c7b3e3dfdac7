package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yusrasengun4/chat-app/internal/storage"
)

func testRouter(t *testing.T) (*Router, *fakeStore, *PresenceRegistry, *RoomRegistry) {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	store := newFakeStore()
	directory := &fakeDirectory{users: map[int64]string{
		1: "alice",
		2: "bob",
		3: "carol",
	}}
	authorizer := &fakeAuthorizer{members: map[int64][]int64{
		10: {1, 2},
	}}
	presence := NewPresenceRegistry()
	rooms := NewRoomRegistry(authorizer)

	return NewRouter(logger.Sugar(), store, directory, authorizer, presence, rooms), store, presence, rooms
}

func TestSendEmptyContent(t *testing.T) {
	router, store, _, _ := testRouter(t)

	_, err := router.Send(context.Background(), NewBroadcastIntent(1, "alice", "   \t  "))
	require.Equal(t, ErrEmptyContent, err)
	require.Equal(t, 0, store.count())
}

func TestSendBroadcast(t *testing.T) {
	router, store, presence, _ := testRouter(t)

	alice := &fakeConn{userID: 1, username: "alice"}
	bob := &fakeConn{userID: 2, username: "bob"}
	presence.MarkOnline(alice)
	presence.MarkOnline(bob)

	id, err := router.Send(context.Background(), NewBroadcastIntent(1, "alice", "hello everyone"))
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	m := store.message(id)
	require.NotNil(t, m)
	require.Equal(t, storage.KindBroadcast, m.Kind)
	require.Equal(t, storage.StatusSent, m.Status)
	require.False(t, m.Offline)

	require.Len(t, alice.payloads(), 1)
	require.True(t, alice.payloads()[0].IsOwn)
	require.Len(t, bob.payloads(), 1)
	require.False(t, bob.payloads()[0].IsOwn)
}

func TestSendBroadcastLateConnectionGetsNothing(t *testing.T) {
	router, _, presence, _ := testRouter(t)

	_, err := router.Send(context.Background(), NewBroadcastIntent(1, "alice", "early bird"))
	require.NoError(t, err)

	carol := &fakeConn{userID: 3, username: "carol"}
	presence.MarkOnline(carol)

	require.Empty(t, carol.payloads())
}

func TestSendGroup(t *testing.T) {
	router, store, _, rooms := testRouter(t)

	alice := &fakeConn{userID: 1, username: "alice"}
	bob := &fakeConn{userID: 2, username: "bob"}
	require.NoError(t, rooms.Join(context.Background(), 10, alice))
	require.NoError(t, rooms.Join(context.Background(), 10, bob))

	id, err := router.Send(context.Background(), NewGroupIntent(1, "alice", 10, "team update"))
	require.NoError(t, err)

	m := store.message(id)
	require.NotNil(t, m.Group)
	require.Equal(t, int64(10), *m.Group)
	require.Nil(t, m.Receiver)

	require.Len(t, bob.payloads(), 1)
	require.Equal(t, int64(10), bob.payloads()[0].GroupID)
}

func TestSendGroupNotAMember(t *testing.T) {
	router, store, _, _ := testRouter(t)

	_, err := router.Send(context.Background(), NewGroupIntent(3, "carol", 10, "let me in"))
	require.Equal(t, ErrNotAMember, err)
	require.Equal(t, 0, store.count())
}

func TestSendGroupBadTarget(t *testing.T) {
	router, _, _, _ := testRouter(t)

	_, err := router.Send(context.Background(), NewGroupIntent(1, "alice", 0, "nowhere"))
	require.Equal(t, ErrBadTarget, err)
}

func TestSendGroupUnsubscribedMemberGetsNothing(t *testing.T) {
	router, _, _, rooms := testRouter(t)

	alice := &fakeConn{userID: 1, username: "alice"}
	require.NoError(t, rooms.Join(context.Background(), 10, alice))

	// bob is a durable member but never joined the room
	bob := &fakeConn{userID: 2, username: "bob"}

	_, err := router.Send(context.Background(), NewGroupIntent(1, "alice", 10, "subscribers only"))
	require.NoError(t, err)
	require.Empty(t, bob.payloads())
}

func TestSendPrivateLive(t *testing.T) {
	router, store, presence, _ := testRouter(t)

	alice := &fakeConn{userID: 1, username: "alice"}
	bob := &fakeConn{userID: 2, username: "bob"}
	presence.MarkOnline(alice)
	presence.MarkOnline(bob)

	id, err := router.Send(context.Background(), NewPrivateIntent(1, "alice", 2, "hi bob"))
	require.NoError(t, err)

	m := store.message(id)
	require.False(t, m.Offline)
	require.NotNil(t, m.Receiver)
	require.Equal(t, int64(2), *m.Receiver)

	require.Len(t, bob.payloads(), 1)
	require.False(t, bob.payloads()[0].IsOwn)
	require.Equal(t, int64(2), bob.payloads()[0].TargetID)

	// sender echo
	require.Len(t, alice.payloads(), 1)
	require.True(t, alice.payloads()[0].IsOwn)
}

func TestSendPrivateOfflineReceiver(t *testing.T) {
	router, store, presence, _ := testRouter(t)

	alice := &fakeConn{userID: 1, username: "alice"}
	presence.MarkOnline(alice)

	id, err := router.Send(context.Background(), NewPrivateIntent(1, "alice", 2, "are you there"))
	require.NoError(t, err)

	m := store.message(id)
	require.True(t, m.Offline)
	require.Equal(t, storage.StatusSent, m.Status)

	// zero live pushes, the sender echo included
	require.Empty(t, alice.payloads())
}

func TestSendPrivatePushFailureFallsBackToOffline(t *testing.T) {
	router, store, presence, _ := testRouter(t)

	bob := &fakeConn{userID: 2, username: "bob", failing: true}
	presence.MarkOnline(bob)

	id, err := router.Send(context.Background(), NewPrivateIntent(1, "alice", 2, "hi bob"))
	require.NoError(t, err)

	require.True(t, store.message(id).Offline)
}

func TestSendPrivateUnknownRecipient(t *testing.T) {
	router, store, _, _ := testRouter(t)

	_, err := router.Send(context.Background(), NewPrivateIntent(1, "alice", 99, "void"))
	require.Equal(t, ErrUnknownRecipient, err)
	require.Equal(t, 0, store.count())
}

func TestSendBroadcastWithTarget(t *testing.T) {
	router, _, _, _ := testRouter(t)

	intent := NewBroadcastIntent(1, "alice", "hello")
	intent.groupID = 10

	_, err := router.Send(context.Background(), intent)
	require.Equal(t, ErrBadTarget, err)
}

func TestMarkReadTransition(t *testing.T) {
	router, store, _, _ := testRouter(t)

	id, err := router.Send(context.Background(), NewPrivateIntent(1, "alice", 2, "read me"))
	require.NoError(t, err)

	require.NoError(t, router.MarkRead(context.Background(), id))
	m := store.message(id)
	require.Equal(t, storage.StatusRead, m.Status)
	require.False(t, m.Offline)
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	router, store, _, _ := testRouter(t)

	id, err := router.Send(context.Background(), NewPrivateIntent(1, "alice", 2, "ack me"))
	require.NoError(t, err)

	require.NoError(t, router.MarkDelivered(context.Background(), id))
	require.NoError(t, router.MarkDelivered(context.Background(), id))
	require.Equal(t, storage.StatusDelivered, store.message(id).Status)
}

func TestMarkDeliveredNeverDowngradesRead(t *testing.T) {
	router, store, _, _ := testRouter(t)

	id, err := router.Send(context.Background(), NewPrivateIntent(1, "alice", 2, "one way"))
	require.NoError(t, err)

	require.NoError(t, router.MarkRead(context.Background(), id))
	require.NoError(t, router.MarkDelivered(context.Background(), id))
	require.Equal(t, storage.StatusRead, store.message(id).Status)
}
