package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresenceMarkOnline(t *testing.T) {
	registry := NewPresenceRegistry()

	alice := &fakeConn{userID: 1, username: "alice"}
	registry.MarkOnline(alice)

	conn, ok := registry.Lookup(1)
	require.True(t, ok)
	require.Equal(t, Connection(alice), conn)
	require.Equal(t, 1, registry.Count())
}

func TestPresenceReconnectSupersedes(t *testing.T) {
	registry := NewPresenceRegistry()

	old := &fakeConn{userID: 1, username: "alice"}
	fresh := &fakeConn{userID: 1, username: "alice"}
	registry.MarkOnline(old)
	registry.MarkOnline(fresh)

	conn, ok := registry.Lookup(1)
	require.True(t, ok)
	require.Equal(t, Connection(fresh), conn)
	require.Equal(t, 1, registry.Count())
}

func TestPresenceStaleDisconnectIgnored(t *testing.T) {
	registry := NewPresenceRegistry()

	old := &fakeConn{userID: 1, username: "alice"}
	fresh := &fakeConn{userID: 1, username: "alice"}
	registry.MarkOnline(old)
	registry.MarkOnline(fresh)

	// the old connection's teardown arrives after the reconnect
	require.False(t, registry.MarkOffline(old))

	conn, ok := registry.Lookup(1)
	require.True(t, ok)
	require.Equal(t, Connection(fresh), conn)
}

func TestPresenceMarkOffline(t *testing.T) {
	registry := NewPresenceRegistry()

	alice := &fakeConn{userID: 1, username: "alice"}
	registry.MarkOnline(alice)

	require.True(t, registry.MarkOffline(alice))
	_, ok := registry.Lookup(1)
	require.False(t, ok)

	// second teardown of the same connection is a no-op
	require.False(t, registry.MarkOffline(alice))
}

func TestPresenceSnapshot(t *testing.T) {
	registry := NewPresenceRegistry()

	registry.MarkOnline(&fakeConn{userID: 1, username: "alice"})
	registry.MarkOnline(&fakeConn{userID: 2, username: "bob"})

	snapshot := registry.Snapshot()
	require.Len(t, snapshot, 2)

	// mutations after the snapshot do not affect it
	registry.MarkOnline(&fakeConn{userID: 3, username: "carol"})
	require.Len(t, snapshot, 2)
}

func TestPresenceConcurrentAccess(t *testing.T) {
	registry := NewPresenceRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			conn := &fakeConn{userID: id}
			registry.MarkOnline(conn)
			registry.Lookup(id)
			registry.Snapshot()
			registry.MarkOffline(conn)
		}(int64(i))
	}
	wg.Wait()

	require.Equal(t, 0, registry.Count())
}
