package chat

import (
	"sync"
	"time"
)

type presenceEntry struct {
	conn     Connection
	joinedAt time.Time
}

// PresenceRegistry is the process-wide map from user id to that user's
// single live connection. At most one connection per user exists at a
// time: a reconnect replaces the stored one. All methods are safe under
// concurrent invocation from independent connection lifecycles.
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[int64]presenceEntry
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		entries: make(map[int64]presenceEntry),
	}
}

// MarkOnline registers conn as the live connection of its user,
// superseding any previously stored connection. The previous connection
// is not closed here; that is the transport's concern.
func (r *PresenceRegistry) MarkOnline(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[conn.UserID()] = presenceEntry{
		conn:     conn,
		joinedAt: time.Now(),
	}
}

// MarkOffline removes the user's entry only if conn is the one
// currently stored. A stale disconnect arriving after a fresh reconnect
// therefore cannot evict the new connection. Reports whether an entry
// was removed.
func (r *PresenceRegistry) MarkOffline(conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[conn.UserID()]
	if !ok || entry.conn != conn {
		return false
	}

	delete(r.entries, conn.UserID())
	return true
}

// Lookup returns the user's live connection, if any.
func (r *PresenceRegistry) Lookup(userID int64) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[userID]
	return entry.conn, ok
}

// Snapshot returns the connections present at call time. Connections
// arriving afterwards are not part of the returned set.
func (r *PresenceRegistry) Snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Connection, 0, len(r.entries))
	for _, entry := range r.entries {
		conns = append(conns, entry.conn)
	}
	return conns
}

// Count returns the number of live connections.
func (r *PresenceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
