package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWs upgrades an authenticated request to a websocket connection,
// registers the user's presence and triggers the offline drain. The
// presence entry must exist before the drain so that messages sent
// while draining take the router's live path instead.
func (h *handler) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := currentIdentity(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("upgrading connection for user %d: %v", id.userID, err)
		return
	}

	c := &client{
		logger:   h.logger,
		userID:   id.userID,
		username: id.username,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		closed:   make(chan struct{}),
		router:   h.router,
		presence: h.presence,
		rooms:    h.rooms,
		store:    h.store,
		joined:   make(map[int64]struct{}),
	}

	h.presence.MarkOnline(c)
	if err := h.store.SetUserOnline(r.Context(), id.userID, true); err != nil {
		h.logger.Errorf("marking user %d online: %v", id.userID, err)
	}

	go c.writePump()
	go c.readPump()

	go func() {
		if _, err := h.offline.DrainPending(context.Background(), id.userID); err != nil {
			h.logger.Errorf("draining pending messages for user %d: %v", id.userID, err)
		}
	}()

	h.logger.Infof("user %s (id: %d) connected", id.username, id.userID)
}
