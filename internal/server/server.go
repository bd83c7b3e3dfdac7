package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/yusrasengun4/chat-app/internal/chat"
	"github.com/yusrasengun4/chat-app/internal/storage"
)

// Server defines fields used in HTTP and websocket processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	afterShutdown []func()
	h             *handler
}

// NewServer returns new Server struct with provided zap.SugaredLogger
// and storage.Store, wiring the chat core (presence, rooms, router and
// offline delivery) on top of the store.
func NewServer(logger *zap.SugaredLogger, store *storage.Store, opts ...Option) (*Server, error) {
	cfg := &config{
		httpServer: &http.Server{
			Addr: "0.0.0.0:9000",
		},
		sessionKey: []byte("dev-only-insecure-key"),
	}

	for _, opt := range opts {
		opt.apply(cfg)
	}

	cookies := sessions.NewCookieStore(cfg.sessionKey)
	cookies.Options.HttpOnly = true

	presence := chat.NewPresenceRegistry()
	rooms := chat.NewRoomRegistry(store)
	router := chat.NewRouter(logger, store, store, store, presence, rooms)
	offline := chat.NewOfflineDeliveryAgent(logger, store, presence)

	h := &handler{
		logger:   logger,
		store:    store,
		cookies:  cookies,
		router:   router,
		presence: presence,
		rooms:    rooms,
		offline:  offline,
	}

	authed := func(hf http.HandlerFunc) http.Handler {
		return requireSession(cookies, enforcePostJson(hf))
	}

	mux := http.NewServeMux()
	mux.Handle("/auth/register", enforcePostJson(http.HandlerFunc(h.register)))
	mux.Handle("/auth/login", enforcePostJson(http.HandlerFunc(h.login)))
	mux.Handle("/auth/logout", requireSession(cookies, http.HandlerFunc(h.logout)))
	mux.Handle("/auth/session", requireSession(cookies, http.HandlerFunc(h.sessionCheck)))
	mux.Handle("/users/get", authed(h.usersAll))
	mux.Handle("/users/online", authed(h.usersOnline))
	mux.Handle("/users/profile", authed(h.userProfile))
	mux.Handle("/users/search", authed(h.searchUsers))
	mux.Handle("/groups/add", authed(h.createGroup))
	mux.Handle("/groups/all", authed(h.allGroups))
	mux.Handle("/groups/info", authed(h.groupInfo))
	mux.Handle("/groups/get", authed(h.myGroups))
	mux.Handle("/groups/members/get", authed(h.groupMembers))
	mux.Handle("/groups/members/add", authed(h.addMember))
	mux.Handle("/groups/members/remove", authed(h.removeMember))
	mux.Handle("/messages/broadcast/get", authed(h.broadcastHistory))
	mux.Handle("/messages/group/get", authed(h.groupHistory))
	mux.Handle("/messages/private/get", authed(h.privateHistory))
	mux.Handle("/messages/read", authed(h.markRead))
	mux.Handle("/ws", requireSession(cookies, http.HandlerFunc(h.serveWs)))

	cfg.httpServer.Handler = logRequests(mux, logger.Desugar())

	return &Server{
		logger:        logger,
		httpServer:    cfg.httpServer,
		afterShutdown: cfg.afterShutdown,
		h:             h,
	}, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	for _, f := range s.afterShutdown {
		f()
	}

	return nil
}
