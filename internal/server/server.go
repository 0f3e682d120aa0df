// Package server exposes the gateway over HTTP. Routing stays on the
// standard library mux; the handlers are thin JSON plumbing around the
// store and the gateway.
package server

import (
	"log/slog"
	"net/http"
	"os"

	"ChatGate/internal/gateway"
	"ChatGate/internal/store"
)

type Server struct {
	gateway   *gateway.Gateway
	store     *store.Store
	logger    *slog.Logger
	staticDir string
}

func New(gw *gateway.Gateway, st *store.Store, logger *slog.Logger, staticDir string) *Server {
	return &Server{
		gateway:   gw,
		store:     st,
		logger:    logger,
		staticDir: staticDir,
	}
}

// Handler builds the full route table wrapped in the middleware stack.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("PUT /api/sessions/{id}", s.handleRenameSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("POST /api/sessions/{id}/chats", s.handleCreateChat)
	mux.HandleFunc("GET /api/sessions/{id}/chats", s.handleListChats)

	mux.HandleFunc("GET /api/chats/{id}/messages", s.handleGetMessages)
	mux.HandleFunc("POST /api/chats/{id}/messages", s.handlePostMessage)
	mux.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)

	mux.HandleFunc("POST /api/chat", s.handleEphemeral)

	if s.staticDir != "" {
		if _, err := os.Stat(s.staticDir); err == nil {
			mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
		}
	}

	return s.withRecover(s.withLogging(s.withCORS(mux)))
}
