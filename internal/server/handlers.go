package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"ChatGate/internal/conversation"
	"ChatGate/internal/provider"
)

type sessionRequest struct {
	Name string `json:"name"`
}

type chatRequest struct {
	Title string `json:"title"`
}

type turnRequest struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Provider string `json:"provider,omitempty"`
}

type ephemeralRequest struct {
	Messages []conversation.Message `json:"messages"`
	Provider string                 `json:"provider,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.store.CreateSession(r.Context(), req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.RenameSession(r.Context(), r.PathValue("id"), req.Name); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	chat, err := s.store.CreateChat(r.Context(), r.PathValue("id"), req.Title)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, chat)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListChats(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, chats)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	chat, err := s.store.LoadChat(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, chat.Messages)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteChat(r.Context(), r.PathValue("id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Content == "" {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "content is required"})
		return
	}
	reply, err := s.gateway.PostMessage(r.Context(), r.PathValue("id"), req.Role, req.Content, req.Provider)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleEphemeral(w http.ResponseWriter, r *http.Request) {
	var req ephemeralRequest
	if !s.decode(w, r, &req) {
		return
	}
	reply, err := s.gateway.Ephemeral(r.Context(), req.Messages, req.Provider)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, reply)
}

// decode tolerates an empty body so optional-field requests can omit it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// respondError maps domain errors to status codes. Upstream and internal
// details are logged with request context but never echoed to the caller.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var callErr *provider.CallError

	switch {
	case errors.Is(err, conversation.ErrSessionNotFound),
		errors.Is(err, conversation.ErrChatNotFound):
		s.respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})

	case errors.Is(err, provider.ErrUnsupportedProvider):
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "unsupported provider"})

	case errors.Is(err, provider.ErrEmptyHistory):
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "history contains no user message"})

	case errors.As(err, &callErr):
		s.logger.Error("provider call failed",
			"path", r.URL.Path, "provider", callErr.Provider, "error", callErr.Err)
		s.respondJSON(w, http.StatusBadGateway, errorResponse{Error: "provider call failed"})

	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		s.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
