// Package server is the HTTP surface of the assistant: an SSE chat endpoint,
// a read-only transcript API, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/wayfarer/internal/gateway"
	"github.com/user/wayfarer/internal/state"
	"github.com/user/wayfarer/internal/types"
)

// Chat starts gateway turns. *gateway.Gateway satisfies it.
type Chat interface {
	HandleTurn(ctx context.Context, req gateway.Request) (*gateway.Turn, error)
}

// Conversations lists and looks up conversations.
type Conversations interface {
	List(ctx context.Context) ([]*types.Conversation, error)
	Get(ctx context.Context, id types.ConversationID) (*types.Conversation, error)
}

// Messages reads conversation transcripts.
type Messages interface {
	Tail(ctx context.Context, id types.ConversationID, limit int) ([]*types.Message, error)
	Count(ctx context.Context, id types.ConversationID) (int, error)
}

// Server is the HTTP handler for the chat API.
type Server struct {
	chat          Chat
	conversations Conversations
	messages      Messages
	router        *mux.Router
}

// New creates a Server and registers its routes.
func New(chat Chat, conversations Conversations, messages Messages) *Server {
	s := &Server{
		chat:          chat,
		conversations: conversations,
		messages:      messages,
		router:        mux.NewRouter(),
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)
	s.router.HandleFunc("/api/conversations", s.handleConversations).Methods(http.MethodGet)
	s.router.HandleFunc("/api/conversations/{id}/messages", s.handleMessages).Methods(http.MethodGet)
	return s
}

// ServeHTTP delegates to the router, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// chatRequest is the JSON body of POST /api/chat.
type chatRequest struct {
	ConversationID string             `json:"conversationId,omitempty"`
	Messages       []*types.Message   `json:"messages,omitempty"`
	Message        string             `json:"message"`
	Mode           string             `json:"mode,omitempty"`
	TripContext    *types.TripContext `json:"tripContext,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	mode, err := types.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	turn, err := s.chat.HandleTurn(r.Context(), gateway.Request{
		ConversationID: types.ConversationID(req.ConversationID),
		History:        req.Messages,
		Message:        req.Message,
		Mode:           mode,
		Trip:           req.TripContext,
	})
	switch {
	case errors.Is(err, state.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	case errors.Is(err, state.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	case r.Context().Err() != nil:
		return
	case err != nil:
		slog.Error("chat turn failed", "mode", mode, "error", err)
		writeError(w, http.StatusBadGateway, "failed to process chat request")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Conversation-Id", string(turn.Conversation.ID))
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for e := range turn.Events {
		if err := writeEvent(w, e); err != nil {
			slog.Warn("sse write failed", "conversation", turn.Conversation.ID, "error", err)
			break
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			break
		}
	}
	// Hold the response open until the exchange is on disk so a follow-up
	// request sees it in the transcript.
	if _, err := turn.Wait(r.Context()); err != nil {
		slog.Debug("client left before turn was persisted", "conversation", turn.Conversation.ID)
	}
}

// writeEvent frames one event as "event: <type>\ndata: <json>\n\n".
func writeEvent(w http.ResponseWriter, e types.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
	return err
}

type conversationResponse struct {
	ID           string             `json:"id"`
	Key          string             `json:"key"`
	Title        string             `json:"title"`
	Status       string             `json:"status"`
	Trip         *types.TripContext `json:"tripContext,omitempty"`
	CreatedAt    string             `json:"createdAt"`
	UpdatedAt    string             `json:"updatedAt"`
	MessageCount int                `json:"messageCount"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	convs, err := s.conversations.List(ctx)
	if err != nil {
		slog.Error("list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	result := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		count, err := s.messages.Count(ctx, c.ID)
		if err != nil {
			slog.Warn("count messages failed", "conversation", c.ID, "error", err)
		}
		result = append(result, conversationResponse{
			ID:           string(c.ID),
			Key:          string(c.Key),
			Title:        c.Title,
			Status:       c.Status,
			Trip:         c.Trip,
			CreatedAt:    c.CreatedAt.Format(time.RFC3339),
			UpdatedAt:    c.UpdatedAt.Format(time.RFC3339),
			MessageCount: count,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := types.ConversationID(mux.Vars(r)["id"])

	if _, err := s.conversations.Get(ctx, id); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		slog.Error("get conversation failed", "conversation", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := s.messages.Tail(ctx, id, limit)
	if err != nil {
		slog.Error("tail messages failed", "conversation", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if msgs == nil {
		msgs = []*types.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
