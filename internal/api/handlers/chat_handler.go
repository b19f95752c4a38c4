package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docubot/docubot-api/internal/api/middlewares"
	"github.com/docubot/docubot-api/internal/core"
	"github.com/docubot/docubot-api/internal/core/chat"
	"github.com/docubot/docubot-api/internal/models"
)

type ChatHandler struct {
	dbclient  core.DbClient
	responder *chat.Responder
	log       *zap.Logger
}

func NewChatHandler(dbclient core.DbClient, responder *chat.Responder, log *zap.Logger) *ChatHandler {
	return &ChatHandler{dbclient: dbclient, responder: responder, log: log}
}

type createSessionRequest struct {
	Title string `json:"title"`
}

func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	session := &models.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     req.Title,
		CreatedAt: time.Now(),
	}
	if err := h.dbclient.CreateChatSession(r.Context(), session); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

func (h *ChatHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sessions, err := h.dbclient.ListChatSessionsByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessage runs one chat turn and relays the responder's event stream
// to the client as server-sent events. Each event is one JSON object; the
// stream ends after a done or error event, or when the client disconnects.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sessionID := chi.URLParam(r, "session_id")

	session, err := h.dbclient.GetChatSessionByID(r.Context(), sessionID)
	if err != nil || session == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if session.UserID != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := h.responder.Respond(r.Context(), sessionID, userID, req.Message)
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.log.Error("encode stream event", zap.Error(err))
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}
