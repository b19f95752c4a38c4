// Package chat implements the streaming retrieval-augmented responder:
// retrieve supporting chunks, stream the model's answer fragment by
// fragment, persist the finished turn with citations.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docubot/docubot-api/internal/core"
	"github.com/docubot/docubot-api/internal/models"
)

// Event types emitted on the response stream. Per request the sequence is
// start → chunk* → done, or error at any point, which ends the stream.
const (
	EventStart = "start"
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// StreamEvent is one element of the response sequence.
type StreamEvent struct {
	Type      string               `json:"type"`
	Content   string               `json:"content,omitempty"`
	Sources   []models.ChunkSource `json:"sources,omitempty"`
	MessageID string               `json:"message_id,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// Config tunes the responder.
//
// RetrievalLimit: chunks fetched per turn, clamped to keep prompts small.
// HistoryLimit:   prior messages given to the model as context.
type Config struct {
	RetrievalLimit int
	HistoryLimit   int
}

// Responder composes retrieval and streaming generation for one chat turn.
// All collaborators are injected.
type Responder struct {
	db        core.DbClient
	retriever core.Retriever
	llm       core.CompletionStreamer
	cfg       *Config
	log       *zap.Logger
}

func NewResponder(db core.DbClient, retriever core.Retriever, llm core.CompletionStreamer, cfg *Config, log *zap.Logger) *Responder {
	return &Responder{db: db, retriever: retriever, llm: llm, cfg: cfg, log: log}
}

// Respond runs one chat turn and returns the event stream. The channel is
// closed after the terminal done or error event.
//
// The user's message is persisted before anything else so it survives a
// failed generation. Fragments are forwarded in generation order with no
// buffering beyond accumulation for persistence. The assistant message is
// persisted only after the stream completes in full; a mid-stream failure
// or an abandoned stream persists nothing, so no silently truncated answer
// is ever stored.
func (r *Responder) Respond(ctx context.Context, sessionID, userID, message string) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		r.respond(ctx, sessionID, userID, message, out)
	}()
	return out
}

func (r *Responder) respond(ctx context.Context, sessionID, userID, message string, out chan<- StreamEvent) {
	userMsg := &models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   message,
		CreatedAt: time.Now(),
	}
	if err := r.db.AddChatMessage(ctx, userMsg); err != nil {
		r.emitError(ctx, out, fmt.Errorf("persist message: %w", err))
		return
	}

	if !r.emit(ctx, out, StreamEvent{Type: EventStart}) {
		return
	}

	history, err := r.db.RecentMessages(ctx, sessionID, r.cfg.HistoryLimit, userMsg.ID)
	if err != nil {
		r.emitError(ctx, out, fmt.Errorf("load history: %w", err))
		return
	}

	// A failed retrieval fails the turn; we never fall back to answering
	// without grounding.
	matches, err := r.retriever.Search(ctx, message, userID, r.cfg.RetrievalLimit)
	if err != nil {
		r.emitError(ctx, out, fmt.Errorf("retrieval: %w", err))
		return
	}

	prompt := buildPrompt(matches, message)
	frags, errc := r.llm.CompleteStream(ctx, prompt, history)

	var full strings.Builder
	for frag := range frags {
		full.WriteString(frag)
		if !r.emit(ctx, out, StreamEvent{Type: EventChunk, Content: frag}) {
			// Caller went away; drop the turn without persisting.
			return
		}
	}
	if err := <-errc; err != nil {
		r.emitError(ctx, out, fmt.Errorf("generation: %w", err))
		return
	}

	assistantMsg := &models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   full.String(),
		Sources:   models.Sources(matches),
		CreatedAt: time.Now(),
	}
	if err := r.db.AddChatMessage(ctx, assistantMsg); err != nil {
		r.emitError(ctx, out, fmt.Errorf("persist answer: %w", err))
		return
	}

	r.emit(ctx, out, StreamEvent{
		Type:      EventDone,
		Sources:   assistantMsg.Sources,
		MessageID: assistantMsg.ID,
	})
}

// emit forwards one event, reporting false if the caller abandoned the
// stream.
func (r *Responder) emit(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Responder) emitError(ctx context.Context, out chan<- StreamEvent, err error) {
	r.log.Warn("chat turn failed", zap.Error(err))
	r.emit(ctx, out, StreamEvent{Type: EventError, Error: err.Error()})
}

// buildPrompt folds the retrieved chunks and the question into one grounded
// prompt.
func buildPrompt(matches []models.ChunkMatch, question string) string {
	var sb strings.Builder
	sb.WriteString("Answer using only the context below. If the context does not contain the answer, say you cannot find it in the documents.\n\nContext:\n")
	for _, m := range matches {
		sb.WriteString(m.Content)
		sb.WriteString("\n---\n")
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}
