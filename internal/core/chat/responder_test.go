package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docubot/docubot-api/internal/core"
	"github.com/docubot/docubot-api/internal/models"
)

type fakeMessageStore struct {
	core.DbClient

	mu       sync.Mutex
	messages []models.ChatMessage
	history  []models.ChatMessage
	addErr   error
}

func (f *fakeMessageStore) AddChatMessage(_ context.Context, m *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil && m.Role == models.RoleAssistant {
		return f.addErr
	}
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeMessageStore) RecentMessages(_ context.Context, sessionID string, limit int, excludeID string) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, nil
}

func (f *fakeMessageStore) persisted() []models.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ChatMessage, len(f.messages))
	copy(out, f.messages)
	return out
}

type fakeRetriever struct {
	matches []models.ChunkMatch
	err     error
	lastQ   string
}

func (f *fakeRetriever) Search(_ context.Context, query, userID string, limit int) ([]models.ChunkMatch, error) {
	f.lastQ = query
	return f.matches, f.err
}

// fakeStreamer yields its fragments in order, then terminates with err
// (nil for a clean finish).
type fakeStreamer struct {
	frags []string
	err   error
}

func (f *fakeStreamer) CompleteStream(ctx context.Context, prompt string, history []models.ChatMessage) (<-chan string, <-chan error) {
	frags := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(frags)
		for _, fr := range f.frags {
			select {
			case frags <- fr:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		errc <- f.err
	}()
	return frags, errc
}

func newTestResponder(store *fakeMessageStore, retr *fakeRetriever, llm *fakeStreamer) *Responder {
	return NewResponder(store, retr, llm, &Config{RetrievalLimit: 5, HistoryLimit: 20}, zap.NewNop())
}

func collect(events <-chan StreamEvent) []StreamEvent {
	var out []StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestRespondSuccess(t *testing.T) {
	store := &fakeMessageStore{}
	retr := &fakeRetriever{matches: []models.ChunkMatch{
		{DocumentID: "doc-1", ChunkIndex: 2, Content: "relevant text", Similarity: 0.92},
		{DocumentID: "doc-2", ChunkIndex: 0, Content: "more text", Similarity: 0.81},
	}}
	llm := &fakeStreamer{frags: []string{"Hello", ", ", "world."}}

	events := collect(newTestResponder(store, retr, llm).Respond(context.Background(), "sess-1", "user-1", "what is up?"))

	require.Len(t, events, 5) // start + 3 chunks + done
	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, []StreamEvent{
		{Type: EventChunk, Content: "Hello"},
		{Type: EventChunk, Content: ", "},
		{Type: EventChunk, Content: "world."},
	}, events[1:4], "fragments forwarded in generation order")

	done := events[4]
	assert.Equal(t, EventDone, done.Type)
	assert.NotEmpty(t, done.MessageID)
	require.Len(t, done.Sources, 2)
	assert.Equal(t, models.ChunkSource{DocumentID: "doc-1", ChunkIndex: 2, Similarity: 0.92}, done.Sources[0])

	msgs := store.persisted()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role, "user message persisted before the answer")
	assert.Equal(t, "what is up?", msgs[0].Content)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello, world.", msgs[1].Content)
	assert.Equal(t, done.Sources, msgs[1].Sources)
	assert.Equal(t, done.MessageID, msgs[1].ID)

	assert.Equal(t, "what is up?", retr.lastQ, "retrieval runs on the user's message text")
}

func TestRespondStreamErrorAfterFragments(t *testing.T) {
	store := &fakeMessageStore{}
	retr := &fakeRetriever{}
	llm := &fakeStreamer{frags: []string{"partial ", "answer"}, err: errors.New("upstream hiccup")}

	events := collect(newTestResponder(store, retr, llm).Respond(context.Background(), "sess-1", "user-1", "hi"))

	require.Len(t, events, 4) // start + 2 chunks + error
	assert.Equal(t, EventChunk, events[1].Type)
	assert.Equal(t, EventChunk, events[2].Type)
	last := events[3]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Error, "upstream hiccup")

	msgs := store.persisted()
	require.Len(t, msgs, 1, "no assistant message persisted for a failed generation")
	assert.Equal(t, models.RoleUser, msgs[0].Role)
}

func TestRespondRetrievalFailureFailsTurn(t *testing.T) {
	store := &fakeMessageStore{}
	retr := &fakeRetriever{err: errors.New("index offline")}
	llm := &fakeStreamer{frags: []string{"should never stream"}}

	events := collect(newTestResponder(store, retr, llm).Respond(context.Background(), "sess-1", "user-1", "hi"))

	require.Len(t, events, 2) // start + error, no ungrounded fallback
	assert.Equal(t, EventError, events[1].Type)
	assert.Contains(t, events[1].Error, "index offline")

	msgs := store.persisted()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleUser, msgs[0].Role, "user message survives the failed turn")
}

func TestRespondAbandonedStreamPersistsNothing(t *testing.T) {
	store := &fakeMessageStore{}
	retr := &fakeRetriever{}
	llm := &fakeStreamer{frags: []string{"one", "two", "three"}}

	ctx, cancel := context.WithCancel(context.Background())
	r := newTestResponder(store, retr, llm)
	events := r.Respond(ctx, "sess-1", "user-1", "hi")

	// Read through the first fragment, then walk away.
	<-events // start
	<-events // chunk "one"
	cancel()
	for range events {
	}

	msgs := store.persisted()
	require.Len(t, msgs, 1, "abandoned stream must not persist a partial answer")
	assert.Equal(t, models.RoleUser, msgs[0].Role)
}

func TestBuildPrompt(t *testing.T) {
	matches := []models.ChunkMatch{
		{Content: "first chunk"},
		{Content: "second chunk"},
	}
	prompt := buildPrompt(matches, "the question")
	assert.Contains(t, prompt, "first chunk")
	assert.Contains(t, prompt, "second chunk")
	assert.Contains(t, prompt, "the question")
}
