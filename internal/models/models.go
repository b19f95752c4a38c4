package models

import (
	"time"
)

// Document lifecycle states. Transitions are monotonic
// (pending → processing → completed|failed) except for an explicit
// reprocess, which clears prior chunks and goes back to processing.
const (
	DocumentStatusPending    = "pending"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents one uploaded source file and its processing state.
type Document struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	Title        string     `db:"title" json:"title"`
	SizeBytes    int64      `db:"size_bytes" json:"size_bytes"`
	MimeType     string     `db:"mime_type" json:"mime_type"`
	StorageURL   string     `db:"storage_url" json:"storage_url"`
	Status       string     `db:"status" json:"status"`
	ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
	ChunkCount   int        `db:"chunk_count" json:"chunk_count"`
	TokenCount   int        `db:"token_count" json:"token_count"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// DocumentChunk represents one token-bounded slice of a document's text.
// UserID is denormalized from the parent document so retrieval can filter
// by owner without a join.
type DocumentChunk struct {
	ID         string            `db:"id" json:"id"`
	DocumentID string            `db:"document_id" json:"document_id"`
	UserID     string            `db:"user_id" json:"user_id"`
	Position   int               `db:"position" json:"position"`
	Content    string            `db:"content" json:"content"`
	Embedding  []float32         `db:"embedding" json:"-"` // pgvector column
	TokenCount int               `db:"token_count" json:"token_count"`
	Metadata   map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}

// ChunkMatch is one retrieval hit: a stored chunk with its similarity to
// the query, ordered descending by Similarity.
type ChunkMatch struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// ChunkSource is the citation form of a match carried on an assistant
// message: the same hit without the content payload.
type ChunkSource struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
}

// ChatSession represents one conversation container.
type ChatSession struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ChatMessage represents one turn in a session. Assistant messages may
// carry the citations their answer was grounded on. Messages are appended
// in strict chronological order and never mutated afterwards.
type ChatMessage struct {
	ID        string        `db:"id" json:"id"`
	SessionID string        `db:"session_id" json:"session_id"`
	Role      string        `db:"role" json:"role"`
	Content   string        `db:"content" json:"content"`
	Sources   []ChunkSource `db:"sources" json:"sources,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// Sources reduces retrieval matches to the citation form stored on an
// assistant message.
func Sources(matches []ChunkMatch) []ChunkSource {
	if len(matches) == 0 {
		return nil
	}
	out := make([]ChunkSource, len(matches))
	for i, m := range matches {
		out[i] = ChunkSource{DocumentID: m.DocumentID, ChunkIndex: m.ChunkIndex, Similarity: m.Similarity}
	}
	return out
}
