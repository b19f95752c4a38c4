package core

import (
	"context"
	"time"

	"github.com/docubot/docubot-api/internal/models"
)

// DbClient defines all persistence operations the pipeline and chat layers
// need. It abstracts Postgres/pgvector so higher layers never depend on a
// specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string, errMsg string) error
	MarkDocumentCompleted(ctx context.Context, id string, chunkCount, tokenCount int, processedAt time.Time) error
	DeleteDocument(ctx context.Context, id string) error

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	CountChunksByDocument(ctx context.Context, documentID string) (int, error)
	SearchUserChunks(ctx context.Context, userID string, queryVec []float32, limit int) ([]models.ChunkMatch, error)

	CreateChatSession(ctx context.Context, session *models.ChatSession) error
	GetChatSessionByID(ctx context.Context, id string) (*models.ChatSession, error)
	ListChatSessionsByUser(ctx context.Context, userID string) ([]models.ChatSession, error)
	AddChatMessage(ctx context.Context, message *models.ChatMessage) error
	RecentMessages(ctx context.Context, sessionID string, limit int, excludeID string) ([]models.ChatMessage, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so AWS can be replaced with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}

// EmbedResult is the outcome of one logical batch embedding call: one
// vector per input text, same order, plus the model's aggregate token usage.
type EmbedResult struct {
	Embeddings  [][]float32
	TotalTokens int
}

// EmbeddingProvider turns a batch of chunk texts into vectors. The provider
// may batch or retry internally; the pipeline treats any error as opaque.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) (*EmbedResult, error)
}

// CompletionStreamer generates an answer as an ordered sequence of text
// fragments. The fragments channel is closed when generation ends; the
// error channel then yields exactly one value (nil on success). Fragments
// are delivered in the exact order the model produced them.
type CompletionStreamer interface {
	CompleteStream(ctx context.Context, prompt string, history []models.ChatMessage) (<-chan string, <-chan error)
}

// Retriever returns the top-limit stored chunks most similar to the query,
// scoped to the requesting user's own documents, sorted by descending
// similarity.
type Retriever interface {
	Search(ctx context.Context, query, userID string, limit int) ([]models.ChunkMatch, error)
}

// TextExtractor pulls plain text out of an uploaded file based on its
// declared content type.
type TextExtractor interface {
	Extract(data []byte, contentType string) (string, error)
}
