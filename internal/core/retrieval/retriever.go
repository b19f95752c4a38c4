// Package retrieval implements the nearest-chunks contract over pgvector:
// embed the query, then rank the caller's own chunks by similarity.
package retrieval

import (
	"context"
	"fmt"

	"github.com/docubot/docubot-api/internal/core"
	"github.com/docubot/docubot-api/internal/models"
)

// MaxLimit caps how many chunks a single search may return, bounding the
// prompt the results end up in.
const MaxLimit = 5

type Service struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
}

var _ core.Retriever = (*Service)(nil)

func NewService(db core.DbClient, embedder core.EmbeddingProvider) *Service {
	return &Service{db: db, embedder: embedder}
}

// Search embeds the query and returns the user's most similar chunks,
// sorted by descending similarity. limit is clamped to 1..MaxLimit.
func (s *Service) Search(ctx context.Context, query, userID string, limit int) ([]models.ChunkMatch, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}

	res, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(res.Embeddings) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(res.Embeddings))
	}

	matches, err := s.db.SearchUserChunks(ctx, userID, res.Embeddings[0], limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return matches, nil
}
