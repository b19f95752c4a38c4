package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/docubot/docubot-api/internal/core"
	"github.com/docubot/docubot-api/internal/core/ingestion_engine"
)

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{client: cl, modelName: modelName}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedBatch embeds all texts in one request via the batch endpoint. The
// embedding API reports no usage, so TotalTokens is the same estimate the
// chunker sized the inputs with.
func (g *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) (*core.EmbedResult, error) {
	if len(texts) == 0 {
		return &core.EmbedResult{}, nil
	}

	em := g.client.EmbeddingModel(g.modelName)

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini batch embed: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	out := &core.EmbedResult{Embeddings: make([][]float32, 0, len(resp.Embeddings))}
	for _, e := range resp.Embeddings {
		out.Embeddings = append(out.Embeddings, e.Values)
	}
	for _, t := range texts {
		out.TotalTokens += ingestion_engine.EstimateTokens(t)
	}
	return out, nil
}
