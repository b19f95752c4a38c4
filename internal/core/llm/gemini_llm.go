package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/docubot/docubot-api/internal/core"
	"github.com/docubot/docubot-api/internal/models"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

var _ core.CompletionStreamer = (*GeminiLLM)(nil)

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// CompleteStream starts a chat with the given history and streams the
// model's answer. Fragments arrive on the first channel in generation
// order; after it closes the second channel yields the terminal error,
// nil on a clean finish.
func (g *GeminiLLM) CompleteStream(ctx context.Context, prompt string, history []models.ChatMessage) (<-chan string, <-chan error) {
	frags := make(chan string, 8)
	errc := make(chan error, 1)

	m := g.client.GenerativeModel(g.modelName)
	session := m.StartChat()
	session.History = toGenaiHistory(history)

	go func() {
		defer close(frags)

		it := session.SendMessageStream(ctx, genai.Text(prompt))
		for {
			resp, err := it.Next()
			if err == iterator.Done {
				errc <- nil
				return
			}
			if err != nil {
				errc <- fmt.Errorf("gemini stream: %w", err)
				return
			}
			for _, frag := range textParts(resp) {
				select {
				case frags <- frag:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
		}
	}()

	return frags, errc
}

func toGenaiHistory(history []models.ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return out
}

func textParts(resp *genai.GenerateContentResponse) []string {
	var out []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok && string(t) != "" {
				out = append(out, string(t))
			}
		}
	}
	return out
}
