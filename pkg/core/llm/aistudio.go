package llm

import (
	"context"
	"fmt"
	"os"

	aistudio "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// AIStudioEmbedder batches embedding requests through the AI Studio client.
type AIStudioEmbedder struct {
	Model string
}

var _ Embedder = (*AIStudioEmbedder)(nil)

func (e *AIStudioEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := aistudio.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create AI Studio client: %w", err)
	}
	defer client.Close()

	em := client.EmbeddingModel(e.Name())
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(aistudio.Text(t))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("ai studio embedding failed: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ai studio returned %d vectors for %d texts", len(res.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

func (e *AIStudioEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

func (e *AIStudioEmbedder) Name() string {
	if e.Model != "" {
		return e.Model
	}
	return "text-embedding-004"
}
