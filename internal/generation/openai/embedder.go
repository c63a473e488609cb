package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"studyforge/internal/config"
	"studyforge/internal/generation"
)

const embeddingGeneratorID = "embedding"

// Embedder produces embeddings through the OpenAI embeddings endpoint.
type Embedder struct {
	model  string
	client *openai.Client
}

// NewEmbedder constructs an embedder from the embedding config.
func NewEmbedder(cfg config.Embedding) *Embedder {
	return &Embedder{
		model:  strings.TrimSpace(cfg.Model),
		client: openai.NewClientWithConfig(clientConfig(cfg.APIKey, cfg.BaseURL, 0)),
	}
}

// Embed returns one vector per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, classifyError(ctx, embeddingGeneratorID, err, time.Now())
	}
	if len(resp.Data) != len(texts) {
		return nil, generation.Transient(embeddingGeneratorID, fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}
	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, generation.Transient(embeddingGeneratorID, fmt.Sprintf("embedding index %d out of range", item.Index))
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

var _ generation.Embedder = (*Embedder)(nil)
