package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"campus-assistant/internal/domain/entity"

	"github.com/pgvector/pgvector-go"
	openai "github.com/sashabaranov/go-openai"
)

type EmbeddingClient struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewEmbeddingClient creates a new OpenAI embedding client. dimension is the
// expected vector length; any response with a different length is rejected.
func NewEmbeddingClient(apiKey, model string, dimension int, timeout time.Duration) *EmbeddingClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &EmbeddingClient{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: dimension,
	}
}

func (c *EmbeddingClient) Dimension() int {
	return c.dimension
}

// GenerateEmbedding embeds a single text.
func (c *EmbeddingClient) GenerateEmbedding(ctx context.Context, text string) (pgvector.Vector, error) {
	vectors, err := c.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(vectors) == 0 {
		return pgvector.Vector{}, entity.NewDomainError(entity.ErrEmbedding, "", fmt.Errorf("empty embedding response"))
	}
	return vectors[0], nil
}

// GenerateBatchEmbeddings embeds many texts in one call.
func (c *EmbeddingClient) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, entity.NewDomainError(entity.ErrEmbedding, "", fmt.Errorf("embedding gateway: %w", err))
	}

	vectors := make([]pgvector.Vector, len(resp.Data))
	for i, data := range resp.Data {
		if len(data.Embedding) != c.dimension {
			return nil, entity.NewDomainError(entity.ErrEmbedding, "",
				fmt.Errorf("dimension mismatch: expected %d, got %d", c.dimension, len(data.Embedding)))
		}
		embedding := make([]float32, len(data.Embedding))
		copy(embedding, data.Embedding)
		vectors[i] = pgvector.NewVector(embedding)
	}

	return vectors, nil
}
