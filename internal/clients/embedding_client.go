/**
 * Embedding Client - glyph meaning embeddings
 *
 * Generates embeddings for glyph meanings so the storage layer can index
 * them for similarity retrieval during reconstruction.
 */

package clients

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/epigraphia/inscription-worker/internal/logging"
)

// EmbeddingClient generates meaning embeddings.
type EmbeddingClient struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *logging.Logger
}

// NewEmbeddingClient creates a new embedding client.
func NewEmbeddingClient(cfg OpenAIConfig, model string, dimensions int) *EmbeddingClient {
	return &EmbeddingClient{
		client:     newOpenAIClient(cfg),
		model:      model,
		dimensions: dimensions,
		logger:     logging.NewLogger("EmbeddingClient"),
	}
}

// Dimensions returns the configured embedding width.
func (c *EmbeddingClient) Dimensions() int {
	return c.dimensions
}

// Embed generates an embedding for the given text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, wrapOpenAIError("embedding", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	return resp.Data[0].Embedding, nil
}
