package retrieval

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// OpenAIEmbedderOptions configures the OpenAI embedding adapter.
type OpenAIEmbedderOptions struct {
	Model     openai.EmbeddingModel
	Dimension int
}

// OpenAIEmbedder implements Embedder on the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	opts   OpenAIEmbedderOptions
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder from an existing OpenAI client.
func NewOpenAIEmbedder(client *openai.Client, optFns ...func(o *OpenAIEmbedderOptions)) *OpenAIEmbedder {
	opts := OpenAIEmbedderOptions{
		Model:     openai.EmbeddingModelTextEmbedding3Small,
		Dimension: 1536,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &OpenAIEmbedder{client: client, opts: opts}
}

// Embed requests embeddings for all texts in a single API call.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: e.opts.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float64, len(texts))
	for _, item := range resp.Data {
		vectors[int(item.Index)] = item.Embedding
	}
	return vectors, nil
}

// Dimension returns the configured embedding dimensionality.
func (e *OpenAIEmbedder) Dimension() int { return e.opts.Dimension }
