package retrieval

import (
	"context"
	"fmt"

	"github.com/Shahrukh072/ai-backend/core"
	"github.com/Shahrukh072/ai-backend/model"
)

// Compressor shrinks retrieved context that does not fit the token budget.
type Compressor interface {
	// Compress extracts the parts of text relevant to query, fitting roughly
	// within targetTokens.
	Compress(ctx context.Context, query, text string, targetTokens int) (string, error)
}

// ModelCompressor extracts query-relevant context with a model call.
type ModelCompressor struct {
	model model.Model
}

var _ Compressor = (*ModelCompressor)(nil)

// NewModelCompressor creates a compressor backed by the given model.
func NewModelCompressor(m model.Model) *ModelCompressor {
	return &ModelCompressor{model: m}
}

// Compress asks the model for the excerpts relevant to the query. Factual
// content must be preserved, so the instructions forbid adding new
// information. With an empty query it degrades to plain condensation.
func (c *ModelCompressor) Compress(ctx context.Context, query, text string, targetTokens int) (string, error) {
	instructions := fmt.Sprintf(
		"Condense the following document excerpts to at most %d tokens. "+
			"Keep every fact, name and number. Do not add information.", targetTokens)
	if query != "" {
		instructions = fmt.Sprintf(
			"Extract the sentences from the following document excerpts that are relevant "+
				"to the question %q, using at most %d tokens. Quote facts, names and numbers "+
				"verbatim. Do not add information.", query, targetTokens)
	}

	resp, err := c.model.Generate(ctx, model.Request{
		Instructions: instructions,
		Messages:     []core.Message{{Role: core.RoleUser, Content: text}},
	})
	if err != nil {
		return "", fmt.Errorf("compress context: %w", err)
	}
	if resp.Text == "" {
		return "", fmt.Errorf("compress context: model returned empty text")
	}
	return resp.Text, nil
}
