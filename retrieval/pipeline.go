package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Shahrukh072/ai-backend/core"
	"github.com/Shahrukh072/ai-backend/logging"
)

// Default search parameters.
const (
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.7
)

// charsPerToken is the rough character-to-token ratio used for budgeting.
const charsPerToken = 4

// Options configures a Pipeline.
type Options struct {
	// TopK is the maximum number of chunks returned per query.
	TopK int
	// SimilarityThreshold is the minimum cosine similarity for a chunk to
	// qualify as relevant.
	SimilarityThreshold float64
	// ChunkSize and ChunkOverlap control ingest-time splitting, in runes.
	ChunkSize    int
	ChunkOverlap int
	// Compressor, when set, condenses context that exceeds the token budget
	// before chunks are dropped. Compressor failures degrade to dropping.
	Compressor Compressor
	// Logger receives pipeline diagnostics. Defaults to slog.
	Logger logging.Logger
}

// Pipeline ties together splitting, embedding and vector search. The same
// embedder is used for documents and queries so both live in one vector space.
type Pipeline struct {
	embedder Embedder
	index    VectorIndex
	splitter *Splitter
	opts     Options
}

// NewPipeline creates a retrieval pipeline over the given embedder and index.
func NewPipeline(embedder Embedder, index VectorIndex, optFns ...func(o *Options)) *Pipeline {
	opts := Options{
		TopK:                DefaultTopK,
		SimilarityThreshold: DefaultSimilarityThreshold,
		ChunkSize:           DefaultChunkSize,
		ChunkOverlap:        DefaultChunkOverlap,
		Logger:              logging.NewDefaultSlogLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pipeline{
		embedder: embedder,
		index:    index,
		splitter: NewSplitter(opts.ChunkSize, opts.ChunkOverlap),
		opts:     opts,
	}
}

// Ingest splits a document, embeds the pieces and stores them in the index.
// It returns the number of chunks written.
func (p *Pipeline) Ingest(ctx context.Context, userID, documentID, text string) (int, error) {
	pieces := p.splitter.Split(text)
	if len(pieces) == 0 {
		return 0, nil
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, &core.RetrievalError{Err: fmt.Errorf("embed document %s: %w", documentID, err)}
	}
	if len(vectors) != len(pieces) {
		return 0, &core.RetrievalError{Err: fmt.Errorf("embed document %s: got %d vectors for %d chunks", documentID, len(vectors), len(pieces))}
	}

	chunks := make([]StoredChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = StoredChunk{
			ID:         uuid.NewString(),
			Text:       piece.Text,
			UserID:     userID,
			DocumentID: documentID,
			Offset:     piece.Offset,
			Vector:     vectors[i],
		}
	}
	if err := p.index.Upsert(ctx, chunks); err != nil {
		return 0, &core.RetrievalError{Err: fmt.Errorf("index document %s: %w", documentID, err)}
	}

	p.opts.Logger.Info("retrieval.ingest", "document_id", documentID, "user_id", userID, "chunks", len(chunks))
	return len(chunks), nil
}

// Retrieve embeds the query and returns the top matching chunks within the
// user scope, ordered by similarity descending with offset as the tie break.
func (p *Pipeline) Retrieve(ctx context.Context, query, userID, documentID string) ([]core.RetrievedChunk, error) {
	vectors, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &core.RetrievalError{Err: fmt.Errorf("embed query: %w", err)}
	}

	scope := Scope{UserID: userID, DocumentID: documentID}
	chunks, err := p.index.Query(ctx, vectors[0], scope, p.opts.TopK, p.opts.SimilarityThreshold)
	if err != nil {
		return nil, &core.RetrievalError{Err: fmt.Errorf("query index: %w", err)}
	}

	p.opts.Logger.Debug("retrieval.query", "user_id", userID, "document_id", documentID, "results", len(chunks))
	return chunks, nil
}

// Search implements the document search tool contract; it is Retrieve under
// another name.
func (p *Pipeline) Search(ctx context.Context, query, userID, documentID string) ([]core.RetrievedChunk, error) {
	return p.Retrieve(ctx, query, userID, documentID)
}

// BuildContext assembles retrieved chunks into a single context block that
// fits tokenBudget. Oversized context is first compressed down to the parts
// relevant to query when a compressor is configured; if compression fails or
// is unavailable, the lowest ranked chunks are dropped until the block fits.
func (p *Pipeline) BuildContext(ctx context.Context, query string, chunks []core.RetrievedChunk, tokenBudget int) string {
	if len(chunks) == 0 {
		return ""
	}

	joined := joinChunks(chunks)
	if tokenBudget <= 0 || estimateTokens(joined) <= tokenBudget {
		return joined
	}

	if p.opts.Compressor != nil {
		compressed, err := p.opts.Compressor.Compress(ctx, query, joined, tokenBudget)
		if err == nil && estimateTokens(compressed) <= tokenBudget {
			return compressed
		}
		if err != nil {
			p.opts.Logger.Warn("retrieval.compress_failed", "error", err)
		}
	}

	// Chunks arrive ranked best first; trim from the tail.
	kept := chunks
	for len(kept) > 1 {
		kept = kept[:len(kept)-1]
		joined = joinChunks(kept)
		if estimateTokens(joined) <= tokenBudget {
			return joined
		}
	}

	// A single chunk can still overflow; cut it at the budget.
	runes := []rune(kept[0].Text)
	limit := tokenBudget * charsPerToken
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return kept[0].Text
}

func joinChunks(chunks []core.RetrievedChunk) string {
	parts := make([]string, len(chunks))
	for i, chunk := range chunks {
		parts[i] = chunk.Text
	}
	return strings.Join(parts, "\n\n")
}

// estimateTokens approximates token count as one token per four characters.
func estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / charsPerToken
}
