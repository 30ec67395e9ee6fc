package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/Shahrukh072/ai-backend/core"
)

// Scope restricts a search to one user's documents. An empty DocumentID
// matches every document owned by the user.
type Scope struct {
	UserID     string
	DocumentID string
}

func (s Scope) matches(chunk StoredChunk) bool {
	if chunk.UserID != s.UserID {
		return false
	}
	return s.DocumentID == "" || chunk.DocumentID == s.DocumentID
}

// StoredChunk is one embedded document fragment held by a VectorIndex.
type StoredChunk struct {
	ID         string
	Text       string
	UserID     string
	DocumentID string
	Offset     int
	Vector     []float64
}

// VectorIndex stores embedded chunks and answers scoped similarity queries.
type VectorIndex interface {
	// Upsert inserts or replaces chunks by ID.
	Upsert(ctx context.Context, chunks []StoredChunk) error

	// Query returns up to k chunks within scope whose cosine similarity to
	// vector is at least minScore, ordered by similarity descending with
	// chunk offset ascending as the tie break.
	Query(ctx context.Context, vector []float64, scope Scope, k int, minScore float64) ([]core.RetrievedChunk, error)
}

// InMemoryIndex is a brute-force VectorIndex suitable for tests and small
// corpora. It is safe for concurrent use.
type InMemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	chunks    map[string]StoredChunk
}

var _ VectorIndex = (*InMemoryIndex)(nil)

// NewInMemoryIndex creates an empty index for vectors of the given dimension.
func NewInMemoryIndex(dimension int) *InMemoryIndex {
	return &InMemoryIndex{
		dimension: dimension,
		chunks:    make(map[string]StoredChunk),
	}
}

// Upsert inserts or replaces chunks. Every vector must match the index
// dimension.
func (idx *InMemoryIndex) Upsert(ctx context.Context, chunks []StoredChunk) error {
	for _, chunk := range chunks {
		if len(chunk.Vector) != idx.dimension {
			return fmt.Errorf("chunk %s has dimension %d, index expects %d: %w",
				chunk.ID, len(chunk.Vector), idx.dimension, core.ErrEmbeddingSpaceMismatch)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, chunk := range chunks {
		idx.chunks[chunk.ID] = chunk
	}
	return nil
}

// Query performs a brute-force scan over the scoped chunks.
func (idx *InMemoryIndex) Query(ctx context.Context, vector []float64, scope Scope, k int, minScore float64) ([]core.RetrievedChunk, error) {
	if len(vector) != idx.dimension {
		return nil, fmt.Errorf("query has dimension %d, index expects %d: %w",
			len(vector), idx.dimension, core.ErrEmbeddingSpaceMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var results []core.RetrievedChunk
	for _, chunk := range idx.chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !scope.matches(chunk) {
			continue
		}
		score := cosineSimilarity(vector, chunk.Vector)
		if score < minScore {
			continue
		}
		results = append(results, core.RetrievedChunk{
			Text:             chunk.Text,
			SourceDocumentID: chunk.DocumentID,
			SimilarityScore:  score,
			ChunkOffset:      chunk.Offset,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].SimilarityScore != results[j].SimilarityScore {
			return results[i].SimilarityScore > results[j].SimilarityScore
		}
		return results[i].ChunkOffset < results[j].ChunkOffset
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Len returns the number of stored chunks.
func (idx *InMemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}
