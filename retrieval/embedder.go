package retrieval

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
)

// Embedder maps texts into a shared vector space. Implementations must embed
// queries and documents identically so similarity scores are meaningful.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// Dimension returns the length of every vector this embedder produces.
	Dimension() int
}

// HashingEmbedder is a deterministic, dependency-free embedder that hashes
// lowercased terms into a fixed number of buckets and L2-normalizes the
// result. It gives usable lexical-overlap similarity for tests and local
// development without a remote embedding model.
type HashingEmbedder struct {
	dimension int
}

// NewHashingEmbedder creates a hashing embedder with the given dimensionality.
func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashingEmbedder{dimension: dimension}
}

// Embed hashes each text's terms into buckets. The zero vector is returned
// for texts with no terms.
func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = e.embedOne(text)
	}
	return vectors, nil
}

// Dimension returns the configured vector length.
func (e *HashingEmbedder) Dimension() int { return e.dimension }

func (e *HashingEmbedder) embedOne(text string) []float64 {
	vector := make([]float64, e.dimension)

	terms := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, term := range terms {
		h := fnv.New32a()
		h.Write([]byte(term))
		vector[int(h.Sum32())%e.dimension]++
	}

	if norm := floats.Norm(vector, 2); norm > 0 {
		floats.Scale(1/norm, vector)
	}
	return vector
}
