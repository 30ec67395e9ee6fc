package core

// RetrievedChunk is one ranked result of a retrieval query. Chunks are
// immutable once produced and are returned ordered by descending similarity,
// ties broken by ascending chunk offset, so retrieval output is
// deterministic for identical query, scope and index contents.
type RetrievedChunk struct {
	Text             string  `json:"text"`
	SourceDocumentID string  `json:"source_document_id"`
	SimilarityScore  float64 `json:"similarity_score"`
	ChunkOffset      int     `json:"chunk_offset"`
}
