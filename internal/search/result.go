// Package search implements the retrieval read path: semantic retrieval
// over the vector store with a short-TTL query cache, hybrid fusion with
// keyword scores, and LLM-based reranking with graceful fallback.
package search

import (
	"github.com/victorgambert/repoindex/internal/store"
)

// Result is one retrieved chunk with its scores. SemanticScore and
// KeywordScore are the pre-fusion leg scores; Score is what the caller
// ranks by (the semantic score for pure semantic retrieval, the weighted
// combination for hybrid).
type Result struct {
	Chunk         *store.DocumentChunk
	Score         float64
	SemanticScore float64
	KeywordScore  float64
}
