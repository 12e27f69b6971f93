// Package embed provides the embedding client used by the indexers and
// retrievers, with retry and cache decorators.
package embed

import (
	"context"
	"time"
)

// Batch limits for embedding requests.
const (
	// MaxBatchSize is the maximum texts per request (provider limits).
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size.
	DefaultBatchSize = 32

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3
)

// Result is the outcome of one embedding call. TokensUsed is the
// provider-reported token count, the authoritative input to cost
// accounting.
type Result struct {
	Vectors    [][]float32
	TokensUsed int
}

// Embedder converts text into vectors.
type Embedder interface {
	// Embed generates embeddings for texts, preserving order.
	Embed(ctx context.Context, texts []string) (*Result, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources. Implementations are idempotent.
	Close() error
}
