package embed

import (
	"context"

	"github.com/victorgambert/repoindex/internal/errors"
)

// RetryingEmbedder wraps an Embedder with bounded exponential backoff.
// Embedding errors are retryable per the error taxonomy; after the
// attempts are exhausted the caller decides whether to skip the file or
// fail the operation.
type RetryingEmbedder struct {
	inner Embedder
	cfg   errors.RetryConfig
}

var _ Embedder = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder wraps inner with the given retry configuration.
func NewRetryingEmbedder(inner Embedder, cfg errors.RetryConfig) *RetryingEmbedder {
	if cfg.MaxRetries <= 0 {
		cfg = errors.DefaultRetryConfig()
	}
	return &RetryingEmbedder{inner: inner, cfg: cfg}
}

// Embed calls the inner embedder, retrying transient failures.
func (r *RetryingEmbedder) Embed(ctx context.Context, texts []string) (*Result, error) {
	var result *Result
	err := errors.Retry(ctx, r.cfg, func() error {
		var embedErr error
		result, embedErr = r.inner.Embed(ctx, texts)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Dimensions returns the embedding dimension of the inner embedder.
func (r *RetryingEmbedder) Dimensions() int { return r.inner.Dimensions() }

// ModelName returns the inner embedder's model identifier.
func (r *RetryingEmbedder) ModelName() string { return r.inner.ModelName() }

// Close closes the inner embedder.
func (r *RetryingEmbedder) Close() error { return r.inner.Close() }
