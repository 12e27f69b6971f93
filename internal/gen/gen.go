// Package gen provides the generation client consumed by the reranker.
package gen

import (
	"context"
)

// Client produces a completion for a prompt. The reranker is its only
// consumer in this codebase; rerank failures never propagate, so Client
// implementations may fail freely.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Close() error
}
