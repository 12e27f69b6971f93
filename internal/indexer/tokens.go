package indexer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/victorgambert/repoindex/internal/chunk"
)

func init() {
	// Offline BPE loader: no network fetch of encoding files at runtime.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenCounter counts tokens with the cl100k_base encoding, used to plan
// embedding batches under the provider's per-request token limit.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

var (
	counterOnce sync.Once
	counter     *TokenCounter
	counterErr  error
)

// NewTokenCounter returns the shared counter. The encoding tables are
// loaded once per process.
func NewTokenCounter() (*TokenCounter, error) {
	counterOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			counterErr = err
			return
		}
		counter = &TokenCounter{encoding: enc}
	})
	return counter, counterErr
}

// Count returns the token count of text.
func (t *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// PlanBatches splits chunks into embedding batches. A batch closes when
// it reaches maxBatch chunks or adding the next chunk would exceed
// maxTokens. A single chunk over maxTokens still gets its own batch; the
// chunker's size cap makes that rare.
func (t *TokenCounter) PlanBatches(chunks []chunk.Chunk, maxBatch, maxTokens int) [][]chunk.Chunk {
	if len(chunks) == 0 {
		return nil
	}
	if maxBatch <= 0 {
		maxBatch = 32
	}

	var (
		batches [][]chunk.Chunk
		current []chunk.Chunk
		tokens  int
	)
	for _, c := range chunks {
		ct := t.Count(c.Content)
		if len(current) > 0 && (len(current) >= maxBatch || (maxTokens > 0 && tokens+ct > maxTokens)) {
			batches = append(batches, current)
			current = nil
			tokens = 0
		}
		current = append(current, c)
		tokens += ct
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
