package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/victorgambert/repoindex/internal/cache"
	"github.com/victorgambert/repoindex/internal/embed"
	"github.com/victorgambert/repoindex/internal/errors"
	"github.com/victorgambert/repoindex/internal/store"
)

// SemanticOptions tunes the semantic retriever.
type SemanticOptions struct {
	// TopK is the default result count when the caller passes 0.
	TopK int
	// ScoreThreshold drops results scoring below it. 0 keeps everything.
	ScoreThreshold float64
	// CacheTTL bounds result staleness. 0 selects the cache default.
	CacheTTL time.Duration
}

func (o SemanticOptions) withDefaults() SemanticOptions {
	if o.TopK <= 0 {
		o.TopK = 10
	}
	return o
}

// SemanticRetriever answers natural-language queries from the vector
// store. Results for an identical query shape are served from the cache
// without touching the embedder or the store.
type SemanticRetriever struct {
	embedder embed.Embedder
	vectors  store.VectorStore
	metadata store.MetadataStore
	cache    cache.QueryCache
	opts     SemanticOptions
	logger   *slog.Logger

	closed atomic.Bool
}

// NewSemanticRetriever creates a semantic retriever. queryCache may be
// nil to disable caching.
func NewSemanticRetriever(
	embedder embed.Embedder,
	vectors store.VectorStore,
	metadata store.MetadataStore,
	queryCache cache.QueryCache,
	opts SemanticOptions,
	logger *slog.Logger,
) *SemanticRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticRetriever{
		embedder: embedder,
		vectors:  vectors,
		metadata: metadata,
		cache:    queryCache,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Retrieve returns the topK chunks most similar to query within
// projectID, filtered by the optional payload filter, ordered by
// similarity descending.
func (r *SemanticRetriever) Retrieve(ctx context.Context, query, projectID string, topK int, filter map[string]string) ([]*Result, error) {
	if r.closed.Load() {
		return nil, errors.New(errors.ErrCodeIndexState, "retriever is closed", nil)
	}
	if topK <= 0 {
		topK = r.opts.TopK
	}

	key := cache.QueryKey(query, projectID, topK, filter)
	if cached, ok := r.cacheGet(ctx, key); ok {
		return cached, nil
	}

	embedded, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	hits, err := r.vectors.Search(ctx, embedded.Vectors[0], projectID, topK, filter)
	if err != nil {
		return nil, err
	}

	results, err := r.resolve(ctx, hits)
	if err != nil {
		return nil, err
	}

	r.cacheSet(ctx, key, results)
	return results, nil
}

// resolve joins vector hits with their chunk rows, applying the score
// threshold. Hits whose metadata row has vanished (a concurrent update
// deleted the chunk between search and lookup) are dropped.
func (r *SemanticRetriever) resolve(ctx context.Context, hits []*store.VectorResult) ([]*Result, error) {
	chunkIDs := make([]string, 0, len(hits))
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		score := float64(h.Score)
		if r.opts.ScoreThreshold > 0 && score < r.opts.ScoreThreshold {
			continue
		}
		chunkIDs = append(chunkIDs, h.Payload.ChunkID)
		scores[h.Payload.ChunkID] = score
	}
	if len(chunkIDs) == 0 {
		return []*Result{}, nil
	}

	chunks, err := r.metadata.GetChunks(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(chunks))
	for _, c := range chunks {
		score := scores[c.ID]
		results = append(results, &Result{
			Chunk:         c,
			Score:         score,
			SemanticScore: score,
		})
	}
	return results, nil
}

// Close marks the retriever closed. The embedder, stores and cache are
// owned by whoever constructed them and stay open. Safe to call more
// than once.
func (r *SemanticRetriever) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *SemanticRetriever) cacheGet(ctx context.Context, key string) ([]*Result, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		// Cache trouble degrades to a miss, never a query failure.
		r.logger.Warn("query_cache_read_failed", slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var results []*Result
	if err := json.Unmarshal(data, &results); err != nil {
		r.logger.Warn("query_cache_decode_failed", slog.String("error", err.Error()))
		return nil, false
	}
	return results, true
}

func (r *SemanticRetriever) cacheSet(ctx context.Context, key string, results []*Result) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, data, r.opts.CacheTTL); err != nil {
		r.logger.Warn("query_cache_write_failed", slog.String("error", err.Error()))
	}
}
