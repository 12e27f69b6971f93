package search

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorgambert/repoindex/internal/cache"
	"github.com/victorgambert/repoindex/internal/embed"
	"github.com/victorgambert/repoindex/internal/store"
)

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) (*embed.Result, error) {
	f.calls++
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return &embed.Result{Vectors: vectors, TokensUsed: len(texts)}, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error      { return nil }

// fakeVectorStore returns a canned hit list, ignoring the query.
type fakeVectorStore struct {
	hits    []*store.VectorResult
	queries int
}

func (f *fakeVectorStore) Upsert(context.Context, []*store.Point) error { return nil }

func (f *fakeVectorStore) Search(_ context.Context, _ []float32, _ string, topK int, _ map[string]string) ([]*store.VectorResult, error) {
	f.queries++
	if len(f.hits) > topK {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

func (f *fakeVectorStore) Delete(context.Context, []string) error { return nil }
func (f *fakeVectorStore) Close() error                           { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMetadata(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedChunks(t *testing.T, metadata *store.SQLiteStore, chunks []*store.DocumentChunk) {
	t.Helper()
	idx := &store.CodebaseIndex{ID: "idx-1", ProjectID: "proj-1", Status: store.StatusCompleted}
	require.NoError(t, metadata.CreateIndex(context.Background(), idx))
	require.NoError(t, metadata.SaveChunks(context.Background(), chunks))
}

func testChunk(id, path string, index int) *store.DocumentChunk {
	return &store.DocumentChunk{
		ID:          id,
		IndexID:     "idx-1",
		FilePath:    path,
		ChunkIndex:  index,
		Content:     "content of " + id,
		ContentHash: store.HashContent("content of " + id),
		Language:    "go",
		ChunkType:   "function",
	}
}

func vectorHit(chunkID string, score float32) *store.VectorResult {
	return &store.VectorResult{
		ID:    "pt-" + chunkID,
		Score: score,
		Payload: store.Payload{
			ProjectID: "proj-1",
			IndexID:   "idx-1",
			ChunkID:   chunkID,
		},
	}
}

func TestSemanticRetriever_ResolvesHitsInScoreOrder(t *testing.T) {
	ctx := context.Background()
	metadata := newMetadata(t)
	seedChunks(t, metadata, []*store.DocumentChunk{
		testChunk("c1", "a.go", 0),
		testChunk("c2", "b.go", 0),
	})

	vectors := &fakeVectorStore{hits: []*store.VectorResult{
		vectorHit("c2", 0.9),
		vectorHit("c1", 0.4),
	}}
	embedder := &fakeEmbedder{}

	r := NewSemanticRetriever(embedder, vectors, metadata, nil, SemanticOptions{}, discardLogger())
	results, err := r.Retrieve(ctx, "how does auth work", "proj-1", 5, nil)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "c2", results[0].Chunk.ID)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
	assert.InDelta(t, 0.9, results[0].SemanticScore, 1e-6)
	assert.Zero(t, results[0].KeywordScore)
	assert.Equal(t, "c1", results[1].Chunk.ID)
}

func TestSemanticRetriever_ScoreThresholdFilters(t *testing.T) {
	ctx := context.Background()
	metadata := newMetadata(t)
	seedChunks(t, metadata, []*store.DocumentChunk{
		testChunk("c1", "a.go", 0),
		testChunk("c2", "b.go", 0),
	})

	vectors := &fakeVectorStore{hits: []*store.VectorResult{
		vectorHit("c1", 0.8),
		vectorHit("c2", 0.2),
	}}

	r := NewSemanticRetriever(&fakeEmbedder{}, vectors, metadata, nil,
		SemanticOptions{ScoreThreshold: 0.5}, discardLogger())
	results, err := r.Retrieve(ctx, "query", "proj-1", 5, nil)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Chunk.ID)
}

func TestSemanticRetriever_VanishedChunksAreDropped(t *testing.T) {
	ctx := context.Background()
	metadata := newMetadata(t)
	seedChunks(t, metadata, []*store.DocumentChunk{
		testChunk("c1", "a.go", 0),
	})

	// c2 scored in the vector store but its row is gone.
	vectors := &fakeVectorStore{hits: []*store.VectorResult{
		vectorHit("c2", 0.9),
		vectorHit("c1", 0.5),
	}}

	r := NewSemanticRetriever(&fakeEmbedder{}, vectors, metadata, nil, SemanticOptions{}, discardLogger())
	results, err := r.Retrieve(ctx, "query", "proj-1", 5, nil)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Chunk.ID)
}

func TestSemanticRetriever_CacheServesRepeatQueries(t *testing.T) {
	ctx := context.Background()
	metadata := newMetadata(t)
	seedChunks(t, metadata, []*store.DocumentChunk{
		testChunk("c1", "a.go", 0),
	})

	vectors := &fakeVectorStore{hits: []*store.VectorResult{vectorHit("c1", 0.7)}}
	embedder := &fakeEmbedder{}
	queryCache := cache.NewMemoryCache(16, 0)
	defer queryCache.Close()

	r := NewSemanticRetriever(embedder, vectors, metadata, queryCache, SemanticOptions{}, discardLogger())

	first, err := r.Retrieve(ctx, "query", "proj-1", 5, nil)
	require.NoError(t, err)
	second, err := r.Retrieve(ctx, "query", "proj-1", 5, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls, "repeat query must not re-embed")
	assert.Equal(t, 1, vectors.queries, "repeat query must not hit the vector store")
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Chunk.ID, second[0].Chunk.ID)
	assert.InDelta(t, first[0].Score, second[0].Score, 1e-9)

	// A different query shape misses the cache.
	_, err = r.Retrieve(ctx, "query", "proj-1", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.calls)
}

func TestSemanticRetriever_CacheEntryExpires(t *testing.T) {
	ctx := context.Background()
	metadata := newMetadata(t)
	seedChunks(t, metadata, []*store.DocumentChunk{
		testChunk("c1", "a.go", 0),
	})

	vectors := &fakeVectorStore{hits: []*store.VectorResult{vectorHit("c1", 0.7)}}
	embedder := &fakeEmbedder{}
	queryCache := cache.NewMemoryCache(16, 0)
	defer queryCache.Close()

	r := NewSemanticRetriever(embedder, vectors, metadata, queryCache,
		SemanticOptions{CacheTTL: 10 * time.Millisecond}, discardLogger())

	_, err := r.Retrieve(ctx, "query", "proj-1", 5, nil)
	require.NoError(t, err)
	time.Sleep(25 * time.Millisecond)
	_, err = r.Retrieve(ctx, "query", "proj-1", 5, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, embedder.calls)
}

func TestSemanticRetriever_CloseIsIdempotent(t *testing.T) {
	metadata := newMetadata(t)
	embedder := &fakeEmbedder{}
	r := NewSemanticRetriever(embedder, &fakeVectorStore{}, metadata, nil, SemanticOptions{}, discardLogger())

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err := r.Retrieve(context.Background(), "query", "proj-1", 5, nil)
	require.Error(t, err)
	assert.Zero(t, embedder.calls, "a closed retriever must not embed")
}

func TestSemanticRetriever_EmptyHitsReturnEmptySlice(t *testing.T) {
	metadata := newMetadata(t)
	r := NewSemanticRetriever(&fakeEmbedder{}, &fakeVectorStore{}, metadata, nil, SemanticOptions{}, discardLogger())

	results, err := r.Retrieve(context.Background(), "nothing matches", "proj-1", 5, nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}
