package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorgambert/repoindex/internal/store"
)

// fakeKeywordIndex returns canned BM25 hits.
type fakeKeywordIndex struct {
	hits []*store.KeywordResult
}

func (f *fakeKeywordIndex) Index(context.Context, []*store.DocumentChunk, string) error { return nil }

func (f *fakeKeywordIndex) Search(_ context.Context, _, _ string, limit int) ([]*store.KeywordResult, error) {
	if len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func (f *fakeKeywordIndex) Delete(context.Context, []string) error { return nil }
func (f *fakeKeywordIndex) Close() error                           { return nil }

func newHybrid(t *testing.T, metadata *store.SQLiteStore, vectors *fakeVectorStore, keywords *fakeKeywordIndex) *HybridRetriever {
	t.Helper()
	semantic := NewSemanticRetriever(&fakeEmbedder{}, vectors, metadata, nil, SemanticOptions{}, discardLogger())
	return NewHybridRetriever(semantic, keywords, metadata, HybridOptions{})
}

func TestHybridRetriever_DeduplicatesAcrossLegs(t *testing.T) {
	ctx := context.Background()
	metadata := newMetadata(t)
	seedChunks(t, metadata, []*store.DocumentChunk{
		testChunk("c1", "a.go", 0),
		testChunk("c2", "b.go", 0),
	})

	vectors := &fakeVectorStore{hits: []*store.VectorResult{
		vectorHit("c1", 0.8),
		vectorHit("c2", 0.6),
	}}
	keywords := &fakeKeywordIndex{hits: []*store.KeywordResult{
		{ChunkID: "c1", Score: 4.0},
	}}

	h := newHybrid(t, metadata, vectors, keywords)
	results, err := h.Retrieve(ctx, "query", "proj-1", 5, nil)
	require.NoError(t, err)

	require.Len(t, results, 2, "chunk surfacing in both legs appears once")

	// c1: 0.85*0.8 + 0.15*1.0; c2: 0.85*0.6.
	assert.Equal(t, "c1", results[0].Chunk.ID)
	assert.InDelta(t, 0.85*0.8+0.15*1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.8, results[0].SemanticScore, 1e-6)
	assert.InDelta(t, 1.0, results[0].KeywordScore, 1e-6)

	assert.Equal(t, "c2", results[1].Chunk.ID)
	assert.InDelta(t, 0.85*0.6, results[1].Score, 1e-6)
	assert.Zero(t, results[1].KeywordScore)
}

func TestHybridRetriever_KeywordOnlyChunksAreIncluded(t *testing.T) {
	ctx := context.Background()
	metadata := newMetadata(t)
	seedChunks(t, metadata, []*store.DocumentChunk{
		testChunk("c1", "a.go", 0),
		testChunk("c2", "b.go", 0),
	})

	vectors := &fakeVectorStore{hits: []*store.VectorResult{
		vectorHit("c1", 0.9),
	}}
	keywords := &fakeKeywordIndex{hits: []*store.KeywordResult{
		{ChunkID: "c2", Score: 3.0},
	}}

	h := newHybrid(t, metadata, vectors, keywords)
	results, err := h.Retrieve(ctx, "ExactIdentifierName", "proj-1", 5, nil)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].Chunk.ID)
	assert.Equal(t, "c2", results[1].Chunk.ID)
	assert.Zero(t, results[1].SemanticScore)
	assert.InDelta(t, 1.0, results[1].KeywordScore, 1e-6)
	assert.InDelta(t, 0.15, results[1].Score, 1e-6)
	assert.Equal(t, "content of c2", results[1].Chunk.Content, "keyword-only hit carries its full row")
}

func TestHybridRetriever_KeywordScoresNormalizedByMax(t *testing.T) {
	ctx := context.Background()
	metadata := newMetadata(t)
	seedChunks(t, metadata, []*store.DocumentChunk{
		testChunk("c1", "a.go", 0),
		testChunk("c2", "b.go", 0),
	})

	vectors := &fakeVectorStore{}
	keywords := &fakeKeywordIndex{hits: []*store.KeywordResult{
		{ChunkID: "c1", Score: 8.0},
		{ChunkID: "c2", Score: 2.0},
	}}

	h := newHybrid(t, metadata, vectors, keywords)
	results, err := h.Retrieve(ctx, "query", "proj-1", 5, nil)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.InDelta(t, 1.0, results[0].KeywordScore, 1e-6)
	assert.InDelta(t, 0.25, results[1].KeywordScore, 1e-6)
}

func TestHybridRetriever_TiesBreakDeterministically(t *testing.T) {
	ctx := context.Background()
	metadata := newMetadata(t)
	seedChunks(t, metadata, []*store.DocumentChunk{
		testChunk("c1", "b.go", 0),
		testChunk("c2", "a.go", 1),
		testChunk("c3", "a.go", 0),
	})

	// Identical scores everywhere: order falls back to file path, then
	// chunk position.
	vectors := &fakeVectorStore{hits: []*store.VectorResult{
		vectorHit("c1", 0.5),
		vectorHit("c2", 0.5),
		vectorHit("c3", 0.5),
	}}

	h := newHybrid(t, metadata, vectors, &fakeKeywordIndex{})
	results, err := h.Retrieve(ctx, "query", "proj-1", 5, nil)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "c3", results[0].Chunk.ID) // a.go, index 0
	assert.Equal(t, "c2", results[1].Chunk.ID) // a.go, index 1
	assert.Equal(t, "c1", results[2].Chunk.ID) // b.go
}

func TestHybridRetriever_TruncatesToTopK(t *testing.T) {
	ctx := context.Background()
	metadata := newMetadata(t)

	chunks := make([]*store.DocumentChunk, 6)
	hits := make([]*store.VectorResult, 6)
	for i := range chunks {
		id := string(rune('a' + i))
		chunks[i] = testChunk(id, id+".go", 0)
		hits[i] = vectorHit(id, float32(6-i)/10)
	}
	seedChunks(t, metadata, chunks)

	h := newHybrid(t, metadata, &fakeVectorStore{hits: hits}, &fakeKeywordIndex{})
	results, err := h.Retrieve(ctx, "query", "proj-1", 2, nil)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Chunk.ID)
	assert.Equal(t, "b", results[1].Chunk.ID)
}

func TestHybridRetriever_CustomWeights(t *testing.T) {
	ctx := context.Background()
	metadata := newMetadata(t)
	seedChunks(t, metadata, []*store.DocumentChunk{
		testChunk("c1", "a.go", 0),
		testChunk("c2", "b.go", 0),
	})

	vectors := &fakeVectorStore{hits: []*store.VectorResult{
		vectorHit("c1", 0.9),
	}}
	keywords := &fakeKeywordIndex{hits: []*store.KeywordResult{
		{ChunkID: "c2", Score: 5.0},
	}}

	semantic := NewSemanticRetriever(&fakeEmbedder{}, vectors, metadata, nil, SemanticOptions{}, discardLogger())
	h := NewHybridRetriever(semantic, keywords, metadata, HybridOptions{
		SemanticWeight: 0.1,
		KeywordWeight:  0.9,
	})

	results, err := h.Retrieve(ctx, "query", "proj-1", 5, nil)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "c2", results[0].Chunk.ID, "keyword-dominant weights rank the keyword hit first")
}
