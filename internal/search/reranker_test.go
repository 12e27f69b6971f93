package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenClient returns a canned response or error and records prompts.
type fakeGenClient struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenClient) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGenClient) Close() error { return nil }

func rerankResults(n int) []*Result {
	results := make([]*Result, n)
	for i := range results {
		id := string(rune('a' + i))
		results[i] = &Result{
			Chunk: testChunk(id, id+".go", 0),
			Score: float64(n-i) / 10,
		}
	}
	return results
}

func TestReranker_ReordersByModelRanking(t *testing.T) {
	client := &fakeGenClient{response: "3, 1, 2"}
	r := NewReranker(client, 0, discardLogger())

	results := rerankResults(3)
	reranked := r.Rerank(context.Background(), "query", results, 3)

	require.Len(t, reranked, 3)
	assert.Equal(t, "c", reranked[0].Chunk.ID)
	assert.Equal(t, "a", reranked[1].Chunk.ID)
	assert.Equal(t, "b", reranked[2].Chunk.ID)
}

func TestReranker_PromptNumbersCandidates(t *testing.T) {
	client := &fakeGenClient{response: "1,2"}
	r := NewReranker(client, 0, discardLogger())

	r.Rerank(context.Background(), "find auth middleware", rerankResults(2), 2)

	require.Len(t, client.prompts, 1)
	prompt := client.prompts[0]
	assert.Contains(t, prompt, "Query: find auth middleware")
	assert.Contains(t, prompt, "[1] a.go")
	assert.Contains(t, prompt, "[2] b.go")
	assert.Contains(t, prompt, "content of a")
}

func TestReranker_GenerationErrorFallsBack(t *testing.T) {
	client := &fakeGenClient{err: errors.New("provider down")}
	r := NewReranker(client, 0, discardLogger())

	results := rerankResults(3)
	reranked := r.Rerank(context.Background(), "query", results, 2)

	require.Len(t, reranked, 2)
	assert.Equal(t, "a", reranked[0].Chunk.ID)
	assert.Equal(t, "b", reranked[1].Chunk.ID)
}

func TestReranker_UnparseableResponseFallsBack(t *testing.T) {
	client := &fakeGenClient{response: "the most relevant result is clearly the first one"}
	r := NewReranker(client, 0, discardLogger())

	results := rerankResults(3)
	reranked := r.Rerank(context.Background(), "query", results, 3)

	// Digits leak out of prose ("first one" has none here); a response
	// with no usable number keeps the input order.
	require.Len(t, reranked, 3)
	assert.Equal(t, "a", reranked[0].Chunk.ID)
	assert.Equal(t, "b", reranked[1].Chunk.ID)
	assert.Equal(t, "c", reranked[2].Chunk.ID)
}

func TestReranker_PartialRankingPadsFromInputOrder(t *testing.T) {
	client := &fakeGenClient{response: "4"}
	r := NewReranker(client, 0, discardLogger())

	results := rerankResults(4)
	reranked := r.Rerank(context.Background(), "query", results, 4)

	require.Len(t, reranked, 4)
	assert.Equal(t, "d", reranked[0].Chunk.ID)
	assert.Equal(t, "a", reranked[1].Chunk.ID)
	assert.Equal(t, "b", reranked[2].Chunk.ID)
	assert.Equal(t, "c", reranked[3].Chunk.ID)
}

func TestReranker_SingleResultSkipsTheModel(t *testing.T) {
	client := &fakeGenClient{response: "1"}
	r := NewReranker(client, 0, discardLogger())

	results := rerankResults(1)
	reranked := r.Rerank(context.Background(), "query", results, 1)

	require.Len(t, reranked, 1)
	assert.Empty(t, client.prompts, "a single result needs no ranking call")
}

func TestReranker_CandidatePoolIsBounded(t *testing.T) {
	client := &fakeGenClient{response: "2,1"}
	r := NewReranker(client, 2, discardLogger())

	results := rerankResults(5)
	reranked := r.Rerank(context.Background(), "query", results, 5)

	require.Len(t, client.prompts, 1)
	assert.NotContains(t, client.prompts[0], "[3]", "only the candidate pool goes into the prompt")

	// Pool reordered, remainder keeps its original order.
	require.Len(t, reranked, 5)
	assert.Equal(t, "b", reranked[0].Chunk.ID)
	assert.Equal(t, "a", reranked[1].Chunk.ID)
	assert.Equal(t, "c", reranked[2].Chunk.ID)
	assert.Equal(t, "d", reranked[3].Chunk.ID)
	assert.Equal(t, "e", reranked[4].Chunk.ID)
}

func TestParseRanking(t *testing.T) {
	tests := []struct {
		name     string
		response string
		n        int
		want     []int
		ok       bool
	}{
		{"plain list", "3,1,2", 3, []int{2, 0, 1}, true},
		{"spaced list", " 2 , 3 , 1 ", 3, []int{1, 2, 0}, true},
		{"prose wrapper", "Ranking: 2, then 1.", 2, []int{1, 0}, true},
		{"out of range ignored", "9,1,0,2", 3, []int{0, 1}, true},
		{"duplicates ignored", "1,1,2", 2, []int{0, 1}, true},
		{"no digits", "none of these", 3, nil, false},
		{"empty", "", 3, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRanking(tt.response, tt.n)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReranker_LongContentIsTruncatedInPrompt(t *testing.T) {
	client := &fakeGenClient{response: "1,2"}
	r := NewReranker(client, 0, discardLogger())

	results := rerankResults(2)
	results[0].Chunk.Content = strings.Repeat("x", 2000)
	r.Rerank(context.Background(), "query", results, 2)

	require.Len(t, client.prompts, 1)
	assert.NotContains(t, client.prompts[0], strings.Repeat("x", 700))
}
