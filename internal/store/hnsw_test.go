package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPoint(id, projectID string, vec []float32) *Point {
	return &Point{
		ID:     id,
		Vector: vec,
		Payload: Payload{
			ProjectID: projectID,
			IndexID:   "idx-" + projectID,
			ChunkID:   "chunk-" + id,
			FilePath:  "src/" + id + ".go",
			Language:  "go",
			ChunkType: "function",
		},
	}
}

func TestHNSWStore_SearchIsProjectScoped(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore(3)
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, []*Point{
		testPoint("a1", "project-a", []float32{1, 0, 0}),
		testPoint("a2", "project-a", []float32{0.9, 0.1, 0}),
		testPoint("b1", "project-b", []float32{1, 0, 0}),
	}))

	results, err := s.Search(ctx, []float32{1, 0, 0}, "project-a", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "project-a", r.Payload.ProjectID)
	}

	// The identical vector indexed under project-b never leaks in.
	results, err = s.Search(ctx, []float32{1, 0, 0}, "project-b", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b1", results[0].ID)
}

func TestHNSWStore_SearchOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore(2)
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, []*Point{
		testPoint("close", "p", []float32{1, 0}),
		testPoint("far", "p", []float32{0, 1}),
		testPoint("mid", "p", []float32{1, 1}),
	}))

	results, err := s.Search(ctx, []float32{1, 0}, "p", 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "close", results[0].ID)
	assert.Equal(t, "mid", results[1].ID)
	assert.Equal(t, "far", results[2].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestHNSWStore_PayloadFilter(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore(2)
	defer s.Close()

	goPoint := testPoint("g", "p", []float32{1, 0})
	pyPoint := testPoint("py", "p", []float32{1, 0})
	pyPoint.Payload.Language = "python"
	require.NoError(t, s.Upsert(ctx, []*Point{goPoint, pyPoint}))

	results, err := s.Search(ctx, []float32{1, 0}, "p", 10, map[string]string{"language": "python"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "py", results[0].ID)
}

func TestHNSWStore_UpsertReplacesAndDeleteRemoves(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore(2)
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, []*Point{testPoint("a", "p", []float32{1, 0})}))
	require.NoError(t, s.Upsert(ctx, []*Point{testPoint("a", "p", []float32{0, 1})}))
	assert.Equal(t, 1, s.Count())

	results, err := s.Search(ctx, []float32{0, 1}, "p", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)

	require.NoError(t, s.Delete(ctx, []string{"a"}))
	assert.Equal(t, 0, s.Count())

	results, err = s.Search(ctx, []float32{0, 1}, "p", 1, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewHNSWStore(3)
	defer s.Close()

	err := s.Upsert(ctx, []*Point{testPoint("a", "p", []float32{1, 0})})
	require.Error(t, err)

	_, err = s.Search(ctx, []float32{1, 0}, "p", 1, nil)
	require.Error(t, err)
}

func TestHNSWStore_EmptySearch(t *testing.T) {
	s := NewHNSWStore(2)
	defer s.Close()

	results, err := s.Search(context.Background(), []float32{1, 0}, "p", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
