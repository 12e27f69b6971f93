package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/victorgambert/repoindex/internal/errors"
)

// HNSWStore implements VectorStore with a pure Go in-memory HNSW graph.
// It serves tests and single-process local mode; production deployments
// use QdrantStore. Payload filtering, including the mandatory project
// scope, is applied after graph search with over-fetch to compensate.
type HNSWStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	// string id <-> graph key mapping; deletion is lazy (mappings are
	// dropped, the graph node is orphaned) to avoid graph instability
	// when the last node is removed.
	idMap    map[string]uint64
	keyMap   map[uint64]string
	payloads map[string]Payload
	nextKey  uint64

	closed bool
}

var _ VectorStore = (*HNSWStore)(nil)

// NewHNSWStore creates an in-memory vector store for the given dimension.
func NewHNSWStore(dims int) *HNSWStore {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 40
	graph.Ml = 0.25

	return &HNSWStore{
		graph:    graph,
		dims:     dims,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		payloads: make(map[string]Payload),
	}
}

// Upsert inserts or replaces points by id.
func (s *HNSWStore) Upsert(_ context.Context, points []*Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New(errors.ErrCodeVectorStore, "vector store is closed", nil)
	}

	for _, p := range points {
		if len(p.Vector) != s.dims {
			return errors.New(errors.ErrCodeVectorStore, "vector dimension mismatch", nil).
				WithDetail("id", p.ID)
		}

		if existingKey, exists := s.idMap[p.ID]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, p.ID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[p.ID] = key
		s.keyMap[key] = p.ID
		s.payloads[p.ID] = p.Payload
	}

	return nil
}

// Search finds the topK nearest points belonging to projectID. The graph
// is over-fetched because orphaned nodes and other projects' points are
// filtered out after the fact.
func (s *HNSWStore) Search(_ context.Context, vector []float32, projectID string, topK int, filter map[string]string) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.New(errors.ErrCodeVectorStore, "vector store is closed", nil)
	}
	if len(vector) != s.dims {
		return nil, errors.New(errors.ErrCodeVectorStore, "query dimension mismatch", nil)
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeInPlace(query)

	fetch := topK * 4
	if fetch < 32 {
		fetch = 32
	}
	if fetch > s.graph.Len() {
		fetch = s.graph.Len()
	}

	nodes := s.graph.Search(query, fetch)

	results := make([]*VectorResult, 0, topK)
	for _, node := range nodes {
		id, live := s.keyMap[node.Key]
		if !live {
			continue // lazily deleted
		}
		payload := s.payloads[id]
		if payload.ProjectID != projectID {
			continue
		}
		if !payloadMatches(payload, filter) {
			continue
		}

		distance := s.graph.Distance(query, node.Value)
		results = append(results, &VectorResult{
			ID:      id,
			Score:   1 - distance, // cosine similarity
			Payload: payload,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes points by id using lazy deletion.
func (s *HNSWStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New(errors.ErrCodeVectorStore, "vector store is closed", nil)
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.payloads, id)
		}
	}
	return nil
}

// Count returns the number of live points.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Close marks the store closed. Safe to call more than once.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func payloadMatches(p Payload, filter map[string]string) bool {
	for key, want := range filter {
		var got string
		switch key {
		case "file_path":
			got = p.FilePath
		case "chunk_type":
			got = p.ChunkType
		case "language":
			got = p.Language
		case "index_id":
			got = p.IndexID
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return
	}
	for i, val := range v {
		v[i] = float32(float64(val) / magnitude)
	}
}
