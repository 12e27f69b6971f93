package search

import (
	"context"
	"sort"

	"github.com/victorgambert/repoindex/internal/store"
)

// Default hybrid fusion weights. The semantic score dominates; keyword
// matches contribute a smaller boost for exact-identifier queries that
// embeddings blur.
const (
	DefaultSemanticWeight = 0.85
	DefaultKeywordWeight  = 0.15
)

// HybridOptions tunes hybrid fusion.
type HybridOptions struct {
	SemanticWeight float64
	KeywordWeight  float64
}

func (o HybridOptions) withDefaults() HybridOptions {
	if o.SemanticWeight == 0 && o.KeywordWeight == 0 {
		o.SemanticWeight = DefaultSemanticWeight
		o.KeywordWeight = DefaultKeywordWeight
	}
	return o
}

// HybridRetriever fuses semantic similarity with keyword BM25 scores.
// Each leg runs scoped to the project; a chunk surfacing in both legs is
// deduplicated with both scores contributing.
type HybridRetriever struct {
	semantic *SemanticRetriever
	keywords store.KeywordIndex
	metadata store.MetadataStore
	opts     HybridOptions
}

// NewHybridRetriever combines a semantic retriever with a keyword index.
func NewHybridRetriever(semantic *SemanticRetriever, keywords store.KeywordIndex, metadata store.MetadataStore, opts HybridOptions) *HybridRetriever {
	return &HybridRetriever{
		semantic: semantic,
		keywords: keywords,
		metadata: metadata,
		opts:     opts.withDefaults(),
	}
}

// Retrieve returns the topK chunks ranked by the weighted combination of
// both legs. Both legs over-fetch so a chunk strong in only one leg can
// still make the cut.
func (h *HybridRetriever) Retrieve(ctx context.Context, query, projectID string, topK int, filter map[string]string) ([]*Result, error) {
	if topK <= 0 {
		topK = h.semantic.opts.TopK
	}
	fetch := topK * 2

	semanticResults, err := h.semantic.Retrieve(ctx, query, projectID, fetch, filter)
	if err != nil {
		return nil, err
	}

	keywordHits, err := h.keywords.Search(ctx, query, projectID, fetch)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*Result, len(semanticResults)+len(keywordHits))
	for _, r := range semanticResults {
		merged[r.Chunk.ID] = &Result{
			Chunk:         r.Chunk,
			SemanticScore: r.SemanticScore,
		}
	}

	keywordScores := normalizeKeywordScores(keywordHits)
	var keywordOnly []string
	for _, hit := range keywordHits {
		if r, ok := merged[hit.ChunkID]; ok {
			r.KeywordScore = keywordScores[hit.ChunkID]
		} else {
			keywordOnly = append(keywordOnly, hit.ChunkID)
		}
	}

	// Chunks only the keyword leg found still need their rows.
	if len(keywordOnly) > 0 {
		chunks, err := h.metadata.GetChunks(ctx, keywordOnly)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			merged[c.ID] = &Result{
				Chunk:        c,
				KeywordScore: keywordScores[c.ID],
			}
		}
	}

	results := make([]*Result, 0, len(merged))
	for _, r := range merged {
		r.Score = h.opts.SemanticWeight*r.SemanticScore + h.opts.KeywordWeight*r.KeywordScore
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Deterministic ties: semantic leg first, then chunk position.
		if results[i].SemanticScore != results[j].SemanticScore {
			return results[i].SemanticScore > results[j].SemanticScore
		}
		if results[i].Chunk.FilePath != results[j].Chunk.FilePath {
			return results[i].Chunk.FilePath < results[j].Chunk.FilePath
		}
		return results[i].Chunk.ChunkIndex < results[j].Chunk.ChunkIndex
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// normalizeKeywordScores maps BM25 scores, which are unbounded, onto
// [0,1] by dividing by the top score so they can be weighted against
// cosine similarities.
func normalizeKeywordScores(hits []*store.KeywordResult) map[string]float64 {
	scores := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return scores
	}
	max := hits[0].Score
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	if max <= 0 {
		return scores
	}
	for _, h := range hits {
		scores[h.ChunkID] = h.Score / max
	}
	return scores
}
