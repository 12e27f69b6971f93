package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/victorgambert/repoindex/internal/gen"
)

// DefaultRerankCandidates bounds how many results go into one rerank
// prompt, capping its token cost.
const DefaultRerankCandidates = 20

// rerankExcerptChars truncates candidate content in the prompt.
const rerankExcerptChars = 600

// Reranker reorders retrieval results by LLM-judged relevance. Reranking
// is strictly best-effort: any failure falls back to the input order, so
// a broken generation provider degrades quality, never availability.
type Reranker struct {
	client     gen.Client
	candidates int
	logger     *slog.Logger
}

// NewReranker creates a reranker. candidates <= 0 selects the default.
func NewReranker(client gen.Client, candidates int, logger *slog.Logger) *Reranker {
	if candidates <= 0 {
		candidates = DefaultRerankCandidates
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{client: client, candidates: candidates, logger: logger}
}

// Rerank returns results reordered by relevance to query, truncated to
// topK. The input order is preserved on any reranking failure.
func (r *Reranker) Rerank(ctx context.Context, query string, results []*Result, topK int) []*Result {
	if topK <= 0 || topK > len(results) {
		topK = len(results)
	}
	if len(results) < 2 {
		return results[:topK]
	}

	pool := results
	if len(pool) > r.candidates {
		pool = pool[:r.candidates]
	}

	response, err := r.client.Generate(ctx, r.buildPrompt(query, pool))
	if err != nil {
		r.logger.Warn("rerank_failed", slog.String("error", err.Error()))
		return results[:topK]
	}

	order, ok := parseRanking(response, len(pool))
	if !ok {
		r.logger.Warn("rerank_unparseable", slog.String("response", truncate(response, 200)))
		return results[:topK]
	}

	reranked := make([]*Result, 0, topK)
	for _, idx := range order {
		reranked = append(reranked, pool[idx])
		if len(reranked) == topK {
			break
		}
	}
	// The model may return fewer candidates than asked; pad from the
	// original order.
	if len(reranked) < topK {
		seen := make(map[int]bool, len(order))
		for _, idx := range order {
			seen[idx] = true
		}
		for i, res := range pool {
			if len(reranked) == topK {
				break
			}
			if !seen[i] {
				reranked = append(reranked, res)
			}
		}
		for i := len(pool); i < len(results) && len(reranked) < topK; i++ {
			reranked = append(reranked, results[i])
		}
	}
	return reranked
}

func (r *Reranker) buildPrompt(query string, pool []*Result) string {
	var sb strings.Builder
	sb.WriteString("You are ranking code search results by relevance to a query.\n\n")
	fmt.Fprintf(&sb, "Query: %s\n\nCandidates:\n", query)
	for i, res := range pool {
		fmt.Fprintf(&sb, "[%d] %s (lines %d-%d)\n%s\n\n",
			i+1, res.Chunk.FilePath, res.Chunk.StartLine, res.Chunk.EndLine,
			truncate(res.Chunk.Content, rerankExcerptChars))
	}
	sb.WriteString("Reply with the candidate numbers ordered from most to least relevant, ")
	sb.WriteString("comma-separated, nothing else. Example: 3,1,2")
	return sb.String()
}

// parseRanking extracts a permutation prefix from the model response.
// Returns false when no valid candidate number can be read.
func parseRanking(response string, n int) ([]int, bool) {
	fields := strings.FieldsFunc(response, func(r rune) bool {
		return r < '0' || r > '9'
	})

	order := make([]int, 0, n)
	seen := make(map[int]bool, n)
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < 1 || v > n || seen[v] {
			continue
		}
		seen[v] = true
		order = append(order, v-1)
	}
	if len(order) == 0 {
		return nil, false
	}
	return order, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
