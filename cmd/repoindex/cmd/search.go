package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/victorgambert/repoindex/internal/gen"
	"github.com/victorgambert/repoindex/internal/search"
)

// newSearchCmd creates the search command.
func newSearchCmd() *cobra.Command {
	var (
		projectID string
		topK      int
		hybrid    bool
		rerank    bool
		filters   []string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed code",
		Long: `Search answers a natural-language query over a project's indexed
chunks. Semantic retrieval is the default; --hybrid folds in keyword
scores and --rerank reorders results with the generation model.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := args[0]

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			filter, err := parseFilters(filters)
			if err != nil {
				return err
			}

			semantic := search.NewSemanticRetriever(
				a.embedder, a.vectors, a.metadata, a.cache,
				search.SemanticOptions{
					TopK:           a.cfg.Retrieval.TopK,
					ScoreThreshold: a.cfg.Retrieval.ScoreThreshold,
					CacheTTL:       a.cfg.Cache.TTL,
				},
				a.logger,
			)
			defer semantic.Close()

			var results []*search.Result
			if hybrid {
				results, err = search.NewHybridRetriever(semantic, a.keywords, a.metadata,
					search.HybridOptions{
						SemanticWeight: a.cfg.Retrieval.SemanticWeight,
						KeywordWeight:  a.cfg.Retrieval.KeywordWeight,
					}).Retrieve(ctx, query, projectID, topK, filter)
			} else {
				results, err = semantic.Retrieve(ctx, query, projectID, topK, filter)
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if rerank {
				client := gen.NewOpenAIClient(gen.Config{
					BaseURL: a.cfg.Generation.BaseURL,
					APIKey:  a.cfg.Generation.APIKey,
					Model:   a.cfg.Generation.Model,
					Timeout: time.Duration(a.cfg.Generation.TimeoutSeconds) * time.Second,
				})
				defer client.Close()

				reranker := search.NewReranker(client, a.cfg.Retrieval.RerankCandidates, a.logger)
				results = reranker.Rerank(ctx, query, results, topK)
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. %s:%d-%d (score %.4f)\n",
					i+1, r.Chunk.FilePath, r.Chunk.StartLine, r.Chunk.EndLine, r.Score)
				if name := r.Chunk.Metadata["name"]; name != "" {
					fmt.Fprintf(out, "   %s %s\n", r.Chunk.ChunkType, name)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project to search in")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of results (config default if 0)")
	cmd.Flags().BoolVar(&hybrid, "hybrid", false, "Fuse keyword scores with semantic similarity")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "Rerank results with the generation model")
	cmd.Flags().StringSliceVar(&filters, "filter", nil, "Payload filters as key=value (file_path, language, chunk_type, index_id)")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: want key=value", p)
		}
		filter[key] = value
	}
	return filter, nil
}
