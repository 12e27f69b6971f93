package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/victorgambert/repoindex/internal/chunk"
	"github.com/victorgambert/repoindex/internal/indexer"
)

// newIndexCmd creates the index command.
func newIndexCmd() *cobra.Command {
	var (
		projectID string
		owner     string
		repo      string
		ref       string
		indexID   string
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a repository snapshot",
		Long: `Index fetches the repository file listing at the given ref, chunks
every matching file, embeds chunk content, and writes vectors, metadata
and keyword documents. The resulting index is scoped to the project.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if indexID == "" {
				indexID = uuid.NewString()
			}

			ix, err := newIndexer(a)
			if err != nil {
				return err
			}
			defer ix.Close()

			result, err := ix.IndexRepository(ctx, indexer.Request{
				IndexID:   indexID,
				ProjectID: projectID,
				Owner:     owner,
				Repo:      repo,
				Ref:       ref,
			})
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Index %s completed\n", result.Index.ID)
			fmt.Fprintf(out, "  files:   %d (%d skipped)\n", result.Index.TotalFiles, result.FilesSkipped)
			fmt.Fprintf(out, "  chunks:  %d\n", result.Index.TotalChunks)
			fmt.Fprintf(out, "  tokens:  %d\n", result.Index.TokensUsed)
			fmt.Fprintf(out, "  cost:    %.6f\n", result.Index.Cost)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project the index belongs to")
	cmd.Flags().StringVar(&owner, "owner", "", "Repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository name")
	cmd.Flags().StringVar(&ref, "ref", "", "Commit or branch to index (default branch if empty)")
	cmd.Flags().StringVar(&indexID, "index-id", "", "Index id (generated if empty)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

// newIndexer wires the indexing pipeline from app components.
func newIndexer(a *app) (*indexer.Indexer, error) {
	chunker := chunk.NewChunker(chunk.Options{
		MaxChunkChars:      a.cfg.Chunking.MaxChunkChars,
		FallbackChunkChars: a.cfg.Chunking.FallbackChunkChars,
		OverlapChars:       a.cfg.Chunking.OverlapChars,
	})

	filter := indexer.NewFileFilter(
		a.cfg.Indexing.Include,
		a.cfg.Indexing.Exclude,
		a.cfg.Indexing.MaxFileSize,
	)

	return indexer.New(
		newVCSClient(),
		chunker,
		a.embedder,
		a.vectors,
		a.metadata,
		a.keywords,
		filter,
		indexer.Options{
			Workers:        a.cfg.Indexing.Workers,
			BatchSize:      a.cfg.Embedding.BatchSize,
			MaxBatchTokens: a.cfg.Embedding.MaxBatchTokens,
			UnitPrice:      a.cfg.Embedding.UnitPrice,
		},
		a.logger,
	)
}
