package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victorgambert/repoindex/internal/indexer"
)

// newUpdateCmd creates the update command.
func newUpdateCmd() *cobra.Command {
	var (
		indexID   string
		projectID string
		owner     string
		repo      string
		ref       string
		added     []string
		modified  []string
		removed   []string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Apply file changes to an existing index",
		Long: `Update applies added, modified and removed file paths to an existing
completed index. Modified files whose content is unchanged are detected
by content hash and skipped. A second update for the same index while
one is running is rejected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if len(added)+len(modified)+len(removed) == 0 {
				return fmt.Errorf("nothing to do: pass --added, --modified or --removed")
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ix, err := newIndexer(a)
			if err != nil {
				return err
			}
			defer ix.Close()

			result, err := indexer.NewIncremental(ix).UpdateIndex(ctx, indexer.Request{
				IndexID:   indexID,
				ProjectID: projectID,
				Owner:     owner,
				Repo:      repo,
				Ref:       ref,
			}, indexer.FileChanges{
				Added:    added,
				Modified: modified,
				Removed:  removed,
			})
			if err != nil {
				return fmt.Errorf("update failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Index %s updated\n", result.Index.ID)
			fmt.Fprintf(out, "  chunks added:    %d\n", result.ChunksAdded)
			fmt.Fprintf(out, "  chunks modified: %d\n", result.ChunksModified)
			fmt.Fprintf(out, "  chunks removed:  %d\n", result.ChunksRemoved)
			fmt.Fprintf(out, "  files unchanged: %d\n", result.FilesUnchanged)
			fmt.Fprintf(out, "  total chunks:    %d\n", result.Index.TotalChunks)
			return nil
		},
	}

	cmd.Flags().StringVar(&indexID, "index-id", "", "Index to update")
	cmd.Flags().StringVar(&projectID, "project", "", "Project the index belongs to")
	cmd.Flags().StringVar(&owner, "owner", "", "Repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository name")
	cmd.Flags().StringVar(&ref, "ref", "", "Commit or branch to read from")
	cmd.Flags().StringSliceVar(&added, "added", nil, "Added file paths")
	cmd.Flags().StringSliceVar(&modified, "modified", nil, "Modified file paths")
	cmd.Flags().StringSliceVar(&removed, "removed", nil, "Removed file paths")
	_ = cmd.MarkFlagRequired("index-id")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}
