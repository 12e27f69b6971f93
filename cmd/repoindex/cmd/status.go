package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/victorgambert/repoindex/internal/store"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	var (
		projectID string
		indexID   string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Long:  `Status shows one index by id, or every index of a project.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()

			if indexID != "" {
				idx, err := a.metadata.GetIndex(ctx, indexID)
				if err != nil {
					return err
				}
				printIndex(out, idx)
				return nil
			}

			if projectID == "" {
				return fmt.Errorf("pass --index-id or --project")
			}
			indexes, err := a.metadata.ListIndexes(ctx, projectID)
			if err != nil {
				return err
			}
			if len(indexes) == 0 {
				fmt.Fprintf(out, "No indexes for project %s\n", projectID)
				return nil
			}
			for _, idx := range indexes {
				printIndex(out, idx)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "List indexes of this project")
	cmd.Flags().StringVar(&indexID, "index-id", "", "Show this index")

	return cmd
}

func printIndex(out io.Writer, idx *store.CodebaseIndex) {
	fmt.Fprintf(out, "%s  [%s]\n", idx.ID, idx.Status)
	fmt.Fprintf(out, "  project: %s\n", idx.ProjectID)
	fmt.Fprintf(out, "  files: %d  chunks: %d  tokens: %d  cost: %.6f\n",
		idx.TotalFiles, idx.TotalChunks, idx.TokensUsed, idx.Cost)
	if idx.FailureReason != "" {
		fmt.Fprintf(out, "  failure: %s\n", idx.FailureReason)
	}
	fmt.Fprintf(out, "  started: %s", idx.StartedAt.Format("2006-01-02 15:04:05"))
	if idx.CompletedAt != nil {
		fmt.Fprintf(out, "  completed: %s", idx.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(out)
}
