package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"issuelens/internal/logger"
	"issuelens/internal/pipeline"
)

// NewProcessCmd creates the view generation command
func NewProcessCmd() *cobra.Command {
	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Generate perspective views for clustered issues",
		Long: `Run the full pipeline: cluster unassigned articles, analyze each
open issue, and generate the three perspective views through the
quality gate. Use --issue to target one issue, --all for every open
issue.`,
		Run: func(cmd *cobra.Command, args []string) {
			issueID, _ := cmd.Flags().GetString("issue")
			all, _ := cmd.Flags().GetBool("all")
			force, _ := cmd.Flags().GetBool("force")
			skipClustering, _ := cmd.Flags().GetBool("skip-clustering")

			if issueID == "" && !all {
				fmt.Fprintln(os.Stderr, "specify --issue <id> or --all")
				os.Exit(1)
			}

			if err := runProcess(issueID, force, skipClustering); err != nil {
				logger.Error("Processing failed", "error", err)
				os.Exit(1)
			}
		},
	}

	processCmd.Flags().String("issue", "", "Process a single issue by ID")
	processCmd.Flags().Bool("all", false, "Process every open issue")
	processCmd.Flags().Bool("force", false, "Regenerate views even when all three slots are filled")
	processCmd.Flags().Bool("skip-clustering", false, "Skip the clustering stage")

	return processCmd
}

func runProcess(issueID string, force, skipClustering bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, st, client, err := buildPipeline()
	if err != nil {
		return err
	}
	defer st.Close()
	defer client.Close()

	fmt.Println("🔭 Processing issues...")
	summary, err := p.Run(ctx, pipeline.RunOptions{
		IssueID:        issueID,
		Force:          force,
		SkipClustering: skipClustering,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n✓ Run finished in %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	fmt.Printf("  Issues processed: %d\n", summary.IssuesProcessed)
	fmt.Printf("  Views accepted:   %d\n", summary.ViewsAccepted)
	fmt.Printf("  Views retried:    %d\n", summary.ViewsRetried)
	fmt.Printf("  Views failed:     %d\n", summary.ViewsFailed)

	if len(summary.FailedIssues) > 0 {
		fmt.Println("\n⚠️  Failed issues:")
		ids := make([]string, 0, len(summary.FailedIssues))
		for id := range summary.FailedIssues {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("  %s: %s\n", id, summary.FailedIssues[id])
		}
	}

	return nil
}
