package handlers

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"issuelens/internal/config"
	"issuelens/internal/core"
	"issuelens/internal/logger"
	"issuelens/internal/store"
)

// NewIssuesCmd creates the issue inspection command
func NewIssuesCmd() *cobra.Command {
	issuesCmd := &cobra.Command{
		Use:   "issues",
		Short: "Inspect stored issues and their views",
	}

	issuesCmd.AddCommand(newIssuesListCmd())
	issuesCmd.AddCommand(newIssuesShowCmd())
	issuesCmd.AddCommand(newIssuesStatsCmd())

	return issuesCmd
}

func newIssuesListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List issues with member and view counts",
		Run: func(cmd *cobra.Command, args []string) {
			status, _ := cmd.Flags().GetString("status")
			if err := runIssuesList(status); err != nil {
				logger.Error("Failed to list issues", "error", err)
				os.Exit(1)
			}
		},
	}

	listCmd.Flags().String("status", "open", "Filter by status (open, finalized, stale, or all)")
	return listCmd
}

func newIssuesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <issue-id>",
		Short: "Show one issue and its three perspective views",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := runIssuesShow(args[0]); err != nil {
				logger.Error("Failed to show issue", "error", err)
				os.Exit(1)
			}
		},
	}
}

func newIssuesStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runIssuesStats(); err != nil {
				logger.Error("Failed to get stats", "error", err)
				os.Exit(1)
			}
		},
	}
}

func openStore() (*store.Store, error) {
	return store.NewStore(config.Get().App.DataDir)
}

func runIssuesList(status string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	filter := core.IssueStatus(status)
	if status == "all" {
		filter = ""
	}

	issues, err := st.ListIssues(filter)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Println("No issues found")
		return nil
	}

	for _, issue := range issues {
		views, err := st.GetViews(issue.ID)
		if err != nil {
			return err
		}
		title := issue.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  [%s]  articles=%d views=%d/3  %s\n",
			issue.ID, issue.Status, len(issue.ArticleIDs), len(views), title)
	}
	return nil
}

func runIssuesShow(issueID string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	issue, err := st.GetIssue(issueID)
	if err != nil {
		return err
	}
	if issue == nil {
		return fmt.Errorf("issue %s not found", issueID)
	}

	fmt.Printf("Issue: %s\n", issue.ID)
	if issue.Title != "" {
		fmt.Printf("Title: %s\n", issue.Title)
	}
	if issue.Subtitle != "" {
		fmt.Printf("Subtitle: %s\n", issue.Subtitle)
	}
	fmt.Printf("Status: %s | Articles: %d | Created: %s\n",
		issue.Status, len(issue.ArticleIDs), issue.CreatedAt.Format("2006-01-02 15:04"))

	meta, err := st.GetMetadata(issue.ID)
	if err != nil {
		return err
	}
	if meta != nil {
		fmt.Printf("Type: %s | Conflict: %s | Complexity: %.1f | Urgency: %.1f | Confidence: %.2f\n",
			meta.IssueType, meta.ValueConflict, meta.Complexity, meta.Urgency, meta.Confidence)
		if len(meta.Stakeholders) > 0 {
			fmt.Printf("Stakeholders: %s\n", strings.Join(meta.Stakeholders, ", "))
		}
	}

	views, err := st.GetViews(issue.ID)
	if err != nil {
		return err
	}
	for _, perspective := range core.Perspectives {
		view, ok := views[perspective]
		if !ok {
			fmt.Printf("\n── %s ──\n(no accepted view)\n", strings.ToUpper(string(perspective)))
			continue
		}
		fmt.Printf("\n── %s ── %s\n", strings.ToUpper(string(perspective)), view.Title)
		fmt.Printf("Position:    %s\n", view.Position)
		fmt.Printf("Rationale:   %s\n", view.Rationale)
		fmt.Printf("Alternative: %s\n", view.Alternative)
	}
	return nil
}

func runIssuesStats() error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.GetStats()
	if err != nil {
		return err
	}

	fmt.Println("📊 Store Statistics")
	fmt.Printf("  Articles:    %d\n", stats.ArticleCount)
	fmt.Printf("  Embeddings:  %d\n", stats.EmbeddingCount)
	fmt.Printf("  Issues:      %d (%d open)\n", stats.IssueCount, stats.OpenIssueCount)
	fmt.Printf("  Store size:  %.2f MB\n", float64(stats.Size)/1024/1024)
	return nil
}
