package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"issuelens/internal/logger"
)

// NewClusterCmd creates the clustering command
func NewClusterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cluster",
		Short: "Cluster unassigned articles into issues",
		Long: `Backfill missing embeddings, merge new articles into open issues
whose centroid is similar enough, and run the density-based batch pass
over the remainder. Articles that fit no cluster stay unassigned.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCluster(); err != nil {
				logger.Error("Clustering failed", "error", err)
				os.Exit(1)
			}
		},
	}
}

func runCluster() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, st, client, err := buildPipeline()
	if err != nil {
		return err
	}
	defer st.Close()
	defer client.Close()

	fmt.Println("🔗 Clustering articles...")
	stats, err := p.RunClustering(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n✓ Clustering finished\n")
	fmt.Printf("  Embeddings backfilled: %d\n", stats.Embedded)
	fmt.Printf("  Assigned to open issues: %d\n", stats.Assigned)
	fmt.Printf("  New issues created: %d\n", stats.Created)
	fmt.Printf("  Left unassigned (noise): %d\n", stats.Noise)

	return nil
}
