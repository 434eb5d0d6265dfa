package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"issuelens/internal/config"
	"issuelens/internal/core"
	"issuelens/internal/logger"
	"issuelens/internal/store"
)

// ingestRecord is the on-disk shape of one cleaned article. Produced
// by the preprocessing collaborator.
type ingestRecord struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	PublishedAt time.Time `json:"published_at"`
	Outlet      string    `json:"outlet"`
	OutletBias  string    `json:"outlet_bias"`
	Embedding   []float64 `json:"embedding,omitempty"`
}

// NewIngestCmd creates the article ingestion command
func NewIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <articles.json>",
		Short: "Load cleaned articles into the store",
		Long: `Read a JSON array of cleaned articles and upsert them into the
store. Articles without an embedding get one backfilled during the
next cluster or process run.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := runIngest(args[0]); err != nil {
				logger.Error("Ingest failed", "error", err)
				os.Exit(1)
			}
		},
	}
}

func runIngest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var records []ingestRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("no articles in %s", path)
	}

	st, err := store.NewStore(config.Get().App.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	saved, skipped := 0, 0
	for _, record := range records {
		if record.Title == "" && record.Text == "" {
			skipped++
			continue
		}
		if record.ID == "" {
			record.ID = uuid.New().String()
		}

		article := core.Article{
			ID:          record.ID,
			Title:       record.Title,
			CleanedText: record.Text,
			PublishedAt: record.PublishedAt.UTC(),
			Outlet:      record.Outlet,
			OutletBias:  record.OutletBias,
			Embedding:   record.Embedding,
		}
		if err := st.SaveArticle(article); err != nil {
			return err
		}
		saved++
	}

	fmt.Printf("✓ Ingested %d articles (%d skipped)\n", saved, skipped)
	return nil
}
