package handlers

import (
	"fmt"
	"time"

	"issuelens/internal/analyzer"
	"issuelens/internal/bias"
	"issuelens/internal/clustering"
	"issuelens/internal/config"
	"issuelens/internal/llm"
	"issuelens/internal/pipeline"
	"issuelens/internal/prompt"
	"issuelens/internal/quality"
	"issuelens/internal/store"
	"issuelens/internal/views"
)

// buildPipeline wires the full pipeline from configuration. The caller
// owns the returned store and client and must close both.
func buildPipeline() (*pipeline.Pipeline, *store.Store, *llm.Client, error) {
	cfg := config.Get()

	st, err := store.NewStore(cfg.App.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	client, err := llm.NewClient(cfg.AI.Gemini.Model)
	if err != nil {
		st.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	retryDelay, err := time.ParseDuration(cfg.Pipeline.RetryDelay)
	if err != nil {
		retryDelay = time.Second
	}
	requestTimeout, err := time.ParseDuration(cfg.Pipeline.RequestTimeout)
	if err != nil {
		requestTimeout = 60 * time.Second
	}

	clusterer := clustering.NewEngine(clustering.Config{
		MinClusterSize: cfg.Clustering.MinClusterSize,
		MinSamples:     cfg.Clustering.MinSamples,
	})
	assigner := clustering.NewAssigner(cfg.Clustering.SimilarityThreshold)

	issueAnalyzer := analyzer.New(analyzer.Options{
		MinConfidence:     analyzer.DefaultOptions().MinConfidence,
		MinAnalyzableText: cfg.Quality.MinAnalyzableText,
	})

	prompts := prompt.NewGenerator(prompt.Options{
		ExcerptCount:     cfg.Pipeline.ExcerptCount,
		ExcerptMaxChars:  cfg.Pipeline.ExcerptMaxChars,
		PositionMinChars: cfg.Quality.PositionMinChars,
		PositionMaxChars: cfg.Quality.PositionMaxChars,
	})

	generator := views.NewGenerator(client, views.Options{
		MaxTokens:   cfg.AI.Gemini.MaxTokens,
		Temperature: cfg.AI.Gemini.Temperature,
	})

	checker := quality.NewChecker(quality.Options{
		PassThreshold:    cfg.Quality.PassThreshold,
		PositionMinChars: cfg.Quality.PositionMinChars,
		PositionMaxChars: cfg.Quality.PositionMaxChars,
	})

	p := pipeline.NewPipeline(
		st,
		client,
		clusterer,
		assigner,
		issueAnalyzer,
		bias.NewInterpreter(),
		prompts,
		generator,
		checker,
		views.NewHeadliner(client),
		&pipeline.Config{
			MaxRetries:     cfg.Pipeline.MaxRetries,
			RetryDelay:     retryDelay,
			IssueWorkers:   cfg.Pipeline.IssueWorkers,
			LLMConcurrency: cfg.Pipeline.LLMConcurrency,
			RequestTimeout: requestTimeout,
			Embedding: llm.EmbeddingOptions{
				BatchSize:    cfg.Embedding.BatchSize,
				MaxItemChars: cfg.Embedding.MaxItemChars,
				MinItemChars: cfg.Embedding.MinItemChars,
			},
		},
	)

	return p, st, client, nil
}
