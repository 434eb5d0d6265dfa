// Package pipeline orchestrates the full run: cluster articles into
// issues, analyze each issue, then generate and quality-gate the three
// perspective views. Clustering always completes before any view
// generation starts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"issuelens/internal/clustering"
	"issuelens/internal/core"
	"issuelens/internal/llm"
	"issuelens/internal/logger"
	"issuelens/internal/retry"
)

// Config holds orchestrator settings.
type Config struct {
	// MaxRetries bounds regeneration attempts per perspective after
	// the first one
	MaxRetries int

	// RetryDelay is the base wait between attempts
	RetryDelay time.Duration

	// IssueWorkers is the number of issues processed concurrently
	IssueWorkers int

	// LLMConcurrency caps in-flight generation service calls across
	// all workers
	LLMConcurrency int

	// RequestTimeout bounds each external call. Expiry surfaces as an
	// error on the call and feeds the normal retry/failure path
	RequestTimeout time.Duration

	// Embedding shapes backfill requests to the embedding service
	Embedding llm.EmbeddingOptions
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     2,
		RetryDelay:     time.Second,
		IssueWorkers:   4,
		LLMConcurrency: 6,
		RequestTimeout: 60 * time.Second,
		Embedding:      llm.DefaultEmbeddingOptions(),
	}
}

// Pipeline coordinates all components. Construct with NewPipeline.
type Pipeline struct {
	repo        Repository
	embedder    Embedder
	clusterer   Clusterer
	assigner    Assigner
	analyzer    Analyzer
	interpreter Interpreter
	prompts     PromptBuilder
	generator   ViewGenerator
	checker     QualityChecker
	headliner   Headliner

	config   *Config
	llmSlots chan struct{}
}

// NewPipeline creates a pipeline with all dependencies. The headliner
// may be nil; new issues then keep an empty title.
func NewPipeline(
	repo Repository,
	embedder Embedder,
	clusterer Clusterer,
	assigner Assigner,
	analyzer Analyzer,
	interpreter Interpreter,
	prompts PromptBuilder,
	generator ViewGenerator,
	checker QualityChecker,
	headliner Headliner,
	config *Config,
) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	if config.IssueWorkers < 1 {
		config.IssueWorkers = 1
	}
	if config.LLMConcurrency < 1 {
		config.LLMConcurrency = 1
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}

	return &Pipeline{
		repo:        repo,
		embedder:    embedder,
		clusterer:   clusterer,
		assigner:    assigner,
		analyzer:    analyzer,
		interpreter: interpreter,
		prompts:     prompts,
		generator:   generator,
		checker:     checker,
		headliner:   headliner,
		config:      config,
		llmSlots:    make(chan struct{}, config.LLMConcurrency),
	}
}

// RunOptions configures a pipeline run.
type RunOptions struct {
	// IssueID restricts the run to one issue; empty processes all
	// open issues
	IssueID string

	// Force regenerates views even when all three slots are filled
	Force bool

	// SkipClustering goes straight to view generation
	SkipClustering bool
}

// ClusterStats reports the outcome of the clustering stage.
type ClusterStats struct {
	Embedded int // Articles that received a backfilled vector
	Assigned int // Articles merged into existing open issues
	Created  int // New issues from the batch pass
	Noise    int // Articles left unassigned
}

// Run executes the full pipeline and returns a summary. Per-issue
// failures are recorded in the summary and do not abort the run;
// context cancellation does.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*core.RunSummary, error) {
	log := logger.Get()
	summary := &core.RunSummary{
		FailedIssues: make(map[string]string),
		StartedAt:    time.Now().UTC(),
	}

	if !opts.SkipClustering {
		stats, err := p.RunClustering(ctx)
		if err != nil {
			return summary, err
		}
		log.Info("Clustering stage complete",
			"embedded", stats.Embedded,
			"assigned", stats.Assigned,
			"created", stats.Created,
			"noise", stats.Noise)
	}

	issues, err := p.selectIssues(opts)
	if err != nil {
		return summary, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.IssueWorkers)
	var mu sync.Mutex

	for _, issue := range issues {
		if gctx.Err() != nil {
			break
		}
		issue := issue
		g.Go(func() error {
			p.processIssue(gctx, issue, opts.Force, summary, &mu)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	summary.FinishedAt = time.Now().UTC()
	log.Info("Run complete",
		"issues", summary.IssuesProcessed,
		"accepted", summary.ViewsAccepted,
		"retried", summary.ViewsRetried,
		"failed", summary.ViewsFailed)
	return summary, ctx.Err()
}

func (p *Pipeline) selectIssues(opts RunOptions) ([]core.Issue, error) {
	if opts.IssueID != "" {
		issue, err := p.repo.GetIssue(opts.IssueID)
		if err != nil {
			return nil, err
		}
		if issue == nil {
			return nil, fmt.Errorf("%w: issue %s not found", core.ErrPersistence, opts.IssueID)
		}
		return []core.Issue{*issue}, nil
	}
	return p.repo.ListIssues(core.IssueOpen)
}

// RunClustering backfills embeddings, merges new articles into open
// issues by centroid similarity, and batch-clusters the remainder.
func (p *Pipeline) RunClustering(ctx context.Context) (*ClusterStats, error) {
	log := logger.Get()
	stats := &ClusterStats{}

	open, err := p.repo.ListIssues(core.IssueOpen)
	if err != nil {
		return stats, err
	}
	unassigned, err := p.repo.UnassignedArticles()
	if err != nil {
		return stats, err
	}
	if len(unassigned) == 0 {
		return stats, nil
	}

	if err := p.backfillEmbeddings(ctx, unassigned, stats); err != nil {
		return stats, err
	}

	// Incremental pass: merge into existing issues where the centroid
	// is close enough.
	var leftovers []core.Article
	for _, article := range unassigned {
		if len(article.Embedding) == 0 {
			stats.Noise++
			continue
		}
		assignment, err := p.assigner.Assign(article, open)
		if err != nil {
			log.Warn("Assignment failed", "article", article.ID, "error", err)
			leftovers = append(leftovers, article)
			continue
		}
		if !assignment.Matched {
			leftovers = append(leftovers, article)
			continue
		}

		for i := range open {
			if open[i].ID != assignment.IssueID {
				continue
			}
			open[i].Centroid = clustering.UpdateCentroid(open[i].Centroid, article.Embedding, len(open[i].ArticleIDs))
			open[i].ArticleIDs = append(open[i].ArticleIDs, article.ID)
			if err := p.repo.SaveIssue(open[i]); err != nil {
				return stats, err
			}
			stats.Assigned++
			break
		}
	}

	// Batch pass over what remains.
	if len(leftovers) > 0 {
		if err := p.clusterLeftovers(ctx, leftovers, stats); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (p *Pipeline) backfillEmbeddings(ctx context.Context, articles []core.Article, stats *ClusterStats) error {
	var missing []int
	var texts []string
	for i, article := range articles {
		if len(article.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, article.Title+"\n"+article.CleanedText)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var vectors [][]float64
	opts := p.config.Embedding
	if opts.BatchSize <= 0 {
		opts = llm.DefaultEmbeddingOptions()
	}
	err := retry.Do(ctx, retry.Options{MaxRetries: p.config.MaxRetries, Delay: p.config.RetryDelay}, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
		defer cancel()
		var embedErr error
		vectors, embedErr = p.embedder.GenerateEmbeddings(callCtx, texts, opts)
		return embedErr
	})
	if err != nil {
		return fmt.Errorf("%w: backfill embeddings: %v", core.ErrClustering, err)
	}

	for j, i := range missing {
		if vectors[j] == nil {
			continue
		}
		articles[i].Embedding = vectors[j]
		if err := p.repo.SaveEmbedding(articles[i].ID, vectors[j]); err != nil {
			return err
		}
		stats.Embedded++
	}
	return nil
}

func (p *Pipeline) clusterLeftovers(ctx context.Context, leftovers []core.Article, stats *ClusterStats) error {
	log := logger.Get()

	result, err := p.clusterer.Cluster(leftovers)
	if err != nil {
		return err
	}
	stats.Noise += len(result.Noise)

	byID := make(map[string]core.Article, len(leftovers))
	for _, article := range leftovers {
		byID[article.ID] = article
	}

	for _, cluster := range result.Clusters {
		issue := core.Issue{
			ID:         uuid.New().String(),
			ArticleIDs: cluster.ArticleIDs,
			Centroid:   cluster.Centroid,
			Status:     core.IssueOpen,
			CreatedAt:  time.Now().UTC(),
		}

		if p.headliner != nil {
			members := make([]core.Article, 0, len(cluster.ArticleIDs))
			for _, id := range cluster.ArticleIDs {
				members = append(members, byID[id])
			}
			title, subtitle, err := p.generateHeadline(ctx, members)
			if err != nil {
				log.Warn("Headline generation failed", "issue", issue.ID, "error", err)
			} else {
				issue.Title = title
				issue.Subtitle = subtitle
			}
		}

		if err := p.repo.SaveIssue(issue); err != nil {
			return err
		}
		stats.Created++
	}
	return nil
}

func (p *Pipeline) generateHeadline(ctx context.Context, articles []core.Article) (string, string, error) {
	if err := p.acquireSlot(ctx); err != nil {
		return "", "", err
	}
	defer p.releaseSlot()

	var title, subtitle string
	err := retry.Do(ctx, retry.Options{MaxRetries: p.config.MaxRetries, Delay: p.config.RetryDelay}, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
		defer cancel()
		var headlineErr error
		title, subtitle, headlineErr = p.headliner.Headline(callCtx, articles)
		return headlineErr
	})
	return title, subtitle, err
}

// processIssue runs analysis and the three perspective state machines
// for one issue. Failures are recorded on the summary, never returned.
func (p *Pipeline) processIssue(ctx context.Context, issue core.Issue, force bool, summary *core.RunSummary, mu *sync.Mutex) {
	log := logger.With("issue", issue.ID)

	existing, err := p.repo.GetViews(issue.ID)
	if err != nil {
		p.recordIssueFailure(summary, mu, issue.ID, err)
		return
	}
	if !force && len(existing) == len(core.Perspectives) {
		log.Debug("All views present, skipping")
		return
	}

	articles, err := p.repo.GetArticlesForIssue(issue.ID)
	if err != nil {
		p.recordIssueFailure(summary, mu, issue.ID, err)
		return
	}

	meta, err := p.analyzer.Analyze(articles)
	if err != nil {
		if !errors.Is(err, core.ErrAnalysis) {
			p.recordIssueFailure(summary, mu, issue.ID, err)
			return
		}
		// Analyzer degraded to uncategorized defaults; generation
		// still proceeds.
		log.Warn("Analysis degraded", "error", err)
	}
	if err := p.repo.SaveMetadata(issue.ID, meta); err != nil {
		p.recordIssueFailure(summary, mu, issue.ID, err)
		return
	}

	mu.Lock()
	summary.IssuesProcessed++
	mu.Unlock()

	var lastFailure error
	for _, perspective := range core.Perspectives {
		if ctx.Err() != nil {
			return
		}
		if _, done := existing[perspective]; done && !force {
			continue
		}
		if err := p.generateView(ctx, issue, meta, articles, perspective, summary, mu); err != nil {
			lastFailure = err
			log.Warn("Perspective failed", "perspective", perspective, "error", err)
		}
	}

	if lastFailure != nil {
		p.recordIssueFailure(summary, mu, issue.ID, lastFailure)
		return
	}

	p.finalizeIfComplete(issue.ID, log)
}

// finalizeIfComplete moves an issue to finalized once all three
// perspective slots hold an accepted view. Finalized issues leave the
// open set, so later runs and incremental assignment skip them.
func (p *Pipeline) finalizeIfComplete(issueID string, log *slog.Logger) {
	views, err := p.repo.GetViews(issueID)
	if err != nil || len(views) != len(core.Perspectives) {
		return
	}
	if err := p.repo.UpdateIssueStatus(issueID, core.IssueFinalized); err != nil {
		log.Warn("Finalize failed", "error", err)
		return
	}
	log.Info("Issue finalized")
}

// generateView drives one perspective through its state machine:
// generate, check, and on rejection retry with the checker's hints
// folded into the prompt, worst criterion first.
func (p *Pipeline) generateView(ctx context.Context, issue core.Issue, meta core.IssueMetadata, articles []core.Article, perspective core.Perspective, summary *core.RunSummary, mu *sync.Mutex) error {
	log := logger.With("issue", issue.ID, "perspective", perspective)

	log.Debug("State transition", "state", core.StateAnalyzing)
	guideline := p.interpreter.Interpret(perspective, meta)
	promptText := p.prompts.Build(issue, meta, guideline, articles, perspective)

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Debug("State transition", "state", core.StateRetrying, "attempt", attempt+1)
			mu.Lock()
			summary.ViewsRetried++
			mu.Unlock()
			if err := p.wait(ctx); err != nil {
				return err
			}
		}

		log.Debug("State transition", "state", core.StateGenerating)
		view, err := p.callGenerator(ctx, issue.ID, perspective, promptText)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			log.Warn("Generation attempt failed", "attempt", attempt+1, "error", err)
			continue
		}

		log.Debug("State transition", "state", core.StateChecking)
		score := p.checker.Check(view, meta)
		if !score.Passed {
			lastErr = fmt.Errorf("%w: quality %.0f (%s) below threshold", core.ErrGeneration, score.Aggregate, score.Grade)
			log.Info("View rejected",
				"attempt", attempt+1,
				"report", p.checker.Report(score))
			promptText = p.prompts.BuildRetry(issue, meta, guideline, articles, perspective, score.Hints)
			continue
		}

		if err := p.repo.SaveView(view); err != nil {
			return err
		}
		log.Debug("State transition", "state", core.StateAccepted)
		mu.Lock()
		summary.ViewsAccepted++
		mu.Unlock()
		log.Info("View accepted", "attempt", attempt+1, "grade", score.Grade)
		return nil
	}

	log.Debug("State transition", "state", core.StateFailed)
	mu.Lock()
	summary.ViewsFailed++
	mu.Unlock()
	return lastErr
}

// callGenerator holds an LLM slot for the duration of one generation
// call. The per-call timeout keeps a hung call from pinning the slot
// and its worker; expiry errors the attempt and the retry loop takes
// over.
func (p *Pipeline) callGenerator(ctx context.Context, issueID string, perspective core.Perspective, promptText string) (core.View, error) {
	if err := p.acquireSlot(ctx); err != nil {
		return core.View{}, err
	}
	defer p.releaseSlot()

	callCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()
	return p.generator.Generate(callCtx, issueID, perspective, promptText)
}

func (p *Pipeline) acquireSlot(ctx context.Context) error {
	select {
	case p.llmSlots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) releaseSlot() {
	<-p.llmSlots
}

func (p *Pipeline) wait(ctx context.Context) error {
	select {
	case <-time.After(p.config.RetryDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) recordIssueFailure(summary *core.RunSummary, mu *sync.Mutex, issueID string, err error) {
	mu.Lock()
	defer mu.Unlock()
	summary.FailedIssues[issueID] = core.ErrorKind(err)
}
