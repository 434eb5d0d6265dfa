package pipeline

import (
	"context"

	"issuelens/internal/bias"
	"issuelens/internal/clustering"
	"issuelens/internal/core"
	"issuelens/internal/llm"
)

// Repository is the persistence surface the orchestrator needs.
type Repository interface {
	// ListIssues returns issues filtered by status; empty means all
	ListIssues(status core.IssueStatus) ([]core.Issue, error)

	// GetIssue returns one issue, nil if absent
	GetIssue(id string) (*core.Issue, error)

	// SaveIssue upserts an issue and replaces its membership
	SaveIssue(issue core.Issue) error

	// UpdateIssueStatus moves an issue through its lifecycle
	UpdateIssueStatus(id string, status core.IssueStatus) error

	// GetArticlesForIssue returns member articles, newest first
	GetArticlesForIssue(issueID string) ([]core.Article, error)

	// UnassignedArticles returns articles belonging to no issue
	UnassignedArticles() ([]core.Article, error)

	// SaveEmbedding upserts an article's vector
	SaveEmbedding(articleID string, vector []float64) error

	// SaveMetadata stores analyzer output for an issue
	SaveMetadata(issueID string, meta core.IssueMetadata) error

	// SaveView writes an accepted view into its perspective slot
	SaveView(view core.View) error

	// GetViews returns stored views keyed by perspective
	GetViews(issueID string) (map[core.Perspective]core.View, error)
}

// Embedder backfills vectors for articles that arrived without one.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string, opts llm.EmbeddingOptions) ([][]float64, error)
}

// Clusterer runs the density-based batch pass.
type Clusterer interface {
	Cluster(articles []core.Article) (*clustering.Result, error)
}

// Assigner matches a single article against open issue centroids.
type Assigner interface {
	Assign(article core.Article, issues []core.Issue) (clustering.Assignment, error)
}

// Analyzer derives issue characteristics from member articles.
type Analyzer interface {
	Analyze(articles []core.Article) (core.IssueMetadata, error)
}

// Interpreter translates a perspective into issue-specific guidance.
type Interpreter interface {
	Interpret(perspective core.Perspective, meta core.IssueMetadata) bias.Guideline
}

// PromptBuilder assembles generation prompts.
type PromptBuilder interface {
	Build(issue core.Issue, meta core.IssueMetadata, guideline bias.Guideline, articles []core.Article, perspective core.Perspective) string
	BuildRetry(issue core.Issue, meta core.IssueMetadata, guideline bias.Guideline, articles []core.Article, perspective core.Perspective, hints []string) string
}

// ViewGenerator produces one structured view from a prompt.
type ViewGenerator interface {
	Generate(ctx context.Context, issueID string, perspective core.Perspective, promptText string) (core.View, error)
}

// QualityChecker scores a generated view and renders its verdict.
type QualityChecker interface {
	Check(view core.View, meta core.IssueMetadata) core.QualityScore
	Report(score core.QualityScore) string
}

// Headliner writes issue titles after clustering. Optional; issues
// keep a placeholder title when absent.
type Headliner interface {
	Headline(ctx context.Context, articles []core.Article) (title, subtitle string, err error)
}
