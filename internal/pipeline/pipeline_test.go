package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"issuelens/internal/bias"
	"issuelens/internal/clustering"
	"issuelens/internal/core"
	"issuelens/internal/llm"
)

type mockRepo struct {
	mu         sync.Mutex
	issues     map[string]core.Issue
	members    map[string][]core.Article
	unassigned []core.Article
	metadata   map[string]core.IssueMetadata
	views      map[string]map[core.Perspective]core.View
	embeddings map[string][]float64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		issues:     make(map[string]core.Issue),
		members:    make(map[string][]core.Article),
		metadata:   make(map[string]core.IssueMetadata),
		views:      make(map[string]map[core.Perspective]core.View),
		embeddings: make(map[string][]float64),
	}
}

func (m *mockRepo) ListIssues(status core.IssueStatus) ([]core.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Issue
	for _, issue := range m.issues {
		if status == "" || issue.Status == status {
			out = append(out, issue)
		}
	}
	return out, nil
}

func (m *mockRepo) GetIssue(id string) (*core.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[id]
	if !ok {
		return nil, nil
	}
	return &issue, nil
}

func (m *mockRepo) SaveIssue(issue core.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[issue.ID] = issue
	return nil
}

func (m *mockRepo) UpdateIssueStatus(id string, status core.IssueStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue := m.issues[id]
	issue.Status = status
	m.issues[id] = issue
	return nil
}

func (m *mockRepo) GetArticlesForIssue(issueID string) ([]core.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[issueID], nil
}

func (m *mockRepo) UnassignedArticles() ([]core.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unassigned, nil
}

func (m *mockRepo) SaveEmbedding(articleID string, vector []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings[articleID] = vector
	return nil
}

func (m *mockRepo) SaveMetadata(issueID string, meta core.IssueMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[issueID] = meta
	return nil
}

func (m *mockRepo) SaveView(view core.View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.views[view.IssueID] == nil {
		m.views[view.IssueID] = make(map[core.Perspective]core.View)
	}
	m.views[view.IssueID][view.Perspective] = view
	return nil
}

func (m *mockRepo) GetViews(issueID string) (map[core.Perspective]core.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[core.Perspective]core.View)
	for perspective, view := range m.views[issueID] {
		out[perspective] = view
	}
	return out, nil
}

type mockEmbedder struct{}

func (m *mockEmbedder) GenerateEmbeddings(_ context.Context, texts []string, _ llm.EmbeddingOptions) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

type mockClusterer struct {
	result *clustering.Result
	err    error
	got    []core.Article
}

func (m *mockClusterer) Cluster(articles []core.Article) (*clustering.Result, error) {
	m.got = articles
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	ids := make([]string, len(articles))
	for i, article := range articles {
		ids[i] = article.ID
	}
	return &clustering.Result{Noise: ids}, nil
}

type mockAssigner struct {
	assignments map[string]clustering.Assignment
}

func (m *mockAssigner) Assign(article core.Article, _ []core.Issue) (clustering.Assignment, error) {
	if a, ok := m.assignments[article.ID]; ok {
		return a, nil
	}
	return clustering.Assignment{}, nil
}

type mockAnalyzer struct {
	meta core.IssueMetadata
	err  error
}

func (m *mockAnalyzer) Analyze(_ []core.Article) (core.IssueMetadata, error) {
	return m.meta, m.err
}

type mockPrompts struct {
	mu         sync.Mutex
	retryCalls int
	lastHints  []string
}

func (m *mockPrompts) Build(issue core.Issue, _ core.IssueMetadata, _ bias.Guideline, _ []core.Article, perspective core.Perspective) string {
	return fmt.Sprintf("prompt:%s:%s", issue.ID, perspective)
}

func (m *mockPrompts) BuildRetry(issue core.Issue, _ core.IssueMetadata, _ bias.Guideline, _ []core.Article, perspective core.Perspective, hints []string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCalls++
	m.lastHints = hints
	return fmt.Sprintf("retry:%s:%s:%d", issue.ID, perspective, len(hints))
}

type mockGenerator struct {
	mu         sync.Mutex
	calls      []string
	failFor    map[core.Perspective]error
	hangFor    map[core.Perspective]bool
	onGenerate func()
}

func (m *mockGenerator) Generate(ctx context.Context, issueID string, perspective core.Perspective, promptText string) (core.View, error) {
	m.mu.Lock()
	m.calls = append(m.calls, promptText)
	failErr := m.failFor[perspective]
	hang := m.hangFor[perspective]
	hook := m.onGenerate
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if hang {
		<-ctx.Done()
		return core.View{}, fmt.Errorf("%w: %v", core.ErrGeneration, ctx.Err())
	}
	if ctx.Err() != nil {
		return core.View{}, fmt.Errorf("%w: %v", core.ErrGeneration, ctx.Err())
	}
	if failErr != nil {
		return core.View{}, failErr
	}
	return core.View{
		IssueID:     issueID,
		Perspective: perspective,
		Title:       "T",
		Position:    "P",
		Rationale:   "R",
		Alternative: "A",
		GeneratedAt: time.Now(),
	}, nil
}

type mockChecker struct {
	mu          sync.Mutex
	rejectFirst map[core.Perspective]int // rejections to issue before passing
	seen        map[core.Perspective]int
}

func (m *mockChecker) Check(view core.View, _ core.IssueMetadata) core.QualityScore {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[core.Perspective]int)
	}
	m.seen[view.Perspective]++
	if m.seen[view.Perspective] <= m.rejectFirst[view.Perspective] {
		return core.QualityScore{
			Aggregate: 30,
			Passed:    false,
			Grade:     "D",
			Hints:     []string{"nuance (0/100): add hedging"},
		}
	}
	return core.QualityScore{Aggregate: 85, Passed: true, Grade: "A"}
}

func (m *mockChecker) Report(score core.QualityScore) string {
	return fmt.Sprintf("quality %.0f (%s)", score.Aggregate, score.Grade)
}

type testHarness struct {
	repo      *mockRepo
	clusterer *mockClusterer
	assigner  *mockAssigner
	prompts   *mockPrompts
	generator *mockGenerator
	checker   *mockChecker
	pipeline  *Pipeline
}

func newHarness() *testHarness {
	h := &testHarness{
		repo:      newMockRepo(),
		clusterer: &mockClusterer{},
		assigner:  &mockAssigner{assignments: map[string]clustering.Assignment{}},
		prompts:   &mockPrompts{},
		generator: &mockGenerator{
			failFor: map[core.Perspective]error{},
			hangFor: map[core.Perspective]bool{},
		},
		checker: &mockChecker{rejectFirst: map[core.Perspective]int{}},
	}
	h.pipeline = NewPipeline(
		h.repo,
		&mockEmbedder{},
		h.clusterer,
		h.assigner,
		&mockAnalyzer{meta: core.IssueMetadata{IssueType: core.IssueEconomic, Confidence: 0.7}},
		bias.NewInterpreter(),
		h.prompts,
		h.generator,
		h.checker,
		nil,
		&Config{MaxRetries: 2, RetryDelay: time.Millisecond, IssueWorkers: 2, LLMConcurrency: 2, RequestTimeout: 50 * time.Millisecond},
	)
	return h
}

func (h *testHarness) seedIssue(id string, articleCount int) {
	var ids []string
	var articles []core.Article
	for i := 0; i < articleCount; i++ {
		articleID := fmt.Sprintf("%s-a%d", id, i)
		ids = append(ids, articleID)
		articles = append(articles, core.Article{
			ID:          articleID,
			Title:       "Title",
			CleanedText: "Body",
			PublishedAt: time.Now(),
			Embedding:   []float64{1, 0, 0},
		})
	}
	h.repo.issues[id] = core.Issue{
		ID:         id,
		ArticleIDs: ids,
		Centroid:   []float64{1, 0, 0},
		Status:     core.IssueOpen,
		CreatedAt:  time.Now(),
	}
	h.repo.members[id] = articles
}

func TestRunGeneratesAllPerspectives(t *testing.T) {
	h := newHarness()
	h.seedIssue("i1", 3)

	summary, err := h.pipeline.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.IssuesProcessed != 1 {
		t.Errorf("IssuesProcessed = %d, want 1", summary.IssuesProcessed)
	}
	if summary.ViewsAccepted != 3 {
		t.Errorf("ViewsAccepted = %d, want 3", summary.ViewsAccepted)
	}
	if summary.ViewsFailed != 0 || len(summary.FailedIssues) != 0 {
		t.Errorf("unexpected failures: %+v", summary)
	}

	views, _ := h.repo.GetViews("i1")
	if len(views) != 3 {
		t.Errorf("stored %d views, want 3", len(views))
	}
	if _, ok := h.repo.metadata["i1"]; !ok {
		t.Error("metadata not saved")
	}
	if summary.FinishedAt.Before(summary.StartedAt) {
		t.Error("FinishedAt before StartedAt")
	}
}

func TestRunRetriesWithHints(t *testing.T) {
	h := newHarness()
	h.seedIssue("i1", 3)
	h.checker.rejectFirst[core.PerspectiveLeft] = 1

	summary, err := h.pipeline.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.ViewsAccepted != 3 {
		t.Errorf("ViewsAccepted = %d, want 3", summary.ViewsAccepted)
	}
	if summary.ViewsRetried != 1 {
		t.Errorf("ViewsRetried = %d, want 1", summary.ViewsRetried)
	}
	if h.prompts.retryCalls != 1 {
		t.Errorf("BuildRetry called %d times, want 1", h.prompts.retryCalls)
	}
	if len(h.prompts.lastHints) == 0 || !strings.Contains(h.prompts.lastHints[0], "nuance") {
		t.Errorf("hints not forwarded: %v", h.prompts.lastHints)
	}
}

func TestRunExhaustsRetriesAndRecordsFailure(t *testing.T) {
	h := newHarness()
	h.seedIssue("i1", 3)
	h.generator.failFor[core.PerspectiveRight] = fmt.Errorf("%w: model unavailable", core.ErrGeneration)

	summary, err := h.pipeline.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.ViewsAccepted != 2 {
		t.Errorf("ViewsAccepted = %d, want 2 (other perspectives proceed)", summary.ViewsAccepted)
	}
	if summary.ViewsFailed != 1 {
		t.Errorf("ViewsFailed = %d, want 1", summary.ViewsFailed)
	}
	if kind := summary.FailedIssues["i1"]; kind != "generation" {
		t.Errorf("failure kind = %q, want generation", kind)
	}

	views, _ := h.repo.GetViews("i1")
	if _, ok := views[core.PerspectiveRight]; ok {
		t.Error("failed perspective should not be stored")
	}
	if _, ok := views[core.PerspectiveLeft]; !ok {
		t.Error("left view missing")
	}
}

func TestRunSkipsCompleteIssues(t *testing.T) {
	h := newHarness()
	h.seedIssue("i1", 3)
	for _, perspective := range core.Perspectives {
		h.repo.SaveView(core.View{IssueID: "i1", Perspective: perspective, Position: "P", Rationale: "R", Alternative: "A"})
	}

	summary, err := h.pipeline.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.IssuesProcessed != 0 {
		t.Errorf("IssuesProcessed = %d, want 0 (all views present)", summary.IssuesProcessed)
	}
	if len(h.generator.calls) != 0 {
		t.Errorf("generator called %d times for a complete issue", len(h.generator.calls))
	}

	// Force regenerates every slot.
	summary, err = h.pipeline.Run(context.Background(), RunOptions{Force: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.ViewsAccepted != 3 {
		t.Errorf("forced ViewsAccepted = %d, want 3", summary.ViewsAccepted)
	}
}

func TestRunSingleIssue(t *testing.T) {
	h := newHarness()
	h.seedIssue("i1", 3)
	h.seedIssue("i2", 3)

	summary, err := h.pipeline.Run(context.Background(), RunOptions{IssueID: "i1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.IssuesProcessed != 1 {
		t.Errorf("IssuesProcessed = %d, want 1", summary.IssuesProcessed)
	}
	if len(h.repo.views["i2"]) != 0 {
		t.Error("issue i2 should be untouched")
	}

	if _, err := h.pipeline.Run(context.Background(), RunOptions{IssueID: "ghost"}); !errors.Is(err, core.ErrPersistence) {
		t.Errorf("expected ErrPersistence for unknown issue, got %v", err)
	}
}

func TestRunClusteringAssignsThenClusters(t *testing.T) {
	h := newHarness()
	h.seedIssue("i1", 2)
	h.repo.unassigned = []core.Article{
		{ID: "new1", Embedding: []float64{1, 0, 0}},
		{ID: "new2", Embedding: []float64{0, 1, 0}},
		{ID: "new3", Embedding: []float64{0, 1, 0}},
		{ID: "new4", Title: "no vector yet", CleanedText: "text"},
	}
	h.assigner.assignments["new1"] = clustering.Assignment{IssueID: "i1", Similarity: 0.92, Matched: true}
	h.clusterer.result = &clustering.Result{
		Clusters: []clustering.Cluster{{
			ArticleIDs: []string{"new2", "new3"},
			Centroid:   []float64{0, 1, 0},
		}},
		Noise: []string{"new4"},
	}

	stats, err := h.pipeline.RunClustering(context.Background())
	if err != nil {
		t.Fatalf("RunClustering failed: %v", err)
	}
	if stats.Embedded != 1 {
		t.Errorf("Embedded = %d, want 1", stats.Embedded)
	}
	if stats.Assigned != 1 {
		t.Errorf("Assigned = %d, want 1", stats.Assigned)
	}
	if stats.Created != 1 {
		t.Errorf("Created = %d, want 1", stats.Created)
	}
	if stats.Noise != 1 {
		t.Errorf("Noise = %d, want 1", stats.Noise)
	}

	// The merged issue gained a member and its centroid moved.
	merged, _ := h.repo.GetIssue("i1")
	if len(merged.ArticleIDs) != 3 {
		t.Errorf("merged issue has %d members, want 3", len(merged.ArticleIDs))
	}

	// One new issue created from the batch pass, open, with members.
	issues, _ := h.repo.ListIssues(core.IssueOpen)
	if len(issues) != 2 {
		t.Fatalf("got %d open issues, want 2", len(issues))
	}
	if _, ok := h.repo.embeddings["new4"]; !ok {
		t.Error("backfilled embedding not persisted")
	}
}

func TestRunCancellation(t *testing.T) {
	h := newHarness()
	h.seedIssue("i1", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.pipeline.Run(ctx, RunOptions{SkipClustering: true})
	if err == nil {
		t.Fatal("expected error from canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestRunTimesOutHungGeneration(t *testing.T) {
	h := newHarness()
	h.seedIssue("i1", 3)
	h.generator.hangFor[core.PerspectiveRight] = true

	type outcome struct {
		summary *core.RunSummary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		summary, err := h.pipeline.Run(context.Background(), RunOptions{SkipClustering: true})
		done <- outcome{summary, err}
	}()

	var got outcome
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return: a hung generation call stalls the pool")
	}

	if got.err != nil {
		t.Fatalf("Run failed: %v", got.err)
	}
	if got.summary.ViewsAccepted != 2 {
		t.Errorf("ViewsAccepted = %d, want 2 (other perspectives proceed)", got.summary.ViewsAccepted)
	}
	if got.summary.ViewsFailed != 1 {
		t.Errorf("ViewsFailed = %d, want 1", got.summary.ViewsFailed)
	}
	if kind := got.summary.FailedIssues["i1"]; kind != "generation" {
		t.Errorf("failure kind = %q, want generation", kind)
	}
}

func TestRunCancelMidGenerationPersistsNothing(t *testing.T) {
	h := newHarness()
	h.seedIssue("i1", 3)

	ctx, cancel := context.WithCancel(context.Background())
	h.generator.onGenerate = cancel

	_, err := h.pipeline.Run(ctx, RunOptions{SkipClustering: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}

	views, _ := h.repo.GetViews("i1")
	if len(views) != 0 {
		t.Errorf("stored %d views after mid-run cancel, want 0", len(views))
	}
}

func TestRunFinalizesCompletedIssues(t *testing.T) {
	h := newHarness()
	h.seedIssue("i1", 3)

	if _, err := h.pipeline.Run(context.Background(), RunOptions{SkipClustering: true}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got, _ := h.repo.GetIssue("i1")
	if got.Status != core.IssueFinalized {
		t.Errorf("Status = %q, want finalized after 3/3 accepted views", got.Status)
	}

	// A failed perspective keeps the issue open for the next run.
	h2 := newHarness()
	h2.seedIssue("i2", 3)
	h2.generator.failFor[core.PerspectiveCenter] = fmt.Errorf("%w: model unavailable", core.ErrGeneration)

	if _, err := h2.pipeline.Run(context.Background(), RunOptions{SkipClustering: true}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got2, _ := h2.repo.GetIssue("i2")
	if got2.Status != core.IssueOpen {
		t.Errorf("Status = %q, want open while a perspective is missing", got2.Status)
	}
}
