package store

import (
	"errors"
	"testing"
	"time"

	"issuelens/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testArticle(id string, publishedAt time.Time) core.Article {
	return core.Article{
		ID:          id,
		Title:       "Title " + id,
		CleanedText: "Body text for " + id,
		PublishedAt: publishedAt,
		Outlet:      "Outlet-" + id,
		OutletBias:  "center",
		Embedding:   []float64{0.1, 0.2, 0.3},
	}
}

func TestSaveAndGetArticle(t *testing.T) {
	s := newTestStore(t)
	article := testArticle("a1", time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))

	if err := s.SaveArticle(article); err != nil {
		t.Fatalf("SaveArticle failed: %v", err)
	}

	got, err := s.GetArticle("a1")
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if got == nil {
		t.Fatal("article not found")
	}
	if got.Title != article.Title || got.Outlet != article.Outlet {
		t.Errorf("got %+v", got)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != 0.2 {
		t.Errorf("embedding not round-tripped: %v", got.Embedding)
	}
}

func TestGetArticleMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetArticle("nope")
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing article, got %+v", got)
	}
}

func TestSaveArticlePreservesEmbeddingOnRefetch(t *testing.T) {
	s := newTestStore(t)
	article := testArticle("a1", time.Now().UTC())
	if err := s.SaveArticle(article); err != nil {
		t.Fatalf("SaveArticle failed: %v", err)
	}

	// Re-save without a vector; the stored one must survive.
	article.Embedding = nil
	article.Title = "Updated title"
	if err := s.SaveArticle(article); err != nil {
		t.Fatalf("SaveArticle failed: %v", err)
	}

	got, err := s.GetArticle("a1")
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if got.Title != "Updated title" {
		t.Errorf("Title = %q", got.Title)
	}
	if len(got.Embedding) != 3 {
		t.Errorf("embedding lost on refetch: %v", got.Embedding)
	}
}

func TestSaveIssueRoundTrip(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"a1", "a2", "a3"} {
		if err := s.SaveArticle(testArticle(id, base)); err != nil {
			t.Fatalf("SaveArticle failed: %v", err)
		}
	}

	issue := core.Issue{
		ID:         "i1",
		Title:      "Rate decision splits markets",
		Subtitle:   "Central bank holds steady",
		ArticleIDs: []string{"a1", "a2", "a3"},
		Centroid:   []float64{0.5, 0.5, 0.0},
		Status:     core.IssueOpen,
		CreatedAt:  base,
	}
	if err := s.SaveIssue(issue); err != nil {
		t.Fatalf("SaveIssue failed: %v", err)
	}

	got, err := s.GetIssue("i1")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got == nil {
		t.Fatal("issue not found")
	}
	if got.Title != issue.Title || got.Status != core.IssueOpen {
		t.Errorf("got %+v", got)
	}
	if len(got.ArticleIDs) != 3 {
		t.Errorf("ArticleIDs = %v", got.ArticleIDs)
	}
	if len(got.Centroid) != 3 || got.Centroid[0] != 0.5 {
		t.Errorf("Centroid = %v", got.Centroid)
	}
}

func TestSaveIssueReplacesMembership(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	for _, id := range []string{"a1", "a2", "a3"} {
		if err := s.SaveArticle(testArticle(id, now)); err != nil {
			t.Fatalf("SaveArticle failed: %v", err)
		}
	}

	issue := core.Issue{ID: "i1", ArticleIDs: []string{"a1", "a2"}, Status: core.IssueOpen, CreatedAt: now}
	if err := s.SaveIssue(issue); err != nil {
		t.Fatalf("SaveIssue failed: %v", err)
	}

	issue.ArticleIDs = []string{"a2", "a3"}
	if err := s.SaveIssue(issue); err != nil {
		t.Fatalf("SaveIssue failed: %v", err)
	}

	got, err := s.GetIssue("i1")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if len(got.ArticleIDs) != 2 || got.ArticleIDs[0] != "a2" || got.ArticleIDs[1] != "a3" {
		t.Errorf("ArticleIDs = %v, want [a2 a3]", got.ArticleIDs)
	}
}

func TestSaveViewReplacesSlot(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	if err := s.SaveIssue(core.Issue{ID: "i1", Status: core.IssueOpen, CreatedAt: now}); err != nil {
		t.Fatalf("SaveIssue failed: %v", err)
	}

	first := core.View{
		IssueID:     "i1",
		Perspective: core.PerspectiveLeft,
		Title:       "First take",
		Position:    "Position one.",
		Rationale:   "Rationale one.",
		Alternative: "Alternative one.",
	}
	if err := s.SaveView(first); err != nil {
		t.Fatalf("SaveView failed: %v", err)
	}

	second := first
	second.Title = "Second take"
	second.Position = "Position two."
	if err := s.SaveView(second); err != nil {
		t.Fatalf("SaveView failed: %v", err)
	}

	views, err := s.GetViews("i1")
	if err != nil {
		t.Fatalf("GetViews failed: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d views, want 1 (replacement, not append)", len(views))
	}
	got := views[core.PerspectiveLeft]
	if got.Title != "Second take" || got.Position != "Position two." {
		t.Errorf("got %+v", got)
	}
	if got.Rationale != "Rationale one." || got.Alternative != "Alternative one." {
		t.Errorf("layers not round-tripped: %+v", got)
	}
}

func TestGetViewsAllPerspectives(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveIssue(core.Issue{ID: "i1", Status: core.IssueOpen, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("SaveIssue failed: %v", err)
	}

	for _, perspective := range core.Perspectives {
		view := core.View{
			IssueID:     "i1",
			Perspective: perspective,
			Title:       string(perspective) + " title",
			Position:    "P", Rationale: "R", Alternative: "A",
		}
		if err := s.SaveView(view); err != nil {
			t.Fatalf("SaveView(%s) failed: %v", perspective, err)
		}
	}

	views, err := s.GetViews("i1")
	if err != nil {
		t.Fatalf("GetViews failed: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("got %d views, want 3", len(views))
	}
	for _, perspective := range core.Perspectives {
		if views[perspective].Title != string(perspective)+" title" {
			t.Errorf("%s view = %+v", perspective, views[perspective])
		}
	}
}

func TestSaveViewUnknownIssue(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveView(core.View{IssueID: "ghost", Perspective: core.PerspectiveCenter, Position: "P", Rationale: "R", Alternative: "A"})
	if !errors.Is(err, core.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveIssue(core.Issue{ID: "i1", Status: core.IssueOpen, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("SaveIssue failed: %v", err)
	}

	pre, err := s.GetMetadata("i1")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if pre != nil {
		t.Errorf("expected nil metadata before analysis, got %+v", pre)
	}

	meta := core.IssueMetadata{
		IssueType:     core.IssueEconomic,
		Stakeholders:  []string{"government", "corporate"},
		ValueConflict: "market vs government",
		Complexity:    6.5,
		Urgency:       3,
		Confidence:    0.8,
	}
	if err := s.SaveMetadata("i1", meta); err != nil {
		t.Fatalf("SaveMetadata failed: %v", err)
	}

	got, err := s.GetMetadata("i1")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if got == nil || got.IssueType != core.IssueEconomic || got.Complexity != 6.5 {
		t.Errorf("got %+v", got)
	}
}

func TestUpdateIssueStatus(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveIssue(core.Issue{ID: "i1", Status: core.IssueOpen, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("SaveIssue failed: %v", err)
	}

	if err := s.UpdateIssueStatus("i1", core.IssueStale); err != nil {
		t.Fatalf("UpdateIssueStatus failed: %v", err)
	}
	got, err := s.GetIssue("i1")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got.Status != core.IssueStale {
		t.Errorf("Status = %q, want stale", got.Status)
	}

	if err := s.UpdateIssueStatus("ghost", core.IssueStale); !errors.Is(err, core.ErrPersistence) {
		t.Errorf("expected ErrPersistence for unknown issue, got %v", err)
	}
}

func TestListIssuesByStatus(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []core.IssueStatus{core.IssueOpen, core.IssueStale, core.IssueOpen} {
		issue := core.Issue{
			ID:        string(rune('a' + i)),
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.SaveIssue(issue); err != nil {
			t.Fatalf("SaveIssue failed: %v", err)
		}
	}

	open, err := s.ListIssues(core.IssueOpen)
	if err != nil {
		t.Fatalf("ListIssues failed: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("got %d open issues, want 2", len(open))
	}
	if open[0].ID != "a" || open[1].ID != "c" {
		t.Errorf("order = %s, %s, want a, c", open[0].ID, open[1].ID)
	}

	all, err := s.ListIssues("")
	if err != nil {
		t.Fatalf("ListIssues failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d issues, want 3", len(all))
	}
}

func TestUnassignedArticles(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	for _, id := range []string{"a1", "a2", "a3"} {
		if err := s.SaveArticle(testArticle(id, now)); err != nil {
			t.Fatalf("SaveArticle failed: %v", err)
		}
	}
	if err := s.SaveIssue(core.Issue{ID: "i1", ArticleIDs: []string{"a1"}, Status: core.IssueOpen, CreatedAt: now}); err != nil {
		t.Fatalf("SaveIssue failed: %v", err)
	}

	unassigned, err := s.UnassignedArticles()
	if err != nil {
		t.Fatalf("UnassignedArticles failed: %v", err)
	}
	if len(unassigned) != 2 {
		t.Fatalf("got %d unassigned, want 2", len(unassigned))
	}
	for _, article := range unassigned {
		if article.ID == "a1" {
			t.Errorf("a1 is assigned but listed as unassigned")
		}
	}
}

func TestGetArticlesForIssue(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a1", "a2", "a3"} {
		if err := s.SaveArticle(testArticle(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveArticle failed: %v", err)
		}
	}
	if err := s.SaveIssue(core.Issue{ID: "i1", ArticleIDs: []string{"a1", "a3"}, Status: core.IssueOpen, CreatedAt: base}); err != nil {
		t.Fatalf("SaveIssue failed: %v", err)
	}

	articles, err := s.GetArticlesForIssue("i1")
	if err != nil {
		t.Fatalf("GetArticlesForIssue failed: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(articles))
	}
	// Newest first.
	if articles[0].ID != "a3" || articles[1].ID != "a1" {
		t.Errorf("order = %s, %s, want a3, a1", articles[0].ID, articles[1].ID)
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	if err := s.SaveArticle(testArticle("a1", now)); err != nil {
		t.Fatalf("SaveArticle failed: %v", err)
	}
	if err := s.SaveIssue(core.Issue{ID: "i1", Status: core.IssueOpen, CreatedAt: now}); err != nil {
		t.Fatalf("SaveIssue failed: %v", err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.ArticleCount != 1 || stats.EmbeddingCount != 1 || stats.IssueCount != 1 || stats.OpenIssueCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
