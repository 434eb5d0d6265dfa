// Package store is the SQLite persistence layer. Issues carry one
// title and one content column per perspective; accepted views replace
// the previous content for their slot rather than appending.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"issuelens/internal/core"
)

// Store wraps the SQLite database.
type Store struct {
	db      *sql.DB
	path    string
	builder sq.StatementBuilderType
}

// NewStore opens (creating if needed) the database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create data directory: %v", core.ErrPersistence, err)
	}
	return open(filepath.Join(dataDir, "issuelens.db"))
}

func open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", core.ErrPersistence, err)
	}

	store := &Store{
		db:      db,
		path:    dbPath,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initialize database: %v", core.ErrPersistence, err)
	}

	return store, nil
}

// initialize creates the necessary tables.
func (s *Store) initialize() error {
	articlesTable := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT,
		content TEXT,
		published_at DATETIME,
		outlet TEXT,
		outlet_bias TEXT
	);`

	embeddingsTable := `
	CREATE TABLE IF NOT EXISTS embeddings (
		article_id TEXT PRIMARY KEY,
		vector TEXT,
		FOREIGN KEY (article_id) REFERENCES articles (id)
	);`

	issuesTable := `
	CREATE TABLE IF NOT EXISTS issues (
		id TEXT PRIMARY KEY,
		title TEXT,
		subtitle TEXT,
		centroid TEXT,
		status TEXT,
		metadata TEXT,
		left_view_title TEXT,
		left_view_content TEXT,
		center_view_title TEXT,
		center_view_content TEXT,
		right_view_title TEXT,
		right_view_content TEXT,
		created_at DATETIME
	);`

	issueArticlesTable := `
	CREATE TABLE IF NOT EXISTS issue_articles (
		issue_id TEXT,
		article_id TEXT,
		PRIMARY KEY (issue_id, article_id),
		FOREIGN KEY (issue_id) REFERENCES issues (id),
		FOREIGN KEY (article_id) REFERENCES articles (id)
	);`

	tables := []string{articlesTable, embeddingsTable, issuesTable, issueArticlesTable}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveArticle upserts an article. The embedding is stored separately so
// re-fetching text does not discard an existing vector.
func (s *Store) SaveArticle(article core.Article) error {
	query := `
	INSERT OR REPLACE INTO articles
	(id, title, content, published_at, outlet, outlet_bias)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		article.ID,
		article.Title,
		article.CleanedText,
		article.PublishedAt.UTC(),
		article.Outlet,
		article.OutletBias,
	)
	if err != nil {
		return fmt.Errorf("%w: save article %s: %v", core.ErrPersistence, article.ID, err)
	}

	if len(article.Embedding) > 0 {
		return s.SaveEmbedding(article.ID, article.Embedding)
	}
	return nil
}

// SaveEmbedding upserts the vector for an article.
func (s *Store) SaveEmbedding(articleID string, vector []float64) error {
	encoded, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("%w: encode embedding: %v", core.ErrPersistence, err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO embeddings (article_id, vector) VALUES (?, ?)`,
		articleID, string(encoded),
	)
	if err != nil {
		return fmt.Errorf("%w: save embedding for %s: %v", core.ErrPersistence, articleID, err)
	}
	return nil
}

// GetArticle returns one article with its embedding, or nil if absent.
func (s *Store) GetArticle(id string) (*core.Article, error) {
	query, args, err := s.articleSelect().Where(sq.Eq{"a.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %v", core.ErrPersistence, err)
	}

	article, err := scanArticle(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get article %s: %v", core.ErrPersistence, id, err)
	}
	return article, nil
}

// ListArticles returns all articles, newest first.
func (s *Store) ListArticles() ([]core.Article, error) {
	query, args, err := s.articleSelect().OrderBy("a.published_at DESC", "a.id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %v", core.ErrPersistence, err)
	}
	return s.queryArticles(query, args...)
}

// GetArticlesForIssue returns the member articles of an issue, newest
// first.
func (s *Store) GetArticlesForIssue(issueID string) ([]core.Article, error) {
	query, args, err := s.articleSelect().
		Join("issue_articles ia ON ia.article_id = a.id").
		Where(sq.Eq{"ia.issue_id": issueID}).
		OrderBy("a.published_at DESC", "a.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %v", core.ErrPersistence, err)
	}
	return s.queryArticles(query, args...)
}

// UnassignedArticles returns articles that belong to no issue yet.
// These are the candidates for incremental assignment and the next
// clustering pass.
func (s *Store) UnassignedArticles() ([]core.Article, error) {
	query, args, err := s.articleSelect().
		Where("a.id NOT IN (SELECT article_id FROM issue_articles)").
		OrderBy("a.published_at DESC", "a.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %v", core.ErrPersistence, err)
	}
	return s.queryArticles(query, args...)
}

func (s *Store) articleSelect() sq.SelectBuilder {
	return s.builder.
		Select("a.id", "a.title", "a.content", "a.published_at", "a.outlet", "a.outlet_bias", "COALESCE(e.vector, '')").
		From("articles a").
		LeftJoin("embeddings e ON e.article_id = a.id")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(row rowScanner) (*core.Article, error) {
	var article core.Article
	var publishedAt time.Time
	var vector string

	err := row.Scan(
		&article.ID,
		&article.Title,
		&article.CleanedText,
		&publishedAt,
		&article.Outlet,
		&article.OutletBias,
		&vector,
	)
	if err != nil {
		return nil, err
	}

	article.PublishedAt = publishedAt
	if vector != "" {
		if err := json.Unmarshal([]byte(vector), &article.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
	}
	return &article, nil
}

func (s *Store) queryArticles(query string, args ...interface{}) ([]core.Article, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query articles: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan article: %v", core.ErrPersistence, err)
		}
		articles = append(articles, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate articles: %v", core.ErrPersistence, err)
	}
	return articles, nil
}

// SaveIssue upserts an issue record and replaces its article
// membership. View columns and metadata are preserved across upserts
// of the same issue.
func (s *Store) SaveIssue(issue core.Issue) error {
	centroid, err := json.Marshal(issue.Centroid)
	if err != nil {
		return fmt.Errorf("%w: encode centroid: %v", core.ErrPersistence, err)
	}

	query := `
	INSERT INTO issues (id, title, subtitle, centroid, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		subtitle = excluded.subtitle,
		centroid = excluded.centroid,
		status = excluded.status`

	_, err = s.db.Exec(query,
		issue.ID,
		issue.Title,
		issue.Subtitle,
		string(centroid),
		string(issue.Status),
		issue.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: save issue %s: %v", core.ErrPersistence, issue.ID, err)
	}

	return s.replaceIssueArticles(issue.ID, issue.ArticleIDs)
}

// replaceIssueArticles rewrites the membership rows for one issue in a
// transaction so a partial write never leaves mixed membership.
func (s *Store) replaceIssueArticles(issueID string, articleIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin membership update: %v", core.ErrPersistence, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM issue_articles WHERE issue_id = ?`, issueID); err != nil {
		return fmt.Errorf("%w: clear membership for %s: %v", core.ErrPersistence, issueID, err)
	}
	for _, articleID := range articleIDs {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO issue_articles (issue_id, article_id) VALUES (?, ?)`,
			issueID, articleID,
		)
		if err != nil {
			return fmt.Errorf("%w: link article %s to %s: %v", core.ErrPersistence, articleID, issueID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit membership update: %v", core.ErrPersistence, err)
	}
	return nil
}

// UpdateIssueStatus moves an issue through its lifecycle. Stale issues
// are kept, never deleted.
func (s *Store) UpdateIssueStatus(issueID string, status core.IssueStatus) error {
	result, err := s.db.Exec(`UPDATE issues SET status = ? WHERE id = ?`, string(status), issueID)
	if err != nil {
		return fmt.Errorf("%w: update status for %s: %v", core.ErrPersistence, issueID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: issue %s not found", core.ErrPersistence, issueID)
	}
	return nil
}

// SaveMetadata stores the analyzer's characteristics for an issue.
func (s *Store) SaveMetadata(issueID string, meta core.IssueMetadata) error {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: encode metadata: %v", core.ErrPersistence, err)
	}
	_, err = s.db.Exec(`UPDATE issues SET metadata = ? WHERE id = ?`, string(encoded), issueID)
	if err != nil {
		return fmt.Errorf("%w: save metadata for %s: %v", core.ErrPersistence, issueID, err)
	}
	return nil
}

// GetMetadata returns the stored characteristics, or nil when the
// issue has not been analyzed yet.
func (s *Store) GetMetadata(issueID string) (*core.IssueMetadata, error) {
	var encoded sql.NullString
	err := s.db.QueryRow(`SELECT metadata FROM issues WHERE id = ?`, issueID).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: issue %s not found", core.ErrPersistence, issueID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get metadata for %s: %v", core.ErrPersistence, issueID, err)
	}
	if !encoded.Valid || encoded.String == "" {
		return nil, nil
	}

	var meta core.IssueMetadata
	if err := json.Unmarshal([]byte(encoded.String), &meta); err != nil {
		return nil, fmt.Errorf("%w: decode metadata for %s: %v", core.ErrPersistence, issueID, err)
	}
	return &meta, nil
}

// viewColumns maps each perspective to its fixed column pair. Column
// names never come from input.
var viewColumns = map[core.Perspective][2]string{
	core.PerspectiveLeft:   {"left_view_title", "left_view_content"},
	core.PerspectiveCenter: {"center_view_title", "center_view_content"},
	core.PerspectiveRight:  {"right_view_title", "right_view_content"},
}

// SaveView writes an accepted view into its perspective slot,
// replacing whatever was there.
func (s *Store) SaveView(view core.View) error {
	columns, ok := viewColumns[view.Perspective]
	if !ok {
		return fmt.Errorf("%w: unknown perspective %q", core.ErrPersistence, view.Perspective)
	}

	query := fmt.Sprintf(`UPDATE issues SET %s = ?, %s = ? WHERE id = ?`, columns[0], columns[1])
	result, err := s.db.Exec(query, view.Title, view.FlatContent(), view.IssueID)
	if err != nil {
		return fmt.Errorf("%w: save %s view for %s: %v", core.ErrPersistence, view.Perspective, view.IssueID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: issue %s not found", core.ErrPersistence, view.IssueID)
	}
	return nil
}

// GetViews returns the stored views for an issue keyed by perspective.
// Perspectives with no accepted view are absent from the map.
func (s *Store) GetViews(issueID string) (map[core.Perspective]core.View, error) {
	query := `
	SELECT left_view_title, left_view_content,
	       center_view_title, center_view_content,
	       right_view_title, right_view_content
	FROM issues WHERE id = ?`

	var titles, contents [3]sql.NullString
	err := s.db.QueryRow(query, issueID).Scan(
		&titles[0], &contents[0],
		&titles[1], &contents[1],
		&titles[2], &contents[2],
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: issue %s not found", core.ErrPersistence, issueID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get views for %s: %v", core.ErrPersistence, issueID, err)
	}

	views := make(map[core.Perspective]core.View)
	for i, perspective := range core.Perspectives {
		if !contents[i].Valid || contents[i].String == "" {
			continue
		}
		position, rationale, alternative, err := core.ParseFlatContent(contents[i].String)
		if err != nil {
			return nil, fmt.Errorf("%w: stored %s view for %s: %v", core.ErrPersistence, perspective, issueID, err)
		}
		views[perspective] = core.View{
			IssueID:     issueID,
			Perspective: perspective,
			Title:       titles[i].String,
			Position:    position,
			Rationale:   rationale,
			Alternative: alternative,
		}
	}
	return views, nil
}

// GetIssue returns one issue, or nil if absent.
func (s *Store) GetIssue(id string) (*core.Issue, error) {
	query, args, err := s.issueSelect().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %v", core.ErrPersistence, err)
	}

	issue, err := s.scanIssue(s.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get issue %s: %v", core.ErrPersistence, id, err)
	}
	return issue, nil
}

// ListIssues returns issues filtered by status, oldest first. An empty
// status returns everything.
func (s *Store) ListIssues(status core.IssueStatus) ([]core.Issue, error) {
	builder := s.issueSelect().OrderBy("created_at ASC", "id ASC")
	if status != "" {
		builder = builder.Where(sq.Eq{"status": string(status)})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %v", core.ErrPersistence, err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query issues: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var issues []core.Issue
	for rows.Next() {
		issue, err := s.scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan issue: %v", core.ErrPersistence, err)
		}
		issues = append(issues, *issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate issues: %v", core.ErrPersistence, err)
	}
	return issues, nil
}

func (s *Store) issueSelect() sq.SelectBuilder {
	return s.builder.
		Select("id", "title", "subtitle", "centroid", "status", "created_at").
		From("issues")
}

func (s *Store) scanIssue(row rowScanner) (*core.Issue, error) {
	var issue core.Issue
	var centroid, status string
	var createdAt time.Time

	err := row.Scan(&issue.ID, &issue.Title, &issue.Subtitle, &centroid, &status, &createdAt)
	if err != nil {
		return nil, err
	}

	issue.Status = core.IssueStatus(status)
	issue.CreatedAt = createdAt
	if centroid != "" {
		if err := json.Unmarshal([]byte(centroid), &issue.Centroid); err != nil {
			return nil, fmt.Errorf("decode centroid: %w", err)
		}
	}

	rows, err := s.db.Query(`SELECT article_id FROM issue_articles WHERE issue_id = ? ORDER BY article_id`, issue.ID)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var articleID string
		if err := rows.Scan(&articleID); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		issue.ArticleIDs = append(issue.ArticleIDs, articleID)
	}
	return &issue, rows.Err()
}

// Stats summarizes the database contents for status reporting.
type Stats struct {
	ArticleCount   int
	EmbeddingCount int
	IssueCount     int
	OpenIssueCount int
	Size           int64
}

// GetStats returns row counts and the database file size.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}

	queries := map[string]*int{
		"SELECT COUNT(*) FROM articles":                   &stats.ArticleCount,
		"SELECT COUNT(*) FROM embeddings":                 &stats.EmbeddingCount,
		"SELECT COUNT(*) FROM issues":                     &stats.IssueCount,
		"SELECT COUNT(*) FROM issues WHERE status='open'": &stats.OpenIssueCount,
	}
	for query, target := range queries {
		if err := s.db.QueryRow(query).Scan(target); err != nil {
			return nil, fmt.Errorf("%w: count: %v", core.ErrPersistence, err)
		}
	}

	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.Size = fileInfo.Size()
	}

	return stats, nil
}
