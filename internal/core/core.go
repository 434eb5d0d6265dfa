package core

import (
	"fmt"
	"strings"
	"time"
)

// Article represents a cleaned news article ready for clustering.
// Articles are produced by the preprocessing collaborator and are
// immutable once created.
type Article struct {
	ID          string    `json:"id"`           // Unique identifier for the article
	Title       string    `json:"title"`        // Cleaned title text
	CleanedText string    `json:"cleaned_text"` // Cleaned body text
	PublishedAt time.Time `json:"published_at"` // Publication timestamp, normalized to UTC
	Outlet      string    `json:"outlet"`       // Source outlet name
	OutletBias  string    `json:"outlet_bias"`  // Known outlet leaning ("left", "center", "right"), empty if unknown
	Embedding   []float64 `json:"embedding"`    // Fixed-length vector from the embedding service
}

// IssueStatus tracks the lifecycle of an issue record.
type IssueStatus string

const (
	IssueOpen      IssueStatus = "open"
	IssueFinalized IssueStatus = "finalized"
	IssueStale     IssueStatus = "stale" // Superseded by re-clustering; never physically deleted
)

// Issue represents a cluster of articles judged to concern the same
// real-world topic. Created by the clustering engine and mutated only
// by incremental merges.
type Issue struct {
	ID         string      `json:"id"`          // Unique identifier for the issue
	Title      string      `json:"title"`       // Generated headline for the issue
	Subtitle   string      `json:"subtitle"`    // One-line description
	ArticleIDs []string    `json:"article_ids"` // Member article IDs (at most one non-noise issue per article)
	Centroid   []float64   `json:"centroid"`    // Running mean of member embeddings
	Status     IssueStatus `json:"status"`      // open or finalized
	CreatedAt  time.Time   `json:"created_at"`  // When the cluster was created
}

// IssueType is the fixed taxonomy used by the issue analyzer.
type IssueType string

const (
	IssueEconomic      IssueType = "economic"
	IssueEnvironmental IssueType = "environmental"
	IssueSecurity      IssueType = "security"
	IssueTechnological IssueType = "technological"
	IssueSocial        IssueType = "social"
	IssuePolitical     IssueType = "political"
	IssueUncategorized IssueType = "uncategorized"
)

// IssueMetadata holds the semantic characteristics derived from an
// issue's member articles. Recomputed whenever membership changes.
type IssueMetadata struct {
	IssueType     IssueType `json:"issue_type"`     // One of the fixed taxonomy
	Stakeholders  []string  `json:"stakeholders"`   // Stakeholder groups mentioned, strongest first
	ValueConflict string    `json:"value_conflict"` // Canonical tension label, e.g. "liberty vs equality"
	Complexity    float64   `json:"complexity"`     // 0-10, stakeholder count + text diversity
	Urgency       float64   `json:"urgency"`        // 0-10, recency + intensity language
	Confidence    float64   `json:"confidence"`     // 0-1 confidence in the classification
}

// Perspective is one of the three ideological framings generated per issue.
type Perspective string

const (
	PerspectiveLeft   Perspective = "left"
	PerspectiveCenter Perspective = "center"
	PerspectiveRight  Perspective = "right"
)

// Perspectives lists all three slots in generation order.
var Perspectives = []Perspective{PerspectiveLeft, PerspectiveCenter, PerspectiveRight}

// LayerDelimiter separates the three view layers in the flat text
// columns the persistence contract exposes. Consumers split on it.
const LayerDelimiter = "\n---\n"

// View is one perspective's structured take on an issue: a position
// statement, its rationale, and a note acknowledging the alternative
// perspective. Regenerated, never appended.
type View struct {
	IssueID     string      `json:"issue_id"`
	Perspective Perspective `json:"perspective"`
	Title       string      `json:"title"`       // Short headline for the view
	Position    string      `json:"position"`    // Core stance, 80-100 chars target
	Rationale   string      `json:"rationale"`   // Why that stance, looser length
	Alternative string      `json:"alternative"` // Acknowledgement of the opposing framing
	GeneratedAt time.Time   `json:"generated_at"`
}

// FlatContent serializes the three layers into the single text column
// the persistence contract stores, using LayerDelimiter.
func (v View) FlatContent() string {
	return v.Position + LayerDelimiter + v.Rationale + LayerDelimiter + v.Alternative
}

// ParseFlatContent splits a stored flat view column back into its three
// layers. Returns an error if the text does not hold exactly three.
func ParseFlatContent(s string) (position, rationale, alternative string, err error) {
	parts := strings.Split(s, LayerDelimiter)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("view content has %d layers, want 3", len(parts))
	}
	return parts[0], parts[1], parts[2], nil
}

// ViewState is the orchestrator's per-perspective state machine.
type ViewState string

const (
	StatePending    ViewState = "pending"
	StateAnalyzing  ViewState = "analyzing"
	StateGenerating ViewState = "generating"
	StateChecking   ViewState = "checking"
	StateAccepted   ViewState = "accepted"
	StateRetrying   ViewState = "retrying"
	StateFailed     ViewState = "failed"
)

// Criterion names one of the seven quality checks.
type Criterion string

const (
	CriterionBiasConsistency  Criterion = "bias_consistency"
	CriterionRelevance        Criterion = "relevance"
	CriterionNuance           Criterion = "nuance"
	CriterionStereotypeAvoid  Criterion = "stereotype_avoidance"
	CriterionConstructiveTone Criterion = "constructive_tone"
	CriterionClarity          Criterion = "clarity"
	CriterionLengthFit        Criterion = "length_fit"
)

// CriterionWeights are the fixed percentage weights of the seven
// criteria. They sum to 100, so a weighted sum of 0-100 sub-scores is
// itself 0-100.
var CriterionWeights = map[Criterion]float64{
	CriterionBiasConsistency:  25,
	CriterionRelevance:        20,
	CriterionNuance:           15,
	CriterionStereotypeAvoid:  15,
	CriterionConstructiveTone: 10,
	CriterionClarity:          10,
	CriterionLengthFit:        5,
}

// QualityScore is the quality checker's verdict on a generated view.
// A failed check is a normal control-flow outcome, not an error.
type QualityScore struct {
	SubScores map[Criterion]float64 `json:"sub_scores"` // Each 0-100
	Aggregate float64               `json:"aggregate"`  // Weighted sum, 0-100
	Passed    bool                  `json:"passed"`     // Aggregate >= configured threshold
	Grade     string                `json:"grade"`      // Letter grade for reports
	Hints     []string              `json:"hints"`      // Improvement hints, worst criterion first
}

// RunSummary aggregates the outcome of an orchestrator run.
type RunSummary struct {
	IssuesProcessed int               `json:"issues_processed"`
	ViewsAccepted   int               `json:"views_accepted"`
	ViewsRetried    int               `json:"views_retried"`
	ViewsFailed     int               `json:"views_failed"`
	FailedIssues    map[string]string `json:"failed_issues"` // issue id -> last error kind
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
}
