package clustering

import (
	"errors"

	"issuelens/internal/core"
	"issuelens/internal/llm"
)

// Assignment is the outcome of matching one article against open issues.
type Assignment struct {
	IssueID    string  // Empty when the article did not match any issue
	Similarity float64 // Cosine similarity against the matched centroid
	Matched    bool
}

// Assigner performs incremental centroid assignment: a single new
// article is matched against the centroids of open issues without
// re-running batch clustering.
type Assigner struct {
	threshold float64
}

// NewAssigner creates an assigner with the given similarity threshold.
func NewAssigner(threshold float64) *Assigner {
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.7
	}
	return &Assigner{threshold: threshold}
}

// Assign matches the article against the open issues and returns the
// best match at or above the threshold. Ties on similarity are broken
// by issue order, so results are stable for a given input ordering.
// Issues without centroids and non-open issues are skipped.
func (a *Assigner) Assign(article core.Article, issues []core.Issue) (Assignment, error) {
	if len(article.Embedding) == 0 {
		return Assignment{}, core.WrapClustering(article.ID, errors.New("no embedding"))
	}

	best := Assignment{Similarity: -1}
	for _, issue := range issues {
		if issue.Status != core.IssueOpen || len(issue.Centroid) == 0 {
			continue
		}
		sim := llm.CosineSimilarity(article.Embedding, issue.Centroid)
		if sim > best.Similarity {
			best = Assignment{IssueID: issue.ID, Similarity: sim}
		}
	}

	if best.Similarity >= a.threshold {
		best.Matched = true
		return best, nil
	}

	return Assignment{Similarity: best.Similarity}, nil
}

// UpdateCentroid folds a newly assigned article's embedding into an
// issue centroid as a running mean. memberCount is the number of
// articles already in the issue, before this one.
func UpdateCentroid(centroid, embedding []float64, memberCount int) []float64 {
	if len(centroid) == 0 {
		out := make([]float64, len(embedding))
		copy(out, embedding)
		return out
	}
	if len(embedding) != len(centroid) || memberCount < 1 {
		return centroid
	}

	n := float64(memberCount)
	updated := make([]float64, len(centroid))
	for i := range centroid {
		updated[i] = (centroid[i]*n + embedding[i]) / (n + 1)
	}
	return updated
}
