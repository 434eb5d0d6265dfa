package core

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for the pipeline's error taxonomy. Wrap them
// with fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	// ErrClustering marks malformed or missing embeddings. Fatal for
	// the affected articles only; the batch continues without them.
	ErrClustering = errors.New("clustering error")

	// ErrAnalysis marks insufficient article text for analysis. The
	// issue proceeds with uncategorized metadata rather than aborting.
	ErrAnalysis = errors.New("analysis error")

	// ErrGeneration marks an external generation failure or output
	// that cannot be parsed into the three-layer view shape.
	ErrGeneration = errors.New("generation error")

	// ErrPersistence marks a storage failure. Surfaced to the
	// orchestrator's caller; other in-flight issues are unaffected.
	ErrPersistence = errors.New("persistence error")
)

// ErrorKind reports which taxonomy kind err belongs to, for run
// summaries. Unknown errors report as "internal".
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrClustering):
		return "clustering"
	case errors.Is(err, ErrAnalysis):
		return "analysis"
	case errors.Is(err, ErrGeneration):
		return "generation"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}

// WrapClustering annotates err as a clustering error for article id.
func WrapClustering(articleID string, err error) error {
	return fmt.Errorf("%w: article %s: %v", ErrClustering, articleID, err)
}
