// Package scorer computes vector similarity between a query embedding
// and stored document embeddings.
//
// Two strategies implement the same contract. Delegated pushes the
// computation into the backing store's similarity operator and passes
// limit and filter through untouched; InProcess selects candidate ids
// (filter first, to bound how many embeddings are materialized), bulk
// loads them, and computes cosine similarity in Go. Backends are chosen
// by capability, so the result composer never cares which strategy is
// active.
package scorer

import (
	"context"

	"github.com/docsift/docsift/internal/filter"
)

// Match is a scored candidate: similarity is cosine similarity in
// [-1, 1], higher is more similar.
type Match struct {
	ID         string
	Similarity float64
}

// Request describes one scoring pass.
type Request struct {
	// Query is the query embedding.
	Query []float32
	// Filter restricts candidates by metadata before any embedding is
	// loaded or scored. Optional.
	Filter *filter.Predicate
	// Candidates restricts scoring to these document ids. Nil means all
	// documents (post-filter). Used by hybrid search to score only
	// lexical matches.
	Candidates []string
	// Limit truncates the result after sorting; 0 means no limit.
	Limit int
}

// Scorer returns candidates ordered by descending similarity, ties
// broken by ascending document id.
type Scorer interface {
	Score(ctx context.Context, req Request) ([]Match, error)
}
