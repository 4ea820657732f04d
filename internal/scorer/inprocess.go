package scorer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/docsift/docsift/internal/filter"
	"github.com/docsift/docsift/pkg/types"
)

// embeddingBatchSize keeps each embedding read under SQLite's default
// limit of 999 bound parameters per statement.
const embeddingBatchSize = 500

// embeddingLoadWorkers bounds concurrent embedding reads per request.
const embeddingLoadWorkers = 4

// EmbeddingSource is the slice of the backing store the in-process
// strategy needs: candidate selection and bulk embedding reads.
type EmbeddingSource interface {
	// SelectIDs returns the ids of documents matching the predicate
	// (all documents when the predicate is empty).
	SelectIDs(ctx context.Context, pred *filter.Predicate) ([]string, error)
	// LoadEmbeddings bulk-fetches embeddings for the given ids.
	// Documents without an embedding are absent from the result.
	LoadEmbeddings(ctx context.Context, ids []string) (map[string][]float32, error)
}

// InProcess computes cosine similarity in Go over materialized vectors.
// Used when the backing store has no native similarity operator.
type InProcess struct {
	source EmbeddingSource
}

// NewInProcess creates the in-process scoring strategy.
func NewInProcess(source EmbeddingSource) *InProcess {
	return &InProcess{source: source}
}

// Score selects candidates, loads their embeddings, and ranks them by
// cosine similarity. Filtering happens before embeddings are loaded so
// memory is bounded by the post-filter candidate set. A stored
// embedding with a different length than the query fails with
// *types.DimensionMismatchError naming the document.
func (s *InProcess) Score(ctx context.Context, req Request) ([]Match, error) {
	ids := req.Candidates
	if ids == nil {
		selected, err := s.source.SelectIDs(ctx, req.Filter)
		if err != nil {
			return nil, fmt.Errorf("selecting candidates: %w", err)
		}
		ids = selected
	} else if !req.Filter.IsEmpty() {
		selected, err := s.source.SelectIDs(ctx, req.Filter)
		if err != nil {
			return nil, fmt.Errorf("selecting candidates: %w", err)
		}
		keep := make(map[string]struct{}, len(selected))
		for _, id := range selected {
			keep[id] = struct{}{}
		}
		filtered := make([]string, 0, len(ids))
		for _, id := range ids {
			if _, ok := keep[id]; ok {
				filtered = append(filtered, id)
			}
		}
		ids = filtered
	}
	if len(ids) == 0 {
		return []Match{}, nil
	}

	embeddings, err := s.loadEmbeddings(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading embeddings: %w", err)
	}

	matches := make([]Match, 0, len(embeddings))
	for _, id := range ids {
		vec, ok := embeddings[id]
		if !ok {
			continue // document has no embedding
		}
		if len(vec) != len(req.Query) {
			return nil, &types.DimensionMismatchError{ID: id, Want: len(req.Query), Got: len(vec)}
		}
		matches = append(matches, Match{ID: id, Similarity: Cosine(req.Query, vec)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})

	if req.Limit > 0 && len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	return matches, nil
}

// loadEmbeddings fetches embeddings in fixed-size batches so large
// candidate sets stay within the store's bind-parameter limit.
func (s *InProcess) loadEmbeddings(ctx context.Context, ids []string) (map[string][]float32, error) {
	if len(ids) <= embeddingBatchSize {
		return s.source.LoadEmbeddings(ctx, ids)
	}

	var mu sync.Mutex
	merged := make(map[string][]float32, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embeddingLoadWorkers)
	for start := 0; start < len(ids); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		g.Go(func() error {
			got, err := s.source.LoadEmbeddings(ctx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			for id, vec := range got {
				merged[id] = vec
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}
