package scorer

import (
	"context"
	"fmt"
)

// NativeSearcher is implemented by stores whose engine computes vector
// similarity itself and returns pre-sorted, pre-limited results.
type NativeSearcher interface {
	SearchVectorNative(ctx context.Context, req Request) ([]Match, error)
}

// Delegated hands scoring to the store's native similarity operator,
// passing filter, candidates, and limit through untouched.
type Delegated struct {
	store NativeSearcher
}

// NewDelegated creates the delegated scoring strategy.
func NewDelegated(store NativeSearcher) *Delegated {
	return &Delegated{store: store}
}

// Score executes the store-side similarity search. Ordering and
// truncation are the store's responsibility; the store's SQL orders by
// similarity descending with id ascending tie-break, matching the
// in-process strategy.
func (s *Delegated) Score(ctx context.Context, req Request) ([]Match, error) {
	matches, err := s.store.SearchVectorNative(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("native vector search: %w", err)
	}
	return matches, nil
}
