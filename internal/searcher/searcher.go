package searcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/filter"
	"github.com/docsift/docsift/internal/query"
	"github.com/docsift/docsift/internal/scorer"
	"github.com/docsift/docsift/internal/storage"
	"github.com/docsift/docsift/pkg/types"
)

// Request describes one search over a collection. Text, VectorSearch,
// and Filter combine freely; an empty request lists the whole scope.
type Request struct {
	// Text is the lexical query in the portable grammar, "" for none.
	Text string
	// Filter is an optional metadata predicate.
	Filter *filter.Predicate
	// Limit caps the result count after ordering; <= 0 means no cap.
	Limit int
	// Offset skips that many ordered results before the cap applies.
	Offset int
	// OrderBy names a metadata key to order by ascending; a leading
	// '-' flips to descending. "" orders by relevance.
	OrderBy string
	// VectorSearch enables similarity scoring with Embedding.
	VectorSearch bool
	// Embedding is the query vector; required when VectorSearch is set.
	Embedding []float32
}

// Searcher composes lexical search, metadata filtering, and vector
// scoring over one backing store into a single ranked result list.
type Searcher struct {
	store  storage.Store
	scorer scorer.Scorer
	cache  *query.Cache
	logger *zap.Logger
}

const compiledQueryCacheSize = 512

// New builds a Searcher for the store. The vector strategy follows the
// store: engines with native similarity search get the delegated
// scorer, everything else scores in process.
func New(store storage.Store, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	var sc scorer.Scorer
	if store.SupportsNativeVectorSearch() {
		sc = scorer.NewDelegated(store)
	} else {
		sc = scorer.NewInProcess(store)
	}
	return &Searcher{
		store:  store,
		scorer: sc,
		cache:  query.NewCache(compiledQueryCacheSize),
		logger: logger,
	}
}

type mode int

const (
	modeList mode = iota
	modeLexical
	modeVector
	modeHybrid
)

func (r Request) mode() mode {
	switch {
	case r.Text != "" && r.VectorSearch:
		return modeHybrid
	case r.VectorSearch:
		return modeVector
	case r.Text != "":
		return modeLexical
	default:
		return modeList
	}
}

// Search runs the request and returns ordered, truncated results.
// Parse and compile failures surface as typed errors; backend failures
// are wrapped in types.BackendExecutionError.
func (s *Searcher) Search(ctx context.Context, req Request) ([]types.Result, error) {
	start := time.Now()

	if req.VectorSearch && len(req.Embedding) == 0 {
		return nil, fmt.Errorf("vector search requires a query embedding")
	}

	var (
		results []types.Result
		err     error
	)
	switch req.mode() {
	case modeLexical:
		results, err = s.lexical(ctx, req)
	case modeVector:
		results, err = s.vector(ctx, req)
	case modeHybrid:
		results, err = s.hybrid(ctx, req)
	default:
		results, err = s.list(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	results, err = s.finish(ctx, req, results)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search complete",
		zap.String("dialect", s.store.Dialect().String()),
		zap.String("text", req.Text),
		zap.Bool("vector", req.VectorSearch),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)))

	return results, nil
}

// pushLimit reports whether the backend may truncate: only when the
// request keeps relevance ordering and has no offset, since any
// reordering or skipping must see the full candidate set.
func (r Request) pushLimit() int {
	if r.OrderBy == "" && r.Offset == 0 {
		return r.Limit
	}
	return 0
}

func (s *Searcher) lexical(ctx context.Context, req Request) ([]types.Result, error) {
	native, err := s.cache.Compile(req.Text, s.store.Compiler())
	if err != nil {
		return nil, err
	}

	rows, err := s.store.SearchText(ctx, native, req.Filter, req.pushLimit())
	if err != nil {
		return nil, &types.BackendExecutionError{Dialect: s.store.Dialect(), Op: "search_text", Err: err}
	}

	results := make([]types.Result, len(rows))
	for i, row := range rows {
		results[i] = types.Result{ID: row.ID, Score: row.Rank, Metadata: row.Metadata}
	}
	return results, nil
}

func (s *Searcher) vector(ctx context.Context, req Request) ([]types.Result, error) {
	matches, err := s.scorer.Score(ctx, scorer.Request{
		Query:  req.Embedding,
		Filter: req.Filter,
		Limit:  req.pushLimit(),
	})
	if err != nil {
		return nil, wrapScore(s.store.Dialect(), err)
	}

	results := make([]types.Result, len(matches))
	for i, m := range matches {
		results[i] = types.Result{ID: m.ID, Score: m.Similarity}
	}
	return results, nil
}

// hybrid treats the lexical match set as a hard constraint and ranks
// the survivors by vector similarity. Only lexical matches reach the
// scorer, so embeddings outside the candidate set are neither loaded
// nor validated; lexically matched documents with no stored embedding
// drop out, since they have no similarity to rank by.
func (s *Searcher) hybrid(ctx context.Context, req Request) ([]types.Result, error) {
	native, err := s.cache.Compile(req.Text, s.store.Compiler())
	if err != nil {
		return nil, err
	}
	textRows, err := s.store.SearchText(ctx, native, req.Filter, 0)
	if err != nil {
		return nil, &types.BackendExecutionError{Dialect: s.store.Dialect(), Op: "search_text", Err: err}
	}
	if len(textRows) == 0 {
		return []types.Result{}, nil
	}

	candidates := make([]string, len(textRows))
	for i, row := range textRows {
		candidates[i] = row.ID
	}
	matches, err := s.scorer.Score(ctx, scorer.Request{
		Query:      req.Embedding,
		Candidates: candidates,
	})
	if err != nil {
		return nil, wrapScore(s.store.Dialect(), err)
	}

	similarity := make(map[string]float64, len(matches))
	for _, m := range matches {
		similarity[m.ID] = m.Similarity
	}

	results := make([]types.Result, 0, len(textRows))
	for _, row := range textRows {
		sim, ok := similarity[row.ID]
		if !ok {
			continue
		}
		results = append(results, types.Result{ID: row.ID, Score: sim, Metadata: row.Metadata})
	}
	return results, nil
}

func (s *Searcher) list(ctx context.Context, req Request) ([]types.Result, error) {
	ids, err := s.store.SelectIDs(ctx, req.Filter)
	if err != nil {
		return nil, &types.BackendExecutionError{Dialect: s.store.Dialect(), Op: "select_ids", Err: err}
	}
	results := make([]types.Result, len(ids))
	for i, id := range ids {
		results[i] = types.Result{ID: id}
	}
	return results, nil
}

// finish applies ordering, pagination, and metadata hydration. Results
// are fully ordered before any truncation.
func (s *Searcher) finish(ctx context.Context, req Request, results []types.Result) ([]types.Result, error) {
	// Ordering by a metadata key needs metadata up front; otherwise
	// hydration waits until after truncation to touch fewer rows.
	if req.OrderBy != "" {
		if err := s.hydrate(ctx, results); err != nil {
			return nil, err
		}
	}

	orderResults(results, req.OrderBy)

	if req.Offset > 0 {
		if req.Offset >= len(results) {
			results = results[:0]
		} else {
			results = results[req.Offset:]
		}
	}
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}

	if req.OrderBy == "" {
		if err := s.hydrate(ctx, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// hydrate fills metadata for results that lack it, in one bulk fetch.
func (s *Searcher) hydrate(ctx context.Context, results []types.Result) error {
	var missing []string
	for _, r := range results {
		if r.Metadata == nil {
			missing = append(missing, r.ID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	meta, err := s.store.LoadMetadata(ctx, missing)
	if err != nil {
		return &types.BackendExecutionError{Dialect: s.store.Dialect(), Op: "load_metadata", Err: err}
	}
	for i := range results {
		if results[i].Metadata == nil {
			results[i].Metadata = meta[results[i].ID]
		}
	}
	return nil
}

// wrapScore wraps scoring failures except the typed ones callers need
// to inspect directly.
func wrapScore(dialect types.Dialect, err error) error {
	var dim *types.DimensionMismatchError
	if errors.As(err, &dim) {
		return err
	}
	return &types.BackendExecutionError{Dialect: dialect, Op: "vector_score", Err: err}
}
