package searcher

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/filter"
	"github.com/docsift/docsift/internal/query"
	"github.com/docsift/docsift/internal/scorer"
	"github.com/docsift/docsift/internal/storage"
	"github.com/docsift/docsift/pkg/types"
)

// fakeStore implements storage.Store in memory. SearchText returns the
// canned rows and records its arguments; the embedding and metadata
// methods serve from docs.
type fakeStore struct {
	docs     map[string]*types.Document
	textRows []storage.TextResult
	textErr  error

	gotQuery        string
	gotLimit        int
	gotEmbeddingIDs []string
}

func (f *fakeStore) Dialect() types.Dialect           { return types.DialectSQLite }
func (f *fakeStore) Compiler() query.Compiler         { return query.SQLiteCompiler{} }
func (f *fakeStore) SupportsNativeVectorSearch() bool { return false }

func (f *fakeStore) UpsertDocuments(context.Context, []*types.Document) error { return nil }
func (f *fakeStore) DeleteDocuments(context.Context, []string) error          { return nil }

func (f *fakeStore) GetDocument(_ context.Context, id string) (*types.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) ListDocuments(context.Context, bool) ([]*types.Document, error) {
	return nil, nil
}

func (f *fakeStore) SearchText(_ context.Context, nativeQuery string, _ *filter.Predicate, limit int) ([]storage.TextResult, error) {
	f.gotQuery = nativeQuery
	f.gotLimit = limit
	if f.textErr != nil {
		return nil, f.textErr
	}
	return f.textRows, nil
}

func (f *fakeStore) SelectIDs(_ context.Context, pred *filter.Predicate) ([]string, error) {
	var ids []string
	for id, doc := range f.docs {
		if matchesEq(doc.Metadata, pred) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) LoadEmbeddings(_ context.Context, ids []string) (map[string][]float32, error) {
	f.gotEmbeddingIDs = append(f.gotEmbeddingIDs, ids...)
	out := map[string][]float32{}
	for _, id := range ids {
		if doc, ok := f.docs[id]; ok && doc.Embedding != nil {
			out[id] = doc.Embedding
		}
	}
	return out, nil
}

func (f *fakeStore) LoadMetadata(_ context.Context, ids []string) (map[string]map[string]any, error) {
	out := map[string]map[string]any{}
	for _, id := range ids {
		if doc, ok := f.docs[id]; ok {
			out[id] = doc.Metadata
		}
	}
	return out, nil
}

func (f *fakeStore) SearchVectorNative(context.Context, scorer.Request) ([]scorer.Match, error) {
	return nil, errors.New("not supported")
}

func (f *fakeStore) Close() error { return nil }

func matchesEq(meta map[string]any, pred *filter.Predicate) bool {
	if pred.IsEmpty() {
		return true
	}
	for _, c := range pred.Conditions() {
		if meta[c.Key] != c.Value.Native() {
			return false
		}
	}
	return true
}

func ids(results []types.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestSearchLexical(t *testing.T) {
	store := &fakeStore{
		textRows: []storage.TextResult{
			{ID: "d1", Rank: 2.5, Metadata: map[string]any{"lang": "en"}},
			{ID: "d2", Rank: 1.0},
		},
		docs: map[string]*types.Document{},
	}
	s := New(store, nil)

	results, err := s.Search(context.Background(), Request{Text: "quick fox", Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, "(quick AND fox)", store.gotQuery)
	assert.Equal(t, 10, store.gotLimit)
	require.Len(t, results, 2)
	assert.Equal(t, "d1", results[0].ID)
	assert.Equal(t, 2.5, results[0].Score)
	assert.Equal(t, "en", results[0].Metadata["lang"])
}

func TestSearchLexicalSyntaxErrorPassesThrough(t *testing.T) {
	s := New(&fakeStore{docs: map[string]*types.Document{}}, nil)

	_, err := s.Search(context.Background(), Request{Text: "(unbalanced"})
	var syntaxErr *types.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)
	var backendErr *types.BackendExecutionError
	assert.False(t, errors.As(err, &backendErr))
}

func TestSearchLexicalBackendErrorWrapped(t *testing.T) {
	cause := errors.New("disk exploded")
	s := New(&fakeStore{textErr: cause, docs: map[string]*types.Document{}}, nil)

	_, err := s.Search(context.Background(), Request{Text: "fox"})
	var backendErr *types.BackendExecutionError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "search_text", backendErr.Op)
	assert.ErrorIs(t, err, cause)
}

func TestSearchVectorOnly(t *testing.T) {
	store := &fakeStore{docs: map[string]*types.Document{
		"a": {ID: "a", Embedding: []float32{1, 0}, Metadata: map[string]any{"k": "va"}},
		"b": {ID: "b", Embedding: []float32{0, 1}, Metadata: map[string]any{"k": "vb"}},
	}}
	s := New(store, nil)

	results, err := s.Search(context.Background(), Request{
		VectorSearch: true,
		Embedding:    []float32{1, 0},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "b", results[1].ID)
	assert.InDelta(t, 0.0, results[1].Score, 1e-9)
	assert.Equal(t, "va", results[0].Metadata["k"])
}

func TestSearchVectorRequiresEmbedding(t *testing.T) {
	s := New(&fakeStore{docs: map[string]*types.Document{}}, nil)

	_, err := s.Search(context.Background(), Request{VectorSearch: true})
	assert.Error(t, err)
}

func TestSearchHybrid(t *testing.T) {
	store := &fakeStore{
		docs: map[string]*types.Document{
			"a": {ID: "a", Embedding: []float32{0, 1}},
			"b": {ID: "b", Embedding: []float32{1, 0}},
			"c": {ID: "c"}, // no embedding
			"d": {ID: "d", Embedding: []float32{1, 1}},
		},
		textRows: []storage.TextResult{
			{ID: "a", Rank: 3},
			{ID: "b", Rank: 2},
			{ID: "c", Rank: 1},
		},
	}
	s := New(store, nil)

	results, err := s.Search(context.Background(), Request{
		Text:         "fox",
		VectorSearch: true,
		Embedding:    []float32{1, 0},
	})
	require.NoError(t, err)

	// The lexical set is a hard constraint: d never appears even with
	// a perfect similarity, and c drops for lack of an embedding.
	require.Equal(t, []string{"b", "a"}, ids(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.0, results[1].Score, 1e-9)

	// Hybrid results are always a subset of the lexical match set.
	lexical := map[string]bool{"a": true, "b": true, "c": true}
	for _, r := range results {
		assert.True(t, lexical[r.ID])
	}
}

func TestSearchHybridScoresOnlyLexicalMatches(t *testing.T) {
	// d2 lexically misses and carries an embedding of the wrong
	// dimension. It must never reach the scorer, so the request
	// succeeds instead of failing with a dimension mismatch.
	store := &fakeStore{
		docs: map[string]*types.Document{
			"d1": {ID: "d1", Embedding: []float32{1, 0}},
			"d2": {ID: "d2", Embedding: []float32{1, 0, 0}},
		},
		textRows: []storage.TextResult{
			{ID: "d1", Rank: 1},
		},
	}
	s := New(store, nil)

	results, err := s.Search(context.Background(), Request{
		Text:         "quick",
		VectorSearch: true,
		Embedding:    []float32{1, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids(results))
	assert.NotContains(t, store.gotEmbeddingIDs, "d2")
}

func TestSearchListMode(t *testing.T) {
	store := &fakeStore{docs: map[string]*types.Document{
		"x": {ID: "x", Metadata: map[string]any{"lang": "en"}},
		"y": {ID: "y", Metadata: map[string]any{"lang": "de"}},
		"z": {ID: "z", Metadata: map[string]any{"lang": "en"}},
	}}
	s := New(store, nil)

	results, err := s.Search(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, ids(results))

	results, err = s.Search(context.Background(), Request{
		Filter: filter.New().Eq("lang", filter.String("en")),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "z"}, ids(results))
}

func TestSearchOrderByMetadata(t *testing.T) {
	store := &fakeStore{
		docs: map[string]*types.Document{
			"a": {ID: "a", Metadata: map[string]any{"views": float64(5)}},
			"b": {ID: "b", Metadata: map[string]any{"views": float64(1)}},
			"c": {ID: "c", Metadata: map[string]any{}}, // missing key
		},
		textRows: []storage.TextResult{
			{ID: "a", Rank: 1, Metadata: map[string]any{"views": float64(5)}},
			{ID: "b", Rank: 3, Metadata: map[string]any{"views": float64(1)}},
			{ID: "c", Rank: 2, Metadata: map[string]any{}},
		},
	}
	s := New(store, nil)
	ctx := context.Background()

	results, err := s.Search(ctx, Request{Text: "fox", OrderBy: "views"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, ids(results))

	// Missing keys sort as if largest: last ascending, first descending.
	results, err = s.Search(ctx, Request{Text: "fox", OrderBy: "-views"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(results))
}

func TestSearchOrderByDisablesLimitPushdown(t *testing.T) {
	store := &fakeStore{
		docs: map[string]*types.Document{},
		textRows: []storage.TextResult{
			{ID: "a", Rank: 1, Metadata: map[string]any{"views": float64(5)}},
			{ID: "b", Rank: 3, Metadata: map[string]any{"views": float64(1)}},
		},
	}
	s := New(store, nil)

	results, err := s.Search(context.Background(), Request{Text: "fox", OrderBy: "views", Limit: 1})
	require.NoError(t, err)

	// The backend must see the whole match set; truncation happens
	// only after ordering.
	assert.Equal(t, 0, store.gotLimit)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestSearchOffsetAndLimit(t *testing.T) {
	store := &fakeStore{
		docs: map[string]*types.Document{},
		textRows: []storage.TextResult{
			{ID: "a", Rank: 4},
			{ID: "b", Rank: 3},
			{ID: "c", Rank: 2},
			{ID: "d", Rank: 1},
		},
	}
	s := New(store, nil)
	ctx := context.Background()

	results, err := s.Search(ctx, Request{Text: "fox", Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(results))

	results, err = s.Search(ctx, Request{Text: "fox", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRelevanceTieBreakByID(t *testing.T) {
	store := &fakeStore{
		docs: map[string]*types.Document{},
		textRows: []storage.TextResult{
			{ID: "zz", Rank: 1},
			{ID: "aa", Rank: 1},
			{ID: "mm", Rank: 2},
		},
	}
	s := New(store, nil)

	results, err := s.Search(context.Background(), Request{Text: "fox"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mm", "aa", "zz"}, ids(results))
}

func TestOrderResultsStable(t *testing.T) {
	results := []types.Result{
		{ID: "b", Score: 1, Metadata: map[string]any{"k": "same"}},
		{ID: "a", Score: 1, Metadata: map[string]any{"k": "same"}},
	}
	orderResults(results, "k")
	// Equal key, equal score: id ascending decides.
	assert.Equal(t, "a", results[0].ID)
}

func TestCompareValues(t *testing.T) {
	assert.Negative(t, compareValues(float64(1), float64(2)))
	assert.Positive(t, compareValues(float64(3), float64(2)))
	assert.Zero(t, compareValues(float64(2), float64(2)))
	assert.Negative(t, compareValues(false, true))
	assert.Negative(t, compareValues("apple", "banana"))
}
