package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/filter"
	"github.com/docsift/docsift/internal/query"
	"github.com/docsift/docsift/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedDocs(t *testing.T, store *SQLiteStore) {
	t.Helper()
	err := store.UpsertDocuments(context.Background(), []*types.Document{
		{
			ID:       "d1",
			Content:  "the quick brown fox jumps over the lazy dog",
			Metadata: map[string]any{"lang": "en", "views": float64(10)},
		},
		{
			ID:        "d2",
			Content:   "a quick silver fox",
			Metadata:  map[string]any{"lang": "en", "views": float64(3)},
			Embedding: []float32{0.1, 0.2, 0.3},
		},
		{
			ID:      "d3",
			Content: "nothing in common here",
		},
	})
	require.NoError(t, err)
}

func compileQuery(t *testing.T, raw string) string {
	t.Helper()
	node, err := query.Parse(raw)
	require.NoError(t, err)
	native, err := query.SQLiteCompiler{}.Compile(node)
	require.NoError(t, err)
	return native
}

func TestSQLiteStoreUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	seedDocs(t, store)

	doc, err := store.GetDocument(context.Background(), "d2")
	require.NoError(t, err)
	assert.Equal(t, "a quick silver fox", doc.Content)
	assert.Equal(t, "en", doc.Metadata["lang"])
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, doc.Embedding)
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetDocument(context.Background(), "nope")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSQLiteStoreUpsertReplaces(t *testing.T) {
	store := newTestStore(t)
	seedDocs(t, store)

	err := store.UpsertDocuments(context.Background(), []*types.Document{
		{ID: "d1", Content: "replaced content entirely"},
	})
	require.NoError(t, err)

	doc, err := store.GetDocument(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "replaced content entirely", doc.Content)
	assert.Nil(t, doc.Metadata)

	// The FTS index follows the replacement.
	results, err := store.SearchText(context.Background(), compileQuery(t, "lazy"), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = store.SearchText(context.Background(), compileQuery(t, "replaced"), nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)
}

func TestSQLiteStoreSearchText(t *testing.T) {
	store := newTestStore(t)
	seedDocs(t, store)
	ctx := context.Background()

	results, err := store.SearchText(ctx, compileQuery(t, "quick fox"), nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	results, err = store.SearchText(ctx, compileQuery(t, "silver"), nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d2", results[0].ID)
	assert.Equal(t, "en", results[0].Metadata["lang"])

	results, err = store.SearchText(ctx, compileQuery(t, "quick and (silver or lazy)"), nil, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSQLiteStoreSearchTextWildcard(t *testing.T) {
	store := newTestStore(t)
	seedDocs(t, store)

	results, err := store.SearchText(context.Background(), compileQuery(t, "qui*"), nil, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSQLiteStoreSearchTextFilter(t *testing.T) {
	store := newTestStore(t)
	seedDocs(t, store)
	ctx := context.Background()

	pred := filter.New().Eq("lang", filter.String("en"))
	results, err := store.SearchText(ctx, compileQuery(t, "fox"), pred, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	pred = filter.New().Where("views", filter.OpGt, filter.Number(5))
	results, err = store.SearchText(ctx, compileQuery(t, "fox"), pred, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)

	// Unknown keys extract NULL and match no documents.
	pred = filter.New().Eq("missing", filter.String("x"))
	results, err = store.SearchText(ctx, compileQuery(t, "fox"), pred, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteStoreSearchTextLimit(t *testing.T) {
	store := newTestStore(t)
	seedDocs(t, store)

	results, err := store.SearchText(context.Background(), compileQuery(t, "quick"), nil, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSQLiteStoreRankHigherIsBetter(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertDocuments(context.Background(), []*types.Document{
		{ID: "dense", Content: "fox fox fox fox fox"},
		{ID: "sparse", Content: "one fox in a very long sentence about many other things entirely"},
	}))

	results, err := store.SearchText(context.Background(), compileQuery(t, "fox"), nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "dense", results[0].ID)
	assert.Greater(t, results[0].Rank, results[1].Rank)
}

func TestSQLiteStoreDelete(t *testing.T) {
	store := newTestStore(t)
	seedDocs(t, store)
	ctx := context.Background()

	require.NoError(t, store.DeleteDocuments(ctx, []string{"d2", "absent"}))

	_, err := store.GetDocument(ctx, "d2")
	assert.ErrorIs(t, err, types.ErrNotFound)

	results, err := store.SearchText(ctx, compileQuery(t, "silver"), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteStoreListDocuments(t *testing.T) {
	store := newTestStore(t)
	seedDocs(t, store)

	docs, err := store.ListDocuments(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "d1", docs[0].ID)
	assert.Empty(t, docs[0].Content)

	docs, err = store.ListDocuments(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Contains(t, docs[0].Content, "quick brown fox")
}

func TestSQLiteStorePrefixIsolation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	defaultStore, err := NewSQLiteStore(dbPath, "", nil)
	require.NoError(t, err)
	defer func() { _ = defaultStore.Close() }()

	scoped, err := NewSQLiteStore(dbPath, "docs", nil)
	require.NoError(t, err)
	defer func() { _ = scoped.Close() }()

	require.NoError(t, defaultStore.UpsertDocuments(ctx, []*types.Document{
		{ID: "shared-id", Content: "visible by default"},
	}))
	require.NoError(t, scoped.UpsertDocuments(ctx, []*types.Document{
		{ID: "scoped-id", Content: "visible under docs"},
	}))

	docs, err := defaultStore.ListDocuments(ctx, false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "shared-id", docs[0].ID)

	docs, err = scoped.ListDocuments(ctx, false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "scoped-id", docs[0].ID)

	results, err := scoped.SearchText(ctx, compileQuery(t, "visible"), nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "scoped-id", results[0].ID)
}

func TestSQLiteStoreSelectIDs(t *testing.T) {
	store := newTestStore(t)
	seedDocs(t, store)
	ctx := context.Background()

	ids, err := store.SelectIDs(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d3"}, ids)

	pred := filter.New().Eq("lang", filter.String("en"))
	ids, err = store.SelectIDs(ctx, pred)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, ids)
}

func TestSQLiteStoreLoadEmbeddings(t *testing.T) {
	store := newTestStore(t)
	seedDocs(t, store)

	vecs, err := store.LoadEmbeddings(context.Background(), []string{"d1", "d2", "d3"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vecs["d2"])
}

func TestSQLiteStoreLoadMetadata(t *testing.T) {
	store := newTestStore(t)
	seedDocs(t, store)

	meta, err := store.LoadMetadata(context.Background(), []string{"d1", "d3"})
	require.NoError(t, err)
	require.Len(t, meta, 2)
	assert.Equal(t, "en", meta["d1"]["lang"])
	assert.Nil(t, meta["d3"])
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 0, 3.125}
	out := deserializeVector(serializeVector(in))
	assert.Equal(t, in, out)
}
