package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsift/docsift/internal/collection"
	"github.com/docsift/docsift/internal/embedder"
	"github.com/docsift/docsift/internal/searcher"
	"github.com/docsift/docsift/pkg/types"
)

// TestBackendParity runs the same corpus and queries against SQLite
// and PostgreSQL and compares the matched document sets. Ranks differ
// between bm25 and ts_rank, match sets must not.
func TestBackendParity(t *testing.T) {
	pg := setupPostgres(t, "")
	ctx := context.Background()

	lite, err := collection.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "parity.db"), collection.Options{
		Embedder: embedder.Hash{},
	})
	require.NoError(t, err)
	defer func() { _ = lite.Close() }()

	seedCorpus(t, pg)
	seedCorpus(t, lite)

	queries := []string{
		"fox",
		"quick fox",
		"quick and (silver or lazy)",
		"silver or databases",
		"qui*",
		"absent",
	}
	for _, q := range queries {
		pgResults, err := pg.Query(ctx, searcher.Request{Text: q})
		require.NoError(t, err, "postgres query %q", q)
		liteResults, err := lite.Query(ctx, searcher.Request{Text: q})
		require.NoError(t, err, "sqlite query %q", q)

		assert.ElementsMatch(t, resultIDs(pgResults), resultIDs(liteResults), "query %q", q)
	}
}

func resultIDs(results []types.Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}
