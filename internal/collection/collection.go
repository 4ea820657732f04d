// Package collection is the user-facing facade: a named scope of
// documents over one backing store, with search composed through the
// searcher package. The backend is chosen from the database URL, so
// callers switch between SQLite and PostgreSQL without code changes.
package collection

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/embedder"
	"github.com/docsift/docsift/internal/searcher"
	"github.com/docsift/docsift/internal/storage"
	"github.com/docsift/docsift/pkg/types"
)

// Options configures a collection.
type Options struct {
	// Prefix namespaces the collection's documents. Collections with
	// different prefixes over the same database never see each other.
	Prefix string
	// Embedder turns query text into vectors for vector search. It may
	// be nil when vector searches always carry a precomputed embedding.
	Embedder embedder.Embedder
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Collection is a prefix-scoped document set over one backing store.
type Collection struct {
	store    storage.Store
	searcher *searcher.Searcher
	embedder embedder.Embedder
	logger   *zap.Logger
}

// Open connects to the database named by dbURL and returns a
// collection over it. URLs of the form sqlite:///path (or a bare
// path, or "" for in-memory) open SQLite; postgres:// URLs open
// PostgreSQL.
func Open(ctx context.Context, dbURL string, opts Options) (*Collection, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := openStore(ctx, dbURL, opts.Prefix, logger)
	if err != nil {
		return nil, err
	}

	return &Collection{
		store:    store,
		searcher: searcher.New(store, logger),
		embedder: opts.Embedder,
		logger:   logger,
	}, nil
}

func openStore(ctx context.Context, dbURL, prefix string, logger *zap.Logger) (storage.Store, error) {
	switch {
	case dbURL == "":
		return storage.NewSQLiteStore(":memory:", prefix, logger)
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		return storage.NewPostgresStore(ctx, dbURL, prefix, logger)
	case strings.HasPrefix(dbURL, "sqlite://"):
		path := strings.TrimPrefix(dbURL, "sqlite://")
		path = strings.TrimPrefix(path, "/")
		if path == "" {
			path = ":memory:"
		} else if !strings.HasPrefix(path, ":") {
			path = "/" + path
		}
		return storage.NewSQLiteStore(path, prefix, logger)
	default:
		// Bare filesystem path.
		return storage.NewSQLiteStore(dbURL, prefix, logger)
	}
}

// Close releases the underlying store.
func (c *Collection) Close() error {
	return c.store.Close()
}

// Add upserts documents. Documents without an id get a generated UUID;
// existing ids have content, metadata, and embedding replaced together.
// The final ids are returned in input order.
func (c *Collection) Add(ctx context.Context, docs []*types.Document) ([]string, error) {
	ids := make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		ids[i] = doc.ID
	}
	if err := c.store.UpsertDocuments(ctx, docs); err != nil {
		return nil, err
	}
	c.logger.Debug("added documents", zap.Int("count", len(docs)))
	return ids, nil
}

// Update upserts documents that must already carry ids.
func (c *Collection) Update(ctx context.Context, docs []*types.Document) error {
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("update requires an id for every document, missing at index %d", i)
		}
	}
	return c.store.UpsertDocuments(ctx, docs)
}

// Delete removes documents by id. Missing ids are ignored.
func (c *Collection) Delete(ctx context.Context, ids ...string) error {
	return c.store.DeleteDocuments(ctx, ids)
}

// Get fetches one document, types.ErrNotFound if absent.
func (c *Collection) Get(ctx context.Context, id string) (*types.Document, error) {
	return c.store.GetDocument(ctx, id)
}

// All returns every document in the collection ordered by id.
// Content is omitted unless withContent is set.
func (c *Collection) All(ctx context.Context, withContent bool) ([]*types.Document, error) {
	return c.store.ListDocuments(ctx, withContent)
}

// Query runs a search. When vector search is requested without a
// precomputed embedding, the query text is embedded through the
// collection's embedder.
func (c *Collection) Query(ctx context.Context, req searcher.Request) ([]types.Result, error) {
	if req.VectorSearch && len(req.Embedding) == 0 {
		if req.Text == "" {
			return nil, fmt.Errorf("vector search needs query text or an embedding")
		}
		vec, err := embedder.EmbedOne(ctx, c.embedder, req.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		req.Embedding = vec
	}
	return c.searcher.Search(ctx, req)
}

// Dialect reports the backend the collection runs on.
func (c *Collection) Dialect() types.Dialect {
	return c.store.Dialect()
}
