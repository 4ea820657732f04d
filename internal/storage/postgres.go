package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/filter"
	"github.com/docsift/docsift/internal/query"
	"github.com/docsift/docsift/internal/scorer"
	"github.com/docsift/docsift/pkg/types"
)

// PostgresStore implements Store over PostgreSQL using tsvector
// full-text search. A generated tsvector column over the simple
// dictionary keeps the index in sync with content. Embeddings are
// stored as BYTEA blobs and scored in process; Postgres has no native
// similarity path here.
type PostgresStore struct {
	pool   *pgxpool.Pool
	prefix string
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	prefix TEXT,
	metadata JSONB,
	embedding BYTEA,
	dimension INTEGER,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(content, ''))) STORED
);

CREATE INDEX IF NOT EXISTS idx_documents_prefix ON documents (prefix);
CREATE INDEX IF NOT EXISTS idx_documents_tsv ON documents USING GIN (tsv);
CREATE INDEX IF NOT EXISTS idx_documents_metadata ON documents USING GIN (metadata);
`

// NewPostgresStore connects to Postgres with the given DSN, ensures the
// schema, and scopes the store to the given prefix.
func NewPostgresStore(ctx context.Context, dsn, prefix string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Debug("opened postgres store", zap.String("prefix", prefix))

	return &PostgresStore{pool: pool, prefix: prefix, logger: logger}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Dialect returns types.DialectPostgres.
func (s *PostgresStore) Dialect() types.Dialect { return types.DialectPostgres }

// Compiler returns the tsquery lexical compiler.
func (s *PostgresStore) Compiler() query.Compiler { return query.PostgresCompiler{} }

// SupportsNativeVectorSearch is always false for Postgres; similarity
// is computed in process.
func (s *PostgresStore) SupportsNativeVectorSearch() bool { return false }

// scope returns the prefix condition using the next placeholder number,
// plus its args and the updated placeholder counter.
func (s *PostgresStore) scope(next int) (string, []any, int) {
	if s.prefix == "" {
		return "d.prefix IS NULL", nil, next
	}
	return fmt.Sprintf("d.prefix = $%d", next), []any{s.prefix}, next + 1
}

// UpsertDocuments inserts or replaces documents in one transaction.
func (s *PostgresStore) UpsertDocuments(ctx context.Context, docs []*types.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
		INSERT INTO documents (id, content, prefix, metadata, embedding, dimension, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			prefix = EXCLUDED.prefix,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			dimension = EXCLUDED.dimension,
			updated_at = now()
	`
	for _, doc := range docs {
		var metadataJSON []byte
		if len(doc.Metadata) > 0 {
			if metadataJSON, err = json.Marshal(doc.Metadata); err != nil {
				return fmt.Errorf("failed to marshal metadata: %w", err)
			}
		}
		var blob []byte
		var dimension any
		if doc.Embedding != nil {
			blob = serializeVector(doc.Embedding)
			dimension = len(doc.Embedding)
		}
		if _, err := tx.Exec(ctx, upsert,
			doc.ID, doc.Content, s.prefixValue(), metadataJSON, blob, dimension); err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

func (s *PostgresStore) prefixValue() any {
	if s.prefix == "" {
		return nil
	}
	return s.prefix
}

// DeleteDocuments removes documents by id.
func (s *PostgresStore) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// GetDocument fetches a single document within the store's scope.
func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	scopeSQL, scopeArgs, _ := s.scope(2)
	sqlQuery := `
		SELECT d.id, d.content, d.metadata, d.embedding, d.created_at, d.updated_at
		FROM documents d
		WHERE d.id = $1 AND ` + scopeSQL
	args := append([]any{id}, scopeArgs...)

	var doc types.Document
	var metadata []byte
	var blob []byte
	err := s.pool.QueryRow(ctx, sqlQuery, args...).Scan(
		&doc.ID, &doc.Content, &metadata, &blob, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}

	if doc.Metadata, err = decodeJSONB(metadata); err != nil {
		return nil, err
	}
	if blob != nil {
		doc.Embedding = deserializeVector(blob)
	}
	return &doc, nil
}

// ListDocuments returns every document in scope, ordered by id.
func (s *PostgresStore) ListDocuments(ctx context.Context, withContent bool) ([]*types.Document, error) {
	cols := "d.id, d.metadata"
	if withContent {
		cols = "d.id, d.metadata, d.content"
	}
	scopeSQL, scopeArgs, _ := s.scope(1)
	sqlQuery := `SELECT ` + cols + ` FROM documents d WHERE ` + scopeSQL + ` ORDER BY d.id`

	rows, err := s.pool.Query(ctx, sqlQuery, scopeArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*types.Document, 0)
	for rows.Next() {
		var doc types.Document
		var metadata []byte
		if withContent {
			err = rows.Scan(&doc.ID, &metadata, &doc.Content)
		} else {
			err = rows.Scan(&doc.ID, &metadata)
		}
		if err != nil {
			return nil, err
		}
		if doc.Metadata, err = decodeJSONB(metadata); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// SearchText runs a to_tsquery match over the generated tsvector
// column. ts_rank is already higher-is-better, so it passes through.
func (s *PostgresStore) SearchText(ctx context.Context, nativeQuery string, pred *filter.Predicate, limit int) ([]TextResult, error) {
	scopeSQL, scopeArgs, next := s.scope(2)
	sqlQuery := `
		SELECT d.id, ts_rank(d.tsv, q) AS rank, d.metadata
		FROM documents d, to_tsquery('simple', $1) q
		WHERE d.tsv @@ q
		AND ` + scopeSQL
	args := append([]any{nativeQuery}, scopeArgs...)

	compiled, err := filter.Compile(pred, types.DialectPostgres, next)
	if err != nil {
		return nil, err
	}
	if compiled.SQL != "" {
		sqlQuery += " AND " + compiled.SQL
		args = append(args, compiled.Args...)
		next += len(compiled.Args)
	}

	sqlQuery += " ORDER BY rank DESC, d.id"
	if limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT $%d", next)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute tsquery search: %w", err)
	}
	defer rows.Close()

	results := make([]TextResult, 0)
	for rows.Next() {
		var r TextResult
		var metadata []byte
		if err := rows.Scan(&r.ID, &r.Rank, &metadata); err != nil {
			return nil, err
		}
		if r.Metadata, err = decodeJSONB(metadata); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SelectIDs returns ids of in-scope documents matching the predicate.
func (s *PostgresStore) SelectIDs(ctx context.Context, pred *filter.Predicate) ([]string, error) {
	scopeSQL, scopeArgs, next := s.scope(1)
	sqlQuery := `SELECT d.id FROM documents d WHERE ` + scopeSQL
	args := scopeArgs

	compiled, err := filter.Compile(pred, types.DialectPostgres, next)
	if err != nil {
		return nil, err
	}
	if compiled.SQL != "" {
		sqlQuery += " AND " + compiled.SQL
		args = append(args, compiled.Args...)
	}
	sqlQuery += " ORDER BY d.id"

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select candidate ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadEmbeddings bulk-fetches stored vectors for the given ids.
func (s *PostgresStore) LoadEmbeddings(ctx context.Context, ids []string) (map[string][]float32, error) {
	if len(ids) == 0 {
		return map[string][]float32{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT d.id, d.embedding FROM documents d WHERE d.embedding IS NOT NULL AND d.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32, len(ids))
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		out[id] = deserializeVector(blob)
	}
	return out, rows.Err()
}

// LoadMetadata bulk-fetches metadata snapshots for the given ids.
func (s *PostgresStore) LoadMetadata(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	if len(ids) == 0 {
		return map[string]map[string]any{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT d.id, d.metadata FROM documents d WHERE d.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]any, len(ids))
	for rows.Next() {
		var id string
		var metadata []byte
		if err := rows.Scan(&id, &metadata); err != nil {
			return nil, err
		}
		m, err := decodeJSONB(metadata)
		if err != nil {
			return nil, err
		}
		out[id] = m
	}
	return out, rows.Err()
}

// SearchVectorNative is not available on Postgres.
func (s *PostgresStore) SearchVectorNative(ctx context.Context, req scorer.Request) ([]scorer.Match, error) {
	return nil, fmt.Errorf("postgres store has no native vector search")
}

func decodeJSONB(b []byte) (map[string]any, error) {
	if len(b) == 0 || strings.TrimSpace(string(b)) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}
