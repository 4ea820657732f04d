package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/filter"
	"github.com/docsift/docsift/internal/query"
	"github.com/docsift/docsift/internal/scorer"
	"github.com/docsift/docsift/pkg/types"
)

// SQLiteStore implements Store over SQLite with FTS5 full-text search.
// Embeddings are stored as little-endian float32 blobs; when the
// sqlite-vec extension is compiled in, similarity search is delegated
// to the engine.
type SQLiteStore struct {
	db     *sql.DB
	prefix string
	logger *zap.Logger
}

var _ Store = (*SQLiteStore)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed store
// scoped to the given prefix. An empty prefix scopes to documents with
// no prefix, mirroring the NULL-prefix namespace.
func NewSQLiteStore(dbPath, prefix string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Debug("opened sqlite store",
		zap.String("path", dbPath),
		zap.String("driver", DriverName),
		zap.Bool("vector_extension", VectorExtensionAvailable))

	return &SQLiteStore{db: db, prefix: prefix, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Dialect returns types.DialectSQLite.
func (s *SQLiteStore) Dialect() types.Dialect { return types.DialectSQLite }

// Compiler returns the FTS5 lexical compiler.
func (s *SQLiteStore) Compiler() query.Compiler { return query.SQLiteCompiler{} }

// SupportsNativeVectorSearch reports whether sqlite-vec was compiled in.
func (s *SQLiteStore) SupportsNativeVectorSearch() bool { return VectorExtensionAvailable }

// scope returns the prefix-namespace condition for an aliased documents
// table, and its bind args.
func (s *SQLiteStore) scope() (string, []any) {
	if s.prefix == "" {
		return "d.prefix IS NULL", nil
	}
	return "d.prefix = ?", []any{s.prefix}
}

// UpsertDocuments inserts or replaces documents in one transaction.
// Content, metadata, and embedding are replaced together.
func (s *SQLiteStore) UpsertDocuments(ctx context.Context, docs []*types.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
		INSERT INTO documents (id, content, prefix, metadata, embedding, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			prefix = excluded.prefix,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	for _, doc := range docs {
		metadataJSON, err := marshalMetadata(doc.Metadata)
		if err != nil {
			return err
		}
		var blob []byte
		var dimension any
		if doc.Embedding != nil {
			blob = serializeVector(doc.Embedding)
			dimension = len(doc.Embedding)
		}
		if _, err := tx.ExecContext(ctx, upsert,
			doc.ID, doc.Content, s.prefixValue(), metadataJSON, blob, dimension, now, now); err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) prefixValue() any {
	if s.prefix == "" {
		return nil
	}
	return s.prefix
}

// DeleteDocuments removes documents by id; the FTS index follows via
// triggers.
func (s *SQLiteStore) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	sqlQuery := `DELETE FROM documents WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := s.db.ExecContext(ctx, sqlQuery, asAnySlice(ids)...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// GetDocument fetches a single document within the store's scope.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	scopeSQL, scopeArgs := s.scope()
	sqlQuery := `
		SELECT d.id, d.content, d.metadata, d.embedding, d.created_at, d.updated_at
		FROM documents d
		WHERE d.id = ? AND ` + scopeSQL
	args := append([]any{id}, scopeArgs...)

	var doc types.Document
	var metadata sql.NullString
	var blob []byte
	err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(
		&doc.ID, &doc.Content, &metadata, &blob, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}

	doc.Metadata, err = unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	if blob != nil {
		doc.Embedding = deserializeVector(blob)
	}
	return &doc, nil
}

// ListDocuments returns every document in scope, ordered by id.
func (s *SQLiteStore) ListDocuments(ctx context.Context, withContent bool) ([]*types.Document, error) {
	cols := "d.id, d.metadata"
	if withContent {
		cols = "d.id, d.metadata, d.content"
	}
	scopeSQL, scopeArgs := s.scope()
	sqlQuery := `SELECT ` + cols + ` FROM documents d WHERE ` + scopeSQL + ` ORDER BY d.id`

	rows, err := s.db.QueryContext(ctx, sqlQuery, scopeArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*types.Document, 0)
	for rows.Next() {
		var doc types.Document
		var metadata sql.NullString
		if withContent {
			err = rows.Scan(&doc.ID, &metadata, &doc.Content)
		} else {
			err = rows.Scan(&doc.ID, &metadata)
		}
		if err != nil {
			return nil, err
		}
		if doc.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// SearchText runs an FTS5 MATCH query. FTS5's bm25 rank is negative
// with lower meaning better; it is negated so that Store's
// higher-is-better contract holds.
func (s *SQLiteStore) SearchText(ctx context.Context, nativeQuery string, pred *filter.Predicate, limit int) ([]TextResult, error) {
	scopeSQL, scopeArgs := s.scope()
	sqlQuery := `
		SELECT d.id, fts.rank, d.metadata
		FROM documents_fts fts
		JOIN documents d ON d.id = fts.id
		WHERE fts.content MATCH ?
		AND ` + scopeSQL
	args := append([]any{nativeQuery}, scopeArgs...)

	compiled, err := filter.Compile(pred, types.DialectSQLite, 1)
	if err != nil {
		return nil, err
	}
	if compiled.SQL != "" {
		sqlQuery += " AND " + compiled.SQL
		args = append(args, compiled.Args...)
	}

	sqlQuery += " ORDER BY fts.rank, d.id"
	if limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0)
	for rows.Next() {
		var r TextResult
		var rank float64
		var metadata sql.NullString
		if err := rows.Scan(&r.ID, &rank, &metadata); err != nil {
			return nil, err
		}
		r.Rank = -rank
		if r.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SelectIDs returns ids of in-scope documents matching the predicate.
func (s *SQLiteStore) SelectIDs(ctx context.Context, pred *filter.Predicate) ([]string, error) {
	scopeSQL, scopeArgs := s.scope()
	sqlQuery := `SELECT d.id FROM documents d WHERE ` + scopeSQL
	args := scopeArgs

	compiled, err := filter.Compile(pred, types.DialectSQLite, 1)
	if err != nil {
		return nil, err
	}
	if compiled.SQL != "" {
		sqlQuery += " AND " + compiled.SQL
		args = append(args, compiled.Args...)
	}
	sqlQuery += " ORDER BY d.id"

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select candidate ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *SQLiteStore) LoadEmbeddings(ctx context.Context, ids []string) (map[string][]float32, error) {
	if len(ids) == 0 {
		return map[string][]float32{}, nil
	}
	sqlQuery := `
		SELECT d.id, d.embedding
		FROM documents d
		WHERE d.embedding IS NOT NULL AND d.id IN (` + placeholders(len(ids)) + `)`

	rows, err := s.db.QueryContext(ctx, sqlQuery, asAnySlice(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *SQLiteStore) LoadMetadata(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	if len(ids) == 0 {
		return map[string]map[string]any{}, nil
	}
	sqlQuery := `SELECT d.id, d.metadata FROM documents d WHERE d.id IN (` + placeholders(len(ids)) + `)`

	rows, err := s.db.QueryContext(ctx, sqlQuery, asAnySlice(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]map[string]any, len(ids))
	for rows.Next() {
		var id string
		var metadata sql.NullString
		if err := rows.Scan(&id, &metadata); err != nil {
			return nil, err
		}
		m, err := unmarshalMetadata(metadata)
		if err != nil {
			return nil, err
		}
		out[id] = m
	}
	return out, rows.Err()
}

// SearchVectorNative delegates similarity search to sqlite-vec.
// vec_distance_cosine returns a distance (lower is better); it is
// converted to similarity (1 - distance) to match the scorer contract.
func (s *SQLiteStore) SearchVectorNative(ctx context.Context, req scorer.Request) ([]scorer.Match, error) {
	if !VectorExtensionAvailable {
		return nil, fmt.Errorf("native vector search requires the sqlite_vec build")
	}

	queryBlob := serializeVector(req.Query)
	scopeSQL, scopeArgs := s.scope()
	sqlQuery := `
		SELECT d.id, 1.0 - vec_distance_cosine(d.embedding, ?) AS similarity
		FROM documents d
		WHERE d.embedding IS NOT NULL
		AND ` + scopeSQL
	args := append([]any{queryBlob}, scopeArgs...)

	compiled, err := filter.Compile(req.Filter, types.DialectSQLite, 1)
	if err != nil {
		return nil, err
	}
	if compiled.SQL != "" {
		sqlQuery += " AND " + compiled.SQL
		args = append(args, compiled.Args...)
	}

	if req.Candidates != nil {
		if len(req.Candidates) == 0 {
			return []scorer.Match{}, nil
		}
		sqlQuery += " AND d.id IN (" + placeholders(len(req.Candidates)) + ")"
		args = append(args, asAnySlice(req.Candidates)...)
	}

	sqlQuery += " ORDER BY similarity DESC, d.id ASC"
	if req.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, req.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]scorer.Match, 0)
	for rows.Next() {
		var m scorer.Match
		if err := rows.Scan(&m.ID, &m.Similarity); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Helpers

func marshalMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func asAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
