package storage

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/docsift/docsift/internal/filter"
	"github.com/docsift/docsift/internal/query"
	"github.com/docsift/docsift/internal/scorer"
	"github.com/docsift/docsift/pkg/types"
)

// TextResult is one row of a full-text query: document id, native rank
// normalized so that higher is better, and a metadata snapshot.
type TextResult struct {
	ID       string
	Rank     float64
	Metadata map[string]any
}

// Store is a backing document store. Implementations scope every
// operation to the prefix they were opened with, compile metadata
// predicates through the filter package, and execute native full-text
// query strings produced by their own query.Compiler.
type Store interface {
	// Dialect identifies the backend.
	Dialect() types.Dialect
	// Compiler returns the lexical compiler matching this backend.
	Compiler() query.Compiler
	// SupportsNativeVectorSearch reports whether SearchVectorNative is
	// usable; when false, vector scoring runs in-process.
	SupportsNativeVectorSearch() bool

	// UpsertDocuments inserts or atomically replaces documents: content,
	// metadata, and embedding change together.
	UpsertDocuments(ctx context.Context, docs []*types.Document) error
	// DeleteDocuments removes documents by id. Missing ids are ignored.
	DeleteDocuments(ctx context.Context, ids []string) error
	// GetDocument fetches one document, types.ErrNotFound if absent.
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	// ListDocuments returns all documents in the collection's scope;
	// content is omitted unless withContent is set.
	ListDocuments(ctx context.Context, withContent bool) ([]*types.Document, error)

	// SearchText executes a compiled native full-text query with an
	// optional metadata predicate. limit <= 0 means no limit.
	SearchText(ctx context.Context, nativeQuery string, pred *filter.Predicate, limit int) ([]TextResult, error)
	// LoadMetadata bulk-fetches metadata snapshots for result assembly.
	LoadMetadata(ctx context.Context, ids []string) (map[string]map[string]any, error)
	// SearchVectorNative delegates similarity scoring to the engine.
	// Only valid when SupportsNativeVectorSearch reports true.
	SearchVectorNative(ctx context.Context, req scorer.Request) ([]scorer.Match, error)

	// EmbeddingSource supplies the in-process vector strategy.
	scorer.EmbeddingSource

	Close() error
}

// serializeVector converts a float32 slice to a little-endian byte blob.
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice.
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
