package types

import "time"

// Document is a stored searchable document. Metadata values are scalars
// (string, float64, bool); nested structures are not supported by the
// filter compiler and are rejected on write.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Embedding []float32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Result is one element of an ordered query response.
//
// Score is the final rank assigned by the result composer: the
// backend-native lexical rank (normalized so that higher is better) for
// lexical-only queries, and cosine similarity for vector and hybrid
// queries.
type Result struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Dialect identifies one of the two supported backends.
type Dialect int

const (
	// DialectSQLite is the FTS5-backed document store.
	DialectSQLite Dialect = iota
	// DialectPostgres is the tsquery-backed relational store.
	DialectPostgres
)

// String returns the dialect name used in logs and error messages.
func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}
