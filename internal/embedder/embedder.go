// Package embedder defines the embedding hook used for vector search.
//
// Collections never produce embeddings themselves. The caller supplies
// an Embedder when opening a collection, and query text is passed
// through it only when a vector search has no precomputed embedding.
package embedder

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrEmptyText   = errors.New("text cannot be empty")
	ErrNotProvided = errors.New("no embedder configured")
)

// Embedder turns texts into vectors. Implementations must return one
// vector per input text, all of Dimension() length.
type Embedder interface {
	// Embed generates embeddings for the given texts, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of the vectors this embedder produces.
	Dimension() int
}

// Func adapts a plain function to Embedder.
type Func struct {
	Fn  func(ctx context.Context, texts []string) ([][]float32, error)
	Dim int
}

func (f Func) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f.Fn(ctx, texts)
}

func (f Func) Dimension() int { return f.Dim }

// EmbedOne is a convenience wrapper for single-text embedding.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if e == nil {
		return nil, ErrNotProvided
	}
	if text == "" {
		return nil, ErrEmptyText
	}
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, errors.New("embedder returned wrong vector count")
	}
	return vectors[0], nil
}
