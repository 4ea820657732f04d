package embedder

import (
	"context"
	"crypto/sha256"
	"math"
)

// HashDimension is the vector length of the Hash embedder.
const HashDimension = 32

// Hash is a deterministic offline embedder derived from a SHA-256
// digest of the text. It carries no semantic signal and exists for
// tests and offline smoke runs where a real provider is unavailable.
type Hash struct{}

func (Hash) Dimension() int { return HashDimension }

func (Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
		sum := sha256.Sum256([]byte(text))
		v := make([]float32, HashDimension)
		var norm float64
		for j := 0; j < HashDimension; j++ {
			v[j] = float32(sum[j])/255.0 - 0.5
			norm += float64(v[j]) * float64(v[j])
		}
		if norm > 0 {
			scale := float32(1 / math.Sqrt(norm))
			for j := range v {
				v[j] *= scale
			}
		}
		vectors[i] = v
	}
	return vectors, nil
}
