package scorer

import "math"

// Cosine computes the cosine similarity of two equal-length vectors:
// dot product divided by the product of Euclidean norms. A zero-norm
// vector yields 0 instead of dividing by zero. Accumulation is in
// float64 to limit rounding drift on long vectors.
func Cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
