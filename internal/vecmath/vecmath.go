// Package vecmath provides the vector primitives used throughout the
// recognition pipeline: L2 normalization, cosine similarity, Euclidean
// distance and batch comparison over float32 face embeddings.
package vecmath

import "math"

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a copy of v scaled to unit L2 norm. A zero vector is
// returned as-is so downstream similarity against it yields 0 instead of
// failing the whole frame.
func Normalize(v []float32) []float32 {
	norm := Norm(v)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot returns the dot product of a and b. Mismatched lengths yield 0.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CosineSimilarity normalizes both inputs and returns their dot product
// clamped to [0, 1]. Negative similarity is treated as "not similar";
// values slightly above 1 from floating point overshoot are clamped down.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < 0 {
		sim = 0
	}
	return sim
}

// EuclideanDistance returns the L2 distance between a and b.
// Mismatched lengths yield +Inf.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// BatchCompare computes the cosine similarity of query against every
// candidate. Results match pairwise CosineSimilarity calls within floating
// point tolerance.
func BatchCompare(query []float32, candidates [][]float32) []float64 {
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = CosineSimilarity(query, c)
	}
	return scores
}
