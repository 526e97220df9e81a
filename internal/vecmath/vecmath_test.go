package vecmath

import (
	"math"
	"testing"
)

const tolerance = 1e-6

func TestNormalizeUnitNorm(t *testing.T) {
	tests := []struct {
		name string
		v    []float32
	}{
		{"simple", []float32{3, 4}},
		{"negative components", []float32{-1, 2, -3}},
		{"already unit", []float32{1, 0, 0}},
		{"tiny values", []float32{1e-4, 1e-4, 1e-4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(tt.v)
			if got := Norm(out); math.Abs(got-1) > tolerance {
				t.Errorf("Norm(Normalize(%v)) = %v, want 1", tt.v, got)
			}
		})
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	out := Normalize(zero)
	for i, x := range out {
		if x != 0 {
			t.Errorf("Normalize(zero)[%d] = %v, want 0", i, x)
		}
	}
}

func TestNormalizeDoesNotAliasInput(t *testing.T) {
	v := []float32{3, 4}
	out := Normalize(v)
	out[0] = 99
	if v[0] != 3 {
		t.Errorf("Normalize aliased its input: v = %v", v)
	}
}

func TestCosineSimilarityRange(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}},
		{"opposite", []float32{1, 0}, []float32{-1, 0}},
		{"unnormalized", []float32{10, 20}, []float32{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := CosineSimilarity(tt.a, tt.b)
			if s < 0 || s > 1 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, outside [0,1]", tt.a, tt.b, s)
			}
		})
	}
}

func TestCosineSimilaritySelf(t *testing.T) {
	a := []float32{0.3, -0.1, 0.7, 0.2}
	if s := CosineSimilarity(a, a); math.Abs(s-1) > tolerance {
		t.Errorf("CosineSimilarity(a, a) = %v, want 1", s)
	}
}

func TestCosineSimilarityNegativeClampsToZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{-1, 0}
	if s := CosineSimilarity(a, b); s != 0 {
		t.Errorf("CosineSimilarity(opposite) = %v, want 0", s)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	if s := CosineSimilarity([]float32{0, 0}, []float32{1, 2}); s != 0 {
		t.Errorf("CosineSimilarity(zero, v) = %v, want 0", s)
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	if s := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); s != 0 {
		t.Errorf("CosineSimilarity with mismatched dims = %v, want 0", s)
	}
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"pythagorean", []float32{0, 0}, []float32{3, 4}, 5},
		{"single axis", []float32{1, 0}, []float32{4, 0}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EuclideanDistance(tt.a, tt.b); math.Abs(got-tt.want) > tolerance {
				t.Errorf("EuclideanDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestBatchCompareMatchesPairwise(t *testing.T) {
	query := []float32{0.5, -0.2, 0.8, 0.1}
	candidates := [][]float32{
		{0.5, -0.2, 0.8, 0.1},
		{1, 0, 0, 0},
		{-0.5, 0.2, -0.8, -0.1},
		{0.1, 0.9, 0.2, 0.3},
	}

	scores := BatchCompare(query, candidates)
	if len(scores) != len(candidates) {
		t.Fatalf("BatchCompare returned %d scores, want %d", len(scores), len(candidates))
	}

	for i, c := range candidates {
		want := CosineSimilarity(query, c)
		if math.Abs(scores[i]-want) > tolerance {
			t.Errorf("BatchCompare[%d] = %v, pairwise = %v", i, scores[i], want)
		}
	}
}

func TestBatchCompareEmpty(t *testing.T) {
	scores := BatchCompare([]float32{1, 2}, nil)
	if len(scores) != 0 {
		t.Errorf("BatchCompare with no candidates returned %d scores", len(scores))
	}
}
