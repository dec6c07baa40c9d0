package vectorindex

import "math"

// zeroNormEpsilon guards the cosine denominator. Norms below this are
// treated as zero vectors.
const zeroNormEpsilon = 1e-12

// SquaredL2 returns the squared euclidean distance between two vectors
// of equal length.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// Cosine returns the cosine similarity between a and b. When either
// vector has (near-)zero norm the similarity is 0 and ok is false; the
// caller flags the result as degenerate instead of failing.
func Cosine(a, b []float32) (sim float64, ok bool) {
	if len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na < zeroNormEpsilon || nb < zeroNormEpsilon {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// CosineFromSquaredL2 approximates cosine similarity from a squared
// euclidean distance, valid for unit-normalized embeddings:
// |q - v|² = 2 - 2·cos(q, v). Clamped to [-1, 1].
func CosineFromSquaredL2(d2 float64) float64 {
	cos := 1 - d2/2
	if cos > 1 {
		return 1
	}
	if cos < -1 {
		return -1
	}
	return cos
}
