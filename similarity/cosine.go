// Package similarity scores pairs of embedding vectors.
package similarity

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors of different length are compared.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Cosine returns the cosine similarity of a and b, in [-1, 1].
//
// Vectors of different length fail with ErrDimensionMismatch; they are never
// truncated or padded. If either vector has zero magnitude the similarity is 0.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Clamp rounding noise so self-similarity never exceeds 1.
	switch {
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}
	return s, nil
}

// Magnitude returns the Euclidean norm of v.
func Magnitude(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// IsZero reports whether v has zero magnitude (including the empty vector).
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Round rounds s to the given number of decimal places.
func Round(s float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(s*p) / p
}
