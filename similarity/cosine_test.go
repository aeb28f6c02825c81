package similarity

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVector(r *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = r.Float64()*2 - 1
	}
	return v
}

func TestCosineSelfSimilarity(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		v := randomVector(r, 64)
		s, err := Cosine(v, v)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, s, 1e-12)
	}
}

func TestCosineSymmetry(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		a, b := randomVector(r, 32), randomVector(r, 32)
		ab, err := Cosine(a, b)
		require.NoError(t, err)
		ba, err := Cosine(b, a)
		require.NoError(t, err)
		assert.Equal(t, ab, ba)
		assert.GreaterOrEqual(t, ab, -1.0)
		assert.LessOrEqual(t, ab, 1.0)
	}
}

func TestCosineKnownValues(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 2}, []float64{-1, -2}, -1},
		{"scaled", []float64{1, 2, 3}, []float64{2, 4, 6}, 1},
		{"zero magnitude", []float64{0, 0}, []float64{1, 1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	_, err := Cosine([]float64{1, 2, 3}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, 5.0, Magnitude([]float64{3, 4}))
	assert.True(t, IsZero(nil))
	assert.True(t, IsZero([]float64{0, 0}))
	assert.False(t, IsZero([]float64{0, 1e-9}))
	assert.Equal(t, 0.123, Round(0.12345, 3))
	assert.Equal(t, 1.0, Round(0.99971, 3))
}
