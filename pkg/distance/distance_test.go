package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL2Distance(t *testing.T) {
	f, err := Func(L2, 4)
	require.NoError(t, err)

	assert.InDelta(t, 0, f([]float32{1, 2, 3, 4}, []float32{1, 2, 3, 4}), 1e-9)
	assert.InDelta(t, math.Sqrt2, f([]float32{1, 0, 0, 0}, []float32{0, 1, 0, 0}), 1e-9)
}

func TestDotDistanceIsNegatedDotProduct(t *testing.T) {
	f, err := Func(Dot, 3)
	require.NoError(t, err)

	// Higher dot product means closer, so the kernel negates it.
	assert.InDelta(t, -14, f([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0, f([]float32{1, 0, 0}, []float32{0, 1, 0}), 1e-9)
}

func TestCosineDistance(t *testing.T) {
	f, err := Func(Cosine, 2)
	require.NoError(t, err)

	assert.InDelta(t, 0, f([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, f([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, f([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}

func TestCosineZeroVectorDoesNotDivideByZero(t *testing.T) {
	f, err := Func(Cosine, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1, f([]float32{0, 0}, []float32{1, 0}), 1e-9)
}

func TestHammingRequiresPackedPath(t *testing.T) {
	_, err := Func(Hamming, 8)
	require.Error(t, err)
}

func TestUnknownMetricErrors(t *testing.T) {
	_, err := Func(Metric(99), 8)
	require.Error(t, err)
}

func TestMetricString(t *testing.T) {
	assert.Equal(t, "l2", L2.String())
	assert.Equal(t, "cosine", Cosine.String())
	assert.Equal(t, "dot", Dot.String())
	assert.Equal(t, "hamming", Hamming.String())
}

// Determinism across calls: identical input bits always produce
// identical output bits on the scalar path.
func TestKernelsArePureFunctions(t *testing.T) {
	f, err := Func(L2, 8)
	require.NoError(t, err)

	a := []float32{0.1, -0.2, 0.3, -0.4, 0.5, -0.6, 0.7, -0.8}
	b := []float32{0.8, -0.7, 0.6, -0.5, 0.4, -0.3, 0.2, -0.1}
	first := f(a, b)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, f(a, b))
	}
}
