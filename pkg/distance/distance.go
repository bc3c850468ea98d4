// Package distance provides the scalar float32 distance kernels EdgeVec's
// dense indexes are built on: L2, cosine, and dot product. The Hamming
// metric is named here, but its packed-bit kernel lives in pkg/bq
// (bq.Hamming); Func rejects it.
//
// Kernels are plain functions over float32 slices so that callers
// resolve a metric once via Func and then
// call the returned closure on every comparison in a hot loop, instead of
// switching on the metric each time.
package distance

import (
	"fmt"
	"math"
)

// Metric identifies which distance kernel an index was built with.
type Metric int

const (
	L2 Metric = iota
	Cosine
	Dot
	Hamming
)

func (m Metric) String() string {
	switch m {
	case L2:
		return "l2"
	case Cosine:
		return "cosine"
	case Dot:
		return "dot"
	case Hamming:
		return "hamming"
	default:
		return "unknown"
	}
}

// VectorFunc computes a distance between two equal-length float32 vectors.
// Lower is closer for every metric EdgeVec exposes, including Dot and
// Cosine: callers that want similarity rather than distance negate the
// result themselves (the search algorithms in pkg/hnsw and pkg/flatindex
// only ever need a consistent ordering, not a particular sign).
type VectorFunc func(a, b []float32) float64

// Func resolves a Metric to a bound VectorFunc for vectors of the given
// dimensionality. dim is accepted for symmetry with BQ's packed-word
// resolver and for future SIMD-width dispatch; the scalar kernels here
// don't need it.
func Func(m Metric, dim int) (VectorFunc, error) {
	switch m {
	case L2:
		return l2Distance, nil
	case Cosine:
		return cosineDistance, nil
	case Dot:
		return dotDistance, nil
	case Hamming:
		return nil, fmt.Errorf("distance: metric %s operates on packed bits, use bq.Hamming", m)
	default:
		return nil, fmt.Errorf("distance: unknown metric %d", m)
	}
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// dotDistance returns the negative dot product so that "lower is closer"
// holds for Dot the same way it does for L2 and Cosine.
func dotDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return -sum
}

// cosineDistance returns 1 - cosine_similarity. It divides by both
// norms on every call, so inputs need not be unit length; stored
// vectors are never modified. A zero vector yields distance 1.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
