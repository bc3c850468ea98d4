// Package bq implements EdgeVec's binary quantization codec: one sign bit
// per coordinate, packed into uint64 words, compared with Hamming
// distance. BQ trades recall for speed and memory; pkg/hnsw uses it for
// an optional fast first pass that pkg/edgevec can rescore against the
// original float32 vectors.
//
// Encoding is irreversible: BQ is a retrieval aid, never a storage
// replacement.
package bq

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrDimNotMultipleOf8 is returned when BQ is requested for a dimension
// that cannot be packed into whole bytes.
var ErrDimNotMultipleOf8 = errors.New("bq: dimension must be a multiple of 8")

// CheckDim validates that dim is eligible for binary quantization.
func CheckDim(dim int) error {
	if dim <= 0 || dim%8 != 0 {
		return fmt.Errorf("%w: got %d", ErrDimNotMultipleOf8, dim)
	}
	return nil
}

// WordsForDim returns how many uint64 words a packed code of the given
// dimension occupies.
func WordsForDim(dim int) int {
	return (dim + 63) / 64
}

// Encode packs vec's sign bits (1 = sign(x) > 0, 0 otherwise) into a
// []uint64 of length WordsForDim(len(vec)). Bits beyond len(vec) within
// the final word are always zero.
func Encode(vec []float32) []uint64 {
	words := make([]uint64, WordsForDim(len(vec)))
	for i, v := range vec {
		if v > 0 {
			words[i/64] |= 1 << uint(i%64)
		}
	}
	return words
}

// Hamming returns the number of differing bits between two packed codes
// of equal word length. It is the core metric for bq_raw search.
func Hamming(a, b []uint64) (uint32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("bq: mismatched packed-code lengths %d != %d", len(a), len(b))
	}
	var dist uint32
	for i := range a {
		dist += uint32(bits.OnesCount64(a[i] ^ b[i]))
	}
	return dist, nil
}
