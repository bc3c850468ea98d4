package bq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDim(t *testing.T) {
	require.NoError(t, CheckDim(8))
	require.NoError(t, CheckDim(128))
	require.ErrorIs(t, CheckDim(7), ErrDimNotMultipleOf8)
	require.ErrorIs(t, CheckDim(0), ErrDimNotMultipleOf8)
}

func TestEncodeAndHammingIdentical(t *testing.T) {
	vec := []float32{1, -1, 1, -1, 1, 1, -1, -1}
	code := Encode(vec)

	dist, err := Hamming(code, code)
	require.NoError(t, err)
	assert.Zero(t, dist)
}

func TestEncodeAndHammingOpposite(t *testing.T) {
	pos := []float32{1, 1, 1, 1, 1, 1, 1, 1}
	neg := []float32{-1, -1, -1, -1, -1, -1, -1, -1}

	dist, err := Hamming(Encode(pos), Encode(neg))
	require.NoError(t, err)
	assert.Equal(t, uint32(8), dist)
}

func TestHammingRejectsMismatchedLengths(t *testing.T) {
	_, err := Hamming([]uint64{1}, []uint64{1, 2})
	require.Error(t, err)
}

func TestWordsForDim(t *testing.T) {
	assert.Equal(t, 1, WordsForDim(8))
	assert.Equal(t, 1, WordsForDim(64))
	assert.Equal(t, 2, WordsForDim(65))
}
