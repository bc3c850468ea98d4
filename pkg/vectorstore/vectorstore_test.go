package vectorstore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAssignsMonotonicIds(t *testing.T) {
	s := New(4, None)
	id0, err := s.Insert([]float32{1, 0, 0, 0})
	require.NoError(t, err)
	id1, err := s.Insert([]float32{0, 1, 0, 0})
	require.NoError(t, err)

	assert.Equal(t, VectorId(0), id0)
	assert.Equal(t, VectorId(1), id1)
	assert.Equal(t, 2, s.LiveCount())
	assert.Equal(t, 0, s.DeletedCount())
}

func TestInsertRejectsWrongDimension(t *testing.T) {
	s := New(4, None)
	_, err := s.Insert([]float32{1, 2, 3})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestInsertRejectsNonFinite(t *testing.T) {
	s := New(2, None)
	_, err := s.Insert([]float32{float32(math.NaN()), 1})
	require.ErrorIs(t, err, ErrInvalidVector)

	_, err = s.Insert([]float32{float32(math.Inf(1)), 1})
	require.ErrorIs(t, err, ErrInvalidVector)
}

func TestReadUnknownId(t *testing.T) {
	s := New(2, None)
	_, err := s.Read(VectorId(42))
	require.ErrorIs(t, err, ErrInvalidId)
}

func TestMarkDeletedIdempotent(t *testing.T) {
	s := New(2, None)
	id, _ := s.Insert([]float32{1, 2})

	wasLive, err := s.MarkDeleted(id)
	require.NoError(t, err)
	assert.True(t, wasLive)
	assert.Equal(t, 0, s.LiveCount())
	assert.Equal(t, 1, s.DeletedCount())

	wasLive, err = s.MarkDeleted(id)
	require.NoError(t, err)
	assert.False(t, wasLive)
	assert.Equal(t, 1, s.DeletedCount())
}

func TestSQ8RoundTripApproximation(t *testing.T) {
	s := New(3, SQ8)
	id, err := s.Insert([]float32{-1, 0, 1})
	require.NoError(t, err)

	q, err := s.ReadQuantized(id)
	require.NoError(t, err)
	require.Len(t, q, 3)

	assert.InDelta(t, -1, s.Dequantize(q[0]), 0.01)
	assert.InDelta(t, 1, s.Dequantize(q[2]), 0.01)
}

func TestEachSkipsTombstones(t *testing.T) {
	s := New(2, None)
	id0, _ := s.Insert([]float32{1, 1})
	id1, _ := s.Insert([]float32{2, 2})
	_, _ = s.MarkDeleted(id0)

	var seen []VectorId
	s.Each(func(id VectorId, vec []float32) { seen = append(seen, id) })
	assert.Equal(t, []VectorId{id1}, seen)
}
