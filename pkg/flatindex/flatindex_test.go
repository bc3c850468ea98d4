package flatindex

import (
	"testing"

	"github.com/edgevec/edgevec/pkg/distance"
	"github.com/edgevec/edgevec/pkg/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatIndexBasicRetrieval(t *testing.T) {
	store := vectorstore.New(4, vectorstore.None)
	idx, err := New(4, distance.L2, store)
	require.NoError(t, err)

	for _, v := range [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}} {
		id, err := store.Insert(v)
		require.NoError(t, err)
		require.NoError(t, idx.Insert(id))
	}

	results, err := idx.Search([]float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, VectorId(0), results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-9)
}

func TestFlatIndexSoftDeleteExcludes(t *testing.T) {
	store := vectorstore.New(2, vectorstore.None)
	idx, err := New(2, distance.L2, store)
	require.NoError(t, err)

	id0, _ := store.Insert([]float32{1, 0})
	require.NoError(t, idx.Insert(id0))
	id1, _ := store.Insert([]float32{0, 1})
	require.NoError(t, idx.Insert(id1))

	wasLive, err := idx.SoftDelete(id0)
	require.NoError(t, err)
	assert.True(t, wasLive)

	results, err := idx.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id1, results[0].ID)
}

func TestFlatIndexEmptySearch(t *testing.T) {
	store := vectorstore.New(2, vectorstore.None)
	idx, err := New(2, distance.L2, store)
	require.NoError(t, err)

	results, err := idx.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBinaryFlatIndexHamming(t *testing.T) {
	idx, err := NewBinary(8)
	require.NoError(t, err)

	id0, err := idx.Insert([]uint64{0b11111111})
	require.NoError(t, err)
	id1, err := idx.Insert([]uint64{0b00000000})
	require.NoError(t, err)

	results, err := idx.Search([]uint64{0b11111111}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, id0, results[0].ID)
	assert.Zero(t, results[0].Distance)
	assert.Equal(t, id1, results[1].ID)
	assert.Equal(t, float64(8), results[1].Distance)
}

func TestBinaryFlatIndexRejectsBadDim(t *testing.T) {
	_, err := NewBinary(7)
	require.Error(t, err)
}
