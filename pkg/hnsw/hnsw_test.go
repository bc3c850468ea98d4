package hnsw

import (
	"testing"

	"github.com/edgevec/edgevec/pkg/distance"
	"github.com/edgevec/edgevec/pkg/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T, dim int) (*Graph, *vectorstore.VectorStorage) {
	t.Helper()
	store := vectorstore.New(dim, vectorstore.None)
	cfg := DefaultConfig(dim, distance.L2)
	cfg.M, cfg.M0, cfg.EfConstruction, cfg.EfSearch = 4, 8, 16, 16
	g, err := New(cfg, store)
	require.NoError(t, err)
	return g, store
}

func insertVec(t *testing.T, g *Graph, store *vectorstore.VectorStorage, vec []float32) VectorId {
	t.Helper()
	id, err := store.Insert(vec)
	require.NoError(t, err)
	require.NoError(t, g.Insert(id))
	return id
}

// Unit basis vectors: the query's own vector comes back first at
// distance 0, the rest at sqrt(2).
func TestSearchBasicRetrieval(t *testing.T) {
	g, store := newTestGraph(t, 4)
	insertVec(t, g, store, []float32{1, 0, 0, 0})
	insertVec(t, g, store, []float32{0, 1, 0, 0})
	insertVec(t, g, store, []float32{0, 0, 1, 0})
	insertVec(t, g, store, []float32{0, 0, 0, 1})

	results, err := g.Search([]float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, VectorId(0), results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-9)
	assert.InDelta(t, 1.4142135623730951, results[1].Distance, 1e-6)
}

func TestSoftDeleteExcludesFromSearch(t *testing.T) {
	g, store := newTestGraph(t, 4)
	id0 := insertVec(t, g, store, []float32{1, 0, 0, 0})
	insertVec(t, g, store, []float32{0, 1, 0, 0})
	insertVec(t, g, store, []float32{0, 0, 1, 0})
	insertVec(t, g, store, []float32{0, 0, 0, 1})

	wasLive, err := g.SoftDelete(id0)
	require.NoError(t, err)
	assert.True(t, wasLive)

	results, err := g.Search([]float32{1, 0, 0, 0}, 4)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NotEqual(t, id0, r.ID)
		assert.InDelta(t, 1.4142135623730951, r.Distance, 1e-6)
	}
}

func TestEmptyGraphSearchReturnsEmpty(t *testing.T) {
	g, _ := newTestGraph(t, 4)
	results, err := g.Search([]float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSingleVectorSearch(t *testing.T) {
	g, store := newTestGraph(t, 4)
	insertVec(t, g, store, []float32{1, 2, 3, 4})

	results, err := g.Search([]float32{1, 2, 3, 4}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0, results[0].Distance, 1e-9)
}

func TestAllDeletedSearchReturnsEmptyAndClearsEntryPoint(t *testing.T) {
	g, store := newTestGraph(t, 4)
	id0 := insertVec(t, g, store, []float32{1, 0, 0, 0})
	id1 := insertVec(t, g, store, []float32{0, 1, 0, 0})

	_, err := g.SoftDelete(id0)
	require.NoError(t, err)
	_, err = g.SoftDelete(id1)
	require.NoError(t, err)

	_, ok := g.EntryPoint()
	assert.False(t, ok)

	results, err := g.Search([]float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSoftDeleteIdempotent(t *testing.T) {
	g, store := newTestGraph(t, 4)
	id0 := insertVec(t, g, store, []float32{1, 0, 0, 0})

	wasLive, err := g.SoftDelete(id0)
	require.NoError(t, err)
	assert.True(t, wasLive)

	wasLive, err = g.SoftDelete(id0)
	require.NoError(t, err)
	assert.False(t, wasLive)
}

func TestSoftDeleteUnknownId(t *testing.T) {
	g, _ := newTestGraph(t, 4)
	_, err := g.SoftDelete(VectorId(99))
	require.ErrorIs(t, err, ErrInvalidId)
}

func TestSearchDimensionMismatch(t *testing.T) {
	g, store := newTestGraph(t, 4)
	insertVec(t, g, store, []float32{1, 0, 0, 0})

	_, err := g.Search([]float32{1, 0, 0}, 1)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

// Every out-edge at layer l must point to a node that reaches layer l.
func TestNeighborLevelInvariant(t *testing.T) {
	g, store := newTestGraph(t, 4)
	ids := make([]VectorId, 0, 20)
	for i := 0; i < 20; i++ {
		v := []float32{float32(i), float32(i % 3), float32(i % 5), 1}
		ids = append(ids, insertVec(t, g, store, v))
	}

	for _, id := range ids {
		n := g.nodes[id]
		for layer := 0; layer <= n.level; layer++ {
			for _, nb := range n.neighbors[layer] {
				nbNode := g.nodes[nb]
				assert.GreaterOrEqual(t, nbNode.level, layer,
					"neighbor %d at layer %d must reach that layer", nb, layer)
			}
		}
	}
}

func TestSearchBQNavigatesTopology(t *testing.T) {
	g, store := newTestGraph(t, 8)
	codes := make(map[VectorId][]uint64)
	vecs := [][]float32{
		{1, 1, 1, 1, 1, 1, 1, 1},
		{-1, -1, -1, -1, -1, -1, -1, -1},
		{1, 1, 1, 1, -1, -1, -1, -1},
	}
	for _, v := range vecs {
		id := insertVec(t, g, store, v)
		codes[id] = bqEncode(v)
	}

	results, err := g.SearchBQ(bqEncode(vecs[0]), func(id VectorId) ([]uint64, error) {
		return codes[id], nil
	}, 1, 8)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, VectorId(0), results[0].ID)
	assert.Zero(t, results[0].Distance)
}

func bqEncode(vec []float32) []uint64 {
	words := make([]uint64, 1)
	for i, v := range vec {
		if v > 0 {
			words[i/64] |= 1 << uint(i%64)
		}
	}
	return words
}
