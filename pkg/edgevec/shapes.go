package edgevec

import (
	"github.com/edgevec/edgevec/pkg/bq"
	"github.com/edgevec/edgevec/pkg/flatindex"
	"github.com/edgevec/edgevec/pkg/hnsw"
	"github.com/edgevec/edgevec/pkg/metadata"
	"github.com/edgevec/edgevec/pkg/vectorstore"
)

// SearchResult is one element of a search result set.
type SearchResult struct {
	ID       vectorstore.VectorId
	Distance float64
}

// FilteredResult extends SearchResult with the matching record's
// metadata.
type FilteredResult struct {
	ID       vectorstore.VectorId
	Distance float64
	Metadata metadata.Record
}

// shapeIndex is the subset of the index capability set that the façade
// needs to reach polymorphically across HNSW, Flat, and BinaryFlat.
// Insert, compaction, and snapshotting are
// shape-specific enough (BinaryFlatIndex.Insert assigns its own id;
// compaction rebuilds all three stores together) that Index drives them
// directly with a type switch on Config.Shape instead of through this
// interface.
type shapeIndex interface {
	Search(query []float32, k int) ([]SearchResult, error)
	SoftDelete(id vectorstore.VectorId) (bool, error)
}

type hnswShape struct{ g *hnsw.Graph }

func (s hnswShape) Search(query []float32, k int) ([]SearchResult, error) {
	raw, err := s.g.Search(query, k)
	if err != nil {
		return nil, err
	}
	return fromHnswResults(raw), nil
}
func (s hnswShape) SoftDelete(id vectorstore.VectorId) (bool, error) { return s.g.SoftDelete(id) }

type flatShape struct{ f *flatindex.FlatIndex }

func (s flatShape) Search(query []float32, k int) ([]SearchResult, error) {
	raw, err := s.f.Search(query, k)
	if err != nil {
		return nil, err
	}
	return fromFlatResults(raw), nil
}
func (s flatShape) SoftDelete(id vectorstore.VectorId) (bool, error) { return s.f.SoftDelete(id) }

type binaryFlatShape struct{ b *flatindex.BinaryFlatIndex }

func (s binaryFlatShape) Search(query []float32, k int) ([]SearchResult, error) {
	code := bq.Encode(query)
	raw, err := s.b.Search(code, k)
	if err != nil {
		return nil, err
	}
	return fromFlatResults(raw), nil
}
func (s binaryFlatShape) SoftDelete(id vectorstore.VectorId) (bool, error) { return s.b.SoftDelete(id) }

func fromHnswResults(raw []hnsw.Result) []SearchResult {
	out := make([]SearchResult, len(raw))
	for i, r := range raw {
		out[i] = SearchResult{ID: r.ID, Distance: r.Distance}
	}
	return out
}

func fromFlatResults(raw []flatindex.Result) []SearchResult {
	out := make([]SearchResult, len(raw))
	for i, r := range raw {
		out[i] = SearchResult{ID: r.ID, Distance: r.Distance}
	}
	return out
}
