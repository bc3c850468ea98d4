// Package flatindex implements brute-force exact search as an alternate
// index shape to pkg/hnsw: FlatIndex scans dense vectors, BinaryFlatIndex
// scans packed BQ codes with Hamming distance. Both guarantee 100% recall
// and expose the same insert/search/soft-delete contract as the graph
// index, so the façade can swap shapes without changing callers.
package flatindex

import (
	"sort"

	"github.com/edgevec/edgevec/pkg/bq"
	"github.com/edgevec/edgevec/pkg/bufpool"
	"github.com/edgevec/edgevec/pkg/distance"
	"github.com/edgevec/edgevec/pkg/vectorstore"
)

// VectorId aliases vectorstore's handle type.
type VectorId = vectorstore.VectorId

// Re-exported sentinels, same rationale as pkg/hnsw.
var (
	ErrDimensionMismatch = vectorstore.ErrDimensionMismatch
	ErrInvalidVector     = vectorstore.ErrInvalidVector
	ErrInvalidId         = vectorstore.ErrInvalidId
)

// Result is one element of a search result set.
type Result struct {
	ID       VectorId
	Distance float64
}

// VectorSource supplies the float32 coordinates behind a VectorId.
type VectorSource interface {
	Read(id VectorId) ([]float32, error)
}

type entry struct {
	deleted bool
}

// FlatIndex is a brute-force exact nearest-neighbor index over dense
// vectors sharing the same distance kernels as pkg/hnsw.
type FlatIndex struct {
	dim          int
	distFunc     distance.VectorFunc
	source       VectorSource
	entries      []entry
	deletedCount int
}

// New creates an empty FlatIndex over source using the given metric.
func New(dim int, metric distance.Metric, source VectorSource) (*FlatIndex, error) {
	distFunc, err := distance.Func(metric, dim)
	if err != nil {
		return nil, err
	}
	return &FlatIndex{dim: dim, distFunc: distFunc, source: source}, nil
}

// Insert registers id (already stored in source) as a live member of the
// index. Unlike pkg/hnsw there is no topology to build: brute-force scan
// needs nothing beyond a tombstone bit per id.
func (f *FlatIndex) Insert(id VectorId) error {
	if int(id) != len(f.entries) {
		return ErrInvalidId
	}
	f.entries = append(f.entries, entry{})
	return nil
}

// Search scans every live vector and returns the top-k by ascending
// distance, ties broken by smaller VectorId: identical ordering
// semantics to pkg/hnsw.Search, with guaranteed 100% recall.
func (f *FlatIndex) Search(query []float32, k int) ([]Result, error) {
	if len(query) != f.dim {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 || len(f.entries) == 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(f.entries))
	for id := range f.entries {
		if f.entries[id].deleted {
			continue
		}
		vec, err := f.source.Read(VectorId(id))
		if err != nil {
			return nil, err
		}
		results = append(results, Result{ID: VectorId(id), Distance: f.distFunc(query, vec)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SoftDelete sets id's tombstone bit. Idempotent.
func (f *FlatIndex) SoftDelete(id VectorId) (bool, error) {
	if int(id) >= len(f.entries) {
		return false, ErrInvalidId
	}
	if f.entries[id].deleted {
		return false, nil
	}
	f.entries[id].deleted = true
	f.deletedCount++
	return true, nil
}

// IsDeleted reports whether id's tombstone bit is set.
func (f *FlatIndex) IsDeleted(id VectorId) (bool, error) {
	if int(id) >= len(f.entries) {
		return false, ErrInvalidId
	}
	return f.entries[id].deleted, nil
}

// LiveCount returns the number of non-tombstoned entries.
func (f *FlatIndex) LiveCount() int { return len(f.entries) - f.deletedCount }

// DeletedCount returns the number of tombstoned entries.
func (f *FlatIndex) DeletedCount() int { return f.deletedCount }

// Len returns the total number of entries ever inserted.
func (f *FlatIndex) Len() int { return len(f.entries) }

// Export returns the tombstone bit for every entry in VectorId order.
// FlatIndex has no topology, so this is its entire serializable state
// beyond what VectorStorage already owns.
func (f *FlatIndex) Export() []bool {
	out := make([]bool, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.deleted
	}
	return out
}

// Restore rebuilds a FlatIndex directly from a previously Exported
// tombstone list, used when loading a snapshot.
func Restore(dim int, metric distance.Metric, source VectorSource, deleted []bool) (*FlatIndex, error) {
	f, err := New(dim, metric, source)
	if err != nil {
		return nil, err
	}
	f.entries = make([]entry, len(deleted))
	for i, d := range deleted {
		f.entries[i] = entry{deleted: d}
		if d {
			f.deletedCount++
		}
	}
	return f, nil
}

// BinaryFlatIndex is FlatIndex's Hamming-distance counterpart: it stores
// packed bits directly, with no float32 staging, and compares exclusively
// via pkg/bq.Hamming.
type BinaryFlatIndex struct {
	words        int
	codes        [][]uint64
	deleted      []bool
	deletedCount int
}

// NewBinary creates an empty BinaryFlatIndex for codes packed from dim
// coordinates; dim must be a multiple of 8.
func NewBinary(dim int) (*BinaryFlatIndex, error) {
	if err := bq.CheckDim(dim); err != nil {
		return nil, err
	}
	return &BinaryFlatIndex{words: bq.WordsForDim(dim)}, nil
}

// Insert appends a packed code and returns its VectorId.
func (b *BinaryFlatIndex) Insert(code []uint64) (VectorId, error) {
	if len(code) != b.words {
		return 0, ErrDimensionMismatch
	}
	id := VectorId(len(b.codes))
	cp := make([]uint64, b.words)
	copy(cp, code)
	b.codes = append(b.codes, cp)
	b.deleted = append(b.deleted, false)
	return id, nil
}

// Search scans every live code and returns the top-k by ascending
// Hamming distance, ties broken by smaller VectorId.
func (b *BinaryFlatIndex) Search(queryCode []uint64, k int) ([]Result, error) {
	if len(queryCode) != b.words {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 || len(b.codes) == 0 {
		return nil, nil
	}

	ids := bufpool.GetUint32()
	defer bufpool.PutUint32(ids)
	for id := range b.codes {
		if !b.deleted[id] {
			ids = append(ids, uint32(id))
		}
	}

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		dist, err := bq.Hamming(queryCode, b.codes[id])
		if err != nil {
			return nil, err
		}
		results = append(results, Result{ID: VectorId(id), Distance: float64(dist)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SoftDelete sets id's tombstone bit. Idempotent.
func (b *BinaryFlatIndex) SoftDelete(id VectorId) (bool, error) {
	if int(id) >= len(b.codes) {
		return false, ErrInvalidId
	}
	if b.deleted[id] {
		return false, nil
	}
	b.deleted[id] = true
	b.deletedCount++
	return true, nil
}

// IsDeleted reports whether id's tombstone bit is set.
func (b *BinaryFlatIndex) IsDeleted(id VectorId) (bool, error) {
	if int(id) >= len(b.codes) {
		return false, ErrInvalidId
	}
	return b.deleted[id], nil
}

// LiveCount returns the number of non-tombstoned codes.
func (b *BinaryFlatIndex) LiveCount() int { return len(b.codes) - b.deletedCount }

// DeletedCount returns the number of tombstoned codes.
func (b *BinaryFlatIndex) DeletedCount() int { return b.deletedCount }

// Len returns the total number of codes ever inserted.
func (b *BinaryFlatIndex) Len() int { return len(b.codes) }

// Export returns every packed code and tombstone bit in VectorId order.
func (b *BinaryFlatIndex) Export() (codes [][]uint64, deleted []bool) {
	codes = make([][]uint64, len(b.codes))
	for i, c := range b.codes {
		cp := make([]uint64, len(c))
		copy(cp, c)
		codes[i] = cp
	}
	deleted = make([]bool, len(b.deleted))
	copy(deleted, b.deleted)
	return codes, deleted
}

// RestoreBinary rebuilds a BinaryFlatIndex directly from a previously
// Exported code/tombstone pair, used when loading a snapshot.
func RestoreBinary(dim int, codes [][]uint64, deleted []bool) (*BinaryFlatIndex, error) {
	b, err := NewBinary(dim)
	if err != nil {
		return nil, err
	}
	b.codes = make([][]uint64, len(codes))
	for i, c := range codes {
		cp := make([]uint64, len(c))
		copy(cp, c)
		b.codes[i] = cp
	}
	b.deleted = make([]bool, len(deleted))
	copy(b.deleted, deleted)
	for _, d := range b.deleted {
		if d {
			b.deletedCount++
		}
	}
	return b, nil
}
