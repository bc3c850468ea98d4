package edgevec

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/edgevec/edgevec/pkg/bq"
	"github.com/edgevec/edgevec/pkg/distance"
	"github.com/edgevec/edgevec/pkg/filter"
	"github.com/edgevec/edgevec/pkg/flatindex"
	"github.com/edgevec/edgevec/pkg/hnsw"
	"github.com/edgevec/edgevec/pkg/memguard"
	"github.com/edgevec/edgevec/pkg/metadata"
	"github.com/edgevec/edgevec/pkg/persistence"
	"github.com/edgevec/edgevec/pkg/vectorstore"
)

// VectorId is the handle every Index operation addresses a vector by.
type VectorId = vectorstore.VectorId

const (
	snapshotName = "index.snapshot"
	walFileName  = "index.wal"
)

// CollectionStats is a read-only snapshot of an Index's state.
type CollectionStats struct {
	LiveCount           int
	DeletedCount        int
	TombstoneRatio      float64
	MemoryBytesEstimate int64
	Dim                 int
	Metric              distance.Metric
	BQEnabled           bool
	Quantization        vectorstore.Quantization
}

// ProgressCallback is invoked periodically during Compact and
// BatchInsert. Advisory only; it cannot abort the operation.
type ProgressCallback func(done, total int)

// CompactionResult is Compact's return value.
type CompactionResult struct {
	TombstonesRemoved int
	NewSize           int
	DurationMs        int64
}

// MemoryPressure reports the governor's view of the index's heap
// footprint against its configured budget.
type MemoryPressure struct {
	Level   memguard.Level
	Used    int64
	Total   int64
	Percent float64
}

// Index is EdgeVec's façade: it owns the vector store, the metadata
// store, exactly one index shape, and, when opened against a
// directory, a WAL and a persistence Backend. It is not safe for
// concurrent use without external locking; every operation on one
// instance is totally ordered by call order.
type Index struct {
	cfg Config

	storage   *vectorstore.VectorStorage
	metaStore *metadata.Store
	shape     shapeIndex

	graph   *hnsw.Graph
	flat    *flatindex.FlatIndex
	binFlat *flatindex.BinaryFlatIndex

	// bqCodes mirrors storage slot-for-slot when cfg.BQEnabled and
	// cfg.Shape == ShapeHNSW: a binary-quantized side-index for
	// SearchBQ/SearchBQRescored, rebuilt from storage on Load since it
	// is a derived encoding, never snapshotted directly.
	bqCodes [][]uint64

	governor  *memguard.Governor
	planCache *filter.PlanCache

	dir     string
	walPath string
	backend persistence.Backend
	wal     *persistence.WAL

	logger *log.Logger
}

// New creates an in-memory-only Index: no backend, no WAL, no
// durability across process restarts. Use Open for a directory-backed
// index.
func New(cfg Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	idx := &Index{cfg: cfg, logger: cfg.Logger}
	if idx.logger == nil {
		idx.logger = log.New(io.Discard, "", 0)
	}
	idx.storage = vectorstore.New(cfg.Dim, cfg.Quantization)
	idx.metaStore = metadata.New()
	if err := idx.initShape(); err != nil {
		return nil, err
	}
	idx.governor = memguard.New(memguardConfigFrom(cfg))
	idx.planCache = filter.NewPlanCache(cfg.PlanCacheSize, time.Duration(cfg.PlanCacheTTLMs)*time.Millisecond)
	return idx, nil
}

// Open loads an Index from dir, replaying its WAL over the latest
// snapshot if present, or creates a fresh one there if dir is empty.
// cfg.Dim/M/M0/EfConstruction/EfSearch/BQEnabled are overridden from a
// loaded snapshot's header, Quantization is set to SQ8 when the header
// flags it, and Shape comes from the graph blob. The header does not
// record the metric, so Metric and every other Config field are taken
// from cfg as given.
func Open(dir string, cfg Config) (*Index, error) {
	if cfg.Dim > 0 {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	backend, err := persistence.NewFileBackend(dir)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		cfg:     cfg,
		dir:     dir,
		walPath: filepath.Join(dir, walFileName),
		backend: backend,
		logger:  cfg.Logger,
	}
	if idx.logger == nil {
		idx.logger = log.New(io.Discard, "", 0)
	}

	if backend.Exists(snapshotName) {
		data, err := backend.Read(snapshotName)
		if err != nil {
			return nil, err
		}
		header, vectorBlob, graphBlob, metadataBlob, err := persistence.DecodeSnapshot(data)
		if err != nil {
			return nil, err
		}

		idx.cfg.Dim = int(header.Dim)
		idx.cfg.M = int(header.M)
		idx.cfg.M0 = int(header.M0)
		idx.cfg.EfConstruction = int(header.EfConstruction)
		idx.cfg.EfSearch = int(header.EfSearch)
		idx.cfg.BQEnabled = header.Flags&persistence.FlagBQPresent != 0
		if header.Flags&persistence.FlagSQ8Present != 0 {
			idx.cfg.Quantization = vectorstore.SQ8
		}
		if err := idx.cfg.Validate(); err != nil {
			return nil, err
		}
		if header.VersionMinor < persistence.CurrentVersionMinor {
			idx.logf("loaded snapshot at older minor version %d (reader is %d)", header.VersionMinor, persistence.CurrentVersionMinor)
		}

		idx.storage = decodeVectorBlob(idx.cfg.Dim, vectorBlob)
		idx.metaStore = decodeMetadataBlob(metadataBlob)
		if err := decodeShapeBlob(idx, graphBlob); err != nil {
			return nil, err
		}
		if idx.cfg.BQEnabled && idx.cfg.Shape == ShapeHNSW {
			idx.rebuildBQCodes()
		}
	} else {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		idx.cfg = cfg
		idx.storage = vectorstore.New(idx.cfg.Dim, idx.cfg.Quantization)
		idx.metaStore = metadata.New()
		if err := idx.initShape(); err != nil {
			return nil, err
		}
	}

	idx.governor = memguard.New(memguardConfigFrom(idx.cfg))
	idx.planCache = filter.NewPlanCache(idx.cfg.PlanCacheSize, time.Duration(idx.cfg.PlanCacheTTLMs)*time.Millisecond)

	records, err := persistence.ReplayWAL(idx.walPath)
	if err != nil {
		return nil, fmt.Errorf("edgevec: replay wal: %w", err)
	}
	if len(records) > 0 {
		idx.logf("replaying %d wal records", len(records))
	}
	for _, rec := range records {
		if err := idx.applyWALRecord(rec); err != nil {
			return nil, fmt.Errorf("edgevec: apply wal record: %w", err)
		}
	}

	wal, err := persistence.OpenWAL(idx.walPath)
	if err != nil {
		return nil, err
	}
	idx.wal = wal

	return idx, nil
}

func (idx *Index) initShape() error {
	switch idx.cfg.Shape {
	case ShapeHNSW:
		g, err := hnsw.New(hnsw.Config{
			Dim: idx.cfg.Dim, Metric: idx.cfg.Metric, M: idx.cfg.M, M0: idx.cfg.M0,
			EfConstruction: idx.cfg.EfConstruction, EfSearch: idx.cfg.EfSearch,
		}, idx.storage)
		if err != nil {
			return err
		}
		idx.graph = g
		idx.shape = hnswShape{g}
	case ShapeFlat:
		f, err := flatindex.New(idx.cfg.Dim, idx.cfg.Metric, idx.storage)
		if err != nil {
			return err
		}
		idx.flat = f
		idx.shape = flatShape{f}
	case ShapeBinaryFlat:
		bf, err := flatindex.NewBinary(idx.cfg.Dim)
		if err != nil {
			return err
		}
		idx.binFlat = bf
		idx.shape = binaryFlatShape{bf}
	default:
		return fmt.Errorf("edgevec: unknown index shape %d", idx.cfg.Shape)
	}
	return nil
}

func (idx *Index) rebuildBQCodes() {
	_, _, _, _, slots := idx.storage.Export()
	codes := make([][]uint64, len(slots))
	for i, sl := range slots {
		codes[i] = bq.Encode(sl.Data)
	}
	idx.bqCodes = codes
}

func (idx *Index) logf(format string, args ...interface{}) {
	idx.logger.Printf(format, args...)
}

func memguardConfigFrom(cfg Config) memguard.Config {
	c := memguard.DefaultConfig(cfg.MemoryBudgetBytes)
	c.WarningThreshold = cfg.MemoryWarning
	c.CriticalThreshold = cfg.MemoryCritical
	c.BlockInsertsAtCritical = cfg.BlockInsertsAtCritical
	c.CompactionTombstoneThreshold = cfg.CompactionThreshold
	return c
}

// applyWALRecord replays one record during Open, after a snapshot (or
// a fresh empty index) is already in place but before the WAL is
// reopened for new appends.
func (idx *Index) applyWALRecord(rec persistence.Record) error {
	switch rec.Op {
	case persistence.OpInsert:
		vec := decodeVectorPayload(rec.Payload, idx.cfg.Dim)
		id, err := idx.storage.Insert(vec)
		if err != nil {
			return err
		}
		if uint32(id) != rec.VectorID {
			return fmt.Errorf("%w: wal replay id mismatch, got %d want %d", ErrInternal, id, rec.VectorID)
		}
		return idx.applyShapeInsert(id, vec)
	case persistence.OpInsertMetadata:
		return idx.metaStore.Put(rec.VectorID, decodeMetadataPayload(rec.Payload))
	case persistence.OpSoftDelete:
		if _, err := idx.storage.MarkDeleted(vectorstore.VectorId(rec.VectorID)); err != nil {
			return err
		}
		_, err := idx.shape.SoftDelete(vectorstore.VectorId(rec.VectorID))
		return err
	case persistence.OpCheckpoint:
		return nil
	default:
		return fmt.Errorf("%w: unknown wal op %d", ErrInternal, rec.Op)
	}
}

// applyShapeInsert mutates the selected index shape for a freshly
// stored vector. Handled by an explicit switch rather than through
// shapeIndex because BinaryFlatIndex.Insert assigns its own id (it
// takes a packed code, not a VectorId) and HNSW additionally maintains
// the BQ side-index here.
func (idx *Index) applyShapeInsert(id vectorstore.VectorId, vec []float32) error {
	switch idx.cfg.Shape {
	case ShapeHNSW:
		if err := idx.graph.Insert(id); err != nil {
			return err
		}
		if idx.cfg.BQEnabled {
			idx.bqCodes = append(idx.bqCodes, bq.Encode(vec))
		}
		return nil
	case ShapeFlat:
		return idx.flat.Insert(id)
	case ShapeBinaryFlat:
		_, err := idx.binFlat.Insert(bq.Encode(vec))
		return err
	default:
		return fmt.Errorf("edgevec: unknown index shape %d", idx.cfg.Shape)
	}
}

// Insert stores vec and returns its freshly assigned VectorId.
func (idx *Index) Insert(vec []float32) (VectorId, error) {
	return idx.insert(vec, nil)
}

// InsertWithMetadata stores vec together with meta, validated against
// metadata's key/type grammar before anything is written.
func (idx *Index) InsertWithMetadata(vec []float32, meta metadata.Record) (VectorId, error) {
	if err := metadata.ValidateRecord(meta); err != nil {
		return 0, err
	}
	return idx.insert(vec, meta)
}

// walAppend frames rec into the WAL, fsyncing per the configured sync
// policy. A nil WAL (in-memory index from New) is a no-op.
func (idx *Index) walAppend(rec persistence.Record) error {
	if idx.wal == nil {
		return nil
	}
	if err := idx.wal.Append(rec); err != nil {
		return err
	}
	if idx.cfg.WALSyncOnAppend {
		return idx.wal.Sync()
	}
	return nil
}

// insert orchestrates admission, WAL append, storage write, shape
// mutate, and metadata write in that fixed order, so a
// crash between any two steps leaves a WAL record a replay can finish
// applying.
func (idx *Index) insert(vec []float32, meta metadata.Record) (VectorId, error) {
	if len(vec) != idx.cfg.Dim {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), idx.cfg.Dim)
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return 0, ErrInvalidVector
		}
	}
	if !idx.governor.AdmitInsert(idx.memoryEstimate()) {
		return 0, ErrMemoryCritical
	}

	id := vectorstore.VectorId(idx.storage.Total())
	if err := idx.walAppend(persistence.Record{Op: persistence.OpInsert, VectorID: uint32(id), Payload: encodeVectorPayload(vec)}); err != nil {
		return 0, fmt.Errorf("edgevec: wal append insert: %w", err)
	}

	gotID, err := idx.storage.Insert(vec)
	if err != nil {
		return 0, err
	}
	if gotID != id {
		return 0, fmt.Errorf("%w: storage assigned id %d, expected %d", ErrInternal, gotID, id)
	}

	if err := idx.applyShapeInsert(id, vec); err != nil {
		return 0, err
	}

	if meta != nil {
		if err := idx.walAppend(persistence.Record{Op: persistence.OpInsertMetadata, VectorID: uint32(id), Payload: encodeMetadataPayload(meta)}); err != nil {
			return 0, fmt.Errorf("edgevec: wal append metadata: %w", err)
		}
		if err := idx.metaStore.Put(uint32(id), meta); err != nil {
			return 0, err
		}
	}

	return id, nil
}

// BatchInsert stores every vector in vecs, in order, returning one
// VectorId per input. If an insert
// partway through fails, BatchInsert returns the ids successfully
// assigned so far alongside the error.
func (idx *Index) BatchInsert(vecs [][]float32, progress ProgressCallback) ([]VectorId, error) {
	if len(vecs) == 0 {
		return nil, ErrEmptyBatch
	}
	ids := make([]VectorId, 0, len(vecs))
	for i, vec := range vecs {
		id, err := idx.insert(vec, nil)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
		if progress != nil {
			progress(i+1, len(vecs))
		}
	}
	return ids, nil
}

// Search runs a k-NN query against the selected index shape.
func (idx *Index) Search(query []float32, k int) ([]SearchResult, error) {
	if len(query) != idx.cfg.Dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), idx.cfg.Dim)
	}
	for _, v := range query {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, ErrInvalidVector
		}
	}
	if k <= 0 {
		return nil, nil
	}
	return idx.shape.Search(query, k)
}

// SearchWithFilter runs a k-NN query restricted to vectors whose
// metadata matches exprSrc, selecting an integration strategy
// (All/Empty/Prefilter/Postfilter/Hybrid) from estimated selectivity.
func (idx *Index) SearchWithFilter(query []float32, k int, exprSrc string) ([]FilteredResult, error) {
	if len(query) != idx.cfg.Dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), idx.cfg.Dim)
	}
	for _, v := range query {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, ErrInvalidVector
		}
	}
	if k <= 0 {
		return nil, nil
	}

	expr, err := filter.ParseCached(idx.planCache, exprSrc)
	if err != nil {
		return nil, err
	}

	selectivity := idx.estimateSelectivity(expr)
	fastMembershipFits := idx.storage.LiveCount() <= 4*idx.cfg.PlanCacheSize
	plan := filter.Select(expr, selectivity, fastMembershipFits, idx.cfg.FilterSelector)

	switch plan.Strategy {
	case filter.StrategyEmpty:
		return nil, nil
	case filter.StrategyAll:
		results, err := idx.shape.Search(query, k)
		if err != nil {
			return nil, err
		}
		return idx.attachMetadata(results), nil
	case filter.StrategyPrefilter:
		return idx.searchPrefilter(query, k, plan.Expr)
	case filter.StrategyPostfilter:
		return idx.searchPostfilter(query, k, plan.Expr, plan.Oversample)
	case filter.StrategyHybrid:
		return idx.searchHybrid(query, k, plan.Expr)
	default:
		return nil, fmt.Errorf("%w: unknown filter strategy %d", ErrInternal, plan.Strategy)
	}
}

// estimateSelectivity is the strategy selector's "Auto" input: the
// fraction of live vectors whose metadata currently matches expr. A
// full metadata scan is O(live_count), acceptable since it replaces an
// otherwise-unbounded k-NN oversample guess; there is no secondary
// index structure to make this sub-linear.
func (idx *Index) estimateSelectivity(expr filter.Expr) float64 {
	total := idx.storage.LiveCount()
	if total == 0 {
		return 0
	}
	pass := 0
	idx.metaStore.Each(func(id uint32, rec metadata.Record) {
		if deleted, err := idx.storage.IsDeleted(vectorstore.VectorId(id)); err != nil || deleted {
			return
		}
		if filter.Evaluate(expr, rec) {
			pass++
		}
	})
	return float64(pass) / float64(total)
}

func (idx *Index) passFunc(expr filter.Expr) func(vectorstore.VectorId) bool {
	return func(id vectorstore.VectorId) bool {
		rec, _ := idx.metaStore.Get(uint32(id))
		return filter.Evaluate(expr, rec)
	}
}

func (idx *Index) attachMetadata(results []SearchResult) []FilteredResult {
	out := make([]FilteredResult, len(results))
	for i, r := range results {
		rec, _ := idx.metaStore.Get(uint32(r.ID))
		out[i] = FilteredResult{ID: r.ID, Distance: r.Distance, Metadata: rec}
	}
	return out
}

// searchPrefilter builds the passing-id subset first by scanning
// metadata, then brute-force scores only that subset: exact, used when
// the predicate is estimated highly selective.
func (idx *Index) searchPrefilter(query []float32, k int, expr filter.Expr) ([]FilteredResult, error) {
	pass := idx.passFunc(expr)
	distFunc, err := distance.Func(idx.cfg.Metric, idx.cfg.Dim)
	if err != nil {
		return nil, err
	}

	var cands []SearchResult
	idx.storage.Each(func(id vectorstore.VectorId, vec []float32) {
		if !pass(id) {
			return
		}
		cands = append(cands, SearchResult{ID: id, Distance: distFunc(query, vec)})
	})
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Distance != cands[j].Distance {
			return cands[i].Distance < cands[j].Distance
		}
		return cands[i].ID < cands[j].ID
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	return idx.attachMetadata(cands), nil
}

// searchPostfilter runs unfiltered search with an oversampled k, then
// discards results that fail expr: used when the predicate is
// estimated to pass most vectors, so oversampling rarely needs to
// reach deep into the candidate list.
func (idx *Index) searchPostfilter(query []float32, k int, expr filter.Expr, oversample float64) ([]FilteredResult, error) {
	kPrime := int(math.Ceil(float64(k) * oversample))
	if kPrime < k {
		kPrime = k
	}
	if total := idx.storage.Total(); kPrime > total {
		kPrime = total
	}
	raw, err := idx.shape.Search(query, kPrime)
	if err != nil {
		return nil, err
	}
	pass := idx.passFunc(expr)
	out := make([]FilteredResult, 0, k)
	for _, r := range raw {
		if !pass(r.ID) {
			continue
		}
		rec, _ := idx.metaStore.Get(uint32(r.ID))
		out = append(out, FilteredResult{ID: r.ID, Distance: r.Distance, Metadata: rec})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

// searchHybrid evaluates expr in-loop during HNSW expansion
// (hnsw.Graph.SearchFiltered): non-matching nodes are still traversed
// for navigation but never occupy a results slot. Flat/BinaryFlat
// shapes have no traversal to hook a predicate into, so Hybrid
// degrades to Postfilter with a generous oversample for them.
func (idx *Index) searchHybrid(query []float32, k int, expr filter.Expr) ([]FilteredResult, error) {
	if idx.graph == nil {
		return idx.searchPostfilter(query, k, expr, idx.cfg.FilterSelector.MaxOversample)
	}
	pass := idx.passFunc(expr)
	raw, err := idx.graph.SearchFiltered(query, k, pass)
	if err != nil {
		return nil, err
	}
	out := make([]FilteredResult, len(raw))
	for i, r := range raw {
		rec, _ := idx.metaStore.Get(uint32(r.ID))
		out[i] = FilteredResult{ID: r.ID, Distance: r.Distance, Metadata: rec}
	}
	return out, nil
}

// codeOf resolves a VectorId's packed BQ code for hnsw.Graph.SearchBQ.
func (idx *Index) codeOf(id hnsw.VectorId) ([]uint64, error) {
	if int(id) >= len(idx.bqCodes) {
		return nil, ErrInvalidId
	}
	return idx.bqCodes[id], nil
}

// SearchBQ runs EdgeVec's bq_raw search variant: Hamming distance over
// packed binary codes, navigating the same HNSW topology as Search.
// Requires Config.BQEnabled and Config.Shape == ShapeHNSW.
func (idx *Index) SearchBQ(query []float32, k int) ([]SearchResult, error) {
	if !idx.cfg.BQEnabled || idx.graph == nil {
		return nil, ErrBQNotEnabled
	}
	if len(query) != idx.cfg.Dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), idx.cfg.Dim)
	}
	ef := idx.cfg.EfSearch
	if k > ef {
		ef = k
	}
	raw, err := idx.graph.SearchBQ(bq.Encode(query), idx.codeOf, k, ef)
	if err != nil {
		return nil, err
	}
	return fromHnswResults(raw), nil
}

// SearchBQRescored retrieves k*factor candidates via SearchBQ, then
// recomputes exact distances against the configured metric and
// truncates back to k. A large enough factor makes the candidate set
// contain the true top-k, at which point recall is exact.
func (idx *Index) SearchBQRescored(query []float32, k int, factor float64) ([]SearchResult, error) {
	if factor < 1 {
		factor = 1
	}
	kPrime := int(math.Ceil(float64(k) * factor))
	if kPrime < k {
		kPrime = k
	}
	raw, err := idx.SearchBQ(query, kPrime)
	if err != nil {
		return nil, err
	}

	distFunc, err := distance.Func(idx.cfg.Metric, idx.cfg.Dim)
	if err != nil {
		return nil, err
	}
	rescored := make([]SearchResult, 0, len(raw))
	for _, r := range raw {
		vec, err := idx.storage.Read(r.ID)
		if err != nil {
			continue
		}
		rescored = append(rescored, SearchResult{ID: r.ID, Distance: distFunc(query, vec)})
	}
	sort.Slice(rescored, func(i, j int) bool {
		if rescored[i].Distance != rescored[j].Distance {
			return rescored[i].Distance < rescored[j].Distance
		}
		return rescored[i].ID < rescored[j].ID
	})
	if len(rescored) > k {
		rescored = rescored[:k]
	}
	return rescored, nil
}

// SoftDelete tombstones id, returning whether it was previously live.
// A second call on an already-deleted id is a no-op returning false,
// never an error.
func (idx *Index) SoftDelete(id VectorId) (bool, error) {
	deleted, err := idx.storage.IsDeleted(id)
	if err != nil {
		return false, err
	}
	if deleted {
		return false, nil
	}

	if err := idx.walAppend(persistence.Record{Op: persistence.OpSoftDelete, VectorID: uint32(id)}); err != nil {
		return false, fmt.Errorf("edgevec: wal append delete: %w", err)
	}
	if _, err := idx.storage.MarkDeleted(id); err != nil {
		return false, err
	}
	if _, err := idx.shape.SoftDelete(id); err != nil {
		return false, err
	}
	return true, nil
}

// IsDeleted reports whether id is tombstoned.
func (idx *Index) IsDeleted(id VectorId) (bool, error) { return idx.storage.IsDeleted(id) }

// LiveCount returns the number of non-tombstoned vectors.
func (idx *Index) LiveCount() int { return idx.storage.LiveCount() }

// DeletedCount returns the number of tombstoned vectors.
func (idx *Index) DeletedCount() int { return idx.storage.DeletedCount() }

// TombstoneRatio returns deleted / (live + deleted), or 0 for an empty
// index.
func (idx *Index) TombstoneRatio() float64 {
	total := idx.storage.Total()
	if total == 0 {
		return 0
	}
	return float64(idx.storage.DeletedCount()) / float64(total)
}

// CompactionRecommended reports whether TombstoneRatio has crossed
// Config.CompactionThreshold.
func (idx *Index) CompactionRecommended() bool {
	return idx.governor.CompactionRecommended(int64(idx.storage.LiveCount()), int64(idx.storage.DeletedCount()))
}

// Compact rebuilds a fresh storage/shape/metadata set from only the
// live vectors, reinserting each in its current iteration order (so
// ids may differ from before compaction) and discards
// the old ones, truncating the WAL since every pre-compaction record
// now refers to ids the rebuilt store no longer has.
func (idx *Index) Compact(progress ProgressCallback) (CompactionResult, error) {
	start := time.Now()

	newStorage := vectorstore.New(idx.cfg.Dim, idx.cfg.Quantization)
	newMeta := metadata.New()
	var newGraph *hnsw.Graph
	var newFlat *flatindex.FlatIndex
	var newBinFlat *flatindex.BinaryFlatIndex
	var newShape shapeIndex
	var newBqCodes [][]uint64

	switch idx.cfg.Shape {
	case ShapeHNSW:
		g, err := hnsw.New(hnsw.Config{
			Dim: idx.cfg.Dim, Metric: idx.cfg.Metric, M: idx.cfg.M, M0: idx.cfg.M0,
			EfConstruction: idx.cfg.EfConstruction, EfSearch: idx.cfg.EfSearch,
		}, newStorage)
		if err != nil {
			return CompactionResult{}, err
		}
		newGraph = g
		newShape = hnswShape{g}
	case ShapeFlat:
		f, err := flatindex.New(idx.cfg.Dim, idx.cfg.Metric, newStorage)
		if err != nil {
			return CompactionResult{}, err
		}
		newFlat = f
		newShape = flatShape{f}
	case ShapeBinaryFlat:
		bf, err := flatindex.NewBinary(idx.cfg.Dim)
		if err != nil {
			return CompactionResult{}, err
		}
		newBinFlat = bf
		newShape = binaryFlatShape{bf}
	}

	total := idx.storage.LiveCount()
	done := 0
	var firstErr error
	idx.storage.Each(func(oldID vectorstore.VectorId, vec []float32) {
		if firstErr != nil {
			return
		}
		cp := append([]float32(nil), vec...)
		newID, err := newStorage.Insert(cp)
		if err != nil {
			firstErr = fmt.Errorf("%w: compaction re-insert: %v", ErrInternal, err)
			return
		}
		switch idx.cfg.Shape {
		case ShapeHNSW:
			if err := newGraph.Insert(newID); err != nil {
				firstErr = fmt.Errorf("%w: compaction graph insert: %v", ErrInternal, err)
				return
			}
			if idx.cfg.BQEnabled {
				newBqCodes = append(newBqCodes, bq.Encode(cp))
			}
		case ShapeFlat:
			if err := newFlat.Insert(newID); err != nil {
				firstErr = fmt.Errorf("%w: compaction flat insert: %v", ErrInternal, err)
				return
			}
		case ShapeBinaryFlat:
			if _, err := newBinFlat.Insert(bq.Encode(cp)); err != nil {
				firstErr = fmt.Errorf("%w: compaction binary insert: %v", ErrInternal, err)
				return
			}
		}
		if rec, ok := idx.metaStore.Get(uint32(oldID)); ok {
			_ = newMeta.Put(uint32(newID), rec)
		}
		done++
		if progress != nil {
			progress(done, total)
		}
	})
	if firstErr != nil {
		return CompactionResult{}, firstErr
	}

	removed := idx.storage.DeletedCount()
	idx.storage = newStorage
	idx.metaStore = newMeta
	idx.graph = newGraph
	idx.flat = newFlat
	idx.binFlat = newBinFlat
	idx.shape = newShape
	idx.bqCodes = newBqCodes

	if idx.wal != nil {
		if err := idx.wal.Close(); err != nil {
			return CompactionResult{}, fmt.Errorf("edgevec: close wal for compaction: %w", err)
		}
		if err := persistence.TruncateWAL(idx.walPath); err != nil {
			return CompactionResult{}, fmt.Errorf("edgevec: truncate wal after compaction: %w", err)
		}
		wal, err := persistence.OpenWAL(idx.walPath)
		if err != nil {
			return CompactionResult{}, fmt.Errorf("edgevec: reopen wal after compaction: %w", err)
		}
		idx.wal = wal
	}

	result := CompactionResult{
		TombstonesRemoved: removed,
		NewSize:           newStorage.LiveCount(),
		DurationMs:        time.Since(start).Milliseconds(),
	}
	idx.logf("compaction removed %d tombstones, new size %d, took %dms", result.TombstonesRemoved, result.NewSize, result.DurationMs)
	return result, nil
}

func (idx *Index) memoryEstimate() int64 {
	var avgLevel float64
	if idx.graph != nil {
		avgLevel = idx.graph.AvgLevel()
	}
	quant := memguard.QuantizationNone
	if idx.cfg.Quantization == vectorstore.SQ8 {
		quant = memguard.QuantizationSQ8
	}
	return memguard.Estimate(memguard.Inputs{
		LiveCount:     int64(idx.storage.LiveCount()),
		DeletedCount:  int64(idx.storage.DeletedCount()),
		Dim:           int64(idx.cfg.Dim),
		Quantization:  quant,
		M:             int64(idx.cfg.M),
		AvgLevel:      avgLevel,
		MetadataBytes: idx.metaStore.MemoryBytesEstimate(),
	})
}

// MemoryPressure reports the governor's current level against the
// configured budget.
func (idx *Index) MemoryPressure() MemoryPressure {
	est := idx.memoryEstimate()
	status := idx.governor.Status(est)
	var percent float64
	if status.BudgetBytes > 0 {
		percent = float64(status.EstimateBytes) / float64(status.BudgetBytes) * 100
	}
	return MemoryPressure{Level: status.Level, Used: status.EstimateBytes, Total: status.BudgetBytes, Percent: percent}
}

// Stats bundles the individual accessors into one read-only snapshot.
func (idx *Index) Stats() CollectionStats {
	return CollectionStats{
		LiveCount:           idx.storage.LiveCount(),
		DeletedCount:        idx.storage.DeletedCount(),
		TombstoneRatio:      idx.TombstoneRatio(),
		MemoryBytesEstimate: idx.memoryEstimate(),
		Dim:                 idx.cfg.Dim,
		Metric:              idx.cfg.Metric,
		BQEnabled:           idx.cfg.BQEnabled,
		Quantization:        idx.cfg.Quantization,
	}
}

// Save writes a fresh snapshot to the index's backend and truncates
// its WAL. Only valid for an Index created with Open; an in-memory
// Index from New has no backend to write to.
func (idx *Index) Save() error {
	if idx.backend == nil {
		return ErrNoBackend
	}

	vectorBlob := encodeVectorBlob(idx.storage)
	graphBlob := encodeShapeBlob(idx)
	metadataBlob := encodeMetadataBlob(idx.metaStore)

	var flags uint32
	if idx.cfg.BQEnabled {
		flags |= persistence.FlagBQPresent
	}
	if idx.cfg.Quantization == vectorstore.SQ8 {
		flags |= persistence.FlagSQ8Present
	}

	header := persistence.SnapshotHeader{
		Flags:          flags,
		Dim:            uint32(idx.cfg.Dim),
		M:              uint32(idx.cfg.M),
		M0:             uint32(idx.cfg.M0),
		EfConstruction: uint32(idx.cfg.EfConstruction),
		EfSearch:       uint32(idx.cfg.EfSearch),
		VectorCount:    uint32(idx.storage.Total()),
		DeletedCount:   uint32(idx.storage.DeletedCount()),
	}
	data := persistence.EncodeSnapshot(header, vectorBlob, graphBlob, metadataBlob, idx.cfg.CompressSnapshots)
	if err := idx.backend.WriteAtomic(snapshotName, data); err != nil {
		return fmt.Errorf("edgevec: save snapshot: %w", err)
	}
	idx.logf("saved snapshot: %d live, %d deleted", idx.storage.LiveCount(), idx.storage.DeletedCount())

	if idx.wal != nil {
		if err := idx.wal.Close(); err != nil {
			return fmt.Errorf("edgevec: close wal after save: %w", err)
		}
		if err := persistence.TruncateWAL(idx.walPath); err != nil {
			return fmt.Errorf("edgevec: truncate wal after save: %w", err)
		}
		wal, err := persistence.OpenWAL(idx.walPath)
		if err != nil {
			return fmt.Errorf("edgevec: reopen wal after save: %w", err)
		}
		idx.wal = wal
	}
	return nil
}

// Drop closes the index's WAL and removes its backing directory
// entirely. Only valid for an Index created with Open.
func (idx *Index) Drop() error {
	if idx.wal != nil {
		if err := idx.wal.Close(); err != nil {
			return fmt.Errorf("edgevec: close wal for drop: %w", err)
		}
	}
	if idx.dir == "" {
		return nil
	}
	if err := os.RemoveAll(idx.dir); err != nil {
		return fmt.Errorf("edgevec: drop: %w", err)
	}
	return nil
}
