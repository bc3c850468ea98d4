// Package hnsw implements the hierarchical navigable small-world graph
// EdgeVec uses for approximate nearest-neighbor search: insert, search,
// soft delete, and the search_layer primitive they share.
//
// Node identity is a VectorId (an index into pkg/vectorstore), not a
// pointer, which keeps the graph position-independent and trivially
// serializable. The graph owns topology exclusively; it never owns
// vector bytes, always reaching through a VectorSource (satisfied
// directly by *vectorstore.VectorStorage) to fetch coordinates when it
// needs them.
package hnsw

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/edgevec/edgevec/pkg/bq"
	"github.com/edgevec/edgevec/pkg/distance"
	"github.com/edgevec/edgevec/pkg/vectorstore"
)

// VectorId aliases vectorstore's handle type so callers never need to
// import both packages just to pass ids around.
type VectorId = vectorstore.VectorId

// Re-exported sentinels: the graph surfaces the same error kinds
// VectorStorage does for the inputs they share (dimension, finiteness,
// unknown id), rather than defining parallel ones.
var (
	ErrDimensionMismatch = vectorstore.ErrDimensionMismatch
	ErrInvalidVector     = vectorstore.ErrInvalidVector
	ErrInvalidId         = vectorstore.ErrInvalidId
)

// ErrInternal marks a graph-invariant violation discovered at runtime:
// always an implementation bug, never a recoverable input error.
var ErrInternal = errors.New("hnsw: internal invariant violation")

// maxSafeLevel bounds the level-assignment draw so a pathological
// near-zero random sample can't allocate an unbounded neighbor-list
// slice.
const maxSafeLevel = 32

// VectorSource supplies the float32 coordinates behind a VectorId.
// *vectorstore.VectorStorage satisfies this directly.
type VectorSource interface {
	Read(id VectorId) ([]float32, error)
}

// Config holds HNSW construction and search parameters.
type Config struct {
	Dim            int
	Metric         distance.Metric
	M              int // upper-layer connectivity, default 16
	M0             int // base-layer connectivity, default 2*M
	EfConstruction int // candidate width during build, default 200
	EfSearch       int // candidate width during search, default 50
}

// DefaultConfig returns the standard HNSW defaults for the given
// dimension and metric.
func DefaultConfig(dim int, metric distance.Metric) Config {
	return Config{
		Dim:            dim,
		Metric:         metric,
		M:              16,
		M0:             32,
		EfConstruction: 200,
		EfSearch:       50,
	}
}

func (c Config) levelMultiplier() float64 {
	m := c.M
	if m < 2 {
		m = 2
	}
	return 1.0 / math.Log(float64(m))
}

// Result is one element of a search result set.
type Result struct {
	ID       VectorId
	Distance float64
}

type node struct {
	level     int
	neighbors [][]VectorId // neighbors[l] has len <= M0 (l==0) or M (l>0)
	deleted   bool
}

// Graph is EdgeVec's HNSW index. It is not safe for concurrent use
// without external locking; the façade serializes all access.
type Graph struct {
	cfg      Config
	distFunc distance.VectorFunc
	source   VectorSource

	nodes        []node
	entryPoint   int64 // -1 means empty graph
	maxLevel     int
	deletedCount int
}

// New creates an empty graph over source using cfg. source is typically
// the same *vectorstore.VectorStorage the façade already holds; the
// graph never copies vector bytes itself.
func New(cfg Config, source VectorSource) (*Graph, error) {
	distFunc, err := distance.Func(cfg.Metric, cfg.Dim)
	if err != nil {
		return nil, fmt.Errorf("hnsw: %w", err)
	}
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.M0 <= 0 {
		cfg.M0 = 2 * cfg.M
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 50
	}
	return &Graph{
		cfg:        cfg,
		distFunc:   distFunc,
		source:     source,
		entryPoint: -1,
	}, nil
}

// distSource answers "distance from some fixed reference point to id".
// Insert uses the new node's own vector as the reference; Search uses the
// query vector; SearchBQ uses a packed query code compared by Hamming.
// Abstracting over the reference point is what lets search_layer and the
// greedy descent be shared by all three call sites untouched.
type distSource func(id VectorId) (float64, error)

func (g *Graph) randomLevel() int {
	level := int(-math.Log(rand.Float64()) * g.cfg.levelMultiplier())
	if level > maxSafeLevel {
		level = maxSafeLevel
	}
	return level
}

// Insert adds id (already assigned and stored in source) to the graph.
// Callers must insert ids in the same monotonic order VectorStorage
// assigns them; Insert asserts this via ErrInternal rather than silently
// growing a sparse slice.
func (g *Graph) Insert(id VectorId) error {
	if int(id) != len(g.nodes) {
		return fmt.Errorf("%w: graph expects ids inserted in storage order, got %d with %d nodes present", ErrInternal, id, len(g.nodes))
	}
	vec, err := g.source.Read(id)
	if err != nil {
		return err
	}

	level := g.randomLevel()
	ds := distSource(func(other VectorId) (float64, error) {
		ov, err := g.source.Read(other)
		if err != nil {
			return 0, err
		}
		return g.distFunc(vec, ov), nil
	})

	if g.entryPoint < 0 {
		g.nodes = append(g.nodes, node{level: level, neighbors: make([][]VectorId, level+1)})
		g.entryPoint = int64(id)
		g.maxLevel = level
		return nil
	}

	ep := VectorId(g.entryPoint)
	epLevel := g.nodes[ep].level
	for l := epLevel; l > level; l-- {
		var err error
		ep, err = g.greedyDescend(ds, ep, l)
		if err != nil {
			return err
		}
	}

	g.nodes = append(g.nodes, node{level: level, neighbors: make([][]VectorId, level+1)})

	top := level
	if epLevel < top {
		top = epLevel
	}
	for l := top; l >= 0; l-- {
		cands, err := g.searchLayer(ds, ep, g.cfg.EfConstruction, l, nil)
		if err != nil {
			return err
		}
		quota := g.quotaForLayer(l)
		neighbors := g.selectNeighborsHeuristic(cands, quota)
		g.nodes[id].neighbors[l] = neighbors

		for _, nb := range neighbors {
			if err := g.addBackEdge(nb, id, l); err != nil {
				return err
			}
		}
		if len(cands) > 0 {
			ep = cands[0].id
		}
	}

	if level > g.maxLevel {
		g.entryPoint = int64(id)
		g.maxLevel = level
	}
	return nil
}

func (g *Graph) quotaForLayer(layer int) int {
	if layer == 0 {
		return g.cfg.M0
	}
	return g.cfg.M
}

func (g *Graph) distBetween(a, b VectorId) (float64, error) {
	va, err := g.source.Read(a)
	if err != nil {
		return 0, err
	}
	vb, err := g.source.Read(b)
	if err != nil {
		return 0, err
	}
	return g.distFunc(va, vb), nil
}

// addBackEdge links nb -> newID at layer, re-applying the heuristic
// pruning rule locally if nb's neighbor list at layer overflows its
// quota as a result.
func (g *Graph) addBackEdge(nb, newID VectorId, layer int) error {
	if layer >= len(g.nodes[nb].neighbors) {
		return fmt.Errorf("%w: back-edge target %d has no layer %d", ErrInternal, nb, layer)
	}
	quota := g.quotaForLayer(layer)
	existing := g.nodes[nb].neighbors[layer]
	if len(existing) < quota {
		g.nodes[nb].neighbors[layer] = append(existing, newID)
		return nil
	}

	all := make([]VectorId, 0, len(existing)+1)
	all = append(all, existing...)
	all = append(all, newID)

	cands := make([]candidate, 0, len(all))
	for _, cid := range all {
		d, err := g.distBetween(nb, cid)
		if err != nil {
			return err
		}
		cands = append(cands, candidate{id: cid, dist: d})
	}
	g.nodes[nb].neighbors[layer] = g.selectNeighborsHeuristic(cands, quota)
	return nil
}

// selectNeighborsHeuristic implements the diversity pruning rule: keep a
// candidate only if it is closer to the reference point than to every
// already-selected neighbor, falling back to pure-closest to fill any
// remaining quota.
func (g *Graph) selectNeighborsHeuristic(cands []candidate, quota int) []VectorId {
	if len(cands) <= quota {
		ids := make([]VectorId, len(cands))
		for i, c := range cands {
			ids[i] = c.id
		}
		return ids
	}

	sorted := make([]candidate, len(cands))
	copy(sorted, cands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].dist < sorted[j].dist })

	selected := make([]candidate, 0, quota)
	for _, c := range sorted {
		if len(selected) >= quota {
			break
		}
		good := true
		for _, s := range selected {
			d, err := g.distBetween(c.id, s.id)
			if err == nil && d < c.dist {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, c)
		}
	}
	if len(selected) < quota {
		have := make(map[VectorId]struct{}, len(selected))
		for _, s := range selected {
			have[s.id] = struct{}{}
		}
		for _, c := range sorted {
			if len(selected) >= quota {
				break
			}
			if _, ok := have[c.id]; ok {
				continue
			}
			selected = append(selected, c)
		}
	}

	ids := make([]VectorId, len(selected))
	for i, s := range selected {
		ids[i] = s.id
	}
	return ids
}

func (g *Graph) greedyDescend(ds distSource, entry VectorId, layer int) (VectorId, error) {
	current := entry
	currentDist, err := ds(current)
	if err != nil {
		return 0, err
	}
	for {
		changed := false
		if layer >= len(g.nodes[current].neighbors) {
			break
		}
		for _, nb := range g.nodes[current].neighbors[layer] {
			d, err := ds(nb)
			if err != nil {
				return 0, err
			}
			if d < currentDist {
				current = nb
				currentDist = d
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return current, nil
}

// Search runs a k-NN query against the base layer, descending greedily
// through upper layers first. Deleted nodes are excluded from the
// result set but still traversed for connectivity; when the tombstone
// ratio is nonzero, ef is widened internally to keep recall stable.
func (g *Graph) Search(query []float32, k int) ([]Result, error) {
	if len(query) != g.cfg.Dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), g.cfg.Dim)
	}
	for _, v := range query {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, ErrInvalidVector
		}
	}
	if g.entryPoint < 0 || k <= 0 {
		return nil, nil
	}

	ds := distSource(func(id VectorId) (float64, error) {
		v, err := g.source.Read(id)
		if err != nil {
			return 0, err
		}
		return g.distFunc(query, v), nil
	})

	ep := VectorId(g.entryPoint)
	var err error
	for l := g.maxLevel; l > 0; l-- {
		ep, err = g.greedyDescend(ds, ep, l)
		if err != nil {
			return nil, err
		}
	}

	ef := g.widenedEf(k)
	cands, err := g.searchLayer(ds, ep, ef, 0, nil)
	if err != nil {
		return nil, err
	}
	return g.finalizeResults(cands, k), nil
}

// SearchFiltered runs the in-loop (hybrid) filter strategy: pass is
// evaluated during expansion, so nodes failing it are still used for
// navigation but never occupy a results slot. Deleted nodes are always
// excluded regardless of pass.
func (g *Graph) SearchFiltered(query []float32, k int, pass func(VectorId) bool) ([]Result, error) {
	if len(query) != g.cfg.Dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), g.cfg.Dim)
	}
	for _, v := range query {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, ErrInvalidVector
		}
	}
	if g.entryPoint < 0 || k <= 0 {
		return nil, nil
	}

	ds := distSource(func(id VectorId) (float64, error) {
		v, err := g.source.Read(id)
		if err != nil {
			return 0, err
		}
		return g.distFunc(query, v), nil
	})

	ep := VectorId(g.entryPoint)
	var err error
	for l := g.maxLevel; l > 0; l-- {
		ep, err = g.greedyDescend(ds, ep, l)
		if err != nil {
			return nil, err
		}
	}

	ef := g.widenedEf(k)
	combined := func(id VectorId) bool {
		if g.nodes[id].deleted {
			return false
		}
		return pass(id)
	}
	cands, err := g.searchLayer(ds, ep, ef, 0, combined)
	if err != nil {
		return nil, err
	}
	return g.finalizeResults(cands, k), nil
}

// SearchBQ navigates the same topology as Search but compares nodes by
// Hamming distance over packed binary codes instead of the graph's
// configured metric: the fast, lower-recall first pass that rescored
// search refines. codeOf resolves a node's packed binary code; the
// façade supplies one backed by its BQ side-store.
func (g *Graph) SearchBQ(queryCode []uint64, codeOf func(VectorId) ([]uint64, error), k, ef int) ([]Result, error) {
	if g.entryPoint < 0 || k <= 0 {
		return nil, nil
	}
	ds := distSource(func(id VectorId) (float64, error) {
		code, err := codeOf(id)
		if err != nil {
			return 0, err
		}
		h, err := bq.Hamming(queryCode, code)
		if err != nil {
			return 0, err
		}
		return float64(h), nil
	})

	ep := VectorId(g.entryPoint)
	var err error
	for l := g.maxLevel; l > 0; l-- {
		ep, err = g.greedyDescend(ds, ep, l)
		if err != nil {
			return nil, err
		}
	}
	if ef < k {
		ef = k
	}
	cands, err := g.searchLayer(ds, ep, ef, 0, nil)
	if err != nil {
		return nil, err
	}
	return g.finalizeResults(cands, k), nil
}

func (g *Graph) widenedEf(k int) int {
	ef := g.cfg.EfSearch
	if k > ef {
		ef = k
	}
	total := g.liveAndDeleted()
	if total > 0 && g.deletedCount > 0 {
		ratio := float64(g.deletedCount) / float64(total)
		if ratio > 0 && ratio < 1 {
			widened := int(float64(ef) / (1 - ratio))
			if widened > ef {
				ef = widened
			}
		}
	}
	return ef
}

func (g *Graph) finalizeResults(cands []candidate, k int) []Result {
	results := make([]Result, 0, len(cands))
	for _, c := range cands {
		if g.nodes[c.id].deleted {
			continue
		}
		results = append(results, Result{ID: c.id, Distance: c.dist})
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
	return results
}

func (g *Graph) liveAndDeleted() int { return len(g.nodes) }

// SoftDelete sets id's tombstone bit. Idempotent: returns false on a
// second call. Edges into and out of id are left untouched so the graph
// stays connected for other nodes' traversals.
func (g *Graph) SoftDelete(id VectorId) (bool, error) {
	if int(id) >= len(g.nodes) {
		return false, ErrInvalidId
	}
	if g.nodes[id].deleted {
		return false, nil
	}
	g.nodes[id].deleted = true
	g.deletedCount++

	if g.entryPoint == int64(id) {
		g.reassignEntryPoint()
	}
	return true, nil
}

func (g *Graph) reassignEntryPoint() {
	best := -1
	bestLevel := -1
	for i := range g.nodes {
		if g.nodes[i].deleted {
			continue
		}
		if g.nodes[i].level > bestLevel {
			bestLevel = g.nodes[i].level
			best = i
		}
	}
	if best < 0 {
		g.entryPoint = -1
		g.maxLevel = 0
		return
	}
	g.entryPoint = int64(best)
	g.maxLevel = bestLevel
}

// IsDeleted reports whether id's tombstone bit is set.
func (g *Graph) IsDeleted(id VectorId) (bool, error) {
	if int(id) >= len(g.nodes) {
		return false, ErrInvalidId
	}
	return g.nodes[id].deleted, nil
}

// LiveCount returns the number of non-tombstoned nodes.
func (g *Graph) LiveCount() int { return len(g.nodes) - g.deletedCount }

// DeletedCount returns the number of tombstoned nodes.
func (g *Graph) DeletedCount() int { return g.deletedCount }

// Len returns the total number of nodes ever inserted.
func (g *Graph) Len() int { return len(g.nodes) }

// EntryPoint returns the current entry point id and whether the graph is
// non-empty.
func (g *Graph) EntryPoint() (VectorId, bool) {
	if g.entryPoint < 0 {
		return 0, false
	}
	return VectorId(g.entryPoint), true
}

// MaxLevel returns the highest layer any live node currently occupies.
func (g *Graph) MaxLevel() int { return g.maxLevel }

// AvgLevel returns the mean level across live nodes, the avgLevel term
// pkg/memguard's graphBytes estimate multiplies by M.
func (g *Graph) AvgLevel() float64 {
	live := g.LiveCount()
	if live == 0 {
		return 0
	}
	var sum int
	for i := range g.nodes {
		if g.nodes[i].deleted {
			continue
		}
		sum += g.nodes[i].level
	}
	return float64(sum) / float64(live)
}

// MemoryBytesEstimate counts the neighbor-list entries of every live
// node across all layers and multiplies by sizeof(VectorId). It measures
// the actual edges rather than evaluating pkg/memguard's
// liveCount * (m0 + avgLevel*m) formula.
func (g *Graph) MemoryBytesEstimate() int64 {
	const vectorIdSize = 4
	var edges int64
	for i := range g.nodes {
		if g.nodes[i].deleted {
			continue
		}
		for _, layer := range g.nodes[i].neighbors {
			edges += int64(len(layer))
		}
	}
	return edges * vectorIdSize
}
