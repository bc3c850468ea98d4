// Package bufpool provides sync.Pool-backed scratch buffers for EdgeVec's
// search hot path: a visited-set map for pkg/hnsw's search_layer and a
// uint32 candidate-id scratch slice for pkg/flatindex's BinaryFlatIndex
// scan. A float32 slice pool is provided as well; no package in this
// module draws from it.
package bufpool

import "sync"

// Config controls whether pooling is active and how large a returned
// buffer may be before Put declines to keep it (oversized buffers are
// simply discarded rather than retained, to bound pool memory).
type Config struct {
	Enabled    bool
	MaxBufSize int
}

var globalConfig = Config{
	Enabled:    true,
	MaxBufSize: 1 << 16,
}

// Configure sets global pool configuration. Intended to be called once
// during index construction, before any search runs.
func Configure(cfg Config) {
	globalConfig = cfg
}

// IsEnabled reports whether pooling is currently active.
func IsEnabled() bool { return globalConfig.Enabled }

var float32Pool = sync.Pool{
	New: func() any {
		return make([]float32, 0, 256)
	},
}

var uint32Pool = sync.Pool{
	New: func() any {
		return make([]uint32, 0, 256)
	},
}

var visitedPool = sync.Pool{
	New: func() any {
		return make(map[uint32]struct{}, 256)
	},
}

// GetFloat32 returns a zero-length []float32 with spare capacity, ready
// for append. Callers must return it with PutFloat32 when done.
func GetFloat32() []float32 {
	if !globalConfig.Enabled {
		return nil
	}
	return float32Pool.Get().([]float32)[:0]
}

// PutFloat32 returns buf to the pool, unless it has grown past MaxBufSize.
func PutFloat32(buf []float32) {
	if !globalConfig.Enabled || cap(buf) > globalConfig.MaxBufSize {
		return
	}
	float32Pool.Put(buf) //nolint:staticcheck // intentionally pooling a slice header
}

// GetUint32 returns a zero-length []uint32 with spare capacity.
func GetUint32() []uint32 {
	if !globalConfig.Enabled {
		return nil
	}
	return uint32Pool.Get().([]uint32)[:0]
}

// PutUint32 returns buf to the pool, unless it has grown past MaxBufSize.
func PutUint32(buf []uint32) {
	if !globalConfig.Enabled || cap(buf) > globalConfig.MaxBufSize {
		return
	}
	uint32Pool.Put(buf) //nolint:staticcheck
}

// GetVisited returns an empty visited-set map for search_layer's
// dedup bookkeeping.
func GetVisited() map[uint32]struct{} {
	if !globalConfig.Enabled {
		return make(map[uint32]struct{}, 256)
	}
	m := visitedPool.Get().(map[uint32]struct{})
	for k := range m {
		delete(m, k)
	}
	return m
}

// PutVisited returns a visited-set map to the pool.
func PutVisited(m map[uint32]struct{}) {
	if !globalConfig.Enabled || len(m) > globalConfig.MaxBufSize {
		return
	}
	visitedPool.Put(m)
}
