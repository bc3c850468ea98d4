package hnsw

import "github.com/edgevec/edgevec/pkg/bufpool"

// bufpoolVisited/bufpoolPutVisited borrow search_layer's per-call visited
// set from the shared scratch-buffer pool instead of allocating a fresh
// map on every expansion, the same way pkg/flatindex reuses pkg/bufpool's
// id-slice pool for its brute-force scan buffer.
func bufpoolVisited() map[uint32]struct{} {
	return bufpool.GetVisited()
}

func bufpoolPutVisited(m map[uint32]struct{}) {
	bufpool.PutVisited(m)
}
