package hnsw

import "container/heap"

// candidate pairs a node id with its distance from whatever reference
// point the current distSource is bound to.
type candidate struct {
	id   VectorId
	dist float64
}

// candHeap is a single heap.Interface implementation used in both min
// (expansion frontier) and max (bounded result set) modes, flipped by
// isMax rather than duplicating two near-identical heap types.
type candHeap struct {
	items []candidate
	isMax bool
}

func (h candHeap) Len() int { return len(h.items) }
func (h candHeap) Less(i, j int) bool {
	if h.isMax {
		return h.items[i].dist > h.items[j].dist
	}
	return h.items[i].dist < h.items[j].dist
}
func (h candHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *candHeap) Push(x any) { h.items = append(h.items, x.(candidate)) }

func (h *candHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

// searchLayer is the best-first frontier primitive insert and search
// share: a min-heap of candidates still to expand, a max-heap of the
// best ef candidates seen so far, and a visited set forbidding
// re-expansion. Expansion stops once the nearest unexpanded node is
// farther than the worst candidate currently held. Results are
// returned in ascending distance order.
//
// pass, when non-nil, implements in-loop filtering: a node failing pass
// is still visited and pushed onto the frontier so expansion keeps
// navigating through it, but it is never admitted into the bounded
// results heap, so it can't occupy one of the ef slots or appear in
// the final top-k.
func (g *Graph) searchLayer(ds distSource, entry VectorId, ef int, layer int, pass func(VectorId) bool) ([]candidate, error) {
	visited := bufpoolVisited()
	defer bufpoolPutVisited(visited)
	visited[uint32(entry)] = struct{}{}

	entryDist, err := ds(entry)
	if err != nil {
		return nil, err
	}

	frontier := &candHeap{isMax: false}
	heap.Init(frontier)
	heap.Push(frontier, candidate{id: entry, dist: entryDist})

	results := &candHeap{isMax: true}
	heap.Init(results)
	if pass == nil || pass(entry) {
		heap.Push(results, candidate{id: entry, dist: entryDist})
	}

	for frontier.Len() > 0 {
		closest := heap.Pop(frontier).(candidate)

		if results.Len() >= ef && closest.dist > results.items[0].dist {
			break
		}

		if layer >= len(g.nodes[closest.id].neighbors) {
			continue
		}
		for _, nb := range g.nodes[closest.id].neighbors[layer] {
			if _, seen := visited[uint32(nb)]; seen {
				continue
			}
			visited[uint32(nb)] = struct{}{}

			d, err := ds(nb)
			if err != nil {
				return nil, err
			}

			if pass != nil && !pass(nb) {
				heap.Push(frontier, candidate{id: nb, dist: d})
				continue
			}

			if results.Len() < ef || d < results.items[0].dist {
				heap.Push(frontier, candidate{id: nb, dist: d})
				heap.Push(results, candidate{id: nb, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out, nil
}
