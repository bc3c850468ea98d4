package hnsw

// NodeSnapshot is the exported view of one graph node's topology, the
// unit pkg/persistence serializes into a snapshot's graph blob. It
// carries no byte-layout opinion of its own; that belongs to the
// caller encoding it.
type NodeSnapshot struct {
	Level     int
	Deleted   bool
	Neighbors [][]VectorId
}

// Export returns the graph's configuration and every node's topology
// in VectorId order, along with entry-point/max-level/deleted-count
// bookkeeping, so a caller can serialize the whole graph without
// reaching into its unexported fields.
func (g *Graph) Export() (cfg Config, nodes []NodeSnapshot, entryPoint int64, maxLevel int, deletedCount int) {
	nodes = make([]NodeSnapshot, len(g.nodes))
	for i, n := range g.nodes {
		neighbors := make([][]VectorId, len(n.neighbors))
		for l, nb := range n.neighbors {
			cp := make([]VectorId, len(nb))
			copy(cp, nb)
			neighbors[l] = cp
		}
		nodes[i] = NodeSnapshot{Level: n.level, Deleted: n.deleted, Neighbors: neighbors}
	}
	return g.cfg, nodes, g.entryPoint, g.maxLevel, g.deletedCount
}

// Restore rebuilds a graph directly from a previously Exported
// topology, bypassing Insert's incremental construction entirely.
// Used when loading a snapshot, where the topology already exists and
// only needs to be replayed verbatim over the freshly loaded source.
func Restore(cfg Config, source VectorSource, nodes []NodeSnapshot, entryPoint int64, maxLevel, deletedCount int) (*Graph, error) {
	g, err := New(cfg, source)
	if err != nil {
		return nil, err
	}
	g.nodes = make([]node, len(nodes))
	for i, n := range nodes {
		neighbors := make([][]VectorId, len(n.Neighbors))
		for l, nb := range n.Neighbors {
			cp := make([]VectorId, len(nb))
			copy(cp, nb)
			neighbors[l] = cp
		}
		g.nodes[i] = node{level: n.Level, deleted: n.Deleted, neighbors: neighbors}
	}
	g.entryPoint = entryPoint
	g.maxLevel = maxLevel
	g.deletedCount = deletedCount
	return g, nil
}
