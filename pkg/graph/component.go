package graph

// UnionFind implements a disjoint-set data structure with path compression
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte
	size   []uint32
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range n {
		parent[i] = i
		size[i] = 1
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
		size:   size,
	}
}

// Find returns the representative of the set containing x, with path halving.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}

	// Union by rank.
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// LargestComponent returns the vertices belonging to the largest weakly
// connected component, in ascending order.
func LargestComponent(g *MemoryGraph) []VertexID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := uint32(len(g.coords))
	if n <= 1 {
		return nil
	}

	// Slot 0 is the unused NoVertex entry and stays a singleton.
	uf := NewUnionFind(n)
	for u := uint32(1); u < n; u++ {
		for _, a := range g.arcs[u] {
			uf.Union(u, uint32(a.target))
		}
	}

	bestRoot := uint32(0)
	bestSize := uint32(0)
	for i := uint32(1); i < n; i++ {
		root := uf.Find(i)
		if uf.size[root] > bestSize {
			bestRoot = root
			bestSize = uf.size[root]
		}
	}

	vertices := make([]VertexID, 0, bestSize)
	for i := uint32(1); i < n; i++ {
		if uf.Find(i) == bestRoot {
			vertices = append(vertices, VertexID(i))
		}
	}
	return vertices
}

// FilterToComponent creates a new graph containing only the given vertices,
// renumbered densely in the order given. Arcs leaving the set are dropped.
func FilterToComponent(g *MemoryGraph, vertices []VertexID) (*MemoryGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := NewMemoryGraph()
	if len(vertices) == 0 {
		return out, nil
	}

	oldToNew := make(map[VertexID]VertexID, len(vertices))
	for _, old := range vertices {
		oldToNew[old] = out.AddVertex(g.coords[old])
	}

	for _, old := range vertices {
		for _, a := range g.arcs[old] {
			to, ok := oldToNew[a.target]
			if !ok {
				continue
			}
			data := a.data
			if data.ContractedID != NoVertex {
				via, ok := oldToNew[data.ContractedID]
				if !ok {
					continue
				}
				data.ContractedID = via
			}
			if err := out.AddArc(oldToNew[old], to, data, a.shape); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
