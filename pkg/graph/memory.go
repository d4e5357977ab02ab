package graph

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/tidwall/rtree"

	"github.com/azybler/chroute/pkg/geo"
)

type memArc struct {
	target VertexID
	data   EdgeData
	shape  []geo.Coord
}

// MemoryGraph is a mutable graph held entirely in memory. Vertex ids are
// assigned densely starting at 1. Reads are safe for concurrent use once
// building has finished.
type MemoryGraph struct {
	mu      sync.RWMutex
	coords  []geo.Coord // index 0 unused
	arcs    [][]memArc
	numArcs int

	// Derived lazily on first use and dropped on mutation.
	reverse [][]VertexID
	tree    *rtree.RTreeG[VertexID]
}

// NewMemoryGraph creates an empty graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		coords: make([]geo.Coord, 1),
		arcs:   make([][]memArc, 1),
	}
}

// AddVertex appends a vertex and returns its id.
func (g *MemoryGraph) AddVertex(c geo.Coord) VertexID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.coords = append(g.coords, c)
	g.arcs = append(g.arcs, nil)
	g.invalidate()
	return VertexID(len(g.coords) - 1)
}

// AddArc stores an arc at from. The shape is ordered from source to target
// and excludes both endpoints.
func (g *MemoryGraph) AddArc(from, to VertexID, data EdgeData, shape []geo.Coord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkArc(from, to, data); err != nil {
		return err
	}
	g.arcs[from] = append(g.arcs[from], memArc{target: to, data: data, shape: shape})
	g.numArcs++
	g.invalidate()
	return nil
}

// MergeArc stores an arc at from, folding it into an existing from->to arc
// with the same contracted vertex, direction, tags and metadata. Folding
// keeps the cheaper weight per direction. When nothing matches a new arc is
// appended.
func (g *MemoryGraph) MergeArc(from, to VertexID, data EdgeData, shape []geo.Coord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkArc(from, to, data); err != nil {
		return err
	}
	for i := range g.arcs[from] {
		a := &g.arcs[from][i]
		if a.target != to || !sameKind(a.data, data) {
			continue
		}
		a.data.ForwardWeight = min(a.data.ForwardWeight, data.ForwardWeight)
		a.data.BackwardWeight = min(a.data.BackwardWeight, data.BackwardWeight)
		if a.shape == nil {
			a.shape = shape
		}
		return nil
	}
	g.arcs[from] = append(g.arcs[from], memArc{target: to, data: data, shape: shape})
	g.numArcs++
	g.invalidate()
	return nil
}

func sameKind(a, b EdgeData) bool {
	return a.ContractedID == b.ContractedID &&
		a.Direction == b.Direction &&
		a.TagsRef == b.TagsRef &&
		a.TagsForward == b.TagsForward &&
		a.Meta == b.Meta
}

func (g *MemoryGraph) checkArc(from, to VertexID, data EdgeData) error {
	n := VertexID(len(g.coords) - 1)
	if from == NoVertex || from > n {
		return fmt.Errorf("arc source %d: %w", from, ErrInvalidVertex)
	}
	if to == NoVertex || to > n {
		return fmt.Errorf("arc target %d: %w", to, ErrInvalidVertex)
	}
	if data.ContractedID > n {
		return fmt.Errorf("contracted vertex %d: %w", data.ContractedID, ErrInvalidVertex)
	}
	if err := data.Validate(); err != nil {
		return fmt.Errorf("arc %d->%d: %w", from, to, err)
	}
	return nil
}

func (g *MemoryGraph) invalidate() {
	g.reverse = nil
	g.tree = nil
}

// NumVertices returns the number of vertices.
func (g *MemoryGraph) NumVertices() uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return uint32(len(g.coords) - 1)
}

// NumArcs returns the number of stored arcs.
func (g *MemoryGraph) NumArcs() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.numArcs
}

// VertexCount implements Reader.
func (g *MemoryGraph) VertexCount() (uint32, error) {
	return g.NumVertices(), nil
}

// GetVertex implements Reader.
func (g *MemoryGraph) GetVertex(id VertexID) (geo.Coord, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if id == NoVertex || int(id) >= len(g.coords) {
		return geo.Coord{}, false, nil
	}
	return g.coords[id], true, nil
}

// GetEdges implements Reader.
func (g *MemoryGraph) GetEdges(id VertexID) ([]Arc, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if id == NoVertex || int(id) >= len(g.arcs) {
		return nil, nil
	}
	return g.edgesLocked(id), nil
}

func (g *MemoryGraph) edgesLocked(id VertexID) []Arc {
	stored := g.arcs[id]
	out := make([]Arc, len(stored))
	for i, a := range stored {
		out[i] = Arc{Target: a.target, Data: a.data}
		if len(a.shape) > 0 {
			shape := slices.Clone(a.shape)
			out[i].shape = func() ([]geo.Coord, error) { return shape, nil }
		}
	}
	return out
}

// GetReverseNeighbours implements Reader.
func (g *MemoryGraph) GetReverseNeighbours(id VertexID) ([]VertexID, error) {
	g.rlockDerived()
	defer g.mu.RUnlock()
	if id == NoVertex || int(id) >= len(g.reverse) {
		return nil, nil
	}
	return slices.Clone(g.reverse[id]), nil
}

// rlockDerived builds the reverse index and the rtree if a mutation dropped
// them, and returns holding the read lock.
func (g *MemoryGraph) rlockDerived() {
	g.mu.RLock()
	if g.reverse != nil && g.tree != nil {
		return
	}
	g.mu.RUnlock()
	g.mu.Lock()
	if g.reverse == nil {
		g.buildReverse()
	}
	if g.tree == nil {
		g.buildTree()
	}
	g.mu.Unlock()
	g.mu.RLock()
}

func (g *MemoryGraph) buildReverse() {
	g.reverse = make([][]VertexID, len(g.coords))
	for v := 1; v < len(g.arcs); v++ {
		for _, a := range g.arcs[v] {
			if !a.data.RepresentsNeighbourRelations() {
				continue
			}
			if !slices.Contains(g.reverse[a.target], VertexID(v)) {
				g.reverse[a.target] = append(g.reverse[a.target], VertexID(v))
			}
		}
	}
}

// GetEdgesInBox implements BoxReader. Base arcs stored outside the box that
// target a vertex inside it are included, reported at their storing vertex.
func (g *MemoryGraph) GetEdgesInBox(box geo.Box) ([]BoxEdge, error) {
	g.rlockDerived()
	defer g.mu.RUnlock()

	inside := make(map[VertexID]bool)
	g.tree.Search(
		[2]float64{box.Min.Lon(), box.Min.Lat()},
		[2]float64{box.Max.Lon(), box.Max.Lat()},
		func(_, _ [2]float64, v VertexID) bool {
			inside[v] = true
			return true
		},
	)
	vertices := slices.Sorted(maps.Keys(inside))

	var out []BoxEdge
	for _, v := range vertices {
		for _, a := range g.edgesLocked(v) {
			out = append(out, BoxEdge{Vertex: v, Arc: a})
		}
		for _, u := range g.reverse[v] {
			if inside[u] {
				continue
			}
			for _, a := range g.edgesLocked(u) {
				if a.Target == v && a.Data.RepresentsNeighbourRelations() {
					out = append(out, BoxEdge{Vertex: u, Arc: a})
				}
			}
		}
	}
	return out, nil
}

func (g *MemoryGraph) buildTree() {
	g.tree = new(rtree.RTreeG[VertexID])
	for v := 1; v < len(g.coords); v++ {
		p := [2]float64{float64(g.coords[v].Lon), float64(g.coords[v].Lat)}
		g.tree.Insert(p, p, VertexID(v))
	}
}
