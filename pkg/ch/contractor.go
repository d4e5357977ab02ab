// Package ch builds contraction hierarchies: it orders vertices by
// importance, contracts them while inserting shortcuts that preserve
// shortest-path weights, and lays the result out as upward arcs.
package ch

import (
	"container/heap"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
)

// defaultMaxShortcutsPerNode is the limit on shortcuts a single contraction can create.
// Nodes exceeding this form an uncontracted "core" at the top of the hierarchy.
const defaultMaxShortcutsPerNode = 1000

// Options tunes contraction.
type Options struct {
	// MaxShortcutsPerNode stops contraction when the next vertex would need
	// more shortcuts. Zero means 1000.
	MaxShortcutsPerNode int
	// CoreSize stops contraction once this many vertices remain.
	CoreSize int
	// WitnessSettles and WitnessHops bound each witness search. Zero means
	// 500 settled vertices and 5 hops.
	WitnessSettles int
	WitnessHops    int
	Logger         *zap.Logger
}

// Stats summarizes a contraction run.
type Stats struct {
	Vertices   int
	BaseEdges  int
	Shortcuts  int
	Contracted int
	Core       int
}

// adjEntry represents an edge in the mutable adjacency list.
type adjEntry struct {
	to     graph.VertexID
	weight float32
	via    graph.VertexID // graph.NoVertex for base edges
	base   int32          // index into baseEdges, -1 for shortcuts
}

// baseEdge keeps the attributes of an input edge, oriented from -> to.
type baseEdge struct {
	from, to    graph.VertexID
	weight      float32
	tagsRef     uint32
	tagsForward bool
	meta        uint8
	shape       []geo.Coord
}

// Contract performs Contraction Hierarchies preprocessing on g and returns a
// graph with the same vertices whose arcs point upward in the hierarchy.
func Contract(g graph.Reader, opts Options) (*graph.MemoryGraph, Stats, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxShortcuts := opts.MaxShortcutsPerNode
	if maxShortcuts <= 0 {
		maxShortcuts = defaultMaxShortcutsPerNode
	}

	count, err := g.VertexCount()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("vertex count: %w", err)
	}
	n := graph.VertexID(count)

	// Step 1: Collect directed base edges, keeping the cheapest per pair.
	edges, coords, err := collect(g, n)
	if err != nil {
		return nil, Stats{}, err
	}

	// Build mutable forward and reverse adjacency lists.
	outAdj := make([][]adjEntry, n+1)
	inAdj := make([][]adjEntry, n+1)
	for i, e := range edges {
		outAdj[e.from] = append(outAdj[e.from], adjEntry{to: e.to, weight: e.weight, base: int32(i)})
		inAdj[e.to] = append(inAdj[e.to], adjEntry{to: e.from, weight: e.weight, base: int32(i)})
	}

	contracted := make([]bool, n+1)
	rank := make([]uint32, n+1)
	contractedNeighbors := make([]int, n+1)
	level := make([]int, n+1)

	// Initialize priority queue with all nodes.
	pq := make(priorityQueue, n)
	for v := graph.VertexID(1); v <= n; v++ {
		pq[v-1] = &pqEntry{
			node:     v,
			priority: computePriority(outAdj, inAdj, v, contracted, contractedNeighbors[v], level[v]),
			index:    int(v - 1),
		}
	}
	heap.Init(&pq)

	ws := newWitness(int(n)+1, opts.WitnessSettles, opts.WitnessHops)

	log.Info("starting contraction", zap.Uint32("vertices", count), zap.Int("edges", len(edges)))

	stats := Stats{Vertices: int(n), BaseEdges: len(edges)}
	order := uint32(0)

	for pq.Len() > 0 {
		if opts.CoreSize > 0 && int(n)-int(order) <= opts.CoreSize {
			break
		}

		// Pop minimum-priority node.
		entry := heap.Pop(&pq).(*pqEntry)
		node := entry.node

		if contracted[node] {
			continue
		}

		// Lazy update: recompute priority and re-insert if it changed.
		newPriority := computePriority(outAdj, inAdj, node, contracted, contractedNeighbors[node], level[node])
		if newPriority > entry.priority && pq.Len() > 0 && newPriority > pq[0].priority {
			entry.priority = newPriority
			heap.Push(&pq, entry)
			continue
		}

		// Find shortcuts needed using batch witness search.
		shortcuts := findShortcuts(ws, outAdj, inAdj, node, contracted)

		// If contracting this node would produce too many shortcuts,
		// stop contraction entirely. Remaining nodes form a "core"
		// at the top of the hierarchy with their edges preserved.
		if len(shortcuts) > maxShortcuts {
			log.Info("stopping contraction",
				zap.Uint32("vertex", uint32(node)),
				zap.Int("shortcuts", len(shortcuts)),
				zap.Int("limit", maxShortcuts),
				zap.Uint32("core", uint32(n)-order))
			break
		}

		// Contract this node.
		contracted[node] = true
		order++
		rank[node] = order
		for _, sc := range shortcuts {
			if addShortcut(outAdj, inAdj, sc, node) {
				stats.Shortcuts++
			}
		}

		// Update neighbors' contracted neighbor count and level.
		for _, adj := range [][]adjEntry{outAdj[node], inAdj[node]} {
			for _, e := range adj {
				if !contracted[e.to] {
					contractedNeighbors[e.to]++
					level[e.to] = max(level[e.to], level[node]+1)
				}
			}
		}

		if remaining := uint32(n) - order; order%logInterval(remaining) == 0 {
			log.Info("contraction progress",
				zap.Uint32("contracted", order),
				zap.Uint32("vertices", count),
				zap.Int("shortcuts", stats.Shortcuts))
		}
	}
	stats.Contracted = int(order)

	// Remaining vertices form the core. rank 0 marks them.
	stats.Core = int(n) - stats.Contracted

	log.Info("contraction complete",
		zap.Int("shortcuts", stats.Shortcuts),
		zap.Int("core", stats.Core))

	out, err := buildOverlay(coords, edges, outAdj, rank)
	if err != nil {
		return nil, Stats{}, err
	}
	return out, stats, nil
}

// logInterval logs more often as contraction approaches the end.
func logInterval(remaining uint32) uint32 {
	switch {
	case remaining < 1000:
		return 100
	case remaining < 10000:
		return 1000
	case remaining < 100000:
		return 10000
	}
	return 50000
}

func collect(g graph.Reader, n graph.VertexID) ([]baseEdge, []geo.Coord, error) {
	coords := make([]geo.Coord, n+1)
	best := make(map[[2]graph.VertexID]int)
	var edges []baseEdge

	add := func(e baseEdge) {
		key := [2]graph.VertexID{e.from, e.to}
		if i, ok := best[key]; ok {
			if e.weight < edges[i].weight {
				edges[i] = e
			}
			return
		}
		best[key] = len(edges)
		edges = append(edges, e)
	}

	for u := graph.VertexID(1); u <= n; u++ {
		c, ok, err := g.GetVertex(u)
		if err != nil {
			return nil, nil, fmt.Errorf("vertex %d: %w", u, err)
		}
		if !ok {
			return nil, nil, fmt.Errorf("vertex %d: %w", u, graph.ErrInvalidVertex)
		}
		coords[u] = c

		arcs, err := g.GetEdges(u)
		if err != nil {
			return nil, nil, fmt.Errorf("edges of %d: %w", u, err)
		}
		for _, a := range arcs {
			if a.Data.IsShortcut() || a.Target == u || a.Target > n {
				continue
			}
			shape, err := a.Shape()
			if err != nil {
				return nil, nil, fmt.Errorf("shape of %d->%d: %w", u, a.Target, err)
			}
			d := a.Data
			if d.Forward() {
				add(baseEdge{from: u, to: a.Target, weight: d.ForwardWeight, tagsRef: d.TagsRef, tagsForward: d.TagsForward, meta: d.Meta, shape: shape})
			}
			if d.Backward() {
				rev := slices.Clone(shape)
				slices.Reverse(rev)
				add(baseEdge{from: a.Target, to: u, weight: d.BackwardWeight, tagsRef: d.TagsRef, tagsForward: !d.TagsForward, meta: d.Meta, shape: rev})
			}
		}
	}
	return edges, coords, nil
}

// shortcut represents a shortcut edge to be added.
type shortcut struct {
	from, to graph.VertexID
	weight   float32
}

// addShortcut inserts sc unless an edge at least as cheap exists. A more
// expensive shortcut between the same pair is replaced in place.
func addShortcut(outAdj, inAdj [][]adjEntry, sc shortcut, via graph.VertexID) bool {
	replaced := false
	for i := range outAdj[sc.from] {
		e := &outAdj[sc.from][i]
		if e.to != sc.to {
			continue
		}
		if e.weight <= sc.weight {
			return false
		}
		if e.base < 0 && !replaced {
			e.weight, e.via = sc.weight, via
			replaced = true
		}
	}
	if replaced {
		for i := range inAdj[sc.to] {
			e := &inAdj[sc.to][i]
			if e.to == sc.from && e.base < 0 {
				e.weight, e.via = sc.weight, via
				break
			}
		}
		return true
	}
	outAdj[sc.from] = append(outAdj[sc.from], adjEntry{to: sc.to, weight: sc.weight, via: via, base: -1})
	inAdj[sc.to] = append(inAdj[sc.to], adjEntry{to: sc.from, weight: sc.weight, via: via, base: -1})
	return true
}

// findShortcuts returns the shortcuts needed to contract node, running one
// witness search per incoming neighbour.
func findShortcuts(ws *witness, outAdj, inAdj [][]adjEntry, node graph.VertexID, contracted []bool) []shortcut {
	// Collect active incoming and outgoing neighbors.
	var incoming []adjEntry
	for _, e := range inAdj[node] {
		if !contracted[e.to] {
			incoming = append(incoming, e)
		}
	}

	var outgoing []adjEntry
	for _, e := range outAdj[node] {
		if !contracted[e.to] {
			outgoing = append(outgoing, e)
		}
	}

	if len(incoming) == 0 || len(outgoing) == 0 {
		return nil
	}

	var shortcuts []shortcut

	for _, in := range incoming {
		// Find max outgoing weight for upper bound of this batch search.
		maxOut := float32(-1)
		for _, out := range outgoing {
			if out.to != in.to && out.weight > maxOut {
				maxOut = out.weight
			}
		}
		if maxOut < 0 {
			continue // all outgoing go back to in.to
		}

		ws.search(outAdj, in.to, node, in.weight+maxOut, contracted)

		for _, out := range outgoing {
			if out.to == in.to {
				continue // skip self-loops
			}

			scWeight := in.weight + out.weight

			// A witness path at least as good as the shortcut makes it
			// unnecessary.
			if ws.distTo(out.to) > scWeight {
				shortcuts = append(shortcuts, shortcut{
					from:   in.to,
					to:     out.to,
					weight: scWeight,
				})
			}
		}
	}

	return shortcuts
}

// computePriority returns the priority for a node (lower = contract first).
func computePriority(outAdj, inAdj [][]adjEntry, node graph.VertexID, contracted []bool, contractedNeighbors, level int) int {
	// Count active incoming/outgoing edges.
	activeIn := 0
	for _, e := range inAdj[node] {
		if !contracted[e.to] {
			activeIn++
		}
	}
	activeOut := 0
	for _, e := range outAdj[node] {
		if !contracted[e.to] {
			activeOut++
		}
	}

	// Worst-case shortcut count. A witness search per candidate would be
	// more accurate but the ordering only needs a rough estimate.
	edgeDifference := activeIn*activeOut - (activeIn + activeOut)

	return edgeDifference + 2*contractedNeighbors + level
}

// buildOverlay lays out every edge as stored arcs. An edge touching a
// contracted vertex is stored once at its lower ranked endpoint pointing
// up; an edge between two core vertices is stored at both endpoints.
func buildOverlay(coords []geo.Coord, edges []baseEdge, outAdj [][]adjEntry, rank []uint32) (*graph.MemoryGraph, error) {
	out := graph.NewMemoryGraph()
	for _, c := range coords[1:] {
		out.AddVertex(c)
	}

	// Core vertices (rank 0) sit above every contracted vertex.
	higher := func(a, b graph.VertexID) bool {
		ra, rb := rank[a], rank[b]
		if ra == 0 {
			return false
		}
		return rb == 0 || ra < rb
	}

	for u := range outAdj {
		from := graph.VertexID(u)
		for _, e := range outAdj[u] {
			data := graph.EdgeData{
				ForwardWeight:  e.weight,
				BackwardWeight: graph.NoWeight,
				ContractedID:   e.via,
				TagsForward:    true,
			}
			var shape []geo.Coord
			if e.base >= 0 {
				b := edges[e.base]
				data.TagsRef, data.TagsForward, data.Meta = b.tagsRef, b.tagsForward, b.meta
				shape = b.shape
			}

			var err error
			switch {
			case rank[from] == 0 && rank[e.to] == 0:
				data.Direction = graph.Uncontracted
				if err = out.MergeArc(from, e.to, data, shape); err == nil {
					err = out.MergeArc(e.to, from, data.Reverse(), reversed(shape))
				}
			case higher(from, e.to):
				data.Direction = graph.ToHigher
				err = out.MergeArc(from, e.to, data, shape)
			default:
				data.Direction = graph.ToLower
				rev := data.Reverse()
				err = out.MergeArc(e.to, from, rev, reversed(shape))
			}
			if err != nil {
				return nil, fmt.Errorf("overlay: %w", err)
			}
		}
	}
	return out, nil
}

func reversed(shape []geo.Coord) []geo.Coord {
	if len(shape) == 0 {
		return nil
	}
	out := slices.Clone(shape)
	slices.Reverse(out)
	return out
}

// Priority queue implementation for contraction ordering.

type pqEntry struct {
	node     graph.VertexID
	priority int
	index    int
}

type priorityQueue []*pqEntry

func (pq priorityQueue) Len() int           { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool { return pq[i].priority < pq[j].priority }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	entry := x.(*pqEntry)
	entry.index = len(*pq)
	*pq = append(*pq, entry)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*pq = old[:n-1]
	return entry
}
