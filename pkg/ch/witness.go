package ch

import (
	"math"

	"github.com/azybler/chroute/pkg/graph"
)

// Default witness search limits. A search that gives up early only costs
// extra shortcuts, never correctness.
const (
	defaultWitnessSettles = 500
	defaultWitnessHops    = 5
)

const unreached = float32(math.MaxFloat32)

type witnessItem struct {
	node graph.VertexID
	dist float32
	hops int
}

// witnessHeap is a binary min-heap on dist.
type witnessHeap struct {
	items []witnessItem
}

func (h *witnessHeap) Len() int { return len(h.items) }

func (h *witnessHeap) Push(node graph.VertexID, dist float32, hops int) {
	h.items = append(h.items, witnessItem{node: node, dist: dist, hops: hops})
	i := len(h.items) - 1
	x := h.items[i]
	for i > 0 {
		p := (i - 1) / 2
		if h.items[p].dist <= x.dist {
			break
		}
		h.items[i] = h.items[p]
		i = p
	}
	h.items[i] = x
}

func (h *witnessHeap) Pop() witnessItem {
	top := h.items[0]
	last := len(h.items) - 1
	x := h.items[last]
	h.items = h.items[:last]
	if last == 0 {
		return top
	}

	i := 0
	for {
		c := 2*i + 1
		if c >= last {
			break
		}
		if c+1 < last && h.items[c+1].dist < h.items[c].dist {
			c++
		}
		if x.dist <= h.items[c].dist {
			break
		}
		h.items[i] = h.items[c]
		i = c
	}
	h.items[i] = x
	return top
}

// witness runs bounded Dijkstra searches that ignore one vertex. Its
// distance array is reused across searches and reset through touched.
type witness struct {
	maxSettles int
	maxHops    int

	dist    []float32
	touched []graph.VertexID
	heap    witnessHeap
}

func newWitness(size, maxSettles, maxHops int) *witness {
	if maxSettles <= 0 {
		maxSettles = defaultWitnessSettles
	}
	if maxHops <= 0 {
		maxHops = defaultWitnessHops
	}
	w := &witness{
		maxSettles: maxSettles,
		maxHops:    maxHops,
		dist:       make([]float32, size),
		heap:       witnessHeap{items: make([]witnessItem, 0, 256)},
	}
	for i := range w.dist {
		w.dist[i] = unreached
	}
	return w
}

// distTo is the distance found by the last search, unreached if none.
func (w *witness) distTo(v graph.VertexID) float32 { return w.dist[v] }

func (w *witness) relax(v graph.VertexID, d float32, hops int) {
	if d >= w.dist[v] {
		return
	}
	if w.dist[v] == unreached {
		w.touched = append(w.touched, v)
	}
	w.dist[v] = d
	w.heap.Push(v, d, hops)
}

// search computes distances from source over uncontracted vertices other
// than skip, up to limit. One search serves every outgoing neighbour of the
// vertex being contracted.
func (w *witness) search(outAdj [][]adjEntry, source, skip graph.VertexID, limit float32, contracted []bool) {
	for _, v := range w.touched {
		w.dist[v] = unreached
	}
	w.touched = w.touched[:0]
	w.heap.items = w.heap.items[:0]

	w.relax(source, 0, 0)
	for settled := 0; w.heap.Len() > 0; {
		cur := w.heap.Pop()
		if cur.dist > w.dist[cur.node] {
			continue
		}
		if settled++; settled >= w.maxSettles {
			return
		}
		if cur.hops >= w.maxHops {
			continue
		}
		for _, e := range outAdj[cur.node] {
			if e.to == skip || contracted[e.to] {
				continue
			}
			if d := cur.dist + e.weight; d <= limit {
				w.relax(e.to, d, cur.hops+1)
			}
		}
	}
}
