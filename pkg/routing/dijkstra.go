package routing

import (
	"math"

	"github.com/azybler/chroute/pkg/graph"
)

// MinHeap is a concrete-typed min-heap for Dijkstra priority queue.
// Avoids interface boxing overhead of container/heap.
type MinHeap struct {
	items []PQItem
}

// PQItem is a priority queue entry.
type PQItem struct {
	Node graph.VertexID
	Dist float64
}

func (h *MinHeap) Len() int { return len(h.items) }

func (h *MinHeap) Push(node graph.VertexID, dist float64) {
	h.items = append(h.items, PQItem{node, dist})
	h.siftUp(len(h.items) - 1)
}

func (h *MinHeap) Pop() PQItem {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

// Peek returns the smallest entry without removing it. The heap must not be
// empty.
func (h *MinHeap) Peek() PQItem { return h.items[0] }

func (h *MinHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[i].Dist >= h.items[parent].Dist {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *MinHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2
		if left < n && h.items[left].Dist < h.items[smallest].Dist {
			smallest = left
		}
		if right < n && h.items[right].Dist < h.items[smallest].Dist {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// frontier is one side of a search. A vertex is queued while it has an entry
// in best that is not yet settled, and settled once popped and expanded. A
// settled vertex reached again with a strictly lower weight is queued and
// settled again.
type frontier struct {
	forward bool
	pq      MinHeap
	best    map[graph.VertexID]*PathSegment
	settled map[graph.VertexID]*PathSegment
	seeds   map[graph.VertexID]bool
}

func newFrontier(forward bool) *frontier {
	return &frontier{
		forward: forward,
		pq:      MinHeap{items: make([]PQItem, 0, 64)},
		best:    make(map[graph.VertexID]*PathSegment),
		settled: make(map[graph.VertexID]*PathSegment),
		seeds:   make(map[graph.VertexID]bool),
	}
}

// seed queues the seeds of a resolved point.
func (f *frontier) seed(seeds []Seed) {
	for _, s := range seeds {
		f.seeds[s.Vertex] = true
		f.offer(&PathSegment{Vertex: s.Vertex, Weight: s.Weight})
	}
}

// offer queues seg unless its vertex already has a path at least as cheap.
func (f *frontier) offer(seg *PathSegment) bool {
	if cur, ok := f.best[seg.Vertex]; ok && cur.Weight <= seg.Weight {
		return false
	}
	f.best[seg.Vertex] = seg
	f.pq.Push(seg.Vertex, seg.Weight)
	return true
}

// next pops the next vertex to settle, skipping stale queue entries. It
// returns nil when the queue is exhausted.
func (f *frontier) next() *PathSegment {
	for f.pq.Len() > 0 {
		item := f.pq.Pop()
		seg := f.best[item.Node]
		if seg == nil || item.Dist > seg.Weight {
			continue // stale entry
		}
		if done, ok := f.settled[item.Node]; ok && done.Weight <= seg.Weight {
			continue
		}
		f.settled[item.Node] = seg
		return seg
	}
	return nil
}

// min returns the smallest live queued weight, +Inf when empty.
func (f *frontier) min() float64 {
	for f.pq.Len() > 0 {
		top := f.pq.Peek()
		seg := f.best[top.Node]
		if seg != nil && top.Dist <= seg.Weight {
			if done, ok := f.settled[top.Node]; !ok || done.Weight > seg.Weight {
				return top.Dist
			}
		}
		f.pq.Pop()
	}
	return math.Inf(1)
}
