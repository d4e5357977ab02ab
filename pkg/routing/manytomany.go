package routing

import (
	"context"
	"math"
	"time"

	"github.com/azybler/chroute/pkg/graph"
)

// buckets maps a vertex to the backward weights with which each target's
// search settled it.
type buckets map[graph.VertexID]map[int]float64

func (b buckets) add(v graph.VertexID, target int, weight float64) {
	m := b[v]
	if m == nil {
		m = make(map[int]float64)
		b[v] = m
	}
	if w, ok := m[target]; !ok || weight < w {
		m[target] = weight
	}
}

// CalculateManyToManyWeight returns the shortest path weight from every
// source to every target. Unreachable pairs hold +Inf.
//
// One backward search per target fills the buckets; one forward search per
// source then reads the buckets of every vertex it settles.
func (r *Router) CalculateManyToManyWeight(ctx context.Context, srcs, dsts []ResolvedPoint) (weights [][]float64, err error) {
	start, settled := time.Now(), 0
	defer func() { observeQuery(opManyToMany, start, settled, err, true) }()

	if len(srcs) == 0 || len(dsts) == 0 {
		return nil, invalid("%d sources, %d targets", len(srcs), len(dsts))
	}
	for _, s := range srcs {
		if err := r.checkSeeds(s.Out, "source"); err != nil {
			return nil, err
		}
	}
	for _, d := range dsts {
		if err := r.checkSeeds(d.In, "target"); err != nil {
			return nil, err
		}
	}

	b := make(buckets)
	for j, dst := range dsts {
		bwd := newFrontier(false)
		bwd.seed(dst.In)
		n, err := r.exhaust(ctx, bwd, func(seg *PathSegment) {
			b.add(seg.Vertex, j, seg.Weight)
		})
		settled += n
		if err != nil {
			return nil, err
		}
	}

	weights = make([][]float64, len(srcs))
	for i, src := range srcs {
		row := make([]float64, len(dsts))
		for j, dst := range dsts {
			row[j] = alongArc(src, dst)
			if src.Equal(dst) {
				row[j] = 0
			}
		}

		fwd := newFrontier(true)
		fwd.seed(src.Out)
		n, err := r.exhaustUntil(ctx, fwd, func(seg *PathSegment) {
			for j, w := range b[seg.Vertex] {
				row[j] = min(row[j], seg.Weight+w)
			}
		}, func(frontierMin float64) bool {
			return final(row, frontierMin)
		})
		settled += n
		if err != nil {
			return nil, err
		}
		weights[i] = row
	}
	return weights, nil
}

// final reports whether no entry of row can still improve: every entry is at
// most the smallest weight left in the forward queue.
func final(row []float64, frontierMin float64) bool {
	for _, w := range row {
		if w > frontierMin {
			return false
		}
	}
	return true
}

// exhaust runs f until its queue is empty, calling visit for every settled
// segment.
func (r *Router) exhaust(ctx context.Context, f *frontier, visit func(*PathSegment)) (int, error) {
	return r.exhaustUntil(ctx, f, visit, nil)
}

// exhaustUntil is exhaust with an early stop consulted before each pop.
func (r *Router) exhaustUntil(ctx context.Context, f *frontier, visit func(*PathSegment), done func(frontierMin float64) bool) (int, error) {
	settled := 0
	for {
		next := f.min()
		if math.IsInf(next, 1) {
			return settled, nil
		}
		if done != nil && done(next) {
			return settled, nil
		}
		if r.exhausted(opManyToMany, settled) {
			return settled, nil
		}
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		seg := f.next()
		if seg == nil {
			return settled, nil
		}
		settled++
		visit(seg)
		if err := r.relaxUpward(f, seg, math.Inf(1)); err != nil {
			return settled, err
		}
	}
}
