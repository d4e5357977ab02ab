package routing

import (
	"context"
	"math"
	"time"
)

// CheckConnectivity reports whether src is connected to the rest of the
// graph: true as soon as either direction settles a vertex other than the
// seeds at weight maxWeight or more, or for maxWeight = +Inf any such vertex
// at all. maxWeight <= 0 is trivially true.
//
// Unlike route queries it walks the full base graph, using the stored base
// arcs and the reverse neighbour index, so that contracted vertices see all
// their neighbours.
func (r *Router) CheckConnectivity(ctx context.Context, src ResolvedPoint, maxWeight float64) (ok bool, err error) {
	start, settled := time.Now(), 0
	defer func() { observeQuery(opConnectivity, start, settled, err, ok) }()

	if math.IsNaN(maxWeight) {
		return false, invalid("max weight %v", maxWeight)
	}
	if err := r.checkSeeds(src.Out, "source"); err != nil {
		return false, err
	}
	if err := r.checkSeeds(src.In, "source"); err != nil {
		return false, err
	}
	if maxWeight <= 0 {
		return true, nil
	}

	fwd, bwd := newFrontier(true), newFrontier(false)
	fwd.seed(src.Out)
	bwd.seed(src.In)

	for {
		progressed := false
		for _, f := range [2]*frontier{fwd, bwd} {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			seg := f.next()
			if seg == nil {
				continue
			}
			progressed = true
			settled++

			if !f.seeds[seg.Vertex] && (math.IsInf(maxWeight, 1) || seg.Weight >= maxWeight) {
				return true, nil
			}
			// Settling that many vertices already rules out an island.
			if r.exhausted(opConnectivity, settled) {
				return true, nil
			}
			if err := r.relaxBase(f, seg); err != nil {
				return false, err
			}
		}
		if !progressed {
			return false, nil
		}
	}
}

// relaxBase offers every base-graph neighbour of seg to f: arcs stored at the
// vertex and arcs stored at its reverse neighbours.
func (r *Router) relaxBase(f *frontier, seg *PathSegment) error {
	arcs, err := r.g.GetEdges(seg.Vertex)
	if err != nil {
		return err
	}
	for _, a := range arcs {
		if a.Data.IsShortcut() {
			continue
		}
		if w, ok := a.Data.DirectionalWeight(f.forward); ok {
			f.offer(&PathSegment{Vertex: a.Target, Weight: seg.Weight + float64(w), From: seg})
		}
	}

	neighbours, err := r.g.GetReverseNeighbours(seg.Vertex)
	if err != nil {
		return err
	}
	for _, u := range neighbours {
		arcs, err := r.g.GetEdges(u)
		if err != nil {
			return err
		}
		for _, a := range arcs {
			if a.Target != seg.Vertex || a.Data.IsShortcut() {
				continue
			}
			// Stored at u, so the travel direction is flipped.
			if w, ok := a.Data.DirectionalWeight(!f.forward); ok {
				f.offer(&PathSegment{Vertex: u, Weight: seg.Weight + float64(w), From: seg})
			}
		}
	}
	return nil
}
