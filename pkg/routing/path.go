package routing

import (
	"math"
	"slices"

	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
)

// Seed is a vertex a search starts from, with the weight already spent
// reaching it from the query point.
type Seed struct {
	Vertex graph.VertexID
	Weight float64
}

// ResolvedPoint is a query location mapped onto the graph. Out seeds the
// forward search (leaving the point), In seeds the backward search
// (arriving at the point). On is set when the point lies on a base arc.
type ResolvedPoint struct {
	Coord geo.Coord
	Out   []Seed
	In    []Seed
	On    *ArcPoint
}

// ArcPoint is a position along a stored base arc.
type ArcPoint struct {
	From  graph.VertexID // vertex the arc is stored at
	To    graph.VertexID
	Data  graph.EdgeData
	Shape []geo.Coord // intermediate points, From to To
	Ratio float64     // 0 at From, 1 at To
}

// reversed returns the same position as seen on the arc stored at To.
func (a *ArcPoint) reversed() *ArcPoint {
	shape := slices.Clone(a.Shape)
	slices.Reverse(shape)
	return &ArcPoint{From: a.To, To: a.From, Data: a.Data.Reverse(), Shape: shape, Ratio: 1 - a.Ratio}
}

// alongArc returns the weight of travelling from src to dst without leaving
// the arc both lie on. It is +Inf when they lie on different arcs or the arc
// cannot be travelled in the needed direction.
func alongArc(src, dst ResolvedPoint) float64 {
	a, b := src.On, dst.On
	if a == nil || b == nil {
		return math.Inf(1)
	}
	if a.From == b.To && a.To == b.From && a.From != a.To {
		b = b.reversed()
	}
	if a.From != b.From || a.To != b.To || a.Data != b.Data {
		return math.Inf(1)
	}

	best := math.Inf(1)
	if b.Ratio >= a.Ratio {
		if w, ok := a.Data.DirectionalWeight(true); ok {
			best = float64(w) * (b.Ratio - a.Ratio)
		}
	}
	if b.Ratio <= a.Ratio {
		if w, ok := a.Data.DirectionalWeight(false); ok {
			best = min(best, float64(w)*(a.Ratio-b.Ratio))
		}
	}
	return best
}

// AtVertex resolves exactly onto v.
func AtVertex(v graph.VertexID) ResolvedPoint {
	return ResolvedPoint{
		Out: []Seed{{Vertex: v}},
		In:  []Seed{{Vertex: v}},
	}
}

// Equal reports whether p and o resolve to the same location.
func (p ResolvedPoint) Equal(o ResolvedPoint) bool {
	return p.Coord == o.Coord && slices.Equal(p.Out, o.Out) && slices.Equal(p.In, o.In)
}

// nearest returns the seed with the lowest weight.
func (p ResolvedPoint) nearest() Seed {
	best := p.Out[0]
	for _, s := range p.Out[1:] {
		if s.Weight < best.Weight {
			best = s
		}
	}
	return best
}

// PathSegment is one step of a search path. Segments are immutable once
// created; extending a path allocates a new head that shares its tail.
type PathSegment struct {
	Vertex graph.VertexID
	Weight float64
	From   *PathSegment
}

// Vertices returns the vertices from the first segment to s.
func (s *PathSegment) Vertices() []graph.VertexID {
	var out []graph.VertexID
	for seg := s; seg != nil; seg = seg.From {
		out = append(out, seg.Vertex)
	}
	slices.Reverse(out)
	return out
}

// PathEntry is a vertex on an expanded path with the cumulative weight at
// that vertex.
type PathEntry struct {
	Vertex graph.VertexID
	Weight float64
}

// Path is a route over base edges. Entries carry cumulative weights starting
// at the source seed weight; Weight also includes the final partial edge to
// the target point. Entries is empty when the route stays on the arc both
// points lie on.
type Path struct {
	Entries []PathEntry
	Weight  float64
}

// Vertices returns the vertex ids of the path in order.
func (p *Path) Vertices() []graph.VertexID {
	out := make([]graph.VertexID, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.Vertex
	}
	return out
}
