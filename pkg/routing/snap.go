package routing

import (
	"errors"
	"fmt"
	"math"

	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
)

// DefaultMaxSnapMeters is the snapping radius used when none is configured.
const DefaultMaxSnapMeters = 500.0

// ErrPointTooFar is returned when the query point is too far from any road.
var ErrPointTooFar = errors.New("point too far from road")

// SnapResult represents a point snapped to a base arc.
type SnapResult struct {
	From  graph.VertexID // vertex the arc is stored at
	To    graph.VertexID // arc target
	Data  graph.EdgeData
	Ratio float64   // 0.0 = at From, 1.0 = at To
	Dist  float64   // distance in meters from query point to snapped point
	Point geo.Coord // the snapped point
	Shape []geo.Coord
}

// Snapper provides nearest-road snapping using the graph's bounding box
// query.
type Snapper struct {
	g         graph.BoxReader
	maxMeters float64
}

// NewSnapper creates a snapper searching up to maxMeters around a point.
// maxMeters <= 0 means DefaultMaxSnapMeters.
func NewSnapper(g graph.BoxReader, maxMeters float64) *Snapper {
	if maxMeters <= 0 {
		maxMeters = DefaultMaxSnapMeters
	}
	return &Snapper{g: g, maxMeters: maxMeters}
}

// Snap finds the nearest base arc to c.
func (s *Snapper) Snap(c geo.Coord) (SnapResult, error) {
	edges, err := s.g.GetEdgesInBox(geo.BoxAround(c, s.maxMeters))
	if err != nil {
		return SnapResult{}, fmt.Errorf("snap: %w", err)
	}

	bestDist := math.Inf(1)
	var bestResult SnapResult

	for _, e := range edges {
		if e.Data.IsShortcut() {
			continue
		}
		from, _, err := s.g.GetVertex(e.Vertex)
		if err != nil {
			return SnapResult{}, err
		}
		to, ok, err := s.g.GetVertex(e.Target)
		if err != nil {
			return SnapResult{}, err
		}
		if !ok {
			continue
		}
		shape, err := e.Shape()
		if err != nil {
			return SnapResult{}, err
		}

		dist, ratio, point := projectOnPolyline(c, from, shape, to)
		if dist < bestDist {
			bestDist = dist
			bestResult = SnapResult{
				From:  e.Vertex,
				To:    e.Target,
				Data:  e.Data,
				Ratio: ratio,
				Dist:  dist,
				Point: point,
				Shape: shape,
			}
		}
	}

	if bestDist > s.maxMeters {
		return SnapResult{}, ErrPointTooFar
	}

	return bestResult, nil
}

// Resolve snaps c and turns the snapped arc into search seeds. Leaving the
// point reaches To after the rest of the forward weight and From after the
// covered part of the backward weight; arriving works the other way round.
func (s *Snapper) Resolve(c geo.Coord) (ResolvedPoint, error) {
	snap, err := s.Snap(c)
	if err != nil {
		return ResolvedPoint{}, err
	}
	return snap.Resolved(), nil
}

// Resolved converts a snap into seeds honoring the arc's travel directions.
func (r SnapResult) Resolved() ResolvedPoint {
	p := ResolvedPoint{
		Coord: r.Point,
		On:    &ArcPoint{From: r.From, To: r.To, Data: r.Data, Shape: r.Shape, Ratio: r.Ratio},
	}
	if w, ok := r.Data.DirectionalWeight(true); ok {
		p.Out = append(p.Out, Seed{Vertex: r.To, Weight: float64(w) * (1 - r.Ratio)})
		p.In = append(p.In, Seed{Vertex: r.From, Weight: float64(w) * r.Ratio})
	}
	if w, ok := r.Data.DirectionalWeight(false); ok {
		p.Out = append(p.Out, Seed{Vertex: r.From, Weight: float64(w) * r.Ratio})
		p.In = append(p.In, Seed{Vertex: r.To, Weight: float64(w) * (1 - r.Ratio)})
	}
	return p
}

// projectOnPolyline projects p onto the polyline from -> shape... -> to and
// returns the distance in meters, the position along the line as a ratio of
// its length, and the projected point.
func projectOnPolyline(p, from geo.Coord, shape []geo.Coord, to geo.Coord) (float64, float64, geo.Coord) {
	points := make([]geo.Coord, 0, len(shape)+2)
	points = append(points, from)
	points = append(points, shape...)
	points = append(points, to)

	total := 0.0
	lengths := make([]float64, len(points)-1)
	for i := range lengths {
		lengths[i] = geo.Distance(points[i], points[i+1])
		total += lengths[i]
	}

	bestDist, bestAlong := math.Inf(1), 0.0
	bestPoint := from
	along := 0.0
	for i := range lengths {
		a, b := points[i], points[i+1]
		dist, ratio := geo.ProjectOnSegment(p, a, b)
		if dist < bestDist {
			bestDist = dist
			bestAlong = along + ratio*lengths[i]
			bestPoint = geo.NewCoord(
				float64(a.Lat)+ratio*float64(b.Lat-a.Lat),
				float64(a.Lon)+ratio*float64(b.Lon-a.Lon),
			)
		}
		along += lengths[i]
	}

	if total == 0 {
		return bestDist, 0, bestPoint
	}
	return bestDist, bestAlong / total, bestPoint
}
