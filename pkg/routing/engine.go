package routing

import (
	"context"
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
)

// LatLng represents a geographic coordinate.
type LatLng struct {
	Lat float64
	Lng float64
}

func (p LatLng) coord() geo.Coord { return geo.NewCoord(p.Lat, p.Lng) }

func latLngOf(c geo.Coord) LatLng {
	return LatLng{Lat: float64(c.Lat), Lng: float64(c.Lon)}
}

// Segment represents a road segment in the route result.
type Segment struct {
	DistanceMeters float64
	Geometry       []LatLng
}

// RouteResult is the output of a route query.
type RouteResult struct {
	TotalDistanceMeters float64
	Segments            []Segment
}

// Service is the query surface the HTTP API depends on.
type Service interface {
	Route(ctx context.Context, start, end LatLng) (*RouteResult, error)
	Matrix(ctx context.Context, sources, targets []LatLng) ([][]float64, error)
	Connected(ctx context.Context, p LatLng, maxWeight float64) (bool, error)
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Router        Options
	MaxSnapMeters float64
	Logger        *zap.Logger
}

// Engine answers coordinate queries: it snaps points onto the graph, runs
// the router and assembles geometry from arc shapes.
type Engine struct {
	g       graph.BoxReader
	router  *Router
	snapper *Snapper
	log     *zap.Logger
}

var _ Service = (*Engine)(nil)

// NewEngine creates a routing engine over a contracted graph.
func NewEngine(g graph.BoxReader, opts EngineOptions) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Router.Logger == nil {
		opts.Router.Logger = log
	}
	return &Engine{
		g:       g,
		router:  NewRouter(g, opts.Router),
		snapper: NewSnapper(g, opts.MaxSnapMeters),
		log:     log,
	}
}

// Route computes the shortest path between two points.
func (e *Engine) Route(ctx context.Context, start, end LatLng) (*RouteResult, error) {
	// Step 1: Snap points to nearest road segments.
	src, err := e.snapper.Resolve(start.coord())
	if err != nil {
		return nil, err
	}
	dst, err := e.snapper.Resolve(end.coord())
	if err != nil {
		return nil, err
	}

	// Step 2: Search and expand shortcuts.
	path, err := e.router.Calculate(ctx, src, dst, math.Inf(1))
	if err != nil {
		return nil, err
	}
	if path == nil {
		return nil, ErrNoRoute
	}

	// Step 3: Build geometry from the base path, or from the shared arc when
	// the route never reaches a vertex.
	var geometry []LatLng
	if len(path.Entries) == 0 {
		geometry, err = e.alongGeometry(src.On, dst.On)
	} else {
		geometry, err = e.buildGeometry(path.Vertices())
	}
	if err != nil {
		return nil, err
	}
	geometry = slices.Insert(geometry, 0, latLngOf(src.Coord))
	geometry = append(geometry, latLngOf(dst.Coord))

	return &RouteResult{
		TotalDistanceMeters: path.Weight,
		Segments: []Segment{
			{
				DistanceMeters: path.Weight,
				Geometry:       geometry,
			},
		},
	}, nil
}

// Matrix returns the weight from every source to every target. Unreachable
// pairs hold +Inf.
func (e *Engine) Matrix(ctx context.Context, sources, targets []LatLng) ([][]float64, error) {
	srcs, err := e.resolveAll(sources)
	if err != nil {
		return nil, err
	}
	dsts, err := e.resolveAll(targets)
	if err != nil {
		return nil, err
	}
	return e.router.CalculateManyToManyWeight(ctx, srcs, dsts)
}

// Connected reports whether the road nearest to p leads anywhere at least
// maxWeight away.
func (e *Engine) Connected(ctx context.Context, p LatLng, maxWeight float64) (bool, error) {
	src, err := e.snapper.Resolve(p.coord())
	if err != nil {
		return false, err
	}
	return e.router.CheckConnectivity(ctx, src, maxWeight)
}

func (e *Engine) resolveAll(points []LatLng) ([]ResolvedPoint, error) {
	out := make([]ResolvedPoint, len(points))
	for i, p := range points {
		r, err := e.snapper.Resolve(p.coord())
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// buildGeometry converts a sequence of base graph vertices into lat/lng
// coordinates, including intermediate shape points from arc geometry.
func (e *Engine) buildGeometry(vertices []graph.VertexID) ([]LatLng, error) {
	if len(vertices) == 0 {
		return nil, nil
	}

	coord := func(v graph.VertexID) (LatLng, error) {
		c, ok, err := e.g.GetVertex(v)
		if err != nil {
			return LatLng{}, err
		}
		if !ok {
			return LatLng{}, fmt.Errorf("vertex %d: %w", v, graph.ErrInvalidVertex)
		}
		return latLngOf(c), nil
	}

	first, err := coord(vertices[0])
	if err != nil {
		return nil, err
	}
	geom := []LatLng{first}

	for i := 0; i < len(vertices)-1; i++ {
		u, v := vertices[i], vertices[i+1]

		// Look up the base arc u->v for intermediate shape points.
		h, ok, err := travelArc(e.g, u, v, true)
		if err != nil {
			return nil, err
		}
		if ok {
			shape, err := h.arc.Shape()
			if err != nil {
				return nil, err
			}
			if !h.atSource {
				shape = slices.Clone(shape)
				slices.Reverse(shape)
			}
			for _, c := range shape {
				geom = append(geom, latLngOf(c))
			}
		}

		// Add target vertex coordinates.
		next, err := coord(v)
		if err != nil {
			return nil, err
		}
		geom = append(geom, next)
	}

	return geom, nil
}

// alongGeometry returns the shape points of the arc lying strictly between
// positions a and b, in travel order from a to b.
func (e *Engine) alongGeometry(a, b *ArcPoint) ([]LatLng, error) {
	if b.From != a.From {
		b = b.reversed()
	}
	from, _, err := e.g.GetVertex(a.From)
	if err != nil {
		return nil, err
	}
	to, _, err := e.g.GetVertex(a.To)
	if err != nil {
		return nil, err
	}

	points := make([]geo.Coord, 0, len(a.Shape)+2)
	points = append(points, from)
	points = append(points, a.Shape...)
	points = append(points, to)

	along := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		along[i] = along[i-1] + geo.Distance(points[i-1], points[i])
	}
	total := along[len(along)-1]
	if total == 0 {
		return nil, nil
	}

	lo, hi := min(a.Ratio, b.Ratio), max(a.Ratio, b.Ratio)
	var geom []LatLng
	for i := 1; i < len(points)-1; i++ {
		if r := along[i] / total; r > lo && r < hi {
			geom = append(geom, latLngOf(points[i]))
		}
	}
	if b.Ratio < a.Ratio {
		slices.Reverse(geom)
	}
	return geom, nil
}
