package routing

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/azybler/chroute/pkg/graph"
)

// Options tunes a Router.
type Options struct {
	// MaxSettles stops a search once this many vertices have been settled.
	// Zero means no limit.
	MaxSettles int
	// MaxExpandDepth bounds shortcut nesting during path expansion. Zero
	// means DefaultMaxExpandDepth.
	MaxExpandDepth int
	Logger         *zap.Logger
}

// Router answers shortest path queries with a bidirectional upward search
// over a contracted graph. Arcs marked ToHigher or Uncontracted are followed;
// a graph holding only Uncontracted arcs is searched as a plain graph.
//
// A Router holds no per-query state and is safe for concurrent use when the
// underlying graph is.
type Router struct {
	g        graph.Reader
	opts     Options
	expander *Expander
	log      *zap.Logger
}

// NewRouter creates a router over g.
func NewRouter(g graph.Reader, opts Options) *Router {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		g:        g,
		opts:     opts,
		expander: NewExpander(g, opts.MaxExpandDepth),
		log:      log,
	}
}

// meeting is the best connection found between the two frontiers.
type meeting struct {
	weight   float64
	fwd, bwd *PathSegment
	direct   bool // along the arc shared by both points
}

func (m meeting) found(maxWeight float64) bool {
	return (m.direct || m.fwd != nil) && m.weight <= maxWeight
}

// Calculate returns the shortest path from src to dst expanded into base
// edges. A nil path with a nil error means no route within maxWeight.
func (r *Router) Calculate(ctx context.Context, src, dst ResolvedPoint, maxWeight float64) (path *Path, err error) {
	start, settled := time.Now(), 0
	defer func() { observeQuery(opCalculate, start, settled, err, path != nil) }()

	if err := r.checkPair(src, dst, maxWeight); err != nil {
		return nil, err
	}
	if src.Equal(dst) {
		return &Path{Entries: []PathEntry{{Vertex: src.nearest().Vertex}}}, nil
	}

	m, settled, err := r.search(ctx, opCalculate, src, dst, maxWeight)
	if err != nil {
		return nil, err
	}
	if !m.found(maxWeight) {
		return nil, nil
	}
	if m.direct {
		return &Path{Weight: m.weight}, nil
	}
	return r.assemble(m)
}

// CalculateWeight returns the shortest path weight from src to dst, or +Inf
// when there is no route within maxWeight.
func (r *Router) CalculateWeight(ctx context.Context, src, dst ResolvedPoint, maxWeight float64) (weight float64, err error) {
	start, settled := time.Now(), 0
	defer func() { observeQuery(opCalculateWeight, start, settled, err, !math.IsInf(weight, 1)) }()

	if err := r.checkPair(src, dst, maxWeight); err != nil {
		return 0, err
	}
	if src.Equal(dst) {
		return 0, nil
	}

	m, settled, err := r.search(ctx, opCalculateWeight, src, dst, maxWeight)
	if err != nil {
		return 0, err
	}
	if !m.found(maxWeight) {
		return math.Inf(1), nil
	}
	return m.weight, nil
}

// CalculateRange is not supported by the hierarchy search. Callers should
// consult IsCalculateRangeSupported first.
func (r *Router) CalculateRange(ctx context.Context, src ResolvedPoint, maxWeight float64) ([]PathEntry, error) {
	err := &OperationError{Op: opRange, Err: ErrUnsupported}
	observeQuery(opRange, time.Now(), 0, err, false)
	return nil, err
}

// IsCalculateRangeSupported reports whether CalculateRange can be used.
func (r *Router) IsCalculateRangeSupported() bool { return false }

func (r *Router) checkPair(src, dst ResolvedPoint, maxWeight float64) error {
	if maxWeight < 0 || math.IsNaN(maxWeight) {
		return invalid("max weight %v", maxWeight)
	}
	if err := r.checkSeeds(src.Out, "source"); err != nil {
		return err
	}
	return r.checkSeeds(dst.In, "target")
}

// checkSeeds rejects empty seed lists, vertex 0, unknown vertices and
// negative seed weights.
func (r *Router) checkSeeds(seeds []Seed, side string) error {
	if len(seeds) == 0 {
		return invalid("%s has no seeds", side)
	}
	for _, s := range seeds {
		if s.Vertex == graph.NoVertex {
			return invalid("%s seed at vertex 0", side)
		}
		if s.Weight < 0 || math.IsNaN(s.Weight) {
			return invalid("%s seed weight %v", side, s.Weight)
		}
		_, ok, err := r.g.GetVertex(s.Vertex)
		if err != nil {
			return err
		}
		if !ok {
			return invalid("%s seed at unknown vertex %d", side, s.Vertex)
		}
	}
	return nil
}

func (r *Router) exhausted(op string, settled int) bool {
	if r.opts.MaxSettles <= 0 || settled < r.opts.MaxSettles {
		return false
	}
	r.log.Debug("search budget exhausted", zap.String("op", op), zap.Int("settled", settled))
	return true
}

// search runs the forward and backward frontiers one vertex at a time each
// until they can no longer improve the best meeting. Points on the same arc
// start from the along-arc weight.
func (r *Router) search(ctx context.Context, op string, src, dst ResolvedPoint, maxWeight float64) (meeting, int, error) {
	fwd, bwd := newFrontier(true), newFrontier(false)
	fwd.seed(src.Out)
	bwd.seed(dst.In)

	m := meeting{weight: math.Inf(1)}
	if w := alongArc(src, dst); !math.IsInf(w, 1) && w <= maxWeight {
		m = meeting{weight: w, direct: true}
	}
	settled := 0

	for {
		fMin, bMin := fwd.min(), bwd.min()
		if math.IsInf(fMin, 1) && math.IsInf(bMin, 1) {
			break
		}
		if fMin >= m.weight && bMin >= m.weight {
			break
		}
		if fMin > maxWeight && bMin > maxWeight {
			break
		}
		if r.exhausted(op, settled) {
			break
		}

		for _, step := range [2]struct {
			side, other *frontier
			min         float64
		}{{fwd, bwd, fMin}, {bwd, fwd, bMin}} {
			if step.min >= m.weight || step.min > maxWeight {
				continue
			}
			if err := ctx.Err(); err != nil {
				return m, settled, err
			}
			seg := step.side.next()
			if seg == nil {
				continue
			}
			settled++

			// A vertex settled on both sides is a meeting candidate.
			if o, ok := step.other.settled[seg.Vertex]; ok && seg.Weight+o.Weight < m.weight {
				m = meeting{weight: seg.Weight + o.Weight, fwd: seg, bwd: o}
				if !step.side.forward {
					m.fwd, m.bwd = o, seg
				}
			}

			if err := r.relaxUpward(step.side, seg, maxWeight); err != nil {
				return m, settled, err
			}
		}
	}
	return m, settled, nil
}

// relaxUpward offers the upward neighbours of seg to f.
func (r *Router) relaxUpward(f *frontier, seg *PathSegment, limit float64) error {
	arcs, err := r.g.GetEdges(seg.Vertex)
	if err != nil {
		return err
	}
	for _, a := range arcs {
		if !a.Data.Direction.Upward() {
			continue
		}
		w, ok := a.Data.DirectionalWeight(f.forward)
		if !ok {
			continue
		}
		weight := seg.Weight + float64(w)
		if weight > limit {
			continue
		}
		f.offer(&PathSegment{Vertex: a.Target, Weight: weight, From: seg})
	}
	return nil
}

// assemble joins the two halves of a meeting into a vertex sequence in travel
// order and expands its shortcuts.
func (r *Router) assemble(m meeting) (*Path, error) {
	vertices := m.fwd.Vertices()
	for seg := m.bwd.From; seg != nil; seg = seg.From {
		vertices = append(vertices, seg.Vertex)
	}

	root := m.fwd
	for root.From != nil {
		root = root.From
	}

	entries, err := r.expander.Expand(vertices, root.Weight)
	if err != nil {
		return nil, err
	}
	return &Path{Entries: entries, Weight: m.weight}, nil
}
