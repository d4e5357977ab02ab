package routing

import "github.com/azybler/chroute/pkg/graph"

// DefaultMaxExpandDepth bounds shortcut nesting when no limit is configured.
const DefaultMaxExpandDepth = 200

// Expander unpacks shortcut arcs into the base edges they stand for.
type Expander struct {
	g        graph.Reader
	maxDepth int
}

// NewExpander creates an expander over g. maxDepth <= 0 means
// DefaultMaxExpandDepth.
func NewExpander(g graph.Reader, maxDepth int) *Expander {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxExpandDepth
	}
	return &Expander{g: g, maxDepth: maxDepth}
}

// Expand takes a vertex sequence in travel order whose hops may be shortcuts
// and returns the base path with cumulative weights, starting at
// startWeight.
func (x *Expander) Expand(vertices []graph.VertexID, startWeight float64) ([]PathEntry, error) {
	if len(vertices) == 0 {
		return nil, nil
	}

	out := make([]PathEntry, 1, len(vertices))
	out[0] = PathEntry{Vertex: vertices[0], Weight: startWeight}

	for i := 0; i < len(vertices)-1; i++ {
		var err error
		out, err = x.expandHop(out, vertices[i], vertices[i+1])
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// expandHop iteratively unpacks a single hop from->to and appends the base
// vertices after from to out. Uses an explicit stack to avoid recursion.
func (x *Expander) expandHop(out []PathEntry, from, to graph.VertexID) ([]PathEntry, error) {
	type item struct {
		from, to graph.VertexID
		depth    int
	}

	stack := []item{{from, to, 0}}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.depth > x.maxDepth {
			return nil, &CorruptGraphError{From: it.from, To: it.to, Depth: it.depth, Reason: "shortcut nesting exceeds limit"}
		}

		hop, ok, err := travelArc(x.g, it.from, it.to, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &CorruptGraphError{From: it.from, To: it.to, Depth: it.depth, Reason: "no arc"}
		}

		if via := hop.arc.Data.ContractedID; via != graph.NoVertex {
			// Push right half first (via->to), then left half (from->via),
			// so left is processed first (LIFO).
			stack = append(stack, item{via, it.to, it.depth + 1})
			stack = append(stack, item{it.from, via, it.depth + 1})
			continue
		}

		last := out[len(out)-1].Weight
		out = append(out, PathEntry{Vertex: it.to, Weight: last + float64(hop.weight)})
	}

	return out, nil
}

// hop is the stored arc used to travel between two vertices.
type hop struct {
	arc    graph.Arc
	weight float32
	// atSource is true when the arc is stored at the travel source and
	// false when it is stored at the travel target, pointing back.
	atSource bool
}

// travelArc finds the cheapest arc for travel from->to. The arc can be
// stored at from with a forward weight, or at to with a backward weight.
// Base arcs win ties against shortcuts.
func travelArc(g graph.Reader, from, to graph.VertexID, baseOnly bool) (hop, bool, error) {
	var best hop
	found := false

	consider := func(at, target graph.VertexID, forward bool) error {
		arcs, err := g.GetEdges(at)
		if err != nil {
			return err
		}
		for _, a := range arcs {
			if a.Target != target || (baseOnly && a.Data.IsShortcut()) {
				continue
			}
			w, ok := a.Data.DirectionalWeight(forward)
			if !ok {
				continue
			}
			better := !found || w < best.weight ||
				(w == best.weight && best.arc.Data.IsShortcut() && !a.Data.IsShortcut())
			if better {
				best, found = hop{arc: a, weight: w, atSource: forward}, true
			}
		}
		return nil
	}

	if err := consider(from, to, true); err != nil {
		return hop{}, false, err
	}
	if err := consider(to, from, false); err != nil {
		return hop{}, false, err
	}
	return best, found, nil
}
