package routing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
)

func TestExpandShortcuts(t *testing.T) {
	g, chg := gridGraph(t, 5, 5, 29, 0)
	x := NewExpander(chg, 0)

	shortcuts := 0
	for u := graph.VertexID(1); u <= 25; u++ {
		arcs, err := chg.GetEdges(u)
		require.NoError(t, err)
		for _, a := range arcs {
			if !a.Data.IsShortcut() {
				continue
			}
			shortcuts++

			for _, forward := range []bool{true, false} {
				w, ok := a.Data.DirectionalWeight(forward)
				if !ok {
					continue
				}
				hop := []graph.VertexID{u, a.Target}
				if !forward {
					hop = []graph.VertexID{a.Target, u}
				}
				entries, err := x.Expand(hop, 0)
				require.NoError(t, err)
				require.Greater(t, len(entries), 2)
				assert.Equal(t, hop[0], entries[0].Vertex)
				assert.Equal(t, hop[1], entries[len(entries)-1].Vertex)
				assert.InDelta(t, float64(w), entries[len(entries)-1].Weight, 1e-6)

				for i := 1; i < len(entries); i++ {
					bw, ok := baseWeight(g, entries[i-1].Vertex, entries[i].Vertex)
					require.True(t, ok)
					assert.InDelta(t, bw, entries[i].Weight-entries[i-1].Weight, 1e-6)
				}
			}
		}
	}
	require.Positive(t, shortcuts)
}

func TestExpandStartWeight(t *testing.T) {
	g := graph.NewMemoryGraph()
	a := g.AddVertex(geo.NewCoord(1, 103))
	b := g.AddVertex(geo.NewCoord(1, 103.001))
	c := g.AddVertex(geo.NewCoord(1, 103.002))
	require.NoError(t, g.AddArc(a, b, graph.EdgeData{ForwardWeight: 2, BackwardWeight: graph.NoWeight}, nil))
	// b->c is stored at c and travelled against its direction.
	require.NoError(t, g.AddArc(c, b, graph.EdgeData{ForwardWeight: graph.NoWeight, BackwardWeight: 3}, nil))

	entries, err := NewExpander(g, 0).Expand([]graph.VertexID{a, b, c}, 10)
	require.NoError(t, err)
	assert.Equal(t, []PathEntry{{a, 10}, {b, 12}, {c, 15}}, entries)

	entries, err = NewExpander(g, 0).Expand(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExpandPrefersCheapestArc(t *testing.T) {
	g := graph.NewMemoryGraph()
	a := g.AddVertex(geo.NewCoord(1, 103))
	b := g.AddVertex(geo.NewCoord(1, 103.001))
	require.NoError(t, g.AddArc(a, b, graph.EdgeData{ForwardWeight: 9, BackwardWeight: graph.NoWeight}, nil))
	require.NoError(t, g.AddArc(b, a, graph.EdgeData{ForwardWeight: graph.NoWeight, BackwardWeight: 4}, nil))

	entries, err := NewExpander(g, 0).Expand([]graph.VertexID{a, b}, 0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, entries[1].Weight)
}

func TestExpandDepthGuard(t *testing.T) {
	// Three shortcuts that refer to each other: expanding any of them never
	// reaches a base arc.
	g := graph.NewMemoryGraph()
	v1 := g.AddVertex(geo.NewCoord(1, 103))
	v2 := g.AddVertex(geo.NewCoord(1, 103.001))
	v3 := g.AddVertex(geo.NewCoord(1, 103.002))
	sc := func(via graph.VertexID, w float32) graph.EdgeData {
		return graph.EdgeData{ForwardWeight: w, BackwardWeight: graph.NoWeight, ContractedID: via, Direction: graph.ToHigher}
	}
	require.NoError(t, g.AddArc(v1, v2, sc(v3, 10), nil))
	require.NoError(t, g.AddArc(v1, v3, sc(v2, 5), nil))
	require.NoError(t, g.AddArc(v3, v2, sc(v1, 5), nil))

	_, err := NewExpander(g, 10).Expand([]graph.VertexID{v1, v2}, 0)
	require.ErrorIs(t, err, ErrCorruptGraph)

	var cge *CorruptGraphError
	require.True(t, errors.As(err, &cge))
	assert.Greater(t, cge.Depth, 10)
}

func TestExpandMissingArc(t *testing.T) {
	g := graph.NewMemoryGraph()
	a := g.AddVertex(geo.NewCoord(1, 103))
	b := g.AddVertex(geo.NewCoord(1, 103.001))

	_, err := NewExpander(g, 0).Expand([]graph.VertexID{a, b}, 0)
	assert.ErrorIs(t, err, ErrCorruptGraph)
}
