package routing

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/chroute/pkg/ch"
	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
	osmparser "github.com/azybler/chroute/pkg/osm"
	"github.com/azybler/chroute/pkg/tags"
)

// testParseResult is the shared six vertex network:
//
//	10 ---100--- 20 ---200--- 30
//	|                          |
//	300                       400
//	|                          |
//	40 ---500--- 50 ---600--- 60
//
// All edges bidirectional. Weights in meters.
func testParseResult() *osmparser.ParseResult {
	pair := func(a, b osm.NodeID, w float64) []osmparser.RawEdge {
		return []osmparser.RawEdge{
			{FromNodeID: a, ToNodeID: b, Meters: w},
			{FromNodeID: b, ToNodeID: a, Meters: w, AgainstWay: true},
		}
	}
	var edges []osmparser.RawEdge
	edges = append(edges, pair(10, 20, 100)...)
	edges = append(edges, pair(20, 30, 200)...)
	edges = append(edges, pair(10, 40, 300)...)
	edges = append(edges, pair(30, 60, 400)...)
	edges = append(edges, pair(40, 50, 500)...)
	edges = append(edges, pair(50, 60, 600)...)
	return &osmparser.ParseResult{
		Edges: edges,
		Nodes: map[osm.NodeID]geo.Coord{
			10: geo.NewCoord(1.300, 103.800), 20: geo.NewCoord(1.300, 103.801), 30: geo.NewCoord(1.300, 103.802),
			40: geo.NewCoord(1.301, 103.800), 50: geo.NewCoord(1.301, 103.801), 60: geo.NewCoord(1.301, 103.802),
		},
	}
}

// buildTestGraphAndCH creates the test graph and its contracted form.
// Vertex ids follow first appearance: 10->1, 20->2, 30->3, 40->4, 50->5, 60->6.
func buildTestGraphAndCH(t testing.TB) (*graph.MemoryGraph, *graph.MemoryGraph) {
	t.Helper()
	g, err := graph.Build(testParseResult(), tags.NewTable())
	require.NoError(t, err)
	chg, _, err := ch.Contract(g, ch.Options{})
	require.NoError(t, err)
	return g, chg
}

// gridGraph builds a rows x cols grid with random integer weights and some
// one-way streets, contracted until core vertices remain.
func gridGraph(t testing.TB, rows, cols int, seed uint64, core int) (*graph.MemoryGraph, *graph.MemoryGraph) {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b9))
	g := graph.NewMemoryGraph()
	for r := range rows {
		for c := range cols {
			g.AddVertex(geo.NewCoord(1.3+float64(r)*0.001, 103.8+float64(c)*0.001))
		}
	}
	id := func(r, c int) graph.VertexID { return graph.VertexID(r*cols + c + 1) }
	link := func(a, b graph.VertexID) {
		data := graph.EdgeData{ForwardWeight: float32(rng.IntN(90) + 10), BackwardWeight: float32(rng.IntN(90) + 10)}
		switch rng.IntN(6) {
		case 0:
			data.BackwardWeight = graph.NoWeight
		case 1:
			data.ForwardWeight = graph.NoWeight
		}
		require.NoError(t, g.AddArc(a, b, data, nil))
		require.NoError(t, g.AddArc(b, a, data.Reverse(), nil))
	}
	for r := range rows {
		for c := range cols {
			if c+1 < cols {
				link(id(r, c), id(r, c+1))
			}
			if r+1 < rows {
				link(id(r, c), id(r+1, c))
			}
		}
	}
	chg, _, err := ch.Contract(g, ch.Options{CoreSize: core})
	require.NoError(t, err)
	return g, chg
}

// plainDijkstra runs standard Dijkstra on the uncontracted graph.
func plainDijkstra(g *graph.MemoryGraph, source, target graph.VertexID) float64 {
	dist := map[graph.VertexID]float64{source: 0}
	var pq MinHeap
	pq.Push(source, 0)

	for pq.Len() > 0 {
		cur := pq.Pop()
		if cur.Dist > dist[cur.Node] {
			continue
		}
		if cur.Node == target {
			return cur.Dist
		}
		arcs, _ := g.GetEdges(cur.Node)
		for _, a := range arcs {
			if !a.Data.Forward() {
				continue
			}
			newDist := cur.Dist + float64(a.Data.ForwardWeight)
			if d, ok := dist[a.Target]; !ok || newDist < d {
				dist[a.Target] = newDist
				pq.Push(a.Target, newDist)
			}
		}
	}
	return math.Inf(1)
}

// baseWeight returns the cheapest base edge weight u->v in g.
func baseWeight(g *graph.MemoryGraph, u, v graph.VertexID) (float64, bool) {
	best, found := math.Inf(1), false
	arcs, _ := g.GetEdges(u)
	for _, a := range arcs {
		if a.Target == v && a.Data.Forward() && !a.Data.IsShortcut() {
			best, found = min(best, float64(a.Data.ForwardWeight)), true
		}
	}
	return best, found
}

func TestMinHeap(t *testing.T) {
	var h MinHeap

	h.Push(1, 30)
	h.Push(2, 10)
	h.Push(3, 20)

	assert.Equal(t, PQItem{Node: 2, Dist: 10}, h.Peek())
	assert.Equal(t, PQItem{Node: 2, Dist: 10}, h.Pop())
	assert.Equal(t, PQItem{Node: 3, Dist: 20}, h.Pop())
	assert.Equal(t, PQItem{Node: 1, Dist: 30}, h.Pop())
	assert.Zero(t, h.Len())
}

func TestFrontierReopensSettledVertex(t *testing.T) {
	f := newFrontier(true)
	f.seed([]Seed{{Vertex: 1, Weight: 5}})

	seg := f.next()
	require.NotNil(t, seg)
	assert.Equal(t, 5.0, seg.Weight)
	assert.Nil(t, f.next())

	// Worse paths are ignored, strictly better ones re-open the vertex.
	assert.False(t, f.offer(&PathSegment{Vertex: 1, Weight: 7}))
	assert.True(t, f.offer(&PathSegment{Vertex: 1, Weight: 3}))
	assert.Equal(t, 3.0, f.min())

	seg = f.next()
	require.NotNil(t, seg)
	assert.Equal(t, 3.0, seg.Weight)
	assert.Equal(t, 3.0, f.settled[1].Weight)
}

func TestFrontierSkipsStaleEntries(t *testing.T) {
	f := newFrontier(false)
	f.offer(&PathSegment{Vertex: 2, Weight: 9})
	f.offer(&PathSegment{Vertex: 2, Weight: 4})
	f.offer(&PathSegment{Vertex: 3, Weight: 6})

	assert.Equal(t, graph.VertexID(2), f.next().Vertex)
	assert.Equal(t, 6.0, f.min())
	assert.Equal(t, graph.VertexID(3), f.next().Vertex)
	assert.Nil(t, f.next())
	assert.True(t, math.IsInf(f.min(), 1))
}

func BenchmarkCalculate(b *testing.B) {
	_, chg := gridGraph(b, 20, 20, 7, 0)
	r := NewRouter(chg, Options{})
	ctx := context.Background()
	src, dst := AtVertex(1), AtVertex(400)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Calculate(ctx, src, dst, math.Inf(1))
	}
}
