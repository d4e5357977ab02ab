package routing

import (
	"bytes"
	"context"
	"testing"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/chroute/pkg/ch"
	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
	osmparser "github.com/azybler/chroute/pkg/osm"
	"github.com/azybler/chroute/pkg/store"
	"github.com/azybler/chroute/pkg/tags"
)

// twoVertexGraph stores one arc A->B at both endpoints, the way the graph
// builder does.
func twoVertexGraph(t *testing.T, data graph.EdgeData, shape []geo.Coord) (*graph.MemoryGraph, graph.VertexID, graph.VertexID) {
	t.Helper()
	g := graph.NewMemoryGraph()
	a := g.AddVertex(geo.NewCoord(1.0, 103.0))
	b := g.AddVertex(geo.NewCoord(1.0, 103.002))
	require.NoError(t, g.AddArc(a, b, data, shape))
	var rev []geo.Coord
	for i := len(shape) - 1; i >= 0; i-- {
		rev = append(rev, shape[i])
	}
	require.NoError(t, g.AddArc(b, a, data.Reverse(), rev))
	return g, a, b
}

func TestSnapMidEdge(t *testing.T) {
	g, a, b := twoVertexGraph(t, graph.EdgeData{ForwardWeight: 100, BackwardWeight: 80}, nil)
	s := NewSnapper(g, 0)

	snap, err := s.Snap(geo.NewCoord(1.0001, 103.0005))
	require.NoError(t, err)
	assert.Less(t, snap.Dist, 15.0)

	// Normalize to the A->B orientation.
	ratio := snap.Ratio
	if snap.From == b {
		ratio = 1 - ratio
	}
	assert.InDelta(t, 0.25, ratio, 0.01)

	p := snap.Resolved()
	weights := func(seeds []Seed) map[graph.VertexID]float64 {
		m := map[graph.VertexID]float64{}
		for _, s := range seeds {
			m[s.Vertex] = s.Weight
		}
		return m
	}
	out, in := weights(p.Out), weights(p.In)
	// Leaving the point: 75% of A->B to reach B, 25% of B->A to reach A.
	assert.InDelta(t, 75, out[b], 1)
	assert.InDelta(t, 20, out[a], 1)
	// Arriving: 25% of A->B from A, 75% of B->A from B.
	assert.InDelta(t, 25, in[a], 1)
	assert.InDelta(t, 60, in[b], 1)
}

func TestSnapOneWay(t *testing.T) {
	g, a, b := twoVertexGraph(t, graph.EdgeData{ForwardWeight: 100, BackwardWeight: graph.NoWeight}, nil)

	p, err := NewSnapper(g, 0).Resolve(geo.NewCoord(1.0, 103.001))
	require.NoError(t, err)
	require.Len(t, p.Out, 1)
	require.Len(t, p.In, 1)
	assert.Equal(t, b, p.Out[0].Vertex)
	assert.Equal(t, a, p.In[0].Vertex)
	assert.InDelta(t, 50, p.Out[0].Weight, 1)
	assert.InDelta(t, 50, p.In[0].Weight, 1)
}

func TestSnapFollowsShape(t *testing.T) {
	// A dog-leg: A -> bend north -> B.
	bend := geo.NewCoord(1.002, 103.001)
	g, _, _ := twoVertexGraph(t, graph.EdgeData{ForwardWeight: 10, BackwardWeight: 10}, []geo.Coord{bend})

	snap, err := NewSnapper(g, 0).Snap(geo.NewCoord(1.002, 103.001))
	require.NoError(t, err)
	assert.Less(t, snap.Dist, 1.0)
	assert.InDelta(t, 0.5, snap.Ratio, 0.01)
	assert.InDelta(t, float64(bend.Lat), float64(snap.Point.Lat), 1e-6)
	assert.InDelta(t, float64(bend.Lon), float64(snap.Point.Lon), 1e-6)
}

func TestSnapTooFar(t *testing.T) {
	g, _, _ := twoVertexGraph(t, graph.EdgeData{ForwardWeight: 1, BackwardWeight: 1}, nil)

	_, err := NewSnapper(g, 0).Snap(geo.NewCoord(1.1, 103.0))
	assert.ErrorIs(t, err, ErrPointTooFar)

	_, err = NewSnapper(g, 5).Snap(geo.NewCoord(1.0001, 103.001))
	assert.ErrorIs(t, err, ErrPointTooFar)
}

func TestProjectOnPolyline(t *testing.T) {
	from := geo.NewCoord(0, 0)
	mid := geo.NewCoord(0, 0.001)
	to := geo.NewCoord(0, 0.003)

	dist, ratio, point := projectOnPolyline(geo.NewCoord(0, 0.001), from, []geo.Coord{mid}, to)
	assert.InDelta(t, 0, dist, 1e-6)
	assert.InDelta(t, 1.0/3, ratio, 1e-3)
	assert.Equal(t, mid, point)

	// Degenerate arc: both ends at the same place.
	dist, ratio, _ = projectOnPolyline(geo.NewCoord(0, 0.001), from, nil, from)
	assert.Greater(t, dist, 100.0)
	assert.Zero(t, ratio)
}

// contractedChain is a one-way road 1 -> 2 -> 3 along latitude 1.3 with
// 1 km edges, contracted so each arc is stored only at its lower-rank end.
func contractedChain(t *testing.T) (*graph.MemoryGraph, *tags.Table) {
	t.Helper()
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 1, ToNodeID: 2, Meters: 1000},
			{FromNodeID: 2, ToNodeID: 3, Meters: 1000},
		},
		Nodes: map[osm.NodeID]geo.Coord{
			1: geo.NewCoord(1.3, 103.800),
			2: geo.NewCoord(1.3, 103.809),
			3: geo.NewCoord(1.3, 103.818),
		},
	}
	table := tags.NewTable()
	g, err := graph.Build(result, table)
	require.NoError(t, err)
	chg, _, err := ch.Contract(g, ch.Options{})
	require.NoError(t, err)
	return chg, table
}

func TestSnapContractedGraph(t *testing.T) {
	chg, table := contractedChain(t)

	var buf bytes.Buffer
	require.NoError(t, store.Write(&buf, chg, table, store.WriteOptions{BlockSize: 2}))
	s, err := store.Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()), store.Options{})
	require.NoError(t, err)

	backends := []struct {
		name string
		g    graph.BoxReader
	}{
		{"memory", chg},
		{"store", s},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			snapper := NewSnapper(b.g, 0)
			for _, lon := range []float64{103.806, 103.809, 103.812} {
				snap, err := snapper.Snap(geo.NewCoord(1.3, lon))
				require.NoError(t, err, "lon %v", lon)
				assert.Less(t, snap.Dist, 1.0, "lon %v", lon)
			}

			eng := NewEngine(b.g, EngineOptions{})
			result, err := eng.Route(context.Background(),
				LatLng{Lat: 1.3, Lng: 103.803},
				LatLng{Lat: 1.3, Lng: 103.815},
			)
			require.NoError(t, err)
			assert.InDelta(t, 4000.0/3, result.TotalDistanceMeters, 2)

			_, err = eng.Route(context.Background(),
				LatLng{Lat: 1.3, Lng: 103.815},
				LatLng{Lat: 1.3, Lng: 103.803},
			)
			assert.ErrorIs(t, err, ErrNoRoute)
		})
	}
}
