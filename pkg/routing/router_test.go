package routing

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
	"github.com/azybler/chroute/pkg/store"
	"github.com/azybler/chroute/pkg/tags"
)

var inf = math.Inf(1)

func TestCalculateWeightAllPairs(t *testing.T) {
	g, chg := buildTestGraphAndCH(t)
	r := NewRouter(chg, Options{})
	ctx := context.Background()

	for s := graph.VertexID(1); s <= 6; s++ {
		for d := graph.VertexID(1); d <= 6; d++ {
			got, err := r.CalculateWeight(ctx, AtVertex(s), AtVertex(d), inf)
			require.NoError(t, err)
			assert.Equal(t, plainDijkstra(g, s, d), got, "s=%d d=%d", s, d)
		}
	}
}

func TestCalculateWeightGrid(t *testing.T) {
	tests := []struct {
		name string
		core int
	}{
		{"fully contracted", 0},
		{"mixed", 8},
		{"uncontracted", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, chg := gridGraph(t, 4, 5, 11, tt.core)
			r := NewRouter(chg, Options{})
			ctx := context.Background()
			for s := graph.VertexID(1); s <= 20; s++ {
				for d := graph.VertexID(1); d <= 20; d++ {
					got, err := r.CalculateWeight(ctx, AtVertex(s), AtVertex(d), inf)
					require.NoError(t, err)
					assert.Equal(t, plainDijkstra(g, s, d), got, "s=%d d=%d", s, d)
				}
			}
		})
	}
}

func TestCalculatePathIsBasePath(t *testing.T) {
	g, chg := gridGraph(t, 4, 5, 5, 6)
	r := NewRouter(chg, Options{})
	ctx := context.Background()

	for s := graph.VertexID(1); s <= 20; s++ {
		for d := graph.VertexID(1); d <= 20; d++ {
			want := plainDijkstra(g, s, d)
			path, err := r.Calculate(ctx, AtVertex(s), AtVertex(d), inf)
			require.NoError(t, err)
			if math.IsInf(want, 1) {
				assert.Nil(t, path, "s=%d d=%d", s, d)
				continue
			}
			require.NotNil(t, path, "s=%d d=%d", s, d)
			assert.Equal(t, want, path.Weight)

			entries := path.Entries
			require.NotEmpty(t, entries)
			assert.Equal(t, s, entries[0].Vertex)
			assert.Equal(t, d, entries[len(entries)-1].Vertex)
			assert.Zero(t, entries[0].Weight)
			assert.InDelta(t, want, entries[len(entries)-1].Weight, 1e-6)

			for i := 1; i < len(entries); i++ {
				w, ok := baseWeight(g, entries[i-1].Vertex, entries[i].Vertex)
				require.True(t, ok, "hop %d->%d is not a base edge", entries[i-1].Vertex, entries[i].Vertex)
				assert.InDelta(t, w, entries[i].Weight-entries[i-1].Weight, 1e-6)
			}
		}
	}
}

func TestCalculateSelfRoute(t *testing.T) {
	_, chg := buildTestGraphAndCH(t)
	r := NewRouter(chg, Options{})
	ctx := context.Background()

	path, err := r.Calculate(ctx, AtVertex(3), AtVertex(3), inf)
	require.NoError(t, err)
	require.NotNil(t, path)
	assert.Equal(t, []PathEntry{{Vertex: 3}}, path.Entries)
	assert.Zero(t, path.Weight)

	// A point between two vertices routes to itself at zero cost too.
	p := ResolvedPoint{
		Out: []Seed{{Vertex: 2, Weight: 40}, {Vertex: 1, Weight: 60}},
		In:  []Seed{{Vertex: 1, Weight: 40}, {Vertex: 2, Weight: 60}},
	}
	path, err = r.Calculate(ctx, p, p, inf)
	require.NoError(t, err)
	require.NotNil(t, path)
	assert.Len(t, path.Entries, 1)
	assert.Equal(t, graph.VertexID(2), path.Entries[0].Vertex)
	assert.Zero(t, path.Weight)

	w, err := r.CalculateWeight(ctx, p, p, inf)
	require.NoError(t, err)
	assert.Zero(t, w)
}

func TestCalculatePartialSeeds(t *testing.T) {
	g, chg := buildTestGraphAndCH(t)
	r := NewRouter(chg, Options{})

	src := ResolvedPoint{Out: []Seed{{Vertex: 1, Weight: 10}}}
	dst := ResolvedPoint{In: []Seed{{Vertex: 6, Weight: 5}}}
	path, err := r.Calculate(context.Background(), src, dst, inf)
	require.NoError(t, err)
	require.NotNil(t, path)

	base := plainDijkstra(g, 1, 6)
	assert.Equal(t, 10+base+5, path.Weight)
	assert.Equal(t, 10.0, path.Entries[0].Weight)
	assert.InDelta(t, 10+base, path.Entries[len(path.Entries)-1].Weight, 1e-6)
}

func TestCalculateNoRoute(t *testing.T) {
	g := graph.NewMemoryGraph()
	a := g.AddVertex(geo.NewCoord(1.0, 103.0))
	b := g.AddVertex(geo.NewCoord(1.0, 103.001))
	c := g.AddVertex(geo.NewCoord(1.0, 103.002))
	oneWay := graph.EdgeData{ForwardWeight: 5, BackwardWeight: graph.NoWeight}
	require.NoError(t, g.AddArc(a, b, oneWay, nil))
	require.NoError(t, g.AddArc(b, a, oneWay.Reverse(), nil))

	r := NewRouter(g, Options{})
	ctx := context.Background()

	path, err := r.Calculate(ctx, AtVertex(b), AtVertex(a), inf)
	require.NoError(t, err)
	assert.Nil(t, path)

	w, err := r.CalculateWeight(ctx, AtVertex(a), AtVertex(c), inf)
	require.NoError(t, err)
	assert.True(t, math.IsInf(w, 1))

	w, err = r.CalculateWeight(ctx, AtVertex(a), AtVertex(b), inf)
	require.NoError(t, err)
	assert.Equal(t, 5.0, w)
}

func TestCalculateMaxWeight(t *testing.T) {
	g, chg := buildTestGraphAndCH(t)
	r := NewRouter(chg, Options{})
	ctx := context.Background()
	want := plainDijkstra(g, 1, 6)

	path, err := r.Calculate(ctx, AtVertex(1), AtVertex(6), want-1)
	require.NoError(t, err)
	assert.Nil(t, path)

	path, err = r.Calculate(ctx, AtVertex(1), AtVertex(6), want)
	require.NoError(t, err)
	require.NotNil(t, path)
	assert.Equal(t, want, path.Weight)

	w, err := r.CalculateWeight(ctx, AtVertex(1), AtVertex(6), want/2)
	require.NoError(t, err)
	assert.True(t, math.IsInf(w, 1))
}

func TestCalculateInvalidQuery(t *testing.T) {
	_, chg := buildTestGraphAndCH(t)
	r := NewRouter(chg, Options{})
	ctx := context.Background()

	tests := []struct {
		name      string
		src, dst  ResolvedPoint
		maxWeight float64
	}{
		{"vertex zero", AtVertex(0), AtVertex(1), inf},
		{"unknown vertex", AtVertex(1), AtVertex(99), inf},
		{"no source seeds", ResolvedPoint{In: []Seed{{Vertex: 1}}}, AtVertex(2), inf},
		{"no target seeds", AtVertex(1), ResolvedPoint{Out: []Seed{{Vertex: 2}}}, inf},
		{"negative seed", ResolvedPoint{Out: []Seed{{Vertex: 1, Weight: -1}}}, AtVertex(2), inf},
		{"negative max weight", AtVertex(1), AtVertex(2), -1},
		{"NaN max weight", AtVertex(1), AtVertex(2), math.NaN()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Calculate(ctx, tt.src, tt.dst, tt.maxWeight)
			assert.ErrorIs(t, err, ErrInvalidQuery)
			_, err = r.CalculateWeight(ctx, tt.src, tt.dst, tt.maxWeight)
			assert.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestCalculateCanceled(t *testing.T) {
	_, chg := buildTestGraphAndCH(t)
	r := NewRouter(chg, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Calculate(ctx, AtVertex(1), AtVertex(6), inf)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = r.CalculateManyToManyWeight(ctx, []ResolvedPoint{AtVertex(1)}, []ResolvedPoint{AtVertex(6)})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = r.CheckConnectivity(ctx, AtVertex(1), inf)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateSettleBudget(t *testing.T) {
	g, chg := gridGraph(t, 5, 5, 3, 0)
	r := NewRouter(chg, Options{MaxSettles: 2})

	w, err := r.CalculateWeight(context.Background(), AtVertex(1), AtVertex(25), inf)
	require.NoError(t, err)
	// An exhausted budget can only miss the best route, never undercut it.
	assert.GreaterOrEqual(t, w, plainDijkstra(g, 1, 25))
}

func TestCalculateRangeUnsupported(t *testing.T) {
	_, chg := buildTestGraphAndCH(t)
	r := NewRouter(chg, Options{})
	assert.False(t, r.IsCalculateRangeSupported())

	_, err := r.CalculateRange(context.Background(), AtVertex(1), 100)
	require.ErrorIs(t, err, ErrUnsupported)

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, opRange, opErr.Op)
}

func TestCalculateOnStore(t *testing.T) {
	_, chg := gridGraph(t, 6, 6, 17, 5)

	var buf bytes.Buffer
	require.NoError(t, store.Write(&buf, chg, tags.NewTable(), store.WriteOptions{BlockSize: 4}))
	s, err := store.Open(bytes.NewReader(buf.Bytes()), int64(buf.Len()), store.Options{BlockCache: 2, ShapeCache: 2})
	require.NoError(t, err)

	mem := NewRouter(chg, Options{})
	disk := NewRouter(s, Options{})
	ctx := context.Background()

	for src := graph.VertexID(1); src <= 36; src += 5 {
		for dst := graph.VertexID(1); dst <= 36; dst += 3 {
			want, err := mem.Calculate(ctx, AtVertex(src), AtVertex(dst), inf)
			require.NoError(t, err)
			got, err := disk.Calculate(ctx, AtVertex(src), AtVertex(dst), inf)
			require.NoError(t, err)
			if want == nil {
				assert.Nil(t, got)
				continue
			}
			require.NotNil(t, got)
			assert.Equal(t, want.Weight, got.Weight)
			last := got.Entries[len(got.Entries)-1]
			assert.Equal(t, dst, last.Vertex)
			assert.InDelta(t, want.Entries[len(want.Entries)-1].Weight, last.Weight, 1e-6)
		}
	}
}

// singleArcGraph stores one arc 1 -> 2 at vertex 1 only.
func singleArcGraph(t *testing.T, data graph.EdgeData) *graph.MemoryGraph {
	t.Helper()
	g := graph.NewMemoryGraph()
	a := g.AddVertex(geo.NewCoord(1.0, 103.0))
	b := g.AddVertex(geo.NewCoord(1.0, 103.009))
	require.NoError(t, g.AddArc(a, b, data, nil))
	return g
}

func TestCalculateAlongSharedArc(t *testing.T) {
	oneWay := graph.EdgeData{ForwardWeight: 1000, BackwardWeight: graph.NoWeight, Direction: graph.ToHigher}
	twoWay := graph.EdgeData{ForwardWeight: 1000, BackwardWeight: 500, Direction: graph.ToHigher}
	at := func(data graph.EdgeData, ratio float64) ResolvedPoint {
		return SnapResult{From: 1, To: 2, Data: data, Ratio: ratio}.Resolved()
	}
	// The same position described by the arc as stored at vertex 2.
	atReversed := func(data graph.EdgeData, ratio float64) ResolvedPoint {
		return SnapResult{From: 2, To: 1, Data: data.Reverse(), Ratio: 1 - ratio}.Resolved()
	}

	tests := []struct {
		name     string
		data     graph.EdgeData
		src, dst ResolvedPoint
		want     float64
	}{
		{"one way ahead", oneWay, at(oneWay, 0.2), at(oneWay, 0.8), 600},
		{"one way behind", oneWay, at(oneWay, 0.8), at(oneWay, 0.2), inf},
		{"two way ahead", twoWay, at(twoWay, 0.2), at(twoWay, 0.8), 600},
		{"two way behind", twoWay, at(twoWay, 0.8), at(twoWay, 0.2), 300},
		{"reversed description", oneWay, at(oneWay, 0.2), atReversed(oneWay, 0.8), 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(singleArcGraph(t, tt.data), Options{})
			ctx := context.Background()

			assertWeight := func(got float64) {
				t.Helper()
				if math.IsInf(tt.want, 1) {
					assert.True(t, math.IsInf(got, 1), "got %v", got)
					return
				}
				assert.InDelta(t, tt.want, got, 1e-6)
			}

			got, err := r.CalculateWeight(ctx, tt.src, tt.dst, inf)
			require.NoError(t, err)
			assertWeight(got)

			matrix, err := r.CalculateManyToManyWeight(ctx, []ResolvedPoint{tt.src}, []ResolvedPoint{tt.dst})
			require.NoError(t, err)
			assertWeight(matrix[0][0])

			path, err := r.Calculate(ctx, tt.src, tt.dst, inf)
			require.NoError(t, err)
			if math.IsInf(tt.want, 1) {
				assert.Nil(t, path)
				return
			}
			require.NotNil(t, path)
			assert.InDelta(t, tt.want, path.Weight, 1e-6)
			assert.Empty(t, path.Entries)
		})
	}
}

func TestCalculateAlongSharedArcRespectsMaxWeight(t *testing.T) {
	data := graph.EdgeData{ForwardWeight: 1000, BackwardWeight: graph.NoWeight, Direction: graph.ToHigher}
	r := NewRouter(singleArcGraph(t, data), Options{})
	src := SnapResult{From: 1, To: 2, Data: data, Ratio: 0.2}.Resolved()
	dst := SnapResult{From: 1, To: 2, Data: data, Ratio: 0.8}.Resolved()

	got, err := r.CalculateWeight(context.Background(), src, dst, 599)
	require.NoError(t, err)
	assert.True(t, math.IsInf(got, 1))
}

func TestQueryMetricsSeparateWeightQueries(t *testing.T) {
	_, chg := buildTestGraphAndCH(t)
	r := NewRouter(chg, Options{})
	ctx := context.Background()

	paths := testutil.ToFloat64(queryTotal.WithLabelValues(opCalculate, "ok"))
	weights := testutil.ToFloat64(queryTotal.WithLabelValues(opCalculateWeight, "ok"))

	_, err := r.CalculateWeight(ctx, AtVertex(1), AtVertex(6), inf)
	require.NoError(t, err)
	assert.Equal(t, weights+1, testutil.ToFloat64(queryTotal.WithLabelValues(opCalculateWeight, "ok")))
	assert.Equal(t, paths, testutil.ToFloat64(queryTotal.WithLabelValues(opCalculate, "ok")))

	_, err = r.Calculate(ctx, AtVertex(1), AtVertex(6), inf)
	require.NoError(t, err)
	assert.Equal(t, paths+1, testutil.ToFloat64(queryTotal.WithLabelValues(opCalculate, "ok")))
}
