package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/chroute/pkg/graph"
)

func TestManyToManyMatchesCalculateWeight(t *testing.T) {
	for _, core := range []int{0, 7} {
		_, chg := gridGraph(t, 4, 5, 23, core)
		r := NewRouter(chg, Options{})
		ctx := context.Background()

		var points []ResolvedPoint
		for v := graph.VertexID(1); v <= 20; v++ {
			points = append(points, AtVertex(v))
		}
		// A point halfway along an edge, seeded both ways.
		points = append(points, ResolvedPoint{
			Out: []Seed{{Vertex: 2, Weight: 7}, {Vertex: 1, Weight: 3}},
			In:  []Seed{{Vertex: 1, Weight: 7}, {Vertex: 2, Weight: 3}},
		})

		matrix, err := r.CalculateManyToManyWeight(ctx, points, points[5:])
		require.NoError(t, err)
		require.Len(t, matrix, len(points))

		for i, src := range points {
			require.Len(t, matrix[i], len(points)-5)
			for j, dst := range points[5:] {
				want, err := r.CalculateWeight(ctx, src, dst, inf)
				require.NoError(t, err)
				assert.Equal(t, want, matrix[i][j], "core=%d i=%d j=%d", core, i, j)
			}
		}
	}
}

func TestManyToManyDiagonal(t *testing.T) {
	_, chg := buildTestGraphAndCH(t)
	r := NewRouter(chg, Options{})

	points := []ResolvedPoint{AtVertex(1), AtVertex(3), AtVertex(5)}
	matrix, err := r.CalculateManyToManyWeight(context.Background(), points, points)
	require.NoError(t, err)
	for i := range points {
		assert.Zero(t, matrix[i][i])
	}
	assert.Equal(t, 300.0, matrix[0][1])
	assert.Equal(t, matrix[0][1], matrix[1][0])
}

func TestManyToManyInvalid(t *testing.T) {
	_, chg := buildTestGraphAndCH(t)
	r := NewRouter(chg, Options{})
	ctx := context.Background()

	_, err := r.CalculateManyToManyWeight(ctx, nil, []ResolvedPoint{AtVertex(1)})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = r.CalculateManyToManyWeight(ctx, []ResolvedPoint{AtVertex(1)}, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = r.CalculateManyToManyWeight(ctx, []ResolvedPoint{AtVertex(1)}, []ResolvedPoint{AtVertex(42)})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestFinal(t *testing.T) {
	assert.True(t, final([]float64{1, 2}, 2))
	assert.False(t, final([]float64{1, 3}, 2))
	assert.False(t, final([]float64{inf}, 100))
	assert.True(t, final([]float64{inf}, inf))
}
