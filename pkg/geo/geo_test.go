package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name             string
		a, b             Coord
		wantMeters       float64
		tolerancePercent float64
	}{
		{
			name:             "Singapore CBD to Changi Airport",
			a:                NewCoord(1.2830, 103.8513),
			b:                NewCoord(1.3644, 103.9915),
			wantMeters:       18_023,
			tolerancePercent: 1,
		},
		{
			name:             "London to Paris",
			a:                NewCoord(51.5074, -0.1278),
			b:                NewCoord(48.8566, 2.3522),
			wantMeters:       343_500,
			tolerancePercent: 1,
		},
		{
			name:             "Short distance (~100m)",
			a:                NewCoord(1.3521, 103.8198),
			b:                NewCoord(1.3530, 103.8198),
			wantMeters:       100,
			tolerancePercent: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			diff := math.Abs(got-tt.wantMeters) / tt.wantMeters * 100
			if diff > tt.tolerancePercent {
				t.Errorf("Distance = %f m, want ~%f m (diff %.1f%%)", got, tt.wantMeters, diff)
			}
		})
	}

	same := NewCoord(1.3521, 103.8198)
	assert.Zero(t, Distance(same, same))
}

func TestProjectOnSegment(t *testing.T) {
	a := NewCoord(1.3, 103.8)
	b := NewCoord(1.3, 103.801)

	d, ratio := ProjectOnSegment(NewCoord(1.3, 103.8005), a, b)
	assert.InDelta(t, 0.5, ratio, 1e-3)
	assert.Less(t, d, 1.0)

	// Beyond the end the ratio clamps.
	_, ratio = ProjectOnSegment(NewCoord(1.3, 103.9), a, b)
	assert.Equal(t, 1.0, ratio)
	_, ratio = ProjectOnSegment(NewCoord(1.3, 103.7), a, b)
	assert.Equal(t, 0.0, ratio)

	// Degenerate segment.
	d, ratio = ProjectOnSegment(NewCoord(1.301, 103.8), a, a)
	assert.Equal(t, 0.0, ratio)
	assert.InDelta(t, 111, d, 2)
}

func TestBoxAround(t *testing.T) {
	c := NewCoord(1.35, 103.82)
	box := BoxAround(c, 500)
	require.True(t, Contains(box, c))
	assert.True(t, Contains(box, NewCoord(1.353, 103.82)))
	assert.False(t, Contains(box, NewCoord(1.36, 103.82)))
}

func TestTilesOverlapping(t *testing.T) {
	c := NewCoord(1.35, 103.82)
	id := TileID(c, DefaultZoom)

	r := TilesOverlapping(BoxAround(c, 1), DefaultZoom)
	require.True(t, r.Contains(id))
	assert.LessOrEqual(t, r.Count(), uint64(4))

	r = TilesOverlapping(BoxAround(c, 1000), DefaultZoom)
	assert.Greater(t, r.Count(), uint64(4))

	var seen []uint64
	r.Each(func(tile uint64) bool {
		seen = append(seen, tile)
		return true
	})
	assert.Len(t, seen, int(r.Count()))
	assert.Contains(t, seen, id)

	stopped := 0
	r.Each(func(uint64) bool {
		stopped++
		return false
	})
	assert.Equal(t, 1, stopped)
}
