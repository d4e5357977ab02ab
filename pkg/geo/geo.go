// Package geo holds the coordinate, bounding box and tile primitives shared by
// the graph store and the router.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Coord is a vertex position. It is stored at float32 precision on disk.
type Coord struct {
	Lat float32
	Lon float32
}

// NewCoord builds a Coord from float64 degrees.
func NewCoord(lat, lon float64) Coord {
	return Coord{Lat: float32(lat), Lon: float32(lon)}
}

// Point converts to an orb point (lon, lat order).
func (c Coord) Point() orb.Point {
	return orb.Point{float64(c.Lon), float64(c.Lat)}
}

// CoordOf converts an orb point back to a Coord.
func CoordOf(p orb.Point) Coord {
	return Coord{Lat: float32(p.Lat()), Lon: float32(p.Lon())}
}

// Box is an axis aligned lon/lat bounding box.
type Box = orb.Bound

// NewBox returns the box spanning the given corners.
func NewBox(minLat, minLon, maxLat, maxLon float64) Box {
	return orb.Bound{
		Min: orb.Point{minLon, minLat},
		Max: orb.Point{maxLon, maxLat},
	}
}

// BoxAround returns a box containing every point within meters of c.
func BoxAround(c Coord, meters float64) Box {
	dLat := meters / degToMeters
	dLon := dLat / math.Max(math.Cos(float64(c.Lat)*math.Pi/180), 1e-6)
	return NewBox(float64(c.Lat)-dLat, float64(c.Lon)-dLon, float64(c.Lat)+dLat, float64(c.Lon)+dLon)
}

// Contains reports whether c lies inside b, borders included.
func Contains(b Box, c Coord) bool {
	return b.Contains(c.Point())
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b Coord) float64 {
	return orbgeo.DistanceHaversine(a.Point(), b.Point())
}

const earthRadiusMeters = 6_371_000.0

// degToMeters converts degree-scaled equirectangular distances to meters.
const degToMeters = math.Pi / 180 * earthRadiusMeters

// ProjectOnSegment returns the distance in meters from p to segment ab and the
// position of the closest point along ab as a ratio in [0, 1].
//
// The projection is equirectangular around the segment's mean latitude, which
// is accurate enough for snapping distances of a few hundred meters.
func ProjectOnSegment(p, a, b Coord) (meters float64, ratio float64) {
	cosLat := math.Cos((float64(a.Lat) + float64(b.Lat)) / 2 * math.Pi / 180)

	ax, ay := float64(a.Lon)*cosLat, float64(a.Lat)
	bx, by := float64(b.Lon)*cosLat, float64(b.Lat)
	px, py := float64(p.Lon)*cosLat, float64(p.Lat)

	// Degenerate segments are detected on the stored values, before the
	// cosine scaling can introduce noise.
	if a == b {
		return math.Hypot(px-ax, py-ay) * degToMeters, 0
	}

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq > 0 {
		ratio = ((px-ax)*dx + (py-ay)*dy) / lenSq
		ratio = math.Max(0, math.Min(1, ratio))
	}

	return math.Hypot(px-(ax+ratio*dx), py-(ay+ratio*dy)) * degToMeters, ratio
}
