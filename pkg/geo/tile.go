package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// DefaultZoom is the tile zoom level used by the spatial region index.
const DefaultZoom maptile.Zoom = 18

// TileID returns the quadkey of the tile containing c at zoom z.
func TileID(c Coord, z maptile.Zoom) uint64 {
	return maptile.At(c.Point(), z).Quadkey()
}

// TileRange is the inclusive x/y range of tiles overlapping a box.
type TileRange struct {
	Zoom       maptile.Zoom
	MinX, MaxX uint32
	MinY, MaxY uint32
}

// maxMercatorLat is the latitude limit of the web mercator tiling.
const maxMercatorLat = 85.05112878

// TilesOverlapping returns the tile range covering b at zoom z.
func TilesOverlapping(b Box, z maptile.Zoom) TileRange {
	clampLat := func(lat float64) float64 { return max(-maxMercatorLat, min(maxMercatorLat, lat)) }
	clampLon := func(lon float64) float64 { return max(-180, min(180, lon)) }

	// Tile y grows southward, so the north-west corner holds the minimum y.
	nw := maptile.At(orb.Point{clampLon(b.Min.Lon()), clampLat(b.Max.Lat())}, z)
	se := maptile.At(orb.Point{clampLon(b.Max.Lon()), clampLat(b.Min.Lat())}, z)

	last := uint32(1)<<uint32(z) - 1
	return TileRange{
		Zoom: z,
		MinX: min(nw.X, last),
		MaxX: min(se.X, last),
		MinY: min(nw.Y, last),
		MaxY: min(se.Y, last),
	}
}

// Count returns the number of tiles in the range.
func (r TileRange) Count() uint64 {
	if r.MaxX < r.MinX || r.MaxY < r.MinY {
		return 0
	}
	return uint64(r.MaxX-r.MinX+1) * uint64(r.MaxY-r.MinY+1)
}

// Contains reports whether the tile with the given quadkey lies in the range.
func (r TileRange) Contains(id uint64) bool {
	t := maptile.FromQuadkey(id, r.Zoom)
	return t.X >= r.MinX && t.X <= r.MaxX && t.Y >= r.MinY && t.Y <= r.MaxY
}

// Each calls fn with the quadkey of every tile in the range until fn returns
// false.
func (r TileRange) Each(fn func(id uint64) bool) {
	if r.Count() == 0 {
		return
	}
	for x := r.MinX; x <= r.MaxX; x++ {
		for y := r.MinY; y <= r.MaxY; y++ {
			if !fn(maptile.Tile{X: x, Y: y, Z: r.Zoom}.Quadkey()) {
				return
			}
		}
	}
}
