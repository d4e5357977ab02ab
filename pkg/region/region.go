// Package region is the spatial index of the graph file: vertices grouped
// by the map tile holding them at a fixed zoom level.
package region

import (
	"fmt"
	"io"
	"maps"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb/maptile"

	"github.com/azybler/chroute/pkg/codec"
	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
)

// Regions maps tile quadkeys to the vertices inside each tile.
type Regions map[uint64][]graph.VertexID

// Build groups every vertex of g by the tile containing it.
func Build(g graph.Reader, zoom maptile.Zoom) (Regions, error) {
	n, err := g.VertexCount()
	if err != nil {
		return nil, fmt.Errorf("vertex count: %w", err)
	}
	regions := make(Regions)
	for v := graph.VertexID(1); uint32(v) <= n; v++ {
		c, ok, err := g.GetVertex(v)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", v, err)
		}
		if !ok {
			continue
		}
		id := geo.TileID(c, zoom)
		regions[id] = append(regions[id], v)
	}
	return regions, nil
}

// Encode serializes the regions as a keyed section. It returns the section
// bytes and the size of the index at their start.
func Encode(regions Regions, zoom maptile.Zoom) ([]byte, int, error) {
	keys := slices.Sorted(maps.Keys(regions))
	blocks := make([][]byte, len(keys))
	for i, k := range keys {
		b, err := codec.SerializeRegion(regions[k])
		if err != nil {
			return nil, 0, fmt.Errorf("region %d: %w", k, err)
		}
		blocks[i] = b
	}
	body, size := codec.EncodeKeyedSection(uint32(zoom), keys, blocks)
	return body, size, nil
}

// Options configures a Reader.
type Options struct {
	CacheSize int
	// OnLookup, if set, observes every region cache lookup.
	OnLookup func(hit bool)
}

// Reader answers bounding box queries against an encoded region section.
type Reader struct {
	section  *codec.Section
	zoom     maptile.Zoom
	cache    *lru.Cache[int, []graph.VertexID]
	onLookup func(bool)
}

// Open reads the region index of the given size at offset.
func Open(r io.ReaderAt, offset, size int64, opts Options) (*Reader, error) {
	s, err := codec.OpenKeyedSection(r, "region", offset, size)
	if err != nil {
		return nil, err
	}
	if s.Param > 32 {
		return nil, fmt.Errorf("region zoom %d: %w", s.Param, codec.ErrCorruptBlock)
	}
	cache, err := lru.New[int, []graph.VertexID](max(opts.CacheSize, 1))
	if err != nil {
		return nil, fmt.Errorf("region cache: %w", err)
	}
	return &Reader{section: s, zoom: maptile.Zoom(s.Param), cache: cache, onLookup: opts.OnLookup}, nil
}

// Zoom returns the tile zoom level of the index.
func (r *Reader) Zoom() maptile.Zoom { return r.zoom }

// Len returns the number of non-empty regions.
func (r *Reader) Len() int { return r.section.Len() }

// CacheLen returns the number of decoded regions held in the cache.
func (r *Reader) CacheLen() int { return r.cache.Len() }

// End returns the absolute offset just past the last region block.
func (r *Reader) End() int64 { return r.section.End() }

// Query returns the sorted ids of every vertex in a tile overlapping box.
// Vertices slightly outside the box may be included.
func (r *Reader) Query(box geo.Box) ([]graph.VertexID, error) {
	tiles := geo.TilesOverlapping(box, r.zoom)

	var blocks []int
	if tiles.Count() <= uint64(r.section.Len()) {
		tiles.Each(func(id uint64) bool {
			if k, ok := r.section.Find(id); ok {
				blocks = append(blocks, k)
			}
			return true
		})
	} else {
		// Large boxes: scanning the index beats probing every tile.
		for k, id := range r.section.Keys {
			if tiles.Contains(id) {
				blocks = append(blocks, k)
			}
		}
	}

	var out []graph.VertexID
	for _, k := range blocks {
		ids, err := r.region(k)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	// Tiles are disjoint, so ids are unique; only the order needs fixing.
	slices.Sort(out)
	return out, nil
}

func (r *Reader) region(k int) ([]graph.VertexID, error) {
	ids, ok := r.cache.Get(k)
	if r.onLookup != nil {
		r.onLookup(ok)
	}
	if ok {
		return ids, nil
	}
	ids, err := codec.ReadBlock(r.section, k, codec.DeserializeRegion)
	if err != nil {
		return nil, err
	}
	r.cache.Add(k, ids)
	return ids, nil
}
