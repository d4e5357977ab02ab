// Package store is the read side of the block-compressed graph file: a
// graph.BoxReader over an io.ReaderAt that decodes blocks on demand and keeps
// them in LRU caches.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/azybler/chroute/pkg/codec"
	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
	"github.com/azybler/chroute/pkg/region"
	"github.com/azybler/chroute/pkg/tags"
)

var errHeader = errors.New("invalid header")

// Options configures cache sizes, in decoded blocks.
type Options struct {
	BlockCache   int
	ShapeCache   int
	ReverseCache int
	RegionCache  int
	TagCache     int
	Logger       *zap.Logger
}

// DefaultOptions returns the cache sizes used when a field is zero.
func DefaultOptions() Options {
	return Options{
		BlockCache:   4096,
		ShapeCache:   512,
		ReverseCache: 1024,
		RegionCache:  1024,
		TagCache:     256,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BlockCache <= 0 {
		o.BlockCache = d.BlockCache
	}
	if o.ShapeCache <= 0 {
		o.ShapeCache = d.ShapeCache
	}
	if o.ReverseCache <= 0 {
		o.ReverseCache = d.ReverseCache
	}
	if o.RegionCache <= 0 {
		o.RegionCache = d.RegionCache
	}
	if o.TagCache <= 0 {
		o.TagCache = d.TagCache
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Store is a read-only graph backed by a graph file. It is safe for
// concurrent use; the caches are the only mutable state.
type Store struct {
	closer io.Closer
	log    *zap.Logger

	regions   *region.Reader
	blocks    *codec.Section
	shapes    *codec.Section
	reverse   *codec.Section
	tags      *codec.Section
	blockSize uint32

	blockCache   *lru.Cache[graph.VertexID, *codec.Block]
	shapeCache   *lru.Cache[graph.VertexID, *codec.ShapeBlock]
	reverseCache *lru.Cache[graph.VertexID, *codec.ReverseBlock]
	tagCache     *lru.Cache[int, []osm.Tags]

	countMu sync.Mutex
	counted bool
	count   uint32
}

var _ graph.BoxReader = (*Store)(nil)

// OpenFile opens a graph file. Close releases it.
func OpenFile(path string, opts Options) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat graph: %w", err)
	}
	s, err := Open(f, fi.Size(), opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// Open reads the header and section indexes of a graph of the given size.
// r must support concurrent ReadAt calls.
func Open(r io.ReaderAt, size int64, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	var hdr [headerSize]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var fields [5]int64
	for i := range fields {
		fields[i] = int64(int32(binary.LittleEndian.Uint32(hdr[4*i:])))
	}
	startBlocks, startShapes, startReverse, startTags, regionIndexSize := fields[0], fields[1], fields[2], fields[3], fields[4]
	if regionIndexSize < 8 || headerSize+regionIndexSize > startBlocks ||
		startBlocks > startShapes || startShapes > startReverse || startReverse > startTags || startTags >= size {
		return nil, fmt.Errorf("%w: offsets %v in %d bytes", errHeader, fields, size)
	}

	s := &Store{log: opts.Logger}
	var err error
	s.regions, err = region.Open(r, headerSize, regionIndexSize, region.Options{
		CacheSize: opts.RegionCache,
		OnLookup:  func(hit bool) { observeLookup("regions", hit) },
	})
	if err != nil {
		return nil, fmt.Errorf("open regions: %w", err)
	}
	if s.blocks, err = codec.OpenSection(r, "vertex", startBlocks); err != nil {
		return nil, fmt.Errorf("open blocks: %w", err)
	}
	if s.shapes, err = codec.OpenSection(r, "shape", startShapes); err != nil {
		return nil, fmt.Errorf("open shapes: %w", err)
	}
	if s.reverse, err = codec.OpenSection(r, "reverse", startReverse); err != nil {
		return nil, fmt.Errorf("open reverse index: %w", err)
	}
	if s.tags, err = codec.OpenSection(r, "tags", startTags); err != nil {
		return nil, fmt.Errorf("open tags: %w", err)
	}

	s.blockSize = s.blocks.Param
	if s.blockSize == 0 {
		return nil, fmt.Errorf("%w: zero block size", errHeader)
	}
	for _, sec := range []*codec.Section{s.shapes, s.reverse} {
		if sec.Param != s.blockSize || sec.Len() != s.blocks.Len() {
			return nil, fmt.Errorf("%w: %s section has %d blocks of %d, want %d of %d",
				errHeader, sec.Name, sec.Len(), sec.Param, s.blocks.Len(), s.blockSize)
		}
	}
	if s.tags.Len() > 0 && s.tags.Param == 0 {
		return nil, fmt.Errorf("%w: zero tag block size", errHeader)
	}
	if s.tags.End() > size {
		return nil, fmt.Errorf("%w: tags end at %d past %d bytes", errHeader, s.tags.End(), size)
	}

	if s.blockCache, err = lru.New[graph.VertexID, *codec.Block](opts.BlockCache); err != nil {
		return nil, err
	}
	if s.shapeCache, err = lru.New[graph.VertexID, *codec.ShapeBlock](opts.ShapeCache); err != nil {
		return nil, err
	}
	if s.reverseCache, err = lru.New[graph.VertexID, *codec.ReverseBlock](opts.ReverseCache); err != nil {
		return nil, err
	}
	if s.tagCache, err = lru.New[int, []osm.Tags](opts.TagCache); err != nil {
		return nil, err
	}

	s.log.Info("graph store opened",
		zap.Int64("bytes", size),
		zap.Int("blocks", s.blocks.Len()),
		zap.Uint32("block_size", s.blockSize),
		zap.Int("regions", s.regions.Len()),
		zap.Uint8("zoom", uint8(s.regions.Zoom())),
	)
	return s, nil
}

// Close releases the underlying file when the store was opened by OpenFile.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// BlockSize returns the number of vertices per block.
func (s *Store) BlockSize() uint32 { return s.blockSize }

// blockID returns the id of the first vertex of the block holding v.
func (s *Store) blockID(v graph.VertexID) graph.VertexID {
	return ((v-1)/graph.VertexID(s.blockSize))*graph.VertexID(s.blockSize) + 1
}

// locate returns the block id of v and v's position in it, false when v lies
// past the last block.
func (s *Store) locate(v graph.VertexID) (graph.VertexID, int, bool) {
	if v == graph.NoVertex {
		return 0, 0, false
	}
	id := s.blockID(v)
	if int((id-1)/graph.VertexID(s.blockSize)) >= s.blocks.Len() {
		return 0, 0, false
	}
	return id, int(v - id), true
}

func fetch[T any](s *Store, c *lru.Cache[graph.VertexID, *T], sec *codec.Section, id graph.VertexID, decode func([]byte) (T, error)) (*T, error) {
	if v, ok := c.Get(id); ok {
		observeLookup(sec.Name, true)
		return v, nil
	}
	observeLookup(sec.Name, false)
	k := int((id - 1) / graph.VertexID(s.blockSize))
	s.log.Debug("block cache miss", zap.String("section", sec.Name), zap.Int("block", k))

	start := time.Now()
	v, err := codec.ReadBlock(sec, k, decode)
	if err != nil {
		s.log.Error("block read failed", zap.String("section", sec.Name), zap.Int("block", k), zap.Error(err))
		return nil, err
	}
	observeDecode(sec.Name, start)
	// Two goroutines missing on the same block both decode it; the later Add
	// wins and both results are identical.
	c.Add(id, &v)
	return &v, nil
}

func (s *Store) block(id graph.VertexID) (*codec.Block, error) {
	return fetch(s, s.blockCache, s.blocks, id, codec.DeserializeBlock)
}

// VertexCount returns the number of vertices, derived from the last block.
func (s *Store) VertexCount() (uint32, error) {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	if s.counted {
		return s.count, nil
	}
	n := s.blocks.Len()
	if n == 0 {
		s.counted = true
		return 0, nil
	}
	last, err := s.block(graph.VertexID(uint32(n-1)*s.blockSize + 1))
	if err != nil {
		return 0, err
	}
	s.count = uint32(n-1)*s.blockSize + uint32(len(last.Vertices))
	s.counted = true
	return s.count, nil
}

// GetVertex implements graph.Reader.
func (s *Store) GetVertex(v graph.VertexID) (geo.Coord, bool, error) {
	id, i, ok := s.locate(v)
	if !ok {
		return geo.Coord{}, false, nil
	}
	b, err := s.block(id)
	if err != nil {
		return geo.Coord{}, false, err
	}
	if i >= len(b.Vertices) {
		return geo.Coord{}, false, nil
	}
	return b.Vertices[i].Coord, true, nil
}

// GetEdges implements graph.Reader. Arc shapes are read only when
// Arc.Shape is called.
func (s *Store) GetEdges(v graph.VertexID) ([]graph.Arc, error) {
	id, i, ok := s.locate(v)
	if !ok {
		return nil, nil
	}
	b, err := s.block(id)
	if err != nil {
		return nil, err
	}
	if i >= len(b.Vertices) {
		return nil, nil
	}
	rec := b.Vertices[i]
	out := make([]graph.Arc, rec.ArcCount)
	for j, a := range b.VertexArcs(i) {
		pos := int(rec.ArcIndex) + j
		out[j] = graph.NewArc(a.Target, a.Data, func() ([]geo.Coord, error) {
			return s.shape(id, pos)
		})
	}
	return out, nil
}

func (s *Store) shape(id graph.VertexID, pos int) ([]geo.Coord, error) {
	sb, err := fetch(s, s.shapeCache, s.shapes, id, codec.DeserializeBlockShape)
	if err != nil {
		return nil, err
	}
	return slices.Clone(sb.Shape(pos)), nil
}

// GetReverseNeighbours implements graph.Reader.
func (s *Store) GetReverseNeighbours(v graph.VertexID) ([]graph.VertexID, error) {
	id, i, ok := s.locate(v)
	if !ok {
		return nil, nil
	}
	rb, err := fetch(s, s.reverseCache, s.reverse, id, codec.DeserializeReverseBlock)
	if err != nil {
		return nil, err
	}
	return slices.Clone(rb.Of(i)), nil
}

// GetEdgesInBox implements graph.BoxReader. Both endpoints of an arc inside
// the box may report it. Base arcs stored outside the box that end at a
// vertex inside it are found through the reverse index and reported at their
// storing vertex.
func (s *Store) GetEdgesInBox(box geo.Box) ([]graph.BoxEdge, error) {
	ids, err := s.regions.Query(box)
	if err != nil {
		return nil, fmt.Errorf("query regions: %w", err)
	}
	inside := make(map[graph.VertexID]bool, len(ids))
	for _, v := range ids {
		inside[v] = true
	}

	var out []graph.BoxEdge
	for _, v := range ids {
		arcs, err := s.GetEdges(v)
		if err != nil {
			return nil, err
		}
		for _, a := range arcs {
			out = append(out, graph.BoxEdge{Vertex: v, Arc: a})
		}

		neighbours, err := s.GetReverseNeighbours(v)
		if err != nil {
			return nil, err
		}
		for _, u := range neighbours {
			if inside[u] {
				continue
			}
			arcs, err := s.GetEdges(u)
			if err != nil {
				return nil, err
			}
			for _, a := range arcs {
				if a.Target == v && a.Data.RepresentsNeighbourRelations() {
					out = append(out, graph.BoxEdge{Vertex: u, Arc: a})
				}
			}
		}
	}
	return out, nil
}

// Tags returns the tag set with the given reference.
func (s *Store) Tags(ref uint32) (osm.Tags, bool, error) {
	per := s.tags.Param
	if per == 0 {
		return nil, false, nil
	}
	k := int(ref / per)
	if k >= s.tags.Len() {
		return nil, false, nil
	}
	sets, ok := s.tagCache.Get(k)
	observeLookup("tags", ok)
	if !ok {
		var err error
		start := time.Now()
		if sets, err = codec.ReadBlock(s.tags, k, codec.DeserializeTagBlock); err != nil {
			return nil, false, err
		}
		observeDecode("tags", start)
		s.tagCache.Add(k, sets)
	}
	i := int(ref % per)
	if i >= len(sets) {
		return nil, false, nil
	}
	return sets[i], true, nil
}

// TagIndex exposes the tag sets as a tags.Index. Read failures are logged
// and reported as missing.
func (s *Store) TagIndex() tags.Index { return tagIndex{s} }

type tagIndex struct{ s *Store }

func (t tagIndex) Get(ref uint32) (osm.Tags, bool) {
	ts, ok, err := t.s.Tags(ref)
	if err != nil {
		t.s.log.Warn("tag lookup failed", zap.Uint32("ref", ref), zap.Error(err))
		return nil, false
	}
	return ts, ok
}

// Stats describes the store and the current cache occupancy.
type Stats struct {
	Vertices      uint32       `json:"vertices"`
	Blocks        int          `json:"blocks"`
	BlockSize     uint32       `json:"block_size"`
	Regions       int          `json:"regions"`
	Zoom          maptile.Zoom `json:"zoom"`
	TagBlocks     int          `json:"tag_blocks"`
	CachedBlocks  int          `json:"cached_blocks"`
	CachedShapes  int          `json:"cached_shapes"`
	CachedReverse int          `json:"cached_reverse"`
	CachedRegions int          `json:"cached_regions"`
	CachedTags    int          `json:"cached_tags"`
}

// Stats returns a snapshot of the store statistics.
func (s *Store) Stats() (Stats, error) {
	n, err := s.VertexCount()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Vertices:      n,
		Blocks:        s.blocks.Len(),
		BlockSize:     s.blockSize,
		Regions:       s.regions.Len(),
		Zoom:          s.regions.Zoom(),
		TagBlocks:     s.tags.Len(),
		CachedBlocks:  s.blockCache.Len(),
		CachedShapes:  s.shapeCache.Len(),
		CachedReverse: s.reverseCache.Len(),
		CachedRegions: s.regions.CacheLen(),
		CachedTags:    s.tagCache.Len(),
	}, nil
}
