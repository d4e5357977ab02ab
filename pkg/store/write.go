package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb/maptile"

	"github.com/azybler/chroute/pkg/codec"
	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
	"github.com/azybler/chroute/pkg/region"
	"github.com/azybler/chroute/pkg/tags"
)

const headerSize = 20

const (
	DefaultBlockSize    = 32
	DefaultTagsPerBlock = 128
)

// WriteOptions configures the file layout.
type WriteOptions struct {
	BlockSize    uint32       // vertices per block, DefaultBlockSize when zero
	TagsPerBlock uint32       // tag sets per tag block, DefaultTagsPerBlock when zero
	Zoom         maptile.Zoom // region tile zoom, geo.DefaultZoom when zero
}

func (o WriteOptions) withDefaults() WriteOptions {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.TagsPerBlock == 0 {
		o.TagsPerBlock = DefaultTagsPerBlock
	}
	if o.Zoom == 0 {
		o.Zoom = geo.DefaultZoom
	}
	return o
}

// WriteFile writes the graph to path through a temp file and an atomic
// rename.
func WriteFile(path string, g graph.Reader, t *tags.Table, opts WriteOptions) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	bw := bufio.NewWriterSize(f, 1<<20)
	if err := Write(bw, g, t, opts); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Atomic rename.
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Write serializes g and its tag table. A nil table holds only the empty
// tag set.
func Write(w io.Writer, g graph.Reader, t *tags.Table, opts WriteOptions) error {
	opts = opts.withDefaults()
	if t == nil {
		t = tags.NewTable()
	}

	n, err := g.VertexCount()
	if err != nil {
		return fmt.Errorf("vertex count: %w", err)
	}

	// Step 1: Spatial regions.
	regions, err := region.Build(g, opts.Zoom)
	if err != nil {
		return fmt.Errorf("build regions: %w", err)
	}
	regionBody, regionIndexSize, err := region.Encode(regions, opts.Zoom)
	if err != nil {
		return fmt.Errorf("encode regions: %w", err)
	}

	// Step 2: Vertex, shape and reverse blocks, one of each per vertex run.
	numBlocks := (n + opts.BlockSize - 1) / opts.BlockSize
	blocks := make([][]byte, numBlocks)
	shapes := make([][]byte, numBlocks)
	reverse := make([][]byte, numBlocks)
	tagCount := uint32(t.Len())
	for k := range numBlocks {
		first := graph.VertexID(k*opts.BlockSize + 1)
		last := graph.VertexID(min((k+1)*opts.BlockSize, n))
		if blocks[k], shapes[k], reverse[k], err = encodeBlock(g, first, last, tagCount); err != nil {
			return err
		}
	}

	// Step 3: Tag blocks.
	sets := t.Sets()
	var tagBlocks [][]byte
	for start := 0; start < len(sets); start += int(opts.TagsPerBlock) {
		end := min(start+int(opts.TagsPerBlock), len(sets))
		b, err := codec.SerializeTagBlock(sets[start:end])
		if err != nil {
			return fmt.Errorf("tag block %d: %w", len(tagBlocks), err)
		}
		tagBlocks = append(tagBlocks, b)
	}

	sections := [][]byte{
		regionBody,
		codec.EncodeSection(opts.BlockSize, blocks),
		codec.EncodeSection(opts.BlockSize, shapes),
		codec.EncodeSection(opts.BlockSize, reverse),
		codec.EncodeSection(opts.TagsPerBlock, tagBlocks),
	}

	// Step 4: Header with absolute section offsets.
	offsets := make([]int64, len(sections))
	pos := int64(headerSize)
	for i, s := range sections {
		offsets[i] = pos
		pos += int64(len(s))
	}
	if pos > math.MaxInt32 {
		return fmt.Errorf("graph file of %d bytes exceeds the 2 GiB format limit", pos)
	}

	header := make([]byte, 0, headerSize)
	for _, off := range offsets[1:] {
		header = binary.LittleEndian.AppendUint32(header, uint32(off))
	}
	header = binary.LittleEndian.AppendUint32(header, uint32(regionIndexSize))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, s := range sections {
		if _, err := w.Write(s); err != nil {
			return fmt.Errorf("write section %d: %w", i, err)
		}
	}
	return nil
}

func encodeBlock(g graph.Reader, first, last graph.VertexID, tagCount uint32) (block, shape, reverse []byte, err error) {
	var (
		b         codec.Block
		arcShapes [][]geo.Coord
		revLists  [][]graph.VertexID
	)
	for v := first; v <= last; v++ {
		c, ok, err := g.GetVertex(v)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("vertex %d: %w", v, err)
		}
		if !ok {
			return nil, nil, nil, fmt.Errorf("vertex %d: %w", v, graph.ErrInvalidVertex)
		}
		arcs, err := g.GetEdges(v)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("edges of %d: %w", v, err)
		}
		b.Vertices = append(b.Vertices, codec.VertexRecord{
			Coord:    c,
			ArcIndex: uint32(len(b.Arcs)),
			ArcCount: uint32(len(arcs)),
		})
		for _, a := range arcs {
			if a.Data.TagsRef >= tagCount {
				return nil, nil, nil, fmt.Errorf("arc %d->%d: tags reference %d not in table of %d", v, a.Target, a.Data.TagsRef, tagCount)
			}
			pts, err := a.Shape()
			if err != nil {
				return nil, nil, nil, fmt.Errorf("shape of %d->%d: %w", v, a.Target, err)
			}
			b.Arcs = append(b.Arcs, codec.ArcRecord{Target: a.Target, Data: a.Data})
			arcShapes = append(arcShapes, pts)
		}
		rev, err := g.GetReverseNeighbours(v)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("reverse neighbours of %d: %w", v, err)
		}
		revLists = append(revLists, rev)
	}

	if block, err = codec.SerializeBlock(b); err != nil {
		return nil, nil, nil, fmt.Errorf("block at %d: %w", first, err)
	}
	if shape, err = codec.SerializeBlockShape(codec.NewShapeBlock(arcShapes)); err != nil {
		return nil, nil, nil, fmt.Errorf("shape block at %d: %w", first, err)
	}
	if reverse, err = codec.SerializeReverseBlock(codec.NewReverseBlock(revLists)); err != nil {
		return nil, nil, nil, fmt.Errorf("reverse block at %d: %w", first, err)
	}
	return block, shape, reverse, nil
}
