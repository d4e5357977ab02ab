package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
)

const (
	blockHeaderSize  = 8
	vertexRecordSize = 16
	arcRecordSize    = 21
)

// VertexRecord locates a vertex's arcs inside its block's arc array.
type VertexRecord struct {
	Coord    geo.Coord
	ArcIndex uint32
	ArcCount uint32
}

// ArcRecord is one stored arc.
type ArcRecord struct {
	Target graph.VertexID
	Data   graph.EdgeData
}

// Block is the decoded content of one vertex block.
type Block struct {
	Vertices []VertexRecord
	Arcs     []ArcRecord
}

// VertexArcs returns the arc records of the i-th vertex of the block.
func (b *Block) VertexArcs(i int) []ArcRecord {
	v := b.Vertices[i]
	return b.Arcs[v.ArcIndex : v.ArcIndex+v.ArcCount]
}

func packValue(d graph.EdgeData) uint32 {
	v := uint32(d.Direction) & 0b11
	if d.TagsForward {
		v |= 1 << 2
	}
	return v | d.TagsRef<<3
}

func unpackValue(v uint32, d *graph.EdgeData) error {
	d.Direction = graph.Direction(v & 0b11)
	if d.Direction > graph.ToLower {
		return fmt.Errorf("direction bits %d", v&0b11)
	}
	d.TagsForward = v&(1<<2) != 0
	d.TagsRef = v >> 3
	return nil
}

// SerializeBlock encodes and compresses a vertex block.
func SerializeBlock(b Block) ([]byte, error) {
	buf := make([]byte, 0, blockHeaderSize+vertexRecordSize*len(b.Vertices)+arcRecordSize*len(b.Arcs))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b.Vertices)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b.Arcs)))
	for _, v := range b.Vertices {
		if uint64(v.ArcIndex)+uint64(v.ArcCount) > uint64(len(b.Arcs)) {
			return nil, fmt.Errorf("vertex arc range [%d,+%d) exceeds %d arcs", v.ArcIndex, v.ArcCount, len(b.Arcs))
		}
		buf = appendF32(buf, v.Coord.Lat)
		buf = appendF32(buf, v.Coord.Lon)
		buf = binary.LittleEndian.AppendUint32(buf, v.ArcIndex)
		buf = binary.LittleEndian.AppendUint32(buf, v.ArcCount)
	}
	for _, a := range b.Arcs {
		if a.Data.TagsRef > graph.MaxTagsRef {
			return nil, fmt.Errorf("tags reference %d does not fit", a.Data.TagsRef)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(a.Target))
		buf = appendF32(buf, a.Data.ForwardWeight)
		buf = appendF32(buf, a.Data.BackwardWeight)
		buf = binary.LittleEndian.AppendUint32(buf, packValue(a.Data))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(a.Data.ContractedID))
		buf = append(buf, a.Data.Meta)
	}
	return compress(buf)
}

// DeserializeBlock decompresses and decodes a vertex block.
func DeserializeBlock(data []byte) (Block, error) {
	const section = "vertex"
	raw, err := decompress(section, data)
	if err != nil {
		return Block{}, err
	}
	d := decoder{b: raw}
	nv, na := d.u32(), d.u32()
	if d.err {
		return Block{}, corrupt(section, "short header: %d bytes", len(raw))
	}
	want := uint64(vertexRecordSize)*uint64(nv) + uint64(arcRecordSize)*uint64(na)
	if uint64(d.remaining()) != want {
		return Block{}, corrupt(section, "%d vertices and %d arcs need %d bytes, have %d", nv, na, want, d.remaining())
	}

	b := Block{
		Vertices: make([]VertexRecord, nv),
		Arcs:     make([]ArcRecord, na),
	}
	for i := range b.Vertices {
		v := &b.Vertices[i]
		v.Coord.Lat = d.f32()
		v.Coord.Lon = d.f32()
		v.ArcIndex = d.u32()
		v.ArcCount = d.u32()
		if uint64(v.ArcIndex)+uint64(v.ArcCount) > uint64(na) {
			return Block{}, corrupt(section, "vertex %d arc range [%d,+%d) exceeds %d arcs", i, v.ArcIndex, v.ArcCount, na)
		}
	}
	for i := range b.Arcs {
		a := &b.Arcs[i]
		a.Target = graph.VertexID(d.u32())
		a.Data.ForwardWeight = d.f32()
		a.Data.BackwardWeight = d.f32()
		if err := unpackValue(d.u32(), &a.Data); err != nil {
			return Block{}, corrupt(section, "arc %d: %w", i, err)
		}
		a.Data.ContractedID = graph.VertexID(d.u32())
		a.Data.Meta = d.u8()
	}
	return b, nil
}
