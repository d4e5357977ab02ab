package codec

import (
	"encoding/binary"

	"github.com/azybler/chroute/pkg/graph"
)

// ReverseBlock lists, per vertex of a block, the vertices storing a base arc
// that targets it.
type ReverseBlock struct {
	First      []uint32 // len = vertices+1
	Neighbours []graph.VertexID
}

// NewReverseBlock lays out one neighbour list per vertex.
func NewReverseBlock(lists [][]graph.VertexID) ReverseBlock {
	rb := ReverseBlock{First: make([]uint32, 0, len(lists)+1)}
	for _, l := range lists {
		rb.First = append(rb.First, uint32(len(rb.Neighbours)))
		rb.Neighbours = append(rb.Neighbours, l...)
	}
	rb.First = append(rb.First, uint32(len(rb.Neighbours)))
	return rb
}

// Len returns the number of vertices covered.
func (rb ReverseBlock) Len() int {
	if len(rb.First) == 0 {
		return 0
	}
	return len(rb.First) - 1
}

// Of returns the reverse neighbours of the i-th vertex of the block.
func (rb ReverseBlock) Of(i int) []graph.VertexID {
	if i < 0 || i >= rb.Len() {
		return nil
	}
	s, e := rb.First[i], rb.First[i+1]
	return rb.Neighbours[s:e:e]
}

// SerializeReverseBlock encodes and compresses a reverse block.
func SerializeReverseBlock(rb ReverseBlock) ([]byte, error) {
	if len(rb.First) == 0 {
		rb.First = []uint32{0}
	}
	buf := make([]byte, 0, 4+4*len(rb.First)+4*len(rb.Neighbours))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rb.First)-1))
	for _, f := range rb.First {
		buf = binary.LittleEndian.AppendUint32(buf, f)
	}
	for _, n := range rb.Neighbours {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n))
	}
	return compress(buf)
}

// DeserializeReverseBlock decompresses and decodes a reverse block.
func DeserializeReverseBlock(data []byte) (ReverseBlock, error) {
	const section = "reverse"
	raw, err := decompress(section, data)
	if err != nil {
		return ReverseBlock{}, err
	}
	d := decoder{b: raw}
	nv := d.u32()
	if d.err || uint64(d.remaining()) < 4*(uint64(nv)+1) {
		return ReverseBlock{}, corrupt(section, "%d vertices do not fit %d bytes", nv, len(raw))
	}
	rb := ReverseBlock{First: make([]uint32, nv+1)}
	for i := range rb.First {
		rb.First[i] = d.u32()
		if i > 0 && rb.First[i] < rb.First[i-1] {
			return ReverseBlock{}, corrupt(section, "offsets decrease at vertex %d", i)
		}
	}
	n := rb.First[nv]
	if rb.First[0] != 0 || uint64(d.remaining()) != 4*uint64(n) {
		return ReverseBlock{}, corrupt(section, "%d neighbours need %d bytes, have %d", n, 4*uint64(n), d.remaining())
	}
	rb.Neighbours = make([]graph.VertexID, n)
	for i := range rb.Neighbours {
		rb.Neighbours[i] = graph.VertexID(d.u32())
	}
	return rb, nil
}
