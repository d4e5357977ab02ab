package codec

import (
	"encoding/binary"
	"slices"

	"github.com/azybler/chroute/pkg/graph"
)

// SerializeRegion encodes and compresses the vertex list of one region.
// The ids are written in ascending order.
func SerializeRegion(ids []graph.VertexID) ([]byte, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	buf := make([]byte, 0, 4+4*len(sorted))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(sorted)))
	for _, id := range sorted {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	}
	return compress(buf)
}

// DeserializeRegion decompresses and decodes a region vertex list.
func DeserializeRegion(data []byte) ([]graph.VertexID, error) {
	const section = "region"
	raw, err := decompress(section, data)
	if err != nil {
		return nil, err
	}
	d := decoder{b: raw}
	n := d.u32()
	if d.err || uint64(d.remaining()) != 4*uint64(n) {
		return nil, corrupt(section, "%d ids do not match %d bytes", n, len(raw))
	}
	ids := make([]graph.VertexID, n)
	for i := range ids {
		ids[i] = graph.VertexID(d.u32())
		if i > 0 && ids[i] <= ids[i-1] {
			return nil, corrupt(section, "ids not strictly ascending at %d", i)
		}
	}
	return ids, nil
}
