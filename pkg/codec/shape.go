package codec

import (
	"encoding/binary"

	"github.com/azybler/chroute/pkg/geo"
)

// ShapeBlock holds the intermediate points of every arc of one vertex
// block, at the same arc positions as the vertex block.
type ShapeBlock struct {
	First  []uint32 // len = arcs+1
	Points []geo.Coord
}

// NewShapeBlock lays out shapes, one per arc, in arc order.
func NewShapeBlock(shapes [][]geo.Coord) ShapeBlock {
	sb := ShapeBlock{First: make([]uint32, 0, len(shapes)+1)}
	for _, s := range shapes {
		sb.First = append(sb.First, uint32(len(sb.Points)))
		sb.Points = append(sb.Points, s...)
	}
	sb.First = append(sb.First, uint32(len(sb.Points)))
	return sb
}

// Len returns the number of arcs covered.
func (sb ShapeBlock) Len() int {
	if len(sb.First) == 0 {
		return 0
	}
	return len(sb.First) - 1
}

// Shape returns the points of arc i, nil when it has none.
func (sb ShapeBlock) Shape(i int) []geo.Coord {
	if i < 0 || i >= sb.Len() {
		return nil
	}
	s, e := sb.First[i], sb.First[i+1]
	if s == e {
		return nil
	}
	return sb.Points[s:e:e]
}

// SerializeBlockShape encodes and compresses a shape block.
func SerializeBlockShape(sb ShapeBlock) ([]byte, error) {
	if len(sb.First) == 0 {
		sb.First = []uint32{0}
	}
	buf := make([]byte, 0, 8+4*len(sb.First)+8*len(sb.Points))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(sb.First)-1))
	for _, f := range sb.First {
		buf = binary.LittleEndian.AppendUint32(buf, f)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(sb.Points)))
	for _, p := range sb.Points {
		buf = appendF32(buf, p.Lat)
		buf = appendF32(buf, p.Lon)
	}
	return compress(buf)
}

// DeserializeBlockShape decompresses and decodes a shape block.
func DeserializeBlockShape(data []byte) (ShapeBlock, error) {
	const section = "shape"
	raw, err := decompress(section, data)
	if err != nil {
		return ShapeBlock{}, err
	}
	d := decoder{b: raw}
	arcs := d.u32()
	if d.err || uint64(d.remaining()) < 4*(uint64(arcs)+1)+4 {
		return ShapeBlock{}, corrupt(section, "%d arcs do not fit %d bytes", arcs, len(raw))
	}
	sb := ShapeBlock{First: make([]uint32, arcs+1)}
	for i := range sb.First {
		sb.First[i] = d.u32()
		if i > 0 && sb.First[i] < sb.First[i-1] {
			return ShapeBlock{}, corrupt(section, "offsets decrease at arc %d", i)
		}
	}
	n := d.u32()
	if uint64(d.remaining()) != 8*uint64(n) {
		return ShapeBlock{}, corrupt(section, "%d points need %d bytes, have %d", n, 8*uint64(n), d.remaining())
	}
	if sb.First[0] != 0 || sb.First[arcs] != n {
		return ShapeBlock{}, corrupt(section, "offsets [%d,%d] disagree with %d points", sb.First[0], sb.First[arcs], n)
	}
	sb.Points = make([]geo.Coord, n)
	for i := range sb.Points {
		sb.Points[i].Lat = d.f32()
		sb.Points[i].Lon = d.f32()
	}
	return sb, nil
}
