package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
)

// Index locates the blocks of one section. Ends holds cumulative byte
// offsets relative to the first block byte, so block k spans
// [Ends[k-1], Ends[k]). Keyed indexes also carry a sorted key per block.
type Index struct {
	Param uint32
	Keys  []uint64
	Ends  []uint32
}

// Len returns the number of blocks.
func (ix Index) Len() int { return len(ix.Ends) }

// Span returns the byte range of block k relative to the first block.
func (ix Index) Span(k int) (start, end uint32) {
	if k > 0 {
		start = ix.Ends[k-1]
	}
	return start, ix.Ends[k]
}

// Find returns the block holding key in a keyed index.
func (ix Index) Find(key uint64) (int, bool) {
	return slices.BinarySearch(ix.Keys, key)
}

// Size returns the encoded size of the index in bytes.
func (ix Index) Size() int {
	entry := 4
	if ix.Keys != nil {
		entry = 12
	}
	return 8 + entry*len(ix.Ends)
}

// AppendBinary appends the encoded index to b.
func (ix Index) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, ix.Param)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(ix.Ends)))
	for i, end := range ix.Ends {
		if ix.Keys != nil {
			b = binary.LittleEndian.AppendUint64(b, ix.Keys[i])
		}
		b = binary.LittleEndian.AppendUint32(b, end)
	}
	return b
}

// DecodeIndex parses an encoded index. keyed selects the region layout.
func DecodeIndex(section string, raw []byte, keyed bool) (Index, error) {
	d := decoder{b: raw}
	ix := Index{Param: d.u32()}
	n := d.u32()
	entry := uint64(4)
	if keyed {
		entry = 12
	}
	if d.err || uint64(d.remaining()) != entry*uint64(n) {
		return Index{}, corrupt(section, "index of %d entries does not match %d bytes", n, len(raw))
	}
	ix.Ends = make([]uint32, n)
	if keyed {
		ix.Keys = make([]uint64, n)
	}
	for i := range ix.Ends {
		if keyed {
			ix.Keys[i] = d.u64()
			if i > 0 && ix.Keys[i] <= ix.Keys[i-1] {
				return Index{}, corrupt(section, "index keys not ascending at %d", i)
			}
		}
		ix.Ends[i] = d.u32()
		if i > 0 && ix.Ends[i] < ix.Ends[i-1] {
			return Index{}, corrupt(section, "index offsets decrease at %d", i)
		}
	}
	return ix, nil
}

// EncodeSection lays out a dense section: int32 index size, index, blocks.
func EncodeSection(param uint32, blocks [][]byte) []byte {
	ix := Index{Param: param}
	return encode(ix, blocks, true)
}

// EncodeKeyedSection lays out a keyed section without a size prefix. The
// caller records the index size, returned alongside the bytes.
func EncodeKeyedSection(param uint32, keys []uint64, blocks [][]byte) ([]byte, int) {
	ix := Index{Param: param, Keys: slices.Clone(keys)}
	if ix.Keys == nil {
		ix.Keys = []uint64{}
	}
	return encode(ix, blocks, false), 8 + 12*len(blocks)
}

func encode(ix Index, blocks [][]byte, prefix bool) []byte {
	var end uint32
	ix.Ends = make([]uint32, len(blocks))
	for i, b := range blocks {
		end += uint32(len(b))
		ix.Ends[i] = end
	}
	var out []byte
	if prefix {
		out = binary.LittleEndian.AppendUint32(out, uint32(ix.Size()))
	}
	out = ix.AppendBinary(out)
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

// Section reads the blocks of one section from a positioned reader.
type Section struct {
	Index
	Name string
	r    io.ReaderAt
	base int64 // absolute offset of the first block byte
}

// OpenSection reads the size-prefixed index of a dense section at offset.
func OpenSection(r io.ReaderAt, name string, offset int64) (*Section, error) {
	var p [4]byte
	if _, err := r.ReadAt(p[:], offset); err != nil {
		return nil, fmt.Errorf("read %s index size: %w", name, err)
	}
	size := int32(binary.LittleEndian.Uint32(p[:]))
	if size < 8 {
		return nil, corrupt(name, "index size %d", size)
	}
	return openIndexed(r, name, offset+4, int64(size), false)
}

// OpenKeyedSection reads a keyed index of known size at offset.
func OpenKeyedSection(r io.ReaderAt, name string, offset, size int64) (*Section, error) {
	return openIndexed(r, name, offset, size, true)
}

func openIndexed(r io.ReaderAt, name string, offset, size int64, keyed bool) (*Section, error) {
	raw := make([]byte, size)
	if _, err := r.ReadAt(raw, offset); err != nil {
		return nil, fmt.Errorf("read %s index: %w", name, err)
	}
	ix, err := DecodeIndex(name, raw, keyed)
	if err != nil {
		return nil, err
	}
	return &Section{Index: ix, Name: name, r: r, base: offset + size}, nil
}

// End returns the absolute offset just past the last block.
func (s *Section) End() int64 {
	if s.Len() == 0 {
		return s.base
	}
	return s.base + int64(s.Ends[s.Len()-1])
}

// Raw returns the compressed bytes of block k.
func (s *Section) Raw(k int) ([]byte, error) {
	if k < 0 || k >= s.Len() {
		return nil, fmt.Errorf("%s block %d out of range [0,%d)", s.Name, k, s.Len())
	}
	start, end := s.Span(k)
	buf := make([]byte, end-start)
	n, err := s.r.ReadAt(buf, s.base+int64(start))
	if n == len(buf) {
		return buf, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, &CorruptBlockError{Section: s.Name, Block: k, Err: io.ErrUnexpectedEOF}
	}
	return nil, fmt.Errorf("read %s block %d: %w", s.Name, k, err)
}

// ReadBlock fetches block k of s and decodes it. Decoding failures carry the
// block number.
func ReadBlock[T any](s *Section, k int, decode func([]byte) (T, error)) (T, error) {
	var zero T
	raw, err := s.Raw(k)
	if err != nil {
		return zero, err
	}
	v, err := decode(raw)
	if err != nil {
		var cbe *CorruptBlockError
		if errors.As(err, &cbe) {
			return zero, &CorruptBlockError{Section: s.Name, Block: k, Err: cbe.Err}
		}
		return zero, fmt.Errorf("decode %s block %d: %w", s.Name, k, err)
	}
	return v, nil
}
