package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paulmach/osm"
)

// SerializeTagBlock encodes and compresses a run of consecutive tag sets.
func SerializeTagBlock(sets []osm.Tags) ([]byte, error) {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(sets)))
	for i, ts := range sets {
		if len(ts) > math.MaxUint16 {
			return nil, fmt.Errorf("tag set %d has %d pairs", i, len(ts))
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ts)))
		for _, t := range ts {
			if len(t.Key) > math.MaxUint16 || len(t.Value) > math.MaxUint16 {
				return nil, fmt.Errorf("tag %q in set %d is too long", t.Key, i)
			}
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(t.Key)))
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(t.Value)))
			buf = append(buf, t.Key...)
			buf = append(buf, t.Value...)
		}
	}
	return compress(buf)
}

// DeserializeTagBlock decompresses and decodes a tag block.
func DeserializeTagBlock(data []byte) ([]osm.Tags, error) {
	const section = "tags"
	raw, err := decompress(section, data)
	if err != nil {
		return nil, err
	}
	d := decoder{b: raw}
	n := d.u32()
	// Every set takes at least two bytes.
	if d.err || uint64(n)*2 > uint64(d.remaining()) {
		return nil, corrupt(section, "%d sets do not fit %d bytes", n, len(raw))
	}
	sets := make([]osm.Tags, n)
	for i := range sets {
		pairs := int(d.u16())
		if pairs == 0 {
			continue
		}
		ts := make(osm.Tags, 0, pairs)
		for range pairs {
			kl, vl := int(d.u16()), int(d.u16())
			k, v := d.take(kl), d.take(vl)
			if d.err {
				return nil, corrupt(section, "set %d truncated", i)
			}
			ts = append(ts, osm.Tag{Key: string(k), Value: string(v)})
		}
		sets[i] = ts
	}
	if d.err || d.remaining() != 0 {
		return nil, corrupt(section, "%d trailing bytes", d.remaining())
	}
	return sets, nil
}
