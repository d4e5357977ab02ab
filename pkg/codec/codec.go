// Package codec holds the fixed binary schemas of the graph file: vertex and
// arc blocks, shape blocks, reverse neighbour blocks, region vertex lists and
// tag blocks, each gzip-compressed, plus the cumulative offset indexes that
// locate them.
//
// All integers are little-endian. The schemas are not self-describing; a
// payload whose size disagrees with its own record counts is corrupt.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ErrCorruptBlock matches every CorruptBlockError.
var ErrCorruptBlock = errors.New("corrupt block")

// maxBlockBytes bounds the decompressed size of a single block.
const maxBlockBytes = 256 << 20

// CorruptBlockError reports a block that failed to decompress or parse.
type CorruptBlockError struct {
	Section string
	Block   int // -1 when decoded outside a section
	Err     error
}

func (e *CorruptBlockError) Error() string {
	if e.Block < 0 {
		return fmt.Sprintf("corrupt %s block: %v", e.Section, e.Err)
	}
	return fmt.Sprintf("corrupt %s block %d: %v", e.Section, e.Block, e.Err)
}

func (e *CorruptBlockError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCorruptBlock) hold.
func (e *CorruptBlockError) Is(target error) bool { return target == ErrCorruptBlock }

func corrupt(section string, format string, args ...any) error {
	return &CorruptBlockError{Section: section, Block: -1, Err: fmt.Errorf(format, args...)}
}

var writers = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return w
	},
}

func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := writers.Get().(*gzip.Writer)
	defer writers.Put(zw)
	zw.Reset(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(section string, data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, corrupt(section, "gzip header: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, maxBlockBytes+1))
	if err != nil {
		return nil, corrupt(section, "gzip body: %w", err)
	}
	if len(out) > maxBlockBytes {
		return nil, corrupt(section, "decompressed size exceeds %d bytes", maxBlockBytes)
	}
	return out, nil
}

// decoder reads fixed-width fields and remembers the first overrun.
type decoder struct {
	b   []byte
	off int
	err bool
}

func (d *decoder) take(n int) []byte {
	if d.err || n < 0 || len(d.b)-d.off < n {
		d.err = true
		return nil
	}
	p := d.b[d.off : d.off+n]
	d.off += n
	return p
}

func (d *decoder) u8() uint8 {
	p := d.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (d *decoder) u16() uint16 {
	p := d.take(2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (d *decoder) u32() uint32 {
	p := d.take(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (d *decoder) u64() uint64 {
	p := d.take(8)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(p)
}

func (d *decoder) f32() float32 {
	return math.Float32frombits(d.u32())
}

func (d *decoder) remaining() int { return len(d.b) - d.off }

func appendF32(b []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
}
