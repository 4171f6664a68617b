package binary

import (
	"encoding/binary"
	"math"
)

// Writer accumulates Avro primitive encodings in an append buffer.
// The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the accumulated encoding. The slice is invalidated by the
// next write.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes accumulated.
func (w *Writer) Len() int { return len(w.buf) }

// Reset truncates the buffer, retaining capacity.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Truncate drops everything written after offset n, undoing a partial
// encoding.
func (w *Writer) Truncate(n int) { w.buf = w.buf[:n] }

// WriteLong appends a zig-zag varint.
func (w *Writer) WriteLong(v int64) {
	u := uint64(v<<1) ^ uint64(v>>63)
	for u >= 0x80 {
		w.buf = append(w.buf, byte(u)|0x80)
		u >>= 7
	}
	w.buf = append(w.buf, byte(u))
}

// WriteInt appends a zig-zag varint for a 32-bit value.
func (w *Writer) WriteInt(v int32) {
	w.WriteLong(int64(v))
}

// WriteBool appends a single 0x00/0x01 byte.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteFloat appends 4 little-endian IEEE-754 bytes.
func (w *Writer) WriteFloat(v float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

// WriteDouble appends 8 little-endian IEEE-754 bytes.
func (w *Writer) WriteDouble(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// WriteBytes appends a long length followed by the raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteLong(int64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString appends a long length followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	w.WriteLong(int64(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteFixed appends raw bytes with no length prefix.
func (w *Writer) WriteFixed(b []byte) {
	w.buf = append(w.buf, b...)
}
