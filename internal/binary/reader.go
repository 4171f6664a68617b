// Package binary implements the Avro primitive wire encoding over a byte
// cursor: zig-zag varints, little-endian IEEE-754 floats, length-prefixed
// bytes and strings, and single-byte booleans.
package binary

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/avrojet/avrojet/pkg/avroerr"
)

// maxVarintBytes is the longest legal encoding of a 64-bit zig-zag varint.
const maxVarintBytes = 10

// DefaultMaxAllocSize bounds a single length-prefixed allocation when
// reading from a stream, so a corrupt length cannot exhaust memory.
const DefaultMaxAllocSize = 512 * 1024 * 1024

// Reader is the cursor the codec decodes from. Bytes returned by
// ReadLengthPrefixed and ReadFixed are borrowed from the underlying buffer
// when Borrowing reports true; callers must copy them otherwise needed
// beyond the input's lifetime.
type Reader interface {
	// ReadLong decodes a zig-zag varint of up to 10 bytes.
	ReadLong() (int64, error)
	// ReadInt decodes a zig-zag varint and range-checks it to 32 bits.
	ReadInt() (int32, error)
	// ReadBool decodes a single 0x00/0x01 byte.
	ReadBool() (bool, error)
	// ReadFloat decodes 4 little-endian IEEE-754 bytes.
	ReadFloat() (float32, error)
	// ReadDouble decodes 8 little-endian IEEE-754 bytes.
	ReadDouble() (float64, error)
	// ReadLengthPrefixed decodes a long length followed by that many bytes.
	ReadLengthPrefixed() ([]byte, error)
	// ReadFixed decodes exactly n raw bytes.
	ReadFixed(n int) ([]byte, error)
	// Skip discards n bytes.
	Skip(n int64) error
	// Borrowing reports whether returned byte slices alias the input.
	Borrowing() bool
}

// SliceReader is a borrow-capable cursor over a contiguous byte slice.
type SliceReader struct {
	buf []byte
	pos int
}

// NewSliceReader returns a cursor over buf. Returned byte slices alias buf.
func NewSliceReader(buf []byte) *SliceReader {
	return &SliceReader{buf: buf}
}

// Pos returns the number of bytes consumed so far.
func (r *SliceReader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *SliceReader) Remaining() int { return len(r.buf) - r.pos }

// Borrowing reports true: slices returned by this reader alias the input.
func (r *SliceReader) Borrowing() bool { return true }

func (r *SliceReader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, avroerr.NewCodec(avroerr.CodeUnexpectedEOF, "unexpected end of datum at offset %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadLong decodes a zig-zag varint of up to 10 bytes.
func (r *SliceReader) ReadLong() (int64, error) {
	var u uint64
	var shift uint
	for i := 0; ; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		if i == maxVarintBytes-1 {
			// Tenth byte: only the lowest bit fits, and it must terminate.
			if b > 1 {
				return 0, avroerr.NewCodec(avroerr.CodeIntegerOverflow, "varint exceeds 64 bits")
			}
			u |= uint64(b) << shift
			break
		}
		u |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// ReadInt decodes a zig-zag varint and range-checks it to 32 bits.
func (r *SliceReader) ReadInt() (int32, error) {
	v, err := r.ReadLong()
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, avroerr.NewCodec(avroerr.CodeIntegerOverflow, "int value %d exceeds 32 bits", v)
	}
	return int32(v), nil
}

// ReadBool decodes a single 0x00/0x01 byte.
func (r *SliceReader) ReadBool() (bool, error) {
	b, err := r.readByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, avroerr.NewCodec(avroerr.CodeInvalidBoolean, "invalid boolean byte 0x%02x", b)
	}
}

// ReadFloat decodes 4 little-endian IEEE-754 bytes.
func (r *SliceReader) ReadFloat() (float32, error) {
	b, err := r.ReadFixed(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// ReadDouble decodes 8 little-endian IEEE-754 bytes.
func (r *SliceReader) ReadDouble() (float64, error) {
	b, err := r.ReadFixed(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadLengthPrefixed decodes a long length followed by that many raw bytes.
// The returned slice aliases the input buffer.
func (r *SliceReader) ReadLengthPrefixed() ([]byte, error) {
	n, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	if n < 0 || n > int64(r.Remaining()) {
		return nil, avroerr.NewCodec(avroerr.CodeInvalidLength, "length %d invalid with %d bytes remaining", n, r.Remaining())
	}
	return r.ReadFixed(int(n))
}

// ReadFixed decodes exactly n raw bytes, aliasing the input buffer.
func (r *SliceReader) ReadFixed(n int) ([]byte, error) {
	if n < 0 {
		return nil, avroerr.NewCodec(avroerr.CodeInvalidLength, "negative length %d", n)
	}
	if r.Remaining() < n {
		return nil, avroerr.NewCodec(avroerr.CodeUnexpectedEOF, "need %d bytes, have %d", n, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip discards n bytes.
func (r *SliceReader) Skip(n int64) error {
	if n < 0 {
		return avroerr.NewCodec(avroerr.CodeInvalidLength, "negative skip %d", n)
	}
	if int64(r.Remaining()) < n {
		return avroerr.NewCodec(avroerr.CodeUnexpectedEOF, "cannot skip %d bytes, have %d", n, r.Remaining())
	}
	r.pos += int(n)
	return nil
}

// StreamReader is a copying cursor over an io.Reader.
type StreamReader struct {
	r        io.Reader
	one      [8]byte
	maxAlloc int
}

// NewStreamReader returns a cursor reading from r. maxAlloc bounds a single
// length-prefixed allocation; zero selects DefaultMaxAllocSize.
func NewStreamReader(r io.Reader, maxAlloc int) *StreamReader {
	if maxAlloc <= 0 {
		maxAlloc = DefaultMaxAllocSize
	}
	return &StreamReader{r: r, maxAlloc: maxAlloc}
}

// Borrowing reports false: all slices returned by this reader are copies.
func (r *StreamReader) Borrowing() bool { return false }

func (r *StreamReader) readByte() (byte, error) {
	if br, ok := r.r.(io.ByteReader); ok {
		b, err := br.ReadByte()
		if err != nil {
			return 0, eofErr(err)
		}
		return b, nil
	}
	if _, err := io.ReadFull(r.r, r.one[:1]); err != nil {
		return 0, eofErr(err)
	}
	return r.one[0], nil
}

// ReadLong decodes a zig-zag varint of up to 10 bytes.
func (r *StreamReader) ReadLong() (int64, error) {
	var u uint64
	var shift uint
	for i := 0; ; i++ {
		b, err := r.readByte()
		if err != nil {
			if i > 0 && avroerr.GetCode(err) == avroerr.CodeUnexpectedEOF {
				// End of stream after the first byte truncates the varint.
				return 0, avroerr.WrapCodec(avroerr.CodeUnexpectedEOF, "truncated varint", io.ErrUnexpectedEOF)
			}
			return 0, err
		}
		if i == maxVarintBytes-1 {
			if b > 1 {
				return 0, avroerr.NewCodec(avroerr.CodeIntegerOverflow, "varint exceeds 64 bits")
			}
			u |= uint64(b) << shift
			break
		}
		u |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

// ReadInt decodes a zig-zag varint and range-checks it to 32 bits.
func (r *StreamReader) ReadInt() (int32, error) {
	v, err := r.ReadLong()
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, avroerr.NewCodec(avroerr.CodeIntegerOverflow, "int value %d exceeds 32 bits", v)
	}
	return int32(v), nil
}

// ReadBool decodes a single 0x00/0x01 byte.
func (r *StreamReader) ReadBool() (bool, error) {
	b, err := r.readByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, avroerr.NewCodec(avroerr.CodeInvalidBoolean, "invalid boolean byte 0x%02x", b)
	}
}

// ReadFloat decodes 4 little-endian IEEE-754 bytes.
func (r *StreamReader) ReadFloat() (float32, error) {
	if _, err := io.ReadFull(r.r, r.one[:4]); err != nil {
		return 0, eofErr(err)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(r.one[:4])), nil
}

// ReadDouble decodes 8 little-endian IEEE-754 bytes.
func (r *StreamReader) ReadDouble() (float64, error) {
	if _, err := io.ReadFull(r.r, r.one[:8]); err != nil {
		return 0, eofErr(err)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(r.one[:8])), nil
}

// ReadLengthPrefixed decodes a long length followed by that many raw bytes.
func (r *StreamReader) ReadLengthPrefixed() ([]byte, error) {
	n, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	if n < 0 || n > int64(r.maxAlloc) {
		return nil, avroerr.NewCodec(avroerr.CodeInvalidLength, "length %d invalid (max allocation %d)", n, r.maxAlloc)
	}
	return r.ReadFixed(int(n))
}

// ReadFixed decodes exactly n raw bytes into a fresh buffer.
func (r *StreamReader) ReadFixed(n int) ([]byte, error) {
	if n < 0 {
		return nil, avroerr.NewCodec(avroerr.CodeInvalidLength, "negative length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, eofErr(err)
	}
	return buf, nil
}

// Skip discards n bytes.
func (r *StreamReader) Skip(n int64) error {
	if n < 0 {
		return avroerr.NewCodec(avroerr.CodeInvalidLength, "negative skip %d", n)
	}
	if _, err := io.CopyN(io.Discard, r.r, n); err != nil {
		return eofErr(err)
	}
	return nil
}

func eofErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return avroerr.WrapCodec(avroerr.CodeUnexpectedEOF, "unexpected end of stream", err)
	}
	return avroerr.WrapCodec(avroerr.CodeCustom, "read failed", err)
}
