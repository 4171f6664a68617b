// Package compress implements the block compression codecs of the Avro
// Object Container File format. Each codec is a byte-in/byte-out transform;
// snappy additionally carries a CRC-32 of the uncompressed bytes.
package compress

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/avrojet/avrojet/pkg/avroerr"
)

// Codec names as they appear in the avro.codec OCF metadata entry.
const (
	CodecNull      = "null"
	CodecDeflate   = "deflate"
	CodecSnappy    = "snappy"
	CodecBzip2     = "bzip2"
	CodecXZ        = "xz"
	CodecZstandard = "zstandard"
)

// Codec compresses and decompresses OCF block payloads.
type Codec interface {
	// Name returns the avro.codec metadata value.
	Name() string
	// Compress returns the compressed form of src. dst may be reused as
	// scratch space; the returned slice may alias it.
	Compress(dst, src []byte) ([]byte, error)
	// Decompress returns the decompressed form of src. dst may be reused
	// as scratch space; the returned slice may alias it.
	Decompress(dst, src []byte) ([]byte, error)
}

// ByName resolves an avro.codec value to a Codec.
func ByName(name string) (Codec, error) {
	switch name {
	case CodecNull, "":
		return nullCodec{}, nil
	case CodecDeflate:
		return deflateCodec{}, nil
	case CodecSnappy:
		return snappyCodec{}, nil
	case CodecBzip2:
		return bzip2Codec{}, nil
	case CodecXZ:
		return xzCodec{}, nil
	case CodecZstandard:
		return zstdCodec{}, nil
	default:
		return nil, avroerr.NewCodec(avroerr.CodeUnsupportedCodec, "unsupported compression codec %q", name)
	}
}

// Names lists the supported avro.codec values.
func Names() []string {
	return []string{CodecNull, CodecDeflate, CodecSnappy, CodecBzip2, CodecXZ, CodecZstandard}
}

// nullCodec is the identity transform.
type nullCodec struct{}

func (nullCodec) Name() string                             { return CodecNull }
func (nullCodec) Compress(_, src []byte) ([]byte, error)   { return src, nil }
func (nullCodec) Decompress(_, src []byte) ([]byte, error) { return src, nil }

// deflateCodec is raw DEFLATE with no zlib wrapper.
type deflateCodec struct{}

func (deflateCodec) Name() string { return CodecDeflate }

func (deflateCodec) Compress(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst[:0])
	fw, err := flate.NewWriter(buf, flate.DefaultCompression)
	if err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCustom, "deflate init failed", err)
	}
	if _, err := fw.Write(src); err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCustom, "deflate compress failed", err)
	}
	if err := fw.Close(); err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCustom, "deflate compress failed", err)
	}
	return buf.Bytes(), nil
}

func (deflateCodec) Decompress(dst, src []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(src))
	defer fr.Close()
	return readAll(dst, fr, "deflate")
}

// snappyCodec frames each block as snappy(src) followed by a 4-byte
// big-endian CRC-32 (IEEE polynomial) of the uncompressed bytes.
type snappyCodec struct{}

func (snappyCodec) Name() string { return CodecSnappy }

func (snappyCodec) Compress(dst, src []byte) ([]byte, error) {
	out := snappy.Encode(dst[:cap(dst)], src)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(src)), nil
}

func (snappyCodec) Decompress(dst, src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, avroerr.NewCodec(avroerr.CodeCorruptBlock, "snappy block shorter than its checksum")
	}
	want := binary.BigEndian.Uint32(src[len(src)-4:])
	out, err := snappy.Decode(dst[:cap(dst)], src[:len(src)-4])
	if err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCorruptBlock, "snappy decompress failed", err)
	}
	if got := crc32.ChecksumIEEE(out); got != want {
		return nil, avroerr.NewCodec(avroerr.CodeCorruptBlock, "snappy checksum mismatch: got %08x, want %08x", got, want)
	}
	return out, nil
}

type bzip2Codec struct{}

func (bzip2Codec) Name() string { return CodecBzip2 }

func (bzip2Codec) Compress(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst[:0])
	bw, err := bzip2.NewWriter(buf, nil)
	if err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCustom, "bzip2 init failed", err)
	}
	if _, err := bw.Write(src); err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCustom, "bzip2 compress failed", err)
	}
	if err := bw.Close(); err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCustom, "bzip2 compress failed", err)
	}
	return buf.Bytes(), nil
}

func (bzip2Codec) Decompress(dst, src []byte) ([]byte, error) {
	br, err := bzip2.NewReader(bytes.NewReader(src), nil)
	if err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCorruptBlock, "bzip2 decompress failed", err)
	}
	defer br.Close()
	return readAll(dst, br, "bzip2")
}

type xzCodec struct{}

func (xzCodec) Name() string { return CodecXZ }

func (xzCodec) Compress(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst[:0])
	xw, err := xz.NewWriter(buf)
	if err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCustom, "xz init failed", err)
	}
	if _, err := xw.Write(src); err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCustom, "xz compress failed", err)
	}
	if err := xw.Close(); err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCustom, "xz compress failed", err)
	}
	return buf.Bytes(), nil
}

func (xzCodec) Decompress(dst, src []byte) ([]byte, error) {
	xr, err := xz.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCorruptBlock, "xz decompress failed", err)
	}
	return readAll(dst, xr, "xz")
}

// zstdCodec shares one encoder and one decoder across all blocks; both are
// safe for concurrent use via EncodeAll/DecodeAll.
type zstdCodec struct{}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
)

func zstdInit() {
	zstdEnc, _ = zstd.NewWriter(nil)
	zstdDec, _ = zstd.NewReader(nil)
}

func (zstdCodec) Name() string { return CodecZstandard }

func (zstdCodec) Compress(dst, src []byte) ([]byte, error) {
	zstdOnce.Do(zstdInit)
	return zstdEnc.EncodeAll(src, dst[:0]), nil
}

func (zstdCodec) Decompress(dst, src []byte) ([]byte, error) {
	zstdOnce.Do(zstdInit)
	out, err := zstdDec.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCorruptBlock, "zstandard decompress failed", err)
	}
	return out, nil
}

func readAll(dst []byte, r io.Reader, what string) ([]byte, error) {
	buf := bytes.NewBuffer(dst[:0])
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCorruptBlock, what+" decompress failed", err)
	}
	return buf.Bytes(), nil
}
