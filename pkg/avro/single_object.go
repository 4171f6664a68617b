package avro

import (
	"bytes"

	"github.com/avrojet/avrojet/internal/binary"
	"github.com/avrojet/avrojet/internal/codec"
	"github.com/avrojet/avrojet/pkg/avroerr"
	"github.com/avrojet/avrojet/pkg/schema"
)

// Single-object encoding frames one datum with a 2-byte magic and the
// schema's 8-byte little-endian Rabin fingerprint.
var singleObjectMagic = [2]byte{0xC3, 0x01}

const singleObjectHeaderLen = 10

// MarshalSingleObject encodes v in the Avro single-object encoding.
func MarshalSingleObject(v interface{}, s *schema.Schema, opts ...Option) ([]byte, error) {
	w := binary.NewWriter(64 + singleObjectHeaderLen)
	w.WriteFixed(singleObjectMagic[:])
	fp := s.Fingerprint()
	w.WriteFixed(fp[:])
	if err := codec.EncodeValue(w, s, s.Root(), v, streamConfig(opts)); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// UnmarshalSingleObject decodes a single-object-encoded datum into v,
// verifying the magic and the schema fingerprint.
func UnmarshalSingleObject(data []byte, v interface{}, s *schema.Schema, opts ...Option) error {
	if len(data) < singleObjectHeaderLen {
		return avroerr.NewCodec(avroerr.CodeUnexpectedEOF, "input shorter than the single-object header")
	}
	if data[0] != singleObjectMagic[0] || data[1] != singleObjectMagic[1] {
		return avroerr.NewCodec(avroerr.CodeCustom, "missing C3 01 single-object magic")
	}
	fp := s.Fingerprint()
	if !bytes.Equal(data[2:singleObjectHeaderLen], fp[:]) {
		return avroerr.NewCodec(avroerr.CodeCustom, "schema fingerprint does not match the single-object header")
	}
	return Unmarshal(data[singleObjectHeaderLen:], v, s, opts...)
}
