// Package ocf reads and writes the Avro Object Container File format:
// a self-describing header, a sync marker, and a sequence of compressed
// blocks of datums.
package ocf

import (
	"bytes"
	"errors"
	"io"

	"github.com/avrojet/avrojet/internal/binary"
	"github.com/avrojet/avrojet/internal/codec"
	"github.com/avrojet/avrojet/internal/compress"
	"github.com/avrojet/avrojet/pkg/avroerr"
	"github.com/avrojet/avrojet/pkg/schema"
)

var magic = [4]byte{'O', 'b', 'j', 1}

// SyncLength is the size of the sync marker established in the header and
// repeated after every block.
const SyncLength = 16

// Reserved metadata keys.
const (
	MetaSchema = "avro.schema"
	MetaCodec  = "avro.codec"
)

// ReaderOption adjusts how an OCF stream is read.
type ReaderOption func(*readerConfig)

type readerConfig struct {
	schema *schema.Schema
	cfg    codec.Config
}

// WithReaderSchema supplies a pre-built schema instead of parsing the one
// embedded in the header.
func WithReaderSchema(s *schema.Schema) ReaderOption {
	return func(rc *readerConfig) { rc.schema = s }
}

// WithReaderMaxDepth overrides the maximum decode nesting depth.
func WithReaderMaxDepth(n int) ReaderOption {
	return func(rc *readerConfig) { rc.cfg.MaxDepth = n }
}

// WithReaderMaxAllocSize bounds a single allocation while reading the
// stream, protecting against corrupt length prefixes.
func WithReaderMaxAllocSize(n int) ReaderOption {
	return func(rc *readerConfig) { rc.cfg.MaxAllocSize = n }
}

// Reader iterates over the datums of an OCF stream. Block boundaries are
// transparent: Next reports whether another datum is available, Decode
// consumes it.
//
//	r, err := ocf.NewReader(f)
//	for r.Next() {
//	    var rec Record
//	    if err := r.Decode(&rec); err != nil { ... }
//	}
//	if err := r.Err(); err != nil { ... }
type Reader struct {
	sr     *binary.StreamReader
	schema *schema.Schema
	comp   compress.Codec
	meta   map[string][]byte
	sync   [SyncLength]byte
	cfg    codec.Config

	remaining int64
	scratch   []byte
	cur       *binary.SliceReader
	err       error

	blocks  int64
	objects int64
}

// NewReader reads the OCF header from r and prepares block iteration.
func NewReader(r io.Reader, opts ...ReaderOption) (*Reader, error) {
	var rc readerConfig
	for _, opt := range opts {
		opt(&rc)
	}
	rc.cfg.BorrowBytes = false
	rc.cfg.BorrowStrings = false

	sr := binary.NewStreamReader(r, rc.cfg.MaxAllocSize)

	head, err := sr.ReadFixed(len(magic))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(head, magic[:]) {
		return nil, avroerr.NewCodec(avroerr.CodeCorruptBlock, "input does not start with the Obj\\x01 magic")
	}

	meta, err := readMetadata(sr)
	if err != nil {
		return nil, err
	}

	out := &Reader{sr: sr, meta: meta, cfg: rc.cfg}
	syncBytes, err := sr.ReadFixed(SyncLength)
	if err != nil {
		return nil, err
	}
	copy(out.sync[:], syncBytes)

	out.comp, err = compress.ByName(string(meta[MetaCodec]))
	if err != nil {
		return nil, err
	}

	if rc.schema != nil {
		out.schema = rc.schema
	} else {
		text, ok := meta[MetaSchema]
		if !ok {
			return nil, avroerr.NewCodec(avroerr.CodeCorruptBlock, "header metadata has no avro.schema entry")
		}
		out.schema, err = schema.Parse(string(text))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// readMetadata decodes the header's map<string, bytes>, honoring the block
// protocol including negative counts.
func readMetadata(sr *binary.StreamReader) (map[string][]byte, error) {
	meta := make(map[string][]byte)
	for {
		count, err := sr.ReadLong()
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return meta, nil
		}
		if count < 0 {
			if _, err := sr.ReadLong(); err != nil {
				return nil, err
			}
			count = -count
		}
		for i := int64(0); i < count; i++ {
			key, err := sr.ReadLengthPrefixed()
			if err != nil {
				return nil, err
			}
			value, err := sr.ReadLengthPrefixed()
			if err != nil {
				return nil, err
			}
			meta[string(key)] = value
		}
	}
}

// Schema returns the schema datums are decoded with.
func (r *Reader) Schema() *schema.Schema { return r.schema }

// Metadata returns the header metadata map, including unknown keys.
func (r *Reader) Metadata() map[string][]byte { return r.meta }

// Codec returns the avro.codec name in effect.
func (r *Reader) Codec() string { return r.comp.Name() }

// SyncMarker returns the 16-byte marker established in the header.
func (r *Reader) SyncMarker() [SyncLength]byte { return r.sync }

// Blocks returns the number of blocks consumed so far.
func (r *Reader) Blocks() int64 { return r.blocks }

// Objects returns the number of datums decoded so far.
func (r *Reader) Objects() int64 { return r.objects }

// Next reports whether another datum is available, loading and verifying
// the next block as needed. It returns false at clean end of stream and on
// error; Err distinguishes the two.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.remaining == 0 {
		if r.cur != nil && r.cur.Remaining() > 0 {
			r.err = avroerr.NewCodec(avroerr.CodeBlockSizeMismatch,
				"block has %d unread bytes after its declared objects", r.cur.Remaining())
			return false
		}
		if !r.nextBlock() {
			return false
		}
	}
	return true
}

func (r *Reader) nextBlock() bool {
	count, err := r.sr.ReadLong()
	if err != nil {
		// End of stream at a block boundary is the clean end.
		if errors.Is(err, io.EOF) {
			return false
		}
		r.err = err
		return false
	}
	if count < 0 {
		r.err = avroerr.NewCodec(avroerr.CodeCorruptBlock, "negative block object count %d", count)
		return false
	}

	payload, err := r.sr.ReadLengthPrefixed()
	if err != nil {
		r.err = truncated(err)
		return false
	}

	syncBytes, err := r.sr.ReadFixed(SyncLength)
	if err != nil {
		r.err = truncated(err)
		return false
	}
	if !bytes.Equal(syncBytes, r.sync[:]) {
		r.err = avroerr.NewCodec(avroerr.CodeCorruptBlock, "block sync marker does not match the header")
		return false
	}

	decompressed, err := r.comp.Decompress(r.scratch, payload)
	if err != nil {
		r.err = err
		return false
	}
	r.scratch = decompressed[:0]

	r.cur = binary.NewSliceReader(decompressed)
	r.remaining = count
	r.blocks++
	return true
}

// Decode reads the next datum into v, loading the next block itself when
// the current one is exhausted. It returns an error when no datum remains.
func (r *Reader) Decode(v interface{}) error {
	if r.err != nil {
		return r.err
	}
	if r.remaining == 0 && !r.Next() {
		if r.err != nil {
			return r.err
		}
		return avroerr.NewCodec(avroerr.CodeUnexpectedEOF, "no datums remain")
	}
	if err := codec.DecodeValue(r.cur, r.schema, r.schema.Root(), v, r.cfg); err != nil {
		if avroerr.GetCode(err) == avroerr.CodeUnexpectedEOF {
			err = avroerr.WrapCodec(avroerr.CodeBlockSizeMismatch, "block ended before its declared objects", err)
		}
		r.err = err
		return err
	}
	r.remaining--
	r.objects++
	return nil
}

// Err returns the first error encountered, or nil at clean end of stream.
func (r *Reader) Err() error { return r.err }

func truncated(err error) error {
	if avroerr.GetCode(err) == avroerr.CodeUnexpectedEOF {
		return avroerr.WrapCodec(avroerr.CodeUnexpectedEOF, "truncated block", err)
	}
	return err
}
