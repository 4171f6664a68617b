// Package avro converts between the Avro binary datum encoding and Go
// values, guided by a pre-built schema graph. Decoding from a byte slice
// can borrow directly from the input; decoding from a stream always copies.
package avro

import (
	"io"

	"github.com/avrojet/avrojet/internal/binary"
	"github.com/avrojet/avrojet/internal/codec"
	"github.com/avrojet/avrojet/pkg/schema"
)

// Duration is the decoded form of the Avro duration logical type.
type Duration = codec.Duration

// Option adjusts one (de)serialization operation.
type Option func(*codec.Config)

// WithMaxDepth overrides the maximum nesting depth.
func WithMaxDepth(n int) Option {
	return func(c *codec.Config) { c.MaxDepth = n }
}

// WithMaxAllocSize bounds a single length-prefixed allocation when decoding
// from a stream.
func WithMaxAllocSize(n int) Option {
	return func(c *codec.Config) { c.MaxAllocSize = n }
}

// WithCopiedBytes makes []byte targets copy out of the input buffer even
// when decoding from a slice.
func WithCopiedBytes() Option {
	return func(c *codec.Config) { c.BorrowBytes = false }
}

// WithBorrowedStrings lets string targets alias the input buffer when
// decoding from a slice. The strings become invalid if the buffer is
// modified or recycled; callers take on that lifetime obligation.
func WithBorrowedStrings() Option {
	return func(c *codec.Config) { c.BorrowStrings = true }
}

func sliceConfig(opts []Option) codec.Config {
	cfg := codec.Config{BorrowBytes: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func streamConfig(opts []Option) codec.Config {
	var cfg codec.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.BorrowBytes = false
	cfg.BorrowStrings = false
	return cfg
}

// Unmarshal decodes a single Avro datum from data into v, which must be a
// non-nil pointer. []byte targets alias data unless WithCopiedBytes is
// given; string targets alias it only with WithBorrowedStrings.
func Unmarshal(data []byte, v interface{}, s *schema.Schema, opts ...Option) error {
	r := binary.NewSliceReader(data)
	return codec.DecodeValue(r, s, s.Root(), v, sliceConfig(opts))
}

// Marshal encodes v as a single Avro datum. On error any partial output is
// discarded.
func Marshal(v interface{}, s *schema.Schema, opts ...Option) ([]byte, error) {
	w := binary.NewWriter(64)
	if err := codec.EncodeValue(w, s, s.Root(), v, streamConfig(opts)); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Decoder decodes a sequence of datums from a stream. All decoded values
// are copies; nothing references the underlying reader's buffers.
type Decoder struct {
	r   binary.Reader
	s   *schema.Schema
	cfg codec.Config
}

// NewDecoder returns a Decoder reading datums from r.
func NewDecoder(r io.Reader, s *schema.Schema, opts ...Option) *Decoder {
	cfg := streamConfig(opts)
	return &Decoder{r: binary.NewStreamReader(r, cfg.MaxAllocSize), s: s, cfg: cfg}
}

// Decode reads the next datum into v.
func (d *Decoder) Decode(v interface{}) error {
	return codec.DecodeValue(d.r, d.s, d.s.Root(), v, d.cfg)
}

// Encoder encodes a sequence of datums to a stream.
type Encoder struct {
	w   io.Writer
	s   *schema.Schema
	buf *binary.Writer
	cfg codec.Config
}

// NewEncoder returns an Encoder writing datums to w.
func NewEncoder(w io.Writer, s *schema.Schema, opts ...Option) *Encoder {
	return &Encoder{w: w, s: s, buf: binary.NewWriter(256), cfg: streamConfig(opts)}
}

// Encode writes v as the next datum. On error nothing is written to the
// underlying stream.
func (e *Encoder) Encode(v interface{}) error {
	e.buf.Reset()
	if err := codec.EncodeValue(e.buf, e.s, e.s.Root(), v, e.cfg); err != nil {
		return err
	}
	_, err := e.w.Write(e.buf.Bytes())
	return err
}
