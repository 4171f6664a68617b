package ocf

import (
	"io"

	"github.com/google/uuid"

	"github.com/avrojet/avrojet/internal/binary"
	"github.com/avrojet/avrojet/internal/codec"
	"github.com/avrojet/avrojet/internal/compress"
	"github.com/avrojet/avrojet/pkg/avroerr"
	"github.com/avrojet/avrojet/pkg/schema"
)

// DefaultBlockSize is the encoded-bytes threshold that triggers a block
// flush.
const DefaultBlockSize = 64 * 1024

// WriterOption adjusts how an OCF stream is written.
type WriterOption func(*writerConfig)

type writerConfig struct {
	codecName string
	blockSize int
	meta      map[string][]byte
	sync      *[SyncLength]byte
	cfg       codec.Config
}

// WithCodec selects the block compression codec by its avro.codec name.
func WithCodec(name string) WriterOption {
	return func(wc *writerConfig) { wc.codecName = name }
}

// WithBlockSize overrides the encoded-bytes threshold that triggers a
// block flush.
func WithBlockSize(n int) WriterOption {
	return func(wc *writerConfig) { wc.blockSize = n }
}

// WithMetadata adds a custom header metadata entry. Keys reserved by the
// format (avro.*) are ignored.
func WithMetadata(key string, value []byte) WriterOption {
	return func(wc *writerConfig) {
		if wc.meta == nil {
			wc.meta = make(map[string][]byte)
		}
		wc.meta[key] = value
	}
}

// WithSyncMarker fixes the sync marker instead of generating a random one.
func WithSyncMarker(marker [SyncLength]byte) WriterOption {
	return func(wc *writerConfig) { wc.sync = &marker }
}

// Writer encodes datums into compressed OCF blocks. Datums accumulate in
// an in-memory block that is flushed once it exceeds the block size, on
// Flush, and on Close. Close must be called: datums still buffered in a
// writer that is never closed are not written.
type Writer struct {
	w         io.Writer
	schema    *schema.Schema
	comp      compress.Codec
	blockSize int
	sync      [SyncLength]byte
	cfg       codec.Config

	buf     *binary.Writer
	frame   *binary.Writer
	scratch []byte
	count   int64
	closed  bool
}

// NewWriter writes the OCF header to w and returns a block writer for the
// given schema.
func NewWriter(w io.Writer, s *schema.Schema, opts ...WriterOption) (*Writer, error) {
	wc := writerConfig{blockSize: DefaultBlockSize}
	for _, opt := range opts {
		opt(&wc)
	}

	comp, err := compress.ByName(wc.codecName)
	if err != nil {
		return nil, err
	}

	out := &Writer{
		w:         w,
		schema:    s,
		comp:      comp,
		blockSize: wc.blockSize,
		cfg:       wc.cfg,
		buf:       binary.NewWriter(wc.blockSize),
		frame:     binary.NewWriter(wc.blockSize / 4),
	}
	if wc.sync != nil {
		out.sync = *wc.sync
	} else {
		out.sync = [SyncLength]byte(uuid.New())
	}

	header := binary.NewWriter(len(s.Text()) + 128)
	header.WriteFixed(magic[:])
	entries := 2
	for key := range wc.meta {
		if !(len(key) >= 5 && key[:5] == "avro.") {
			entries++
		}
	}
	header.WriteLong(int64(entries))
	header.WriteString(MetaSchema)
	header.WriteBytes([]byte(s.Text()))
	header.WriteString(MetaCodec)
	header.WriteBytes([]byte(comp.Name()))
	for key, value := range wc.meta {
		if len(key) >= 5 && key[:5] == "avro." {
			continue
		}
		header.WriteString(key)
		header.WriteBytes(value)
	}
	header.WriteLong(0)
	header.WriteFixed(out.sync[:])

	if _, err := w.Write(header.Bytes()); err != nil {
		return nil, avroerr.WrapCodec(avroerr.CodeCustom, "writing header failed", err)
	}
	return out, nil
}

// Schema returns the schema datums are encoded with.
func (w *Writer) Schema() *schema.Schema { return w.schema }

// SyncMarker returns the marker written in the header.
func (w *Writer) SyncMarker() [SyncLength]byte { return w.sync }

// Write encodes v into the current block. On encoding error the block is
// rolled back to its previous state and nothing is emitted.
func (w *Writer) Write(v interface{}) error {
	if w.closed {
		return avroerr.NewCodec(avroerr.CodeCustom, "write on closed writer")
	}
	mark := w.buf.Len()
	if err := codec.EncodeValue(w.buf, w.schema, w.schema.Root(), v, w.cfg); err != nil {
		w.buf.Truncate(mark)
		return err
	}
	w.count++
	if w.buf.Len() >= w.blockSize {
		return w.Flush()
	}
	return nil
}

// Flush compresses and writes the current block, if any.
func (w *Writer) Flush() error {
	if w.count == 0 {
		return nil
	}
	payload, err := w.comp.Compress(w.scratch, w.buf.Bytes())
	if err != nil {
		return err
	}

	w.frame.Reset()
	w.frame.WriteLong(w.count)
	w.frame.WriteLong(int64(len(payload)))
	w.frame.WriteFixed(payload)
	w.frame.WriteFixed(w.sync[:])
	if _, err := w.w.Write(w.frame.Bytes()); err != nil {
		return avroerr.WrapCodec(avroerr.CodeCustom, "writing block failed", err)
	}

	if w.comp.Name() != compress.CodecNull {
		w.scratch = payload[:0]
	}
	w.count = 0
	w.buf.Reset()
	return nil
}

// Close flushes the final block. The writer is unusable afterwards.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.Flush()
}
