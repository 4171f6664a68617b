package ocf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avrojet/avrojet/internal/compress"
	"github.com/avrojet/avrojet/pkg/avroerr"
	"github.com/avrojet/avrojet/pkg/schema"
)

const recordSchema = `{"type":"record","name":"T","fields":[{"name":"f","type":"string"}]}`

type record struct {
	F string `avro:"f"`
}

func writeFile(t *testing.T, s *schema.Schema, values []record, opts ...WriterOption) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, s, opts...)
	require.NoError(t, err)
	for _, v := range values {
		require.NoError(t, w.Write(v))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRoundTrip_NullCodec(t *testing.T) {
	s := schema.MustParse(recordSchema)
	data := writeFile(t, s, []record{{F: "one"}, {F: "two"}})

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, compress.CodecNull, r.Codec())

	var got []record
	for r.Next() {
		var v record
		require.NoError(t, r.Decode(&v))
		got = append(got, v)
	}
	require.NoError(t, r.Err())
	assert.Equal(t, []record{{F: "one"}, {F: "two"}}, got)
	assert.Equal(t, int64(1), r.Blocks())
	assert.Equal(t, int64(2), r.Objects())
}

func TestRoundTrip_AllCodecs(t *testing.T) {
	s := schema.MustParse(recordSchema)
	values := make([]record, 100)
	for i := range values {
		values[i] = record{F: "value with some repetitive content"}
	}

	for _, name := range compress.Names() {
		t.Run(name, func(t *testing.T) {
			data := writeFile(t, s, values, WithCodec(name))

			r, err := NewReader(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, name, r.Codec())

			var count int
			for r.Next() {
				var v record
				require.NoError(t, r.Decode(&v))
				assert.Equal(t, values[count], v)
				count++
			}
			require.NoError(t, r.Err())
			assert.Equal(t, len(values), count)
		})
	}
}

func TestHeader_Layout(t *testing.T) {
	s := schema.MustParse(recordSchema)
	data := writeFile(t, s, []record{{F: "x"}})

	assert.Equal(t, []byte("Obj\x01"), data[:4])

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, recordSchema, string(r.Metadata()[MetaSchema]))
	assert.Equal(t, "null", string(r.Metadata()[MetaCodec]))
}

func TestSyncMarker_Verified(t *testing.T) {
	s := schema.MustParse(recordSchema)
	marker := [SyncLength]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	data := writeFile(t, s, []record{{F: "x"}}, WithSyncMarker(marker))

	// The block's trailing 16 bytes equal the header's marker.
	assert.Equal(t, marker[:], data[len(data)-SyncLength:])

	// Corrupting them fails the read with CorruptBlock.
	data[len(data)-1] ^= 0xFF
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.False(t, r.Next())
	assert.Equal(t, avroerr.CodeCorruptBlock, avroerr.GetCode(r.Err()))
}

func TestReader_TruncatedBlock(t *testing.T) {
	s := schema.MustParse(recordSchema)
	data := writeFile(t, s, []record{{F: "some trailing record"}})

	r, err := NewReader(bytes.NewReader(data[:len(data)-10]))
	require.NoError(t, err)
	assert.False(t, r.Next())
	assert.Equal(t, avroerr.CodeUnexpectedEOF, avroerr.GetCode(r.Err()))
}

func TestReader_SurplusBytesInBlock(t *testing.T) {
	s := schema.MustParse(recordSchema)
	data := writeFile(t, s, []record{{F: "a"}, {F: "b"}})

	// The single block sits at the tail: count (1 byte), byte size
	// (1 byte), two 2-byte records, and the 16-byte sync marker. Rewrite
	// its object count from two to one.
	blockStart := len(data) - 22
	require.Equal(t, byte(0x04), data[blockStart], "object count varint for 2")
	data[blockStart] = 0x02

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	require.True(t, r.Next())
	var v record
	require.NoError(t, r.Decode(&v))
	assert.False(t, r.Next())
	assert.Equal(t, avroerr.CodeBlockSizeMismatch, avroerr.GetCode(r.Err()))
}

func TestReader_UnknownCodec(t *testing.T) {
	s := schema.MustParse(recordSchema)
	data := writeFile(t, s, []record{{F: "x"}})

	corrupted := bytes.Replace(data, []byte("null"), []byte("lzvx"), 1)
	_, err := NewReader(bytes.NewReader(corrupted))
	assert.Equal(t, avroerr.CodeUnsupportedCodec, avroerr.GetCode(err))
}

func TestReader_NotAvro(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("PKzip is not avro")))
	assert.Equal(t, avroerr.CodeCorruptBlock, avroerr.GetCode(err))
}

func TestReader_SuppliedSchema(t *testing.T) {
	s := schema.MustParse(recordSchema)
	data := writeFile(t, s, []record{{F: "x"}})

	r, err := NewReader(bytes.NewReader(data), WithReaderSchema(s))
	require.NoError(t, err)
	assert.Same(t, s, r.Schema())
}

func TestWriter_BlockThresholdFlushes(t *testing.T) {
	s := schema.MustParse(recordSchema)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, s, WithBlockSize(64))
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, w.Write(record{F: "0123456789abcdef"}))
	}
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	var count int
	for r.Next() {
		var v record
		require.NoError(t, r.Decode(&v))
		count++
	}
	require.NoError(t, r.Err())
	assert.Equal(t, 100, count)
	assert.Greater(t, r.Blocks(), int64(1), "small threshold must produce multiple blocks")
}

func TestWriter_CustomMetadata(t *testing.T) {
	s := schema.MustParse(recordSchema)
	data := writeFile(t, s, []record{{F: "x"}},
		WithMetadata("user.origin", []byte("unit-test")),
		WithMetadata("avro.forbidden", []byte("ignored")))

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []byte("unit-test"), r.Metadata()["user.origin"])
	_, reserved := r.Metadata()["avro.forbidden"]
	assert.False(t, reserved, "avro.* keys are reserved for the format")
}

func TestWriter_RollsBackFailedWrite(t *testing.T) {
	s := schema.MustParse(recordSchema)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, s)
	require.NoError(t, err)
	require.NoError(t, w.Write(record{F: "good"}))
	require.Error(t, w.Write(struct{}{}), "a record without the field cannot encode")
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	var count int
	for r.Next() {
		var v record
		require.NoError(t, r.Decode(&v))
		count++
	}
	require.NoError(t, r.Err())
	assert.Equal(t, 1, count, "the failed write must leave no partial bytes")
}

func TestWriter_EmptyFileHasNoBlocks(t *testing.T) {
	s := schema.MustParse(recordSchema)
	data := writeFile(t, s, nil)

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.False(t, r.Next())
	require.NoError(t, r.Err())
	assert.Equal(t, int64(0), r.Blocks())
}
