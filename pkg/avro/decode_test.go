package avro

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avrojet/avrojet/pkg/avroerr"
	"github.com/avrojet/avrojet/pkg/schema"
)

func TestUnmarshal_RecordString(t *testing.T) {
	s := schema.MustParse(`{"type":"record","name":"T","fields":[{"name":"f","type":"string"}]}`)

	var out struct {
		F string `avro:"f"`
	}
	err := Unmarshal([]byte{0x06, 0x66, 0x6F, 0x6F}, &out, s)
	require.NoError(t, err)
	assert.Equal(t, "foo", out.F)
}

func TestUnmarshal_Long(t *testing.T) {
	s := schema.MustParse(`"long"`)

	tests := []struct {
		datum []byte
		want  int64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, -1},
		{[]byte{0x02}, 1},
		{[]byte{0x7F}, -64},
		{[]byte{0x80, 0x01}, 64},
	}
	for _, tt := range tests {
		var got int64
		require.NoError(t, Unmarshal(tt.datum, &got, s))
		assert.Equal(t, tt.want, got)
	}
}

func TestUnmarshal_OptionalUnion(t *testing.T) {
	s := schema.MustParse(`["null","string"]`)

	var out *string
	require.NoError(t, Unmarshal([]byte{0x00}, &out, s))
	assert.Nil(t, out)

	require.NoError(t, Unmarshal([]byte{0x02, 0x06, 0x61, 0x62, 0x63}, &out, s))
	require.NotNil(t, out)
	assert.Equal(t, "abc", *out)
}

func TestUnmarshal_UnionIndexOutOfRange(t *testing.T) {
	s := schema.MustParse(`["null","string"]`)
	var out *string
	err := Unmarshal([]byte{0x04}, &out, s)
	assert.Equal(t, avroerr.CodeInvalidUnionIndex, avroerr.GetCode(err))
}

func TestUnmarshal_ArrayOfInt(t *testing.T) {
	s := schema.MustParse(`{"type":"array","items":"int"}`)

	var out []int32
	require.NoError(t, Unmarshal([]byte{0x04, 0x02, 0x04, 0x00}, &out, s))
	assert.Equal(t, []int32{1, 2}, out)
}

func TestUnmarshal_EmptyArrayIsOneByte(t *testing.T) {
	s := schema.MustParse(`{"type":"array","items":"int"}`)

	var out []int32
	require.NoError(t, Unmarshal([]byte{0x00}, &out, s))
	assert.Empty(t, out)
}

func TestUnmarshal_ArrayNegativeCountBlock(t *testing.T) {
	s := schema.MustParse(`{"type":"array","items":"int"}`)

	// Block of -2 items (count 2, byte size 2), then the terminator.
	datum := []byte{0x03, 0x04, 0x02, 0x04, 0x00}
	var out []int32
	require.NoError(t, Unmarshal(datum, &out, s))
	assert.Equal(t, []int32{1, 2}, out)
}

func TestUnmarshal_MapOfLong(t *testing.T) {
	s := schema.MustParse(`{"type":"map","values":"long"}`)

	var out map[string]int64
	require.NoError(t, Unmarshal([]byte{0x02, 0x06, 0x6B, 0x65, 0x79, 0x02, 0x00}, &out, s))
	assert.Equal(t, map[string]int64{"key": 1}, out)
}

func TestUnmarshal_NestedRecord(t *testing.T) {
	s := schema.MustParse(`{
		"type": "record",
		"name": "Outer",
		"fields": [
			{"name": "id", "type": "long"},
			{"name": "inner", "type": {"type": "record", "name": "Inner", "fields": [
				{"name": "ok", "type": "boolean"},
				{"name": "tags", "type": {"type": "array", "items": "string"}}
			]}}
		]
	}`)

	type Inner struct {
		OK   bool     `avro:"ok"`
		Tags []string `avro:"tags"`
	}
	type Outer struct {
		ID    int64 `avro:"id"`
		Inner Inner `avro:"inner"`
	}

	in := Outer{ID: 42, Inner: Inner{OK: true, Tags: []string{"a", "bc"}}}
	data, err := Marshal(in, s)
	require.NoError(t, err)

	var out Outer
	require.NoError(t, Unmarshal(data, &out, s))
	assert.Equal(t, in, out)
}

func TestUnmarshal_FieldsWithoutTargetAreSkipped(t *testing.T) {
	s := schema.MustParse(`{
		"type": "record",
		"name": "Wide",
		"fields": [
			{"name": "skipme", "type": {"type": "map", "values": "string"}},
			{"name": "keep", "type": "long"}
		]
	}`)

	full := map[string]interface{}{
		"skipme": map[string]interface{}{"a": "x", "b": "y"},
		"keep":   int64(7),
	}
	data, err := Marshal(full, s)
	require.NoError(t, err)

	var out struct {
		Keep int64 `avro:"keep"`
	}
	require.NoError(t, Unmarshal(data, &out, s))
	assert.Equal(t, int64(7), out.Keep)
}

func TestUnmarshal_Enum(t *testing.T) {
	s := schema.MustParse(`{"type":"enum","name":"Suit","symbols":["SPADES","HEARTS"]}`)

	var name string
	require.NoError(t, Unmarshal([]byte{0x02}, &name, s))
	assert.Equal(t, "HEARTS", name)

	var idx int
	require.NoError(t, Unmarshal([]byte{0x02}, &idx, s))
	assert.Equal(t, 1, idx)

	var bad string
	err := Unmarshal([]byte{0x08}, &bad, s)
	assert.Equal(t, avroerr.CodeIntegerOutOfRange, avroerr.GetCode(err))
}

func TestUnmarshal_Fixed(t *testing.T) {
	s := schema.MustParse(`{"type":"fixed","name":"Four","size":4}`)

	var arr [4]byte
	require.NoError(t, Unmarshal([]byte{1, 2, 3, 4}, &arr, s))
	assert.Equal(t, [4]byte{1, 2, 3, 4}, arr)

	var sl []byte
	require.NoError(t, Unmarshal([]byte{1, 2, 3, 4}, &sl, s))
	assert.Equal(t, []byte{1, 2, 3, 4}, sl)

	var short [3]byte
	err := Unmarshal([]byte{1, 2, 3, 4}, &short, s)
	assert.Equal(t, avroerr.CodeInvalidLength, avroerr.GetCode(err))
}

func TestUnmarshal_IntoInterface(t *testing.T) {
	s := schema.MustParse(`{
		"type": "record",
		"name": "Generic",
		"fields": [
			{"name": "n", "type": "long"},
			{"name": "tags", "type": {"type": "array", "items": "string"}},
			{"name": "opt", "type": ["null", "int"]}
		]
	}`)

	in := map[string]interface{}{
		"n":    int64(5),
		"tags": []interface{}{"x"},
		"opt":  nil,
	}
	data, err := Marshal(in, s)
	require.NoError(t, err)

	var out interface{}
	require.NoError(t, Unmarshal(data, &out, s))
	assert.Equal(t, map[string]interface{}{
		"n":    int64(5),
		"tags": []interface{}{"x"},
		"opt":  nil,
	}, out)
}

func TestUnmarshal_BorrowedBytesAliasInput(t *testing.T) {
	s := schema.MustParse(`"bytes"`)
	input := []byte{0x06, 0xAA, 0xBB, 0xCC}

	var out []byte
	require.NoError(t, Unmarshal(input, &out, s))

	// Borrow soundness: the yielded slice lies within the input buffer.
	input[1] = 0x11
	assert.Equal(t, []byte{0x11, 0xBB, 0xCC}, out)

	// WithCopiedBytes severs the alias.
	input[1] = 0xAA
	var copied []byte
	require.NoError(t, Unmarshal(input, &copied, s, WithCopiedBytes()))
	input[1] = 0x22
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, copied)
}

func TestUnmarshal_BorrowedStringsOptIn(t *testing.T) {
	s := schema.MustParse(`"string"`)
	input := []byte{0x06, 'a', 'b', 'c'}

	var borrowed string
	require.NoError(t, Unmarshal(input, &borrowed, s, WithBorrowedStrings()))
	assert.Equal(t, "abc", borrowed)

	var copied string
	require.NoError(t, Unmarshal(input, &copied, s))
	input[1] = 'z'
	assert.Equal(t, "abc", copied)
}

func TestUnmarshal_InvalidUTF8String(t *testing.T) {
	s := schema.MustParse(`"string"`)
	var out string
	err := Unmarshal([]byte{0x04, 0xFF, 0xFE}, &out, s)
	assert.Equal(t, avroerr.CodeInvalidUTF8, avroerr.GetCode(err))
}

func TestUnmarshal_TruncatedDatum(t *testing.T) {
	s := schema.MustParse(`"double"`)
	var out float64
	err := Unmarshal([]byte{0x00, 0x01}, &out, s)
	assert.Equal(t, avroerr.CodeUnexpectedEOF, avroerr.GetCode(err))
}

func TestUnmarshal_LongIntoSmallTarget(t *testing.T) {
	s := schema.MustParse(`"long"`)
	data, err := Marshal(int64(1<<40), s)
	require.NoError(t, err)

	var out int32
	err = Unmarshal(data, &out, s)
	assert.Equal(t, avroerr.CodeIntegerOutOfRange, avroerr.GetCode(err))
}

func TestUnmarshal_RecursionDepthBounded(t *testing.T) {
	s := schema.MustParse(`{
		"type": "record",
		"name": "Nest",
		"fields": [{"name": "next", "type": ["null", "Nest"]}]
	}`)

	// 100 levels of {union index 1} then a null.
	var buf bytes.Buffer
	for i := 0; i < 100; i++ {
		buf.WriteByte(0x02)
	}
	buf.WriteByte(0x00)

	type Nest struct {
		Next *Nest `avro:"next"`
	}
	var out Nest
	err := Unmarshal(buf.Bytes(), &out, s)
	require.Error(t, err)

	require.NoError(t, Unmarshal(buf.Bytes(), &out, s, WithMaxDepth(1000)))
}

func TestDecoder_Stream(t *testing.T) {
	s := schema.MustParse(`"string"`)

	var stream bytes.Buffer
	enc := NewEncoder(&stream, s)
	require.NoError(t, enc.Encode("one"))
	require.NoError(t, enc.Encode("two"))

	dec := NewDecoder(&stream, s)
	var a, b string
	require.NoError(t, dec.Decode(&a))
	require.NoError(t, dec.Decode(&b))
	assert.Equal(t, "one", a)
	assert.Equal(t, "two", b)

	var c string
	err := dec.Decode(&c)
	assert.Equal(t, avroerr.CodeUnexpectedEOF, avroerr.GetCode(err))
}
