package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avrojet/avrojet/pkg/avroerr"
)

func TestParse_Primitives(t *testing.T) {
	tests := []struct {
		text string
		want Type
	}{
		{`"null"`, TypeNull},
		{`"boolean"`, TypeBoolean},
		{`"int"`, TypeInt},
		{`"long"`, TypeLong},
		{`"float"`, TypeFloat},
		{`"double"`, TypeDouble},
		{`"bytes"`, TypeBytes},
		{`"string"`, TypeString},
		{`{"type":"string"}`, TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			s, err := Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Node(s.Root()).Type)
		})
	}
}

func TestParse_Record(t *testing.T) {
	s, err := Parse(`{
		"type": "record",
		"name": "Event",
		"namespace": "com.example",
		"fields": [
			{"name": "id", "type": "long"},
			{"name": "kind", "type": "string"},
			{"name": "weight", "type": "double", "default": 1.5}
		]
	}`)
	require.NoError(t, err)

	root := s.Node(s.Root())
	assert.Equal(t, TypeRecord, root.Type)
	assert.Equal(t, "com.example.Event", root.Name)
	assert.Equal(t, "Event", root.SimpleName())
	require.Len(t, root.Fields, 3)

	assert.Equal(t, TypeLong, s.Node(root.Fields[0].Type).Type)
	assert.False(t, root.Fields[0].HasDefault)

	assert.True(t, root.Fields[2].HasDefault)
	assert.Equal(t, 1.5, root.Fields[2].Default)

	ref, ok := s.LookupName("com.example.Event")
	require.True(t, ok)
	assert.Equal(t, s.Root(), ref)
}

func TestParse_NamespaceInheritance(t *testing.T) {
	// A nested bare name inherits the enclosing namespace; a dotted name
	// is absolute.
	s, err := Parse(`{
		"type": "record",
		"name": "com.example.Outer",
		"fields": [
			{"name": "inner", "type": {"type": "record", "name": "Inner", "fields": [
				{"name": "x", "type": "int"}
			]}},
			{"name": "again", "type": "Inner"},
			{"name": "absolute", "type": "com.example.Inner"}
		]
	}`)
	require.NoError(t, err)

	inner, ok := s.LookupName("com.example.Inner")
	require.True(t, ok)

	root := s.Node(s.Root())
	assert.Equal(t, inner, root.Fields[0].Type)
	assert.Equal(t, inner, root.Fields[1].Type)
	assert.Equal(t, inner, root.Fields[2].Type)
}

func TestParse_ExplicitNullNamespace(t *testing.T) {
	s, err := Parse(`{
		"type": "record",
		"name": "Outer",
		"namespace": "com.example",
		"fields": [
			{"name": "bare", "type": {"type": "fixed", "name": "Mark", "namespace": "", "size": 4}}
		]
	}`)
	require.NoError(t, err)

	_, ok := s.LookupName("Mark")
	assert.True(t, ok, "empty namespace string selects the null namespace")
	_, ok = s.LookupName("com.example.Mark")
	assert.False(t, ok)
}

func TestParse_ForwardReference(t *testing.T) {
	// The unions name Tree before its definition is complete.
	s, err := Parse(`{
		"type": "record",
		"name": "Tree",
		"fields": [
			{"name": "left", "type": ["null", "Tree"]},
			{"name": "right", "type": ["null", "Tree"]},
			{"name": "value", "type": "long"}
		]
	}`)
	require.NoError(t, err)

	root := s.Node(s.Root())
	left := s.Node(root.Fields[0].Type)
	require.Equal(t, TypeUnion, left.Type)
	assert.Equal(t, s.Root(), left.Branches[1], "recursive reference resolves to the record itself")
	assert.Equal(t, 0, left.NullBranch())
	assert.Equal(t, 1, left.OptionalBranch())
}

func TestParse_Enum(t *testing.T) {
	s, err := Parse(`{"type":"enum","name":"Suit","symbols":["SPADES","HEARTS","DIAMONDS","CLUBS"]}`)
	require.NoError(t, err)

	root := s.Node(s.Root())
	assert.Equal(t, TypeEnum, root.Type)
	assert.Equal(t, []string{"SPADES", "HEARTS", "DIAMONDS", "CLUBS"}, root.Symbols)
	assert.Equal(t, 2, root.SymbolIndex("DIAMONDS"))
	assert.Equal(t, -1, root.SymbolIndex("JOKERS"))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		code string
	}{
		{"invalid json", `{"type":`, avroerr.CodeInvalidJSON},
		{"unknown type", `"sometype"`, avroerr.CodeUnknownNamedType},
		{"missing type", `{"name":"X"}`, avroerr.CodeMissingRequiredField},
		{"missing record fields", `{"type":"record","name":"R"}`, avroerr.CodeMissingRequiredField},
		{"missing fixed size", `{"type":"fixed","name":"F"}`, avroerr.CodeMissingRequiredField},
		{"missing enum symbols", `{"type":"enum","name":"E"}`, avroerr.CodeMissingRequiredField},
		{"bad name", `{"type":"record","name":"9lives","fields":[]}`, avroerr.CodeInvalidSchema},
		{
			"duplicate name",
			`{"type":"record","name":"R","fields":[
				{"name":"a","type":{"type":"fixed","name":"F","size":1}},
				{"name":"b","type":{"type":"fixed","name":"F","size":2}}
			]}`,
			avroerr.CodeDuplicateName,
		},
		{"duplicate union primitive", `["int","string","int"]`, avroerr.CodeInvalidUnion},
		{"nested union", `["null",["int","string"]]`, avroerr.CodeInvalidUnion},
		{"empty union", `[]`, avroerr.CodeInvalidUnion},
		{
			"invalid default",
			`{"type":"record","name":"R","fields":[{"name":"n","type":"int","default":"zero"}]}`,
			avroerr.CodeInvalidDefault,
		},
		{
			"unconditional cycle",
			`{"type":"record","name":"Loop","fields":[{"name":"next","type":"Loop"}]}`,
			avroerr.CodeCyclicSchema,
		},
		{
			"decimal scale above precision",
			`{"type":"bytes","logicalType":"decimal","precision":4,"scale":5}`,
			avroerr.CodeInvalidLogical,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			assert.Equal(t, tt.code, avroerr.GetCode(err))
			assert.True(t, avroerr.IsSchemaError(err))
		})
	}
}

func TestParse_UnionDistinctNamedTypes(t *testing.T) {
	// Two fixed types with different names may share a union.
	_, err := Parse(`[
		{"type":"fixed","name":"A","size":4},
		{"type":"fixed","name":"B","size":4}
	]`)
	assert.NoError(t, err)
}

func TestParse_Logical(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		logical Logical
	}{
		{"decimal bytes", `{"type":"bytes","logicalType":"decimal","precision":10,"scale":2}`, LogicalDecimal},
		{"uuid", `{"type":"string","logicalType":"uuid"}`, LogicalUUID},
		{"date", `{"type":"int","logicalType":"date"}`, LogicalDate},
		{"time millis", `{"type":"int","logicalType":"time-millis"}`, LogicalTimeMillis},
		{"time micros", `{"type":"long","logicalType":"time-micros"}`, LogicalTimeMicros},
		{"timestamp millis", `{"type":"long","logicalType":"timestamp-millis"}`, LogicalTimestampMillis},
		{"timestamp micros", `{"type":"long","logicalType":"timestamp-micros"}`, LogicalTimestampMicros},
		{"duration", `{"type":"fixed","name":"Dur","size":12,"logicalType":"duration"}`, LogicalDuration},

		// Unknown names and incompatible bases downgrade to the base type.
		{"unknown logical", `{"type":"int","logicalType":"geo-point"}`, LogicalNone},
		{"uuid atop int", `{"type":"int","logicalType":"uuid"}`, LogicalNone},
		{"date atop long", `{"type":"long","logicalType":"date"}`, LogicalNone},
		{"duration wrong size", `{"type":"fixed","name":"Dur","size":8,"logicalType":"duration"}`, LogicalNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.logical, s.Node(s.Root()).Logical)
		})
	}
}

func TestParse_DefaultForms(t *testing.T) {
	s, err := Parse(`{
		"type": "record",
		"name": "Defaults",
		"fields": [
			{"name": "b", "type": "boolean", "default": true},
			{"name": "i", "type": "int", "default": 7},
			{"name": "l", "type": "long", "default": 7000000000},
			{"name": "s", "type": "string", "default": "hi"},
			{"name": "raw", "type": "bytes", "default": "ÿ\u0000"},
			{"name": "opt", "type": ["null", "string"], "default": null},
			{"name": "tags", "type": {"type": "array", "items": "string"}, "default": ["a", "b"]},
			{"name": "attrs", "type": {"type": "map", "values": "int"}, "default": {"x": 1}}
		]
	}`)
	require.NoError(t, err)

	fields := s.Node(s.Root()).Fields
	assert.Equal(t, true, fields[0].Default)
	assert.Equal(t, int32(7), fields[1].Default)
	assert.Equal(t, int64(7000000000), fields[2].Default)
	assert.Equal(t, "hi", fields[3].Default)
	assert.Equal(t, []byte{0xFF, 0x00}, fields[4].Default)
	assert.True(t, fields[5].HasDefault)
	assert.Nil(t, fields[5].Default)
	assert.Equal(t, []interface{}{"a", "b"}, fields[6].Default)
	assert.Equal(t, map[string]interface{}{"x": int32(1)}, fields[7].Default)
}

func TestParse_UnionDefaultUsesFirstBranch(t *testing.T) {
	_, err := Parse(`{
		"type": "record",
		"name": "R",
		"fields": [{"name": "opt", "type": ["null", "string"], "default": "oops"}]
	}`)
	require.Error(t, err)
	assert.Equal(t, avroerr.CodeInvalidDefault, avroerr.GetCode(err))
}

func TestSchema_ConcurrentTraversal(t *testing.T) {
	s := MustParse(`{"type":"array","items":{"type":"map","values":["null","long"]}}`)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 1000; j++ {
				root := s.Node(s.Root())
				values := s.Node(s.Node(root.Items).Values)
				_ = values.NullBranch()
				_ = s.Fingerprint()
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
