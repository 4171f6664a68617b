package schema

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalForm(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"primitive", `"long"`, `"long"`},
		{
			"strips extra attributes and qualifies names",
			`{"type":"record","name":"T","namespace":"org.x","doc":"irrelevant","fields":[
				{"name":"f","type":"string","doc":"also irrelevant"}
			]}`,
			`{"name":"org.x.T","type":"record","fields":[{"name":"f","type":"string"}]}`,
		},
		{
			"strips logical types",
			`{"type":"bytes","logicalType":"decimal","precision":10,"scale":2}`,
			`"bytes"`,
		},
		{
			"union and containers",
			`{"type":"array","items":{"type":"map","values":["null","int"]}}`,
			`{"type":"array","items":{"type":"map","values":["null","int"]}}`,
		},
		{
			"second occurrence by name",
			`{"type":"record","name":"PigValue","fields":[
				{"name":"value","type":["null","int","long","PigValue"]}
			]}`,
			`{"name":"PigValue","type":"record","fields":[{"name":"value","type":["null","int","long","PigValue"]}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.CanonicalForm())
		})
	}
}

// TestCanonicalForm_Idempotent checks that re-parsing a schema's canonical
// form yields a structurally identical graph: same canonical form, same
// fingerprint.
func TestCanonicalForm_Idempotent(t *testing.T) {
	texts := []string{
		`"string"`,
		`{"type":"record","name":"com.example.Node","fields":[
			{"name":"next","type":["null","com.example.Node"]},
			{"name":"payload","type":{"type":"fixed","name":"Blob","size":8}},
			{"name":"labels","type":{"type":"array","items":"string"}}
		]}`,
		`{"type":"map","values":{"type":"enum","name":"Level","symbols":["LOW","HIGH"]}}`,
	}
	for _, text := range texts {
		s1, err := Parse(text)
		require.NoError(t, err)
		s2, err := Parse(s1.CanonicalForm())
		require.NoError(t, err)
		assert.Equal(t, s1.CanonicalForm(), s2.CanonicalForm())
		assert.Equal(t, s1.Fingerprint(), s2.Fingerprint())
		assert.Equal(t, s1.Len(), s2.Len())
	}
}

// Fingerprint vectors from the Avro specification's CRC-64-AVRO examples.
func TestFingerprint_KnownVectors(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{`"null"`, 7195948357588979594},
		{`"boolean"`, -6970731678124411036},
		{`{"name":"foo","type":"fixed","size":15}`, 1756455273707447556},
		{
			`{"name":"PigValue","type":"record","fields":[{"name":"value","type":["null","int","long","PigValue"]}]}`,
			-1759257747318642341,
		},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			s, err := Parse(tt.text)
			require.NoError(t, err)
			fp := s.Fingerprint()
			got := int64(binary.LittleEndian.Uint64(fp[:]))
			assert.Equal(t, tt.want, got)
		})
	}
}
