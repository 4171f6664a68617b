package schema

import (
	"strconv"
	"strings"
)

// canonicalForm serializes a graph to Avro's Parsing Canonical Form:
// minimal JSON, fully-qualified names, the attribute whitelist in field
// order name/type/fields/symbols/items/values/size, and logical-type
// annotations stripped. A named type is defined at its first occurrence and
// referenced by name afterwards.
func canonicalForm(s *Schema) string {
	var b strings.Builder
	emitted := make(map[Ref]bool)
	writeCanonical(&b, s, s.root, emitted)
	return b.String()
}

func writeCanonical(b *strings.Builder, s *Schema, r Ref, emitted map[Ref]bool) {
	n := s.Node(r)
	switch n.Type {
	case TypeNull, TypeBoolean, TypeInt, TypeLong, TypeFloat, TypeDouble, TypeBytes, TypeString:
		b.WriteByte('"')
		b.WriteString(n.Type.String())
		b.WriteByte('"')

	case TypeUnion:
		b.WriteByte('[')
		for i, branch := range n.Branches {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, s, branch, emitted)
		}
		b.WriteByte(']')

	case TypeArray:
		b.WriteString(`{"type":"array","items":`)
		writeCanonical(b, s, n.Items, emitted)
		b.WriteByte('}')

	case TypeMap:
		b.WriteString(`{"type":"map","values":`)
		writeCanonical(b, s, n.Values, emitted)
		b.WriteByte('}')

	case TypeRecord:
		if emitted[r] {
			b.WriteByte('"')
			b.WriteString(n.Name)
			b.WriteByte('"')
			return
		}
		emitted[r] = true
		b.WriteString(`{"name":"`)
		b.WriteString(n.Name)
		b.WriteString(`","type":"record","fields":[`)
		for i := range n.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(`{"name":"`)
			b.WriteString(n.Fields[i].Name)
			b.WriteString(`","type":`)
			writeCanonical(b, s, n.Fields[i].Type, emitted)
			b.WriteByte('}')
		}
		b.WriteString(`]}`)

	case TypeEnum:
		if emitted[r] {
			b.WriteByte('"')
			b.WriteString(n.Name)
			b.WriteByte('"')
			return
		}
		emitted[r] = true
		b.WriteString(`{"name":"`)
		b.WriteString(n.Name)
		b.WriteString(`","type":"enum","symbols":[`)
		for i, sym := range n.Symbols {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(sym)
			b.WriteByte('"')
		}
		b.WriteString(`]}`)

	case TypeFixed:
		if emitted[r] {
			b.WriteByte('"')
			b.WriteString(n.Name)
			b.WriteByte('"')
			return
		}
		emitted[r] = true
		b.WriteString(`{"name":"`)
		b.WriteString(n.Name)
		b.WriteString(`","type":"fixed","size":`)
		b.WriteString(strconv.Itoa(n.Size))
		b.WriteByte('}')
	}
}
