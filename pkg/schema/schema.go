// Package schema builds and represents Avro schema graphs.
//
// A Schema is an arena of nodes indexed by Ref handles, allowing the cyclic
// references that recursive Avro types require. A fully built Schema is
// immutable and safe to share across goroutines for concurrent traversal.
package schema

// Type identifies the Avro type of a node.
type Type int

const (
	TypeNull Type = iota
	TypeBoolean
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeBytes
	TypeString
	TypeArray
	TypeMap
	TypeUnion
	TypeRecord
	TypeEnum
	TypeFixed
)

// String returns the Avro type name.
func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeBytes:
		return "bytes"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	case TypeMap:
		return "map"
	case TypeUnion:
		return "union"
	case TypeRecord:
		return "record"
	case TypeEnum:
		return "enum"
	case TypeFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// Logical identifies a logical type annotation atop a node's base type.
type Logical int

const (
	LogicalNone Logical = iota
	LogicalDecimal
	LogicalUUID
	LogicalDate
	LogicalTimeMillis
	LogicalTimeMicros
	LogicalTimestampMillis
	LogicalTimestampMicros
	LogicalDuration
)

// Ref is a stable handle to a node within its Schema's arena.
type Ref int32

// NoRef marks an absent node reference.
const NoRef Ref = -1

// Field is one record field: a name, the node it decodes with, and an
// optional default value pre-decoded at build time.
type Field struct {
	Name string
	Type Ref

	// HasDefault reports whether Default holds a pre-decoded value.
	HasDefault bool
	// Default is the field default in decoded form (nil, bool, int32,
	// int64, float32, float64, string, []byte, []interface{} or
	// map[string]interface{}), ready for injection without re-parsing.
	Default interface{}
}

// Node is one schema element. Which members are meaningful depends on Type:
// Items for arrays, Values for maps, Branches for unions, Name/Fields for
// records, Name/Symbols for enums, Name/Size for fixed.
type Node struct {
	Type    Type
	Logical Logical

	// Precision and Scale apply when Logical is LogicalDecimal.
	Precision int
	Scale     int

	Items    Ref
	Values   Ref
	Branches []Ref

	// Name is the fully-qualified name of a record, enum or fixed.
	Name    string
	Fields  []Field
	Symbols []string
	Size    int

	// nullBranch is the index of the null branch in a union, or -1.
	// optBranch is the sole non-null branch index when the union is a
	// two-branch optional, or -1.
	nullBranch int
	optBranch  int

	symbolIndex map[string]int
	fieldIndex  map[string]int
}

// NullBranch returns the index of a union's null branch, or -1.
func (n *Node) NullBranch() int { return n.nullBranch }

// OptionalBranch returns the sole non-null branch index when the union is a
// two-branch [null, X] or [X, null], or -1 otherwise.
func (n *Node) OptionalBranch() int { return n.optBranch }

// SymbolIndex returns the position of an enum symbol, or -1.
func (n *Node) SymbolIndex(symbol string) int {
	if i, ok := n.symbolIndex[symbol]; ok {
		return i
	}
	return -1
}

// FieldIndex returns the position of a record field by name, or -1.
func (n *Node) FieldIndex(name string) int {
	if i, ok := n.fieldIndex[name]; ok {
		return i
	}
	return -1
}

// SimpleName returns the name of a named node without its namespace.
func (n *Node) SimpleName() string {
	for i := len(n.Name) - 1; i >= 0; i-- {
		if n.Name[i] == '.' {
			return n.Name[i+1:]
		}
	}
	return n.Name
}

// Schema is a frozen schema graph: a node arena plus its root.
type Schema struct {
	nodes []Node
	root  Ref
	names map[string]Ref

	text        string
	canonical   string
	fingerprint [8]byte
}

// Text returns the JSON the schema was built from.
func (s *Schema) Text() string { return s.text }

// Root returns the graph's root node reference.
func (s *Schema) Root() Ref { return s.root }

// Node resolves a Ref within this graph. The returned node must be treated
// as read-only.
func (s *Schema) Node(r Ref) *Node { return &s.nodes[r] }

// Len returns the number of nodes in the arena.
func (s *Schema) Len() int { return len(s.nodes) }

// LookupName resolves a fully-qualified name to its node reference.
func (s *Schema) LookupName(fqn string) (Ref, bool) {
	r, ok := s.names[fqn]
	return r, ok
}

// CanonicalForm returns the schema's Parsing Canonical Form, computed once
// at build time.
func (s *Schema) CanonicalForm() string { return s.canonical }

// Fingerprint returns the CRC-64-AVRO (Rabin) fingerprint of the canonical
// form, as 8 little-endian bytes.
func (s *Schema) Fingerprint() [8]byte { return s.fingerprint }
