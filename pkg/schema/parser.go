package schema

import (
	"encoding/json"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/avrojet/avrojet/pkg/avroerr"
)

// jsonAPI parses schema text. UseNumber keeps integer attributes exact so
// sizes and defaults are not routed through float64.
var jsonAPI = jsoniter.Config{UseNumber: true}.Froze()

// Parse builds a frozen schema graph from Avro JSON schema text.
func Parse(text string) (*Schema, error) {
	var tree interface{}
	if err := jsonAPI.UnmarshalFromString(text, &tree); err != nil {
		return nil, avroerr.WrapSchema(avroerr.CodeInvalidJSON, "schema is not valid JSON", err)
	}

	b := &builder{names: make(map[string]Ref)}

	root, err := b.walk(tree, "")
	if err != nil {
		return nil, err
	}

	if err := b.resolve(); err != nil {
		return nil, err
	}
	root = b.fixRef(root)
	for i := range b.nodes {
		b.fixNode(&b.nodes[i])
	}

	if err := b.validateUnions(); err != nil {
		return nil, err
	}
	if err := b.checkCycles(); err != nil {
		return nil, err
	}
	if err := b.decodeDefaults(); err != nil {
		return nil, err
	}

	s := &Schema{nodes: b.nodes, root: root, names: b.names, text: text}
	s.freeze()
	s.canonical = canonicalForm(s)
	s.fingerprint = rabinFingerprint(s.canonical)
	return s, nil
}

// MustParse is like Parse but panics on error. Intended for schema literals
// in tests and initialization code.
func MustParse(text string) *Schema {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

// pendingName is a forward reference recorded during the structural pass.
type pendingName struct {
	name        string
	enclosingNS string
}

// pendingDefault is a raw field default awaiting decode after resolution.
type pendingDefault struct {
	node  int
	field int
	raw   interface{}
}

type builder struct {
	nodes           []Node
	names           map[string]Ref
	unresolved      []pendingName
	resolvedPending []Ref
	defaults        []pendingDefault
	unions          []Ref
}

func (b *builder) alloc(n Node) Ref {
	b.nodes = append(b.nodes, n)
	return Ref(len(b.nodes) - 1)
}

// pendingRef encodes the i-th unresolved name as a placeholder handle below
// NoRef, rewritten by the resolution pass.
func pendingRef(i int) Ref { return NoRef - 1 - Ref(i) }

func isPending(r Ref) bool { return r < NoRef }

func pendingIndex(r Ref) int { return int(NoRef - 1 - r) }

var primitives = map[string]Type{
	"null":    TypeNull,
	"boolean": TypeBoolean,
	"int":     TypeInt,
	"long":    TypeLong,
	"float":   TypeFloat,
	"double":  TypeDouble,
	"bytes":   TypeBytes,
	"string":  TypeString,
}

// walk allocates arena nodes for one schema subtree (structural pass).
func (b *builder) walk(v interface{}, enclosingNS string) (Ref, error) {
	switch t := v.(type) {
	case string:
		if prim, ok := primitives[t]; ok {
			return b.alloc(Node{Type: prim, Items: NoRef, Values: NoRef}), nil
		}
		return b.reference(t, enclosingNS), nil
	case []interface{}:
		return b.walkUnion(t, enclosingNS)
	case map[string]interface{}:
		return b.walkObject(t, enclosingNS)
	default:
		return NoRef, avroerr.NewSchema(avroerr.CodeInvalidSchema, "schema must be a string, array or object, got %T", v)
	}
}

// reference records a named-type reference, resolving immediately when the
// name is already registered.
func (b *builder) reference(name, enclosingNS string) Ref {
	if fqn, ok := b.tryResolve(name, enclosingNS); ok {
		return b.names[fqn]
	}
	b.unresolved = append(b.unresolved, pendingName{name: name, enclosingNS: enclosingNS})
	return pendingRef(len(b.unresolved) - 1)
}

// tryResolve applies the lookup rule: dotted names are absolute; bare names
// try the enclosing namespace first, then the null namespace.
func (b *builder) tryResolve(name, enclosingNS string) (string, bool) {
	if strings.Contains(name, ".") {
		_, ok := b.names[name]
		return name, ok
	}
	if enclosingNS != "" {
		if fqn := enclosingNS + "." + name; b.hasName(fqn) {
			return fqn, true
		}
	}
	_, ok := b.names[name]
	return name, ok
}

func (b *builder) hasName(fqn string) bool {
	_, ok := b.names[fqn]
	return ok
}

func (b *builder) walkUnion(branches []interface{}, enclosingNS string) (Ref, error) {
	if len(branches) == 0 {
		return NoRef, avroerr.NewSchema(avroerr.CodeInvalidUnion, "union must have at least one branch")
	}
	refs := make([]Ref, 0, len(branches))
	for _, branch := range branches {
		if _, ok := branch.([]interface{}); ok {
			return NoRef, avroerr.NewSchema(avroerr.CodeInvalidUnion, "unions may not immediately contain other unions")
		}
		r, err := b.walk(branch, enclosingNS)
		if err != nil {
			return NoRef, err
		}
		refs = append(refs, r)
	}
	ref := b.alloc(Node{Type: TypeUnion, Branches: refs, Items: NoRef, Values: NoRef})
	b.unions = append(b.unions, ref)
	return ref, nil
}

func (b *builder) walkObject(obj map[string]interface{}, enclosingNS string) (Ref, error) {
	rawType, ok := obj["type"]
	if !ok {
		return NoRef, avroerr.NewSchema(avroerr.CodeMissingRequiredField, "missing %q in schema object", "type")
	}

	typeName, ok := rawType.(string)
	if !ok {
		// An object or array in "type" position is itself a schema
		// (e.g. {"type": {"type": "array", ...}}).
		return b.walk(rawType, enclosingNS)
	}

	switch typeName {
	case "record", "error":
		return b.walkRecord(obj, enclosingNS)
	case "enum":
		return b.walkEnum(obj, enclosingNS)
	case "fixed":
		return b.walkFixed(obj, enclosingNS)
	case "array":
		items, ok := obj["items"]
		if !ok {
			return NoRef, avroerr.NewSchema(avroerr.CodeMissingRequiredField, "missing %q in array schema", "items")
		}
		itemRef, err := b.walk(items, enclosingNS)
		if err != nil {
			return NoRef, err
		}
		return b.alloc(Node{Type: TypeArray, Items: itemRef, Values: NoRef}), nil
	case "map":
		values, ok := obj["values"]
		if !ok {
			return NoRef, avroerr.NewSchema(avroerr.CodeMissingRequiredField, "missing %q in map schema", "values")
		}
		valueRef, err := b.walk(values, enclosingNS)
		if err != nil {
			return NoRef, err
		}
		return b.alloc(Node{Type: TypeMap, Values: valueRef, Items: NoRef}), nil
	default:
		if prim, ok := primitives[typeName]; ok {
			node := Node{Type: prim, Items: NoRef, Values: NoRef}
			if err := applyLogical(&node, obj); err != nil {
				return NoRef, err
			}
			return b.alloc(node), nil
		}
		// A named reference wrapped in an object.
		return b.reference(typeName, enclosingNS), nil
	}
}

func (b *builder) walkRecord(obj map[string]interface{}, enclosingNS string) (Ref, error) {
	fqn, ns, err := b.declareName(obj, enclosingNS, "record")
	if err != nil {
		return NoRef, err
	}

	// Allocate and register before walking fields so the record may
	// reference itself.
	ref := b.alloc(Node{Type: TypeRecord, Name: fqn, Items: NoRef, Values: NoRef})
	b.names[fqn] = ref

	rawFields, ok := obj["fields"]
	if !ok {
		return NoRef, avroerr.NewSchema(avroerr.CodeMissingRequiredField, "missing %q in record %s", "fields", fqn)
	}
	fieldList, ok := rawFields.([]interface{})
	if !ok {
		return NoRef, avroerr.NewSchema(avroerr.CodeInvalidSchema, "record %s: fields must be an array", fqn)
	}

	fields := make([]Field, 0, len(fieldList))
	seen := make(map[string]bool, len(fieldList))
	for _, rawField := range fieldList {
		fieldObj, ok := rawField.(map[string]interface{})
		if !ok {
			return NoRef, avroerr.NewSchema(avroerr.CodeInvalidSchema, "record %s: field must be an object", fqn)
		}
		name, ok := fieldObj["name"].(string)
		if !ok {
			return NoRef, avroerr.NewSchema(avroerr.CodeMissingRequiredField, "missing %q in field of record %s", "name", fqn)
		}
		if !validName(name) {
			return NoRef, avroerr.NewSchema(avroerr.CodeInvalidSchema, "record %s: invalid field name %q", fqn, name)
		}
		if seen[name] {
			return NoRef, avroerr.NewSchema(avroerr.CodeDuplicateName, "record %s: duplicate field %q", fqn, name)
		}
		seen[name] = true

		rawFieldType, ok := fieldObj["type"]
		if !ok {
			return NoRef, avroerr.NewSchema(avroerr.CodeMissingRequiredField, "missing %q in field %s.%s", "type", fqn, name)
		}
		fieldRef, err := b.walk(rawFieldType, ns)
		if err != nil {
			return NoRef, err
		}

		field := Field{Name: name, Type: fieldRef}
		if raw, ok := fieldObj["default"]; ok {
			field.HasDefault = true
			b.defaults = append(b.defaults, pendingDefault{node: int(ref), field: len(fields), raw: raw})
		}
		fields = append(fields, field)
	}
	b.nodes[ref].Fields = fields
	return ref, nil
}

func (b *builder) walkEnum(obj map[string]interface{}, enclosingNS string) (Ref, error) {
	fqn, _, err := b.declareName(obj, enclosingNS, "enum")
	if err != nil {
		return NoRef, err
	}
	rawSymbols, ok := obj["symbols"]
	if !ok {
		return NoRef, avroerr.NewSchema(avroerr.CodeMissingRequiredField, "missing %q in enum %s", "symbols", fqn)
	}
	symbolList, ok := rawSymbols.([]interface{})
	if !ok {
		return NoRef, avroerr.NewSchema(avroerr.CodeInvalidSchema, "enum %s: symbols must be an array", fqn)
	}
	symbols := make([]string, 0, len(symbolList))
	seen := make(map[string]bool, len(symbolList))
	for _, raw := range symbolList {
		sym, ok := raw.(string)
		if !ok || !validName(sym) {
			return NoRef, avroerr.NewSchema(avroerr.CodeInvalidSchema, "enum %s: invalid symbol %v", fqn, raw)
		}
		if seen[sym] {
			return NoRef, avroerr.NewSchema(avroerr.CodeDuplicateName, "enum %s: duplicate symbol %q", fqn, sym)
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	ref := b.alloc(Node{Type: TypeEnum, Name: fqn, Symbols: symbols, Items: NoRef, Values: NoRef})
	b.names[fqn] = ref
	return ref, nil
}

func (b *builder) walkFixed(obj map[string]interface{}, enclosingNS string) (Ref, error) {
	fqn, _, err := b.declareName(obj, enclosingNS, "fixed")
	if err != nil {
		return NoRef, err
	}
	size, err := intAttr(obj, "size")
	if err != nil {
		return NoRef, avroerr.NewSchema(avroerr.CodeMissingRequiredField, "fixed %s: %v", fqn, err)
	}
	if size < 0 {
		return NoRef, avroerr.NewSchema(avroerr.CodeInvalidSchema, "fixed %s: negative size %d", fqn, size)
	}
	node := Node{Type: TypeFixed, Name: fqn, Size: size, Items: NoRef, Values: NoRef}
	if err := applyLogical(&node, obj); err != nil {
		return NoRef, err
	}
	ref := b.alloc(node)
	b.names[fqn] = ref
	return ref, nil
}

// declareName computes the fully-qualified name of a named type and checks
// it is unique. It returns the fqn and the namespace its children inherit.
func (b *builder) declareName(obj map[string]interface{}, enclosingNS, what string) (fqn, ns string, err error) {
	name, ok := obj["name"].(string)
	if !ok {
		return "", "", avroerr.NewSchema(avroerr.CodeMissingRequiredField, "missing %q in %s schema", "name", what)
	}

	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		ns, name = name[:i], name[i+1:]
	} else if rawNS, present := obj["namespace"]; present {
		nsStr, ok := rawNS.(string)
		if !ok {
			return "", "", avroerr.NewSchema(avroerr.CodeInvalidSchema, "%s %s: namespace must be a string", what, name)
		}
		// An explicit empty namespace selects the null namespace.
		ns = nsStr
	} else {
		ns = enclosingNS
	}

	if !validName(name) {
		return "", "", avroerr.NewSchema(avroerr.CodeInvalidSchema, "invalid %s name %q", what, name)
	}
	if ns != "" && !validNamespace(ns) {
		return "", "", avroerr.NewSchema(avroerr.CodeInvalidSchema, "invalid namespace %q", ns)
	}

	fqn = name
	if ns != "" {
		fqn = ns + "." + name
	}
	if _, exists := b.names[fqn]; exists {
		return "", "", avroerr.NewSchema(avroerr.CodeDuplicateName, "duplicate named type %s", fqn)
	}
	return fqn, ns, nil
}

// resolve rewrites pending refs against the name table (resolution pass).
func (b *builder) resolve() error {
	if len(b.unresolved) == 0 {
		return nil
	}
	resolved := make([]Ref, len(b.unresolved))
	for i, p := range b.unresolved {
		fqn, ok := b.tryResolve(p.name, p.enclosingNS)
		if !ok {
			return avroerr.NewSchema(avroerr.CodeUnknownNamedType, "unknown named type %q", p.name)
		}
		resolved[i] = b.names[fqn]
	}
	b.resolvedPending = resolved
	return nil
}

func (b *builder) fixRef(r Ref) Ref {
	if isPending(r) {
		return b.resolvedPending[pendingIndex(r)]
	}
	return r
}

func (b *builder) fixNode(n *Node) {
	if n.Items != NoRef {
		n.Items = b.fixRef(n.Items)
	}
	if n.Values != NoRef {
		n.Values = b.fixRef(n.Values)
	}
	for i := range n.Branches {
		n.Branches[i] = b.fixRef(n.Branches[i])
	}
	for i := range n.Fields {
		n.Fields[i].Type = b.fixRef(n.Fields[i].Type)
	}
}

// validateUnions checks branch distinctness by resolution tag.
func (b *builder) validateUnions() error {
	for _, ref := range b.unions {
		node := &b.nodes[ref]
		seen := make(map[string]bool, len(node.Branches))
		for _, branch := range node.Branches {
			bn := &b.nodes[branch]
			tag := bn.Type.String()
			if bn.Name != "" {
				tag += ":" + bn.Name
			}
			if seen[tag] {
				return avroerr.NewSchema(avroerr.CodeInvalidUnion, "union has duplicate branch %s", tag)
			}
			seen[tag] = true
		}
	}
	return nil
}

// checkCycles rejects unconditional cycles: a record that must always
// contain itself, with no union, array or map on the path to break the
// recursion.
func (b *builder) checkCycles() error {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make([]byte, len(b.nodes))

	var visit func(r Ref) error
	visit = func(r Ref) error {
		n := &b.nodes[r]
		if n.Type != TypeRecord {
			return nil
		}
		switch state[r] {
		case done:
			return nil
		case inStack:
			return avroerr.NewSchema(avroerr.CodeCyclicSchema, "record %s unconditionally contains itself", n.Name)
		}
		state[r] = inStack
		for _, f := range n.Fields {
			if err := visit(f.Type); err != nil {
				return err
			}
		}
		state[r] = done
		return nil
	}

	for i := range b.nodes {
		if err := visit(Ref(i)); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) decodeDefaults() error {
	for _, pd := range b.defaults {
		node := &b.nodes[pd.node]
		field := &node.Fields[pd.field]
		value, err := b.decodeDefault(pd.raw, field.Type)
		if err != nil {
			return avroerr.WrapSchema(avroerr.CodeInvalidDefault,
				"invalid default for field "+node.Name+"."+field.Name, err)
		}
		field.Default = value
	}
	return nil
}

// freeze computes the lookup indices the hot paths use.
func (s *Schema) freeze() {
	for i := range s.nodes {
		n := &s.nodes[i]
		n.nullBranch = -1
		n.optBranch = -1
		switch n.Type {
		case TypeUnion:
			for bi, branch := range n.Branches {
				if s.nodes[branch].Type == TypeNull {
					n.nullBranch = bi
				}
			}
			if len(n.Branches) == 2 && n.nullBranch >= 0 {
				n.optBranch = 1 - n.nullBranch
			}
		case TypeEnum:
			n.symbolIndex = make(map[string]int, len(n.Symbols))
			for si, sym := range n.Symbols {
				n.symbolIndex[sym] = si
			}
		case TypeRecord:
			n.fieldIndex = make(map[string]int, len(n.Fields))
			for fi := range n.Fields {
				n.fieldIndex[n.Fields[fi].Name] = fi
			}
		}
	}
}

// applyLogical annotates a primitive or fixed node with a logical type.
// Unknown logical names and incompatible bases downgrade silently to the
// base type; structurally invalid decimals are errors.
func applyLogical(node *Node, obj map[string]interface{}) error {
	rawLogical, ok := obj["logicalType"]
	if !ok {
		return nil
	}
	name, ok := rawLogical.(string)
	if !ok {
		return nil
	}

	switch name {
	case "decimal":
		if node.Type != TypeBytes && node.Type != TypeFixed {
			return nil
		}
		precision, err := intAttr(obj, "precision")
		if err != nil {
			return nil
		}
		scale := 0
		if _, ok := obj["scale"]; ok {
			scale, err = intAttr(obj, "scale")
			if err != nil {
				return nil
			}
		}
		if precision <= 0 {
			return &avroerr.Error{Kind: avroerr.KindSchema, Code: avroerr.CodeInvalidLogical,
				Message: "decimal precision must be positive"}
		}
		if scale < 0 || scale > precision {
			return &avroerr.Error{Kind: avroerr.KindSchema, Code: avroerr.CodeInvalidLogical,
				Message: "decimal scale must be within [0, precision]"}
		}
		node.Logical = LogicalDecimal
		node.Precision = precision
		node.Scale = scale
	case "uuid":
		if node.Type == TypeString {
			node.Logical = LogicalUUID
		}
	case "date":
		if node.Type == TypeInt {
			node.Logical = LogicalDate
		}
	case "time-millis":
		if node.Type == TypeInt {
			node.Logical = LogicalTimeMillis
		}
	case "time-micros":
		if node.Type == TypeLong {
			node.Logical = LogicalTimeMicros
		}
	case "timestamp-millis":
		if node.Type == TypeLong {
			node.Logical = LogicalTimestampMillis
		}
	case "timestamp-micros":
		if node.Type == TypeLong {
			node.Logical = LogicalTimestampMicros
		}
	case "duration":
		if node.Type == TypeFixed && node.Size == 12 {
			node.Logical = LogicalDuration
		}
	}
	return nil
}

func intAttr(obj map[string]interface{}, key string) (int, error) {
	raw, ok := obj[key]
	if !ok {
		return 0, avroerr.NewSchema(avroerr.CodeMissingRequiredField, "missing %q", key)
	}
	num, ok := raw.(json.Number)
	if !ok {
		return 0, avroerr.NewSchema(avroerr.CodeInvalidSchema, "%q must be an integer", key)
	}
	v, err := num.Int64()
	if err != nil {
		return 0, avroerr.NewSchema(avroerr.CodeInvalidSchema, "%q must be an integer", key)
	}
	return int(v), nil
}

// validName reports whether s is a legal Avro name: [A-Za-z_][A-Za-z0-9_]*.
func validName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// validNamespace reports whether every dot-separated segment is a legal name.
func validNamespace(s string) bool {
	for _, segment := range strings.Split(s, ".") {
		if !validName(segment) {
			return false
		}
	}
	return true
}
