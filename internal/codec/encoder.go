package codec

import (
	"math"
	"math/big"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/avrojet/avrojet/internal/binary"
	"github.com/avrojet/avrojet/pkg/avroerr"
	"github.com/avrojet/avrojet/pkg/schema"
)

type encoder struct {
	w     *binary.Writer
	s     *schema.Schema
	cfg   Config
	depth int
}

// EncodeValue encodes v into w, guided by the node at ref. On error the
// writer may hold partial output; callers must discard it.
func EncodeValue(w *binary.Writer, s *schema.Schema, ref schema.Ref, v interface{}, cfg Config) error {
	e := &encoder{w: w, s: s, cfg: cfg.withDefaults()}
	return e.value(ref, reflect.ValueOf(v))
}

func (e *encoder) push() error {
	e.depth++
	if e.depth > e.cfg.MaxDepth {
		return avroerr.NewCodec(avroerr.CodeCustom, "nesting exceeds maximum depth %d", e.cfg.MaxDepth)
	}
	return nil
}

func (e *encoder) value(ref schema.Ref, rv reflect.Value) error {
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			rv = reflect.Value{}
		} else {
			rv = rv.Elem()
		}
	}

	n := e.s.Node(ref)
	if n.Type == schema.TypeUnion {
		return e.union(n, rv)
	}

	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			if n.Type == schema.TypeNull {
				return nil
			}
			return avroerr.NewCodec(avroerr.CodeUnsupportedType, "nil value for non-optional %s", n.Type)
		}
		rv = rv.Elem()
	}

	if n.Logical != schema.LogicalNone && rv.IsValid() {
		handled, err := e.logical(n, rv)
		if handled || err != nil {
			return err
		}
	}

	switch n.Type {
	case schema.TypeNull:
		if rv.IsValid() && !rv.IsZero() {
			return avroerr.NewCodec(avroerr.CodeUnsupportedType, "cannot encode %s as null", rv.Type())
		}
		return nil

	case schema.TypeBoolean:
		if !rv.IsValid() || rv.Kind() != reflect.Bool {
			return encodeMismatch(n, rv)
		}
		e.w.WriteBool(rv.Bool())
		return nil

	case schema.TypeInt:
		x, err := intFromValue(rv)
		if err != nil {
			return encodeMismatch(n, rv)
		}
		if x < math.MinInt32 || x > math.MaxInt32 {
			return avroerr.NewCodec(avroerr.CodeNumericOverflow, "value %d does not fit in int", x)
		}
		e.w.WriteInt(int32(x))
		return nil

	case schema.TypeLong:
		x, err := intFromValue(rv)
		if err != nil {
			return encodeMismatch(n, rv)
		}
		e.w.WriteLong(x)
		return nil

	case schema.TypeFloat:
		switch {
		case !rv.IsValid():
			return encodeMismatch(n, rv)
		case rv.Kind() == reflect.Float32:
			e.w.WriteFloat(float32(rv.Float()))
			return nil
		case rv.Kind() == reflect.Float64:
			f := rv.Float()
			f32 := float32(f)
			if float64(f32) != f && !math.IsNaN(f) {
				return avroerr.NewCodec(avroerr.CodeNumericOverflow, "double %v loses precision as float", f)
			}
			e.w.WriteFloat(f32)
			return nil
		default:
			x, err := intFromValue(rv)
			if err != nil {
				return encodeMismatch(n, rv)
			}
			e.w.WriteFloat(float32(x))
			return nil
		}

	case schema.TypeDouble:
		switch {
		case !rv.IsValid():
			return encodeMismatch(n, rv)
		case rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64:
			e.w.WriteDouble(rv.Float())
			return nil
		default:
			x, err := intFromValue(rv)
			if err != nil {
				return encodeMismatch(n, rv)
			}
			e.w.WriteDouble(float64(x))
			return nil
		}

	case schema.TypeBytes:
		b, ok := bytesFromValue(rv)
		if !ok {
			return encodeMismatch(n, rv)
		}
		e.w.WriteBytes(b)
		return nil

	case schema.TypeString:
		switch {
		case rv.IsValid() && rv.Kind() == reflect.String:
			e.w.WriteString(rv.String())
			return nil
		default:
			b, ok := bytesFromValue(rv)
			if !ok {
				return encodeMismatch(n, rv)
			}
			e.w.WriteBytes(b)
			return nil
		}

	case schema.TypeFixed:
		b, ok := bytesFromValue(rv)
		if !ok {
			return encodeMismatch(n, rv)
		}
		if len(b) != n.Size {
			return avroerr.NewCodec(avroerr.CodeInvalidLength, "fixed %s requires %d bytes, got %d", n.Name, n.Size, len(b))
		}
		e.w.WriteFixed(b)
		return nil

	case schema.TypeEnum:
		switch {
		case rv.IsValid() && rv.Kind() == reflect.String:
			idx := n.SymbolIndex(rv.String())
			if idx < 0 {
				return avroerr.NewCodec(avroerr.CodeCustom, "%q is not a symbol of enum %s", rv.String(), n.Name)
			}
			e.w.WriteLong(int64(idx))
			return nil
		default:
			x, err := intFromValue(rv)
			if err != nil {
				return encodeMismatch(n, rv)
			}
			if x < 0 || x >= int64(len(n.Symbols)) {
				return avroerr.NewCodec(avroerr.CodeIntegerOutOfRange, "enum index %d out of range for %s", x, n.Name)
			}
			e.w.WriteLong(x)
			return nil
		}

	case schema.TypeArray:
		return e.array(n, rv)

	case schema.TypeMap:
		return e.mapValue(n, rv)

	case schema.TypeRecord:
		return e.record(n, rv)
	}
	return avroerr.NewCodec(avroerr.CodeUnsupportedType, "cannot encode node type %s", n.Type)
}

func (e *encoder) logical(n *schema.Node, rv reflect.Value) (bool, error) {
	t := rv.Type()

	switch n.Logical {
	case schema.LogicalDecimal:
		var r *big.Rat
		switch {
		case t == ratType:
			if !rv.CanAddr() {
				cp := rv.Interface().(big.Rat)
				r = &cp
			} else {
				r = rv.Addr().Interface().(*big.Rat)
			}
		case t.Kind() == reflect.Pointer && t.Elem() == ratType:
			r = rv.Interface().(*big.Rat)
		default:
			return false, nil
		}
		size := 0
		if n.Type == schema.TypeFixed {
			size = n.Size
		}
		raw, err := decimalToBytes(r, n.Scale, size)
		if err != nil {
			return true, err
		}
		if n.Type == schema.TypeFixed {
			e.w.WriteFixed(raw)
		} else {
			e.w.WriteBytes(raw)
		}
		return true, nil

	case schema.LogicalUUID:
		if t != uuidType {
			return false, nil
		}
		e.w.WriteString(rv.Interface().(uuid.UUID).String())
		return true, nil

	case schema.LogicalDate:
		if t != timeType {
			return false, nil
		}
		days := daysFromDate(rv.Interface().(time.Time))
		if days < math.MinInt32 || days > math.MaxInt32 {
			return true, avroerr.NewCodec(avroerr.CodeNumericOverflow, "date %d days does not fit in int", days)
		}
		e.w.WriteInt(int32(days))
		return true, nil

	case schema.LogicalTimeMillis:
		if t != stdDuration {
			return false, nil
		}
		ms := rv.Interface().(time.Duration).Milliseconds()
		if ms < math.MinInt32 || ms > math.MaxInt32 {
			return true, avroerr.NewCodec(avroerr.CodeNumericOverflow, "time %d ms does not fit in int", ms)
		}
		e.w.WriteInt(int32(ms))
		return true, nil

	case schema.LogicalTimeMicros:
		if t != stdDuration {
			return false, nil
		}
		e.w.WriteLong(rv.Interface().(time.Duration).Microseconds())
		return true, nil

	case schema.LogicalTimestampMillis:
		if t != timeType {
			return false, nil
		}
		e.w.WriteLong(rv.Interface().(time.Time).UnixMilli())
		return true, nil

	case schema.LogicalTimestampMicros:
		if t != timeType {
			return false, nil
		}
		e.w.WriteLong(rv.Interface().(time.Time).UnixMicro())
		return true, nil

	case schema.LogicalDuration:
		if t != durationType {
			return false, nil
		}
		dur := rv.Interface().(Duration)
		var raw [12]byte
		putUint32LE(raw[0:4], dur.Months)
		putUint32LE(raw[4:8], dur.Days)
		putUint32LE(raw[8:12], dur.Millis)
		e.w.WriteFixed(raw[:])
		return true, nil
	}
	return false, nil
}

func (e *encoder) array(n *schema.Node, rv reflect.Value) error {
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return encodeMismatch(n, rv)
	}
	if err := e.push(); err != nil {
		return err
	}
	defer func() { e.depth-- }()

	count := rv.Len()
	if count > 0 {
		e.w.WriteLong(int64(count))
		for i := 0; i < count; i++ {
			if err := e.value(n.Items, rv.Index(i)); err != nil {
				return err
			}
		}
	}
	e.w.WriteLong(0)
	return nil
}

func (e *encoder) mapValue(n *schema.Node, rv reflect.Value) error {
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return encodeMismatch(n, rv)
	}
	if err := e.push(); err != nil {
		return err
	}
	defer func() { e.depth-- }()

	count := rv.Len()
	if count > 0 {
		e.w.WriteLong(int64(count))
		iter := rv.MapRange()
		for iter.Next() {
			e.w.WriteString(iter.Key().String())
			if err := e.value(n.Values, iter.Value()); err != nil {
				return err
			}
		}
	}
	e.w.WriteLong(0)
	return nil
}

func (e *encoder) record(n *schema.Node, rv reflect.Value) error {
	if err := e.push(); err != nil {
		return err
	}
	defer func() { e.depth-- }()

	switch {
	case rv.IsValid() && rv.Kind() == reflect.Struct:
		info := cachedStructInfo(rv.Type())
		for fi := range n.Fields {
			f := &n.Fields[fi]
			if idx, ok := info.lookup(f.Name); ok {
				if err := e.value(f.Type, rv.Field(idx)); err != nil {
					return err
				}
				continue
			}
			if err := e.defaultValue(f); err != nil {
				return err
			}
		}
		return nil

	case rv.IsValid() && rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		keyType := rv.Type().Key()
		for fi := range n.Fields {
			f := &n.Fields[fi]
			mv := rv.MapIndex(reflect.ValueOf(f.Name).Convert(keyType))
			if mv.IsValid() {
				if err := e.value(f.Type, mv); err != nil {
					return err
				}
				continue
			}
			if err := e.defaultValue(f); err != nil {
				return err
			}
		}
		return nil
	}
	return encodeMismatch(n, rv)
}

// defaultValue emits a field's pre-decoded default, failing with
// MissingField when the schema declares none.
func (e *encoder) defaultValue(f *schema.Field) error {
	if !f.HasDefault {
		return avroerr.NewCodec(avroerr.CodeMissingField, "source value has no field %q and the schema has no default", f.Name)
	}
	if f.Default == nil {
		n := e.s.Node(f.Type)
		switch n.Type {
		case schema.TypeNull:
			return nil
		case schema.TypeUnion:
			if nb := n.NullBranch(); nb >= 0 {
				e.w.WriteLong(int64(nb))
				return nil
			}
		}
		return avroerr.NewCodec(avroerr.CodeUnsupportedType, "null default for non-nullable field %q", f.Name)
	}
	return e.value(f.Type, reflect.ValueOf(f.Default))
}

func (e *encoder) union(n *schema.Node, rv reflect.Value) error {
	idx, err := e.pickBranch(n, rv)
	if err != nil {
		return err
	}
	e.w.WriteLong(int64(idx))

	branch := n.Branches[idx]
	if e.s.Node(branch).Type == schema.TypeNull {
		return nil
	}
	if err := e.push(); err != nil {
		return err
	}
	defer func() { e.depth-- }()
	return e.value(branch, rv)
}

// pickBranch matches a value against union branches by kind and name.
// Preference among integer and float widths is deterministic; remaining
// ties are AmbiguousUnion.
func (e *encoder) pickBranch(n *schema.Node, rv reflect.Value) (int, error) {
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		if nb := n.NullBranch(); nb >= 0 {
			return nb, nil
		}
		return 0, avroerr.NewCodec(avroerr.CodeUnsupportedType, "nil value for union without a null branch")
	}
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	t := rv.Type()

	branchOf := func(want func(*schema.Node) bool) []int {
		var out []int
		for i, branch := range n.Branches {
			if want(e.s.Node(branch)) {
				out = append(out, i)
			}
		}
		return out
	}
	isType := func(types ...schema.Type) func(*schema.Node) bool {
		return func(bn *schema.Node) bool {
			for _, ty := range types {
				if bn.Type == ty {
					return true
				}
			}
			return false
		}
	}
	single := func(matches []int, what string) (int, error) {
		switch len(matches) {
		case 0:
			return 0, avroerr.NewCodec(avroerr.CodeUnsupportedType, "no union branch accepts %s", what)
		case 1:
			return matches[0], nil
		default:
			return 0, avroerr.NewCodec(avroerr.CodeAmbiguousUnion, "%d union branches accept %s", len(matches), what)
		}
	}

	// Logical targets first.
	switch {
	case t == timeType:
		return single(branchOf(func(bn *schema.Node) bool {
			switch bn.Logical {
			case schema.LogicalDate, schema.LogicalTimestampMillis, schema.LogicalTimestampMicros:
				return true
			}
			return false
		}), t.String())
	case t == stdDuration:
		return single(branchOf(func(bn *schema.Node) bool {
			return bn.Logical == schema.LogicalTimeMillis || bn.Logical == schema.LogicalTimeMicros
		}), t.String())
	case t == durationType:
		return single(branchOf(func(bn *schema.Node) bool { return bn.Logical == schema.LogicalDuration }), t.String())
	case t == ratType || (t.Kind() == reflect.Pointer && t.Elem() == ratType):
		return single(branchOf(func(bn *schema.Node) bool { return bn.Logical == schema.LogicalDecimal }), t.String())
	case t == uuidType:
		if m := branchOf(func(bn *schema.Node) bool { return bn.Logical == schema.LogicalUUID }); len(m) == 1 {
			return m[0], nil
		}
		return single(branchOf(isType(schema.TypeString)), t.String())
	}

	switch rv.Kind() {
	case reflect.Bool:
		return single(branchOf(isType(schema.TypeBoolean)), "bool")

	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		if m := branchOf(isType(schema.TypeInt)); len(m) == 1 {
			return m[0], nil
		}
		return single(branchOf(isType(schema.TypeLong)), t.String())

	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		if m := branchOf(isType(schema.TypeLong)); len(m) == 1 {
			return m[0], nil
		}
		return single(branchOf(isType(schema.TypeInt)), t.String())

	case reflect.Float32:
		if m := branchOf(isType(schema.TypeFloat)); len(m) == 1 {
			return m[0], nil
		}
		return single(branchOf(isType(schema.TypeDouble)), t.String())

	case reflect.Float64:
		if m := branchOf(isType(schema.TypeDouble)); len(m) == 1 {
			return m[0], nil
		}
		return single(branchOf(isType(schema.TypeFloat)), t.String())

	case reflect.String:
		s := rv.String()
		matches := branchOf(func(bn *schema.Node) bool {
			if bn.Type == schema.TypeString {
				return true
			}
			return bn.Type == schema.TypeEnum && bn.SymbolIndex(s) >= 0
		})
		return single(matches, "string")

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			size := rv.Len()
			matches := branchOf(func(bn *schema.Node) bool {
				return bn.Type == schema.TypeBytes || (bn.Type == schema.TypeFixed && bn.Size == size)
			})
			return single(matches, "bytes")
		}
		return single(branchOf(isType(schema.TypeArray)), t.String())

	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			size := rv.Len()
			if m := branchOf(func(bn *schema.Node) bool {
				return bn.Type == schema.TypeFixed && bn.Size == size
			}); len(m) == 1 {
				return m[0], nil
			}
			return single(branchOf(isType(schema.TypeBytes)), t.String())
		}
		return single(branchOf(isType(schema.TypeArray)), t.String())

	case reflect.Struct:
		matches := branchOf(isType(schema.TypeRecord))
		if len(matches) > 1 {
			var named []int
			for _, i := range matches {
				bn := e.s.Node(n.Branches[i])
				if equalFold(bn.SimpleName(), t.Name()) {
					named = append(named, i)
				}
			}
			matches = named
		}
		return single(matches, t.String())

	case reflect.Map:
		if m := branchOf(isType(schema.TypeMap)); len(m) == 1 {
			return m[0], nil
		}
		return single(branchOf(isType(schema.TypeRecord)), t.String())
	}
	return 0, avroerr.NewCodec(avroerr.CodeUnsupportedType, "no union branch accepts %s", t)
}

func intFromValue(rv reflect.Value) (int64, error) {
	if !rv.IsValid() {
		return 0, avroerr.NewCodec(avroerr.CodeUnsupportedType, "nil is not an integer")
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, avroerr.NewCodec(avroerr.CodeNumericOverflow, "value %d does not fit in long", u)
		}
		return int64(u), nil
	}
	return 0, avroerr.NewCodec(avroerr.CodeUnsupportedType, "%s is not an integer", rv.Type())
}

func bytesFromValue(rv reflect.Value) ([]byte, bool) {
	if !rv.IsValid() {
		return nil, false
	}
	switch {
	case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
		return rv.Bytes(), true
	case rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8:
		out := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(out), rv)
		return out, true
	case rv.Kind() == reflect.String:
		return []byte(rv.String()), true
	}
	return nil, false
}

func encodeMismatch(n *schema.Node, rv reflect.Value) error {
	if !rv.IsValid() {
		return avroerr.NewCodec(avroerr.CodeUnsupportedType, "cannot encode nil as %s", n.Type)
	}
	return avroerr.NewCodec(avroerr.CodeUnsupportedType, "cannot encode %s as %s", rv.Type(), n.Type)
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// equalFold is an ASCII case-insensitive comparison, enough for Avro names.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
