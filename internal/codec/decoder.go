package codec

import (
	"reflect"
	"time"
	"unicode/utf8"
	"unsafe"

	"github.com/google/uuid"

	"github.com/avrojet/avrojet/internal/binary"
	"github.com/avrojet/avrojet/pkg/avroerr"
	"github.com/avrojet/avrojet/pkg/schema"
)

type decoder struct {
	r     binary.Reader
	s     *schema.Schema
	cfg   Config
	depth int
}

// DecodeValue decodes one datum from r, guided by the node at ref, into the
// value v points to.
func DecodeValue(r binary.Reader, s *schema.Schema, ref schema.Ref, v interface{}, cfg Config) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return avroerr.NewCodec(avroerr.CodeUnsupportedType, "decode target must be a non-nil pointer, got %T", v)
	}
	d := &decoder{r: r, s: s, cfg: cfg.withDefaults()}
	return d.value(ref, rv.Elem())
}

func (d *decoder) push() error {
	d.depth++
	if d.depth > d.cfg.MaxDepth {
		return avroerr.NewCodec(avroerr.CodeCustom, "nesting exceeds maximum depth %d", d.cfg.MaxDepth)
	}
	return nil
}

func (d *decoder) value(ref schema.Ref, v reflect.Value) error {
	n := d.s.Node(ref)

	// A pointer target for a non-union node is just indirection.
	if v.Kind() == reflect.Pointer && n.Type != schema.TypeUnion && n.Type != schema.TypeNull {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}

	// Composite nodes decoding into an untyped interface build their
	// natural Go shape and box it.
	if v.Kind() == reflect.Interface && v.NumMethod() == 0 {
		switch n.Type {
		case schema.TypeArray:
			var out []interface{}
			hv := reflect.ValueOf(&out).Elem()
			if err := d.value(ref, hv); err != nil {
				return err
			}
			v.Set(hv)
			return nil
		case schema.TypeMap, schema.TypeRecord:
			var out map[string]interface{}
			hv := reflect.ValueOf(&out).Elem()
			if err := d.value(ref, hv); err != nil {
				return err
			}
			v.Set(hv)
			return nil
		}
	}

	if n.Logical != schema.LogicalNone {
		handled, err := d.logical(n, v)
		if handled || err != nil {
			return err
		}
	}

	switch n.Type {
	case schema.TypeNull:
		v.Set(reflect.Zero(v.Type()))
		return nil

	case schema.TypeBoolean:
		b, err := d.r.ReadBool()
		if err != nil {
			return err
		}
		return d.setBool(v, b)

	case schema.TypeInt:
		x, err := d.r.ReadInt()
		if err != nil {
			return err
		}
		return d.setInt(v, int64(x), true)

	case schema.TypeLong:
		x, err := d.r.ReadLong()
		if err != nil {
			return err
		}
		return d.setInt(v, x, false)

	case schema.TypeFloat:
		f, err := d.r.ReadFloat()
		if err != nil {
			return err
		}
		return d.setFloat(v, float64(f), true)

	case schema.TypeDouble:
		f, err := d.r.ReadDouble()
		if err != nil {
			return err
		}
		return d.setFloat(v, f, false)

	case schema.TypeBytes:
		b, err := d.r.ReadLengthPrefixed()
		if err != nil {
			return err
		}
		return d.setBytes(v, b)

	case schema.TypeString:
		b, err := d.r.ReadLengthPrefixed()
		if err != nil {
			return err
		}
		if !utf8.Valid(b) {
			return avroerr.NewCodec(avroerr.CodeInvalidUTF8, "string is not valid UTF-8")
		}
		return d.setString(v, b)

	case schema.TypeFixed:
		b, err := d.r.ReadFixed(n.Size)
		if err != nil {
			return err
		}
		return d.setBytes(v, b)

	case schema.TypeEnum:
		idx, err := d.r.ReadLong()
		if err != nil {
			return err
		}
		if idx < 0 || idx >= int64(len(n.Symbols)) {
			return avroerr.NewCodec(avroerr.CodeIntegerOutOfRange, "enum index %d out of range for %s", idx, n.Name)
		}
		switch v.Kind() {
		case reflect.String:
			v.SetString(n.Symbols[idx])
			return nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return d.setInt(v, idx, false)
		case reflect.Interface:
			v.Set(reflect.ValueOf(n.Symbols[idx]))
			return nil
		}
		return mismatch(n, v)

	case schema.TypeArray:
		return d.array(n, v)

	case schema.TypeMap:
		return d.mapValue(n, v)

	case schema.TypeRecord:
		return d.record(n, v)

	case schema.TypeUnion:
		return d.union(n, v)
	}
	return avroerr.NewCodec(avroerr.CodeUnsupportedType, "cannot decode node type %s", n.Type)
}

// logical decodes a logical-type node when the target is logical-aware.
// It reports false, leaving the cursor untouched, when the target wants the
// base representation.
func (d *decoder) logical(n *schema.Node, v reflect.Value) (bool, error) {
	t := v.Type()
	iface := v.Kind() == reflect.Interface && v.NumMethod() == 0

	switch n.Logical {
	case schema.LogicalDecimal:
		if !iface && t != ratType && (t.Kind() != reflect.Pointer || t.Elem() != ratType) {
			return false, nil
		}
		var raw []byte
		var err error
		if n.Type == schema.TypeFixed {
			raw, err = d.r.ReadFixed(n.Size)
		} else {
			raw, err = d.r.ReadLengthPrefixed()
		}
		if err != nil {
			return true, err
		}
		r := decimalFromBytes(raw, n.Scale)
		switch {
		case iface:
			v.Set(reflect.ValueOf(r))
		case t == ratType:
			v.Set(reflect.ValueOf(*r))
		default:
			v.Set(reflect.ValueOf(r))
		}
		return true, nil

	case schema.LogicalUUID:
		if !iface && t != uuidType {
			return false, nil
		}
		raw, err := d.r.ReadLengthPrefixed()
		if err != nil {
			return true, err
		}
		id, err := uuid.Parse(string(raw))
		if err != nil {
			return true, avroerr.WrapCodec(avroerr.CodeInvalidLogical, "malformed uuid", err)
		}
		v.Set(reflect.ValueOf(id))
		return true, nil

	case schema.LogicalDate:
		if !iface && t != timeType {
			return false, nil
		}
		days, err := d.r.ReadInt()
		if err != nil {
			return true, err
		}
		v.Set(reflect.ValueOf(dateFromDays(days)))
		return true, nil

	case schema.LogicalTimeMillis:
		if !iface && t != stdDuration {
			return false, nil
		}
		ms, err := d.r.ReadInt()
		if err != nil {
			return true, err
		}
		v.Set(reflect.ValueOf(time.Duration(ms) * time.Millisecond))
		return true, nil

	case schema.LogicalTimeMicros:
		if !iface && t != stdDuration {
			return false, nil
		}
		us, err := d.r.ReadLong()
		if err != nil {
			return true, err
		}
		v.Set(reflect.ValueOf(time.Duration(us) * time.Microsecond))
		return true, nil

	case schema.LogicalTimestampMillis:
		if !iface && t != timeType {
			return false, nil
		}
		ms, err := d.r.ReadLong()
		if err != nil {
			return true, err
		}
		v.Set(reflect.ValueOf(time.UnixMilli(ms).UTC()))
		return true, nil

	case schema.LogicalTimestampMicros:
		if !iface && t != timeType {
			return false, nil
		}
		us, err := d.r.ReadLong()
		if err != nil {
			return true, err
		}
		v.Set(reflect.ValueOf(time.UnixMicro(us).UTC()))
		return true, nil

	case schema.LogicalDuration:
		if !iface && t != durationType {
			return false, nil
		}
		raw, err := d.r.ReadFixed(12)
		if err != nil {
			return true, err
		}
		dur := Duration{
			Months: uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24,
			Days:   uint32(raw[4]) | uint32(raw[5])<<8 | uint32(raw[6])<<16 | uint32(raw[7])<<24,
			Millis: uint32(raw[8]) | uint32(raw[9])<<8 | uint32(raw[10])<<16 | uint32(raw[11])<<24,
		}
		v.Set(reflect.ValueOf(dur))
		return true, nil
	}
	return false, nil
}

func (d *decoder) setBool(v reflect.Value, b bool) error {
	switch v.Kind() {
	case reflect.Bool:
		v.SetBool(b)
		return nil
	case reflect.Interface:
		v.Set(reflect.ValueOf(b))
		return nil
	}
	return avroerr.NewCodec(avroerr.CodeUnsupportedType, "cannot decode boolean into %s", v.Type())
}

func (d *decoder) setInt(v reflect.Value, x int64, from32 bool) error {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.OverflowInt(x) {
			return avroerr.NewCodec(avroerr.CodeIntegerOutOfRange, "value %d does not fit in %s", x, v.Type())
		}
		v.SetInt(x)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if x < 0 || v.OverflowUint(uint64(x)) {
			return avroerr.NewCodec(avroerr.CodeIntegerOutOfRange, "value %d does not fit in %s", x, v.Type())
		}
		v.SetUint(uint64(x))
		return nil
	case reflect.Float32, reflect.Float64:
		v.SetFloat(float64(x))
		return nil
	case reflect.Interface:
		if from32 {
			v.Set(reflect.ValueOf(int(x)))
		} else {
			v.Set(reflect.ValueOf(x))
		}
		return nil
	}
	return avroerr.NewCodec(avroerr.CodeUnsupportedType, "cannot decode integer into %s", v.Type())
}

func (d *decoder) setFloat(v reflect.Value, f float64, from32 bool) error {
	switch v.Kind() {
	case reflect.Float32:
		if !from32 && v.OverflowFloat(f) {
			return avroerr.NewCodec(avroerr.CodeNumericOverflow, "double %v does not fit in float32", f)
		}
		v.SetFloat(f)
		return nil
	case reflect.Float64:
		v.SetFloat(f)
		return nil
	case reflect.Interface:
		if from32 {
			v.Set(reflect.ValueOf(float32(f)))
		} else {
			v.Set(reflect.ValueOf(f))
		}
		return nil
	}
	return avroerr.NewCodec(avroerr.CodeUnsupportedType, "cannot decode float into %s", v.Type())
}

func (d *decoder) setBytes(v reflect.Value, b []byte) error {
	switch {
	case v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8:
		if d.cfg.BorrowBytes && d.r.Borrowing() {
			v.SetBytes(b)
		} else {
			v.SetBytes(append([]byte(nil), b...))
		}
		return nil
	case v.Kind() == reflect.Array && v.Type().Elem().Kind() == reflect.Uint8:
		if v.Len() != len(b) {
			return avroerr.NewCodec(avroerr.CodeInvalidLength, "%d bytes do not fit in %s", len(b), v.Type())
		}
		reflect.Copy(v, reflect.ValueOf(b))
		return nil
	case v.Kind() == reflect.String:
		v.SetString(string(b))
		return nil
	case v.Kind() == reflect.Interface:
		v.Set(reflect.ValueOf(append([]byte(nil), b...)))
		return nil
	}
	return avroerr.NewCodec(avroerr.CodeUnsupportedType, "cannot decode bytes into %s", v.Type())
}

func (d *decoder) setString(v reflect.Value, b []byte) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(d.internString(b))
		return nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return d.setBytes(v, b)
		}
	case reflect.Interface:
		v.Set(reflect.ValueOf(d.internString(b)))
		return nil
	}
	return avroerr.NewCodec(avroerr.CodeUnsupportedType, "cannot decode string into %s", v.Type())
}

// internString converts decoded bytes to a string, aliasing the input
// buffer when the caller opted into borrowed strings.
func (d *decoder) internString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if d.cfg.BorrowStrings && d.r.Borrowing() {
		return unsafe.String(&b[0], len(b))
	}
	return string(b)
}

func (d *decoder) array(n *schema.Node, v reflect.Value) error {
	if v.Kind() != reflect.Slice {
		return mismatch(n, v)
	}
	if err := d.push(); err != nil {
		return err
	}
	defer func() { d.depth-- }()

	items := n.Items
	elemType := v.Type().Elem()
	acc := v.Slice(0, 0)
	for {
		count, err := d.r.ReadLong()
		if err != nil {
			return err
		}
		if count == 0 {
			break
		}
		if count < 0 {
			// Negative count: absolute count with a skippable byte size
			// we do not rely on.
			if _, err := d.r.ReadLong(); err != nil {
				return err
			}
			count = -count
			if count < 0 {
				return avroerr.NewCodec(avroerr.CodeInvalidLength, "array block count overflows")
			}
		}
		for i := int64(0); i < count; i++ {
			ev := reflect.New(elemType).Elem()
			if err := d.value(items, ev); err != nil {
				return err
			}
			acc = reflect.Append(acc, ev)
		}
	}
	v.Set(acc)
	return nil
}

func (d *decoder) mapValue(n *schema.Node, v reflect.Value) error {
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return mismatch(n, v)
	}
	if err := d.push(); err != nil {
		return err
	}
	defer func() { d.depth-- }()

	values := n.Values
	mt := v.Type()
	out := reflect.MakeMap(mt)
	elemType := mt.Elem()
	for {
		count, err := d.r.ReadLong()
		if err != nil {
			return err
		}
		if count == 0 {
			break
		}
		if count < 0 {
			if _, err := d.r.ReadLong(); err != nil {
				return err
			}
			count = -count
			if count < 0 {
				return avroerr.NewCodec(avroerr.CodeInvalidLength, "map block count overflows")
			}
		}
		for i := int64(0); i < count; i++ {
			rawKey, err := d.r.ReadLengthPrefixed()
			if err != nil {
				return err
			}
			if !utf8.Valid(rawKey) {
				return avroerr.NewCodec(avroerr.CodeInvalidUTF8, "map key is not valid UTF-8")
			}
			ev := reflect.New(elemType).Elem()
			if err := d.value(values, ev); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(string(rawKey)).Convert(mt.Key()), ev)
		}
	}
	v.Set(out)
	return nil
}

func (d *decoder) record(n *schema.Node, v reflect.Value) error {
	if err := d.push(); err != nil {
		return err
	}
	defer func() { d.depth-- }()

	switch v.Kind() {
	case reflect.Struct:
		info := cachedStructInfo(v.Type())
		for fi := range n.Fields {
			f := &n.Fields[fi]
			if idx, ok := info.lookup(f.Name); ok {
				if err := d.value(f.Type, v.Field(idx)); err != nil {
					return err
				}
			} else if err := d.skip(f.Type); err != nil {
				return err
			}
		}
		return nil

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return mismatch(n, v)
		}
		mt := v.Type()
		out := reflect.MakeMapWithSize(mt, len(n.Fields))
		elemType := mt.Elem()
		for fi := range n.Fields {
			f := &n.Fields[fi]
			ev := reflect.New(elemType).Elem()
			if err := d.value(f.Type, ev); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(f.Name).Convert(mt.Key()), ev)
		}
		v.Set(out)
		return nil
	}
	return mismatch(n, v)
}

func (d *decoder) union(n *schema.Node, v reflect.Value) error {
	idx, err := d.r.ReadLong()
	if err != nil {
		return err
	}
	if idx < 0 || idx >= int64(len(n.Branches)) {
		return avroerr.NewCodec(avroerr.CodeInvalidUnionIndex, "union index %d out of range (%d branches)", idx, len(n.Branches))
	}
	branch := n.Branches[idx]
	branchNull := d.s.Node(branch).Type == schema.TypeNull

	if err := d.push(); err != nil {
		return err
	}
	defer func() { d.depth-- }()

	if v.Kind() == reflect.Pointer {
		if branchNull {
			v.Set(reflect.Zero(v.Type()))
			return nil
		}
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return d.value(branch, v.Elem())
	}
	if branchNull {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}
	return d.value(branch, v)
}

func mismatch(n *schema.Node, v reflect.Value) error {
	return avroerr.NewCodec(avroerr.CodeUnsupportedType, "cannot decode %s into %s", n.Type, v.Type())
}
